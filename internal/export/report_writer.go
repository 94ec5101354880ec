// Package export writes migration reports to files an operator can share:
// sectioned CSV for pipelines, XLSX workbooks for review.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/rpattn/pgbridge/internal/domain"
)

var (
	entityHeader     = []string{"entity_type", "pending", "processing", "completed", "failed", "verified", "percent_complete", "success_rate"}
	phaseHeader      = []string{"phase", "status", "started_at", "completed_at", "elapsed_ms"}
	validationHeader = []string{"validation_type", "target_table", "passed", "error_message", "created_at"}
	bloatHeader      = []string{"table_name", "live_tuples", "dead_tuples", "dead_tuple_rate", "last_vacuum", "last_autovacuum"}
)

// WriteCSV streams the report as sectioned CSV: a summary block followed by
// one block per report section, blocks separated by a blank row.
func WriteCSV(w io.Writer, report domain.MigrationReport) error {
	writer := csv.NewWriter(w)

	summary := [][]string{
		{"generated_at", report.GeneratedAt.Format(time.RFC3339)},
		{"overall_success_rate", formatRate(report.OverallSuccessRate)},
		{"total_completed", strconv.FormatInt(report.TotalCompleted, 10)},
		{"total_failed", strconv.FormatInt(report.TotalFailed, 10)},
		{"total_pending", strconv.FormatInt(report.TotalPending, 10)},
	}
	if err := writeSection(writer, "summary", nil, summary); err != nil {
		return err
	}

	entities := make([][]string, 0, len(report.Entities))
	for _, e := range report.Entities {
		entities = append(entities, entityRow(e))
	}
	if err := writeSection(writer, "entities", entityHeader, entities); err != nil {
		return err
	}

	phases := make([][]string, 0, len(report.Phases))
	for _, p := range report.Phases {
		phases = append(phases, phaseRow(p))
	}
	if err := writeSection(writer, "phases", phaseHeader, phases); err != nil {
		return err
	}

	validations := make([][]string, 0, len(report.Validations))
	for _, v := range report.Validations {
		validations = append(validations, validationRow(v))
	}
	if err := writeSection(writer, "validations", validationHeader, validations); err != nil {
		return err
	}

	bloat := make([][]string, 0, len(report.Bloat))
	for _, b := range report.Bloat {
		bloat = append(bloat, bloatRow(b))
	}
	if err := writeSection(writer, "bloat", bloatHeader, bloat); err != nil {
		return err
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flush report csv: %w", err)
	}
	return nil
}

// WriteXLSX renders the report as a workbook with one sheet per section.
func WriteXLSX(path string, report domain.MigrationReport) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	const summarySheet = "Summary"
	if err := f.SetSheetName(f.GetSheetName(0), summarySheet); err != nil {
		return fmt.Errorf("rename summary sheet: %w", err)
	}
	summaryRows := [][]any{
		{"generated_at", report.GeneratedAt.Format(time.RFC3339)},
		{"overall_success_rate", report.OverallSuccessRate},
		{"total_completed", report.TotalCompleted},
		{"total_failed", report.TotalFailed},
		{"total_pending", report.TotalPending},
	}
	if err := writeSheet(f, summarySheet, nil, summaryRows); err != nil {
		return err
	}

	entityRows := make([][]any, 0, len(report.Entities))
	for _, e := range report.Entities {
		entityRows = append(entityRows, []any{e.EntityType, e.Pending, e.Processing, e.Completed, e.Failed, e.Verified, e.PercentComplete, e.SuccessRate})
	}
	if err := addSheet(f, "Entities", entityHeader, entityRows); err != nil {
		return err
	}

	phaseRows := make([][]any, 0, len(report.Phases))
	for _, p := range report.Phases {
		phaseRows = append(phaseRows, []any{string(p.Phase), string(p.Status), formatTimePtr(p.StartedAt), formatTimePtr(p.CompletedAt), int64Ptr(p.ElapsedMs)})
	}
	if err := addSheet(f, "Phases", phaseHeader, phaseRows); err != nil {
		return err
	}

	validationRows := make([][]any, 0, len(report.Validations))
	for _, v := range report.Validations {
		validationRows = append(validationRows, []any{v.ValidationType, v.TargetTable, v.Passed, stringPtr(v.ErrorMessage), v.CreatedAt.Format(time.RFC3339)})
	}
	if err := addSheet(f, "Validations", validationHeader, validationRows); err != nil {
		return err
	}

	bloatRows := make([][]any, 0, len(report.Bloat))
	for _, b := range report.Bloat {
		bloatRows = append(bloatRows, []any{b.TableName, b.LiveTuples, b.DeadTuples, b.DeadTupleRate, formatTimePtr(b.LastVacuum), formatTimePtr(b.LastAutovac)})
	}
	if err := addSheet(f, "Bloat", bloatHeader, bloatRows); err != nil {
		return err
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save report workbook: %w", err)
	}
	return nil
}

func writeSection(writer *csv.Writer, name string, header []string, rows [][]string) error {
	if err := writer.Write([]string{"# " + name}); err != nil {
		return fmt.Errorf("write %s section marker: %w", name, err)
	}
	if header != nil {
		if err := writer.Write(header); err != nil {
			return fmt.Errorf("write %s header: %w", name, err)
		}
	}
	for _, row := range rows {
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("write %s row: %w", name, err)
		}
	}
	if err := writer.Write([]string{}); err != nil {
		return fmt.Errorf("write %s separator: %w", name, err)
	}
	return nil
}

func addSheet(f *excelize.File, name string, header []string, rows [][]any) error {
	if _, err := f.NewSheet(name); err != nil {
		return fmt.Errorf("create %s sheet: %w", name, err)
	}
	headerRow := make([]any, len(header))
	for i, h := range header {
		headerRow[i] = h
	}
	return writeSheet(f, name, headerRow, rows)
}

func writeSheet(f *excelize.File, name string, header []any, rows [][]any) error {
	rowIndex := 1
	if header != nil {
		if err := setRow(f, name, rowIndex, header); err != nil {
			return err
		}
		rowIndex++
	}
	for _, row := range rows {
		if err := setRow(f, name, rowIndex, row); err != nil {
			return err
		}
		rowIndex++
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("resolve cell for %s row %d: %w", sheet, row, err)
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("write %s row %d: %w", sheet, row, err)
	}
	return nil
}

func entityRow(e domain.EntityProgress) []string {
	return []string{
		e.EntityType,
		strconv.FormatInt(e.Pending, 10),
		strconv.FormatInt(e.Processing, 10),
		strconv.FormatInt(e.Completed, 10),
		strconv.FormatInt(e.Failed, 10),
		strconv.FormatInt(e.Verified, 10),
		formatRate(e.PercentComplete),
		formatRate(e.SuccessRate),
	}
}

func phaseRow(p domain.PhaseTiming) []string {
	elapsed := ""
	if p.ElapsedMs != nil {
		elapsed = strconv.FormatInt(*p.ElapsedMs, 10)
	}
	return []string{string(p.Phase), string(p.Status), formatTimePtr(p.StartedAt), formatTimePtr(p.CompletedAt), elapsed}
}

func validationRow(v domain.ValidationResult) []string {
	return []string{
		v.ValidationType,
		v.TargetTable,
		strconv.FormatBool(v.Passed),
		stringPtr(v.ErrorMessage),
		v.CreatedAt.Format(time.RFC3339),
	}
}

func bloatRow(b domain.TableBloat) []string {
	return []string{
		b.TableName,
		strconv.FormatInt(b.LiveTuples, 10),
		strconv.FormatInt(b.DeadTuples, 10),
		formatRate(b.DeadTupleRate),
		formatTimePtr(b.LastVacuum),
		formatTimePtr(b.LastAutovac),
	}
}

func formatRate(rate float64) string {
	return strconv.FormatFloat(rate, 'f', 4, 64)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}

func stringPtr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func int64Ptr(v *int64) any {
	if v == nil {
		return ""
	}
	return *v
}
