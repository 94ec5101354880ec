package export

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/rpattn/pgbridge/internal/domain"
)

func sampleReport() domain.MigrationReport {
	elapsed := int64(1234)
	message := "bridge_coverage:asset failed"
	now := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	return domain.MigrationReport{
		GeneratedAt: now,
		Entities: []domain.EntityProgress{
			{EntityType: "work_order", Pending: 2, Completed: 96, Failed: 2, PercentComplete: 96, SuccessRate: 0.9796},
		},
		Phases: []domain.PhaseTiming{
			{Phase: domain.PhaseMigrate, Status: domain.LogStatusCompleted, StartedAt: &now, ElapsedMs: &elapsed},
		},
		Validations: []domain.ValidationResult{
			{ValidationType: "pre_migration", TargetTable: "work_orders", Passed: true, CreatedAt: now},
			{ValidationType: "pre_migration", TargetTable: "assets", Passed: false, ErrorMessage: &message, CreatedAt: now},
		},
		Bloat: []domain.TableBloat{
			{TableName: "work_orders", LiveTuples: 5000, DeadTuples: 250, DeadTupleRate: 0.05},
		},
		OverallSuccessRate: 0.9796,
		TotalCompleted:     96,
		TotalFailed:        2,
		TotalPending:       2,
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, sampleReport()); err != nil {
		t.Fatalf("WriteCSV failed: %v", err)
	}

	output := buf.String()
	for _, want := range []string{
		"# summary",
		"# entities",
		"# phases",
		"# validations",
		"# bloat",
		"overall_success_rate,0.9796",
		"work_order,2,0,96,2,0",
		"migrate,completed",
		"pre_migration,assets,false,bridge_coverage:asset failed",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("csv output missing %q:\n%s", want, output)
		}
	}
}

func TestWriteXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.xlsx")
	if err := WriteXLSX(path, sampleReport()); err != nil {
		t.Fatalf("WriteXLSX failed: %v", err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("failed to reopen workbook: %v", err)
	}
	defer func() { _ = f.Close() }()

	for _, sheet := range []string{"Summary", "Entities", "Phases", "Validations", "Bloat"} {
		if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
			t.Errorf("workbook missing sheet %s", sheet)
		}
	}

	entityType, err := f.GetCellValue("Entities", "A2")
	if err != nil {
		t.Fatalf("failed to read entity cell: %v", err)
	}
	if entityType != "work_order" {
		t.Errorf("expected first entity row to be work_order, got %q", entityType)
	}
}
