package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/rpattn/pgbridge/internal/domain"
)

type sourceRepository struct {
	db DBTX
}

// NewSourceRepository wires read-only access to descriptor-defined source tables.
func NewSourceRepository(db DBTX) SourceRepository {
	return &sourceRepository{db: db}
}

func (r *sourceRepository) FetchBatch(ctx context.Context, desc domain.EntityDescriptor, batchSize, offset int, scopeFilter string) ([]SourceRow, error) {
	if batchSize <= 0 {
		batchSize = 500
	}
	if offset < 0 {
		offset = 0
	}

	columns := sourceColumnList(desc)
	query := fmt.Sprintf(
		`SELECT %s::text, %s FROM %s`,
		quoteIdentifier(desc.SourceIDColumn),
		columns,
		quoteIdentifier(desc.SourceTable),
	)
	if strings.TrimSpace(scopeFilter) != "" {
		// scopeFilter is an operator-supplied predicate, not user input.
		query += " WHERE " + scopeFilter
	}
	query += fmt.Sprintf(" ORDER BY %s LIMIT $1 OFFSET $2", quoteIdentifier(desc.SourceIDColumn))

	rows, err := r.db.Query(ctx, query, batchSize, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch source batch from %s: %w", desc.SourceTable, err)
	}
	defer rows.Close()

	results := []SourceRow{}
	for rows.Next() {
		values, scanErr := rows.Values()
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan source row: %w", scanErr)
		}
		if len(values) != len(desc.SourceColumns)+1 {
			return nil, fmt.Errorf("source row from %s has %d values, expected %d", desc.SourceTable, len(values), len(desc.SourceColumns)+1)
		}

		sourceID, ok := values[0].(string)
		if !ok {
			sourceID = fmt.Sprintf("%v", values[0])
		}

		fields := make(map[string]any, len(desc.SourceColumns))
		for i, column := range desc.SourceColumns {
			fields[column] = values[i+1]
		}
		results = append(results, SourceRow{SourceID: sourceID, Fields: fields})
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate source rows: %w", rowsErr)
	}
	return results, nil
}

func (r *sourceRepository) Count(ctx context.Context, desc domain.EntityDescriptor, scopeFilter string) (int64, error) {
	query := fmt.Sprintf(`SELECT count(*) FROM %s`, quoteIdentifier(desc.SourceTable))
	if strings.TrimSpace(scopeFilter) != "" {
		query += " WHERE " + scopeFilter
	}

	var total int64
	if err := r.db.QueryRow(ctx, query).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to count source rows in %s: %w", desc.SourceTable, err)
	}
	return total, nil
}

func sourceColumnList(desc domain.EntityDescriptor) string {
	quoted := make([]string, len(desc.SourceColumns))
	for i, column := range desc.SourceColumns {
		quoted[i] = quoteIdentifier(column)
	}
	return strings.Join(quoted, ", ")
}
