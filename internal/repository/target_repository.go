package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/rpattn/pgbridge/internal/domain"
)

type targetRepository struct {
	db DBTX
}

// NewTargetRepository wires write access to descriptor-defined target tables.
func NewTargetRepository(db DBTX) TargetRepository {
	return &targetRepository{db: db}
}

func (r *targetRepository) WithTx(tx pgx.Tx) TargetRepository {
	return &targetRepository{db: tx}
}

func (r *targetRepository) Upsert(ctx context.Context, desc domain.EntityDescriptor, targetID uuid.UUID, payload map[string]any) error {
	idColumn := desc.TargetIDColumnOrDefault()
	columns := desc.TargetColumns()

	insertColumns := make([]string, 0, len(columns)+1)
	placeholders := make([]string, 0, len(columns)+1)
	updates := make([]string, 0, len(columns))
	args := make([]any, 0, len(columns)+1)

	insertColumns = append(insertColumns, quoteIdentifier(idColumn))
	placeholders = append(placeholders, "$1")
	args = append(args, targetID)

	for i, column := range columns {
		placeholder := fmt.Sprintf("$%d", i+2)
		insertColumns = append(insertColumns, quoteIdentifier(column))
		placeholders = append(placeholders, placeholder)
		updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", quoteIdentifier(column), quoteIdentifier(column)))
		args = append(args, payload[column])
	}

	query := fmt.Sprintf(
		`INSERT INTO %s (%s) VALUES (%s)
		 ON CONFLICT (%s) DO UPDATE SET %s`,
		quoteIdentifier(desc.TargetTable),
		strings.Join(insertColumns, ", "),
		strings.Join(placeholders, ", "),
		quoteIdentifier(idColumn),
		strings.Join(updates, ", "),
	)

	if _, err := r.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to upsert into %s: %w", desc.TargetTable, err)
	}
	return nil
}

func (r *targetRepository) DeleteByIDs(ctx context.Context, desc domain.EntityDescriptor, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	query := fmt.Sprintf(
		`DELETE FROM %s WHERE %s = ANY($1)`,
		quoteIdentifier(desc.TargetTable),
		quoteIdentifier(desc.TargetIDColumnOrDefault()),
	)
	tag, err := r.db.Exec(ctx, query, ids)
	if err != nil {
		return 0, fmt.Errorf("failed to delete from %s: %w", desc.TargetTable, err)
	}
	return tag.RowsAffected(), nil
}

func (r *targetRepository) Count(ctx context.Context, desc domain.EntityDescriptor) (int64, error) {
	var total int64
	query := fmt.Sprintf(`SELECT count(*) FROM %s`, quoteIdentifier(desc.TargetTable))
	if err := r.db.QueryRow(ctx, query).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to count rows in %s: %w", desc.TargetTable, err)
	}
	return total, nil
}

func (r *targetRepository) TableExists(ctx context.Context, table string) (bool, error) {
	var exists bool
	row := r.db.QueryRow(
		ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM information_schema.tables
		   WHERE table_schema = current_schema() AND table_name = $1
		 )`,
		table,
	)
	if err := row.Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check table %s: %w", table, err)
	}
	return exists, nil
}
