package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/rpattn/pgbridge/internal/domain"
)

type catalogRepository struct {
	db DBTX
}

// NewCatalogRepository wires read access to Postgres catalog state.
func NewCatalogRepository(db DBTX) CatalogRepository {
	return &catalogRepository{db: db}
}

func (r *catalogRepository) TableRowCounts(ctx context.Context, tables []string) (map[string]int64, error) {
	counts := make(map[string]int64, len(tables))
	for _, table := range tables {
		exists, err := r.tableExists(ctx, table)
		if err != nil {
			return nil, err
		}
		if !exists {
			counts[table] = 0
			continue
		}

		var total int64
		query := fmt.Sprintf(`SELECT count(*) FROM %s`, quoteIdentifier(table))
		if err := r.db.QueryRow(ctx, query).Scan(&total); err != nil {
			return nil, fmt.Errorf("failed to count rows in %s: %w", table, err)
		}
		counts[table] = total
	}
	return counts, nil
}

func (r *catalogRepository) IndexInventory(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(
		ctx,
		`SELECT indexname FROM pg_indexes
		 WHERE schemaname = current_schema()
		 ORDER BY indexname`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to read index inventory: %w", err)
	}
	defer rows.Close()

	inventory := []string{}
	for rows.Next() {
		var name string
		if scanErr := rows.Scan(&name); scanErr != nil {
			return nil, fmt.Errorf("failed to scan index name: %w", scanErr)
		}
		inventory = append(inventory, name)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate index inventory: %w", rowsErr)
	}
	return inventory, nil
}

func (r *catalogRepository) DropIndexes(ctx context.Context, names []string) (int, error) {
	dropped := 0
	for _, name := range names {
		query := fmt.Sprintf(`DROP INDEX IF EXISTS %s`, quoteIdentifier(name))
		if _, err := r.db.Exec(ctx, query); err != nil {
			return dropped, fmt.Errorf("failed to drop index %s: %w", name, err)
		}
		dropped++
	}
	return dropped, nil
}

func (r *catalogRepository) TableBloat(ctx context.Context, tables []string) ([]domain.TableBloat, error) {
	rows, err := r.db.Query(
		ctx,
		`SELECT relname, n_live_tup, n_dead_tup, last_vacuum, last_autovacuum
		 FROM pg_stat_user_tables
		 WHERE relname = ANY($1)
		 ORDER BY relname`,
		tables,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to read table statistics: %w", err)
	}
	defer rows.Close()

	results := []domain.TableBloat{}
	for rows.Next() {
		var (
			bloat       domain.TableBloat
			lastVacuum  pgtype.Timestamptz
			lastAutovac pgtype.Timestamptz
		)
		if scanErr := rows.Scan(&bloat.TableName, &bloat.LiveTuples, &bloat.DeadTuples, &lastVacuum, &lastAutovac); scanErr != nil {
			return nil, fmt.Errorf("failed to scan table statistics: %w", scanErr)
		}
		if total := bloat.LiveTuples + bloat.DeadTuples; total > 0 {
			bloat.DeadTupleRate = float64(bloat.DeadTuples) / float64(total)
		}
		if lastVacuum.Valid {
			value := lastVacuum.Time
			bloat.LastVacuum = &value
		}
		if lastAutovac.Valid {
			value := lastAutovac.Time
			bloat.LastAutovac = &value
		}
		results = append(results, bloat)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate table statistics: %w", rowsErr)
	}
	return results, nil
}

func (r *catalogRepository) InstallMonitoringViews(ctx context.Context) (int, error) {
	views := []string{
		`CREATE OR REPLACE VIEW migration_progress AS
		 SELECT entity_type,
		        count(*) FILTER (WHERE status = 'pending')    AS pending,
		        count(*) FILTER (WHERE status = 'processing') AS processing,
		        count(*) FILTER (WHERE status = 'completed')  AS completed,
		        count(*) FILTER (WHERE status = 'failed')     AS failed,
		        count(*) FILTER (WHERE status = 'verified')   AS verified
		 FROM migration_bridge_archive
		 GROUP BY entity_type`,
		`CREATE OR REPLACE VIEW migration_timeline AS
		 SELECT phase, operation, status, message, execution_time_ms, created_at
		 FROM migration_log
		 ORDER BY created_at`,
		`CREATE OR REPLACE VIEW migration_failures AS
		 SELECT entity_type, source_id, target_id, validation_errors, last_error, processed_at
		 FROM migration_bridge_archive
		 WHERE status = 'failed'`,
	}

	installed := 0
	for _, view := range views {
		if _, err := r.db.Exec(ctx, view); err != nil {
			return installed, fmt.Errorf("failed to install monitoring view: %w", err)
		}
		installed++
	}
	return installed, nil
}

func (r *catalogRepository) tableExists(ctx context.Context, table string) (bool, error) {
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
