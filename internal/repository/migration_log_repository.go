package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/rpattn/pgbridge/internal/domain"
)

type migrationLogRepository struct {
	db DBTX
}

// NewMigrationLogRepository wires the append-only audit log repository.
func NewMigrationLogRepository(db DBTX) MigrationLogRepository {
	return &migrationLogRepository{db: db}
}

func (r *migrationLogRepository) Append(ctx context.Context, entry domain.MigrationLogEntry) (domain.MigrationLogEntry, error) {
	var executionTime any
	if entry.ExecutionTimeMs != nil {
		executionTime = *entry.ExecutionTimeMs
	}

	row := r.db.QueryRow(
		ctx,
		`INSERT INTO migration_log (phase, operation, status, message, execution_time_ms)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at`,
		entry.Phase,
		entry.Operation,
		entry.Status,
		entry.Message,
		executionTime,
	)
	if err := row.Scan(&entry.ID, &entry.CreatedAt); err != nil {
		return domain.MigrationLogEntry{}, fmt.Errorf("failed to append migration log entry: %w", err)
	}
	return entry, nil
}

func (r *migrationLogRepository) HasCompleted(ctx context.Context, phase domain.Phase) (bool, error) {
	var exists bool
	row := r.db.QueryRow(
		ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM migration_log
		   WHERE phase = $1 AND status = 'completed'
		 )`,
		phase,
	)
	if err := row.Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check phase completion: %w", err)
	}
	return exists, nil
}

func (r *migrationLogRepository) List(ctx context.Context, limit, offset int) ([]domain.MigrationLogEntry, error) {
	if limit <= 0 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.db.Query(
		ctx,
		`SELECT id, phase, operation, status, message, execution_time_ms, created_at
		 FROM migration_log
		 ORDER BY created_at DESC, id DESC
		 LIMIT $1 OFFSET $2`,
		limit,
		offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list migration log: %w", err)
	}
	defer rows.Close()

	entries := []domain.MigrationLogEntry{}
	for rows.Next() {
		var (
			entry         domain.MigrationLogEntry
			executionTime pgtype.Int8
		)
		if scanErr := rows.Scan(
			&entry.ID,
			&entry.Phase,
			&entry.Operation,
			&entry.Status,
			&entry.Message,
			&executionTime,
			&entry.CreatedAt,
		); scanErr != nil {
			return nil, fmt.Errorf("failed to scan migration log entry: %w", scanErr)
		}
		if executionTime.Valid {
			value := executionTime.Int64
			entry.ExecutionTimeMs = &value
		}
		entries = append(entries, entry)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate migration log: %w", rowsErr)
	}
	return entries, nil
}

func (r *migrationLogRepository) PhaseTimings(ctx context.Context) ([]domain.PhaseTiming, error) {
	rows, err := r.db.Query(
		ctx,
		`SELECT phase,
		        min(created_at) FILTER (WHERE status = 'started') AS started_at,
		        max(created_at) FILTER (WHERE status IN ('completed', 'failed', 'rolled_back')) AS finished_at,
		        (array_agg(status ORDER BY created_at DESC, id DESC))[1] AS latest_status,
		        max(execution_time_ms) AS elapsed_ms
		 FROM migration_log
		 GROUP BY phase`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate phase timings: %w", err)
	}
	defer rows.Close()

	timings := []domain.PhaseTiming{}
	for rows.Next() {
		var (
			timing     domain.PhaseTiming
			startedAt  pgtype.Timestamptz
			finishedAt pgtype.Timestamptz
			elapsed    pgtype.Int8
		)
		if scanErr := rows.Scan(&timing.Phase, &startedAt, &finishedAt, &timing.Status, &elapsed); scanErr != nil {
			return nil, fmt.Errorf("failed to scan phase timing: %w", scanErr)
		}
		if startedAt.Valid {
			value := startedAt.Time
			timing.StartedAt = &value
		}
		if finishedAt.Valid {
			value := finishedAt.Time
			timing.CompletedAt = &value
		}
		if elapsed.Valid {
			value := elapsed.Int64
			timing.ElapsedMs = &value
		}
		timings = append(timings, timing)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate phase timings: %w", rowsErr)
	}

	// Keep phase order stable for reports.
	order := map[domain.Phase]int{domain.PhasePrepare: 0, domain.PhaseBridge: 1, domain.PhaseMigrate: 2, domain.PhaseCleanup: 3}
	for i := 0; i < len(timings); i++ {
		for j := i + 1; j < len(timings); j++ {
			if order[timings[j].Phase] < order[timings[i].Phase] {
				timings[i], timings[j] = timings[j], timings[i]
			}
		}
	}
	return timings, nil
}
