package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/rpattn/pgbridge/internal/domain"
)

type bridgeRepository struct {
	db DBTX
}

// NewBridgeRepository wires a bridge repository backed by pgx.
func NewBridgeRepository(db DBTX) BridgeRepository {
	return &bridgeRepository{db: db}
}

func (r *bridgeRepository) WithTx(tx pgx.Tx) BridgeRepository {
	return &bridgeRepository{db: tx}
}

func (r *bridgeRepository) UpsertSnapshots(ctx context.Context, records []domain.BridgeRecord) (BridgeUpsertResult, error) {
	result := BridgeUpsertResult{}
	if len(records) == 0 {
		return result, nil
	}

	for _, record := range records {
		payloadJSON, err := record.SourcePayloadJSON()
		if err != nil {
			return result, fmt.Errorf("failed to marshal source payload for %s/%s: %w", record.EntityType, record.SourceID, err)
		}

		// Already-bridged ids are skipped; a pending row gets a fresh snapshot
		// so re-runs pick up source edits made before migration.
		row := r.db.QueryRow(
			ctx,
			`INSERT INTO migration_bridge (entity_type, source_id, target_id, source_payload, status)
			 VALUES ($1, $2, $3, $4, 'pending')
			 ON CONFLICT (entity_type, source_id) DO UPDATE
			 SET source_payload = EXCLUDED.source_payload,
			     updated_at = now()
			 WHERE migration_bridge.status = 'pending'
			 RETURNING (xmax = 0) AS inserted`,
			record.EntityType,
			record.SourceID,
			record.TargetID,
			payloadJSON,
		)

		var inserted bool
		if err := row.Scan(&inserted); err != nil {
			if err == pgx.ErrNoRows {
				// Conflict on a non-pending row; snapshot untouched.
				continue
			}
			return result, fmt.Errorf("failed to stage bridge record %s/%s: %w", record.EntityType, record.SourceID, err)
		}
		if inserted {
			result.Inserted++
		} else {
			result.Resnapshots++
		}
	}

	return result, nil
}

func (r *bridgeRepository) Window(ctx context.Context, entityType string, limit, offset int) ([]domain.BridgeRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.db.Query(
		ctx,
		`SELECT entity_type, source_id, target_id, source_payload, target_payload,
		        status, validation_errors, last_error, created_at, updated_at, processed_at
		 FROM migration_bridge
		 WHERE entity_type = $1
		 ORDER BY created_at, source_id
		 LIMIT $2 OFFSET $3`,
		entityType,
		limit,
		offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to read bridge window: %w", err)
	}
	defer rows.Close()

	return scanBridgeRecords(rows)
}

func scanBridgeRecords(rows pgx.Rows) ([]domain.BridgeRecord, error) {
	records := []domain.BridgeRecord{}
	for rows.Next() {
		var (
			record         domain.BridgeRecord
			sourceJSON     []byte
			targetJSON     []byte
			validationJSON []byte
			lastError      pgtype.Text
			processedAt    pgtype.Timestamptz
		)
		if scanErr := rows.Scan(
			&record.EntityType,
			&record.SourceID,
			&record.TargetID,
			&sourceJSON,
			&targetJSON,
			&record.Status,
			&validationJSON,
			&lastError,
			&record.CreatedAt,
			&record.UpdatedAt,
			&processedAt,
		); scanErr != nil {
			return nil, fmt.Errorf("failed to scan bridge record: %w", scanErr)
		}

		source, err := domain.PayloadFromJSON(sourceJSON)
		if err != nil {
			return nil, fmt.Errorf("failed to decode source payload for %s: %w", record.SourceID, err)
		}
		record.SourcePayload = source

		if len(targetJSON) > 0 {
			target, err := domain.PayloadFromJSON(targetJSON)
			if err != nil {
				return nil, fmt.Errorf("failed to decode target payload for %s: %w", record.SourceID, err)
			}
			record.TargetPayload = target
		}

		validationErrors, err := domain.ValidationErrorsFromJSON(validationJSON)
		if err != nil {
			return nil, fmt.Errorf("failed to decode validation errors for %s: %w", record.SourceID, err)
		}
		record.ValidationErrors = validationErrors

		if lastError.Valid {
			value := lastError.String
			record.LastError = &value
		}
		if processedAt.Valid {
			value := processedAt.Time
			record.ProcessedAt = &value
		}

		records = append(records, record)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate bridge records: %w", rowsErr)
	}

	return records, nil
}

func (r *bridgeRepository) SetProcessing(ctx context.Context, entityType, sourceID string) (bool, error) {
	tag, err := r.db.Exec(
		ctx,
		`UPDATE migration_bridge
		 SET status = 'processing', updated_at = now()
		 WHERE entity_type = $1 AND source_id = $2 AND status = 'pending'`,
		entityType,
		sourceID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark %s/%s processing: %w", entityType, sourceID, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *bridgeRepository) SetCompleted(ctx context.Context, entityType, sourceID string, targetPayload map[string]any, advisories []domain.ValidationError) (bool, error) {
	record := domain.BridgeRecord{TargetPayload: targetPayload, ValidationErrors: advisories}
	targetJSON, err := marshalPayload(record.TargetPayload)
	if err != nil {
		return false, fmt.Errorf("failed to marshal target payload for %s/%s: %w", entityType, sourceID, err)
	}
	validationJSON, err := record.ValidationErrorsJSON()
	if err != nil {
		return false, fmt.Errorf("failed to marshal advisories for %s/%s: %w", entityType, sourceID, err)
	}

	tag, err := r.db.Exec(
		ctx,
		`UPDATE migration_bridge
		 SET status = 'completed',
		     target_payload = $3,
		     validation_errors = $4,
		     last_error = NULL,
		     processed_at = now(),
		     updated_at = now()
		 WHERE entity_type = $1 AND source_id = $2 AND status = 'processing'`,
		entityType,
		sourceID,
		targetJSON,
		validationJSON,
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark %s/%s completed: %w", entityType, sourceID, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *bridgeRepository) SetFailed(ctx context.Context, entityType, sourceID string, validationErrors []domain.ValidationError, lastError string) (bool, error) {
	record := domain.BridgeRecord{ValidationErrors: validationErrors}
	validationJSON, err := record.ValidationErrorsJSON()
	if err != nil {
		return false, fmt.Errorf("failed to marshal validation errors for %s/%s: %w", entityType, sourceID, err)
	}

	var lastErrorValue any
	if lastError != "" {
		lastErrorValue = truncateDiagnostic(lastError)
	}

	tag, err := r.db.Exec(
		ctx,
		`UPDATE migration_bridge
		 SET status = 'failed',
		     validation_errors = $3,
		     last_error = $4,
		     processed_at = now(),
		     updated_at = now()
		 WHERE entity_type = $1 AND source_id = $2 AND status = 'processing'`,
		entityType,
		sourceID,
		validationJSON,
		lastErrorValue,
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark %s/%s failed: %w", entityType, sourceID, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *bridgeRepository) MarkVerified(ctx context.Context, entityType string) (int64, error) {
	tag, err := r.db.Exec(
		ctx,
		`UPDATE migration_bridge
		 SET status = 'verified', updated_at = now()
		 WHERE entity_type = $1 AND status = 'completed'`,
		entityType,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to mark %s records verified: %w", entityType, err)
	}
	return tag.RowsAffected(), nil
}

func (r *bridgeRepository) ResetFailed(ctx context.Context, entityType string, sourceIDs []string) (int64, error) {
	var (
		tag pgconn.CommandTag
		err error
	)
	if len(sourceIDs) == 0 {
		tag, err = r.db.Exec(
			ctx,
			`UPDATE migration_bridge
			 SET status = 'pending', last_error = NULL, validation_errors = '[]'::jsonb, updated_at = now()
			 WHERE entity_type = $1 AND status = 'failed'`,
			entityType,
		)
	} else {
		tag, err = r.db.Exec(
			ctx,
			`UPDATE migration_bridge
			 SET status = 'pending', last_error = NULL, validation_errors = '[]'::jsonb, updated_at = now()
			 WHERE entity_type = $1 AND status = 'failed' AND source_id = ANY($2)`,
			entityType,
			sourceIDs,
		)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to reset failed %s records: %w", entityType, err)
	}
	return tag.RowsAffected(), nil
}

func (r *bridgeRepository) ResetCompleted(ctx context.Context, entityType string) (int64, error) {
	tag, err := r.db.Exec(
		ctx,
		`UPDATE migration_bridge
		 SET status = 'pending',
		     target_payload = NULL,
		     validation_errors = '[]'::jsonb,
		     last_error = NULL,
		     processed_at = NULL,
		     updated_at = now()
		 WHERE entity_type = $1 AND status IN ('completed', 'verified')`,
		entityType,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to reset completed %s records: %w", entityType, err)
	}
	return tag.RowsAffected(), nil
}

func (r *bridgeRepository) CompletedTargetIDs(ctx context.Context, entityType string) ([]uuid.UUID, error) {
	rows, err := r.db.Query(
		ctx,
		`SELECT target_id FROM migration_bridge
		 WHERE entity_type = $1 AND status IN ('completed', 'verified')`,
		entityType,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list completed target ids: %w", err)
	}
	defer rows.Close()

	ids := []uuid.UUID{}
	for rows.Next() {
		var id uuid.UUID
		if scanErr := rows.Scan(&id); scanErr != nil {
			return nil, fmt.Errorf("failed to scan target id: %w", scanErr)
		}
		ids = append(ids, id)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate target ids: %w", rowsErr)
	}
	return ids, nil
}

func (r *bridgeRepository) ResolveTargetIDs(ctx context.Context, entityType string, sourceIDs []string) (map[string]uuid.UUID, error) {
	resolved := map[string]uuid.UUID{}
	if len(sourceIDs) == 0 {
		return resolved, nil
	}

	rows, err := r.db.Query(
		ctx,
		`SELECT source_id, target_id FROM migration_bridge
		 WHERE entity_type = $1 AND source_id = ANY($2)`,
		entityType,
		sourceIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve target ids: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			sourceID string
			targetID uuid.UUID
		)
		if scanErr := rows.Scan(&sourceID, &targetID); scanErr != nil {
			return nil, fmt.Errorf("failed to scan resolved id: %w", scanErr)
		}
		resolved[sourceID] = targetID
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate resolved ids: %w", rowsErr)
	}
	return resolved, nil
}

func (r *bridgeRepository) ExistingSourceIDs(ctx context.Context, entityType string, sourceIDs []string) (map[string]domain.BridgeStatus, error) {
	existing := map[string]domain.BridgeStatus{}
	if len(sourceIDs) == 0 {
		return existing, nil
	}

	rows, err := r.db.Query(
		ctx,
		`SELECT source_id, status FROM migration_bridge
		 WHERE entity_type = $1 AND source_id = ANY($2) AND status <> 'pending'`,
		entityType,
		sourceIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to look up bridged ids: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			sourceID string
			status   domain.BridgeStatus
		)
		if scanErr := rows.Scan(&sourceID, &status); scanErr != nil {
			return nil, fmt.Errorf("failed to scan bridged id: %w", scanErr)
		}
		existing[sourceID] = status
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate bridged ids: %w", rowsErr)
	}
	return existing, nil
}

func (r *bridgeRepository) Counts(ctx context.Context, entityType string) (domain.BridgeCounts, error) {
	counts := domain.BridgeCounts{EntityType: entityType}
	row := r.db.QueryRow(
		ctx,
		`SELECT
		   count(*) FILTER (WHERE status = 'pending'),
		   count(*) FILTER (WHERE status = 'processing'),
		   count(*) FILTER (WHERE status = 'completed'),
		   count(*) FILTER (WHERE status = 'failed'),
		   count(*) FILTER (WHERE status = 'verified')
		 FROM migration_bridge
		 WHERE entity_type = $1`,
		entityType,
	)
	if err := row.Scan(&counts.Pending, &counts.Processing, &counts.Completed, &counts.Failed, &counts.Verified); err != nil {
		return counts, fmt.Errorf("failed to count bridge records: %w", err)
	}
	return counts, nil
}

func (r *bridgeRepository) CountsAll(ctx context.Context) ([]domain.BridgeCounts, error) {
	rows, err := r.db.Query(
		ctx,
		`SELECT entity_type,
		   count(*) FILTER (WHERE status = 'pending'),
		   count(*) FILTER (WHERE status = 'processing'),
		   count(*) FILTER (WHERE status = 'completed'),
		   count(*) FILTER (WHERE status = 'failed'),
		   count(*) FILTER (WHERE status = 'verified')
		 FROM migration_bridge
		 GROUP BY entity_type
		 ORDER BY entity_type`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to count bridge records: %w", err)
	}
	defer rows.Close()

	all := []domain.BridgeCounts{}
	for rows.Next() {
		var counts domain.BridgeCounts
		if scanErr := rows.Scan(&counts.EntityType, &counts.Pending, &counts.Processing, &counts.Completed, &counts.Failed, &counts.Verified); scanErr != nil {
			return nil, fmt.Errorf("failed to scan bridge counts: %w", scanErr)
		}
		all = append(all, counts)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate bridge counts: %w", rowsErr)
	}
	return all, nil
}

func (r *bridgeRepository) Total(ctx context.Context, entityType string) (int64, error) {
	var total int64
	row := r.db.QueryRow(
		ctx,
		`SELECT count(*) FROM migration_bridge WHERE entity_type = $1`,
		entityType,
	)
	if err := row.Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to count bridge total: %w", err)
	}
	return total, nil
}

func (r *bridgeRepository) PurgeAll(ctx context.Context) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM migration_bridge`)
	if err != nil {
		return 0, fmt.Errorf("failed to purge bridge records: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *bridgeRepository) Archive(ctx context.Context) (int64, error) {
	if _, err := r.db.Exec(
		ctx,
		`CREATE TABLE IF NOT EXISTS migration_bridge_archive
		 (LIKE migration_bridge INCLUDING DEFAULTS INCLUDING CONSTRAINTS)`,
	); err != nil {
		return 0, fmt.Errorf("failed to create bridge archive: %w", err)
	}

	tag, err := r.db.Exec(
		ctx,
		`INSERT INTO migration_bridge_archive SELECT * FROM migration_bridge`,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to copy bridge records to archive: %w", err)
	}

	if _, err := r.db.Exec(ctx, `DROP TABLE migration_bridge`); err != nil {
		return 0, fmt.Errorf("failed to drop bridge table after archive: %w", err)
	}

	return tag.RowsAffected(), nil
}
