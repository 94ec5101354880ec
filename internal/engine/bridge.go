package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/rpattn/pgbridge/internal/domain"
)

// PopulateBridge stages source records for one entity type. Idempotent:
// already-bridged ids keep their target id and, unless still pending, their
// snapshot; pending rows are re-snapshotted so source edits made before the
// migrate phase are picked up.
func (e *Engine) PopulateBridge(ctx context.Context, entityType string, batchSize int, scopeFilter string) (BridgeResult, error) {
	desc, err := e.descriptor(entityType)
	if err != nil {
		return BridgeResult{}, err
	}
	if err := e.requirePhase(ctx, domain.PhaseBridge); err != nil {
		return BridgeResult{}, err
	}
	if batchSize <= 0 {
		batchSize = 500
	}

	started := e.now()
	e.logOperation(ctx, domain.PhaseBridge, "populate_bridge:"+entityType, domain.LogStatusStarted,
		fmt.Sprintf("staging %s from %s", entityType, desc.SourceTable), 0)

	if err := e.ensureRollbackPoint(ctx, domain.PhaseBridge); err != nil {
		e.logOperation(ctx, domain.PhaseBridge, "populate_bridge:"+entityType, domain.LogStatusFailed, err.Error(), e.now().Sub(started))
		return BridgeResult{}, fmt.Errorf("populate bridge failed: %w", err)
	}

	total, err := e.source.Count(ctx, desc, scopeFilter)
	if err != nil {
		e.logOperation(ctx, domain.PhaseBridge, "populate_bridge:"+entityType, domain.LogStatusFailed, err.Error(), e.now().Sub(started))
		return BridgeResult{}, fmt.Errorf("populate bridge failed: %w", err)
	}

	result := BridgeResult{EntityType: entityType}
	for offset := 0; int64(offset) < total; offset += batchSize {
		if ctx.Err() != nil {
			e.logOperation(ctx, domain.PhaseBridge, "populate_bridge:"+entityType, domain.LogStatusFailed, ctx.Err().Error(), e.now().Sub(started))
			return result, ctx.Err()
		}

		rows, err := e.source.FetchBatch(ctx, desc, batchSize, offset, scopeFilter)
		if err != nil {
			e.logOperation(ctx, domain.PhaseBridge, "populate_bridge:"+entityType, domain.LogStatusFailed, err.Error(), e.now().Sub(started))
			return result, fmt.Errorf("populate bridge failed: %w", err)
		}
		if len(rows) == 0 {
			break
		}

		records := make([]domain.BridgeRecord, 0, len(rows))
		for _, row := range rows {
			records = append(records, domain.BridgeRecord{
				EntityType:    entityType,
				SourceID:      row.SourceID,
				TargetID:      uuid.New(),
				SourcePayload: row.Fields,
			})
		}

		staged, err := e.bridge.UpsertSnapshots(ctx, records)
		if err != nil {
			result.Errors++
			e.logOperation(ctx, domain.PhaseBridge, "populate_bridge:"+entityType, domain.LogStatusFailed, err.Error(), e.now().Sub(started))
			return result, fmt.Errorf("populate bridge failed: %w", err)
		}

		result.Processed += len(rows)
		result.Inserted += staged.Inserted
		result.Resnapshots += staged.Resnapshots

		if skipped := int64(len(records)) - staged.Inserted - staged.Resnapshots; skipped > 0 {
			result.Skipped += skipped
			ids := make([]string, 0, len(rows))
			for _, row := range rows {
				ids = append(ids, row.SourceID)
			}
			existing, err := e.bridge.ExistingSourceIDs(ctx, entityType, ids)
			if err != nil {
				e.logOperation(ctx, domain.PhaseBridge, "populate_bridge:"+entityType, domain.LogStatusFailed, err.Error(), e.now().Sub(started))
				return result, fmt.Errorf("populate bridge failed: %w", err)
			}
			if result.SkippedStatuses == nil {
				result.SkippedStatuses = map[string]int64{}
			}
			for _, status := range existing {
				result.SkippedStatuses[string(status)]++
			}
		}

		e.progress(entityType, int64(result.Processed), total)
	}

	elapsed := e.now().Sub(started)
	e.logOperation(ctx, domain.PhaseBridge, "populate_bridge:"+entityType, domain.LogStatusCompleted,
		fmt.Sprintf("staged %d rows (%d new, %d re-snapshotted, %d skipped)", result.Processed, result.Inserted, result.Resnapshots, result.Skipped), elapsed)
	logf("[bridge] %s: %d rows staged in %s", entityType, result.Processed, elapsed)

	return result, nil
}

// PopulateAllBridges stages every configured entity type in descriptor order.
func (e *Engine) PopulateAllBridges(ctx context.Context, batchSize int, scopeFilter string) ([]BridgeResult, error) {
	results := make([]BridgeResult, 0, len(e.descriptors))
	for _, desc := range e.descriptors {
		result, err := e.PopulateBridge(ctx, desc.EntityType, batchSize, scopeFilter)
		if err != nil {
			return results, err
		}
		results = append(results, result)
	}
	return results, nil
}
