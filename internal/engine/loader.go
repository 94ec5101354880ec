package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/rpattn/pgbridge/internal/domain"
	"github.com/rpattn/pgbridge/internal/transform"
)

// MigrateChunk drains one window of the bridge table inside a single
// transaction. The window covers bridge rows [offset, offset+chunkSize) in
// stable FIFO order over all rows of the entity type; only rows still pending
// are attempted, which makes re-running the same offset after a crash safe.
// A single bad record never aborts the chunk: it is marked failed with
// diagnostic detail and the loader moves on.
func (e *Engine) MigrateChunk(ctx context.Context, entityType string, chunkSize, offset int) (ChunkResult, error) {
	desc, err := e.descriptor(entityType)
	if err != nil {
		return ChunkResult{}, err
	}
	if chunkSize <= 0 {
		chunkSize = e.cfg.ChunkSize
	}

	started := e.now()
	result := ChunkResult{EntityType: entityType}

	err = e.txRunner.RunInTx(ctx, e.cfg.StatementTimeout, func(tx ChunkTx) error {
		records, err := tx.Bridge.Window(ctx, entityType, chunkSize, offset)
		if err != nil {
			return err
		}

		for _, record := range records {
			if record.Status != domain.BridgeStatusPending {
				continue
			}

			claimed, err := tx.Bridge.SetProcessing(ctx, entityType, record.SourceID)
			if err != nil {
				return err
			}
			if !claimed {
				continue
			}
			result.Processed++

			refs, refErr := e.resolveReferences(ctx, tx, desc, record)
			if refErr != nil {
				return refErr
			}

			outcome := e.transformRecord(desc, record, refs)

			if outcome.State == transform.StateOK {
				// The upsert runs in its own savepoint so a constraint violation
				// poisons neither the chunk transaction nor the records after it.
				upsertErr := tx.Attempt(ctx, func() error {
					return tx.Target.Upsert(ctx, desc, record.TargetID, outcome.Target)
				})
				if upsertErr != nil {
					failed := transform.ExecutionFailed(upsertErr.Error())
					failed.Errors = outcome.Errors
					outcome = failed
				}
			}

			switch outcome.State {
			case transform.StateOK:
				if _, err := tx.Bridge.SetCompleted(ctx, entityType, record.SourceID, outcome.Target, outcome.Errors); err != nil {
					return err
				}
				result.Succeeded++
			case transform.StateValidationFailed:
				if _, err := tx.Bridge.SetFailed(ctx, entityType, record.SourceID, outcome.Errors, ""); err != nil {
					return err
				}
				result.Failed++
			case transform.StateExecutionFailed:
				if _, err := tx.Bridge.SetFailed(ctx, entityType, record.SourceID, outcome.Errors, outcome.Message); err != nil {
					return err
				}
				result.Failed++
			}
		}
		return nil
	})
	if err != nil {
		return ChunkResult{EntityType: entityType}, fmt.Errorf("chunk at offset %d failed: %w", offset, err)
	}

	result.ElapsedMs = e.now().Sub(started).Milliseconds()
	return result, nil
}

// transformRecord maps and validates one staged record into a tagged outcome,
// so the chunk loop branches on the outcome state instead of threading
// validation errors alongside the target payload. Advisory findings ride
// along on OK outcomes and are persisted with the completed row.
func (e *Engine) transformRecord(desc domain.EntityDescriptor, record domain.BridgeRecord, refs transform.ResolvedRefs) transform.Outcome {
	target := transform.Apply(desc, record, refs)
	validationErrors := e.validators[desc.EntityType].Validate(record, target, refs)
	if domain.HasCritical(validationErrors) {
		return transform.ValidationFailed(validationErrors)
	}
	outcome := transform.Ok(target)
	outcome.Errors = advisoriesOnly(validationErrors)
	return outcome
}

// resolveReferences looks up the bridged target id for every reference field
// of the record, grouped by referenced entity type.
func (e *Engine) resolveReferences(ctx context.Context, tx ChunkTx, desc domain.EntityDescriptor, record domain.BridgeRecord) (transform.ResolvedRefs, error) {
	refs := transform.ResolvedRefs{}
	if len(desc.References) == 0 {
		return refs, nil
	}

	valuesByType := map[string][]string{}
	for _, ref := range desc.References {
		if value := record.SourcePayload[ref.SourceField]; value != nil {
			valuesByType[ref.ReferencedEntityType] = append(valuesByType[ref.ReferencedEntityType], fmt.Sprintf("%v", value))
		}
	}

	resolvedByType := map[string]map[string]uuid.UUID{}
	for referencedType, values := range valuesByType {
		resolved, err := tx.Bridge.ResolveTargetIDs(ctx, referencedType, values)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s references: %w", referencedType, err)
		}
		resolvedByType[referencedType] = resolved
	}

	for _, ref := range desc.References {
		value := record.SourcePayload[ref.SourceField]
		if value == nil {
			continue
		}
		if id, ok := resolvedByType[ref.ReferencedEntityType][fmt.Sprintf("%v", value)]; ok {
			refs[ref.TargetField] = id
		}
	}
	return refs, nil
}

func advisoriesOnly(errs []domain.ValidationError) []domain.ValidationError {
	advisories := []domain.ValidationError{}
	for _, e := range errs {
		if e.Severity == domain.SeverityAdvisory {
			advisories = append(advisories, e)
		}
	}
	return advisories
}
