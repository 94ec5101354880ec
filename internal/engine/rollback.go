package engine

import (
	"context"
	"fmt"

	"github.com/rpattn/pgbridge/internal/domain"
)

// Rollback reverses the named phase using its active rollback point. Rollback
// is always operator-invoked; the engine never triggers it on its own.
func (e *Engine) Rollback(ctx context.Context, phase domain.Phase) error {
	point, err := e.rollback.GetActive(ctx, phase)
	if err != nil {
		return fmt.Errorf("rollback of %s: %w", phase, err)
	}

	started := e.now()
	e.logOperation(ctx, phase, "rollback", domain.LogStatusStarted,
		fmt.Sprintf("reverting %s using rollback point %d", phase, point.ID), 0)

	switch phase {
	case domain.PhaseMigrate:
		err = e.rollbackMigrate(ctx)
	case domain.PhaseBridge:
		err = e.rollbackBridge(ctx)
	case domain.PhasePrepare:
		err = e.rollbackPrepare(ctx, point)
	case domain.PhaseCleanup:
		err = fmt.Errorf("cleanup cannot be rolled back: the staging table was archived and dropped")
	default:
		err = fmt.Errorf("no rollback procedure for phase %s", phase)
	}
	if err != nil {
		e.logOperation(ctx, phase, "rollback", domain.LogStatusFailed, err.Error(), e.now().Sub(started))
		return fmt.Errorf("rollback of %s: %w", phase, err)
	}

	if err := e.rollback.MarkUsed(ctx, point.ID); err != nil {
		return fmt.Errorf("rollback of %s: failed to mark point used: %w", phase, err)
	}

	elapsed := e.now().Sub(started)
	e.logOperation(ctx, phase, "rollback", domain.LogStatusRolledBack,
		fmt.Sprintf("%s reverted", phase), elapsed)
	logf("[rollback] %s reverted in %s", phase, elapsed)
	return nil
}

// rollbackMigrate deletes target rows written for completed bridge records and
// returns those records to pending. Each entity type is reverted in one
// transaction so a crash mid-rollback never leaves a record pending while its
// target row survives.
func (e *Engine) rollbackMigrate(ctx context.Context) error {
	for _, desc := range e.descriptors {
		desc := desc
		err := e.txRunner.RunInTx(ctx, e.cfg.MaintenanceTimeout, func(tx ChunkTx) error {
			ids, err := tx.Bridge.CompletedTargetIDs(ctx, desc.EntityType)
			if err != nil {
				return err
			}
			if len(ids) == 0 {
				return nil
			}
			deleted, err := tx.Target.DeleteByIDs(ctx, desc, ids)
			if err != nil {
				return err
			}
			reset, err := tx.Bridge.ResetCompleted(ctx, desc.EntityType)
			if err != nil {
				return err
			}
			logf("[rollback] %s: deleted %d target rows, reset %d bridge records", desc.EntityType, deleted, reset)
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to revert %s: %w", desc.EntityType, err)
		}
	}
	return nil
}

// rollbackBridge discards every staged snapshot. Source tables were only read
// during population, so removing the staged rows fully reverts the phase.
func (e *Engine) rollbackBridge(ctx context.Context) error {
	purged, err := e.bridge.PurgeAll(ctx)
	if err != nil {
		return err
	}
	logf("[rollback] purged %d staged records", purged)
	return nil
}

// rollbackPrepare drops indexes created since the prepare-phase snapshot.
// Tracking tables are left in place; empty, they are inert and a later prepare
// reuses them.
func (e *Engine) rollbackPrepare(ctx context.Context, point domain.RollbackPoint) error {
	current, err := e.catalog.IndexInventory(ctx)
	if err != nil {
		return fmt.Errorf("failed to read index inventory: %w", err)
	}

	known := make(map[string]struct{}, len(point.IndexInventory))
	for _, name := range point.IndexInventory {
		known[name] = struct{}{}
	}

	var created []string
	for _, name := range current {
		if _, ok := known[name]; !ok {
			created = append(created, name)
		}
	}
	if len(created) == 0 {
		return nil
	}

	dropped, err := e.catalog.DropIndexes(ctx, created)
	if err != nil {
		return fmt.Errorf("failed to drop created indexes: %w", err)
	}
	logf("[rollback] dropped %d indexes created after the prepare snapshot", dropped)
	return nil
}
