package engine

import (
	"context"
	"fmt"

	"github.com/rpattn/pgbridge/internal/domain"
)

// Prepare creates the engine's tracking structures and performance indexes.
// It is idempotent: re-running against a prepared database changes nothing.
func (e *Engine) Prepare(ctx context.Context) (PrepareResult, error) {
	started := e.now()
	e.logOperation(ctx, domain.PhasePrepare, "prepare", domain.LogStatusStarted, "applying tracking migrations", 0)

	version, err := e.migrator()
	if err != nil {
		e.logOperation(ctx, domain.PhasePrepare, "prepare", domain.LogStatusFailed, err.Error(), e.now().Sub(started))
		return PrepareResult{}, fmt.Errorf("prepare failed: %w", err)
	}

	if err := e.ensureRollbackPoint(ctx, domain.PhasePrepare); err != nil {
		e.logOperation(ctx, domain.PhasePrepare, "prepare", domain.LogStatusFailed, err.Error(), e.now().Sub(started))
		return PrepareResult{}, fmt.Errorf("prepare failed: %w", err)
	}

	inventory, err := e.catalog.IndexInventory(ctx)
	if err != nil {
		e.logOperation(ctx, domain.PhasePrepare, "prepare", domain.LogStatusFailed, err.Error(), e.now().Sub(started))
		return PrepareResult{}, fmt.Errorf("prepare failed: %w", err)
	}

	result := PrepareResult{
		TrackingVersion: version,
		TablesTracked:   e.watchedTables(),
		IndexCount:      len(inventory),
	}

	elapsed := e.now().Sub(started)
	e.logOperation(ctx, domain.PhasePrepare, "prepare", domain.LogStatusCompleted,
		fmt.Sprintf("tracking schema at version %d, %d indexes present", version, result.IndexCount), elapsed)
	logf("[prepare] tracking schema at version %d (%s)", version, elapsed)

	return result, nil
}
