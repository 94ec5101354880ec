package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rpattn/pgbridge/internal/domain"
)

// RunFullMigration drains the bridge table for every entity type, chunk by
// chunk, and gates progression on the overall success rate. Each chunk call is
// wrapped in a bounded retry loop for transient failures; record-level
// failures are terminal for the record and never retried here.
func (e *Engine) RunFullMigration(ctx context.Context, opts RunOptions) ([]EntityMigrationResult, error) {
	if err := e.requirePhase(ctx, domain.PhaseMigrate); err != nil {
		return nil, err
	}

	chunkSize := opts.ChunkSize
	if chunkSize <= 0 {
		chunkSize = e.cfg.ChunkSize
	}
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = e.cfg.MaxRetries
	}
	interChunkDelay := time.Duration(opts.InterChunkDelay) * time.Millisecond
	if opts.InterChunkDelay <= 0 {
		interChunkDelay = e.cfg.InterChunkDelay
	}

	staged := int64(0)
	for _, desc := range e.descriptors {
		total, err := e.bridge.Total(ctx, desc.EntityType)
		if err != nil {
			return nil, fmt.Errorf("migrate failed: %w", err)
		}
		staged += total
	}
	if staged == 0 {
		return nil, fmt.Errorf("%w: populate the bridge before migrating", ErrBridgeEmpty)
	}

	started := e.now()
	e.logOperation(ctx, domain.PhaseMigrate, "run_full_migration", domain.LogStatusStarted,
		fmt.Sprintf("draining %d staged records in chunks of %d", staged, chunkSize), 0)

	if err := e.ensureRollbackPoint(ctx, domain.PhaseMigrate); err != nil {
		e.logOperation(ctx, domain.PhaseMigrate, "run_full_migration", domain.LogStatusFailed, err.Error(), e.now().Sub(started))
		return nil, fmt.Errorf("migrate failed: %w", err)
	}

	var (
		results []EntityMigrationResult
		err     error
	)
	if e.cfg.ParallelEntities {
		results, err = e.drainEntitiesParallel(ctx, chunkSize, maxRetries, interChunkDelay)
	} else {
		results, err = e.drainEntitiesSequential(ctx, chunkSize, maxRetries, interChunkDelay)
	}
	if err != nil {
		e.logOperation(ctx, domain.PhaseMigrate, "run_full_migration", domain.LogStatusFailed, err.Error(), e.now().Sub(started))
		return results, err
	}

	rate, err := e.overallSuccessRate(ctx)
	if err != nil {
		e.logOperation(ctx, domain.PhaseMigrate, "run_full_migration", domain.LogStatusFailed, err.Error(), e.now().Sub(started))
		return results, fmt.Errorf("migrate failed: %w", err)
	}

	elapsed := e.now().Sub(started)
	if rate < e.cfg.SuccessRateGate {
		message := fmt.Sprintf("success rate %.2f%% below gate %.2f%%; leaving partially-migrated state for review",
			rate*100, e.cfg.SuccessRateGate*100)
		e.logOperation(ctx, domain.PhaseMigrate, "run_full_migration", domain.LogStatusFailed, message, elapsed)
		logf("[migrate] %s", message)
		return results, fmt.Errorf("%w: %.2f%% < %.2f%%", ErrSuccessRateBelowThreshold, rate*100, e.cfg.SuccessRateGate*100)
	}

	e.logOperation(ctx, domain.PhaseMigrate, "run_full_migration", domain.LogStatusCompleted,
		fmt.Sprintf("drained %d records at %.2f%% success", staged, rate*100), elapsed)
	logf("[migrate] completed with %.2f%% success in %s", rate*100, elapsed)

	return results, nil
}

func (e *Engine) drainEntitiesSequential(ctx context.Context, chunkSize, maxRetries int, interChunkDelay time.Duration) ([]EntityMigrationResult, error) {
	results := make([]EntityMigrationResult, 0, len(e.descriptors))
	for _, desc := range e.descriptors {
		result, err := e.drainEntity(ctx, desc.EntityType, chunkSize, maxRetries, interChunkDelay)
		if err != nil {
			return results, err
		}
		results = append(results, result)
	}
	return results, nil
}

// drainEntitiesParallel runs one drain goroutine per entity type. Each worker
// owns a disjoint entity type, so bridge rows are never contended. Results
// keep descriptor order and every worker's error is reported.
func (e *Engine) drainEntitiesParallel(ctx context.Context, chunkSize, maxRetries int, interChunkDelay time.Duration) ([]EntityMigrationResult, error) {
	var (
		wg      sync.WaitGroup
		results = make([]EntityMigrationResult, len(e.descriptors))
		errs    = make([]error, len(e.descriptors))
	)

	for i, desc := range e.descriptors {
		wg.Add(1)
		go func(i int, entityType string) {
			defer wg.Done()
			results[i], errs[i] = e.drainEntity(ctx, entityType, chunkSize, maxRetries, interChunkDelay)
		}(i, desc.EntityType)
	}
	wg.Wait()

	return results, errors.Join(errs...)
}

// drainEntity walks the chunk cursor over all bridge rows of one entity type.
// The cursor advances by chunkSize unconditionally, so the drain terminates
// after ceil(total/chunkSize) chunks no matter how many records fail.
func (e *Engine) drainEntity(ctx context.Context, entityType string, chunkSize, maxRetries int, interChunkDelay time.Duration) (EntityMigrationResult, error) {
	result := EntityMigrationResult{EntityType: entityType}
	started := e.now()

	total, err := e.bridge.Total(ctx, entityType)
	if err != nil {
		return result, fmt.Errorf("failed to size %s drain: %w", entityType, err)
	}

	for offset := 0; int64(offset) < total; offset += chunkSize {
		// Cancellation is cooperative and only takes effect between chunks;
		// an in-flight chunk always finishes its transaction.
		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		chunk, err := e.migrateChunkWithRetry(ctx, entityType, chunkSize, offset, maxRetries)
		if err != nil {
			return result, err
		}

		result.Processed += chunk.Processed
		result.Succeeded += chunk.Succeeded
		result.Failed += chunk.Failed
		e.progress(entityType, int64(offset+chunkSize), total)

		if int64(offset+chunkSize) < total && interChunkDelay > 0 {
			e.sleep(interChunkDelay)
		}
	}

	result.ElapsedMs = e.now().Sub(started).Milliseconds()
	if attempted := result.Succeeded + result.Failed; attempted > 0 {
		result.SuccessRate = float64(result.Succeeded) / float64(attempted)
	} else {
		result.SuccessRate = 1
	}

	logf("[migrate] %s: %d processed, %d succeeded, %d failed (%.2f%%)",
		entityType, result.Processed, result.Succeeded, result.Failed, result.SuccessRate*100)
	return result, nil
}

// migrateChunkWithRetry retries transient chunk failures with a fixed backoff.
// Exhausting the retries is fatal to the whole migration run.
func (e *Engine) migrateChunkWithRetry(ctx context.Context, entityType string, chunkSize, offset, maxRetries int) (ChunkResult, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			logf("[migrate] retrying %s chunk at offset %d (attempt %d/%d)", entityType, offset, attempt, maxRetries)
			e.sleep(e.cfg.RetryBackoff)
		}

		chunk, err := e.MigrateChunk(ctx, entityType, chunkSize, offset)
		if err == nil {
			return chunk, nil
		}
		if ctx.Err() != nil {
			return ChunkResult{}, ctx.Err()
		}
		lastErr = err
	}
	return ChunkResult{}, fmt.Errorf("%w: %s chunk at offset %d: %v", ErrRetriesExhausted, entityType, offset, lastErr)
}

// overallSuccessRate computes completed / (completed + failed) across all
// entity types from the bridge table itself, not from in-memory counters, so
// earlier partial runs are included.
func (e *Engine) overallSuccessRate(ctx context.Context) (float64, error) {
	all, err := e.bridge.CountsAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to compute success rate: %w", err)
	}

	var succeeded, failed int64
	for _, counts := range all {
		succeeded += counts.Completed + counts.Verified
		failed += counts.Failed
	}
	if succeeded+failed == 0 {
		return 1, nil
	}
	return float64(succeeded) / float64(succeeded+failed), nil
}

// Cleanup archives the staging table, installs the monitoring views and drops
// temporary objects. It refuses to run unless the migrate phase completed,
// which includes passing the success-rate gate.
func (e *Engine) Cleanup(ctx context.Context) (CleanupResult, error) {
	if err := e.requirePhase(ctx, domain.PhaseCleanup); err != nil {
		return CleanupResult{}, err
	}

	started := e.now()
	e.logOperation(ctx, domain.PhaseCleanup, "cleanup", domain.LogStatusStarted, "archiving bridge and installing monitoring views", 0)

	if err := e.ensureRollbackPoint(ctx, domain.PhaseCleanup); err != nil {
		e.logOperation(ctx, domain.PhaseCleanup, "cleanup", domain.LogStatusFailed, err.Error(), e.now().Sub(started))
		return CleanupResult{}, fmt.Errorf("cleanup failed: %w", err)
	}

	archived, err := e.bridge.Archive(ctx)
	if err != nil {
		e.logOperation(ctx, domain.PhaseCleanup, "cleanup", domain.LogStatusFailed, err.Error(), e.now().Sub(started))
		return CleanupResult{}, fmt.Errorf("cleanup failed: %w", err)
	}

	views, err := e.catalog.InstallMonitoringViews(ctx)
	if err != nil {
		e.logOperation(ctx, domain.PhaseCleanup, "cleanup", domain.LogStatusFailed, err.Error(), e.now().Sub(started))
		return CleanupResult{}, fmt.Errorf("cleanup failed: %w", err)
	}

	result := CleanupResult{ArchivedRows: archived, ViewsInstalled: views}

	elapsed := e.now().Sub(started)
	e.logOperation(ctx, domain.PhaseCleanup, "cleanup", domain.LogStatusCompleted,
		fmt.Sprintf("archived %d bridge rows, installed %d monitoring views", archived, views), elapsed)
	logf("[cleanup] archived %d rows in %s", archived, elapsed)

	return result, nil
}

// ResetFailed is the operator path that returns failed records to pending for
// another attempt. Never invoked automatically.
func (e *Engine) ResetFailed(ctx context.Context, entityType string, sourceIDs []string) (int64, error) {
	if _, err := e.descriptor(entityType); err != nil {
		return 0, err
	}
	reset, err := e.bridge.ResetFailed(ctx, entityType, sourceIDs)
	if err != nil {
		return 0, err
	}
	e.logOperation(ctx, domain.PhaseMigrate, "reset_failed:"+entityType, domain.LogStatusCompleted,
		fmt.Sprintf("reset %d failed records to pending", reset), 0)
	return reset, nil
}
