// Package engine drives the four-phase bridge migration: prepare tracking
// structures, populate the staging table, drain it in bounded transactional
// chunks, then archive and clean up. The engine is descriptor-driven and knows
// nothing about the host application's business objects.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rpattn/pgbridge/internal/config"
	"github.com/rpattn/pgbridge/internal/domain"
	"github.com/rpattn/pgbridge/internal/repository"
	"github.com/rpattn/pgbridge/internal/validate"
)

var (
	// ErrPhaseOrder is returned when a phase runs before its predecessor completed.
	ErrPhaseOrder = errors.New("phase prerequisite not met")
	// ErrBridgeEmpty is returned when the migrate phase starts with nothing staged.
	ErrBridgeEmpty = errors.New("bridge table is empty")
	// ErrRetriesExhausted is returned when a chunk keeps failing past maxRetries.
	ErrRetriesExhausted = errors.New("chunk retries exhausted")
	// ErrSuccessRateBelowThreshold halts progression to cleanup while leaving
	// completed work intact for inspection.
	ErrSuccessRateBelowThreshold = errors.New("success rate below threshold")
	// ErrUnknownEntityType is returned for entity types with no descriptor.
	ErrUnknownEntityType = errors.New("unknown entity type")
)

// ProgressFunc receives structured progress events during long phases. The
// host decides how to render them.
type ProgressFunc func(entityType string, processed, total int64)

// ChunkTx bundles the transaction-bound repositories handed to a chunk body,
// plus Attempt, which isolates one record's writes so a failed statement
// cannot poison the rest of the chunk's transaction.
type ChunkTx struct {
	Bridge  repository.BridgeRepository
	Target  repository.TargetRepository
	Attempt func(ctx context.Context, fn func() error) error
}

// TxRunner executes fn inside one transaction. Every status update and target
// upsert a chunk performs either all commit or all roll back together.
type TxRunner interface {
	RunInTx(ctx context.Context, timeout time.Duration, fn func(tx ChunkTx) error) error
}

// TrackingMigrator applies the engine's tracking-structure migrations and
// returns the resulting schema version.
type TrackingMigrator func() (uint, error)

// Deps collects the collaborators the engine is constructed with.
type Deps struct {
	Bridge      repository.BridgeRepository
	Log         repository.MigrationLogRepository
	Rollback    repository.RollbackPointRepository
	Validation  repository.ValidationResultRepository
	Source      repository.SourceRepository
	Target      repository.TargetRepository
	Catalog     repository.CatalogRepository
	TxRunner    TxRunner
	Migrator    TrackingMigrator
	Descriptors []domain.EntityDescriptor
}

// Engine exposes the phase-scoped migration operations.
type Engine struct {
	bridge     repository.BridgeRepository
	log        repository.MigrationLogRepository
	rollback   repository.RollbackPointRepository
	validation repository.ValidationResultRepository
	source     repository.SourceRepository
	target     repository.TargetRepository
	catalog    repository.CatalogRepository
	txRunner   TxRunner
	migrator   TrackingMigrator

	descriptors []domain.EntityDescriptor
	byType      map[string]domain.EntityDescriptor
	validators  map[string]*validate.Validator

	cfg      config.Engine
	progress ProgressFunc
	now      func() time.Time
	sleep    func(time.Duration)
}

// Option customizes engine construction.
type Option func(*Engine)

// WithProgress installs a progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(e *Engine) {
		if fn != nil {
			e.progress = fn
		}
	}
}

// WithClock overrides the engine clock.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithSleeper overrides the delay function used for backoff and throttling.
func WithSleeper(sleep func(time.Duration)) Option {
	return func(e *Engine) {
		if sleep != nil {
			e.sleep = sleep
		}
	}
}

// New constructs an engine from its collaborators and tuning parameters.
func New(deps Deps, cfg config.Engine, opts ...Option) (*Engine, error) {
	if len(deps.Descriptors) == 0 {
		return nil, errors.New("engine requires at least one entity descriptor")
	}

	defaults := config.DefaultEngine()
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = defaults.ChunkSize
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaults.MaxRetries
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = defaults.RetryBackoff
	}
	if cfg.InterChunkDelay <= 0 {
		cfg.InterChunkDelay = defaults.InterChunkDelay
	}
	if cfg.SuccessRateGate <= 0 || cfg.SuccessRateGate > 1 {
		cfg.SuccessRateGate = defaults.SuccessRateGate
	}
	if cfg.StatementTimeout <= 0 {
		cfg.StatementTimeout = defaults.StatementTimeout
	}
	if cfg.MaintenanceTimeout <= 0 {
		cfg.MaintenanceTimeout = defaults.MaintenanceTimeout
	}
	if cfg.TimestampToleranceS <= 0 {
		cfg.TimestampToleranceS = defaults.TimestampToleranceS
	}

	byType := make(map[string]domain.EntityDescriptor, len(deps.Descriptors))
	validators := make(map[string]*validate.Validator, len(deps.Descriptors))
	for _, desc := range deps.Descriptors {
		if err := desc.Validate(); err != nil {
			return nil, fmt.Errorf("invalid descriptor: %w", err)
		}
		if _, exists := byType[desc.EntityType]; exists {
			return nil, fmt.Errorf("duplicate descriptor for entity type %s", desc.EntityType)
		}
		byType[desc.EntityType] = desc
		validators[desc.EntityType] = validate.New(desc, validate.Options{
			TimestampTolerance: time.Duration(cfg.TimestampToleranceS) * time.Second,
		})
	}

	engine := &Engine{
		bridge:      deps.Bridge,
		log:         deps.Log,
		rollback:    deps.Rollback,
		validation:  deps.Validation,
		source:      deps.Source,
		target:      deps.Target,
		catalog:     deps.Catalog,
		txRunner:    deps.TxRunner,
		migrator:    deps.Migrator,
		descriptors: deps.Descriptors,
		byType:      byType,
		validators:  validators,
		cfg:         cfg,
		progress:    func(string, int64, int64) {},
		now:         time.Now,
		sleep:       time.Sleep,
	}
	for _, opt := range opts {
		opt(engine)
	}
	return engine, nil
}

// Descriptors returns the entity descriptors the engine was built with.
func (e *Engine) Descriptors() []domain.EntityDescriptor {
	return e.descriptors
}

// RollbackPoints lists every recorded rollback point, newest first, so an
// operator can inspect what a phase rollback would restore before running it.
func (e *Engine) RollbackPoints(ctx context.Context) ([]domain.RollbackPoint, error) {
	return e.rollback.List(ctx)
}

func (e *Engine) descriptor(entityType string) (domain.EntityDescriptor, error) {
	desc, ok := e.byType[entityType]
	if !ok {
		return domain.EntityDescriptor{}, fmt.Errorf("%w: %s", ErrUnknownEntityType, entityType)
	}
	return desc, nil
}

// requirePhase fails fast when the named phase's predecessor has no completed
// audit entry.
func (e *Engine) requirePhase(ctx context.Context, phase domain.Phase) error {
	predecessor := phase.Predecessor()
	if predecessor == "" {
		return nil
	}
	completed, err := e.log.HasCompleted(ctx, predecessor)
	if err != nil {
		return fmt.Errorf("failed to check %s completion: %w", predecessor, err)
	}
	if !completed {
		return fmt.Errorf("%w: %s requires a completed %s phase", ErrPhaseOrder, phase, predecessor)
	}
	return nil
}

// logOperation appends one audit entry, never failing the caller: a lost log
// line must not abort a migration step that already happened.
func (e *Engine) logOperation(ctx context.Context, phase domain.Phase, operation string, status domain.LogStatus, message string, elapsed time.Duration) {
	var elapsedMs *int64
	if elapsed > 0 {
		value := elapsed.Milliseconds()
		elapsedMs = &value
	}
	if _, err := e.log.Append(ctx, domain.MigrationLogEntry{
		Phase:           phase,
		Operation:       operation,
		Status:          status,
		Message:         message,
		ExecutionTimeMs: elapsedMs,
	}); err != nil {
		logf("[%s] failed to append audit entry for %s: %v", phase, operation, err)
	}
}

// ensureRollbackPoint snapshots table row counts and the index inventory at
// phase entry, expiring earlier points. Re-entering a phase that already has
// an active point keeps the existing snapshot.
func (e *Engine) ensureRollbackPoint(ctx context.Context, phase domain.Phase) error {
	if _, err := e.rollback.GetActive(ctx, phase); err == nil {
		return nil
	} else if !errors.Is(err, repository.ErrNoActiveRollbackPoint) {
		return err
	}

	watched := e.watchedTables()
	counts, err := e.catalog.TableRowCounts(ctx, watched)
	if err != nil {
		return fmt.Errorf("failed to snapshot row counts: %w", err)
	}
	inventory, err := e.catalog.IndexInventory(ctx)
	if err != nil {
		return fmt.Errorf("failed to snapshot index inventory: %w", err)
	}

	if _, err := e.rollback.Create(ctx, domain.RollbackPoint{
		PhaseName:      phase,
		TableRowCounts: counts,
		IndexInventory: inventory,
	}); err != nil {
		return fmt.Errorf("failed to create rollback point: %w", err)
	}
	logf("[%s] rollback point created (%d tables, %d indexes)", phase, len(counts), len(inventory))
	return nil
}

// watchedTables lists every table a rollback point snapshots: the staging
// table plus every source and target table named by a descriptor.
func (e *Engine) watchedTables() []string {
	seen := map[string]struct{}{"migration_bridge": {}}
	tables := []string{"migration_bridge"}
	for _, desc := range e.descriptors {
		for _, table := range []string{desc.SourceTable, desc.TargetTable} {
			if _, ok := seen[table]; ok {
				continue
			}
			seen[table] = struct{}{}
			tables = append(tables, table)
		}
	}
	return tables
}
