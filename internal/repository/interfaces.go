package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rpattn/pgbridge/internal/domain"
)

// DBTX is the subset of pgx shared by *pgxpool.Pool and pgx.Tx, so every
// repository can run either directly on the pool or inside a chunk transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// SourceRow is one row read from a source table during bridge population.
type SourceRow struct {
	SourceID string
	Fields   map[string]any
}

// BridgeUpsertResult reports how many bridge rows a population batch created
// versus re-snapshotted.
type BridgeUpsertResult struct {
	Inserted    int64
	Resnapshots int64
}

// BridgeRepository owns the migration_bridge staging table.
type BridgeRepository interface {
	// WithTx returns a repository bound to the given transaction.
	WithTx(tx pgx.Tx) BridgeRepository

	// UpsertSnapshots stages source snapshots. Already-bridged ids are skipped
	// unless the row is still pending, in which case the snapshot is refreshed.
	UpsertSnapshots(ctx context.Context, records []domain.BridgeRecord) (BridgeUpsertResult, error)

	// Window returns bridge rows of one entity type ordered by (created_at,
	// source_id), a stable FIFO over the whole staging set.
	Window(ctx context.Context, entityType string, limit, offset int) ([]domain.BridgeRecord, error)

	// State transitions. Each enforces the expected prior status in SQL and
	// returns false when the row was not in that status.
	SetProcessing(ctx context.Context, entityType, sourceID string) (bool, error)
	SetCompleted(ctx context.Context, entityType, sourceID string, targetPayload map[string]any, advisories []domain.ValidationError) (bool, error)
	SetFailed(ctx context.Context, entityType, sourceID string, validationErrors []domain.ValidationError, lastError string) (bool, error)

	// MarkVerified promotes completed rows after post-migration acceptance.
	MarkVerified(ctx context.Context, entityType string) (int64, error)

	// ResetFailed is the operator path from failed back to pending. With no
	// source ids it resets every failed row of the entity type.
	ResetFailed(ctx context.Context, entityType string, sourceIDs []string) (int64, error)

	// ResetCompleted returns completed/verified rows to pending; used only by
	// rollback of the migrate phase.
	ResetCompleted(ctx context.Context, entityType string) (int64, error)

	// CompletedTargetIDs lists target ids of completed/verified rows, the set a
	// migrate-phase rollback must delete from the target store.
	CompletedTargetIDs(ctx context.Context, entityType string) ([]uuid.UUID, error)

	// ResolveTargetIDs maps source ids of an entity type to their bridged
	// target ids. Unbridged ids are absent from the result.
	ResolveTargetIDs(ctx context.Context, entityType string, sourceIDs []string) (map[string]uuid.UUID, error)

	// ExistingSourceIDs returns which of the given source ids are already bridged
	// in a non-pending status.
	ExistingSourceIDs(ctx context.Context, entityType string, sourceIDs []string) (map[string]domain.BridgeStatus, error)

	Counts(ctx context.Context, entityType string) (domain.BridgeCounts, error)
	CountsAll(ctx context.Context) ([]domain.BridgeCounts, error)
	Total(ctx context.Context, entityType string) (int64, error)

	// PurgeAll deletes every staged row; used only by rollback of the bridge
	// phase. Target tables are untouched.
	PurgeAll(ctx context.Context) (int64, error)

	// Archive copies the staging table into migration_bridge_archive and drops
	// the staging table. Cleanup-phase only.
	Archive(ctx context.Context) (int64, error)
}

// MigrationLogRepository stores the append-only audit timeline.
type MigrationLogRepository interface {
	Append(ctx context.Context, entry domain.MigrationLogEntry) (domain.MigrationLogEntry, error)
	HasCompleted(ctx context.Context, phase domain.Phase) (bool, error)
	List(ctx context.Context, limit, offset int) ([]domain.MigrationLogEntry, error)
	PhaseTimings(ctx context.Context) ([]domain.PhaseTiming, error)
}

// RollbackPointRepository owns rollback-point snapshots.
type RollbackPointRepository interface {
	// Create expires every currently active point, then stores the new one active.
	Create(ctx context.Context, point domain.RollbackPoint) (domain.RollbackPoint, error)
	GetActive(ctx context.Context, phase domain.Phase) (domain.RollbackPoint, error)
	MarkUsed(ctx context.Context, id int64) error
	List(ctx context.Context) ([]domain.RollbackPoint, error)
}

// ValidationResultRepository persists pre/post validation outcomes.
type ValidationResultRepository interface {
	Record(ctx context.Context, result domain.ValidationResult) (domain.ValidationResult, error)
	List(ctx context.Context, limit int) ([]domain.ValidationResult, error)
}

// SourceRepository reads eligible rows from descriptor-defined source tables.
type SourceRepository interface {
	// FetchBatch reads up to batchSize rows ordered by the source id column.
	// scopeFilter is an operator-supplied SQL predicate ("" for all rows).
	FetchBatch(ctx context.Context, desc domain.EntityDescriptor, batchSize, offset int, scopeFilter string) ([]SourceRow, error)
	Count(ctx context.Context, desc domain.EntityDescriptor, scopeFilter string) (int64, error)
}

// TargetRepository writes transformed rows into descriptor-defined target tables.
type TargetRepository interface {
	WithTx(tx pgx.Tx) TargetRepository

	// Upsert performs the idempotent insert-or-update keyed by the target id
	// column, safe to repeat after a crash.
	Upsert(ctx context.Context, desc domain.EntityDescriptor, targetID uuid.UUID, payload map[string]any) error

	DeleteByIDs(ctx context.Context, desc domain.EntityDescriptor, ids []uuid.UUID) (int64, error)
	Count(ctx context.Context, desc domain.EntityDescriptor) (int64, error)
	TableExists(ctx context.Context, table string) (bool, error)
}

// CatalogRepository reads Postgres catalog state for rollback points and
// monitoring. All methods are read-only except DropIndexes.
type CatalogRepository interface {
	TableRowCounts(ctx context.Context, tables []string) (map[string]int64, error)
	IndexInventory(ctx context.Context) ([]string, error)
	DropIndexes(ctx context.Context, names []string) (int, error)
	TableBloat(ctx context.Context, tables []string) ([]domain.TableBloat, error)
	InstallMonitoringViews(ctx context.Context) (int, error)
}
