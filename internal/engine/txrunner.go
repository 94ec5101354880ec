package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rpattn/pgbridge/internal/db"
	"github.com/rpattn/pgbridge/internal/repository"
)

// PgxTxRunner is the production TxRunner: one pool transaction per chunk, with
// record attempts isolated behind savepoints so a failed statement only voids
// its own record.
type PgxTxRunner struct {
	pool   *pgxpool.Pool
	bridge repository.BridgeRepository
	target repository.TargetRepository
}

// NewPgxTxRunner builds a runner over the given pool and repositories.
func NewPgxTxRunner(pool *pgxpool.Pool, bridge repository.BridgeRepository, target repository.TargetRepository) *PgxTxRunner {
	return &PgxTxRunner{pool: pool, bridge: bridge, target: target}
}

// RunInTx opens a transaction with the given statement timeout and hands fn
// transaction-bound repositories. Attempt wraps its body in a savepoint
// (pgx nested Begin), so an aborted statement leaves the outer transaction
// usable for the remaining records of the chunk.
func (r *PgxTxRunner) RunInTx(ctx context.Context, timeout time.Duration, fn func(tx ChunkTx) error) error {
	return db.WithTx(ctx, r.pool, timeout, func(tx pgx.Tx) error {
		chunkTx := ChunkTx{
			Bridge: r.bridge.WithTx(tx),
			Target: r.target.WithTx(tx),
			Attempt: func(ctx context.Context, body func() error) error {
				savepoint, err := tx.Begin(ctx)
				if err != nil {
					return fmt.Errorf("failed to open savepoint: %w", err)
				}
				if err := body(); err != nil {
					if rbErr := savepoint.Rollback(ctx); rbErr != nil {
						return fmt.Errorf("attempt error: %v, savepoint rollback error: %v", err, rbErr)
					}
					return err
				}
				if err := savepoint.Commit(ctx); err != nil {
					return fmt.Errorf("failed to release savepoint: %w", err)
				}
				return nil
			},
		}
		return fn(chunkTx)
	})
}
