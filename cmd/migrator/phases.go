package main

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rpattn/pgbridge/internal/domain"
	"github.com/rpattn/pgbridge/internal/engine"
)

func prepareCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "prepare",
		Short: "Create tracking tables, indexes and the first rollback point",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, *configPath, func(ctx context.Context, a *app) error {
				result, err := a.engine.Prepare(ctx)
				if err != nil {
					return err
				}
				log.Printf("[prepare] tracking schema v%d, %d tables watched, %d indexes inventoried",
					result.TrackingVersion, len(result.TablesTracked), result.IndexCount)
				return nil
			})
		},
	}
}

func bridgeCommand(configPath *string) *cobra.Command {
	var (
		entityType  string
		batchSize   int
		scopeFilter string
	)
	cmd := &cobra.Command{
		Use:   "bridge",
		Short: "Populate the staging table from the source tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, *configPath, func(ctx context.Context, a *app) error {
				var (
					results []engine.BridgeResult
					err     error
				)
				if entityType != "" {
					var result engine.BridgeResult
					result, err = a.engine.PopulateBridge(ctx, entityType, batchSize, scopeFilter)
					results = []engine.BridgeResult{result}
				} else {
					results, err = a.engine.PopulateAllBridges(ctx, batchSize, scopeFilter)
				}
				if err != nil {
					return err
				}
				for _, r := range results {
					log.Printf("[bridge] %s: %d processed, %d inserted, %d re-snapshotted, %d skipped",
						r.EntityType, r.Processed, r.Inserted, r.Resnapshots, r.Skipped)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&entityType, "entity", "e", "", "populate a single entity type (default: all)")
	cmd.Flags().IntVarP(&batchSize, "batch-size", "b", 500, "source rows fetched per batch")
	cmd.Flags().StringVar(&scopeFilter, "filter", "", "SQL predicate limiting eligible source rows")
	return cmd
}

func runCommand(configPath *string) *cobra.Command {
	var (
		chunkSize       int
		maxRetries      int
		interChunkDelay int64
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Drain the staging table into the target tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, *configPath, func(ctx context.Context, a *app) error {
				results, err := a.engine.RunFullMigration(ctx, engine.RunOptions{
					ChunkSize:       chunkSize,
					MaxRetries:      maxRetries,
					InterChunkDelay: interChunkDelay,
				})
				for _, r := range results {
					log.Printf("[run] %s: %d processed, %d succeeded, %d failed, %.2f%% in %dms",
						r.EntityType, r.Processed, r.Succeeded, r.Failed, r.SuccessRate*100, r.ElapsedMs)
				}
				return err
			})
		},
	}
	cmd.Flags().IntVar(&chunkSize, "chunk-size", 0, "records per chunk transaction (default: config)")
	cmd.Flags().IntVar(&maxRetries, "max-retries", 0, "retries per failing chunk (default: config)")
	cmd.Flags().Int64Var(&interChunkDelay, "inter-chunk-delay-ms", 0, "pause between chunks (default: config)")
	return cmd
}

func chunkCommand(configPath *string) *cobra.Command {
	var (
		chunkSize int
		offset    int
	)
	cmd := &cobra.Command{
		Use:   "chunk <entity-type>",
		Short: "Migrate one chunk of one entity type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, *configPath, func(ctx context.Context, a *app) error {
				result, err := a.engine.MigrateChunk(ctx, args[0], chunkSize, offset)
				if err != nil {
					return err
				}
				log.Printf("[chunk] %s at offset %d: %d processed, %d succeeded, %d failed in %dms",
					result.EntityType, offset, result.Processed, result.Succeeded, result.Failed, result.ElapsedMs)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&chunkSize, "chunk-size", 100, "records in the chunk")
	cmd.Flags().IntVar(&offset, "offset", 0, "window offset into the staging set")
	return cmd
}

func validateCommand(configPath *string) *cobra.Command {
	var post bool
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Run pre-migration gate checks or post-migration acceptance checks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, *configPath, func(ctx context.Context, a *app) error {
				if post {
					checks, err := a.engine.ValidatePostMigration(ctx)
					if err != nil {
						return err
					}
					failed := 0
					for _, check := range checks {
						status := "PASS"
						if !check.Passed {
							status = "FAIL"
							failed++
						}
						log.Printf("[validate] %s %s (expected %d, actual %d)", status, check.Check, check.Expected, check.Actual)
					}
					if failed > 0 {
						return fmt.Errorf("%d post-migration checks failed", failed)
					}
					return nil
				}

				checks, err := a.engine.ValidatePreMigration(ctx)
				if err != nil {
					return err
				}
				failed := 0
				for _, check := range checks {
					status := "PASS"
					if !check.Passed {
						status = "FAIL"
						if check.Critical {
							failed++
						}
					}
					log.Printf("[validate] %s %s %v", status, check.Check, check.Details)
				}
				if failed > 0 {
					return fmt.Errorf("%d critical pre-migration checks failed", failed)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&post, "post", false, "run post-migration acceptance checks instead")
	return cmd
}

func rollbackCommand(configPath *string) *cobra.Command {
	var list bool
	cmd := &cobra.Command{
		Use:   "rollback <phase>",
		Short: "Revert a phase using its active rollback point",
		Long: "Reverts the named phase: migrate deletes migrated target rows and resets their\n" +
			"bridge records to pending; bridge purges the staged snapshots; prepare drops\n" +
			"indexes created since the prepare snapshot. With --list, prints the recorded\n" +
			"rollback points instead of reverting anything.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if list {
				return withApp(cmd, *configPath, func(ctx context.Context, a *app) error {
					points, err := a.engine.RollbackPoints(ctx)
					if err != nil {
						return err
					}
					for _, p := range points {
						log.Printf("[rollback] point %d: phase=%s status=%s created=%s tables=%d indexes=%d",
							p.ID, p.PhaseName, p.Status, p.CreatedAt.Format(time.RFC3339), len(p.TableRowCounts), len(p.IndexInventory))
					}
					return nil
				})
			}
			if len(args) != 1 {
				return fmt.Errorf("rollback requires a phase argument (or --list)")
			}
			phase, err := domain.ParsePhase(strings.ToLower(args[0]))
			if err != nil {
				return err
			}
			return withApp(cmd, *configPath, func(ctx context.Context, a *app) error {
				return a.engine.Rollback(ctx, phase)
			})
		},
	}
	cmd.Flags().BoolVar(&list, "list", false, "list recorded rollback points and exit")
	return cmd
}

func resetFailedCommand(configPath *string) *cobra.Command {
	var sourceIDs []string
	cmd := &cobra.Command{
		Use:   "reset-failed <entity-type>",
		Short: "Return failed bridge records to pending for another attempt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, *configPath, func(ctx context.Context, a *app) error {
				reset, err := a.engine.ResetFailed(ctx, args[0], sourceIDs)
				if err != nil {
					return err
				}
				log.Printf("[reset-failed] %s: %d records reset to pending", args[0], reset)
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVar(&sourceIDs, "source-id", nil, "reset only these source ids (default: all failed)")
	return cmd
}

func cleanupCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Archive the staging table and install monitoring views",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, *configPath, func(ctx context.Context, a *app) error {
				result, err := a.engine.Cleanup(ctx)
				if err != nil {
					return err
				}
				log.Printf("[cleanup] %d rows archived, %d monitoring views installed",
					result.ArchivedRows, result.ViewsInstalled)
				return nil
			})
		},
	}
}
