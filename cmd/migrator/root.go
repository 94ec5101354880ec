package main

import (
	"context"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/rpattn/pgbridge/internal/config"
	"github.com/rpattn/pgbridge/internal/db"
	"github.com/rpattn/pgbridge/internal/engine"
	"github.com/rpattn/pgbridge/internal/monitoring"
	"github.com/rpattn/pgbridge/internal/repository"
)

// app bundles everything a subcommand needs after bootstrap.
type app struct {
	cfg        config.Config
	conn       *db.Connection
	engine     *engine.Engine
	monitoring *monitoring.Service
}

func (a *app) close() {
	if a.conn != nil {
		a.conn.Close()
	}
}

// newApp connects to the database and wires the repositories, engine and
// monitoring service from the loaded configuration.
func newApp(ctx context.Context, configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if len(cfg.Entities) == 0 {
		return nil, fmt.Errorf("no entity descriptors configured; add an entities block to config.yaml")
	}

	conn, err := db.NewConnection(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	bridgeRepo := repository.NewBridgeRepository(conn.Pool)
	logRepo := repository.NewMigrationLogRepository(conn.Pool)
	rollbackRepo := repository.NewRollbackPointRepository(conn.Pool)
	validationRepo := repository.NewValidationResultRepository(conn.Pool)
	sourceRepo := repository.NewSourceRepository(conn.Pool)
	targetRepo := repository.NewTargetRepository(conn.Pool)
	catalogRepo := repository.NewCatalogRepository(conn.Pool)

	eng, err := engine.New(engine.Deps{
		Bridge:      bridgeRepo,
		Log:         logRepo,
		Rollback:    rollbackRepo,
		Validation:  validationRepo,
		Source:      sourceRepo,
		Target:      targetRepo,
		Catalog:     catalogRepo,
		TxRunner:    engine.NewPgxTxRunner(conn.Pool, bridgeRepo, targetRepo),
		Migrator:    func() (uint, error) { return db.RunMigrations(cfg.Database) },
		Descriptors: cfg.Entities,
	}, cfg.Engine, engine.WithProgress(logProgress))
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to build engine: %w", err)
	}

	targetTables := make([]string, 0, len(eng.Descriptors()))
	for _, desc := range eng.Descriptors() {
		targetTables = append(targetTables, desc.TargetTable)
	}
	monitor := monitoring.NewService(bridgeRepo, logRepo, validationRepo, catalogRepo, targetTables)

	return &app{cfg: cfg, conn: conn, engine: eng, monitoring: monitor}, nil
}

func logProgress(entityType string, processed, total int64) {
	if total <= 0 {
		return
	}
	if processed > total {
		processed = total
	}
	log.Printf("[progress] %s: %d/%d (%.1f%%)", entityType, processed, total, float64(processed)/float64(total)*100)
}

func rootCommand() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "migrator",
		Short:         "Zero-downtime bridge-table data migrator for Postgres",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", ".", "directory containing config.yaml")

	rootCmd.AddCommand(
		prepareCommand(&configPath),
		bridgeCommand(&configPath),
		runCommand(&configPath),
		chunkCommand(&configPath),
		validateCommand(&configPath),
		rollbackCommand(&configPath),
		resetFailedCommand(&configPath),
		cleanupCommand(&configPath),
		reportCommand(&configPath),
		serveCommand(&configPath),
	)
	return rootCmd
}

// withApp runs fn with a bootstrapped app, closing the pool afterwards.
func withApp(cmd *cobra.Command, configPath string, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.close()
	return fn(ctx, a)
}
