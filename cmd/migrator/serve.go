package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/rs/cors"
	"github.com/spf13/cobra"

	"github.com/rpattn/pgbridge/internal/domain"
	"github.com/rpattn/pgbridge/internal/middleware"
	"github.com/rpattn/pgbridge/internal/monitoring"
)

func printReport(report domain.MigrationReport) {
	fmt.Printf("Migration report (generated %s)\n", report.GeneratedAt.Format(time.RFC3339))
	fmt.Printf("  overall success rate: %.2f%%\n", report.OverallSuccessRate*100)
	fmt.Printf("  completed %d, failed %d, pending %d\n\n", report.TotalCompleted, report.TotalFailed, report.TotalPending)

	fmt.Println("Entities:")
	for _, entity := range report.Entities {
		fmt.Printf("  %-24s pending %6d  processing %4d  completed %6d  failed %5d  verified %6d  (%.1f%% complete)\n",
			entity.EntityType, entity.Pending, entity.Processing, entity.Completed, entity.Failed, entity.Verified, entity.PercentComplete)
	}

	fmt.Println("\nPhases:")
	for _, phase := range report.Phases {
		elapsed := "-"
		if phase.ElapsedMs != nil {
			elapsed = fmt.Sprintf("%dms", *phase.ElapsedMs)
		}
		fmt.Printf("  %-8s %-12s %s\n", phase.Phase, phase.Status, elapsed)
	}

	if len(report.Validations) > 0 {
		fmt.Println("\nValidations:")
		for _, validation := range report.Validations {
			status := "PASS"
			if !validation.Passed {
				status = "FAIL"
			}
			fmt.Printf("  %s %s %s\n", status, validation.ValidationType, validation.TargetTable)
		}
	}

	if len(report.Bloat) > 0 {
		fmt.Println("\nTable bloat:")
		for _, bloat := range report.Bloat {
			fmt.Printf("  %-24s live %8d  dead %8d  (%.1f%% dead)\n",
				bloat.TableName, bloat.LiveTuples, bloat.DeadTuples, bloat.DeadTupleRate*100)
		}
	}
}

func serveCommand(configPath *string) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the monitoring endpoints over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, *configPath, func(ctx context.Context, a *app) error {
				listenAddr := addr
				if listenAddr == "" {
					listenAddr = a.cfg.HTTPAddr
				}

				corsHandler := cors.New(cors.Options{
					AllowedMethods: []string{"GET", "OPTIONS"},
					AllowedHeaders: []string{"*"},
				})
				handler := corsHandler.Handler(middleware.LoggingMiddleware(monitoring.NewHTTPHandler(a.monitoring)))

				mux := http.NewServeMux()
				mux.Handle("/migration/", handler)

				server := &http.Server{
					Addr:         listenAddr,
					Handler:      mux,
					ReadTimeout:  15 * time.Second,
					WriteTimeout: 15 * time.Second,
					IdleTimeout:  60 * time.Second,
				}

				errCh := make(chan error, 1)
				go func() {
					log.Printf("[serve] monitoring endpoints on %s (/migration/report, /migration/progress, /migration/log)", listenAddr)
					if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
						errCh <- err
					}
				}()

				select {
				case err := <-errCh:
					return err
				case <-ctx.Done():
				}

				log.Println("[serve] shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()
				return server.Shutdown(shutdownCtx)
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default: config http.addr)")
	return cmd
}
