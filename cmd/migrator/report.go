package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rpattn/pgbridge/internal/export"
)

func reportCommand(configPath *string) *cobra.Command {
	var (
		format  string
		outPath string
		showLog bool
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print or export the migration report",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, *configPath, func(ctx context.Context, a *app) error {
				if showLog {
					entries, err := a.monitoring.Timeline(ctx, 100, 0)
					if err != nil {
						return err
					}
					for _, entry := range entries {
						elapsed := ""
						if entry.ExecutionTimeMs != nil {
							elapsed = fmt.Sprintf(" (%dms)", *entry.ExecutionTimeMs)
						}
						log.Printf("[log] %s %s/%s %s: %s%s",
							entry.CreatedAt.Format("2006-01-02 15:04:05"),
							entry.Phase, entry.Operation, entry.Status, entry.Message, elapsed)
					}
					return nil
				}

				report, err := a.monitoring.Report(ctx)
				if err != nil {
					return err
				}

				switch strings.ToLower(format) {
				case "csv":
					out := os.Stdout
					if outPath != "" {
						file, err := os.Create(outPath)
						if err != nil {
							return fmt.Errorf("failed to create %s: %w", outPath, err)
						}
						defer file.Close()
						out = file
					}
					return export.WriteCSV(out, report)
				case "xlsx":
					if outPath == "" {
						return fmt.Errorf("--out is required for xlsx reports")
					}
					return export.WriteXLSX(outPath, report)
				case "", "text":
					printReport(report)
					return nil
				default:
					return fmt.Errorf("unsupported format %q (expected text, csv or xlsx)", format)
				}
			})
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "text", "output format: text, csv or xlsx")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "write the report to a file instead of stdout")
	cmd.Flags().BoolVar(&showLog, "log", false, "print the audit timeline instead of the report")
	return cmd
}
