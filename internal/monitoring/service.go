// Package monitoring builds read-only progress and report summaries from the
// tracking tables. Nothing in this package mutates migration state.
package monitoring

import (
	"context"
	"fmt"
	"time"

	"github.com/rpattn/pgbridge/internal/domain"
	"github.com/rpattn/pgbridge/internal/repository"
)

const validationHistoryLimit = 200

// Service aggregates bridge counts, audit timings, validation outcomes and
// storage-bloat indicators into reportable summaries.
type Service struct {
	bridge       repository.BridgeRepository
	log          repository.MigrationLogRepository
	validation   repository.ValidationResultRepository
	catalog      repository.CatalogRepository
	targetTables []string
}

// NewService builds a monitoring service. targetTables lists the tables whose
// bloat indicators the report includes, typically every descriptor's target.
func NewService(
	bridge repository.BridgeRepository,
	log repository.MigrationLogRepository,
	validation repository.ValidationResultRepository,
	catalog repository.CatalogRepository,
	targetTables []string,
) *Service {
	return &Service{
		bridge:       bridge,
		log:          log,
		validation:   validation,
		catalog:      catalog,
		targetTables: targetTables,
	}
}

// Progress returns per-entity-type status counts and completion percentages.
func (s *Service) Progress(ctx context.Context) ([]domain.EntityProgress, error) {
	all, err := s.bridge.CountsAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read bridge counts: %w", err)
	}

	progress := make([]domain.EntityProgress, 0, len(all))
	for _, counts := range all {
		progress = append(progress, domain.EntityProgress{
			EntityType:      counts.EntityType,
			Pending:         counts.Pending,
			Processing:      counts.Processing,
			Completed:       counts.Completed,
			Failed:          counts.Failed,
			Verified:        counts.Verified,
			PercentComplete: counts.PercentComplete(),
			SuccessRate:     counts.SuccessRate(),
		})
	}
	return progress, nil
}

// Report assembles the full migration report: entity progress, phase timings,
// recorded validation outcomes and target-table bloat.
func (s *Service) Report(ctx context.Context) (domain.MigrationReport, error) {
	entities, err := s.Progress(ctx)
	if err != nil {
		return domain.MigrationReport{}, err
	}

	phases, err := s.log.PhaseTimings(ctx)
	if err != nil {
		return domain.MigrationReport{}, fmt.Errorf("failed to read phase timings: %w", err)
	}

	validations, err := s.validation.List(ctx, validationHistoryLimit)
	if err != nil {
		return domain.MigrationReport{}, fmt.Errorf("failed to read validation results: %w", err)
	}

	bloat, err := s.catalog.TableBloat(ctx, s.targetTables)
	if err != nil {
		return domain.MigrationReport{}, fmt.Errorf("failed to read table bloat: %w", err)
	}

	report := domain.MigrationReport{
		GeneratedAt: time.Now().UTC(),
		Entities:    entities,
		Phases:      phases,
		Validations: validations,
		Bloat:       bloat,
	}

	var succeeded, failed int64
	for _, entity := range entities {
		succeeded += entity.Completed + entity.Verified
		failed += entity.Failed
		report.TotalPending += entity.Pending + entity.Processing
	}
	report.TotalCompleted = succeeded
	report.TotalFailed = failed
	if succeeded+failed > 0 {
		report.OverallSuccessRate = float64(succeeded) / float64(succeeded+failed)
	} else {
		report.OverallSuccessRate = 1
	}

	return report, nil
}

// Timeline returns the most recent audit-log entries, newest first.
func (s *Service) Timeline(ctx context.Context, limit, offset int) ([]domain.MigrationLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	entries, err := s.log.List(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to read migration log: %w", err)
	}
	return entries, nil
}
