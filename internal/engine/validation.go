package engine

import (
	"context"
	"fmt"

	"github.com/rpattn/pgbridge/internal/domain"
)

// ValidatePreMigration runs the gate checks an operator reviews before
// draining the bridge: tracking structures exist, every target table exists,
// and every entity type's bridge is populated to match its eligible source
// rows. Critical failures should block RunFullMigration; the caller decides.
func (e *Engine) ValidatePreMigration(ctx context.Context) ([]CheckResult, error) {
	var checks []CheckResult

	exists, err := e.target.TableExists(ctx, "migration_bridge")
	if err != nil {
		return nil, fmt.Errorf("pre-migration validation: %w", err)
	}
	checks = append(checks, CheckResult{
		Check:    "tracking_structures_exist",
		Passed:   exists,
		Critical: true,
		Details:  map[string]any{"table": "migration_bridge"},
	})

	for _, desc := range e.descriptors {
		targetExists, err := e.target.TableExists(ctx, desc.TargetTable)
		if err != nil {
			return nil, fmt.Errorf("pre-migration validation: %w", err)
		}
		checks = append(checks, CheckResult{
			Check:    "target_table_exists:" + desc.EntityType,
			Passed:   targetExists,
			Critical: true,
			Details:  map[string]any{"table": desc.TargetTable},
		})

		sourceCount, err := e.source.Count(ctx, desc, "")
		if err != nil {
			return nil, fmt.Errorf("pre-migration validation: %w", err)
		}
		bridged, err := e.bridge.Total(ctx, desc.EntityType)
		if err != nil {
			return nil, fmt.Errorf("pre-migration validation: %w", err)
		}
		checks = append(checks, CheckResult{
			Check:    "bridge_coverage:" + desc.EntityType,
			Passed:   bridged >= sourceCount && bridged > 0,
			Critical: true,
			Details:  map[string]any{"table": "migration_bridge", "source_rows": sourceCount, "bridged_rows": bridged},
		})
	}

	for _, check := range checks {
		table, _ := check.Details["table"].(string)
		e.recordCheck(ctx, "pre_migration", check.Check, table, check.Passed, check.Details)
	}
	return checks, nil
}

// ValidatePostMigration runs the acceptance checks after a drain: per entity
// type, the target table must hold one row per completed bridge record, and
// the failure rate must sit inside the gate. Entity types whose checks all
// pass have their completed records promoted to verified.
func (e *Engine) ValidatePostMigration(ctx context.Context) ([]PostCheckResult, error) {
	var checks []PostCheckResult

	for _, desc := range e.descriptors {
		counts, err := e.bridge.Counts(ctx, desc.EntityType)
		if err != nil {
			return nil, fmt.Errorf("post-migration validation: %w", err)
		}
		targetCount, err := e.target.Count(ctx, desc)
		if err != nil {
			return nil, fmt.Errorf("post-migration validation: %w", err)
		}

		completed := counts.Completed + counts.Verified
		rowCheck := PostCheckResult{
			Check:    "target_row_count:" + desc.EntityType,
			Expected: completed,
			Actual:   targetCount,
			Passed:   targetCount == completed,
		}

		attempted := completed + counts.Failed
		var allowedFailures int64
		if attempted > 0 {
			allowedFailures = int64(float64(attempted) * (1 - e.cfg.SuccessRateGate))
		}
		rateCheck := PostCheckResult{
			Check:    "failure_rate:" + desc.EntityType,
			Expected: allowedFailures,
			Actual:   counts.Failed,
			Passed:   counts.Failed <= allowedFailures,
		}

		checks = append(checks, rowCheck, rateCheck)
		e.recordCheck(ctx, "post_migration", rowCheck.Check, desc.TargetTable, rowCheck.Passed,
			map[string]any{"expected": rowCheck.Expected, "actual": rowCheck.Actual})
		e.recordCheck(ctx, "post_migration", rateCheck.Check, desc.TargetTable, rateCheck.Passed,
			map[string]any{"expected": rateCheck.Expected, "actual": rateCheck.Actual})

		if rowCheck.Passed && rateCheck.Passed {
			verified, err := e.bridge.MarkVerified(ctx, desc.EntityType)
			if err != nil {
				return nil, fmt.Errorf("post-migration validation: failed to verify %s: %w", desc.EntityType, err)
			}
			logf("[validate] %s: %d records verified", desc.EntityType, verified)
		}
	}

	return checks, nil
}

// recordCheck persists one check outcome; like audit logging, a persistence
// failure is reported but never aborts the validation run.
func (e *Engine) recordCheck(ctx context.Context, validationType, check, targetTable string, passed bool, details map[string]any) {
	var errorMessage *string
	if !passed {
		message := check + " failed"
		errorMessage = &message
	}
	if details == nil {
		details = map[string]any{}
	}
	details["check"] = check
	if _, err := e.validation.Record(ctx, domain.ValidationResult{
		ValidationType: validationType,
		TargetTable:    targetTable,
		Passed:         passed,
		ErrorMessage:   errorMessage,
		Details:        details,
	}); err != nil {
		logf("[validate] failed to record %s outcome: %v", check, err)
	}
}
