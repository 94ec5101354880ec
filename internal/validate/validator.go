// Package validate checks transformed candidates against their source records
// before anything is written to the target store.
package validate

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rpattn/pgbridge/internal/domain"
	"github.com/rpattn/pgbridge/internal/transform"
)

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Options toggles individual checks. All checks default to on.
type Options struct {
	SkipIdentity   bool
	SkipRequired   bool
	SkipDerived    bool
	SkipReferences bool
	SkipTimestamps bool

	// TimestampTolerance bounds acceptable drift between source and target
	// timestamps. Drift beyond it is advisory, not blocking: clock and format
	// skew is expected but should stay visible.
	TimestampTolerance time.Duration
}

// Validator checks one entity type's records against its descriptor.
type Validator struct {
	desc domain.EntityDescriptor
	opts Options
}

// New builds a validator for the descriptor.
func New(desc domain.EntityDescriptor, opts Options) *Validator {
	if opts.TimestampTolerance <= 0 {
		opts.TimestampTolerance = time.Second
	}
	return &Validator{desc: desc, opts: opts}
}

// Validate returns every failure found for the record and its transformed
// candidate. The result is deterministic: fixed check order, descriptor field
// order within each check. An empty slice means the record may be upserted.
func (v *Validator) Validate(record domain.BridgeRecord, target map[string]any, refs transform.ResolvedRefs) []domain.ValidationError {
	errs := []domain.ValidationError{}

	if !v.opts.SkipIdentity {
		errs = append(errs, v.checkIdentity(record)...)
	}
	if !v.opts.SkipRequired {
		errs = append(errs, v.checkRequired(target)...)
	}
	if !v.opts.SkipDerived {
		errs = append(errs, v.checkDerived(record, target)...)
	}
	if !v.opts.SkipReferences {
		errs = append(errs, v.checkReferences(record, refs)...)
	}
	if !v.opts.SkipTimestamps {
		errs = append(errs, v.checkTimestamps(record, target)...)
	}

	return errs
}

// checkIdentity ensures the stable identity survives the transform.
func (v *Validator) checkIdentity(record domain.BridgeRecord) []domain.ValidationError {
	errs := []domain.ValidationError{}
	if strings.TrimSpace(record.SourceID) == "" {
		errs = append(errs, domain.ValidationError{
			Field:    "sourceId",
			Message:  "source identity is missing",
			Severity: domain.SeverityCritical,
		})
	}
	if record.TargetID == uuid.Nil {
		errs = append(errs, domain.ValidationError{
			Field:    "targetId",
			Message:  "target identity was never assigned",
			Severity: domain.SeverityCritical,
		})
	}
	return errs
}

func (v *Validator) checkRequired(target map[string]any) []domain.ValidationError {
	errs := []domain.ValidationError{}
	for _, field := range v.desc.Fields {
		if !field.Required {
			continue
		}
		value, ok := target[field.TargetField]
		if !ok || value == nil || isEmptyString(value) {
			errs = append(errs, domain.ValidationError{
				Field:    field.TargetField,
				Message:  fmt.Sprintf("required field %s is missing from transform output", field.TargetField),
				Severity: domain.SeverityCritical,
			})
		}
	}
	return errs
}

// checkDerived re-derives each enum remap from the source value and compares it
// with what the transform produced.
func (v *Validator) checkDerived(record domain.BridgeRecord, target map[string]any) []domain.ValidationError {
	errs := []domain.ValidationError{}
	for _, remap := range v.desc.EnumRemaps {
		expected := transform.RemapEnum(remap, record.SourcePayload[remap.SourceField])
		actual, _ := target[remap.TargetField].(string)
		if actual != expected {
			errs = append(errs, domain.ValidationError{
				Field:    remap.TargetField,
				Message:  fmt.Sprintf("derived value %q does not match expected remap %q", actual, expected),
				Severity: domain.SeverityCritical,
			})
		}
	}
	return errs
}

// checkReferences requires every populated foreign reference to resolve to an
// already-bridged target id.
func (v *Validator) checkReferences(record domain.BridgeRecord, refs transform.ResolvedRefs) []domain.ValidationError {
	errs := []domain.ValidationError{}
	for _, ref := range v.desc.References {
		sourceValue := record.SourcePayload[ref.SourceField]
		if sourceValue == nil || isEmptyString(sourceValue) {
			if !ref.Optional {
				errs = append(errs, domain.ValidationError{
					Field:    ref.TargetField,
					Message:  fmt.Sprintf("reference %s is empty in source record", ref.SourceField),
					Severity: domain.SeverityCritical,
				})
			}
			continue
		}
		if _, ok := refs[ref.TargetField]; !ok {
			errs = append(errs, domain.ValidationError{
				Field:    ref.TargetField,
				Message:  fmt.Sprintf("reference %v does not resolve to a bridged %s record", sourceValue, ref.ReferencedEntityType),
				Severity: domain.SeverityCritical,
			})
		}
	}
	return errs
}

// checkTimestamps compares timestamp pairs within the configured tolerance.
func (v *Validator) checkTimestamps(record domain.BridgeRecord, target map[string]any) []domain.ValidationError {
	errs := []domain.ValidationError{}
	for _, ts := range v.desc.Timestamps {
		sourceTime, sourceOK := parseTime(record.SourcePayload[ts.SourceField])
		targetTime, targetOK := parseTime(target[ts.TargetField])
		if !sourceOK || !targetOK {
			// Missing or unparseable timestamps are caught by the required
			// check when the field is mandatory; nothing to compare here.
			continue
		}
		drift := sourceTime.Sub(targetTime)
		if drift < 0 {
			drift = -drift
		}
		if drift > v.opts.TimestampTolerance {
			errs = append(errs, domain.ValidationError{
				Field:    ts.TargetField,
				Message:  fmt.Sprintf("timestamp drifted %s from source value %s", drift, sourceTime.UTC().Format(time.RFC3339)),
				Severity: domain.SeverityAdvisory,
			})
		}
	}
	return errs
}

func isEmptyString(value any) bool {
	s, ok := value.(string)
	return ok && strings.TrimSpace(s) == ""
}

func parseTime(value any) (time.Time, bool) {
	switch v := value.(type) {
	case time.Time:
		return v, true
	case *time.Time:
		if v == nil {
			return time.Time{}, false
		}
		return *v, true
	case string:
		for _, layout := range timeLayouts {
			if parsed, err := time.Parse(layout, v); err == nil {
				return parsed, true
			}
		}
		return time.Time{}, false
	default:
		return time.Time{}, false
	}
}
