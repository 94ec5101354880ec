// Package transform maps old-shape records onto their new-shape counterparts.
// Every function here is deterministic and side-effect-free: retrying a chunk
// re-invokes the same transform on the same input and must produce identical
// output, byte for byte.
package transform

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/rpattn/pgbridge/internal/domain"
)

// State tags a transform outcome so failure handling is explicit at the call
// site instead of flowing through panics or sentinel errors.
type State string

const (
	StateOK               State = "ok"
	StateValidationFailed State = "validation_failed"
	StateExecutionFailed  State = "execution_failed"
)

// Outcome is the tagged result of transforming one record.
type Outcome struct {
	State   State
	Target  map[string]any
	Errors  []domain.ValidationError
	Message string
}

// Ok builds a success outcome.
func Ok(target map[string]any) Outcome {
	return Outcome{State: StateOK, Target: target}
}

// ValidationFailed builds an outcome blocked by validation errors.
func ValidationFailed(errs []domain.ValidationError) Outcome {
	return Outcome{State: StateValidationFailed, Errors: errs}
}

// ExecutionFailed builds an outcome for unexpected per-record failures.
func ExecutionFailed(message string) Outcome {
	return Outcome{State: StateExecutionFailed, Message: message}
}

// ResolvedRefs maps a descriptor's reference target fields to the bridged
// target ids resolved for this record. A missing key means the reference did
// not resolve; the validator decides whether that blocks the record.
type ResolvedRefs map[string]uuid.UUID

// Apply maps the record's source snapshot onto the target shape described by
// desc. The target id is never generated here - it was assigned once at bridge
// time and is reused unchanged on every retry.
func Apply(desc domain.EntityDescriptor, record domain.BridgeRecord, refs ResolvedRefs) map[string]any {
	target := make(map[string]any, len(desc.Fields)+len(desc.EnumRemaps)+len(desc.References))

	for _, field := range desc.Fields {
		target[field.TargetField] = record.SourcePayload[field.SourceField]
	}

	for _, remap := range desc.EnumRemaps {
		target[remap.TargetField] = RemapEnum(remap, record.SourcePayload[remap.SourceField])
	}

	for _, ref := range desc.References {
		if id, ok := refs[ref.TargetField]; ok {
			target[ref.TargetField] = id
		} else {
			target[ref.TargetField] = nil
		}
	}

	return target
}

// RemapEnum maps one enumerated source value onto its target value. Unknown
// and null inputs fall back to the remap's default rather than failing, so a
// stray status code never aborts a record.
func RemapEnum(remap domain.EnumRemap, value any) string {
	if value == nil {
		return remap.Default
	}
	key := enumKey(value)
	if mapped, ok := remap.Values[key]; ok {
		return mapped
	}
	return remap.Default
}

// enumKey renders a source value as a lookup key. Numeric status codes arrive
// from pgx as assorted integer and float types; all of them must hit the same
// map entry.
func enumKey(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case int:
		return strconv.Itoa(v)
	case int16:
		return strconv.FormatInt(int64(v), 10)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	case float32:
		return strconv.FormatInt(int64(v), 10)
	case float64:
		return strconv.FormatInt(int64(v), 10)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}
