package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// BridgeStatus captures lifecycle state for a bridge record.
type BridgeStatus string

const (
	BridgeStatusPending    BridgeStatus = "pending"
	BridgeStatusProcessing BridgeStatus = "processing"
	BridgeStatusCompleted  BridgeStatus = "completed"
	BridgeStatusFailed     BridgeStatus = "failed"
	BridgeStatusVerified   BridgeStatus = "verified"
)

// CanTransitionTo reports whether the state machine permits moving from s to next.
// Transitions are forward-only; failed->pending is an explicit operator reset and
// completed->pending only happens through rollback, both handled outside this check.
func (s BridgeStatus) CanTransitionTo(next BridgeStatus) bool {
	switch s {
	case BridgeStatusPending:
		return next == BridgeStatusProcessing
	case BridgeStatusProcessing:
		return next == BridgeStatusCompleted || next == BridgeStatusFailed
	case BridgeStatusCompleted:
		return next == BridgeStatusVerified
	default:
		return false
	}
}

// Severity distinguishes blocking validation failures from advisory ones.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityAdvisory Severity = "advisory"
)

// ValidationError is a single field-level validation failure.
type ValidationError struct {
	Field    string   `json:"field"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

// HasCritical reports whether any error in the list is critical.
func HasCritical(errs []ValidationError) bool {
	for _, e := range errs {
		if e.Severity == SeverityCritical {
			return true
		}
	}
	return false
}

// BridgeRecord is one staged source record moving through the migration.
// SourcePayload is a read-only snapshot taken at bridge-population time;
// TargetPayload becomes immutable once the record reaches completed.
type BridgeRecord struct {
	EntityType       string            `json:"entity_type"`
	SourceID         string            `json:"source_id"`
	TargetID         uuid.UUID         `json:"target_id"`
	SourcePayload    map[string]any    `json:"source_payload"`
	TargetPayload    map[string]any    `json:"target_payload,omitempty"`
	Status           BridgeStatus      `json:"status"`
	ValidationErrors []ValidationError `json:"validation_errors,omitempty"`
	LastError        *string           `json:"last_error,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
	ProcessedAt      *time.Time        `json:"processed_at,omitempty"`
}

// SourcePayloadJSON marshals the source snapshot into the JSONB layout stored in Postgres.
func (r BridgeRecord) SourcePayloadJSON() (json.RawMessage, error) {
	payload := r.SourcePayload
	if payload == nil {
		payload = map[string]any{}
	}
	return json.Marshal(payload)
}

// ValidationErrorsJSON marshals validation errors for persistence.
func (r BridgeRecord) ValidationErrorsJSON() (json.RawMessage, error) {
	errs := r.ValidationErrors
	if errs == nil {
		errs = []ValidationError{}
	}
	return json.Marshal(errs)
}

// ValidationErrorsFromJSON unmarshals persisted validation errors.
func ValidationErrorsFromJSON(data []byte) ([]ValidationError, error) {
	if len(data) == 0 {
		return []ValidationError{}, nil
	}
	var errs []ValidationError
	if err := json.Unmarshal(data, &errs); err != nil {
		return nil, err
	}
	if errs == nil {
		errs = []ValidationError{}
	}
	return errs, nil
}

// PayloadFromJSON decodes a JSONB payload column into a property map.
func PayloadFromJSON(data []byte) (map[string]any, error) {
	if len(data) == 0 {
		return map[string]any{}, nil
	}
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}
	if payload == nil {
		payload = map[string]any{}
	}
	return payload, nil
}

// BridgeCounts aggregates per-status record counts for one entity type.
type BridgeCounts struct {
	EntityType string `json:"entity_type"`
	Pending    int64  `json:"pending"`
	Processing int64  `json:"processing"`
	Completed  int64  `json:"completed"`
	Failed     int64  `json:"failed"`
	Verified   int64  `json:"verified"`
}

// Total returns the number of bridge records across all statuses.
func (c BridgeCounts) Total() int64 {
	return c.Pending + c.Processing + c.Completed + c.Failed + c.Verified
}

// SuccessRate returns completed / (completed + failed). Verified records count as
// completed. Returns 1 when nothing has been attempted yet.
func (c BridgeCounts) SuccessRate() float64 {
	succeeded := c.Completed + c.Verified
	attempted := succeeded + c.Failed
	if attempted == 0 {
		return 1
	}
	return float64(succeeded) / float64(attempted)
}

// PercentComplete returns the share of records in a terminal success state.
func (c BridgeCounts) PercentComplete() float64 {
	total := c.Total()
	if total == 0 {
		return 0
	}
	return float64(c.Completed+c.Verified) / float64(total) * 100
}
