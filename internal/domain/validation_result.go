package domain

import (
	"encoding/json"
	"time"
)

// ValidationResult is the persisted outcome of one pre- or post-migration check.
type ValidationResult struct {
	ID             int64          `json:"id"`
	ValidationType string         `json:"validation_type"`
	TargetTable    string         `json:"target_table"`
	Passed         bool           `json:"passed"`
	ErrorMessage   *string        `json:"error_message,omitempty"`
	Details        map[string]any `json:"details,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// DetailsJSON marshals the structured details into the stored JSONB layout.
func (v ValidationResult) DetailsJSON() (json.RawMessage, error) {
	details := v.Details
	if details == nil {
		details = map[string]any{}
	}
	return json.Marshal(details)
}

// DetailsFromJSON unmarshals persisted check details.
func DetailsFromJSON(data []byte) (map[string]any, error) {
	if len(data) == 0 {
		return map[string]any{}, nil
	}
	var details map[string]any
	if err := json.Unmarshal(data, &details); err != nil {
		return nil, err
	}
	if details == nil {
		details = map[string]any{}
	}
	return details, nil
}
