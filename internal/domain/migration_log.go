package domain

import "time"

// LogStatus captures the outcome of a logged migration operation.
type LogStatus string

const (
	LogStatusStarted    LogStatus = "started"
	LogStatusCompleted  LogStatus = "completed"
	LogStatusFailed     LogStatus = "failed"
	LogStatusRolledBack LogStatus = "rolled_back"
)

// MigrationLogEntry is one append-only audit record. Entries are never mutated;
// the durable timeline they form backs phase-prerequisite checks and reporting.
type MigrationLogEntry struct {
	ID              int64     `json:"id"`
	Phase           Phase     `json:"phase"`
	Operation       string    `json:"operation"`
	Status          LogStatus `json:"status"`
	Message         string    `json:"message"`
	ExecutionTimeMs *int64    `json:"execution_time_ms,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}
