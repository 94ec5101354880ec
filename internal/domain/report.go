package domain

import "time"

// EntityProgress summarizes migration progress for one entity type.
type EntityProgress struct {
	EntityType      string  `json:"entity_type"`
	Pending         int64   `json:"pending"`
	Processing      int64   `json:"processing"`
	Completed       int64   `json:"completed"`
	Failed          int64   `json:"failed"`
	Verified        int64   `json:"verified"`
	PercentComplete float64 `json:"percent_complete"`
	SuccessRate     float64 `json:"success_rate"`
}

// TableBloat reports storage health indicators for one target table,
// read from pg_stat_user_tables.
type TableBloat struct {
	TableName     string     `json:"table_name"`
	LiveTuples    int64      `json:"live_tuples"`
	DeadTuples    int64      `json:"dead_tuples"`
	DeadTupleRate float64    `json:"dead_tuple_rate"`
	LastVacuum    *time.Time `json:"last_vacuum,omitempty"`
	LastAutovac   *time.Time `json:"last_autovacuum,omitempty"`
}

// PhaseTiming aggregates audit-log timings for one phase.
type PhaseTiming struct {
	Phase       Phase      `json:"phase"`
	Status      LogStatus  `json:"status"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	ElapsedMs   *int64     `json:"elapsed_ms,omitempty"`
}

// MigrationReport is the final human-facing summary: counts, timings and
// pass/fail per validation check. Built from read-only queries only.
type MigrationReport struct {
	GeneratedAt        time.Time          `json:"generated_at"`
	Entities           []EntityProgress   `json:"entities"`
	Phases             []PhaseTiming      `json:"phases"`
	Validations        []ValidationResult `json:"validations"`
	Bloat              []TableBloat       `json:"bloat"`
	OverallSuccessRate float64            `json:"overall_success_rate"`
	TotalCompleted     int64              `json:"total_completed"`
	TotalFailed        int64              `json:"total_failed"`
	TotalPending       int64              `json:"total_pending"`
}
