package engine

import "log"

// PrepareResult reports what the prepare phase created.
type PrepareResult struct {
	TrackingVersion uint     `json:"tracking_version"`
	TablesTracked   []string `json:"tables_tracked"`
	IndexCount      int      `json:"index_count"`
}

// BridgeResult reports one bridge-population run for an entity type.
// SkippedStatuses breaks the skipped count down by the bridge status that
// blocked re-snapshotting, so operators can tell already-migrated rows from
// in-flight ones.
type BridgeResult struct {
	EntityType      string           `json:"entity_type"`
	Processed       int              `json:"processed"`
	Inserted        int64            `json:"inserted"`
	Resnapshots     int64            `json:"resnapshots"`
	Skipped         int64            `json:"skipped"`
	SkippedStatuses map[string]int64 `json:"skipped_statuses,omitempty"`
	Errors          int              `json:"errors"`
}

// ChunkResult is the unit the retry policy wraps.
type ChunkResult struct {
	EntityType string `json:"entity_type"`
	Processed  int    `json:"processed"`
	Succeeded  int    `json:"succeeded"`
	Failed     int    `json:"failed"`
	ElapsedMs  int64  `json:"elapsed_ms"`
}

// EntityMigrationResult aggregates a full drain of one entity type.
type EntityMigrationResult struct {
	EntityType  string  `json:"entity_type"`
	Processed   int     `json:"processed"`
	Succeeded   int     `json:"succeeded"`
	Failed      int     `json:"failed"`
	ElapsedMs   int64   `json:"elapsed_ms"`
	SuccessRate float64 `json:"success_rate"`
}

// CheckResult is one pre-migration gate check.
type CheckResult struct {
	Check    string         `json:"check"`
	Passed   bool           `json:"passed"`
	Critical bool           `json:"critical"`
	Details  map[string]any `json:"details,omitempty"`
}

// PostCheckResult is one post-migration acceptance check.
type PostCheckResult struct {
	Check    string `json:"check"`
	Expected int64  `json:"expected"`
	Actual   int64  `json:"actual"`
	Passed   bool   `json:"passed"`
}

// CleanupResult reports what the cleanup phase archived and installed.
type CleanupResult struct {
	ArchivedRows   int64 `json:"archived_rows"`
	ViewsInstalled int   `json:"views_installed"`
}

// RunOptions tunes one full-migration run; zero values fall back to the
// engine's configured defaults.
type RunOptions struct {
	ChunkSize       int
	MaxRetries      int
	InterChunkDelay int64 // milliseconds
}

func logf(format string, args ...any) {
	log.Printf(format, args...)
}
