package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleConfig = `
database:
  host: db.internal
  port: 5433
  dbname: plant_migration

engine:
  chunk_size: 250
  max_retries: 5
  retry_backoff_ms: 1000
  success_rate_gate: 0.99
  parallel_entities: true

http:
  addr: ":9000"

entities:
  - entity_type: work_order
    source_table: legacy_work_orders
    source_id_column: wo_number
    source_columns: [wo_number, title, status_code]
    target_table: work_orders
    fields:
      - source_field: title
        target_field: name
        required: true
    enum_remaps:
      - source_field: status_code
        target_field: status
        values:
          "0": draft
          "1": open
        default: draft
`

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Engine.ChunkSize != 100 || cfg.Engine.MaxRetries != 3 {
		t.Errorf("unexpected engine defaults: %+v", cfg.Engine)
	}
	if cfg.Engine.SuccessRateGate != 0.95 {
		t.Errorf("expected default gate 0.95, got %v", cfg.Engine.SuccessRateGate)
	}
	if cfg.HTTPAddr != ":8090" {
		t.Errorf("expected default http addr :8090, got %s", cfg.HTTPAddr)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(sampleConfig), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Database.Host != "db.internal" || cfg.Database.Port != 5433 {
		t.Errorf("database overrides not applied: %+v", cfg.Database)
	}
	if cfg.Database.DBName != "plant_migration" {
		t.Errorf("expected dbname plant_migration, got %s", cfg.Database.DBName)
	}
	if cfg.Engine.ChunkSize != 250 || cfg.Engine.MaxRetries != 5 {
		t.Errorf("engine overrides not applied: %+v", cfg.Engine)
	}
	if cfg.Engine.RetryBackoff != time.Second {
		t.Errorf("expected 1s retry backoff, got %s", cfg.Engine.RetryBackoff)
	}
	if !cfg.Engine.ParallelEntities {
		t.Error("parallel_entities override not applied")
	}
	if cfg.HTTPAddr != ":9000" {
		t.Errorf("http addr override not applied: %s", cfg.HTTPAddr)
	}

	if len(cfg.Entities) != 1 {
		t.Fatalf("expected 1 entity descriptor, got %d", len(cfg.Entities))
	}
	desc := cfg.Entities[0]
	if desc.EntityType != "work_order" || desc.SourceTable != "legacy_work_orders" {
		t.Errorf("descriptor not decoded: %+v", desc)
	}
	if len(desc.Fields) != 1 || !desc.Fields[0].Required {
		t.Errorf("field mappings not decoded: %+v", desc.Fields)
	}
	if len(desc.EnumRemaps) != 1 || desc.EnumRemaps[0].Values["1"] != "open" {
		t.Errorf("enum remaps not decoded: %+v", desc.EnumRemaps)
	}
}

func TestLoadRejectsInvalidDescriptor(t *testing.T) {
	dir := t.TempDir()
	broken := `
entities:
  - entity_type: asset
    source_table: legacy_assets
`
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(broken), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	if _, err := Load(dir); err == nil {
		t.Fatal("expected an error for an incomplete descriptor")
	}
}
