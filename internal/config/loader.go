package config

import (
	"fmt"
	"time"

	"github.com/rpattn/pgbridge/internal/db"
	"github.com/rpattn/pgbridge/internal/domain"
	"github.com/spf13/viper"
)

// Engine holds the runtime tuning parameters passed to the engine at
// construction. Nothing here is persisted; these are knobs, not schema.
type Engine struct {
	ChunkSize           int
	MaxRetries          int
	RetryBackoff        time.Duration
	InterChunkDelay     time.Duration
	SuccessRateGate     float64
	StatementTimeout    time.Duration
	MaintenanceTimeout  time.Duration
	ParallelEntities    bool
	TimestampToleranceS int
}

// Config is the full runtime configuration for the migrator.
type Config struct {
	Database db.Config
	Engine   Engine
	Entities []domain.EntityDescriptor
	HTTPAddr string
}

// DefaultEngine returns the documented engine defaults.
func DefaultEngine() Engine {
	return Engine{
		ChunkSize:           100,
		MaxRetries:          3,
		RetryBackoff:        500 * time.Millisecond,
		InterChunkDelay:     100 * time.Millisecond,
		SuccessRateGate:     0.95,
		StatementTimeout:    30 * time.Second,
		MaintenanceTimeout:  10 * time.Minute,
		ParallelEntities:    false,
		TimestampToleranceS: 1,
	}
}

// Load reads config.yaml from configPath with environment overrides
// (MIGRATOR_ prefix, e.g. MIGRATOR_DATABASE_HOST).
func Load(configPath string) (Config, error) {
	cfg := Config{
		Database: db.DefaultConfig(),
		Engine:   DefaultEngine(),
		HTTPAddr: ":8090",
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AutomaticEnv() // allow environment overrides
	v.SetEnvPrefix("MIGRATOR")

	v.BindEnv("database.host")
	v.BindEnv("database.port")
	v.BindEnv("database.user")
	v.BindEnv("database.password")
	v.BindEnv("database.dbname")
	v.BindEnv("database.sslmode")

	if err := v.ReadInConfig(); err != nil {
		// Config file not found? Just log it, use defaults + env
		fmt.Println("No config.yaml found, using defaults and env vars")
	} else {
		fmt.Println("Loaded config.yaml")
	}

	if v.IsSet("database.host") {
		cfg.Database.Host = v.GetString("database.host")
	}
	if v.IsSet("database.port") {
		cfg.Database.Port = v.GetInt("database.port")
	}
	if v.IsSet("database.user") {
		cfg.Database.User = v.GetString("database.user")
	}
	if v.IsSet("database.password") {
		cfg.Database.Password = v.GetString("database.password")
	}
	if v.IsSet("database.dbname") {
		cfg.Database.DBName = v.GetString("database.dbname")
	}
	if v.IsSet("database.sslmode") {
		cfg.Database.SSLMode = v.GetString("database.sslmode")
	}

	if v.IsSet("engine.chunk_size") {
		cfg.Engine.ChunkSize = v.GetInt("engine.chunk_size")
	}
	if v.IsSet("engine.max_retries") {
		cfg.Engine.MaxRetries = v.GetInt("engine.max_retries")
	}
	if v.IsSet("engine.retry_backoff_ms") {
		cfg.Engine.RetryBackoff = time.Duration(v.GetInt("engine.retry_backoff_ms")) * time.Millisecond
	}
	if v.IsSet("engine.inter_chunk_delay_ms") {
		cfg.Engine.InterChunkDelay = time.Duration(v.GetInt("engine.inter_chunk_delay_ms")) * time.Millisecond
	}
	if v.IsSet("engine.success_rate_gate") {
		cfg.Engine.SuccessRateGate = v.GetFloat64("engine.success_rate_gate")
	}
	if v.IsSet("engine.statement_timeout_ms") {
		cfg.Engine.StatementTimeout = time.Duration(v.GetInt("engine.statement_timeout_ms")) * time.Millisecond
	}
	if v.IsSet("engine.maintenance_timeout_ms") {
		cfg.Engine.MaintenanceTimeout = time.Duration(v.GetInt("engine.maintenance_timeout_ms")) * time.Millisecond
	}
	if v.IsSet("engine.parallel_entities") {
		cfg.Engine.ParallelEntities = v.GetBool("engine.parallel_entities")
	}
	if v.IsSet("engine.timestamp_tolerance_s") {
		cfg.Engine.TimestampToleranceS = v.GetInt("engine.timestamp_tolerance_s")
	}

	if v.IsSet("http.addr") {
		cfg.HTTPAddr = v.GetString("http.addr")
	}

	if v.IsSet("entities") {
		if err := v.UnmarshalKey("entities", &cfg.Entities); err != nil {
			return cfg, fmt.Errorf("failed to decode entity descriptors: %w", err)
		}
		for _, descriptor := range cfg.Entities {
			if err := descriptor.Validate(); err != nil {
				return cfg, fmt.Errorf("invalid entity descriptor: %w", err)
			}
		}
	}

	return cfg, nil
}
