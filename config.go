package conductor

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds configuration for a Conductor engine.
type Config struct {
	// PollInterval is how often idle workers poll their queue.
	PollInterval time.Duration `yaml:"poll_interval"`

	// ShutdownTimeout is the maximum time to wait for active attempts
	// during graceful shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// HeartbeatInterval is how often active attempts are heartbeated.
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`

	// StaleJobThreshold is how long an active attempt may go without a
	// heartbeat before it is reaped into the failed state. Zero disables
	// reaping.
	StaleJobThreshold time.Duration `yaml:"stale_job_threshold"`

	// Concurrency overrides the registry default per job type, keyed by
	// the job type name (e.g. "webhook_delivery").
	Concurrency map[string]int `yaml:"concurrency"`

	// WorkspaceRate is the sustained start rate per workspace across all
	// queues, in jobs per second. Zero disables workspace rate limiting.
	WorkspaceRate  float64 `yaml:"workspace_rate"`
	WorkspaceBurst int     `yaml:"workspace_burst"`

	// CapabilitiesFile optionally points to a YAML capability table that
	// replaces the built-in role/action table.
	CapabilitiesFile string `yaml:"capabilities_file"`

	Redis    RedisConfig    `yaml:"redis"`
	Postgres PostgresConfig `yaml:"postgres"`
	Health   HealthConfig   `yaml:"health"`
	Cron     CronConfig     `yaml:"cron"`
}

// PostgresConfig selects the PostgreSQL backend when DSN is non-empty. It
// takes precedence over Redis.
type PostgresConfig struct {
	DSN string `yaml:"dsn"`
	// AutoMigrate applies the embedded schema migrations on engine start.
	AutoMigrate bool `yaml:"auto_migrate"`
}

// RedisConfig selects the Redis backend when Addr is non-empty.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// HealthConfig holds the operator thresholds used by the health monitor
// and autoscale advisor.
type HealthConfig struct {
	CongestionThreshold   float64       `yaml:"congestion_threshold"`
	FailureRateWarning    float64       `yaml:"failure_rate_warning"`
	FailureRateCritical   float64       `yaml:"failure_rate_critical"`
	LowUtilization        float64       `yaml:"low_utilization"`
	CapacityPerWorker     int           `yaml:"capacity_per_worker"`
	TargetLatency         time.Duration `yaml:"target_latency"`
	DefaultAttemptTime    time.Duration `yaml:"default_attempt_time"`
	PauseOnCriticalFailed bool          `yaml:"pause_on_critical_failure"`

	// CheckInterval is how often the engine runs a health check. Zero
	// disables the background check; snapshots remain available on demand.
	CheckInterval time.Duration `yaml:"check_interval"`
}

// CronConfig configures the recurring schedule ticker.
type CronConfig struct {
	TickInterval time.Duration `yaml:"tick_interval"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		PollInterval:      500 * time.Millisecond,
		ShutdownTimeout:   30 * time.Second,
		HeartbeatInterval: 10 * time.Second,
		StaleJobThreshold: 0,
		WorkspaceBurst:    1,
		Health: HealthConfig{
			CongestionThreshold: 50,
			FailureRateWarning:  0.75,
			FailureRateCritical: 0.85,
			LowUtilization:      0.3,
			CapacityPerWorker:   10,
			TargetLatency:       time.Minute,
			DefaultAttemptTime:  5 * time.Second,
			CheckInterval:       30 * time.Second,
		},
		Postgres: PostgresConfig{AutoMigrate: true},
		Cron:     CronConfig{TickInterval: time.Second},
	}
}

// LoadConfig reads a YAML file over DefaultConfig and then overlays
// CONDUCTOR_* environment variables. An empty path skips the file.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("conductor: read config %q: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("conductor: parse config %q: %w", path, err)
		}
	}
	FromEnv(&cfg)
	return cfg, nil
}
