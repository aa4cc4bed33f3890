package conductor

import (
	"os"
	"strconv"
	"time"
)

// FromEnv overlays CONDUCTOR_* environment variables onto cfg.
// Unparseable values are ignored.
func FromEnv(cfg *Config) {
	if v := os.Getenv("CONDUCTOR_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.PollInterval = d
		}
	}
	if v := os.Getenv("CONDUCTOR_SHUTDOWN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.ShutdownTimeout = d
		}
	}
	if v := os.Getenv("CONDUCTOR_STALE_JOB_THRESHOLD"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.StaleJobThreshold = d
		}
	}
	if v := os.Getenv("CONDUCTOR_WORKSPACE_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.WorkspaceRate = f
		}
	}
	if v := os.Getenv("CONDUCTOR_CAPABILITIES_FILE"); v != "" {
		cfg.CapabilitiesFile = v
	}
	if v := os.Getenv("CONDUCTOR_POSTGRES_DSN"); v != "" {
		cfg.Postgres.DSN = v
	}
	if v := os.Getenv("CONDUCTOR_POSTGRES_AUTO_MIGRATE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Postgres.AutoMigrate = b
		}
	}
	if v := os.Getenv("CONDUCTOR_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("CONDUCTOR_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("CONDUCTOR_REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Redis.DB = n
		}
	}
	if v := os.Getenv("CONDUCTOR_CONGESTION_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Health.CongestionThreshold = f
		}
	}
	if v := os.Getenv("CONDUCTOR_PAUSE_ON_CRITICAL_FAILURE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Health.PauseOnCriticalFailed = b
		}
	}
}
