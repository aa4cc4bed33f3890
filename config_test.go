package conductor_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/xraph/conductor"
)

func TestDefaultConfig(t *testing.T) {
	cfg := conductor.DefaultConfig()
	h := cfg.Health
	if h.CongestionThreshold != 50 || h.FailureRateWarning != 0.75 || h.FailureRateCritical != 0.85 {
		t.Fatalf("health thresholds = %+v", h)
	}
	if h.TargetLatency != time.Minute || h.CapacityPerWorker != 10 {
		t.Fatalf("health capacity = %+v", h)
	}
	if cfg.Redis.Addr != "" || cfg.Postgres.DSN != "" {
		t.Fatalf("default backend = %q/%q, want memory store", cfg.Redis.Addr, cfg.Postgres.DSN)
	}
	if !cfg.Postgres.AutoMigrate {
		t.Fatal("AutoMigrate should default to true")
	}
}

func TestLoadConfig_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conductor.yaml")
	body := `
poll_interval: 250ms
concurrency:
  webhook_delivery: 8
redis:
  addr: redis.internal:6379
postgres:
  dsn: postgres://conductor@db/conductor
health:
  congestion_threshold: 20
  pause_on_critical_failure: true
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONDUCTOR_REDIS_ADDR", "localhost:6380")
	t.Setenv("CONDUCTOR_STALE_JOB_THRESHOLD", "2m")
	t.Setenv("CONDUCTOR_WORKSPACE_RATE", "not-a-number")
	t.Setenv("CONDUCTOR_POSTGRES_AUTO_MIGRATE", "false")

	cfg, err := conductor.LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.PollInterval != 250*time.Millisecond {
		t.Errorf("PollInterval = %v", cfg.PollInterval)
	}
	if cfg.Concurrency["webhook_delivery"] != 8 {
		t.Errorf("Concurrency = %v", cfg.Concurrency)
	}
	if cfg.Redis.Addr != "localhost:6380" {
		t.Errorf("Redis.Addr = %q, env should win", cfg.Redis.Addr)
	}
	if cfg.Postgres.DSN != "postgres://conductor@db/conductor" || cfg.Postgres.AutoMigrate {
		t.Errorf("Postgres = %+v", cfg.Postgres)
	}
	if cfg.StaleJobThreshold != 2*time.Minute {
		t.Errorf("StaleJobThreshold = %v", cfg.StaleJobThreshold)
	}
	if cfg.WorkspaceRate != 0 {
		t.Errorf("WorkspaceRate = %v, unparseable env must be ignored", cfg.WorkspaceRate)
	}
	if cfg.Health.CongestionThreshold != 20 || !cfg.Health.PauseOnCriticalFailed {
		t.Errorf("Health = %+v", cfg.Health)
	}
	if cfg.Health.FailureRateCritical != 0.85 {
		t.Errorf("unset health fields must keep defaults: %+v", cfg.Health)
	}
	if cfg.ShutdownTimeout != 30*time.Second {
		t.Errorf("ShutdownTimeout = %v", cfg.ShutdownTimeout)
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	if _, err := conductor.LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected an error for a missing file")
	}
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("poll_interval: [1, 2"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := conductor.LoadConfig(path); err == nil {
		t.Fatal("expected a parse error")
	}
}

func TestPermanent(t *testing.T) {
	cause := errors.New("bad payload")
	err := conductor.Permanent(cause)
	if !conductor.IsPermanent(err) || !errors.Is(err, cause) {
		t.Fatalf("Permanent(%v) = %v", cause, err)
	}
	if conductor.Permanent(nil) != nil {
		t.Fatal("Permanent(nil) must be nil")
	}
	if conductor.IsPermanent(conductor.ErrTimeout) {
		t.Fatal("timeouts are transient")
	}
}
