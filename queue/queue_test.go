package queue

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// ---------------------------------------------------------------------------
// Manager basics
// ---------------------------------------------------------------------------

func TestNewManager_Empty(t *testing.T) {
	m := NewManager(nil)
	if !m.Acquire("any-queue", "") {
		t.Fatal("expected Acquire to succeed for unconfigured queue")
	}
	m.Release("any-queue", "")
}

func TestManager_MaxConcurrency(t *testing.T) {
	m := NewManager([]Config{{Name: "webhook-delivery", MaxConcurrency: 2}})

	if !m.Acquire("webhook-delivery", "A") {
		t.Fatal("first Acquire should succeed")
	}
	if !m.Acquire("webhook-delivery", "B") {
		t.Fatal("second Acquire should succeed")
	}
	if m.Acquire("webhook-delivery", "C") {
		t.Fatal("third Acquire should fail (max concurrency 2)")
	}

	m.Release("webhook-delivery", "A")
	if !m.Acquire("webhook-delivery", "C") {
		t.Fatal("Acquire should succeed after Release")
	}
	if got := m.ActiveCount("webhook-delivery"); got != 2 {
		t.Fatalf("expected 2 active, got %d", got)
	}
}

// ---------------------------------------------------------------------------
// Rate limiting
// ---------------------------------------------------------------------------

func TestManager_RateLimit_Throttles(t *testing.T) {
	m := NewManager([]Config{{Name: "limited", RateLimit: 1.0, RateBurst: 1}})

	if !m.Acquire("limited", "") {
		t.Fatal("first Acquire should succeed (within burst)")
	}
	m.Release("limited", "")

	if m.Acquire("limited", "") {
		t.Fatal("second Acquire should fail (rate limited)")
	}

	time.Sleep(1100 * time.Millisecond)
	if !m.Acquire("limited", "") {
		t.Fatal("Acquire should succeed after token refill")
	}
	m.Release("limited", "")
}

func TestManager_RateLimit_BurstAllows(t *testing.T) {
	m := NewManager([]Config{{Name: "bursty", RateLimit: 10.0, RateBurst: 3}})

	for i := range 3 {
		if !m.Acquire("bursty", "") {
			t.Fatalf("Acquire %d should succeed (within burst)", i)
		}
		m.Release("bursty", "")
	}
}

// ---------------------------------------------------------------------------
// Workspace isolation
// ---------------------------------------------------------------------------

func TestManager_WorkspaceMaxActive_SpansQueues(t *testing.T) {
	m := NewManager([]Config{
		{Name: "data-export", MaxConcurrency: 10},
		{Name: "trace-analysis", MaxConcurrency: 10},
	})
	m.SetWorkspaceConfig(WorkspaceConfig{WorkspaceID: "A", MaxActive: 2})

	if !m.Acquire("data-export", "A") || !m.Acquire("trace-analysis", "A") {
		t.Fatal("first two acquires for A should succeed")
	}
	if m.Acquire("data-export", "A") {
		t.Fatal("A should be capped at 2 across queues")
	}
	if !m.Acquire("data-export", "B") {
		t.Fatal("B should not be affected by A's limit")
	}
	if got := m.WorkspaceActiveCount("A"); got != 2 {
		t.Fatalf("expected A active 2, got %d", got)
	}

	m.Release("trace-analysis", "A")
	if !m.Acquire("data-export", "A") {
		t.Fatal("A should acquire after release")
	}
}

func TestManager_WorkspaceResolver(t *testing.T) {
	var calls atomic.Int32
	m := NewManager(nil, WithWorkspaceResolver(func(ws string) WorkspaceConfig {
		calls.Add(1)
		if ws == "small" {
			return WorkspaceConfig{MaxActive: 1}
		}
		return WorkspaceConfig{}
	}))

	if !m.Acquire("q", "small") {
		t.Fatal("first acquire should succeed")
	}
	if m.Acquire("q", "small") {
		t.Fatal("resolved limit of 1 should block the second acquire")
	}
	for range 5 {
		if !m.Acquire("q", "big") {
			t.Fatal("unlimited workspace should acquire")
		}
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("resolver called %d times, want once per workspace", got)
	}
}

func TestManager_FailedWorkspaceCheckKeepsQueueSlot(t *testing.T) {
	m := NewManager([]Config{{Name: "q", MaxConcurrency: 1}})
	m.SetWorkspaceConfig(WorkspaceConfig{WorkspaceID: "A", MaxActive: 1})

	if !m.Acquire("other", "A") {
		t.Fatal("A should acquire on another queue")
	}
	if m.Acquire("q", "A") {
		t.Fatal("A is at its limit")
	}
	if got := m.ActiveCount("q"); got != 0 {
		t.Fatalf("rejected acquire leaked a queue slot: active=%d", got)
	}
	if !m.Acquire("q", "B") {
		t.Fatal("B should take the free slot")
	}
}

// ---------------------------------------------------------------------------
// Pause / resume
// ---------------------------------------------------------------------------

func TestManager_PauseResume(t *testing.T) {
	m := NewManager([]Config{{Name: "llm-batch-request", MaxConcurrency: 1}})

	m.Pause("llm-batch-request")
	if !m.Paused("llm-batch-request") {
		t.Fatal("expected paused")
	}
	if m.Acquire("llm-batch-request", "A") {
		t.Fatal("paused queue must not acquire")
	}

	m.SetQueueConfig(Config{Name: "llm-batch-request", MaxConcurrency: 3})
	if !m.Paused("llm-batch-request") {
		t.Fatal("reconfiguring must keep the pause flag")
	}

	m.Resume("llm-batch-request")
	if !m.Acquire("llm-batch-request", "A") {
		t.Fatal("resumed queue should acquire")
	}
}

func TestManager_PauseUnconfiguredQueue(t *testing.T) {
	m := NewManager(nil)
	m.Pause("custom")
	if m.Acquire("custom", "") {
		t.Fatal("paused queue must not acquire")
	}
}

// ---------------------------------------------------------------------------
// Dynamic reconfiguration
// ---------------------------------------------------------------------------

func TestManager_SetQueueConfig(t *testing.T) {
	m := NewManager([]Config{{Name: "dyn", MaxConcurrency: 1}})

	m.Acquire("dyn", "")
	if m.Acquire("dyn", "") {
		t.Fatal("should be blocked at concurrency 1")
	}

	m.SetQueueConfig(Config{Name: "dyn", MaxConcurrency: 3})
	if !m.Acquire("dyn", "") {
		t.Fatal("should succeed after raising concurrency")
	}
	if got := m.ActiveCount("dyn"); got != 2 {
		t.Fatalf("active count not preserved: %d", got)
	}
}

// ---------------------------------------------------------------------------
// Concurrency safety
// ---------------------------------------------------------------------------

func TestManager_ConcurrentAccess(t *testing.T) {
	m := NewManager([]Config{{Name: "concurrent", MaxConcurrency: 50}})
	m.SetWorkspaceConfig(WorkspaceConfig{WorkspaceID: "A", MaxActive: 20})

	var acquired atomic.Int64
	var wg sync.WaitGroup

	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if m.Acquire("concurrent", "A") {
				acquired.Add(1)
				time.Sleep(time.Millisecond)
				m.Release("concurrent", "A")
			}
		}()
	}
	wg.Wait()

	if acquired.Load() == 0 {
		t.Fatal("expected some Acquires to succeed")
	}
	if m.ActiveCount("concurrent") != 0 || m.WorkspaceActiveCount("A") != 0 {
		t.Fatalf("expected 0 active after all goroutines, got queue=%d workspace=%d",
			m.ActiveCount("concurrent"), m.WorkspaceActiveCount("A"))
	}
}

func TestManager_ReleaseUnderflow(t *testing.T) {
	m := NewManager([]Config{{Name: "q", MaxConcurrency: 5}})
	m.SetWorkspaceConfig(WorkspaceConfig{WorkspaceID: "A"})

	m.Release("q", "A")
	if m.ActiveCount("q") != 0 || m.WorkspaceActiveCount("A") != 0 {
		t.Fatal("active count should not go below 0")
	}
}
