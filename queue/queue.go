package queue

import (
	"sync"

	"golang.org/x/time/rate"
)

// Config defines per-queue concurrency and start rate.
type Config struct {
	// Name is the queue identifier.
	Name string

	// MaxConcurrency limits how many envelopes from this queue may run at
	// once in this process. Zero means no queue-specific limit.
	MaxConcurrency int

	// RateLimit is the maximum sustained starts per second. Zero disables
	// rate limiting.
	RateLimit float64

	// RateBurst is the token-bucket burst. Defaults to 1 when RateLimit is
	// set.
	RateBurst int
}

type queueState struct {
	config  Config
	limiter *rate.Limiter
	active  int
	paused  bool
}

// Manager enforces queue and workspace gates. It is safe for concurrent
// use.
type Manager struct {
	mu         sync.Mutex
	queues     map[string]*queueState
	workspaces map[string]*workspaceState
	resolve    func(workspaceID string) WorkspaceConfig
}

// Option configures a Manager.
type Option func(*Manager)

// WithWorkspaceResolver supplies limits for workspaces that have no
// explicit configuration.
func WithWorkspaceResolver(fn func(workspaceID string) WorkspaceConfig) Option {
	return func(m *Manager) { m.resolve = fn }
}

// NewManager creates a Manager with the given queue configurations.
// Queues not listed here have no limits.
func NewManager(configs []Config, opts ...Option) *Manager {
	m := &Manager{
		queues:     make(map[string]*queueState, len(configs)),
		workspaces: make(map[string]*workspaceState),
	}
	for _, cfg := range configs {
		m.queues[cfg.Name] = newQueueState(cfg)
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func newQueueState(cfg Config) *queueState {
	return &queueState{config: cfg, limiter: newLimiter(cfg.RateLimit, cfg.RateBurst)}
}

func newLimiter(limit float64, burst int) *rate.Limiter {
	if limit <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(limit), burst)
}

// Acquire reports whether an envelope of queue owned by workspaceID may
// start now. On true the caller must call Release when it finishes.
// Paused queues never acquire.
func (m *Manager) Acquire(queue, workspaceID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	qs := m.queues[queue]
	if qs != nil {
		if qs.paused {
			return false
		}
		if qs.config.MaxConcurrency > 0 && qs.active >= qs.config.MaxConcurrency {
			return false
		}
	}

	ws := m.workspaceLocked(workspaceID)
	if ws != nil && ws.maxActive > 0 && ws.active >= ws.maxActive {
		return false
	}

	// Tokens are taken only once every concurrency check has passed.
	if qs != nil && qs.limiter != nil && !qs.limiter.Allow() {
		return false
	}
	if ws != nil && ws.limiter != nil && !ws.limiter.Allow() {
		return false
	}

	if qs != nil {
		qs.active++
	}
	if ws != nil {
		ws.active++
	}
	return true
}

// Release returns the slots taken by a successful Acquire.
func (m *Manager) Release(queue, workspaceID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if qs := m.queues[queue]; qs != nil && qs.active > 0 {
		qs.active--
	}
	if ws := m.workspaces[workspaceID]; ws != nil && ws.active > 0 {
		ws.active--
	}
}

// SetQueueConfig updates or creates a queue configuration, keeping the
// current active count and pause flag.
func (m *Manager) SetQueueConfig(cfg Config) {
	m.mu.Lock()
	defer m.mu.Unlock()

	qs := newQueueState(cfg)
	if existing := m.queues[cfg.Name]; existing != nil {
		qs.active = existing.active
		qs.paused = existing.paused
	}
	m.queues[cfg.Name] = qs
}

// Pause stops queue from acquiring new work.
func (m *Manager) Pause(queue string) {
	m.setPaused(queue, true)
}

// Resume lets a paused queue acquire again.
func (m *Manager) Resume(queue string) {
	m.setPaused(queue, false)
}

func (m *Manager) setPaused(queue string, paused bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	qs := m.queues[queue]
	if qs == nil {
		qs = newQueueState(Config{Name: queue})
		m.queues[queue] = qs
	}
	qs.paused = paused
}

// Paused reports whether queue is paused.
func (m *Manager) Paused(queue string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	qs := m.queues[queue]
	return qs != nil && qs.paused
}

// ActiveCount returns the number of envelopes currently running in queue.
func (m *Manager) ActiveCount(queue string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if qs := m.queues[queue]; qs != nil {
		return qs.active
	}
	return 0
}
