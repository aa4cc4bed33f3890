package queue

import "golang.org/x/time/rate"

// WorkspaceConfig limits one workspace across every queue.
type WorkspaceConfig struct {
	WorkspaceID string

	// MaxActive caps simultaneously running envelopes. Zero is unlimited.
	MaxActive int

	// RateLimit is the sustained starts per second. Zero disables it.
	RateLimit float64

	// RateBurst is the token-bucket burst for RateLimit.
	RateBurst int
}

type workspaceState struct {
	limiter   *rate.Limiter
	maxActive int
	active    int
}

// SetWorkspaceConfig replaces the limits of cfg.WorkspaceID, keeping its
// active count.
func (m *Manager) SetWorkspaceConfig(cfg WorkspaceConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ws := &workspaceState{
		limiter:   newLimiter(cfg.RateLimit, cfg.RateBurst),
		maxActive: cfg.MaxActive,
	}
	if existing := m.workspaces[cfg.WorkspaceID]; existing != nil {
		ws.active = existing.active
	}
	m.workspaces[cfg.WorkspaceID] = ws
}

// WorkspaceActiveCount returns the running envelopes of workspaceID.
func (m *Manager) WorkspaceActiveCount(workspaceID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ws := m.workspaces[workspaceID]; ws != nil {
		return ws.active
	}
	return 0
}

// workspaceLocked returns the state for workspaceID, resolving it on first
// sight. Caller holds m.mu.
func (m *Manager) workspaceLocked(workspaceID string) *workspaceState {
	if workspaceID == "" {
		return nil
	}
	if ws, ok := m.workspaces[workspaceID]; ok {
		return ws
	}
	ws := &workspaceState{}
	if m.resolve != nil {
		cfg := m.resolve(workspaceID)
		ws.limiter = newLimiter(cfg.RateLimit, cfg.RateBurst)
		ws.maxActive = cfg.MaxActive
	}
	m.workspaces[workspaceID] = ws
	return ws
}
