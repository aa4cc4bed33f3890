package job

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/xraph/conductor"
	"github.com/xraph/conductor/jobtype"
)

// HandlerFunc executes one attempt of a job. Returning an error wrapped by
// conductor.Permanent sends the envelope straight to dead-letter; any
// other error is retried per the envelope's policy.
type HandlerFunc func(ctx context.Context, payload []byte) error

// Registry maps job types to handlers. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	handlers map[jobtype.Type]HandlerFunc
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[jobtype.Type]HandlerFunc)}
}

// Handle registers a raw handler for t, replacing any previous one.
func (r *Registry) Handle(t jobtype.Type, h HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[t] = h
}

// Register registers a typed handler. The payload is JSON-decoded into T
// before the handler runs; a payload that does not decode is a permanent
// failure since retrying cannot fix it.
//
// This is a package-level generic function because Go does not allow
// generic methods on non-generic receiver types.
func Register[T any](r *Registry, t jobtype.Type, handler func(ctx context.Context, payload T) error) {
	r.Handle(t, func(ctx context.Context, payload []byte) error {
		var v T
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &v); err != nil {
				return conductor.Permanent(fmt.Errorf("unmarshal payload for %s: %w", t, err))
			}
		}
		return handler(ctx, v)
	})
}

// Get returns the handler for t.
func (r *Registry) Get(t jobtype.Type) (HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[t]
	return h, ok
}

// Types returns every type with a registered handler.
func (r *Registry) Types() []jobtype.Type {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]jobtype.Type, 0, len(r.handlers))
	for _, t := range jobtype.All {
		if _, ok := r.handlers[t]; ok {
			out = append(out, t)
		}
	}
	return out
}
