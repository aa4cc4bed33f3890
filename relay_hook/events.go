package relayhook

import (
	"context"

	"github.com/xraph/relay"
	"github.com/xraph/relay/catalog"
)

// Conductor lifecycle event types. Each constant maps to one ext lifecycle
// hook and is used as the event.Event.Type when sending via Relay.
const (
	EventJobEnqueued     = "conductor.job.enqueued"
	EventJobStarted      = "conductor.job.started"
	EventJobCompleted    = "conductor.job.completed"
	EventJobRetrying     = "conductor.job.retrying"
	EventJobDeadLettered = "conductor.job.dead_lettered"
	EventJobAbandoned    = "conductor.job.abandoned"
	EventJobCancelled    = "conductor.job.cancelled"
	EventJobRequeued     = "conductor.job.requeued"
	EventScheduleFired   = "conductor.schedule.fired"
)

const definitionVersion = "2026-03-01"

// AllDefinitions returns webhook definitions for every Conductor lifecycle
// event type. Pass these to relay.RegisterEventType to populate the
// catalog.
func AllDefinitions() []catalog.WebhookDefinition {
	defs := []struct{ name, desc, group string }{
		{EventJobEnqueued, "Fired when a job is accepted into its queue.", "jobs"},
		{EventJobStarted, "Fired when a worker begins an attempt.", "jobs"},
		{EventJobCompleted, "Fired when an attempt succeeds.", "jobs"},
		{EventJobRetrying, "Fired when an attempt fails and a retry is scheduled.", "jobs"},
		{EventJobDeadLettered, "Fired when a job exhausts its attempts or fails permanently.", "jobs"},
		{EventJobAbandoned, "Fired when an attempt is abandoned without a retry.", "jobs"},
		{EventJobCancelled, "Fired when a queued job is cancelled.", "jobs"},
		{EventJobRequeued, "Fired when a failed job is manually retried.", "jobs"},
		{EventScheduleFired, "Fired when a recurring schedule enqueues a job.", "schedules"},
	}
	out := make([]catalog.WebhookDefinition, 0, len(defs))
	for _, d := range defs {
		out = append(out, catalog.WebhookDefinition{
			Name:        d.name,
			Description: d.desc,
			Group:       d.group,
			Version:     definitionVersion,
		})
	}
	return out
}

// RegisterAll registers every Conductor webhook event type in the Relay
// catalog. Call it once during startup before sending events.
func RegisterAll(ctx context.Context, r *relay.Relay) error {
	for _, def := range AllDefinitions() {
		if _, err := r.RegisterEventType(ctx, def); err != nil {
			return err
		}
	}
	return nil
}
