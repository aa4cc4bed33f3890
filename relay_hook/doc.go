// Package relayhook bridges Conductor lifecycle events to Relay for
// outbound webhook delivery. Each event is tenanted by the job's
// workspace, so a workspace's subscribers only see its own jobs.
//
// Usage:
//
//	r, _ := relay.New(relay.WithStore(store))
//	relayhook.RegisterAll(ctx, r)
//
//	hook := relayhook.New(r)
//	engine.Build(cfg, engine.WithExtension(hook))
//
// To restrict which events are emitted:
//
//	hook := relayhook.New(r,
//	    relayhook.WithEvents(
//	        relayhook.EventJobCompleted,
//	        relayhook.EventJobDeadLettered,
//	    ),
//	)
package relayhook
