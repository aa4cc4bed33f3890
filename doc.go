// Package conductor is a multi-tenant background job orchestration engine.
// It accepts asynchronous work from many workspaces, schedules it by
// priority, bounds concurrency per job type, retries failed attempts with
// configurable backoff, and reports queue health for scaling decisions.
//
// Conductor is a library. Build an engine over a store, register a handler
// per job type, and submit work through the lifecycle manager.
//
// # Quick Start
//
//	eng, err := engine.Build(conductor.DefaultConfig(),
//	    engine.WithStore(memory.New()),
//	    engine.WithHandler(jobtype.WebhookDelivery, deliverWebhook),
//	)
//	if err != nil { ... }
//	if err := eng.Start(ctx); err != nil { ... }
//
//	view, err := eng.Manager().CreateJob(ctx, manager.CreateRequest{
//	    Name:        "notify",
//	    Type:        "webhook_delivery",
//	    WorkspaceID: "ws_1",
//	    Payload:     []byte(`{"url":"https://example.com/hook"}`),
//	}, user)
//
// # Architecture
//
// Each job type owns exactly one queue and one bounded worker pool. The
// store interface (job.Store) is the durable queue primitive; memory,
// Redis and PostgreSQL backends are provided. Workspace isolation is
// enforced at the access layer (package access), not by separate physical
// queues.
//
// All entity IDs use TypeID: type-prefixed, K-sortable, UUIDv7-based.
package conductor
