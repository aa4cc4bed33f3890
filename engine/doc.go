// Package engine wires every Conductor subsystem together: the job store,
// one queue and bounded worker pool per job type, the queue gates, the
// lifecycle manager, the recurring schedule scheduler and the health
// monitor.
//
// The engine package sits above all subsystem packages so the root
// conductor package can hold shared types (Config, Entity, errors) without
// importing them back.
//
// # Building an Engine
//
//	eng, err := engine.Build(cfg,
//	    engine.WithStore(store),
//	    engine.WithLogger(logger),
//	    engine.WithQuotaProvider(quotas),
//	)
//
// Build fails with conductor.ErrQueueInitialization when a concurrency
// override names an unknown type or falls outside [1, 10]. Start fails the
// same way when the store is unreachable; nothing is left running.
//
// # Registering Handlers
//
//	engine.Handle(eng, jobtype.WebhookDelivery, func(ctx context.Context, p WebhookPayload) error {
//	    return deliver(ctx, p)
//	})
//
// Payloads that do not decode are permanent failures. Return an error
// wrapped by conductor.Permanent to skip remaining attempts.
//
// # Submitting Work
//
//	view, err := eng.Manager().CreateJob(ctx, manager.CreateRequest{...}, user)
//
// # Options
//
//   - [WithStore] sets the job store (Redis when cfg.Redis.Addr is set, memory otherwise)
//   - [WithHandler] registers a raw handler
//   - [WithGuard] replaces the capability table guard
//   - [WithQuotaProvider] sets per-workspace quotas
//   - [WithOperator] replaces the queue-pausing operator used by the health monitor
//   - [WithExtension] registers a lifecycle extension
//   - [WithMiddleware] appends execution middleware
//   - [WithTracerProvider] and [WithMeterProvider] set OpenTelemetry providers
//   - [WithMetricFactory] sets the lifecycle counter factory
package engine
