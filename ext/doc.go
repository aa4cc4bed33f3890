// Package ext defines the extension system for Conductor.
//
// Extensions are notified of envelope lifecycle events and can react to
// them, for example by recording metrics, learning attempt durations for
// the autoscale advisor or writing audit logs. Each lifecycle hook is a
// separate interface so extensions opt in only to the events they care
// about.
//
// # Implementing an Extension
//
//	type MyExtension struct{}
//
//	func (e *MyExtension) Name() string { return "my-extension" }
//
//	func (e *MyExtension) OnJobCompleted(ctx context.Context, env *job.Envelope, elapsed time.Duration) error {
//	    log.Printf("job %s completed in %s", env.ID, elapsed)
//	    return nil
//	}
//
// # Job Lifecycle Hooks
//
//   - [JobEnqueued]: envelope accepted into its queue
//   - [JobStarted]: a worker began an attempt
//   - [JobCompleted]: an attempt succeeded
//   - [JobRetrying]: an attempt failed and a retry was scheduled
//   - [JobDeadLettered]: retries exhausted or failure permanent
//   - [JobAbandoned]: an attempt ended without a handler verdict
//   - [JobCancelled]: a queued envelope was cancelled
//   - [JobRequeued]: a failed envelope was manually retried
//
// # Other Hooks
//
//   - [ScheduleFired]: a recurring schedule produced a new envelope
//   - [Shutdown]: the engine is shutting down gracefully
//
// Hook errors are logged and never interrupt the lifecycle.
package ext
