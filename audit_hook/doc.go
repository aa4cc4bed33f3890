// Package audithook is a Conductor extension that bridges job lifecycle
// events to an audit trail backend.
//
// Every lifecycle hook emits a structured audit event through the
// [Recorder] interface. Severity follows the outcome: info for normal
// progress, warning for retries, abandonment and cancellation, critical
// for dead-lettered jobs. Metadata carries the workspace, the creator and
// the job type so a trail can be filtered per tenant.
//
// # Logging recorder
//
//	hook := audithook.New(audithook.LogRecorder(logger))
//	engine.Build(cfg, engine.WithExtension(hook))
//
// # Selective filtering
//
//	audithook.New(recorder,
//	    audithook.WithActions(
//	        audithook.ActionJobCancelled,
//	        audithook.ActionJobDeadLettered,
//	    ),
//	)
package audithook
