// Package cron runs recurring schedules that produce new envelopes.
//
// A schedule is a standard cron pattern evaluated in an IANA timezone and
// bounded by an optional validity window. Each trigger enqueues a fresh
// copy of the schedule's template envelope; the schedule itself never
// executes work.
//
// # Entry
//
// An [Entry] holds:
//   - Pattern: 5-field cron expression or descriptor ("0 9 * * 1-5", "@hourly")
//   - Timezone: IANA location name, UTC when empty
//   - StartAt / EndAt: the validity window
//   - Template: the envelope copied on every trigger
//   - NextRunAt: the next trigger time (managed by the scheduler)
//
// # Scheduler
//
// The [Scheduler] evaluates due entries on every tick, enqueues a copy of
// each due template through its [EnqueueFunc] and computes the following
// trigger. Entries with no trigger left inside their window are removed.
// The ext.ScheduleFired hook fires after each enqueue.
package cron
