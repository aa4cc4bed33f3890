// Package health turns per-type queue counts into congestion, failure and
// utilization signals and derives scaling advice from them.
//
// The [Monitor] reads counts from the store on demand; nothing is cached
// between snapshots. The [Advisor] only recommends: changing concurrency
// belongs to an operator. A queue whose failure rate crosses the critical
// threshold can be paused through the [Operator] collaborator.
package health
