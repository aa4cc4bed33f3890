// Package queue gates execution per job-type queue and per workspace.
//
// Each job type owns exactly one queue, named after the type's registry
// entry (for example "webhook-delivery"). The [Manager] is consulted by
// the worker pool after it claims an envelope:
//
//	if !m.Acquire(spec.Queue, env.WorkspaceID) {
//	    // put the envelope back and try again later
//	}
//	defer m.Release(spec.Queue, env.WorkspaceID)
//
// # Queue limits
//
// [Config] caps how many envelopes of one queue run at once and how fast
// they may start, using a token bucket from golang.org/x/time/rate.
//
// # Workspace limits
//
// [WorkspaceConfig] caps a workspace's active envelopes across every
// queue, so one tenant cannot occupy all workers. Limits for workspaces
// that were never configured explicitly come from the resolver passed
// with [WithWorkspaceResolver], consulted the first time a workspace is
// seen.
//
// # Pause
//
// A paused queue is skipped by its pool; envelopes already running are
// not interrupted.
package queue
