package redis

import (
	"github.com/xraph/conductor/job"
	"github.com/xraph/conductor/jobtype"
)

// All keys are prefixed with "conductor:" to avoid collisions.
const keyPrefix = "conductor:"

// jobKey returns the Hash key for an envelope: conductor:job:{id}
func jobKey(id string) string { return keyPrefix + "job:" + id }

// readyKey returns the ready Sorted Set of a type: conductor:ready:{type}
func readyKey(t jobtype.Type) string { return keyPrefix + "ready:" + t.String() }

// delayedKey returns the delayed Sorted Set of a type: conductor:delayed:{type}
func delayedKey(t jobtype.Type) string { return keyPrefix + "delayed:" + t.String() }

// statusKey returns the Set of envelope IDs of a type in one status.
func statusKey(t jobtype.Type, s job.Status) string {
	return keyPrefix + "status:" + t.String() + ":" + string(s)
}

// workspaceKey returns the Set of envelope IDs owned by a workspace.
func workspaceKey(ws string) string { return keyPrefix + "workspace:" + ws }

// seqKey is the counter giving ready members their FIFO sequence.
const seqKey = keyPrefix + "seq"
