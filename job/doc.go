// Package job defines the job envelope, its lifecycle statuses, the
// per-type handler registry, and the store contract that every queue
// backend implements.
//
// # Lifecycle
//
//	waiting/delayed --dequeued--> active
//	active --success--> completed
//	active --transient failure, attempts remain--> delayed --due--> waiting
//	active --permanent failure or attempts exhausted--> dead-letter
//	active --abandoned without verdict--> failed
//	waiting/delayed --cancel--> cancelled
//	failed/dead-letter --manual retry, attempts remain--> waiting
//
// The WorkspaceID and Type of an envelope never change after creation.
package job
