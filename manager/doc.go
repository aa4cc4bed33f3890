// Package manager is the public job lifecycle API: create, get, list,
// cancel, retry and their bulk forms.
//
// Every operation authorizes the caller through an access.Guard before it
// reads or mutates an envelope: first the workspace check, which fails
// with conductor.ErrAccessDenied, then the per-resource capability check,
// which fails with conductor.ErrPermissionDenied. Returned views carry
// caller-relative CanRead, CanCancel and CanRetry flags.
//
// Execution errors never surface here. A job's outcome is observed later
// through GetJob or ListJobs.
package manager
