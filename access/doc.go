// Package access enforces workspace isolation and per-job permissions.
//
// Every read or mutation of an envelope passes two checks. The workspace
// check rejects callers from another workspace with
// conductor.ErrAccessDenied unless they are global administrators. The
// permission check then consults a capability table keyed by role and
// action; a denial yields conductor.ErrPermissionDenied.
//
// The capability table grants each (role, action) pair one of three
// scopes: none, own (only jobs the caller created) or any. The default
// table lets viewers read, members read and create while acting only on
// their own jobs, and admins and owners do everything. Operators can
// replace it with a YAML file:
//
//	viewer:
//	  jobs:read: any
//	member:
//	  jobs:read: any
//	  jobs:create: any
//	  jobs:cancel: own
//	  jobs:retry: own
package access
