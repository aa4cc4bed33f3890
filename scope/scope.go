// Package scope carries the executing envelope's workspace on
// context.Context so handlers and anything they call see the tenant the
// job belongs to.
//
// Workspaces map onto forge organisation scopes: the application ID names
// the deployment and the organisation ID is the workspace.
package scope

import (
	"context"

	"github.com/xraph/forge"
)

// Capture extracts the application and workspace identifiers from the
// context. Returns empty strings if no scope is present.
func Capture(ctx context.Context) (appID, workspaceID string) {
	s, ok := forge.ScopeFrom(ctx)
	if !ok {
		return "", ""
	}
	return s.AppID(), s.OrgID()
}

// Workspace returns the workspace carried by ctx, or "".
func Workspace(ctx context.Context) string {
	_, ws := Capture(ctx)
	return ws
}

// Restore attaches a scope for workspaceID to the context. If both
// identifiers are empty the context is returned unchanged.
func Restore(ctx context.Context, appID, workspaceID string) context.Context {
	if appID == "" && workspaceID == "" {
		return ctx
	}
	var s forge.Scope
	if workspaceID != "" {
		s = forge.NewOrgScope(appID, workspaceID)
	} else {
		s = forge.NewAppScope(appID)
	}
	return forge.WithScope(ctx, s)
}
