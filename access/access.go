package access

import (
	"context"
	"fmt"

	"github.com/xraph/conductor"
)

// Role is a user's role inside their workspace.
type Role string

const (
	RoleViewer Role = "viewer"
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
	RoleOwner  Role = "owner"
)

// Action is a capability checked against the table.
type Action string

const (
	ActionRead   Action = "jobs:read"
	ActionCreate Action = "jobs:create"
	ActionCancel Action = "jobs:cancel"
	ActionRetry  Action = "jobs:retry"
)

// Actions lists every action in check order.
var Actions = []Action{ActionRead, ActionCreate, ActionCancel, ActionRetry}

// User is the authenticated caller. Authentication itself happens
// upstream; this package only trusts the fields it is given.
type User struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	WorkspaceID string `json:"workspace_id"`
	Role        Role   `json:"role"`
	// GlobalAdmin grants access to every workspace.
	GlobalAdmin bool `json:"global_admin"`
}

// Resource is the part of an envelope the guard needs to decide.
type Resource struct {
	WorkspaceID string
	CreatedBy   string
}

// Guard decides workspace access and per-resource permissions.
type Guard interface {
	// ValidateWorkspaceAccess returns an error wrapping
	// conductor.ErrAccessDenied when u may not touch workspaceID.
	ValidateWorkspaceAccess(ctx context.Context, u User, workspaceID string) error

	// CheckResourcePermission reports whether u may perform action on res.
	CheckResourcePermission(ctx context.Context, u User, action Action, res Resource) bool
}

// Authorize runs both checks and returns the first failure. It is the
// single entry point the lifecycle manager uses.
func Authorize(ctx context.Context, g Guard, u User, action Action, res Resource) error {
	if err := g.ValidateWorkspaceAccess(ctx, u, res.WorkspaceID); err != nil {
		return err
	}
	if !g.CheckResourcePermission(ctx, u, action, res) {
		return fmt.Errorf("%w: %s may not %s in workspace %s",
			conductor.ErrPermissionDenied, userLabel(u), action, res.WorkspaceID)
	}
	return nil
}

func userLabel(u User) string {
	if u.ID == "" {
		return "anonymous"
	}
	return "user " + u.ID
}
