package access_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/xraph/conductor"
	"github.com/xraph/conductor/access"
)

func TestValidateWorkspaceAccess(t *testing.T) {
	g := access.NewGuard(nil)
	ctx := context.Background()

	tests := []struct {
		name    string
		user    access.User
		ws      string
		wantErr bool
	}{
		{"same workspace", access.User{ID: "u1", WorkspaceID: "A", Role: access.RoleViewer}, "A", false},
		{"other workspace", access.User{ID: "u1", WorkspaceID: "B", Role: access.RoleOwner}, "A", true},
		{"global admin", access.User{ID: "root", WorkspaceID: "B", GlobalAdmin: true}, "A", false},
		{"empty workspace", access.User{ID: "root", GlobalAdmin: true}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := g.ValidateWorkspaceAccess(ctx, tt.user, tt.ws)
			if tt.wantErr {
				if !errors.Is(err, conductor.ErrAccessDenied) {
					t.Fatalf("expected ErrAccessDenied, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestCheckResourcePermission_DefaultTable(t *testing.T) {
	g := access.NewGuard(nil)
	ctx := context.Background()
	others := access.Resource{WorkspaceID: "A", CreatedBy: "someone-else"}

	tests := []struct {
		role   access.Role
		action access.Action
		want   bool
	}{
		{access.RoleViewer, access.ActionRead, true},
		{access.RoleViewer, access.ActionCreate, false},
		{access.RoleViewer, access.ActionCancel, false},
		{access.RoleViewer, access.ActionRetry, false},
		{access.RoleMember, access.ActionRead, true},
		{access.RoleMember, access.ActionCreate, true},
		{access.RoleMember, access.ActionCancel, false},
		{access.RoleMember, access.ActionRetry, false},
		{access.RoleAdmin, access.ActionCancel, true},
		{access.RoleAdmin, access.ActionRetry, true},
		{access.RoleOwner, access.ActionRetry, true},
		{access.Role("intern"), access.ActionRead, false},
	}

	for _, tt := range tests {
		u := access.User{ID: "u1", WorkspaceID: "A", Role: tt.role}
		if got := g.CheckResourcePermission(ctx, u, tt.action, others); got != tt.want {
			t.Errorf("%s %s = %v, want %v", tt.role, tt.action, got, tt.want)
		}
	}
}

func TestCheckResourcePermission_OwnerOverride(t *testing.T) {
	g := access.NewGuard(nil)
	u := access.User{ID: "u1", WorkspaceID: "A", Role: access.RoleMember}
	own := access.Resource{WorkspaceID: "A", CreatedBy: "u1"}

	for _, a := range []access.Action{access.ActionCancel, access.ActionRetry} {
		if !g.CheckResourcePermission(context.Background(), u, a, own) {
			t.Errorf("creator denied %s on own job", a)
		}
	}
}

func TestAuthorize(t *testing.T) {
	g := access.NewGuard(nil)
	ctx := context.Background()
	res := access.Resource{WorkspaceID: "A", CreatedBy: "u2"}

	err := access.Authorize(ctx, g, access.User{ID: "u1", WorkspaceID: "B", Role: access.RoleAdmin}, access.ActionRead, res)
	if !errors.Is(err, conductor.ErrAccessDenied) {
		t.Fatalf("cross-workspace: expected ErrAccessDenied, got %v", err)
	}

	err = access.Authorize(ctx, g, access.User{ID: "u1", WorkspaceID: "A", Role: access.RoleViewer}, access.ActionCancel, res)
	if !errors.Is(err, conductor.ErrPermissionDenied) {
		t.Fatalf("viewer cancel: expected ErrPermissionDenied, got %v", err)
	}
	if errors.Is(err, conductor.ErrAccessDenied) {
		t.Fatal("permission denial must not match ErrAccessDenied")
	}

	if err := access.Authorize(ctx, g, access.User{ID: "u1", WorkspaceID: "A", Role: access.RoleAdmin}, access.ActionCancel, res); err != nil {
		t.Fatalf("admin cancel: %v", err)
	}
}

func TestLoadTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "caps.yaml")
	data := []byte(`
viewer:
  jobs:read: own
member:
  jobs:read: any
  jobs:create: any
  jobs:cancel: any
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}

	table, err := access.LoadTable(path)
	if err != nil {
		t.Fatalf("LoadTable: %v", err)
	}
	if got := table.Lookup(access.RoleMember, access.ActionCancel); got != access.ScopeAny {
		t.Errorf("member cancel = %s, want any", got)
	}
	if got := table.Lookup(access.RoleMember, access.ActionRetry); got != access.ScopeNone {
		t.Errorf("member retry = %s, want none", got)
	}

	g := access.NewGuard(table)
	viewer := access.User{ID: "v", WorkspaceID: "A", Role: access.RoleViewer}
	if g.CheckResourcePermission(context.Background(), viewer, access.ActionRead, access.Resource{WorkspaceID: "A", CreatedBy: "x"}) {
		t.Error("viewer with own-scoped read should not read others' jobs")
	}
}

func TestParseTable_Rejects(t *testing.T) {
	for name, doc := range map[string]string{
		"unknown action": "member:\n  jobs:delete: any\n",
		"unknown scope":  "member:\n  jobs:read: everything\n",
	} {
		if _, err := access.ParseTable([]byte(doc)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}
