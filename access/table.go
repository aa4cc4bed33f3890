package access

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/xraph/conductor"
)

// Scope is the breadth of a grant.
type Scope uint8

const (
	ScopeNone Scope = iota
	ScopeOwn
	ScopeAny
)

// String returns the YAML spelling of s.
func (s Scope) String() string {
	switch s {
	case ScopeOwn:
		return "own"
	case ScopeAny:
		return "any"
	default:
		return "none"
	}
}

// UnmarshalYAML accepts none, own or any.
func (s *Scope) UnmarshalYAML(value *yaml.Node) error {
	switch value.Value {
	case "none", "":
		*s = ScopeNone
	case "own":
		*s = ScopeOwn
	case "any":
		*s = ScopeAny
	default:
		return fmt.Errorf("line %d: unknown scope %q", value.Line, value.Value)
	}
	return nil
}

// Table maps a role and action to the granted scope. Missing entries are
// ScopeNone.
type Table map[Role]map[Action]Scope

// DefaultTable returns the built-in capability table.
func DefaultTable() Table {
	all := map[Action]Scope{
		ActionRead: ScopeAny, ActionCreate: ScopeAny,
		ActionCancel: ScopeAny, ActionRetry: ScopeAny,
	}
	return Table{
		RoleViewer: {ActionRead: ScopeAny},
		RoleMember: {
			ActionRead:   ScopeAny,
			ActionCreate: ScopeAny,
			ActionCancel: ScopeOwn,
			ActionRetry:  ScopeOwn,
		},
		RoleAdmin: all,
		RoleOwner: cloneGrants(all),
	}
}

// Lookup returns the scope granted to role for action.
func (t Table) Lookup(role Role, action Action) Scope {
	return t[role][action]
}

// ParseTable decodes a YAML capability table and rejects unknown actions.
func ParseTable(data []byte) (Table, error) {
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("access: parse capability table: %w", err)
	}
	for role, grants := range t {
		for action := range grants {
			if !knownAction(action) {
				return nil, fmt.Errorf("access: role %s: unknown action %q", role, action)
			}
		}
	}
	return t, nil
}

// LoadTable reads a capability table from a YAML file.
func LoadTable(path string) (Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("access: read capability table: %w", err)
	}
	return ParseTable(data)
}

func knownAction(a Action) bool {
	for _, known := range Actions {
		if a == known {
			return true
		}
	}
	return false
}

func cloneGrants(g map[Action]Scope) map[Action]Scope {
	out := make(map[Action]Scope, len(g))
	for k, v := range g {
		out[k] = v
	}
	return out
}

// TableGuard is the default Guard backed by a capability table.
type TableGuard struct {
	table Table
}

var _ Guard = (*TableGuard)(nil)

// NewGuard returns a guard over t. A nil table uses DefaultTable.
func NewGuard(t Table) *TableGuard {
	if t == nil {
		t = DefaultTable()
	}
	return &TableGuard{table: t}
}

// ValidateWorkspaceAccess implements Guard. An empty workspace is denied
// even for global administrators.
func (g *TableGuard) ValidateWorkspaceAccess(_ context.Context, u User, workspaceID string) error {
	if workspaceID == "" {
		return fmt.Errorf("%w: empty workspace", conductor.ErrAccessDenied)
	}
	if u.GlobalAdmin || u.WorkspaceID == workspaceID {
		return nil
	}
	return fmt.Errorf("%w: %s cannot access workspace %s",
		conductor.ErrAccessDenied, userLabel(u), workspaceID)
}

// CheckResourcePermission implements Guard. Creators may always act on
// their own jobs.
func (g *TableGuard) CheckResourcePermission(_ context.Context, u User, action Action, res Resource) bool {
	if u.GlobalAdmin {
		return true
	}
	if u.ID != "" && res.CreatedBy == u.ID {
		return true
	}
	switch g.table.Lookup(u.Role, action) {
	case ScopeAny:
		return true
	case ScopeOwn:
		// Creating has no prior owner to compare against.
		return action == ActionCreate
	default:
		return false
	}
}
