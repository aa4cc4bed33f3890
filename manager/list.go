package manager

import (
	"context"
	"fmt"
	"slices"
	"sort"

	"github.com/xraph/conductor/access"
	"github.com/xraph/conductor/job"
	"github.com/xraph/conductor/jobtype"
)

// ListJobs returns one page of the jobs the caller may read in a single
// workspace. Multiple types are merged into one ordering.
func (m *Manager) ListJobs(ctx context.Context, req ListRequest, u access.User) (*ListResult, error) {
	ws := req.WorkspaceID
	if ws == "" {
		ws = u.WorkspaceID
	}
	if err := m.guard.ValidateWorkspaceAccess(ctx, u, ws); err != nil {
		return nil, err
	}

	filter, err := normalizeList(&req, ws)
	if err != nil {
		return nil, err
	}

	all, err := m.store.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	var counts job.QueueCounts
	matched := make([]*job.Envelope, 0, len(all))
	for _, e := range all {
		// Stores never cross workspaces; this guards custom backends.
		if e.WorkspaceID != ws {
			continue
		}
		if !m.guard.CheckResourcePermission(ctx, u, access.ActionRead, resourceOf(e)) {
			continue
		}
		counts.Add(e.Status)
		if len(req.Statuses) > 0 && !slices.Contains(req.Statuses, e.Status) {
			continue
		}
		matched = append(matched, e)
	}

	sortEnvelopes(matched, req.SortBy, req.SortOrder)

	out := &ListResult{Total: len(matched), Counts: counts, Jobs: []*JobView{}}
	if req.Offset >= len(matched) {
		return out, nil
	}
	end := min(req.Offset+req.Limit, len(matched))
	for _, e := range matched[req.Offset:end] {
		out.Jobs = append(out.Jobs, m.view(ctx, e, u))
	}
	return out, nil
}

// normalizeList validates req in place and builds the store filter.
func normalizeList(req *ListRequest, ws string) (job.Filter, error) {
	f := job.Filter{WorkspaceID: ws, CreatedBy: req.CreatedBy}
	for _, name := range req.Types {
		t, err := jobtype.Parse(name)
		if err != nil {
			return f, err
		}
		f.Types = append(f.Types, t)
	}
	for _, s := range req.Statuses {
		if !slices.Contains(job.Statuses, s) {
			return f, invalid(fmt.Sprintf("unknown status %q", s))
		}
	}

	switch {
	case req.Limit < 0:
		return f, invalid("limit must not be negative")
	case req.Limit == 0:
		req.Limit = DefaultLimit
	case req.Limit > MaxLimit:
		req.Limit = MaxLimit
	}
	if req.Offset < 0 {
		return f, invalid("offset must not be negative")
	}

	switch req.SortBy {
	case "":
		req.SortBy = SortCreatedAt
	case SortCreatedAt, SortUpdatedAt, SortPriority, SortName:
	default:
		return f, invalid(fmt.Sprintf("unknown sort field %q", req.SortBy))
	}
	switch req.SortOrder {
	case "":
		req.SortOrder = SortDesc
	case SortAsc, SortDesc:
	default:
		return f, invalid(fmt.Sprintf("unknown sort order %q", req.SortOrder))
	}
	return f, nil
}

// sortEnvelopes orders by field, breaking ties by creation time then ID
// so pages are stable.
func sortEnvelopes(es []*job.Envelope, field SortField, order SortOrder) {
	less := func(a, b *job.Envelope) int {
		switch field {
		case SortUpdatedAt:
			return a.UpdatedAt.Compare(b.UpdatedAt)
		case SortPriority:
			return a.Priority - b.Priority
		case SortName:
			switch {
			case a.Name < b.Name:
				return -1
			case a.Name > b.Name:
				return 1
			}
			return 0
		default:
			return a.CreatedAt.Compare(b.CreatedAt)
		}
	}
	sort.SliceStable(es, func(i, j int) bool {
		c := less(es[i], es[j])
		if c == 0 {
			c = es[i].CreatedAt.Compare(es[j].CreatedAt)
		}
		if c == 0 {
			if es[i].ID.String() < es[j].ID.String() {
				c = -1
			} else if es[i].ID.String() > es[j].ID.String() {
				c = 1
			}
		}
		if order == SortAsc {
			return c < 0
		}
		return c > 0
	})
}
