package scope_test

import (
	"context"
	"testing"

	"github.com/xraph/conductor/scope"
)

func TestRestoreAndCapture(t *testing.T) {
	ctx := scope.Restore(context.Background(), "conductor", "ws-42")

	app, ws := scope.Capture(ctx)
	if app != "conductor" || ws != "ws-42" {
		t.Fatalf("Capture = (%q, %q), want (conductor, ws-42)", app, ws)
	}
	if got := scope.Workspace(ctx); got != "ws-42" {
		t.Errorf("Workspace = %q", got)
	}
}

func TestRestoreEmptyIsNoop(t *testing.T) {
	ctx := context.Background()
	if got := scope.Restore(ctx, "", ""); got != ctx {
		t.Fatal("expected the original context back")
	}
	if ws := scope.Workspace(ctx); ws != "" {
		t.Fatalf("Workspace on bare context = %q", ws)
	}
}
