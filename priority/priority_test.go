package priority_test

import (
	"testing"

	"github.com/xraph/conductor/priority"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		level priority.Level
		want  int
	}{
		{priority.Critical, 20},
		{priority.High, 10},
		{priority.Normal, 5},
		{priority.Low, 1},
		{priority.Unspecified, 5},
		{priority.Level("urgent"), 5},
	}
	for _, tt := range tests {
		t.Run(string(tt.level), func(t *testing.T) {
			got := priority.Resolve(tt.level)
			if got != tt.want {
				t.Errorf("Resolve(%q) = %d, want %d", tt.level, got, tt.want)
			}
			if again := priority.Resolve(tt.level); again != got {
				t.Errorf("Resolve(%q) not idempotent: %d then %d", tt.level, got, again)
			}
			if !priority.Valid(got) {
				t.Errorf("Resolve(%q) = %d is not a valid weight", tt.level, got)
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	for _, s := range []string{"critical", "high", "normal", "low", ""} {
		if _, err := priority.ParseLevel(s); err != nil {
			t.Errorf("ParseLevel(%q): unexpected error %v", s, err)
		}
	}
	if _, err := priority.ParseLevel("CRITICAL"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestClamp(t *testing.T) {
	tests := []struct {
		name   string
		weight int
		tier   priority.Level
		want   int
	}{
		{"no tier", 20, priority.Unspecified, 20},
		{"critical under high tier", 20, priority.High, 10},
		{"low under high tier", 1, priority.High, 1},
		{"high under normal tier", 10, priority.Normal, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := priority.Clamp(tt.weight, tt.tier); got != tt.want {
				t.Errorf("Clamp(%d, %q) = %d, want %d", tt.weight, tt.tier, got, tt.want)
			}
		})
	}
}

func TestValid(t *testing.T) {
	for _, w := range []int{0, 2, 15, 100} {
		if priority.Valid(w) {
			t.Errorf("Valid(%d) = true, want false", w)
		}
	}
}
