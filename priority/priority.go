// Package priority converts symbolic job priorities into the numeric
// scheduling weights used by every queue backend. Higher weights are
// dequeued first.
package priority

import "fmt"

// Level is a symbolic priority as it appears in job requests.
type Level string

const (
	Critical    Level = "critical"
	High        Level = "high"
	Normal      Level = "normal"
	Low         Level = "low"
	Unspecified Level = ""
)

// Numeric weights. Backends dequeue the highest weight first.
const (
	WeightLow      = 1
	WeightNormal   = 5
	WeightHigh     = 10
	WeightCritical = 20
)

// Resolve maps a Level to its weight. It is total: unknown and unspecified
// levels resolve to normal.
func Resolve(l Level) int {
	switch l {
	case Critical:
		return WeightCritical
	case High:
		return WeightHigh
	case Low:
		return WeightLow
	default:
		return WeightNormal
	}
}

// ParseLevel validates a request-supplied level. The empty string is
// accepted as Unspecified.
func ParseLevel(s string) (Level, error) {
	switch l := Level(s); l {
	case Critical, High, Normal, Low, Unspecified:
		return l, nil
	default:
		return "", fmt.Errorf("priority: unknown level %q", s)
	}
}

// Valid reports whether w is one of the four resolvable weights.
func Valid(w int) bool {
	switch w {
	case WeightLow, WeightNormal, WeightHigh, WeightCritical:
		return true
	}
	return false
}

// Clamp lowers weight w to the ceiling implied by tier. An unspecified
// tier imposes no ceiling.
func Clamp(w int, tier Level) int {
	if tier == Unspecified {
		return w
	}
	if ceiling := Resolve(tier); w > ceiling {
		return ceiling
	}
	return w
}
