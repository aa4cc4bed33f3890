// Package backoff provides the retry delay strategies used by the retry
// engine. All strategies are stateless and safe for concurrent use.
package backoff

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// Type names a backoff policy kind as it appears in job requests.
type Type string

const (
	// TypeFixed waits the same delay before every retry.
	TypeFixed Type = "fixed"
	// TypeExponential doubles the delay for every attempt already made.
	TypeExponential Type = "exponential"
)

// ParseType validates a backoff type name.
func ParseType(s string) (Type, error) {
	switch Type(s) {
	case TypeFixed, TypeExponential:
		return Type(s), nil
	default:
		return "", fmt.Errorf("backoff: unknown type %q", s)
	}
}

// Strategy computes the delay before a retry.
type Strategy interface {
	// Delay returns how long to wait given the number of attempts already
	// made before the failing one (0 for the first retry).
	Delay(attempt int) time.Duration
}

// ──────────────────────────────────────────────────
// Fixed
// ──────────────────────────────────────────────────

// Fixed always returns the same delay regardless of attempt number.
type Fixed struct {
	Interval time.Duration
}

// NewFixed creates a fixed backoff strategy.
func NewFixed(interval time.Duration) *Fixed {
	return &Fixed{Interval: interval}
}

// Delay returns the fixed interval.
func (f *Fixed) Delay(_ int) time.Duration {
	return f.Interval
}

// ──────────────────────────────────────────────────
// Exponential
// ──────────────────────────────────────────────────

// Exponential doubles the delay each attempt.
// Delay = min(Base * 2^attempt, Max). A zero Max means uncapped.
type Exponential struct {
	Base time.Duration
	Max  time.Duration
}

// NewExponential creates an exponential backoff strategy.
func NewExponential(base, maxDelay time.Duration) *Exponential {
	return &Exponential{Base: base, Max: maxDelay}
}

// Delay returns Base * 2^attempt, capped at Max. Results that overflow
// time.Duration saturate at Max, or at the largest Duration when uncapped.
func (e *Exponential) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	f := float64(e.Base) * math.Pow(2, float64(attempt))
	if e.Max > 0 && f >= float64(e.Max) {
		return e.Max
	}
	if f >= float64(math.MaxInt64) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(f)
}

// ──────────────────────────────────────────────────
// Policy
// ──────────────────────────────────────────────────

// Policy is the serializable description of a backoff strategy carried on
// each job envelope. Its JSON form carries the delays in milliseconds.
type Policy struct {
	Type      Type
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

type policyJSON struct {
	Type        Type  `json:"type"`
	BaseDelayMs int64 `json:"base_delay_ms"`
	MaxDelayMs  int64 `json:"max_delay_ms,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (p Policy) MarshalJSON() ([]byte, error) {
	return json.Marshal(policyJSON{
		Type:        p.Type,
		BaseDelayMs: p.BaseDelay.Milliseconds(),
		MaxDelayMs:  p.MaxDelay.Milliseconds(),
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *Policy) UnmarshalJSON(data []byte) error {
	var v policyJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("backoff: decode policy: %w", err)
	}
	if v.Type != "" {
		if _, err := ParseType(string(v.Type)); err != nil {
			return err
		}
	}
	*p = Policy{
		Type:      v.Type,
		BaseDelay: time.Duration(v.BaseDelayMs) * time.Millisecond,
		MaxDelay:  time.Duration(v.MaxDelayMs) * time.Millisecond,
	}
	return nil
}

// Strategy returns the Strategy described by p. Unknown types fall back
// to exponential.
func (p Policy) Strategy() Strategy {
	if p.Type == TypeFixed {
		return NewFixed(p.BaseDelay)
	}
	return NewExponential(p.BaseDelay, p.MaxDelay)
}

// Delay is shorthand for p.Strategy().Delay(attempt).
func (p Policy) Delay(attempt int) time.Duration {
	return p.Strategy().Delay(attempt)
}
