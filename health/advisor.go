package health

import (
	"fmt"
	"math"
	"time"

	"github.com/xraph/conductor"
	"github.com/xraph/conductor/jobtype"
)

// Action is a scaling recommendation.
type Action string

const (
	ActionScaleUp   Action = "scale-up"
	ActionScaleDown Action = "scale-down"
	ActionHold      Action = "hold"
)

// Recommendation is the advice for one job type.
type Recommendation struct {
	JobType            jobtype.Type `json:"job_type"`
	Action             Action       `json:"action"`
	CurrentWorkers     int          `json:"current_workers"`
	RecommendedWorkers int          `json:"recommended_workers"`
	PauseRequested     bool         `json:"pause_requested"`
	Reason             string       `json:"reason"`
	Snapshot           Snapshot     `json:"snapshot"`
}

// Advisor derives recommendations from snapshots. It never changes
// concurrency itself.
type Advisor struct {
	cfg       conductor.HealthConfig
	durations *Durations
}

// NewAdvisor creates an Advisor. durations may be nil, in which case the
// configured default attempt time is used for every type.
func NewAdvisor(cfg conductor.HealthConfig, durations *Durations) *Advisor {
	return &Advisor{cfg: cfg, durations: durations}
}

// RecommendedWorkers is ceil(waiting * avgAttempt / targetLatency),
// never below the registry concurrency for t.
func (a *Advisor) RecommendedWorkers(t jobtype.Type, waiting int64) int {
	floor := jobtype.MinConcurrency
	if spec, ok := jobtype.Lookup(t); ok {
		floor = spec.DefaultConcurrency
	}
	target := a.cfg.TargetLatency
	if target <= 0 || waiting <= 0 {
		return floor
	}
	n := int(math.Ceil(float64(waiting) * float64(a.attemptTime(t)) / float64(target)))
	return max(n, floor)
}

func (a *Advisor) attemptTime(t jobtype.Type) time.Duration {
	if a.durations != nil {
		if avg, ok := a.durations.Average(t); ok && avg > 0 {
			return avg
		}
	}
	return a.cfg.DefaultAttemptTime
}

// Recommend advises on one snapshot.
func (a *Advisor) Recommend(s Snapshot) Recommendation {
	r := Recommendation{
		JobType:            s.JobType,
		Action:             ActionHold,
		CurrentWorkers:     s.Concurrency,
		RecommendedWorkers: a.RecommendedWorkers(s.JobType, s.Counts.Waiting),
		PauseRequested:     s.Status == StatusCritical,
		Snapshot:           s,
	}

	switch {
	case s.CongestionRatio > a.cfg.CongestionThreshold:
		r.Action = ActionScaleUp
		r.RecommendedWorkers = max(r.RecommendedWorkers, s.Concurrency+1)
		r.Reason = fmt.Sprintf("congestion %.1f above %.1f", s.CongestionRatio, a.cfg.CongestionThreshold)
	case s.Utilization <= a.cfg.LowUtilization && r.RecommendedWorkers < s.Concurrency:
		r.Action = ActionScaleDown
		r.Reason = fmt.Sprintf("utilization %.2f at or below %.2f", s.Utilization, a.cfg.LowUtilization)
	default:
		r.RecommendedWorkers = max(r.RecommendedWorkers, s.Concurrency)
		r.Reason = "within thresholds"
	}

	if r.PauseRequested {
		r.Reason += fmt.Sprintf("; failure rate %.2f above %.2f", s.FailureRate, a.cfg.FailureRateCritical)
	}
	return r
}
