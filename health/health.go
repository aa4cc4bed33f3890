package health

import (
	"time"

	"github.com/xraph/conductor"
	"github.com/xraph/conductor/job"
	"github.com/xraph/conductor/jobtype"
)

// Status is the health classification of one queue.
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusWarning  Status = "warning"
	StatusCritical Status = "critical"
)

// Snapshot is the health of one job type's queue at a point in time.
type Snapshot struct {
	JobType         jobtype.Type    `json:"job_type"`
	Queue           string          `json:"queue"`
	Counts          job.QueueCounts `json:"counts"`
	Concurrency     int             `json:"concurrency"`
	CongestionRatio float64         `json:"congestion_ratio"`
	FailureRate     float64         `json:"failure_rate"`
	Utilization     float64         `json:"utilization"`
	Status          Status          `json:"status"`
	At              time.Time       `json:"at"`
}

// CongestionRatio is waiting / (active + 1).
func CongestionRatio(c job.QueueCounts) float64 {
	return float64(c.Waiting) / float64(c.Active+1)
}

// FailureRate is failed / (completed + failed), or 0 without samples.
func FailureRate(c job.QueueCounts) float64 {
	total := c.Completed + c.Failed
	if total == 0 {
		return 0
	}
	return float64(c.Failed) / float64(total)
}

// Utilization is (waiting + active) over the target capacity of
// concurrency * capacityPerWorker.
func Utilization(c job.QueueCounts, concurrency, capacityPerWorker int) float64 {
	capacity := concurrency * capacityPerWorker
	if capacity <= 0 {
		return 0
	}
	return float64(c.Waiting+c.Active) / float64(capacity)
}

// Evaluate computes a snapshot from counts. It is pure.
func Evaluate(t jobtype.Type, c job.QueueCounts, concurrency int, cfg conductor.HealthConfig, at time.Time) Snapshot {
	s := Snapshot{
		JobType:         t,
		Counts:          c,
		Concurrency:     concurrency,
		CongestionRatio: CongestionRatio(c),
		FailureRate:     FailureRate(c),
		Utilization:     Utilization(c, concurrency, cfg.CapacityPerWorker),
		At:              at,
	}
	if spec, ok := jobtype.Lookup(t); ok {
		s.Queue = spec.Queue
	}

	switch {
	case s.FailureRate > cfg.FailureRateCritical:
		s.Status = StatusCritical
	case s.FailureRate > cfg.FailureRateWarning, s.CongestionRatio > cfg.CongestionThreshold:
		s.Status = StatusWarning
	default:
		s.Status = StatusHealthy
	}
	return s
}
