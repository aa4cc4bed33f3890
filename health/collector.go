package health

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	queueJobsDesc = prometheus.NewDesc(
		"conductor_queue_jobs",
		"Current number of jobs per queue and status.",
		[]string{"job_type", "status"}, nil,
	)
	congestionDesc = prometheus.NewDesc(
		"conductor_queue_congestion_ratio",
		"Waiting jobs per active job plus one.",
		[]string{"job_type"}, nil,
	)
	failureRateDesc = prometheus.NewDesc(
		"conductor_queue_failure_rate",
		"Failed share of finished jobs.",
		[]string{"job_type"}, nil,
	)
	utilizationDesc = prometheus.NewDesc(
		"conductor_queue_utilization",
		"Waiting and active jobs over target capacity.",
		[]string{"job_type"}, nil,
	)
	statusDesc = prometheus.NewDesc(
		"conductor_queue_health_status",
		"Queue health: 0 healthy, 1 warning, 2 critical.",
		[]string{"job_type"}, nil,
	)
	recommendedDesc = prometheus.NewDesc(
		"conductor_queue_recommended_workers",
		"Worker count recommended by the autoscale advisor.",
		[]string{"job_type"}, nil,
	)
)

// Collector exports snapshots as Prometheus gauges. Counts are read on
// every scrape.
type Collector struct {
	monitor *Monitor
	timeout time.Duration
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector creates a Collector over m.
func NewCollector(m *Monitor) *Collector {
	return &Collector{monitor: m, timeout: 5 * time.Second}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- queueJobsDesc
	ch <- congestionDesc
	ch <- failureRateDesc
	ch <- utilizationDesc
	ch <- statusDesc
	ch <- recommendedDesc
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	snaps, err := c.monitor.SnapshotAll(ctx)
	if err != nil {
		ch <- prometheus.NewInvalidMetric(queueJobsDesc, err)
		return
	}

	for _, s := range snaps {
		t := s.JobType.String()
		for status, n := range map[string]int64{
			"waiting":   s.Counts.Waiting,
			"active":    s.Counts.Active,
			"completed": s.Counts.Completed,
			"failed":    s.Counts.Failed,
			"delayed":   s.Counts.Delayed,
		} {
			ch <- prometheus.MustNewConstMetric(queueJobsDesc, prometheus.GaugeValue, float64(n), t, status)
		}
		ch <- prometheus.MustNewConstMetric(congestionDesc, prometheus.GaugeValue, s.CongestionRatio, t)
		ch <- prometheus.MustNewConstMetric(failureRateDesc, prometheus.GaugeValue, s.FailureRate, t)
		ch <- prometheus.MustNewConstMetric(utilizationDesc, prometheus.GaugeValue, s.Utilization, t)
		ch <- prometheus.MustNewConstMetric(statusDesc, prometheus.GaugeValue, statusValue(s.Status), t)
		rec := c.monitor.Advisor().Recommend(s)
		ch <- prometheus.MustNewConstMetric(recommendedDesc, prometheus.GaugeValue, float64(rec.RecommendedWorkers), t)
	}
}

func statusValue(s Status) float64 {
	switch s {
	case StatusCritical:
		return 2
	case StatusWarning:
		return 1
	default:
		return 0
	}
}
