package cron

import (
	"time"

	"github.com/xraph/conductor/id"
	"github.com/xraph/conductor/job"
)

// Entry is a registered recurring schedule.
type Entry struct {
	ID       id.ScheduleID `json:"id"`
	Pattern  string        `json:"pattern"`
	Timezone string        `json:"timezone,omitempty"`
	StartAt  *time.Time    `json:"start_at,omitempty"`
	EndAt    *time.Time    `json:"end_at,omitempty"`

	// Template is copied into a new envelope on every trigger.
	Template *job.Envelope `json:"template"`

	NextRunAt time.Time  `json:"next_run_at"`
	LastRunAt *time.Time `json:"last_run_at,omitempty"`
	Fired     int        `json:"fired"`
}

func (e *Entry) clone() *Entry {
	cp := *e
	if e.Template != nil {
		cp.Template = e.Template.Clone()
	}
	return &cp
}
