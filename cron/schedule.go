package cron

import (
	"fmt"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/xraph/conductor"
)

// cronParser supports standard 5-field cron and descriptors like "@every 30s".
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// ParseSchedule parses a cron expression and returns the schedule.
func ParseSchedule(expr string) (cronlib.Schedule, error) {
	return cronParser.Parse(expr)
}

// Location resolves an IANA timezone name. An empty name is UTC.
func Location(timezone string) (*time.Location, error) {
	if timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: timezone %q: %w", conductor.ErrValidation, timezone, err)
	}
	return loc, nil
}

// Validate checks a pattern, timezone and window without computing a
// trigger.
func Validate(pattern, timezone string, startAt, endAt *time.Time) error {
	if _, err := ParseSchedule(pattern); err != nil {
		return fmt.Errorf("%w: cron pattern %q: %w", conductor.ErrValidation, pattern, err)
	}
	if _, err := Location(timezone); err != nil {
		return err
	}
	if startAt != nil && endAt != nil && !endAt.After(*startAt) {
		return fmt.Errorf("%w: schedule ends before it starts", conductor.ErrValidation)
	}
	return nil
}

// Next returns the first trigger strictly after after that lies within
// [startAt, endAt]. ok is false when the window holds no further trigger.
func Next(pattern, timezone string, after time.Time, startAt, endAt *time.Time) (next time.Time, ok bool, err error) {
	sched, err := ParseSchedule(pattern)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("%w: cron pattern %q: %w", conductor.ErrValidation, pattern, err)
	}
	loc, err := Location(timezone)
	if err != nil {
		return time.Time{}, false, err
	}

	from := after
	if startAt != nil && startAt.After(from) {
		// A trigger exactly at startAt is inside the window.
		from = startAt.Add(-time.Nanosecond)
	}
	next = sched.Next(from.In(loc))
	if next.IsZero() {
		return time.Time{}, false, nil
	}
	next = next.UTC()
	if endAt != nil && next.After(*endAt) {
		return time.Time{}, false, nil
	}
	return next, true, nil
}
