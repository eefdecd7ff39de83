package scheduler

import (
	"time"

	"github.com/robfig/cron/v3"
)

// firstRunSchedule wraps a base schedule and overrides the first run time.
// After the first run, it delegates to the base schedule.
type firstRunSchedule struct {
	base  cron.Schedule
	first time.Time
}

func (s *firstRunSchedule) Next(t time.Time) time.Time {
	if !s.first.IsZero() && t.Before(s.first) {
		return s.first
	}
	return s.base.Next(t)
}

// intervalSchedule fires at now+initialDelay, then every `every`.
// cron.Every rounds periods below one second up to one second.
func intervalSchedule(every, initialDelay time.Duration, now time.Time) cron.Schedule {
	base := cron.Every(every)
	if initialDelay < 0 {
		initialDelay = 0
	}
	return &firstRunSchedule{base: base, first: now.Add(initialDelay)}
}
