package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"kickbot/internal/eventbus"
	logx "kickbot/pkg/logx"
)

// Config controls the scheduler service.
type Config struct {
	Timezone    string // IANA TZ, e.g. "Europe/Istanbul"
	HistorySize int
}

// RunState tracks whether a schedule is already in flight.
type RunState struct {
	mu       sync.Mutex
	inflight bool
}

func (s *RunState) tryAcquire() bool {
	if s == nil {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight {
		return false
	}
	s.inflight = true
	return true
}

func (s *RunState) release() {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.inflight = false
	s.mu.Unlock()
}

// Running reports whether a run is in flight.
func (s *RunState) Running() bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inflight
}

type HistoryItem struct {
	Name     string
	Started  time.Time
	Duration time.Duration
	Error    string
}

// TaskEvent is emitted on the event bus for task lifecycle events.
type TaskEvent struct {
	Name     string        `json:"name"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

type scheduleDef struct {
	name         string
	every        time.Duration
	initialDelay time.Duration
	timeout      time.Duration
	job          func(ctx context.Context) error
	entryID      cron.EntryID
	state        *RunState
}

type Service struct {
	mu sync.Mutex

	log logx.Logger
	cfg Config
	loc *time.Location
	bus eventbus.Bus

	c    *cron.Cron
	defs []*scheduleDef

	runCancel context.CancelFunc

	// hmu guards run-side state; runs never take mu so restarts can wait on them.
	hmu     sync.Mutex
	runCtx  context.Context
	histMax int
	history []HistoryItem
}

type ScheduleInfo struct {
	Name    string
	Every   time.Duration
	Timeout time.Duration
	Next    time.Time
	Prev    time.Time
	Running bool
}

type Snapshot struct {
	Timezone  string
	Schedules []ScheduleInfo
	History   []HistoryItem
}
