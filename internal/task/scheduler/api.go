package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"kickbot/internal/eventbus"
	logx "kickbot/pkg/logx"
)

// AddInterval registers job under name: first run after initialDelay, then
// every `every`. Registering an existing name replaces it (hot reload); the
// replacement shares the old run state, so a run still in flight keeps
// later triggers of the new definition skipped until it returns.
func (s *Service) AddInterval(name string, every, initialDelay, timeout time.Duration, job func(ctx context.Context) error) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("name required")
	}
	if every <= 0 {
		return fmt.Errorf("schedule %q: interval must be positive", name)
	}
	if job == nil {
		return fmt.Errorf("schedule %q: job required", name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	state := &RunState{}
	if old := s.removeLocked(name); old != nil {
		state = old.state
	}
	d := &scheduleDef{
		name:         name,
		every:        every,
		initialDelay: initialDelay,
		timeout:      timeout,
		job:          job,
		state:        state,
	}
	s.defs = append(s.defs, d)
	if s.c != nil {
		s.addCronLocked(d)
	}
	s.log.Debug("schedule registered",
		logx.String("name", name),
		logx.Duration("every", every),
		logx.Duration("initial_delay", initialDelay),
		logx.Duration("timeout", timeout),
	)
	return nil
}

// Remove unschedules name. It returns true if something was removed.
func (s *Service) Remove(name string) bool {
	s.mu.Lock()
	removed := s.removeLocked(strings.TrimSpace(name)) != nil
	s.mu.Unlock()
	if removed {
		s.log.Debug("schedule removed", logx.String("name", name))
	}
	return removed
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	out := Snapshot{}
	if s.loc != nil {
		out.Timezone = s.loc.String()
	}
	for _, d := range s.defs {
		info := ScheduleInfo{Name: d.name, Every: d.every, Timeout: d.timeout, Running: d.state.Running()}
		if s.c != nil && d.entryID != 0 {
			e := s.c.Entry(d.entryID)
			info.Next, info.Prev = e.Next, e.Prev
		}
		out.Schedules = append(out.Schedules, info)
	}
	s.mu.Unlock()

	s.hmu.Lock()
	out.History = append([]HistoryItem(nil), s.history...)
	s.hmu.Unlock()
	return out
}

// removeLocked removes the def named name, unregisters it from cron and
// returns it (nil if absent). Call with s.mu held.
func (s *Service) removeLocked(name string) *scheduleDef {
	if name == "" {
		return nil
	}
	var removed *scheduleDef
	n := 0
	for _, d := range s.defs {
		if d.name == name {
			if s.c != nil && d.entryID != 0 {
				s.c.Remove(d.entryID)
			}
			removed = d
			continue
		}
		s.defs[n] = d
		n++
	}
	s.defs = s.defs[:n]
	return removed
}

func (s *Service) addCronLocked(d *scheduleDef) {
	loc := s.loc
	if loc == nil {
		loc = time.Local
	}
	sched := intervalSchedule(d.every, d.initialDelay, time.Now().In(loc))
	d.entryID = s.c.Schedule(sched, cron.FuncJob(func() { s.run(d) }))
}

// run executes one trigger of d under the single-flight guard.
func (s *Service) run(d *scheduleDef) {
	if !d.state.tryAcquire() {
		s.log.Warn("previous run still in flight; trigger skipped", logx.String("name", d.name))
		eventbus.Emit(s.bus, eventbus.TypeTaskSkipped, TaskEvent{Name: d.name, Started: time.Now()})
		return
	}
	defer d.state.release()

	s.hmu.Lock()
	parent := s.runCtx
	s.hmu.Unlock()
	if parent == nil {
		parent = context.Background()
	}
	ctx := parent
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, d.timeout)
		defer cancel()
	}

	start := time.Now()
	err := s.call(ctx, d)
	dur := time.Since(start)

	item := HistoryItem{Name: d.name, Started: start, Duration: dur}
	if err != nil {
		item.Error = err.Error()
		s.log.Error("scheduled run failed", logx.String("name", d.name), logx.Duration("dur", dur), logx.Err(err))
	} else {
		s.log.Debug("scheduled run finished", logx.String("name", d.name), logx.Duration("dur", dur))
	}
	s.appendHistory(item)
	eventbus.Emit(s.bus, eventbus.TypeTaskFinished, TaskEvent(item))
}

func (s *Service) call(ctx context.Context, d *scheduleDef) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return d.job(ctx)
}

func (s *Service) appendHistory(it HistoryItem) {
	s.hmu.Lock()
	s.history = append(s.history, it)
	if len(s.history) > s.histMax {
		s.history = s.history[len(s.history)-s.histMax:]
	}
	s.hmu.Unlock()
}
