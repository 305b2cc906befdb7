// Package scheduler fires the reminder job once per day at a configured
// local time. Start and Stop are idempotent and safe to drive from HTTP
// handlers; a panicking tick never takes the loop down.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type Scheduler struct {
	hour   int
	minute int
	loc    *time.Location
	tickFn func(context.Context)

	running atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	// nowFn exists so tests can compress the wait to the next fire.
	nowFn func() time.Time
}

// New builds a scheduler that calls tickFn daily at fireAt ("HH:MM",
// 24-hour clock) in the given location.
func New(fireAt string, loc *time.Location, tickFn func(context.Context)) (*Scheduler, error) {
	if tickFn == nil {
		return nil, errors.New("tickFn must not be nil")
	}
	if loc == nil {
		loc = time.Local
	}
	hour, minute, err := parseFireAt(fireAt)
	if err != nil {
		return nil, err
	}
	return &Scheduler{
		hour:   hour,
		minute: minute,
		loc:    loc,
		tickFn: tickFn,
		done:   make(chan struct{}),
		nowFn:  time.Now,
	}, nil
}

func parseFireAt(v string) (int, int, error) {
	parts := strings.Split(v, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("fire time %q is not HH:MM", v)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("fire time %q has an invalid hour", v)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("fire time %q has an invalid minute", v)
	}
	return hour, minute, nil
}

func (s *Scheduler) Start() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running.Store(true)

	go func() {
		defer close(s.done)

		slog.Info("scheduler started",
			"fire_at", fmt.Sprintf("%02d:%02d", s.hour, s.minute),
			"timezone", s.loc.String(),
		)

		for {
			wait := s.untilNextFire()
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				slog.Info("scheduler stopping")
				return
			case <-timer.C:
				s.safeTick(ctx)
			}
		}
	}()

	return true
}

func (s *Scheduler) Stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running.Load() {
		return false
	}

	s.cancel()
	<-s.done
	s.running.Store(false)

	slog.Info("scheduler stopped")
	return true
}

func (s *Scheduler) IsRunning() bool {
	return s.running.Load()
}

// NextFire reports when the next daily run would start, in the scheduler's
// timezone. Valid whether or not the scheduler is running.
func (s *Scheduler) NextFire() time.Time {
	now := s.nowFn().In(s.loc)
	next := time.Date(now.Year(), now.Month(), now.Day(), s.hour, s.minute, 0, 0, s.loc)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func (s *Scheduler) untilNextFire() time.Duration {
	return s.NextFire().Sub(s.nowFn().In(s.loc))
}

func (s *Scheduler) safeTick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("scheduler tick panic recovered", "panic", r)
		}
	}()

	start := time.Now()
	s.tickFn(ctx)
	slog.Info("scheduler tick completed", "duration_ms", time.Since(start).Milliseconds())
}
