package monitor

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ProbeFunc is called by the scheduler each time a monitor is due.
type ProbeFunc func(monitorID string)

// Scheduler keeps one periodic timer per monitor. A newly scheduled monitor
// fires immediately, then once per interval. Each firing runs in its own
// goroutine, so a slow probe never delays the next tick.
type Scheduler struct {
	probe  ProbeFunc
	logger *zap.Logger

	mu       sync.Mutex
	jobs     map[string]*job
	inflight sync.WaitGroup
}

type job struct {
	interval time.Duration
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewScheduler creates a scheduler that dispatches due monitors to probe.
func NewScheduler(probe ProbeFunc, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		probe:  probe,
		logger: logger,
		jobs:   make(map[string]*job),
	}
}

// Schedule starts the timer for a monitor, replacing any existing one.
func (s *Scheduler) Schedule(monitorID string, interval time.Duration) {
	s.mu.Lock()
	old := s.jobs[monitorID]
	ctx, cancel := context.WithCancel(context.Background())
	j := &job{interval: interval, cancel: cancel, done: make(chan struct{})}
	s.jobs[monitorID] = j
	s.mu.Unlock()

	if old != nil {
		old.cancel()
		<-old.done
	}

	go s.loop(ctx, monitorID, j)
	scheduledGauge.Set(float64(s.Len()))
	s.logger.Debug("monitor scheduled",
		zap.String("monitor_id", monitorID),
		zap.Duration("interval", interval),
	)
}

// Unschedule stops the timer for a monitor. Probes already running are left
// to finish. It reports whether a timer existed.
func (s *Scheduler) Unschedule(monitorID string) bool {
	s.mu.Lock()
	j, ok := s.jobs[monitorID]
	delete(s.jobs, monitorID)
	s.mu.Unlock()

	if !ok {
		return false
	}
	j.cancel()
	<-j.done
	scheduledGauge.Set(float64(s.Len()))
	return true
}

// StopAll stops every timer.
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	jobs := s.jobs
	s.jobs = make(map[string]*job)
	s.mu.Unlock()

	for _, j := range jobs {
		j.cancel()
	}
	for _, j := range jobs {
		<-j.done
	}
	scheduledGauge.Set(0)
}

// Scheduled reports whether a monitor has a live timer.
func (s *Scheduler) Scheduled(monitorID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.jobs[monitorID]
	return ok
}

// Interval returns the period of a scheduled monitor.
func (s *Scheduler) Interval(monitorID string) (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[monitorID]
	if !ok {
		return 0, false
	}
	return j.interval, true
}

// Len returns the number of live timers.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Wait blocks until every dispatched probe has returned.
func (s *Scheduler) Wait() {
	s.inflight.Wait()
}

func (s *Scheduler) loop(ctx context.Context, monitorID string, j *job) {
	defer close(j.done)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	s.fire(monitorID)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			s.fire(monitorID)
		}
	}
}

func (s *Scheduler) fire(monitorID string) {
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		s.probe(monitorID)
	}()
}
