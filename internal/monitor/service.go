// Package monitor runs the uptime probes: it keeps the registry of monitors,
// schedules their probes, records check history and derives live status and
// uptime from it.
package monitor

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/HerbHall/uptimed/pkg/models"
)

var (
	ErrMonitorNotFound = errors.New("monitor not found")
	ErrMonitorExists   = errors.New("monitor already exists")
	// ErrCheckCanceled is returned by TriggerCheck when the caller's context
	// ends before the probe does. The partial result is discarded.
	ErrCheckCanceled = errors.New("check canceled")
)

// Repository persists checks and serves them back for warm start.
type Repository interface {
	CreateCheck(ctx context.Context, check *models.Check) error
	GetRecentChecks(ctx context.Context, monitorID string, limit int) ([]models.Check, error)
}

// MonitorSource lists the monitors to load at startup.
type MonitorSource interface {
	ListMonitors(ctx context.Context) ([]models.Monitor, error)
}

// MonitorWriter persists monitor configuration changes.
type MonitorWriter interface {
	SaveMonitor(ctx context.Context, m *models.Monitor) error
	DeleteMonitor(ctx context.Context, id string) error
}

// CheckPruner deletes persisted checks older than a cutoff.
type CheckPruner interface {
	DeleteChecksBefore(ctx context.Context, before time.Time) (int64, error)
}

// Option configures a Service.
type Option func(*Service)

func WithRepository(r Repository) Option { return func(s *Service) { s.repo = r } }

func WithMonitorSource(src MonitorSource) Option { return func(s *Service) { s.source = src } }

func WithMonitorWriter(w MonitorWriter) Option { return func(s *Service) { s.writer = w } }

// WithObserver adds an observer. Observers run in the probe goroutine in
// registration order, and see checks in the order they were recorded.
func WithObserver(o CheckObserver) Option {
	return func(s *Service) { s.observers = append(s.observers, o) }
}

// WithClock overrides time.Now for uptime and retention calculations.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// Service owns the monitor registry, the probe timers and check history.
type Service struct {
	cfg       Config
	runner    Runner
	logger    *zap.Logger
	repo      Repository
	source    MonitorSource
	writer    MonitorWriter
	observers []CheckObserver
	now       func() time.Time

	history   *History
	scheduler *Scheduler

	mu       sync.RWMutex
	monitors map[string]*models.Monitor
	// configMu serializes configuration changes so the writer call can run
	// without holding mu.
	configMu sync.Mutex
	// pending holds recorded checks not yet handed to observers. It is
	// guarded by mu and drained under notifyMu so observers see checks in
	// record order.
	pending  []notification
	notifyMu sync.Mutex
	running  bool
	probeCtx context.Context

	maintCancel context.CancelFunc
	maintWG     sync.WaitGroup
	persistWG   sync.WaitGroup
}

// NewService creates a stopped service with an empty registry.
func NewService(cfg Config, runner Runner, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		cfg:      cfg,
		runner:   runner,
		logger:   logger,
		now:      time.Now,
		history:  NewHistory(),
		monitors: make(map[string]*models.Monitor),
		probeCtx: context.Background(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.scheduler = NewScheduler(s.runScheduled, logger.Named("scheduler"))
	return s
}

// Load registers every monitor from the configured source and warms its
// history from the repository. Invalid monitors are skipped with a warning.
func (s *Service) Load(ctx context.Context) error {
	if s.source == nil {
		return nil
	}
	list, err := s.source.ListMonitors(ctx)
	if err != nil {
		return fmt.Errorf("list monitors: %w", err)
	}

	loaded := make([]models.Monitor, 0, len(list))
	for i := range list {
		m := list[i].Clone()
		if m.Timeout <= 0 {
			m.Timeout = s.cfg.DefaultTimeout.Milliseconds()
		}
		if err := s.validate(&m); err != nil {
			s.logger.Warn("skipping invalid monitor", zap.String("monitor_id", m.ID), zap.Error(err))
			continue
		}
		if s.exists(m.ID) {
			continue
		}
		if s.repo != nil {
			checks, err := s.repo.GetRecentChecks(ctx, m.ID, s.cfg.HistoryWarmLimit)
			if err != nil {
				s.logger.Warn("failed to warm check history", zap.String("monitor_id", m.ID), zap.Error(err))
			} else {
				s.history.Load(m.ID, checks)
			}
		}
		loaded = append(loaded, m)
	}

	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range loaded {
		m := loaded[i]
		if _, exists := s.monitors[m.ID]; exists {
			continue
		}
		s.refreshFromHistory(&m, now)
		s.monitors[m.ID] = &m
		if s.running && m.Active {
			s.scheduler.Schedule(m.ID, m.IntervalDuration())
		}
	}
	s.logger.Info("monitors loaded", zap.Int("count", len(loaded)))
	return nil
}

// Start schedules every active monitor and the retention sweep. Probes run
// under ctx; cancelling it aborts in-flight probes.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.probeCtx = ctx
	active := 0
	for id, m := range s.monitors {
		if m.Active {
			s.scheduler.Schedule(id, m.IntervalDuration())
			active++
		}
	}
	total := len(s.monitors)
	s.mu.Unlock()

	s.startMaintenance(ctx)
	s.logger.Info("monitor service started",
		zap.Int("monitors", total),
		zap.Int("active", active),
	)
	return nil
}

// Stop clears every probe timer and the retention sweep. In-flight probes
// finish on their own; use Wait to block on them.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	s.scheduler.StopAll()
	s.stopMaintenance()
	s.logger.Info("monitor service stopped")
}

// Wait blocks until in-flight probes and pending persistence writes return.
func (s *Service) Wait() {
	s.scheduler.Wait()
	s.persistWG.Wait()
}

// Running reports whether Start has been called without a matching Stop.
func (s *Service) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// AddMonitor validates and registers a new monitor. An empty ID is filled
// with a UUID and a zero timeout with the configured default.
func (s *Service) AddMonitor(ctx context.Context, m models.Monitor) (models.Monitor, error) {
	m = m.Clone()
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Timeout <= 0 {
		m.Timeout = s.cfg.DefaultTimeout.Milliseconds()
	}
	if err := s.validate(&m); err != nil {
		return models.Monitor{}, err
	}

	now := s.now().UTC()
	m.Status = models.MonitorStatusUnknown
	m.LastCheck = nil
	m.ResponseTime = nil
	m.Uptime24h, m.Uptime7d, m.Uptime30d = 0, 0, 0
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now

	s.configMu.Lock()
	defer s.configMu.Unlock()
	if s.exists(m.ID) {
		return models.Monitor{}, fmt.Errorf("%w: %s", ErrMonitorExists, m.ID)
	}
	if s.writer != nil {
		if err := s.writer.SaveMonitor(ctx, &m); err != nil {
			return models.Monitor{}, fmt.Errorf("save monitor: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.monitors[m.ID]; exists {
		return models.Monitor{}, fmt.Errorf("%w: %s", ErrMonitorExists, m.ID)
	}
	s.monitors[m.ID] = &m
	if s.running && m.Active {
		s.scheduler.Schedule(m.ID, m.IntervalDuration())
	}
	s.logger.Info("monitor added", zap.String("monitor_id", m.ID), zap.String("url", m.URL))
	return m.Clone(), nil
}

// UpdateMonitor applies a partial update. A change to interval, active, url,
// type or timeout restarts the monitor's timer, which probes immediately.
func (s *Service) UpdateMonitor(ctx context.Context, id string, u MonitorUpdate) (models.Monitor, error) {
	s.configMu.Lock()
	defer s.configMu.Unlock()

	s.mu.RLock()
	cur, ok := s.monitors[id]
	var next models.Monitor
	if ok {
		next = cur.Clone()
	}
	s.mu.RUnlock()
	if !ok {
		return models.Monitor{}, ErrMonitorNotFound
	}

	restart := u.apply(&next)
	if err := s.validate(&next); err != nil {
		return models.Monitor{}, err
	}
	next.UpdatedAt = s.now().UTC()

	if s.writer != nil {
		if err := s.writer.SaveMonitor(ctx, &next); err != nil {
			return models.Monitor{}, fmt.Errorf("save monitor: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok = s.monitors[id]
	if !ok {
		return models.Monitor{}, ErrMonitorNotFound
	}
	// Runtime fields may have moved on while the writer ran.
	next.Status = cur.Status
	next.LastCheck = cur.LastCheck
	next.ResponseTime = cur.ResponseTime
	next.Uptime24h, next.Uptime7d, next.Uptime30d = cur.Uptime24h, cur.Uptime7d, cur.Uptime30d
	*cur = next

	if s.running && restart {
		if next.Active {
			s.scheduler.Schedule(id, next.IntervalDuration())
		} else {
			s.scheduler.Unschedule(id)
		}
	}
	return s.present(cur, s.now()), nil
}

// RemoveMonitor stops and forgets a monitor along with its history. Results
// of probes still in flight are discarded when they return.
func (s *Service) RemoveMonitor(ctx context.Context, id string) error {
	s.configMu.Lock()
	defer s.configMu.Unlock()

	if !s.exists(id) {
		return ErrMonitorNotFound
	}
	if s.writer != nil {
		if err := s.writer.DeleteMonitor(ctx, id); err != nil {
			return fmt.Errorf("delete monitor: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.monitors, id)
	s.scheduler.Unschedule(id)
	s.history.Remove(id)
	s.logger.Info("monitor removed", zap.String("monitor_id", id))
	return nil
}

// Monitors returns snapshots of every monitor ordered by creation time.
func (s *Service) Monitors() []models.Monitor {
	now := s.now()
	s.mu.RLock()
	out := make([]models.Monitor, 0, len(s.monitors))
	for _, m := range s.monitors {
		out = append(out, s.present(m, now))
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b models.Monitor) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), strings.Compare(a.ID, b.ID))
	})
	return out
}

// Monitor returns a snapshot of one monitor.
func (s *Service) Monitor(id string) (models.Monitor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.monitors[id]
	if !ok {
		return models.Monitor{}, ErrMonitorNotFound
	}
	return s.present(m, s.now()), nil
}

// MonitorChecks returns up to limit recent checks of a monitor, newest first.
func (s *Service) MonitorChecks(id string, limit int) ([]models.Check, error) {
	if !s.exists(id) {
		return nil, ErrMonitorNotFound
	}
	return s.history.Recent(id, limit), nil
}

// CalculateUptime returns the online percentage of a monitor's checks inside
// window, or 0 when the window has no checks.
func (s *Service) CalculateUptime(id string, window time.Duration) (float64, error) {
	if !s.exists(id) {
		return 0, ErrMonitorNotFound
	}
	return s.history.Uptime(id, window, s.now()), nil
}

// TriggerCheck probes a monitor now, outside its schedule, and records the
// result like any scheduled check.
func (s *Service) TriggerCheck(ctx context.Context, id string) (models.Check, error) {
	s.mu.RLock()
	m, ok := s.monitors[id]
	var snap models.Monitor
	if ok {
		snap = m.Clone()
	}
	s.mu.RUnlock()
	if !ok {
		return models.Check{}, ErrMonitorNotFound
	}

	check := s.runner.Run(ctx, snap)
	if err := ctx.Err(); err != nil {
		s.logger.Debug("discarding check from canceled probe",
			zap.String("monitor_id", id),
			zap.Error(err),
		)
		return models.Check{}, fmt.Errorf("%w: %w", ErrCheckCanceled, err)
	}
	s.record(check)
	return check, nil
}

// validate applies Monitor.Validate plus the configured minimum interval.
func (s *Service) validate(m *models.Monitor) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if floor := s.cfg.MinInterval.Milliseconds(); m.Interval < floor {
		return fmt.Errorf("%w: interval %dms is below the configured %dms minimum", models.ErrInvalidMonitor, m.Interval, floor)
	}
	return nil
}

func (s *Service) exists(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.monitors[id]
	return ok
}

func (s *Service) runScheduled(id string) {
	s.mu.RLock()
	m, ok := s.monitors[id]
	var snap models.Monitor
	if ok {
		snap = m.Clone()
	}
	ctx := s.probeCtx
	s.mu.RUnlock()
	if !ok {
		return
	}

	check := s.runner.Run(ctx, snap)
	if err := ctx.Err(); err != nil {
		s.logger.Debug("discarding check from canceled probe",
			zap.String("monitor_id", id),
			zap.Error(err),
		)
		return
	}
	s.record(check)
}

// record applies a finished check. Checks for monitors that were removed
// while the probe ran are dropped.
func (s *Service) record(check models.Check) {
	s.mu.Lock()
	m, ok := s.monitors[check.MonitorID]
	if !ok {
		s.mu.Unlock()
		s.logger.Debug("dropping check for removed monitor", zap.String("monitor_id", check.MonitorID))
		return
	}
	s.history.Append(check)
	m.Status = check.Status.MonitorStatus()
	checkedAt := check.CheckedAt
	m.LastCheck = &checkedAt
	m.ResponseTime = copyInt64(check.ResponseTime)
	s.refreshUptime(m, s.now())
	if len(s.observers) > 0 {
		s.pending = append(s.pending, notification{monitor: m.Clone(), check: check})
	}
	s.mu.Unlock()

	s.persist(check)
	s.notify()
}

type notification struct {
	monitor models.Monitor
	check   models.Check
}

func (s *Service) notify() {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	batch := s.pending
	s.pending = nil
	s.mu.Unlock()

	for _, n := range batch {
		for _, o := range s.observers {
			o.OnCheckCompleted(n.monitor, n.check)
		}
	}
}

func (s *Service) persist(check models.Check) {
	if s.repo == nil {
		return
	}
	s.persistWG.Add(1)
	go func() {
		defer s.persistWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.PersistTimeout)
		defer cancel()
		if err := s.repo.CreateCheck(ctx, &check); err != nil {
			s.logger.Warn("failed to persist check",
				zap.String("monitor_id", check.MonitorID),
				zap.String("check_id", check.ID),
				zap.Error(err),
			)
		}
	}()
}

func (s *Service) refreshUptime(m *models.Monitor, now time.Time) {
	m.Uptime24h = s.history.Uptime(m.ID, Window24h, now)
	m.Uptime7d = s.history.Uptime(m.ID, Window7d, now)
	m.Uptime30d = s.history.Uptime(m.ID, Window30d, now)
}

// refreshFromHistory derives every runtime field of m from its history.
func (s *Service) refreshFromHistory(m *models.Monitor, now time.Time) {
	s.refreshUptime(m, now)
	c, ok := s.history.Latest(m.ID, now.Add(-Window24h))
	if !ok {
		m.Status = models.MonitorStatusUnknown
		return
	}
	m.Status = c.Status.MonitorStatus()
	checkedAt := c.CheckedAt
	m.LastCheck = &checkedAt
	m.ResponseTime = copyInt64(c.ResponseTime)
}

// present returns a caller-owned copy of m. A monitor whose last check is
// older than 24 hours reads as unknown.
func (s *Service) present(m *models.Monitor, now time.Time) models.Monitor {
	out := m.Clone()
	if out.LastCheck == nil || out.LastCheck.Before(now.Add(-Window24h)) {
		out.Status = models.MonitorStatusUnknown
	}
	return out
}

func copyInt64(p *int64) *int64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// MonitorUpdate is a partial update; nil fields are left unchanged.
type MonitorUpdate struct {
	Name                     *string             `json:"name,omitempty"`
	URL                      *string             `json:"url,omitempty"`
	Type                     *models.MonitorType `json:"type,omitempty"`
	Interval                 *int64              `json:"interval,omitempty"`
	Timeout                  *int64              `json:"timeout,omitempty"`
	Active                   *bool               `json:"active,omitempty"`
	IgnoreHTTP403            *bool               `json:"ignore_http_403,omitempty"`
	ContentValidationEnabled *bool               `json:"content_validation_enabled,omitempty"`
	MinContentLength         *int                `json:"min_content_length,omitempty"`
	MinTextLength            *int                `json:"min_text_length,omitempty"`
}

// apply writes the set fields onto m and reports whether the probe timer
// has to restart.
func (u MonitorUpdate) apply(m *models.Monitor) (restart bool) {
	if u.Name != nil {
		m.Name = *u.Name
	}
	if u.URL != nil && *u.URL != m.URL {
		m.URL = *u.URL
		restart = true
	}
	if u.Type != nil && *u.Type != m.Type {
		m.Type = *u.Type
		restart = true
	}
	if u.Interval != nil && *u.Interval != m.Interval {
		m.Interval = *u.Interval
		restart = true
	}
	if u.Timeout != nil && *u.Timeout != m.Timeout {
		m.Timeout = *u.Timeout
		restart = true
	}
	if u.Active != nil && *u.Active != m.Active {
		m.Active = *u.Active
		restart = true
	}
	if u.IgnoreHTTP403 != nil {
		m.IgnoreHTTP403 = *u.IgnoreHTTP403
	}
	if u.ContentValidationEnabled != nil {
		v := *u.ContentValidationEnabled
		m.ContentValidationEnabled = &v
	}
	if u.MinContentLength != nil {
		m.MinContentLength = *u.MinContentLength
	}
	if u.MinTextLength != nil {
		m.MinTextLength = *u.MinTextLength
	}
	return restart
}
