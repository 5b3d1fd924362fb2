package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/HerbHall/uptimed/pkg/models"
)

// Runner executes one probe for a monitor and always returns a check.
type Runner interface {
	Run(ctx context.Context, m models.Monitor) models.Check
}

// Compile-time interface guard.
var _ Runner = (*Orchestrator)(nil)

// Orchestrator picks the probe strategy for a monitor and turns its outcome
// into a Check. Probe failures, including panics, become offline checks.
type Orchestrator struct {
	http       HTTPStrategy
	ping       HostProber
	validation models.ContentValidationConfig
	logger     *zap.Logger
	now        func() time.Time
}

// NewOrchestrator wires the HTTP and ping strategies together with the
// global content validation defaults.
func NewOrchestrator(httpProber HTTPStrategy, pingProber HostProber, validation models.ContentValidationConfig, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		http:       httpProber,
		ping:       pingProber,
		validation: validation,
		logger:     logger,
		now:        time.Now,
	}
}

// Run probes m once. The check starts as a warning and is overwritten by
// whatever the strategy reports.
func (o *Orchestrator) Run(ctx context.Context, m models.Monitor) (check models.Check) {
	check = models.Check{
		ID:        uuid.NewString(),
		MonitorID: m.ID,
		Status:    models.CheckStatusWarning,
	}
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("probe panicked",
				zap.String("monitor_id", m.ID),
				zap.Any("panic", r),
			)
			check.Status = models.CheckStatusOffline
			check.ResponseTime = nil
			check.StatusCode = nil
			msg := fmt.Sprintf("probe panicked: %v", r)
			check.ErrorMessage = &msg
		}
		check.CheckedAt = o.now().UTC()
		probesTotal.WithLabelValues(string(m.Type), string(check.Status)).Inc()
		probeDuration.WithLabelValues(string(m.Type)).Observe(time.Since(start).Seconds())
	}()

	out, err := o.probe(ctx, m)
	if err != nil {
		check.Status = models.CheckStatusOffline
		msg := err.Error()
		check.ErrorMessage = &msg
		return check
	}

	check.Status = out.Status
	check.ResponseTime = out.ResponseTime
	if out.Error != "" {
		msg := out.Error
		check.ErrorMessage = &msg
	}
	if out.StatusCode > 0 {
		code := out.StatusCode
		check.StatusCode = &code
	}
	return check
}

func (o *Orchestrator) probe(ctx context.Context, m models.Monitor) (Outcome, error) {
	timeout := m.TimeoutDuration()
	switch m.Type {
	case models.MonitorTypePing:
		return o.ping.Probe(ctx, m.URL, timeout)
	case models.MonitorTypeHTTP, models.MonitorTypeTCP:
		// tcp monitors are probed with the HTTP strategy.
		return o.http.Probe(ctx, HTTPTarget{
			URL:           m.URL,
			Timeout:       timeout,
			IgnoreHTTP403: m.IgnoreHTTP403,
			Validation:    o.validation.Resolve(&m),
		})
	}
	return Outcome{}, fmt.Errorf("unknown monitor type %q", m.Type)
}
