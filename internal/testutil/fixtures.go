// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"time"

	"github.com/google/uuid"

	"github.com/HerbHall/uptimed/pkg/models"
)

// NewMonitor returns an active HTTP Monitor with sensible defaults, suitable
// for test fixtures. The long interval keeps schedulers from re-firing
// during a test.
func NewMonitor(opts ...func(*models.Monitor)) models.Monitor {
	now := time.Now().UTC().Truncate(time.Millisecond)
	m := models.Monitor{
		ID:        uuid.New().String(),
		Name:      "test-monitor",
		URL:       "https://example.com",
		Type:      models.MonitorTypeHTTP,
		Interval:  int64(time.Hour / time.Millisecond),
		Timeout:   5000,
		Active:    true,
		Status:    models.MonitorStatusUnknown,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

// WithName sets the monitor name.
func WithName(name string) func(*models.Monitor) {
	return func(m *models.Monitor) { m.Name = name }
}

// WithURL sets the monitor target and type.
func WithURL(t models.MonitorType, url string) func(*models.Monitor) {
	return func(m *models.Monitor) {
		m.Type = t
		m.URL = url
	}
}

// WithInterval sets the probe period.
func WithInterval(d time.Duration) func(*models.Monitor) {
	return func(m *models.Monitor) { m.Interval = d.Milliseconds() }
}

// Inactive marks the monitor as paused.
func Inactive() func(*models.Monitor) {
	return func(m *models.Monitor) { m.Active = false }
}

// WithContentValidation sets per-monitor content validation overrides.
func WithContentValidation(enabled bool, minContent, minText int) func(*models.Monitor) {
	return func(m *models.Monitor) {
		m.ContentValidationEnabled = &enabled
		m.MinContentLength = minContent
		m.MinTextLength = minText
	}
}

// NewCheck returns an online Check for monitorID with a 42ms response time.
func NewCheck(monitorID string, opts ...func(*models.Check)) models.Check {
	rt := int64(42)
	c := models.Check{
		ID:           uuid.New().String(),
		MonitorID:    monitorID,
		Status:       models.CheckStatusOnline,
		ResponseTime: &rt,
		CheckedAt:    time.Now().UTC().Truncate(time.Millisecond),
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// WithCheckStatus sets the check outcome.
func WithCheckStatus(s models.CheckStatus) func(*models.Check) {
	return func(c *models.Check) { c.Status = s }
}

// WithCheckedAt sets the check timestamp.
func WithCheckedAt(t time.Time) func(*models.Check) {
	return func(c *models.Check) { c.CheckedAt = t.UTC() }
}

// WithError sets the error message and clears the response time, as a
// failed probe would.
func WithError(msg string) func(*models.Check) {
	return func(c *models.Check) {
		c.ErrorMessage = &msg
		c.ResponseTime = nil
	}
}

// WithStatusCode sets the HTTP status code.
func WithStatusCode(code int) func(*models.Check) {
	return func(c *models.Check) { c.StatusCode = &code }
}
