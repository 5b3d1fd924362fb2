package models

import (
	"errors"
	"fmt"
	"time"
)

// MonitorType selects the probe strategy for a monitor.
type MonitorType string

const (
	MonitorTypeHTTP MonitorType = "http"
	MonitorTypePing MonitorType = "ping"
	MonitorTypeTCP  MonitorType = "tcp"
)

// Valid reports whether t is a known monitor type.
func (t MonitorType) Valid() bool {
	switch t {
	case MonitorTypeHTTP, MonitorTypePing, MonitorTypeTCP:
		return true
	}
	return false
}

// MonitorStatus is the live state shown for a monitor.
type MonitorStatus string

const (
	MonitorStatusOnline  MonitorStatus = "online"
	MonitorStatusOffline MonitorStatus = "offline"
	MonitorStatusWarning MonitorStatus = "warning"
	MonitorStatusUnknown MonitorStatus = "unknown"
)

// MinInterval is the shortest accepted probe period.
const MinInterval = 1000

// ErrInvalidMonitor is wrapped by all Monitor.Validate failures.
var ErrInvalidMonitor = errors.New("invalid monitor")

// Monitor is a watched target. Interval and Timeout are in milliseconds.
type Monitor struct {
	ID       string      `json:"id" example:"2f1c7d9e-4b0a-4d1e-9a55-0c3f5f8e2b11"`
	Name     string      `json:"name" example:"Marketing site"`
	URL      string      `json:"url" example:"https://example.com"`
	Type     MonitorType `json:"type" example:"http"`
	Interval int64       `json:"interval" example:"60000"`
	Timeout  int64       `json:"timeout" example:"30000"`
	Active   bool        `json:"active" example:"true"`

	IgnoreHTTP403            bool  `json:"ignore_http_403"`
	ContentValidationEnabled *bool `json:"content_validation_enabled,omitempty"`
	MinContentLength         int   `json:"min_content_length,omitempty"`
	MinTextLength            int   `json:"min_text_length,omitempty"`

	Status       MonitorStatus `json:"status" example:"online"`
	LastCheck    *time.Time    `json:"last_check,omitempty"`
	ResponseTime *int64        `json:"response_time,omitempty" example:"120"`
	Uptime24h    float64       `json:"uptime_24h" example:"99.5"`
	Uptime7d     float64       `json:"uptime_7d" example:"99.9"`
	Uptime30d    float64       `json:"uptime_30d" example:"99.95"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks the configuration fields of a monitor.
func (m *Monitor) Validate() error {
	switch {
	case m.Name == "":
		return fmt.Errorf("%w: name is required", ErrInvalidMonitor)
	case m.URL == "":
		return fmt.Errorf("%w: url is required", ErrInvalidMonitor)
	case !m.Type.Valid():
		return fmt.Errorf("%w: unknown type %q", ErrInvalidMonitor, m.Type)
	case m.Interval < MinInterval:
		return fmt.Errorf("%w: interval %dms is below the %dms minimum", ErrInvalidMonitor, m.Interval, MinInterval)
	case m.Timeout <= 0:
		return fmt.Errorf("%w: timeout must be positive", ErrInvalidMonitor)
	}
	return nil
}

// IntervalDuration returns the probe period as a time.Duration.
func (m *Monitor) IntervalDuration() time.Duration {
	return time.Duration(m.Interval) * time.Millisecond
}

// TimeoutDuration returns the probe timeout as a time.Duration.
func (m *Monitor) TimeoutDuration() time.Duration {
	return time.Duration(m.Timeout) * time.Millisecond
}

// Clone returns a deep copy so callers never share pointer fields with the registry.
func (m *Monitor) Clone() Monitor {
	c := *m
	if m.ContentValidationEnabled != nil {
		v := *m.ContentValidationEnabled
		c.ContentValidationEnabled = &v
	}
	if m.LastCheck != nil {
		t := *m.LastCheck
		c.LastCheck = &t
	}
	if m.ResponseTime != nil {
		rt := *m.ResponseTime
		c.ResponseTime = &rt
	}
	return c
}

// ContentValidationConfig holds the global content validation defaults.
type ContentValidationConfig struct {
	Enabled          bool `mapstructure:"enabled" json:"enabled"`
	MinContentLength int  `mapstructure:"min_content_length" json:"min_content_length"`
	MinTextLength    int  `mapstructure:"min_text_length" json:"min_text_length"`
}

// Resolve applies the monitor's overrides on top of the global defaults.
func (c ContentValidationConfig) Resolve(m *Monitor) ContentValidationConfig {
	out := c
	if m.ContentValidationEnabled != nil {
		out.Enabled = *m.ContentValidationEnabled
	}
	if m.MinContentLength > 0 {
		out.MinContentLength = m.MinContentLength
	}
	if m.MinTextLength > 0 {
		out.MinTextLength = m.MinTextLength
	}
	return out
}
