package models

import "time"

// CheckStatus is the outcome of a single probe. Unlike MonitorStatus it has
// no "unknown" value.
type CheckStatus string

const (
	CheckStatusOnline  CheckStatus = "online"
	CheckStatusOffline CheckStatus = "offline"
	CheckStatusWarning CheckStatus = "warning"
)

// MonitorStatus converts a check status into the equivalent live status.
func (s CheckStatus) MonitorStatus() MonitorStatus {
	return MonitorStatus(s)
}

// Check is one immutable probe result. StatusCode is only set for HTTP
// probes that received a response.
type Check struct {
	ID           string      `json:"id" example:"7a6f0c2e-1d3b-4c5a-8e9f-0a1b2c3d4e5f"`
	MonitorID    string      `json:"monitor_id" example:"2f1c7d9e-4b0a-4d1e-9a55-0c3f5f8e2b11"`
	Status       CheckStatus `json:"status" example:"online"`
	ResponseTime *int64      `json:"response_time" example:"87"`
	ErrorMessage *string     `json:"error_message"`
	StatusCode   *int        `json:"status_code" example:"200"`
	CheckedAt    time.Time   `json:"checked_at"`
}

// Online reports whether the check counts toward uptime.
func (c *Check) Online() bool {
	return c.Status == CheckStatusOnline
}
