package ws

import (
	"time"

	"github.com/HerbHall/uptimed/pkg/models"
)

// MessageType discriminates WebSocket messages.
type MessageType string

const (
	MessageCheckCompleted MessageType = "check.completed"
	MessageStatusChanged  MessageType = "monitor.status_changed"
)

// Message is the envelope for all WebSocket messages.
type Message struct {
	Type      MessageType `json:"type"`
	MonitorID string      `json:"monitor_id"`
	Timestamp time.Time   `json:"timestamp"`
	Data      any         `json:"data"`
}

// CheckCompletedData is the payload for check.completed messages.
type CheckCompletedData struct {
	Check     models.Check         `json:"check"`
	Status    models.MonitorStatus `json:"status"`
	Uptime24h float64              `json:"uptime_24h"`
}

// StatusChangedData is the payload for monitor.status_changed messages.
type StatusChangedData struct {
	Name     string               `json:"name"`
	Previous models.MonitorStatus `json:"previous"`
	Current  models.MonitorStatus `json:"current"`
}
