// Package webhook POSTs a JSON notification when a monitor changes status.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/HerbHall/uptimed/internal/config"
	"github.com/HerbHall/uptimed/internal/event"
	"github.com/HerbHall/uptimed/internal/monitor"
	"github.com/HerbHall/uptimed/internal/version"
	"github.com/HerbHall/uptimed/pkg/models"
)

// EventStatusChanged is the Event field of every payload.
const EventStatusChanged = "monitor.status_changed"

// Config holds the webhook configuration ("webhook" subtree).
type Config struct {
	Enabled bool          `mapstructure:"enabled"`
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// LoadConfig reads the webhook configuration. URL is required when enabled.
func LoadConfig(cfg config.Config) (Config, error) {
	out := Config{Timeout: 10 * time.Second}
	if cfg != nil {
		if err := cfg.Unmarshal(&out); err != nil {
			return Config{}, fmt.Errorf("unmarshal webhook config: %w", err)
		}
	}
	if out.Enabled && out.URL == "" {
		return Config{}, errors.New("webhook.url must be set when webhook is enabled")
	}
	if out.Timeout <= 0 {
		out.Timeout = 10 * time.Second
	}
	return out, nil
}

// Payload is the JSON body sent to the webhook URL.
type Payload struct {
	Event     string               `json:"event"`
	Timestamp string               `json:"timestamp"`
	MonitorID string               `json:"monitor_id"`
	Name      string               `json:"name"`
	URL       string               `json:"url"`
	Previous  models.MonitorStatus `json:"previous"`
	Current   models.MonitorStatus `json:"current"`
	Check     models.Check         `json:"check"`
}

// Notifier watches completed checks and delivers one webhook per status
// transition. The first check of a monitor only primes its state.
type Notifier struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger

	mu   sync.Mutex
	last map[string]models.MonitorStatus

	unsubscribe func()
}

// New creates a Notifier. Delivery is not retried.
func New(cfg Config, logger *zap.Logger) *Notifier {
	return &Notifier{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
		last:   make(map[string]models.MonitorStatus),
	}
}

// Attach subscribes the notifier to completed-check events on bus.
func (n *Notifier) Attach(bus event.Subscriber) {
	n.unsubscribe = bus.Subscribe(monitor.TopicCheckCompleted, n.handleEvent)
}

// Close detaches the notifier from the bus.
func (n *Notifier) Close() {
	if n.unsubscribe != nil {
		n.unsubscribe()
	}
}

func (n *Notifier) handleEvent(ctx context.Context, e event.Event) {
	ce, ok := e.Payload.(*monitor.CheckEvent)
	if !ok || !n.cfg.Enabled {
		return
	}

	current := ce.Monitor.Status
	n.mu.Lock()
	previous, seen := n.last[ce.Monitor.ID]
	n.last[ce.Monitor.ID] = current
	n.mu.Unlock()

	if !seen || previous == current {
		return
	}

	body, err := json.Marshal(Payload{
		Event:     EventStatusChanged,
		Timestamp: ce.Check.CheckedAt.UTC().Format(time.RFC3339),
		MonitorID: ce.Monitor.ID,
		Name:      ce.Monitor.Name,
		URL:       ce.Monitor.URL,
		Previous:  previous,
		Current:   current,
		Check:     ce.Check,
	})
	if err != nil {
		n.logger.Error("failed to marshal webhook payload",
			zap.String("monitor_id", ce.Monitor.ID),
			zap.Error(err),
		)
		return
	}

	n.send(ctx, body, ce.Monitor.ID)
}

func (n *Notifier) send(ctx context.Context, body []byte, monitorID string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.URL, bytes.NewReader(body))
	if err != nil {
		n.logger.Error("failed to create webhook request", zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "uptimed-webhook/"+version.Short())

	resp, err := n.client.Do(req)
	if err != nil {
		n.logger.Warn("webhook delivery failed",
			zap.String("url", n.cfg.URL),
			zap.String("monitor_id", monitorID),
			zap.Error(err),
		)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		n.logger.Warn("webhook endpoint returned error",
			zap.String("url", n.cfg.URL),
			zap.String("monitor_id", monitorID),
			zap.Int("status_code", resp.StatusCode),
		)
		return
	}

	n.logger.Debug("webhook delivered",
		zap.String("monitor_id", monitorID),
		zap.Int("status_code", resp.StatusCode),
	)
}
