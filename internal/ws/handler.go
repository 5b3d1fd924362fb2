// Package ws streams check results to browser clients over WebSocket.
package ws

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/HerbHall/uptimed/internal/auth"
	"github.com/HerbHall/uptimed/internal/event"
	"github.com/HerbHall/uptimed/internal/monitor"
	"github.com/HerbHall/uptimed/pkg/models"
	"github.com/coder/websocket"
	"go.uber.org/zap"
)

// Handler provides the WebSocket endpoint for live check updates.
type Handler struct {
	hub    *Hub
	tokens auth.TokenValidator
	logger *zap.Logger

	mu       sync.Mutex
	statuses map[string]models.MonitorStatus

	unsubscribe func()
}

// Compile-time check that Handler implements the server interface.
var _ interface {
	RegisterRoutes(mux *http.ServeMux)
} = (*Handler)(nil)

// NewHandler creates a WebSocket handler and subscribes to check events.
// A nil tokens disables the ?token= check.
func NewHandler(tokens auth.TokenValidator, bus event.Subscriber, logger *zap.Logger) *Handler {
	h := &Handler{
		hub:      NewHub(logger),
		tokens:   tokens,
		logger:   logger,
		statuses: make(map[string]models.MonitorStatus),
	}
	if bus != nil {
		h.unsubscribe = bus.Subscribe(monitor.TopicCheckCompleted, h.handleCheckEvent)
	}
	return h
}

// RegisterRoutes registers WebSocket routes on the server mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/ws/checks", h.handleCheckStream)
}

// Close detaches the handler from the event bus.
func (h *Handler) Close() {
	if h.unsubscribe != nil {
		h.unsubscribe()
	}
}

// handleCheckStream upgrades the connection to WebSocket and streams check events.
func (h *Handler) handleCheckStream(w http.ResponseWriter, r *http.Request) {
	subject := "anonymous"
	if h.tokens != nil {
		// Browser WS API doesn't support headers.
		token := r.URL.Query().Get("token")
		if token == "" {
			http.Error(w, "missing token parameter", http.StatusUnauthorized)
			return
		}
		claims, err := h.tokens.Validate(token)
		if err != nil {
			http.Error(w, "invalid or expired token", http.StatusUnauthorized)
			return
		}
		subject = claims.Subject
	}

	// Long-lived stream: lift the server's read and write timeouts.
	rc := http.NewResponseController(w)
	_ = rc.SetReadDeadline(time.Time{})
	_ = rc.SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// Any origin; the token is the credential.
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.logger.Error("websocket accept failed", zap.Error(err))
		return
	}

	client := &Client{
		conn:    conn,
		subject: subject,
		send:    make(chan Message, 256),
		logger:  h.logger,
	}
	h.hub.Register(client)

	ctx := r.Context()
	done := make(chan struct{})
	go func() {
		client.writePump(ctx)
		close(done)
	}()

	// Blocks until the client goes away.
	client.readPump(ctx)

	h.hub.Unregister(client)
	conn.Close(websocket.StatusNormalClosure, "")
	<-done
}

func (h *Handler) handleCheckEvent(_ context.Context, e event.Event) {
	ce, ok := e.Payload.(*monitor.CheckEvent)
	if !ok {
		return
	}

	h.hub.Broadcast(Message{
		Type:      MessageCheckCompleted,
		MonitorID: ce.Monitor.ID,
		Timestamp: e.Timestamp,
		Data: CheckCompletedData{
			Check:     ce.Check,
			Status:    ce.Monitor.Status,
			Uptime24h: ce.Monitor.Uptime24h,
		},
	})

	h.mu.Lock()
	prev, seen := h.statuses[ce.Monitor.ID]
	h.statuses[ce.Monitor.ID] = ce.Monitor.Status
	h.mu.Unlock()

	if seen && prev != ce.Monitor.Status {
		h.hub.Broadcast(Message{
			Type:      MessageStatusChanged,
			MonitorID: ce.Monitor.ID,
			Timestamp: e.Timestamp,
			Data: StatusChangedData{
				Name:     ce.Monitor.Name,
				Previous: prev,
				Current:  ce.Monitor.Status,
			},
		})
	}
}
