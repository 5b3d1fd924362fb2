package monitor

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/HerbHall/uptimed/pkg/models"
)

// Handler exposes the monitor service over HTTP.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// RegisterRoutes mounts the monitor API on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/monitors", h.handleListMonitors)
	mux.HandleFunc("POST /api/v1/monitors", h.handleCreateMonitor)
	mux.HandleFunc("GET /api/v1/monitors/{id}", h.handleGetMonitor)
	mux.HandleFunc("PATCH /api/v1/monitors/{id}", h.handleUpdateMonitor)
	mux.HandleFunc("DELETE /api/v1/monitors/{id}", h.handleDeleteMonitor)
	mux.HandleFunc("GET /api/v1/monitors/{id}/checks", h.handleMonitorChecks)
	mux.HandleFunc("POST /api/v1/monitors/{id}/check", h.handleTriggerCheck)
	mux.HandleFunc("GET /api/v1/monitors/{id}/uptime", h.handleMonitorUptime)
}

// handleListMonitors returns every monitor with its live status.
//
//	@Summary		List monitors
//	@Tags			monitors
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200 {array} models.Monitor
//	@Router			/monitors [get]
func (h *Handler) handleListMonitors(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Monitors())
}

// handleGetMonitor returns one monitor.
//
//	@Summary		Get monitor
//	@Tags			monitors
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id path string true "Monitor ID"
//	@Success		200 {object} models.Monitor
//	@Failure		404 {object} map[string]any
//	@Router			/monitors/{id} [get]
func (h *Handler) handleGetMonitor(w http.ResponseWriter, r *http.Request) {
	m, err := h.svc.Monitor(r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, err, "failed to get monitor")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// handleCreateMonitor registers a monitor from a JSON body.
//
//	@Summary		Create monitor
//	@Tags			monitors
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			monitor body models.Monitor true "Monitor configuration"
//	@Success		201 {object} models.Monitor
//	@Failure		400 {object} map[string]any
//	@Failure		409 {object} map[string]any
//	@Router			/monitors [post]
func (h *Handler) handleCreateMonitor(w http.ResponseWriter, r *http.Request) {
	var m models.Monitor
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&m); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	created, err := h.svc.AddMonitor(r.Context(), m)
	if err != nil {
		h.writeServiceError(w, err, "failed to create monitor")
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// handleUpdateMonitor applies a partial update.
//
//	@Summary		Update monitor
//	@Tags			monitors
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id path string true "Monitor ID"
//	@Param			update body MonitorUpdate true "Fields to change"
//	@Success		200 {object} models.Monitor
//	@Failure		400 {object} map[string]any
//	@Failure		404 {object} map[string]any
//	@Router			/monitors/{id} [patch]
func (h *Handler) handleUpdateMonitor(w http.ResponseWriter, r *http.Request) {
	var u MonitorUpdate
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&u); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	m, err := h.svc.UpdateMonitor(r.Context(), r.PathValue("id"), u)
	if err != nil {
		h.writeServiceError(w, err, "failed to update monitor")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// handleDeleteMonitor removes a monitor and its history.
//
//	@Summary		Delete monitor
//	@Tags			monitors
//	@Security		BearerAuth
//	@Param			id path string true "Monitor ID"
//	@Success		204
//	@Failure		404 {object} map[string]any
//	@Router			/monitors/{id} [delete]
func (h *Handler) handleDeleteMonitor(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.RemoveMonitor(r.Context(), r.PathValue("id")); err != nil {
		h.writeServiceError(w, err, "failed to delete monitor")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleMonitorChecks returns recent checks, newest first.
//
//	@Summary		Monitor checks
//	@Tags			monitors
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id path string true "Monitor ID"
//	@Param			limit query int false "Maximum results" default(100)
//	@Success		200 {array} models.Check
//	@Failure		404 {object} map[string]any
//	@Router			/monitors/{id}/checks [get]
func (h *Handler) handleMonitorChecks(w http.ResponseWriter, r *http.Request) {
	checks, err := h.svc.MonitorChecks(r.PathValue("id"), parseLimit(r, 100))
	if err != nil {
		h.writeServiceError(w, err, "failed to list checks")
		return
	}
	writeJSON(w, http.StatusOK, checks)
}

// handleTriggerCheck probes a monitor immediately.
//
//	@Summary		Run check now
//	@Tags			monitors
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id path string true "Monitor ID"
//	@Success		200 {object} models.Check
//	@Failure		404 {object} map[string]any
//	@Failure		503 {object} map[string]any
//	@Router			/monitors/{id}/check [post]
func (h *Handler) handleTriggerCheck(w http.ResponseWriter, r *http.Request) {
	check, err := h.svc.TriggerCheck(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, err, "failed to run check")
		return
	}
	writeJSON(w, http.StatusOK, check)
}

// UptimeResponse is returned by the uptime endpoint.
type UptimeResponse struct {
	MonitorID string  `json:"monitor_id"`
	Hours     float64 `json:"hours"`
	Uptime    float64 `json:"uptime"`
}

// handleMonitorUptime returns the uptime over a custom window.
//
//	@Summary		Monitor uptime
//	@Tags			monitors
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id path string true "Monitor ID"
//	@Param			hours query number false "Window in hours" default(24)
//	@Success		200 {object} UptimeResponse
//	@Failure		400 {object} map[string]any
//	@Failure		404 {object} map[string]any
//	@Router			/monitors/{id}/uptime [get]
func (h *Handler) handleMonitorUptime(w http.ResponseWriter, r *http.Request) {
	hours := 24.0
	if s := r.URL.Query().Get("hours"); s != "" {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil || v <= 0 || v > 24*365 {
			writeError(w, http.StatusBadRequest, "hours must be a positive number up to 8760")
			return
		}
		hours = v
	}
	id := r.PathValue("id")
	uptime, err := h.svc.CalculateUptime(id, time.Duration(hours*float64(time.Hour)))
	if err != nil {
		h.writeServiceError(w, err, "failed to calculate uptime")
		return
	}
	writeJSON(w, http.StatusOK, UptimeResponse{MonitorID: id, Hours: hours, Uptime: uptime})
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, ErrMonitorNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrCheckCanceled):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, ErrMonitorExists):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, models.ErrInvalidMonitor):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Warn(fallback, zap.Error(err))
		writeError(w, http.StatusInternalServerError, fallback)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"type":   "https://uptimed.dev/problems/" + http.StatusText(status),
		"title":  http.StatusText(status),
		"status": status,
		"detail": detail,
	})
}

func parseLimit(r *http.Request, defaultLimit int) int {
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 && n <= 1000 {
			return n
		}
	}
	return defaultLimit
}
