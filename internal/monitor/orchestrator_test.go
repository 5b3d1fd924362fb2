package monitor

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/HerbHall/uptimed/pkg/models"
)

type fakeHTTP struct {
	out    Outcome
	err    error
	panic  any
	target HTTPTarget
	calls  int
}

func (f *fakeHTTP) Probe(_ context.Context, target HTTPTarget) (Outcome, error) {
	f.calls++
	f.target = target
	if f.panic != nil {
		panic(f.panic)
	}
	return f.out, f.err
}

func testMonitor(typ models.MonitorType) models.Monitor {
	return models.Monitor{
		ID:       "mon-1",
		Name:     "site",
		URL:      "https://example.com",
		Type:     typ,
		Interval: 60000,
		Timeout:  5000,
		Active:   true,
	}
}

func TestOrchestrator_RoutesByType(t *testing.T) {
	tests := []struct {
		typ          models.MonitorType
		wantHTTP     int
		wantPingCall int32
	}{
		{models.MonitorTypeHTTP, 1, 0},
		{models.MonitorTypeTCP, 1, 0},
		{models.MonitorTypePing, 0, 1},
	}

	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			h := &fakeHTTP{out: online(10 * time.Millisecond)}
			p := reachable(3)
			o := NewOrchestrator(h, p, models.ContentValidationConfig{}, zap.NewNop())

			check := o.Run(context.Background(), testMonitor(tt.typ))
			if check.Status != models.CheckStatusOnline {
				t.Errorf("Status = %q, want online", check.Status)
			}
			if h.calls != tt.wantHTTP {
				t.Errorf("http calls = %d, want %d", h.calls, tt.wantHTTP)
			}
			if p.calls.Load() != tt.wantPingCall {
				t.Errorf("ping calls = %d, want %d", p.calls.Load(), tt.wantPingCall)
			}
		})
	}
}

func TestOrchestrator_BuildsCheck(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	out := online(87 * time.Millisecond)
	out.StatusCode = 200

	o := NewOrchestrator(&fakeHTTP{out: out}, nil, models.ContentValidationConfig{}, zap.NewNop())
	o.now = func() time.Time { return fixed }

	check := o.Run(context.Background(), testMonitor(models.MonitorTypeHTTP))
	if check.ID == "" {
		t.Error("ID is empty")
	}
	if check.MonitorID != "mon-1" {
		t.Errorf("MonitorID = %q, want mon-1", check.MonitorID)
	}
	if check.ResponseTime == nil || *check.ResponseTime != 87 {
		t.Errorf("ResponseTime = %v, want 87", check.ResponseTime)
	}
	if check.StatusCode == nil || *check.StatusCode != 200 {
		t.Errorf("StatusCode = %v, want 200", check.StatusCode)
	}
	if check.ErrorMessage != nil {
		t.Errorf("ErrorMessage = %q, want nil", *check.ErrorMessage)
	}
	if !check.CheckedAt.Equal(fixed) {
		t.Errorf("CheckedAt = %v, want %v", check.CheckedAt, fixed)
	}
}

func TestOrchestrator_NoStatusCodeWithoutResponse(t *testing.T) {
	o := NewOrchestrator(&fakeHTTP{out: offline("connection refused")}, nil, models.ContentValidationConfig{}, zap.NewNop())

	check := o.Run(context.Background(), testMonitor(models.MonitorTypeHTTP))
	if check.StatusCode != nil {
		t.Errorf("StatusCode = %d, want nil", *check.StatusCode)
	}
	if check.ErrorMessage == nil || *check.ErrorMessage != "connection refused" {
		t.Errorf("ErrorMessage = %v, want connection refused", check.ErrorMessage)
	}
}

func TestOrchestrator_ErrorsBecomeOffline(t *testing.T) {
	o := NewOrchestrator(&fakeHTTP{err: errors.New("invalid url")}, nil, models.ContentValidationConfig{}, zap.NewNop())

	check := o.Run(context.Background(), testMonitor(models.MonitorTypeHTTP))
	if check.Status != models.CheckStatusOffline {
		t.Errorf("Status = %q, want offline", check.Status)
	}
	if check.ErrorMessage == nil || *check.ErrorMessage != "invalid url" {
		t.Errorf("ErrorMessage = %v, want invalid url", check.ErrorMessage)
	}
}

func TestOrchestrator_PanicBecomesOffline(t *testing.T) {
	o := NewOrchestrator(&fakeHTTP{panic: "nil map"}, nil, models.ContentValidationConfig{}, zap.NewNop())

	check := o.Run(context.Background(), testMonitor(models.MonitorTypeHTTP))
	if check.Status != models.CheckStatusOffline {
		t.Errorf("Status = %q, want offline", check.Status)
	}
	if check.ErrorMessage == nil || !strings.Contains(*check.ErrorMessage, "nil map") {
		t.Errorf("ErrorMessage = %v, want panic value", check.ErrorMessage)
	}
	if check.CheckedAt.IsZero() {
		t.Error("CheckedAt is zero")
	}
}

func TestOrchestrator_ResolvesContentValidation(t *testing.T) {
	global := models.ContentValidationConfig{Enabled: false, MinContentLength: 100, MinTextLength: 20}
	h := &fakeHTTP{out: online(time.Millisecond)}
	o := NewOrchestrator(h, nil, global, zap.NewNop())

	enabled := true
	m := testMonitor(models.MonitorTypeHTTP)
	m.ContentValidationEnabled = &enabled
	m.MinTextLength = 50
	m.IgnoreHTTP403 = true

	o.Run(context.Background(), m)

	want := models.ContentValidationConfig{Enabled: true, MinContentLength: 100, MinTextLength: 50}
	if h.target.Validation != want {
		t.Errorf("Validation = %+v, want %+v", h.target.Validation, want)
	}
	if !h.target.IgnoreHTTP403 {
		t.Error("IgnoreHTTP403 not passed through")
	}
	if h.target.Timeout != 5*time.Second {
		t.Errorf("Timeout = %s, want 5s", h.target.Timeout)
	}
}
