package monitor

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/HerbHall/uptimed/internal/store"
	"github.com/HerbHall/uptimed/pkg/models"
)

func testStore(t *testing.T) *SQLStore {
	t.Helper()
	db, err := store.New(filepath.Join(t.TempDir(), "monitor.db"))
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	s, err := NewSQLStore(context.Background(), db)
	if err != nil {
		t.Fatalf("NewSQLStore: %v", err)
	}
	return s
}

func TestSQLStore_MonitorRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	enabled := true
	m := newMonitor("m1")
	m.ContentValidationEnabled = &enabled
	m.MinTextLength = 50
	m.IgnoreHTTP403 = true
	m.CreatedAt, m.UpdatedAt = now, now

	if err := s.SaveMonitor(ctx, &m); err != nil {
		t.Fatalf("SaveMonitor: %v", err)
	}

	got, err := s.getMonitor(ctx, "m1")
	if err != nil {
		t.Fatalf("getMonitor: %v", err)
	}
	if got == nil {
		t.Fatal("getMonitor returned nil")
	}
	if got.Name != m.Name || got.URL != m.URL || got.Type != m.Type || got.Interval != m.Interval || got.Timeout != m.Timeout {
		t.Errorf("getMonitor = %+v, want %+v", got, m)
	}
	if !got.Active || !got.IgnoreHTTP403 {
		t.Errorf("flags = active:%v ignore403:%v, want true/true", got.Active, got.IgnoreHTTP403)
	}
	if got.ContentValidationEnabled == nil || !*got.ContentValidationEnabled {
		t.Errorf("ContentValidationEnabled = %v, want true", got.ContentValidationEnabled)
	}
	if got.MinTextLength != 50 {
		t.Errorf("MinTextLength = %d, want 50", got.MinTextLength)
	}
	if got.Status != models.MonitorStatusUnknown {
		t.Errorf("Status = %q, want unknown", got.Status)
	}

	m.Name = "renamed"
	m.ContentValidationEnabled = nil
	if err := s.SaveMonitor(ctx, &m); err != nil {
		t.Fatalf("SaveMonitor (update): %v", err)
	}
	list, err := s.ListMonitors(ctx)
	if err != nil {
		t.Fatalf("ListMonitors: %v", err)
	}
	if len(list) != 1 || list[0].Name != "renamed" {
		t.Fatalf("ListMonitors = %+v, want one renamed monitor", list)
	}
	if list[0].ContentValidationEnabled != nil {
		t.Errorf("ContentValidationEnabled = %v, want nil after clearing", *list[0].ContentValidationEnabled)
	}

	missing, err := s.getMonitor(ctx, "nope")
	if err != nil || missing != nil {
		t.Errorf("getMonitor(nope) = %v, %v; want nil, nil", missing, err)
	}
}

func TestSQLStore_Checks(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	rt := int64(120)
	code := 503
	msg := "HTTP 503 Service Unavailable"
	checks := []models.Check{
		{ID: "c1", MonitorID: "m1", Status: models.CheckStatusOnline, ResponseTime: &rt, StatusCode: &code, ErrorMessage: &msg, CheckedAt: now.Add(-2 * time.Minute)},
		{ID: "c2", MonitorID: "m1", Status: models.CheckStatusOffline, CheckedAt: now.Add(-1 * time.Minute)},
		{ID: "c3", MonitorID: "m2", Status: models.CheckStatusOnline, CheckedAt: now},
	}
	for i := range checks {
		if err := s.CreateCheck(ctx, &checks[i]); err != nil {
			t.Fatalf("CreateCheck(%s): %v", checks[i].ID, err)
		}
	}

	got, err := s.GetRecentChecks(ctx, "m1", 10)
	if err != nil {
		t.Fatalf("GetRecentChecks: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("GetRecentChecks returned %d checks, want 2", len(got))
	}
	if got[0].ID != "c2" || got[1].ID != "c1" {
		t.Errorf("order = %s,%s; want c2,c1", got[0].ID, got[1].ID)
	}
	if got[0].ResponseTime != nil || got[0].StatusCode != nil || got[0].ErrorMessage != nil {
		t.Errorf("c2 nullable fields = %+v, want all nil", got[0])
	}
	c1 := got[1]
	if c1.ResponseTime == nil || *c1.ResponseTime != 120 {
		t.Errorf("c1 ResponseTime = %v, want 120", c1.ResponseTime)
	}
	if c1.StatusCode == nil || *c1.StatusCode != 503 {
		t.Errorf("c1 StatusCode = %v, want 503", c1.StatusCode)
	}
	if c1.ErrorMessage == nil || *c1.ErrorMessage != msg {
		t.Errorf("c1 ErrorMessage = %v, want %q", c1.ErrorMessage, msg)
	}
	if !c1.CheckedAt.Equal(checks[0].CheckedAt) {
		t.Errorf("c1 CheckedAt = %v, want %v", c1.CheckedAt, checks[0].CheckedAt)
	}

	limited, _ := s.GetRecentChecks(ctx, "m1", 1)
	if len(limited) != 1 {
		t.Errorf("GetRecentChecks(limit=1) returned %d", len(limited))
	}
}

func TestSQLStore_DeleteChecksBefore(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	old := models.Check{ID: "old", MonitorID: "m1", Status: models.CheckStatusOnline, CheckedAt: now.Add(-60 * 24 * time.Hour)}
	recent := models.Check{ID: "recent", MonitorID: "m1", Status: models.CheckStatusOnline, CheckedAt: now.Add(-10 * 24 * time.Hour)}
	for _, c := range []*models.Check{&old, &recent} {
		if err := s.CreateCheck(ctx, c); err != nil {
			t.Fatalf("CreateCheck: %v", err)
		}
	}

	deleted, err := s.DeleteChecksBefore(ctx, now.Add(-30*24*time.Hour))
	if err != nil {
		t.Fatalf("DeleteChecksBefore: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}
	left, _ := s.GetRecentChecks(ctx, "m1", 10)
	if len(left) != 1 || left[0].ID != "recent" {
		t.Errorf("remaining = %+v, want only recent", left)
	}
}

func TestSQLStore_DeleteMonitorRemovesChecks(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	m := newMonitor("m1")
	m.CreatedAt, m.UpdatedAt = time.Now().UTC(), time.Now().UTC()
	if err := s.SaveMonitor(ctx, &m); err != nil {
		t.Fatalf("SaveMonitor: %v", err)
	}
	c := models.Check{ID: "c1", MonitorID: "m1", Status: models.CheckStatusOnline, CheckedAt: time.Now().UTC()}
	if err := s.CreateCheck(ctx, &c); err != nil {
		t.Fatalf("CreateCheck: %v", err)
	}

	if err := s.DeleteMonitor(ctx, "m1"); err != nil {
		t.Fatalf("DeleteMonitor: %v", err)
	}
	if got, _ := s.getMonitor(ctx, "m1"); got != nil {
		t.Error("monitor still present after delete")
	}
	if left, _ := s.GetRecentChecks(ctx, "m1", 10); len(left) != 0 {
		t.Errorf("checks left after delete = %d, want 0", len(left))
	}
}

func TestService_WithSQLStore(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	svc, _, _ := newTestService(t, WithRepository(s), WithMonitorSource(s), WithMonitorWriter(s))
	m := newMonitor("m1")
	m.Active = false
	if _, err := svc.AddMonitor(ctx, m); err != nil {
		t.Fatalf("AddMonitor: %v", err)
	}
	if _, err := svc.TriggerCheck(ctx, "m1"); err != nil {
		t.Fatalf("TriggerCheck: %v", err)
	}
	svc.Wait()

	reloaded := NewService(DefaultConfig(), newFakeRunner(newFakeClock()), svc.logger,
		WithClock(svc.now), WithRepository(s), WithMonitorSource(s))
	if err := reloaded.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	got, err := reloaded.Monitor("m1")
	if err != nil {
		t.Fatalf("Monitor after reload: %v", err)
	}
	if got.Status != models.MonitorStatusOnline {
		t.Errorf("reloaded Status = %q, want online", got.Status)
	}
	if reloaded.history.Len("m1") != 1 {
		t.Errorf("reloaded history = %d, want 1", reloaded.history.Len("m1"))
	}
}
