package monitor

import (
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

type probeRecorder struct {
	mu    sync.Mutex
	calls map[string]int
	fired chan string
}

func newProbeRecorder() *probeRecorder {
	return &probeRecorder{calls: make(map[string]int), fired: make(chan string, 100)}
}

func (r *probeRecorder) probe(id string) {
	r.mu.Lock()
	r.calls[id]++
	r.mu.Unlock()
	select {
	case r.fired <- id:
	default:
	}
}

func (r *probeRecorder) count(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[id]
}

// waitFiredAll waits until every id has fired once, in any order.
func waitFiredAll(t *testing.T, r *probeRecorder, ids ...string) {
	t.Helper()
	pending := make(map[string]bool, len(ids))
	for _, id := range ids {
		pending[id] = true
	}
	timeout := time.After(2 * time.Second)
	for len(pending) > 0 {
		select {
		case got := <-r.fired:
			if !pending[got] {
				t.Fatalf("unexpected probe for %q", got)
			}
			delete(pending, got)
		case <-timeout:
			t.Fatalf("probes still pending: %v", pending)
		}
	}
}

func waitFired(t *testing.T, r *probeRecorder, want string) {
	t.Helper()
	select {
	case got := <-r.fired:
		if got != want {
			t.Fatalf("fired %q, want %q", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("probe for %q did not fire", want)
	}
}

func TestScheduler_FiresImmediately(t *testing.T) {
	rec := newProbeRecorder()
	s := NewScheduler(rec.probe, zap.NewNop())
	defer s.StopAll()

	s.Schedule("m1", time.Hour)
	waitFired(t, rec, "m1")

	if !s.Scheduled("m1") {
		t.Error("Scheduled(m1) = false, want true")
	}
	if iv, ok := s.Interval("m1"); !ok || iv != time.Hour {
		t.Errorf("Interval(m1) = %s, %v; want 1h, true", iv, ok)
	}
}

func TestScheduler_FiresEveryInterval(t *testing.T) {
	rec := newProbeRecorder()
	s := NewScheduler(rec.probe, zap.NewNop())
	defer s.StopAll()

	s.Schedule("m1", 20*time.Millisecond)
	for range 3 {
		waitFired(t, rec, "m1")
	}
}

func TestScheduler_UnscheduleStopsTimer(t *testing.T) {
	rec := newProbeRecorder()
	s := NewScheduler(rec.probe, zap.NewNop())

	s.Schedule("m1", 10*time.Millisecond)
	waitFired(t, rec, "m1")

	if !s.Unschedule("m1") {
		t.Fatal("Unschedule(m1) = false, want true")
	}
	s.Wait()
	before := rec.count("m1")
	time.Sleep(50 * time.Millisecond)
	s.Wait()
	if after := rec.count("m1"); after != before {
		t.Errorf("probes after Unschedule = %d, want %d", after, before)
	}
	if s.Unschedule("m1") {
		t.Error("second Unschedule(m1) = true, want false")
	}
}

func TestScheduler_RescheduleReplacesTimer(t *testing.T) {
	rec := newProbeRecorder()
	s := NewScheduler(rec.probe, zap.NewNop())
	defer s.StopAll()

	s.Schedule("m1", time.Hour)
	waitFired(t, rec, "m1")
	s.Schedule("m1", 2*time.Hour)
	waitFired(t, rec, "m1")

	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1", s.Len())
	}
	if iv, _ := s.Interval("m1"); iv != 2*time.Hour {
		t.Errorf("Interval(m1) = %s, want 2h", iv)
	}
}

func TestScheduler_StopAll(t *testing.T) {
	rec := newProbeRecorder()
	s := NewScheduler(rec.probe, zap.NewNop())

	s.Schedule("a", time.Hour)
	s.Schedule("b", time.Hour)
	waitFiredAll(t, rec, "a", "b")

	s.StopAll()
	if s.Len() != 0 {
		t.Errorf("Len() after StopAll = %d, want 0", s.Len())
	}
	if s.Scheduled("a") || s.Scheduled("b") {
		t.Error("monitor still scheduled after StopAll")
	}
}

func TestScheduler_SlowProbeDoesNotBlockTicks(t *testing.T) {
	release := make(chan struct{})
	fired := make(chan struct{}, 10)
	s := NewScheduler(func(string) {
		select {
		case fired <- struct{}{}:
		default:
		}
		<-release
	}, zap.NewNop())

	s.Schedule("slow", 10*time.Millisecond)
	for range 3 {
		select {
		case <-fired:
		case <-time.After(2 * time.Second):
			t.Fatal("overlapping probe did not start")
		}
	}
	s.StopAll()
	close(release)
	s.Wait()
}
