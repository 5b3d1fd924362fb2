package monitor

import (
	"slices"
	"sync"
	"time"

	"github.com/HerbHall/uptimed/pkg/models"
)

// Uptime windows reported on every monitor.
const (
	Window24h = 24 * time.Hour
	Window7d  = 7 * 24 * time.Hour
	Window30d = 30 * 24 * time.Hour
)

// History is the in-memory per-monitor list of checks that uptime and
// recent-check queries are answered from.
type History struct {
	mu     sync.RWMutex
	checks map[string][]models.Check
}

func NewHistory() *History {
	return &History{checks: make(map[string][]models.Check)}
}

// Append records one check.
func (h *History) Append(c models.Check) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[c.MonitorID] = append(h.checks[c.MonitorID], c)
}

// Load merges previously persisted checks for a monitor.
func (h *History) Load(monitorID string, checks []models.Check) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[monitorID] = append(h.checks[monitorID], checks...)
}

// Remove drops every check of a monitor.
func (h *History) Remove(monitorID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.checks, monitorID)
}

// Len returns how many checks are held for a monitor.
func (h *History) Len(monitorID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.checks[monitorID])
}

// Recent returns up to limit checks, newest first. limit <= 0 returns all.
func (h *History) Recent(monitorID string, limit int) []models.Check {
	h.mu.RLock()
	out := slices.Clone(h.checks[monitorID])
	h.mu.RUnlock()

	slices.SortStableFunc(out, func(a, b models.Check) int {
		return b.CheckedAt.Compare(a.CheckedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	if out == nil {
		out = []models.Check{}
	}
	return out
}

// Latest returns the newest check at or after since.
func (h *History) Latest(monitorID string, since time.Time) (models.Check, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var (
		best  models.Check
		found bool
	)
	for _, c := range h.checks[monitorID] {
		if c.CheckedAt.Before(since) {
			continue
		}
		if !found || c.CheckedAt.After(best.CheckedAt) {
			best, found = c, true
		}
	}
	return best, found
}

// Uptime returns the percentage of online checks with checked_at within
// window of now, or 0 when the window holds no checks.
func (h *History) Uptime(monitorID string, window time.Duration, now time.Time) float64 {
	since := now.Add(-window)

	h.mu.RLock()
	defer h.mu.RUnlock()

	var total, up int
	for _, c := range h.checks[monitorID] {
		if c.CheckedAt.Before(since) {
			continue
		}
		total++
		if c.Online() {
			up++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(up) / float64(total) * 100
}

// Prune deletes checks older than before across all monitors and returns
// how many were removed.
func (h *History) Prune(before time.Time) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	removed := 0
	for id, checks := range h.checks {
		kept := slices.DeleteFunc(checks, func(c models.Check) bool {
			return c.CheckedAt.Before(before)
		})
		removed += len(checks) - len(kept)
		h.checks[id] = kept
	}
	return removed
}

