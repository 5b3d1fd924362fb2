package monitor

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// startMaintenance launches the retention sweep. It runs once per
// MaintenanceInterval until Stop or ctx cancellation.
func (s *Service) startMaintenance(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.maintCancel = cancel

	s.maintWG.Add(1)
	go func() {
		defer s.maintWG.Done()
		ticker := time.NewTicker(s.cfg.MaintenanceInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.RunRetentionSweep(ctx)
			}
		}
	}()
}

func (s *Service) stopMaintenance() {
	if s.maintCancel != nil {
		s.maintCancel()
	}
	s.maintWG.Wait()
}

// RunRetentionSweep deletes checks older than the retention period from
// memory and, when the repository supports it, from storage. It returns the
// number of in-memory checks removed.
func (s *Service) RunRetentionSweep(ctx context.Context) int {
	now := s.now()
	cutoff := now.Add(-s.cfg.RetentionPeriod)

	s.mu.Lock()
	removed := s.history.Prune(cutoff)
	for _, m := range s.monitors {
		s.refreshUptime(m, now)
	}
	s.mu.Unlock()

	prunedTotal.Add(float64(removed))
	if removed > 0 {
		s.logger.Info("pruned old checks from history", zap.Int("count", removed))
	}

	if pruner, ok := s.repo.(CheckPruner); ok {
		ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		deleted, err := pruner.DeleteChecksBefore(ctx, cutoff)
		if err != nil {
			s.logger.Warn("failed to delete old checks", zap.Error(err))
		} else if deleted > 0 {
			s.logger.Info("purged old checks from storage", zap.Int64("count", deleted))
		}
	}
	return removed
}
