package gamification

import (
	"context"
	"time"
)

// StartSnapshotWorker captures each board on the first tick of every UTC
// day, including the first tick after startup. Days are read from the
// service clock. It blocks until ctx is done.
func (s *Service) StartSnapshotWorker(ctx context.Context, boards []LeaderboardQuery, interval time.Duration) {
	if len(boards) == 0 {
		return
	}
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.log.Info("snapshot worker started", "boards", len(boards), "interval", interval.String())

	var lastRun time.Time
	for {
		select {
		case <-ctx.Done():
			s.log.Info("snapshot worker shutting down")
			return
		case <-ticker.C:
			day := s.clock().Truncate(24 * time.Hour)
			if !day.After(lastRun) {
				continue
			}
			s.captureAll(ctx, boards)
			lastRun = day
		}
	}
}

func (s *Service) captureAll(ctx context.Context, boards []LeaderboardQuery) {
	for _, b := range boards {
		if ctx.Err() != nil {
			return
		}
		if _, err := s.CaptureSnapshot(ctx, b); err != nil {
			s.log.Error("snapshot capture failed", "board", b.BoardKey(), "error", err)
		}
	}
}
