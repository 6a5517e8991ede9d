package services

import (
	"context"
	"fmt"
	"time"
)

const historyWorkerInterval = 30 * time.Minute

// StartHistoryWorker purges delivered reminders older than retention every
// interval until ctx is done. A zero interval uses the default.
func (s *ReminderService) StartHistoryWorker(ctx context.Context, retention, interval time.Duration) {
	if interval <= 0 {
		interval = historyWorkerInterval
	}

	s.logger.Info("Starting history worker...")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("History worker stopped")
			return
		case <-ticker.C:
			s.logger.Debug("Purging delivered reminders...")
			if _, err := s.PurgeHistory(ctx, retention); err != nil {
				s.logger.WithError(err).Error("Error purging delivered reminders")
			}
		}
	}
}

func (s *ReminderService) PurgeHistory(ctx context.Context, retention time.Duration) (int64, error) {
	n, err := s.repo.PurgeDelivered(ctx, s.now().Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("failed to purge delivered reminders: %w", err)
	}
	s.metrics.RemindersPurged(n)
	if n > 0 {
		s.logger.WithField("purged", n).Info("Purged delivered reminders")
	}
	return n, nil
}
