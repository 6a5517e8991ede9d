package services

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

type RecoveryStats struct {
	Armed     int `json:"armed"`
	Finalized int `json:"finalized"`
	Errors    int `json:"errors"`
}

// Recover re-arms every pending reminder still in the future and marks the
// ones that came due while the process was down as delivered without
// sending them. Running it again re-arms the same set and finalizes nothing.
func (s *ReminderService) Recover(ctx context.Context) (RecoveryStats, error) {
	var stats RecoveryStats

	pending, err := s.repo.ListAllPending(ctx)
	if err != nil {
		return stats, fmt.Errorf("failed to load pending reminders: %w", err)
	}

	now := s.now()
	for _, reminder := range pending {
		if reminder.FireAt.After(now) {
			s.timers.Arm(reminder.ID, reminder.FireAt, s.dispatcher.Dispatch)
			stats.Armed++
			continue
		}

		marked, err := s.repo.MarkDelivered(ctx, reminder.ID, now)
		if err != nil {
			s.logger.WithError(err).WithField("reminder_id", reminder.ID).Error("Failed to finalize missed reminder")
			stats.Errors++
			continue
		}
		if marked {
			stats.Finalized++
			s.metrics.ReminderDelivered("recovery")
			s.cache.Invalidate(ctx, reminder.OwnerID)
		}
	}

	s.logger.WithFields(logrus.Fields{
		"armed":     stats.Armed,
		"finalized": stats.Finalized,
		"errors":    stats.Errors,
	}).Info("Recovered pending reminders")
	return stats, nil
}

// Startup runs recovery once and then opens the service for new requests.
func (s *ReminderService) Startup(ctx context.Context) error {
	if s.Ready() {
		return nil
	}
	if _, err := s.Recover(ctx); err != nil {
		return err
	}
	s.ready.Store(true)
	return nil
}
