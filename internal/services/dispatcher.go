package services

import (
	"context"
	"errors"
	"fmt"
	"html"
	"time"

	"remindbot/internal/cache"
	"remindbot/internal/metrics"
	"remindbot/internal/repository"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

const reminderHeader = "🔔 <b>Reminder!</b>\n\n"

// Sender delivers rendered text to a chat.
type Sender interface {
	Send(ctx context.Context, destinationID int64, text string) error
}

// DeliveryError reports a send the messaging collaborator rejected. The
// reminder stays pending.
type DeliveryError struct {
	ReminderID    string
	DestinationID int64
	Err           error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver reminder %s to chat %d: %v", e.ReminderID, e.DestinationID, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// RenderReminder formats reminder text for Telegram's HTML parse mode.
func RenderReminder(text string) string {
	return reminderHeader + html.EscapeString(text)
}

type Dispatcher struct {
	repo    repository.ReminderRepository
	sender  Sender
	cache   *cache.ReminderCache
	metrics *metrics.Observer
	logger  *logrus.Logger

	inflight singleflight.Group
}

func NewDispatcher(repo repository.ReminderRepository, sender Sender, reminderCache *cache.ReminderCache, observer *metrics.Observer, logger *logrus.Logger) *Dispatcher {
	return &Dispatcher{
		repo:    repo,
		sender:  sender,
		cache:   reminderCache,
		metrics: observer,
		logger:  logger,
	}
}

// Dispatch sends the reminder once and marks it delivered. Overlapping calls
// for the same id share a single attempt; a missing or already delivered
// reminder is not an error.
func (d *Dispatcher) Dispatch(ctx context.Context, id string) error {
	_, err, _ := d.inflight.Do(id, func() (any, error) {
		return nil, d.deliver(ctx, id)
	})
	return err
}

func (d *Dispatcher) deliver(ctx context.Context, id string) error {
	start := time.Now()

	reminder, err := d.repo.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		d.logger.WithField("reminder_id", id).Debug("Reminder gone before delivery")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load reminder: %w", err)
	}
	if !reminder.IsPending() {
		return nil
	}

	if err := d.sender.Send(ctx, reminder.DestinationID, RenderReminder(reminder.Text)); err != nil {
		d.metrics.DeliveryFailed()
		return &DeliveryError{ReminderID: id, DestinationID: reminder.DestinationID, Err: err}
	}

	marked, err := d.repo.MarkDelivered(ctx, id, time.Now())
	if err != nil {
		return fmt.Errorf("failed to mark reminder as sent: %w", err)
	}
	d.cache.Invalidate(ctx, reminder.OwnerID)
	d.metrics.ObserveDelivery(time.Since(start))
	if marked {
		d.metrics.ReminderDelivered("dispatch")
	}

	d.logger.WithFields(logrus.Fields{
		"reminder_id": id,
		"user_id":     reminder.OwnerID,
		"chat_id":     reminder.DestinationID,
	}).Info("Reminder sent successfully")
	return nil
}
