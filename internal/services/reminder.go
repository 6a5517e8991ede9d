package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"remindbot/internal/cache"
	"remindbot/internal/metrics"
	"remindbot/internal/models"
	"remindbot/internal/repository"
	"remindbot/internal/scheduler"
	"remindbot/internal/timeparse"

	"github.com/sirupsen/logrus"
)

var (
	ErrNotStarted = errors.New("reminder service is still recovering")
	ErrEmptyText  = errors.New("reminder message cannot be empty")
	ErrInPast     = errors.New("reminder time cannot be in the past")
	ErrNoChat     = errors.New("reminder owner and destination are required")
)

// Timers is the part of the scheduler the service drives.
type Timers interface {
	Arm(id string, fireAt time.Time, onFire scheduler.FireFunc)
	Cancel(id string) bool
}

type ReminderServiceConfig struct {
	Repo       repository.ReminderRepository
	Timers     Timers
	Dispatcher *Dispatcher
	Cache      *cache.ReminderCache
	Metrics    *metrics.Observer
	Logger     *logrus.Logger
	// Location is where relative and wall-clock phrases are resolved.
	Location *time.Location
	Now      func() time.Time
}

type ReminderService struct {
	repo       repository.ReminderRepository
	timers     Timers
	dispatcher *Dispatcher
	cache      *cache.ReminderCache
	metrics    *metrics.Observer
	logger     *logrus.Logger
	loc        *time.Location
	now        func() time.Time

	ready atomic.Bool
}

type CreateRequest struct {
	OwnerID       int64
	DestinationID int64
	Text          string
	// When is a free-form time phrase or a quick-pick label.
	When string
}

func NewReminderService(config *ReminderServiceConfig) *ReminderService {
	if config.Logger == nil {
		config.Logger = logrus.New()
	}
	if config.Location == nil {
		config.Location = time.UTC
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	return &ReminderService{
		repo:       config.Repo,
		timers:     config.Timers,
		dispatcher: config.Dispatcher,
		cache:      config.Cache,
		metrics:    config.Metrics,
		logger:     config.Logger,
		loc:        config.Location,
		now:        config.Now,
	}
}

func (s *ReminderService) Ready() bool {
	return s.ready.Load()
}

// Create resolves req.When against the configured location and schedules the
// reminder.
func (s *ReminderService) Create(ctx context.Context, req CreateRequest) (*models.Reminder, error) {
	if !s.Ready() {
		return nil, ErrNotStarted
	}

	fireAt, err := timeparse.Resolve(req.When, s.now().In(s.loc))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %q: %w", req.When, err)
	}

	return s.CreateAt(ctx, req.OwnerID, req.DestinationID, req.Text, fireAt)
}

func (s *ReminderService) CreateAt(ctx context.Context, ownerID, destinationID int64, text string, fireAt time.Time) (*models.Reminder, error) {
	s.logger.WithFields(logrus.Fields{
		"user_id":   ownerID,
		"chat_id":   destinationID,
		"remind_at": fireAt,
	}).Info("Creating reminder...")

	if !s.Ready() {
		return nil, ErrNotStarted
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyText
	}
	if ownerID == 0 || destinationID == 0 {
		return nil, ErrNoChat
	}
	now := s.now()
	if !fireAt.After(now) {
		return nil, ErrInPast
	}

	id, err := s.repo.Insert(ctx, models.NewReminder{
		OwnerID:       ownerID,
		DestinationID: destinationID,
		Text:          text,
		FireAt:        fireAt,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create reminder: %w", err)
	}

	s.timers.Arm(id, fireAt, s.dispatcher.Dispatch)
	s.cache.Invalidate(ctx, ownerID)
	s.metrics.ReminderCreated()

	s.logger.WithFields(logrus.Fields{
		"reminder_id": id,
		"user_id":     ownerID,
	}).Info("Reminder created successfully")

	return &models.Reminder{
		ID:            id,
		OwnerID:       ownerID,
		DestinationID: destinationID,
		Text:          text,
		FireAt:        fireAt,
		Status:        models.StatusPending,
		CreatedAt:     now,
	}, nil
}

func (s *ReminderService) Get(ctx context.Context, id string) (*models.Reminder, error) {
	return s.repo.Get(ctx, id)
}

// ListPending returns the owner's pending reminders ordered by fire time.
func (s *ReminderService) ListPending(ctx context.Context, ownerID int64) ([]models.Reminder, error) {
	s.logger.WithField("user_id", ownerID).Debug("Getting user reminders")

	if cached, ok := s.cache.GetPending(ctx, ownerID); ok {
		return cached, nil
	}

	version, fillable := s.cache.Version(ctx, ownerID)

	reminders, err := s.repo.ListPending(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query reminders: %w", err)
	}
	if reminders == nil {
		reminders = []models.Reminder{}
	}

	if fillable {
		s.cache.SetPending(ctx, ownerID, version, reminders)
	}
	return reminders, nil
}

// Delete removes the reminder and disarms its timer. It reports false when
// nothing was stored under id.
func (s *ReminderService) Delete(ctx context.Context, id string) (bool, error) {
	if !s.Ready() {
		return false, ErrNotStarted
	}

	reminder, err := s.repo.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to delete reminder: %w", err)
	}

	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete reminder: %w", err)
	}
	s.timers.Cancel(id)
	s.cache.Invalidate(ctx, reminder.OwnerID)

	s.logger.WithFields(logrus.Fields{
		"reminder_id": id,
		"user_id":     reminder.OwnerID,
		"deleted":     deleted,
	}).Info("Reminder deleted")
	return deleted, nil
}

// DeleteAll removes every pending reminder the owner has and returns how
// many there were.
func (s *ReminderService) DeleteAll(ctx context.Context, ownerID int64) (int, error) {
	if !s.Ready() {
		return 0, ErrNotStarted
	}

	ids, err := s.repo.DeleteAllForOwner(ctx, ownerID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete reminders: %w", err)
	}
	for _, id := range ids {
		s.timers.Cancel(id)
	}
	s.cache.Invalidate(ctx, ownerID)

	s.logger.WithFields(logrus.Fields{
		"user_id": ownerID,
		"count":   len(ids),
	}).Info("All reminders deleted")
	return len(ids), nil
}
