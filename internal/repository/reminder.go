package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"remindbot/internal/models"
)

var ErrNotFound = errors.New("reminder not found")

// PersistenceError wraps a storage-layer failure with the operation that hit it.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("reminder store: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func persistErr(op string, err error) error {
	return &PersistenceError{Op: op, Err: err}
}

// ReminderRepository is the durable source of truth for reminders. Every
// mutation is a single conditional statement, so two callers racing on the
// same id never both succeed destructively.
type ReminderRepository interface {
	Migrate(ctx context.Context) error
	Insert(ctx context.Context, r models.NewReminder) (string, error)
	Get(ctx context.Context, id string) (*models.Reminder, error)
	ListPending(ctx context.Context, ownerID int64) ([]models.Reminder, error)
	ListAllPending(ctx context.Context) ([]models.Reminder, error)
	// MarkDelivered flips a pending reminder to delivered. It reports false
	// when the reminder is missing or was already delivered.
	MarkDelivered(ctx context.Context, id string, at time.Time) (bool, error)
	Delete(ctx context.Context, id string) (bool, error)
	// DeleteAllForOwner removes the owner's pending reminders and returns
	// their ids. Delivered history is left alone.
	DeleteAllForOwner(ctx context.Context, ownerID int64) ([]string, error)
	PurgeDelivered(ctx context.Context, before time.Time) (int64, error)
}

type scanner interface {
	Scan(dest ...any) error
}
