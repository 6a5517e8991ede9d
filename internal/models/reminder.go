package models

import "time"

type Status string

const (
	StatusPending   Status = "pending"
	StatusDelivered Status = "delivered"
)

type Reminder struct {
	ID            string     `json:"id" db:"id"`
	OwnerID       int64      `json:"owner_id" db:"owner_id"`
	DestinationID int64      `json:"destination_id" db:"destination_id"`
	Text          string     `json:"text" db:"text"`
	FireAt        time.Time  `json:"fire_at" db:"fire_at"`
	Status        Status     `json:"status" db:"status"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	DeliveredAt   *time.Time `json:"delivered_at,omitempty" db:"delivered_at"`
}

// NewReminder is the caller-supplied part of a reminder; the store fills in
// the id, status and timestamps.
type NewReminder struct {
	OwnerID       int64
	DestinationID int64
	Text          string
	FireAt        time.Time
}

func (r *Reminder) IsPending() bool {
	return r.Status == StatusPending
}
