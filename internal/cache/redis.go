package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"remindbot/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	reminderCachePrefix = "reminder:user"
	DefaultTTL          = 10 * time.Minute

	// versionTTL only has to outlive the slowest listing query.
	versionTTL = 24 * time.Hour
)

var errStaleFill = errors.New("listing changed since it was read")

// NewRedis connects and pings a Redis client.
func NewRedis(ctx context.Context, addr, password string, log *logrus.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.WithField("addr", addr).Info("Connection to Redis successful")
	return client, nil
}

// ReminderCache holds each owner's pending listing. A nil *ReminderCache, or
// one built on a nil client, misses every read and ignores every write.
type ReminderCache struct {
	client *redis.Client
	ttl    time.Duration
	log    *logrus.Logger
}

func NewReminderCache(client *redis.Client, ttl time.Duration, log *logrus.Logger) *ReminderCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &ReminderCache{client: client, ttl: ttl, log: log}
}

func pendingKey(ownerID int64) string {
	return reminderCachePrefix + strconv.FormatInt(ownerID, 10) + ":pending"
}

func versionKey(ownerID int64) string {
	return reminderCachePrefix + strconv.FormatInt(ownerID, 10) + ":version"
}

func (c *ReminderCache) enabled() bool {
	return c != nil && c.client != nil
}

// GetPending returns the cached listing and whether it was a hit.
func (c *ReminderCache) GetPending(ctx context.Context, ownerID int64) ([]models.Reminder, bool) {
	if !c.enabled() {
		return nil, false
	}

	cached, err := c.client.Get(ctx, pendingKey(ownerID)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.WithError(err).WithField("owner_id", ownerID).Warn("Reminder cache read failed")
		}
		return nil, false
	}

	var reminders []models.Reminder
	if err := json.Unmarshal([]byte(cached), &reminders); err != nil {
		c.log.WithError(err).WithField("owner_id", ownerID).Warn("Discarding corrupt reminder cache entry")
		return nil, false
	}

	c.log.WithField("owner_id", ownerID).Debug("Retrieved reminders from cache")
	return reminders, true
}

// Version returns the owner's listing version. Read it before querying the
// store and pass it to SetPending; ok is false when nothing may be cached.
func (c *ReminderCache) Version(ctx context.Context, ownerID int64) (version int64, ok bool) {
	if !c.enabled() {
		return 0, false
	}

	version, err := c.client.Get(ctx, versionKey(ownerID)).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		c.log.WithError(err).WithField("owner_id", ownerID).Warn("Reminder cache version read failed")
		return 0, false
	}
	return version, true
}

// SetPending stores the listing only while the owner's version still equals
// version, so a listing read before an Invalidate never lands after it.
func (c *ReminderCache) SetPending(ctx context.Context, ownerID int64, version int64, reminders []models.Reminder) {
	if !c.enabled() {
		return
	}

	data, err := json.Marshal(reminders)
	if err != nil {
		return
	}

	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, versionKey(ownerID)).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != version {
			return errStaleFill
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, pendingKey(ownerID), data, c.ttl)
			return nil
		})
		return err
	}, versionKey(ownerID))

	switch {
	case err == nil:
	case errors.Is(err, errStaleFill), errors.Is(err, redis.TxFailedErr):
		c.log.WithField("owner_id", ownerID).Debug("Skipping stale reminder cache fill")
	default:
		c.log.WithError(err).WithField("owner_id", ownerID).Warn("Reminder cache write failed")
	}
}

// Invalidate drops the cached listing and bumps the version, which voids any
// fill still in flight.
func (c *ReminderCache) Invalidate(ctx context.Context, ownerID int64) {
	if !c.enabled() {
		return
	}

	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, pendingKey(ownerID))
		pipe.Incr(ctx, versionKey(ownerID))
		pipe.Expire(ctx, versionKey(ownerID), versionTTL)
		return nil
	})
	if err != nil {
		c.log.WithError(err).WithField("owner_id", ownerID).Warn("Reminder cache invalidation failed")
	}
}
