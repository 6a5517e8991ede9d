package cache

import (
	"context"
	"io"
	"testing"
	"time"

	"remindbot/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*ReminderCache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	log := logrus.New()
	log.SetOutput(io.Discard)

	client, err := NewRedis(context.Background(), mr.Addr(), "", log)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return NewReminderCache(client, time.Minute, log), mr
}

func sampleReminders() []models.Reminder {
	fireAt := time.Date(2030, time.January, 1, 9, 0, 0, 0, time.UTC)
	return []models.Reminder{
		{ID: "a", OwnerID: 5, DestinationID: 50, Text: "one", FireAt: fireAt, Status: models.StatusPending, CreatedAt: fireAt.Add(-time.Hour)},
		{ID: "b", OwnerID: 5, DestinationID: 50, Text: "two", FireAt: fireAt.Add(time.Hour), Status: models.StatusPending, CreatedAt: fireAt.Add(-time.Hour)},
	}
}

func TestReminderCacheRoundTrip(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	_, ok := c.GetPending(ctx, 5)
	assert.False(t, ok)

	c.SetPending(ctx, 5, 0, sampleReminders())
	assert.True(t, mr.Exists("reminder:user5:pending"))

	got, ok := c.GetPending(ctx, 5)
	require.True(t, ok)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.True(t, got[1].FireAt.Equal(sampleReminders()[1].FireAt))

	_, ok = c.GetPending(ctx, 6)
	assert.False(t, ok)
}

func TestReminderCacheEmptyListIsAHit(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	c.SetPending(ctx, 5, 0, []models.Reminder{})

	got, ok := c.GetPending(ctx, 5)
	assert.True(t, ok)
	assert.Empty(t, got)
}

func TestReminderCacheExpires(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	c.SetPending(ctx, 5, 0, sampleReminders())
	mr.FastForward(2 * time.Minute)

	_, ok := c.GetPending(ctx, 5)
	assert.False(t, ok)
}

func TestReminderCacheInvalidate(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	c.SetPending(ctx, 5, 0, sampleReminders())
	c.SetPending(ctx, 6, 0, sampleReminders())
	c.Invalidate(ctx, 5)

	assert.False(t, mr.Exists("reminder:user5:pending"))
	assert.True(t, mr.Exists("reminder:user6:pending"))
}

func TestReminderCacheInvalidateVoidsEarlierVersion(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	before, ok := c.Version(ctx, 5)
	require.True(t, ok)
	assert.Equal(t, int64(0), before)

	c.Invalidate(ctx, 5)
	after, ok := c.Version(ctx, 5)
	require.True(t, ok)
	assert.Equal(t, before+1, after)

	// a listing read before the invalidation must not be stored
	c.SetPending(ctx, 5, before, sampleReminders())
	assert.False(t, mr.Exists("reminder:user5:pending"))
	_, hit := c.GetPending(ctx, 5)
	assert.False(t, hit)

	c.SetPending(ctx, 5, after, sampleReminders())
	got, hit := c.GetPending(ctx, 5)
	require.True(t, hit)
	assert.Len(t, got, 2)

	// other owners keep their own version
	other, ok := c.Version(ctx, 6)
	require.True(t, ok)
	assert.Equal(t, int64(0), other)
}

func TestReminderCacheCorruptEntryMisses(t *testing.T) {
	c, mr := newTestCache(t)

	require.NoError(t, mr.Set("reminder:user5:pending", "{not json"))

	_, ok := c.GetPending(context.Background(), 5)
	assert.False(t, ok)
}

func TestReminderCacheUnavailableServerMisses(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	mr.Close()

	assert.NotPanics(t, func() {
		c.SetPending(ctx, 5, 0, sampleReminders())
		c.Invalidate(ctx, 5)
	})
	_, ok := c.GetPending(ctx, 5)
	assert.False(t, ok)
	_, ok = c.Version(ctx, 5)
	assert.False(t, ok)
}

func TestNilReminderCache(t *testing.T) {
	ctx := context.Background()
	log := logrus.New()
	log.SetOutput(io.Discard)

	for name, c := range map[string]*ReminderCache{
		"nil cache":  nil,
		"nil client": NewReminderCache((*redis.Client)(nil), 0, log),
	} {
		t.Run(name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				c.SetPending(ctx, 1, 0, sampleReminders())
				c.Invalidate(ctx, 1)
			})
			_, ok := c.GetPending(ctx, 1)
			assert.False(t, ok)
			_, ok = c.Version(ctx, 1)
			assert.False(t, ok)
		})
	}
}

func TestNewRedisFailsWhenUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	log := logrus.New()
	log.SetOutput(io.Discard)

	_, err := NewRedis(context.Background(), addr, "", log)
	assert.Error(t, err)
}
