package services

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"remindbot/internal/cache"
	"remindbot/internal/database"
	"remindbot/internal/metrics"
	"remindbot/internal/models"
	"remindbot/internal/repository"
	"remindbot/internal/scheduler"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

type sentMessage struct {
	DestinationID int64
	Text          string
}

type fakeSender struct {
	mu    sync.Mutex
	sent  []sentMessage
	calls atomic.Int32
	delay time.Duration
	err   error
}

func (f *fakeSender) Send(ctx context.Context, destinationID int64, text string) error {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{DestinationID: destinationID, Text: text})
	return nil
}

func (f *fakeSender) messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

type testEnv struct {
	db         *sql.DB
	repo       *repository.SQLiteRepository
	sched      *scheduler.Scheduler
	sender     *fakeSender
	dispatcher *Dispatcher
	service    *ReminderService
	metrics    *metrics.Observer
}

type envOption func(*ReminderServiceConfig)

func withCache(c *cache.ReminderCache) envOption {
	return func(cfg *ReminderServiceConfig) { cfg.Cache = c }
}

func withRepoWrapper(wrap func(repository.ReminderRepository) repository.ReminderRepository) envOption {
	return func(cfg *ReminderServiceConfig) { cfg.Repo = wrap(cfg.Repo) }
}

func withLocation(loc *time.Location) envOption {
	return func(cfg *ReminderServiceConfig) { cfg.Location = loc }
}

func withFixedNow(now time.Time) envOption {
	return func(cfg *ReminderServiceConfig) { cfg.Now = func() time.Time { return now } }
}

func discardLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	log := discardLogger()

	db, err := database.NewSQLite(context.Background(), filepath.Join(t.TempDir(), "reminders.db"), log)
	require.NoError(t, err)
	repo := repository.NewSQLiteRepository(db)
	require.NoError(t, repo.Migrate(context.Background()))

	observer := metrics.MustNew(prometheus.NewRegistry())
	sched := scheduler.New(2, log, observer)
	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan struct{})
	go func() {
		sched.Run(ctx)
		close(runDone)
	}()
	t.Cleanup(func() {
		cancel()
		sched.Stop()
		<-runDone
		db.Close()
	})

	sender := &fakeSender{}
	cfg := &ReminderServiceConfig{
		Repo:    repo,
		Timers:  sched,
		Metrics: observer,
		Logger:  log,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	cfg.Dispatcher = NewDispatcher(repo, sender, cfg.Cache, observer, log)

	env := &testEnv{
		db:         db,
		repo:       repo,
		sched:      sched,
		sender:     sender,
		dispatcher: cfg.Dispatcher,
		service:    NewReminderService(cfg),
		metrics:    observer,
	}
	return env
}

func (e *testEnv) start(t *testing.T) {
	t.Helper()
	require.NoError(t, e.service.Startup(context.Background()))
}

// seed writes straight to the store, as a previous process run would have.
func (e *testEnv) seed(t *testing.T, owner int64, text string, fireAt time.Time) string {
	t.Helper()
	id, err := e.repo.Insert(context.Background(), models.NewReminder{
		OwnerID:       owner,
		DestinationID: owner,
		Text:          text,
		FireAt:        fireAt,
	})
	require.NoError(t, err)
	return id
}

func (e *testEnv) status(t *testing.T, id string) models.Status {
	t.Helper()
	r, err := e.repo.Get(context.Background(), id)
	require.NoError(t, err)
	return r.Status
}

var errSendRejected = errors.New("telegram API error (status 403)")
