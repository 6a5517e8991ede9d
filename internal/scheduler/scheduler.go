package scheduler

import (
	"context"
	"sync"
	"time"

	"remindbot/internal/metrics"

	"github.com/sirupsen/logrus"
)

const (
	queueSize   = 256
	fireTimeout = 30 * time.Second
)

// FireFunc is invoked on a worker goroutine once an armed timer elapses.
type FireFunc func(ctx context.Context, id string) error

type fireEvent struct {
	id     string
	onFire FireFunc
}

type entry struct {
	timer *time.Timer
	gen   uint64
}

// Scheduler keeps at most one armed timer per reminder id. Elapsed timers
// are handed to a fixed pool of workers started by Run.
type Scheduler struct {
	log     *logrus.Logger
	metrics *metrics.Observer
	workers int

	mu      sync.Mutex
	entries map[string]entry
	gen     uint64
	closed  bool

	queue     chan fireEvent
	stopped   chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
	enqueuing sync.WaitGroup
}

func New(workers int, log *logrus.Logger, observer *metrics.Observer) *Scheduler {
	if workers < 1 {
		workers = 1
	}
	return &Scheduler{
		log:     log,
		metrics: observer,
		workers: workers,
		entries: make(map[string]entry),
		queue:   make(chan fireEvent, queueSize),
		stopped: make(chan struct{}),
	}
}

// Arm schedules onFire for id at fireAt, replacing any timer already armed
// for id. A fireAt in the past fires immediately. Arm is a no-op after Stop.
func (s *Scheduler) Arm(id string, fireAt time.Time, onFire FireFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		s.log.WithField("reminder_id", id).Debug("Scheduler stopped, ignoring arm")
		return
	}

	if existing, ok := s.entries[id]; ok {
		existing.timer.Stop()
	}

	s.gen++
	gen := s.gen
	delay := time.Until(fireAt)
	if delay < 0 {
		delay = 0
	}

	s.entries[id] = entry{
		gen:   gen,
		timer: time.AfterFunc(delay, func() { s.fire(id, gen, onFire) }),
	}
	s.metrics.SetArmedTimers(len(s.entries))

	s.log.WithFields(logrus.Fields{
		"reminder_id": id,
		"fire_at":     fireAt,
		"delay":       delay.String(),
	}).Debug("Timer armed")
}

// Cancel disarms id and reports whether a timer was still waiting.
func (s *Scheduler) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.entries[id]
	if !ok {
		return false
	}
	existing.timer.Stop()
	delete(s.entries, id)
	s.metrics.SetArmedTimers(len(s.entries))
	return true
}

func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// fire runs on the timer goroutine. Only the current generation of an entry
// may claim it, so a replaced or cancelled timer that already started is
// dropped here.
func (s *Scheduler) fire(id string, gen uint64, onFire FireFunc) {
	s.mu.Lock()
	current, ok := s.entries[id]
	if !ok || current.gen != gen {
		s.mu.Unlock()
		return
	}
	delete(s.entries, id)
	s.metrics.SetArmedTimers(len(s.entries))
	s.enqueuing.Add(1)
	s.mu.Unlock()
	defer s.enqueuing.Done()

	ev := fireEvent{id: id, onFire: onFire}
	select {
	case s.queue <- ev:
		return
	default:
	}

	select {
	case s.queue <- ev:
	case <-s.stopped:
		select {
		case s.queue <- ev:
		default:
			s.log.WithField("reminder_id", id).Warn("Fire queue full at shutdown, leaving reminder for recovery")
		}
	}
}

// Run starts the worker pool and blocks until ctx is done or Stop is called.
func (s *Scheduler) Run(ctx context.Context) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.wg.Add(s.workers)
	s.mu.Unlock()

	s.log.WithField("workers", s.workers).Info("Scheduler workers starting")

	for i := 0; i < s.workers; i++ {
		go s.worker(ctx)
	}
	s.wg.Wait()

	s.log.Info("Scheduler workers stopped")
}

func (s *Scheduler) worker(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopped:
			return
		case ev := <-s.queue:
			s.handle(ctx, ev)
		}
	}
}

// handle detaches from ctx cancellation so a dispatch that already started
// finishes its store write during shutdown.
func (s *Scheduler) handle(ctx context.Context, ev fireEvent) {
	fireCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fireTimeout)
	defer cancel()

	if err := ev.onFire(fireCtx, ev.id); err != nil {
		s.log.WithError(err).WithField("reminder_id", ev.id).Error("Reminder fire failed")
	}
}

// Stop disarms every timer, waits for in-flight fires to return and then
// runs whatever is still queued on the calling goroutine. Only an event that
// found the queue full after shutdown began is dropped; its record stays
// pending for the next recovery.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		for id, e := range s.entries {
			e.timer.Stop()
			delete(s.entries, id)
		}
		s.metrics.SetArmedTimers(0)
		s.mu.Unlock()

		close(s.stopped)
		s.wg.Wait()
		s.enqueuing.Wait()

		drained := s.drain()
		s.log.WithField("drained", drained).Info("Scheduler stopped")
	})
}

func (s *Scheduler) drain() int {
	n := 0
	for {
		select {
		case ev := <-s.queue:
			s.handle(context.Background(), ev)
			n++
		default:
			return n
		}
	}
}
