// Package expiry tracks self-destructing messages and fires one destruction
// callback per message when its deadline passes.
//
// Each registration moves Scheduled -> Fired or Scheduled -> Cancelled and
// never leaves a terminal state. Transitions happen under the registry lock
// before a callback is dispatched, so a Cancel racing a deadline produces
// either no callback or exactly one.
package expiry

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"
)

const defaultResumeCheckInterval = time.Second

var (
	ErrInvalidRegistration = errors.New("invalid expiration registration")
	ErrClosed              = errors.New("expiration scheduler closed")
)

// Callback destroys the content of one message. A returned error or a panic
// is logged and counted; it does not affect other registrations.
type Callback func(messageID string) error

// Scheduler is a registry of pending destructions keyed by message id.
// It can be driven by Run in a goroutine, by calling Tick from an event loop, or both.
type Scheduler struct {
	now         func() time.Time
	logger      *slog.Logger
	metrics     *Metrics
	resumeCheck time.Duration

	mu     sync.Mutex
	live   map[string]*registration
	queue  deadlineQueue
	closed bool

	wake     chan struct{}
	done     chan struct{}
	inflight sync.WaitGroup
}

type Option func(*Scheduler)

// WithClock replaces the wall clock used to compare deadlines.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// WithResumeCheckInterval bounds how long Run sleeps between deadline checks.
// It limits how late an overdue callback fires after the host was suspended.
func WithResumeCheckInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.resumeCheck = d
		}
	}
}

func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		now:         time.Now,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		resumeCheck: defaultResumeCheckInterval,
		live:        make(map[string]*registration),
		wake:        make(chan struct{}, 1),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Schedule registers onDestroy to run once deadline has passed. An existing
// registration for messageID is replaced. A deadline in the past fires on the
// next tick. Schedule never blocks on callbacks.
func (s *Scheduler) Schedule(messageID string, deadline time.Time, onDestroy Callback) error {
	if strings.TrimSpace(messageID) == "" || onDestroy == nil || deadline.IsZero() {
		return ErrInvalidRegistration
	}
	reg := &registration{
		id:        messageID,
		deadline:  deadline.Round(0),
		onDestroy: onDestroy,
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	replaced := false
	if prev, ok := s.live[messageID]; ok {
		heap.Remove(&s.queue, prev.index)
		replaced = true
	}
	heap.Push(&s.queue, reg)
	s.live[messageID] = reg
	s.metrics.setPending(len(s.live))
	s.mu.Unlock()

	if replaced {
		s.metrics.record(eventReplaced)
	}
	s.metrics.record(eventScheduled)
	s.notify()
	return nil
}

// Cancel removes a pending registration. It reports false when nothing was
// scheduled for messageID, including after the callback already fired.
func (s *Scheduler) Cancel(messageID string) bool {
	s.mu.Lock()
	reg, ok := s.live[messageID]
	if ok {
		heap.Remove(&s.queue, reg.index)
		delete(s.live, messageID)
		s.metrics.setPending(len(s.live))
	}
	s.mu.Unlock()

	if !ok {
		return false
	}
	s.metrics.record(eventCancelled)
	s.notify()
	return true
}

// Tick dispatches every registration whose deadline is at or before now and
// returns how many were dispatched. Callbacks run on their own goroutines.
func (s *Scheduler) Tick() int {
	// Wall-clock comparison: monotonic readings do not advance while the host sleeps.
	now := s.now().Round(0)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0
	}
	var due []*registration
	for s.queue.Len() > 0 && !s.queue[0].deadline.After(now) {
		reg := heap.Pop(&s.queue).(*registration)
		delete(s.live, reg.id)
		due = append(due, reg)
	}
	s.inflight.Add(len(due))
	if len(due) > 0 {
		s.metrics.setPending(len(s.live))
	}
	s.mu.Unlock()

	if len(due) == 0 {
		return 0
	}
	for _, reg := range due {
		s.metrics.record(eventFired)
		go s.fire(reg)
	}
	return len(due)
}

func (s *Scheduler) fire(reg *registration) {
	defer s.inflight.Done()
	defer func() {
		if r := recover(); r != nil {
			s.metrics.record(eventCallbackFailed)
			s.logger.Error("destruction callback panicked", "message_id", reg.id, "panic", fmt.Sprint(r))
		}
	}()
	if err := reg.onDestroy(reg.id); err != nil {
		s.metrics.record(eventCallbackFailed)
		s.logger.Warn("destruction callback failed", "message_id", reg.id, "error", err.Error())
		return
	}
	s.logger.Debug("message destroyed", "message_id", reg.id)
}

// Run drives the scheduler until ctx is done or Close is called.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		s.Tick()

		wait := s.resumeCheck
		if next, ok := s.nextDeadline(); ok {
			if until := next.Sub(s.now().Round(0)); until < wait {
				wait = until
			}
		}
		if wait < 0 {
			wait = 0
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-s.done:
			timer.Stop()
			return ErrClosed
		case <-s.wake:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// Pending returns the number of live registrations.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.live)
}

// Deadline returns the deadline registered for messageID.
func (s *Scheduler) Deadline(messageID string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reg, ok := s.live[messageID]
	if !ok {
		return time.Time{}, false
	}
	return reg.deadline, true
}

// Close drops pending registrations, stops Run and waits for callbacks
// already dispatched. It returns the ids that were still pending.
func (s *Scheduler) Close() []string {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.inflight.Wait()
		return nil
	}
	s.closed = true
	dropped := make([]string, 0, len(s.live))
	for id := range s.live {
		dropped = append(dropped, id)
	}
	s.live = make(map[string]*registration)
	s.queue = nil
	s.metrics.setPending(0)
	close(s.done)
	s.mu.Unlock()

	s.inflight.Wait()
	return dropped
}

func (s *Scheduler) nextDeadline() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queue.Len() == 0 {
		return time.Time{}, false
	}
	return s.queue[0].deadline, true
}

func (s *Scheduler) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}
