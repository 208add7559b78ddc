package expiry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 2, 6, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recorder struct {
	mu    sync.Mutex
	calls map[string]int
	seen  chan string
}

func newRecorder() *recorder {
	return &recorder{calls: make(map[string]int), seen: make(chan string, 2048)}
}

func (r *recorder) callback(id string) error {
	r.mu.Lock()
	r.calls[id]++
	r.mu.Unlock()
	r.seen <- id
	return nil
}

func (r *recorder) count(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[id]
}

func (r *recorder) waitFor(t *testing.T, n int) {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for i := 0; i < n; i++ {
		select {
		case <-r.seen:
		case <-timeout:
			t.Fatalf("timed out after %d of %d callbacks", i, n)
		}
	}
}

func TestTickFiresOnlyDueRegistrations(t *testing.T) {
	clock := newFakeClock()
	s := New(WithClock(clock.Now))
	defer s.Close()
	rec := newRecorder()

	for i := 1; i <= 3; i++ {
		if err := s.Schedule(fmt.Sprintf("m%d", i), clock.Now().Add(time.Duration(i)*time.Minute), rec.callback); err != nil {
			t.Fatalf("schedule m%d: %v", i, err)
		}
	}
	if n := s.Tick(); n != 0 {
		t.Fatalf("nothing is due yet, dispatched %d", n)
	}

	clock.Advance(2 * time.Minute)
	if n := s.Tick(); n != 2 {
		t.Fatalf("expected 2 dispatched, got %d", n)
	}
	rec.waitFor(t, 2)
	if rec.count("m1") != 1 || rec.count("m2") != 1 || rec.count("m3") != 0 {
		t.Fatalf("unexpected calls: %v", rec.calls)
	}
	if s.Pending() != 1 {
		t.Fatalf("expected 1 pending, got %d", s.Pending())
	}
	if n := s.Tick(); n != 0 {
		t.Fatalf("fired registrations must not fire again, dispatched %d", n)
	}
}

func TestDeadlineInThePastFiresOnNextTick(t *testing.T) {
	clock := newFakeClock()
	s := New(WithClock(clock.Now))
	defer s.Close()
	rec := newRecorder()

	if err := s.Schedule("late", clock.Now().Add(-time.Hour), rec.callback); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if n := s.Tick(); n != 1 {
		t.Fatalf("expected immediate dispatch, got %d", n)
	}
	rec.waitFor(t, 1)
}

func TestScheduleReplacesExistingRegistration(t *testing.T) {
	clock := newFakeClock()
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	s := New(WithClock(clock.Now), WithMetrics(m))
	defer s.Close()
	rec := newRecorder()

	_ = s.Schedule("m", clock.Now().Add(time.Minute), rec.callback)
	later := clock.Now().Add(time.Hour)
	_ = s.Schedule("m", later, rec.callback)

	if s.Pending() != 1 {
		t.Fatalf("replace must keep one registration, got %d", s.Pending())
	}
	if got, ok := s.Deadline("m"); !ok || !got.Equal(later) {
		t.Fatalf("deadline not replaced: %v %v", got, ok)
	}
	clock.Advance(2 * time.Minute)
	if n := s.Tick(); n != 0 {
		t.Fatalf("old deadline must not fire, dispatched %d", n)
	}
	if testutil.ToFloat64(m.Replaced) != 1 || testutil.ToFloat64(m.Scheduled) != 2 {
		t.Fatalf("unexpected counters replaced=%v scheduled=%v", testutil.ToFloat64(m.Replaced), testutil.ToFloat64(m.Scheduled))
	}
	if testutil.ToFloat64(m.Pending) != 1 {
		t.Fatalf("unexpected pending gauge %v", testutil.ToFloat64(m.Pending))
	}
}

func TestCancel(t *testing.T) {
	clock := newFakeClock()
	s := New(WithClock(clock.Now))
	defer s.Close()
	rec := newRecorder()

	_ = s.Schedule("a", clock.Now().Add(time.Minute), rec.callback)
	_ = s.Schedule("b", clock.Now().Add(time.Minute), rec.callback)
	if !s.Cancel("a") {
		t.Fatal("cancel of pending registration must report true")
	}
	if s.Cancel("a") || s.Cancel("unknown") {
		t.Fatal("cancel of missing registration must report false")
	}

	clock.Advance(time.Minute)
	if n := s.Tick(); n != 1 {
		t.Fatalf("expected only b to fire, got %d", n)
	}
	rec.waitFor(t, 1)
	if rec.count("a") != 0 {
		t.Fatal("cancelled registration fired")
	}
	if s.Cancel("b") {
		t.Fatal("cancel after fire must report false")
	}
}

func TestFailingCallbacksAreIsolated(t *testing.T) {
	clock := newFakeClock()
	m, _ := NewMetrics(nil)
	s := New(WithClock(clock.Now), WithMetrics(m))
	rec := newRecorder()

	_ = s.Schedule("panics", clock.Now(), func(string) error { panic("boom") })
	_ = s.Schedule("errors", clock.Now(), func(string) error { return errors.New("disk gone") })
	_ = s.Schedule("ok", clock.Now(), rec.callback)

	if n := s.Tick(); n != 3 {
		t.Fatalf("expected 3 dispatched, got %d", n)
	}
	rec.waitFor(t, 1)
	s.Close()

	if got := testutil.ToFloat64(m.CallbackFailures); got != 2 {
		t.Fatalf("expected 2 callback failures, got %v", got)
	}
	if got := testutil.ToFloat64(m.Fired); got != 3 {
		t.Fatalf("expected 3 fired, got %v", got)
	}
}

func TestSlowCallbackDoesNotDelayOthers(t *testing.T) {
	clock := newFakeClock()
	s := New(WithClock(clock.Now))
	release := make(chan struct{})
	rec := newRecorder()

	_ = s.Schedule("slow", clock.Now(), func(string) error {
		<-release
		return nil
	})
	_ = s.Schedule("fast", clock.Now().Add(time.Second), rec.callback)

	s.Tick()
	clock.Advance(time.Second)
	s.Tick()
	rec.waitFor(t, 1)

	close(release)
	s.Close()
}

func TestRunFiresEachRegistrationExactlyOnce(t *testing.T) {
	s := New(WithResumeCheckInterval(20 * time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	rec := newRecorder()
	const total = 1000
	start := time.Now()
	for i := 0; i < total; i++ {
		deadline := start.Add(time.Duration(i%50) * 2 * time.Millisecond)
		if err := s.Schedule(fmt.Sprintf("msg-%04d", i), deadline, rec.callback); err != nil {
			t.Fatalf("schedule %d: %v", i, err)
		}
	}
	rec.waitFor(t, total)
	s.Close()

	for i := 0; i < total; i++ {
		if c := rec.count(fmt.Sprintf("msg-%04d", i)); c != 1 {
			t.Fatalf("msg-%04d fired %d times", i, c)
		}
	}
	if s.Pending() != 0 {
		t.Fatalf("expected no pending registrations, got %d", s.Pending())
	}
}

func TestCancelRacingDeadlineFiresAtMostOnce(t *testing.T) {
	clock := newFakeClock()
	s := New(WithClock(clock.Now))
	const rounds = 200
	calls := make([]atomic.Int32, rounds)
	cancelled := make([]bool, rounds)

	for i := 0; i < rounds; i++ {
		id := fmt.Sprintf("race-%d", i)
		_ = s.Schedule(id, clock.Now(), func(string) error {
			calls[i].Add(1)
			return nil
		})

		var wg sync.WaitGroup
		wg.Add(2)
		go func() { defer wg.Done(); s.Tick() }()
		go func() { defer wg.Done(); cancelled[i] = s.Cancel(id) }()
		wg.Wait()

		if _, ok := s.Deadline(id); ok {
			t.Fatalf("%s: registration left dangling", id)
		}
	}
	s.Close()

	for i := 0; i < rounds; i++ {
		got := calls[i].Load()
		if cancelled[i] && got != 0 {
			t.Fatalf("round %d: cancelled registration fired", i)
		}
		if !cancelled[i] && got != 1 {
			t.Fatalf("round %d: expected exactly one callback, got %d", i, got)
		}
	}
}

func TestRunCatchesUpAfterClockJump(t *testing.T) {
	clock := newFakeClock()
	s := New(WithClock(clock.Now), WithResumeCheckInterval(5*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	rec := newRecorder()
	_ = s.Schedule("sleeper", clock.Now().Add(10*time.Minute), rec.callback)

	// The host was suspended: wall time jumps far past the deadline.
	clock.Advance(3 * time.Hour)
	rec.waitFor(t, 1)

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("run did not stop")
	}
	s.Close()
}

func TestClosedScheduler(t *testing.T) {
	clock := newFakeClock()
	s := New(WithClock(clock.Now))
	rec := newRecorder()
	_ = s.Schedule("x", clock.Now().Add(time.Minute), rec.callback)

	dropped := s.Close()
	if len(dropped) != 1 || dropped[0] != "x" {
		t.Fatalf("unexpected dropped ids %v", dropped)
	}
	if err := s.Schedule("y", clock.Now(), rec.callback); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	clock.Advance(time.Hour)
	if n := s.Tick(); n != 0 {
		t.Fatalf("closed scheduler dispatched %d", n)
	}
	if err := s.Run(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed from run, got %v", err)
	}
	if s.Close() != nil {
		t.Fatal("second close must be a no-op")
	}
}

func TestScheduleRejectsInvalidRegistration(t *testing.T) {
	s := New()
	defer s.Close()
	cb := func(string) error { return nil }
	now := time.Now()

	cases := map[string]func() error{
		"empty id":      func() error { return s.Schedule("", now, cb) },
		"blank id":      func() error { return s.Schedule("  ", now, cb) },
		"nil callback":  func() error { return s.Schedule("m", now, nil) },
		"zero deadline": func() error { return s.Schedule("m", time.Time{}, cb) },
	}
	for name, call := range cases {
		if err := call(); !errors.Is(err, ErrInvalidRegistration) {
			t.Fatalf("%s: expected ErrInvalidRegistration, got %v", name, err)
		}
	}
}

func TestPendingGaugeTracksRegistryUnderConcurrency(t *testing.T) {
	clock := newFakeClock()
	m, err := NewMetrics(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	s := New(WithClock(clock.Now), WithMetrics(m))
	defer s.Close()
	rec := newRecorder()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				id := fmt.Sprintf("w%d-%d", w, i%20)
				switch i % 3 {
				case 0:
					_ = s.Schedule(id, clock.Now().Add(time.Duration(i%5)*time.Second), rec.callback)
				case 1:
					s.Cancel(id)
				default:
					s.Tick()
				}
			}
		}(w)
	}
	wg.Wait()

	if got, want := testutil.ToFloat64(m.Pending), float64(s.Pending()); got != want {
		t.Fatalf("pending gauge %v does not match registry size %v", got, want)
	}
}
