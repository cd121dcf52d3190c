package refresh

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"
)

type payload struct {
	V int
}

var epoch = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

const (
	waitFor = 2 * time.Second
	poll    = time.Millisecond
)

// counter is a fetch operation that returns {V: n} on its n-th call.
type counter struct {
	calls atomic.Int64
}

func (c *counter) fetch(context.Context) (payload, error) {
	return payload{V: int(c.calls.Add(1))}, nil
}

func (c *counter) n() int { return int(c.calls.Load()) }

func newTestCoordinator(t *testing.T, cfg Config[payload]) (*Coordinator[payload], *testingclock.FakeClock) {
	t.Helper()
	fc := testingclock.NewFakeClock(epoch)
	cfg.Clock = fc
	c, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(c.Stop)
	return c, fc
}

func waitForTimer(t *testing.T, fc *testingclock.FakeClock) {
	t.Helper()
	require.Eventually(t, fc.HasWaiters, waitFor, poll, "timer was never armed")
}

func waitClosed(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(waitFor):
		t.Fatal("timed out waiting for attempt to settle")
	}
}

func settled(c *Coordinator[payload], applied uint64) func() bool {
	return func() bool {
		s := c.State()
		return s.Applied == applied && !s.Loading
	}
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config[payload]{})
	assert.ErrorIs(t, err, ErrNoFetch)

	src := &counter{}
	_, err = New(Config[payload]{Fetch: src.fetch, Interval: -time.Second})
	assert.Error(t, err)

	c, err := New(Config[payload]{Fetch: src.fetch})
	require.NoError(t, err)
	assert.Equal(t, DefaultInterval, c.Interval())
}

func TestStart_ImmediateFetchBeforeFirstTick(t *testing.T) {
	src := &counter{}
	c, fc := newTestCoordinator(t, Config[payload]{Fetch: src.fetch, Interval: time.Second})
	require.NoError(t, c.Start(context.Background()))

	waitForTimer(t, fc)
	assert.Equal(t, uint64(1), c.State().Started, "one attempt begins before the first tick")
	require.Eventually(t, settled(c, 1), waitFor, poll)
	assert.Equal(t, payload{V: 1}, c.State().Data)

	fc.Step(time.Second)
	require.Eventually(t, func() bool { return c.State().Started == 2 }, waitFor, poll)
}

func TestStart_Lazy(t *testing.T) {
	src := &counter{}
	c, fc := newTestCoordinator(t, Config[payload]{Fetch: src.fetch, Interval: time.Second, Lazy: true})
	require.NoError(t, c.Start(context.Background()))

	waitForTimer(t, fc)
	s := c.State()
	assert.Zero(t, s.Started)
	assert.False(t, s.HasData)
	assert.False(t, s.Loading)

	fc.Step(time.Second)
	require.Eventually(t, settled(c, 1), waitFor, poll)
	assert.Equal(t, 1, src.n())
}

func TestStart_Twice(t *testing.T) {
	src := &counter{}
	c, _ := newTestCoordinator(t, Config[payload]{Fetch: src.fetch})
	require.NoError(t, c.Start(context.Background()))
	assert.ErrorIs(t, c.Start(context.Background()), ErrAlreadyStarted)

	c.Stop()
	assert.ErrorIs(t, c.Start(context.Background()), ErrStopped)
}

func TestScenario_ThreeTicks(t *testing.T) {
	src := &counter{}
	c, fc := newTestCoordinator(t, Config[payload]{Fetch: src.fetch, Interval: time.Second})
	require.NoError(t, c.Start(context.Background()))

	// t=0
	waitForTimer(t, fc)
	require.Eventually(t, func() bool { return src.n() == 1 }, waitFor, poll)

	// t=1000ms
	fc.Step(time.Second)
	waitForTimer(t, fc)
	require.Eventually(t, func() bool { return src.n() == 2 }, waitFor, poll)

	// t=2000ms
	fc.Step(time.Second)
	waitForTimer(t, fc)
	require.Eventually(t, func() bool { return src.n() == 3 }, waitFor, poll)

	// t=2500ms, the next tick is due at 3000ms.
	fc.Step(500 * time.Millisecond)

	require.Eventually(t, settled(c, 3), waitFor, poll)
	s := c.State()
	assert.Equal(t, payload{V: 3}, s.Data)
	assert.False(t, s.Loading)
	assert.Equal(t, uint64(3), s.Started)
	assert.Equal(t, 3, src.n())
}

func TestSecondsAgo(t *testing.T) {
	src := &counter{}
	c, fc := newTestCoordinator(t, Config[payload]{Fetch: src.fetch, Interval: time.Hour})
	require.NoError(t, c.Start(context.Background()))
	require.Eventually(t, settled(c, 1), waitFor, poll)

	s := c.State()
	assert.Equal(t, 0, s.SecondsAgo)
	assert.Equal(t, epoch, s.LastSync)

	for want := 1; want <= 3; want++ {
		fc.Step(time.Second)
		assert.Equal(t, want, c.State().SecondsAgo)
	}
	fc.Step(1500 * time.Millisecond)
	assert.Equal(t, 4, c.State().SecondsAgo, "whole seconds only")

	waitClosed(t, c.Refresh())
	s = c.State()
	assert.Equal(t, 0, s.SecondsAgo)
	assert.Equal(t, epoch.Add(4500*time.Millisecond), s.LastSync)
}

func TestSecondsAgo_BeforeFirstSync(t *testing.T) {
	src := &counter{}
	c, fc := newTestCoordinator(t, Config[payload]{Fetch: src.fetch, Lazy: true})
	fc.Step(time.Minute)
	s := c.State()
	assert.Zero(t, s.SecondsAgo)
	assert.True(t, s.LastSync.IsZero())
}

func TestPauseResume(t *testing.T) {
	src := &counter{}
	c, fc := newTestCoordinator(t, Config[payload]{Fetch: src.fetch, Interval: time.Second})
	require.NoError(t, c.Start(context.Background()))
	waitForTimer(t, fc)
	require.Eventually(t, settled(c, 1), waitFor, poll)

	c.Pause()
	assert.True(t, c.State().Paused)
	require.Eventually(t, func() bool { return !fc.HasWaiters() }, waitFor, poll, "pause stops the timer")

	fc.Step(5 * time.Second)
	assert.Never(t, func() bool { return c.State().Started > 1 }, 50*time.Millisecond, 5*time.Millisecond)

	c.Resume()
	assert.False(t, c.State().Paused)
	waitForTimer(t, fc)
	assert.Equal(t, uint64(1), c.State().Started, "resume does not fetch by itself")

	// The schedule restarts at the resume point.
	fc.Step(999 * time.Millisecond)
	assert.Never(t, func() bool { return c.State().Started > 1 }, 50*time.Millisecond, 5*time.Millisecond)
	fc.Step(time.Millisecond)
	require.Eventually(t, settled(c, 2), waitFor, poll)
}

func TestPause_Idempotent(t *testing.T) {
	src := &counter{}
	c, fc := newTestCoordinator(t, Config[payload]{Fetch: src.fetch, Interval: time.Second})
	events, cancel := c.Subscribe(16)
	defer cancel()
	require.NoError(t, c.Start(context.Background()))
	waitForTimer(t, fc)

	c.Pause()
	c.Pause()
	c.Resume()
	c.Resume()

	var kinds []EventKind
	require.Eventually(t, func() bool {
		for {
			select {
			case ev := <-events:
				if ev.Kind == EventPaused || ev.Kind == EventResumed {
					kinds = append(kinds, ev.Kind)
				}
			default:
				return len(kinds) == 2
			}
		}
	}, waitFor, poll)
	assert.Equal(t, []EventKind{EventPaused, EventResumed}, kinds)
}

func TestRefresh_WhilePaused(t *testing.T) {
	src := &counter{}
	var updates atomic.Int64
	c, fc := newTestCoordinator(t, Config[payload]{
		Fetch:    src.fetch,
		Interval: time.Second,
		OnUpdate: func(payload) { updates.Add(1) },
	})
	require.NoError(t, c.Start(context.Background()))
	require.Eventually(t, settled(c, 1), waitFor, poll)

	c.Pause()
	waitClosed(t, c.Refresh())

	s := c.State()
	assert.True(t, s.Paused)
	assert.Equal(t, uint64(2), s.Started)
	assert.Equal(t, payload{V: 2}, s.Data)
	assert.Equal(t, int64(2), updates.Load())
	assert.False(t, fc.HasWaiters(), "manual refresh does not re-arm the timer")
}

func TestRefresh_BeforeStart(t *testing.T) {
	src := &counter{}
	c, _ := newTestCoordinator(t, Config[payload]{Fetch: src.fetch, Lazy: true, Interval: time.Hour})
	done := c.Refresh()

	require.NoError(t, c.Start(context.Background()))
	waitClosed(t, done)
	assert.Equal(t, payload{V: 1}, c.State().Data)
}

func TestFetchFailure(t *testing.T) {
	netErr := errors.New("network error")
	var calls atomic.Int64
	var errs atomic.Int64
	var lastErr atomic.Value
	c, fc := newTestCoordinator(t, Config[payload]{
		Name:     "geos",
		Interval: time.Second,
		Fetch: func(context.Context) (payload, error) {
			n := calls.Add(1)
			if n == 2 {
				return payload{}, netErr
			}
			return payload{V: int(n)}, nil
		},
		OnError: func(err error) {
			errs.Add(1)
			lastErr.Store(err)
		},
	})
	require.NoError(t, c.Start(context.Background()))
	waitForTimer(t, fc)
	require.Eventually(t, settled(c, 1), waitFor, poll)

	fc.Step(time.Second)
	waitForTimer(t, fc)
	require.Eventually(t, settled(c, 2), waitFor, poll)

	s := c.State()
	require.Error(t, s.Err)
	assert.ErrorIs(t, s.Err, netErr)
	assert.Contains(t, s.Err.Error(), "network error")
	var fe *FetchError
	require.ErrorAs(t, s.Err, &fe)
	assert.Equal(t, uint64(2), fe.Seq)
	assert.Equal(t, "geos", fe.Name)
	assert.Equal(t, payload{V: 1}, s.Data, "data is left in place on failure")
	assert.Equal(t, epoch, s.LastSync)
	assert.Equal(t, int64(1), errs.Load())
	assert.ErrorIs(t, lastErr.Load().(error), netErr)

	// The timer keeps ticking at the configured interval.
	fc.Step(time.Second)
	require.Eventually(t, settled(c, 3), waitFor, poll)
	s = c.State()
	assert.NoError(t, s.Err, "a new attempt clears the error")
	assert.Equal(t, payload{V: 3}, s.Data)
}

func TestFetchPanic(t *testing.T) {
	c, _ := newTestCoordinator(t, Config[payload]{
		Interval: time.Hour,
		Fetch: func(context.Context) (payload, error) {
			panic("boom")
		},
	})
	require.NoError(t, c.Start(context.Background()))
	require.Eventually(t, settled(c, 1), waitFor, poll)
	err := c.State().Err
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetch panicked: boom")
}

func TestCallbackPanicDoesNotKillLoop(t *testing.T) {
	src := &counter{}
	c, _ := newTestCoordinator(t, Config[payload]{
		Fetch:    src.fetch,
		Interval: time.Hour,
		OnUpdate: func(payload) { panic("consumer bug") },
	})
	require.NoError(t, c.Start(context.Background()))
	require.Eventually(t, settled(c, 1), waitFor, poll)

	waitClosed(t, c.Refresh())
	assert.Equal(t, payload{V: 2}, c.State().Data)
}

func TestCallbackMayRefresh(t *testing.T) {
	src := &counter{}
	var c *Coordinator[payload]
	c, _ = newTestCoordinator(t, Config[payload]{
		Fetch:    src.fetch,
		Interval: time.Hour,
		OnUpdate: func(p payload) {
			if p.V == 1 {
				c.Refresh()
			}
		},
	})
	require.NoError(t, c.Start(context.Background()))
	require.Eventually(t, settled(c, 2), waitFor, poll)
	assert.Equal(t, payload{V: 2}, c.State().Data)
}

// gated hands out one gate per call so a test controls settle order.
type gated struct {
	calls atomic.Int64
	gates []chan payload
}

func newGated(n int) *gated {
	g := &gated{gates: make([]chan payload, n)}
	for i := range g.gates {
		g.gates[i] = make(chan payload)
	}
	return g
}

func (g *gated) fetch(ctx context.Context) (payload, error) {
	n := g.calls.Add(1)
	select {
	case p := <-g.gates[n-1]:
		return p, nil
	case <-ctx.Done():
		return payload{}, ctx.Err()
	}
}

func TestOverlappingAttempts_StaleResultDiscarded(t *testing.T) {
	src := newGated(2)
	var updates atomic.Int64
	c, _ := newTestCoordinator(t, Config[payload]{
		Fetch:    src.fetch,
		Interval: time.Hour,
		Lazy:     true,
		OnUpdate: func(payload) { updates.Add(1) },
	})
	events, cancel := c.Subscribe(16)
	defer cancel()
	require.NoError(t, c.Start(context.Background()))

	first := c.Refresh()
	require.Eventually(t, func() bool { return src.calls.Load() == 1 }, waitFor, poll)
	second := c.Refresh()
	require.Eventually(t, func() bool { return src.calls.Load() == 2 }, waitFor, poll)

	s := c.State()
	assert.True(t, s.Loading)
	assert.Equal(t, 2, s.InFlight)

	src.gates[1] <- payload{V: 2}
	waitClosed(t, second)
	s = c.State()
	assert.Equal(t, payload{V: 2}, s.Data)
	assert.True(t, s.Loading, "first attempt still in flight")

	src.gates[0] <- payload{V: 1}
	waitClosed(t, first)
	s = c.State()
	assert.Equal(t, payload{V: 2}, s.Data, "late result from an older attempt is discarded")
	assert.Equal(t, uint64(2), s.Applied)
	assert.False(t, s.Loading)
	assert.Equal(t, int64(1), updates.Load())

	var discarded []uint64
	for len(events) > 0 {
		if ev := <-events; ev.Kind == EventDiscarded {
			discarded = append(discarded, ev.Seq)
		}
	}
	assert.Equal(t, []uint64{1}, discarded)
}

func TestStop_SuppressesLateResults(t *testing.T) {
	release := make(chan struct{})
	var updates, failures atomic.Int64
	c, fc := newTestCoordinator(t, Config[payload]{
		Interval: time.Second,
		Fetch: func(context.Context) (payload, error) {
			// Ignores cancellation on purpose: resolves only after teardown.
			<-release
			return payload{V: 99}, nil
		},
		OnUpdate: func(payload) { updates.Add(1) },
		OnError:  func(error) { failures.Add(1) },
	})
	events, _ := c.Subscribe(16)
	require.NoError(t, c.Start(context.Background()))
	waitForTimer(t, fc)
	require.Eventually(t, func() bool { return c.State().Loading }, waitFor, poll)

	before := c.State()
	c.Stop()
	close(release)

	assert.Never(t, func() bool {
		return updates.Load() > 0 || failures.Load() > 0
	}, 50*time.Millisecond, 5*time.Millisecond)
	assert.Equal(t, before, c.State())
	assert.False(t, fc.HasWaiters(), "teardown cancels the timer")

	// Only the start event was delivered before the channel closed.
	var kinds []EventKind
	for ev := range events {
		kinds = append(kinds, ev.Kind)
	}
	assert.Equal(t, []EventKind{EventStarted}, kinds)

	waitClosed(t, c.Refresh())
	assert.Equal(t, before.Started, c.State().Started)
}

func TestStop_ViaContext(t *testing.T) {
	src := &counter{}
	c, _ := newTestCoordinator(t, Config[payload]{Fetch: src.fetch})
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, c.Start(ctx))
	cancel()
	waitClosed(t, c.Done())
}

func TestStop_BeforeStart(t *testing.T) {
	src := &counter{}
	c, _ := newTestCoordinator(t, Config[payload]{Fetch: src.fetch})
	pending := c.Refresh()
	c.Stop()
	waitClosed(t, c.Done())
	waitClosed(t, pending)
	c.Stop()
}

func TestSubscribe_EventOrder(t *testing.T) {
	src := &counter{}
	c, _ := newTestCoordinator(t, Config[payload]{Fetch: src.fetch, Interval: time.Hour})
	events, cancel := c.Subscribe(8)
	require.NoError(t, c.Start(context.Background()))
	require.Eventually(t, settled(c, 1), waitFor, poll)

	started := <-events
	updated := <-events
	assert.Equal(t, EventStarted, started.Kind)
	assert.Equal(t, EventUpdated, updated.Kind)
	assert.Equal(t, uint64(1), updated.Seq)
	assert.Equal(t, payload{V: 1}, updated.Data)

	cancel()
	_, open := <-events
	assert.False(t, open)
	cancel()
}

func TestBackoff(t *testing.T) {
	var calls atomic.Int64
	var failed, recovered atomic.Bool
	c, fc := newTestCoordinator(t, Config[payload]{
		Interval: time.Second,
		Backoff:  backoff.NewConstantBackOff(10 * time.Second),
		Fetch: func(context.Context) (payload, error) {
			if calls.Add(1) == 1 {
				return payload{}, errors.New("unavailable")
			}
			return payload{V: 2}, nil
		},
		OnError:  func(error) { failed.Store(true) },
		OnUpdate: func(payload) { recovered.Store(true) },
	})
	require.NoError(t, c.Start(context.Background()))
	require.Eventually(t, failed.Load, waitFor, poll)

	fc.Step(time.Second)
	assert.Never(t, func() bool { return c.State().Started > 1 }, 50*time.Millisecond, 5*time.Millisecond)

	fc.Step(9 * time.Second)
	require.Eventually(t, recovered.Load, waitFor, poll)

	// Back on the regular interval after a success.
	fc.Step(time.Second)
	require.Eventually(t, func() bool { return c.State().Started == 3 }, waitFor, poll)
}

func TestEventKindString(t *testing.T) {
	assert.Equal(t, "discarded", EventDiscarded.String())
	assert.Equal(t, "EventKind(42)", EventKind(42).String())
}
