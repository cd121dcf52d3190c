// Package refresh runs a fetch operation on a fixed interval and tracks the
// latest result, the last failure and how stale the data is.
//
// A Coordinator owns one goroutine that arms timers and applies results.
// Fetches run on their own goroutines, so a slow fetch never delays the
// next tick. Every attempt carries a sequence number and a result is only
// applied when it is newer than the last applied one; an early attempt that
// settles late is discarded. Once the coordinator is torn down nothing more
// is applied and no callbacks or events fire.
package refresh

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
	"k8s.io/utils/clock"
)

type result[T any] struct {
	seq     uint64
	data    T
	err     error
	started time.Time
}

// Coordinator periodically refreshes a value of type T.
type Coordinator[T any] struct {
	cfg     Config[T]
	log     *zap.Logger
	mail    *mailbox
	results chan result[T]
	done    chan struct{}

	mu      sync.RWMutex
	state   State[T]
	started bool
	stopped bool
	cancel  context.CancelFunc
	subs    map[int]chan Event[T]
	nextSub int

	// Owned by the loop goroutine.
	waiters  map[uint64]chan struct{}
	timer    clock.Timer
	tick     <-chan time.Time
	failures int
}

// New validates cfg and returns an inactive coordinator.
func New[T any](cfg Config[T]) (*Coordinator[T], error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &Coordinator[T]{
		cfg:     cfg,
		log:     cfg.Logger.With(zap.String("source", cfg.Name)),
		mail:    newMailbox(),
		results: make(chan result[T]),
		done:    make(chan struct{}),
		subs:    make(map[int]chan Event[T]),
		waiters: make(map[uint64]chan struct{}),
	}, nil
}

// Name returns the configured name.
func (c *Coordinator[T]) Name() string { return c.cfg.Name }

// Interval returns the automatic refresh period.
func (c *Coordinator[T]) Interval() time.Duration { return c.cfg.Interval }

// Start activates the coordinator. Unless Config.Lazy is set one fetch
// begins immediately, before the first tick. Cancelling ctx tears the
// coordinator down just like Stop.
func (c *Coordinator[T]) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return ErrStopped
	}
	if c.started {
		return ErrAlreadyStarted
	}
	c.started = true
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	go c.run(runCtx)
	return nil
}

// Stop tears the coordinator down and waits for its goroutine to exit.
// In-flight fetches see their context cancelled; whatever they return is
// ignored. Stop must not be called from OnUpdate or OnError.
func (c *Coordinator[T]) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		<-c.done
		return
	}
	c.stopped = true
	cancel := c.cancel
	c.mu.Unlock()

	if cancel == nil {
		c.teardown()
		return
	}
	cancel()
	<-c.done
}

// Done is closed once the coordinator has been torn down.
func (c *Coordinator[T]) Done() <-chan struct{} { return c.done }

// Refresh begins one fetch attempt regardless of the timer or pause state.
// The returned channel is closed when that attempt settles, whether its
// result was applied or discarded, or when the coordinator is torn down.
func (c *Coordinator[T]) Refresh() <-chan struct{} {
	done := make(chan struct{})
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.stopped {
		close(done)
		return done
	}
	c.mail.push(request{cmd: cmdRefresh, done: done})
	return done
}

// Pause suspends automatic ticks. In-flight fetches still settle and
// Refresh keeps working.
func (c *Coordinator[T]) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped || c.state.Paused {
		return
	}
	c.state.Paused = true
	c.mail.push(request{cmd: cmdPause})
}

// Resume restarts automatic ticks one full interval from now. It does not
// fetch by itself.
func (c *Coordinator[T]) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped || !c.state.Paused {
		return
	}
	c.state.Paused = false
	c.mail.push(request{cmd: cmdResume})
}

// State returns a snapshot with SecondsAgo computed against the clock.
func (c *Coordinator[T]) State() State[T] {
	c.mu.RLock()
	s := c.state
	c.mu.RUnlock()

	s.Loading = s.InFlight > 0
	if !s.LastSync.IsZero() {
		s.SecondsAgo = int(c.cfg.Clock.Since(s.LastSync) / time.Second)
	}
	return s
}

// Status returns State without the payload.
func (c *Coordinator[T]) Status() Status {
	s := c.State()
	return Status{
		Name:       c.cfg.Name,
		HasData:    s.HasData,
		Loading:    s.Loading,
		InFlight:   s.InFlight,
		Paused:     s.Paused,
		LastSync:   s.LastSync,
		SecondsAgo: s.SecondsAgo,
		Err:        s.Err,
		Started:    s.Started,
		Applied:    s.Applied,
	}
}

// Subscribe returns a stream of events. Events are dropped for a
// subscriber whose buffer is full. The channel is closed by cancel or at
// teardown.
func (c *Coordinator[T]) Subscribe(buffer int) (<-chan Event[T], func()) {
	ch := make(chan Event[T], max(buffer, 0))

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if sub, ok := c.subs[id]; ok {
				delete(c.subs, id)
				close(sub)
			}
		})
	}
}

func (c *Coordinator[T]) run(ctx context.Context) {
	defer c.teardown()

	c.log.Debug("refresh coordinator started",
		zap.Duration("interval", c.cfg.Interval),
		zap.Bool("immediate", !c.cfg.Lazy))

	if !c.cfg.Lazy {
		c.begin(ctx, nil)
	}
	if !c.paused() {
		c.arm(c.cfg.Interval)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.tick:
			c.tick = nil
			if c.paused() {
				continue
			}
			c.arm(c.cfg.Interval)
			c.begin(ctx, nil)
		case <-c.mail.notify:
			for _, r := range c.mail.drain() {
				c.handle(ctx, r)
			}
		case res := <-c.results:
			c.settle(ctx, res)
		}
	}
}

func (c *Coordinator[T]) handle(ctx context.Context, r request) {
	if ctx.Err() != nil {
		if r.done != nil {
			close(r.done)
		}
		return
	}
	now := c.cfg.Clock.Now()
	switch r.cmd {
	case cmdRefresh:
		c.begin(ctx, r.done)
	case cmdPause:
		c.disarm()
		c.log.Debug("refresh paused")
		c.publish(Event[T]{Kind: EventPaused, At: now})
	case cmdResume:
		c.arm(c.cfg.Interval)
		c.log.Debug("refresh resumed")
		c.publish(Event[T]{Kind: EventResumed, At: now})
	}
}

func (c *Coordinator[T]) begin(ctx context.Context, done chan struct{}) {
	now := c.cfg.Clock.Now()

	c.mu.Lock()
	c.state.Started++
	seq := c.state.Started
	c.state.InFlight++
	c.state.Err = nil
	c.mu.Unlock()

	if done != nil {
		c.waiters[seq] = done
	}
	c.publish(Event[T]{Kind: EventStarted, Seq: seq, At: now})

	go func() {
		data, err := c.invoke(ctx)
		select {
		case c.results <- result[T]{seq: seq, data: data, err: err, started: now}:
		case <-ctx.Done():
		}
	}()
}

func (c *Coordinator[T]) invoke(ctx context.Context) (data T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("fetch panicked: %v", r)
		}
	}()
	return c.cfg.Fetch(ctx)
}

func (c *Coordinator[T]) settle(ctx context.Context, res result[T]) {
	if ctx.Err() != nil {
		return
	}
	now := c.cfg.Clock.Now()

	var fetchErr error
	if res.err != nil {
		fetchErr = &FetchError{Name: c.cfg.Name, Seq: res.seq, Err: res.err}
	}

	c.mu.Lock()
	c.state.InFlight--
	stale := res.seq <= c.state.Applied
	if !stale {
		c.state.Applied = res.seq
		if res.err == nil {
			c.state.Data = res.data
			c.state.HasData = true
			c.state.LastSync = now
		} else {
			c.state.Err = fetchErr
		}
	}
	c.mu.Unlock()

	ev := Event[T]{Seq: res.seq, At: now, Duration: now.Sub(res.started), Data: res.data, Err: fetchErr}
	switch {
	case stale:
		ev.Kind = EventDiscarded
		c.log.Debug("discarding stale refresh result", zap.Uint64("seq", res.seq))
		c.publish(ev)
	case res.err == nil:
		ev.Kind = EventUpdated
		c.publish(ev)
		c.recovered()
		if c.cfg.OnUpdate != nil {
			c.callback("OnUpdate", func() { c.cfg.OnUpdate(res.data) })
		}
	default:
		ev.Kind = EventFailed
		c.log.Warn("refresh failed", zap.Uint64("seq", res.seq), zap.Error(res.err))
		c.publish(ev)
		c.failed()
		if c.cfg.OnError != nil {
			c.callback("OnError", func() { c.cfg.OnError(fetchErr) })
		}
	}

	if w, ok := c.waiters[res.seq]; ok {
		delete(c.waiters, res.seq)
		close(w)
	}
}

// failed moves the next tick out by the backoff delay.
func (c *Coordinator[T]) failed() {
	if c.cfg.Backoff == nil {
		return
	}
	c.failures++
	d := c.cfg.Backoff.NextBackOff()
	if d == backoff.Stop || d <= 0 {
		d = c.cfg.Interval
	}
	if !c.paused() {
		c.arm(d)
	}
}

func (c *Coordinator[T]) recovered() {
	if c.cfg.Backoff == nil || c.failures == 0 {
		return
	}
	c.failures = 0
	c.cfg.Backoff.Reset()
	if !c.paused() {
		c.arm(c.cfg.Interval)
	}
}

func (c *Coordinator[T]) callback(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("refresh callback panicked", zap.String("callback", name), zap.Any("panic", r))
		}
	}()
	fn()
}

func (c *Coordinator[T]) publish(ev Event[T]) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, ch := range c.subs {
		select {
		case ch <- ev:
		default:
			c.log.Debug("dropping refresh event for slow subscriber", zap.Stringer("kind", ev.Kind))
		}
	}
}

func (c *Coordinator[T]) paused() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.Paused
}

func (c *Coordinator[T]) arm(d time.Duration) {
	c.disarm()
	c.timer = c.cfg.Clock.NewTimer(d)
	c.tick = c.timer.C()
}

func (c *Coordinator[T]) disarm() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.tick = nil
}

func (c *Coordinator[T]) teardown() {
	c.disarm()

	c.mu.Lock()
	c.stopped = true
	if c.cancel != nil {
		c.cancel()
	}
	for id, ch := range c.subs {
		delete(c.subs, id)
		close(ch)
	}
	c.mu.Unlock()

	for seq, w := range c.waiters {
		delete(c.waiters, seq)
		close(w)
	}
	for _, r := range c.mail.drain() {
		if r.done != nil {
			close(r.done)
		}
	}
	c.log.Debug("refresh coordinator stopped")
	close(c.done)
}
