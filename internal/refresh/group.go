package refresh

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"k8s.io/utils/clock"
)

// DefaultGroupInterval is the period of the group-wide refresh broadcast.
const DefaultGroupInterval = 2 * time.Minute

// Member is the type-erased view of a Coordinator.
type Member interface {
	Name() string
	Start(ctx context.Context) error
	Stop()
	Refresh() <-chan struct{}
	Pause()
	Resume()
	Status() Status
}

var _ Member = (*Coordinator[struct{}])(nil)

// GroupConfig configures a Group. A negative Interval disables the
// broadcast.
type GroupConfig struct {
	Interval time.Duration
	Clock    clock.WithTicker
	Logger   *zap.Logger
}

// Group runs named coordinators together and periodically refreshes every
// member that is not paused.
type Group struct {
	cfg GroupConfig
	log *zap.Logger

	mu            sync.RWMutex
	members       []Member
	byName        map[string]Member
	started       bool
	cancel        context.CancelFunc
	lastBroadcast time.Time
	wg            sync.WaitGroup
}

// NewGroup creates an empty group.
func NewGroup(cfg GroupConfig) *Group {
	if cfg.Interval == 0 {
		cfg.Interval = DefaultGroupInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.RealClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Group{
		cfg:    cfg,
		log:    cfg.Logger,
		byName: make(map[string]Member),
	}
}

// Add registers a member. Members must be added before Start.
func (g *Group) Add(m Member) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.started {
		return ErrAlreadyStarted
	}
	if _, dup := g.byName[m.Name()]; dup {
		return fmt.Errorf("refresh: duplicate member %q", m.Name())
	}
	g.members = append(g.members, m)
	g.byName[m.Name()] = m
	return nil
}

// Get looks a member up by name.
func (g *Group) Get(name string) (Member, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	m, ok := g.byName[name]
	return m, ok
}

// Names returns member names in registration order.
func (g *Group) Names() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	names := make([]string, len(g.members))
	for i, m := range g.members {
		names[i] = m.Name()
	}
	return names
}

// Statuses returns each member's status in registration order.
func (g *Group) Statuses() []Status {
	members := g.snapshot()
	out := make([]Status, 0, len(members))
	for _, m := range members {
		out = append(out, m.Status())
	}
	return out
}

// LastBroadcast is when the group last refreshed every member, or when it
// started.
func (g *Group) LastBroadcast() time.Time {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.lastBroadcast
}

// RefreshAll refreshes every member, paused or not. The channel closes when
// all of those attempts have settled.
func (g *Group) RefreshAll() <-chan struct{} {
	return g.refresh(g.snapshot())
}

// PauseAll pauses every member.
func (g *Group) PauseAll() {
	for _, m := range g.snapshot() {
		m.Pause()
	}
}

// ResumeAll resumes every member.
func (g *Group) ResumeAll() {
	for _, m := range g.snapshot() {
		m.Resume()
	}
}

// Start starts every member and the broadcast loop.
func (g *Group) Start(ctx context.Context) error {
	g.mu.Lock()
	if g.started {
		g.mu.Unlock()
		return ErrAlreadyStarted
	}
	g.started = true
	g.lastBroadcast = g.cfg.Clock.Now()
	runCtx, cancel := context.WithCancel(ctx)
	g.cancel = cancel
	members := append([]Member(nil), g.members...)
	g.mu.Unlock()

	for _, m := range members {
		if err := m.Start(runCtx); err != nil {
			cancel()
			return fmt.Errorf("starting %s: %w", m.Name(), err)
		}
	}

	if g.cfg.Interval > 0 {
		ticker := g.cfg.Clock.NewTicker(g.cfg.Interval)
		g.wg.Add(1)
		go g.broadcastLoop(runCtx, ticker)
	}
	return nil
}

// Stop stops the broadcast loop and every member.
func (g *Group) Stop() {
	g.mu.Lock()
	cancel := g.cancel
	g.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	g.wg.Wait()
	for _, m := range g.snapshot() {
		m.Stop()
	}
}

func (g *Group) broadcastLoop(ctx context.Context, ticker clock.Ticker) {
	defer g.wg.Done()
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			g.mu.Lock()
			g.lastBroadcast = g.cfg.Clock.Now()
			g.mu.Unlock()

			var active []Member
			for _, m := range g.snapshot() {
				if !m.Status().Paused {
					active = append(active, m)
				}
			}
			g.log.Debug("group refresh broadcast", zap.Int("members", len(active)))
			g.refresh(active)
		}
	}
}

func (g *Group) refresh(members []Member) <-chan struct{} {
	waits := make([]<-chan struct{}, 0, len(members))
	for _, m := range members {
		waits = append(waits, m.Refresh())
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, w := range waits {
			<-w
		}
	}()
	return done
}

func (g *Group) snapshot() []Member {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]Member(nil), g.members...)
}
