package refresh

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
	"k8s.io/utils/clock"
)

// DefaultInterval is the automatic refresh period when Config.Interval is zero.
const DefaultInterval = 5 * time.Second

var (
	// ErrNoFetch is returned by New when Config.Fetch is nil.
	ErrNoFetch = errors.New("refresh: fetch operation is required")
	// ErrAlreadyStarted is returned by a second Start on a Coordinator or
	// Group, and by Group.Add once the group is running.
	ErrAlreadyStarted = errors.New("refresh: coordinator already started")
	// ErrStopped is returned by Start on a coordinator that has been stopped.
	// Coordinators cannot be restarted.
	ErrStopped = errors.New("refresh: coordinator stopped")
)

// FetchFunc retrieves one payload. The context is cancelled when the
// coordinator is torn down.
type FetchFunc[T any] func(ctx context.Context) (T, error)

// Config configures a Coordinator.
type Config[T any] struct {
	// Name labels logs, events and statuses.
	Name string

	Fetch    FetchFunc[T]
	Interval time.Duration

	// Lazy skips the fetch that normally runs as soon as the coordinator starts.
	Lazy bool

	// OnUpdate and OnError run on the coordinator goroutine after an attempt
	// is applied. They may call Refresh, Pause and Resume but must not call Stop.
	OnUpdate func(T)
	OnError  func(error)

	// Backoff, when set, replaces the interval after consecutive failures.
	// A success resets it.
	Backoff backoff.BackOff

	Clock  clock.WithTicker
	Logger *zap.Logger
}

func (c *Config[T]) validate() error {
	if c.Fetch == nil {
		return ErrNoFetch
	}
	if c.Interval < 0 {
		return fmt.Errorf("refresh: negative interval %s", c.Interval)
	}
	return nil
}

func (c *Config[T]) applyDefaults() {
	if c.Interval == 0 {
		c.Interval = DefaultInterval
	}
	if c.Clock == nil {
		c.Clock = clock.RealClock{}
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}
