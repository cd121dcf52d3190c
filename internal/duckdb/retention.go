package duckdb

import (
	"sync"
	"time"

	"go.uber.org/zap"
	"k8s.io/utils/clock"
)

// RetentionConfig controls how long sync history is kept.
type RetentionConfig struct {
	// Window is the maximum age of a row. Zero disables the cleaner.
	Window time.Duration
	// Interval between sweeps. Defaults to min(Window, 1h).
	Interval time.Duration
	Clock    clock.WithTicker
	Logger   *zap.Logger
}

// RetentionCleaner periodically deletes sync history older than the window.
type RetentionCleaner struct {
	store    *Store
	window   time.Duration
	clock    clock.WithTicker
	log      *zap.Logger
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewRetentionCleaner sweeps once immediately and then on every interval.
// It returns nil when the window is not positive.
func NewRetentionCleaner(store *Store, cfg RetentionConfig) *RetentionCleaner {
	if cfg.Window <= 0 {
		return nil
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = min(cfg.Window, time.Hour)
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.RealClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	rc := &RetentionCleaner{
		store:  store,
		window: cfg.Window,
		clock:  cfg.Clock,
		log:    cfg.Logger.Named("retention"),
		done:   make(chan struct{}),
	}
	rc.Sweep()

	ticker := rc.clock.NewTicker(interval)
	rc.wg.Add(1)
	go rc.loop(ticker)
	return rc
}

func (rc *RetentionCleaner) loop(ticker clock.Ticker) {
	defer rc.wg.Done()
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C():
			rc.Sweep()
		case <-rc.done:
			return
		}
	}
}

// Sweep deletes expired rows and returns how many were removed.
func (rc *RetentionCleaner) Sweep() int64 {
	cutoff := rc.clock.Now().Add(-rc.window)
	n, err := rc.store.DeleteBefore(cutoff)
	if err != nil {
		rc.log.Warn("retention sweep failed", zap.Error(err))
		return 0
	}
	if n > 0 {
		rc.log.Info("retention sweep",
			zap.Int64("deleted", n),
			zap.Duration("window", rc.window))
	}
	return n
}

// Stop ends the sweep loop. Safe to call more than once.
func (rc *RetentionCleaner) Stop() {
	rc.stopOnce.Do(func() {
		close(rc.done)
		rc.wg.Wait()
	})
}
