// Package syncagent keeps the dashboard's four analytics sources fresh. Each
// source is a refresh coordinator; all four share a group whose broadcast
// refreshes everything on a slower cadence.
package syncagent

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
	"k8s.io/utils/clock"

	"github.com/tinytelemetry/adpulse/internal/adops"
	"github.com/tinytelemetry/adpulse/internal/metrics"
	"github.com/tinytelemetry/adpulse/internal/model"
	"github.com/tinytelemetry/adpulse/internal/refresh"
)

const (
	topCreatives   = 10
	recentFailures = 10
	eventBuffer    = 32
)

// ErrUnknownSource is returned by the control methods for a name that is not
// one of model.Sources.
var ErrUnknownSource = errors.New("unknown source")

// Fetcher retrieves the four analytics payloads. *apiclient.Client satisfies it.
type Fetcher interface {
	Creatives(ctx context.Context, n int) (model.CreativesResponse, error)
	Telemetry(ctx context.Context, n int) (model.TelemetryResponse, error)
	Geos(ctx context.Context) (model.GeosResponse, error)
	Pacing(ctx context.Context, n int) (model.PacingResponse, error)
}

// Config tunes the agent. Zero values select the defaults in model.
type Config struct {
	Interval       time.Duration
	GlobalInterval time.Duration
	// Lazy waits for the first tick instead of fetching on Start.
	Lazy bool
	// Timeout bounds a single fetch; zero leaves it to the fetcher.
	Timeout time.Duration

	CreativesCount int
	TelemetryCount int
	PacingCount    int

	// Backoff stretches the interval after consecutive failures, up to BackoffMax.
	// No delay after a failure is shorter than Interval.
	Backoff    bool
	BackoffMax time.Duration

	Clock   clock.WithTicker
	Metrics *metrics.Refresh
}

func (c *Config) applyDefaults() {
	if c.Interval <= 0 {
		c.Interval = model.DefaultRefreshInterval
	}
	if c.GlobalInterval == 0 {
		c.GlobalInterval = model.DefaultGlobalRefresh
	}
	if c.CreativesCount <= 0 {
		c.CreativesCount = model.DefaultCreativesCount
	}
	if c.TelemetryCount <= 0 {
		c.TelemetryCount = model.DefaultTelemetryCount
	}
	if c.PacingCount <= 0 {
		c.PacingCount = model.DefaultPacingCount
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = time.Minute
	}
	if c.Clock == nil {
		c.Clock = clock.RealClock{}
	}
}

// Agent owns the per-source coordinators.
type Agent struct {
	cfg     Config
	log     *zap.Logger
	history model.HistoryWriter

	group     *refresh.Group
	creatives *refresh.Coordinator[model.CreativesResponse]
	telemetry *refresh.Coordinator[model.TelemetryResponse]
	geos      *refresh.Coordinator[model.GeosResponse]
	pacing    *refresh.Coordinator[model.PacingResponse]

	watchers sync.WaitGroup
}

var _ model.AgentAPI = (*Agent)(nil)

// New builds the agent. history may be nil to skip recording attempts.
func New(f Fetcher, history model.HistoryWriter, cfg Config, log *zap.Logger) (*Agent, error) {
	if f == nil {
		return nil, errors.New("syncagent: fetcher is required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	cfg.applyDefaults()

	a := &Agent{
		cfg:     cfg,
		log:     log.Named("sync"),
		history: history,
		group: refresh.NewGroup(refresh.GroupConfig{
			Interval: cfg.GlobalInterval,
			Clock:    cfg.Clock,
			Logger:   log.Named("group"),
		}),
	}

	var err error
	defer func() {
		if err != nil {
			a.group.Stop()
			a.watchers.Wait()
		}
	}()
	if a.creatives, err = addSource(a, model.SourceCreatives, func(ctx context.Context) (model.CreativesResponse, error) {
		return f.Creatives(ctx, cfg.CreativesCount)
	}); err != nil {
		return nil, err
	}
	if a.telemetry, err = addSource(a, model.SourceTelemetry, func(ctx context.Context) (model.TelemetryResponse, error) {
		return f.Telemetry(ctx, cfg.TelemetryCount)
	}); err != nil {
		return nil, err
	}
	if a.geos, err = addSource(a, model.SourceGeos, f.Geos); err != nil {
		return nil, err
	}
	if a.pacing, err = addSource(a, model.SourcePacing, func(ctx context.Context) (model.PacingResponse, error) {
		return f.Pacing(ctx, cfg.PacingCount)
	}); err != nil {
		return nil, err
	}
	return a, nil
}

func addSource[E any](a *Agent, name string, fetch refresh.FetchFunc[model.Envelope[[]E]]) (*refresh.Coordinator[model.Envelope[[]E]], error) {
	if a.cfg.Timeout > 0 {
		fetch = withTimeout(a.cfg.Timeout, fetch)
	}
	cfg := refresh.Config[model.Envelope[[]E]]{
		Name:     name,
		Fetch:    fetch,
		Interval: a.cfg.Interval,
		Lazy:     a.cfg.Lazy,
		Clock:    a.cfg.Clock,
		Logger:   a.log.With(zap.String("source", name)),
	}
	if a.cfg.Backoff {
		cfg.Backoff = newBackoff(a.cfg.Interval, a.cfg.BackoffMax)
	}

	c, err := refresh.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", name, err)
	}
	if err := a.group.Add(c); err != nil {
		return nil, err
	}
	if a.cfg.Metrics != nil {
		if _, err := a.cfg.Metrics.RegisterStaleness(name, staleness(c, a.cfg.Clock)); err != nil {
			return nil, fmt.Errorf("source %s: staleness gauge: %w", name, err)
		}
	}

	events, _ := c.Subscribe(eventBuffer)
	a.watchers.Add(1)
	go watch(a, c, events, func(env model.Envelope[[]E]) int { return len(env.Data) })
	return c, nil
}

// newBackoff returns a jitter-free exponential backoff whose first delay is
// already longer than interval and whose delays never exceed maxDelay.
func newBackoff(interval, maxDelay time.Duration) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.RandomizationFactor = 0
	b.MaxInterval = max(maxDelay, interval)
	b.InitialInterval = min(time.Duration(float64(interval)*b.Multiplier), b.MaxInterval)
	b.Reset()
	return b
}

func withTimeout[T any](d time.Duration, fetch refresh.FetchFunc[T]) refresh.FetchFunc[T] {
	return func(ctx context.Context) (T, error) {
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return fetch(ctx)
	}
}

func staleness(m refresh.Member, clk clock.PassiveClock) func() float64 {
	return func() float64 {
		s := m.Status()
		if s.LastSync.IsZero() {
			return math.NaN()
		}
		return clk.Since(s.LastSync).Seconds()
	}
}

// watch turns coordinator events into history rows and metric updates. It
// returns when the coordinator tears down and closes the stream.
func watch[T any](a *Agent, c *refresh.Coordinator[T], events <-chan refresh.Event[T], records func(T) int) {
	defer a.watchers.Done()
	name := c.Name()
	for ev := range events {
		var rec model.SyncRecord
		switch ev.Kind {
		case refresh.EventUpdated:
			rec = a.record(name, ev.Seq, model.OutcomeSuccess, ev.At, ev.Duration, nil)
			rec.Records = records(ev.Data)
		case refresh.EventFailed:
			rec = a.record(name, ev.Seq, model.OutcomeFailure, ev.At, ev.Duration, ev.Err)
		case refresh.EventDiscarded:
			rec = a.record(name, ev.Seq, model.OutcomeDiscarded, ev.At, ev.Duration, ev.Err)
		}
		if rec.Outcome != "" {
			if a.history != nil {
				if err := a.history.InsertSync(rec); err != nil {
					a.log.Warn("recording sync history failed", zap.String("source", name), zap.Error(err))
				}
			}
			if a.cfg.Metrics != nil {
				a.cfg.Metrics.ObserveSync(rec)
			}
		}
		if a.cfg.Metrics != nil {
			a.cfg.Metrics.SetStatus(sourceStatus(c.Status()))
		}
	}
}

func (a *Agent) record(source string, seq uint64, outcome string, at time.Time, d time.Duration, err error) model.SyncRecord {
	rec := model.SyncRecord{
		Source:     source,
		Seq:        seq,
		Outcome:    outcome,
		StartedAt:  at.Add(-d),
		FinishedAt: at,
		Duration:   d,
	}
	if err != nil {
		rec.Error = err.Error()
	}
	return rec
}

func sourceStatus(s refresh.Status) model.SourceStatus {
	out := model.SourceStatus{
		Name:       s.Name,
		HasData:    s.HasData,
		Loading:    s.Loading,
		InFlight:   s.InFlight,
		Paused:     s.Paused,
		LastSync:   s.LastSync,
		SecondsAgo: s.SecondsAgo,
		Started:    s.Started,
		Applied:    s.Applied,
	}
	if s.Err != nil {
		out.Error = s.Err.Error()
	}
	return out
}

// Start activates every source and the global broadcast.
func (a *Agent) Start(ctx context.Context) error {
	if err := a.group.Start(ctx); err != nil {
		return err
	}
	a.log.Info("sync agent started",
		zap.Duration("interval", a.cfg.Interval),
		zap.Duration("global_interval", a.cfg.GlobalInterval),
		zap.Bool("backoff", a.cfg.Backoff))
	return nil
}

// Stop tears down every source and waits for pending history writes.
func (a *Agent) Stop() {
	a.group.Stop()
	a.watchers.Wait()
}

// Refresh queues an immediate fetch for one source, or every source when
// name is empty. Paused sources are refreshed too.
func (a *Agent) Refresh(name string) error {
	_, err := a.refresh(name)
	return err
}

// RefreshAndWait is Refresh followed by waiting for the attempts to settle.
func (a *Agent) RefreshAndWait(ctx context.Context, name string) error {
	done, err := a.refresh(name)
	if err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Agent) refresh(name string) (<-chan struct{}, error) {
	if name == "" {
		return a.group.RefreshAll(), nil
	}
	m, err := a.member(name)
	if err != nil {
		return nil, err
	}
	return m.Refresh(), nil
}

// Pause suspends automatic refresh for one source, or all when name is empty.
func (a *Agent) Pause(name string) error {
	if name == "" {
		a.group.PauseAll()
		return nil
	}
	m, err := a.member(name)
	if err != nil {
		return err
	}
	m.Pause()
	return nil
}

// Resume restarts automatic refresh for one source, or all when name is empty.
func (a *Agent) Resume(name string) error {
	if name == "" {
		a.group.ResumeAll()
		return nil
	}
	m, err := a.member(name)
	if err != nil {
		return err
	}
	m.Resume()
	return nil
}

func (a *Agent) member(name string) (refresh.Member, error) {
	m, ok := a.group.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownSource, name)
	}
	return m, nil
}

// Sources reports every source in display order.
func (a *Agent) Sources() []model.SourceStatus {
	statuses := a.group.Statuses()
	out := make([]model.SourceStatus, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, sourceStatus(s))
	}
	return out
}

// Dashboard assembles the current view from the latest applied payloads.
// Sources without data contribute empty sections.
func (a *Agent) Dashboard() model.Dashboard {
	now := a.cfg.Clock.Now()
	creatives := a.creatives.State().Data
	telemetry := a.telemetry.State().Data
	geos := a.geos.State().Data
	pacing := a.pacing.State().Data

	return model.Dashboard{
		GeneratedAt:    now,
		KPIs:           adops.ComputeKPIs(creatives.Data, telemetry.Data, telemetry.Meta.Summary, now),
		TopCreatives:   top(creatives.Data, topCreatives),
		RecentFailures: adops.RecentFailures(telemetry.Data, recentFailures),
		Slots:          adops.SlotHealthOf(telemetry.Data),
		Geos:           geos.Data,
		GeoTotals:      geos.Meta.Totals,
		Pacing:         pacing.Data,
		PacingSummary:  pacing.Meta.Summary,
		Sources:        a.Sources(),
		LastBroadcast:  a.group.LastBroadcast(),
	}
}

// top returns the n creatives with the most impressions.
func top(creatives []model.Creative, n int) []model.Creative {
	out := slices.Clone(creatives)
	slices.SortStableFunc(out, func(x, y model.Creative) int {
		return cmp.Compare(y.Impressions, x.Impressions)
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
