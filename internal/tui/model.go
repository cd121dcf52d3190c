// Package tui renders the ad-ops dashboard served by the sync agent.
package tui

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"
	"k8s.io/utils/clock"

	"github.com/tinytelemetry/adpulse/internal/model"
	"github.com/tinytelemetry/adpulse/internal/refresh"
	"github.com/tinytelemetry/adpulse/internal/socketrpc"
)

const (
	dashboardPageID = "dashboard"
	historyPageID   = "history"

	// DefaultRequestTimeout bounds one RPC issued by the dashboard.
	DefaultRequestTimeout = 5 * time.Second

	eventBuffer = 16
)

// Client is the part of the socket RPC client the dashboard drives.
type Client interface {
	Dashboard(ctx context.Context) (model.Dashboard, error)
	History(ctx context.Context, source string, limit int) (socketrpc.HistoryResult, error)
	Refresh(ctx context.Context, source string, wait bool) ([]model.SourceStatus, error)
	Pause(ctx context.Context, source string) ([]model.SourceStatus, error)
	Resume(ctx context.Context, source string) ([]model.SourceStatus, error)
}

// Options configures the dashboard.
type Options struct {
	// UpdateInterval is how often the view polls the agent.
	UpdateInterval time.Duration
	RequestTimeout time.Duration
	// HistoryLimit caps the rows shown on the history page.
	HistoryLimit int

	Clock  clock.WithTicker
	Logger *zap.Logger
}

func (o *Options) applyDefaults() {
	if o.UpdateInterval <= 0 {
		o.UpdateInterval = model.DefaultUpdateInterval
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = DefaultRequestTimeout
	}
	if o.HistoryLimit <= 0 {
		o.HistoryLimit = 50
	}
	if o.Clock == nil {
		o.Clock = clock.RealClock{}
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

// TickMsg redraws relative timestamps once per second.
type TickMsg time.Time

// dashboardEventMsg carries one event from the view coordinator.
// ok is false once the subscription has been closed.
type dashboardEventMsg struct {
	event refresh.Event[model.Dashboard]
	ok    bool
}

// controlDoneMsg reports the outcome of a refresh, pause or resume call.
type controlDoneMsg struct {
	action string
	err    error
}

// DashboardModel is the main page: KPIs, geo chart, tables and sync status.
type DashboardModel struct {
	client Client
	opts   Options
	log    *zap.Logger

	coord       *refresh.Coordinator[model.Dashboard]
	events      <-chan refresh.Event[model.Dashboard]
	unsubscribe func()

	ctx       context.Context
	cancel    context.CancelFunc
	started   bool
	closeOnce sync.Once

	keys KeyMap
	help help.Model

	width  int
	height int

	tables      [numTables]table.Model
	activeTable int

	spinning   bool
	lastAction string
	actionErr  error
}

// NewDashboardModel builds the dashboard page. Nothing is fetched until Init.
func NewDashboardModel(client Client, opts Options) (*DashboardModel, error) {
	if client == nil {
		return nil, errors.New("tui: client is required")
	}
	opts.applyDefaults()

	m := &DashboardModel{
		client:      client,
		opts:        opts,
		log:         opts.Logger.Named("tui"),
		keys:        DefaultKeyMap(),
		help:        help.New(),
		tables:      newTables(),
		activeTable: tableCreatives,
	}

	coord, err := refresh.New(refresh.Config[model.Dashboard]{
		Name:     "view",
		Fetch:    m.fetch,
		Interval: opts.UpdateInterval,
		Clock:    opts.Clock,
		Logger:   m.log,
	})
	if err != nil {
		return nil, err
	}
	m.coord = coord
	m.events, m.unsubscribe = coord.Subscribe(eventBuffer)
	m.ctx, m.cancel = context.WithCancel(context.Background())
	return m, nil
}

func (m *DashboardModel) fetch(ctx context.Context) (model.Dashboard, error) {
	ctx, cancel := context.WithTimeout(ctx, m.opts.RequestTimeout)
	defer cancel()
	return m.client.Dashboard(ctx)
}

func (m *DashboardModel) ID() string { return dashboardPageID }

// Init starts polling. Later calls, made when the page is shown again, do nothing.
func (m *DashboardModel) Init() tea.Cmd {
	if m.started {
		return nil
	}
	m.started = true
	if err := m.coord.Start(m.ctx); err != nil {
		m.log.Error("start view refresh", zap.Error(err))
		return nil
	}
	return tea.Batch(m.waitForEvent(), tick())
}

// Close stops polling. Safe to call more than once.
func (m *DashboardModel) Close() {
	m.closeOnce.Do(func() {
		m.unsubscribe()
		m.coord.Stop()
		m.cancel()
	})
}

func (m *DashboardModel) waitForEvent() tea.Cmd {
	events := m.events
	return func() tea.Msg {
		ev, ok := <-events
		return dashboardEventMsg{event: ev, ok: ok}
	}
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// control issues one agent command addressed to every source.
func (m *DashboardModel) control(action string, op func(ctx context.Context) error) tea.Cmd {
	parent := m.ctx
	timeout := m.opts.RequestTimeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(parent, timeout)
		defer cancel()
		return controlDoneMsg{action: action, err: op(ctx)}
	}
}

// sourcesPaused reports whether every known source is paused.
func (m *DashboardModel) sourcesPaused() bool {
	sources := m.coord.State().Data.Sources
	if len(sources) == 0 {
		return false
	}
	for _, s := range sources {
		if !s.Paused {
			return false
		}
	}
	return true
}
