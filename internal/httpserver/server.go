package httpserver

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/tinytelemetry/adpulse/internal/metrics"
	"github.com/tinytelemetry/adpulse/internal/model"
)

// DataSource is the generator contract required by the HTTP API.
type DataSource interface {
	Creatives(n int) []model.Creative
	Telemetry(n int) []model.TelemetryEvent
	GeoStats() []model.GeoStats
	Pacing(n int) []model.PacingData
}

// Options configures optional server behaviour.
type Options struct {
	// MaxCount caps the count query parameter. Zero means model.DefaultMaxCount.
	MaxCount int
	// Gatherer backs GET /metrics. Nil disables the route.
	Gatherer prometheus.Gatherer
	Metrics  *metrics.HTTP
	Logger   *zap.Logger
}

// Server provides the mock ad-ops analytics API.
type Server struct {
	addr      string
	data      DataSource
	opts      Options
	log       *zap.Logger
	handler   http.Handler
	server    *http.Server
	ctx       context.Context
	cancel    context.CancelFunc
	startTime time.Time

	mu       sync.Mutex
	listener net.Listener
}

// NewServer creates a new HTTP API server.
func NewServer(addr string, data DataSource, opts Options) *Server {
	if addr == "" {
		addr = "0.0.0.0:3000"
	}
	if opts.MaxCount <= 0 {
		opts.MaxCount = model.DefaultMaxCount
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		addr:      addr,
		data:      data,
		opts:      opts,
		log:       opts.Logger,
		ctx:       ctx,
		cancel:    cancel,
		startTime: time.Now(),
	}
	s.handler = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestID(), s.observe())

	r.GET("/api/health", s.handleHealth)
	r.GET("/api/creatives", s.handleCreatives)
	r.GET("/api/telemetry", s.handleTelemetry)
	r.GET("/api/geos", s.handleGeos)
	r.GET("/api/pacing", s.handlePacing)
	if s.opts.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{})))
	}
	return r
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler { return s.handler }

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	gin.SetMode(gin.ReleaseMode)

	s.server = &http.Server{
		Handler:           s.handler,
		BaseContext:       func(_ net.Listener) context.Context { return s.ctx },
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	s.startTime = time.Now()
	s.log.Info("http api listening", zap.String("addr", listener.Addr().String()))

	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.log.Error("http api stopped", zap.Error(err))
		}
	}()
	return nil
}

// Addr returns the bound address once started, else the configured one.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	s.cancel()
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, model.Health{
		Status: "ok",
		Uptime: time.Since(s.startTime).Seconds(),
	})
}
