// Package apiclient calls the ad-ops analytics API. Each method is a fetch
// operation suitable for a refresh coordinator.
package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/tinytelemetry/adpulse/internal/model"
)

const (
	defaultTimeout = 10 * time.Second
	maxErrorBody   = 512
)

// ErrUnsuccessful is returned when the API answers with success=false.
var ErrUnsuccessful = errors.New("api reported failure")

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Code, e.Body)
}

// Options configures a Client. Zero values select defaults; a zero
// RequestsPerSecond disables rate limiting.
type Options struct {
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	HTTPClient        *http.Client
	Logger            *zap.Logger
}

// Client makes requests against the analytics API.
type Client struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	log     *zap.Logger
}

// New creates a client targeting baseURL (e.g. "http://127.0.0.1:3000").
func New(baseURL string, opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  httpClient,
		limiter: limiter,
		log:     log,
	}
}

// BaseURL returns the API root.
func (c *Client) BaseURL() string { return c.baseURL }

// Creatives fetches GET /api/creatives?count=n.
func (c *Client) Creatives(ctx context.Context, n int) (model.CreativesResponse, error) {
	return get[[]model.Creative](ctx, c, "/api/creatives", countQuery(n))
}

// Telemetry fetches GET /api/telemetry?count=n.
func (c *Client) Telemetry(ctx context.Context, n int) (model.TelemetryResponse, error) {
	return get[[]model.TelemetryEvent](ctx, c, "/api/telemetry", countQuery(n))
}

// Geos fetches GET /api/geos.
func (c *Client) Geos(ctx context.Context) (model.GeosResponse, error) {
	return get[[]model.GeoStats](ctx, c, "/api/geos", nil)
}

// Pacing fetches GET /api/pacing?count=n.
func (c *Client) Pacing(ctx context.Context, n int) (model.PacingResponse, error) {
	return get[[]model.PacingData](ctx, c, "/api/pacing", countQuery(n))
}

// Health fetches GET /api/health.
func (c *Client) Health(ctx context.Context) (model.Health, error) {
	var h model.Health
	err := c.do(ctx, "/api/health", nil, &h)
	return h, err
}

func get[T any](ctx context.Context, c *Client, path string, q url.Values) (model.Envelope[T], error) {
	var env model.Envelope[T]
	if err := c.do(ctx, path, q, &env); err != nil {
		return env, err
	}
	if !env.Success {
		return env, fmt.Errorf("GET %s: %w: %s", path, ErrUnsuccessful, env.Error)
	}
	return env, nil
}

func (c *Client) do(ctx context.Context, path string, q url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("GET %s: rate limiter: %w", path, err)
	}

	target := c.baseURL + path
	if len(q) > 0 {
		target += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	c.log.Debug("api request",
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{
			Method: http.MethodGet,
			Path:   path,
			Code:   resp.StatusCode,
			Body:   strings.TrimSpace(string(body)),
		}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("GET %s: decode response: %w", path, err)
	}
	return nil
}

func countQuery(n int) url.Values {
	return url.Values{"count": []string{strconv.Itoa(n)}}
}
