package httpclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/GriffinCanCode/gamehost/internal/infrastructure/logging"
	"github.com/GriffinCanCode/gamehost/internal/infrastructure/resilience"
	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrUnavailable is returned while the breaker refuses calls
var ErrUnavailable = errors.New("service unavailable: circuit breaker open")

// Config configures a collaborator client
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
	MinWait    time.Duration
	MaxWait    time.Duration
	// RateLimit is requests per second, 0 for unlimited
	RateLimit float64
	UserAgent string
}

// Recorder receives per-call telemetry
type Recorder interface {
	RecordServiceCall(service, method, status string, duration time.Duration)
	RecordServiceError(service, method, errorType string)
}

// Client wraps resty with rate limiting and a circuit breaker
type Client struct {
	name     string
	resty    *resty.Client
	limiter  *rate.Limiter
	breaker  *resilience.Breaker
	logger   *logging.Logger
	recorder Recorder
}

// Option configures a Client
type Option func(*Client)

// WithLogger sets the logger
func WithLogger(l *logging.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithRecorder sets the telemetry sink
func WithRecorder(r Recorder) Option {
	return func(c *Client) { c.recorder = r }
}

// WithBreaker replaces the default breaker
func WithBreaker(b *resilience.Breaker) Option {
	return func(c *Client) { c.breaker = b }
}

// New creates a client for the named collaborator
func New(name string, cfg Config, opts ...Option) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MinWait <= 0 {
		cfg.MinWait = 500 * time.Millisecond
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = 5 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "gamehost/1.0"
	}

	c := &Client{name: name}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.OrNop(c.logger).Named(name)

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = cfg.MaxRetries
	retryClient.RetryWaitMin = cfg.MinWait
	retryClient.RetryWaitMax = cfg.MaxWait
	retryClient.Logger = nil

	c.resty = resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.MaxRetries).
		SetRetryWaitTime(cfg.MinWait).
		SetRetryMaxWaitTime(cfg.MaxWait).
		SetHeader("User-Agent", cfg.UserAgent).
		SetHeader("Accept", "application/json").
		SetTransport(retryClient.HTTPClient.Transport).
		SetJSONMarshaler(sonic.Marshal).
		SetJSONUnmarshaler(sonic.Unmarshal)

	if cfg.RateLimit > 0 {
		burst := int(cfg.RateLimit)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	} else {
		c.limiter = rate.NewLimiter(rate.Inf, 0)
	}

	if c.breaker == nil {
		c.breaker = resilience.New(name, resilience.Settings{
			MaxRequests: 3,
			Interval:    60 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts resilience.Counts) bool {
				return counts.ConsecutiveFailures >= 5 ||
					(counts.Requests >= 20 && float64(counts.TotalFailures)/float64(counts.Requests) > 0.6)
			},
			OnStateChange: func(name string, from, to resilience.State) {
				c.logger.Warn("breaker state changed",
					zap.String("from", from.String()),
					zap.String("to", to.String()))
			},
		})
	}
	return c
}

// Name returns the collaborator name
func (c *Client) Name() string { return c.name }

// BreakerState returns the breaker state
func (c *Client) BreakerState() resilience.State { return c.breaker.State() }

// Snapshot reports the breaker's state and counts
func (c *Client) Snapshot() resilience.Snapshot { return c.breaker.Snapshot() }

// Resty exposes the underlying client for tests and custom calls
func (c *Client) Resty() *resty.Client { return c.resty }

// Do builds a request with build, sends it with send and treats transport
// errors and 5xx responses as breaker failures. 4xx responses are returned
// to the caller without tripping the breaker.
func (c *Client) Do(ctx context.Context, method string, build func(*resty.Request) *resty.Request, send func(*resty.Request) (*resty.Response, error)) (*resty.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	start := time.Now()
	resp, err := resilience.Call(c.breaker, func() (*resty.Response, error) {
		resp, err := send(build(c.resty.R().SetContext(ctx)))
		if err != nil {
			return resp, err
		}
		if resp.StatusCode() >= 500 {
			return resp, fmt.Errorf("%s %s: status %d", method, resp.Request.URL, resp.StatusCode())
		}
		return resp, nil
	})
	if c.recorder != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		c.recorder.RecordServiceCall(c.name, method, status, time.Since(start))
	}

	if err != nil {
		errType := "transport"
		switch {
		case errors.Is(err, resilience.ErrCircuitOpen), errors.Is(err, resilience.ErrTooManyRequests):
			errType = "breaker"
			err = fmt.Errorf("%w: %s", ErrUnavailable, c.name)
		case resp != nil && resp.StatusCode() >= 500:
			errType = "server"
		}
		if c.recorder != nil {
			c.recorder.RecordServiceError(c.name, method, errType)
		}
		c.logger.Warn("call failed", zap.String("method", method), zap.Error(err))
		return resp, err
	}
	return resp, nil
}
