package http

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/gamehost/internal/domain/analyzer"
	"github.com/GriffinCanCode/gamehost/internal/generation"
	"github.com/GriffinCanCode/gamehost/internal/infrastructure/httpclient"
	"github.com/GriffinCanCode/gamehost/internal/infrastructure/logging"
	"github.com/GriffinCanCode/gamehost/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/gamehost/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/gamehost/internal/sandbox"
	"github.com/GriffinCanCode/gamehost/internal/shared/types"
	"github.com/GriffinCanCode/gamehost/internal/storage"
)

// Version is reported by the root endpoint
const Version = "1.0.0"

const defaultCacheSize = 256

// Archiver bulk exports and imports saved games
type Archiver interface {
	Export(ctx context.Context, w io.Writer) (int, error)
	Import(ctx context.Context, r io.Reader) (int, error)
}

// BreakerSource reports the circuit breaker of a collaborator
type BreakerSource interface {
	Snapshot() resilience.Snapshot
}

// PoolStater reports sandbox pool occupancy
type PoolStater interface {
	Stats() sandbox.PoolStats
}

// Handlers contains all HTTP handlers
type Handlers struct {
	store     storage.Store
	backend   string
	generator generation.Generator
	archive   Archiver
	analyzer  *analyzer.Analyzer
	findings  *lru.Cache[string, []types.Finding]
	breakers  []BreakerSource
	pool      PoolStater
	metrics   *HandlerMetrics
	logger    *logging.Logger
	cacheSize int
}

// Option configures Handlers
type Option func(*Handlers)

// WithGenerator enables the generation proxy
func WithGenerator(g generation.Generator) Option {
	return func(h *Handlers) { h.generator = g }
}

// WithArchive enables archive export and import
func WithArchive(a Archiver) Option {
	return func(h *Handlers) { h.archive = a }
}

// WithBreakers reports collaborator breakers in the health check
func WithBreakers(sources ...BreakerSource) Option {
	return func(h *Handlers) { h.breakers = append(h.breakers, sources...) }
}

// WithPool reports sandbox pool occupancy in the health check
func WithPool(p PoolStater) Option {
	return func(h *Handlers) { h.pool = p }
}

// WithMetrics records per-operation metrics
func WithMetrics(m *monitoring.Metrics) Option {
	return func(h *Handlers) { h.metrics = NewHandlerMetrics(m) }
}

// WithLogger sets the logger
func WithLogger(l *logging.Logger) Option {
	return func(h *Handlers) { h.logger = l }
}

// WithCacheSize sizes the findings cache
func WithCacheSize(n int) Option {
	return func(h *Handlers) { h.cacheSize = n }
}

// NewHandlers creates a new handler set over store. backend names the
// storage backend in health reports.
func NewHandlers(store storage.Store, backend string, opts ...Option) *Handlers {
	h := &Handlers{
		store:     store,
		backend:   backend,
		analyzer:  analyzer.New(analyzer.DefaultRules()...),
		cacheSize: defaultCacheSize,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = logging.OrNop(h.logger).Named("api")
	if h.metrics == nil {
		h.metrics = NewHandlerMetrics(nil)
	}
	if h.cacheSize <= 0 {
		h.cacheSize = defaultCacheSize
	}
	h.findings, _ = lru.New[string, []types.Finding](h.cacheSize)
	return h
}

// Root handles the service banner
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "gamehost",
		"version": Version,
	})
}

// Health handles detailed health check. Any open breaker degrades the
// reported status without failing the check.
func (h *Handlers) Health(c *gin.Context) {
	status := "healthy"
	services := make([]resilience.Snapshot, 0, len(h.breakers))
	for _, b := range h.breakers {
		snap := b.Snapshot()
		if snap.State != resilience.StateClosed.String() {
			status = "degraded"
		}
		services = append(services, snap)
	}

	body := gin.H{
		"status":   status,
		"storage":  gin.H{"backend": h.backend},
		"services": services,
		"generation": gin.H{
			"enabled": h.generator != nil,
		},
		"analysis": gin.H{
			"rules":       h.analyzer.Rules(),
			"cachedFiles": h.findings.Len(),
		},
	}
	if h.pool != nil {
		body["sandbox"] = h.pool.Stats()
	}
	c.JSON(http.StatusOK, body)
}

// Models lists the accepted generation model selectors
func (h *Handlers) Models(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    types.Models(),
		"default": types.ModelDefault,
	})
}

// statusFor maps collaborator errors onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrInvalidID),
		errors.Is(err, storage.ErrNotMarkup),
		errors.Is(err, generation.ErrInvalidModel):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrUnavailable), errors.Is(err, httpclient.ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handlers) fail(c *gin.Context, status int, err error) {
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.Int("status", status),
			zap.Error(err))
	}
	_ = c.Error(err)
	c.JSON(status, gin.H{
		"success": false,
		"error":   err.Error(),
	})
}

func (h *Handlers) failWith(c *gin.Context, err error) {
	h.fail(c, statusFor(err), err)
}
