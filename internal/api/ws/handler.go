package ws

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/gamehost/internal/domain/lifecycle"
	"github.com/GriffinCanCode/gamehost/internal/infrastructure/logging"
	"github.com/GriffinCanCode/gamehost/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/gamehost/internal/shared/types"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// Inline markup plus frame overhead
	maxFrameSize = 4 << 20

	outboundBuffer = 64
)

// Loader fetches saved games by id
type Loader interface {
	Get(ctx context.Context, id string) (*types.Bundle, error)
}

// Handler manages WebSocket connections. Every connection drives its own
// lifecycle controller.
type Handler struct {
	host     lifecycle.ContextHost
	loader   Loader
	upgrader websocket.Upgrader
	origins  map[string]struct{}
	metrics  *monitoring.Metrics
	logger   *logging.Logger
}

// Option configures a Handler
type Option func(*Handler)

// WithAllowedOrigins restricts the Origin header of upgrade requests.
// "*" or no origins accepts any.
func WithAllowedOrigins(origins ...string) Option {
	return func(h *Handler) {
		for _, o := range origins {
			if o == "*" {
				h.origins = nil
				return
			}
			if h.origins == nil {
				h.origins = make(map[string]struct{}, len(origins))
			}
			h.origins[o] = struct{}{}
		}
	}
}

// WithMetrics records connection and message metrics
func WithMetrics(m *monitoring.Metrics) Option {
	return func(h *Handler) { h.metrics = m }
}

// WithLogger sets the logger
func WithLogger(l *logging.Logger) Option {
	return func(h *Handler) { h.logger = l }
}

// NewHandler creates a new WebSocket handler. Games named in load frames
// are fetched from loader; loader may be nil when only inline markup is
// played.
func NewHandler(host lifecycle.ContextHost, loader Loader, opts ...Option) *Handler {
	h := &Handler{
		host:   host,
		loader: loader,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = logging.OrNop(h.logger).Named("ws")
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.origins == nil {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if _, ok := h.origins[origin]; ok {
		return true
	}
	u, err := url.Parse(origin)
	return err == nil && u.Host == r.Host
}

// HandleConnection handles WebSocket upgrade and runs the session until
// the peer disconnects
func (h *Handler) HandleConnection(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	if h.metrics != nil {
		h.metrics.IncWSConnections()
		defer h.metrics.DecWSConnections()
	}

	s := newSession(h, conn)
	s.run(c.Request.Context())
}
