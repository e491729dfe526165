package sandbox

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/gamehost/internal/infrastructure/logging"
	"github.com/GriffinCanCode/gamehost/internal/shared/types"
)

// Recorder receives sandbox metrics
type Recorder interface {
	ObserveSandboxRun(outcome string, duration time.Duration)
	IncScriptErrors()
	IncContexts()
	DecContexts()
}

// Host opens isolated execution contexts backed by pooled runtimes
type Host struct {
	pool    *Pool
	config  Config
	logger  *logging.Logger
	metrics Recorder
}

// HostOption configures a Host
type HostOption func(*Host)

// WithLogger sets the host logger
func WithLogger(l *logging.Logger) HostOption {
	return func(h *Host) { h.logger = l }
}

// WithRecorder sets the metrics recorder
func WithRecorder(r Recorder) HostOption {
	return func(h *Host) { h.metrics = r }
}

// NewHost creates a host with its own runtime pool
func NewHost(config Config, opts ...HostOption) (*Host, error) {
	config = config.withDefaults()
	pool, err := NewPool(config, config.PoolSize)
	if err != nil {
		return nil, err
	}

	h := &Host{pool: pool, config: config}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = logging.OrNop(h.logger).Named("sandbox")
	return h, nil
}

// Open starts executing doc in a fresh context identified by id. It returns
// at once; exactly one of events.Ready or events.Failure is called later
// from another goroutine, unless the context is closed first.
func (h *Host) Open(ctx context.Context, id string, doc types.HardenedDocument, events types.ContextEvents) (types.ContextHandle, error) {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c := &Context{
		id:       id,
		messages: make(chan types.Envelope, h.config.MessageBuffer),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	if h.metrics != nil {
		h.metrics.IncContexts()
		c.onClose = h.metrics.DecContexts
	}

	go h.run(runCtx, c, doc.String(), events)
	return c, nil
}

func (h *Host) run(ctx context.Context, c *Context, doc string, events types.ContextEvents) {
	defer close(c.done)

	result, err := h.pool.Run(ctx, doc, func(raw []byte) { c.Post(raw) })
	c.setResult(result)

	if result != nil {
		for _, se := range result.ScriptErrors {
			h.logger.Debug("script error", zap.String("context_id", c.id), zap.String("source", se.Source), zap.String("error", se.Message))
			if h.metrics != nil {
				h.metrics.IncScriptErrors()
			}
		}
	}

	outcome := "ready"
	switch {
	case c.isClosed():
		outcome = "closed"
	case err != nil:
		outcome = "failed"
	}
	if h.metrics != nil && result != nil {
		h.metrics.ObserveSandboxRun(outcome, result.Duration)
	}

	switch outcome {
	case "closed":
		return
	case "failed":
		h.logger.Warn("context failed to load", zap.String("context_id", c.id), zap.Error(err))
		if events.Failure != nil {
			events.Failure(err)
		}
	default:
		h.logger.Debug("context ready", zap.String("context_id", c.id), zap.Int("scripts", result.Scripts))
		if events.Ready != nil {
			events.Ready()
		}
	}
}

// Stats reports pool occupancy
func (h *Host) Stats() PoolStats {
	return h.pool.Stats()
}

// Close shuts down the runtime pool
func (h *Host) Close() error {
	return h.pool.Close()
}

// Context is one live isolated execution context
type Context struct {
	id       string
	messages chan types.Envelope
	cancel   context.CancelFunc
	done     chan struct{}
	onClose  func()

	mu      sync.Mutex
	closed  bool
	result  *Result
	dropped atomic.Int64
}

// ID returns the context identity
func (c *Context) ID() string {
	return c.id
}

// Messages returns the inbound channel; it is closed by Close
func (c *Context) Messages() <-chan types.Envelope {
	return c.messages
}

// Post enqueues a raw payload from this context. It never blocks: when the
// buffer is full or the context is closed the payload is dropped and false
// is returned.
func (c *Context) Post(raw []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.messages <- types.Envelope{ContextID: c.id, Raw: raw}:
		return true
	default:
		c.dropped.Add(1)
		return false
	}
}

// Dropped reports how many payloads overflowed the buffer
func (c *Context) Dropped() int64 {
	return c.dropped.Load()
}

// Done is closed once the document finished executing
func (c *Context) Done() <-chan struct{} {
	return c.done
}

// Result returns the execution result once Done is closed
func (c *Context) Result() *Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result
}

func (c *Context) setResult(r *Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.result = r
}

func (c *Context) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close cancels execution and closes the channel. It is idempotent.
func (c *Context) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.messages)
	c.mu.Unlock()

	c.cancel()
	if c.onClose != nil {
		c.onClose()
	}
	return nil
}
