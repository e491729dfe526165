package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/gamehost/internal/domain/analyzer"
	"github.com/GriffinCanCode/gamehost/internal/domain/bridge"
	"github.com/GriffinCanCode/gamehost/internal/domain/inject"
	"github.com/GriffinCanCode/gamehost/internal/infrastructure/logging"
	"github.com/GriffinCanCode/gamehost/internal/shared/id"
	"github.com/GriffinCanCode/gamehost/internal/shared/types"
)

var (
	ErrNoBundle         = errors.New("no bundle loaded")
	ErrClosed           = errors.New("controller closed")
	ErrNoPresenter      = errors.New("fullscreen not supported")
	ErrStaleContext     = errors.New("stale execution context")
	ErrRelayUnsupported = errors.New("execution context does not accept relayed messages")
	ErrRelayDropped     = errors.New("relayed message dropped")
)

// DefaultTitle names exports of bundles without a title
const DefaultTitle = "游戏"

// ContextHost opens isolated execution contexts. Implementations must
// deliver events asynchronously, never from inside Open.
type ContextHost interface {
	Open(ctx context.Context, id string, doc types.HardenedDocument, events types.ContextEvents) (types.ContextHandle, error)
}

// Presenter requests or exits exclusive presentation on the host platform
type Presenter interface {
	RequestFullscreen() error
	ExitFullscreen() error
}

// Recorder receives lifecycle and bridge metrics
type Recorder interface {
	bridge.Recorder
	RecordTransition(from, to string)
	RecordFinding(rule, severity string)
	IncBundlesLoaded()
}

// Observer is told about every snapshot-visible change
type Observer func(Snapshot)

// poster is implemented by contexts that accept messages relayed from a
// remote renderer
type poster interface {
	Post(raw []byte) bool
}

// Snapshot is a read-only view of a controller
type Snapshot struct {
	State      types.LifecycleState `json:"state"`
	Score      types.Score          `json:"score"`
	Fullscreen bool                 `json:"fullscreen"`
	Findings   []types.Finding      `json:"findings"`
	BundleID   string               `json:"gameId,omitempty"`
	Title      string               `json:"title,omitempty"`
	ContextID  string               `json:"contextId,omitempty"`
}

// Controller drives one game through its lifecycle
type Controller struct {
	host      ContextHost
	notifier  bridge.Notifier
	presenter Presenter
	bridge    *bridge.Bridge
	logger    *logging.Logger
	metrics   Recorder
	observer  Observer
	baseCtx   context.Context

	mu         sync.Mutex
	state      types.LifecycleState
	score      types.Score
	fullscreen bool
	bundle     *types.Bundle
	findings   []types.Finding
	handle     types.ContextHandle
	contextID  string
	teardown   func()
	closed     bool
}

// Option configures a Controller
type Option func(*Controller)

// WithPresenter sets the fullscreen presenter
func WithPresenter(p Presenter) Option {
	return func(c *Controller) { c.presenter = p }
}

// WithLogger sets the logger
func WithLogger(l *logging.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithRecorder sets the metrics recorder
func WithRecorder(r Recorder) Option {
	return func(c *Controller) { c.metrics = r }
}

// WithObserver registers a change observer
func WithObserver(o Observer) Option {
	return func(c *Controller) { c.observer = o }
}

// WithBaseContext sets the context execution contexts are opened under
func WithBaseContext(ctx context.Context) Option {
	return func(c *Controller) { c.baseCtx = ctx }
}

// New creates a controller in the empty state
func New(host ContextHost, notifier bridge.Notifier, opts ...Option) *Controller {
	c := &Controller{
		host:     host,
		notifier: notifier,
		state:    types.StateEmpty,
		baseCtx:  context.Background(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.OrNop(c.logger).Named("lifecycle")

	bridgeOpts := []bridge.Option{bridge.WithLogger(c.logger)}
	if c.metrics != nil {
		bridgeOpts = append(bridgeOpts, bridge.WithRecorder(c.metrics))
	}
	c.bridge = bridge.New(notifier, c, bridgeOpts...)
	return c
}

// Load replaces the current bundle. A nil bundle empties the controller.
// The score is reset; findings are recomputed from the raw markup.
func (c *Controller) Load(bundle *types.Bundle) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	if bundle == nil {
		c.teardownLocked()
		c.bundle = nil
		c.findings = nil
		c.score = types.Score{}
		c.transitionLocked(types.StateEmpty)
		return nil
	}

	c.bundle = bundle
	c.score = types.Score{}
	c.findings = analyzer.Analyze(bundle.Markup())
	if c.metrics != nil {
		c.metrics.IncBundlesLoaded()
		for _, f := range c.findings {
			c.metrics.RecordFinding(f.Rule, f.Severity.String())
		}
	}

	c.logger.Info("loading bundle",
		zap.String("game_id", bundle.ID()),
		zap.Int("markup_size", len(bundle.Markup())),
		zap.Int("findings", len(c.findings)))

	return c.startLocked()
}

// Reload re-hardens the current bundle's original markup into a fresh
// context. The score is kept.
func (c *Controller) Reload() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.bundle == nil {
		return ErrNoBundle
	}

	c.logger.Info("reloading bundle", zap.String("game_id", c.bundle.ID()))
	return c.startLocked()
}

// startLocked tears down the current context and opens a new one
func (c *Controller) startLocked() error {
	c.teardownLocked()
	c.transitionLocked(types.StateLoading)

	doc := inject.Inject(c.bundle.Markup())
	ctxID := id.NewContextID().String()
	c.contextID = ctxID

	handle, err := c.host.Open(c.baseCtx, ctxID, doc, types.ContextEvents{
		Ready:   func() { c.onReady(ctxID) },
		Failure: func(err error) { c.onFailure(ctxID, err) },
	})
	if err != nil {
		c.failLocked(err)
		return fmt.Errorf("failed to open execution context: %w", err)
	}
	c.handle = handle
	return nil
}

func (c *Controller) onReady(ctxID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ctxID != c.contextID || c.handle == nil || c.state != types.StateLoading {
		c.logger.Debug("ignoring stale ready signal", zap.String("context_id", ctxID))
		return
	}

	c.teardown = c.bridge.Arm(c.handle)
	c.transitionLocked(types.StateReady)
}

func (c *Controller) onFailure(ctxID string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ctxID != c.contextID || c.state != types.StateLoading {
		c.logger.Debug("ignoring stale failure signal", zap.String("context_id", ctxID), zap.Error(err))
		return
	}
	c.failLocked(err)
}

func (c *Controller) failLocked(err error) {
	c.logger.Warn("bundle failed to load", zap.String("context_id", c.contextID), zap.Error(err))
	c.teardownLocked()
	c.transitionLocked(types.StateError)
	if c.notifier != nil {
		c.notifier.Error(fmt.Sprintf("游戏加载失败: %v", err))
	}
}

// ApplyScore merges a delta reported by the context contextID. Deltas from
// any context other than the current one are dropped.
func (c *Controller) ApplyScore(contextID string, delta types.ScoreDelta) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if contextID == "" || contextID != c.contextID {
		c.logger.Debug("dropping stale score update", zap.String("context_id", contextID))
		return
	}
	c.score = c.score.Merge(delta)
	c.notifyLocked()
}

// RecordScore merges a delta into the current score
func (c *Controller) RecordScore(delta types.ScoreDelta) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.score = c.score.Merge(delta)
	c.notifyLocked()
}

// Relay hands a raw message produced by a remote renderer of contextID to
// the current context, as if the context had posted it itself.
func (c *Controller) Relay(contextID string, raw []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.handle == nil || contextID != c.contextID {
		return ErrStaleContext
	}
	p, ok := c.handle.(poster)
	if !ok {
		return ErrRelayUnsupported
	}
	if !p.Post(raw) {
		return ErrRelayDropped
	}
	return nil
}

// ToggleFullscreen asks the presenter to enter or leave fullscreen. The
// flag itself only changes through FullscreenChanged; failures never touch
// the lifecycle state.
func (c *Controller) ToggleFullscreen() error {
	c.mu.Lock()
	presenter, active := c.presenter, c.fullscreen
	c.mu.Unlock()

	if presenter == nil {
		return ErrNoPresenter
	}

	var err error
	if active {
		err = presenter.ExitFullscreen()
	} else {
		err = presenter.RequestFullscreen()
	}
	if err != nil {
		c.logger.Debug("fullscreen request failed", zap.Bool("active", active), zap.Error(err))
		return fmt.Errorf("fullscreen: %w", err)
	}
	return nil
}

// FullscreenChanged records the platform's fullscreen state
func (c *Controller) FullscreenChanged(active bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.fullscreen == active {
		return
	}
	c.fullscreen = active
	c.notifyLocked()
}

// Export returns the original markup of the current bundle as a file
func (c *Controller) Export() (types.Artifact, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.bundle == nil {
		return types.Artifact{}, ErrNoBundle
	}
	return ExportBundle(c.bundle), nil
}

// ExportBundle renders bundle as a standalone artifact. The original
// markup is used; hardened documents are never exported.
func ExportBundle(bundle *types.Bundle) types.Artifact {
	return types.Artifact{
		FileName:    exportName(bundle.Title(DefaultTitle)) + ".html",
		ContentType: "text/html; charset=utf-8",
		Body:        []byte(bundle.Markup()),
	}
}

// exportName removes characters that cannot appear in a file name
func exportName(title string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r < 0x20, strings.ContainsRune(`/\:*?"<>|`, r):
			return '_'
		}
		return r
	}, strings.TrimSpace(title))
	if name == "" {
		return DefaultTitle
	}
	return name
}

// Snapshot returns the current view
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	s := Snapshot{
		State:      c.state,
		Score:      c.score,
		Fullscreen: c.fullscreen,
		Findings:   append([]types.Finding(nil), c.findings...),
		ContextID:  c.contextID,
	}
	if c.bundle != nil {
		s.BundleID = c.bundle.ID()
		s.Title = c.bundle.Title("")
	}
	return s
}

// State returns the lifecycle state
func (c *Controller) State() types.LifecycleState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Close tears down the bridge and context; the controller cannot be reused
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	c.teardownLocked()
	return nil
}

func (c *Controller) teardownLocked() {
	if c.teardown != nil {
		c.teardown()
		c.teardown = nil
	}
	if c.handle != nil {
		if err := c.handle.Close(); err != nil {
			c.logger.Debug("closing context", zap.Error(err))
		}
		c.handle = nil
	}
	c.contextID = ""
}

func (c *Controller) transitionLocked(to types.LifecycleState) {
	from := c.state
	c.state = to
	if c.metrics != nil {
		c.metrics.RecordTransition(string(from), string(to))
	}
	c.logger.Debug("state transition", zap.String("from", string(from)), zap.String("to", string(to)))
	c.notifyLocked()
}

func (c *Controller) notifyLocked() {
	if c.observer != nil {
		c.observer(c.snapshotLocked())
	}
}
