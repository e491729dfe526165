package bridge

import (
	"errors"
	"html"
	"strings"
	"sync"
	"sync/atomic"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/gamehost/internal/infrastructure/logging"
	"github.com/GriffinCanCode/gamehost/internal/shared/types"
)

// ErrStale is returned for envelopes from a context other than the armed one
var ErrStale = errors.New("message from stale context")

// ErrDisarmed is returned for envelopes arriving after teardown
var ErrDisarmed = errors.New("bridge disarmed")

// MaxNoticeLength caps the text forwarded to a notifier, in runes
const MaxNoticeLength = 500

// Notifier surfaces non-blocking notices to the host user
type Notifier interface {
	Info(text string)
	Warn(text string)
	Error(text string)
}

// ScoreSink receives score deltas tagged with their origin context
type ScoreSink interface {
	ApplyScore(contextID string, delta types.ScoreDelta)
}

// Recorder counts bridge traffic
type Recorder interface {
	RecordBridgeMessage(kind, outcome string)
}

// Bridge routes decoded channel messages to the host
type Bridge struct {
	notifier Notifier
	sink     ScoreSink
	logger   *logging.Logger
	metrics  Recorder
	policy   *bluemonday.Policy
}

// Option configures a Bridge
type Option func(*Bridge)

// WithLogger sets the logger
func WithLogger(l *logging.Logger) Option {
	return func(b *Bridge) { b.logger = l }
}

// WithRecorder sets the metrics recorder
func WithRecorder(r Recorder) Option {
	return func(b *Bridge) { b.metrics = r }
}

// New creates a bridge delivering to notifier and sink
func New(notifier Notifier, sink ScoreSink, opts ...Option) *Bridge {
	b := &Bridge{
		notifier: notifier,
		sink:     sink,
		policy:   bluemonday.StrictPolicy(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = logging.OrNop(b.logger).Named("bridge")
	return b
}

// Arm starts listening on handle's channel and returns the teardown func.
// Teardown is idempotent; envelopes still queued when it returns are
// dropped.
func (b *Bridge) Arm(handle types.ContextHandle) (teardown func()) {
	armedID := handle.ID()
	messages := handle.Messages()
	done := make(chan struct{})
	var disarmed atomic.Bool

	go func() {
		for {
			select {
			case <-done:
				return
			case env, ok := <-messages:
				if !ok {
					return
				}
				if disarmed.Load() {
					b.record("unknown", "disarmed")
					continue
				}
				_ = b.Deliver(armedID, env)
			}
		}
	}()

	b.logger.Debug("bridge armed", zap.String("context_id", armedID))

	// Teardown must not wait for the pump: callers may hold the lock the
	// sink takes. A delivery already past the disarmed check still finishes.
	var once sync.Once
	return func() {
		once.Do(func() {
			disarmed.Store(true)
			close(done)
			b.logger.Debug("bridge disarmed", zap.String("context_id", armedID))
		})
	}
}

// Deliver routes one envelope for the context armedID. The returned error
// describes why an envelope was dropped; it is never surfaced to users.
func (b *Bridge) Deliver(armedID string, env types.Envelope) error {
	if env.ContextID != armedID {
		b.record("unknown", "stale")
		return ErrStale
	}

	msg, err := Decode(env.Raw)
	if err != nil {
		outcome := "malformed"
		if errors.Is(err, ErrUnrecognized) {
			outcome = "unrecognized"
		}
		b.record("unknown", outcome)
		b.logger.Debug("dropped channel message",
			zap.String("context_id", env.ContextID),
			zap.Int("size", len(env.Raw)),
			zap.Error(err))
		return err
	}

	switch m := msg.(type) {
	case types.HostCallIntercepted:
		text := b.sanitize(m.Message)
		if m.Kind == types.HostCallConfirm {
			b.notifier.Warn(text)
		} else {
			b.notifier.Info(text)
		}
		b.record(string(m.Kind), "delivered")

	case types.StatusUpdate:
		if m.Payload.Empty() {
			b.record("score", "empty")
			return nil
		}
		b.sink.ApplyScore(env.ContextID, m.Payload)
		b.record("score", "delivered")
	}
	return nil
}

// sanitize reduces untrusted text to plain, bounded text
func (b *Bridge) sanitize(text string) string {
	clean := html.UnescapeString(b.policy.Sanitize(text))
	clean = strings.TrimSpace(clean)
	if utf8.RuneCountInString(clean) > MaxNoticeLength {
		clean = string([]rune(clean)[:MaxNoticeLength]) + "…"
	}
	return clean
}

func (b *Bridge) record(kind, outcome string) {
	if b.metrics != nil {
		b.metrics.RecordBridgeMessage(kind, outcome)
	}
}
