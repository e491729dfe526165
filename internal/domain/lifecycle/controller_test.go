package lifecycle

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/gamehost/internal/domain/analyzer"
	"github.com/GriffinCanCode/gamehost/internal/domain/inject"
	"github.com/GriffinCanCode/gamehost/internal/shared/types"
)

type fakeHandle struct {
	id     string
	ch     chan types.Envelope
	closed atomic.Bool
}

func (h *fakeHandle) ID() string                      { return h.id }
func (h *fakeHandle) Messages() <-chan types.Envelope { return h.ch }

func (h *fakeHandle) Close() error {
	h.closed.Store(true)
	return nil
}

func (h *fakeHandle) Post(raw []byte) bool {
	if h.closed.Load() {
		return false
	}
	select {
	case h.ch <- types.Envelope{ContextID: h.id, Raw: raw}:
		return true
	default:
		return false
	}
}

type opening struct {
	id     string
	doc    types.HardenedDocument
	events types.ContextEvents
	handle *fakeHandle
}

type fakeHost struct {
	mu     sync.Mutex
	opened []*opening
	err    error
}

func (h *fakeHost) Open(_ context.Context, id string, doc types.HardenedDocument, events types.ContextEvents) (types.ContextHandle, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return nil, h.err
	}
	o := &opening{id: id, doc: doc, events: events, handle: &fakeHandle{id: id, ch: make(chan types.Envelope, 8)}}
	h.opened = append(h.opened, o)
	return o.handle, nil
}

func (h *fakeHost) last() *opening {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.opened[len(h.opened)-1]
}

func (h *fakeHost) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.opened)
}

type fakeNotifier struct {
	mu      sync.Mutex
	notices []string
}

func (n *fakeNotifier) add(s string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, s)
}

func (n *fakeNotifier) Info(text string)  { n.add("info:" + text) }
func (n *fakeNotifier) Warn(text string)  { n.add("warn:" + text) }
func (n *fakeNotifier) Error(text string) { n.add("error:" + text) }

func (n *fakeNotifier) all() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.notices...)
}

type fakePresenter struct {
	requested, exited int
	err               error
}

func (p *fakePresenter) RequestFullscreen() error {
	p.requested++
	return p.err
}

func (p *fakePresenter) ExitFullscreen() error {
	p.exited++
	return p.err
}

func intp(n int) *int { return &n }

func newController(t *testing.T, opts ...Option) (*Controller, *fakeHost, *fakeNotifier) {
	t.Helper()
	host := &fakeHost{}
	notifier := &fakeNotifier{}
	c := New(host, notifier, opts...)
	t.Cleanup(func() { c.Close() })
	return c, host, notifier
}

const gameMarkup = `<html><head><title>贪吃蛇</title></head><body><div id="game-container"></div></body></html>`

func TestInitialState(t *testing.T) {
	c, _, _ := newController(t)
	assert.Equal(t, types.StateEmpty, c.State())
	assert.Equal(t, types.Score{}, c.Snapshot().Score)
}

func TestLoadReady(t *testing.T) {
	c, host, _ := newController(t)

	require.NoError(t, c.Load(types.NewBundle(gameMarkup, types.Metadata{Title: "贪吃蛇"}, types.WithID("game_1"))))
	assert.Equal(t, types.StateLoading, c.State())

	o := host.last()
	snap := c.Snapshot()
	assert.Equal(t, o.id, snap.ContextID)
	assert.Equal(t, "game_1", snap.BundleID)
	assert.Equal(t, inject.Inject(gameMarkup), o.doc)

	o.events.Ready()
	assert.Equal(t, types.StateReady, c.State())
}

func TestLoadMinimalDocument(t *testing.T) {
	c, host, _ := newController(t)
	require.NoError(t, c.Load(types.NewBundle("<html><body>ok</body></html>", types.Metadata{})))

	doc := host.last().doc.String()
	head := strings.Index(doc, "<head>")
	body := strings.Index(doc, "<body>")
	require.GreaterOrEqual(t, head, 0)
	assert.Less(t, head, body)
	assert.Contains(t, doc[head:body], `charset="UTF-8"`)
	assert.Contains(t, doc[head:body], `name="viewport"`)

	summary := analyzer.Summary(c.Snapshot().Findings)
	assert.Zero(t, summary[types.SeverityError])
	assert.Equal(t, 1, summary[types.SeverityWarning])
}

func TestLoadNilEmpties(t *testing.T) {
	c, host, _ := newController(t)
	require.NoError(t, c.Load(types.NewBundle(gameMarkup, types.Metadata{})))
	first := host.last()

	require.NoError(t, c.Load(nil))
	assert.Equal(t, types.StateEmpty, c.State())
	assert.True(t, first.handle.closed.Load())
	assert.Empty(t, c.Snapshot().ContextID)

	first.events.Ready()
	assert.Equal(t, types.StateEmpty, c.State())
}

func TestLoadFailureThenRecover(t *testing.T) {
	c, host, notifier := newController(t)
	require.NoError(t, c.Load(types.NewBundle(gameMarkup, types.Metadata{})))

	host.last().events.Failure(errors.New("timeout"))
	assert.Equal(t, types.StateError, c.State())
	assert.True(t, host.last().handle.closed.Load())
	require.Len(t, notifier.all(), 1)
	assert.True(t, strings.HasPrefix(notifier.all()[0], "error:"))

	require.NoError(t, c.Reload())
	assert.Equal(t, types.StateLoading, c.State())
	host.last().events.Ready()
	assert.Equal(t, types.StateReady, c.State())
}

func TestOpenError(t *testing.T) {
	c, host, notifier := newController(t)
	host.err = errors.New("pool closed")

	err := c.Load(types.NewBundle(gameMarkup, types.Metadata{}))
	assert.Error(t, err)
	assert.Equal(t, types.StateError, c.State())
	assert.Len(t, notifier.all(), 1)
}

func TestReloadRequiresBundle(t *testing.T) {
	c, _, _ := newController(t)
	assert.ErrorIs(t, c.Reload(), ErrNoBundle)
}

func TestReloadKeepsScoreAndUsesOriginalMarkup(t *testing.T) {
	c, host, _ := newController(t)
	require.NoError(t, c.Load(types.NewBundle(gameMarkup, types.Metadata{})))
	first := host.last()
	first.events.Ready()

	c.ApplyScore(first.id, types.ScoreDelta{Correct: intp(3), Progress: intp(4)})
	require.NoError(t, c.Reload())

	second := host.last()
	assert.NotEqual(t, first.id, second.id)
	assert.True(t, first.handle.closed.Load())
	assert.Equal(t, 1, inject.Count(second.doc))
	assert.Equal(t, first.doc, second.doc)
	assert.Equal(t, types.Score{Correct: 3, Progress: 4}, c.Snapshot().Score)

	second.events.Ready()
	require.NoError(t, c.Reload())
	assert.Equal(t, types.Score{Correct: 3, Progress: 4}, c.Snapshot().Score)
}

func TestLoadResetsScore(t *testing.T) {
	c, host, _ := newController(t)
	require.NoError(t, c.Load(types.NewBundle(gameMarkup, types.Metadata{})))
	host.last().events.Ready()
	c.ApplyScore(host.last().id, types.ScoreDelta{Wrong: intp(2)})

	require.NoError(t, c.Load(types.NewBundle(gameMarkup, types.Metadata{})))
	assert.Equal(t, types.Score{}, c.Snapshot().Score)
}

func TestScorePartialMerge(t *testing.T) {
	c, host, _ := newController(t)
	require.NoError(t, c.Load(types.NewBundle(gameMarkup, types.Metadata{})))
	ctxID := host.last().id
	host.last().events.Ready()

	c.ApplyScore(ctxID, types.ScoreDelta{Correct: intp(2), Wrong: intp(1), Progress: intp(3)})
	c.ApplyScore(ctxID, types.ScoreDelta{Correct: intp(5)})
	assert.Equal(t, types.Score{Correct: 5, Wrong: 1, Progress: 3}, c.Snapshot().Score)

	c.RecordScore(types.ScoreDelta{Progress: intp(42)})
	assert.Equal(t, types.MaxProgress, c.Snapshot().Score.Progress)
}

func TestStaleContextGuard(t *testing.T) {
	c, host, _ := newController(t)
	require.NoError(t, c.Load(types.NewBundle(gameMarkup, types.Metadata{})))
	old := host.last()
	old.events.Ready()

	require.NoError(t, c.Reload())
	current := host.last()

	c.ApplyScore(old.id, types.ScoreDelta{Correct: intp(9)})
	assert.Equal(t, types.Score{}, c.Snapshot().Score)

	old.events.Ready()
	assert.Equal(t, types.StateLoading, c.State())
	old.events.Failure(errors.New("late"))
	assert.Equal(t, types.StateLoading, c.State())

	assert.ErrorIs(t, c.Relay(old.id, []byte(`{}`)), ErrStaleContext)

	current.events.Ready()
	assert.Equal(t, types.StateReady, c.State())
}

func TestBridgeDeliversIntoController(t *testing.T) {
	c, host, notifier := newController(t)
	require.NoError(t, c.Load(types.NewBundle(gameMarkup, types.Metadata{})))
	o := host.last()
	o.events.Ready()

	require.True(t, o.handle.Post([]byte(`{"type":"game-status","status":"score-update","data":{"score":"正确: 2 进度: 5"}}`)))
	require.NoError(t, c.Relay(o.id, []byte(`{"type":"game-alert","message":"好!"}`)))
	require.NoError(t, c.Relay(o.id, []byte(`{"type":"whatever"}`)))

	require.Eventually(t, func() bool {
		return c.Snapshot().Score == types.Score{Correct: 2, Progress: 5} && len(notifier.all()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"info:好!"}, notifier.all())
}

func TestReloadLeavesOneListener(t *testing.T) {
	c, host, _ := newController(t)
	require.NoError(t, c.Load(types.NewBundle(gameMarkup, types.Metadata{})))
	first := host.last()
	first.events.Ready()

	require.NoError(t, c.Reload())
	second := host.last()
	second.events.Ready()

	// the first pump is torn down; anything still reaching its channel is ignored
	first.handle.ch <- types.Envelope{ContextID: first.id, Raw: []byte(`{"type":"game-status","status":"score-update","data":{"score":"错误: 7"}}`)}
	require.True(t, second.handle.Post([]byte(`{"type":"game-status","status":"score-update","data":{"score":"正确: 1"}}`)))

	require.Eventually(t, func() bool {
		return c.Snapshot().Score.Correct == 1
	}, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, c.Snapshot().Score.Wrong)
	assert.Equal(t, 2, host.count())
}

func TestToggleFullscreen(t *testing.T) {
	c, _, _ := newController(t)
	assert.ErrorIs(t, c.ToggleFullscreen(), ErrNoPresenter)

	p := &fakePresenter{}
	c, host, _ := newController(t, WithPresenter(p))
	require.NoError(t, c.Load(types.NewBundle(gameMarkup, types.Metadata{})))
	host.last().events.Ready()

	require.NoError(t, c.ToggleFullscreen())
	assert.Equal(t, 1, p.requested)
	assert.False(t, c.Snapshot().Fullscreen)

	c.FullscreenChanged(true)
	require.NoError(t, c.ToggleFullscreen())
	assert.Equal(t, 1, p.exited)

	p.err = errors.New("denied")
	assert.Error(t, c.ToggleFullscreen())
	assert.Equal(t, types.StateReady, c.State())
}

func TestExport(t *testing.T) {
	c, _, _ := newController(t)
	_, err := c.Export()
	assert.ErrorIs(t, err, ErrNoBundle)

	require.NoError(t, c.Load(types.NewBundle(gameMarkup, types.Metadata{Title: "贪吃蛇"})))
	artifact, err := c.Export()
	require.NoError(t, err)
	assert.Equal(t, "贪吃蛇.html", artifact.FileName)
	assert.Equal(t, "text/html; charset=utf-8", artifact.ContentType)
	assert.Equal(t, gameMarkup, string(artifact.Body))
	assert.NotContains(t, string(artifact.Body), inject.ShimMarker)

	tests := []struct {
		title string
		want  string
	}{
		{"", "游戏.html"},
		{"a/b:c", "a_b_c.html"},
		{"  ", "游戏.html"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ExportBundle(types.NewBundle("x", types.Metadata{Title: tt.title})).FileName, tt.title)
	}
}

func TestObserverSeesTransitions(t *testing.T) {
	var states []types.LifecycleState
	c, host, _ := newController(t, WithObserver(func(s Snapshot) {
		states = append(states, s.State)
	}))

	require.NoError(t, c.Load(types.NewBundle(gameMarkup, types.Metadata{})))
	host.last().events.Ready()
	c.FullscreenChanged(true)

	assert.Equal(t, []types.LifecycleState{types.StateLoading, types.StateReady, types.StateReady}, states)
}

func TestClose(t *testing.T) {
	c, host, _ := newController(t)
	require.NoError(t, c.Load(types.NewBundle(gameMarkup, types.Metadata{})))
	o := host.last()

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.True(t, o.handle.closed.Load())
	assert.ErrorIs(t, c.Load(types.NewBundle(gameMarkup, types.Metadata{})), ErrClosed)
	assert.ErrorIs(t, c.Reload(), ErrClosed)
}
