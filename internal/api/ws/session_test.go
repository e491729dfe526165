package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/gamehost/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/gamehost/internal/shared/id"
	"github.com/GriffinCanCode/gamehost/internal/shared/types"
	"github.com/GriffinCanCode/gamehost/internal/storage"
)

type fakeHandle struct {
	id       string
	messages chan types.Envelope
}

func (h *fakeHandle) ID() string                      { return h.id }
func (h *fakeHandle) Messages() <-chan types.Envelope { return h.messages }
func (h *fakeHandle) Close() error                    { return nil }

func (h *fakeHandle) Post(raw []byte) bool {
	select {
	case h.messages <- types.Envelope{ContextID: h.id, Raw: raw}:
		return true
	default:
		return false
	}
}

// fakeHost readies every context it opens
type fakeHost struct{}

func (fakeHost) Open(ctx context.Context, id string, doc types.HardenedDocument, events types.ContextEvents) (types.ContextHandle, error) {
	go events.Ready()
	return &fakeHandle{id: id, messages: make(chan types.Envelope, 8)}, nil
}

type mapLoader map[string]*types.Bundle

func (m mapLoader) Get(ctx context.Context, id string) (*types.Bundle, error) {
	if b, ok := m[id]; ok {
		return b, nil
	}
	return nil, storage.ErrNotFound
}

func startServer(t *testing.T, opts ...Option) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	loader := mapLoader{
		"game_1": types.NewBundle("<h1>加法</h1>", types.Metadata{Title: "加法"}, types.WithID("game_1")),
	}
	h := NewHandler(fakeHost{}, loader, opts...)
	r := gin.New()
	r.GET("/stream", h.HandleConnection)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msg interface{}) {
	t.Helper()
	data, err := sonic.Marshal(msg)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
}

// next reads frames until one satisfies match
func next(t *testing.T, conn *websocket.Conn, match func(map[string]interface{}) bool) map[string]interface{} {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var f map[string]interface{}
		require.NoError(t, sonic.Unmarshal(data, &f))
		if match(f) {
			return f
		}
	}
}

func ofType(typ string) func(map[string]interface{}) bool {
	return func(f map[string]interface{}) bool { return f["type"] == typ }
}

func inState(state types.LifecycleState) func(map[string]interface{}) bool {
	return func(f map[string]interface{}) bool {
		if f["type"] != TypeSnapshot {
			return false
		}
		return f["data"].(map[string]interface{})["state"] == string(state)
	}
}

func TestSessionGreets(t *testing.T) {
	conn := dial(t, startServer(t))

	hello := next(t, conn, func(map[string]interface{}) bool { return true })
	assert.Equal(t, TypeSystem, hello["type"])
	assert.NotEmpty(t, hello["sessionId"])

	snap := next(t, conn, ofType(TypeSnapshot))
	assert.Equal(t, string(types.StateEmpty), snap["data"].(map[string]interface{})["state"])
}

func TestSessionLoadInlineAndRelay(t *testing.T) {
	conn := dial(t, startServer(t))

	send(t, conn, types.WSMessage{Type: TypeLoad, Payload: map[string]interface{}{"html": "<p>hi</p>", "title": "问候"}})
	ready := next(t, conn, inState(types.StateReady))
	data := ready["data"].(map[string]interface{})
	assert.Equal(t, "问候", data["title"])
	contextID := data["contextId"].(string)
	require.NotEmpty(t, contextID)

	send(t, conn, types.WSMessage{
		Type:      TypeRelay,
		ContextID: contextID,
		Payload:   map[string]interface{}{"type": types.MessageAlert, "message": "<b>答对了</b>"},
	})
	notice := next(t, conn, ofType(TypeNotice))
	assert.Equal(t, "info", notice["level"])
	assert.Equal(t, "答对了", notice["message"])
}

func TestSessionStaleRelayIsDropped(t *testing.T) {
	conn := dial(t, startServer(t))

	send(t, conn, types.WSMessage{Type: TypeLoad, GameID: "game_1"})
	next(t, conn, inState(types.StateReady))

	send(t, conn, types.WSMessage{
		Type:      TypeRelay,
		ContextID: id.NewContextID().String(),
		Payload:   map[string]interface{}{"type": types.MessageAlert, "message": "stale"},
	})
	send(t, conn, types.WSMessage{Type: TypePing})

	f := next(t, conn, func(f map[string]interface{}) bool { return f["type"] != TypeSnapshot })
	assert.Equal(t, TypePong, f["type"])
}

func TestSessionLoadErrors(t *testing.T) {
	conn := dial(t, startServer(t))

	tests := []struct {
		name    string
		msg     types.WSMessage
		message string
	}{
		{"unknown game", types.WSMessage{Type: TypeLoad, GameID: "game_404"}, "游戏不存在"},
		{"bad id", types.WSMessage{Type: TypeLoad, GameID: "../etc"}, "gameId contains invalid characters"},
		{"no markup", types.WSMessage{Type: TypeLoad}, "html is required"},
		{"reload empty", types.WSMessage{Type: TypeReload}, "no bundle loaded"},
		{"export empty", types.WSMessage{Type: TypeExport}, "no bundle loaded"},
		{"unknown type", types.WSMessage{Type: "chat"}, "unknown message type"},
		{"fullscreen flag missing", types.WSMessage{Type: TypeFullscreenChanged}, "active is required"},
		{"relay without context id", types.WSMessage{Type: TypeRelay, Payload: map[string]interface{}{"type": types.MessageAlert}}, "contextId is not an execution context id"},
		{"relay to foreign id", types.WSMessage{Type: TypeRelay, ContextID: "game_01HZX", Payload: map[string]interface{}{"type": types.MessageAlert}}, "contextId is not an execution context id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			send(t, conn, tt.msg)
			f := next(t, conn, ofType(TypeError))
			assert.Contains(t, f["message"], tt.message)
		})
	}
}

func TestSessionFullscreen(t *testing.T) {
	conn := dial(t, startServer(t))

	send(t, conn, types.WSMessage{Type: TypeFullscreen})
	next(t, conn, ofType(TypeFullscreenRequest))

	active := true
	send(t, conn, types.WSMessage{Type: TypeFullscreenChanged, Active: &active})
	snap := next(t, conn, func(f map[string]interface{}) bool {
		return f["type"] == TypeSnapshot && f["data"].(map[string]interface{})["fullscreen"] == true
	})
	assert.Equal(t, string(types.StateEmpty), snap["data"].(map[string]interface{})["state"])

	send(t, conn, types.WSMessage{Type: TypeFullscreen})
	next(t, conn, ofType(TypeFullscreenExit))
}

func TestSessionExport(t *testing.T) {
	conn := dial(t, startServer(t))

	send(t, conn, types.WSMessage{Type: TypeLoad, GameID: "game_1"})
	next(t, conn, inState(types.StateReady))

	send(t, conn, types.WSMessage{Type: TypeExport})
	f := next(t, conn, ofType(TypeArtifact))
	assert.Equal(t, "加法.html", f["fileName"])
	assert.Equal(t, "<h1>加法</h1>", f["html"])

	send(t, conn, types.WSMessage{Type: TypeUnload})
	next(t, conn, inState(types.StateEmpty))
}

func TestSessionMetrics(t *testing.T) {
	metrics := monitoring.NewMetrics()
	conn := dial(t, startServer(t, WithMetrics(metrics)))

	send(t, conn, types.WSMessage{Type: TypePing})
	next(t, conn, ofType(TypePong))
	assert.Equal(t, int64(1), metrics.Snapshot().ActiveConnections)

	conn.Close()
	assert.Eventually(t, func() bool {
		return metrics.Snapshot().ActiveConnections == 0
	}, 5*time.Second, 10*time.Millisecond)
}

func TestCheckOrigin(t *testing.T) {
	srv := startServer(t, WithAllowedOrigins("http://games.example"))
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/stream"

	tests := []struct {
		name   string
		origin string
		ok     bool
	}{
		{"listed", "http://games.example", true},
		{"no origin", "", true},
		{"same host", srv.URL, true},
		{"foreign", "http://evil.example", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := http.Header{}
			if tt.origin != "" {
				header.Set("Origin", tt.origin)
			}
			conn, resp, err := websocket.DefaultDialer.Dial(url, header)
			if tt.ok {
				require.NoError(t, err)
				conn.Close()
				return
			}
			require.Error(t, err)
			require.NotNil(t, resp)
			assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		})
	}
}

func TestWithAllowedOriginsWildcard(t *testing.T) {
	h := NewHandler(fakeHost{}, nil, WithAllowedOrigins("http://a.example", "*"))
	assert.Nil(t, h.origins)
}
