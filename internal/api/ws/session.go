package ws

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/gamehost/internal/domain/lifecycle"
	"github.com/GriffinCanCode/gamehost/internal/infrastructure/logging"
	"github.com/GriffinCanCode/gamehost/internal/shared/id"
	"github.com/GriffinCanCode/gamehost/internal/shared/types"
	"github.com/GriffinCanCode/gamehost/internal/shared/utils"
	"github.com/GriffinCanCode/gamehost/internal/storage"
)

// Client → server frame types
const (
	TypeLoad              = "load"
	TypeUnload            = "unload"
	TypeReload            = "reload"
	TypeRelay             = "relay"
	TypeFullscreen        = "fullscreen"
	TypeFullscreenChanged = "fullscreen-changed"
	TypeExport            = "export"
	TypeSnapshot          = "snapshot"
	TypePing              = "ping"
)

// Server → client frame types
const (
	TypeSystem            = "system"
	TypeNotice            = "notice"
	TypeFullscreenRequest = "fullscreen-request"
	TypeFullscreenExit    = "fullscreen-exit"
	TypeArtifact          = "artifact"
	TypePong              = "pong"
	TypeError             = "error"
)

var errSessionClosed = errors.New("session closed")

// frame is an outbound message
type frame map[string]interface{}

// Session is one connected host page. Callbacks arrive from the controller,
// some under its lock, and from the bridge pump goroutine; every callback
// only queues a frame for the writer goroutine.
type Session struct {
	id      string
	handler *Handler
	conn    *websocket.Conn
	ctrl    *lifecycle.Controller
	logger  *logging.Logger

	out       chan frame
	done      chan struct{}
	closeOnce sync.Once
}

func newSession(h *Handler, conn *websocket.Conn) *Session {
	s := &Session{
		id:      uuid.NewString(),
		handler: h,
		conn:    conn,
		out:     make(chan frame, outboundBuffer),
		done:    make(chan struct{}),
	}
	s.logger = h.logger.With(zap.String("session_id", s.id))
	return s
}

// ID returns the session identifier
func (s *Session) ID() string { return s.id }

func (s *Session) run(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	opts := []lifecycle.Option{
		lifecycle.WithPresenter(s),
		lifecycle.WithLogger(s.logger),
		lifecycle.WithObserver(s.observe),
		lifecycle.WithBaseContext(ctx),
	}
	if s.handler.metrics != nil {
		opts = append(opts, lifecycle.WithRecorder(s.handler.metrics))
	}
	s.ctrl = lifecycle.New(s.handler.host, s, opts...)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writeLoop()
	}()

	s.logger.Info("session opened")
	s.enqueue(frame{"type": TypeSystem, "sessionId": s.id, "message": "connected"})
	s.observe(s.ctrl.Snapshot())

	s.readLoop(ctx)

	_ = s.ctrl.Close()
	s.close()
	<-writerDone
	_ = s.conn.Close()
	s.logger.Info("session closed")
}

func (s *Session) readLoop(ctx context.Context) {
	s.conn.SetReadLimit(maxFrameSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("websocket read error", zap.Error(err))
			}
			return
		}

		var msg types.WSMessage
		if err := sonic.Unmarshal(data, &msg); err != nil {
			s.sendError("invalid message format")
			continue
		}
		s.record("in", msg.Type)
		s.dispatch(ctx, msg)
	}
}

func (s *Session) dispatch(ctx context.Context, msg types.WSMessage) {
	switch msg.Type {
	case TypeLoad:
		s.handleLoad(ctx, msg)
	case TypeUnload:
		s.check(s.ctrl.Load(nil))
	case TypeReload:
		s.check(s.ctrl.Reload())
	case TypeRelay:
		s.handleRelay(msg)
	case TypeFullscreen:
		s.check(s.ctrl.ToggleFullscreen())
	case TypeFullscreenChanged:
		if msg.Active == nil {
			s.sendError("active is required")
			return
		}
		s.ctrl.FullscreenChanged(*msg.Active)
	case TypeExport:
		s.handleExport()
	case TypeSnapshot:
		s.observe(s.ctrl.Snapshot())
	case TypePing:
		s.enqueue(frame{"type": TypePong})
	default:
		s.sendError("unknown message type")
	}
}

// handleLoad plays a saved game named by gameId, or inline markup carried
// in payload.html
func (s *Session) handleLoad(ctx context.Context, msg types.WSMessage) {
	bundle, err := s.resolve(ctx, msg)
	if err != nil {
		s.sendError(err.Error())
		return
	}
	s.check(s.ctrl.Load(bundle))
}

func (s *Session) resolve(ctx context.Context, msg types.WSMessage) (*types.Bundle, error) {
	if msg.GameID != "" {
		if err := utils.ValidateID(msg.GameID, "gameId", true); err != nil {
			return nil, err
		}
		if s.handler.loader == nil {
			return nil, errors.New("saved games are not available")
		}
		bundle, err := s.handler.loader.Get(ctx, msg.GameID)
		if errors.Is(err, storage.ErrNotFound) {
			return nil, errors.New("游戏不存在")
		}
		return bundle, err
	}

	html, _ := msg.Payload["html"].(string)
	if err := utils.ValidateMarkup(html); err != nil {
		return nil, err
	}
	title, _ := msg.Payload["title"].(string)
	return types.NewBundle(html, types.Metadata{Title: title}), nil
}

// handleRelay forwards a message posted by the page's renderer into the
// execution context it was produced by
func (s *Session) handleRelay(msg types.WSMessage) {
	if !id.HasPrefix(msg.ContextID, id.ContextPrefix) {
		s.sendError("contextId is not an execution context id")
		return
	}
	if msg.Payload == nil {
		s.sendError("payload is required")
		return
	}
	raw, err := sonic.Marshal(msg.Payload)
	if err != nil {
		s.sendError("invalid payload")
		return
	}
	if err := s.ctrl.Relay(msg.ContextID, raw); err != nil {
		if errors.Is(err, lifecycle.ErrStaleContext) {
			s.logger.Debug("dropping relay for stale context", zap.String("context_id", msg.ContextID))
			return
		}
		s.sendError(err.Error())
	}
}

func (s *Session) handleExport() {
	artifact, err := s.ctrl.Export()
	if err != nil {
		s.sendError(err.Error())
		return
	}
	s.enqueue(frame{
		"type":        TypeArtifact,
		"fileName":    artifact.FileName,
		"contentType": artifact.ContentType,
		"html":        string(artifact.Body),
	})
}

func (s *Session) check(err error) {
	if err != nil && !errors.Is(err, lifecycle.ErrClosed) {
		s.sendError(err.Error())
	}
}

func (s *Session) observe(snap lifecycle.Snapshot) {
	s.enqueue(frame{"type": TypeSnapshot, "data": snap})
}

// Info implements bridge.Notifier
func (s *Session) Info(text string) { s.notice("info", text) }

// Warn implements bridge.Notifier
func (s *Session) Warn(text string) { s.notice("warning", text) }

// Error implements bridge.Notifier
func (s *Session) Error(text string) { s.notice("error", text) }

func (s *Session) notice(level, text string) {
	s.enqueue(frame{"type": TypeNotice, "level": level, "message": text})
}

// RequestFullscreen implements lifecycle.Presenter. The page answers with a
// fullscreen-changed frame once the platform has switched.
func (s *Session) RequestFullscreen() error {
	if !s.enqueue(frame{"type": TypeFullscreenRequest}) {
		return errSessionClosed
	}
	return nil
}

// ExitFullscreen implements lifecycle.Presenter
func (s *Session) ExitFullscreen() error {
	if !s.enqueue(frame{"type": TypeFullscreenExit}) {
		return errSessionClosed
	}
	return nil
}

func (s *Session) sendError(msg string) {
	s.enqueue(frame{"type": TypeError, "message": msg})
}

// enqueue never blocks; frames are dropped when the peer falls behind
func (s *Session) enqueue(f frame) bool {
	if _, ok := f["timestamp"]; !ok {
		f["timestamp"] = time.Now().Unix()
	}
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.out <- f:
		return true
	case <-s.done:
		return false
	default:
		s.logger.Warn("dropping outbound frame", zap.Any("type", f["type"]))
		return false
	}
}

func (s *Session) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case f := <-s.out:
			if err := s.write(f); err != nil {
				s.logger.Debug("websocket write failed", zap.Error(err))
				s.close()
				_ = s.conn.Close()
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.close()
				_ = s.conn.Close()
				return
			}
		case <-s.done:
			s.drain()
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = s.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// drain flushes frames queued before the session closed
func (s *Session) drain() {
	for {
		select {
		case f := <-s.out:
			if err := s.write(f); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (s *Session) write(f frame) error {
	data, err := sonic.Marshal(f)
	if err != nil {
		return fmt.Errorf("failed to encode frame: %w", err)
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return err
	}
	if t, ok := f["type"].(string); ok {
		s.record("out", t)
	}
	return nil
}

func (s *Session) record(direction, msgType string) {
	if s.handler.metrics == nil {
		return
	}
	switch msgType {
	case TypeLoad, TypeUnload, TypeReload, TypeRelay, TypeFullscreen, TypeFullscreenChanged,
		TypeExport, TypeSnapshot, TypePing, TypeSystem, TypeNotice, TypeFullscreenRequest,
		TypeFullscreenExit, TypeArtifact, TypePong, TypeError:
	default:
		msgType = "unknown"
	}
	s.handler.metrics.RecordWSMessage(direction, msgType)
}

func (s *Session) close() {
	s.closeOnce.Do(func() { close(s.done) })
}
