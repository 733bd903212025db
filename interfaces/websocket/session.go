package websocket

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"notecanvas/application/commands/bus"
	"notecanvas/application/ports"
	"notecanvas/domain/events"
	pkgerrors "notecanvas/pkg/errors"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 64 * 1024

	sendBufferSize = 256

	// Broadcasts held for a session while its snapshot is being queued
	maxBacklog = 4096
)

// Session is one connected client.
type Session struct {
	id       ports.SessionID
	hub      *Hub
	conn     *websocket.Conn
	commands *bus.CommandBus
	limiter  *rate.Limiter
	logger   *zap.Logger

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once

	// guarded by hub.mu
	replaying bool
	backlog   [][]byte
}

func newSession(id ports.SessionID, hub *Hub, conn *websocket.Conn, commands *bus.CommandBus, limiter *rate.Limiter, logger *zap.Logger) *Session {
	return &Session{
		id:       id,
		hub:      hub,
		conn:     conn,
		commands: commands,
		limiter:  limiter,
		logger:   logger.With(zap.String("sessionID", string(id))),
		send:     make(chan []byte, sendBufferSize),
		done:     make(chan struct{}),
	}
}

func (s *Session) ID() ports.SessionID { return s.id }

func (s *Session) close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// run registers the session, replays the canvas to it and then serves
// inbound frames until the connection ends.
func (s *Session) run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Broadcasts racing the initial replay go to the backlog.
	s.replaying = true
	s.hub.register(s)
	go s.writePump()

	s.dispatch(ctx, Inbound{Type: IntentRequestSnapshot})
	s.readPump(ctx)
}

// readPump pumps frames from the connection into the command bus.
func (s *Session) readPump(ctx context.Context) {
	defer func() {
		s.hub.unregister(s)
		s.conn.Close()
		s.logger.Debug("Read pump stopped")
	}()

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Warn("WebSocket read error", zap.Error(err))
			}
			return
		}
		if messageType != websocket.TextMessage {
			s.logger.Debug("Ignoring non-text frame")
			continue
		}

		var in Inbound
		if err := json.Unmarshal(bytes.TrimSpace(message), &in); err != nil {
			s.reject(ctx, in, pkgerrors.NewValidationError("malformed message").
				WithCode(CodeMalformedMessage).
				WithCause(err))
			continue
		}

		if in.Type == IntentPing {
			_ = s.hub.SendToCaller(ctx, s.id, events.Pong, nil)
			continue
		}

		// Throttle by waiting rather than dropping the intent.
		if err := s.limiter.Wait(ctx); err != nil {
			return
		}
		s.dispatch(ctx, in)
	}
}

// writePump pumps queued frames to the connection.
func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
		s.logger.Debug("Write pump stopped")
	}()

	for {
		select {
		case message := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				s.logger.Warn("Failed to write message", zap.Error(err))
				return
			}

		case <-s.done:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			s.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.logger.Debug("Failed to send ping", zap.Error(err))
				return
			}
		}
	}
}

func (s *Session) dispatch(ctx context.Context, in Inbound) {
	if in.Type == IntentRequestSnapshot {
		s.hub.beginReplay(s)
		defer s.hub.endReplay(ctx, s)
	}

	cmd, err := DecodeIntent(s.id, in)
	if err == nil {
		_, err = s.commands.Send(ctx, cmd)
	}
	if err != nil {
		s.reject(ctx, in, err)
	}
}

// reject tells the session its intent failed. Nobody else is notified.
func (s *Session) reject(ctx context.Context, in Inbound, err error) {
	s.logger.Debug("Intent rejected",
		zap.String("intent", in.Type),
		zap.String("requestID", in.RequestID),
		zap.Error(err),
	)
	if sendErr := s.hub.SendToCaller(ctx, s.id, events.Error, ErrorFor(in, err)); sendErr != nil {
		s.logger.Debug("Could not deliver error event", zap.Error(sendErr))
	}
}
