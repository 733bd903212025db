package websocket

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"notecanvas/application/ports"
	"notecanvas/domain/events"
)

// ErrSessionClosed is returned when the addressed session is gone.
var ErrSessionClosed = errors.New("session closed")

// Metrics receives session lifecycle counts.
type Metrics interface {
	SessionOpened()
	SessionClosed()
	EventDropped()
}

type nopMetrics struct{}

func (nopMetrics) SessionOpened() {}
func (nopMetrics) SessionClosed() {}
func (nopMetrics) EventDropped()  {}

var _ ports.Fanout = (*Hub)(nil)

// Hub is the in-process Fanout. Broadcasts are enqueued under one lock so
// every session observes them in the same order; a session whose buffer is
// full is dropped instead of stalling the others. Sessions that are still
// receiving a snapshot collect broadcasts in a backlog instead, flushed once
// the snapshot has been queued.
type Hub struct {
	mu       sync.Mutex
	sessions map[ports.SessionID]*Session
	clock    ports.Clock
	metrics  Metrics
	logger   *zap.Logger
}

func NewHub(clock ports.Clock, metrics Metrics, logger *zap.Logger) *Hub {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &Hub{
		sessions: make(map[ports.SessionID]*Session),
		clock:    clock,
		metrics:  metrics,
		logger:   logger.Named("hub"),
	}
}

func (h *Hub) register(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.sessions[s.id] = s
	h.metrics.SessionOpened()

	h.logger.Info("Session registered",
		zap.String("sessionID", string(s.id)),
		zap.Int("sessions", len(h.sessions)),
	)
}

func (h *Hub) unregister(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.remove(s) {
		h.logger.Info("Session unregistered",
			zap.String("sessionID", string(s.id)),
			zap.Int("sessions", len(h.sessions)),
		)
	}
}

// remove must be called with h.mu held.
func (h *Hub) remove(s *Session) bool {
	if cur, ok := h.sessions[s.id]; !ok || cur != s {
		return false
	}
	delete(h.sessions, s.id)
	s.close()
	h.metrics.SessionClosed()
	return true
}

// SendToCaller queues an event for one session, waiting for buffer space.
func (h *Hub) SendToCaller(ctx context.Context, caller ports.SessionID, event events.Name, payload interface{}) error {
	frame, err := events.Encode(event, payload, h.clock.Now())
	if err != nil {
		return err
	}

	h.mu.Lock()
	s, ok := h.sessions[caller]
	h.mu.Unlock()
	if !ok {
		return ErrSessionClosed
	}

	select {
	case s.send <- frame:
		return nil
	case <-s.done:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SendToAll queues an event for every registered session.
func (h *Hub) SendToAll(_ context.Context, event events.Name, payload interface{}) error {
	frame, err := events.Encode(event, payload, h.clock.Now())
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for _, s := range h.sessions {
		if s.replaying {
			if len(s.backlog) < maxBacklog {
				s.backlog = append(s.backlog, frame)
				continue
			}
			h.metrics.EventDropped()
			h.remove(s)
			h.logger.Warn("Dropping session with full backlog",
				zap.String("sessionID", string(s.id)),
				zap.String("event", event.String()),
			)
			continue
		}
		select {
		case s.send <- frame:
		default:
			h.metrics.EventDropped()
			h.remove(s)
			h.logger.Warn("Dropping slow session",
				zap.String("sessionID", string(s.id)),
				zap.String("event", event.String()),
			)
		}
	}
	return nil
}

func (h *Hub) beginReplay(s *Session) {
	h.mu.Lock()
	s.replaying = true
	h.mu.Unlock()
}

// endReplay hands the backlog collected during a replay to the session's
// writer, waiting for buffer space, and returns it to the drop policy.
func (h *Hub) endReplay(ctx context.Context, s *Session) {
	for {
		h.mu.Lock()
		pending := s.backlog
		s.backlog = nil
		if len(pending) == 0 {
			s.replaying = false
			h.mu.Unlock()
			return
		}
		h.mu.Unlock()

		for _, frame := range pending {
			select {
			case s.send <- frame:
			case <-s.done:
				h.abandonReplay(s)
				return
			case <-ctx.Done():
				h.abandonReplay(s)
				return
			}
		}
	}
}

func (h *Hub) abandonReplay(s *Session) {
	h.mu.Lock()
	s.replaying = false
	s.backlog = nil
	h.mu.Unlock()
}

// Count reports the number of registered sessions.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Close disconnects every session.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, s := range h.sessions {
		h.remove(s)
	}
	h.logger.Info("Hub closed")
}
