package websocket

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"notecanvas/application/commands/bus"
	"notecanvas/application/ports"
)

// ServerConfig holds WebSocket server configuration
type ServerConfig struct {
	ReadBufferSize  int
	WriteBufferSize int
	AllowedOrigins  []string

	// RateLimit is the sustained intents per second allowed per session;
	// zero or less disables throttling.
	RateLimit float64
	RateBurst int
}

// DefaultServerConfig returns default WebSocket server configuration
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		AllowedOrigins:  []string{"*"},
		RateLimit:       20,
		RateBurst:       40,
	}
}

// Server upgrades HTTP requests into sessions.
type Server struct {
	hub      *Hub
	commands *bus.CommandBus
	cfg      *ServerConfig
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

func NewServer(hub *Hub, commands *bus.CommandBus, cfg *ServerConfig, logger *zap.Logger) *Server {
	if cfg == nil {
		cfg = DefaultServerConfig()
	}

	s := &Server{
		hub:      hub,
		commands: commands,
		cfg:      cfg,
		logger:   logger.Named("websocket"),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  cfg.ReadBufferSize,
		WriteBufferSize: cfg.WriteBufferSize,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

func (s *Server) Hub() *Hub { return s.hub }

// HandleWebSocket upgrades the request and serves the session until the
// connection closes.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Failed to upgrade connection",
			zap.Error(err),
			zap.String("remoteAddr", r.RemoteAddr),
		)
		return
	}

	session := newSession(ports.SessionID(uuid.New().String()), s.hub, conn, s.commands, s.newLimiter(), s.logger)

	s.logger.Info("New WebSocket connection established",
		zap.String("sessionID", string(session.ID())),
		zap.String("remoteAddr", r.RemoteAddr),
	)

	session.run(r.Context())
}

func (s *Server) newLimiter() *rate.Limiter {
	if s.cfg.RateLimit <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := s.cfg.RateBurst
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(s.cfg.RateLimit), burst)
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}
