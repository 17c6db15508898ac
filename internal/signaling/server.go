package signaling

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/hanasu-chat/hanasu-signal/internal/config"
	"github.com/hanasu-chat/hanasu-signal/internal/hub"
	"github.com/hanasu-chat/hanasu-signal/internal/metrics"
	"github.com/hanasu-chat/hanasu-signal/internal/origin"
	"github.com/hanasu-chat/hanasu-signal/internal/ratelimit"
)

// Config wires the gateway to the hub and sets per-connection limits. Zero
// limits fall back to the config package defaults.
type Config struct {
	Hub     *hub.Hub
	Metrics *metrics.Metrics
	Logger  *slog.Logger

	// Origins is checked on every upgrade. Nil admits any origin.
	Origins *origin.Policy

	HandshakeFailure config.HandshakeFailure

	IdleTimeout          time.Duration
	PingInterval         time.Duration
	MaxMessageBytes      int64
	MaxMessagesPerSecond int
	SendQueueBytes       int

	// Clock drives the per-connection rate limiter. Defaults to the real clock.
	Clock ratelimit.Clock
}

// Server accepts signaling WebSocket connections on GET /ws.
type Server struct {
	cfg      Config
	hub      *hub.Hub
	metrics  *metrics.Metrics
	log      *slog.Logger
	upgrader websocket.Upgrader

	mu     sync.Mutex
	conns  map[*wsConn]struct{}
	closed bool
}

func NewServer(cfg Config) *Server {
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Hub == nil {
		cfg.Hub = hub.New(hub.Options{Logger: cfg.Logger, Metrics: cfg.Metrics})
	}
	if cfg.HandshakeFailure == "" {
		cfg.HandshakeFailure = config.DefaultHandshakeFailure
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = config.DefaultSignalingWSIdleTimeout
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = config.DefaultSignalingWSPingInterval
	}
	if cfg.MaxMessageBytes <= 0 {
		cfg.MaxMessageBytes = config.DefaultMaxSignalingMessageBytes
	}
	if cfg.MaxMessagesPerSecond <= 0 {
		cfg.MaxMessagesPerSecond = config.DefaultMaxSignalingMessagesPerSecond
	}
	if cfg.SendQueueBytes <= 0 {
		cfg.SendQueueBytes = config.DefaultSignalingSendQueueBytes
	}
	if cfg.Clock == nil {
		cfg.Clock = ratelimit.RealClock{}
	}

	s := &Server{
		cfg:     cfg,
		hub:     cfg.Hub,
		metrics: cfg.Metrics,
		log:     cfg.Logger,
		conns:   make(map[*wsConn]struct{}),
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: s.checkOrigin}
	return s
}

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws", s.handleWebSocket)
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return mux
}

func (s *Server) Hub() *hub.Hub { return s.hub }

// ConnCount reports open WebSocket connections, registered or not.
func (s *Server) ConnCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Close sends a going-away close frame to every open connection and closes
// it. Hijacked WebSocket connections are not covered by http.Server.Shutdown.
func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true
	conns := make([]*wsConn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.closeWith(websocket.CloseGoingAway, "server shutting down")
		c.Close()
	}
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if s.cfg.Origins == nil {
		return true
	}
	normalized, ok := s.cfg.Origins.CheckRequest(r)
	if !ok {
		s.metrics.Inc(metrics.EventWSOriginRejected)
		s.log.Warn("ws_origin_rejected", "origin", r.Header.Get("Origin"), "normalized", normalized, "remote_addr", r.RemoteAddr)
	}
	return ok
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	identity, identityErr := parseHandshake(r.URL.Query())

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error response.
		return
	}

	c := &wsConn{
		srv:     s,
		conn:    conn,
		session: uuid.NewString(),
		queue:   newSendQueue(s.cfg.SendQueueBytes),
		limiter: ratelimit.NewTokenBucket(s.cfg.Clock, int64(s.cfg.MaxMessagesPerSecond), int64(s.cfg.MaxMessagesPerSecond)),
		done:    make(chan struct{}),
	}
	c.log = s.log.With("session", c.session, "remote_addr", r.RemoteAddr)

	if !s.track(c) {
		c.closeWith(websocket.CloseGoingAway, "server shutting down")
		_ = conn.Close()
		return
	}

	if identityErr != nil {
		s.metrics.Inc(metrics.EventWSHandshakeRejected)
		c.log.Info("ws_handshake_rejected", "err", identityErr, "mode", string(s.cfg.HandshakeFailure))
		if s.cfg.HandshakeFailure == config.HandshakeFailureClose {
			c.closeWith(websocket.ClosePolicyViolation, errMissingIdentity.Error())
			c.Close()
			return
		}
		c.serve(nil)
		return
	}

	c.serve(&identity)
}

func (s *Server) track(c *wsConn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[c] = struct{}{}
	return true
}

func (s *Server) untrack(c *wsConn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
}
