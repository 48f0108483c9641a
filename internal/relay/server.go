package relay

import (
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/devicelink/signaling-relay/internal/clientaddr"
	"github.com/devicelink/signaling-relay/internal/config"
	"github.com/devicelink/signaling-relay/internal/metrics"
	"github.com/devicelink/signaling-relay/internal/origin"
	"github.com/devicelink/signaling-relay/internal/pairing"
	"github.com/devicelink/signaling-relay/internal/presence"
	"github.com/devicelink/signaling-relay/internal/ratelimit"
)

// Server implements the signaling WebSocket endpoint.
//
// Each connection gets its own read loop; frames from one connection are
// handled in arrival order. The registry and session store serialize their
// own mutations, which reproduces the single-threaded semantics clients
// were written against.
type Server struct {
	cfg      config.Config
	log      *slog.Logger
	registry *presence.Registry
	store    *pairing.Store
	metrics  *metrics.Metrics
	clock    ratelimit.Clock

	upgrader websocket.Upgrader
}

func NewServer(cfg config.Config, registry *presence.Registry, store *pairing.Store, m *metrics.Metrics, clock ratelimit.Clock, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if clock == nil {
		clock = ratelimit.RealClock{}
	}
	s := &Server{
		cfg:      cfg,
		log:      logger,
		registry: registry,
		store:    store,
		metrics:  m,
		clock:    clock,
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: s.checkOrigin}
	return s
}

func (s *Server) checkOrigin(r *http.Request) bool {
	header := strings.TrimSpace(r.Header.Get("Origin"))
	if header == "" {
		// Native device agents send no Origin header.
		return true
	}
	normalized, host, ok := origin.Normalize(header)
	if !ok {
		return false
	}
	return origin.Allowed(normalized, host, r.Host, s.cfg.AllowedOrigins)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	addr := clientaddr.FromRequest(r, s.cfg.TrustProxy)
	conn := newWSConn(ws)

	s.metrics.Inc(metrics.ConnectionsOpened)
	s.log.Info("connection opened", "remote_addr", addr)
	defer func() {
		s.registry.RemoveConn(conn)
		_ = conn.Close()
		s.metrics.Inc(metrics.ConnectionsClosed)
		s.log.Info("connection closed", "remote_addr", addr)
	}()

	if s.cfg.MaxMessageBytes > 0 {
		ws.SetReadLimit(s.cfg.MaxMessageBytes)
	}

	rate := int64(s.cfg.MaxMessagesPerSecond)
	limiter := ratelimit.NewTokenBucket(s.clock, rate, rate)

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		if rate > 0 && !limiter.Allow(1) {
			s.metrics.Inc(metrics.RateLimitedClose)
			s.log.Warn("closing connection over message rate limit", "remote_addr", addr)
			conn.closeWithReason(websocket.ClosePolicyViolation, "rate limit exceeded")
			return
		}
		s.Handle(conn, addr, data)
	}
}
