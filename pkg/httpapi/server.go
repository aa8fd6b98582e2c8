package httpapi

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harun/shopagent/internal/observability"
	"github.com/harun/shopagent/internal/tracing"
	"github.com/harun/shopagent/pkg/agent"
	"github.com/rs/zerolog"
)

const (
	defaultShutdownWait = 30 * time.Second
	pruneInterval       = time.Minute
)

// RateLimit configures per-client limits
type RateLimit struct {
	PerMinute     int
	MaxConcurrent int
}

// Config holds server configuration
type Config struct {
	Addr           string
	Runner         *agent.Runner
	SharedSecret   string
	RateLimit      RateLimit
	AllowedOrigins []string
	MaxBodyBytes   int64
	ShutdownWait   time.Duration
	Logger         zerolog.Logger
}

// Server exposes the agent runner over HTTP, SSE and WebSocket
type Server struct {
	addr           string
	runner         *agent.Runner
	auth           *Authenticator
	limiters       *limiterRegistry
	allowedOrigins map[string]bool
	allowAnyOrigin bool
	maxBodyBytes   int64
	shutdownWait   time.Duration
	upgrader       websocket.Upgrader
	server         *http.Server
	logger         zerolog.Logger

	isShuttingDown bool
	shutdownMu     sync.RWMutex
	inFlightReqs   sync.WaitGroup
	pruneCancel    context.CancelFunc
	pruneWG        sync.WaitGroup

	connsMu sync.Mutex
	conns   map[*websocket.Conn]struct{}
}

// NewServer creates a new API server
func NewServer(cfg Config) (*Server, error) {
	if cfg.Runner == nil {
		return nil, fmt.Errorf("agent runner is required")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = maxRequestBodyBytes
	}
	if cfg.ShutdownWait <= 0 {
		cfg.ShutdownWait = defaultShutdownWait
	}

	s := &Server{
		addr:           cfg.Addr,
		runner:         cfg.Runner,
		auth:           NewAuthenticator(cfg.SharedSecret),
		limiters:       newLimiterRegistry(cfg.RateLimit.PerMinute, cfg.RateLimit.MaxConcurrent),
		allowedOrigins: make(map[string]bool),
		conns:          make(map[*websocket.Conn]struct{}),
		maxBodyBytes:   cfg.MaxBodyBytes,
		shutdownWait:   cfg.ShutdownWait,
		logger:         cfg.Logger.With().Str("component", "httpapi").Logger(),
	}
	for _, origin := range cfg.AllowedOrigins {
		if origin == "*" {
			s.allowAnyOrigin = true
			continue
		}
		s.allowedOrigins[strings.TrimRight(origin, "/")] = true
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	return s, nil
}

// Handler returns the routed handler with middleware applied
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("POST /v1/chat", s.guard(s.handleChat))
	mux.Handle("POST /v1/chat/stream", s.guard(s.handleChatStream))
	mux.Handle("GET /v1/chat/ws", s.guardConn(s.handleWebSocket))
	mux.Handle("DELETE /v1/sessions/{tenant}/{session}", s.guard(s.handleLogout))
	mux.Handle("GET /v1/runs", s.guard(s.handleListRuns))
	mux.Handle("GET /v1/runs/{id}", s.guard(s.handleGetRun))
	mux.Handle("GET /metrics", observability.MetricsHandler())
	mux.HandleFunc("GET /health", s.handleHealth)

	return s.withTrace(s.withCORS(mux))
}

// Start listens in the background
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	return s.Serve(ln)
}

// Serve serves on ln in the background
func (s *Server) Serve(ln net.Listener) error {
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info().Str("addr", ln.Addr().String()).Msg("Starting API server")

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("API server error")
		}
	}()
	s.startPruner()
	return nil
}

// Stop refuses new turns, waits for in-flight ones and shuts the listener down
func (s *Server) Stop(ctx context.Context) error {
	s.shutdownMu.Lock()
	s.isShuttingDown = true
	s.shutdownMu.Unlock()

	s.logger.Info().Msg("Shutting down API server")
	s.stopPruner()

	done := make(chan struct{})
	go func() {
		s.inFlightReqs.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info().Msg("All in-flight requests completed")
	case <-time.After(s.shutdownWait):
		s.logger.Warn().Msg("Shutdown timeout reached, forcing close")
	case <-ctx.Done():
		s.logger.Warn().Msg("Shutdown context done, forcing close")
	}

	s.closeConns()

	if s.server == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.logger.Info().Msg("API server stopped")
	return nil
}

func (s *Server) shuttingDown() bool {
	s.shutdownMu.RLock()
	defer s.shutdownMu.RUnlock()
	return s.isShuttingDown
}

func (s *Server) startPruner() {
	ctx, cancel := context.WithCancel(context.Background())
	s.pruneCancel = cancel
	s.pruneWG.Add(1)

	go func() {
		defer s.pruneWG.Done()

		ticker := time.NewTicker(pruneInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				if n := s.limiters.prune(now); n > 0 {
					s.logger.Debug().Int("removed", n).Msg("Pruned idle rate limiters")
				}
			}
		}
	}()
}

func (s *Server) stopPruner() {
	if s.pruneCancel != nil {
		s.pruneCancel()
		s.pruneCancel = nil
	}
	s.pruneWG.Wait()
}

// guard applies shutdown, auth and rate limiting to an API route and counts it
// as in flight
func (s *Server) guard(next http.HandlerFunc) http.Handler {
	return s.admit(func(w http.ResponseWriter, r *http.Request) {
		s.inFlightReqs.Add(1)
		defer s.inFlightReqs.Done()
		next(w, r)
	})
}

// guardConn admits a long-lived connection. Its turns count as in flight
// individually.
func (s *Server) guardConn(next http.HandlerFunc) http.Handler {
	return s.admit(next)
}

func (s *Server) admit(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.shuttingDown() {
			writeErrorCode(w, http.StatusServiceUnavailable, CodeShuttingDown, "server is shutting down")
			return
		}
		if !s.authenticate(w, r) {
			writeErrorCode(w, http.StatusUnauthorized, CodeUnauthorized, "unauthorized")
			return
		}

		limiter := s.limiters.get(clientKey(r))
		if ok, reason := limiter.Acquire(); !ok {
			w.Header().Set("Retry-After", "1")
			writeErrorCode(w, http.StatusTooManyRequests, CodeRateLimited, reason)
			return
		}
		defer limiter.Release()

		next(w, r)
	})
}

func (s *Server) trackConn(conn *websocket.Conn) {
	s.connsMu.Lock()
	s.conns[conn] = struct{}{}
	s.connsMu.Unlock()
}

func (s *Server) untrackConn(conn *websocket.Conn) {
	s.connsMu.Lock()
	delete(s.conns, conn)
	s.connsMu.Unlock()
}

func (s *Server) closeConns() {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	for conn := range s.conns {
		_ = conn.Close()
	}
}

// authenticate accepts the shared secret header, a bearer token or a body
// signature. WebSocket upgrades may pass the secret as a query parameter.
func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) bool {
	if !s.auth.Enabled() {
		return true
	}
	if s.auth.CheckSecret(r.Header.Get(SecretHeader)) || s.auth.CheckSecret(r.Header.Get("Authorization")) {
		return true
	}
	if websocket.IsWebSocketUpgrade(r) {
		return s.auth.CheckSecret(r.URL.Query().Get("secret"))
	}

	signature := r.Header.Get(SignatureHeader)
	if signature == "" || r.Body == nil {
		return false
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBodyBytes))
	if err != nil {
		return false
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	return s.auth.VerifySignature(body, signature)
}

func (s *Server) withTrace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get("X-Trace-Id")
		if traceID == "" {
			traceID = tracing.NewTraceID()
		}
		w.Header().Set("X-Trace-Id", traceID)

		ctx := tracing.WithTraceID(r.Context(), traceID)
		start := time.Now()
		next.ServeHTTP(w, r.WithContext(ctx))

		logger := tracing.LoggerFromContext(ctx, s.logger)
		logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("duration", time.Since(start)).
			Msg("Handled request")
	})
}

func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Headers",
				"Content-Type, Authorization, Idempotency-Key, X-Trace-Id, X-Client-Id, "+SecretHeader+", "+SignatureHeader)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Expose-Headers", "X-Trace-Id")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) originAllowed(origin string) bool {
	return s.allowAnyOrigin || s.allowedOrigins[strings.TrimRight(origin, "/")]
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if s.originAllowed(origin) {
		return true
	}
	// same host is always fine
	return strings.HasSuffix(origin, "://"+r.Host)
}

// clientKey identifies the caller for rate limiting
func clientKey(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get("X-Client-Id")); id != "" {
		return "client:" + id
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return "ip:" + r.RemoteAddr
	}
	return "ip:" + host
}
