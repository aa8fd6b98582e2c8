package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harun/shopagent/internal/tracing"
	"github.com/harun/shopagent/pkg/agent"
	"github.com/harun/shopagent/pkg/apperror"
	"github.com/harun/shopagent/pkg/diagnostics"
	"github.com/harun/shopagent/pkg/session"
	"github.com/harun/shopagent/pkg/stream"
	"github.com/harun/shopagent/pkg/toolexecutor"
)

const (
	defaultRunsLimit = 20
	maxRunsLimit     = 100
	wsReadTimeout    = 10 * time.Minute
)

type chatRequest struct {
	TenantID  string                   `json:"tenant_id"`
	SessionID string                   `json:"session_id"`
	Message   string                   `json:"message"`
	Context   toolexecutor.ToolContext `json:"context"`
	RequestID string                   `json:"request_id,omitempty"`
}

func (c chatRequest) toAgent(idempotencyKey string) agent.Request {
	requestID := c.RequestID
	if requestID == "" {
		requestID = idempotencyKey
	}
	return agent.Request{
		TenantID:  c.TenantID,
		SessionID: c.SessionID,
		Message:   c.Message,
		Context:   c.Context,
		RequestID: requestID,
	}
}

func (c chatRequest) validate() error {
	if _, err := session.Key(c.TenantID, c.SessionID); err != nil {
		return apperror.Validation(err.Error(), nil)
	}
	if strings.TrimSpace(c.Message) == "" {
		return apperror.Validation("message cannot be empty", nil)
	}
	return nil
}

type runsResponse struct {
	Runs []diagnostics.Summary `json:"runs"`
}

func (s *Server) decodeChat(w http.ResponseWriter, r *http.Request) (chatRequest, error) {
	var req chatRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return req, apperror.Validation("request body too large", map[string]interface{}{"limit": maxErr.Limit})
		}
		return req, apperror.Validation("invalid JSON body", map[string]interface{}{"error": err.Error()})
	}
	return req, req.validate()
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	req, err := s.decodeChat(w, r)
	if err != nil {
		writeError(w, err)
		return
	}

	reply, err := s.runner.Run(r.Context(), req.toAgent(r.Header.Get("Idempotency-Key")), nil)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

// handleChatStream streams one turn as server-sent events. Failures after the
// stream has started arrive as an error event.
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	req, err := s.decodeChat(w, r)
	if err != nil {
		writeError(w, err)
		return
	}

	sink, err := stream.NewSSESink(w)
	if err != nil {
		writeError(w, apperror.Internal(err))
		return
	}

	logger := tracing.LoggerFromContext(r.Context(), s.logger)
	if _, err := s.runner.Run(r.Context(), req.toAgent(r.Header.Get("Idempotency-Key")), sink); err != nil {
		logger.Debug().Str("code", apperror.CodeOf(err)).Msg("Streamed turn ended with error")
	}
}

// handleWebSocket runs one turn per inbound JSON message. Turns on a
// connection run one at a time.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}
	s.trackConn(conn)
	defer func() {
		s.untrackConn(conn)
		_ = conn.Close()
	}()

	conn.SetReadLimit(s.maxBodyBytes)
	sink := stream.NewWebSocketSink(conn)
	ctx := r.Context()
	logger := tracing.LoggerFromContext(ctx, s.logger)
	logger.Info().Str("client", clientKey(r)).Msg("WebSocket client connected")

	for {
		if s.shuttingDown() {
			_ = sink.WriteJSON(errorBody{Error: errorPayload{Code: CodeShuttingDown, Message: "server is shutting down"}})
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))

		var req chatRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn().Err(err).Msg("WebSocket read failed")
			}
			return
		}
		if err := req.validate(); err != nil {
			appErr := apperror.Normalize(err)
			_ = sink.WriteJSON(errorBody{Error: errorPayload{Code: appErr.Code, Message: appErr.Message, Details: appErr.Details}})
			continue
		}

		s.inFlightReqs.Add(1)
		_, err := s.runner.Run(ctx, req.toAgent(""), sink)
		s.inFlightReqs.Done()
		if err != nil {
			logger.Debug().Str("code", apperror.CodeOf(err)).Msg("WebSocket turn ended with error")
			if ctx.Err() != nil {
				return
			}
		}
	}
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.runner.Logout(r.Context(), r.PathValue("tenant"), r.PathValue("session")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs := s.runner.Runs()
	if runs == nil {
		writeJSON(w, http.StatusOK, runsResponse{Runs: []diagnostics.Summary{}})
		return
	}

	limit := defaultRunsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, apperror.Validation("limit must be a positive integer", map[string]interface{}{"limit": raw}))
			return
		}
		limit = min(n, maxRunsLimit)
	}

	list := runs.List(r.URL.Query().Get("session_key"), limit)
	if list == nil {
		list = []diagnostics.Summary{}
	}
	writeJSON(w, http.StatusOK, runsResponse{Runs: list})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	runs := s.runner.Runs()
	if runs == nil {
		writeErrorCode(w, http.StatusNotFound, CodeNotFound, fmt.Sprintf("run %s not found", id))
		return
	}
	record, ok := runs.Get(id)
	if !ok {
		writeErrorCode(w, http.StatusNotFound, CodeNotFound, fmt.Sprintf("run %s not found", id))
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status := "ok"
	code := http.StatusOK
	if s.shuttingDown() {
		status = "shutting_down"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]string{"status": status})
}
