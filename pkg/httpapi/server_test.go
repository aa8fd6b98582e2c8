package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harun/shopagent/internal/logger"
	"github.com/harun/shopagent/pkg/agent"
	"github.com/harun/shopagent/pkg/apperror"
	"github.com/harun/shopagent/pkg/commandqueue"
	"github.com/harun/shopagent/pkg/diagnostics"
	"github.com/harun/shopagent/pkg/llm"
	"github.com/harun/shopagent/pkg/session"
	"github.com/harun/shopagent/pkg/stream"
	"github.com/harun/shopagent/pkg/toolexecutor"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoLLM struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (e *echoLLM) reply(messages []llm.Message) (*llm.Response, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	last := messages[len(messages)-1]
	return &llm.Response{Content: "echo: " + last.Content, FinishReason: llm.FinishStop, Provider: "test"}, nil
}

func (e *echoLLM) RunWithTools(_ context.Context, messages []llm.Message, _ []llm.ToolDef, _ string) (*llm.Response, error) {
	return e.reply(messages)
}

func (e *echoLLM) StreamWithTools(_ context.Context, messages []llm.Message, _ []llm.ToolDef, _ string, onDelta llm.DeltaFunc) (*llm.Response, error) {
	resp, err := e.reply(messages)
	if err == nil && onDelta != nil {
		onDelta(resp.Content)
	}
	return resp, err
}

func (e *echoLLM) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

type testServer struct {
	server   *Server
	http     *httptest.Server
	model    *echoLLM
	sessions *session.Manager
}

func newTestServer(t *testing.T, cfg Config) *testServer {
	t.Helper()

	store, err := session.NewStore(session.StoreTypeMemory, session.WithTTL(time.Hour))
	require.NoError(t, err)
	sessions, err := session.NewManager(session.ManagerConfig{
		Store:  store,
		TTL:    time.Hour,
		Logger: zerolog.Nop(),
	})
	require.NoError(t, err)

	queue := commandqueue.New(commandqueue.Config{Logger: zerolog.Nop(), DedupTTL: time.Minute})
	model := &echoLLM{}
	runner, err := agent.NewRunner(agent.Config{
		Sessions: sessions,
		Tools:    toolexecutor.New(toolexecutor.Config{Logger: zerolog.Nop()}),
		Queue:    queue,
		LLM:      model,
		Runs:     diagnostics.NewRunStore(10, time.Hour),
		Redactor: logger.NewRedactor(),
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, err)

	cfg.Runner = runner
	cfg.Logger = zerolog.Nop()
	srv, err := NewServer(cfg)
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		_ = queue.Close()
		_ = sessions.Close()
	})
	return &testServer{server: srv, http: ts, model: model, sessions: sessions}
}

func (ts *testServer) post(t *testing.T, path, body string, headers map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequestWithContext(t.Context(), http.MethodPost, ts.http.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (ts *testServer) do(t *testing.T, method, path string) *http.Response {
	t.Helper()
	req, err := http.NewRequestWithContext(t.Context(), method, ts.http.URL+path, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

const chatBody = `{"tenant_id":"acme","session_id":"s1","message":"hello","context":{"culture":"en-US"}}`

func decodeError(t *testing.T, resp *http.Response) errorPayload {
	t.Helper()
	var body errorBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body.Error
}

func TestNewServer_RequiresRunner(t *testing.T) {
	_, err := NewServer(Config{})
	assert.Error(t, err)
}

func TestChat(t *testing.T) {
	ts := newTestServer(t, Config{})

	resp := ts.post(t, "/v1/chat", chatBody, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Trace-Id"))

	var reply agent.Reply
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&reply))
	assert.Equal(t, "echo: hello", reply.Text)
	assert.Equal(t, agent.OutcomeDone, reply.Outcome)
	assert.Equal(t, "acme:s1", reply.SessionKey)
	assert.NotEmpty(t, reply.RunID)
}

func TestChat_Validation(t *testing.T) {
	ts := newTestServer(t, Config{})

	tests := []struct {
		name string
		body string
	}{
		{name: "invalid json", body: `{"tenant_id":`},
		{name: "missing tenant", body: `{"session_id":"s1","message":"hi"}`},
		{name: "colon in session", body: `{"tenant_id":"acme","session_id":"a:b","message":"hi"}`},
		{name: "empty message", body: `{"tenant_id":"acme","session_id":"s1","message":"   "}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := ts.post(t, "/v1/chat", tt.body, nil)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, apperror.CodeValidation, decodeError(t, resp).Code)
		})
	}
	assert.Equal(t, 0, ts.model.callCount())
}

func TestChat_BodyTooLarge(t *testing.T) {
	ts := newTestServer(t, Config{MaxBodyBytes: 32})

	resp := ts.post(t, "/v1/chat", chatBody, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestChat_LLMError(t *testing.T) {
	ts := newTestServer(t, Config{})
	ts.model.err = apperror.LLM(apperror.CodeOpenAIRateLimit, http.StatusTooManyRequests, assert.AnError)

	resp := ts.post(t, "/v1/chat", chatBody, nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	payload := decodeError(t, resp)
	assert.Equal(t, apperror.CodeOpenAIRateLimit, payload.Code)
	assert.NotContains(t, payload.Message, assert.AnError.Error())
}

func TestChat_IdempotencyKey(t *testing.T) {
	ts := newTestServer(t, Config{})
	headers := map[string]string{"Idempotency-Key": "req-1"}

	first := ts.post(t, "/v1/chat", chatBody, headers)
	second := ts.post(t, "/v1/chat", chatBody, headers)
	require.Equal(t, http.StatusOK, first.StatusCode)
	require.Equal(t, http.StatusOK, second.StatusCode)

	var a, b agent.Reply
	require.NoError(t, json.NewDecoder(first.Body).Decode(&a))
	require.NoError(t, json.NewDecoder(second.Body).Decode(&b))
	assert.Equal(t, a.RunID, b.RunID)
	assert.Equal(t, 1, ts.model.callCount())
}

func TestChatStream(t *testing.T) {
	ts := newTestServer(t, Config{})

	resp := ts.post(t, "/v1/chat/stream", chatBody, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	body := string(raw)

	assert.Contains(t, body, "event: "+string(stream.TypeStatus))
	assert.Contains(t, body, "event: "+string(stream.TypeDelta))
	assert.Contains(t, body, "event: "+string(stream.TypeFinal))
	assert.Contains(t, body, "echo: hello")
	assert.NotContains(t, body, "event: "+string(stream.TypeError))
}

func TestChatStream_ValidationBeforeStream(t *testing.T) {
	ts := newTestServer(t, Config{})

	resp := ts.post(t, "/v1/chat/stream", `{"tenant_id":"acme","session_id":"s1","message":""}`, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
}

func TestChatStream_ErrorEvent(t *testing.T) {
	ts := newTestServer(t, Config{})
	ts.model.err = apperror.LLM(apperror.CodeOpenAI, http.StatusBadGateway, assert.AnError)

	resp := ts.post(t, "/v1/chat/stream", chatBody, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "event: "+string(stream.TypeError))
	assert.Contains(t, string(raw), apperror.CodeOpenAI)
	assert.NotContains(t, string(raw), "event: "+string(stream.TypeFinal))
}

func TestLogout(t *testing.T) {
	ts := newTestServer(t, Config{})

	require.Equal(t, http.StatusOK, ts.post(t, "/v1/chat", chatBody, nil).StatusCode)
	ok, err := ts.sessions.Exists(t.Context(), "acme:s1")
	require.NoError(t, err)
	require.True(t, ok)

	resp := ts.do(t, http.MethodDelete, "/v1/sessions/acme/s1")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	ok, err = ts.sessions.Exists(t.Context(), "acme:s1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRuns(t *testing.T) {
	ts := newTestServer(t, Config{})

	resp := ts.post(t, "/v1/chat", chatBody, nil)
	var reply agent.Reply
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&reply))

	list := ts.do(t, http.MethodGet, "/v1/runs?session_key=acme:s1&limit=5")
	require.Equal(t, http.StatusOK, list.StatusCode)
	var runs runsResponse
	require.NoError(t, json.NewDecoder(list.Body).Decode(&runs))
	require.Len(t, runs.Runs, 1)
	assert.Equal(t, reply.RunID, runs.Runs[0].RunID)

	one := ts.do(t, http.MethodGet, "/v1/runs/"+reply.RunID)
	require.Equal(t, http.StatusOK, one.StatusCode)
	var record diagnostics.RunRecord
	require.NoError(t, json.NewDecoder(one.Body).Decode(&record))
	assert.Equal(t, "done", record.Outcome)
	assert.NotEmpty(t, record.TraceID)

	missing := ts.do(t, http.MethodGet, "/v1/runs/run_missing")
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)

	bad := ts.do(t, http.MethodGet, "/v1/runs?limit=zero")
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)
}

func TestAuth(t *testing.T) {
	ts := newTestServer(t, Config{SharedSecret: "s3cret"})
	auth := NewAuthenticator("s3cret")

	tests := []struct {
		name    string
		headers map[string]string
		status  int
	}{
		{name: "missing", headers: nil, status: http.StatusUnauthorized},
		{name: "wrong secret", headers: map[string]string{SecretHeader: "nope"}, status: http.StatusUnauthorized},
		{name: "secret header", headers: map[string]string{SecretHeader: "s3cret"}, status: http.StatusOK},
		{name: "bearer", headers: map[string]string{"Authorization": "Bearer s3cret"}, status: http.StatusOK},
		{name: "signature", headers: map[string]string{SignatureHeader: auth.Sign([]byte(chatBody))}, status: http.StatusOK},
		{name: "bad signature", headers: map[string]string{SignatureHeader: auth.Sign([]byte("other"))}, status: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := ts.post(t, "/v1/chat", chatBody, tt.headers)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestRateLimit(t *testing.T) {
	ts := newTestServer(t, Config{RateLimit: RateLimit{PerMinute: 2, MaxConcurrent: 5}})
	headers := map[string]string{"X-Client-Id": "widget-1"}

	assert.Equal(t, http.StatusOK, ts.post(t, "/v1/chat", chatBody, headers).StatusCode)
	assert.Equal(t, http.StatusOK, ts.post(t, "/v1/chat", chatBody, headers).StatusCode)

	resp := ts.post(t, "/v1/chat", chatBody, headers)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, CodeRateLimited, decodeError(t, resp).Code)

	other := ts.post(t, "/v1/chat", chatBody, map[string]string{"X-Client-Id": "widget-2"})
	assert.Equal(t, http.StatusOK, other.StatusCode)
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t, Config{SharedSecret: "s3cret"})

	health := ts.do(t, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, health.StatusCode)

	metrics := ts.do(t, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, metrics.StatusCode)
}

func TestCORS(t *testing.T) {
	ts := newTestServer(t, Config{AllowedOrigins: []string{"https://shop.example"}})

	req, err := http.NewRequestWithContext(t.Context(), http.MethodOptions, ts.http.URL+"/v1/chat", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://shop.example")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "https://shop.example", resp.Header.Get("Access-Control-Allow-Origin"))

	req, err = http.NewRequestWithContext(t.Context(), http.MethodOptions, ts.http.URL+"/v1/chat", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://evil.example")
	resp2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Empty(t, resp2.Header.Get("Access-Control-Allow-Origin"))
}

func TestWebSocket(t *testing.T) {
	ts := newTestServer(t, Config{})

	url := "ws" + strings.TrimPrefix(ts.http.URL, "http") + "/v1/chat/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"tenant_id":  "acme",
		"session_id": "ws1",
		"message":    "hi there",
	}))

	var final stream.Event
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var event stream.Event
		require.NoError(t, conn.ReadJSON(&event))
		if event.Type.Terminal() {
			final = event
			break
		}
	}
	assert.Equal(t, stream.TypeFinal, final.Type)

	data, ok := final.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "echo: hi there", data["text"])

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"tenant_id": "acme", "session_id": "ws1"}))
	var invalid errorBody
	require.NoError(t, conn.ReadJSON(&invalid))
	assert.Equal(t, apperror.CodeValidation, invalid.Error.Code)
}

func TestStop(t *testing.T) {
	ts := newTestServer(t, Config{ShutdownWait: time.Second})

	require.NoError(t, ts.server.Stop(t.Context()))

	resp := ts.post(t, "/v1/chat", chatBody, nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	health := ts.do(t, http.MethodGet, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, health.StatusCode)
}
