package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/harun/shopagent/internal/observability"
	"github.com/harun/shopagent/internal/tracing"
	"github.com/harun/shopagent/pkg/apperror"
	"github.com/harun/shopagent/pkg/commandqueue"
	"github.com/harun/shopagent/pkg/compare"
	"github.com/harun/shopagent/pkg/confirmation"
	"github.com/harun/shopagent/pkg/diagnostics"
	"github.com/harun/shopagent/pkg/enrichment"
	"github.com/harun/shopagent/pkg/llm"
	"github.com/harun/shopagent/pkg/query"
	"github.com/harun/shopagent/pkg/session"
	"github.com/harun/shopagent/pkg/stream"
	"github.com/harun/shopagent/pkg/toolexecutor"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"
)

const (
	defaultMaxRounds            = 5
	defaultMaxToolCallsPerRound = 4

	// DefaultSystemPrompt is used when Options.SystemPrompt is empty
	DefaultSystemPrompt = "You are a shopping assistant for an online store. " +
		"Use product_search with short keyword queries, product_get for details, shortlist_add to save products the customer wants to keep and the cart tools to change the cart. " +
		"Never invent products, prices or stock. Answer in the customer's language and keep replies short."
)

// Rules bundles the guardrail catalogs
type Rules struct {
	Confirmation confirmation.Rules
	Query        query.Rules
	Compare      compare.Rules
	Enrichment   enrichment.Rules
}

// DefaultRules returns the built-in multi-locale guardrail rules
func DefaultRules() Rules {
	return Rules{
		Confirmation: confirmation.DefaultRules(),
		Query:        query.DefaultRules(),
		Compare:      compare.DefaultRules(),
		Enrichment:   enrichment.DefaultRules(),
	}
}

// Options tune the turn loop
type Options struct {
	Model                string
	SystemPrompt         string
	MaxRounds            int
	MaxToolCallsPerRound int
	// Highlights asks the model for comparison highlights.
	Highlights        bool
	DevEvents         bool
	EnrichConcurrency int
	// QueueWarnAfter emits a working status when a turn waits behind another.
	QueueWarnAfter time.Duration
}

// Config holds runner configuration
type Config struct {
	Sessions *session.Manager
	Tools    *toolexecutor.ToolExecutor
	Queue    *commandqueue.CommandQueue
	LLM      llm.Client
	Runs     *diagnostics.RunStore // optional
	Redactor toolexecutor.Previewer
	Catalog  *stream.Catalog
	Rules    *Rules // nil uses DefaultRules
	Logger   zerolog.Logger
	Options  Options
	Now      func() time.Time
}

// Runner drives chat turns: it serializes them per session, runs the model and
// tool loop under the guardrails and persists the session once a turn resolves.
type Runner struct {
	sessions *session.Manager
	tools    *toolexecutor.ToolExecutor
	queue    *commandqueue.CommandQueue
	llm      llm.Client
	runs     *diagnostics.RunStore
	redactor toolexecutor.Previewer
	catalog  *stream.Catalog
	rules    Rules
	opts     Options
	logger   zerolog.Logger
	now      func() time.Time
}

// NewRunner creates a new agent runner
func NewRunner(cfg Config) (*Runner, error) {
	observability.EnsureRegistered()

	if cfg.Sessions == nil {
		return nil, fmt.Errorf("session manager is required")
	}
	if cfg.Tools == nil {
		return nil, fmt.Errorf("tool executor is required")
	}
	if cfg.Queue == nil {
		return nil, fmt.Errorf("command queue is required")
	}
	if cfg.LLM == nil {
		return nil, fmt.Errorf("llm client is required")
	}
	if _, ok := cfg.Tools.GetTool(ToolShortlistAdd); !ok {
		if err := cfg.Tools.RegisterTool(ShortlistTool()); err != nil {
			return nil, fmt.Errorf("failed to register shortlist tool: %w", err)
		}
	}

	opts := cfg.Options
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = DefaultSystemPrompt
	}
	if opts.MaxRounds <= 0 {
		opts.MaxRounds = defaultMaxRounds
	}
	if opts.MaxToolCallsPerRound <= 0 {
		opts.MaxToolCallsPerRound = defaultMaxToolCallsPerRound
	}
	if opts.EnrichConcurrency <= 0 {
		opts.EnrichConcurrency = enrichment.DefaultConcurrency
	}

	rules := DefaultRules()
	if cfg.Rules != nil {
		rules = *cfg.Rules
	}
	catalog := cfg.Catalog
	if catalog == nil {
		catalog = stream.DefaultCatalog()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Runner{
		sessions: cfg.Sessions,
		tools:    cfg.Tools,
		queue:    cfg.Queue,
		llm:      cfg.LLM,
		runs:     cfg.Runs,
		redactor: cfg.Redactor,
		catalog:  catalog,
		rules:    rules,
		opts:     opts,
		logger:   cfg.Logger,
		now:      now,
	}, nil
}

// Runs returns the diagnostics store, which may be nil
func (r *Runner) Runs() *diagnostics.RunStore {
	return r.runs
}

// Run executes one turn. Events go to sink when it is not nil, in which case the
// model output is streamed as deltas. The returned reply is also the payload of
// the final event.
func (r *Runner) Run(ctx context.Context, req Request, sink stream.Sink) (*Reply, error) {
	key, err := session.Key(req.TenantID, req.SessionID)
	if err != nil {
		return nil, apperror.Validation(err.Error(), nil)
	}
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, apperror.Validation("message cannot be empty", nil)
	}

	ctx = tracing.NewTurnContext(ctx, req.TenantID, key)
	ctx, span := tracing.StartSpan(ctx, "shopagent.agent", "agent.run",
		tracing.AttrSessionKey.String(key),
		tracing.AttrTenantID.String(req.TenantID),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, r.logger)

	emitter := stream.NewEmitter(stream.EmitterConfig{
		Sink:    sink,
		Catalog: r.catalog,
		Locale:  req.Context.Culture,
		RunID:   tracing.GetRunID(ctx),
		Dev:     r.opts.DevEvents,
		Logger:  logger,
	})

	requestID := ""
	if req.RequestID != "" {
		requestID = key + ":" + req.RequestID
	}

	value, err := r.queue.Enqueue(ctx, commandqueue.LaneForSession(key), func(taskCtx context.Context) (interface{}, error) {
		return r.executeTurn(taskCtx, key, req, message, emitter, sink != nil)
	}, &commandqueue.TaskOptions{
		RequestID: requestID,
		WarnAfter: r.opts.QueueWarnAfter,
		OnWait: func(time.Duration, int) {
			emitter.Status(stream.StatusWorking)
		},
	})
	if err != nil {
		appErr := apperror.Normalize(err)
		emitter.Error(appErr.Code, appErr.Message)
		span.RecordError(err)
		span.SetStatus(codes.Error, appErr.Code)
		logger.Error().Str("code", appErr.Code).Err(err).Msg("Turn failed")
		return nil, err
	}

	reply := value.(*Reply)
	if !emitter.Closed() {
		emitter.Final(reply)
	}
	return reply, nil
}

// executeTurn runs inside the session lane. State is saved only when the turn
// resolves without error, so a cancelled turn leaves the session untouched.
func (r *Runner) executeTurn(ctx context.Context, key string, req Request, message string, emitter *stream.Emitter, streaming bool) (*Reply, error) {
	start := r.now()
	logger := tracing.LoggerFromContext(ctx, r.logger)

	record := &diagnostics.RunRecord{
		RunID:      tracing.GetRunID(ctx),
		TraceID:    tracing.GetTraceID(ctx),
		TenantID:   req.TenantID,
		SessionKey: key,
		Message:    r.preview(message),
		StartedAt:  start,
	}

	state, err := r.sessions.Load(ctx, key)
	if err != nil {
		r.finishRecord(record, nil, err, start)
		return nil, err
	}

	t := &turn{
		r:         r,
		req:       req,
		key:       key,
		text:      message,
		state:     state,
		emit:      emitter,
		streaming: streaming,
		logger:    logger,
		record:    record,
		reply: &Reply{
			RunID:      record.RunID,
			SessionKey: key,
		},
	}

	reply, err := t.run(ctx)
	if err == nil {
		if saveErr := r.sessions.Save(tracing.Detach(ctx), state); saveErr != nil {
			err = saveErr
			reply = nil
		}
	}
	r.finishRecord(record, reply, err, start)

	if err != nil {
		logger.Warn().Str("code", apperror.CodeOf(err)).Err(err).Msg("Turn aborted, session not persisted")
		return nil, err
	}
	logger.Info().
		Str("outcome", string(reply.Outcome)).
		Int("rounds", reply.Rounds).
		Dur("duration", r.now().Sub(start)).
		Msg("Turn completed")
	return reply, nil
}

func (r *Runner) finishRecord(record *diagnostics.RunRecord, reply *Reply, err error, start time.Time) {
	duration := r.now().Sub(start)
	record.DurationMs = duration.Milliseconds()

	outcome := OutcomeError
	if err != nil {
		record.Code = apperror.CodeOf(err)
	} else if reply != nil {
		outcome = reply.Outcome
		record.FinishReason = reply.FinishReason
		record.Rounds = reply.Rounds
	}
	record.Outcome = string(outcome)
	observability.RecordTurn(string(outcome), duration, record.Rounds)

	if r.runs == nil {
		return
	}
	if addErr := r.runs.Add(record); addErr != nil {
		r.logger.Warn().Err(addErr).Str("run_id", record.RunID).Msg("Failed to record run")
	}
}

// Logout deletes the session. It runs in the session lane so it never races an
// in-flight turn.
func (r *Runner) Logout(ctx context.Context, tenantID, sessionID string) error {
	key, err := session.Key(tenantID, sessionID)
	if err != nil {
		return apperror.Validation(err.Error(), nil)
	}

	_, err = r.queue.Enqueue(ctx, commandqueue.LaneForSession(key), func(taskCtx context.Context) (interface{}, error) {
		return nil, r.sessions.Delete(taskCtx, key)
	}, nil)
	if err != nil {
		return err
	}

	observability.RecordSessionAudit(ctx, "logout", key, tenantID)
	logger := tracing.LoggerFromContext(ctx, r.logger)
	logger.Info().Str("session_key", key).Msg("Session logged out")
	return nil
}

func (r *Runner) preview(v interface{}) string {
	if r.redactor == nil {
		return ""
	}
	return r.redactor.Preview(v, 200)
}
