package llm

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/harun/shopagent/internal/observability"
	"github.com/harun/shopagent/internal/tracing"
	"github.com/harun/shopagent/pkg/apperror"
	"github.com/harun/shopagent/pkg/retry"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"
)

// Profile is one provider credential with its failover bookkeeping
type Profile struct {
	ID            string
	Priority      int
	Provider      Provider
	FailureCount  int
	CooldownUntil time.Time
}

// FailoverConfig holds failover configuration
type FailoverConfig struct {
	Profiles      []Profile
	Retry         retry.Policy
	Timeout       time.Duration // per attempt, non-streaming
	StreamTimeout time.Duration // per attempt, streaming
	Cooldown      time.Duration // multiplied by the failure count
	Logger        zerolog.Logger
	Now           func() time.Time
}

// Failover is a Client that retries transient failures on one profile and then
// moves to the next profile by priority. Failing profiles cool down for
// Cooldown × failures.
type Failover struct {
	mu       sync.Mutex
	profiles []Profile

	retry         retry.Policy
	timeout       time.Duration
	streamTimeout time.Duration
	cooldown      time.Duration
	logger        zerolog.Logger
	now           func() time.Time
}

// NewFailover creates a new failover client
func NewFailover(cfg FailoverConfig) (*Failover, error) {
	if len(cfg.Profiles) == 0 {
		return nil, fmt.Errorf("at least one provider profile is required")
	}
	for i, p := range cfg.Profiles {
		if p.Provider == nil {
			return nil, fmt.Errorf("profile %d: provider is required", i)
		}
	}

	profiles := make([]Profile, len(cfg.Profiles))
	copy(profiles, cfg.Profiles)
	sort.SliceStable(profiles, func(i, j int) bool { return profiles[i].Priority < profiles[j].Priority })

	policy := cfg.Retry
	if policy.ShouldRetry == nil {
		policy.ShouldRetry = apperror.IsRetryableLLM
	}
	if policy.Scope == "" {
		policy.Scope = "llm"
	}

	f := &Failover{
		profiles:      profiles,
		retry:         policy,
		timeout:       cfg.Timeout,
		streamTimeout: cfg.StreamTimeout,
		cooldown:      cfg.Cooldown,
		logger:        cfg.Logger,
		now:           cfg.Now,
	}
	if f.cooldown <= 0 {
		f.cooldown = time.Minute
	}
	if f.now == nil {
		f.now = time.Now
	}
	return f, nil
}

// RunWithTools implements Client
func (f *Failover) RunWithTools(ctx context.Context, messages []Message, tools []ToolDef, model string) (*Response, error) {
	return f.execute(ctx, "llm.run", model, false, func(ctx context.Context, p Provider) (*Response, error) {
		return retry.DoValue(ctx, f.retry, func(ctx context.Context) (*Response, error) {
			attemptCtx, cancel := withTimeout(ctx, f.timeout)
			defer cancel()
			return p.RunWithTools(attemptCtx, messages, tools, model)
		})
	})
}

// StreamWithTools implements Client. Once a delta has reached onDelta the call is
// neither retried nor failed over, since the client has already seen output.
func (f *Failover) StreamWithTools(ctx context.Context, messages []Message, tools []ToolDef, model string, onDelta DeltaFunc) (*Response, error) {
	var started bool
	forward := func(text string) {
		started = true
		if onDelta != nil {
			onDelta(text)
		}
	}

	policy := f.retry
	shouldRetry := policy.ShouldRetry
	policy.ShouldRetry = func(err error) bool {
		return !started && shouldRetry(err)
	}

	resp, err := f.execute(ctx, "llm.stream", model, true, func(ctx context.Context, p Provider) (*Response, error) {
		if started {
			return nil, errStreamStarted
		}
		return retry.DoValue(ctx, policy, func(ctx context.Context) (*Response, error) {
			attemptCtx, cancel := withTimeout(ctx, f.streamTimeout)
			defer cancel()
			return p.StreamWithTools(attemptCtx, messages, tools, model, forward)
		})
	})
	return resp, err
}

var errStreamStarted = errors.New("stream already started")

func (f *Failover) execute(ctx context.Context, spanName, model string, streaming bool, call func(context.Context, Provider) (*Response, error)) (*Response, error) {
	logger := tracing.LoggerFromContext(ctx, f.logger)
	var lastErr error
	attempted := 0

	for _, profile := range f.orderedProfiles() {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		providerName := profile.Provider.Name()
		attempted++
		start := time.Now()

		spanCtx, span := tracing.StartSpan(ctx, "shopagent.llm", spanName,
			tracing.LLMAttributes(providerName, profile.ID, model, streaming)...,
		)
		resp, err := call(spanCtx, profile.Provider)
		if err == nil {
			span.End()
			observability.RecordLLMCall(providerName, time.Since(start), true)
			f.markSuccess(profile.ID)
			resp.Provider = providerName
			return resp, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, apperror.CodeOf(err))
		span.End()

		observability.RecordLLMCall(providerName, time.Since(start), false)
		if errors.Is(err, errStreamStarted) {
			break
		}
		lastErr = err

		logger.Warn().
			Str("profileId", profile.ID).
			Str("provider", providerName).
			Str("code", apperror.CodeOf(err)).
			Err(err).
			Msg("Provider profile failed")

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !apperror.IsRetryableLLM(err) {
			return nil, err
		}
		f.markFailure(profile.ID)
	}

	if lastErr == nil {
		if attempted == 0 {
			lastErr = apperror.LLM(apperror.CodeOpenAI, 0, fmt.Errorf("no provider profile available"))
		} else {
			lastErr = apperror.LLM(apperror.CodeOpenAI, 0, errStreamStarted)
		}
	}
	logger.Error().Err(lastErr).Msg("All provider profiles failed")
	return nil, lastErr
}

// orderedProfiles returns profiles out of cooldown in priority order. When every
// profile is cooling down the one that recovers first is returned.
func (f *Failover) orderedProfiles() []Profile {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.now()
	var ready []Profile
	for _, p := range f.profiles {
		if now.Before(p.CooldownUntil) {
			observability.SetProviderCooldown(p.Provider.Name(), true)
			continue
		}
		ready = append(ready, p)
	}
	if len(ready) > 0 {
		return ready
	}

	soonest := f.profiles[0]
	for _, p := range f.profiles[1:] {
		if p.CooldownUntil.Before(soonest.CooldownUntil) {
			soonest = p
		}
	}
	return []Profile{soonest}
}

func (f *Failover) markSuccess(profileID string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i := range f.profiles {
		if f.profiles[i].ID == profileID {
			f.profiles[i].FailureCount = 0
			f.profiles[i].CooldownUntil = time.Time{}
			observability.SetProviderCooldown(f.profiles[i].Provider.Name(), false)
			return
		}
	}
}

func (f *Failover) markFailure(profileID string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i := range f.profiles {
		if f.profiles[i].ID == profileID {
			f.profiles[i].FailureCount++
			f.profiles[i].CooldownUntil = f.now().Add(f.cooldown * time.Duration(f.profiles[i].FailureCount))
			observability.SetProviderCooldown(f.profiles[i].Provider.Name(), true)
			return
		}
	}
}

// Profiles returns a snapshot of the profile bookkeeping
func (f *Failover) Profiles() []Profile {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Profile, len(f.profiles))
	copy(out, f.profiles)
	return out
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
