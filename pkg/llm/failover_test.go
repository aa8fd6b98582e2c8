package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/harun/shopagent/pkg/apperror"
	"github.com/harun/shopagent/pkg/retry"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	name   string
	errs   []error
	deltas []string
	calls  int
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) next() error {
	p.calls++
	if len(p.errs) == 0 {
		return nil
	}
	err := p.errs[0]
	p.errs = p.errs[1:]
	return err
}

func (p *fakeProvider) RunWithTools(ctx context.Context, messages []Message, tools []ToolDef, model string) (*Response, error) {
	if err := p.next(); err != nil {
		return nil, err
	}
	return &Response{Content: "from " + p.name, FinishReason: FinishStop}, nil
}

func (p *fakeProvider) StreamWithTools(ctx context.Context, messages []Message, tools []ToolDef, model string, onDelta DeltaFunc) (*Response, error) {
	for _, d := range p.deltas {
		onDelta(d)
	}
	if err := p.next(); err != nil {
		return nil, err
	}
	return &Response{Content: "from " + p.name, FinishReason: FinishStop}, nil
}

func rateLimited() error {
	return apperror.LLM(apperror.CodeOpenAIRateLimit, 429, errors.New("429"))
}

func newTestFailover(t *testing.T, now func() time.Time, profiles ...Profile) *Failover {
	t.Helper()
	f, err := NewFailover(FailoverConfig{
		Profiles: profiles,
		Retry:    retry.Policy{Attempts: 2},
		Cooldown: time.Minute,
		Logger:   zerolog.Nop(),
		Now:      now,
	})
	require.NoError(t, err)
	return f
}

func TestNewFailover_Validation(t *testing.T) {
	_, err := NewFailover(FailoverConfig{})
	assert.Error(t, err)

	_, err = NewFailover(FailoverConfig{Profiles: []Profile{{ID: "a"}}})
	assert.Error(t, err)
}

func TestFailover_PriorityOrder(t *testing.T) {
	low := &fakeProvider{name: "anthropic"}
	high := &fakeProvider{name: "openai"}
	f := newTestFailover(t, nil,
		Profile{ID: "second", Priority: 2, Provider: low},
		Profile{ID: "first", Priority: 1, Provider: high},
	)

	resp, err := f.RunWithTools(t.Context(), nil, nil, "")
	require.NoError(t, err)
	assert.Equal(t, "from openai", resp.Content)
	assert.Equal(t, "openai", resp.Provider)
	assert.Equal(t, 0, low.calls)
}

func TestFailover_RetriesThenFailsOver(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	primary := &fakeProvider{name: "openai", errs: []error{rateLimited(), rateLimited()}}
	backup := &fakeProvider{name: "anthropic"}
	f := newTestFailover(t, func() time.Time { return now },
		Profile{ID: "primary", Priority: 1, Provider: primary},
		Profile{ID: "backup", Priority: 2, Provider: backup},
	)

	resp, err := f.RunWithTools(t.Context(), nil, nil, "")
	require.NoError(t, err)
	assert.Equal(t, "from anthropic", resp.Content)
	assert.Equal(t, 2, primary.calls, "retried within the attempt budget")

	profiles := f.Profiles()
	assert.Equal(t, 1, profiles[0].FailureCount)
	assert.Equal(t, now.Add(time.Minute), profiles[0].CooldownUntil)

	// Primary is cooling down, so the next call goes straight to the backup.
	_, err = f.RunWithTools(t.Context(), nil, nil, "")
	require.NoError(t, err)
	assert.Equal(t, 2, primary.calls)
	assert.Equal(t, 2, backup.calls)
}

func TestFailover_NonRetryableStops(t *testing.T) {
	schemaErr := apperror.LLM(apperror.CodeOpenAIToolSchema, 400, errors.New("bad schema"))
	primary := &fakeProvider{name: "openai", errs: []error{schemaErr}}
	backup := &fakeProvider{name: "anthropic"}
	f := newTestFailover(t, nil,
		Profile{ID: "primary", Priority: 1, Provider: primary},
		Profile{ID: "backup", Priority: 2, Provider: backup},
	)

	_, err := f.RunWithTools(t.Context(), nil, nil, "")
	require.Error(t, err)
	assert.Equal(t, apperror.CodeOpenAIToolSchema, apperror.CodeOf(err))
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 0, backup.calls)
}

func TestFailover_AllCoolingDownUsesSoonest(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	a := &fakeProvider{name: "openai"}
	b := &fakeProvider{name: "anthropic"}
	f := newTestFailover(t, func() time.Time { return now },
		Profile{ID: "a", Priority: 1, Provider: a, CooldownUntil: now.Add(5 * time.Minute)},
		Profile{ID: "b", Priority: 2, Provider: b, CooldownUntil: now.Add(time.Minute)},
	)

	resp, err := f.RunWithTools(t.Context(), nil, nil, "")
	require.NoError(t, err)
	assert.Equal(t, "from anthropic", resp.Content)
	assert.True(t, f.Profiles()[1].CooldownUntil.IsZero(), "success clears cooldown")
}

func TestFailover_StreamNotRetriedAfterFirstDelta(t *testing.T) {
	primary := &fakeProvider{name: "openai", deltas: []string{"Hel"}, errs: []error{rateLimited()}}
	backup := &fakeProvider{name: "anthropic"}
	f := newTestFailover(t, nil,
		Profile{ID: "primary", Priority: 1, Provider: primary},
		Profile{ID: "backup", Priority: 2, Provider: backup},
	)

	var got []string
	_, err := f.StreamWithTools(t.Context(), nil, nil, "", func(text string) { got = append(got, text) })
	require.Error(t, err)
	assert.Equal(t, apperror.CodeOpenAIRateLimit, apperror.CodeOf(err))
	assert.Equal(t, []string{"Hel"}, got)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 0, backup.calls)
}

func TestFailover_StreamRetriedBeforeFirstDelta(t *testing.T) {
	primary := &fakeProvider{name: "openai", errs: []error{rateLimited()}}
	f := newTestFailover(t, nil, Profile{ID: "primary", Priority: 1, Provider: primary})

	resp, err := f.StreamWithTools(t.Context(), nil, nil, "", nil)
	require.NoError(t, err)
	assert.Equal(t, "from openai", resp.Content)
	assert.Equal(t, 2, primary.calls)
}

func TestFailover_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	f := newTestFailover(t, nil, Profile{ID: "p", Provider: &fakeProvider{name: "openai"}})

	_, err := f.RunWithTools(ctx, nil, nil, "")
	assert.ErrorIs(t, err, context.Canceled)
}
