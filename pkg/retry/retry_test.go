package retry

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/harun/shopagent/pkg/apperror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(shouldRetry func(error) bool) Policy {
	return Policy{
		Attempts:    3,
		Delay:       time.Millisecond,
		Jitter:      time.Millisecond,
		ShouldRetry: shouldRetry,
	}
}

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(apperror.IsRetryableCommerce), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return apperror.Transport(http.StatusServiceUnavailable, nil)
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_ReturnsLastErrorUnchanged(t *testing.T) {
	calls := 0
	var last error
	err := Do(context.Background(), fastPolicy(apperror.IsRetryableCommerce), func(ctx context.Context) error {
		calls++
		last = apperror.Transport(http.StatusBadGateway, errors.New("attempt"))
		return last
	})

	assert.Equal(t, 3, calls)
	assert.Same(t, last, err)
}

func TestDo_NeverRetriesNonRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"validation", apperror.Validation("bad", nil)},
		{"protocol", apperror.Protocol(-32601, nil)},
		{"tool", apperror.Tool("cart_add_item", nil)},
		{"oauth", apperror.OAuth(apperror.CodeOAuthToken, nil)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := Do(context.Background(), fastPolicy(apperror.IsRetryableCommerce), func(ctx context.Context) error {
				calls++
				return tt.err
			})
			assert.Equal(t, 1, calls)
			assert.Same(t, tt.err, err)
		})
	}
}

func TestDo_StopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	policy := Policy{
		Attempts:    5,
		Delay:       50 * time.Millisecond,
		ShouldRetry: func(error) bool { return true },
	}

	err := Do(ctx, policy, func(ctx context.Context) error {
		calls++
		cancel()
		return errors.New("transient")
	})

	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoValue_ReturnsValue(t *testing.T) {
	calls := 0
	var retried []int
	policy := fastPolicy(apperror.IsRetryableLLM)
	policy.OnRetry = func(attempt int, err error, wait time.Duration) {
		retried = append(retried, attempt)
	}

	got, err := DoValue(context.Background(), policy, func(ctx context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", apperror.LLM(apperror.CodeOpenAIRateLimit, 429, nil)
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, []int{1}, retried)
}

func TestNewBackOff_FixedDelayWithinJitter(t *testing.T) {
	b := newBackOff(Policy{Delay: 100 * time.Millisecond, Jitter: 20 * time.Millisecond})
	for i := 0; i < 20; i++ {
		next := b.NextBackOff()
		assert.GreaterOrEqual(t, next, 80*time.Millisecond)
		assert.LessOrEqual(t, next, 120*time.Millisecond)
	}
}
