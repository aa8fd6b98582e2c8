package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/harun/shopagent/pkg/apperror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyStatus(t *testing.T) {
	cause := errors.New("upstream")

	tests := []struct {
		name     string
		status   int
		message  string
		wantCode string
		retry    bool
	}{
		{"rate limit", 429, "", apperror.CodeOpenAIRateLimit, true},
		{"request timeout", 408, "", apperror.CodeOpenAITimeout, true},
		{"server error", 503, "", apperror.CodeOpenAI, true},
		{"tool schema", 400, "Invalid schema for function 'cart_add_item'", apperror.CodeOpenAIToolSchema, false},
		{"plain bad request", 400, "max_tokens too large", apperror.CodeOpenAI, false},
		{"unauthorized", 401, "", apperror.CodeOpenAI, false},
		{"no status", 0, "", apperror.CodeOpenAI, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classifyStatus(tt.status, tt.message, cause)
			assert.Equal(t, tt.wantCode, apperror.CodeOf(err))
			assert.Equal(t, tt.retry, apperror.IsRetryableLLM(err))
			assert.ErrorIs(t, err, cause)
		})
	}
}

func TestClassifyError(t *testing.T) {
	t.Run("passes app errors through", func(t *testing.T) {
		in := apperror.Validation("bad", nil)
		assert.Same(t, in, classifyError(in))
	})

	t.Run("deadline becomes timeout", func(t *testing.T) {
		err := classifyError(fmt.Errorf("post: %w", context.DeadlineExceeded))
		assert.Equal(t, apperror.CodeOpenAITimeout, apperror.CodeOf(err))
	})

	t.Run("cancellation is not classified", func(t *testing.T) {
		err := classifyError(context.Canceled)
		assert.ErrorIs(t, err, context.Canceled)
		_, ok := apperror.As(err)
		assert.False(t, ok)
		assert.False(t, apperror.IsRetryableLLM(err))
	})

	t.Run("nil", func(t *testing.T) {
		require.NoError(t, classifyError(nil))
	})
}
