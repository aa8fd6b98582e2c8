package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/harun/shopagent/pkg/apperror"
	"github.com/openai/openai-go"
)

// classifyError maps provider SDK failures onto the OPENAI* codes. The codes are
// shared by every provider.
func classifyError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := apperror.As(err); ok {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("llm call cancelled: %w", context.Canceled)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperror.LLM(apperror.CodeOpenAITimeout, 0, err)
	}

	status := 0
	message := ""
	var openaiErr *openai.Error
	var anthropicErr *anthropic.Error
	switch {
	case errors.As(err, &openaiErr):
		status = openaiErr.StatusCode
		message = openaiErr.Message
	case errors.As(err, &anthropicErr):
		status = anthropicErr.StatusCode
		message = anthropicErr.RawJSON()
	}

	return classifyStatus(status, message, err)
}

func classifyStatus(status int, message string, err error) error {
	switch {
	case status == http.StatusTooManyRequests:
		return apperror.LLM(apperror.CodeOpenAIRateLimit, status, err)
	case status == http.StatusRequestTimeout:
		return apperror.LLM(apperror.CodeOpenAITimeout, status, err)
	case status == http.StatusBadRequest && mentionsToolSchema(message):
		return apperror.LLM(apperror.CodeOpenAIToolSchema, status, err)
	}
	return apperror.LLM(apperror.CodeOpenAI, status, err)
}

func mentionsToolSchema(message string) bool {
	lower := strings.ToLower(message)
	for _, marker := range []string{"tools[", "function", "schema", "tool_use", "input_schema"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
