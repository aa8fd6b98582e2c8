package logger

import (
	"encoding/json"
	"io"
	"regexp"
)

const redacted = "[REDACTED]"

// Redactor masks secrets and customer identifiers in log lines and previews
type Redactor struct {
	patterns []*regexp.Regexp
}

// NewRedactor creates a new redactor with default patterns
func NewRedactor() *Redactor {
	return &Redactor{
		patterns: []*regexp.Regexp{
			// provider API keys
			regexp.MustCompile(`sk-ant-[a-zA-Z0-9_-]{20,}`),
			regexp.MustCompile(`sk-[a-zA-Z0-9_-]{20,}`),

			regexp.MustCompile(`Bearer\s+[a-zA-Z0-9._~+/=-]+`),

			regexp.MustCompile(`(?i)"?(password|pwd|client_secret|secret)"?\s*[:=]\s*"?[^\s",}]+"?`),
			regexp.MustCompile(`(?i)"?(access_token|refresh_token|token)"?\s*[:=]\s*"?[a-zA-Z0-9._-]{16,}"?`),

			// customer and company identifiers carried in tool context
			regexp.MustCompile(`(?i)"?(customer_?id|company_?id|customerId|companyId)"?\s*[:=]\s*"?[^\s",}]+"?`),

			regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`),

			regexp.MustCompile(`AKIA[0-9A-Z]{16}`),
		},
	}
}

// AddPattern adds a custom redaction pattern
func (r *Redactor) AddPattern(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	r.patterns = append(r.patterns, re)
	return nil
}

// Redact redacts sensitive information from a string
func (r *Redactor) Redact(s string) string {
	result := s
	for _, pattern := range r.patterns {
		result = pattern.ReplaceAllString(result, redacted)
	}
	return result
}

// Preview renders v as JSON, redacts it and truncates it to max bytes.
func (r *Redactor) Preview(v interface{}, max int) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	out := r.Redact(string(raw))
	if max > 0 && len(out) > max {
		out = out[:max] + "..."
	}
	return out
}

// Wrap wraps an io.Writer to redact sensitive information
func (r *Redactor) Wrap(w io.Writer) io.Writer {
	return &redactingWriter{
		writer:   w,
		redactor: r,
	}
}

type redactingWriter struct {
	writer   io.Writer
	redactor *Redactor
}

// Write reports len(p) on success so callers do not treat redaction as a short write.
func (w *redactingWriter) Write(p []byte) (int, error) {
	if _, err := w.writer.Write([]byte(w.redactor.Redact(string(p)))); err != nil {
		return 0, err
	}
	return len(p), nil
}
