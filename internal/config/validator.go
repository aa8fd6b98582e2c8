package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/robfig/cron/v3"
)

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateAPIKey validates an API key format
func (v *Validator) ValidateAPIKey(key string, provider string) error {
	if key == "" {
		return fmt.Errorf("%s API key cannot be empty", provider)
	}

	switch provider {
	case "anthropic":
		if !strings.HasPrefix(key, "sk-ant-") {
			return fmt.Errorf("invalid Anthropic API key format (should start with sk-ant-)")
		}
	case "openai":
		if !strings.HasPrefix(key, "sk-") {
			return fmt.Errorf("invalid OpenAI API key format (should start with sk-)")
		}
	}

	return nil
}

// ValidateProvider checks the provider name of an LLM profile
func (v *Validator) ValidateProvider(provider string) error {
	switch provider {
	case "openai", "anthropic":
		return nil
	}
	return fmt.Errorf("invalid provider %q (must be: openai, anthropic)", provider)
}

// ValidateEndpoint requires an absolute http(s) URL
func (v *Validator) ValidateEndpoint(name, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", name)
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%s must be an absolute http(s) URL: %q", name, raw)
	}
	return nil
}

// ValidateTemperature validates temperature value
func (v *Validator) ValidateTemperature(temp float64) error {
	if temp < 0 || temp > 2 {
		return fmt.Errorf("temperature must be between 0 and 2, got %.2f", temp)
	}
	return nil
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	switch level {
	case "debug", "info", "warn", "error":
		return nil
	}
	return fmt.Errorf("invalid log level: %s (must be one of: debug, info, warn, error)", level)
}

// ValidateSessionDriver validates the session store driver
func (v *Validator) ValidateSessionDriver(driver string) error {
	switch driver {
	case "memory", "redis", "sqlite":
		return nil
	}
	return fmt.Errorf("invalid session driver: %s (must be one of: memory, redis, sqlite)", driver)
}

// ValidateSchedule parses a cron spec the same way the sweeper does
func (v *Validator) ValidateSchedule(spec string) error {
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", spec, err)
	}
	return nil
}

func (v *Validator) validateRetry(name string, r RetryConfig) []error {
	var errs []error
	if r.Attempts < 1 {
		errs = append(errs, fmt.Errorf("%s.attempts must be >= 1", name))
	}
	if r.DelayMs < 0 {
		errs = append(errs, fmt.Errorf("%s.delay_ms must be >= 0", name))
	}
	if r.JitterMs < 0 {
		errs = append(errs, fmt.Errorf("%s.jitter_ms must be >= 0", name))
	}
	return errs
}

// ValidateConfig performs comprehensive validation and reports every problem
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errs []error

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535"))
	}
	if cfg.Server.RateLimitPerMinute < 0 || cfg.Server.MaxConcurrent < 0 || cfg.Server.MaxBodyBytes < 0 {
		errs = append(errs, fmt.Errorf("server rate limit and body size values must be >= 0"))
	}

	if len(cfg.LLM.Profiles) == 0 {
		errs = append(errs, fmt.Errorf("no LLM credentials configured: at least one llm profile is required"))
	}
	seen := make(map[string]bool)
	for i, profile := range cfg.LLM.Profiles {
		if profile.ID == "" {
			errs = append(errs, fmt.Errorf("llm profile %d: id is required", i))
		} else if seen[profile.ID] {
			errs = append(errs, fmt.Errorf("llm profile %s: duplicate id", profile.ID))
		}
		seen[profile.ID] = true
		if err := v.ValidateProvider(profile.Provider); err != nil {
			errs = append(errs, fmt.Errorf("llm profile %d (%s): %w", i, profile.ID, err))
			continue
		}
		if err := v.ValidateAPIKey(profile.APIKey, profile.Provider); err != nil {
			errs = append(errs, fmt.Errorf("llm profile %d (%s): %w", i, profile.ID, err))
		}
	}
	if cfg.LLM.Model == "" {
		errs = append(errs, fmt.Errorf("llm.model is required"))
	}
	if err := v.ValidateTemperature(cfg.LLM.Temperature); err != nil {
		errs = append(errs, err)
	}
	if cfg.LLM.TimeoutSeconds <= 0 || cfg.LLM.StreamTimeoutSeconds <= 0 {
		errs = append(errs, fmt.Errorf("llm timeouts must be > 0"))
	}
	errs = append(errs, v.validateRetry("llm.retry", cfg.LLM.Retry)...)

	if err := v.ValidateEndpoint("commerce.endpoint", cfg.Commerce.Endpoint); err != nil {
		errs = append(errs, err)
	}
	if cfg.Commerce.TimeoutSeconds <= 0 {
		errs = append(errs, fmt.Errorf("commerce.timeout_seconds must be > 0"))
	}
	errs = append(errs, v.validateRetry("commerce.retry", cfg.Commerce.Retry)...)
	if oauth := cfg.Commerce.OAuth; oauth.TokenURL != "" {
		if err := v.ValidateEndpoint("commerce.oauth.token_url", oauth.TokenURL); err != nil {
			errs = append(errs, err)
		}
		if oauth.ClientID == "" || oauth.ClientSecret == "" {
			errs = append(errs, fmt.Errorf("commerce.oauth client_id and client_secret are required when token_url is set"))
		}
	}

	if err := v.ValidateSessionDriver(cfg.Session.Driver); err != nil {
		errs = append(errs, err)
	}
	if cfg.Session.TTLMinutes <= 0 {
		errs = append(errs, fmt.Errorf("session.ttl_minutes must be > 0"))
	}
	if err := v.ValidateSchedule(cfg.Session.SweepSchedule); err != nil {
		errs = append(errs, err)
	}
	if cfg.Session.Driver == "redis" && cfg.Session.Redis.Addr == "" {
		errs = append(errs, fmt.Errorf("session.redis.addr is required for the redis driver"))
	}

	if cfg.Agent.MaxRounds < 1 {
		errs = append(errs, fmt.Errorf("agent.max_rounds must be >= 1"))
	}
	if cfg.Agent.MaxToolCallsPerRound < 1 {
		errs = append(errs, fmt.Errorf("agent.max_tool_calls_per_round must be >= 1"))
	}

	if cfg.Diagnostics.Enabled && (cfg.Diagnostics.MaxRuns < 1 || cfg.Diagnostics.TTLMinutes < 1) {
		errs = append(errs, fmt.Errorf("diagnostics max_runs and ttl_minutes must be >= 1"))
	}

	if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1 {
		errs = append(errs, fmt.Errorf("tracing.sample_ratio must be between 0 and 1"))
	}

	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errs = append(errs, err)
	}

	return errs
}
