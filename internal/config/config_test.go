package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.LLM.Profiles = []LLMProfile{
		{ID: "primary", Provider: "openai", APIKey: "sk-test123", Priority: 1},
	}
	cfg.Commerce.Endpoint = "https://shop.example.com/mcp"
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Session.Driver)
	assert.Equal(t, 60, cfg.Session.TTLMinutes)
	assert.Equal(t, 5, cfg.Agent.MaxRounds)
	assert.Equal(t, 4, cfg.Agent.MaxToolCallsPerRound)
	assert.Equal(t, 3, cfg.Commerce.Retry.Attempts)
	assert.Equal(t, 200, cfg.Diagnostics.MaxRuns)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.True(t, cfg.Tracing.Enabled)
	assert.Equal(t, "shopagent", cfg.Tracing.ServiceName)
	assert.Equal(t, 1.0, cfg.Tracing.SampleRatio)
}

func TestConfigValidate(t *testing.T) {
	t.Run("valid config", func(t *testing.T) {
		assert.NoError(t, validConfig().Validate())
	})

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "no profiles",
			mutate:  func(c *Config) { c.LLM.Profiles = nil },
			wantErr: "at least one llm profile",
		},
		{
			name: "bad provider",
			mutate: func(c *Config) {
				c.LLM.Profiles[0].Provider = "gemini"
			},
			wantErr: "invalid provider",
		},
		{
			name: "anthropic key format",
			mutate: func(c *Config) {
				c.LLM.Profiles[0].Provider = "anthropic"
			},
			wantErr: "sk-ant-",
		},
		{
			name:    "missing endpoint",
			mutate:  func(c *Config) { c.Commerce.Endpoint = "" },
			wantErr: "commerce.endpoint is required",
		},
		{
			name:    "relative endpoint",
			mutate:  func(c *Config) { c.Commerce.Endpoint = "/mcp" },
			wantErr: "absolute http(s) URL",
		},
		{
			name:    "unknown driver",
			mutate:  func(c *Config) { c.Session.Driver = "etcd" },
			wantErr: "invalid session driver",
		},
		{
			name:    "bad schedule",
			mutate:  func(c *Config) { c.Session.SweepSchedule = "every minute" },
			wantErr: "invalid sweep schedule",
		},
		{
			name:    "zero rounds",
			mutate:  func(c *Config) { c.Agent.MaxRounds = 0 },
			wantErr: "agent.max_rounds",
		},
		{
			name: "oauth without secret",
			mutate: func(c *Config) {
				c.Commerce.OAuth.TokenURL = "https://auth.example.com/token"
				c.Commerce.OAuth.ClientID = "shop"
			},
			wantErr: "client_secret",
		},
		{
			name:    "retry attempts",
			mutate:  func(c *Config) { c.LLM.Retry.Attempts = 0 },
			wantErr: "llm.retry.attempts",
		},
		{
			name:    "log level",
			mutate:  func(c *Config) { c.Logging.Level = "trace" },
			wantErr: "invalid log level",
		},
		{
			name:    "sample ratio",
			mutate:  func(c *Config) { c.Tracing.SampleRatio = 1.5 },
			wantErr: "tracing.sample_ratio",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateConfigReportsAllProblems(t *testing.T) {
	cfg := validConfig()
	cfg.Agent.MaxRounds = 0
	cfg.Logging.Level = "loud"

	errs := NewValidator().ValidateConfig(cfg)
	assert.Len(t, errs, 2)
}

func TestRetryConfigDurations(t *testing.T) {
	r := RetryConfig{Attempts: 2, DelayMs: 250, JitterMs: 50}
	assert.Equal(t, int64(250), r.Delay().Milliseconds())
	assert.Equal(t, int64(50), r.Jitter().Milliseconds())
}

func TestServerAddr(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
	assert.Equal(t, 60, cfg.Server.RateLimitPerMinute)

	cfg.Server.Host = ""
	cfg.Server.Port = 9000
	assert.Equal(t, ":9000", cfg.Server.Addr())
}
