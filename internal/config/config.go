package config

import (
	"encoding/json"
	"errors"
	"net"
	"strconv"
	"time"
)

// Config represents the shopagent configuration
type Config struct {
	Server      ServerConfig      `json:"server" mapstructure:"server"`
	LLM         LLMConfig         `json:"llm" mapstructure:"llm"`
	Commerce    CommerceConfig    `json:"commerce" mapstructure:"commerce"`
	Session     SessionConfig     `json:"session" mapstructure:"session"`
	Agent       AgentConfig       `json:"agent" mapstructure:"agent"`
	Diagnostics DiagnosticsConfig `json:"diagnostics" mapstructure:"diagnostics"`
	Logging     LoggingConfig     `json:"logging" mapstructure:"logging"`
	Tracing     TracingConfig     `json:"tracing" mapstructure:"tracing"`

	// Data directory for the sqlite session database, logs and audit trail
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// ServerConfig holds HTTP API settings. An empty SharedSecret leaves the API
// unauthenticated.
type ServerConfig struct {
	Host                string   `json:"host" mapstructure:"host"`
	Port                int      `json:"port" mapstructure:"port"`
	SharedSecret        string   `json:"shared_secret" mapstructure:"shared_secret"`
	RateLimitPerMinute  int      `json:"rate_limit_per_minute" mapstructure:"rate_limit_per_minute"`
	MaxConcurrent       int      `json:"max_concurrent" mapstructure:"max_concurrent"`
	MaxBodyBytes        int64    `json:"max_body_bytes" mapstructure:"max_body_bytes"`
	ShutdownWaitSeconds int      `json:"shutdown_wait_seconds" mapstructure:"shutdown_wait_seconds"`
	AllowedOrigins      []string `json:"allowed_origins" mapstructure:"allowed_origins"`
	AuditLog            string   `json:"audit_log" mapstructure:"audit_log"`
}

// RetryConfig is a fixed delay plus jitter retry budget
type RetryConfig struct {
	Attempts int `json:"attempts" mapstructure:"attempts"`
	DelayMs  int `json:"delay_ms" mapstructure:"delay_ms"`
	JitterMs int `json:"jitter_ms" mapstructure:"jitter_ms"`
}

// Delay returns DelayMs as a duration
func (r RetryConfig) Delay() time.Duration {
	return time.Duration(r.DelayMs) * time.Millisecond
}

// Jitter returns JitterMs as a duration
func (r RetryConfig) Jitter() time.Duration {
	return time.Duration(r.JitterMs) * time.Millisecond
}

// LLMConfig holds model provider settings
type LLMConfig struct {
	Model                string       `json:"model" mapstructure:"model"`
	Temperature          float64      `json:"temperature" mapstructure:"temperature"`
	MaxTokens            int          `json:"max_tokens" mapstructure:"max_tokens"`
	TimeoutSeconds       int          `json:"timeout_seconds" mapstructure:"timeout_seconds"`
	StreamTimeoutSeconds int          `json:"stream_timeout_seconds" mapstructure:"stream_timeout_seconds"`
	Retry                RetryConfig  `json:"retry" mapstructure:"retry"`
	Profiles             []LLMProfile `json:"profiles" mapstructure:"profiles"`
	CompareHighlights    bool         `json:"compare_highlights" mapstructure:"compare_highlights"`
}

// LLMProfile is one provider credential; lower Priority is tried first
type LLMProfile struct {
	ID       string `json:"id" mapstructure:"id"`
	Provider string `json:"provider" mapstructure:"provider"` // openai, anthropic
	APIKey   string `json:"api_key" mapstructure:"api_key"`
	BaseURL  string `json:"base_url" mapstructure:"base_url"`
	Model    string `json:"model" mapstructure:"model"`
	Priority int    `json:"priority" mapstructure:"priority"`
}

// CommerceConfig holds the commerce backend connection
type CommerceConfig struct {
	Endpoint       string      `json:"endpoint" mapstructure:"endpoint"`
	TimeoutSeconds int         `json:"timeout_seconds" mapstructure:"timeout_seconds"`
	Retry          RetryConfig `json:"retry" mapstructure:"retry"`
	OAuth          OAuthConfig `json:"oauth" mapstructure:"oauth"`
}

// OAuthConfig holds client credentials for the commerce backend. An empty
// TokenURL disables authentication.
type OAuthConfig struct {
	TokenURL     string   `json:"token_url" mapstructure:"token_url"`
	ClientID     string   `json:"client_id" mapstructure:"client_id"`
	ClientSecret string   `json:"client_secret" mapstructure:"client_secret"`
	Scopes       []string `json:"scopes" mapstructure:"scopes"`
}

// SessionConfig selects and tunes the session store
type SessionConfig struct {
	Driver          string      `json:"driver" mapstructure:"driver"` // memory, redis, sqlite
	TTLMinutes      int         `json:"ttl_minutes" mapstructure:"ttl_minutes"`
	SweepSchedule   string      `json:"sweep_schedule" mapstructure:"sweep_schedule"`
	MaxConversation int         `json:"max_conversation" mapstructure:"max_conversation"`
	SQLitePath      string      `json:"sqlite_path" mapstructure:"sqlite_path"`
	Redis           RedisConfig `json:"redis" mapstructure:"redis"`
}

// Addr returns host:port
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// TTL returns TTLMinutes as a duration
func (s SessionConfig) TTL() time.Duration {
	return time.Duration(s.TTLMinutes) * time.Minute
}

// RedisConfig holds redis connection settings for the redis session driver
type RedisConfig struct {
	Addr      string `json:"addr" mapstructure:"addr"`
	Password  string `json:"password" mapstructure:"password"`
	DB        int    `json:"db" mapstructure:"db"`
	KeyPrefix string `json:"key_prefix" mapstructure:"key_prefix"`
}

// AgentConfig bounds the tool-calling loop
type AgentConfig struct {
	MaxRounds            int    `json:"max_rounds" mapstructure:"max_rounds"`
	MaxToolCallsPerRound int    `json:"max_tool_calls_per_round" mapstructure:"max_tool_calls_per_round"`
	Locale               string `json:"locale" mapstructure:"locale"`
	SystemPrompt         string `json:"system_prompt" mapstructure:"system_prompt"`
	DevStatus            bool   `json:"dev_status" mapstructure:"dev_status"`
}

// DiagnosticsConfig bounds the in-memory run store
type DiagnosticsConfig struct {
	Enabled    bool `json:"enabled" mapstructure:"enabled"`
	MaxRuns    int  `json:"max_runs" mapstructure:"max_runs"`
	TTLMinutes int  `json:"ttl_minutes" mapstructure:"ttl_minutes"`
}

// TracingConfig controls OpenTelemetry spans. SampleRatio applies to root
// spans only. Spans are exported over OTLP/HTTP when Endpoint is set.
type TracingConfig struct {
	Enabled     bool    `json:"enabled" mapstructure:"enabled"`
	ServiceName string  `json:"service_name" mapstructure:"service_name"`
	SampleRatio float64 `json:"sample_ratio" mapstructure:"sample_ratio"`
	Endpoint    string  `json:"endpoint" mapstructure:"endpoint"`
	Insecure    bool    `json:"insecure" mapstructure:"insecure"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
	MaxSize   int    `json:"max_size" mapstructure:"max_size"` // MB
	MaxAge    int    `json:"max_age" mapstructure:"max_age"`   // days
	Compress  bool   `json:"compress" mapstructure:"compress"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:                "0.0.0.0",
			Port:                8080,
			RateLimitPerMinute:  60,
			MaxConcurrent:       10,
			MaxBodyBytes:        64 * 1024,
			ShutdownWaitSeconds: 30,
			AllowedOrigins:      []string{"*"},
		},
		LLM: LLMConfig{
			Model:                "gpt-4o-mini",
			Temperature:          0.2,
			MaxTokens:            1024,
			TimeoutSeconds:       30,
			StreamTimeoutSeconds: 90,
			Retry:                RetryConfig{Attempts: 3, DelayMs: 500, JitterMs: 250},
			Profiles:             []LLMProfile{},
		},
		Commerce: CommerceConfig{
			TimeoutSeconds: 15,
			Retry:          RetryConfig{Attempts: 3, DelayMs: 250, JitterMs: 100},
		},
		Session: SessionConfig{
			Driver:          "memory",
			TTLMinutes:      60,
			SweepSchedule:   "@every 1m",
			MaxConversation: 40,
			Redis:           RedisConfig{Addr: "localhost:6379", KeyPrefix: "shopagent:session:"},
		},
		Agent: AgentConfig{
			MaxRounds:            5,
			MaxToolCallsPerRound: 4,
			Locale:               "en",
		},
		Diagnostics: DiagnosticsConfig{
			Enabled:    true,
			MaxRuns:    200,
			TTLMinutes: 60,
		},
		Tracing: TracingConfig{
			Enabled:     true,
			ServiceName: "shopagent",
			SampleRatio: 1,
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSize:   100,
			MaxAge:    7,
			Compress:  true,
			Redaction: true,
		},
	}
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	return errors.Join(NewValidator().ValidateConfig(c)...)
}
