package daemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/harun/shopagent/internal/config"
	"github.com/harun/shopagent/internal/logger"
	"github.com/harun/shopagent/internal/observability"
	"github.com/harun/shopagent/internal/tracing"
	"github.com/harun/shopagent/pkg/agent"
	"github.com/harun/shopagent/pkg/commandqueue"
	"github.com/harun/shopagent/pkg/commerce"
	"github.com/harun/shopagent/pkg/diagnostics"
	"github.com/harun/shopagent/pkg/httpapi"
	"github.com/harun/shopagent/pkg/llm"
	"github.com/harun/shopagent/pkg/retry"
	"github.com/harun/shopagent/pkg/session"
	"github.com/harun/shopagent/pkg/toolexecutor"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	llmCooldown       = 30 * time.Second
	queueDedupTTL     = 10 * time.Minute
	queueWarnAfter    = 2 * time.Second
	stopGoroutineWait = 5 * time.Second
)

// Daemon owns every long-lived component of the shopagent service
type Daemon struct {
	config  *config.Config
	logger  *logger.Logger
	version string

	queue    *commandqueue.CommandQueue
	store    session.Store
	sessions *session.Manager
	tools    *toolexecutor.ToolExecutor
	runs     *diagnostics.RunStore
	runner   *agent.Runner
	api      *httpapi.Server
	sweeper  *session.Sweeper
	redis    *redis.Client

	lifecycle *LifecycleManager

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	startTime time.Time
	running   bool
	mu        sync.RWMutex

	tracingEnabled bool
}

// Status is a point-in-time view of the daemon
type Status struct {
	Running   bool
	StartTime time.Time
	Uptime    time.Duration
}

// Option customizes New
type Option func(*Daemon)

// WithVersion sets the version reported to the commerce backend
func WithVersion(version string) Option {
	return func(d *Daemon) { d.version = version }
}

// New builds the daemon from cfg in dependency order
func New(cfg *config.Config, log *logger.Logger, opts ...Option) (*Daemon, error) {
	ctx, cancel := context.WithCancel(context.Background())

	observability.EnsureRegistered()

	d := &Daemon{
		config:  cfg,
		logger:  log,
		version: "dev",
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, opt := range opts {
		opt(d)
	}

	if cfg.Tracing.Enabled {
		err := d.initTracing()
		if err != nil {
			zl := log.Zerolog()
			zl.Warn().Err(err).Msg("Failed to initialize tracing, continuing without distributed tracing")
		} else {
			d.tracingEnabled = true
		}
	}

	if err := d.initialize(); err != nil {
		cancel()
		d.closeResources(log.Zerolog())
		return nil, err
	}

	d.lifecycle = NewLifecycleManager(d)
	return d, nil
}

func (d *Daemon) initialize() error {
	zl := d.logger.Zerolog()

	if err := os.MkdirAll(d.config.DataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	auditPath := d.config.Server.AuditLog
	if auditPath == "" {
		auditPath = filepath.Join(d.config.DataDir, "audit.log")
	}
	if err := observability.InitAuditLogger(auditPath); err != nil {
		zl.Warn().Err(err).Msg("Failed to initialize audit logger, using default stderr")
	} else {
		zl.Info().Str("path", auditPath).Msg("Audit logger initialized")
	}

	d.queue = commandqueue.New(commandqueue.Config{Logger: zl, DedupTTL: queueDedupTTL})

	store, err := d.newSessionStore(zl)
	if err != nil {
		return fmt.Errorf("failed to create session store: %w", err)
	}
	d.store = store

	sessions, err := session.NewManager(session.ManagerConfig{
		Store:           store,
		TTL:             d.config.Session.TTL(),
		MaxConversation: d.config.Session.MaxConversation,
		Logger:          zl,
	})
	if err != nil {
		return fmt.Errorf("failed to create session manager: %w", err)
	}
	d.sessions = sessions
	zl.Info().Str("driver", d.config.Session.Driver).Msg("Session manager initialized")

	backend, err := d.newCommerceClient(zl)
	if err != nil {
		return fmt.Errorf("failed to create commerce client: %w", err)
	}
	d.tools = toolexecutor.New(toolexecutor.Config{Logger: zl})
	for _, tool := range commerce.Tools(backend) {
		if err := d.tools.RegisterTool(tool); err != nil {
			return fmt.Errorf("failed to register tool %s: %w", tool.Name(), err)
		}
	}
	zl.Info().Int("tools", len(d.tools.Definitions())).Msg("Commerce tools registered")

	model, err := d.newLLM(zl)
	if err != nil {
		return fmt.Errorf("failed to create llm client: %w", err)
	}

	jobs := []session.SweepJob{session.StoreSweepJob(store)}
	if d.config.Diagnostics.Enabled {
		d.runs = diagnostics.NewRunStore(d.config.Diagnostics.MaxRuns, time.Duration(d.config.Diagnostics.TTLMinutes)*time.Minute)
		jobs = append(jobs, session.SweepJob{Name: "runs", Run: d.runs.Sweep})
	}

	// run records always carry redacted previews, even when log redaction is off
	redactor := d.logger.Redactor()
	if redactor == nil {
		redactor = logger.NewRedactor()
	}

	runner, err := agent.NewRunner(agent.Config{
		Sessions: sessions,
		Tools:    d.tools,
		Queue:    d.queue,
		LLM:      model,
		Runs:     d.runs,
		Redactor: redactor,
		Logger:   zl,
		Options: agent.Options{
			Model:                d.config.LLM.Model,
			SystemPrompt:         d.config.Agent.SystemPrompt,
			MaxRounds:            d.config.Agent.MaxRounds,
			MaxToolCallsPerRound: d.config.Agent.MaxToolCallsPerRound,
			Highlights:           d.config.LLM.CompareHighlights,
			DevEvents:            d.config.Agent.DevStatus,
			QueueWarnAfter:       queueWarnAfter,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create agent runner: %w", err)
	}
	d.runner = runner

	d.sweeper, err = session.NewSweeper(d.config.Session.SweepSchedule, zl, jobs...)
	if err != nil {
		return err
	}

	d.api, err = httpapi.NewServer(httpapi.Config{
		Addr:         d.config.Server.Addr(),
		Runner:       runner,
		SharedSecret: d.config.Server.SharedSecret,
		RateLimit: httpapi.RateLimit{
			PerMinute:     d.config.Server.RateLimitPerMinute,
			MaxConcurrent: d.config.Server.MaxConcurrent,
		},
		AllowedOrigins: d.config.Server.AllowedOrigins,
		MaxBodyBytes:   d.config.Server.MaxBodyBytes,
		ShutdownWait:   time.Duration(d.config.Server.ShutdownWaitSeconds) * time.Second,
		Logger:         zl,
	})
	if err != nil {
		return fmt.Errorf("failed to create API server: %w", err)
	}
	return nil
}

func (d *Daemon) newSessionStore(zl zerolog.Logger) (session.Store, error) {
	cfg := d.config.Session
	opts := []session.StoreOption{
		session.WithTTL(cfg.TTL()),
		session.WithLogger(zl),
	}

	switch session.StoreType(cfg.Driver) {
	case session.StoreTypeRedis:
		d.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(d.ctx, 5*time.Second)
		defer cancel()
		if err := d.redis.Ping(pingCtx).Err(); err != nil {
			return nil, fmt.Errorf("redis %s unreachable: %w", cfg.Redis.Addr, err)
		}
		opts = append(opts, session.WithRedisClient(d.redis), session.WithKeyPrefix(cfg.Redis.KeyPrefix))
	case session.StoreTypeSQLite:
		opts = append(opts, session.WithSQLitePath(cfg.SQLitePath))
	}
	return session.NewStore(session.StoreType(cfg.Driver), opts...)
}

func (d *Daemon) newCommerceClient(zl zerolog.Logger) (*commerce.Client, error) {
	cfg := d.config.Commerce

	var oauth *commerce.OAuthConfig
	if cfg.OAuth.TokenURL != "" {
		oauth = &commerce.OAuthConfig{
			ClientID:     cfg.OAuth.ClientID,
			ClientSecret: cfg.OAuth.ClientSecret,
			TokenURL:     cfg.OAuth.TokenURL,
			Scopes:       cfg.OAuth.Scopes,
		}
	}
	return commerce.NewClient(commerce.Config{
		Endpoint: cfg.Endpoint,
		Timeout:  time.Duration(cfg.TimeoutSeconds) * time.Second,
		Retry: retry.Policy{
			Attempts: cfg.Retry.Attempts,
			Delay:    cfg.Retry.Delay(),
			Jitter:   cfg.Retry.Jitter(),
		},
		OAuth:         oauth,
		ClientVersion: d.version,
		Logger:        zl,
	})
}

func (d *Daemon) newLLM(zl zerolog.Logger) (*llm.Failover, error) {
	cfg := d.config.LLM

	profiles := make([]llm.Profile, 0, len(cfg.Profiles))
	for _, p := range cfg.Profiles {
		model := p.Model
		if model == "" {
			model = cfg.Model
		}
		provider, err := llm.NewProvider(llm.ProviderSpec{
			Provider: p.Provider,
			APIKey:   p.APIKey,
			BaseURL:  p.BaseURL,
			Options: llm.Options{
				Model:       model,
				Temperature: cfg.Temperature,
				MaxTokens:   cfg.MaxTokens,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("llm profile %s: %w", p.ID, err)
		}
		profiles = append(profiles, llm.Profile{ID: p.ID, Priority: p.Priority, Provider: provider})
	}

	return llm.NewFailover(llm.FailoverConfig{
		Profiles: profiles,
		Retry: retry.Policy{
			Attempts: cfg.Retry.Attempts,
			Delay:    cfg.Retry.Delay(),
			Jitter:   cfg.Retry.Jitter(),
		},
		Timeout:       time.Duration(cfg.TimeoutSeconds) * time.Second,
		StreamTimeout: time.Duration(cfg.StreamTimeoutSeconds) * time.Second,
		Cooldown:      llmCooldown,
		Logger:        zl,
	})
}

func (d *Daemon) initTracing() error {
	opts := tracing.Options{
		ServiceName:    d.config.Tracing.ServiceName,
		ServiceVersion: d.version,
		SampleRatio:    d.config.Tracing.SampleRatio,
	}
	if endpoint := d.config.Tracing.Endpoint; endpoint != "" {
		exporter, err := tracing.NewOTLPExporter(d.ctx, endpoint, d.config.Tracing.Insecure)
		if err != nil {
			return fmt.Errorf("failed to create span exporter: %w", err)
		}
		opts.Exporter = exporter
	}
	return tracing.InitOpenTelemetry(opts)
}

// Start brings up the sweeper and the API server
func (d *Daemon) Start() error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is already running")
	}
	d.running = true
	d.startTime = time.Now()
	d.mu.Unlock()

	logger := d.logger.Zerolog().With().Str("trace_id", tracing.NewTraceID()).Logger()
	logger.Info().Str("version", d.version).Msg("Starting shopagent")

	if err := d.lifecycle.Start(); err != nil {
		return fmt.Errorf("failed to start lifecycle manager: %w", err)
	}
	if err := d.sweeper.Start(); err != nil {
		return fmt.Errorf("failed to start session sweeper: %w", err)
	}
	if err := d.api.Start(); err != nil {
		return fmt.Errorf("failed to start API server: %w", err)
	}

	logger.Info().Str("addr", d.config.Server.Addr()).Msg("Daemon started")
	return nil
}

// Stop drains the API server and releases every resource
func (d *Daemon) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is not running")
	}
	d.running = false
	d.mu.Unlock()

	logger := d.logger.Zerolog().With().Str("trace_id", tracing.NewTraceID()).Logger()
	logger.Info().Msg("Stopping shopagent")

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Duration(d.config.Server.ShutdownWaitSeconds+5)*time.Second)
	defer cancel()
	if err := d.api.Stop(stopCtx); err != nil {
		logger.Error().Err(err).Msg("Failed to stop API server")
	}
	if err := d.sweeper.Stop(); err != nil {
		logger.Error().Err(err).Msg("Failed to stop session sweeper")
	}

	d.cancel()
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(stopGoroutineWait):
		logger.Warn().Msg("Timeout waiting for goroutines to stop")
	}

	if err := d.lifecycle.Stop(); err != nil {
		logger.Error().Err(err).Msg("Failed to stop lifecycle manager")
	}
	d.closeResources(logger)

	logger.Info().Msg("Daemon stopped")
	return nil
}

// closeResources releases what initialize opened. The session store owns the
// redis client once it exists.
func (d *Daemon) closeResources(logger zerolog.Logger) {
	if d.queue != nil {
		if err := d.queue.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close command queue")
		}
	}
	if d.sessions != nil {
		if err := d.sessions.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close session manager")
		}
	} else if d.store != nil {
		if err := d.store.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close session store")
		}
	}
	if d.store == nil && d.redis != nil {
		_ = d.redis.Close()
	}
	if d.tracingEnabled {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := tracing.ShutdownOpenTelemetry(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Failed to shutdown tracing")
		}
		cancel()
		d.tracingEnabled = false
	}
	if err := observability.GetAuditLogger().Close(); err != nil {
		logger.Error().Err(err).Msg("Failed to close audit logger")
	}
}

// Go runs fn on a goroutine the daemon waits for on Stop
func (d *Daemon) Go(fn func(ctx context.Context)) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		fn(d.ctx)
	}()
}

// Status returns the daemon status
func (d *Daemon) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()

	status := Status{Running: d.running}
	if d.running {
		status.StartTime = d.startTime
		status.Uptime = time.Since(d.startTime)
	}
	return status
}

// Wait blocks until SIGINT or SIGTERM and then stops the daemon
func (d *Daemon) Wait() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	sig := <-sigChan
	zl := d.logger.Zerolog()
	zl.Info().Str("signal", sig.String()).Msg("Received signal")

	if err := d.Stop(); err != nil {
		zl.Error().Err(err).Msg("Failed to stop daemon")
	}
}

// ApplyConfig takes the parts of a reloaded config that are safe to change
// while running.
func (d *Daemon) ApplyConfig(cfg *config.Config) {
	zl := d.logger.Zerolog()
	if err := logger.SetLevel(cfg.Logging.Level); err != nil {
		zl.Warn().Err(err).Msg("Ignoring invalid log level")
		return
	}
	zl.Info().Str("level", cfg.Logging.Level).Msg("Log level updated")
}

func (d *Daemon) GetConfig() *config.Config {
	return d.config
}

func (d *Daemon) GetRunner() *agent.Runner {
	return d.runner
}

func (d *Daemon) GetAPIServer() *httpapi.Server {
	return d.api
}

func (d *Daemon) GetSessionManager() *session.Manager {
	return d.sessions
}
