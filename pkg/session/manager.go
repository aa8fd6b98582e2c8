package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/harun/shopagent/internal/observability"
	"github.com/harun/shopagent/internal/tracing"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	maxKeyPartLength = 128
	keySeparator     = ":"
)

// Key builds the store key for a tenant session
func Key(tenantID, sessionID string) (string, error) {
	if err := validateKeyPart("tenant id", tenantID); err != nil {
		return "", err
	}
	if err := validateKeyPart("session id", sessionID); err != nil {
		return "", err
	}
	return tenantID + keySeparator + sessionID, nil
}

func validateKeyPart(name, value string) error {
	if value == "" {
		return fmt.Errorf("%s cannot be empty", name)
	}
	if len(value) > maxKeyPartLength {
		return fmt.Errorf("%s is longer than %d characters", name, maxKeyPartLength)
	}
	if strings.IndexFunc(value, func(r rune) bool { return unicode.IsSpace(r) || unicode.IsControl(r) }) >= 0 {
		return fmt.Errorf("%s cannot contain whitespace or control characters", name)
	}
	if strings.Contains(value, keySeparator) {
		return fmt.Errorf("%s cannot contain %q", name, keySeparator)
	}
	return nil
}

// ManagerConfig holds manager configuration
type ManagerConfig struct {
	Store           Store
	TTL             time.Duration
	MaxConversation int
	Logger          zerolog.Logger
	Now             func() time.Time
}

// Manager loads and saves session states with per-key write serialization
type Manager struct {
	store           Store
	ttl             time.Duration
	maxConversation int
	logger          zerolog.Logger
	now             func() time.Time

	locksMu sync.Mutex
	locks   map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// NewManager creates a new session manager
func NewManager(cfg ManagerConfig) (*Manager, error) {
	observability.EnsureRegistered()

	if cfg.Store == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Manager{
		store:           cfg.Store,
		ttl:             cfg.TTL,
		maxConversation: cfg.MaxConversation,
		logger:          cfg.Logger,
		now:             cfg.Now,
		locks:           make(map[string]*keyLock),
	}, nil
}

// lock serializes writers of one key. Entries are dropped once unused.
func (m *Manager) lock(key string) func() {
	m.locksMu.Lock()
	l, ok := m.locks[key]
	if !ok {
		l = &keyLock{}
		m.locks[key] = l
	}
	l.refs++
	m.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		m.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(m.locks, key)
		}
		m.locksMu.Unlock()
	}
}

// Load returns the stored state for key, or a fresh one when it is missing or expired
func (m *Manager) Load(ctx context.Context, key string) (*State, error) {
	ctx, span := tracing.StartSpan(ctx, "shopagent.session", "session.load",
		attribute.String("session_key", key),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, m.logger)
	start := time.Now()
	defer func() {
		observability.RecordSessionLoad(time.Since(start))
	}()

	state, err := m.store.Get(ctx, key)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if state == nil {
		logger.Debug().Str("sessionKey", key).Msg("Starting new session")
		return NewState(key, m.now(), m.ttl), nil
	}
	return state, nil
}

// Save trims the conversation and writes state under the key lock
func (m *Manager) Save(ctx context.Context, state *State) error {
	if state == nil || state.Key == "" {
		return ErrEmptyKey
	}
	ctx, span := tracing.StartSpan(ctx, "shopagent.session", "session.save",
		attribute.String("session_key", state.Key),
		attribute.Int("messages", len(state.Conversation)),
	)
	defer span.End()
	start := time.Now()
	defer func() {
		observability.RecordSessionSave(time.Since(start))
	}()

	unlock := m.lock(state.Key)
	defer unlock()

	state.TrimConversation(m.maxConversation)
	if err := m.store.Set(ctx, state.Key, state); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Delete removes a session, as on logout
func (m *Manager) Delete(ctx context.Context, key string) error {
	ctx, span := tracing.StartSpan(ctx, "shopagent.session", "session.delete",
		attribute.String("session_key", key),
	)
	defer span.End()

	unlock := m.lock(key)
	defer unlock()

	if err := m.store.Delete(ctx, key); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to delete session: %w", err)
	}
	logger := tracing.LoggerFromContext(ctx, m.logger)
	logger.Info().Str("sessionKey", key).Msg("Session deleted")
	return nil
}

// Exists reports whether a live session is stored under key
func (m *Manager) Exists(ctx context.Context, key string) (bool, error) {
	return m.store.Exists(ctx, key)
}

// Touch extends the session TTL
func (m *Manager) Touch(ctx context.Context, key string) (bool, error) {
	unlock := m.lock(key)
	defer unlock()
	return m.store.Touch(ctx, key)
}

// Store returns the underlying store
func (m *Manager) Store() Store {
	return m.store
}

// Close closes the underlying store
func (m *Manager) Close() error {
	return m.store.Close()
}
