package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Store persists session states. Get on a missing or expired key returns (nil, nil).
type Store interface {
	Get(ctx context.Context, key string) (*State, error)
	// Set stamps UpdatedAt/ExpiresAt and writes the whole state.
	Set(ctx context.Context, key string, state *State) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	// Touch extends the TTL without rewriting the state. It returns false when the
	// key is missing or already expired.
	Touch(ctx context.Context, key string) (bool, error)
	// Sweep removes expired entries and returns how many were removed.
	Sweep(ctx context.Context) (int, error)
	Close() error
}

// Counter is implemented by stores that can cheaply count live sessions
type Counter interface {
	Count(ctx context.Context) (int, error)
}

// StoreType selects a Store driver
type StoreType string

const (
	StoreTypeMemory StoreType = "memory"
	StoreTypeRedis  StoreType = "redis"
	StoreTypeSQLite StoreType = "sqlite"
)

var (
	ErrInvalidStoreType = errors.New("invalid session store type")
	ErrInvalidConfig    = errors.New("invalid session store configuration")
	ErrEmptyKey         = errors.New("session key cannot be empty")
)

const (
	defaultTTL       = time.Hour
	defaultKeyPrefix = "shopagent:session:"
)

// StoreOption configures NewStore
type StoreOption func(*storeConfig)

type storeConfig struct {
	ttl         time.Duration
	now         func() time.Time
	logger      zerolog.Logger
	redisClient redis.UniversalClient
	keyPrefix   string
	sqlitePath  string
	db          *sql.DB
}

// WithTTL sets the session time to live
func WithTTL(ttl time.Duration) StoreOption {
	return func(c *storeConfig) { c.ttl = ttl }
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) StoreOption {
	return func(c *storeConfig) { c.now = now }
}

// WithLogger sets the store logger
func WithLogger(logger zerolog.Logger) StoreOption {
	return func(c *storeConfig) { c.logger = logger }
}

// WithRedisClient sets the client for the redis driver
func WithRedisClient(client redis.UniversalClient) StoreOption {
	return func(c *storeConfig) { c.redisClient = client }
}

// WithKeyPrefix sets the redis key prefix
func WithKeyPrefix(prefix string) StoreOption {
	return func(c *storeConfig) { c.keyPrefix = prefix }
}

// WithSQLitePath sets the database file for the sqlite driver
func WithSQLitePath(path string) StoreOption {
	return func(c *storeConfig) { c.sqlitePath = path }
}

// WithDB hands the sqlite driver an already opened database
func WithDB(db *sql.DB) StoreOption {
	return func(c *storeConfig) { c.db = db }
}

// NewStore creates a Store for the given driver
func NewStore(storeType StoreType, opts ...StoreOption) (Store, error) {
	cfg := &storeConfig{
		ttl:       defaultTTL,
		now:       time.Now,
		logger:    zerolog.Nop(),
		keyPrefix: defaultKeyPrefix,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.ttl <= 0 {
		cfg.ttl = defaultTTL
	}

	switch storeType {
	case StoreTypeMemory, "":
		return newMemoryStore(cfg), nil
	case StoreTypeRedis:
		if cfg.redisClient == nil {
			return nil, fmt.Errorf("%w: redis client is required", ErrInvalidConfig)
		}
		return newRedisStore(cfg), nil
	case StoreTypeSQLite:
		if cfg.db == nil && cfg.sqlitePath == "" {
			return nil, fmt.Errorf("%w: sqlite path is required", ErrInvalidConfig)
		}
		return newSQLiteStore(cfg)
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidStoreType, storeType)
	}
}

func encodeState(state *State) ([]byte, error) {
	data, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("failed to encode session state: %w", err)
	}
	return data, nil
}

func decodeState(data []byte) (*State, error) {
	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to decode session state: %w", err)
	}
	return &state, nil
}
