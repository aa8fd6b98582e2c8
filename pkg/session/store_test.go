package session

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/harun/shopagent/pkg/llm"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

type storeHarness struct {
	store   Store
	advance func(d time.Duration)
}

func newHarnesses(t *testing.T, ttl time.Duration) map[string]func() storeHarness {
	return map[string]func() storeHarness{
		"memory": func() storeHarness {
			clock := &fakeClock{now: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
			store, err := NewStore(StoreTypeMemory, WithTTL(ttl), WithClock(clock.Now))
			require.NoError(t, err)
			return storeHarness{store: store, advance: func(d time.Duration) { clock.now = clock.now.Add(d) }}
		},
		"sqlite": func() storeHarness {
			clock := &fakeClock{now: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
			store, err := NewStore(StoreTypeSQLite,
				WithTTL(ttl),
				WithClock(clock.Now),
				WithSQLitePath(filepath.Join(t.TempDir(), "sessions.db")),
			)
			require.NoError(t, err)
			t.Cleanup(func() { store.Close() })
			return storeHarness{store: store, advance: func(d time.Duration) { clock.now = clock.now.Add(d) }}
		},
		"redis": func() storeHarness {
			clock := &fakeClock{now: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
			mr := miniredis.RunT(t)
			client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			store, err := NewStore(StoreTypeRedis, WithTTL(ttl), WithClock(clock.Now), WithRedisClient(client))
			require.NoError(t, err)
			t.Cleanup(func() { store.Close() })
			return storeHarness{store: store, advance: func(d time.Duration) {
				clock.now = clock.now.Add(d)
				mr.FastForward(d)
			}}
		},
	}
}

func sampleState() *State {
	price := 89.9
	state := &State{
		Conversation: []llm.Message{
			{Role: llm.RoleUser, Content: "running shoes"},
			{Role: llm.RoleAssistant, Content: "Here are some."},
		},
		MCP: MCPState{NextRequestID: 7, SessionID: "mcp-1"},
	}
	state.Memory.SetResults("running shoes", []SearchHit{
		{ProductID: "P-1", Name: "Trail Runner", Price: &price, Currency: "EUR"},
	})
	state.Memory.PendingConfirmation = &PendingConfirmation{
		ToolName:      "cart_add_item",
		Arguments:     map[string]interface{}{"productId": "P-1", "quantity": float64(1)},
		CanonicalArgs: `{"productId":"P-1","quantity":1}`,
	}
	return state
}

func TestStores(t *testing.T) {
	const ttl = 10 * time.Minute
	ctx := context.Background()

	for name, newHarness := range newHarnesses(t, ttl) {
		t.Run(name, func(t *testing.T) {
			t.Run("missing key is not found", func(t *testing.T) {
				h := newHarness()
				state, err := h.store.Get(ctx, "acme:none")
				require.NoError(t, err)
				assert.Nil(t, state)

				exists, err := h.store.Exists(ctx, "acme:none")
				require.NoError(t, err)
				assert.False(t, exists)

				touched, err := h.store.Touch(ctx, "acme:none")
				require.NoError(t, err)
				assert.False(t, touched)
			})

			t.Run("round trip", func(t *testing.T) {
				h := newHarness()
				in := sampleState()
				require.NoError(t, h.store.Set(ctx, "acme:s1", in))
				assert.Equal(t, in.UpdatedAt+ttl.Milliseconds(), in.ExpiresAt)

				got, err := h.store.Get(ctx, "acme:s1")
				require.NoError(t, err)
				require.NotNil(t, got)
				assert.Equal(t, "acme:s1", got.Key)
				assert.Equal(t, in.Conversation, got.Conversation)
				assert.Equal(t, int64(7), got.MCP.NextRequestID)
				assert.Equal(t, "mcp-1", got.MCP.SessionID)
				require.Len(t, got.Memory.LastResults, 1)
				assert.Equal(t, 1, got.Memory.LastResults[0].Index)
				require.NotNil(t, got.Memory.PendingConfirmation)
				assert.Equal(t, "cart_add_item", got.Memory.PendingConfirmation.ToolName)
				assert.Equal(t, in.ExpiresAt, got.ExpiresAt)
			})

			t.Run("expired get returns not found", func(t *testing.T) {
				h := newHarness()
				require.NoError(t, h.store.Set(ctx, "acme:s2", sampleState()))

				h.advance(ttl + time.Second)

				got, err := h.store.Get(ctx, "acme:s2")
				require.NoError(t, err)
				assert.Nil(t, got)

				exists, err := h.store.Exists(ctx, "acme:s2")
				require.NoError(t, err)
				assert.False(t, exists)
			})

			t.Run("touch extends ttl", func(t *testing.T) {
				h := newHarness()
				require.NoError(t, h.store.Set(ctx, "acme:s3", sampleState()))

				h.advance(ttl - time.Minute)
				touched, err := h.store.Touch(ctx, "acme:s3")
				require.NoError(t, err)
				assert.True(t, touched)

				h.advance(2 * time.Minute)
				got, err := h.store.Get(ctx, "acme:s3")
				require.NoError(t, err)
				assert.NotNil(t, got)
			})

			t.Run("delete", func(t *testing.T) {
				h := newHarness()
				require.NoError(t, h.store.Set(ctx, "acme:s4", sampleState()))
				require.NoError(t, h.store.Delete(ctx, "acme:s4"))

				exists, err := h.store.Exists(ctx, "acme:s4")
				require.NoError(t, err)
				assert.False(t, exists)
			})

			t.Run("empty key is rejected", func(t *testing.T) {
				h := newHarness()
				assert.ErrorIs(t, h.store.Set(ctx, "", sampleState()), ErrEmptyKey)
			})
		})
	}
}

func TestStores_Sweep(t *testing.T) {
	const ttl = time.Minute
	ctx := context.Background()

	for _, name := range []string{"memory", "sqlite"} {
		t.Run(name, func(t *testing.T) {
			h := newHarnesses(t, ttl)[name]()
			require.NoError(t, h.store.Set(ctx, "acme:old", sampleState()))
			h.advance(30 * time.Second)
			require.NoError(t, h.store.Set(ctx, "acme:new", sampleState()))
			h.advance(45 * time.Second)

			removed, err := h.store.Sweep(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, removed)

			count, err := h.store.(Counter).Count(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, count)
		})
	}
}

func TestMemoryStore_Isolation(t *testing.T) {
	ctx := context.Background()
	store, err := NewStore(StoreTypeMemory)
	require.NoError(t, err)

	state := sampleState()
	require.NoError(t, store.Set(ctx, "acme:s", state))
	state.Conversation = append(state.Conversation, llm.Message{Role: llm.RoleUser, Content: "unsaved"})

	got, err := store.Get(ctx, "acme:s")
	require.NoError(t, err)
	assert.Len(t, got.Conversation, 2)
}

func TestNewStore_Errors(t *testing.T) {
	_, err := NewStore(StoreTypeRedis)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewStore(StoreTypeSQLite)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewStore("etcd")
	assert.ErrorIs(t, err, ErrInvalidStoreType)
}
