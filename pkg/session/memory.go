package session

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// memoryStore keeps encoded states in a map, so callers never share memory with it
type memoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

func newMemoryStore(cfg *storeConfig) *memoryStore {
	return &memoryStore{
		entries: make(map[string]memoryEntry),
		ttl:     cfg.ttl,
		now:     cfg.now,
	}
}

func (s *memoryStore) Get(ctx context.Context, key string) (*State, error) {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	if !s.now().Before(entry.expiresAt) {
		s.mu.Lock()
		if current, ok := s.entries[key]; ok && !s.now().Before(current.expiresAt) {
			delete(s.entries, key)
		}
		s.mu.Unlock()
		return nil, nil
	}

	state, err := decodeState(entry.data)
	if err != nil {
		return nil, err
	}
	state.ExpiresAt = entry.expiresAt.UnixMilli()
	return state, nil
}

func (s *memoryStore) Set(ctx context.Context, key string, state *State) error {
	if key == "" {
		return ErrEmptyKey
	}
	now := s.now()
	state.Key = key
	state.Stamp(now, s.ttl)

	data, err := encodeState(state)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.entries[key] = memoryEntry{data: data, expiresAt: now.Add(s.ttl)}
	s.mu.Unlock()
	return nil
}

func (s *memoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}

func (s *memoryStore) Exists(ctx context.Context, key string) (bool, error) {
	state, err := s.Get(ctx, key)
	return state != nil, err
}

func (s *memoryStore) Touch(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	now := s.now()
	if !ok || !now.Before(entry.expiresAt) {
		delete(s.entries, key)
		return false, nil
	}
	entry.expiresAt = now.Add(s.ttl)
	s.entries[key] = entry
	return true, nil
}

func (s *memoryStore) Sweep(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for key, entry := range s.entries {
		if !now.Before(entry.expiresAt) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed, nil
}

func (s *memoryStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}

func (s *memoryStore) Close() error {
	s.mu.Lock()
	s.entries = make(map[string]memoryEntry)
	s.mu.Unlock()
	return nil
}
