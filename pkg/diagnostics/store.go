package diagnostics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/harun/shopagent/internal/observability"
)

const (
	DefaultMaxRuns = 200
	DefaultTTL     = time.Hour
)

// RunStore keeps the most recent RunRecords in a circular buffer. Records leave
// oldest first, either when the buffer is full or when they outlive the TTL.
// The TTL counts from insertion, which is when a run finishes, so buffer order
// and expiry order agree. index maps run id to slot and is kept in step with
// every insert and eviction.
type RunStore struct {
	mu    sync.RWMutex
	slots []*RunRecord
	added []time.Time
	start int // oldest slot
	count int
	index map[string]int

	ttl time.Duration
	now func() time.Time
}

// NewRunStore creates a store holding at most maxRuns records for ttl
func NewRunStore(maxRuns int, ttl time.Duration) *RunStore {
	if maxRuns <= 0 {
		maxRuns = DefaultMaxRuns
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RunStore{
		slots: make([]*RunRecord, maxRuns),
		added: make([]time.Time, maxRuns),
		index: make(map[string]int, maxRuns),
		ttl:   ttl,
		now:   time.Now,
	}
}

// Add stores a copy of rec, evicting the oldest record when full. Run ids must
// be unique.
func (s *RunStore) Add(rec *RunRecord) error {
	if rec == nil || rec.RunID == "" {
		return fmt.Errorf("run record requires a run id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.index[rec.RunID]; exists {
		return fmt.Errorf("run %s already recorded", rec.RunID)
	}
	if s.count == len(s.slots) {
		s.evictOldest()
	}

	now := s.now()
	slot := (s.start + s.count) % len(s.slots)
	stored := rec.clone()
	if stored.StartedAt.IsZero() {
		stored.StartedAt = now
	}
	s.slots[slot] = stored
	s.added[slot] = now
	s.index[stored.RunID] = slot
	s.count++

	observability.SetRunStoreSize(s.count)
	return nil
}

// Get returns a copy of the record, or false when unknown or expired
func (s *RunStore) Get(runID string) (*RunRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	slot, ok := s.index[runID]
	if !ok {
		return nil, false
	}
	if s.expired(slot) {
		return nil, false
	}
	return s.slots[slot].clone(), true
}

// List returns summaries newest first, optionally filtered by session key.
// limit <= 0 returns everything.
func (s *RunStore) List(sessionKey string, limit int) []Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Summary, 0, s.count)
	for i := s.count - 1; i >= 0; i-- {
		slot := (s.start + i) % len(s.slots)
		if s.expired(slot) {
			continue
		}
		rec := s.slots[slot]
		if sessionKey != "" && rec.SessionKey != sessionKey {
			continue
		}
		out = append(out, rec.summary())
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// Sweep drops expired records and reports how many went. Expired records are
// always at the head.
func (s *RunStore) Sweep(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for s.count > 0 && s.expired(s.start) {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		s.evictOldest()
		removed++
	}
	observability.SetRunStoreSize(s.count)
	return removed, nil
}

// Len returns the number of stored records, expired ones included until swept
func (s *RunStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count
}

func (s *RunStore) evictOldest() {
	rec := s.slots[s.start]
	if rec != nil {
		delete(s.index, rec.RunID)
	}
	s.slots[s.start] = nil
	s.added[s.start] = time.Time{}
	s.start = (s.start + 1) % len(s.slots)
	s.count--
}

func (s *RunStore) expired(slot int) bool {
	return s.now().Sub(s.added[slot]) > s.ttl
}
