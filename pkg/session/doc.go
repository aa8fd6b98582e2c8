// Package session persists per-session conversation and working memory behind a
// pluggable Store (memory, redis, sqlite).
//
// Invariants:
// - Get on a missing or expired key returns (nil, nil), never a stale state.
// - ExpiresAt is UpdatedAt plus the store TTL.
// - Writes for the same key are serialized by the Manager.
// - WorkingMemory holds at most one pending confirmation and one active choice set.
//
// Usage:
//
//	store, _ := session.NewStore(session.StoreTypeMemory, session.WithTTL(time.Hour))
//	mgr, _ := session.NewManager(session.ManagerConfig{Store: store, TTL: time.Hour})
//	state, _ := mgr.Load(ctx, "acme:abc123")
//	_ = mgr.Save(ctx, state)
package session
