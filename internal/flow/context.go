// Package flow implements the screen-routing state machine.
//
// This file provides the per-conversation flow context: the fields a user
// contributed across prior screens, reconstructed on every request because
// the server holds no durable session. Contexts are sharded by flow_token
// with a bounded TTL; concurrent conversations never see each other's
// fields.
package flow

import (
	"log/slog"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// AnonymousToken is the context bucket used when a request carries no
// flow_token (the plaintext testing mode).
const AnonymousToken = "anonymous"

// Default expiration policy for idle conversations.
const (
	DefaultContextTTL   = 30 * time.Minute
	DefaultContextSweep = 5 * time.Minute
)

// ContextStore holds one field map per flow_token. The mutex serializes
// merges so two requests for the same token cannot write the same map
// concurrently.
type ContextStore struct {
	mu    sync.Mutex
	cache *gocache.Cache
}

// NewContextStore creates a context store with the given TTL and sweep
// interval; zero values select the defaults.
func NewContextStore(ttl, sweep time.Duration) *ContextStore {
	if ttl <= 0 {
		ttl = DefaultContextTTL
	}
	if sweep <= 0 {
		sweep = DefaultContextSweep
	}
	return &ContextStore{cache: gocache.New(ttl, sweep)}
}

// Merge writes the non-nil, non-placeholder fields of payload into the
// context for token, refreshing its TTL. Values that are themselves
// unresolved placeholders never enter the context.
func (cs *ContextStore) Merge(token string, payload map[string]interface{}) {
	if token == "" {
		token = AnonymousToken
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()

	ctx := cs.snapshotLocked(token)
	merged := 0
	for field, value := range payload {
		if value == nil || IsPlaceholder(value) {
			continue
		}
		ctx[field] = value
		merged++
	}
	cs.cache.SetDefault(token, ctx)
	if merged > 0 {
		slog.Debug("flow.ContextStore.Merge: fields merged", "flow_token", token, "count", merged)
	}
}

// Snapshot returns a copy of the context for token; mutating the result
// does not affect the store.
func (cs *ContextStore) Snapshot(token string) map[string]interface{} {
	if token == "" {
		token = AnonymousToken
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.snapshotLocked(token)
}

// Reset drops the context for token.
func (cs *ContextStore) Reset(token string) {
	if token == "" {
		token = AnonymousToken
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.cache.Delete(token)
}

func (cs *ContextStore) snapshotLocked(token string) map[string]interface{} {
	out := make(map[string]interface{})
	if v, ok := cs.cache.Get(token); ok {
		if stored, ok := v.(map[string]interface{}); ok {
			for k, val := range stored {
				out[k] = val
			}
		}
	}
	return out
}
