// Package cache provides a time-bounded key/value store for upstream lookup
// results. Entries are shared across gateway sessions because the underlying
// Lightdash data is organization-scoped, not session-scoped.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"sync"
	"time"
)

// Class groups operations by how quickly their upstream data changes.
// TTL is a property of the class, never of the call site.
type Class string

const (
	// ClassSchema covers explore/metric schema lookups. Long-lived.
	ClassSchema Class = "schema"
	// ClassListing covers project/chart/dashboard listings.
	ClassListing Class = "listing"
	// ClassSearch covers catalog search results.
	ClassSearch Class = "search"
	// ClassNone marks operations that are never cached.
	ClassNone Class = "none"
)

// TTLPolicy maps cache classes to their time-to-live.
type TTLPolicy struct {
	Schema  time.Duration
	Listing time.Duration
	Search  time.Duration
}

// DefaultTTLPolicy returns the default TTLs: schema lookups live for tens of
// minutes, search and listing lookups for single-digit minutes. Nothing is
// cached indefinitely.
func DefaultTTLPolicy() TTLPolicy {
	return TTLPolicy{
		Schema:  30 * time.Minute,
		Listing: 5 * time.Minute,
		Search:  3 * time.Minute,
	}
}

// For returns the TTL for a class. ClassNone yields zero.
func (p TTLPolicy) For(class Class) time.Duration {
	switch class {
	case ClassSchema:
		return p.Schema
	case ClassListing:
		return p.Listing
	case ClassSearch:
		return p.Search
	default:
		return 0
	}
}

// Entry is a cached value with its expiry bookkeeping.
type Entry struct {
	Value    any
	StoredAt time.Time
	TTL      time.Duration
}

// expiresAt is StoredAt + TTL.
func (e *Entry) expiresAt() time.Time {
	return e.StoredAt.Add(e.TTL)
}

// Store is a TTL-bounded key/value store. Expired entries behave identically
// to absent ones; they are skipped lazily on read and removed by Sweep.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	now     func() time.Time

	hits   uint64
	misses uint64
}

// Option configures a Store.
type Option func(*Store)

// WithClock injects a clock, used by tests to cross TTL boundaries without
// sleeping.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		entries: make(map[string]*Entry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the cached value for key, or ok=false for missing or expired
// keys. No stale value is ever returned past expiry.
func (s *Store) Get(key string) (any, bool) {
	s.mu.RLock()
	entry, exists := s.entries[key]
	now := s.now()
	s.mu.RUnlock()

	if !exists || now.After(entry.expiresAt()) {
		s.mu.Lock()
		if exists {
			// Recheck under the write lock; a fresher Set may have replaced it.
			if cur, ok := s.entries[key]; ok && s.now().After(cur.expiresAt()) {
				delete(s.entries, key)
			}
		}
		s.misses++
		s.mu.Unlock()
		return nil, false
	}

	s.mu.Lock()
	s.hits++
	s.mu.Unlock()
	return entry.Value, true
}

// Set stores value under key with the given TTL. Unconditional overwrite,
// last writer wins. A non-positive TTL is a no-op.
func (s *Store) Set(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = &Entry{
		Value:    value,
		StoredAt: s.now(),
		TTL:      ttl,
	}
}

// Invalidate removes key immediately. Exists for future write operations;
// no read-only operation calls it today.
func (s *Store) Invalidate(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

// Sweep removes all expired entries and returns how many were removed.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for key, entry := range s.entries {
		if now.After(entry.expiresAt()) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}

// Size returns the number of entries, including not-yet-swept expired ones.
func (s *Store) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Stats returns hit/miss counters and current size.
func (s *Store) Stats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return map[string]any{
		"size":   len(s.entries),
		"hits":   s.hits,
		"misses": s.misses,
	}
}

// Key derives a deterministic cache key from an operation name and its
// arguments. Two argument maps that are semantically equal produce the same
// key regardless of map iteration order: the arguments are canonicalized
// before hashing.
func Key(operation string, args map[string]any) string {
	canonical := canonicalize(args)
	payload, err := json.Marshal(canonical)
	if err != nil {
		// Arguments arrive from JSON, so they always re-marshal; this branch
		// exists for safety only.
		payload = []byte(operation)
	}

	sum := sha256.Sum256(append([]byte(operation+"\x00"), payload...))
	return operation + ":" + hex.EncodeToString(sum[:16])
}

// canonicalize rewrites the value into a shape whose JSON encoding is stable:
// maps become sorted key/value pair lists, so nested map ordering cannot leak
// into the hash.
func canonicalize(v any) any {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := make([]any, 0, len(keys)*2)
		for _, k := range keys {
			pairs = append(pairs, k, canonicalize(val[k]))
		}
		return pairs
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = canonicalize(item)
		}
		return out
	default:
		return v
	}
}
