package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

// fakeClock is a manually advanced clock for TTL boundary tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestStoreSetGet(t *testing.T) {
	store := New()

	store.Set("key1", "value1", 5*time.Minute)
	val, ok := store.Get("key1")
	if !ok {
		t.Fatal("expected to find key1")
	}
	if val != "value1" {
		t.Errorf("expected value1, got %v", val)
	}

	_, ok = store.Get("nonexistent")
	if ok {
		t.Error("expected not to find nonexistent key")
	}
}

func TestStoreTTLBoundary(t *testing.T) {
	clock := newFakeClock()
	store := New(WithClock(clock.Now))

	store.Set("schema", "explore payload", 30*time.Minute)

	// Just before expiry the value is still served.
	clock.Advance(30*time.Minute - time.Millisecond)
	if _, ok := store.Get("schema"); !ok {
		t.Error("entry should still be live just before TTL elapses")
	}

	// Just past expiry it behaves identically to absent.
	clock.Advance(2 * time.Millisecond)
	if _, ok := store.Get("schema"); ok {
		t.Error("entry must not be returned past expiry")
	}
}

func TestStoreOverwriteLastWriterWins(t *testing.T) {
	store := New()

	store.Set("k", "old", time.Minute)
	store.Set("k", "new", time.Minute)

	val, ok := store.Get("k")
	if !ok || val != "new" {
		t.Errorf("expected overwrite to win, got %v (ok=%t)", val, ok)
	}
}

func TestStoreInvalidate(t *testing.T) {
	store := New()

	store.Set("k1", "v1", time.Minute)
	store.Set("k2", "v2", time.Minute)
	store.Invalidate("k1")

	if _, ok := store.Get("k1"); ok {
		t.Error("expected k1 to be invalidated")
	}
	if _, ok := store.Get("k2"); !ok {
		t.Error("expected k2 to survive")
	}

	// Invalidating an absent key is not an error.
	store.Invalidate("never-existed")
}

func TestStoreSweep(t *testing.T) {
	clock := newFakeClock()
	store := New(WithClock(clock.Now))

	store.Set("short", 1, time.Minute)
	store.Set("long", 2, time.Hour)

	clock.Advance(2 * time.Minute)

	removed := store.Sweep()
	if removed != 1 {
		t.Errorf("Sweep removed %d entries, want 1", removed)
	}
	if store.Size() != 1 {
		t.Errorf("Size = %d after sweep, want 1", store.Size())
	}
	if _, ok := store.Get("long"); !ok {
		t.Error("unexpired entry should survive the sweep")
	}
}

func TestStoreZeroTTLNotStored(t *testing.T) {
	store := New()
	store.Set("k", "v", 0)
	if _, ok := store.Get("k"); ok {
		t.Error("zero-TTL set must not store anything")
	}
}

func TestKeyDeterministicAcrossArgOrder(t *testing.T) {
	// Semantically identical argument maps, built in different orders.
	a := map[string]any{
		"projectUuid": "p-1",
		"exploreId":   "orders",
		"filters":     map[string]any{"status": "completed", "region": "emea"},
	}
	b := map[string]any{
		"filters":     map[string]any{"region": "emea", "status": "completed"},
		"exploreId":   "orders",
		"projectUuid": "p-1",
	}

	if Key("get_explore", a) != Key("get_explore", b) {
		t.Error("equal argument maps must derive the same cache key")
	}
}

func TestKeyDistinguishesOperationsAndArgs(t *testing.T) {
	args := map[string]any{"projectUuid": "p-1"}

	if Key("list_charts", args) == Key("list_dashboards", args) {
		t.Error("different operations must derive different keys")
	}
	if Key("list_charts", args) == Key("list_charts", map[string]any{"projectUuid": "p-2"}) {
		t.Error("different arguments must derive different keys")
	}
}

func TestKeyNestedStructures(t *testing.T) {
	values := map[string]bool{"a": true, "b": true, "c": false}
	mk := func(order []string) map[string]any {
		inner := map[string]any{}
		for _, k := range order {
			inner[k] = values[k]
		}
		return map[string]any{
			"metrics":    []any{"orders_total", "orders_count"},
			"dimensions": inner,
		}
	}

	k1 := Key("run_query", mk([]string{"a", "b", "c"}))
	k2 := Key("run_query", mk([]string{"c", "b", "a"}))
	if k1 != k2 {
		t.Error("nested map ordering must not affect the key")
	}

	// Array order is significant.
	reordered := map[string]any{
		"metrics":    []any{"orders_count", "orders_total"},
		"dimensions": map[string]any{"a": true, "b": true, "c": false},
	}
	if Key("run_query", mk([]string{"a", "b", "c"})) == Key("run_query", reordered) {
		t.Error("array element order is semantic and must affect the key")
	}
}

func TestTTLPolicyFor(t *testing.T) {
	policy := DefaultTTLPolicy()

	if policy.For(ClassSchema) <= policy.For(ClassSearch) {
		t.Error("schema TTL should exceed search TTL")
	}
	if policy.For(ClassNone) != 0 {
		t.Error("ClassNone must have zero TTL")
	}
}

func TestStoreConcurrentAccess(t *testing.T) {
	store := New()
	var wg sync.WaitGroup

	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("k%d", j%7)
				store.Set(key, n, time.Minute)
				store.Get(key)
				if j%25 == 0 {
					store.Invalidate(key)
				}
			}
		}(i)
	}
	wg.Wait()
}
