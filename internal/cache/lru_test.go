package cache

import (
	"strings"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestCache(maxSize int, ttl time.Duration) (*LRUCache[string], *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewLRUCache[string](maxSize, ttl)
	c.now = clock.now
	return c, clock
}

func TestLRUCacheGetSet(t *testing.T) {
	c, _ := newTestCache(4, time.Minute)
	c.Set("a", "1")

	got, ok := c.Get("a")
	if !ok || got != "1" {
		t.Fatalf("expected hit with 1, got %q ok=%v", got, ok)
	}
	if _, ok := c.Get("missing"); ok {
		t.Fatal("expected miss")
	}
}

func TestLRUCacheExpiration(t *testing.T) {
	c, clock := newTestCache(4, 100*time.Millisecond)
	c.Set("a", "1")

	clock.advance(50 * time.Millisecond)
	if _, ok := c.Get("a"); !ok {
		t.Fatal("entry should still be valid")
	}

	clock.advance(100 * time.Millisecond)
	if _, ok := c.Get("a"); ok {
		t.Fatal("entry should be expired after TTL")
	}
	if c.Size() != 0 {
		t.Fatalf("expired entry should be removed on read, size=%d", c.Size())
	}
}

func TestLRUCacheZeroTTLNeverHits(t *testing.T) {
	c, _ := newTestCache(4, 0)
	c.Set("a", "1")
	if _, ok := c.Get("a"); ok {
		t.Fatal("zero TTL should disable caching")
	}
}

func TestLRUCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c, _ := newTestCache(2, time.Minute)
	c.Set("a", "1")
	c.Set("b", "2")
	c.Get("a")
	c.Set("c", "3")

	if _, ok := c.Get("b"); ok {
		t.Fatal("b should have been evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Fatal("a was used recently and should remain")
	}
	if c.Size() != 2 {
		t.Fatalf("expected size 2, got %d", c.Size())
	}
}

func TestLRUCacheDeleteFunc(t *testing.T) {
	c, _ := newTestCache(10, time.Minute)
	c.Set("page:g1:1", "x")
	c.Set("page:g1:2", "x")
	c.Set("page:g2:1", "x")
	c.Set("groups", "x")

	removed := c.DeleteFunc(func(key string) bool { return strings.HasPrefix(key, "page:g1:") })
	if removed != 2 {
		t.Fatalf("expected 2 removed, got %d", removed)
	}
	if _, ok := c.Get("page:g2:1"); !ok {
		t.Fatal("other group's page should remain")
	}
	if _, ok := c.Get("groups"); !ok {
		t.Fatal("group list should remain")
	}
}

func TestLRUCacheCleanExpired(t *testing.T) {
	c, clock := newTestCache(10, time.Second)
	c.Set("a", "1")
	clock.advance(500 * time.Millisecond)
	c.Set("b", "2")
	clock.advance(600 * time.Millisecond)

	if n := c.CleanExpired(); n != 1 {
		t.Fatalf("expected 1 expired entry, got %d", n)
	}
	if _, ok := c.Get("b"); !ok {
		t.Fatal("b should still be cached")
	}
}

func TestManagerStop(t *testing.T) {
	m := NewManager(nil)
	m.Register(NewLRUCache[int](1, time.Millisecond))
	m.StartCleanup(time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	m.Stop()
	m.Stop()
}
