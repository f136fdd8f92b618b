package cache

import (
	"testing"
	"time"
)

func TestCache_GetSetDelete(t *testing.T) {
	c := New[int](time.Minute)

	if _, ok := c.Get("a"); ok {
		t.Fatalf("expected miss on empty cache")
	}

	c.Set("a", 1)
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Fatalf("got %d %v, want 1 true", v, ok)
	}

	c.Delete("a")
	if _, ok := c.Get("a"); ok {
		t.Fatalf("expected miss after delete")
	}
}

func TestCache_Expiry(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := New[string](10 * time.Second)
	c.now = func() time.Time { return now }

	c.Set("ttl", "x")
	c.SetUntil("bounded", "y", now.Add(2*time.Second))

	now = now.Add(3 * time.Second)
	if _, ok := c.Get("bounded"); ok {
		t.Fatalf("bounded entry should have expired")
	}
	if _, ok := c.Get("ttl"); !ok {
		t.Fatalf("ttl entry should still be present")
	}

	now = now.Add(10 * time.Second)
	if _, ok := c.Get("ttl"); ok {
		t.Fatalf("ttl entry should have expired")
	}
	if c.Len() != 0 {
		t.Fatalf("expired entries should be evicted on read, len=%d", c.Len())
	}
}

func TestCache_Clear(t *testing.T) {
	c := New[int](time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Clear()

	if c.Len() != 0 {
		t.Fatalf("expected empty cache after clear")
	}
}
