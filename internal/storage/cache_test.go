package storage

import (
	"fmt"
	"testing"
	"time"
)

func TestCacheSetGet(t *testing.T) {
	cache := NewCache[string](10, time.Minute)

	cache.Set("a", "alpha")
	got, found := cache.Get("a")
	if !found {
		t.Fatal("Get() miss for existing key")
	}
	if got != "alpha" {
		t.Errorf("Get() = %q, want %q", got, "alpha")
	}

	if _, found := cache.Get("missing"); found {
		t.Error("Get() hit for missing key")
	}
}

func TestCacheExpiry(t *testing.T) {
	cache := NewCache[int](10, 10*time.Millisecond)

	cache.Set("n", 42)
	if _, found := cache.Get("n"); !found {
		t.Fatal("Get() miss before TTL")
	}

	time.Sleep(20 * time.Millisecond)

	if _, found := cache.Get("n"); found {
		t.Error("Get() hit after TTL")
	}
}

func TestCacheEviction(t *testing.T) {
	cache := NewCache[int](3, time.Minute)

	for i := 0; i < 3; i++ {
		cache.Set(fmt.Sprintf("k%d", i), i)
	}

	// Touch k0 so k1 becomes the eviction candidate.
	cache.Get("k0")
	cache.Set("k3", 3)

	if cache.Len() != 3 {
		t.Errorf("Len() = %d, want 3", cache.Len())
	}
	if _, found := cache.Get("k1"); found {
		t.Error("least recently used entry survived eviction")
	}
	if _, found := cache.Get("k0"); !found {
		t.Error("recently used entry was evicted")
	}
}

func TestCacheDeleteAndClear(t *testing.T) {
	cache := NewCache[string](10, time.Minute)

	cache.Set("a", "alpha")
	cache.Set("b", "beta")

	cache.Delete("a")
	if _, found := cache.Get("a"); found {
		t.Error("Get() hit after Delete()")
	}

	cache.Clear()
	if cache.Len() != 0 {
		t.Errorf("Len() after Clear() = %d, want 0", cache.Len())
	}
}

func TestCacheCleanupExpired(t *testing.T) {
	cache := NewCache[int](10, 10*time.Millisecond)

	cache.Set("a", 1)
	cache.Set("b", 2)
	time.Sleep(20 * time.Millisecond)
	cache.Set("c", 3)

	removed := cache.CleanupExpired()
	if removed != 2 {
		t.Errorf("CleanupExpired() = %d, want 2", removed)
	}
	if cache.Len() != 1 {
		t.Errorf("Len() = %d, want 1", cache.Len())
	}
}

func TestCacheStats(t *testing.T) {
	cache := NewCache[string](5, time.Minute)
	cache.Set("a", "alpha")

	stats := cache.GetStats()
	if stats.Capacity != 5 {
		t.Errorf("Capacity = %d, want 5", stats.Capacity)
	}
	if stats.Size != 1 {
		t.Errorf("Size = %d, want 1", stats.Size)
	}
	if stats.TTL != time.Minute {
		t.Errorf("TTL = %v, want 1m", stats.TTL)
	}
}
