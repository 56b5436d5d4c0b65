package cache

import (
	"context"
	"testing"
	"time"

	"github.com/opensource-commerce/kestrel/internal/domain"
)

func TestLRUCache(t *testing.T) {
	cache := NewLRUCache(100)
	ctx := context.Background()
	merchantID := "merchant-001"

	t.Run("SetAndGet", func(t *testing.T) {
		err := cache.Set(ctx, merchantID, "key1", []byte("value1"), time.Minute)
		if err != nil {
			t.Fatalf("Set failed: %v", err)
		}

		val, err := cache.Get(ctx, merchantID, "key1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}

		if string(val) != "value1" {
			t.Errorf("expected 'value1', got '%s'", string(val))
		}
	})

	t.Run("GetMiss", func(t *testing.T) {
		val, err := cache.Get(ctx, merchantID, "nonexistent")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if val != nil {
			t.Errorf("expected nil for cache miss, got: %v", val)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		_ = cache.Set(ctx, merchantID, "key2", []byte("value2"), time.Minute)

		err := cache.Delete(ctx, merchantID, "key2")
		if err != nil {
			t.Fatalf("Delete failed: %v", err)
		}

		val, _ := cache.Get(ctx, merchantID, "key2")
		if val != nil {
			t.Error("expected nil after delete")
		}
	})

	t.Run("TTLExpiration", func(t *testing.T) {
		_ = cache.Set(ctx, merchantID, "expiring", []byte("temp"), 10*time.Millisecond)

		// Should be available immediately
		val, _ := cache.Get(ctx, merchantID, "expiring")
		if val == nil {
			t.Fatal("expected value before TTL expiry")
		}

		time.Sleep(20 * time.Millisecond)

		val, _ = cache.Get(ctx, merchantID, "expiring")
		if val != nil {
			t.Error("expected nil after TTL expiry")
		}
	})

	t.Run("MerchantIsolation", func(t *testing.T) {
		_ = cache.Set(ctx, "merchant-a", "shared-key", []byte("a"), time.Minute)
		_ = cache.Set(ctx, "merchant-b", "shared-key", []byte("b"), time.Minute)

		val, _ := cache.Get(ctx, "merchant-a", "shared-key")
		if string(val) != "a" {
			t.Errorf("merchant-a value = %q, want a", string(val))
		}
		val, _ = cache.Get(ctx, "merchant-b", "shared-key")
		if string(val) != "b" {
			t.Errorf("merchant-b value = %q, want b", string(val))
		}
	})

	t.Run("MissingMerchantID", func(t *testing.T) {
		if _, err := cache.Get(ctx, "", "key"); err == nil {
			t.Error("expected error for empty merchantID")
		}
	})
}

func TestLRUCacheEviction(t *testing.T) {
	cache := NewLRUCache(3)
	ctx := context.Background()
	merchantID := "merchant-001"

	_ = cache.Set(ctx, merchantID, "k1", []byte("1"), time.Minute)
	_ = cache.Set(ctx, merchantID, "k2", []byte("2"), time.Minute)
	_ = cache.Set(ctx, merchantID, "k3", []byte("3"), time.Minute)

	// Touch k1 so k2 becomes the oldest
	_, _ = cache.Get(ctx, merchantID, "k1")

	_ = cache.Set(ctx, merchantID, "k4", []byte("4"), time.Minute)

	if val, _ := cache.Get(ctx, merchantID, "k2"); val != nil {
		t.Error("expected k2 evicted as least recently used")
	}
	if val, _ := cache.Get(ctx, merchantID, "k1"); val == nil {
		t.Error("expected k1 retained after recent use")
	}

	size, capacity := cache.Stats()
	if size != 3 || capacity != 3 {
		t.Errorf("stats = (%d, %d), want (3, 3)", size, capacity)
	}
}

func TestLRUCachePolicy(t *testing.T) {
	cache := NewLRUCache(100)
	ctx := context.Background()
	merchantID := "merchant-001"

	policy := domain.DefaultPolicy()
	policy.AutoApproveThreshold = 85

	if err := cache.SetPolicy(ctx, merchantID, &policy, time.Minute); err != nil {
		t.Fatalf("SetPolicy failed: %v", err)
	}

	got, err := cache.GetPolicy(ctx, merchantID)
	if err != nil {
		t.Fatalf("GetPolicy failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected cached policy")
	}
	if got.AutoApproveThreshold != 85 {
		t.Errorf("autoApproveThreshold = %v, want 85", got.AutoApproveThreshold)
	}

	// A merchant with no cached policy misses cleanly.
	got, err = cache.GetPolicy(ctx, "other-merchant")
	if err != nil {
		t.Fatalf("GetPolicy miss failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil policy for uncached merchant, got %+v", got)
	}
}

func TestLRUCacheCounter(t *testing.T) {
	cache := NewLRUCache(100)
	ctx := context.Background()
	merchantID := "merchant-001"

	for want := int64(1); want <= 3; want++ {
		n, err := cache.IncrementCounter(ctx, merchantID, "buyer-42", time.Minute)
		if err != nil {
			t.Fatalf("IncrementCounter failed: %v", err)
		}
		if n != want {
			t.Errorf("counter = %d, want %d", n, want)
		}
	}

	t.Run("WindowReset", func(t *testing.T) {
		n, _ := cache.IncrementCounter(ctx, merchantID, "short", 10*time.Millisecond)
		if n != 1 {
			t.Fatalf("counter = %d, want 1", n)
		}
		time.Sleep(20 * time.Millisecond)

		n, _ = cache.IncrementCounter(ctx, merchantID, "short", 10*time.Millisecond)
		if n != 1 {
			t.Errorf("counter = %d, want 1 after window expiry", n)
		}
	})
}
