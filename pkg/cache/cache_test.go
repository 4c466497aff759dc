package cache

import (
	"context"
	"testing"
	"time"
)

func TestGoCache(t *testing.T) {
	config := LocalConfig{
		DefaultExpiration: 5 * time.Minute,
		CleanupInterval:   10 * time.Minute,
	}

	cache := NewGoCache(config)
	defer cache.Close()

	ctx := context.Background()

	t.Run("Set and Get", func(t *testing.T) {
		key := "test_key"
		value := "test_value"

		err := cache.Set(ctx, key, value, time.Minute)
		if err != nil {
			t.Errorf("Failed to set cache: %v", err)
		}

		if retrieved, exists := cache.Get(ctx, key); !exists {
			t.Error("Cache value not found")
		} else if retrieved != value {
			t.Errorf("Expected %v, got %v", value, retrieved)
		}
	})

	t.Run("Add is first-writer-wins", func(t *testing.T) {
		ok, err := cache.Add(ctx, "once", 1, time.Minute)
		if err != nil || !ok {
			t.Errorf("first Add should succeed, ok=%v err=%v", ok, err)
		}
		ok, err = cache.Add(ctx, "once", 2, time.Minute)
		if err != nil || ok {
			t.Errorf("second Add should be rejected, ok=%v err=%v", ok, err)
		}
	})

	t.Run("Expiration", func(t *testing.T) {
		_ = cache.Set(ctx, "short", "v", 20*time.Millisecond)
		time.Sleep(50 * time.Millisecond)
		if cache.Exists(ctx, "short") {
			t.Error("expired key should be gone")
		}
	})
}
