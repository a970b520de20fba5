package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func TestLRUSetGetDelete(t *testing.T) {
	c := NewLRUCache(100)
	defer c.Close()
	ctx := context.Background()

	if err := c.Set(ctx, "k1", []byte("v1"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}

	val, err := c.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(val) != "v1" {
		t.Errorf("expected v1, got %s", val)
	}

	if err := c.Delete(ctx, "k1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	val, err = c.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("Get after delete: %v", err)
	}
	if val != nil {
		t.Errorf("expected miss after delete, got %s", val)
	}
}

func TestLRUExpiration(t *testing.T) {
	c := NewLRUCache(100)
	defer c.Close()
	ctx := context.Background()

	if err := c.Set(ctx, "short", []byte("v"), 10*time.Millisecond); err != nil {
		t.Fatalf("Set: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	val, err := c.Get(ctx, "short")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if val != nil {
		t.Error("expected expired entry to miss")
	}
}

func TestLRUEviction(t *testing.T) {
	c := NewLRUCache(3)
	defer c.Close()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		key := fmt.Sprintf("k%d", i)
		if err := c.Set(ctx, key, []byte(key), time.Minute); err != nil {
			t.Fatalf("Set: %v", err)
		}
	}

	size, capacity := c.Stats()
	if size != 3 || capacity != 3 {
		t.Errorf("expected size 3/3, got %d/%d", size, capacity)
	}

	// Oldest entries are evicted first.
	if val, _ := c.Get(ctx, "k0"); val != nil {
		t.Error("expected k0 evicted")
	}
	if val, _ := c.Get(ctx, "k4"); val == nil {
		t.Error("expected k4 present")
	}
}

func TestEmbeddingRoundTrip(t *testing.T) {
	c := NewLRUCache(100)
	defer c.Close()
	ctx := context.Background()

	vec := []float32{0.1, 0.2, 0.3}
	if err := c.SetEmbedding(ctx, "digest-1", vec, time.Minute); err != nil {
		t.Fatalf("SetEmbedding: %v", err)
	}

	got, err := c.GetEmbedding(ctx, "digest-1")
	if err != nil {
		t.Fatalf("GetEmbedding: %v", err)
	}
	if len(got) != 3 || got[1] != 0.2 {
		t.Errorf("unexpected vector %v", got)
	}

	// A plain key does not collide with the embedding namespace.
	if val, _ := c.Get(ctx, "digest-1"); val != nil {
		t.Error("embedding leaked into plain key namespace")
	}
}

func TestEmbeddingMiss(t *testing.T) {
	c := NewLRUCache(100)
	defer c.Close()

	vec, err := c.GetEmbedding(context.Background(), "unknown")
	if err != nil {
		t.Fatalf("GetEmbedding: %v", err)
	}
	if vec != nil {
		t.Errorf("expected nil on miss, got %v", vec)
	}
}

func TestIncrementCounterWindow(t *testing.T) {
	c := NewLRUCache(100)
	defer c.Close()
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		got, err := c.IncrementCounter(ctx, "velocity:user-123", 50*time.Millisecond)
		if err != nil {
			t.Fatalf("IncrementCounter: %v", err)
		}
		if got != want {
			t.Errorf("expected %d, got %d", want, got)
		}
	}

	// A fresh window restarts the count.
	time.Sleep(60 * time.Millisecond)
	got, err := c.IncrementCounter(ctx, "velocity:user-123", 50*time.Millisecond)
	if err != nil {
		t.Fatalf("IncrementCounter: %v", err)
	}
	if got != 1 {
		t.Errorf("expected window reset to 1, got %d", got)
	}
}

func TestNewUnsupportedType(t *testing.T) {
	if _, err := New(domain.CacheConfig{Type: "memcached"}); err == nil {
		t.Fatal("expected error for unsupported type")
	}
	if _, err := New(domain.CacheConfig{Type: "memory"}); err != nil {
		t.Fatalf("memory cache: %v", err)
	}
}
