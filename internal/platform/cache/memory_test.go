package cache

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryCache_SetGet(t *testing.T) {
	c := NewMemoryCache(10)
	defer c.Close()
	ctx := context.Background()

	if err := c.Set(ctx, "k1", []byte("v1"), time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, err := c.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !bytes.Equal(got, []byte("v1")) {
		t.Errorf("Get = %q, want v1", got)
	}
}

func TestMemoryCache_MissingKey(t *testing.T) {
	c := NewMemoryCache(10)
	defer c.Close()

	if _, err := c.Get(context.Background(), "absent"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryCache_TTLExpiry(t *testing.T) {
	c := NewMemoryCache(10)
	defer c.Close()
	ctx := context.Background()

	c.Set(ctx, "k1", []byte("v1"), 20*time.Millisecond)
	time.Sleep(30 * time.Millisecond)

	if _, err := c.Get(ctx, "k1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected expiry, got %v", err)
	}
}

func TestMemoryCache_LRUEviction(t *testing.T) {
	c := NewMemoryCache(2)
	defer c.Close()
	ctx := context.Background()

	c.Set(ctx, "k1", []byte("v1"), time.Minute)
	c.Set(ctx, "k2", []byte("v2"), time.Minute)

	// Touch k1 so k2 becomes the eviction candidate.
	c.Get(ctx, "k1")

	c.Set(ctx, "k3", []byte("v3"), time.Minute)

	if _, err := c.Get(ctx, "k2"); !errors.Is(err, ErrNotFound) {
		t.Error("k2 should have been evicted")
	}
	if _, err := c.Get(ctx, "k1"); err != nil {
		t.Error("k1 should have survived")
	}
	if _, err := c.Get(ctx, "k3"); err != nil {
		t.Error("k3 should be present")
	}
}

func TestMemoryCache_Overwrite(t *testing.T) {
	c := NewMemoryCache(10)
	defer c.Close()
	ctx := context.Background()

	c.Set(ctx, "k1", []byte("v1"), time.Minute)
	c.Set(ctx, "k1", []byte("v2"), time.Minute)

	got, _ := c.Get(ctx, "k1")
	if !bytes.Equal(got, []byte("v2")) {
		t.Errorf("Get = %q, want v2", got)
	}
	if c.Len() != 1 {
		t.Errorf("Len = %d, want 1", c.Len())
	}
}

func TestMemoryCache_Delete(t *testing.T) {
	c := NewMemoryCache(10)
	defer c.Close()
	ctx := context.Background()

	c.Set(ctx, "k1", []byte("v1"), time.Minute)
	c.Delete(ctx, "k1")

	if _, err := c.Get(ctx, "k1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}
