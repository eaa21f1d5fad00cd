package cache

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeCache is a scriptable in-memory cache for layered tests.
type fakeCache struct {
	mu       sync.Mutex
	data     map[string][]byte
	getErr   error
	setErr   error
	getCalls int
	setCalls int
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: make(map[string][]byte)}
}

func (f *fakeCache) Get(ctx context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	if f.getErr != nil {
		return nil, f.getErr
	}
	val, ok := f.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return val, nil
}

func (f *fakeCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setCalls++
	if f.setErr != nil {
		return f.setErr
	}
	f.data[key] = value
	return nil
}

func (f *fakeCache) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, key)
	return nil
}

func (f *fakeCache) Close() error { return nil }

func TestLayeredCache_L1Hit(t *testing.T) {
	l1, l2 := newFakeCache(), newFakeCache()
	lc := NewLayeredCache(l1, l2, time.Minute)
	ctx := context.Background()

	l1.data["k"] = []byte("v")

	got, err := lc.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !bytes.Equal(got, []byte("v")) {
		t.Errorf("Get = %q, want v", got)
	}
	if l2.getCalls != 0 {
		t.Error("L1 hit should not touch L2")
	}
}

func TestLayeredCache_L2HitBackfillsL1(t *testing.T) {
	l1, l2 := newFakeCache(), newFakeCache()
	lc := NewLayeredCache(l1, l2, time.Minute)
	ctx := context.Background()

	l2.data["k"] = []byte("v")

	got, err := lc.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !bytes.Equal(got, []byte("v")) {
		t.Errorf("Get = %q, want v", got)
	}

	// Backfilled: the next read is served by L1.
	if _, ok := l1.data["k"]; !ok {
		t.Error("L2 hit did not backfill L1")
	}
}

func TestLayeredCache_Miss(t *testing.T) {
	lc := NewLayeredCache(newFakeCache(), newFakeCache(), time.Minute)

	if _, err := lc.Get(context.Background(), "absent"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestLayeredCache_SetWritesThrough(t *testing.T) {
	l1, l2 := newFakeCache(), newFakeCache()
	lc := NewLayeredCache(l1, l2, time.Minute)

	if err := lc.Set(context.Background(), "k", []byte("v"), time.Hour); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	if _, ok := l1.data["k"]; !ok {
		t.Error("Set did not reach L1")
	}
	if _, ok := l2.data["k"]; !ok {
		t.Error("Set did not reach L2")
	}
}

func TestLayeredCache_SetSurvivesOneLayerFailure(t *testing.T) {
	l1, l2 := newFakeCache(), newFakeCache()
	l2.setErr = errors.New("redis down")
	lc := NewLayeredCache(l1, l2, time.Minute)

	if err := lc.Set(context.Background(), "k", []byte("v"), time.Hour); err != nil {
		t.Errorf("Set should succeed with one healthy layer, got %v", err)
	}
}

func TestLayeredCache_SetFailsWhenBothFail(t *testing.T) {
	l1, l2 := newFakeCache(), newFakeCache()
	l1.setErr = errors.New("oom")
	l2.setErr = errors.New("redis down")
	lc := NewLayeredCache(l1, l2, time.Minute)

	if err := lc.Set(context.Background(), "k", []byte("v"), time.Hour); err == nil {
		t.Error("Set should fail when both layers fail")
	}
}

func TestLayeredCache_L2ErrorPropagates(t *testing.T) {
	l1, l2 := newFakeCache(), newFakeCache()
	l2.getErr = errors.New("redis down")
	lc := NewLayeredCache(l1, l2, time.Minute)

	_, err := lc.Get(context.Background(), "k")
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Errorf("expected transport error, got %v", err)
	}
}
