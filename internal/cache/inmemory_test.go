package cache

import (
	"context"
	"testing"
	"time"
)

func TestInMemory_SetAndGet(t *testing.T) {
	c := NewInMemory()
	defer c.Close()

	ctx := context.Background()
	if err := c.Set(ctx, "key1", []byte("value1"), time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	val, err := c.Get(ctx, "key1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(val) != "value1" {
		t.Fatalf("expected 'value1', got '%s'", string(val))
	}
}

func TestInMemory_GetMissing(t *testing.T) {
	c := NewInMemory()
	defer c.Close()

	if _, err := c.Get(context.Background(), "nonexistent"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got: %v", err)
	}
}

func TestInMemory_Expiry(t *testing.T) {
	c := NewInMemory()
	defer c.Close()

	ctx := context.Background()
	if err := c.Set(ctx, "expiring", []byte("value"), 10*time.Millisecond); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if _, err := c.Get(ctx, "expiring"); err != nil {
		t.Fatalf("Get failed immediately after set: %v", err)
	}

	time.Sleep(20 * time.Millisecond)

	if _, err := c.Get(ctx, "expiring"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound after expiry, got: %v", err)
	}
}

func TestInMemory_GetReturnsCopy(t *testing.T) {
	c := NewInMemory()
	defer c.Close()

	ctx := context.Background()
	c.Set(ctx, "k", []byte("abc"), time.Minute)

	first, _ := c.Get(ctx, "k")
	first[0] = 'X'

	second, _ := c.Get(ctx, "k")
	if string(second) != "abc" {
		t.Fatalf("stored value mutated through returned slice: %q", second)
	}
}

func TestInMemory_Delete(t *testing.T) {
	c := NewInMemory()
	defer c.Close()

	ctx := context.Background()
	c.Set(ctx, "del-key", []byte("value"), time.Minute)
	if err := c.Delete(ctx, "del-key"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := c.Get(ctx, "del-key"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound after delete, got: %v", err)
	}
	if err := c.Delete(ctx, "nonexistent"); err != nil {
		t.Fatalf("Delete of absent key should not fail: %v", err)
	}
}
