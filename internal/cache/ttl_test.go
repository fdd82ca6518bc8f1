package cache

import (
	"testing"
	"time"
)

func TestTTLGetSet(t *testing.T) {
	c := NewTTL[int](time.Minute)

	if _, ok := c.Get("missing"); ok {
		t.Error("Get on empty cache returned ok")
	}

	c.Set("a", 42)
	got, ok := c.Get("a")
	if !ok || got != 42 {
		t.Errorf("Get = (%d, %v), want (42, true)", got, ok)
	}
	if c.Size() != 1 {
		t.Errorf("Size = %d, want 1", c.Size())
	}
}

func TestTTLExpiry(t *testing.T) {
	c := NewTTL[string](10 * time.Millisecond)
	c.Set("a", "x")

	time.Sleep(20 * time.Millisecond)
	if _, ok := c.Get("a"); ok {
		t.Error("expired entry still returned")
	}
}

func TestTTLInvalidate(t *testing.T) {
	c := NewTTL[string](time.Minute)
	c.Set("a", "x")
	c.Invalidate("a")
	if _, ok := c.Get("a"); ok {
		t.Error("invalidated entry still returned")
	}
}
