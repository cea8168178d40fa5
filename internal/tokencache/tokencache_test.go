package tokencache

import (
	"testing"
	"time"
)

func TestTokenCache_GetMissing(t *testing.T) {
	c := NewTokenCache()
	if _, ok := c.Get("a@x"); ok {
		t.Errorf("expected miss on empty cache")
	}
}

func TestTokenCache_SetThenGet(t *testing.T) {
	c := NewTokenCache()
	c.Set("a@x", "tok-123", 3600)

	got, ok := c.Get("a@x")
	if !ok || got != "tok-123" {
		t.Fatalf("Get() = (%q, %v), want (tok-123, true)", got, ok)
	}
}

func TestTokenCache_ExpiresWithSafetyMargin(t *testing.T) {
	c := NewTokenCache()
	// A 90s lifetime minus the 60s safety margin leaves the token valid
	// for only ~30s; back-date its expiry to simulate that having elapsed.
	c.mu.Lock()
	c.entries["a@x"] = TokenEntry{AccessToken: "tok", ExpiresAt: time.Now().Add(-1 * time.Millisecond)}
	c.mu.Unlock()

	if _, ok := c.Get("a@x"); ok {
		t.Errorf("expected token past its safety-margined expiry to be rejected")
	}
}

func TestTokenCache_SetBakesInSafetyMargin(t *testing.T) {
	c := NewTokenCache()
	c.Set("a@x", "tok", 61) // 61s TTL, 60s margin -> ~1s of real validity

	c.mu.RLock()
	expiresAt := c.entries["a@x"].ExpiresAt
	c.mu.RUnlock()

	remaining := time.Until(expiresAt)
	if remaining <= 0 || remaining > 2*time.Second {
		t.Errorf("expected ~1s of validity after the safety margin, got %v", remaining)
	}
}

func TestTokenCache_SetWithTTLBelowMarginExpiresImmediately(t *testing.T) {
	c := NewTokenCache()
	c.Set("a@x", "tok", 10) // 10s TTL < 60s margin

	if _, ok := c.Get("a@x"); ok {
		t.Errorf("expected a TTL shorter than the safety margin to expire immediately")
	}
}

func TestTokenCache_Clear(t *testing.T) {
	c := NewTokenCache()
	c.Set("a@x", "tok", 3600)
	c.Clear("a@x")

	if _, ok := c.Get("a@x"); ok {
		t.Errorf("expected Clear to evict the cached token")
	}
}

func TestTokenCache_ClearAll(t *testing.T) {
	c := NewTokenCache()
	c.Set("a@x", "tok-a", 3600)
	c.Set("b@x", "tok-b", 3600)
	c.ClearAll()

	if _, ok := c.Get("a@x"); ok {
		t.Errorf("expected ClearAll to evict a@x")
	}
	if _, ok := c.Get("b@x"); ok {
		t.Errorf("expected ClearAll to evict b@x")
	}
}

func TestProjectCache_SetGetClear(t *testing.T) {
	c := NewProjectCache()
	if _, ok := c.Get("a@x"); ok {
		t.Fatalf("expected miss on empty cache")
	}

	c.Set("a@x", "proj-1")
	got, ok := c.Get("a@x")
	if !ok || got != "proj-1" {
		t.Fatalf("Get() = (%q, %v), want (proj-1, true)", got, ok)
	}

	c.Clear("a@x")
	if _, ok := c.Get("a@x"); ok {
		t.Errorf("expected Clear to evict the cached project")
	}
}

func TestProjectCache_ClearAll(t *testing.T) {
	c := NewProjectCache()
	c.Set("a@x", "proj-a")
	c.Set("b@x", "proj-b")
	c.ClearAll()

	if _, ok := c.Get("a@x"); ok {
		t.Errorf("expected ClearAll to evict a@x")
	}
	if _, ok := c.Get("b@x"); ok {
		t.Errorf("expected ClearAll to evict b@x")
	}
}
