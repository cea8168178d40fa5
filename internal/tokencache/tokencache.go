// Package tokencache holds the Token Cache and Project Cache: small
// in-memory maps keyed by account email that spare the Dispatcher a token
// refresh or a project-discovery round trip on every request.
package tokencache

import (
	"sync"
	"time"
)

// refreshSafetyMarginMs is subtracted from a token's reported lifetime when
// it's cached, so a token is never handed out right as it's about to
// expire mid-flight.
const refreshSafetyMarginMs = 60 * 1000

// TokenEntry is a cached access token together with its expiry.
type TokenEntry struct {
	AccessToken string
	ExpiresAt   time.Time
}

// TokenCache is a concurrency-safe email -> TokenEntry map. An entry is
// returned by Get only while it's still valid; once it's expired the
// caller re-authenticates and calls Set again.
type TokenCache struct {
	mu      sync.RWMutex
	entries map[string]TokenEntry
}

// NewTokenCache creates an empty TokenCache.
func NewTokenCache() *TokenCache {
	return &TokenCache{entries: make(map[string]TokenEntry)}
}

// Get returns the cached access token for email, and whether it is still
// valid (i.e. hasn't hit its expiry, including the safety margin baked in
// by Set).
func (c *TokenCache) Get(email string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[email]
	if !ok {
		return "", false
	}
	if time.Now().After(entry.ExpiresAt) {
		return "", false
	}
	return entry.AccessToken, true
}

// Set caches accessToken for email, expiring it expiresInSeconds from now
// minus a fixed safety margin.
func (c *TokenCache) Set(email, accessToken string, expiresInSeconds int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	lifetime := time.Duration(expiresInSeconds)*time.Second - refreshSafetyMarginMs*time.Millisecond
	if lifetime < 0 {
		lifetime = 0
	}
	c.entries[email] = TokenEntry{
		AccessToken: accessToken,
		ExpiresAt:   time.Now().Add(lifetime),
	}
}

// Clear drops the cached token for email, if any.
func (c *TokenCache) Clear(email string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, email)
}

// ClearAll drops every cached token.
func (c *TokenCache) ClearAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]TokenEntry)
}

// ProjectCache is a concurrency-safe email -> Cloud project ID map. Unlike
// TokenCache it has no expiry: a project ID, once discovered, doesn't go
// stale the way a token does.
type ProjectCache struct {
	mu      sync.RWMutex
	entries map[string]string
}

// NewProjectCache creates an empty ProjectCache.
func NewProjectCache() *ProjectCache {
	return &ProjectCache{entries: make(map[string]string)}
}

// Get returns the cached project ID for email, if any.
func (c *ProjectCache) Get(email string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	projectID, ok := c.entries[email]
	return projectID, ok
}

// Set caches projectID for email.
func (c *ProjectCache) Set(email, projectID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[email] = projectID
}

// Clear drops the cached project ID for email, if any.
func (c *ProjectCache) Clear(email string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, email)
}

// ClearAll drops every cached project ID.
func (c *ProjectCache) ClearAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]string)
}
