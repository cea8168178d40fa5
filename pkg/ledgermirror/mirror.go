// Package ledgermirror gives a fleet of gateway processes an advisory,
// best-effort view of each other's rate-limit cooldowns and in-flight
// OAuth authorization attempts via a shared Redis instance. Nothing in
// this package is ever load-bearing for correctness: the in-memory
// Rate-Limit Ledger and the in-process pending-OAuth-state map remain
// authoritative, and every write here is fire-and-forget.
package ledgermirror

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefixCooldown     = "antigravity:ledger:"
	keyPrefixPendingOAuth = "antigravity:oauth-pending:"
)

// Client wraps a Redis connection used purely as a cross-process hint
// store.
type Client struct {
	rdb *redis.Client
}

// Config is the connection configuration for Client.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// NewClient connects to Redis and verifies the connection with a ping.
func NewClient(cfg Config) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ledgermirror: connect: %w", err)
	}
	return &Client{rdb: rdb}, nil
}

// Close closes the underlying Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Mark mirrors a cooldown entry so other processes sharing this Redis
// instance can see it. key is the ledger's own key ("email" or
// "email:model"); resetAtMs is an absolute epoch-millisecond deadline.
// Implements ratelimit.Mirror.
func (c *Client) Mark(key string, resetAtMs int64) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	ttl := time.Until(time.UnixMilli(resetAtMs))
	if ttl <= 0 {
		return nil
	}
	return c.rdb.Set(ctx, keyPrefixCooldown+key, resetAtMs, ttl).Err()
}

// PeekCooldown returns the mirrored reset time for key, if any other
// process has recorded one that hasn't expired yet.
func (c *Client) PeekCooldown(ctx context.Context, key string) (int64, bool) {
	v, err := c.rdb.Get(ctx, keyPrefixCooldown+key).Int64()
	if err != nil {
		return 0, false
	}
	return v, true
}

// StorePendingState records an in-flight OAuth authorization's PKCE
// verifier under its CSRF state nonce, so a callback arriving at a
// different gateway instance than the one that started the flow can still
// be completed. Expires after ttl.
func (c *Client) StorePendingState(ctx context.Context, state, verifier string, ttl time.Duration) error {
	return c.rdb.Set(ctx, keyPrefixPendingOAuth+state, verifier, ttl).Err()
}

// TakePendingState retrieves and deletes the verifier stored for state, so
// it can only be consumed once.
func (c *Client) TakePendingState(ctx context.Context, state string) (string, bool) {
	v, err := c.rdb.GetDel(ctx, keyPrefixPendingOAuth+state).Result()
	if err != nil {
		return "", false
	}
	return v, true
}
