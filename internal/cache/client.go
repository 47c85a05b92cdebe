package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/rueidis"
)

// Client wraps Redis operations using rueidis.
type Client struct {
	redis rueidis.Client
}

// NewClient creates a new Redis client.
func NewClient(ctx context.Context, url string) (*Client, error) {
	// Parse Redis URL (redis://localhost:6380)
	opts, err := rueidis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}

	client, err := rueidis.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("create redis client: %w", err)
	}

	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Client{redis: client}, nil
}

// Close closes the Redis client.
func (c *Client) Close() {
	c.redis.Close()
}

// Ping checks if Redis is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.redis.Do(ctx, c.redis.B().Ping().Build()).Error()
}

// --- Tick Lease ---

func leaseKey(name string) string {
	return fmt.Sprintf("lease:%s", name)
}

// TryAcquireLease takes the named lease for ttl if nobody holds it.
// The returned token must be passed to ReleaseLease.
func (c *Client) TryAcquireLease(ctx context.Context, name string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	cmd := c.redis.B().Set().Key(leaseKey(name)).Value(token).Nx().PxMilliseconds(ttl.Milliseconds()).Build()

	err := c.redis.Do(ctx, cmd).Error()
	if rueidis.IsRedisNil(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("acquire lease %s: %w", name, err)
	}
	return token, true, nil
}

// ReleaseLease drops the lease only if token still owns it.
func (c *Client) ReleaseLease(ctx context.Context, name, token string) error {
	script := `
		if redis.call('GET', KEYS[1]) == ARGV[1] then
			return redis.call('DEL', KEYS[1])
		end
		return 0
	`

	err := c.redis.Do(ctx,
		c.redis.B().Eval().Script(script).Numkeys(1).Key(leaseKey(name)).Arg(token).Build(),
	).Error()
	if err != nil {
		return fmt.Errorf("release lease %s: %w", name, err)
	}
	return nil
}

// --- Rate Limiting ---

// CheckRateLimit checks if a client has exceeded their rate limit.
// Returns true if request is allowed, false if rate limited.
func (c *Client) CheckRateLimit(ctx context.Context, clientID string, limitPerMinute int) (bool, error) {
	key := fmt.Sprintf("rate_limit:%s", clientID)
	now := time.Now().Unix()
	windowStart := now - 60 // 1 minute window

	// Use a Lua script for atomic rate limiting
	script := `
		local key = KEYS[1]
		local now = tonumber(ARGV[1])
		local window_start = tonumber(ARGV[2])
		local limit = tonumber(ARGV[3])

		redis.call('ZREMRANGEBYSCORE', key, '-inf', window_start)

		local count = redis.call('ZCARD', key)

		if count < limit then
			redis.call('ZADD', key, now, now .. ':' .. math.random())
			redis.call('EXPIRE', key, 60)
			return 1
		else
			return 0
		end
	`

	result, err := c.redis.Do(ctx,
		c.redis.B().Eval().Script(script).Numkeys(1).Key(key).Arg(
			fmt.Sprintf("%d", now),
			fmt.Sprintf("%d", windowStart),
			fmt.Sprintf("%d", limitPerMinute),
		).Build(),
	).ToInt64()

	if err != nil {
		return false, fmt.Errorf("check rate limit: %w", err)
	}

	return result == 1, nil
}

// --- Idempotency ---

func idempotencyKey(scope, key string) string {
	return fmt.Sprintf("idempotency:%s:%s", scope, key)
}

// idempotencyPending marks a key whose request is still running.
const idempotencyPending = "pending"

// ReserveIdempotencyKey claims key for one in-flight request. It reports false
// when the key is already reserved or completed.
func (c *Client) ReserveIdempotencyKey(ctx context.Context, scope, key string, ttl time.Duration) (bool, error) {
	cmd := c.redis.B().Set().Key(idempotencyKey(scope, key)).Value(idempotencyPending).Nx().PxMilliseconds(ttl.Milliseconds()).Build()
	err := c.redis.Do(ctx, cmd).Error()
	if rueidis.IsRedisNil(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reserve idempotency key: %w", err)
	}
	return true, nil
}

// SetIdempotencyKey stores the result for a reserved key.
func (c *Client) SetIdempotencyKey(ctx context.Context, scope, key string, result []byte, ttl time.Duration) error {
	cmd := c.redis.B().Set().Key(idempotencyKey(scope, key)).Value(string(result)).PxMilliseconds(ttl.Milliseconds()).Build()
	return c.redis.Do(ctx, cmd).Error()
}

// ReleaseIdempotencyKey drops a reservation whose request failed, so a retry can run.
func (c *Client) ReleaseIdempotencyKey(ctx context.Context, scope, key string) error {
	return c.redis.Do(ctx, c.redis.B().Del().Key(idempotencyKey(scope, key)).Build()).Error()
}

// GetIdempotencyKey retrieves an idempotency result, or nil if none is stored
// yet. A reserved key without a result also yields nil.
func (c *Client) GetIdempotencyKey(ctx context.Context, scope, key string) ([]byte, error) {
	result, err := c.redis.Do(ctx, c.redis.B().Get().Key(idempotencyKey(scope, key)).Build()).ToString()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, nil
		}
		return nil, err
	}
	if result == idempotencyPending {
		return nil, nil
	}
	return []byte(result), nil
}
