// Package ratelimit provides a fixed-window request limiter backed by Redis.
package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// RedisLimiter counts hits per key in fixed windows. Each window is its own
// Redis key, expiring with the window.
type RedisLimiter struct {
	client *redis.Client
	prefix string
	limit  int
	window time.Duration
	now    func() time.Time
}

// NewRedisLimiter connects to redisURL and allows limit hits per key per window.
func NewRedisLimiter(redisURL string, limit int, window time.Duration) (*RedisLimiter, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisLimiterWithClient(client, limit, window), nil
}

// NewRedisLimiterWithClient creates a limiter from an existing Redis client
func NewRedisLimiterWithClient(client *redis.Client, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		prefix: "ratelimit:",
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

func (l *RedisLimiter) key(name string, windowStart time.Time) string {
	return l.prefix + name + ":" + strconv.FormatInt(windowStart.Unix(), 10)
}

// Allow records one hit for name and reports whether it fits the window.
func (l *RedisLimiter) Allow(ctx context.Context, name string) (Decision, error) {
	now := l.now()
	windowStart := now.Truncate(l.window)
	key := l.key(name, windowStart)

	var incr *redis.IntCmd
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, l.window)
		return nil
	})
	if err != nil {
		return Decision{}, fmt.Errorf("count hit: %w", err)
	}

	count := int(incr.Val())
	decision := Decision{
		Allowed:   count <= l.limit,
		Limit:     l.limit,
		Remaining: max(l.limit-count, 0),
	}
	if !decision.Allowed {
		decision.RetryAfter = windowStart.Add(l.window).Sub(now)
	}
	return decision, nil
}

// Ping checks Redis connectivity
func (l *RedisLimiter) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (l *RedisLimiter) Close() error {
	return l.client.Close()
}
