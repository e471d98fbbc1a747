package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var fixedWindowScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`)

// AttemptLimiter caps sign-in and sign-up attempts per email address in a
// fixed time window shared through Redis.
type AttemptLimiter struct {
	limit  int
	window time.Duration
	now    func() time.Time

	client *redis.Client
	prefix string
}

// NewAttemptLimiter creates a Redis-backed limiter.
func NewAttemptLimiter(addr, password, prefix string, limit int, window time.Duration) (*AttemptLimiter, error) {
	if limit <= 0 || window <= 0 {
		return nil, errors.New("attempt limiter requires positive limit and window")
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("attempt limiter redis addr is required")
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "lp-ebook:auth-attempts"
	}
	return &AttemptLimiter{
		limit:  limit,
		window: window,
		now:    time.Now,
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
		}),
		prefix: prefix,
	}, nil
}

// Allow records an attempt and reports whether it is within quota.
// On Redis failures, it fails closed and returns false.
func (l *AttemptLimiter) Allow(ctx context.Context, action, email string) bool {
	if l == nil {
		return true
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	res, err := fixedWindowScript.Run(ctx, l.client, []string{l.key(action, email)}, l.window.Milliseconds()).Int64()
	if err != nil {
		slog.Warn("attempt limiter unavailable", "action", action, "err", err)
		return false
	}
	return res <= int64(l.limit)
}

// Reset forgets the attempts of the current window, e.g. after a successful sign-in.
func (l *AttemptLimiter) Reset(ctx context.Context, action, email string) error {
	if l == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := l.client.Del(ctx, l.key(action, email)).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("reset attempts: %w", err)
	}
	return nil
}

func (l *AttemptLimiter) key(action, email string) string {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		email = "unknown"
	}
	slot := l.now().UTC().UnixMilli() / l.window.Milliseconds()
	return fmt.Sprintf("%s:%s:%s:%d", l.prefix, action, email, slot)
}
