package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/promo-notifier/internal/domain"
)

// windowScript opens, resets or increments the window stored in a hash
// {start, count}. Times are unix milliseconds supplied by the caller.
// ARGV: now, window, max, enforce ("1" refuses at max, "0" always counts).
// Returns {admitted, count, start}.
var windowScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local max = tonumber(ARGV[3])
local raw = redis.call("HMGET", KEYS[1], "start", "count")
local start, count
if raw[1] and raw[2] then
	start = tonumber(raw[1])
	count = tonumber(raw[2])
end
if start == nil or count == nil or now - start >= window then
	start = now
	count = 0
end
if ARGV[4] == "1" and count >= max then
	return {0, count, start}
end
count = count + 1
redis.call("HSET", KEYS[1], "start", start, "count", count)
redis.call("PEXPIRE", KEYS[1], window - (now - start))
return {1, count, start}
`)

// RedisLimiter keeps each window in a Redis hash that expires with the window.
type RedisLimiter struct {
	client *redis.Client
	policy Policy
	prefix string
	now    func() time.Time
}

func NewRedisLimiter(client *redis.Client, policy Policy) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		policy: policy,
		prefix: "promo:ratelimit:",
		now:    time.Now,
	}
}

// WithClock replaces time.Now.
func (l *RedisLimiter) WithClock(now func() time.Time) *RedisLimiter {
	l.now = now
	return l
}

func (l *RedisLimiter) Policy() Policy { return l.policy }

func (l *RedisLimiter) key(userID string, ch domain.Channel) string {
	return l.prefix + string(ch) + ":" + userID
}

func (l *RedisLimiter) run(ctx context.Context, userID string, ch domain.Channel, enforce bool) (Decision, error) {
	flag := "0"
	if enforce {
		flag = "1"
	}
	res, err := windowScript.Run(ctx, l.client, []string{l.key(userID, ch)},
		l.now().UnixMilli(), l.policy.Window.Milliseconds(), l.policy.Max, flag).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit script: %w", err)
	}
	if len(res) != 3 {
		return Decision{}, fmt.Errorf("rate limit script: unexpected reply %v", res)
	}
	return decide(l.policy, res[0] == 1, int(res[1]), time.UnixMilli(res[2])), nil
}

func (l *RedisLimiter) Acquire(ctx context.Context, userID string, ch domain.Channel) (Decision, error) {
	return l.run(ctx, userID, ch, true)
}

func (l *RedisLimiter) RecordAttempt(ctx context.Context, userID string, ch domain.Channel) error {
	_, err := l.run(ctx, userID, ch, false)
	return err
}

func (l *RedisLimiter) Allowed(ctx context.Context, userID string, ch domain.Channel) (bool, error) {
	w, err := l.Usage(ctx, userID, ch)
	if err != nil {
		return false, err
	}
	return admits(l.policy, w, l.now()), nil
}

func (l *RedisLimiter) Usage(ctx context.Context, userID string, ch domain.Channel) (*domain.RateLimitWindow, error) {
	vals, err := l.client.HMGet(ctx, l.key(userID, ch), "start", "count").Result()
	if err != nil {
		return nil, fmt.Errorf("read window: %w", err)
	}
	if len(vals) != 2 || vals[0] == nil || vals[1] == nil {
		return nil, nil
	}
	start, err1 := strconv.ParseInt(fmt.Sprint(vals[0]), 10, 64)
	count, err2 := strconv.Atoi(fmt.Sprint(vals[1]))
	if err := errors.Join(err1, err2); err != nil {
		return nil, fmt.Errorf("corrupt window %s: %w", l.key(userID, ch), err)
	}
	return &domain.RateLimitWindow{
		UserID:      userID,
		Channel:     ch,
		WindowStart: time.UnixMilli(start),
		Count:       count,
	}, nil
}
