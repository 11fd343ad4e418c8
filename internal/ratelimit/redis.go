package ratelimit

import (
    "context"
    "fmt"
    "strconv"
    "time"

    "github.com/redis/go-redis/v9"
    "github.com/sirupsen/logrus"

    "github.com/iliyamo/vehicle-rental-marketplace/internal/config"
)

// bucketScript refills the bucket by whole intervals and takes one token.
// It returns {allowed, remaining, retry_after_ms}.
var bucketScript = redis.NewScript(`
    local key = KEYS[1]
    local now_ms = tonumber(ARGV[1])
    local capacity = tonumber(ARGV[2])
    local refill_tokens = tonumber(ARGV[3])
    local interval_ms = tonumber(ARGV[4])
    local ttl_seconds = tonumber(ARGV[5])

    local state = redis.call('HMGET', key, 'tokens', 'last_refill_ms')
    local tokens = tonumber(state[1])
    local last_refill = tonumber(state[2])

    if tokens == nil or last_refill == nil then
        tokens = capacity
        last_refill = now_ms
    end

    if interval_ms > 0 and refill_tokens > 0 then
        local elapsed = math.max(0, now_ms - last_refill)
        local intervals = math.floor(elapsed / interval_ms)
        if intervals > 0 then
            tokens = math.min(capacity, tokens + (intervals * refill_tokens))
            last_refill = last_refill + (intervals * interval_ms)
        end
    end

    local allowed = 0
    local retry_after_ms = 0
    if tokens > 0 then
        allowed = 1
        tokens = tokens - 1
    else
        retry_after_ms = math.max(0, interval_ms - (now_ms - last_refill))
    end

    redis.call('HMSET', key, 'tokens', tokens, 'last_refill_ms', last_refill)
    redis.call('EXPIRE', key, ttl_seconds)

    return { allowed, tokens, retry_after_ms }
`)

// Result is the outcome of one bucket check.
type Result struct {
    Allowed    bool
    Remaining  int64
    RetryAfter time.Duration
}

// Redis is a token bucket kept in redis so every server instance shares one
// budget per key. Redis errors fail open.
type Redis struct {
    cfg     config.RateLimitConfig
    rdb     *redis.Client
    log     *logrus.Logger
    timeout time.Duration
    now     func() time.Time
}

func NewRedis(cfg config.RateLimitConfig, rdb *redis.Client, log *logrus.Logger) *Redis {
    return &Redis{cfg: cfg, rdb: rdb, log: log, timeout: 500 * time.Millisecond, now: time.Now}
}

func (r *Redis) key(k string) string { return r.cfg.Prefix + ":" + k }

// Take runs the bucket script for key.
func (r *Redis) Take(ctx context.Context, key string) (Result, error) {
    args := []interface{}{
        r.now().UnixMilli(),
        r.cfg.Capacity,
        r.cfg.RefillTokens,
        r.cfg.RefillInterval.Milliseconds(),
        int64(r.cfg.TTL / time.Second),
    }
    vals, err := bucketScript.Run(ctx, r.rdb, []string{r.key(key)}, args...).Result()
    if err != nil {
        return Result{Allowed: true}, err
    }
    arr, ok := vals.([]interface{})
    if !ok || len(arr) != 3 {
        return Result{Allowed: true}, fmt.Errorf("unexpected script result %#v", vals)
    }
    return Result{
        Allowed:    asInt64(arr[0]) == 1,
        Remaining:  asInt64(arr[1]),
        RetryAfter: time.Duration(asInt64(arr[2])) * time.Millisecond,
    }, nil
}

func (r *Redis) Allow(key string) bool {
    ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
    defer cancel()
    res, err := r.Take(ctx, key)
    if err != nil && r.cfg.LogErrors && r.log != nil {
        r.log.WithError(err).WithField("key", key).Warn("rate limit check failed")
    }
    return res.Allowed
}

// RetryAfter reports the bucket's refill interval, the longest a blocked
// caller has to wait for one token.
func (r *Redis) RetryAfter(string) time.Duration { return r.cfg.RefillInterval }

func asInt64(v interface{}) int64 {
    switch t := v.(type) {
    case int64:
        return t
    case int:
        return int64(t)
    case float64:
        return int64(t)
    case string:
        if n, err := strconv.ParseInt(t, 10, 64); err == nil {
            return n
        }
    }
    return 0
}
