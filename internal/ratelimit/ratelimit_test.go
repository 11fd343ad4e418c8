package ratelimit

import (
    "context"
    "sync"
    "testing"
    "time"

    "github.com/redis/go-redis/v9"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/iliyamo/vehicle-rental-marketplace/internal/config"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func TestWindowBlocksAfterLimit(t *testing.T) {
    c := &clock{t: time.Unix(1000, 0)}
    w := NewWindow(3, time.Minute)
    w.Now = c.now

    for i := 0; i < 3; i++ {
        assert.True(t, w.Allow("1.2.3.4"))
    }
    assert.False(t, w.Allow("1.2.3.4"))
    assert.True(t, w.Allow("5.6.7.8"), "keys are independent")
    assert.Equal(t, time.Minute, w.RetryAfter("1.2.3.4"))

    c.t = c.t.Add(30 * time.Second)
    assert.False(t, w.Allow("1.2.3.4"))
    assert.Equal(t, 30*time.Second, w.RetryAfter("1.2.3.4"))

    c.t = c.t.Add(31 * time.Second)
    assert.True(t, w.Allow("1.2.3.4"))
}

func TestWindowReset(t *testing.T) {
    w := NewWindow(1, time.Hour)
    assert.True(t, w.Allow("k"))
    assert.False(t, w.Allow("k"))
    w.Reset()
    assert.True(t, w.Allow("k"))
}

func TestWindowConcurrentAllowsExactlyLimit(t *testing.T) {
    w := NewWindow(10, time.Hour)
    var mu sync.Mutex
    allowed := 0
    var wg sync.WaitGroup
    for i := 0; i < 50; i++ {
        wg.Add(1)
        go func() {
            defer wg.Done()
            if w.Allow("ip") {
                mu.Lock()
                allowed++
                mu.Unlock()
            }
        }()
    }
    wg.Wait()
    assert.Equal(t, 10, allowed)
}

func TestRetryAfterFallback(t *testing.T) {
    var l Limiter = limiterFunc(func(string) bool { return false })
    assert.Equal(t, 5*time.Second, RetryAfter(l, "k", 5*time.Second))

    w := NewWindow(1, time.Minute)
    w.Allow("k")
    assert.Greater(t, RetryAfter(w, "k", time.Second), time.Second)
}

type limiterFunc func(string) bool

func (f limiterFunc) Allow(k string) bool { return f(k) }

func TestRedisFailsOpen(t *testing.T) {
    rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond, MaxRetries: -1})
    defer rdb.Close()
    r := NewRedis(config.RateLimitConfig{Capacity: 1, RefillTokens: 1, RefillInterval: time.Second, TTL: time.Minute, Prefix: "rl"}, rdb, nil)

    res, err := r.Take(context.Background(), "ip:1.2.3.4")
    require.Error(t, err)
    assert.True(t, res.Allowed)
    assert.True(t, r.Allow("ip:1.2.3.4"))
    assert.Equal(t, time.Second, r.RetryAfter("x"))
}
