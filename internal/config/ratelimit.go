package config

import (
    "os"
    "strconv"
    "time"
)

// Budget is a fixed number of requests per window, used by the per-route
// limiters on review and support submission.
type Budget struct {
    Limit  int
    Window time.Duration
}

func loadBudget(prefix string, limit int, window time.Duration) Budget {
    b := Budget{
        Limit:  envInt(prefix+"_RATE_LIMIT", limit),
        Window: envDur(prefix+"_RATE_WINDOW", window),
    }
    if b.Limit < 1 { b.Limit = 1 }
    if b.Window <= 0 { b.Window = window }
    return b
}

// RateLimitConfig configures the global per-IP budget and the stricter
// submission budgets. The redis token bucket uses Capacity and the refill
// fields; without redis the global budget is Capacity requests per TTL.
type RateLimitConfig struct {
    Enabled        bool
    Capacity       int
    RefillTokens   int
    RefillInterval time.Duration
    TTL            time.Duration
    KeyStrategy    string
    Prefix         string
    LogErrors      bool // log redis failures; the limiter fails open either way

    Review  Budget
    Support Budget
}

func LoadRateLimitConfig() RateLimitConfig {
    rl := RateLimitConfig{
        Enabled:        envBool("RATE_LIMIT_ENABLED", true),
        Capacity:       envInt("RATE_LIMIT_CAPACITY", 100),
        RefillTokens:   envInt("RATE_LIMIT_REFILL_TOKENS", 1),
        RefillInterval: envDur("RATE_LIMIT_REFILL_INTERVAL", 9*time.Second),
        TTL:            envDur("RATE_LIMIT_TTL", 15*time.Minute),
        KeyStrategy:    envStr("RATE_LIMIT_KEY_STRATEGY", "ip"),
        Prefix:         envStr("RATE_LIMIT_PREFIX", "rl"),
        LogErrors:      envBool("RATE_LIMIT_DEBUG", false),

        Review:  loadBudget("REVIEW", 5, 15*time.Minute),
        Support: loadBudget("SUPPORT", 5, 15*time.Minute),
    }
    if rl.Capacity < 1 { rl.Capacity = 1 }
    if rl.RefillTokens < 1 { rl.RefillTokens = 1 }
    if rl.RefillInterval <= 0 { rl.RefillInterval = time.Second }
    // keep idle buckets around long enough to refill completely
    if floor := 5 * rl.RefillInterval; rl.TTL < floor { rl.TTL = floor }
    return rl
}

func envStr(k, d string) string { if v := os.Getenv(k); v != "" { return v }; return d }
func envBool(k string, d bool) bool {
    switch os.Getenv(k) {
    case "1", "true", "TRUE", "True", "yes", "on":
        return true
    case "0", "false", "FALSE", "False", "no", "off":
        return false
    }
    return d
}
func envInt(k string, d int) int {
    if n, err := strconv.Atoi(os.Getenv(k)); err == nil { return n }
    return d
}
func envDur(k string, d time.Duration) time.Duration {
    if dur, err := time.ParseDuration(os.Getenv(k)); err == nil { return dur }
    return d
}
