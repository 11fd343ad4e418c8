// Package ratelimit provides the request budgets applied per client key
// (normally the client IP). A Window keeps counters in process memory; Redis
// shares a token bucket between server instances.
package ratelimit

import "time"

// Limiter decides whether one more request for key fits the budget.
type Limiter interface {
    Allow(key string) bool
}

// RetryHinter is implemented by limiters that can tell a blocked caller how
// long to wait.
type RetryHinter interface {
    RetryAfter(key string) time.Duration
}

// RetryAfter asks l for a retry hint, falling back to def.
func RetryAfter(l Limiter, key string, def time.Duration) time.Duration {
    if h, ok := l.(RetryHinter); ok {
        if d := h.RetryAfter(key); d > 0 {
            return d
        }
    }
    return def
}
