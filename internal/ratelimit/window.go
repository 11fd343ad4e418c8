package ratelimit

import (
    "sync"
    "time"
)

// Window is an in-memory sliding-window limiter: at most Limit requests per
// key in any interval of length Span. Counters are lost on restart.
type Window struct {
    Limit int
    Span  time.Duration
    Now   func() time.Time

    mu   sync.Mutex
    hits map[string][]time.Time
}

func NewWindow(limit int, span time.Duration) *Window {
    if limit < 1 {
        limit = 1
    }
    if span <= 0 {
        span = time.Minute
    }
    return &Window{Limit: limit, Span: span, Now: time.Now, hits: map[string][]time.Time{}}
}

// prune drops timestamps older than the window. Callers hold mu.
func (w *Window) prune(key string, now time.Time) []time.Time {
    cutoff := now.Add(-w.Span)
    hs := w.hits[key]
    i := 0
    for i < len(hs) && !hs[i].After(cutoff) {
        i++
    }
    hs = hs[i:]
    if len(hs) == 0 {
        delete(w.hits, key)
        return nil
    }
    w.hits[key] = hs
    return hs
}

func (w *Window) Allow(key string) bool {
    w.mu.Lock()
    defer w.mu.Unlock()
    now := w.Now()
    hs := w.prune(key, now)
    if len(hs) >= w.Limit {
        return false
    }
    w.hits[key] = append(hs, now)
    return true
}

// RetryAfter is the time until the oldest counted request leaves the window.
func (w *Window) RetryAfter(key string) time.Duration {
    w.mu.Lock()
    defer w.mu.Unlock()
    now := w.Now()
    hs := w.prune(key, now)
    if len(hs) < w.Limit {
        return 0
    }
    return hs[0].Add(w.Span).Sub(now)
}

// Reset forgets every counter.
func (w *Window) Reset() {
    w.mu.Lock()
    w.hits = map[string][]time.Time{}
    w.mu.Unlock()
}
