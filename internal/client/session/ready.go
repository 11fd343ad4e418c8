package session

import (
    "context"
    "errors"
    "sync"
    "time"
)

// ErrProviderTimeout is returned when the identity provider does not finish
// initializing in time.
var ErrProviderTimeout = errors.New("identity provider did not become ready")

// Ready resolves exactly once, when the identity provider has restored its
// state.
type Ready struct {
    once sync.Once
    ch   chan struct{}
}

func NewReady() *Ready { return &Ready{ch: make(chan struct{})} }

// Resolve marks the provider ready. Later calls do nothing.
func (r *Ready) Resolve() { r.once.Do(func() { close(r.ch) }) }

func (r *Ready) Done() <-chan struct{} { return r.ch }

// Wait blocks until the provider is ready, timeout elapses or ctx ends.
func (r *Ready) Wait(ctx context.Context, timeout time.Duration) error {
    t := time.NewTimer(timeout)
    defer t.Stop()
    select {
    case <-r.ch:
        return nil
    case <-t.C:
        return ErrProviderTimeout
    case <-ctx.Done():
        return ctx.Err()
    }
}
