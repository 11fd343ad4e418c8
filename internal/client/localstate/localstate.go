// Package localstate is the client's durable key/value state: what the
// browser build kept in localStorage. Values are opaque strings, usually
// JSON documents.
package localstate

import (
    "encoding/json"
    "errors"
    "fmt"
    "os"
    "path/filepath"
    "sort"
    "sync"
)

// Keys shared by the client components.
const (
    KeyCurrentUser            = "CJF_CURRENT_USER"
    KeyUserRole               = "CJF_USER_ROLE"
    KeyAdminMode              = "CJF_ADMIN_MODE"
    KeySignedIn               = "ccrSignedIn"
    KeySignedOutIntentionally = "_userSignedOutIntentionally"
    KeyForceSignOut           = "_forceSignOut"
    KeyVehicleCache           = "CJF_VEHICLES_CACHE"
    KeyPendingDeletes         = "CJF_PENDING_DELETES"
    KeyPlanCache              = "CJF_PLAN_CACHE"
    KeySafetyAcknowledged     = "CJF_SAFETY_POPUP_SHOWN"
)

// Store is a flat string map that survives restarts.
type Store interface {
    Get(key string) (string, bool)
    Set(key, value string) error
    Delete(keys ...string) error
}

// GetJSON decodes the value under key into v. It reports false when the key
// is absent; a value that does not decode is returned as an error.
func GetJSON(s Store, key string, v any) (bool, error) {
    raw, ok := s.Get(key)
    if !ok {
        return false, nil
    }
    if err := json.Unmarshal([]byte(raw), v); err != nil {
        return true, fmt.Errorf("decode %s: %w", key, err)
    }
    return true, nil
}

// SetJSON encodes v and stores it under key.
func SetJSON(s Store, key string, v any) error {
    b, err := json.Marshal(v)
    if err != nil {
        return fmt.Errorf("encode %s: %w", key, err)
    }
    return s.Set(key, string(b))
}

// Memory is a Store that lives only as long as the process.
type Memory struct {
    mu sync.RWMutex
    m  map[string]string
}

func NewMemory() *Memory { return &Memory{m: map[string]string{}} }

func (s *Memory) Get(key string) (string, bool) {
    s.mu.RLock()
    defer s.mu.RUnlock()
    v, ok := s.m[key]
    return v, ok
}

func (s *Memory) Set(key, value string) error {
    s.mu.Lock()
    defer s.mu.Unlock()
    s.m[key] = value
    return nil
}

func (s *Memory) Delete(keys ...string) error {
    s.mu.Lock()
    defer s.mu.Unlock()
    for _, k := range keys {
        delete(s.m, k)
    }
    return nil
}

// Keys lists the stored keys in order.
func (s *Memory) Keys() []string {
    s.mu.RLock()
    defer s.mu.RUnlock()
    out := make([]string, 0, len(s.m))
    for k := range s.m {
        out = append(out, k)
    }
    sort.Strings(out)
    return out
}

// File is a Store persisted as one JSON object. Every write rewrites the
// file through a temp file and rename.
type File struct {
    mu   sync.Mutex
    path string
    m    map[string]string
}

// OpenFile loads path, creating its directory. A missing file is an empty
// store.
func OpenFile(path string) (*File, error) {
    if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
        return nil, fmt.Errorf("create state dir: %w", err)
    }
    f := &File{path: path, m: map[string]string{}}
    b, err := os.ReadFile(path)
    switch {
    case errors.Is(err, os.ErrNotExist):
        return f, nil
    case err != nil:
        return nil, fmt.Errorf("read state: %w", err)
    }
    if len(b) > 0 {
        if err := json.Unmarshal(b, &f.m); err != nil {
            return nil, fmt.Errorf("parse state %s: %w", path, err)
        }
    }
    return f, nil
}

func (f *File) Path() string { return f.path }

func (f *File) Get(key string) (string, bool) {
    f.mu.Lock()
    defer f.mu.Unlock()
    v, ok := f.m[key]
    return v, ok
}

func (f *File) Set(key, value string) error {
    f.mu.Lock()
    defer f.mu.Unlock()
    prev, had := f.m[key]
    f.m[key] = value
    if err := f.flush(); err != nil {
        if had {
            f.m[key] = prev
        } else {
            delete(f.m, key)
        }
        return err
    }
    return nil
}

func (f *File) Delete(keys ...string) error {
    f.mu.Lock()
    defer f.mu.Unlock()
    changed := false
    for _, k := range keys {
        if _, ok := f.m[k]; ok {
            delete(f.m, k)
            changed = true
        }
    }
    if !changed {
        return nil
    }
    return f.flush()
}

// flush must be called with mu held.
func (f *File) flush() error {
    b, err := json.MarshalIndent(f.m, "", "  ")
    if err != nil {
        return err
    }
    tmp := f.path + ".tmp"
    if err := os.WriteFile(tmp, b, 0o600); err != nil {
        return fmt.Errorf("write state: %w", err)
    }
    if err := os.Rename(tmp, f.path); err != nil {
        return fmt.Errorf("replace state: %w", err)
    }
    return nil
}
