// Package keychain keeps the CLI's tokens in the operating system's
// credential store.
package keychain

import (
	"errors"
	"fmt"
	"sync"

	"github.com/zalando/go-keyring"
)

// ErrNotFound is returned when a key doesn't exist
var ErrNotFound = errors.New("key not found in keychain")

// Keys under which credentials are stored
const (
	ServiceName      = "ccr"
	KeyIdentityToken = "ccr-identity-token"
	KeyRefreshToken  = "ccr-refresh-token"
)

// Keychain provides secure credential storage
type Keychain interface {
	Set(key, value string) error
	Get(key string) (string, error)
	Delete(key string) error
}

// Mock is an in-memory keychain for tests
type Mock struct {
	mu    sync.RWMutex
	store map[string]string
}

func NewMock() *Mock {
	return &Mock{store: make(map[string]string)}
}

func (m *Mock) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store[key] = value
	return nil
}

func (m *Mock) Get(key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.store[key]
	if !ok {
		return "", ErrNotFound
	}
	return value, nil
}

func (m *Mock) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.store, key)
	return nil
}

// System uses the OS keychain
type System struct {
	Service string
}

func NewSystem() *System {
	return &System{Service: ServiceName}
}

// Set stores a value in the system keychain
func (s *System) Set(key, value string) error {
	if err := keyring.Set(s.Service, key, value); err != nil {
		return fmt.Errorf("failed to store in keychain: %w", err)
	}
	return nil
}

// Get retrieves a value from the system keychain
func (s *System) Get(key string) (string, error) {
	value, err := keyring.Get(s.Service, key)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to retrieve from keychain: %w", err)
	}
	return value, nil
}

// Delete removes a value from the system keychain. Missing keys are not an
// error.
func (s *System) Delete(key string) error {
	if err := keyring.Delete(s.Service, key); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to delete from keychain: %w", err)
	}
	return nil
}
