// Package storage provides the durable key-value store backing session
// persistence. The interface mirrors web local storage: string keys, string
// values, absence instead of errors on reads. Consumers must tolerate a nil
// or failing store and degrade to memory-only state.
package storage

import "sync"

// Storage is a durable string key-value store.
type Storage interface {
	// GetItem returns the stored value and whether it was present.
	// Backend failures are reported as absence.
	GetItem(key string) (string, bool)
	// SetItem stores value under key, overwriting any previous value.
	SetItem(key, value string) error
	// RemoveItem deletes key. Removing an absent key is not an error.
	RemoveItem(key string) error
}

// Memory is a process-local Storage used when no durable backend is
// available and in tests.
type Memory struct {
	mu sync.RWMutex
	m  map[string]string
}

// NewMemory constructs an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{m: map[string]string{}}
}

func (s *Memory) GetItem(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.m[key]
	return v, ok
}

func (s *Memory) SetItem(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = value
	return nil
}

func (s *Memory) RemoveItem(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, key)
	return nil
}
