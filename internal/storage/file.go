package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
)

// File persists keys as a single JSON object on disk, written through on
// every mutation. Suited for a single-user CLI install; concurrent processes
// sharing one file get last-writer-wins semantics.
type File struct {
	mu   sync.Mutex
	path string
}

// NewFile constructs a file-backed store at path. The file and its parent
// directory are created lazily on first write.
func NewFile(path string) *File {
	return &File{path: path}
}

// DefaultPath places the store under the user config dir, following
// XDG_CONFIG_HOME when set.
func DefaultPath() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "newsclient", "session.json")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "newsclient", "session.json")
}

func (s *File) load() map[string]string {
	b, err := os.ReadFile(s.path)
	if err != nil {
		return map[string]string{}
	}
	m := map[string]string{}
	if err := json.Unmarshal(b, &m); err != nil {
		// Corrupt file reads as empty; the next write replaces it.
		return map[string]string{}
	}
	return m
}

func (s *File) save(m map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, b, 0o600)
}

func (s *File) GetItem(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.load()[key]
	return v, ok
}

func (s *File) SetItem(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.load()
	m[key] = value
	return s.save(m)
}

func (s *File) RemoveItem(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.load()
	if _, ok := m[key]; !ok {
		return nil
	}
	delete(m, key)
	return s.save(m)
}
