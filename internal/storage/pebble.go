package storage

import (
	"errors"

	"github.com/cockroachdb/pebble"
)

// Pebble is a Storage backed by an embedded Pebble database. It is the
// durable backend for long-lived installs where the session file would be
// contended or where other client data already lives in the same DB.
type Pebble struct {
	db *pebble.DB
}

// OpenPebble opens (or creates) a Pebble database at path.
func OpenPebble(path string) (*Pebble, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &Pebble{db: db}, nil
}

// Close releases the underlying database.
func (s *Pebble) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *Pebble) GetItem(key string) (string, bool) {
	if s.db == nil {
		return "", false
	}
	v, closer, err := s.db.Get([]byte(key))
	if err != nil {
		// pebble.ErrNotFound and backend failures both read as absence.
		return "", false
	}
	out := string(v)
	_ = closer.Close()
	return out, true
}

func (s *Pebble) SetItem(key, value string) error {
	if s.db == nil {
		return errors.New("pebble storage closed")
	}
	return s.db.Set([]byte(key), []byte(value), pebble.Sync)
}

func (s *Pebble) RemoveItem(key string) error {
	if s.db == nil {
		return errors.New("pebble storage closed")
	}
	return s.db.Delete([]byte(key), pebble.Sync)
}
