package storage

import (
	"encoding/base64"

	"github.com/crowdcheck/newsclient/internal/crypto"
)

// saltKey holds the key-derivation salt inside the wrapped store, unencrypted.
const saltKey = "_seal_salt"

// Sealed wraps a Storage and encrypts every value at rest with a key derived
// from a passphrase. Values written by an unsealed store, or sealed under a
// different passphrase, read as absent.
type Sealed struct {
	inner Storage
	root  []byte
}

// NewSealed wraps inner. The salt is read from the wrapped store, or
// generated and persisted on first use.
func NewSealed(inner Storage, passphrase string) (*Sealed, error) {
	var salt []byte
	if raw, ok := inner.GetItem(saltKey); ok {
		if b, err := base64.StdEncoding.DecodeString(raw); err == nil && len(b) == crypto.SaltLen {
			salt = b
		}
	}
	if salt == nil {
		b, err := crypto.Rand(crypto.SaltLen)
		if err != nil {
			return nil, err
		}
		if err := inner.SetItem(saltKey, base64.StdEncoding.EncodeToString(b)); err != nil {
			return nil, err
		}
		salt = b
	}
	return &Sealed{inner: inner, root: crypto.DeriveKey([]byte(passphrase), salt)}, nil
}

func (s *Sealed) GetItem(key string) (string, bool) {
	raw, ok := s.inner.GetItem(key)
	if !ok {
		return "", false
	}
	sealed, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return "", false
	}
	plain, err := crypto.Open(s.root, key, sealed)
	if err != nil {
		// Wrong passphrase and corruption both read as absence.
		return "", false
	}
	return string(plain), true
}

func (s *Sealed) SetItem(key, value string) error {
	sealed, err := crypto.Seal(s.root, key, []byte(value))
	if err != nil {
		return err
	}
	return s.inner.SetItem(key, base64.StdEncoding.EncodeToString(sealed))
}

func (s *Sealed) RemoveItem(key string) error {
	return s.inner.RemoveItem(key)
}
