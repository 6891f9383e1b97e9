// Package users is the admin-facing user management store: list accounts
// and move them between READER and MEMBER.
package users

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/crowdcheck/newsclient/internal/model"
	"github.com/crowdcheck/newsclient/internal/transport"
)

// Store mirrors the server's user listing and tracks a transient status
// message for the last operation.
type Store struct {
	client *transport.Client
	log    *zap.Logger

	mu      sync.Mutex
	users   []model.UserRecord
	loading bool
	message string
}

// NewStore constructs a Store.
func NewStore(client *transport.Client, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{client: client, log: log}
}

// Users returns a copy of the current listing.
func (s *Store) Users() []model.UserRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.UserRecord(nil), s.users...)
}

// Loading reports whether a listing fetch is in flight.
func (s *Store) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Message returns the transient status message for the last operation.
func (s *Store) Message() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.message
}

// ResetMessage clears the transient status message.
func (s *Store) ResetMessage() {
	s.setMessage("")
}

// FetchAll replaces the listing with the server's current account set.
func (s *Store) FetchAll(ctx context.Context) error {
	s.mu.Lock()
	s.loading = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.loading = false
		s.mu.Unlock()
	}()

	resp, err := s.client.Get(ctx, "/api/v1/users", nil)
	var list []model.UserRecord
	if err == nil {
		err = resp.Decode(&list)
	}
	if err != nil {
		s.log.Error("fetch users failed", zap.Error(err))
		s.setMessage("Failed to load user list.")
		return fmt.Errorf("fetch users: %w", err)
	}

	s.mu.Lock()
	s.users = list
	s.mu.Unlock()
	return nil
}

// Promote raises an account to MEMBER and splices the updated record into
// the listing.
func (s *Store) Promote(ctx context.Context, userID int64) error {
	return s.changeRole(ctx, userID, "promote", "promoted to MEMBER")
}

// Demote lowers an account to READER and splices the updated record into
// the listing.
func (s *Store) Demote(ctx context.Context, userID int64) error {
	return s.changeRole(ctx, userID, "demote", "demoted to READER")
}

func (s *Store) changeRole(ctx context.Context, userID int64, action, past string) error {
	resp, err := s.client.Put(ctx, "/api/v1/users/"+strconv.FormatInt(userID, 10)+"/"+action, nil)
	var updated model.UserRecord
	if err == nil {
		err = resp.Decode(&updated)
	}
	if err != nil {
		s.log.Error("role change failed", zap.Int64("user_id", userID), zap.String("action", action), zap.Error(err))
		s.setMessage("Failed to " + action + " user.")
		return fmt.Errorf("%s user %d: %w", action, userID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.users {
		if s.users[i].ID == userID {
			s.users[i] = updated
			s.message = fmt.Sprintf("User %s %s.", updated.Username, past)
			return nil
		}
	}
	// Not in the cached listing (no FetchAll yet); the outcome still shows.
	s.users = append(s.users, updated)
	s.message = fmt.Sprintf("User %s %s.", updated.Username, past)
	return nil
}

func (s *Store) setMessage(msg string) {
	s.mu.Lock()
	s.message = msg
	s.mu.Unlock()
}
