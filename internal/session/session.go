// Package session owns the authenticated user's identity, tokens and role
// set. State is hydrated once from durable storage, mutated only through the
// manager's actions, and written back to storage after every mutation.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/crowdcheck/newsclient/internal/errs"
	"github.com/crowdcheck/newsclient/internal/limiter"
	"github.com/crowdcheck/newsclient/internal/model"
	"github.com/crowdcheck/newsclient/internal/storage"
	"github.com/crowdcheck/newsclient/internal/transport"
)

// Primary storage keys. Every session mutation is written through under
// these names.
const (
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
	KeyUser         = "user"
)

// Alternate and legacy key names, read during hydration for backward
// compatible session recovery, never written.
var (
	altAccessKeys  = []string{"accessToken"}
	altRefreshKeys = []string{"refreshToken"}
	altUserKeys    = []string{"authUser"}
	legacyKeys     = []string{"authData", "auth", "currentUser"}
)

// Manager is the session/authentication manager. It is an injectable
// context object: construct one, pass it to consumers, and tear it down
// with Logout. All methods are safe for concurrent use.
type Manager struct {
	client  *transport.Client
	store   storage.Storage
	log     *zap.Logger
	limiter limiter.Limiter

	mu       sync.RWMutex
	snap     model.SessionSnapshot
	hydrated bool
}

// NewManager constructs a Manager. store may be nil, in which case the
// session is memory-only and non-persistent.
func NewManager(client *transport.Client, store storage.Storage, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{client: client, store: store, log: log}
}

// SetLimiter installs a login attempt limiter. Call during wiring, before
// the first Login; nil (the default) disables local throttling.
func (m *Manager) SetLimiter(l limiter.Limiter) {
	m.limiter = l
}

// ---- hydration ----

// loadFromStorage rebuilds a snapshot from durable storage, preferring the
// primary keys and falling back to alternate and legacy names. Parse
// failures are logged and read as absence; the scan moves on to the next
// source.
func (m *Manager) loadFromStorage() model.SessionSnapshot {
	if m.store == nil {
		return model.SessionSnapshot{}
	}

	token := m.readToken(append([]string{KeyAccessToken}, altAccessKeys...))
	refresh := m.readToken(append([]string{KeyRefreshToken}, altRefreshKeys...))

	var user *model.AuthUser
	for _, key := range append([]string{KeyUser}, altUserKeys...) {
		raw, ok := m.store.GetItem(key)
		if !ok {
			continue
		}
		if u, err := parseUserJSON(raw); err != nil {
			m.log.Warn("failed to parse stored user", zap.String("key", key), zap.Error(err))
		} else if u != nil {
			user = u
			break
		}
	}

	if user == nil {
		for _, key := range legacyKeys {
			raw, ok := m.store.GetItem(key)
			if !ok {
				continue
			}
			var bundle map[string]any
			if err := json.Unmarshal([]byte(raw), &bundle); err != nil {
				m.log.Warn("failed to parse legacy auth data", zap.String("key", key), zap.Error(err))
				continue
			}
			// A bundle either nests the user under "user" or is the user
			// record itself.
			if nested, ok := bundle["user"]; ok {
				user = mapUser(nested)
			} else {
				user = mapUser(bundle)
			}
			if token == "" {
				if t, ok := extractAccessToken(bundle); ok {
					token, _ = NormalizeToken(t)
				}
			}
			if refresh == "" {
				if t, ok := extractRefreshToken(bundle); ok {
					refresh, _ = NormalizeToken(t)
				}
			}
			// First legacy key yielding anything short-circuits the scan.
			if user != nil || token != "" || refresh != "" {
				break
			}
		}
	}

	return model.SessionSnapshot{AccessToken: token, RefreshToken: refresh, User: user}
}

func (m *Manager) readToken(keys []string) string {
	for _, key := range keys {
		raw, ok := m.store.GetItem(key)
		if !ok {
			continue
		}
		if tok, ok := NormalizeToken(raw); ok {
			return tok
		}
	}
	return ""
}

func parseUserJSON(raw string) (*model.AuthUser, error) {
	var rec any
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, err
	}
	return mapUser(rec), nil
}

// ensureHydrated performs the one-time lazy hydration. The initial load
// does not write back; only explicit mutations persist.
func (m *Manager) ensureHydrated() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.hydrated {
		return
	}
	m.snap = m.loadFromStorage()
	m.hydrated = true
}

// HydrateFromStorage re-reads durable storage and replaces the in-memory
// session, simulating a fresh start. Unlike the lazy initial load this is a
// full SetSession, so normalized values are written back under the primary
// keys.
func (m *Manager) HydrateFromStorage() {
	snap := m.loadFromStorage()
	m.SetSession(snap.AccessToken, snap.RefreshToken, snap.User)
}

// ---- actions ----

// Login authenticates against the server and applies the response payload
// to the session. The raw payload is returned so callers can inspect
// server-specific fields. On failure the session is left untouched and the
// transport error propagates unmodified. With a limiter installed, rejected
// credentials back off locally before the next attempt is sent.
func (m *Manager) Login(ctx context.Context, identifier, password string) (map[string]any, error) {
	if m.limiter != nil {
		if ok, wait := m.limiter.Allow(identifier); !ok {
			return nil, fmt.Errorf("retry in %s: %w", wait.Round(time.Second), errs.ErrRateLimited)
		}
	}
	resp, err := m.client.Post(ctx, "/api/v1/auth/authenticate", map[string]string{
		"identifier": identifier,
		"password":   password,
	})
	if err != nil {
		if m.limiter != nil && errors.Is(err, errs.ErrUnauthorized) {
			m.limiter.Failure(identifier)
		}
		return nil, err
	}
	var payload map[string]any
	if err := resp.Decode(&payload); err != nil {
		return nil, fmt.Errorf("authenticate: %w", err)
	}
	if m.limiter != nil {
		m.limiter.Success(identifier)
	}
	m.ApplyAuthResponse(payload)
	return payload, nil
}

// Register submits a registration request. Errors propagate as-is; the
// session is not changed.
func (m *Manager) Register(ctx context.Context, payload model.RegisterPayload) error {
	_, err := m.client.Post(ctx, "/api/v1/auth/register", payload)
	return err
}

// ForgotPassword requests a password reset email. Failures are logged and
// re-thrown to the caller.
func (m *Manager) ForgotPassword(ctx context.Context, email string) error {
	_, err := m.client.Post(ctx, "/api/v1/auth/forgot-password", map[string]string{"email": email})
	if err != nil {
		m.log.Error("forgot password request failed", zap.Error(err))
		return err
	}
	return nil
}

// CheckUsernameExists probes whether a username is taken. Fail-safe-closed:
// any transport or decode failure reads as taken, so a flaky network rejects
// a registration rather than silently permitting a duplicate.
func (m *Manager) CheckUsernameExists(ctx context.Context, username string) bool {
	return m.checkTaken(ctx, "/api/v1/auth/check-username", "username", username)
}

// CheckEmailExists is the email counterpart of CheckUsernameExists, with
// the same fail-safe-closed policy.
func (m *Manager) CheckEmailExists(ctx context.Context, email string) bool {
	return m.checkTaken(ctx, "/api/v1/auth/check-email", "email", email)
}

func (m *Manager) checkTaken(ctx context.Context, path, param, value string) bool {
	q := url.Values{}
	q.Set(param, value)
	resp, err := m.client.Get(ctx, path, q)
	if err != nil {
		m.log.Error("existence check failed", zap.String("path", path), zap.Error(err))
		return true
	}
	var out struct {
		IsTaken bool `json:"isTaken"`
	}
	if err := resp.Decode(&out); err != nil {
		m.log.Error("existence check returned malformed body", zap.String("path", path), zap.Error(err))
		return true
	}
	return out.IsTaken
}

// ApplyAuthResponse extracts tokens and the user from a loosely-shaped auth
// payload and replaces the session. A nil payload clears the session
// entirely.
func (m *Manager) ApplyAuthResponse(payload map[string]any) {
	if payload == nil {
		m.SetSession("", "", nil)
		return
	}
	user := mapUser(payload["user"])
	access, _ := extractAccessToken(payload)
	refresh, _ := extractRefreshToken(payload)
	m.SetSession(access, refresh, user)
}

// SetSession atomically replaces all three session fields and writes the
// result through to durable storage. Empty/nil values remove the
// corresponding stored key rather than writing a null literal.
func (m *Manager) SetSession(token, refreshToken string, user *model.AuthUser) {
	m.mu.Lock()
	m.snap = model.SessionSnapshot{AccessToken: token, RefreshToken: refreshToken, User: user}
	m.hydrated = true
	m.mu.Unlock()
	m.persistSession()
}

// Reload replaces the token and user, keeping the current refresh token
// when refreshToken is empty.
func (m *Manager) Reload(token, refreshToken string, user *model.AuthUser) {
	if refreshToken == "" {
		refreshToken = m.Snapshot().RefreshToken
	}
	m.SetSession(token, refreshToken, user)
}

// Logout clears the session and the persisted keys.
func (m *Manager) Logout() {
	m.SetSession("", "", nil)
}

// persistSession mirrors the in-memory snapshot to durable storage.
// Storage failures degrade to memory-only state with a warning.
func (m *Manager) persistSession() {
	if m.store == nil {
		return
	}
	snap := m.Snapshot()

	m.writeOrRemove(KeyAccessToken, snap.AccessToken)
	m.writeOrRemove(KeyRefreshToken, snap.RefreshToken)

	if snap.User != nil {
		b, err := json.Marshal(snap.User)
		if err != nil {
			m.log.Warn("failed to serialize session user", zap.Error(err))
			return
		}
		if err := m.store.SetItem(KeyUser, string(b)); err != nil {
			m.log.Warn("failed to persist session user", zap.Error(err))
		}
	} else if err := m.store.RemoveItem(KeyUser); err != nil {
		m.log.Warn("failed to clear session user", zap.Error(err))
	}
}

func (m *Manager) writeOrRemove(key, value string) {
	var err error
	if value != "" {
		err = m.store.SetItem(key, value)
	} else {
		err = m.store.RemoveItem(key)
	}
	if err != nil {
		m.log.Warn("failed to persist session key", zap.String("key", key), zap.Error(err))
	}
}

// ---- derived state ----

// Snapshot returns a copy of the current session state, hydrating on first
// access.
func (m *Manager) Snapshot() model.SessionSnapshot {
	m.ensureHydrated()
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snap
}

// Roles returns the current role set (empty when unauthenticated).
func (m *Manager) Roles() []model.Role {
	snap := m.Snapshot()
	if snap.User == nil {
		return []model.Role{}
	}
	return snap.User.Roles
}

// IsAuthenticated reports whether both a token and a user are present.
func (m *Manager) IsAuthenticated() bool {
	return m.Snapshot().IsAuthenticated()
}

// HasRole reports exact membership of r in the current role set.
func (m *Manager) HasRole(r model.Role) bool {
	return m.Snapshot().User.HasRole(r)
}

// HasAnyRole reports whether the current role set intersects required.
func (m *Manager) HasAnyRole(required ...model.Role) bool {
	for _, r := range required {
		if m.HasRole(r) {
			return true
		}
	}
	return false
}

// BearerToken returns the normalized access token, or "" when absent.
// Implements transport.TokenSource.
func (m *Manager) BearerToken() string {
	tok, _ := NormalizeToken(m.Snapshot().AccessToken)
	return tok
}

// AuthorizationHeader returns "Bearer <token>", or "" when no token is set.
func (m *Manager) AuthorizationHeader() string {
	if tok := m.BearerToken(); tok != "" {
		return "Bearer " + tok
	}
	return ""
}

// CurrentUserName composes a display name: "username (firstname lastname)"
// when both halves exist, else whichever is present.
func (m *Manager) CurrentUserName() string {
	snap := m.Snapshot()
	if snap.User == nil {
		return ""
	}
	username := snap.User.Username
	parts := make([]string, 0, 2)
	for _, p := range []string{snap.User.Firstname, snap.User.Lastname} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	fullName := strings.TrimSpace(strings.Join(parts, " "))
	if username != "" && fullName != "" {
		return fmt.Sprintf("%s (%s)", username, fullName)
	}
	if username != "" {
		return username
	}
	return fullName
}

// UserProfileImage returns the current user's profile image, or "" when
// absent.
func (m *Manager) UserProfileImage() string {
	snap := m.Snapshot()
	if snap.User == nil {
		return ""
	}
	return snap.User.ProfileImage
}

// TokenExpiry reports the access token's exp claim without validating the
// signature. ok is false when no token is set or the claim is absent.
func (m *Manager) TokenExpiry() (time.Time, bool) {
	tok := m.BearerToken()
	if tok == "" {
		return time.Time{}, false
	}
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(tok, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// StorageTokenSource reads the bearer token straight from durable storage,
// bypassing the in-memory session. Used as the interceptor fallback when
// the manager has not been hydrated.
type StorageTokenSource struct {
	Store storage.Storage
}

// BearerToken implements transport.TokenSource.
func (s StorageTokenSource) BearerToken() string {
	if s.Store == nil {
		return ""
	}
	raw, ok := s.Store.GetItem(KeyAccessToken)
	if !ok {
		return ""
	}
	tok, _ := NormalizeToken(raw)
	return tok
}
