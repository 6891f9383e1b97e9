package session

import (
	"strconv"
	"strings"

	"github.com/crowdcheck/newsclient/internal/model"
)

// Accepted token field names in priority order. Older backends answered with
// camelCase variants and a bare "token" field; all are still read.
var (
	accessTokenKeys  = []string{"access_token", "accessToken", "token"}
	refreshTokenKeys = []string{"refresh_token", "refreshToken"}
)

// NormalizeToken cleans a raw stored token: trims whitespace, strips a
// single layer of enclosing matching quotes, and maps the literals "null"
// and "undefined" (and the empty string) to absence. This guards against
// values serialized by an inconsistent earlier writer.
func NormalizeToken(raw string) (string, bool) {
	v := strings.TrimSpace(raw)
	if len(v) >= 2 {
		if (v[0] == '"' && v[len(v)-1] == '"') || (v[0] == '\'' && v[len(v)-1] == '\'') {
			v = strings.TrimSpace(v[1 : len(v)-1])
		}
	}
	if v == "" || v == "null" || v == "undefined" {
		return "", false
	}
	return v, true
}

// extractAccessToken pulls the access token out of a loosely-shaped payload,
// checking the accepted field names in priority order.
func extractAccessToken(payload map[string]any) (string, bool) {
	return extractToken(payload, accessTokenKeys)
}

// extractRefreshToken is the refresh-token counterpart of extractAccessToken.
func extractRefreshToken(payload map[string]any) (string, bool) {
	return extractToken(payload, refreshTokenKeys)
}

func extractToken(payload map[string]any, keys []string) (string, bool) {
	for _, k := range keys {
		if s, ok := payload[k].(string); ok && s != "" {
			return s, true
		}
	}
	return "", false
}

// mapUser converts a loosely-shaped user record to an AuthUser. Non-object
// input yields nil. Roles outside the whitelist are dropped; an id that is
// not numeric (or numeric-looking) maps to 0.
func mapUser(raw any) *model.AuthUser {
	rec, ok := raw.(map[string]any)
	if !ok {
		return nil
	}
	u := &model.AuthUser{
		ID:           coerceID(rec["id"]),
		Username:     stringField(rec, "username"),
		Firstname:    stringField(rec, "firstname"),
		Lastname:     stringField(rec, "lastname"),
		Email:        stringField(rec, "email"),
		ProfileImage: stringField(rec, "profileImage"),
		Roles:        normalizeRawRoles(rec["roles"]),
	}
	return u
}

func coerceID(v any) int64 {
	switch id := v.(type) {
	case float64:
		return int64(id)
	case int64:
		return id
	case int:
		return int64(id)
	case string:
		if n, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64); err == nil {
			return n
		}
	}
	return 0
}

func stringField(rec map[string]any, key string) string {
	s, _ := rec[key].(string)
	return s
}

func normalizeRawRoles(v any) []model.Role {
	list, ok := v.([]any)
	if !ok {
		return []model.Role{}
	}
	raw := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			raw = append(raw, s)
		}
	}
	return model.NormalizeRoles(raw)
}
