// Package model defines domain entities shared by the session manager and the news store.
package model

// Role is a server-side authority granted to an account.
type Role string

// Known roles. Anything outside this set is discarded during normalization.
const (
	RoleReader Role = "ROLE_READER"
	RoleMember Role = "ROLE_MEMBER"
	RoleAdmin  Role = "ROLE_ADMIN"
)

var roleWhitelist = map[Role]struct{}{
	RoleReader: {},
	RoleMember: {},
	RoleAdmin:  {},
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	_, ok := roleWhitelist[r]
	return ok
}

// NormalizeRoles filters raw role strings against the whitelist.
// Unknown values are dropped; the result may be empty but never nil.
func NormalizeRoles(raw []string) []Role {
	roles := make([]Role, 0, len(raw))
	for _, s := range raw {
		if r := Role(s); r.Valid() {
			roles = append(roles, r)
		}
	}
	return roles
}

// AuthUser is the authenticated account mirrored from the server.
// ID is 0 when the server did not supply a usable numeric id.
type AuthUser struct {
	ID           int64  `json:"id"`
	Username     string `json:"username"`
	Firstname    string `json:"firstname"`
	Lastname     string `json:"lastname"`
	Email        string `json:"email"`
	ProfileImage string `json:"profileImage,omitempty"`
	Roles        []Role `json:"roles"`
}

// HasRole reports exact membership of r in the user's role set.
func (u *AuthUser) HasRole(r Role) bool {
	if u == nil {
		return false
	}
	for _, have := range u.Roles {
		if have == r {
			return true
		}
	}
	return false
}

// SessionSnapshot is the full persisted session state. Empty token strings
// mean absence. A token without a user (or vice versa) is possible and is
// treated as unauthenticated, but both halves are persisted independently.
type SessionSnapshot struct {
	AccessToken  string
	RefreshToken string
	User         *AuthUser
}

// IsAuthenticated is true iff both an access token and a user are present.
func (s SessionSnapshot) IsAuthenticated() bool {
	return s.AccessToken != "" && s.User != nil
}

// Vote is a single real/fake verdict cast through a comment.
type Vote string

const (
	VoteReal Vote = "real"
	VoteFake Vote = "fake"
)

// Status is the derived classification of a news item. It is computed from
// vote tallies on every read and never stored as ground truth.
type Status string

const (
	StatusFake    Status = "fake"
	StatusNotFake Status = "not-fake"
	StatusEqual   Status = "equal"
	StatusRemoved Status = "removed"
)

// VoteSummary holds the per-verdict tallies of a news item.
type VoteSummary struct {
	Real int `json:"real"`
	Fake int `json:"fake"`
}

// Comment is a single verdict comment attached to a news item.
// Time is the server's timestamp string, passed through opaquely.
type Comment struct {
	ID       int64   `json:"id"`
	Username string  `json:"username"`
	Text     string  `json:"text"`
	Image    *string `json:"image"`
	Time     string  `json:"time"`
	Vote     Vote    `json:"vote"`
}

// NewsItem is a news record mirrored from the server. A negative ID marks a
// locally created item that has not been confirmed yet; server ids are
// always positive and the two ranges never mix.
type NewsItem struct {
	ID          int64       `json:"id"`
	Topic       string      `json:"topic"`
	ShortDetail string      `json:"shortDetail"`
	FullDetail  string      `json:"fullDetail"`
	Image       string      `json:"image"`
	Reporter    string      `json:"reporter"`
	DateTime    string      `json:"dateTime"`
	VoteSummary VoteSummary `json:"voteSummary"`
	TotalVotes  int         `json:"totalVotes"`
	Comments    []Comment   `json:"comments"`
	Status      Status      `json:"status,omitempty"`
	Removed     bool        `json:"removed,omitempty"`
}

// IsRemoved reports whether the item carries a removal mark, either as an
// explicit status or as the boolean flag.
func (n *NewsItem) IsRemoved() bool {
	return n.Status == StatusRemoved || n.Removed
}

// DeriveStatus classifies a (real, fake) tally pair. Removal is decided
// before calling this; see NewsItem.IsRemoved.
func DeriveStatus(real, fake int) Status {
	switch {
	case real > fake:
		return StatusNotFake
	case real < fake:
		return StatusFake
	default:
		return StatusEqual
	}
}

// CreateNewsPayload is the body of a news submission.
type CreateNewsPayload struct {
	Topic       string `json:"topic"`
	ShortDetail string `json:"shortDetail"`
	FullDetail  string `json:"fullDetail"`
	Image       string `json:"image"`
	Reporter    string `json:"reporter"`
	DateTime    string `json:"dateTime,omitempty"`
}

// CommentPayload is the body of a comment submission.
type CommentPayload struct {
	Username string  `json:"username"`
	Text     string  `json:"text"`
	Image    *string `json:"image"`
	Vote     Vote    `json:"vote"`
	NewsID   int64   `json:"newsId"`
}

// RegisterPayload is the body of an account registration.
type RegisterPayload struct {
	Username     string `json:"username"`
	Password     string `json:"password"`
	Firstname    string `json:"firstname"`
	Lastname     string `json:"lastname"`
	Email        string `json:"email"`
	ProfileImage string `json:"profileImage,omitempty"`
}

// UserRecord is an account row in the admin user listing.
type UserRecord struct {
	ID           int64  `json:"id"`
	Username     string `json:"username"`
	Firstname    string `json:"firstname"`
	Lastname     string `json:"lastname"`
	Email        string `json:"email"`
	ProfileImage string `json:"profileImage,omitempty"`
	Roles        []Role `json:"roles"`
}
