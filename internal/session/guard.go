package session

import "github.com/crowdcheck/newsclient/internal/model"

// Guard outcomes. A denied navigation is redirected to the home view with a
// "denied" signal; it is never an error path.
const (
	RedirectHome = "home"
	SignalDenied = "denied"
)

// Decision is the outcome of a route authorization check.
type Decision struct {
	Allowed  bool
	Redirect string // destination when not allowed
	Signal   string // attached to the redirect, e.g. SignalDenied
}

// Authorize gates navigation to a destination declaring required roles.
// A destination with no required roles is unconditionally granted.
func (m *Manager) Authorize(required ...model.Role) Decision {
	if len(required) == 0 {
		return Decision{Allowed: true}
	}
	if m.HasAnyRole(required...) {
		return Decision{Allowed: true}
	}
	return Decision{Redirect: RedirectHome, Signal: SignalDenied}
}
