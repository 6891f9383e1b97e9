// Package limiter throttles login attempts on the client, so repeated bad
// credentials back off locally before another request is sent.
package limiter

import "time"

// Limiter controls login attempts and temporary local lockouts.
type Limiter interface {
	// Allow reports whether a login attempt may be sent now and, when it
	// may not, how long to wait.
	Allow(username string) (bool, time.Duration)
	// Success resets counters after a successful login.
	Success(username string)
	// Failure records a rejected attempt; may place a temporary block.
	Failure(username string)
}
