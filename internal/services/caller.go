package services

import "strings"

// Caller carries the identity and capability flags of the requesting
// principal. Every operation takes it explicitly; services never consult
// ambient session state.
type Caller struct {
	UserID    string
	Email     string
	SessionID string

	// Operator marks global platform staff. Operators bypass team admin
	// checks and their page visits are excluded from analytics.
	Operator bool
}

// SignedIn reports whether the caller is an authenticated user.
func (c Caller) SignedIn() bool {
	return strings.TrimSpace(c.UserID) != ""
}

// Identity returns the analytics identity: the user ID when signed in, the
// session ID otherwise.
func (c Caller) Identity() string {
	if c.SignedIn() {
		return c.UserID
	}
	return strings.TrimSpace(c.SessionID)
}
