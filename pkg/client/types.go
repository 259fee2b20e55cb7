package client

import (
	"time"
)

// Identity is the authenticated principal. Values are never mutated after
// construction; every successful sign-in replaces the Identity wholesale.
type Identity struct {
	UID           string `json:"uid"`
	Email         string `json:"email,omitempty"`
	EmailVerified bool   `json:"emailVerified"`
	DisplayName   string `json:"displayName,omitempty"`
	PhotoURL      string `json:"photoUrl,omitempty"`
}

// IsAnonymous reports whether the identity has no email.
func (i Identity) IsAnonymous() bool {
	return i.Email == ""
}

// Snapshot is a consistent view of the four-field session tuple.
type Snapshot struct {
	Identity     *Identity `json:"identity,omitempty"`
	AccessToken  string    `json:"accessToken,omitempty"`
	RefreshToken string    `json:"refreshToken,omitempty"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// signedIn evaluates the signed-in invariant against now.
func (s Snapshot) signedIn(now time.Time) bool {
	return s.Identity != nil && s.AccessToken != "" && now.Before(s.ExpiresAt)
}

// AuthMode selects how a pipeline call carries the access token.
type AuthMode int

const (
	// AuthNone sends the call without a token.
	AuthNone AuthMode = iota
	// AuthBearer sends "Authorization: Bearer <token>".
	AuthBearer
	// AuthQuery appends "auth=<token>" to the query string.
	AuthQuery
)

func (m AuthMode) String() string {
	switch m {
	case AuthBearer:
		return "bearer"
	case AuthQuery:
		return "query"
	default:
		return "none"
	}
}

// Call describes one pipeline invocation.
type Call struct {
	// Service labels the call for logging and metrics ("auth", "database", ...).
	Service string
	URL     string
	Method  string
	Body    []byte
	Headers map[string]string
	Auth    AuthMode
}
