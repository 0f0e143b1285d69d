package domain

import (
	"encoding/json"
	"fmt"
)

// Session pairs an opaque credential token with the user snapshot cached at
// login time. The token is never verified on this side.
type Session struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// SessionState is the resolution state of a session store.
type SessionState int

const (
	StateInitializing SessionState = iota
	StateAuthenticated
	StateAnonymous
)

func (s SessionState) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateAuthenticated:
		return "authenticated"
	case StateAnonymous:
		return "anonymous"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// SessionSnapshot is an immutable view of a session store at one instant.
type SessionSnapshot struct {
	State   SessionState
	Session Session
}

// Loading reports whether the durable store has not been read yet.
func (s SessionSnapshot) Loading() bool { return s.State == StateInitializing }

// Authenticated reports whether a session is held.
func (s SessionSnapshot) Authenticated() bool { return s.State == StateAuthenticated }

// EncodeUser serialises the user record stored under the user key.
func EncodeUser(u User) (string, error) {
	b, err := json.Marshal(u.Sanitized())
	if err != nil {
		return "", fmt.Errorf("encode user: %w", err)
	}
	return string(b), nil
}

// DecodeSession rebuilds a Session from the raw values of the token and user
// keys. Any missing or unparseable part yields ErrCorruptSession.
func DecodeSession(token string, hasToken bool, rawUser string, hasUser bool) (Session, error) {
	if !hasToken || !hasUser {
		return Session{}, fmt.Errorf("%w: token present=%t user present=%t", ErrCorruptSession, hasToken, hasUser)
	}
	if token == "" {
		return Session{}, fmt.Errorf("%w: empty token", ErrCorruptSession)
	}

	var u User
	if err := json.Unmarshal([]byte(rawUser), &u); err != nil {
		return Session{}, fmt.Errorf("%w: %v", ErrCorruptSession, err)
	}
	if u.ID == "" || !u.Role.Valid() || !u.Status.Valid() {
		return Session{}, fmt.Errorf("%w: incomplete user record", ErrCorruptSession)
	}

	return Session{Token: token, User: u}, nil
}
