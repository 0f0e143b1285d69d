package domain

import "errors"

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountSuspended   = errors.New("account suspended")
	ErrAccountBanned      = errors.New("account banned")
	ErrUserNotFound       = errors.New("user not found")
	ErrUserExists         = errors.New("user already exists")
	ErrForbidden          = errors.New("access forbidden")

	ErrUnknownRole    = errors.New("unknown role")
	ErrUnknownStatus  = errors.New("unknown status")
	ErrCorruptSession = errors.New("corrupt persisted session")
	ErrEmptySession   = errors.New("session requires a user and a token")
)

// StatusError maps a non-active account status to its login error.
func StatusError(s Status) error {
	switch s {
	case StatusSuspended:
		return ErrAccountSuspended
	case StatusBanned:
		return ErrAccountBanned
	}
	return nil
}
