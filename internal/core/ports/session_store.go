package ports

import (
	"context"

	"github.com/marketplace/storefront/internal/core/domain"
)

// ChangeCause says what triggered a session change.
type ChangeCause string

const (
	CauseInit     ChangeCause = "init"
	CauseLogin    ChangeCause = "login"
	CauseLogout   ChangeCause = "logout"
	CauseForced   ChangeCause = "forced_logout"
	CauseExternal ChangeCause = "external"
)

// SessionChange is published to subscribers after the store's state changed.
type SessionChange struct {
	Cause    ChangeCause
	Snapshot domain.SessionSnapshot
}

// SessionReader is the read side of a session store, as consumed by the
// access guard and the HTTP handlers.
type SessionReader interface {
	Snapshot() domain.SessionSnapshot
	Current() (domain.Session, bool)
	IsLoading() bool
	Subscribe(fn func(SessionChange)) (unsubscribe func())
}

// SessionManager is the full session store contract.
type SessionManager interface {
	SessionReader
	Init(ctx context.Context)
	Login(ctx context.Context, user domain.User, token string) error
	Logout(ctx context.Context)
	CheckAccess(ctx context.Context, policy domain.AccessPolicy, requestedPath string) domain.Decision
}

// SessionObserver receives session store telemetry.
type SessionObserver interface {
	Transition(cause ChangeCause, to domain.SessionState)
	CorruptRecord()
	StoreError(op string)
}
