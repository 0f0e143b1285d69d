package ports

import "context"

// ChangeEvent is a cross-context notification. It carries only the name of
// the key that changed, never its value.
type ChangeEvent struct {
	Key string
}

// DurableStore is one execution context's handle on an origin-scoped,
// persistent key-value map shared by every context of the same namespace.
//
// Writes are whole-record replacements. Change notifications are delivered
// asynchronously to the other open handles only; the handle that performed
// a write is never notified of it.
type DurableStore interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	// Set writes all entries in one atomic replacement.
	Set(ctx context.Context, entries map[string]string) error
	// Delete removes all keys in one atomic write. Missing keys are ignored.
	Delete(ctx context.Context, keys ...string) error
	// Subscribe registers fn for external change notifications and returns
	// a function that cancels the registration.
	Subscribe(fn func(ChangeEvent)) (unsubscribe func())
	Ping(ctx context.Context) error
	Close() error
}

// SessionKeys names the two durable keys that together hold a session.
type SessionKeys struct {
	Token string
	User  string
}

// DefaultSessionKeys are the key names used when none are configured.
var DefaultSessionKeys = SessionKeys{Token: "auth_token", User: "auth_user"}

// Has reports whether key is one of the session keys.
func (k SessionKeys) Has(key string) bool {
	return key == k.Token || key == k.User
}
