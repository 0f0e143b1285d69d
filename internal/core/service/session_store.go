package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/marketplace/storefront/internal/core/domain"
	"github.com/marketplace/storefront/internal/core/ports"
)

const defaultStoreTimeout = 5 * time.Second

// SessionStore is the single source of truth for who is logged in within one
// execution context. It persists the session to a DurableStore shared with
// other contexts and follows their changes through the store's notifications.
//
// All mutations are serialised by writeMu so that a durable read and the
// state it resolves to are applied atomically with respect to login/logout.
// Reads only take mu and never wait on I/O.
type SessionStore struct {
	store    ports.DurableStore
	keys     ports.SessionKeys
	timeout  time.Duration
	observer ports.SessionObserver
	log      zerolog.Logger

	writeMu sync.Mutex

	mu   sync.RWMutex
	snap domain.SessionSnapshot

	subMu  sync.Mutex
	subs   map[int]func(ports.SessionChange)
	nextID int

	initOnce sync.Once
	unwatch  func()
}

// SessionOption customises a SessionStore.
type SessionOption func(*SessionStore)

// WithSessionKeys overrides the durable key names.
func WithSessionKeys(keys ports.SessionKeys) SessionOption {
	return func(s *SessionStore) { s.keys = keys }
}

// WithObserver attaches a telemetry observer.
func WithObserver(o ports.SessionObserver) SessionOption {
	return func(s *SessionStore) {
		if o != nil {
			s.observer = o
		}
	}
}

// WithStoreTimeout bounds durable reads triggered by external changes.
func WithStoreTimeout(d time.Duration) SessionOption {
	return func(s *SessionStore) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// NewSessionStore returns a store in the Initializing state. Call Init to
// resolve it.
func NewSessionStore(store ports.DurableStore, log zerolog.Logger, opts ...SessionOption) *SessionStore {
	s := &SessionStore{
		store:    store,
		keys:     ports.DefaultSessionKeys,
		timeout:  defaultStoreTimeout,
		observer: nopObserver{},
		log:      log.With().Str("component", "session_store").Logger(),
		snap:     domain.SessionSnapshot{State: domain.StateInitializing},
		subs:     make(map[int]func(ports.SessionChange)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Init performs the first read of the durable store and starts following
// external changes. Only the first call has any effect.
//
// A partial or unparseable record is never reported: the store resolves to
// Anonymous and both session keys are cleared.
func (s *SessionStore) Init(ctx context.Context) {
	s.initOnce.Do(func() {
		s.unwatch = s.store.Subscribe(s.handleExternalChange)

		s.writeMu.Lock()
		snap, corrupt, err := s.readDurable(ctx)
		if err != nil {
			s.observer.StoreError("get")
			s.log.Warn().Err(err).Msg("session read failed, starting anonymous")
		}
		if corrupt {
			s.observer.CorruptRecord()
			s.log.Warn().Msg("corrupt persisted session cleared")
			if err := s.store.Delete(ctx, s.keys.Token, s.keys.User); err != nil {
				s.observer.StoreError("delete")
				s.log.Warn().Err(err).Msg("failed to clear corrupt session")
			}
		}
		change, _ := s.apply(ports.CauseInit, snap)
		s.writeMu.Unlock()

		s.publish(change)
	})
}

// Close stops following external changes.
func (s *SessionStore) Close() {
	s.writeMu.Lock()
	unwatch := s.unwatch
	s.unwatch = nil
	s.writeMu.Unlock()
	if unwatch != nil {
		unwatch()
	}
}

// Login stores a fresh session, replacing any previous one wholesale. The
// values are not validated beyond requiring both to be present. The new
// session is visible to the next Current call as soon as Login returns, even
// if persisting it failed.
func (s *SessionStore) Login(ctx context.Context, user domain.User, token string) error {
	if token == "" || user.ID == "" {
		return domain.ErrEmptySession
	}
	user = user.Sanitized()

	rawUser, err := domain.EncodeUser(user)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	if err := s.store.Set(ctx, map[string]string{
		s.keys.Token: token,
		s.keys.User:  rawUser,
	}); err != nil {
		s.observer.StoreError("set")
		s.log.Warn().Err(err).Str("user_id", user.ID).Msg("failed to persist session")
	}
	change, _ := s.apply(ports.CauseLogin, domain.SessionSnapshot{
		State:   domain.StateAuthenticated,
		Session: domain.Session{Token: token, User: user},
	})
	s.writeMu.Unlock()

	s.log.Info().Str("user_id", user.ID).Str("role", string(user.Role)).Msg("session started")
	s.publish(change)
	return nil
}

// Logout clears the session. Calling it without an active session is a no-op.
func (s *SessionStore) Logout(ctx context.Context) {
	s.writeMu.Lock()
	if s.Snapshot().State == domain.StateAnonymous {
		s.writeMu.Unlock()
		return
	}
	if err := s.store.Delete(ctx, s.keys.Token, s.keys.User); err != nil {
		s.observer.StoreError("delete")
		s.log.Warn().Err(err).Msg("failed to clear persisted session")
	}
	change, changed := s.apply(ports.CauseLogout, domain.SessionSnapshot{State: domain.StateAnonymous})
	s.writeMu.Unlock()

	if changed {
		s.log.Info().Str("cause", string(ports.CauseLogout)).Msg("session ended")
		s.publish(change)
	}
}

// CheckAccess evaluates a protected region against the current session. An
// account found not active is logged out before the decision is returned.
// If the session changed between the evaluation and the logout, the new
// session is evaluated instead.
func (s *SessionStore) CheckAccess(ctx context.Context, policy domain.AccessPolicy, requestedPath string) domain.Decision {
	snap := s.Snapshot()
	d := EvaluateAccess(snap, policy, requestedPath)
	if d.Reason == domain.DenyInactive && !s.forceLogout(ctx, snap.Session.Token) {
		return s.CheckAccess(ctx, policy, requestedPath)
	}
	return d
}

// forceLogout ends the session only while it still holds token. It reports
// false when another session replaced it in the meantime.
func (s *SessionStore) forceLogout(ctx context.Context, token string) bool {
	s.writeMu.Lock()
	cur := s.Snapshot()
	if !cur.Authenticated() || cur.Session.Token != token {
		s.writeMu.Unlock()
		return false
	}
	if err := s.store.Delete(ctx, s.keys.Token, s.keys.User); err != nil {
		s.observer.StoreError("delete")
		s.log.Warn().Err(err).Msg("failed to clear persisted session")
	}
	change, _ := s.apply(ports.CauseForced, domain.SessionSnapshot{State: domain.StateAnonymous})
	s.writeMu.Unlock()

	s.log.Info().Str("cause", string(ports.CauseForced)).Msg("session ended")
	s.publish(change)
	return true
}

// Snapshot returns the current state.
func (s *SessionStore) Snapshot() domain.SessionSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Current returns the held session, if any.
func (s *SessionStore) Current() (domain.Session, bool) {
	snap := s.Snapshot()
	return snap.Session, snap.Authenticated()
}

// IsLoading reports whether the durable store has not been read yet.
func (s *SessionStore) IsLoading() bool {
	return s.Snapshot().Loading()
}

// Subscribe registers fn to be called after every state change, local or
// external. Local changes are delivered before the mutating call returns.
func (s *SessionStore) Subscribe(fn func(ports.SessionChange)) func() {
	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

// handleExternalChange re-reads both keys after another context touched one
// of them. Partial records are not cleared here: the writer owns them.
func (s *SessionStore) handleExternalChange(ev ports.ChangeEvent) {
	if !s.keys.Has(ev.Key) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	s.writeMu.Lock()
	snap, _, err := s.readDurable(ctx)
	if err != nil {
		s.writeMu.Unlock()
		s.observer.StoreError("get")
		s.log.Warn().Err(err).Str("key", ev.Key).Msg("re-read after external change failed")
		return
	}
	change, changed := s.apply(ports.CauseExternal, snap)
	s.writeMu.Unlock()

	if changed {
		s.log.Info().Str("key", ev.Key).Str("state", snap.State.String()).Msg("session changed by another context")
		s.publish(change)
	}
}

// readDurable loads both session keys. corrupt is true when something was
// stored but did not form a valid session.
func (s *SessionStore) readDurable(ctx context.Context) (snap domain.SessionSnapshot, corrupt bool, err error) {
	anonymous := domain.SessionSnapshot{State: domain.StateAnonymous}

	token, hasToken, err := s.store.Get(ctx, s.keys.Token)
	if err != nil {
		return anonymous, false, err
	}
	rawUser, hasUser, err := s.store.Get(ctx, s.keys.User)
	if err != nil {
		return anonymous, false, err
	}
	if !hasToken && !hasUser {
		return anonymous, false, nil
	}

	sess, err := domain.DecodeSession(token, hasToken, rawUser, hasUser)
	if err != nil {
		if errors.Is(err, domain.ErrCorruptSession) {
			s.log.Debug().Err(err).Msg("persisted session rejected")
			return anonymous, true, nil
		}
		return anonymous, false, err
	}
	return domain.SessionSnapshot{State: domain.StateAuthenticated, Session: sess}, false, nil
}

// apply swaps the snapshot. Callers must hold writeMu.
func (s *SessionStore) apply(cause ports.ChangeCause, next domain.SessionSnapshot) (ports.SessionChange, bool) {
	s.mu.Lock()
	prev := s.snap
	s.snap = next
	s.mu.Unlock()

	changed := cause == ports.CauseInit || !sameSnapshot(prev, next)
	if changed {
		s.observer.Transition(cause, next.State)
	}
	return ports.SessionChange{Cause: cause, Snapshot: next}, changed
}

func (s *SessionStore) publish(change ports.SessionChange) {
	s.subMu.Lock()
	fns := make([]func(ports.SessionChange), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(change)
	}
}

func sameSnapshot(a, b domain.SessionSnapshot) bool {
	if a.State != b.State {
		return false
	}
	ua, ub := a.Session.User, b.Session.User
	return a.Session.Token == b.Session.Token &&
		ua.ID == ub.ID &&
		ua.Email == ub.Email &&
		ua.Name == ub.Name &&
		ua.Role == ub.Role &&
		ua.Status == ub.Status
}

type nopObserver struct{}

func (nopObserver) Transition(ports.ChangeCause, domain.SessionState) {}
func (nopObserver) CorruptRecord()                                    {}
func (nopObserver) StoreError(string)                                 {}
