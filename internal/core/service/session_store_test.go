package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/marketplace/storefront/internal/core/domain"
	"github.com/marketplace/storefront/internal/core/ports"
)

// ---------------------------------------------------------------------------
// Stubs
// ---------------------------------------------------------------------------

type stubDurableStore struct {
	mu      sync.Mutex
	data    map[string]string
	subs    map[int]func(ports.ChangeEvent)
	nextID  int
	getErr  error
	setErr  error
	deletes int
}

func newStubDurableStore() *stubDurableStore {
	return &stubDurableStore{
		data: make(map[string]string),
		subs: make(map[int]func(ports.ChangeEvent)),
	}
}

func (s *stubDurableStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return "", false, s.getErr
	}
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *stubDurableStore) Set(_ context.Context, entries map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.setErr != nil {
		return s.setErr
	}
	for k, v := range entries {
		s.data[k] = v
	}
	return nil
}

func (s *stubDurableStore) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes++
	for _, k := range keys {
		delete(s.data, k)
	}
	return nil
}

func (s *stubDurableStore) Subscribe(fn func(ports.ChangeEvent)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

func (s *stubDurableStore) Ping(context.Context) error { return nil }
func (s *stubDurableStore) Close() error               { return nil }

// external simulates another context writing the given entries (empty value
// means removal) followed by its change notifications.
func (s *stubDurableStore) external(entries map[string]string) {
	s.mu.Lock()
	for k, v := range entries {
		if v == "" {
			delete(s.data, k)
		} else {
			s.data[k] = v
		}
	}
	fns := make([]func(ports.ChangeEvent), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for k := range entries {
		for _, fn := range fns {
			fn(ports.ChangeEvent{Key: k})
		}
	}
}

func (s *stubDurableStore) has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.data[key]
	return ok
}

type recordingObserver struct {
	transitions []ports.ChangeCause
	corrupt     int
	storeErrors []string
}

func (o *recordingObserver) Transition(c ports.ChangeCause, _ domain.SessionState) {
	o.transitions = append(o.transitions, c)
}
func (o *recordingObserver) CorruptRecord()       { o.corrupt++ }
func (o *recordingObserver) StoreError(op string) { o.storeErrors = append(o.storeErrors, op) }

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

var sessionKeys = ports.DefaultSessionKeys

func testUser(role domain.Role, status domain.Status) domain.User {
	return domain.User{
		ID:        "u-" + string(role),
		Email:     string(role) + "@example.com",
		Name:      "Test " + string(role),
		Role:      role,
		Status:    status,
		CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func encodeUser(t *testing.T, u domain.User) string {
	t.Helper()
	raw, err := domain.EncodeUser(u)
	if err != nil {
		t.Fatalf("encode user: %v", err)
	}
	return raw
}

func seedSession(t *testing.T, st *stubDurableStore, token string, u domain.User) {
	t.Helper()
	st.data[sessionKeys.Token] = token
	st.data[sessionKeys.User] = encodeUser(t, u)
}

func newTestSessionStore(st *stubDurableStore, opts ...SessionOption) *SessionStore {
	return NewSessionStore(st, zerolog.Nop(), opts...)
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestSessionStore_StartsInitializing(t *testing.T) {
	s := newTestSessionStore(newStubDurableStore())

	if !s.IsLoading() {
		t.Fatalf("expected store to be loading before Init")
	}
	if _, ok := s.Current(); ok {
		t.Fatalf("expected no session before Init")
	}
}

func TestSessionStore_Init_EmptyStore(t *testing.T) {
	st := newStubDurableStore()
	s := newTestSessionStore(st)

	var got []ports.SessionChange
	s.Subscribe(func(c ports.SessionChange) { got = append(got, c) })
	s.Init(context.Background())

	if s.IsLoading() {
		t.Fatalf("expected store resolved after Init")
	}
	if state := s.Snapshot().State; state != domain.StateAnonymous {
		t.Fatalf("expected anonymous, got %s", state)
	}
	if len(got) != 1 || got[0].Cause != ports.CauseInit {
		t.Fatalf("expected one init notification, got %+v", got)
	}
	if st.deletes != 0 {
		t.Fatalf("empty store must not be rewritten")
	}
}

func TestSessionStore_Init_ValidSession(t *testing.T) {
	st := newStubDurableStore()
	u := testUser(domain.RoleExpert, domain.StatusActive)
	seedSession(t, st, "t1", u)

	s := newTestSessionStore(st)
	s.Init(context.Background())

	sess, ok := s.Current()
	if !ok {
		t.Fatalf("expected authenticated session")
	}
	if sess.Token != "t1" || sess.User.ID != u.ID || sess.User.Role != domain.RoleExpert {
		t.Fatalf("unexpected session: %+v", sess)
	}
}

func TestSessionStore_Init_MalformedRecordsCleared(t *testing.T) {
	valid := `{"id":"u1","email":"a@example.com","name":"A","role":"client","status":"active"}`

	tests := []struct {
		name    string
		entries map[string]string
	}{
		{"missing user", map[string]string{sessionKeys.Token: "t1"}},
		{"missing token", map[string]string{sessionKeys.User: valid}},
		{"invalid json", map[string]string{sessionKeys.Token: "t1", sessionKeys.User: "{not json"}},
		{"unknown role", map[string]string{sessionKeys.Token: "t1", sessionKeys.User: `{"id":"u1","role":"owner","status":"active"}`}},
		{"unknown status", map[string]string{sessionKeys.Token: "t1", sessionKeys.User: `{"id":"u1","role":"client","status":"frozen"}`}},
		{"missing id", map[string]string{sessionKeys.Token: "t1", sessionKeys.User: `{"role":"client","status":"active"}`}},
		{"empty token", map[string]string{sessionKeys.Token: "", sessionKeys.User: valid}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := newStubDurableStore()
			for k, v := range tt.entries {
				st.data[k] = v
			}
			obs := &recordingObserver{}
			s := newTestSessionStore(st, WithObserver(obs))

			s.Init(context.Background())

			if state := s.Snapshot().State; state != domain.StateAnonymous {
				t.Fatalf("expected anonymous, got %s", state)
			}
			if st.has(sessionKeys.Token) || st.has(sessionKeys.User) {
				t.Fatalf("expected both keys cleared, got %v", st.data)
			}
			if obs.corrupt != 1 {
				t.Fatalf("expected corrupt record to be reported once, got %d", obs.corrupt)
			}
		})
	}
}

func TestSessionStore_Init_ReadErrorResolvesAnonymous(t *testing.T) {
	st := newStubDurableStore()
	st.getErr = errors.New("backend down")
	obs := &recordingObserver{}
	s := newTestSessionStore(st, WithObserver(obs))

	s.Init(context.Background())

	if state := s.Snapshot().State; state != domain.StateAnonymous {
		t.Fatalf("expected anonymous, got %s", state)
	}
	if len(obs.storeErrors) != 1 || obs.storeErrors[0] != "get" {
		t.Fatalf("expected get error to be observed, got %v", obs.storeErrors)
	}
}

func TestSessionStore_Init_OnlyOnce(t *testing.T) {
	st := newStubDurableStore()
	s := newTestSessionStore(st)
	s.Init(context.Background())

	seedSession(t, st, "late", testUser(domain.RoleClient, domain.StatusActive))
	s.Init(context.Background())

	if _, ok := s.Current(); ok {
		t.Fatalf("second Init must not re-read the store")
	}
}

func TestSessionStore_Login_VisibleImmediately(t *testing.T) {
	st := newStubDurableStore()
	s := newTestSessionStore(st)
	s.Init(context.Background())

	u := testUser(domain.RoleClient, domain.StatusActive)
	u.PasswordHash = "hash"
	if err := s.Login(context.Background(), u, "tok"); err != nil {
		t.Fatalf("Login: %v", err)
	}

	sess, ok := s.Current()
	if !ok {
		t.Fatalf("expected session after login")
	}
	if sess.Token != "tok" || sess.User.ID != u.ID || sess.User.Email != u.Email {
		t.Fatalf("unexpected session: %+v", sess)
	}
	if sess.User.PasswordHash != "" {
		t.Fatalf("secret fields must not be cached")
	}
	if st.data[sessionKeys.Token] != "tok" || !st.has(sessionKeys.User) {
		t.Fatalf("expected both keys persisted, got %v", st.data)
	}
}

func TestSessionStore_Login_RoundTripsThroughStore(t *testing.T) {
	st := newStubDurableStore()
	first := newTestSessionStore(st)
	first.Init(context.Background())

	u := testUser(domain.RoleAdmin, domain.StatusActive)
	if err := first.Login(context.Background(), u, "tok"); err != nil {
		t.Fatalf("Login: %v", err)
	}

	second := newTestSessionStore(st)
	second.Init(context.Background())

	sess, ok := second.Current()
	if !ok || sess.Token != "tok" || sess.User.Role != domain.RoleAdmin || !sess.User.CreatedAt.Equal(u.CreatedAt) {
		t.Fatalf("unexpected reloaded session: %+v ok=%t", sess, ok)
	}
}

func TestSessionStore_Login_RequiresUserAndToken(t *testing.T) {
	s := newTestSessionStore(newStubDurableStore())
	s.Init(context.Background())

	if err := s.Login(context.Background(), testUser(domain.RoleClient, domain.StatusActive), ""); !errors.Is(err, domain.ErrEmptySession) {
		t.Fatalf("expected ErrEmptySession for empty token, got %v", err)
	}
	if err := s.Login(context.Background(), domain.User{}, "tok"); !errors.Is(err, domain.ErrEmptySession) {
		t.Fatalf("expected ErrEmptySession for empty user, got %v", err)
	}
	if _, ok := s.Current(); ok {
		t.Fatalf("rejected login must not change state")
	}
}

func TestSessionStore_Login_PersistFailureKeepsMemoryState(t *testing.T) {
	st := newStubDurableStore()
	st.setErr = errors.New("disk full")
	obs := &recordingObserver{}
	s := newTestSessionStore(st, WithObserver(obs))
	s.Init(context.Background())

	if err := s.Login(context.Background(), testUser(domain.RoleClient, domain.StatusActive), "tok"); err != nil {
		t.Fatalf("Login must not surface persistence errors, got %v", err)
	}
	if _, ok := s.Current(); !ok {
		t.Fatalf("expected in-memory session despite persistence failure")
	}
	if len(obs.storeErrors) != 1 || obs.storeErrors[0] != "set" {
		t.Fatalf("expected set error to be observed, got %v", obs.storeErrors)
	}
}

func TestSessionStore_Logout_Idempotent(t *testing.T) {
	st := newStubDurableStore()
	seedSession(t, st, "t1", testUser(domain.RoleClient, domain.StatusActive))
	s := newTestSessionStore(st)
	s.Init(context.Background())

	var causes []ports.ChangeCause
	s.Subscribe(func(c ports.SessionChange) { causes = append(causes, c.Cause) })

	s.Logout(context.Background())
	afterOnce := s.Snapshot()
	deletesAfterOnce := st.deletes

	s.Logout(context.Background())

	if s.Snapshot() != afterOnce {
		t.Fatalf("second logout changed state")
	}
	if afterOnce.State != domain.StateAnonymous {
		t.Fatalf("expected anonymous after logout, got %s", afterOnce.State)
	}
	if st.deletes != deletesAfterOnce {
		t.Fatalf("second logout must be a no-op")
	}
	if st.has(sessionKeys.Token) || st.has(sessionKeys.User) {
		t.Fatalf("expected keys cleared, got %v", st.data)
	}
	if len(causes) != 1 || causes[0] != ports.CauseLogout {
		t.Fatalf("expected a single logout notification, got %v", causes)
	}
}

func TestSessionStore_ExternalLogout(t *testing.T) {
	st := newStubDurableStore()
	seedSession(t, st, "t1", testUser(domain.RoleClient, domain.StatusActive))
	s := newTestSessionStore(st)
	s.Init(context.Background())

	var got []ports.SessionChange
	s.Subscribe(func(c ports.SessionChange) { got = append(got, c) })

	st.external(map[string]string{sessionKeys.Token: "", sessionKeys.User: ""})

	if state := s.Snapshot().State; state != domain.StateAnonymous {
		t.Fatalf("expected anonymous after external logout, got %s", state)
	}
	if len(got) != 1 || got[0].Cause != ports.CauseExternal {
		t.Fatalf("expected exactly one external notification, got %+v", got)
	}
}

func TestSessionStore_ExternalLoginAsSomeoneElse(t *testing.T) {
	st := newStubDurableStore()
	seedSession(t, st, "t1", testUser(domain.RoleClient, domain.StatusActive))
	s := newTestSessionStore(st)
	s.Init(context.Background())

	other := testUser(domain.RoleExpert, domain.StatusActive)
	st.external(map[string]string{sessionKeys.Token: "t2", sessionKeys.User: encodeUser(t, other)})

	sess, ok := s.Current()
	if !ok || sess.Token != "t2" || sess.User.ID != other.ID {
		t.Fatalf("expected session switched to other user, got %+v", sess)
	}
}

func TestSessionStore_ExternalPartialRecordNotCleared(t *testing.T) {
	st := newStubDurableStore()
	s := newTestSessionStore(st)
	s.Init(context.Background())

	st.external(map[string]string{sessionKeys.Token: "t2"})

	if state := s.Snapshot().State; state != domain.StateAnonymous {
		t.Fatalf("expected anonymous, got %s", state)
	}
	if !st.has(sessionKeys.Token) {
		t.Fatalf("partial record written by another context must not be cleared")
	}
}

func TestSessionStore_IgnoresUnrelatedKeys(t *testing.T) {
	st := newStubDurableStore()
	seedSession(t, st, "t1", testUser(domain.RoleClient, domain.StatusActive))
	s := newTestSessionStore(st)
	s.Init(context.Background())

	notified := false
	s.Subscribe(func(ports.SessionChange) { notified = true })
	st.external(map[string]string{"cart": "3 items"})

	if notified {
		t.Fatalf("unrelated key must not trigger a re-resolution")
	}
}

func TestSessionStore_Close_StopsFollowing(t *testing.T) {
	st := newStubDurableStore()
	seedSession(t, st, "t1", testUser(domain.RoleClient, domain.StatusActive))
	s := newTestSessionStore(st)
	s.Init(context.Background())
	s.Close()

	st.external(map[string]string{sessionKeys.Token: "", sessionKeys.User: ""})

	if _, ok := s.Current(); !ok {
		t.Fatalf("closed store must not follow external changes")
	}
}

func TestSessionStore_Unsubscribe(t *testing.T) {
	s := newTestSessionStore(newStubDurableStore())
	calls := 0
	unsubscribe := s.Subscribe(func(ports.SessionChange) { calls++ })
	unsubscribe()

	s.Init(context.Background())

	if calls != 0 {
		t.Fatalf("unsubscribed listener was called %d times", calls)
	}
}

func TestSessionStore_CheckAccess_ForcesLogoutForInactiveAccount(t *testing.T) {
	st := newStubDurableStore()
	seedSession(t, st, "t1", testUser(domain.RoleAdmin, domain.StatusSuspended))
	s := newTestSessionStore(st)
	s.Init(context.Background())

	var causes []ports.ChangeCause
	s.Subscribe(func(c ports.SessionChange) { causes = append(causes, c.Cause) })

	d := s.CheckAccess(context.Background(), domain.AccessPolicy{
		RequiredRole: domain.RoleAdmin,
		LoginPath:    domain.AdminLoginPath,
	}, "/admin/dashboard")

	if d.Location != "/admin/login?error=account_suspended" {
		t.Fatalf("unexpected redirect: %q", d.Location)
	}
	if _, ok := s.Current(); ok {
		t.Fatalf("expected forced logout")
	}
	if st.has(sessionKeys.Token) || st.has(sessionKeys.User) {
		t.Fatalf("expected keys cleared by forced logout")
	}
	if len(causes) != 1 || causes[0] != ports.CauseForced {
		t.Fatalf("expected forced logout notification, got %v", causes)
	}
}

func TestSessionStore_CheckAccess_ScenarioEmptyStore(t *testing.T) {
	s := newTestSessionStore(newStubDurableStore())
	s.Init(context.Background())

	d := s.CheckAccess(context.Background(), domain.AccessPolicy{RequiredRole: domain.RoleClient}, "/client/dashboard")

	if d.Outcome != domain.OutcomeRedirect || d.Location != "/login?redirect=/client/dashboard" {
		t.Fatalf("unexpected decision: %+v", d)
	}
}

func TestSessionStore_CheckAccess_ScenarioWrongRole(t *testing.T) {
	st := newStubDurableStore()
	seedSession(t, st, "t1", testUser(domain.RoleExpert, domain.StatusActive))
	s := newTestSessionStore(st)
	s.Init(context.Background())

	d := s.CheckAccess(context.Background(), domain.AccessPolicy{RequiredRole: domain.RoleClient}, "/client/dashboard")

	if d.Location != "/expert/dashboard" || d.Reason != domain.DenyRoleMismatch {
		t.Fatalf("unexpected decision: %+v", d)
	}
	if _, ok := s.Current(); !ok {
		t.Fatalf("role mismatch must not end the session")
	}
}

func TestSessionStore_CheckAccess_WhileLoading(t *testing.T) {
	st := newStubDurableStore()
	seedSession(t, st, "t1", testUser(domain.RoleClient, domain.StatusActive))
	s := newTestSessionStore(st)

	d := s.CheckAccess(context.Background(), domain.AccessPolicy{RequiredRole: domain.RoleClient}, "/client/dashboard")

	if d.Outcome != domain.OutcomeLoading || d.Location != "" {
		t.Fatalf("expected loading without redirect, got %+v", d)
	}
}

func TestSessionStore_ForcedLogoutSparesReplacedSession(t *testing.T) {
	st := newStubDurableStore()
	s := newTestSessionStore(st)
	s.Init(context.Background())
	if err := s.Login(context.Background(), testUser(domain.RoleClient, domain.StatusActive), "fresh"); err != nil {
		t.Fatalf("login: %v", err)
	}

	if s.forceLogout(context.Background(), "stale") {
		t.Fatal("forced logout must not end a session it did not evaluate")
	}
	if sess, ok := s.Current(); !ok || sess.Token != "fresh" {
		t.Fatalf("expected fresh session kept, got %+v %v", sess, ok)
	}
	if !st.has(sessionKeys.Token) || !st.has(sessionKeys.User) {
		t.Fatal("fresh session keys must stay in the durable store")
	}
}

func TestSessionStore_CheckAccess_AdmitsSessionReplacedByAnotherContext(t *testing.T) {
	st := newStubDurableStore()
	seedSession(t, st, "old", testUser(domain.RoleClient, domain.StatusSuspended))
	s := newTestSessionStore(st)
	s.Init(context.Background())

	// Another context signs in with an active account before the guard runs.
	st.external(map[string]string{
		sessionKeys.Token: "new",
		sessionKeys.User:  encodeUser(t, testUser(domain.RoleClient, domain.StatusActive)),
	})

	d := s.CheckAccess(context.Background(), domain.AccessPolicy{RequiredRole: domain.RoleClient}, "/client/dashboard")
	if !d.Allowed() || d.Session.Token != "new" {
		t.Fatalf("expected the new session to be admitted, got %+v", d)
	}
	if !st.has(sessionKeys.Token) {
		t.Fatal("new session must survive")
	}
}
