package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/marketplace/storefront/internal/core/domain"
	"github.com/marketplace/storefront/internal/core/service"
	"github.com/marketplace/storefront/internal/infrastructure/queue"
	"github.com/marketplace/storefront/internal/infrastructure/store/memory"
)

type stubChecker struct {
	decision domain.Decision
	policy   domain.AccessPolicy
	path     string
}

func (s *stubChecker) CheckAccess(_ context.Context, policy domain.AccessPolicy, requestedPath string) domain.Decision {
	s.policy = policy
	s.path = requestedPath
	return s.decision
}

func serve(t *testing.T, mw echo.MiddlewareFunc, target string) (*httptest.ResponseRecorder, bool) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	called := false
	handler := mw(func(c echo.Context) error {
		called = true
		return c.NoContent(http.StatusOK)
	})
	if err := handler(c); err != nil {
		t.Fatalf("guard must not return errors, got %v", err)
	}
	return rec, called
}

func TestGuard_Allows(t *testing.T) {
	sess := domain.Session{Token: "t1", User: domain.User{ID: "u1", Role: domain.RoleClient, Status: domain.StatusActive}}
	checker := &stubChecker{decision: domain.Decision{Outcome: domain.OutcomeAllow, Session: sess}}

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/client/dashboard?tab=orders", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	policy := domain.AccessPolicy{RequiredRole: domain.RoleClient}
	handler := Guard(checker, policy, zerolog.Nop())(func(c echo.Context) error {
		got, ok := c.Get(SessionKey).(domain.Session)
		if !ok || got.User.ID != "u1" {
			t.Fatalf("session not set on context: %+v", c.Get(SessionKey))
		}
		return c.NoContent(http.StatusOK)
	})

	if err := handler(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if checker.path != "/client/dashboard?tab=orders" {
		t.Fatalf("expected full request URI, got %q", checker.path)
	}
	if checker.policy != policy {
		t.Fatalf("policy not forwarded: %+v", checker.policy)
	}
}

func TestGuard_Redirects(t *testing.T) {
	checker := &stubChecker{decision: domain.Decision{
		Outcome:  domain.OutcomeRedirect,
		Reason:   domain.DenyNoSession,
		Location: "/login?redirect=/client/dashboard",
	}}

	rec, called := serve(t, Guard(checker, domain.AccessPolicy{}, zerolog.Nop()), "/client/dashboard")

	if called {
		t.Fatalf("protected handler must not run")
	}
	if rec.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d", rec.Code)
	}
	if loc := rec.Header().Get(echo.HeaderLocation); loc != "/login?redirect=/client/dashboard" {
		t.Fatalf("unexpected location %q", loc)
	}
}

func TestGuard_LoadingRendersNothing(t *testing.T) {
	checker := &stubChecker{decision: domain.Decision{Outcome: domain.OutcomeLoading}}

	rec, called := serve(t, Guard(checker, domain.AccessPolicy{}, zerolog.Nop()), "/account")

	if called {
		t.Fatalf("protected handler must not run while loading")
	}
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	if rec.Header().Get(echo.HeaderLocation) != "" {
		t.Fatalf("loading must not redirect")
	}
	if rec.Header().Get("Retry-After") != "1" {
		t.Fatalf("expected Retry-After header")
	}
	if rec.Body.Len() != 0 {
		t.Fatalf("expected empty body, got %q", rec.Body.String())
	}
}

func TestGuard_WithSessionStore(t *testing.T) {
	d := queue.NewDispatcher(1, zerolog.Nop())
	d.Start(context.Background())
	defer d.Stop()

	handle := memory.NewHub(d).Open()
	store := service.NewSessionStore(handle, zerolog.Nop())
	policy := domain.AccessPolicy{RequiredRole: domain.RoleAdmin, LoginPath: domain.AdminLoginPath}
	mw := Guard(store, policy, zerolog.Nop())

	rec, called := serve(t, mw, "/admin/dashboard")
	if called || rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected loading before init, got %d called=%t", rec.Code, called)
	}

	store.Init(context.Background())
	admin := domain.User{ID: "a1", Role: domain.RoleAdmin, Status: domain.StatusSuspended}
	if err := store.Login(context.Background(), admin, "t1"); err != nil {
		t.Fatalf("Login: %v", err)
	}

	rec, called = serve(t, mw, "/admin/dashboard")
	if called {
		t.Fatalf("suspended admin must not reach admin content")
	}
	if loc := rec.Header().Get(echo.HeaderLocation); loc != "/admin/login?error=account_suspended" {
		t.Fatalf("unexpected location %q", loc)
	}
	if _, ok := store.Current(); ok {
		t.Fatalf("expected forced logout")
	}

	rec, _ = serve(t, mw, "/admin/dashboard")
	if loc := rec.Header().Get(echo.HeaderLocation); loc != "/admin/login?redirect=/admin/dashboard" {
		t.Fatalf("unexpected location after forced logout %q", loc)
	}
}
