package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/marketplace/storefront/internal/api/metrics"
	"github.com/marketplace/storefront/internal/core/domain"
	"github.com/marketplace/storefront/internal/core/ports"
)

// signInMessages maps reason codes to what the sign-in entry point shows.
var signInMessages = map[string]string{
	domain.ReasonAccountSuspended: "Your account has been suspended. Contact support to restore access.",
	domain.ReasonAccountBanned:    "Your account has been banned.",
}

type AuthHandler struct {
	credentials ports.CredentialService
	sessions    ports.SessionManager
}

func NewAuthHandler(credentials ports.CredentialService, sessions ports.SessionManager) *AuthHandler {
	return &AuthHandler{credentials: credentials, sessions: sessions}
}

// Register creates a new client or expert account.
//
// @Summary      Register a new account
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      registerRequest  true  "Account details"
// @Success      201   {object}  registerResponse
// @Failure      400   {object}  map[string]string
// @Failure      409   {object}  map[string]string
// @Failure      422   {object}  map[string]string
// @Router       /auth/register [post]
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}

	user, err := h.credentials.Register(c.Request().Context(), req.Email, req.Name, req.Password, domain.Role(req.Role))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, registerResponse{User: user})
}

// Login authenticates the account and starts the session of this context.
//
// @Summary      Login
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body      body      loginRequest  true   "Login credentials"
// @Param        redirect  query     string        false  "Path to return to after login"
// @Success      200       {object}  loginResponse
// @Failure      400       {object}  map[string]string
// @Failure      401       {object}  map[string]string
// @Failure      403       {object}  map[string]string
// @Router       /auth/login [post]
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}

	ctx := c.Request().Context()
	token, user, err := h.credentials.Login(ctx, req.Email, req.Password)
	if err != nil {
		metrics.LoginAttemptsTotal.WithLabelValues(loginResult(err)).Inc()
		return err
	}
	if err := h.sessions.Login(ctx, *user, token); err != nil {
		metrics.LoginAttemptsTotal.WithLabelValues("error").Inc()
		return err
	}
	metrics.LoginAttemptsTotal.WithLabelValues("success").Inc()

	returnTo := req.Redirect
	if returnTo == "" {
		returnTo = c.QueryParam("redirect")
	}
	return c.JSON(http.StatusOK, loginResponse{
		User:     user,
		Redirect: landingPath(returnTo, user.Role),
	})
}

// Logout ends the session of this context and navigates to sign-in.
//
// @Summary      Logout
// @Tags         auth
// @Success      302
// @Router       /auth/logout [post]
func (h *AuthHandler) Logout(c echo.Context) error {
	h.sessions.Logout(c.Request().Context())
	return c.Redirect(http.StatusFound, domain.LoginPath)
}

// Session reports the current session state of this context.
//
// @Summary      Current session
// @Tags         auth
// @Produce      json
// @Success      200  {object}  sessionResponse
// @Router       /session [get]
func (h *AuthHandler) Session(c echo.Context) error {
	snap := h.sessions.Snapshot()
	resp := sessionResponse{State: snap.State.String()}
	if snap.Authenticated() {
		u := snap.Session.User
		resp.User = &u
	}
	return c.JSON(http.StatusOK, resp)
}

// SignIn returns the sign-in entry point handler for the given path. Reason
// codes set by the access guard are turned into user-facing messages.
//
// @Summary      Sign-in entry point
// @Tags         auth
// @Produce      json
// @Param        redirect  query     string  false  "Path to return to after login"
// @Param        error     query     string  false  "Reason code"
// @Success      200       {object}  signInResponse
// @Router       /login [get]
func (h *AuthHandler) SignIn(entry string) echo.HandlerFunc {
	return func(c echo.Context) error {
		reason := c.QueryParam("error")
		return c.JSON(http.StatusOK, signInResponse{
			Entry:    entry,
			Redirect: c.QueryParam("redirect"),
			Error:    reason,
			Message:  signInMessages[reason],
		})
	}
}

// landingPath honours a local return path and falls back to the role home.
func landingPath(returnTo string, role domain.Role) string {
	if strings.HasPrefix(returnTo, "/") && !strings.HasPrefix(returnTo, "//") && !strings.Contains(returnTo, `\`) {
		return returnTo
	}
	return domain.RoleHome(role)
}

func loginResult(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, domain.ErrAccountSuspended):
		return domain.ReasonAccountSuspended
	case errors.Is(err, domain.ErrAccountBanned):
		return domain.ReasonAccountBanned
	default:
		return "error"
	}
}
