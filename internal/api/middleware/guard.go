package middleware

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/marketplace/storefront/internal/api/metrics"
	"github.com/marketplace/storefront/internal/core/domain"
)

// SessionKey is the echo context key under which Guard stores the session
// that was granted access.
const SessionKey = "session"

// AccessChecker is the part of the session store Guard depends on.
type AccessChecker interface {
	CheckAccess(ctx context.Context, policy domain.AccessPolicy, requestedPath string) domain.Decision
}

// Guard gates a protected region. It never returns an error: the request is
// either passed on, redirected, or answered with an empty loading response
// while the session store has not resolved yet.
func Guard(sessions AccessChecker, policy domain.AccessPolicy, log zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			d := sessions.CheckAccess(req.Context(), policy, req.URL.RequestURI())
			metrics.ObserveDecision(d)

			switch d.Outcome {
			case domain.OutcomeAllow:
				c.Set(SessionKey, d.Session)
				return next(c)

			case domain.OutcomeRedirect:
				log.Debug().
					Str("path", req.URL.Path).
					Str("reason", string(d.Reason)).
					Str("location", d.Location).
					Msg("access redirected")
				return c.Redirect(http.StatusFound, d.Location)

			default:
				c.Response().Header().Set("Retry-After", "1")
				return c.NoContent(http.StatusServiceUnavailable)
			}
		}
	}
}
