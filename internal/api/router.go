package api

import (
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"

	"github.com/marketplace/storefront/internal/api/handler"
	"github.com/marketplace/storefront/internal/api/middleware"
	"github.com/marketplace/storefront/internal/core/domain"
	"github.com/marketplace/storefront/internal/core/ports"
	"github.com/marketplace/storefront/internal/infrastructure/http/handlers"
)

// Dependencies groups what the router needs to build its handlers.
type Dependencies struct {
	Credentials ports.CredentialService
	Sessions    ports.SessionManager
	// Readiness lists the dependency checks run by GET /health/ready.
	Readiness map[string]handlers.Check
	Log       zerolog.Logger
	// Registry receives the HTTP request metrics and backs GET /metrics.
	// Nil means the default Prometheus registry.
	Registry *prometheus.Registry
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(deps Dependencies) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(deps.Log)

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(echomiddleware.Logger())
	e.Use(echoprometheus.NewMiddlewareWithConfig(promConfig(deps.Registry)))

	// --- Dependencies ---
	authHandler := handler.NewAuthHandler(deps.Credentials, deps.Sessions)
	dashboardHandler := handler.NewDashboardHandler()

	guard := func(role domain.Role, loginPath string) echo.MiddlewareFunc {
		return middleware.Guard(deps.Sessions, domain.AccessPolicy{
			RequiredRole: role,
			LoginPath:    loginPath,
		}, deps.Log)
	}

	// --- Auth routes ---
	e.POST("/auth/register", authHandler.Register)
	e.POST("/auth/login", authHandler.Login)
	e.POST("/auth/logout", authHandler.Logout)
	e.GET("/session", authHandler.Session)

	// --- Sign-in entry points ---
	e.GET(domain.LoginPath, authHandler.SignIn(domain.LoginPath))
	e.GET(domain.AdminLoginPath, authHandler.SignIn(domain.AdminLoginPath))

	// --- Protected areas ---
	e.GET("/client/dashboard", dashboardHandler.Area("client"), guard(domain.RoleClient, domain.LoginPath))
	e.GET("/expert/dashboard", dashboardHandler.Area("expert"), guard(domain.RoleExpert, domain.LoginPath))
	e.GET("/admin/dashboard", dashboardHandler.Area("admin"), guard(domain.RoleAdmin, domain.AdminLoginPath))
	e.GET("/account", dashboardHandler.Area("account"), guard("", domain.LoginPath))

	// --- Health probes (no session required) ---
	healthHandler := handlers.NewHealthHandler()
	readinessHandler := handlers.NewReadinessHandler(deps.Readiness)

	e.GET("/health", healthHandler.Liveness)
	e.GET("/health/ready", readinessHandler.Readiness)

	// --- Operations ---
	e.GET("/metrics", promHandler(deps.Registry))
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	return e
}

func promConfig(reg *prometheus.Registry) echoprometheus.MiddlewareConfig {
	cfg := echoprometheus.MiddlewareConfig{Subsystem: "storefront"}
	if reg != nil {
		cfg.Registerer = reg
	}
	return cfg
}

func promHandler(reg *prometheus.Registry) echo.HandlerFunc {
	if reg == nil {
		return echoprometheus.NewHandler()
	}
	return echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{Gatherer: reg})
}
