// Package router builds the echo instance and registers every route. Each
// Register function mounts one area of the API under the /api group.
package router

import (
	"github.com/casbin/casbin"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/vehicle-rental-marketplace/internal/handler"
	"github.com/iliyamo/vehicle-rental-marketplace/internal/middleware"
	"github.com/iliyamo/vehicle-rental-marketplace/internal/ratelimit"
)

// Limits groups the per-IP request budgets.
type Limits struct {
	Global      ratelimit.Limiter // every request
	KeyStrategy string            // key layout for the global budget
	Review      ratelimit.Limiter // review submission
	Support     ratelimit.Limiter // support and contact submission
}

// Deps carries everything the routes need.
type Deps struct {
	Log            *logrus.Logger
	Authenticator  middleware.Authenticator
	Enforcer       *casbin.Enforcer
	Cache          *middleware.ResponseCache
	Limits         Limits
	AllowedOrigins []string

	Health   *handler.HealthHandler
	Auth     *handler.AuthHandler
	Vehicles *handler.VehicleHandler
	Users    *handler.UserHandler
	Bookings *handler.BookingHandler
	Reviews  *handler.ReviewHandler
	Support  *handler.SupportHandler
	Admin    *handler.AdminMessageHandler
}

// New returns a configured echo instance with all routes registered.
func New(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = handler.ErrorHandler(d.Log)

	origins := d.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	e.Use(
		middleware.RequestLogger(d.Log),
		echomw.Recover(),
		echomw.CORSWithConfig(echomw.CORSConfig{AllowOrigins: origins}),
		echomw.BodyLimit("50M"),
		middleware.Authenticate(d.Authenticator),
		middleware.RateLimit(d.Limits.Global, middleware.KeyByStrategy(d.Limits.KeyStrategy), "too many requests, please slow down"),
	)

	RegisterPublic(e, d.Health)
	api := e.Group("/api")
	api.GET("/health", d.Health.Health)
	RegisterAuth(api, d.Auth)
	RegisterVehicles(api, d.Vehicles, d.Cache)
	RegisterUsers(api, d.Users)
	RegisterBookings(api, d.Bookings)
	RegisterReviews(api, d.Reviews, d.Limits.Review)
	RegisterSupport(api, d.Support, d.Limits.Support)
	RegisterAdmin(api, d.Admin, d.Users, middleware.RequireAdmin(d.Enforcer, d.Log))
	return e
}

// RegisterPublic mounts the root info and liveness endpoints.
func RegisterPublic(e *echo.Echo, h *handler.HealthHandler) {
	e.GET("/", h.Root)
	e.GET("/health", h.Health)
}

// RegisterAuth mounts the built-in identity provider under /api/auth.
func RegisterAuth(api *echo.Group, a *handler.AuthHandler) {
	g := api.Group("/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh)
	g.POST("/logout", a.Logout)
	g.GET("/me", a.Me, middleware.RequireAuth)
}
