package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/vehicle-rental-marketplace/internal/handler"
	"github.com/iliyamo/vehicle-rental-marketplace/internal/middleware"
	"github.com/iliyamo/vehicle-rental-marketplace/internal/ratelimit"
)

// RegisterVehicles mounts the vehicle API. Reads are public and cached;
// writes need an identity and ownership is checked per vehicle.
func RegisterVehicles(api *echo.Group, h *handler.VehicleHandler, cache *middleware.ResponseCache) {
	cached := cache.Middleware()
	api.GET("/vehicles", h.List, cached)
	api.GET("/vehicles/stats/summary", h.Stats, cached)
	api.GET("/vehicles/:id", h.Get, cached)

	api.POST("/vehicles", h.Create, middleware.RequireAuth)
	api.PUT("/vehicles/:id", h.Update, middleware.RequireAuth)
	api.PATCH("/vehicles/:id/status", h.SetStatus, middleware.RequireAuth)
	api.DELETE("/vehicles/:id", h.Delete, middleware.RequireAuth)
}

// RegisterUsers mounts profile routes and public host reviews.
func RegisterUsers(api *echo.Group, h *handler.UserHandler) {
	api.GET("/hosts/:id/reviews", h.HostReviews)

	g := api.Group("/users", middleware.RequireAuth)
	g.GET("/:id", h.Get)
	g.PATCH("/:id", h.Update)
	g.POST("/:id/vehicles-created", h.IncrementVehiclesCreated)
}

func RegisterBookings(api *echo.Group, h *handler.BookingHandler) {
	g := api.Group("/bookings", middleware.RequireAuth)
	g.GET("", h.List)
	g.POST("", h.Create)
}

// RegisterReviews mounts review links and the rate-limited submission.
func RegisterReviews(api *echo.Group, h *handler.ReviewHandler, limit ratelimit.Limiter) {
	api.POST("/review-tokens", h.CreateToken, middleware.RequireAuth)
	api.GET("/review-tokens/:token", h.LookupToken)
	api.POST("/reviews/submit", h.Submit,
		middleware.RateLimit(limit, middleware.ByIP, "too many review submissions, please try again later"))
}

// RegisterSupport mounts the contact form under both its current and legacy
// paths. Both share one budget per IP.
func RegisterSupport(api *echo.Group, h *handler.SupportHandler, limit ratelimit.Limiter) {
	rl := middleware.RateLimit(limit, middleware.ByIP, "too many messages, please try again later")
	api.POST("/support/submit", h.Submit, rl)
	api.POST("/contact", h.Submit, rl)
}

// RegisterAdmin mounts the support inbox and the user directory. Every
// route requires an identity whose role the policy admits.
func RegisterAdmin(api *echo.Group, h *handler.AdminMessageHandler, users *handler.UserHandler, requireAdmin echo.MiddlewareFunc) {
	g := api.Group("/admin", middleware.RequireAuth, requireAdmin)
	g.GET("/messages", h.List)
	g.GET("/messages/:id", h.Get)
	g.PATCH("/messages/:id", h.Patch)
	g.DELETE("/messages/:id", h.Delete)

	api.GET("/users", users.List, middleware.RequireAuth, requireAdmin)
}
