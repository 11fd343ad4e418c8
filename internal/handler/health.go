package handler

import (
    "net/http"
    "time"

    "github.com/labstack/echo/v4"
)

// HealthHandler answers liveness checks. It reports which storage path is
// serving but stays 200 as long as the process is up.
type HealthHandler struct {
    StorageMode func() string
}

func (h *HealthHandler) Health(c echo.Context) error {
    mode := "unknown"
    if h.StorageMode != nil {
        mode = h.StorageMode()
    }
    return c.JSON(http.StatusOK, echo.Map{
        "status":    "ok",
        "success":   true,
        "message":   "CCR Backend API is running",
        "storage":   mode,
        "timestamp": time.Now().UTC(),
    })
}

// Root lists the main entry points.
func (h *HealthHandler) Root(c echo.Context) error {
    return c.JSON(http.StatusOK, echo.Map{
        "name":    "Car Connect Rentals API",
        "version": "1.0.0",
        "endpoints": echo.Map{
            "vehicles": "/api/vehicles",
            "users":    "/api/users",
            "bookings": "/api/bookings",
            "health":   "/api/health",
        },
    })
}
