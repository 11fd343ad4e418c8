package middleware

import (
    "math"
    "strconv"
    "strings"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/vehicle-rental-marketplace/internal/apperr"
    "github.com/iliyamo/vehicle-rental-marketplace/internal/ratelimit"
)

// RateLimitError is returned for blocked requests. It unwraps to a
// RateLimited *apperr.Error.
type RateLimitError struct {
    Err        *apperr.Error
    RetryAfter time.Duration
}

func (e *RateLimitError) Error() string { return e.Err.Error() }
func (e *RateLimitError) Unwrap() error { return e.Err }

// KeyFunc derives the limiter key for a request.
type KeyFunc func(c echo.Context) string

// KeyByStrategy builds keys the way RATE_LIMIT_KEY_STRATEGY names them:
// ip, user, route, ip_user or ip_route. Anything else keys by ip, user and
// route together.
func KeyByStrategy(strategy string) KeyFunc {
    return func(c echo.Context) string {
        ip := c.RealIP()
        if ip == "" {
            ip = "unknown"
        }
        uid := currentUserID(c)
        route := c.Request().Method + " " + c.Path()
        var parts []string
        switch strings.ToLower(strategy) {
        case "ip":
            parts = []string{"ip", ip}
        case "user":
            parts = []string{"user", uid}
        case "route":
            parts = []string{"route", route}
        case "ip_user":
            parts = []string{"ip", ip, "user", uid}
        case "ip_route":
            parts = []string{"ip", ip, "route", route}
        default:
            parts = []string{"ip", ip, "user", uid, "route", route}
        }
        return strings.Join(parts, ":")
    }
}

// ByIP keys by client address only.
func ByIP(c echo.Context) string { return "ip:" + c.RealIP() }

// RateLimit rejects requests the limiter refuses with 429. A nil limiter
// disables the check.
func RateLimit(l ratelimit.Limiter, key KeyFunc, message string) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        if l == nil {
            return next
        }
        return func(c echo.Context) error {
            k := key(c)
            if l.Allow(k) {
                return next(c)
            }
            wait := ratelimit.RetryAfter(l, k, time.Minute)
            secs := int(math.Ceil(wait.Seconds()))
            if secs < 1 {
                secs = 1
            }
            c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
            return &RateLimitError{Err: apperr.New(apperr.KindRateLimited, message), RetryAfter: wait}
        }
    }
}
