package middleware

import (
    "time"

    "github.com/labstack/echo/v4"
    "github.com/sirupsen/logrus"
)

// RequestLogger writes one logrus entry per request.
func RequestLogger(log *logrus.Logger) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            start := time.Now()
            err := next(c)
            if err != nil {
                c.Error(err)
            }
            req := c.Request()
            entry := log.WithFields(logrus.Fields{
                "method":     req.Method,
                "path":       req.URL.Path,
                "status":     c.Response().Status,
                "ip":         c.RealIP(),
                "uid":        currentUserID(c),
                "latency_ms": time.Since(start).Milliseconds(),
            })
            switch {
            case c.Response().Status >= 500:
                entry.WithError(err).Error("request failed")
            case c.Response().Status >= 400:
                entry.Warn("request rejected")
            default:
                entry.Info("request")
            }
            return nil
        }
    }
}
