package middleware

import (
    "github.com/casbin/casbin"
    "github.com/labstack/echo/v4"
    "github.com/sirupsen/logrus"

    "github.com/iliyamo/vehicle-rental-marketplace/internal/apperr"
)

// NewEnforcer loads the casbin model and policy files.
func NewEnforcer(modelPath, policyPath string) (*casbin.Enforcer, error) {
    e, err := casbin.NewEnforcerSafe(modelPath, policyPath)
    if err != nil {
        return nil, err
    }
    e.EnableLog(false)
    return e, nil
}

// RequireAdmin checks the caller's role against the casbin policy for the
// request path and method. It expects RequireAuth to run first; the role
// comes from the verified identity only.
func RequireAdmin(e *casbin.Enforcer, log *logrus.Logger) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            id, ok := IdentityFrom(c)
            if !ok {
                return apperr.New(apperr.KindAuthRequired, "authentication required")
            }
            path := c.Request().URL.Path
            allowed, err := e.EnforceSafe(id.Role, path, c.Request().Method)
            if err != nil {
                log.WithError(err).WithField("path", path).Error("authorization policy check failed")
                return apperr.Wrap(apperr.KindForbidden, "admin access required", err)
            }
            if !allowed {
                log.WithFields(logrus.Fields{"uid": id.ID, "path": path}).Warn("admin access denied")
                return apperr.New(apperr.KindForbidden, "admin access required")
            }
            return next(c)
        }
    }
}
