package handler

import (
    "context"
    "errors"
    "fmt"
    "net/http"
    "reflect"
    "strings"
    "time"

    "github.com/go-playground/validator/v10"
    "github.com/labstack/echo/v4"
    "github.com/sirupsen/logrus"

    "github.com/iliyamo/vehicle-rental-marketplace/internal/apperr"
    "github.com/iliyamo/vehicle-rental-marketplace/internal/middleware"
    "github.com/iliyamo/vehicle-rental-marketplace/internal/repository"
)

// requestTimeout bounds the storage work of a single request.
const requestTimeout = 5 * time.Second

func reqCtx(c echo.Context) (context.Context, context.CancelFunc) {
    return context.WithTimeout(c.Request().Context(), requestTimeout)
}

// errorBody is the shape of every failed response.
type errorBody struct {
    Success bool     `json:"success"`
    Error   string   `json:"error"`
    Message string   `json:"message"`
    Fields  []string `json:"fields,omitempty"`
}

// ErrorHandler renders errors returned by handlers and middleware. Typed
// errors keep their category; anything else becomes a 500 whose detail is
// logged but never sent.
func ErrorHandler(log *logrus.Logger) echo.HTTPErrorHandler {
    return func(err error, c echo.Context) {
        if c.Response().Committed {
            return
        }
        body := errorBody{Error: string(apperr.KindUnknown), Message: "internal server error"}
        status := http.StatusInternalServerError

        var ae *apperr.Error
        var he *echo.HTTPError
        switch {
        case errors.As(err, &ae):
            status = apperr.HTTPStatus(ae.Kind)
            body.Error = string(ae.Kind)
            body.Message = ae.Error()
            body.Fields = ae.Fields
        case errors.As(err, &he):
            status = he.Code
            body.Error = string(apperr.FromStatus(he.Code))
            body.Message = fmt.Sprint(he.Message)
        }
        if status >= http.StatusInternalServerError {
            log.WithError(err).WithField("path", c.Request().URL.Path).Error("request failed")
            if ae == nil && he == nil {
                body.Message = "internal server error"
            }
        }

        if c.Request().Method == http.MethodHead {
            err = c.NoContent(status)
        } else {
            err = c.JSON(status, body)
        }
        if err != nil {
            log.WithError(err).Warn("write error response")
        }
    }
}

var validate = newValidator()

func newValidator() *validator.Validate {
    v := validator.New()
    v.RegisterTagNameFunc(func(f reflect.StructField) string {
        name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
        if name == "-" {
            return ""
        }
        return name
    })
    return v
}

// checkStruct validates req and reports missing fields together, in field
// order, as one ValidationError.
func checkStruct(req any) error {
    err := validate.Struct(req)
    if err == nil {
        return nil
    }
    var ves validator.ValidationErrors
    if !errors.As(err, &ves) {
        return apperr.Validation(err.Error())
    }
    var missing, invalid []string
    for _, fe := range ves {
        if fe.Tag() == "required" {
            missing = append(missing, fe.Field())
        } else {
            invalid = append(invalid, fe.Field())
        }
    }
    if len(missing) > 0 {
        return apperr.Validation("Missing required fields: "+strings.Join(missing, ", "), missing...)
    }
    return apperr.Validation("Invalid fields: "+strings.Join(invalid, ", "), invalid...)
}

// bind decodes the request body into req.
func bind(c echo.Context, req any) error {
    if err := c.Bind(req); err != nil {
        return apperr.Validation("invalid request body")
    }
    return nil
}

// caller returns the authenticated identity. Routes using it sit behind
// middleware.RequireAuth.
func caller(c echo.Context) middleware.Identity {
    id, _ := middleware.IdentityFrom(c)
    return id
}

func actor(c echo.Context) repository.Actor { return caller(c).Actor() }
