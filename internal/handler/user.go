package handler

import (
    "net/http"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/vehicle-rental-marketplace/internal/repository"
)

// UserHandler serves profiles and public host reviews.
type UserHandler struct {
    Users   *repository.UserRepo
    Reviews *repository.ReviewRepo
}

func NewUserHandler(u *repository.UserRepo, r *repository.ReviewRepo) *UserHandler {
    return &UserHandler{Users: u, Reviews: r}
}

// List returns every profile. Admin only.
func (h *UserHandler) List(c echo.Context) error {
    ctx, cancel := reqCtx(c)
    defer cancel()
    us, err := h.Users.List(ctx)
    if err != nil {
        return err
    }
    return c.JSON(http.StatusOK, echo.Map{"success": true, "count": len(us), "data": us})
}

// Get returns the full profile to its owner or an admin and the public
// fields to anyone else.
func (h *UserHandler) Get(c echo.Context) error {
    id := c.Param("id")
    ctx, cancel := reqCtx(c)
    defer cancel()
    u, err := h.Users.Get(ctx, id)
    if err != nil {
        return err
    }
    if !actor(c).CanModify(id) {
        u = u.Public()
    }
    return c.JSON(http.StatusOK, echo.Map{"success": true, "data": u})
}

func (h *UserHandler) Update(c echo.Context) error {
    var p repository.ProfilePatch
    if err := bind(c, &p); err != nil {
        return err
    }
    ctx, cancel := reqCtx(c)
    defer cancel()
    u, err := h.Users.Update(ctx, c.Param("id"), actor(c), p)
    if err != nil {
        return err
    }
    return c.JSON(http.StatusOK, echo.Map{"success": true, "data": u})
}

// IncrementVehiclesCreated advances the lifetime listing counter that the
// free plan quota is checked against.
func (h *UserHandler) IncrementVehiclesCreated(c echo.Context) error {
    ctx, cancel := reqCtx(c)
    defer cancel()
    n, err := h.Users.IncrementVehiclesCreated(ctx, c.Param("id"), actor(c))
    if err != nil {
        return err
    }
    return c.JSON(http.StatusOK, echo.Map{"success": true, "vehiclesCreated": n})
}

// HostReviews lists a host's reviews, newest first.
func (h *UserHandler) HostReviews(c echo.Context) error {
    ctx, cancel := reqCtx(c)
    defer cancel()
    rs, err := h.Reviews.ListByHost(ctx, c.Param("id"))
    if err != nil {
        return err
    }
    return c.JSON(http.StatusOK, echo.Map{"success": true, "count": len(rs), "data": rs})
}
