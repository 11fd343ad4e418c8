package handler

import (
    "net/http"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/vehicle-rental-marketplace/internal/model"
    "github.com/iliyamo/vehicle-rental-marketplace/internal/repository"
)

// AdminMessageHandler serves the support inbox. Routes sit behind the admin
// policy check.
type AdminMessageHandler struct {
    Messages *repository.MessageRepo
}

func NewAdminMessageHandler(m *repository.MessageRepo) *AdminMessageHandler {
    return &AdminMessageHandler{Messages: m}
}

// List accepts filter (a view or status), q and sort.
func (h *AdminMessageHandler) List(c echo.Context) error {
    q := model.MessageQuery{
        View:   c.QueryParam("filter"),
        Search: c.QueryParam("q"),
        Sort:   c.QueryParam("sort"),
    }
    ctx, cancel := reqCtx(c)
    defer cancel()
    ms, err := h.Messages.List(ctx, q)
    if err != nil {
        return err
    }
    return c.JSON(http.StatusOK, echo.Map{"success": true, "count": len(ms), "data": ms})
}

func (h *AdminMessageHandler) Get(c echo.Context) error {
    ctx, cancel := reqCtx(c)
    defer cancel()
    m, err := h.Messages.Get(ctx, c.Param("id"))
    if err != nil {
        return err
    }
    return c.JSON(http.StatusOK, echo.Map{"success": true, "data": m})
}

func (h *AdminMessageHandler) Patch(c echo.Context) error {
    var p model.MessagePatch
    if err := bind(c, &p); err != nil {
        return err
    }
    ctx, cancel := reqCtx(c)
    defer cancel()
    m, err := h.Messages.Patch(ctx, c.Param("id"), p)
    if err != nil {
        return err
    }
    return c.JSON(http.StatusOK, echo.Map{"success": true, "data": m})
}

// Delete moves the message to the trash.
func (h *AdminMessageHandler) Delete(c echo.Context) error {
    ctx, cancel := reqCtx(c)
    defer cancel()
    m, err := h.Messages.Trash(ctx, c.Param("id"))
    if err != nil {
        return err
    }
    return c.JSON(http.StatusOK, echo.Map{"success": true, "data": m})
}
