package handler

import (
    "net/http"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/vehicle-rental-marketplace/internal/model"
    "github.com/iliyamo/vehicle-rental-marketplace/internal/repository"
)

type BookingHandler struct {
    Bookings *repository.BookingRepo
    Vehicles *repository.VehicleRepo
}

func NewBookingHandler(b *repository.BookingRepo, v *repository.VehicleRepo) *BookingHandler {
    return &BookingHandler{Bookings: b, Vehicles: v}
}

type bookingReq struct {
    VehicleID string `json:"vehicleId" validate:"required"`
    StartDate string `json:"startDate"`
    EndDate   string `json:"endDate"`
    Notes     string `json:"notes"`
}

func (h *BookingHandler) List(c echo.Context) error {
    ctx, cancel := reqCtx(c)
    defer cancel()
    bs, err := h.Bookings.ListFor(ctx, actor(c))
    if err != nil {
        return err
    }
    return c.JSON(http.StatusOK, echo.Map{"success": true, "count": len(bs), "data": bs})
}

// Create books an existing vehicle for the caller; the booking starts pending.
func (h *BookingHandler) Create(c echo.Context) error {
    var req bookingReq
    if err := bind(c, &req); err != nil {
        return err
    }
    if err := checkStruct(req); err != nil {
        return err
    }
    ctx, cancel := reqCtx(c)
    defer cancel()
    v, err := h.Vehicles.Get(ctx, req.VehicleID)
    if err != nil {
        return err
    }
    b, err := h.Bookings.Create(ctx, actor(c), v, model.Booking{
        StartDate: req.StartDate,
        EndDate:   req.EndDate,
        Notes:     req.Notes,
    })
    if err != nil {
        return err
    }
    return c.JSON(http.StatusCreated, echo.Map{"success": true, "message": "Booking created successfully", "data": b})
}
