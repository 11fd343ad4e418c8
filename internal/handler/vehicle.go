package handler

import (
    "encoding/json"
    "net/http"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/vehicle-rental-marketplace/internal/apperr"
    "github.com/iliyamo/vehicle-rental-marketplace/internal/middleware"
    "github.com/iliyamo/vehicle-rental-marketplace/internal/model"
    "github.com/iliyamo/vehicle-rental-marketplace/internal/repository"
)

// VehicleHandler serves the vehicle listing API.
type VehicleHandler struct {
    Vehicles *repository.VehicleRepo
    Cache    *middleware.ResponseCache // may be nil
}

func NewVehicleHandler(v *repository.VehicleRepo, cache *middleware.ResponseCache) *VehicleHandler {
    return &VehicleHandler{Vehicles: v, Cache: cache}
}

// vehicleReq is a new listing. Required fields are declared in the order
// they are reported when missing.
type vehicleReq struct {
    Year      int     `json:"year" validate:"required"`
    Make      string  `json:"make" validate:"required"`
    Model     string  `json:"model" validate:"required"`
    Category  string  `json:"category" validate:"required"`
    Country   string  `json:"country" validate:"required"`
    State     string  `json:"state" validate:"required"`
    City      string  `json:"city" validate:"required"`
    Price     float64 `json:"price" validate:"required"`
    Frequency string  `json:"frequency" validate:"required"`
    Fuel      string  `json:"fuel" validate:"required"`
    Insurance string  `json:"insurance" validate:"required"`

    Status       string   `json:"status"`
    Transmission string   `json:"transmission"`
    Seats        int      `json:"seats"`
    Description  string   `json:"description"`
    Image        string   `json:"image"`
    Photos       []string `json:"photos"`
    HostName     string   `json:"hostName"`
    HostEmail    string   `json:"hostEmail"`
}

func (r vehicleReq) vehicle() model.Vehicle {
    return model.Vehicle{
        Year: r.Year, Make: r.Make, Model: r.Model, Category: r.Category,
        Country: r.Country, State: r.State, City: r.City,
        Price: r.Price, Frequency: r.Frequency, Fuel: r.Fuel, Insurance: r.Insurance,
        Status: r.Status, Transmission: r.Transmission, Seats: r.Seats,
        Description: r.Description, Image: r.Image, Photos: r.Photos,
        HostName: r.HostName, HostEmail: r.HostEmail,
    }
}

func (h *VehicleHandler) invalidate(c echo.Context) {
    h.Cache.Invalidate(c.Request().Context())
}

// List returns vehicles matching the query filters.
func (h *VehicleHandler) List(c echo.Context) error {
    f := repository.VehicleFilter{
        Status:   c.QueryParam("status"),
        Country:  c.QueryParam("country"),
        State:    c.QueryParam("state"),
        City:     c.QueryParam("city"),
        Category: c.QueryParam("category"),
        HostID:   c.QueryParam("hostId"),
    }
    if f.HostID == "" {
        f.HostID = c.QueryParam("ownerId")
    }
    ctx, cancel := reqCtx(c)
    defer cancel()
    vs, err := h.Vehicles.List(ctx, f)
    if err != nil {
        return err
    }
    return c.JSON(http.StatusOK, echo.Map{"success": true, "count": len(vs), "data": vs})
}

func (h *VehicleHandler) Get(c echo.Context) error {
    ctx, cancel := reqCtx(c)
    defer cancel()
    v, err := h.Vehicles.Get(ctx, c.Param("id"))
    if err != nil {
        return err
    }
    return c.JSON(http.StatusOK, echo.Map{"success": true, "data": v})
}

func (h *VehicleHandler) Stats(c echo.Context) error {
    ctx, cancel := reqCtx(c)
    defer cancel()
    st, err := h.Vehicles.Stats(ctx)
    if err != nil {
        return err
    }
    return c.JSON(http.StatusOK, echo.Map{"success": true, "data": st})
}

// Create stores a listing owned by the caller.
func (h *VehicleHandler) Create(c echo.Context) error {
    var req vehicleReq
    if err := bind(c, &req); err != nil {
        return err
    }
    if err := checkStruct(req); err != nil {
        return err
    }
    ctx, cancel := reqCtx(c)
    defer cancel()
    v, err := h.Vehicles.Create(ctx, actor(c), req.vehicle())
    if err != nil {
        return err
    }
    h.invalidate(c)
    return c.JSON(http.StatusCreated, echo.Map{"success": true, "message": "Vehicle created successfully", "data": v})
}

// Update overlays the request body onto the stored vehicle.
func (h *VehicleHandler) Update(c echo.Context) error {
    var patch map[string]any
    if err := json.NewDecoder(c.Request().Body).Decode(&patch); err != nil {
        return apperr.Validation("invalid request body")
    }
    ctx, cancel := reqCtx(c)
    defer cancel()
    v, err := h.Vehicles.Update(ctx, c.Param("id"), actor(c), patch)
    if err != nil {
        return err
    }
    h.invalidate(c)
    return c.JSON(http.StatusOK, echo.Map{"success": true, "message": "Vehicle updated successfully", "data": v})
}

func (h *VehicleHandler) SetStatus(c echo.Context) error {
    var req struct {
        Status string `json:"status"`
    }
    if err := bind(c, &req); err != nil {
        return err
    }
    ctx, cancel := reqCtx(c)
    defer cancel()
    v, err := h.Vehicles.SetStatus(ctx, c.Param("id"), actor(c), req.Status)
    if err != nil {
        return err
    }
    h.invalidate(c)
    return c.JSON(http.StatusOK, echo.Map{"success": true, "message": "Vehicle status updated successfully", "data": v})
}

func (h *VehicleHandler) Delete(c echo.Context) error {
    ctx, cancel := reqCtx(c)
    defer cancel()
    v, err := h.Vehicles.Delete(ctx, c.Param("id"), actor(c))
    if err != nil {
        return err
    }
    h.invalidate(c)
    return c.JSON(http.StatusOK, echo.Map{"success": true, "message": "Vehicle deleted successfully", "data": v})
}
