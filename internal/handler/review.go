package handler

import (
    "bytes"
    "encoding/json"
    "math"
    "net/http"
    "strconv"
    "strings"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/sirupsen/logrus"

    "github.com/iliyamo/vehicle-rental-marketplace/internal/apperr"
    "github.com/iliyamo/vehicle-rental-marketplace/internal/events"
    "github.com/iliyamo/vehicle-rental-marketplace/internal/queue"
    "github.com/iliyamo/vehicle-rental-marketplace/internal/repository"
)

// ReviewHandler issues review links and records verified reviews.
type ReviewHandler struct {
    Reviews *repository.ReviewRepo
    Events  events.Publisher
    Log     *logrus.Logger
}

func NewReviewHandler(r *repository.ReviewRepo, p events.Publisher, log *logrus.Logger) *ReviewHandler {
    return &ReviewHandler{Reviews: r, Events: p, Log: log}
}

type createTokenReq struct {
    VehicleID     string `json:"vehicleId"`
    CustomerLabel string `json:"customerLabel"`
}

// CreateToken issues a one-time review link for the calling host.
func (h *ReviewHandler) CreateToken(c echo.Context) error {
    var req createTokenReq
    if err := bind(c, &req); err != nil {
        return err
    }
    ctx, cancel := reqCtx(c)
    defer cancel()
    t, err := h.Reviews.CreateToken(ctx, actor(c), req.VehicleID, req.CustomerLabel)
    if err != nil {
        return err
    }
    return c.JSON(http.StatusCreated, echo.Map{"success": true, "token": t.ID, "expiresAt": t.ExpiresAt})
}

type tokenLookupResp struct {
    Success bool `json:"success"`
    repository.TokenInfo
}

// LookupToken shows what a review link is for without consuming it.
func (h *ReviewHandler) LookupToken(c echo.Context) error {
    token := strings.TrimSpace(c.Param("token"))
    if token == "" {
        return apperr.Validation("missing token", "token")
    }
    ctx, cancel := reqCtx(c)
    defer cancel()
    info, err := h.Reviews.Lookup(ctx, token)
    if err != nil {
        return err
    }
    return c.JSON(http.StatusOK, tokenLookupResp{Success: true, TokenInfo: info})
}

type submitReviewReq struct {
    Token       string          `json:"token"`
    Rating      json.RawMessage `json:"rating"`
    Comment     string          `json:"comment"`
    DisplayName string          `json:"displayName"`
    FirstName   string          `json:"firstName"`
    LastName    string          `json:"lastName"`
    Email       string          `json:"email"`
}

// parseRating accepts a JSON integer or a numeric string. Anything else
// yields 0, which fails validation.
func parseRating(raw json.RawMessage) int {
    raw = bytes.TrimSpace(raw)
    if len(raw) == 0 {
        return 0
    }
    var s string
    if json.Unmarshal(raw, &s) == nil {
        n, err := strconv.Atoi(strings.TrimSpace(s))
        if err != nil {
            return 0
        }
        return n
    }
    var f float64
    if json.Unmarshal(raw, &f) != nil || f != math.Trunc(f) {
        return 0
    }
    return int(f)
}

// Submit redeems a review link. The token, host aggregate and review are
// written in one transaction.
func (h *ReviewHandler) Submit(c echo.Context) error {
    var req submitReviewReq
    if err := bind(c, &req); err != nil {
        return err
    }
    in := repository.ReviewInput{
        Token:       strings.TrimSpace(req.Token),
        Rating:      parseRating(req.Rating),
        Comment:     req.Comment,
        DisplayName: req.DisplayName,
        FirstName:   req.FirstName,
        LastName:    req.LastName,
        Email:       req.Email,
    }
    ctx, cancel := reqCtx(c)
    defer cancel()
    review, err := h.Reviews.Redeem(ctx, in)
    if err != nil {
        return err
    }

    if err := events.ReviewSubmitted(ctx, h.Events, queue.ReviewSubmittedEvent{
        ReviewID:    review.ID,
        HostID:      review.HostID,
        VehicleID:   review.VehicleID,
        Rating:      review.Rating,
        SubmittedAt: review.CreatedAt.Format(time.RFC3339),
    }); err != nil {
        h.Log.WithError(err).Warn("publish review.submitted failed")
    }
    return c.JSON(http.StatusCreated, echo.Map{"success": true, "id": review.ID})
}
