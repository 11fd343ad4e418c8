package handler

import (
    "net/http"
    "strings"
    "time"
    "unicode/utf8"

    "github.com/labstack/echo/v4"
    "github.com/sirupsen/logrus"

    "github.com/iliyamo/vehicle-rental-marketplace/internal/apperr"
    "github.com/iliyamo/vehicle-rental-marketplace/internal/events"
    "github.com/iliyamo/vehicle-rental-marketplace/internal/model"
    "github.com/iliyamo/vehicle-rental-marketplace/internal/queue"
    "github.com/iliyamo/vehicle-rental-marketplace/internal/repository"
)

// highPriorityIssues are issue types routed to the top of the inbox. Their
// messages must say enough to act on.
var highPriorityIssues = map[string]bool{
    "safety":  true,
    "payment": true,
    "fraud":   true,
    "account": true,
}

const minHighPriorityMessage = 20

// SupportHandler accepts contact-form submissions.
type SupportHandler struct {
    Messages *repository.MessageRepo
    Events   events.Publisher
    Log      *logrus.Logger
}

func NewSupportHandler(m *repository.MessageRepo, p events.Publisher, log *logrus.Logger) *SupportHandler {
    return &SupportHandler{Messages: m, Events: p, Log: log}
}

type supportReq struct {
    Name      string `json:"name" validate:"required"`
    Email     string `json:"email" validate:"required,email"`
    Message   string `json:"message" validate:"required"`
    Phone     string `json:"phone"`
    Subject   string `json:"subject"`
    IssueType string `json:"issueType"`
}

func (r *supportReq) normalize() {
    r.Name = strings.TrimSpace(r.Name)
    r.Email = strings.ToLower(strings.TrimSpace(r.Email))
    r.Message = strings.TrimSpace(r.Message)
    r.Phone = strings.TrimSpace(r.Phone)
    r.Subject = strings.TrimSpace(r.Subject)
    r.IssueType = strings.ToLower(strings.TrimSpace(r.IssueType))
}

// Submit stores a support message and notifies the operator.
func (h *SupportHandler) Submit(c echo.Context) error {
    var req supportReq
    if err := bind(c, &req); err != nil {
        return err
    }
    req.normalize()
    if err := checkStruct(req); err != nil {
        return err
    }
    priority := model.PriorityNormal
    if highPriorityIssues[req.IssueType] {
        priority = model.PriorityHigh
        if utf8.RuneCountInString(req.Message) < minHighPriorityMessage {
            return apperr.Validation("please describe the issue in at least 20 characters", "message")
        }
    }

    ctx, cancel := reqCtx(c)
    defer cancel()
    m, err := h.Messages.Create(ctx, model.SupportMessage{
        Name:      req.Name,
        Email:     req.Email,
        Phone:     req.Phone,
        Subject:   req.Subject,
        Message:   req.Message,
        IssueType: req.IssueType,
        Priority:  priority,
    })
    if err != nil {
        return err
    }

    if err := events.SupportSubmitted(ctx, h.Events, queue.SupportSubmittedEvent{
        MessageID:   m.ID,
        Name:        m.Name,
        Email:       m.Email,
        Subject:     m.Subject,
        IssueType:   m.IssueType,
        Priority:    m.Priority,
        Message:     m.Message,
        SubmittedAt: m.CreatedAt.Format(time.RFC3339),
    }); err != nil {
        h.Log.WithError(err).Warn("publish support.submitted failed")
    }
    return c.JSON(http.StatusCreated, echo.Map{"success": true, "id": m.ID})
}
