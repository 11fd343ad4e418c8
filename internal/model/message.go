package model

import (
    "sort"
    "strings"
    "time"
)

// Support message statuses. Transitions between them are unrestricted.
const (
    MessageUnread   = "unread"
    MessageOpen     = "open"
    MessagePending  = "pending"
    MessageResolved = "resolved"
    MessageArchived = "archived"
    MessageTrash    = "trash"
)

// Message priorities.
const (
    PriorityHigh   = "high"
    PriorityNormal = "normal"
)

// SupportMessage is a contact-form submission handled through the admin inbox.
type SupportMessage struct {
    ID         string    `json:"id" bson:"_id"`
    Name       string    `json:"name" bson:"name"`
    Email      string    `json:"email" bson:"email"`
    Phone      string    `json:"phone,omitempty" bson:"phone,omitempty"`
    Subject    string    `json:"subject" bson:"subject"`
    Message    string    `json:"message" bson:"message"`
    IssueType  string    `json:"issueType,omitempty" bson:"issueType,omitempty"`
    Status     string    `json:"status" bson:"status"`
    Starred    bool      `json:"starred" bson:"starred"`
    Archived   bool      `json:"archived" bson:"archived"`
    Priority   string    `json:"priority" bson:"priority"`
    AssignedTo string    `json:"assignedTo,omitempty" bson:"assignedTo,omitempty"`
    Tags       []string  `json:"tags,omitempty" bson:"tags,omitempty"`
    CreatedAt  time.Time `json:"createdAt" bson:"createdAt"`
    UpdatedAt  time.Time `json:"updatedAt" bson:"updatedAt"`
}

// ValidMessageStatus reports whether s is a known message status.
func ValidMessageStatus(s string) bool {
    switch s {
    case MessageUnread, MessageOpen, MessagePending, MessageResolved, MessageArchived, MessageTrash:
        return true
    }
    return false
}

// MessagePatch is a partial update applied by an admin. Nil fields are left
// untouched.
type MessagePatch struct {
    Status     *string   `json:"status,omitempty"`
    Starred    *bool     `json:"starred,omitempty"`
    Archived   *bool     `json:"archived,omitempty"`
    AssignedTo *string   `json:"assignedTo,omitempty"`
    Tags       *[]string `json:"tags,omitempty"`
}

// Fields returns the patch as a document merge.
func (p MessagePatch) Fields() map[string]any {
    out := map[string]any{}
    if p.Status != nil {
        out["status"] = *p.Status
    }
    if p.Starred != nil {
        out["starred"] = *p.Starred
    }
    if p.Archived != nil {
        out["archived"] = *p.Archived
    }
    if p.AssignedTo != nil {
        out["assignedTo"] = *p.AssignedTo
    }
    if p.Tags != nil {
        out["tags"] = *p.Tags
    }
    return out
}

// Apply returns m with the patch applied.
func (p MessagePatch) Apply(m SupportMessage) SupportMessage {
    if p.Status != nil {
        m.Status = *p.Status
    }
    if p.Starred != nil {
        m.Starred = *p.Starred
    }
    if p.Archived != nil {
        m.Archived = *p.Archived
    }
    if p.AssignedTo != nil {
        m.AssignedTo = *p.AssignedTo
    }
    if p.Tags != nil {
        m.Tags = append([]string(nil), (*p.Tags)...)
    }
    return m
}

// Inbox views. Any status name is also accepted as a view, with or without a
// "status-" prefix.
const (
    ViewInbox   = "inbox"
    ViewStarred = "starred"
    ViewAll     = "all"
)

// Sort orders.
const (
    SortNewest = "newest"
    SortOldest = "oldest"
)

// MessageQuery selects and orders support messages. The server's admin list
// endpoint and the client inbox share it so both filter identically.
type MessageQuery struct {
    View   string
    Search string
    Sort   string
}

// InInbox reports whether m belongs in the default inbox view.
func (m SupportMessage) InInbox() bool {
    return !m.Archived && m.Status != MessageArchived && m.Status != MessageTrash
}

func (q MessageQuery) match(m SupportMessage) bool {
    view := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(q.View)), "status-")
    switch view {
    case "", ViewInbox:
        if !m.InInbox() {
            return false
        }
    case ViewAll:
    case ViewStarred:
        if !m.Starred {
            return false
        }
    case MessageArchived:
        if m.Status != MessageArchived && !m.Archived {
            return false
        }
    default:
        if m.Status != view {
            return false
        }
    }
    needle := strings.ToLower(strings.TrimSpace(q.Search))
    if needle == "" {
        return true
    }
    for _, hay := range []string{m.Name, m.Email, m.Subject, m.Message} {
        if strings.Contains(strings.ToLower(hay), needle) {
            return true
        }
    }
    return false
}

// Select filters and sorts msgs without modifying the input.
func (q MessageQuery) Select(msgs []SupportMessage) []SupportMessage {
    out := make([]SupportMessage, 0, len(msgs))
    for _, m := range msgs {
        if q.match(m) {
            out = append(out, m)
        }
    }
    oldest := strings.EqualFold(q.Sort, SortOldest)
    sort.SliceStable(out, func(i, j int) bool {
        if oldest {
            return out[i].CreatedAt.Before(out[j].CreatedAt)
        }
        return out[i].CreatedAt.After(out[j].CreatedAt)
    })
    return out
}
