// Package queue defines the events exchanged over the message broker and the
// background consumer that handles them.
package queue

// Queue names.
const (
    SupportSubmittedQueue = "support.submitted"
    ReviewSubmittedQueue  = "review.submitted"
)

// SupportSubmittedEvent is published when a visitor sends a support message.
type SupportSubmittedEvent struct {
    MessageID   string `json:"message_id"`
    Name        string `json:"name"`
    Email       string `json:"email"`
    Subject     string `json:"subject,omitempty"`
    IssueType   string `json:"issue_type,omitempty"`
    Priority    string `json:"priority"`
    Message     string `json:"message"`
    SubmittedAt string `json:"submitted_at"`
}

// ReviewSubmittedEvent is published after a review transaction commits.
type ReviewSubmittedEvent struct {
    ReviewID    string `json:"review_id"`
    HostID      string `json:"host_id"`
    VehicleID   string `json:"vehicle_id,omitempty"`
    Rating      int    `json:"rating"`
    SubmittedAt string `json:"submitted_at"`
}
