package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/vehicle-rental-marketplace/internal/apperr"
	"github.com/iliyamo/vehicle-rental-marketplace/internal/model"
	"github.com/iliyamo/vehicle-rental-marketplace/internal/storage"
)

// MessageRepo persists support messages. Every method but Create is
// reached only through admin routes.
type MessageRepo struct {
	Store storage.Store
	Now   func() time.Time
}

func NewMessageRepo(s storage.Store) *MessageRepo {
	return &MessageRepo{Store: s, Now: func() time.Time { return time.Now().UTC() }}
}

// Create stores a new unread message.
func (r *MessageRepo) Create(ctx context.Context, m model.SupportMessage) (model.SupportMessage, error) {
	now := r.Now()
	m.ID = uuid.NewString()
	m.Status = model.MessageUnread
	m.Starred = false
	m.Archived = false
	m.CreatedAt = now
	m.UpdatedAt = now
	if err := r.Store.Put(ctx, storage.Messages, m.ID, m); err != nil {
		return model.SupportMessage{}, err
	}
	return m, nil
}

// List returns the messages selected by q.
func (r *MessageRepo) List(ctx context.Context, q model.MessageQuery) ([]model.SupportMessage, error) {
	var all []model.SupportMessage
	if err := r.Store.List(ctx, storage.Messages, nil, &all); err != nil {
		return nil, err
	}
	return q.Select(all), nil
}

func (r *MessageRepo) Get(ctx context.Context, id string) (model.SupportMessage, error) {
	var m model.SupportMessage
	if err := r.Store.Get(ctx, storage.Messages, id, &m); err != nil {
		return model.SupportMessage{}, translate(err, "message")
	}
	return m, nil
}

// Patch applies p and returns the updated message.
func (r *MessageRepo) Patch(ctx context.Context, id string, p model.MessagePatch) (model.SupportMessage, error) {
	if p.Status != nil && !model.ValidMessageStatus(*p.Status) {
		return model.SupportMessage{}, apperr.Validation("unknown status", "status")
	}
	m, err := r.Get(ctx, id)
	if err != nil {
		return model.SupportMessage{}, err
	}
	m = p.Apply(m)
	m.UpdatedAt = r.Now()
	fields := p.Fields()
	fields["updatedAt"] = m.UpdatedAt
	if err := r.Store.Merge(ctx, storage.Messages, id, fields); err != nil {
		return model.SupportMessage{}, err
	}
	return m, nil
}

// Trash soft-deletes a message by moving it to the trash status.
func (r *MessageRepo) Trash(ctx context.Context, id string) (model.SupportMessage, error) {
	status := model.MessageTrash
	return r.Patch(ctx, id, model.MessagePatch{Status: &status})
}
