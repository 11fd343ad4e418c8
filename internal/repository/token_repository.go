package repository

import (
	"context"
	"time"

	"github.com/iliyamo/vehicle-rental-marketplace/internal/model"
	"github.com/iliyamo/vehicle-rental-marketplace/internal/storage"
)

// TokenRepo persists and validates refresh tokens. Documents are keyed by
// the SHA-256 hash of the raw token.
type TokenRepo struct{ Store storage.Store }

func NewTokenRepo(s storage.Store) *TokenRepo { return &TokenRepo{Store: s} }

// StoreRefresh records a newly issued refresh token hash.
func (r *TokenRepo) StoreRefresh(ctx context.Context, userID, tokenHash string, exp time.Time) error {
	return r.Store.Put(ctx, storage.RefreshTokens, tokenHash, model.RefreshToken{
		ID:        tokenHash,
		UserID:    userID,
		ExpiresAt: exp,
		CreatedAt: time.Now().UTC(),
	})
}

// ValidateRefresh returns the owning user id if the token exists, is not
// revoked and has not expired.
func (r *TokenRepo) ValidateRefresh(ctx context.Context, tokenHash string) (string, error) {
	var t model.RefreshToken
	if err := r.Store.Get(ctx, storage.RefreshTokens, tokenHash, &t); err != nil {
		return "", translate(err, "refresh token")
	}
	if t.RevokedAt != nil || time.Now().UTC().After(t.ExpiresAt) {
		return "", notFound("refresh token")
	}
	return t.UserID, nil
}

// RevokeByHash marks a token as revoked.
func (r *TokenRepo) RevokeByHash(ctx context.Context, tokenHash string) error {
	return r.Store.Merge(ctx, storage.RefreshTokens, tokenHash, map[string]any{"revokedAt": time.Now().UTC()})
}

// RevokeAllForUser revokes all of a user's active tokens.
func (r *TokenRepo) RevokeAllForUser(ctx context.Context, userID string) error {
	var ts []model.RefreshToken
	if err := r.Store.List(ctx, storage.RefreshTokens, storage.Filter{"userId": userID}, &ts); err != nil {
		return err
	}
	for _, t := range ts {
		if t.RevokedAt != nil {
			continue
		}
		if err := r.RevokeByHash(ctx, t.ID); err != nil {
			return err
		}
	}
	return nil
}
