package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/iliyamo/vehicle-rental-marketplace/internal/apperr"
	"github.com/iliyamo/vehicle-rental-marketplace/internal/model"
	"github.com/iliyamo/vehicle-rental-marketplace/internal/storage"
	"github.com/iliyamo/vehicle-rental-marketplace/internal/utils"
)

// ReviewRepo issues review tokens and records verified reviews. Tokens live
// only in the primary store: a redemption served from the local mirror
// could be replayed once the primary came back, so there is no fallback.
type ReviewRepo struct {
	Primary    storage.Store      // nil when no primary store is configured
	Tx         storage.Transactor // transaction runner over the primary
	Profiles   storage.Store      // host names, read through the fallback
	TTL        time.Duration
	MinComment int
	Now        func() time.Time
}

func NewReviewRepo(primary storage.Store, tx storage.Transactor, profiles storage.Store, ttl time.Duration, minComment int) *ReviewRepo {
	return &ReviewRepo{
		Primary:    primary,
		Tx:         tx,
		Profiles:   profiles,
		TTL:        ttl,
		MinComment: minComment,
		Now:        func() time.Time { return time.Now().UTC() },
	}
}

var errNoPrimary = apperr.New(apperr.KindStorageUnavailable, "review service is temporarily unavailable")

func tokenState(t model.ReviewToken, now time.Time) error {
	if t.Used {
		return apperr.New(apperr.KindTokenAlreadyUsed, "this review link has already been used")
	}
	if t.Expired(now) {
		return apperr.New(apperr.KindTokenExpired, "this review link has expired")
	}
	return nil
}

// CreateToken issues a token for hostID, optionally bound to a vehicle.
func (r *ReviewRepo) CreateToken(ctx context.Context, host Actor, vehicleID, customerLabel string) (model.ReviewToken, error) {
	if r.Primary == nil {
		return model.ReviewToken{}, errNoPrimary
	}
	raw, err := utils.NewReviewToken()
	if err != nil {
		return model.ReviewToken{}, err
	}
	now := r.Now()
	t := model.ReviewToken{
		ID:               raw,
		HostID:           host.ID,
		VehicleID:        strings.TrimSpace(vehicleID),
		CreatedAt:        now,
		ExpiresAt:        now.Add(r.TTL),
		CreatedByHostUID: host.ID,
		CustomerLabel:    strings.TrimSpace(customerLabel),
	}
	if err := r.Primary.Put(ctx, storage.ReviewTokens, raw, t); err != nil {
		return model.ReviewToken{}, apperr.Wrap(apperr.KindStorageUnavailable, "could not save review link", err)
	}
	return t, nil
}

// TokenInfo is what a customer sees before writing a review.
type TokenInfo struct {
	HostID        string    `json:"hostId"`
	HostName      string    `json:"hostName"`
	VehicleID     string    `json:"vehicleId,omitempty"`
	ExpiresAt     time.Time `json:"expiresAt"`
	CustomerLabel string    `json:"customerLabel,omitempty"`
}

// Lookup validates a token without consuming it.
func (r *ReviewRepo) Lookup(ctx context.Context, token string) (TokenInfo, error) {
	if r.Primary == nil {
		return TokenInfo{}, errNoPrimary
	}
	var t model.ReviewToken
	if err := r.Primary.Get(ctx, storage.ReviewTokens, token, &t); err != nil {
		return TokenInfo{}, translate(err, "review link")
	}
	if err := tokenState(t, r.Now()); err != nil {
		return TokenInfo{}, err
	}
	info := TokenInfo{HostID: t.HostID, HostName: "Host", VehicleID: t.VehicleID, ExpiresAt: t.ExpiresAt, CustomerLabel: t.CustomerLabel}
	if r.Profiles != nil {
		var host model.UserProfile
		if err := r.Profiles.Get(ctx, storage.Users, t.HostID, &host); err == nil && host.Name != "" {
			info.HostName = host.Name
		}
	}
	return info, nil
}

// ReviewInput is a customer's review submission.
type ReviewInput struct {
	Token       string
	Rating      int
	Comment     string
	DisplayName string
	FirstName   string
	LastName    string
	Email       string
}

func (r *ReviewRepo) validate(in ReviewInput) error {
	if strings.TrimSpace(in.Token) == "" {
		return apperr.Validation("token is required", "token")
	}
	if in.Rating < 1 || in.Rating > 5 {
		return apperr.Validation("rating must be an integer from 1 to 5", "rating")
	}
	if c := strings.TrimSpace(in.Comment); c != "" && utf8.RuneCountInString(c) < r.MinComment {
		return apperr.Validation(fmt.Sprintf("comment must be at least %d characters", r.MinComment), "comment")
	}
	return nil
}

// Redeem consumes a token and records the review in one transaction. All
// reads (the token, then the host aggregate) happen before any write, and a
// token that another transaction consumed first fails with TokenAlreadyUsed.
func (r *ReviewRepo) Redeem(ctx context.Context, in ReviewInput) (model.Review, error) {
	if err := r.validate(in); err != nil {
		return model.Review{}, err
	}
	if r.Primary == nil || r.Tx == nil {
		return model.Review{}, errNoPrimary
	}

	var review model.Review
	err := r.Tx.RunTransaction(ctx, func(ctx context.Context, tx storage.Tx) error {
		now := r.Now()

		var t model.ReviewToken
		if err := tx.Get(ctx, storage.ReviewTokens, in.Token, &t); err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				// a submission names the token as input, so an unknown one is invalid input
				return apperr.Validation("this review link is not valid", "token")
			}
			return err
		}
		if err := tokenState(t, now); err != nil {
			return err
		}

		var host model.HostRating
		if err := tx.Get(ctx, storage.Hosts, t.HostID, &host); err != nil && !errors.Is(err, apperr.ErrNotFound) {
			return err
		}
		avg, count := model.NextRating(host.RatingAvg, host.RatingCount, in.Rating)

		display := strings.TrimSpace(in.DisplayName)
		if display == "" {
			display = "Anonymous"
		}
		review = model.Review{
			ID:            uuid.NewString(),
			Rating:        in.Rating,
			Comment:       strings.TrimSpace(in.Comment),
			DisplayName:   display,
			FirstName:     strings.TrimSpace(in.FirstName),
			LastName:      strings.TrimSpace(in.LastName),
			Email:         strings.ToLower(strings.TrimSpace(in.Email)),
			HostID:        t.HostID,
			VehicleID:     t.VehicleID,
			Verified:      true,
			Token:         in.Token,
			CustomerLabel: t.CustomerLabel,
			CreatedAt:     now,
		}
		if err := tx.Put(ctx, storage.Reviews, review.ID, review); err != nil {
			return err
		}
		aggregate := map[string]any{"ratingAvg": avg, "ratingCount": count, "updatedAt": now}
		if err := tx.Merge(ctx, storage.Hosts, t.HostID, aggregate); err != nil {
			return err
		}
		if err := tx.Merge(ctx, storage.Users, t.HostID, aggregate); err != nil {
			return err
		}
		return tx.Merge(ctx, storage.ReviewTokens, in.Token, map[string]any{"used": true, "usedAt": now})
	})
	if err != nil {
		return model.Review{}, err
	}
	return review, nil
}

// ListByHost returns a host's reviews, newest first. Reviews are public, so
// this reads through the fallback store.
func (r *ReviewRepo) ListByHost(ctx context.Context, hostID string) ([]model.Review, error) {
	var out []model.Review
	if err := r.Profiles.List(ctx, storage.Reviews, storage.Filter{"hostId": hostID}, &out); err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
