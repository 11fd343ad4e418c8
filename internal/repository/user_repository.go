package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/vehicle-rental-marketplace/internal/apperr"
	"github.com/iliyamo/vehicle-rental-marketplace/internal/model"
	"github.com/iliyamo/vehicle-rental-marketplace/internal/storage"
	"github.com/iliyamo/vehicle-rental-marketplace/internal/utils"
)

// UserRepo persists profiles and login credentials.
type UserRepo struct {
	Store storage.Store
	Now   func() time.Time
}

func NewUserRepo(s storage.Store) *UserRepo {
	return &UserRepo{Store: s, Now: func() time.Time { return time.Now().UTC() }}
}

// Create registers a user on the free plan and stores the bcrypt hash of
// password under the normalized email.
func (r *UserRepo) Create(ctx context.Context, email, password, name string, cost int) (model.UserProfile, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	var existing model.Credential
	err := r.Store.Get(ctx, storage.Credentials, email, &existing)
	if err == nil {
		return model.UserProfile{}, ErrEmailExists
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		return model.UserProfile{}, err
	}

	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return model.UserProfile{}, err
	}
	now := r.Now()
	u := model.UserProfile{
		ID:        uuid.NewString(),
		Name:      strings.TrimSpace(name),
		Email:     email,
		Plan:      model.PlanFree,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.Store.Put(ctx, storage.Users, u.ID, u); err != nil {
		return model.UserProfile{}, err
	}
	cred := model.Credential{ID: email, UserID: u.ID, PasswordHash: hash, CreatedAt: now}
	if err := r.Store.Put(ctx, storage.Credentials, email, cred); err != nil {
		return model.UserProfile{}, err
	}
	return u, nil
}

// GetCredential fetches login data by normalized email.
func (r *UserRepo) GetCredential(ctx context.Context, email string) (model.Credential, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	var c model.Credential
	if err := r.Store.Get(ctx, storage.Credentials, email, &c); err != nil {
		return model.Credential{}, translate(err, "user")
	}
	return c, nil
}

// Get fetches a profile by id.
func (r *UserRepo) Get(ctx context.Context, id string) (model.UserProfile, error) {
	var u model.UserProfile
	if err := r.Store.Get(ctx, storage.Users, id, &u); err != nil {
		return model.UserProfile{}, translate(err, "user")
	}
	if u.Plan == "" {
		u.Plan = model.PlanFree
	}
	return u, nil
}

// List returns every profile.
func (r *UserRepo) List(ctx context.Context) ([]model.UserProfile, error) {
	var out []model.UserProfile
	if err := r.Store.List(ctx, storage.Users, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ProfilePatch holds the profile fields a user may change. Plan is only
// honoured when the caller is an admin.
type ProfilePatch struct {
	Name  *string `json:"name,omitempty"`
	Phone *string `json:"phone,omitempty"`
	Plan  *string `json:"plan,omitempty"`
}

// Update applies patch to the profile id on behalf of actor.
func (r *UserRepo) Update(ctx context.Context, id string, actor Actor, p ProfilePatch) (model.UserProfile, error) {
	if !actor.CanModify(id) {
		return model.UserProfile{}, ErrForbidden
	}
	u, err := r.Get(ctx, id)
	if err != nil {
		return model.UserProfile{}, err
	}
	fields := map[string]any{}
	if p.Name != nil {
		u.Name = strings.TrimSpace(*p.Name)
		fields["name"] = u.Name
	}
	if p.Phone != nil {
		u.Phone = strings.TrimSpace(*p.Phone)
		fields["phone"] = u.Phone
	}
	if p.Plan != nil {
		if !actor.Admin {
			return model.UserProfile{}, apperr.New(apperr.KindForbidden, "only an admin can change a plan")
		}
		switch *p.Plan {
		case model.PlanFree, model.PlanStarter, model.PlanPro:
		default:
			return model.UserProfile{}, apperr.Validation("unknown plan", "plan")
		}
		u.Plan = *p.Plan
		fields["plan"] = u.Plan
	}
	u.UpdatedAt = r.Now()
	fields["updatedAt"] = u.UpdatedAt
	if err := r.Store.Merge(ctx, storage.Users, id, fields); err != nil {
		return model.UserProfile{}, err
	}
	return u, nil
}

// IncrementVehiclesCreated bumps the lifetime vehicle counter. The counter
// only grows; concurrent creates by one user may race, last write wins.
func (r *UserRepo) IncrementVehiclesCreated(ctx context.Context, id string, actor Actor) (int, error) {
	if !actor.CanModify(id) {
		return 0, ErrForbidden
	}
	u, err := r.Get(ctx, id)
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return 0, err
	}
	n := u.VehiclesCreated + 1
	if err := r.Store.Merge(ctx, storage.Users, id, map[string]any{
		"vehiclesCreated": n,
		"updatedAt":       r.Now(),
	}); err != nil {
		return 0, err
	}
	return n, nil
}
