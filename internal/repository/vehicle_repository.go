package repository

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/vehicle-rental-marketplace/internal/apperr"
	"github.com/iliyamo/vehicle-rental-marketplace/internal/model"
	"github.com/iliyamo/vehicle-rental-marketplace/internal/storage"
)

// VehicleFilter narrows a listing. Status and HostID are exact; Country,
// State and City are case-insensitive substrings; Category is a
// case-insensitive exact match. Empty fields do not filter.
type VehicleFilter struct {
	Status   string
	Country  string
	State    string
	City     string
	Category string
	HostID   string
}

func (f VehicleFilter) match(v model.Vehicle) bool {
	contains := func(hay, needle string) bool {
		return needle == "" || strings.Contains(strings.ToLower(hay), strings.ToLower(needle))
	}
	if f.HostID != "" && v.Owner() != f.HostID {
		return false
	}
	if f.Category != "" && !strings.EqualFold(v.Category, f.Category) {
		return false
	}
	return contains(v.Country, f.Country) && contains(v.State, f.State) && contains(v.City, f.City)
}

// VehicleRepo persists vehicles.
type VehicleRepo struct {
	Store storage.Store
	Now   func() time.Time
}

func NewVehicleRepo(s storage.Store) *VehicleRepo {
	return &VehicleRepo{Store: s, Now: func() time.Time { return time.Now().UTC() }}
}

// List returns matching vehicles, newest first.
func (r *VehicleRepo) List(ctx context.Context, f VehicleFilter) ([]model.Vehicle, error) {
	q := storage.Filter{}
	if f.Status != "" {
		q["status"] = f.Status
	}
	var all []model.Vehicle
	if err := r.Store.List(ctx, storage.Vehicles, q, &all); err != nil {
		return nil, err
	}
	out := make([]model.Vehicle, 0, len(all))
	for _, v := range all {
		if f.match(v) {
			out = append(out, v)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Get fetches a vehicle by id.
func (r *VehicleRepo) Get(ctx context.Context, id string) (model.Vehicle, error) {
	var v model.Vehicle
	if err := r.Store.Get(ctx, storage.Vehicles, id, &v); err != nil {
		return model.Vehicle{}, translate(err, "vehicle")
	}
	return v, nil
}

// Create assigns id, owner and timestamps and stores the vehicle. Status
// defaults to active.
func (r *VehicleRepo) Create(ctx context.Context, owner Actor, v model.Vehicle) (model.Vehicle, error) {
	now := r.Now()
	v.ID = uuid.NewString()
	v.OwnerID = owner.ID
	v.HostID = owner.ID
	if v.HostEmail == "" {
		v.HostEmail = owner.Email
	}
	if !model.ValidVehicleStatus(v.Status) {
		v.Status = model.VehicleActive
	}
	v.EditCount = 0
	v.CreatedAt = now
	v.UpdatedAt = now
	if err := r.Store.Put(ctx, storage.Vehicles, v.ID, v); err != nil {
		return model.Vehicle{}, err
	}
	return v, nil
}

// owned loads a vehicle and checks that actor may modify it.
func (r *VehicleRepo) owned(ctx context.Context, id string, actor Actor) (model.Vehicle, error) {
	v, err := r.Get(ctx, id)
	if err != nil {
		return model.Vehicle{}, err
	}
	if !actor.CanModify(v.Owner()) {
		return model.Vehicle{}, ErrForbidden
	}
	return v, nil
}

// Update overlays patch onto the stored vehicle. The id, owner fields and
// createdAt are kept from the stored record whatever the patch says, and the
// edit counter is advanced by the server.
func (r *VehicleRepo) Update(ctx context.Context, id string, actor Actor, patch map[string]any) (model.Vehicle, error) {
	cur, err := r.owned(ctx, id, actor)
	if err != nil {
		return model.Vehicle{}, err
	}
	raw, err := json.Marshal(cur)
	if err != nil {
		return model.Vehicle{}, err
	}
	merged := map[string]any{}
	if err := json.Unmarshal(raw, &merged); err != nil {
		return model.Vehicle{}, err
	}
	for k, val := range patch {
		merged[k] = val
	}
	raw, err = json.Marshal(merged)
	if err != nil {
		return model.Vehicle{}, err
	}
	var next model.Vehicle
	if err := json.Unmarshal(raw, &next); err != nil {
		return model.Vehicle{}, apperr.Validation("invalid vehicle payload: " + err.Error())
	}
	if !model.ValidVehicleStatus(next.Status) {
		return model.Vehicle{}, apperr.Validation("status must be active or hidden", "status")
	}
	next.ID = cur.ID
	next.OwnerID = cur.Owner()
	next.HostID = cur.Owner()
	next.CreatedAt = cur.CreatedAt
	next.EditCount = cur.EditCount + 1
	next.UpdatedAt = r.Now()
	if err := r.Store.Put(ctx, storage.Vehicles, id, next); err != nil {
		return model.Vehicle{}, err
	}
	return next, nil
}

// SetStatus changes only the visibility of a vehicle.
func (r *VehicleRepo) SetStatus(ctx context.Context, id string, actor Actor, status string) (model.Vehicle, error) {
	if !model.ValidVehicleStatus(status) {
		return model.Vehicle{}, apperr.Validation("status must be active or hidden", "status")
	}
	v, err := r.owned(ctx, id, actor)
	if err != nil {
		return model.Vehicle{}, err
	}
	v.Status = status
	v.UpdatedAt = r.Now()
	if err := r.Store.Merge(ctx, storage.Vehicles, id, map[string]any{"status": status, "updatedAt": v.UpdatedAt}); err != nil {
		return model.Vehicle{}, err
	}
	return v, nil
}

// Delete removes a vehicle and returns what was deleted.
func (r *VehicleRepo) Delete(ctx context.Context, id string, actor Actor) (model.Vehicle, error) {
	v, err := r.owned(ctx, id, actor)
	if err != nil {
		return model.Vehicle{}, err
	}
	if err := r.Store.Delete(ctx, storage.Vehicles, id); err != nil {
		return model.Vehicle{}, translate(err, "vehicle")
	}
	return v, nil
}

// Stats summarizes every stored vehicle.
func (r *VehicleRepo) Stats(ctx context.Context) (model.VehicleStats, error) {
	all, err := r.List(ctx, VehicleFilter{})
	if err != nil {
		return model.VehicleStats{}, err
	}
	return model.SummarizeVehicles(all), nil
}
