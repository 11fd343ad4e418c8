package repository

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/vehicle-rental-marketplace/internal/model"
	"github.com/iliyamo/vehicle-rental-marketplace/internal/storage"
)

type BookingRepo struct {
	Store storage.Store
	Now   func() time.Time
}

func NewBookingRepo(s storage.Store) *BookingRepo {
	return &BookingRepo{Store: s, Now: func() time.Time { return time.Now().UTC() }}
}

// Create stores a pending booking against vehicle for customer.
func (r *BookingRepo) Create(ctx context.Context, customer Actor, vehicle model.Vehicle, b model.Booking) (model.Booking, error) {
	b.ID = uuid.NewString()
	b.VehicleID = vehicle.ID
	b.HostID = vehicle.Owner()
	b.CustomerID = customer.ID
	b.Status = model.BookingPending
	b.CreatedAt = r.Now()
	if err := r.Store.Put(ctx, storage.Bookings, b.ID, b); err != nil {
		return model.Booking{}, err
	}
	return b, nil
}

// ListFor returns the bookings actor may see, newest first: all of them for
// an admin, otherwise those where actor is the customer or the host.
func (r *BookingRepo) ListFor(ctx context.Context, actor Actor) ([]model.Booking, error) {
	var all []model.Booking
	if err := r.Store.List(ctx, storage.Bookings, nil, &all); err != nil {
		return nil, err
	}
	out := all[:0]
	for _, b := range all {
		if actor.Admin || b.CustomerID == actor.ID || b.HostID == actor.ID {
			out = append(out, b)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
