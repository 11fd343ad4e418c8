package model

import "time"

// Booking statuses.
const (
    BookingPending   = "pending"
    BookingConfirmed = "confirmed"
    BookingCancelled = "cancelled"
    BookingCompleted = "completed"
)

// Booking is a rental request against a vehicle. HostID is copied from the
// vehicle at creation so hosts can list their bookings without a join.
type Booking struct {
    ID         string    `json:"id" bson:"_id"`
    VehicleID  string    `json:"vehicleId" bson:"vehicleId"`
    HostID     string    `json:"hostId" bson:"hostId"`
    CustomerID string    `json:"customerId" bson:"customerId"`
    StartDate  string    `json:"startDate,omitempty" bson:"startDate,omitempty"`
    EndDate    string    `json:"endDate,omitempty" bson:"endDate,omitempty"`
    Notes      string    `json:"notes,omitempty" bson:"notes,omitempty"`
    Status     string    `json:"status" bson:"status"`
    CreatedAt  time.Time `json:"createdAt" bson:"createdAt"`
}
