package model

import (
    "math"
    "time"
)

// ReviewToken is a one-time credential a host hands to a customer. Its ID is
// the opaque token string itself.
type ReviewToken struct {
    ID               string     `json:"id" bson:"_id"`
    HostID           string     `json:"hostId" bson:"hostId"`
    VehicleID        string     `json:"vehicleId,omitempty" bson:"vehicleId,omitempty"`
    CreatedAt        time.Time  `json:"createdAt" bson:"createdAt"`
    ExpiresAt        time.Time  `json:"expiresAt" bson:"expiresAt"`
    Used             bool       `json:"used" bson:"used"`
    UsedAt           *time.Time `json:"usedAt" bson:"usedAt"`
    CreatedByHostUID string     `json:"createdByHostUid" bson:"createdByHostUid"`
    CustomerLabel    string     `json:"customerLabel,omitempty" bson:"customerLabel,omitempty"`
}

// Expired reports whether the token can no longer be redeemed at now.
func (t ReviewToken) Expired(now time.Time) bool { return !now.Before(t.ExpiresAt) }

// Review is a verified customer review of a host.
type Review struct {
    ID            string    `json:"id" bson:"_id"`
    Rating        int       `json:"rating" bson:"rating"`
    Comment       string    `json:"comment,omitempty" bson:"comment,omitempty"`
    DisplayName   string    `json:"displayName" bson:"displayName"`
    FirstName     string    `json:"firstName,omitempty" bson:"firstName,omitempty"`
    LastName      string    `json:"lastName,omitempty" bson:"lastName,omitempty"`
    Email         string    `json:"email,omitempty" bson:"email,omitempty"`
    HostID        string    `json:"hostId" bson:"hostId"`
    VehicleID     string    `json:"vehicleId,omitempty" bson:"vehicleId,omitempty"`
    Verified      bool      `json:"verified" bson:"verified"`
    Token         string    `json:"token" bson:"token"`
    CustomerLabel string    `json:"customerLabel,omitempty" bson:"customerLabel,omitempty"`
    CreatedAt     time.Time `json:"createdAt" bson:"createdAt"`
}

// NextRating folds one more rating into an average, rounding to two decimals.
func NextRating(avg float64, count, rating int) (float64, int) {
    n := count + 1
    next := (avg*float64(count) + float64(rating)) / float64(n)
    return math.Round(next*100) / 100, n
}
