package model

import "time"

// UserProfile is a host or customer profile in the "users" collection. The
// rating aggregate is mirrored from the "hosts" collection whenever a review
// is recorded.
//
// Fields:
//  Plan            – subscription key (free, starter or pro).
//  VehiclesCreated – lifetime count of vehicles ever created, never decremented.
//  RatingAvg       – average review rating, rounded to two decimals.
//  RatingCount     – number of verified reviews.
type UserProfile struct {
    ID              string    `json:"id" bson:"_id"`
    Name            string    `json:"name" bson:"name"`
    Email           string    `json:"email" bson:"email"`
    Phone           string    `json:"phone,omitempty" bson:"phone,omitempty"`
    Plan            string    `json:"plan" bson:"plan"`
    VehiclesCreated int       `json:"vehiclesCreated" bson:"vehiclesCreated"`
    RatingAvg       float64   `json:"ratingAvg" bson:"ratingAvg"`
    RatingCount     int       `json:"ratingCount" bson:"ratingCount"`
    CreatedAt       time.Time `json:"createdAt" bson:"createdAt"`
    UpdatedAt       time.Time `json:"updatedAt" bson:"updatedAt"`
}

// Public strips fields only the owner or an admin may see.
func (u UserProfile) Public() UserProfile {
    return UserProfile{
        ID:          u.ID,
        Name:        u.Name,
        RatingAvg:   u.RatingAvg,
        RatingCount: u.RatingCount,
    }
}

// HostRating is the rating aggregate stored under hosts/{id}.
type HostRating struct {
    ID          string    `json:"id" bson:"_id"`
    Name        string    `json:"name,omitempty" bson:"name,omitempty"`
    RatingAvg   float64   `json:"ratingAvg" bson:"ratingAvg"`
    RatingCount int       `json:"ratingCount" bson:"ratingCount"`
    UpdatedAt   time.Time `json:"updatedAt" bson:"updatedAt"`
}

// Credential maps a normalized email to a user and its bcrypt hash. The
// document id is the email itself so lookups need no index.
type Credential struct {
    ID           string    `json:"id" bson:"_id"`
    UserID       string    `json:"userId" bson:"userId"`
    PasswordHash string    `json:"passwordHash" bson:"passwordHash"`
    CreatedAt    time.Time `json:"createdAt" bson:"createdAt"`
}

// RefreshToken is keyed by the SHA-256 hex digest of the raw token. The raw
// value is never stored.
type RefreshToken struct {
    ID        string     `json:"id" bson:"_id"`
    UserID    string     `json:"userId" bson:"userId"`
    ExpiresAt time.Time  `json:"expiresAt" bson:"expiresAt"`
    RevokedAt *time.Time `json:"revokedAt" bson:"revokedAt"`
    CreatedAt time.Time  `json:"createdAt" bson:"createdAt"`
}
