package model

import "time"

// Vehicle statuses. Only active vehicles appear in public listings.
const (
    VehicleActive = "active"
    VehicleHidden = "hidden"
)

// PlaceholderImage is shown for listings that were saved without photos.
const PlaceholderImage = "assets/images/vehicle-placeholder.jpg"

// Vehicle is a rental listing as stored in the "vehicles" collection.
//
// OwnerID and HostID always hold the same value: older records and the
// public query string use hostId, the client uses ownerId. Neither may change
// after creation.
type Vehicle struct {
    ID           string    `json:"id" bson:"_id"`
    OwnerID      string    `json:"ownerId" bson:"ownerId"`
    HostID       string    `json:"hostId" bson:"hostId"`
    Status       string    `json:"status" bson:"status"`
    Year         int       `json:"year" bson:"year"`
    Make         string    `json:"make" bson:"make"`
    Model        string    `json:"model" bson:"model"`
    Category     string    `json:"category" bson:"category"`
    Country      string    `json:"country" bson:"country"`
    State        string    `json:"state" bson:"state"`
    City         string    `json:"city" bson:"city"`
    Price        float64   `json:"price" bson:"price"`
    Frequency    string    `json:"frequency" bson:"frequency"`
    Fuel         string    `json:"fuel" bson:"fuel"`
    Insurance    string    `json:"insurance" bson:"insurance"`
    Transmission string    `json:"transmission,omitempty" bson:"transmission,omitempty"`
    Seats        int       `json:"seats,omitempty" bson:"seats,omitempty"`
    Description  string    `json:"description,omitempty" bson:"description,omitempty"`
    Image        string    `json:"image,omitempty" bson:"image,omitempty"`
    Photos       []string  `json:"photos,omitempty" bson:"photos,omitempty"`
    HostName     string    `json:"hostName,omitempty" bson:"hostName,omitempty"`
    HostEmail    string    `json:"hostEmail,omitempty" bson:"hostEmail,omitempty"`
    EditCount    int       `json:"editCount" bson:"editCount"`
    CreatedAt    time.Time `json:"createdAt" bson:"createdAt"`
    UpdatedAt    time.Time `json:"updatedAt" bson:"updatedAt"`
}

// Owner returns the owning user id, tolerating records written with only
// one of the two id fields.
func (v Vehicle) Owner() string {
    if v.OwnerID != "" {
        return v.OwnerID
    }
    return v.HostID
}

// WithImage returns a copy whose Image is populated: the stored image, else
// the first photo, else the placeholder.
func (v Vehicle) WithImage() Vehicle {
    if v.Image != "" {
        return v
    }
    if len(v.Photos) > 0 && v.Photos[0] != "" {
        v.Image = v.Photos[0]
        return v
    }
    v.Image = PlaceholderImage
    return v
}

// ValidVehicleStatus reports whether s is a status a vehicle may be set to.
func ValidVehicleStatus(s string) bool { return s == VehicleActive || s == VehicleHidden }

// VehicleStats summarizes a set of vehicles.
type VehicleStats struct {
    Total        int            `json:"total"`
    Active       int            `json:"active"`
    Hidden       int            `json:"hidden"`
    ByCategory   map[string]int `json:"byCategory"`
    ByCountry    map[string]int `json:"byCountry"`
    AveragePrice float64        `json:"averagePrice"`
}

// SummarizeVehicles computes VehicleStats. The average price is rounded to
// the nearest whole unit and only counts priced vehicles.
func SummarizeVehicles(vs []Vehicle) VehicleStats {
    st := VehicleStats{ByCategory: map[string]int{}, ByCountry: map[string]int{}}
    var sum float64
    var priced int
    for _, v := range vs {
        st.Total++
        switch v.Status {
        case VehicleActive:
            st.Active++
        case VehicleHidden:
            st.Hidden++
        }
        if v.Category != "" {
            st.ByCategory[v.Category]++
        }
        if v.Country != "" {
            st.ByCountry[v.Country]++
        }
        if v.Price > 0 {
            sum += v.Price
            priced++
        }
    }
    if priced > 0 {
        st.AveragePrice = float64(int64(sum/float64(priced) + 0.5))
    }
    return st
}
