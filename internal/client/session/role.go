package session

import (
    "encoding/json"
    "strings"
)

// Role is what the signed-in user may do in the client. It is parsed once,
// when a session is decoded, and unknown values become RoleGuest.
type Role string

const (
    RoleGuest Role = "guest"
    RoleHost  Role = "host"
    RoleAdmin Role = "admin"
)

// ParseRole maps s to a Role. ok is false for anything but the three known
// roles.
func ParseRole(s string) (r Role, ok bool) {
    switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
    case RoleGuest, RoleHost, RoleAdmin:
        return r, true
    }
    return RoleGuest, false
}

func (r Role) Valid() bool {
    switch r {
    case RoleGuest, RoleHost, RoleAdmin:
        return true
    }
    return false
}

func (r *Role) UnmarshalJSON(b []byte) error {
    var s string
    if err := json.Unmarshal(b, &s); err != nil {
        *r = RoleGuest
        return nil
    }
    *r, _ = ParseRole(s)
    return nil
}
