package utils // package utils provides helper functions for token creation and hashing

import (
    "crypto/rand"   // secure random number generation
    "crypto/sha256" // SHA-256 hashing for refresh tokens
    "encoding/hex"  // hex encoding and decoding functions
    "errors"
    "strings"
    "time" // time utilities for generating expirations

    "github.com/golang-jwt/jwt/v5" // JWT library for creating signed tokens
)

// IdentityToken is a signed identity token together with its expiry.  It is
// sent as the Bearer credential on authenticated API calls.
type IdentityToken struct {
    Token string    // the serialized JWT string
    Exp   time.Time // the UTC expiration time
}

// IdentityClaims are the claims carried by an identity token.  Roles are not
// part of the token: the server derives admin from the email on every
// request so a stale token can never keep elevated rights.
type IdentityClaims struct {
    UserID string
    Email  string
    Name   string
}

// RefreshToken represents a long-lived token used to obtain new identity
// tokens.  Only a SHA-256 hash of Raw is persisted.
type RefreshToken struct {
    Raw string    // raw token string returned to the client
    Exp time.Time // UTC expiration time
}

// NewIdentityToken builds and signs an HS256 JWT for a user.  The claims are
// sub (user id), email, name, exp and iat.
func NewIdentityToken(secret string, c IdentityClaims, ttlMin int) (IdentityToken, error) {
    now := time.Now().UTC()
    exp := now.Add(time.Duration(ttlMin) * time.Minute)
    claims := jwt.MapClaims{
        "sub":   c.UserID,
        "email": strings.ToLower(c.Email),
        "name":  c.Name,
        "exp":   exp.Unix(),
        "iat":   now.Unix(),
    }
    t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
    signed, err := t.SignedString([]byte(secret))
    if err != nil {
        return IdentityToken{}, err
    }
    return IdentityToken{Token: signed, Exp: exp}, nil
}

// ParseIdentityToken verifies raw with secret and returns its claims.  Only
// HMAC signing methods are accepted.
func ParseIdentityToken(secret, raw string) (IdentityClaims, error) {
    tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
        if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
            return nil, errors.New("unexpected signing method")
        }
        return []byte(secret), nil
    })
    if err != nil || !tok.Valid {
        return IdentityClaims{}, errors.New("invalid token")
    }
    return claimsOf(tok)
}

// ReadIdentityToken decodes the claims of raw without verifying the
// signature.  Clients use it to show who they are signed in as; the server
// never does.
func ReadIdentityToken(raw string) (IdentityClaims, time.Time, error) {
    tok, _, err := jwt.NewParser().ParseUnverified(raw, jwt.MapClaims{})
    if err != nil {
        return IdentityClaims{}, time.Time{}, err
    }
    c, err := claimsOf(tok)
    if err != nil {
        return IdentityClaims{}, time.Time{}, err
    }
    var exp time.Time
    if e, err := tok.Claims.GetExpirationTime(); err == nil && e != nil {
        exp = e.Time
    }
    return c, exp, nil
}

func claimsOf(tok *jwt.Token) (IdentityClaims, error) {
    mc, ok := tok.Claims.(jwt.MapClaims)
    if !ok {
        return IdentityClaims{}, errors.New("invalid claims")
    }
    sub, _ := mc["sub"].(string)
    if sub == "" {
        return IdentityClaims{}, errors.New("token has no subject")
    }
    email, _ := mc["email"].(string)
    name, _ := mc["name"].(string)
    return IdentityClaims{UserID: sub, Email: email, Name: name}, nil
}

// NewRefreshToken returns a cryptographically secure random token (raw) and
// its expiration time.
func NewRefreshToken(ttlDays int) (RefreshToken, error) {
    raw, err := randomHex(48) // 48 bytes -> 96 hex chars
    if err != nil {
        return RefreshToken{}, err
    }
    return RefreshToken{
        Raw: raw,
        Exp: time.Now().UTC().Add(time.Duration(ttlDays) * 24 * time.Hour),
    }, nil
}

// NewReviewToken returns an unguessable one-time review token.
func NewReviewToken() (string, error) {
    return randomHex(24)
}

// HashRefreshRaw returns the SHA-256 hash of the raw refresh token as a hex
// string.
func HashRefreshRaw(raw string) string {
    sum := sha256.Sum256([]byte(raw))
    return hex.EncodeToString(sum[:])
}

// randomHex returns a hex-encoded string generated from n bytes of
// cryptographically secure random data.
func randomHex(n int) (string, error) {
    buf := make([]byte, n)
    if _, err := rand.Read(buf); err != nil {
        return "", err
    }
    return hex.EncodeToString(buf), nil
}
