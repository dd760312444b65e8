package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AccessClaims is the payload of an access token. The subject is the username.
type AccessClaims struct {
	jwt.RegisteredClaims
}

// Username returns the subject claim
func (c *AccessClaims) Username() string {
	return c.RegisteredClaims.Subject
}

// Expires returns the expiry claim, zero if absent
func (c *AccessClaims) Expires() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// Issued returns the issued at claim, zero if absent
func (c *AccessClaims) Issued() time.Time {
	if c.IssuedAt == nil {
		return time.Time{}
	}
	return c.IssuedAt.Time
}

func ensureTokenID(claims *jwt.RegisteredClaims) {
	if claims == nil || claims.ID != "" {
		return
	}
	claims.ID = uuid.NewString()
}
