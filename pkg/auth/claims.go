package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AccessTokenClaims represents the typed JWT the identity platform issues.
// This service only needs the subject user id; everything else rides along.
type AccessTokenClaims struct {
	UserID uuid.UUID `json:"user_id"`
	Locale string    `json:"locale,omitempty"`
	jwt.RegisteredClaims
}
