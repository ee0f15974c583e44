package models

import "github.com/golang-jwt/jwt/v5"

// JWTClaims is the access-token payload issued by the school SSO. This API
// only validates tokens; it never issues them.
type JWTClaims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}
