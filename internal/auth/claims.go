package auth

import "github.com/golang-jwt/jwt/v5"

type TokenType string

const TokenTypeAccess TokenType = "access"

// Claims are the only supported JWT claims shape for this service.
// PhoneNumber is stored in normalized digits-only form.
type Claims struct {
	jwt.RegisteredClaims

	UserID      string    `json:"user_id"`
	PhoneNumber string    `json:"phone_number,omitempty"`
	TokenType   TokenType `json:"token_type"`
}
