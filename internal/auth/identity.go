package auth

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrInvalidToken  = errors.New("auth: invalid or expired token")
	ErrTokenNotFound = errors.New("auth: token not found")
)

// Identity is what a bearer token resolves to.
type Identity struct {
	Token       string    `json:"-" yaml:"token"`
	UserID      string    `json:"userId" yaml:"user_id"`
	PhoneNumber string    `json:"phoneNumber" yaml:"phone_number"`
	ExpiresAt   time.Time `json:"expiresAt" yaml:"expires_at"`
}

// Expired reports whether the identity is past its expiry. A zero ExpiresAt never expires.
func (id Identity) Expired(now time.Time) bool {
	return !id.ExpiresAt.IsZero() && !now.Before(id.ExpiresAt)
}

// NormalizePhone keeps only the digits of an international number: "+1 (555) 123-4567" -> "15551234567".
func NormalizePhone(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
