package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
)

// Validator resolves bearer tokens: provisioned opaque tokens first, then signed access tokens.
type Validator struct {
	store TokenStore
	jwt   *Manager
	now   func() time.Time
	log   *slog.Logger
}

// NewValidator accepts a nil Manager when signed tokens are not configured.
func NewValidator(store TokenStore, m *Manager, log *slog.Logger) *Validator {
	if log == nil {
		log = slog.Default()
	}
	return &Validator{store: store, jwt: m, now: time.Now, log: log}
}

// Validate returns ErrInvalidToken for unknown, expired or malformed tokens.
func (v *Validator) Validate(ctx context.Context, token string) (Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, ErrInvalidToken
	}
	now := v.now()

	if v.store != nil {
		id, err := v.store.Get(ctx, token)
		switch {
		case err == nil && !id.Expired(now):
			return id, nil
		case err != nil && !errors.Is(err, ErrTokenNotFound):
			v.log.Warn("token store lookup failed", "err", err)
		}
	}

	if v.jwt != nil && strings.Count(token, ".") == 2 {
		claims, err := v.jwt.Verify(token, now)
		if err == nil {
			return claims.Identity(token), nil
		}
		v.log.Debug("signed token rejected", "err", err)
	}
	return Identity{}, ErrInvalidToken
}
