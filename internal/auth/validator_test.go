package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"call-assistant/internal/config"
	"call-assistant/pkg/logger"
)

func TestValidator_ProvisionedToken(t *testing.T) {
	store := NewMemoryStore()
	_ = store.Put(context.Background(), Identity{Token: "tok-1", UserID: "user-1", PhoneNumber: "15551234567"})
	v := NewValidator(store, nil, logger.Discard())

	id, err := v.Validate(context.Background(), " tok-1 ")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if id.UserID != "user-1" || id.PhoneNumber != "15551234567" {
		t.Fatalf("unexpected identity: %+v", id)
	}
}

func TestValidator_UnknownTokenIsInvalid(t *testing.T) {
	v := NewValidator(NewMemoryStore(), nil, logger.Discard())
	for _, tok := range []string{"", "nope", "a.b.c"} {
		if _, err := v.Validate(context.Background(), tok); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("%q: expected ErrInvalidToken, got %v", tok, err)
		}
	}
}

func TestValidator_ExpiredTokenIsInvalid(t *testing.T) {
	now := time.Unix(1700000000, 0)
	store := NewMemoryStore()
	store.now = func() time.Time { return now }
	_ = store.Put(context.Background(), Identity{Token: "old", UserID: "u", ExpiresAt: now.Add(-time.Second)})

	v := NewValidator(store, nil, logger.Discard())
	v.now = store.now
	if _, err := v.Validate(context.Background(), "old"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected expired token rejected, got %v", err)
	}
}

func TestValidator_SignedToken(t *testing.T) {
	m, err := NewManager(config.AuthConfig{JWTSecret: "secret", AccessTokenTTL: time.Hour})
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	tok, err := m.Issue(time.Now(), "user-9", "+44 20 7946 0000", 0)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	v := NewValidator(NewMemoryStore(), m, logger.Discard())

	id, err := v.Validate(context.Background(), tok)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if id.UserID != "user-9" || id.PhoneNumber != "442079460000" {
		t.Fatalf("unexpected identity: %+v", id)
	}

	tampered := tok[:strings.LastIndex(tok, ".")+1] + "AAAA"
	if _, err := v.Validate(context.Background(), tampered); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected tampered token rejected, got %v", err)
	}
}
