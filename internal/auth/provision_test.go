package auth

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"call-assistant/pkg/logger"
)

func writeTokens(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestLoadProvisionFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.yaml")
	writeTokens(t, path, `
tokens:
  - token: tok-1
    user_id: user-1
    phone_number: "+1 (555) 123-4567"
  - token: tok-2
    user_id: user-2
    expires_at: 2030-01-01T00:00:00Z
`)
	ids, err := LoadProvisionFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(ids) != 2 || ids[0].PhoneNumber != "15551234567" {
		t.Fatalf("unexpected ids: %+v", ids)
	}
	if ids[1].ExpiresAt.Year() != 2030 {
		t.Fatalf("expected explicit expiry, got %v", ids[1].ExpiresAt)
	}
}

func TestLoadProvisionFile_Rejects(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"missing-user.yaml": "tokens:\n  - token: a\n",
		"dup.yaml":          "tokens:\n  - token: a\n    user_id: u\n  - token: a\n    user_id: v\n",
		"bad.yaml":          "tokens: [",
	}
	for name, body := range cases {
		path := filepath.Join(dir, name)
		writeTokens(t, path, body)
		if _, err := LoadProvisionFile(path); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestProvisioner_ApplyRevokesRemovedTokens(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1700000000, 0)
	store := NewMemoryStore()
	store.now = func() time.Time { return now }
	p := NewProvisioner(store, time.Hour, logger.Discard())
	p.now = store.now

	if err := p.Apply(ctx, []Identity{{Token: "a", UserID: "u1"}, {Token: "b", UserID: "u2"}}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	got, err := store.Get(ctx, "a")
	if err != nil || !got.ExpiresAt.Equal(now.Add(time.Hour)) {
		t.Fatalf("expected default ttl applied, got %+v %v", got, err)
	}

	if err := p.Apply(ctx, []Identity{{Token: "b", UserID: "u2"}}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if _, err := store.Get(ctx, "a"); err != ErrTokenNotFound {
		t.Fatalf("expected removed token revoked, got %v", err)
	}
	if _, err := store.Get(ctx, "b"); err != nil {
		t.Fatalf("expected kept token, got %v", err)
	}
}

func TestProvisioner_WatchReloads(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	path := filepath.Join(t.TempDir(), "tokens.yaml")
	writeTokens(t, path, "tokens:\n  - token: first\n    user_id: u1\n")

	store := NewMemoryStore()
	p := NewProvisioner(store, 0, logger.Discard())
	if err := p.LoadAndApply(ctx, path); err != nil {
		t.Fatalf("initial load: %v", err)
	}
	if err := p.Watch(ctx, path); err != nil {
		t.Fatalf("watch: %v", err)
	}

	writeTokens(t, path, "tokens:\n  - token: second\n    user_id: u2\n")

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := store.Get(ctx, "second"); err == nil {
			if _, err := store.Get(ctx, "first"); err == ErrTokenNotFound {
				return
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("expected tokens file reload to swap tokens")
}
