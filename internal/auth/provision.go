package auth

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// ProvisionFile is the on-disk shape of out-of-band provisioned tokens:
//
//	tokens:
//	  - token: demo-token
//	    user_id: user-1
//	    phone_number: "+1 555 123 4567"
//	    expires_at: 2026-01-01T00:00:00Z   # optional
type ProvisionFile struct {
	Tokens []Identity `yaml:"tokens"`
}

// LoadProvisionFile parses and validates a provisioning file. Phone numbers are normalized.
func LoadProvisionFile(path string) ([]Identity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading tokens file: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		// Truncated mid-write; keep the current tokens rather than revoking everything.
		return nil, fmt.Errorf("tokens file %s is empty", path)
	}
	var f ProvisionFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing tokens file: %w", err)
	}

	seen := make(map[string]struct{}, len(f.Tokens))
	out := make([]Identity, 0, len(f.Tokens))
	for i, id := range f.Tokens {
		id.Token = strings.TrimSpace(id.Token)
		if id.Token == "" {
			return nil, fmt.Errorf("tokens[%d].token is required", i)
		}
		if id.UserID == "" {
			return nil, fmt.Errorf("tokens[%d].user_id is required", i)
		}
		if _, dup := seen[id.Token]; dup {
			return nil, fmt.Errorf("tokens[%d] duplicates an earlier token", i)
		}
		seen[id.Token] = struct{}{}
		id.PhoneNumber = NormalizePhone(id.PhoneNumber)
		out = append(out, id)
	}
	return out, nil
}

// Provisioner keeps a TokenStore in sync with the provisioning file.
// Tokens removed from the file are revoked on the next Apply.
type Provisioner struct {
	store TokenStore
	ttl   time.Duration
	now   func() time.Time
	log   *slog.Logger

	mu    sync.Mutex
	known map[string]struct{}
}

// NewProvisioner applies ttl to identities without an explicit expiry; ttl <= 0 means no expiry.
func NewProvisioner(store TokenStore, ttl time.Duration, log *slog.Logger) *Provisioner {
	if log == nil {
		log = slog.Default()
	}
	return &Provisioner{store: store, ttl: ttl, now: time.Now, log: log, known: map[string]struct{}{}}
}

func (p *Provisioner) Apply(ctx context.Context, ids []Identity) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	next := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id.ExpiresAt.IsZero() && p.ttl > 0 {
			id.ExpiresAt = now.Add(p.ttl)
		}
		if err := p.store.Put(ctx, id); err != nil {
			return fmt.Errorf("auth: provision %s: %w", id.UserID, err)
		}
		next[id.Token] = struct{}{}
	}
	for tok := range p.known {
		if _, ok := next[tok]; ok {
			continue
		}
		if err := p.store.Delete(ctx, tok); err != nil {
			p.log.Warn("token revoke failed", "err", err)
		}
	}
	p.known = next
	p.log.Info("tokens provisioned", "count", len(ids))
	return nil
}

// LoadAndApply reads path and applies it.
func (p *Provisioner) LoadAndApply(ctx context.Context, path string) error {
	ids, err := LoadProvisionFile(path)
	if err != nil {
		return err
	}
	return p.Apply(ctx, ids)
}
