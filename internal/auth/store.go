package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// TokenStore maps opaque bearer tokens to identities.
type TokenStore interface {
	Put(ctx context.Context, id Identity) error
	Get(ctx context.Context, token string) (Identity, error)
	Delete(ctx context.Context, token string) error
}

// MemoryStore is a process-local TokenStore. Expired entries are dropped on read.
type MemoryStore struct {
	mu     sync.RWMutex
	tokens map[string]Identity
	now    func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tokens: map[string]Identity{}, now: time.Now}
}

func (s *MemoryStore) Put(_ context.Context, id Identity) error {
	if id.Token == "" {
		return errors.New("auth: token required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[id.Token] = id
	return nil
}

func (s *MemoryStore) Get(_ context.Context, token string) (Identity, error) {
	s.mu.RLock()
	id, ok := s.tokens[token]
	s.mu.RUnlock()
	if !ok {
		return Identity{}, ErrTokenNotFound
	}
	if id.Expired(s.now()) {
		s.mu.Lock()
		if cur, ok := s.tokens[token]; ok && cur.Expired(s.now()) {
			delete(s.tokens, token)
		}
		s.mu.Unlock()
		return Identity{}, ErrTokenNotFound
	}
	return id, nil
}

func (s *MemoryStore) Delete(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, token)
	return nil
}

// RedisStore keeps identities in redis under a hash of the token, expiring with the identity.
type RedisStore struct {
	rdb    redis.Cmdable
	prefix string
	now    func() time.Time
}

func NewRedisStore(rdb redis.Cmdable, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "auth:token:"
	}
	return &RedisStore{rdb: rdb, prefix: prefix, now: time.Now}
}

// key never embeds the raw token; redis keys show up in MONITOR and slowlogs.
func (s *RedisStore) key(token string) string {
	sum := sha256.Sum256([]byte(token))
	return s.prefix + hex.EncodeToString(sum[:])
}

type redisIdentity struct {
	UserID      string    `json:"user_id"`
	PhoneNumber string    `json:"phone_number"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func (s *RedisStore) Put(ctx context.Context, id Identity) error {
	if id.Token == "" {
		return errors.New("auth: token required")
	}
	var ttl time.Duration
	if !id.ExpiresAt.IsZero() {
		ttl = id.ExpiresAt.Sub(s.now())
		if ttl <= 0 {
			return s.Delete(ctx, id.Token)
		}
	}
	raw, err := json.Marshal(redisIdentity{UserID: id.UserID, PhoneNumber: id.PhoneNumber, ExpiresAt: id.ExpiresAt})
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, s.key(id.Token), raw, ttl).Err(); err != nil {
		return fmt.Errorf("auth: store token: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, token string) (Identity, error) {
	raw, err := s.rdb.Get(ctx, s.key(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Identity{}, ErrTokenNotFound
	}
	if err != nil {
		return Identity{}, fmt.Errorf("auth: load token: %w", err)
	}
	var ri redisIdentity
	if err := json.Unmarshal(raw, &ri); err != nil {
		return Identity{}, fmt.Errorf("auth: decode token: %w", err)
	}
	id := Identity{Token: token, UserID: ri.UserID, PhoneNumber: ri.PhoneNumber, ExpiresAt: ri.ExpiresAt}
	if id.Expired(s.now()) {
		return Identity{}, ErrTokenNotFound
	}
	return id, nil
}

func (s *RedisStore) Delete(ctx context.Context, token string) error {
	if err := s.rdb.Del(ctx, s.key(token)).Err(); err != nil {
		return fmt.Errorf("auth: delete token: %w", err)
	}
	return nil
}
