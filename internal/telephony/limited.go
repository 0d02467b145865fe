package telephony

import (
	"context"
	"log/slog"
	"time"

	"call-assistant/internal/apperr"
	"call-assistant/internal/calls"
	"call-assistant/pkg/utils"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// SlotLimiter caps concurrent members of a keyed set.
type SlotLimiter interface {
	Acquire(ctx context.Context, key, member string) (bool, error)
	Rename(ctx context.Context, key, oldMember, newMember string) error
	Release(ctx context.Context, key, member string) error
}

// RedisSlots is a SlotLimiter backed by a redis set per key.
type RedisSlots struct {
	rdb   redis.Scripter
	limit int
	ttl   time.Duration
}

func NewRedisSlots(rdb redis.Scripter, limit int, ttl time.Duration) *RedisSlots {
	if ttl <= 0 {
		// Longer than any reasonable call; bounds leaks from lost callbacks.
		ttl = 4 * time.Hour
	}
	return &RedisSlots{rdb: rdb, limit: limit, ttl: ttl}
}

func (s *RedisSlots) Acquire(ctx context.Context, key, member string) (bool, error) {
	return utils.AcquireSlot(ctx, s.rdb, key, member, s.limit, s.ttl)
}

func (s *RedisSlots) Rename(ctx context.Context, key, oldMember, newMember string) error {
	_, err := utils.RenameSlot(ctx, s.rdb, key, oldMember, newMember)
	return err
}

func (s *RedisSlots) Release(ctx context.Context, key, member string) error {
	_, err := utils.ReleaseSlot(ctx, s.rdb, key, member)
	return err
}

// LimitedProvider caps simultaneous outbound calls from the originating number.
//
// A slot is taken before placement, keyed by the provider call id once known, and released when the
// call reaches a terminal status (webhook), is canceled, or placement fails.
type LimitedProvider struct {
	Provider
	slots SlotLimiter
	from  string
	log   *slog.Logger
}

func NewLimitedProvider(p Provider, slots SlotLimiter, from string, log *slog.Logger) *LimitedProvider {
	if log == nil {
		log = slog.Default()
	}
	return &LimitedProvider{Provider: p, slots: slots, from: from, log: log}
}

func (p *LimitedProvider) key() string { return "calls:active:" + p.from }

func (p *LimitedProvider) PlaceCall(ctx context.Context, req PlaceCallRequest) (PlacedCall, error) {
	pending := "pending:" + uuid.NewString()
	ok, err := p.slots.Acquire(ctx, p.key(), pending)
	if err != nil {
		return PlacedCall{}, apperr.Wrap(apperr.KindProvider, err, "call concurrency check failed: %v", err)
	}
	if !ok {
		return PlacedCall{}, apperr.New(apperr.KindProvider, "Too many concurrent calls from %s", p.from)
	}

	placed, err := p.Provider.PlaceCall(ctx, req)
	if err != nil {
		if relErr := p.slots.Release(context.WithoutCancel(ctx), p.key(), pending); relErr != nil {
			p.log.Warn("call slot release failed", "err", relErr)
		}
		return PlacedCall{}, err
	}
	if err := p.slots.Rename(ctx, p.key(), pending, placed.ID); err != nil {
		p.log.Warn("call slot rename failed", "call_id", placed.ID, "err", err)
	}
	return placed, nil
}

func (p *LimitedProvider) CancelCall(ctx context.Context, callID string) (calls.Call, error) {
	c, err := p.Provider.CancelCall(ctx, callID)
	if err != nil {
		return c, err
	}
	p.ReleaseCall(ctx, callID)
	return c, nil
}

// ReleaseCall frees the slot held by callID. Unknown ids are a no-op.
func (p *LimitedProvider) ReleaseCall(ctx context.Context, callID string) {
	if err := p.slots.Release(ctx, p.key(), callID); err != nil {
		p.log.Warn("call slot release failed", "call_id", callID, "err", err)
	}
}
