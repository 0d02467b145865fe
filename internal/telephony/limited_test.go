package telephony_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"call-assistant/internal/apperr"
	"call-assistant/internal/calls"
	"call-assistant/internal/telephony"
	"call-assistant/internal/telephony/telephonytest"
	"call-assistant/pkg/logger"
)

type memorySlots struct {
	mu    sync.Mutex
	limit int
	sets  map[string]map[string]bool
}

func newMemorySlots(limit int) *memorySlots {
	return &memorySlots{limit: limit, sets: map[string]map[string]bool{}}
}

func (m *memorySlots) Acquire(_ context.Context, key, member string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set := m.sets[key]
	if set == nil {
		set = map[string]bool{}
		m.sets[key] = set
	}
	if set[member] {
		return true, nil
	}
	if len(set) >= m.limit {
		return false, nil
	}
	set[member] = true
	return true, nil
}

func (m *memorySlots) Rename(_ context.Context, key, oldMember, newMember string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sets[key][oldMember] {
		delete(m.sets[key], oldMember)
		m.sets[key][newMember] = true
	}
	return nil
}

func (m *memorySlots) Release(_ context.Context, key, member string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sets[key], member)
	return nil
}

func (m *memorySlots) members(key string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for k := range m.sets[key] {
		out = append(out, k)
	}
	return out
}

func TestLimitedProvider_CapsAndReleases(t *testing.T) {
	fake := telephonytest.New()
	fake.Placed = telephony.PlacedCall{ID: "CA1", Status: calls.CallStatusQueued, To: "+15551234567", From: "+15557654321"}
	slots := newMemorySlots(1)
	p := telephony.NewLimitedProvider(fake, slots, "+15557654321", logger.Discard())
	ctx := context.Background()
	key := "calls:active:+15557654321"

	placed, err := p.PlaceCall(ctx, telephony.PlaceCallRequest{To: "+15551234567", Message: "hi"})
	if err != nil || placed.ID != "CA1" {
		t.Fatalf("expected placement, got %+v %v", placed, err)
	}
	if got := slots.members(key); len(got) != 1 || got[0] != "CA1" {
		t.Fatalf("expected slot keyed by call id, got %v", got)
	}

	_, err = p.PlaceCall(ctx, telephony.PlaceCallRequest{To: "+15551234567", Message: "hi"})
	if !errors.Is(err, apperr.ErrProvider) || !strings.Contains(err.Error(), "Too many concurrent calls") {
		t.Fatalf("expected cap rejection, got %v", err)
	}

	p.ReleaseCall(ctx, "CA1")
	if got := slots.members(key); len(got) != 0 {
		t.Fatalf("expected slot released, got %v", got)
	}
}

func TestLimitedProvider_ReleasesOnPlacementFailure(t *testing.T) {
	fake := telephonytest.New()
	fake.PlaceErr = apperr.New(apperr.KindProvider, "Twilio error: invalid To number")
	slots := newMemorySlots(1)
	p := telephony.NewLimitedProvider(fake, slots, "+15557654321", logger.Discard())

	if _, err := p.PlaceCall(context.Background(), telephony.PlaceCallRequest{To: "bad", Message: "hi"}); err == nil {
		t.Fatalf("expected error")
	}
	if got := slots.members("calls:active:+15557654321"); len(got) != 0 {
		t.Fatalf("expected pending slot released, got %v", got)
	}
}

func TestLimitedProvider_CancelReleases(t *testing.T) {
	fake := telephonytest.New()
	fake.Placed = telephony.PlacedCall{ID: "CA1", Status: calls.CallStatusQueued}
	slots := newMemorySlots(1)
	p := telephony.NewLimitedProvider(fake, slots, "+1", logger.Discard())
	ctx := context.Background()

	if _, err := p.PlaceCall(ctx, telephony.PlaceCallRequest{To: "+2", Message: "hi"}); err != nil {
		t.Fatalf("place: %v", err)
	}
	c, err := p.CancelCall(ctx, "CA1")
	if err != nil || c.Status != calls.CallStatusCanceled {
		t.Fatalf("expected cancel, got %+v %v", c, err)
	}
	if got := slots.members("calls:active:+1"); len(got) != 0 {
		t.Fatalf("expected slot released after cancel, got %v", got)
	}
}
