package transcription

import (
	"sync"

	"call-assistant/internal/apperr"
)

// MemoryStore keeps transcriptions for the life of the process.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]Transcription
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]Transcription)}
}

func (s *MemoryStore) Put(t Transcription) {
	s.mu.Lock()
	s.items[t.ID] = t
	s.mu.Unlock()
}

func (s *MemoryStore) Get(id string) (Transcription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.items[id]
	if !ok {
		return Transcription{}, apperr.New(apperr.KindNotFound, "Transcription %s not found", id)
	}
	return t, nil
}

// Update applies fn to the stored value under the write lock and returns the result.
// fn returning false leaves the record unchanged.
func (s *MemoryStore) Update(id string, fn func(*Transcription) bool) (Transcription, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.items[id]
	if !ok {
		return Transcription{}, false
	}
	if !fn(&t) {
		return t, false
	}
	s.items[id] = t
	return t, true
}
