package transcription

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"call-assistant/internal/apperr"
	"call-assistant/internal/audio"
	"call-assistant/internal/events"
	"call-assistant/internal/telephony"
)

const (
	DefaultLanguage = "en-US"

	maxDownloadBytes = 25 << 20
)

// Streams starts and finds live audio streams.
type Streams interface {
	Process(callID, language string) (*audio.Stream, error)
	Get(callID string) (*audio.Stream, bool)
}

// Broadcaster fans messages out to socket observers.
type Broadcaster interface {
	Broadcast(callID string, msg any) int
}

type Request struct {
	CallID   string
	AudioURL string
	Language string
}

type Options struct {
	Backend     Backend
	// Fallback transcribes when Backend fails. Defaults to SimulatedTranscriber.
	Fallback    Backend
	Provider    telephony.Provider
	Streams     Streams
	Broadcaster Broadcaster
	Events      *events.Emitter
	Store       *MemoryStore
	HTTPClient  *http.Client
	Format      audio.Format
	Now         func() time.Time
}

// Update is broadcast to observers whenever a streaming transcription changes.
type Update struct {
	Type          string        `json:"type"`
	CallID        string        `json:"callId"`
	Seq           int           `json:"seq,omitempty"`
	Chunk         string        `json:"chunk,omitempty"`
	Transcription Transcription `json:"transcription"`
}

const (
	UpdateStarted   = "transcription.started"
	UpdatePartial   = "transcription.partial"
	UpdateCompleted = "transcription.completed"
)

type Service struct {
	backend  Backend
	fallback Backend
	provider telephony.Provider
	streams  Streams
	bcast    Broadcaster
	events   *events.Emitter
	store    *MemoryStore
	http     *http.Client
	format   audio.Format
	now      func() time.Time
	log      *slog.Logger

	mu     sync.Mutex
	active map[string]string // call id -> transcription id
}

func NewService(opts Options, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	if opts.Backend == nil {
		opts.Backend = SimulatedTranscriber{}
	}
	if opts.Fallback == nil {
		opts.Fallback = SimulatedTranscriber{}
	}
	if opts.Store == nil {
		opts.Store = NewMemoryStore()
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.Format.BytesPerSecond() <= 0 {
		opts.Format = audio.DefaultFormat
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		backend:  opts.Backend,
		fallback: opts.Fallback,
		provider: opts.Provider,
		streams:  opts.Streams,
		bcast:    opts.Broadcaster,
		events:   opts.Events,
		store:    opts.Store,
		http:     opts.HTTPClient,
		format:   opts.Format,
		now:      opts.Now,
		log:      log.With("component", "transcription", "backend", opts.Backend.Name()),
		active:   make(map[string]string),
	}
}

// Transcribe handles an audio URL, a call's latest completed recording, or starts a live stream when
// the call has no completed recording yet.
func (s *Service) Transcribe(ctx context.Context, req Request) (Transcription, error) {
	if req.CallID == "" && req.AudioURL == "" {
		return Transcription{}, apperr.New(apperr.KindInvalidArguments, "Either callId or audioUrl must be provided")
	}
	if req.Language == "" {
		req.Language = DefaultLanguage
	}

	if req.AudioURL != "" {
		data, err := s.download(ctx, req.AudioURL)
		if err != nil {
			return Transcription{}, err
		}
		t := s.newTranscription(req, SourceAudioURL)
		return s.complete(ctx, t, Audio{Data: data, Filename: path.Base(req.AudioURL), Language: req.Language})
	}

	if s.provider == nil {
		return s.StartStream(ctx, req.CallID, req.Language)
	}
	rec, err := s.provider.LatestRecording(ctx, req.CallID)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return s.StartStream(ctx, req.CallID, req.Language)
	case err != nil:
		return Transcription{}, err
	}
	data, err := s.provider.FetchRecordingAudio(ctx, rec)
	if err != nil {
		return Transcription{}, err
	}
	t := s.newTranscription(req, SourceRecording)
	t.Metadata.RecordingID = rec.ID
	return s.complete(ctx, t, Audio{Data: data, Filename: rec.ID + ".wav", Language: req.Language})
}

func (s *Service) Get(id string) (Transcription, error) {
	return s.store.Get(id)
}

// StartStream begins live transcription of a call. A second start for the same call returns the
// transcription already in progress.
func (s *Service) StartStream(ctx context.Context, callID, language string) (Transcription, error) {
	if s.streams == nil {
		return Transcription{}, apperr.New(apperr.KindInternal, "Live transcription is not available")
	}
	if language == "" {
		language = DefaultLanguage
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.active[callID]; ok {
		return s.store.Get(id)
	}

	t := s.newTranscription(Request{CallID: callID, Language: language}, SourceStream)
	t.Metadata.Backend = s.backend.Name()
	t.Metadata.SampleRate = s.format.SampleRate
	t.Metadata.Channels = s.format.Channels

	st, err := s.streams.Process(callID, language)
	if err != nil {
		return Transcription{}, apperr.Wrap(apperr.KindInternal, err, "Could not start stream for call %s", callID)
	}
	s.store.Put(t)
	s.active[callID] = t.ID

	st.OnTranscription(func(r audio.Result) { s.applyChunk(t.ID, r) })
	go func() {
		<-st.Done()
		s.finish(t.ID)
	}()

	s.publish(ctx, Update{Type: UpdateStarted, CallID: callID, Transcription: t})
	s.log.Info("streaming transcription started", "call_id", callID, "transcription_id", t.ID)
	return t, nil
}

// StopStream flushes the call's live audio and returns the finished transcription.
func (s *Service) StopStream(ctx context.Context, callID string) (Transcription, error) {
	s.mu.Lock()
	id, ok := s.active[callID]
	s.mu.Unlock()
	if !ok {
		return Transcription{}, apperr.New(apperr.KindNotFound, "No active stream for call %s", callID)
	}
	if st, ok := s.streams.Get(callID); ok {
		st.Stop()
	}
	s.finish(id)
	return s.store.Get(id)
}

func (s *Service) newTranscription(req Request, source string) Transcription {
	return Transcription{
		ID:       uuid.NewString(),
		Language: req.Language,
		Status:   StatusInProgress,
		Metadata: Metadata{
			CallID:    req.CallID,
			Source:    source,
			StartedAt: s.now().UTC(),
		},
	}
}

// complete runs the backend over a. A backend failure is retried on the fallback and kept in Error;
// if neither can transcribe, the record is stored and returned as failed.
func (s *Service) complete(ctx context.Context, t Transcription, a Audio) (Transcription, error) {
	backend := s.backend
	res, err := backend.Transcribe(ctx, a)
	if err != nil {
		s.log.Warn("transcription backend failed", "transcription_id", t.ID, "err", err)
		t.Error = err.Error()
		if s.fallback.Name() != backend.Name() {
			backend = s.fallback
			res, err = backend.Transcribe(ctx, a)
			if err == nil {
				t.Error = fmt.Sprintf("%s backend failed, used %s: %s", s.backend.Name(), backend.Name(), t.Error)
			} else {
				s.log.Warn("fallback transcription failed", "transcription_id", t.ID, "err", err)
			}
		}
	}
	done := s.now().UTC()
	t.Metadata.CompletedAt = &done
	t.Metadata.Backend = backend.Name()
	if err != nil {
		t.Status = StatusFailed
		s.store.Put(t)
		s.events.Emit(ctx, t.Metadata.CallID, "transcription", t)
		return t, nil
	}
	t.Text = res.Text
	t.Confidence = res.Confidence
	t.Duration = res.Duration
	t.WordCount = wordCount(res.Text)
	t.Status = StatusCompleted
	s.store.Put(t)
	s.events.Emit(ctx, t.Metadata.CallID, "transcription", t)
	return t, nil
}

func (s *Service) applyChunk(id string, r audio.Result) {
	t, ok := s.store.Update(id, func(t *Transcription) bool {
		if t.Terminal() {
			return false
		}
		text := strings.TrimSpace(r.Text)
		if text != "" {
			if t.Text != "" {
				t.Text += " "
			}
			t.Text += text
		}
		n := float64(t.Metadata.Chunks)
		t.Confidence = (t.Confidence*n + r.Confidence) / (n + 1)
		t.Metadata.Chunks++
		t.Duration += r.Duration
		t.WordCount = wordCount(t.Text)
		return true
	})
	if !ok {
		return
	}
	s.publish(context.Background(), Update{Type: UpdatePartial, CallID: r.CallID, Seq: r.Seq, Chunk: r.Text, Transcription: t})
}

// finish marks a streaming transcription completed. Later calls are no-ops.
func (s *Service) finish(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.store.Update(id, func(t *Transcription) bool {
		if t.Terminal() {
			return false
		}
		done := s.now().UTC()
		t.Status = StatusCompleted
		t.Metadata.CompletedAt = &done
		return true
	})
	for callID, activeID := range s.active {
		if activeID == id {
			delete(s.active, callID)
		}
	}
	if ok {
		s.publish(context.Background(), Update{Type: UpdateCompleted, CallID: t.Metadata.CallID, Transcription: t})
		s.log.Info("streaming transcription completed", "call_id", t.Metadata.CallID, "transcription_id", id, "chunks", t.Metadata.Chunks)
	}
}

func (s *Service) publish(ctx context.Context, u Update) {
	if s.bcast != nil {
		s.bcast.Broadcast(u.CallID, u)
	}
	s.events.Emit(ctx, u.CallID, "transcription", u)
}

func (s *Service) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInvalidArguments, err, "Invalid audioUrl: %v", err)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindProvider, err, "Failed to download audio: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, apperr.New(apperr.KindProvider, "Failed to download audio: HTTP %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes+1))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindProvider, err, "Failed to download audio: %v", err)
	}
	if len(data) > maxDownloadBytes {
		return nil, apperr.New(apperr.KindInvalidArguments, "Audio exceeds %d bytes", maxDownloadBytes)
	}
	return data, nil
}
