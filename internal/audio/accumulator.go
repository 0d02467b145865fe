// Package audio buffers live call audio from media-stream sockets and hands fixed-length chunks to a
// transcriber in arrival order.
package audio

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"call-assistant/internal/stream"
)

const (
	// DefaultChunkSeconds is the buffered duration that triggers a transcription pass.
	DefaultChunkSeconds = 2.0
	DefaultIdleTimeout  = 2 * time.Minute
)

var ErrStreamActive = errors.New("audio: stream already active for call")

// Router is the part of the stream registry the accumulator needs.
type Router interface {
	RegisterStreamHandler(streamID string, h stream.StreamHandler)
	UnregisterStreamHandler(streamID string)
}

// Chunk is one unit of audio ready for transcription, already written to a WAV file.
type Chunk struct {
	CallID   string
	Language string
	Seq      int
	Path     string
	Duration float64
	Final    bool
	Format   Format
}

// Result is what a transcriber produced for one chunk.
type Result struct {
	CallID     string  `json:"callId"`
	Seq        int     `json:"seq"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Language   string  `json:"language,omitempty"`
	Duration   float64 `json:"duration"`
	Final      bool    `json:"final"`
	ArchiveURL string  `json:"archiveUrl,omitempty"`
}

type Transcriber interface {
	TranscribeChunk(ctx context.Context, c Chunk) (Result, error)
}

type Options struct {
	Format       Format
	ChunkSeconds float64
	ScratchDir   string
	// IdleTimeout stops a stream that has received no frames for this long.
	IdleTimeout time.Duration
	// Archiver is optional. Archive failures are logged and do not stop transcription.
	Archiver Archiver
}

func (o Options) withDefaults() Options {
	if o.Format.BytesPerSecond() <= 0 {
		o.Format = DefaultFormat
	}
	if o.ChunkSeconds <= 0 {
		o.ChunkSeconds = DefaultChunkSeconds
	}
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = DefaultIdleTimeout
	}
	return o
}

// Accumulator owns the live streams, one per call.
type Accumulator struct {
	router Router
	tr     Transcriber
	opts   Options
	log    *slog.Logger

	mu      sync.Mutex
	streams map[string]*Stream
}

func NewAccumulator(router Router, tr Transcriber, opts Options, log *slog.Logger) *Accumulator {
	if log == nil {
		log = slog.Default()
	}
	return &Accumulator{
		router:  router,
		tr:      tr,
		opts:    opts.withDefaults(),
		log:     log.With("component", "audio"),
		streams: make(map[string]*Stream),
	}
}

// Process registers a stream handler for callID and starts its transcription worker.
func (a *Accumulator) Process(callID, language string) (*Stream, error) {
	if callID == "" {
		return nil, fmt.Errorf("audio: empty call id")
	}
	a.mu.Lock()
	if _, ok := a.streams[callID]; ok {
		a.mu.Unlock()
		return nil, ErrStreamActive
	}
	s := &Stream{
		CallID:   callID,
		Language: language,
		acc:      a,
		log:      a.log.With("call_id", callID),
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	// halt reads idle under s.mu, so an early expiry waits for the assignment.
	s.mu.Lock()
	s.idle = time.AfterFunc(a.opts.IdleTimeout, s.expire)
	s.mu.Unlock()
	a.streams[callID] = s
	a.mu.Unlock()

	a.router.RegisterStreamHandler(callID, s.handle)
	go s.run()
	s.log.Info("audio stream started", "language", language)
	return s, nil
}

// Get returns the live stream for callID.
func (a *Accumulator) Get(callID string) (*Stream, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.streams[callID]
	return s, ok
}

// StopAll stops every live stream and waits for their workers.
func (a *Accumulator) StopAll() {
	a.mu.Lock()
	all := make([]*Stream, 0, len(a.streams))
	for _, s := range a.streams {
		all = append(all, s)
	}
	a.mu.Unlock()
	for _, s := range all {
		s.Stop()
	}
}

func (a *Accumulator) remove(s *Stream) {
	a.mu.Lock()
	if a.streams[s.CallID] == s {
		delete(a.streams, s.CallID)
	}
	a.mu.Unlock()
}

type unit struct {
	pcm   []byte
	seq   int
	final bool
}

// Stream accumulates PCM for one call.
type Stream struct {
	CallID   string
	Language string

	acc  *Accumulator
	log  *slog.Logger
	idle *time.Timer

	mu        sync.Mutex
	chunks    [][]byte
	buffered  int
	seq       int
	feeder    string
	stopped   bool
	callbacks []func(Result)

	// queue of units waiting for the worker, in arrival order
	pending []unit
	closed  bool
	wake    chan struct{}
	done    chan struct{}
}

// OnTranscription registers cb for every chunk result, including the final flush.
func (s *Stream) OnTranscription(cb func(Result)) {
	s.mu.Lock()
	s.callbacks = append(s.callbacks, cb)
	s.mu.Unlock()
}

// Stop flushes any remainder and waits for pending chunks to be transcribed. Safe to call repeatedly.
func (s *Stream) Stop() {
	s.halt()
	<-s.done
}

// Done is closed once the worker has drained every chunk.
func (s *Stream) Done() <-chan struct{} { return s.done }

func (s *Stream) handle(f stream.StreamFrame) {
	if f.Type != stream.FrameError {
		s.idle.Reset(s.acc.opts.IdleTimeout)
	}
	switch f.Type {
	case stream.FrameStart:
		s.bindFeeder(f.ConnID)
		s.log.Debug("media stream start", "conn_id", f.ConnID)
	case stream.FrameMedia:
		s.media(f)
	case stream.FrameMark:
		s.log.Debug("media mark", "name", f.Name)
	case stream.FrameStop:
		s.log.Info("media stream stop received", "conn_id", f.ConnID)
		s.halt()
	case stream.FrameError:
		// Only the feeding socket ends the stream; unfed streams end on the idle timer.
		s.mu.Lock()
		feeder := s.feeder
		s.mu.Unlock()
		if feeder == "" || feeder != f.ConnID {
			return
		}
		s.log.Info("feeding socket closed", "conn_id", f.ConnID, "reason", f.Reason)
		s.halt()
	}
}

func (s *Stream) bindFeeder(connID string) {
	if connID == "" {
		return
	}
	s.mu.Lock()
	if s.feeder == "" {
		s.feeder = connID
	}
	s.mu.Unlock()
}

func (s *Stream) media(f stream.StreamFrame) {
	pcm, err := base64.StdEncoding.DecodeString(f.Payload)
	if err != nil {
		s.log.Warn("invalid media payload", "err", err)
		return
	}
	if len(pcm) == 0 {
		return
	}
	threshold := s.acc.opts.ChunkSeconds

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	if s.feeder == "" {
		s.feeder = f.ConnID
	}
	s.chunks = append(s.chunks, pcm)
	s.buffered += len(pcm)
	var u *unit
	if s.acc.opts.Format.Duration(s.buffered) >= threshold {
		u = &unit{pcm: s.takeLocked(), seq: s.nextSeqLocked()}
	}
	s.mu.Unlock()

	if u != nil {
		s.enqueue(*u)
	}
}

func (s *Stream) takeLocked() []byte {
	out := make([]byte, 0, s.buffered)
	for _, c := range s.chunks {
		out = append(out, c...)
	}
	s.chunks = nil
	s.buffered = 0
	return out
}

func (s *Stream) nextSeqLocked() int {
	s.seq++
	return s.seq
}

func (s *Stream) halt() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.idle.Stop()
	var rest *unit
	if s.buffered > 0 {
		rest = &unit{pcm: s.takeLocked(), seq: s.nextSeqLocked(), final: true}
	}
	s.mu.Unlock()

	s.acc.router.UnregisterStreamHandler(s.CallID)
	s.acc.remove(s)
	if rest != nil {
		s.enqueue(*rest)
	}

	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.signal()
	s.log.Info("audio stream stopped")
}

func (s *Stream) expire() {
	s.log.Info("audio stream idle, stopping", "idle_timeout", s.acc.opts.IdleTimeout)
	s.halt()
}

func (s *Stream) enqueue(u unit) {
	s.mu.Lock()
	s.pending = append(s.pending, u)
	s.mu.Unlock()
	s.signal()
}

func (s *Stream) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// next blocks until units are queued or the stream is closed and drained.
func (s *Stream) next() ([]unit, bool) {
	for {
		s.mu.Lock()
		if len(s.pending) > 0 {
			units := s.pending
			s.pending = nil
			s.mu.Unlock()
			return units, true
		}
		if s.closed {
			s.mu.Unlock()
			return nil, false
		}
		s.mu.Unlock()
		<-s.wake
	}
}

func (s *Stream) run() {
	defer close(s.done)
	for {
		units, ok := s.next()
		if !ok {
			return
		}
		for _, u := range units {
			s.transcribe(u)
		}
	}
}

func (s *Stream) transcribe(u unit) {
	ctx := context.Background()
	opts := s.acc.opts

	path, err := writeScratch(opts.ScratchDir, s.CallID, u.seq, opts.Format, u.pcm)
	if err != nil {
		s.log.Error("chunk scratch write failed", "seq", u.seq, "err", err)
		return
	}
	defer removeScratch(path)

	var archiveURL string
	if opts.Archiver != nil {
		key := fmt.Sprintf("%s/%04d.wav", sanitize(s.CallID), u.seq)
		if archiveURL, err = opts.Archiver.Archive(ctx, key, path); err != nil {
			s.log.Warn("chunk archive failed", "seq", u.seq, "err", err)
		}
	}

	chunk := Chunk{
		CallID:   s.CallID,
		Language: s.Language,
		Seq:      u.seq,
		Path:     path,
		Duration: opts.Format.Duration(len(u.pcm)),
		Final:    u.final,
		Format:   opts.Format,
	}
	res, err := s.acc.tr.TranscribeChunk(ctx, chunk)
	if err != nil {
		s.log.Warn("chunk transcription failed", "seq", u.seq, "err", err)
		return
	}
	res.CallID = s.CallID
	res.Seq = u.seq
	res.Final = u.final
	if res.Duration == 0 {
		res.Duration = chunk.Duration
	}
	if res.Language == "" {
		res.Language = s.Language
	}
	res.ArchiveURL = archiveURL

	s.mu.Lock()
	cbs := append([]func(Result){}, s.callbacks...)
	s.mu.Unlock()
	for _, cb := range cbs {
		cb(res)
	}
}
