package audio

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"call-assistant/internal/stream"
	"call-assistant/pkg/logger"
)

type fakeRouter struct {
	mu       sync.Mutex
	handlers map[string]stream.StreamHandler
}

func newFakeRouter() *fakeRouter {
	return &fakeRouter{handlers: make(map[string]stream.StreamHandler)}
}

func (r *fakeRouter) RegisterStreamHandler(id string, h stream.StreamHandler) {
	r.mu.Lock()
	r.handlers[id] = h
	r.mu.Unlock()
}

func (r *fakeRouter) UnregisterStreamHandler(id string) {
	r.mu.Lock()
	delete(r.handlers, id)
	r.mu.Unlock()
}

func (r *fakeRouter) deliver(f stream.StreamFrame) bool {
	r.mu.Lock()
	h, ok := r.handlers[f.StreamSid]
	r.mu.Unlock()
	if ok {
		h(f)
	}
	return ok
}

type recordingTranscriber struct {
	mu     sync.Mutex
	chunks []Chunk
	sizes  []int
	err    error
}

func (t *recordingTranscriber) TranscribeChunk(_ context.Context, c Chunk) (Result, error) {
	data, err := os.ReadFile(c.Path)
	if err != nil {
		return Result{}, err
	}
	t.mu.Lock()
	t.chunks = append(t.chunks, c)
	t.sizes = append(t.sizes, len(data))
	fail := t.err
	t.mu.Unlock()
	if fail != nil {
		return Result{}, fail
	}
	return Result{Text: "chunk", Confidence: 0.9}, nil
}

func (t *recordingTranscriber) calls() []Chunk {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Chunk(nil), t.chunks...)
}

func bufferedBytes(s *Stream) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buffered
}

func isStopped(s *Stream) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met in time")
}

func mediaFrame(callID, conn string, n int) stream.StreamFrame {
	return stream.StreamFrame{
		Type:      stream.FrameMedia,
		StreamSid: callID,
		Payload:   base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{1}, n)),
		ConnID:    conn,
	}
}

func newTestAccumulator(t *testing.T) (*Accumulator, *fakeRouter, *recordingTranscriber) {
	router := newFakeRouter()
	tr := &recordingTranscriber{}
	acc := NewAccumulator(router, tr, Options{ScratchDir: t.TempDir()}, logger.Discard())
	return acc, router, tr
}

func TestChunkThresholdTriggersSinglePass(t *testing.T) {
	acc, router, tr := newTestAccumulator(t)
	s, err := acc.Process("CA1", "en-US")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	var results []Result
	var mu sync.Mutex
	s.OnTranscription(func(r Result) {
		mu.Lock()
		results = append(results, r)
		mu.Unlock()
	})

	for i := 0; i < 100; i++ {
		router.deliver(mediaFrame("CA1", "c1", 320))
	}
	if got := bufferedBytes(s); got != 0 {
		t.Fatalf("expected buffer cleared at threshold, got %d", got)
	}
	for i := 0; i < 50; i++ {
		router.deliver(mediaFrame("CA1", "c1", 320))
	}

	waitFor(t, func() bool { return len(tr.calls()) == 1 })
	time.Sleep(20 * time.Millisecond)
	calls := tr.calls()
	if len(calls) != 1 {
		t.Fatalf("expected exactly one pass, got %d", len(calls))
	}
	if calls[0].Duration != 2.0 || calls[0].Final {
		t.Fatalf("unexpected chunk %+v", calls[0])
	}
	if tr.sizes[0] != 44+32000 {
		t.Fatalf("expected wav of %d bytes, got %d", 44+32000, tr.sizes[0])
	}
	if got := bufferedBytes(s); got != 16000 {
		t.Fatalf("expected 16000 bytes remaining, got %d", got)
	}

	s.Stop()
	calls = tr.calls()
	if len(calls) != 2 || !calls[1].Final || calls[1].Duration != 1.0 {
		t.Fatalf("expected final flush of remainder, got %+v", calls)
	}
	if _, err := os.Stat(calls[1].Path); !os.IsNotExist(err) {
		t.Fatalf("expected scratch file removed")
	}
	mu.Lock()
	defer mu.Unlock()
	if len(results) != 2 || results[0].CallID != "CA1" || results[0].Seq != 1 || results[1].Seq != 2 {
		t.Fatalf("unexpected results %+v", results)
	}
	if results[0].Language != "en-US" {
		t.Fatalf("expected stream language on result, got %q", results[0].Language)
	}
}

func TestStopWithEmptyBufferSkipsTranscription(t *testing.T) {
	acc, router, tr := newTestAccumulator(t)
	s, err := acc.Process("CA2", "")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	s.Stop()
	s.Stop()

	if len(tr.calls()) != 0 {
		t.Fatalf("expected no transcription for empty stream")
	}
	if router.deliver(mediaFrame("CA2", "c1", 320)) {
		t.Fatalf("expected handler unregistered after stop")
	}
	if _, ok := acc.Get("CA2"); ok {
		t.Fatalf("expected stream removed")
	}
}

func TestStopFrameFlushesRemainder(t *testing.T) {
	acc, router, tr := newTestAccumulator(t)
	s, _ := acc.Process("CA3", "")
	router.deliver(mediaFrame("CA3", "c1", 320))
	router.deliver(stream.StreamFrame{Type: stream.FrameStop, StreamSid: "CA3", ConnID: "c1"})

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("worker did not finish")
	}
	calls := tr.calls()
	if len(calls) != 1 || !calls[0].Final {
		t.Fatalf("expected one final pass, got %+v", calls)
	}
}

func TestFeederSocketCloseStopsStream(t *testing.T) {
	acc, router, tr := newTestAccumulator(t)
	s, _ := acc.Process("CA4", "")
	router.deliver(mediaFrame("CA4", "feeder", 640))

	router.deliver(stream.StreamFrame{Type: stream.FrameError, StreamSid: "CA4", Reason: "Connection closed", ConnID: "observer"})
	if isStopped(s) {
		t.Fatalf("closing an unrelated socket must not stop the stream")
	}

	router.deliver(stream.StreamFrame{Type: stream.FrameError, StreamSid: "CA4", Reason: "Connection closed", ConnID: "feeder"})
	<-s.Done()
	if !isStopped(s) {
		t.Fatalf("expected stream stopped after feeder closed")
	}
	if len(tr.calls()) != 1 {
		t.Fatalf("expected remainder flushed, got %d passes", len(tr.calls()))
	}
}

func TestProcessRejectsDuplicateStream(t *testing.T) {
	acc, _, _ := newTestAccumulator(t)
	s, err := acc.Process("CA5", "")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	defer s.Stop()
	if _, err := acc.Process("CA5", ""); !errors.Is(err, ErrStreamActive) {
		t.Fatalf("expected ErrStreamActive, got %v", err)
	}
	if got, ok := acc.Get("CA5"); !ok || got != s {
		t.Fatalf("expected live stream lookup")
	}
}

func TestTranscriberFailureIsNotFatal(t *testing.T) {
	acc, router, tr := newTestAccumulator(t)
	tr.err = errors.New("backend down")
	s, _ := acc.Process("CA6", "")
	for i := 0; i < 100; i++ {
		router.deliver(mediaFrame("CA6", "c1", 320))
	}
	waitFor(t, func() bool { return len(tr.calls()) == 1 })
	router.deliver(mediaFrame("CA6", "c1", 320))
	if bufferedBytes(s) != 320 {
		t.Fatalf("expected stream to keep accepting audio")
	}
	s.Stop()
}

func TestInvalidPayloadIgnored(t *testing.T) {
	acc, router, _ := newTestAccumulator(t)
	s, _ := acc.Process("CA7", "")
	defer s.Stop()
	router.deliver(stream.StreamFrame{Type: stream.FrameMedia, StreamSid: "CA7", Payload: "not base64!"})
	if bufferedBytes(s) != 0 {
		t.Fatalf("expected invalid payload dropped")
	}
}

func TestCloseWithoutFeederKeepsStream(t *testing.T) {
	acc, router, _ := newTestAccumulator(t)
	s, _ := acc.Process("CA8", "")
	defer s.Stop()

	router.deliver(stream.StreamFrame{Type: stream.FrameError, StreamSid: "CA8", Reason: "Connection closed", ConnID: "observer"})
	if isStopped(s) {
		t.Fatalf("a close from a socket that never fed the stream must not stop it")
	}
	if _, ok := acc.Get("CA8"); !ok {
		t.Fatalf("expected stream still live")
	}
}

func TestIdleStreamStops(t *testing.T) {
	router := newFakeRouter()
	tr := &recordingTranscriber{}
	acc := NewAccumulator(router, tr, Options{ScratchDir: t.TempDir(), IdleTimeout: 50 * time.Millisecond}, logger.Discard())
	s, err := acc.Process("CA9", "")
	if err != nil {
		t.Fatalf("process: %v", err)
	}

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("idle stream was not stopped")
	}
	if _, ok := acc.Get("CA9"); ok {
		t.Fatalf("expected idle stream removed")
	}
	if router.deliver(mediaFrame("CA9", "c1", 320)) {
		t.Fatalf("expected handler unregistered after idle stop")
	}
	if len(tr.calls()) != 0 {
		t.Fatalf("expected no transcription for an unfed stream")
	}
}
