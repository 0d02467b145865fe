package transcription

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"call-assistant/internal/audio"
	"call-assistant/internal/llm"
)

// Audio is one complete file handed to a backend.
type Audio struct {
	Data     []byte
	Filename string
	Language string
}

type Result struct {
	Text       string
	Confidence float64
	Duration   float64
}

// Backend converts speech to text.
type Backend interface {
	Name() string
	Transcribe(ctx context.Context, a Audio) (Result, error)
}

// whisperConfidence is reported for OpenAI results, which carry no score of their own.
const whisperConfidence = 0.9

// OpenAITranscriber delegates to the speech-to-text endpoint.
type OpenAITranscriber struct {
	stt llm.SpeechToText
}

func NewOpenAITranscriber(stt llm.SpeechToText) *OpenAITranscriber {
	return &OpenAITranscriber{stt: stt}
}

func (o *OpenAITranscriber) Name() string { return "openai" }

func (o *OpenAITranscriber) Transcribe(ctx context.Context, a Audio) (Result, error) {
	text, err := o.stt.Transcribe(ctx, llm.TranscriptionRequest{
		Filename: a.Filename,
		Audio:    bytes.NewReader(a.Data),
		Language: a.Language,
	})
	if err != nil {
		return Result{}, err
	}
	d, _ := audio.WAVDuration(a.Data)
	return Result{Text: text, Confidence: whisperConfidence, Duration: d}, nil
}

// SimulatedTranscriber produces deterministic text from the audio length. Used when no backend key
// is configured.
type SimulatedTranscriber struct{}

func (SimulatedTranscriber) Name() string { return "simulated" }

func (SimulatedTranscriber) Transcribe(_ context.Context, a Audio) (Result, error) {
	d, ok := audio.WAVDuration(a.Data)
	if !ok {
		d = audio.DefaultFormat.Duration(len(a.Data))
	}
	lang := a.Language
	if lang == "" {
		lang = "en-US"
	}
	return Result{
		Text:       fmt.Sprintf("[simulated %s transcript of %.1f seconds of audio]", lang, d),
		Confidence: 0.85,
		Duration:   d,
	}, nil
}

// ChunkTranscriber adapts a Backend to the audio accumulator.
type ChunkTranscriber struct {
	Backend Backend
}

func (c ChunkTranscriber) TranscribeChunk(ctx context.Context, chunk audio.Chunk) (audio.Result, error) {
	data, err := os.ReadFile(chunk.Path)
	if err != nil {
		return audio.Result{}, fmt.Errorf("transcription: read chunk: %w", err)
	}
	res, err := c.Backend.Transcribe(ctx, Audio{Data: data, Filename: filepath.Base(chunk.Path), Language: chunk.Language})
	if err != nil {
		return audio.Result{}, err
	}
	return audio.Result{
		Text:       res.Text,
		Confidence: res.Confidence,
		Duration:   chunk.Duration,
	}, nil
}
