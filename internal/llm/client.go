// Package llm wraps the OpenAI-compatible backend used for summaries and speech-to-text.
package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"call-assistant/internal/config"
)

var ErrEmptyCompletion = errors.New("llm: empty completion")

// Completer produces text from a system instruction and user content.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// SpeechToText transcribes one audio file.
type SpeechToText interface {
	Transcribe(ctx context.Context, req TranscriptionRequest) (string, error)
}

type CompletionRequest struct {
	System      string
	User        string
	MaxTokens   int
	Temperature float64
}

type TranscriptionRequest struct {
	Filename string
	Audio    io.Reader
	Language string
}

// Client talks to the chat completion and audio transcription endpoints.
type Client struct {
	api                openai.Client
	model              string
	transcriptionModel string
}

// New returns nil when no API key is configured; callers treat that as "use the local fallback".
func New(cfg config.LLMConfig) *Client {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(1),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	return &Client{
		api:                openai.NewClient(opts...),
		model:              cfg.Model,
		transcriptionModel: cfg.TranscriptionModel,
	}
}

func (c *Client) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.System),
			openai.UserMessage(req.User),
		},
		Temperature: openai.Float(req.Temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	resp, err := c.api.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("llm: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", ErrEmptyCompletion
	}
	return text, nil
}

func (c *Client) Transcribe(ctx context.Context, req TranscriptionRequest) (string, error) {
	name := req.Filename
	if name == "" {
		name = "audio.wav"
	}
	params := openai.AudioTranscriptionNewParams{
		File:  openai.File(req.Audio, name, "audio/wav"),
		Model: openai.AudioModel(c.transcriptionModel),
	}
	if lang := ISO639(req.Language); lang != "" {
		params.Language = openai.String(lang)
	}
	resp, err := c.api.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("llm: transcription: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}

// ISO639 reduces a BCP 47 tag like "en-US" to its language subtag.
func ISO639(tag string) string {
	tag = strings.TrimSpace(tag)
	if i := strings.IndexAny(tag, "-_"); i >= 0 {
		tag = tag[:i]
	}
	return strings.ToLower(tag)
}
