// Package summarize condenses call text into a styled summary with topics and sentiment.
package summarize

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"call-assistant/internal/apperr"
	"call-assistant/internal/llm"
)

type Style string

const (
	StyleBullet    Style = "bullet"
	StyleParagraph Style = "paragraph"
	StyleKeyPoints Style = "key_points"
)

const (
	SentimentPositive = "positive"
	SentimentNegative = "negative"
	SentimentNeutral  = "neutral"
)

const (
	DefaultMaxLength = 150
	DefaultLanguage  = "en-US"

	backendLLM      = "llm"
	backendFallback = "fallback"
)

type Request struct {
	Text      string
	MaxLength int
	Style     Style
	Language  string
	CallID    string
}

type Metadata struct {
	CallID   string `json:"callId,omitempty"`
	Style    string `json:"style"`
	Language string `json:"language"`
	Backend  string `json:"backend"`
}

// Summary is immutable once returned.
type Summary struct {
	Summary        string   `json:"summary"`
	OriginalLength int      `json:"originalLength"`
	SummaryLength  int      `json:"summaryLength"`
	KeyTopics      []string `json:"keyTopics"`
	Sentiment      string   `json:"sentiment"`
	Confidence     *float64 `json:"confidence,omitempty"`
	Metadata       Metadata `json:"metadata"`
}

// Service summarizes with an optional generative backend. Each stage falls back to local rules on
// its own when the backend fails.
type Service struct {
	backend llm.Completer
	log     *slog.Logger
}

// New accepts a nil backend, which selects the local implementation for every stage.
func New(backend llm.Completer, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{backend: backend, log: log.With("component", "summarize")}
}

func ParseStyle(s string) (Style, error) {
	switch Style(s) {
	case "":
		return StyleKeyPoints, nil
	case StyleBullet, StyleParagraph, StyleKeyPoints:
		return Style(s), nil
	}
	return "", apperr.New(apperr.KindInvalidArguments, "Unknown summary style: %s", s)
}

func (s *Service) Summarize(ctx context.Context, req Request) (Summary, error) {
	if strings.TrimSpace(req.Text) == "" {
		return Summary{}, apperr.New(apperr.KindEmptyInput, "Text to summarize must not be empty")
	}
	if req.MaxLength <= 0 {
		return Summary{}, apperr.New(apperr.KindInvalidLength, "maxLength must be greater than 0, got %d", req.MaxLength)
	}
	style, err := ParseStyle(string(req.Style))
	if err != nil {
		return Summary{}, err
	}
	if req.Language == "" {
		req.Language = DefaultLanguage
	}
	req.Style = style

	text, backend := s.summaryText(ctx, req)
	out := Summary{
		Summary:        text,
		OriginalLength: utf8.RuneCountInString(req.Text),
		SummaryLength:  utf8.RuneCountInString(text),
		KeyTopics:      s.topics(ctx, req.Text),
		Sentiment:      s.sentiment(ctx, req.Text),
		Metadata: Metadata{
			CallID:   req.CallID,
			Style:    string(style),
			Language: req.Language,
			Backend:  backend,
		},
	}
	return out, nil
}

func (s *Service) summaryText(ctx context.Context, req Request) (string, string) {
	if s.backend != nil {
		text, err := s.backend.Complete(ctx, llm.CompletionRequest{
			System:      instruction(req.Style, req.MaxLength, req.Language),
			User:        req.Text,
			MaxTokens:   2 * req.MaxLength,
			Temperature: 0.2,
		})
		if err == nil {
			return text, backendLLM
		}
		s.log.Warn("summary backend failed, using fallback", "err", err)
	}
	return FallbackSummary(req.Text, req.Style, req.MaxLength), backendFallback
}

func (s *Service) sentiment(ctx context.Context, text string) string {
	if s.backend != nil {
		out, err := s.backend.Complete(ctx, llm.CompletionRequest{
			System:      "Classify the overall sentiment of the text. Respond with exactly one word: positive, negative, or neutral.",
			User:        text,
			MaxTokens:   5,
			Temperature: 0,
		})
		if err == nil {
			if label, ok := parseSentiment(out); ok {
				return label
			}
			err = fmt.Errorf("unexpected sentiment label %q", out)
		}
		s.log.Warn("sentiment backend failed, using fallback", "err", err)
	}
	return FallbackSentiment(text)
}

func (s *Service) topics(ctx context.Context, text string) []string {
	if s.backend != nil {
		out, err := s.backend.Complete(ctx, llm.CompletionRequest{
			System:      "List up to 5 key topics discussed in the text as a comma-separated list of short lowercase phrases. Respond with the list only.",
			User:        text,
			MaxTokens:   60,
			Temperature: 0.2,
		})
		if err == nil {
			if topics := parseTopics(out); len(topics) > 0 {
				return topics
			}
			err = fmt.Errorf("no topics in %q", out)
		}
		s.log.Warn("topic backend failed, using fallback", "err", err)
	}
	return FallbackTopics(text)
}

func instruction(style Style, maxLength int, language string) string {
	var shape string
	switch style {
	case StyleBullet:
		shape = "as a bulleted list, one short point per line starting with \"- \""
	case StyleParagraph:
		shape = "as a single concise paragraph"
	default:
		shape = "as a numbered list of the key points, decisions and follow-ups"
	}
	return fmt.Sprintf("Summarize the following phone call text %s. Use at most %d words. Respond in %s.",
		shape, maxLength, language)
}

func parseSentiment(s string) (string, bool) {
	s = strings.ToLower(strings.Trim(strings.TrimSpace(s), ".!\"'"))
	switch s {
	case SentimentPositive, SentimentNegative, SentimentNeutral:
		return s, true
	}
	return "", false
}

func parseTopics(s string) []string {
	var out []string
	seen := map[string]bool{}
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == '\n' }) {
		t := strings.ToLower(strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(part), "-*•0123456789. ")))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
		if len(out) == 5 {
			break
		}
	}
	return out
}
