package summarize

import (
	"context"
	"errors"
	"strings"
	"testing"

	"call-assistant/internal/apperr"
	"call-assistant/internal/llm"
	"call-assistant/pkg/logger"
)

type scriptedBackend struct {
	replies map[string]string
	fail    map[string]error
	reqs    []llm.CompletionRequest
}

func stage(req llm.CompletionRequest) string {
	switch {
	case strings.Contains(req.System, "sentiment"):
		return "sentiment"
	case strings.Contains(req.System, "topics"):
		return "topics"
	}
	return "summary"
}

func (b *scriptedBackend) Complete(_ context.Context, req llm.CompletionRequest) (string, error) {
	b.reqs = append(b.reqs, req)
	st := stage(req)
	if err := b.fail[st]; err != nil {
		return "", err
	}
	return b.replies[st], nil
}

func TestSummarizeRejectsEmptyText(t *testing.T) {
	s := New(nil, logger.Discard())
	_, err := s.Summarize(context.Background(), Request{Text: "   ", MaxLength: 10})
	if !errors.Is(err, apperr.ErrEmptyInput) {
		t.Fatalf("expected EmptyInput, got %v", err)
	}
}

func TestSummarizeRejectsNonPositiveLength(t *testing.T) {
	s := New(nil, logger.Discard())
	for _, n := range []int{0, -5} {
		_, err := s.Summarize(context.Background(), Request{Text: "hello", MaxLength: n})
		if !errors.Is(err, apperr.ErrInvalidLength) {
			t.Fatalf("maxLength %d: expected InvalidLength, got %v", n, err)
		}
	}
}

func TestSummarizeRejectsUnknownStyle(t *testing.T) {
	s := New(nil, logger.Discard())
	_, err := s.Summarize(context.Background(), Request{Text: "hello", MaxLength: 10, Style: "haiku"})
	if !errors.Is(err, apperr.ErrInvalidArguments) {
		t.Fatalf("expected InvalidArguments, got %v", err)
	}
}

func TestFallbackSummaryShapesAndLengths(t *testing.T) {
	s := New(nil, logger.Discard())
	text := "The customer called about a billing problem. The refund was approved! Thanks for the great support."
	out, err := s.Summarize(context.Background(), Request{Text: text, MaxLength: 150, CallID: "CA1"})
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	want := "1. The customer called about a billing problem.\n2. The refund was approved!\n3. Thanks for the great support."
	if out.Summary != want {
		t.Fatalf("unexpected summary:\n%s", out.Summary)
	}
	if out.OriginalLength != len(text) || out.SummaryLength != len(want) {
		t.Fatalf("unexpected lengths %d/%d", out.OriginalLength, out.SummaryLength)
	}
	if strings.Join(out.KeyTopics, ",") != "billing,refund,support" {
		t.Fatalf("unexpected topics %v", out.KeyTopics)
	}
	if out.Sentiment != SentimentPositive {
		t.Fatalf("expected positive sentiment, got %s", out.Sentiment)
	}
	if out.Metadata.Backend != "fallback" || out.Metadata.Style != "key_points" || out.Metadata.Language != "en-US" || out.Metadata.CallID != "CA1" {
		t.Fatalf("unexpected metadata %+v", out.Metadata)
	}
}

func TestFallbackSummaryTruncatesToWordLimit(t *testing.T) {
	got := FallbackSummary("One two three. Four five six.", StyleBullet, 4)
	if got != "• One two three.\n• Four..." {
		t.Fatalf("unexpected bullet truncation %q", got)
	}
	got = FallbackSummary("One two three. Four five six.", StyleParagraph, 3)
	if got != "One two three...." {
		t.Fatalf("unexpected paragraph truncation %q", got)
	}
	got = FallbackSummary("One two three.", StyleKeyPoints, 3)
	if got != "1. One two three." {
		t.Fatalf("exact fit must not be marked truncated, got %q", got)
	}
}

func TestFallbackSentimentDominanceRule(t *testing.T) {
	cases := []struct {
		text string
		want string
	}{
		{"great service, thanks", SentimentPositive},
		{"terrible delay and a broken phone", SentimentNegative},
		{"great but a problem", SentimentNeutral},
		{"good good good bad bad", SentimentNeutral},
		{"good good good bad", SentimentPositive},
		{"nothing notable here", SentimentNeutral},
	}
	for _, c := range cases {
		if got := FallbackSentiment(c.text); got != c.want {
			t.Fatalf("%q: got %s want %s", c.text, got, c.want)
		}
	}
}

func TestBackendStagesUsedWhenHealthy(t *testing.T) {
	b := &scriptedBackend{replies: map[string]string{
		"summary":   "Customer got a refund.",
		"sentiment": "Negative.",
		"topics":    "refunds, - billing disputes\n3. refunds",
	}}
	s := New(b, logger.Discard())
	out, err := s.Summarize(context.Background(), Request{Text: "long call text", MaxLength: 40, Style: StyleParagraph})
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if out.Summary != "Customer got a refund." || out.Metadata.Backend != "llm" {
		t.Fatalf("unexpected summary %+v", out)
	}
	if out.Sentiment != SentimentNegative {
		t.Fatalf("unexpected sentiment %s", out.Sentiment)
	}
	if strings.Join(out.KeyTopics, "|") != "refunds|billing disputes" {
		t.Fatalf("unexpected topics %v", out.KeyTopics)
	}
	first := b.reqs[0]
	if first.MaxTokens != 80 || first.Temperature != 0.2 || !strings.Contains(first.System, "single concise paragraph") {
		t.Fatalf("unexpected summary request %+v", first)
	}
}

func TestEachStageFallsBackIndependently(t *testing.T) {
	b := &scriptedBackend{
		replies: map[string]string{"summary": "Model summary.", "topics": "shipping"},
		fail:    map[string]error{"sentiment": errors.New("rate limited")},
	}
	s := New(b, logger.Discard())
	out, err := s.Summarize(context.Background(), Request{Text: "The delivery was great, thanks.", MaxLength: 20})
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if out.Summary != "Model summary." {
		t.Fatalf("summary stage should use backend, got %q", out.Summary)
	}
	if out.Sentiment != SentimentPositive {
		t.Fatalf("sentiment should fall back to word lists, got %s", out.Sentiment)
	}
	if len(out.KeyTopics) != 1 || out.KeyTopics[0] != "shipping" {
		t.Fatalf("topics should use backend, got %v", out.KeyTopics)
	}

	b.fail = map[string]error{"summary": errors.New("down")}
	b.replies["sentiment"] = "maybe"
	out, err = s.Summarize(context.Background(), Request{Text: "The delivery was great, thanks.", MaxLength: 20})
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if out.Metadata.Backend != "fallback" || out.Summary != "1. The delivery was great, thanks." {
		t.Fatalf("summary stage should fall back, got %+v", out)
	}
	if out.Sentiment != SentimentPositive {
		t.Fatalf("unparseable sentiment should fall back, got %s", out.Sentiment)
	}
}
