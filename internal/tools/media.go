package tools

import (
	"context"
	"encoding/json"

	"call-assistant/internal/mcp"
	"call-assistant/internal/summarize"
	"call-assistant/internal/transcription"
)

type transcribeArgs struct {
	CallID   string `json:"callId"`
	AudioURL string `json:"audioUrl"`
	Language string `json:"language"`
}

type transcribeResult struct {
	TranscriptionID string               `json:"transcriptionId"`
	Text            string               `json:"text"`
	Confidence      float64              `json:"confidence"`
	Language        string               `json:"language"`
	Duration        float64              `json:"duration"`
	WordCount       int                  `json:"wordCount"`
	Status          transcription.Status `json:"status"`
}

func (ts *toolset) transcribeTool() mcp.Tool {
	return mcp.Tool{
		Name:        "transcribe",
		Description: "Transcribe a call's latest recording or an audio URL; starts live transcription when the call has no recording yet",
		InputSchema: mcp.Object(nil, map[string]mcp.Property{
			"callId":   {Type: mcp.TypeString, Description: "Call whose audio to transcribe"},
			"audioUrl": {Type: mcp.TypeString, Description: "Direct URL of a WAV file"},
			"language": {Type: mcp.TypeString, Default: defaultLanguage},
		}),
		Handler: ts.transcribe,
	}
}

func (ts *toolset) transcribe(ctx context.Context, raw json.RawMessage) (any, error) {
	args, err := decode[transcribeArgs](raw)
	if err != nil {
		return nil, err
	}
	t, err := ts.Transcriber.Transcribe(ctx, transcription.Request{CallID: args.CallID, AudioURL: args.AudioURL, Language: args.Language})
	if err != nil {
		return nil, err
	}
	return transcribeResult{
		TranscriptionID: t.ID,
		Text:            t.Text,
		Confidence:      t.Confidence,
		Language:        t.Language,
		Duration:        t.Duration,
		WordCount:       t.WordCount,
		Status:          t.Status,
	}, nil
}

type transcriptionStatusArgs struct {
	TranscriptionID string `json:"transcriptionId"`
}

func (ts *toolset) transcriptionStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "transcription-status",
		Description: "Get a transcription by id, including live transcriptions still in progress",
		InputSchema: mcp.Object([]string{"transcriptionId"}, map[string]mcp.Property{
			"transcriptionId": {Type: mcp.TypeString},
		}),
		Handler: ts.transcriptionStatus,
	}
}

func (ts *toolset) transcriptionStatus(_ context.Context, raw json.RawMessage) (any, error) {
	args, err := decode[transcriptionStatusArgs](raw)
	if err != nil {
		return nil, err
	}
	return ts.Transcriber.Get(args.TranscriptionID)
}

type summarizeArgs struct {
	Text      string `json:"text"`
	MaxLength int    `json:"maxLength"`
	Style     string `json:"style"`
	Language  string `json:"language"`
	CallID    string `json:"callId"`
}

type summarizeResult struct {
	Summary        string   `json:"summary"`
	OriginalLength int      `json:"originalLength"`
	SummaryLength  int      `json:"summaryLength"`
	KeyTopics      []string `json:"keyTopics"`
	Sentiment      string   `json:"sentiment"`
}

func (ts *toolset) summarizeTool() mcp.Tool {
	return mcp.Tool{
		Name:        "summarize",
		Description: "Summarize text with key topics and sentiment",
		InputSchema: mcp.Object([]string{"text"}, map[string]mcp.Property{
			"text":      {Type: mcp.TypeString},
			"maxLength": {Type: mcp.TypeInteger, Description: "Maximum summary length in words", Default: summarize.DefaultMaxLength},
			"style": {
				Type:    mcp.TypeString,
				Enum:    []string{string(summarize.StyleBullet), string(summarize.StyleParagraph), string(summarize.StyleKeyPoints)},
				Default: string(summarize.StyleKeyPoints),
			},
			"language": {Type: mcp.TypeString, Default: summarize.DefaultLanguage},
			"callId":   {Type: mcp.TypeString, Description: "Call the text belongs to"},
		}),
		Handler: ts.summarize,
	}
}

func (ts *toolset) summarize(ctx context.Context, raw json.RawMessage) (any, error) {
	args, err := decode[summarizeArgs](raw)
	if err != nil {
		return nil, err
	}
	s, err := ts.Summarizer.Summarize(ctx, summarize.Request{
		Text:      args.Text,
		MaxLength: args.MaxLength,
		Style:     summarize.Style(args.Style),
		Language:  args.Language,
		CallID:    args.CallID,
	})
	if err != nil {
		return nil, err
	}
	if args.CallID != "" {
		ts.Events.Emit(ctx, args.CallID, "summary", s)
	}
	return summarizeResult{
		Summary:        s.Summary,
		OriginalLength: s.OriginalLength,
		SummaryLength:  s.SummaryLength,
		KeyTopics:      s.KeyTopics,
		Sentiment:      s.Sentiment,
	}, nil
}
