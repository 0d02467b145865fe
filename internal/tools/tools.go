// Package tools binds the telephony, transcription, summarization and token services to MCP tools.
package tools

import (
	"context"
	"encoding/json"
	"log/slog"

	"call-assistant/internal/apperr"
	"call-assistant/internal/auth"
	"call-assistant/internal/calls"
	"call-assistant/internal/events"
	"call-assistant/internal/mcp"
	"call-assistant/internal/summarize"
	"call-assistant/internal/telephony"
	"call-assistant/internal/transcription"
)

type Transcriber interface {
	Transcribe(ctx context.Context, req transcription.Request) (transcription.Transcription, error)
	Get(id string) (transcription.Transcription, error)
}

type Summarizer interface {
	Summarize(ctx context.Context, req summarize.Request) (summarize.Summary, error)
}

type TokenValidator interface {
	Validate(ctx context.Context, token string) (auth.Identity, error)
}

// Deps are the services behind the tools. Calls and Events are optional.
type Deps struct {
	Provider    telephony.Provider
	Calls       calls.Repository
	Transcriber Transcriber
	Summarizer  Summarizer
	Validator   TokenValidator
	Events      *events.Emitter
	Log         *slog.Logger
}

type toolset struct {
	Deps
	log *slog.Logger
}

// Register adds every tool to d in listing order.
func Register(d *mcp.Dispatcher, deps Deps) error {
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}
	ts := &toolset{Deps: deps, log: log.With("component", "tools")}
	for _, t := range []mcp.Tool{
		ts.callTool(),
		ts.callStatusTool(),
		ts.listCallsTool(),
		ts.cancelCallTool(),
		ts.transcribeTool(),
		ts.transcriptionStatusTool(),
		ts.summarizeTool(),
		ts.recordTool(),
		ts.validateTool(),
	} {
		if err := d.Register(t); err != nil {
			return err
		}
	}
	return nil
}

func decode[T any](raw json.RawMessage) (T, error) {
	var v T
	if len(raw) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, apperr.Wrap(apperr.KindInvalidArguments, err, "Invalid arguments: %v", err)
	}
	return v, nil
}

// remember caches an observed call snapshot. Cache failures never fail the tool.
func (ts *toolset) remember(ctx context.Context, c calls.Call) {
	if ts.Calls == nil || c.ID == "" {
		return
	}
	if _, err := ts.Calls.Upsert(ctx, c); err != nil {
		ts.log.Warn("call cache update failed", "call_id", c.ID, "err", err)
	}
}
