package tools

import (
	"context"
	"encoding/json"

	"call-assistant/internal/apperr"
	"call-assistant/internal/mcp"
	"call-assistant/internal/transcription"
)

// StreamControl starts and stops live transcription for a call.
type StreamControl interface {
	StartStream(ctx context.Context, callID, language string) (transcription.Transcription, error)
	StopStream(ctx context.Context, callID string) (transcription.Transcription, error)
}

type streamArgs struct {
	CallID   string `json:"callId"`
	Language string `json:"language"`
}

// RegisterStreamMethods adds stream/start and stream/stop to the envelope server.
func RegisterStreamMethods(s *mcp.Server, sc StreamControl) {
	s.HandleMethod("stream/start", func(ctx context.Context, params json.RawMessage) (any, error) {
		args, err := streamParams(params)
		if err != nil {
			return nil, err
		}
		return sc.StartStream(ctx, args.CallID, args.Language)
	})
	s.HandleMethod("stream/stop", func(ctx context.Context, params json.RawMessage) (any, error) {
		args, err := streamParams(params)
		if err != nil {
			return nil, err
		}
		return sc.StopStream(ctx, args.CallID)
	})
}

func streamParams(raw json.RawMessage) (streamArgs, error) {
	args, err := decode[streamArgs](raw)
	if err != nil {
		return args, err
	}
	if args.CallID == "" {
		return args, apperr.New(apperr.KindInvalidArguments, "Missing required argument: callId")
	}
	return args, nil
}
