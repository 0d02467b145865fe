package tools

import (
	"context"
	"encoding/json"

	"call-assistant/internal/apperr"
	"call-assistant/internal/calls"
	"call-assistant/internal/mcp"
	"call-assistant/internal/telephony"
)

type recordArgs struct {
	CallID                  string `json:"callId"`
	Action                  string `json:"action"`
	RecordingChannels       string `json:"recordingChannels"`
	RecordingStatusCallback string `json:"recordingStatusCallback"`
}

type recordResult struct {
	RecordingID  string                `json:"recordingId"`
	CallID       string                `json:"callId"`
	Status       calls.RecordingStatus `json:"status"`
	Action       string                `json:"action"`
	RecordingURL string                `json:"recordingUrl,omitempty"`
	Duration     *int                  `json:"duration,omitempty"`
}

func (ts *toolset) recordTool() mcp.Tool {
	return mcp.Tool{
		Name:        "record",
		Description: "Start or stop recording a call in progress",
		InputSchema: mcp.Object([]string{"callId", "action"}, map[string]mcp.Property{
			"callId": {Type: mcp.TypeString, Description: "Provider call identifier"},
			"action": {Type: mcp.TypeString, Enum: []string{"start", "stop"}},
			"recordingChannels": {
				Type:    mcp.TypeString,
				Enum:    []string{string(calls.RecordingChannelDual), string(calls.RecordingChannelSingle)},
				Default: string(calls.RecordingChannelDual),
			},
			"recordingStatusCallback": {Type: mcp.TypeString, Description: "URL notified as the recording progresses"},
		}),
		Handler: ts.record,
	}
}

func (ts *toolset) record(ctx context.Context, raw json.RawMessage) (any, error) {
	args, err := decode[recordArgs](raw)
	if err != nil {
		return nil, err
	}

	var rec calls.Recording
	switch args.Action {
	case "start":
		rec, err = ts.Provider.StartRecording(ctx, telephony.StartRecordingRequest{
			CallID:      args.CallID,
			Channels:    calls.RecordingChannel(args.RecordingChannels),
			CallbackURL: args.RecordingStatusCallback,
		})
	case "stop":
		rec, err = ts.Provider.StopRecording(ctx, args.CallID)
	default:
		return nil, apperr.New(apperr.KindInvalidArguments, "Unknown record action: %s", args.Action)
	}
	if err != nil {
		return nil, err
	}
	ts.Events.Emit(ctx, args.CallID, "recording", rec)

	callID := rec.CallID
	if callID == "" {
		callID = args.CallID
	}
	return recordResult{
		RecordingID:  rec.ID,
		CallID:       callID,
		Status:       rec.Status,
		Action:       args.Action,
		RecordingURL: rec.URL,
		Duration:     rec.Duration,
	}, nil
}
