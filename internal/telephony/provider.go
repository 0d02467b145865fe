package telephony

import (
	"context"

	"call-assistant/internal/calls"
)

// Provider is the voice-platform boundary used by tools.
//
// Rules:
// - No provider HTTP calls outside telephony adapters.
// - Upstream failures surface as apperr ProviderError carrying the provider's message.
// - Snapshots returned to callers are in observed form (see calls.Call.Observed).
type Provider interface {
	Name() string

	PlaceCall(ctx context.Context, req PlaceCallRequest) (PlacedCall, error)
	GetCallStatus(ctx context.Context, callID string) (calls.Call, error)
	ListCalls(ctx context.Context, req ListCallsRequest) ([]calls.Call, error)
	CancelCall(ctx context.Context, callID string) (calls.Call, error)

	StartRecording(ctx context.Context, req StartRecordingRequest) (calls.Recording, error)
	StopRecording(ctx context.Context, callID string) (calls.Recording, error)

	// LatestRecording returns the most recent completed recording for a call, or NotFound.
	LatestRecording(ctx context.Context, callID string) (calls.Recording, error)
	// FetchRecordingAudio downloads a recording's media as WAV.
	FetchRecordingAudio(ctx context.Context, rec calls.Recording) ([]byte, error)
}

// PlaceCallRequest describes an outbound call that speaks Message once answered.
type PlaceCallRequest struct {
	To       string `json:"to"`
	Message  string `json:"message"`
	Voice    string `json:"voice"`
	Language string `json:"language"`
}

// PlacedCall is the provider's acknowledgement of a placement.
type PlacedCall struct {
	ID     string           `json:"callId"`
	Status calls.CallStatus `json:"status"`
	To     string           `json:"to"`
	From   string           `json:"from"`
}

type ListCallsRequest struct {
	Limit int `json:"limit"`
	// Status filters server-side when set.
	Status calls.CallStatus `json:"status,omitempty"`
}

type StartRecordingRequest struct {
	CallID   string                 `json:"callId"`
	Channels calls.RecordingChannel `json:"channels"`

	// CallbackURL receives the provider's recording status callbacks (optional).
	CallbackURL string `json:"callbackUrl,omitempty"`
}
