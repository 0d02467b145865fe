package calls

import "time"

// Call is a locally observed snapshot of a provider-owned call.
//
// The provider is the system of record: calls are created by a placement request, mutated only by
// status callbacks or polling, and never deleted locally.
//
// Invariant: Duration, Price and EndTime are only meaningful once Status is completed.
// Use Observed() before exposing a snapshot so earlier reads yield nil, never a stale value.
type Call struct {
	ID   string `json:"callId" db:"call_id"`
	From string `json:"from" db:"from_number"`
	To   string `json:"to" db:"to_number"`

	Status CallStatus `json:"status" db:"status"`

	// Duration is the call duration in seconds.
	Duration  *int       `json:"duration" db:"duration"`
	Price     *string    `json:"price" db:"price"`
	PriceUnit string     `json:"priceUnit,omitempty" db:"price_unit"`
	StartTime *time.Time `json:"startTime" db:"start_time"`
	EndTime   *time.Time `json:"endTime" db:"end_time"`

	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

type CallStatus string

// Values follow the provider's wire format.
const (
	CallStatusQueued     CallStatus = "queued"
	CallStatusInitiated  CallStatus = "initiated"
	CallStatusRinging    CallStatus = "ringing"
	CallStatusInProgress CallStatus = "in-progress"
	CallStatusCompleted  CallStatus = "completed"
	CallStatusFailed     CallStatus = "failed"
	CallStatusNoAnswer   CallStatus = "no-answer"
	CallStatusBusy       CallStatus = "busy"
	CallStatusCanceled   CallStatus = "canceled"
)

// ParseCallStatus accepts any known status; ok is false for unknown values.
func ParseCallStatus(s string) (CallStatus, bool) {
	switch st := CallStatus(s); st {
	case CallStatusQueued, CallStatusInitiated, CallStatusRinging, CallStatusInProgress,
		CallStatusCompleted, CallStatusFailed, CallStatusNoAnswer, CallStatusBusy, CallStatusCanceled:
		return st, true
	}
	return "", false
}

// Terminal reports whether the call has ended.
func (s CallStatus) Terminal() bool {
	switch s {
	case CallStatusCompleted, CallStatusFailed, CallStatusNoAnswer, CallStatusBusy, CallStatusCanceled:
		return true
	}
	return false
}

// Observed returns a copy with end-of-call fields cleared unless the call completed.
func (c Call) Observed() Call {
	if c.Status == CallStatusCompleted {
		return c
	}
	c.Duration = nil
	c.Price = nil
	c.PriceUnit = ""
	c.EndTime = nil
	return c
}

// Merge overlays the non-empty fields of update onto c.
// Status callbacks carry partial payloads; a later callback must not erase what is already known.
func (c Call) Merge(update Call) Call {
	if update.From != "" {
		c.From = update.From
	}
	if update.To != "" {
		c.To = update.To
	}
	if update.Status != "" {
		c.Status = update.Status
	}
	if update.Duration != nil {
		c.Duration = update.Duration
	}
	if update.Price != nil {
		c.Price = update.Price
	}
	if update.PriceUnit != "" {
		c.PriceUnit = update.PriceUnit
	}
	if update.StartTime != nil {
		c.StartTime = update.StartTime
	}
	if update.EndTime != nil {
		c.EndTime = update.EndTime
	}
	if !update.UpdatedAt.IsZero() {
		c.UpdatedAt = update.UpdatedAt
	}
	return c
}

// Recording is a provider-owned recording referenced by call.
type Recording struct {
	ID       string           `json:"recordingId"`
	CallID   string           `json:"callId"`
	Status   RecordingStatus  `json:"status"`
	Channels RecordingChannel `json:"channels,omitempty"`

	// Duration is nil until the recording stops.
	Duration *int   `json:"duration,omitempty"`
	URL      string `json:"recordingUrl,omitempty"`
}

type RecordingStatus string

const (
	RecordingStatusRecording RecordingStatus = "recording"
	RecordingStatusStopped   RecordingStatus = "stopped"
	RecordingStatusCompleted RecordingStatus = "completed"
)

type RecordingChannel string

const (
	RecordingChannelSingle RecordingChannel = "single"
	RecordingChannelDual   RecordingChannel = "dual"
)
