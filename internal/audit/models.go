package audit

import "time"

// Event is an append-only record of one tool invocation.
//
// Invariants:
// - Events are never updated or deleted.
// - Recording is best-effort; a failed append never fails the tool call.
type Event struct {
	ID   string `json:"id" db:"id"`
	Tool string `json:"tool" db:"tool"`

	// CallID is the call the invocation targeted or created, when known.
	CallID string `json:"callId,omitempty" db:"call_id"`
	// UserID is the authenticated caller, when the transport authenticated one.
	UserID string `json:"userId,omitempty" db:"user_id"`

	Outcome   Outcome `json:"outcome" db:"outcome"`
	ErrorKind string  `json:"errorKind,omitempty" db:"error_kind"`
	// Message is the agent-facing error text; empty on success.
	Message string `json:"message,omitempty" db:"message"`

	DurationMS int64     `json:"durationMs" db:"duration_ms"`
	CreatedAt  time.Time `json:"createdAt" db:"created_at"`
}

type Outcome string

const (
	OutcomeOK    Outcome = "ok"
	OutcomeError Outcome = "error"
)
