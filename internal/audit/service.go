package audit

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"call-assistant/internal/apperr"
	"call-assistant/internal/auth"
	"call-assistant/internal/mcp"
)

// Repository is the persistence contract for audit events. It is append-only.
type Repository interface {
	Append(ctx context.Context, e Event) error
	Recent(ctx context.Context, limit int) ([]Event, error)
}

// Service records tool invocations.
//
// Audit is internal-only and best-effort: callers never see its failures.
type Service struct {
	repo  Repository
	clock func() time.Time
	log   *slog.Logger
}

func NewService(repo Repository, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{repo: repo, clock: time.Now, log: log.With("component", "audit")}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.Tool == "" || e.Outcome == "" {
		return ErrInvalidEvent
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

func (s *Service) Recent(ctx context.Context, limit int) ([]Event, error) {
	return s.repo.Recent(ctx, limit)
}

// Observer logs and records every dispatcher outcome.
func (s *Service) Observer() mcp.Observer {
	return func(ctx context.Context, inv mcp.Invocation) {
		e := Event{
			Tool:       inv.Tool,
			CallID:     callIDOf(inv),
			Outcome:    OutcomeOK,
			DurationMS: inv.Duration.Milliseconds(),
		}
		if id, ok := auth.IdentityFrom(ctx); ok {
			e.UserID = id.UserID
		}
		if inv.Err != nil {
			e.Outcome = OutcomeError
			e.ErrorKind = string(apperr.CauseOf(inv.Err))
			e.Message = inv.Err.Error()
		}

		attrs := []any{"tool", e.Tool, "outcome", e.Outcome, "duration_ms", e.DurationMS}
		if e.CallID != "" {
			attrs = append(attrs, "call_id", e.CallID)
		}
		if inv.Err != nil {
			attrs = append(attrs, "error_kind", e.ErrorKind, "err", e.Message)
			s.log.Warn("tool invocation failed", attrs...)
		} else {
			s.log.Info("tool invoked", attrs...)
		}

		if err := s.Append(ctx, e); err != nil {
			s.log.Warn("audit append failed", "tool", e.Tool, "err", err)
		}
	}
}

// callIDOf finds the call an invocation concerned: the callId argument, or the callId in the result
// for tools that create one.
func callIDOf(inv mcp.Invocation) string {
	var ref struct {
		CallID string `json:"callId"`
	}
	if len(inv.Args) > 0 && json.Unmarshal(inv.Args, &ref) == nil && ref.CallID != "" {
		return ref.CallID
	}
	if inv.Result == nil {
		return ""
	}
	raw, err := json.Marshal(inv.Result)
	if err != nil {
		return ""
	}
	if json.Unmarshal(raw, &ref) == nil {
		return ref.CallID
	}
	return ""
}
