package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsMatchesByKind(t *testing.T) {
	err := New(KindNoActiveRecording, "no active recording for call %s", "CA1")
	if !errors.Is(err, ErrNoActiveRecording) {
		t.Fatalf("expected errors.Is to match sentinel")
	}
	if errors.Is(err, ErrProvider) {
		t.Fatalf("unexpected match on different kind")
	}
}

func TestCauseOfSkipsToolExecutionWrapper(t *testing.T) {
	inner := New(KindProvider, "twilio: 404 not found")
	outer := Wrap(KindToolExecutionFailed, fmt.Errorf("call-status: %w", inner), "Tool 'call-status' failed: %s", inner.Message)

	if KindOf(outer) != KindToolExecutionFailed {
		t.Fatalf("expected outer kind, got %s", KindOf(outer))
	}
	if CauseOf(outer) != KindProvider {
		t.Fatalf("expected provider cause, got %s", CauseOf(outer))
	}
	if !errors.Is(outer, ErrProvider) {
		t.Fatalf("expected wrapped provider error to be reachable")
	}
}

func TestKindOfPlainError(t *testing.T) {
	if KindOf(errors.New("boom")) != KindInternal {
		t.Fatalf("expected internal kind for plain errors")
	}
}
