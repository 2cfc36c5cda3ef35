package engine

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestEngineErrorClassification(t *testing.T) {
	cause := errors.New("boom")

	tests := []struct {
		err       error
		fatal     bool
		permanent bool
		transient bool
	}{
		{NewFatalError("load", cause), true, false, false},
		{NewPermanentError("config", cause), false, true, false},
		{NewTransientError("command", cause), false, false, true},
		{fmt.Errorf("wrapped: %w", NewTransientError("command", cause)), false, false, true},
		{cause, false, false, false},
	}

	for _, tt := range tests {
		if IsFatal(tt.err) != tt.fatal || IsPermanent(tt.err) != tt.permanent || IsTransient(tt.err) != tt.transient {
			t.Errorf("classification of %v: fatal=%v permanent=%v transient=%v",
				tt.err, IsFatal(tt.err), IsPermanent(tt.err), IsTransient(tt.err))
		}
	}
}

func TestEngineErrorMessage(t *testing.T) {
	cause := errors.New("bad netlist")

	err := NewTransientError("failed to start simulation", cause).WithRequest("tran-1").WithWorker(2)
	msg := err.Error()
	for _, part := range []string{"[transient]", "request=tran-1", "worker=2", "bad netlist"} {
		if !strings.Contains(msg, part) {
			t.Errorf("message %q does not contain %q", msg, part)
		}
	}

	if got := NewPermanentError("x", cause).Error(); strings.Contains(got, "worker=") {
		t.Errorf("unset worker leaked into message: %q", got)
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the cause")
	}
}

func TestEngineErrorIsMatchesClassAndCode(t *testing.T) {
	err := NewPermanentError("x", nil).WithCode(ErrCodeValidation)
	if !errors.Is(err, &EngineError{Class: ErrorClassPermanent, Code: ErrCodeValidation}) {
		t.Error("expected match on class and code")
	}
	if errors.Is(err, &EngineError{Class: ErrorClassPermanent, Code: ErrCodeNetlist}) {
		t.Error("unexpected match on different code")
	}
}

func TestStatusTerminality(t *testing.T) {
	for _, s := range []WorkerStatus{WorkerIdle, WorkerRunning, WorkerHalted} {
		if s.IsTerminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
	for _, s := range []WorkerStatus{WorkerDone, WorkerPanic} {
		if !s.IsTerminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	if err := WorkerStatus("lost").Validate(); err == nil {
		t.Error("expected invalid worker status")
	}

	for _, k := range []StatusKind{StatusReady, StatusFailed, StatusCancelled} {
		if !k.IsTerminal() {
			t.Errorf("%s should be terminal", k)
		}
	}
	for _, k := range []StatusKind{StatusSourceDeck, StatusProgress} {
		if k.IsTerminal() {
			t.Errorf("%s should not be terminal", k)
		}
		if err := k.Validate(); err != nil {
			t.Errorf("%s: %v", k, err)
		}
	}
}
