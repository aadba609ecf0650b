package dberr

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestConstructorsSetKind(t *testing.T) {
	cases := []struct {
		name string
		err  *Error
		want Kind
	}{
		{"NotFound", NotFound("request"), KindNotFound},
		{"InvalidArgument", InvalidArgument("bad input"), KindInvalidArgument},
		{"PreconditionFailed", PreconditionFailed("already lifted"), KindPreconditionFailed},
		{"Conflict", Conflict("already exists"), KindConflict},
		{"Internal", Internal("boom", errors.New("cause")), KindInternal},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if c.err.Kind != c.want {
				t.Errorf("expected kind %q, got %q", c.want, c.err.Kind)
			}
		})
	}
}

func TestErrorFormatsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Internal("failed to start transaction", cause)

	msg := err.Error()
	if !strings.Contains(msg, "connection refused") {
		t.Errorf("expected message to include the cause, got %q", msg)
	}

	withoutCause := NotFound("request")
	if strings.Contains(withoutCause.Error(), "%!") {
		t.Errorf("expected no format artifacts in a causeless error, got %q", withoutCause.Error())
	}
}

func TestUnwrapExposesCause(t *testing.T) {
	cause := errors.New("underlying")
	err := Internal("wrapped", cause)

	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to find the wrapped cause via Unwrap")
	}
}

func TestKindOfExtractsThroughWrapping(t *testing.T) {
	base := Conflict("duplicate subscription")
	wrapped := fmt.Errorf("dispatch failed: %w", base)

	if got := KindOf(wrapped); got != KindConflict {
		t.Errorf("expected KindOf to unwrap to KindConflict, got %q", got)
	}
}

func TestKindOfDefaultsToInternalForForeignErrors(t *testing.T) {
	foreign := errors.New("some library error")
	if got := KindOf(foreign); got != KindInternal {
		t.Errorf("expected KindInternal for a foreign error, got %q", got)
	}
}
