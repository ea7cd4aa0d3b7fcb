package apperror

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestNew_DefaultsFromCode(t *testing.T) {
	err := New(CodeStateUnavailable, WithContext("pair 0xabc"))

	if err.Message != catalog[CodeStateUnavailable].message {
		t.Errorf("expected default message, got %q", err.Message)
	}
	if !strings.Contains(err.Error(), "pair 0xabc") {
		t.Errorf("expected context in message, got %q", err.Error())
	}
}

func TestNew_UnknownCodeUsesCodeAsMessage(t *testing.T) {
	err := New(Code("SOMETHING_NEW"))
	if err.Message != "SOMETHING_NEW" {
		t.Errorf("got %q", err.Message)
	}
}

func TestWrap_KeepsAppError(t *testing.T) {
	inner := New(CodeCacheReadFailed)
	wrapped := Wrap(inner, CodeInternalError, "reading snapshot")

	if wrapped != inner {
		t.Error("expected Wrap to return the existing AppError")
	}
	if wrapped.Context != "reading snapshot" {
		t.Errorf("expected context to be filled, got %q", wrapped.Context)
	}
	if Wrap(nil, CodeInternalError, "x") != nil {
		t.Error("expected nil for nil error")
	}
}

func TestIs_ComparesCodes(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := New(CodeCacheConnectionFailed, WithCause(cause))

	if !errors.Is(err, New(CodeCacheConnectionFailed)) {
		t.Error("expected errors.Is to match on code")
	}
	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to reach the cause")
	}
	if !IsCode(fmt.Errorf("outer: %w", err), CodeCacheConnectionFailed) {
		t.Error("expected IsCode through fmt wrapping")
	}
	if GetCode(cause) != CodeUnknownError {
		t.Error("expected unknown code for plain errors")
	}
}

func TestIsTemporary(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"state unavailable", New(CodeStateUnavailable), true},
		{"circuit open", New(CodeCircuitOpen), true},
		{"generation failed", New(CodeStateGenerationFailed), false},
		{"unknown token", New(CodeUnknownToken), false},
		{"plain error", errors.New("boom"), false},
		{"wrapped", fmt.Errorf("quote: %w", New(CodeStateUnavailable)), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTemporary(tt.err); got != tt.want {
				t.Errorf("IsTemporary() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLogArgs(t *testing.T) {
	err := New(CodeContractCallFailed, WithContext("getReserves"), WithCause(errors.New("execution reverted")))
	args := err.LogArgs()

	got := map[string]any{}
	for i := 0; i+1 < len(args); i += 2 {
		got[args[i].(string)] = args[i+1]
	}
	if got["code"] != string(CodeContractCallFailed) {
		t.Errorf("code = %v", got["code"])
	}
	if got["context"] != "getReserves" {
		t.Errorf("context = %v", got["context"])
	}
	if got["cause"] != "execution reverted" {
		t.Errorf("cause = %v", got["cause"])
	}
	if _, ok := got["stack"]; !ok {
		t.Error("expected stack")
	}
}
