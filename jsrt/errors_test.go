package jsrt

import (
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/6over3/jsrt/abi"
)

// stubSurface answers the calls the translator makes. Every other method
// panics through the nil embedded interface.
type stubSurface struct {
	abi.Surface

	exception abi.ValueRef
	fetchCode abi.ErrorCode
	text      string
	cleared   int
}

func (s *stubSurface) Name() string { return "stub" }

func (s *stubSurface) GetAndClearException() (abi.ValueRef, abi.ErrorCode) {
	s.cleared++
	if s.fetchCode != abi.NoError {
		return abi.InvalidValue, s.fetchCode
	}
	return s.exception, abi.NoError
}

func (s *stubSurface) ConvertValueToString(v abi.ValueRef) (abi.ValueRef, abi.ErrorCode) {
	return v + 1000, abi.NoError
}

func (s *stubSurface) StringToPointer(abi.ValueRef) (string, abi.ErrorCode) {
	return s.text, abi.NoError
}

func stubContext(s *stubSurface) *Context {
	return &Context{rt: &Runtime{s: s, log: zap.NewNop()}, ref: 1}
}

func TestTranslate(t *testing.T) {
	tests := []struct {
		name     string
		code     abi.ErrorCode
		kind     Kind
		sentinel error
		fetches  int
		hasExc   bool
		detail   string
	}{
		{"usage", abi.ErrorInvalidArgument, KindUsage, ErrUsage, 0, false, "invalid argument"},
		{"no context", abi.ErrorNoCurrentContext, KindUsage, ErrUsage, 0, false, "no current context"},
		{"diag", abi.ErrorDiagNotAtBreak, KindUsage, ErrUsage, 0, false, "debugger is not at a break"},
		{"oom", abi.ErrorOutOfMemory, KindEngine, ErrEngine, 0, false, "out of memory"},
		{"fpu", abi.ErrorBadFPUState, KindEngine, ErrEngine, 0, false, "floating point"},
		{"exception", abi.ErrorScriptException, KindScript, ErrScript, 1, true, "boom"},
		{"compile", abi.ErrorScriptCompile, KindScript, ErrScript, 1, true, "boom"},
		{"terminated", abi.ErrorScriptTerminated, KindScript, ErrScript, 0, false, "terminated"},
		{"eval disabled", abi.ErrorScriptEvalDisabled, KindScript, ErrScript, 0, false, "eval is disabled"},
		{"fatal", abi.ErrorFatal, KindFatal, ErrFatal, 0, false, ""},
		{"unknown", abi.ErrorCode(0x7777), KindFatal, ErrFatal, 0, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &stubSurface{exception: 42, text: "Error: boom"}
			err := translate(stubContext(s), tt.code)

			var je *Error
			if !errors.As(err, &je) {
				t.Fatalf("translate(%s) = %v, want *Error", tt.code, err)
			}
			if je.Kind != tt.kind || je.Code != tt.code {
				t.Errorf("kind, code = %s, %s; want %s, %s", je.Kind, je.Code, tt.kind, tt.code)
			}
			if !errors.Is(err, tt.sentinel) {
				t.Errorf("errors.Is(%v, %v) = false", err, tt.sentinel)
			}
			if s.cleared != tt.fetches {
				t.Errorf("exception fetched %d times, want %d", s.cleared, tt.fetches)
			}
			if je.Exception.IsValid() != tt.hasExc {
				t.Errorf("exception valid = %v, want %v", je.Exception.IsValid(), tt.hasExc)
			}
			if tt.detail != "" && !strings.Contains(je.Detail, tt.detail) {
				t.Errorf("detail = %q, want it to contain %q", je.Detail, tt.detail)
			}
			if tt.kind == KindFatal && je.Detail != "" {
				t.Errorf("fatal detail = %q, want code only", je.Detail)
			}
		})
	}
}

func TestTranslate_NoError(t *testing.T) {
	if err := translate(stubContext(&stubSurface{}), abi.NoError); err != nil {
		t.Fatalf("translate(NoError) = %v", err)
	}
}

func TestTranslate_ExceptionFetchFails(t *testing.T) {
	s := &stubSurface{fetchCode: abi.ErrorNoCurrentContext}
	err := translate(stubContext(s), abi.ErrorScriptException)

	var je *Error
	if !errors.As(err, &je) || je.Kind != KindFatal {
		t.Fatalf("err = %v, want fatal", err)
	}
	for _, want := range []string{abi.ErrorScriptException.String(), abi.ErrorNoCurrentContext.String()} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("%q does not name %s", err.Error(), want)
		}
	}
	var cause *Error
	if !errors.As(je.Cause, &cause) || cause.Code != abi.ErrorNoCurrentContext {
		t.Errorf("cause = %v", je.Cause)
	}
}

func TestTranslateException_Direct(t *testing.T) {
	s := &stubSurface{text: "SyntaxError: nope"}
	err := translateException(stubContext(s), abi.ErrorScriptCompile, 9)

	var je *Error
	if !errors.As(err, &je) || je.Kind != KindScript {
		t.Fatalf("err = %v, want script error", err)
	}
	if s.cleared != 0 {
		t.Error("a directly returned exception must not be fetched again")
	}
	if je.Exception.ref != 9 {
		t.Errorf("exception = %s", je.Exception)
	}
	if !strings.Contains(je.Error(), "SyntaxError: nope") {
		t.Errorf("message = %q", je.Error())
	}
}

func TestError_IsMatchesCode(t *testing.T) {
	err := codeError(abi.ErrorInvalidArgument)
	if !errors.Is(err, &Error{Kind: KindUsage, Code: abi.ErrorInvalidArgument}) {
		t.Error("same kind and code do not match")
	}
	if errors.Is(err, &Error{Kind: KindUsage, Code: abi.ErrorNullArgument}) {
		t.Error("different code matches")
	}
	if errors.Is(err, ErrScript) {
		t.Error("usage error matches script sentinel")
	}
}
