package jsrt

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/6over3/jsrt/abi"
)

// Kind categorizes a failure reported by the engine.
type Kind int

const (
	// KindUsage means the caller violated a precondition.
	KindUsage Kind = iota + 1
	// KindEngine means the engine ran out of a resource.
	KindEngine
	// KindScript means script raised an exception, failed to compile, was
	// terminated, or tried to use a disabled eval.
	KindScript
	// KindFatal means an unrecognized or explicitly fatal status.
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindUsage:
		return "usage"
	case KindEngine:
		return "engine"
	case KindScript:
		return "script"
	case KindFatal:
		return "fatal"
	}
	return "unknown"
}

// Error is the failure type of every engine operation.
type Error struct {
	// Exception is the script exception for KindScript errors raised by an
	// exception or compile failure. It is invalid for termination and
	// eval-disabled errors, and for every other kind. The value is not
	// referenced; call AddRef to keep it past the current scope.
	Exception Value
	Cause     error
	Detail    string
	Code      abi.ErrorCode
	Kind      Kind
}

// Sentinels for errors.Is. They match any Error of the same Kind.
var (
	ErrUsage  = &Error{Kind: KindUsage}
	ErrEngine = &Error{Kind: KindEngine}
	ErrScript = &Error{Kind: KindScript}
	ErrFatal  = &Error{Kind: KindFatal}
)

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("jsrt: ")
	b.WriteString(e.Kind.String())
	b.WriteString(" error")
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Code != abi.NoError {
		b.WriteString(" (")
		b.WriteString(e.Code.String())
		b.WriteByte(')')
	}
	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}
	return b.String()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a sentinel of the same kind, or an Error
// with the same kind and code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Code == abi.NoError {
		return e.Kind == t.Kind
	}
	return e.Kind == t.Kind && e.Code == t.Code
}

var messages = map[abi.ErrorCode]string{
	abi.ErrorInvalidArgument:               "invalid argument",
	abi.ErrorNullArgument:                  "null argument",
	abi.ErrorNoCurrentContext:              "no current context",
	abi.ErrorInExceptionState:              "an exception is pending",
	abi.ErrorNotImplemented:                "operation not implemented",
	abi.ErrorWrongThread:                   "runtime is active on another thread",
	abi.ErrorRuntimeInUse:                  "runtime is in use",
	abi.ErrorBadSerializedScript:           "serialized script is corrupt or does not match its source",
	abi.ErrorInDisabledState:               "runtime execution is disabled",
	abi.ErrorCannotDisableExecution:        "runtime was not created with script interrupts allowed",
	abi.ErrorHeapEnumInProgress:            "heap enumeration is in progress",
	abi.ErrorArgumentNotObject:             "argument is not an object",
	abi.ErrorInProfileCallback:             "called from a profile callback",
	abi.ErrorInThreadServiceCallback:       "called from a thread service callback",
	abi.ErrorCannotSerializeDebugScript:    "scripts cannot be serialized while debugging",
	abi.ErrorAlreadyDebuggingContext:       "context is already being debugged",
	abi.ErrorAlreadyProfilingContext:       "context is already being profiled",
	abi.ErrorIdleNotEnabled:                "idle processing is not enabled for the runtime",
	abi.ErrorObjectNotInspectable:          "object is not inspectable",
	abi.ErrorPropertyNotSymbol:             "property id is not a symbol",
	abi.ErrorPropertyNotString:             "property id is not a string",
	abi.ErrorInvalidContext:                "operation is not valid for this context",
	abi.ErrorInvalidModuleHostInfoKind:     "unknown module host info kind",
	abi.ErrorModuleParsed:                  "module was already parsed",
	abi.ErrorModuleNotEvaluated:            "module has not been evaluated",
	abi.ErrorPromisePending:                "promise is pending",
	abi.ErrorOutOfMemory:                   "out of memory",
	abi.ErrorBadFPUState:                   "floating point unit is in an unexpected state",
	abi.ErrorScriptException:               "script threw an exception",
	abi.ErrorScriptCompile:                 "script failed to compile",
	abi.ErrorScriptTerminated:              "script was terminated",
	abi.ErrorScriptEvalDisabled:            "eval is disabled for the runtime",
	abi.ErrorDiagAlreadyInDebugMode:        "runtime is already in debug mode",
	abi.ErrorDiagNotInDebugMode:            "runtime is not in debug mode",
	abi.ErrorDiagNotAtBreak:                "debugger is not at a break",
	abi.ErrorDiagInvalidHandle:             "debug handle is invalid",
	abi.ErrorDiagObjectNotFound:            "debug object was not found",
	abi.ErrorDiagUnableToPerformAction:     "debugger cannot perform the action",
	abi.ErrorCannotStartProjection:         "cannot start projection",
	abi.ErrorInObjectBeforeCollectCallback: "called from an object-before-collect callback",
}

// message returns the description of a code, or its name.
func message(code abi.ErrorCode) string {
	if m, ok := messages[code]; ok {
		return m
	}
	return code.String()
}

func usageError(code abi.ErrorCode, format string, args ...any) *Error {
	return &Error{Kind: KindUsage, Code: code, Detail: fmt.Sprintf(format, args...)}
}

// translate converts a status into an error. Exception and compile codes
// fetch and clear the pending exception; c supplies the surface and owns
// the resulting Value.
func translate(c *Context, code abi.ErrorCode) error {
	if code == abi.NoError {
		return nil
	}
	switch code {
	case abi.ErrorScriptException, abi.ErrorScriptCompile:
		exc, fetch := c.rt.s.GetAndClearException()
		if fetch != abi.NoError {
			err := &Error{
				Kind:   KindFatal,
				Code:   code,
				Detail: fmt.Sprintf("fetching the pending exception failed with %s", fetch),
				Cause:  &Error{Kind: kindOf(fetch), Code: fetch, Detail: message(fetch)},
			}
			c.rt.log.Error("exception lost during translation", zap.Stringer("code", code), zap.Stringer("fetch", fetch))
			return err
		}
		return scriptError(c, code, exc)
	}
	return codeError(code)
}

// translateException converts a status whose exception was handed back
// directly rather than left pending.
func translateException(c *Context, code abi.ErrorCode, exc abi.ValueRef) error {
	if code == abi.NoError {
		return nil
	}
	if (code == abi.ErrorScriptException || code == abi.ErrorScriptCompile) && exc.IsValid() {
		return scriptError(c, code, exc)
	}
	return translate(c, code)
}

func scriptError(c *Context, code abi.ErrorCode, exc abi.ValueRef) *Error {
	err := &Error{Kind: KindScript, Code: code, Detail: message(code), Exception: c.wrap(exc)}
	if s := c.describe(exc); s != "" {
		err.Detail += ": " + s
	}
	return err
}

// codeError translates codes that need no engine state.
func codeError(code abi.ErrorCode) error {
	if code == abi.NoError {
		return nil
	}
	kind := kindOf(code)
	if kind == KindFatal {
		return &Error{Kind: KindFatal, Code: code}
	}
	return &Error{Kind: kind, Code: code, Detail: message(code)}
}

func kindOf(code abi.ErrorCode) Kind {
	switch code.Category() {
	case abi.CategoryUsage, abi.CategoryDiag:
		return KindUsage
	case abi.CategoryEngine:
		return KindEngine
	case abi.CategoryScript:
		return KindScript
	}
	return KindFatal
}
