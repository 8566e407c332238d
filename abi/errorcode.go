package abi

import "fmt"

// ErrorCode is the status returned by every native entry point
// (JsErrorCode). The high 16 bits carry the category.
type ErrorCode uint32

// Error categories.
const (
	CategoryUsage  ErrorCode = 0x10000
	CategoryEngine ErrorCode = 0x20000
	CategoryScript ErrorCode = 0x30000
	CategoryFatal  ErrorCode = 0x40000
	CategoryDiag   ErrorCode = 0x50000
)

const (
	NoError ErrorCode = 0

	ErrorInvalidArgument ErrorCode = CategoryUsage + iota
	ErrorNullArgument
	ErrorNoCurrentContext
	ErrorInExceptionState
	ErrorNotImplemented
	ErrorWrongThread
	ErrorRuntimeInUse
	ErrorBadSerializedScript
	ErrorInDisabledState
	ErrorCannotDisableExecution
	ErrorHeapEnumInProgress
	ErrorArgumentNotObject
	ErrorInProfileCallback
	ErrorInThreadServiceCallback
	ErrorCannotSerializeDebugScript
	ErrorAlreadyDebuggingContext
	ErrorAlreadyProfilingContext
	ErrorIdleNotEnabled
	ErrorCannotSetProjectionEnqueueCallback
	ErrorCannotStartProjection
	ErrorInObjectBeforeCollectCallback
	ErrorObjectNotInspectable
	ErrorPropertyNotSymbol
	ErrorPropertyNotString
	ErrorInvalidContext
	ErrorInvalidModuleHostInfoKind
	ErrorModuleParsed
	ErrorNoWeakRefRequired
	ErrorPromisePending
	ErrorModuleNotEvaluated
)

const (
	ErrorOutOfMemory ErrorCode = CategoryEngine + 1 + iota
	ErrorBadFPUState
)

const (
	ErrorScriptException ErrorCode = CategoryScript + 1 + iota
	ErrorScriptCompile
	ErrorScriptTerminated
	ErrorScriptEvalDisabled
)

const (
	ErrorFatal ErrorCode = CategoryFatal + 1 + iota
	ErrorWrongRuntime
)

const (
	ErrorDiagAlreadyInDebugMode ErrorCode = CategoryDiag + 1 + iota
	ErrorDiagNotInDebugMode
	ErrorDiagNotAtBreak
	ErrorDiagInvalidHandle
	ErrorDiagObjectNotFound
	ErrorDiagUnableToPerformAction
)

// Category returns the category bits of the code.
func (c ErrorCode) Category() ErrorCode { return c & 0xFFFF0000 }

// OK reports whether the code is NoError.
func (c ErrorCode) OK() bool { return c == NoError }

var codeNames = map[ErrorCode]string{
	NoError:                                 "JsNoError",
	ErrorInvalidArgument:                    "JsErrorInvalidArgument",
	ErrorNullArgument:                       "JsErrorNullArgument",
	ErrorNoCurrentContext:                   "JsErrorNoCurrentContext",
	ErrorInExceptionState:                   "JsErrorInExceptionState",
	ErrorNotImplemented:                     "JsErrorNotImplemented",
	ErrorWrongThread:                        "JsErrorWrongThread",
	ErrorRuntimeInUse:                       "JsErrorRuntimeInUse",
	ErrorBadSerializedScript:                "JsErrorBadSerializedScript",
	ErrorInDisabledState:                    "JsErrorInDisabledState",
	ErrorCannotDisableExecution:             "JsErrorCannotDisableExecution",
	ErrorHeapEnumInProgress:                 "JsErrorHeapEnumInProgress",
	ErrorArgumentNotObject:                  "JsErrorArgumentNotObject",
	ErrorInProfileCallback:                  "JsErrorInProfileCallback",
	ErrorInThreadServiceCallback:            "JsErrorInThreadServiceCallback",
	ErrorCannotSerializeDebugScript:         "JsErrorCannotSerializeDebugScript",
	ErrorAlreadyDebuggingContext:            "JsErrorAlreadyDebuggingContext",
	ErrorAlreadyProfilingContext:            "JsErrorAlreadyProfilingContext",
	ErrorIdleNotEnabled:                     "JsErrorIdleNotEnabled",
	ErrorCannotSetProjectionEnqueueCallback: "JsCannotSetProjectionEnqueueCallback",
	ErrorCannotStartProjection:              "JsErrorCannotStartProjection",
	ErrorInObjectBeforeCollectCallback:      "JsErrorInObjectBeforeCollectCallback",
	ErrorObjectNotInspectable:               "JsErrorObjectNotInspectable",
	ErrorPropertyNotSymbol:                  "JsErrorPropertyNotSymbol",
	ErrorPropertyNotString:                  "JsErrorPropertyNotString",
	ErrorInvalidContext:                     "JsErrorInvalidContext",
	ErrorInvalidModuleHostInfoKind:          "JsInvalidModuleHostInfoKind",
	ErrorModuleParsed:                       "JsErrorModuleParsed",
	ErrorNoWeakRefRequired:                  "JsNoWeakRefRequired",
	ErrorPromisePending:                     "JsErrorPromisePending",
	ErrorModuleNotEvaluated:                 "JsErrorModuleNotEvaluated",
	ErrorOutOfMemory:                        "JsErrorOutOfMemory",
	ErrorBadFPUState:                        "JsErrorBadFPUState",
	ErrorScriptException:                    "JsErrorScriptException",
	ErrorScriptCompile:                      "JsErrorScriptCompile",
	ErrorScriptTerminated:                   "JsErrorScriptTerminated",
	ErrorScriptEvalDisabled:                 "JsErrorScriptEvalDisabled",
	ErrorFatal:                              "JsErrorFatal",
	ErrorWrongRuntime:                       "JsErrorWrongRuntime",
	ErrorDiagAlreadyInDebugMode:             "JsErrorDiagAlreadyInDebugMode",
	ErrorDiagNotInDebugMode:                 "JsErrorDiagNotInDebugMode",
	ErrorDiagNotAtBreak:                     "JsErrorDiagNotAtBreak",
	ErrorDiagInvalidHandle:                  "JsErrorDiagInvalidHandle",
	ErrorDiagObjectNotFound:                 "JsErrorDiagObjectNotFound",
	ErrorDiagUnableToPerformAction:          "JsErrorDiagUnableToPerformAction",
}

func (c ErrorCode) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("JsErrorCode(0x%x)", uint32(c))
}
