package abi

// RuntimeAttributes configures a runtime at creation (JsRuntimeAttributes).
type RuntimeAttributes uint32

const (
	RuntimeAttributeNone                            RuntimeAttributes = 0x00
	RuntimeAttributeDisableBackgroundWork           RuntimeAttributes = 0x01
	RuntimeAttributeAllowScriptInterrupt            RuntimeAttributes = 0x02
	RuntimeAttributeEnableIdleProcessing            RuntimeAttributes = 0x04
	RuntimeAttributeDisableNativeCodeGeneration     RuntimeAttributes = 0x08
	RuntimeAttributeDisableEval                     RuntimeAttributes = 0x10
	RuntimeAttributeEnableExperimentalFeatures      RuntimeAttributes = 0x20
	RuntimeAttributeDispatchSetExceptionsToDebugger RuntimeAttributes = 0x40
	RuntimeAttributeDisableFatalOnOOM               RuntimeAttributes = 0x80
)

// Has reports whether every bit of flag is set.
func (a RuntimeAttributes) Has(flag RuntimeAttributes) bool { return a&flag == flag }

// NoMemoryLimit is the memory limit of an unconstrained runtime.
const NoMemoryLimit = ^uint64(0)

// ValueType is the type tag of an engine value (JsValueType).
type ValueType uint32

const (
	TypeUndefined ValueType = iota
	TypeNull
	TypeNumber
	TypeString
	TypeBoolean
	TypeObject
	TypeFunction
	TypeError
	TypeArray
	TypeSymbol
	TypeArrayBuffer
	TypeTypedArray
	TypeDataView
)

var valueTypeNames = [...]string{
	"undefined", "null", "number", "string", "boolean", "object",
	"function", "error", "array", "symbol", "arraybuffer", "typedarray", "dataview",
}

func (t ValueType) String() string {
	if int(t) < len(valueTypeNames) {
		return valueTypeNames[t]
	}
	return "unknown"
}

// ErrorType selects the constructor used by CreateError.
type ErrorType uint32

const (
	ErrorTypeError ErrorType = iota
	ErrorTypeRange
	ErrorTypeReference
	ErrorTypeSyntax
	ErrorTypeType
	ErrorTypeURI
)

var errorTypeNames = [...]string{"Error", "RangeError", "ReferenceError", "SyntaxError", "TypeError", "URIError"}

// Constructor returns the global constructor name for the error type.
func (t ErrorType) Constructor() string {
	if int(t) < len(errorTypeNames) {
		return errorTypeNames[t]
	}
	return "Error"
}

// TypedArrayType is the element type of a typed array (JsTypedArrayType).
type TypedArrayType uint32

const (
	ArrayTypeInt8 TypedArrayType = iota
	ArrayTypeUint8
	ArrayTypeUint8Clamped
	ArrayTypeInt16
	ArrayTypeUint16
	ArrayTypeInt32
	ArrayTypeUint32
	ArrayTypeFloat32
	ArrayTypeFloat64
)

var typedArrayInfo = [...]struct {
	name string
	size int
}{
	{"Int8Array", 1}, {"Uint8Array", 1}, {"Uint8ClampedArray", 1},
	{"Int16Array", 2}, {"Uint16Array", 2}, {"Int32Array", 4},
	{"Uint32Array", 4}, {"Float32Array", 4}, {"Float64Array", 8},
}

// Constructor returns the global constructor name for the array type.
func (t TypedArrayType) Constructor() string {
	if int(t) < len(typedArrayInfo) {
		return typedArrayInfo[t].name
	}
	return ""
}

// ElementSize returns the size in bytes of one element.
func (t TypedArrayType) ElementSize() int {
	if int(t) < len(typedArrayInfo) {
		return typedArrayInfo[t].size
	}
	return 0
}

// TypedArrayTypeOf maps a constructor name back to its array type.
func TypedArrayTypeOf(constructor string) (TypedArrayType, bool) {
	for i, info := range typedArrayInfo {
		if info.name == constructor {
			return TypedArrayType(i), true
		}
	}
	return 0, false
}

// TypedArrayStorage describes the backing store of a typed array.
type TypedArrayStorage struct {
	Data        []byte
	Type        TypedArrayType
	ElementSize int
}

// PropertyIDType tells string-named property ids from symbols.
type PropertyIDType uint32

const (
	PropertyIDTypeString PropertyIDType = iota
	PropertyIDTypeSymbol
)

// ModuleHostInfoKind selects the slot of SetModuleHostInfo/GetModuleHostInfo.
type ModuleHostInfoKind uint32

const (
	ModuleHostInfoException                             ModuleHostInfoKind = 0x01
	ModuleHostInfoHostDefined                           ModuleHostInfoKind = 0x02
	ModuleHostInfoNotifyModuleReadyCallback             ModuleHostInfoKind = 0x03
	ModuleHostInfoFetchImportedModuleCallback           ModuleHostInfoKind = 0x04
	ModuleHostInfoFetchImportedModuleFromScriptCallback ModuleHostInfoKind = 0x05
	ModuleHostInfoURL                                   ModuleHostInfoKind = 0x06
)

// DiagDebugEvent tags a debug protocol notification (JsDiagDebugEvent).
type DiagDebugEvent uint32

const (
	DiagEventSourceCompile DiagDebugEvent = iota
	DiagEventCompileError
	DiagEventBreakpoint
	DiagEventStepComplete
	DiagEventDebuggerStatement
	DiagEventAsyncBreak
	DiagEventRuntimeException
)

var diagEventNames = [...]string{
	"SourceCompile", "CompileError", "Breakpoint", "StepComplete",
	"DebuggerStatement", "AsyncBreak", "RuntimeException",
}

func (e DiagDebugEvent) String() string {
	if int(e) < len(diagEventNames) {
		return diagEventNames[e]
	}
	return "Unknown"
}

// DiagStepType selects the stepping mode after a break (JsDiagStepType).
type DiagStepType uint32

const (
	DiagStepIn DiagStepType = iota
	DiagStepOut
	DiagStepOver
	DiagStepBack
	DiagReverseContinue
	DiagContinue
)
