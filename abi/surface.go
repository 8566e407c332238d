package abi

// Surface is the uniform native call surface. Each method corresponds to
// one JsRT entry point: it returns the engine status and the values the
// entry point writes to its out-parameters. Out values are meaningful only
// when the status is NoError.
//
// Methods that operate on values, property ids or modules act on the
// context that is current on the calling thread, as the native API does.
// Implementations are not required to be safe for concurrent use beyond
// what the engine's threading rules allow; the jsrt package serializes all
// access.
type Surface interface {
	// Name identifies the implementation in logs.
	Name() string

	// Runtime lifecycle and memory.
	CreateRuntime(attrs RuntimeAttributes) (RuntimeRef, ErrorCode)
	DisposeRuntime(rt RuntimeRef) ErrorCode
	CollectGarbage(rt RuntimeRef) ErrorCode
	GetRuntimeMemoryUsage(rt RuntimeRef) (uint64, ErrorCode)
	GetRuntimeMemoryLimit(rt RuntimeRef) (uint64, ErrorCode)
	SetRuntimeMemoryLimit(rt RuntimeRef, limit uint64) ErrorCode
	DisableRuntimeExecution(rt RuntimeRef) ErrorCode
	EnableRuntimeExecution(rt RuntimeRef) ErrorCode
	IsRuntimeExecutionDisabled(rt RuntimeRef) (bool, ErrorCode)

	// Contexts and reference counts.
	CreateContext(rt RuntimeRef) (ContextRef, ErrorCode)
	GetCurrentContext() (ContextRef, ErrorCode)
	SetCurrentContext(ctx ContextRef) ErrorCode
	GetRuntime(ctx ContextRef) (RuntimeRef, ErrorCode)
	GetContextOfObject(obj ValueRef) (ContextRef, ErrorCode)
	AddRef(ref Ref) (uint32, ErrorCode)
	Release(ref Ref) (uint32, ErrorCode)

	// Scripts. SerializeScript follows the two-call convention: with a
	// buffer that is nil or too small it only reports the required size.
	ParseScript(script string, cookie SourceContext, sourceURL string) (ValueRef, ErrorCode)
	RunScript(script string, cookie SourceContext, sourceURL string) (ValueRef, ErrorCode)
	SerializeScript(script string, buffer []byte) (int, ErrorCode)
	ParseSerializedScript(script string, buffer []byte, cookie SourceContext, sourceURL string) (ValueRef, ErrorCode)
	RunSerializedScript(script string, buffer []byte, cookie SourceContext, sourceURL string) (ValueRef, ErrorCode)
	Idle() (uint32, ErrorCode)

	// Exception state of the current runtime.
	HasException() (bool, ErrorCode)
	GetAndClearException() (ValueRef, ErrorCode)
	SetException(exception ValueRef) ErrorCode

	// Well-known values and conversions.
	GetUndefinedValue() (ValueRef, ErrorCode)
	GetNullValue() (ValueRef, ErrorCode)
	GetTrueValue() (ValueRef, ErrorCode)
	GetFalseValue() (ValueRef, ErrorCode)
	GetGlobalObject() (ValueRef, ErrorCode)
	BoolToBoolean(b bool) (ValueRef, ErrorCode)
	BooleanToBool(v ValueRef) (bool, ErrorCode)
	IntToNumber(n int32) (ValueRef, ErrorCode)
	DoubleToNumber(f float64) (ValueRef, ErrorCode)
	NumberToInt(v ValueRef) (int32, ErrorCode)
	NumberToDouble(v ValueRef) (float64, ErrorCode)
	PointerToString(s string) (ValueRef, ErrorCode)
	StringToPointer(v ValueRef) (string, ErrorCode)
	ConvertValueToBoolean(v ValueRef) (ValueRef, ErrorCode)
	ConvertValueToNumber(v ValueRef) (ValueRef, ErrorCode)
	ConvertValueToString(v ValueRef) (ValueRef, ErrorCode)
	ConvertValueToObject(v ValueRef) (ValueRef, ErrorCode)
	GetValueType(v ValueRef) (ValueType, ErrorCode)
	Equals(a, b ValueRef) (bool, ErrorCode)
	StrictEquals(a, b ValueRef) (bool, ErrorCode)
	InstanceOf(obj, constructor ValueRef) (bool, ErrorCode)

	// Objects, arrays, errors and prototypes.
	CreateObject() (ValueRef, ErrorCode)
	CreateArray(length uint32) (ValueRef, ErrorCode)
	CreateError(kind ErrorType, message ValueRef) (ValueRef, ErrorCode)
	GetPrototype(obj ValueRef) (ValueRef, ErrorCode)
	SetPrototype(obj, proto ValueRef) ErrorCode

	// Property ids and symbols.
	GetPropertyIDFromName(name string) (PropertyIDRef, ErrorCode)
	GetPropertyNameFromID(id PropertyIDRef) (string, ErrorCode)
	GetPropertyIDFromSymbol(symbol ValueRef) (PropertyIDRef, ErrorCode)
	GetSymbolFromPropertyID(id PropertyIDRef) (ValueRef, ErrorCode)
	GetPropertyIDType(id PropertyIDRef) (PropertyIDType, ErrorCode)
	CreateSymbol(description ValueRef) (ValueRef, ErrorCode)

	// Named and indexed properties.
	GetProperty(obj ValueRef, id PropertyIDRef) (ValueRef, ErrorCode)
	SetProperty(obj ValueRef, id PropertyIDRef, value ValueRef, strict bool) ErrorCode
	HasProperty(obj ValueRef, id PropertyIDRef) (bool, ErrorCode)
	DeleteProperty(obj ValueRef, id PropertyIDRef, strict bool) (ValueRef, ErrorCode)
	DefineProperty(obj ValueRef, id PropertyIDRef, descriptor ValueRef) (bool, ErrorCode)
	GetOwnPropertyDescriptor(obj ValueRef, id PropertyIDRef) (ValueRef, ErrorCode)
	GetOwnPropertyNames(obj ValueRef) (ValueRef, ErrorCode)
	GetIndexedProperty(obj, index ValueRef) (ValueRef, ErrorCode)
	SetIndexedProperty(obj, index, value ValueRef) ErrorCode
	HasIndexedProperty(obj, index ValueRef) (bool, ErrorCode)
	DeleteIndexedProperty(obj, index ValueRef) ErrorCode

	// Functions.
	CreateFunction(fn NativeFunction, state any) (ValueRef, ErrorCode)
	CreateNamedFunction(name ValueRef, fn NativeFunction, state any) (ValueRef, ErrorCode)
	CallFunction(fn ValueRef, args []ValueRef) (ValueRef, ErrorCode)
	ConstructObject(fn ValueRef, args []ValueRef) (ValueRef, ErrorCode)
	SetPromiseContinuationCallback(cb PromiseContinuationCallback, state any) ErrorCode

	// Array buffers and typed arrays. Returned storage aliases engine
	// memory and is valid only while the value is alive.
	CreateArrayBuffer(byteLength uint32) (ValueRef, ErrorCode)
	GetArrayBufferStorage(buffer ValueRef) ([]byte, ErrorCode)
	CreateTypedArray(kind TypedArrayType, buffer ValueRef, byteOffset, length uint32) (ValueRef, ErrorCode)
	GetTypedArrayStorage(array ValueRef) (TypedArrayStorage, ErrorCode)

	// Module records. ParseModuleSource returns the compile exception, if
	// any, alongside the status.
	InitializeModuleRecord(referencing ModuleRef, specifier ValueRef) (ModuleRef, ErrorCode)
	ParseModuleSource(module ModuleRef, cookie SourceContext, source []byte) (ValueRef, ErrorCode)
	ModuleEvaluation(module ModuleRef) (ValueRef, ErrorCode)
	SetModuleHostInfo(module ModuleRef, kind ModuleHostInfoKind, info any) ErrorCode
	GetModuleHostInfo(module ModuleRef, kind ModuleHostInfoKind) (any, ErrorCode)

	// Diagnostics.
	DiagStartDebugging(rt RuntimeRef, cb DiagDebugEventCallback, state any) ErrorCode
	DiagStopDebugging(rt RuntimeRef) (any, ErrorCode)
	DiagRequestAsyncBreak(rt RuntimeRef) ErrorCode
	DiagSetBreakpoint(scriptID, line, column uint32) (ValueRef, ErrorCode)
	DiagRemoveBreakpoint(breakpointID uint32) ErrorCode
	DiagGetBreakpoints() (ValueRef, ErrorCode)
	DiagGetScripts() (ValueRef, ErrorCode)
	DiagGetSource(scriptID uint32) (ValueRef, ErrorCode)
	DiagSetStepType(step DiagStepType) ErrorCode
}
