package abi

// NativeFunction is a host function callable from script. args[0] is the
// this value; the remaining entries are the call arguments. Returning
// InvalidValue yields undefined unless an exception was set.
type NativeFunction func(callee ValueRef, isConstructCall bool, args []ValueRef, state any) ValueRef

// PromiseContinuationCallback receives promise jobs the host must run later.
type PromiseContinuationCallback func(task ValueRef, state any)

// FetchImportedModuleCallback resolves a static or dynamic import inside a
// module. The host returns the record for specifier; it must return NoError
// on success.
type FetchImportedModuleCallback func(referencing ModuleRef, specifier ValueRef) (ModuleRef, ErrorCode)

// FetchImportedModuleFromScriptCallback resolves a dynamic import issued by
// a classic script identified by its source cookie.
type FetchImportedModuleFromScriptCallback func(cookie SourceContext, specifier ValueRef) (ModuleRef, ErrorCode)

// NotifyModuleReadyCallback reports that the module graph under referencing
// is fully parsed. exception is InvalidValue on success.
type NotifyModuleReadyCallback func(referencing ModuleRef, exception ValueRef) ErrorCode

// DiagDebugEventCallback receives debug protocol events. eventData is an
// object created in the context that produced the event.
type DiagDebugEventCallback func(event DiagDebugEvent, eventData ValueRef, state any)
