// Package wasm implements abi.Surface on top of a JsRT engine compiled to
// wasm32 and executed with wazero.
//
// # Guest contract
//
// The guest module exports every JsRT entry point under its native name
// (JsCreateRuntime, JsRunScript, ...). It is built with -fshort-wchar, so
// every wchar_t string crossing the boundary is null-terminated UTF-16LE.
// Pointers, size_t and handles are 32 bits wide. A guest may omit entry
// points it does not support; calling one yields JsErrorNotImplemented.
//
// In addition the guest exports:
//
//	malloc(size i32) i32
//	free(ptr i32)
//	jsrt_callback_ptr(kind i32) i32
//
// jsrt_callback_ptr returns the function-table index of a guest shim for
// the given callback kind. Each shim forwards its arguments, plus the
// callbackState it was registered with, to the matching import of the
// "jsrt" host module:
//
//	native_function(callee, isConstruct, argv, argc, state i32) i32
//	promise_continuation(task, state i32)
//	fetch_imported_module(referencing, specifier, out i32) i32
//	fetch_imported_module_from_script(cookie, specifier, out i32) i32
//	notify_module_ready(referencing, exception i32) i32
//	diag_debug_event(event, data, state i32)
//
// Memory may be exported by the guest or imported from "env.memory"; the
// host provides the latter.
package wasm
