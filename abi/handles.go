// Package abi describes the native JsRT call surface: status codes, opaque
// handle tokens, enumerations, callback signatures and the Surface
// interface that every engine implementation satisfies.
//
// Tokens are pointer-sized identifiers handed out by the engine. They carry
// no behavior of their own; the jsrt package wraps them in safe handles.
package abi

import "fmt"

// Ref is any reference-counted engine object (a value or a context).
type Ref uintptr

// RuntimeRef identifies an engine runtime (JsRuntimeHandle).
type RuntimeRef uintptr

// IsValid reports whether the token is non-zero.
func (r RuntimeRef) IsValid() bool { return r != 0 }

func (r RuntimeRef) String() string { return fmt.Sprintf("RuntimeRef(0x%x)", uintptr(r)) }

// ContextRef identifies an execution context (JsContextRef).
type ContextRef uintptr

// InvalidContext is the "no context" token passed to SetCurrentContext.
const InvalidContext ContextRef = 0

// IsValid reports whether the token is non-zero.
func (c ContextRef) IsValid() bool { return c != 0 }

func (c ContextRef) String() string { return fmt.Sprintf("ContextRef(0x%x)", uintptr(c)) }

// ValueRef identifies any engine value (JsValueRef).
type ValueRef uintptr

// InvalidValue is the null value token. It is not the JavaScript null.
const InvalidValue ValueRef = 0

// IsValid reports whether the token is non-zero.
func (v ValueRef) IsValid() bool { return v != 0 }

func (v ValueRef) String() string { return fmt.Sprintf("ValueRef(0x%x)", uintptr(v)) }

// PropertyIDRef identifies a property name or symbol within one runtime.
type PropertyIDRef uintptr

// IsValid reports whether the token is non-zero.
func (p PropertyIDRef) IsValid() bool { return p != 0 }

func (p PropertyIDRef) String() string { return fmt.Sprintf("PropertyIDRef(0x%x)", uintptr(p)) }

// ModuleRef identifies a module record (JsModuleRecord).
type ModuleRef uintptr

const (
	// InvalidModule is the null module token.
	InvalidModule ModuleRef = 0

	// RootModule is the referencing module of a top-level import. Native
	// surfaces translate it to a null pointer at the boundary; it is kept
	// distinct from InvalidModule so the binding can tell "root" from
	// "missing".
	RootModule ModuleRef = ^ModuleRef(0)
)

// IsValid reports whether the token names a real module record.
func (m ModuleRef) IsValid() bool { return m != InvalidModule && m != RootModule }

// IsRoot reports whether the token is the root sentinel.
func (m ModuleRef) IsRoot() bool { return m == RootModule }

func (m ModuleRef) String() string {
	if m == RootModule {
		return "ModuleRef(root)"
	}
	return fmt.Sprintf("ModuleRef(0x%x)", uintptr(m))
}

// SourceContext is the debugging cookie attached to parsed scripts.
type SourceContext uintptr

// SourceContextNone marks a script without a source cookie.
const SourceContextNone SourceContext = ^SourceContext(0)

func (s SourceContext) String() string {
	if s == SourceContextNone {
		return "SourceContext(none)"
	}
	return fmt.Sprintf("SourceContext(%d)", uintptr(s))
}
