package jsrt

import (
	"fmt"

	"github.com/6over3/jsrt/abi"
)

// SourceContext is the cookie that identifies a script to the debugger. The
// zero value is SourceContextNone.
type SourceContext struct {
	// n is the cookie plus one, so that the zero value means "none".
	n uintptr
}

// SourceContextNone marks a script without a cookie.
var SourceContextNone = SourceContext{}

// SourceContextFrom returns the cookie with value x.
func SourceContextFrom(x uintptr) SourceContext {
	if abi.SourceContext(x) == abi.SourceContextNone {
		return SourceContextNone
	}
	return SourceContext{n: x + 1}
}

func sourceContextOf(raw abi.SourceContext) SourceContext {
	return SourceContextFrom(uintptr(raw))
}

// IsValid reports whether s is a real cookie.
func (s SourceContext) IsValid() bool { return s.n != 0 }

// Value returns the cookie. It panics for SourceContextNone.
func (s SourceContext) Value() uintptr {
	if !s.IsValid() {
		panic("jsrt: Value of SourceContextNone")
	}
	return s.n - 1
}

// Equal reports whether s and o are the same cookie.
func (s SourceContext) Equal(o SourceContext) bool { return s.n == o.n }

// Inc returns the next cookie.
func (s SourceContext) Inc() SourceContext { return s.Add(1) }

// Dec returns the previous cookie.
func (s SourceContext) Dec() SourceContext { return s.Sub(1) }

// Add returns s advanced by d. Arithmetic on SourceContextNone treats it
// as the cookie before zero.
func (s SourceContext) Add(d uintptr) SourceContext {
	return SourceContextFrom(s.n - 1 + d)
}

// Sub returns s moved back by d.
func (s SourceContext) Sub(d uintptr) SourceContext {
	return SourceContextFrom(s.n - 1 - d)
}

func (s SourceContext) raw() abi.SourceContext {
	if !s.IsValid() {
		return abi.SourceContextNone
	}
	return abi.SourceContext(s.n - 1)
}

func (s SourceContext) String() string {
	if !s.IsValid() {
		return "SourceContext(none)"
	}
	return fmt.Sprintf("SourceContext(%d)", s.n-1)
}
