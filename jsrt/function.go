package jsrt

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/6over3/jsrt/abi"
)

// FunctionCall carries the arguments of a host function invocation.
type FunctionCall struct {
	// Context is the context the call arrived in. It is current for the
	// duration of the call.
	Context     *Context
	Callee      Value
	This        Value
	Args        []Value
	IsConstruct bool
}

// Arg returns the i-th argument, or the invalid Value when absent.
func (fc FunctionCall) Arg(i int) Value {
	if i < 0 || i >= len(fc.Args) {
		return Value{}
	}
	return fc.Args[i]
}

// Function is a host function callable from script. Returning an invalid
// Value yields undefined. A returned error is thrown into script: a
// script Error rethrows its exception, anything else becomes an Error
// object carrying the message.
type Function func(call FunctionCall) (Value, error)

// NewFunction exposes fn to script. An empty name creates an anonymous
// function.
func (c *Context) NewFunction(name string, fn Function) (Value, error) {
	if err := c.active(); err != nil {
		return Value{}, err
	}
	if fn == nil {
		return Value{}, usageError(abi.ErrorNullArgument, "function is nil")
	}
	native := func(callee abi.ValueRef, construct bool, args []abi.ValueRef, _ any) abi.ValueRef {
		return c.rt.invoke(c, name, fn, callee, construct, args)
	}
	if name == "" {
		v, code := c.rt.s.CreateFunction(native, nil)
		return c.wrap(v), c.translate(code)
	}
	str, code := c.rt.s.PointerToString(name)
	if code != abi.NoError {
		return Value{}, c.translate(code)
	}
	v, code := c.rt.s.CreateNamedFunction(str, native, nil)
	return c.wrap(v), c.translate(code)
}

// invoke is the trampoline between the engine and a host Function.
func (rt *Runtime) invoke(home *Context, name string, fn Function, callee abi.ValueRef, construct bool, args []abi.ValueRef) (ret abi.ValueRef) {
	c := rt.CurrentContext()
	if c == nil {
		c = home
	}
	call := FunctionCall{Context: c, Callee: c.wrap(callee), IsConstruct: construct}
	if len(args) > 0 {
		call.This = c.wrap(args[0])
		call.Args = make([]Value, len(args)-1)
		for i, a := range args[1:] {
			call.Args[i] = c.wrap(a)
		}
	}

	defer func() {
		if r := recover(); r != nil {
			rt.log.Error("host function panicked", zap.String("function", name), zap.Any("panic", r))
			c.throw(fmt.Errorf("host function %q panicked: %v", name, r))
			ret = abi.InvalidValue
		}
	}()
	res, err := fn(call)
	if err != nil {
		c.throw(err)
		return abi.InvalidValue
	}
	if res.IsValid() && res.ctx != nil && res.ctx.rt != rt {
		c.throw(usageError(abi.ErrorInvalidArgument, "host function %q returned a value of another runtime", name))
		return abi.InvalidValue
	}
	return res.ref
}

// throw makes err the pending exception of the runtime.
func (c *Context) throw(err error) {
	s := c.rt.s
	var je *Error
	if errors.As(err, &je) && je.Exception.IsValid() {
		if code := s.SetException(je.Exception.ref); code != abi.NoError {
			c.rt.log.Warn("rethrowing script exception failed", zap.Stringer("code", code))
		}
		return
	}
	msg, code := s.PointerToString(err.Error())
	if code == abi.NoError {
		var exc abi.ValueRef
		if exc, code = s.CreateError(abi.ErrorTypeError, msg); code == abi.NoError {
			code = s.SetException(exc)
		}
	}
	if code != abi.NoError {
		c.rt.log.Warn("converting host error to exception failed", zap.Error(err), zap.Stringer("code", code))
	}
}

// SetPromiseContinuation registers the callback that receives promise jobs
// for the context. The host must call each task, with undefined as this,
// once the current script has finished.
func (c *Context) SetPromiseContinuation(fn func(task Value)) error {
	if err := c.active(); err != nil {
		return err
	}
	if fn == nil {
		return codeError(c.rt.s.SetPromiseContinuationCallback(nil, nil))
	}
	cb := func(task abi.ValueRef, _ any) {
		cur := c.rt.CurrentContext()
		if cur == nil {
			cur = c
		}
		fn(cur.wrap(task))
	}
	return codeError(c.rt.s.SetPromiseContinuationCallback(cb, nil))
}

// FromBool returns the boolean for b.
func (c *Context) FromBool(b bool) (Value, error) {
	return c.value(func() (abi.ValueRef, abi.ErrorCode) { return c.rt.s.BoolToBoolean(b) })
}

// FromInt32 returns the number for n.
func (c *Context) FromInt32(n int32) (Value, error) {
	return c.value(func() (abi.ValueRef, abi.ErrorCode) { return c.rt.s.IntToNumber(n) })
}

// FromFloat64 returns the number for f.
func (c *Context) FromFloat64(f float64) (Value, error) {
	return c.value(func() (abi.ValueRef, abi.ErrorCode) { return c.rt.s.DoubleToNumber(f) })
}

// FromString returns the string for s.
func (c *Context) FromString(s string) (Value, error) {
	return c.value(func() (abi.ValueRef, abi.ErrorCode) { return c.rt.s.PointerToString(s) })
}

// NewObject returns a new empty object.
func (c *Context) NewObject() (Value, error) {
	return c.value(c.rt.s.CreateObject)
}

// NewArray returns a new array of the given length.
func (c *Context) NewArray(length uint32) (Value, error) {
	return c.value(func() (abi.ValueRef, abi.ErrorCode) { return c.rt.s.CreateArray(length) })
}

// NewError returns a new Error with message.
func (c *Context) NewError(message string) (Value, error) {
	return c.NewErrorOf(abi.ErrorTypeError, message)
}

// NewRangeError returns a new RangeError with message.
func (c *Context) NewRangeError(message string) (Value, error) {
	return c.NewErrorOf(abi.ErrorTypeRange, message)
}

// NewReferenceError returns a new ReferenceError with message.
func (c *Context) NewReferenceError(message string) (Value, error) {
	return c.NewErrorOf(abi.ErrorTypeReference, message)
}

// NewSyntaxError returns a new SyntaxError with message.
func (c *Context) NewSyntaxError(message string) (Value, error) {
	return c.NewErrorOf(abi.ErrorTypeSyntax, message)
}

// NewTypeError returns a new TypeError with message.
func (c *Context) NewTypeError(message string) (Value, error) {
	return c.NewErrorOf(abi.ErrorTypeType, message)
}

// NewURIError returns a new URIError with message.
func (c *Context) NewURIError(message string) (Value, error) {
	return c.NewErrorOf(abi.ErrorTypeURI, message)
}

// NewErrorOf returns a new error object of the given type.
func (c *Context) NewErrorOf(kind abi.ErrorType, message string) (Value, error) {
	msg, err := c.FromString(message)
	if err != nil {
		return Value{}, err
	}
	return c.value(func() (abi.ValueRef, abi.ErrorCode) { return c.rt.s.CreateError(kind, msg.ref) })
}

// NewSymbol returns a new symbol. An empty description creates a symbol
// without one.
func (c *Context) NewSymbol(description string) (Value, error) {
	desc := Value{}
	if description != "" {
		var err error
		if desc, err = c.FromString(description); err != nil {
			return Value{}, err
		}
	}
	return c.value(func() (abi.ValueRef, abi.ErrorCode) { return c.rt.s.CreateSymbol(desc.ref) })
}

// NewArrayBuffer returns a zeroed ArrayBuffer.
func (c *Context) NewArrayBuffer(byteLength uint32) (Value, error) {
	return c.value(func() (abi.ValueRef, abi.ErrorCode) { return c.rt.s.CreateArrayBuffer(byteLength) })
}

// NewTypedArray returns a typed array. With an invalid buffer the array
// gets its own storage of length elements; otherwise it views buffer from
// byteOffset.
func (c *Context) NewTypedArray(kind abi.TypedArrayType, buffer Value, byteOffset, length uint32) (Value, error) {
	if err := c.active(); err != nil {
		return Value{}, err
	}
	if buffer.IsValid() {
		if err := c.owned(buffer); err != nil {
			return Value{}, err
		}
	}
	v, code := c.rt.s.CreateTypedArray(kind, buffer.ref, byteOffset, length)
	return c.wrap(v), c.translate(code)
}
