package embedded

import (
	"strconv"

	"github.com/dop251/goja"

	"github.com/6over3/jsrt/abi"
)

type nativeBinding struct {
	fn    abi.NativeFunction
	state any
}

// CreateFunction implements abi.Surface.
func (e *Engine) CreateFunction(fn abi.NativeFunction, state any) (abi.ValueRef, abi.ErrorCode) {
	c, code := e.active()
	if code != abi.NoError {
		return abi.InvalidValue, code
	}
	obj, code := e.newNative(c, fn, state)
	if code != abi.NoError {
		return abi.InvalidValue, code
	}
	return e.wrap(c, obj, 0)
}

// CreateNamedFunction implements abi.Surface.
func (e *Engine) CreateNamedFunction(name abi.ValueRef, fn abi.NativeFunction, state any) (abi.ValueRef, abi.ErrorCode) {
	c, code := e.active()
	if code != abi.NoError {
		return abi.InvalidValue, code
	}
	n, code := e.value(c, name)
	if code != abi.NoError {
		return abi.InvalidValue, code
	}
	if e.typeOf(c, n) != abi.TypeString {
		return abi.InvalidValue, abi.ErrorInvalidArgument
	}
	obj, code := e.newNative(c, fn, state)
	if code != abi.NoError {
		return abi.InvalidValue, code
	}
	if _, code := e.call(c, "setName", obj, n); code != abi.NoError {
		return abi.InvalidValue, code
	}
	return e.wrap(c, obj, 0)
}

func (e *Engine) newNative(c *contextState, fn abi.NativeFunction, state any) (*goja.Object, abi.ErrorCode) {
	if fn == nil {
		return nil, abi.ErrorNullArgument
	}
	nb := &nativeBinding{fn: fn, state: state}
	var callee *goja.Object
	dispatch := func(call goja.FunctionCall) goja.Value {
		construct := call.Argument(0).ToBoolean()
		this := call.Argument(1)
		list := call.Argument(2).ToObject(c.vm)
		n := int(list.Get("length").ToInteger())
		args := make([]goja.Value, n)
		for i := range args {
			args[i] = list.Get(strconv.Itoa(i))
		}
		return e.invoke(c, nb, callee, construct, this, args)
	}
	out, code := e.call(c, "native", c.vm.ToValue(dispatch))
	if code != abi.NoError {
		return nil, code
	}
	callee = out.(*goja.Object)
	return callee, abi.NoError
}

// invoke runs a host function for a script call. A pending exception set by
// the host is thrown into the script.
func (e *Engine) invoke(c *contextState, nb *nativeBinding, callee *goja.Object, construct bool, this goja.Value, args []goja.Value) goja.Value {
	refs := make([]abi.ValueRef, 0, len(args)+1)
	for _, v := range append([]goja.Value{this}, args...) {
		ref, code := e.wrap(c, v, 0)
		if code != abi.NoError {
			panic(c.vm.NewTypeError(code.String()))
		}
		refs = append(refs, ref)
	}
	self, code := e.wrap(c, callee, 0)
	if code != abi.NoError {
		panic(c.vm.NewTypeError(code.String()))
	}

	ret := nb.fn(self, construct, refs, nb.state)

	if exc, ok := e.takeException(c); ok {
		panic(exc)
	}
	if !ret.IsValid() {
		return goja.Undefined()
	}
	v, code := e.value(c, ret)
	if code != abi.NoError {
		panic(c.vm.NewTypeError("host function returned an unusable value: " + code.String()))
	}
	return v
}

// callArgs splits a call argument list into this and the arguments proper.
func (e *Engine) callArgs(c *contextState, args []abi.ValueRef) (goja.Value, []goja.Value, abi.ErrorCode) {
	if len(args) == 0 {
		return nil, nil, abi.ErrorInvalidArgument
	}
	values := make([]goja.Value, len(args))
	for i, ref := range args {
		v, code := e.value(c, ref)
		if code != abi.NoError {
			return nil, nil, code
		}
		values[i] = v
	}
	return values[0], values[1:], abi.NoError
}

// CallFunction implements abi.Surface. args[0] is the this value.
func (e *Engine) CallFunction(fn abi.ValueRef, args []abi.ValueRef) (abi.ValueRef, abi.ErrorCode) {
	c, code := e.active()
	if code != abi.NoError {
		return abi.InvalidValue, code
	}
	fv, code := e.value(c, fn)
	if code != abi.NoError {
		return abi.InvalidValue, code
	}
	callable, ok := goja.AssertFunction(fv)
	if !ok {
		return abi.InvalidValue, abi.ErrorInvalidArgument
	}
	this, rest, code := e.callArgs(c, args)
	if code != abi.NoError {
		return abi.InvalidValue, code
	}
	out, code := e.exec(c, func() (goja.Value, error) {
		return callable(this, rest...)
	})
	if code != abi.NoError {
		return abi.InvalidValue, code
	}
	return e.wrap(c, out, 0)
}

// ConstructObject implements abi.Surface. args[0] is ignored as the this
// value, as for a construct call.
func (e *Engine) ConstructObject(fn abi.ValueRef, args []abi.ValueRef) (abi.ValueRef, abi.ErrorCode) {
	c, code := e.active()
	if code != abi.NoError {
		return abi.InvalidValue, code
	}
	fv, code := e.value(c, fn)
	if code != abi.NoError {
		return abi.InvalidValue, code
	}
	if _, ok := goja.AssertFunction(fv); !ok {
		return abi.InvalidValue, abi.ErrorInvalidArgument
	}
	_, rest, code := e.callArgs(c, args)
	if code != abi.NoError {
		return abi.InvalidValue, code
	}
	out, code := e.exec(c, func() (goja.Value, error) {
		return c.vm.New(fv, rest...)
	})
	if code != abi.NoError {
		return abi.InvalidValue, code
	}
	return e.wrap(c, out, 0)
}

// SetPromiseContinuationCallback implements abi.Surface. The embedded
// engine drains its job queue itself when the outermost script call
// returns; the callback is stored but never receives tasks.
func (e *Engine) SetPromiseContinuationCallback(cb abi.PromiseContinuationCallback, state any) abi.ErrorCode {
	c, code := e.active()
	if code != abi.NoError {
		return code
	}
	e.mu.Lock()
	c.promise = cb
	c.promiseState = state
	e.mu.Unlock()
	return abi.NoError
}
