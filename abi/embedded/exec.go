package embedded

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/6over3/jsrt/abi"
)

// thrown carries a script value raised through a Go panic.
type thrown struct {
	value goja.Value
}

func (t *thrown) Error() string { return fmt.Sprintf("uncaught %s", t.value) }

// try runs f and converts script throws raised as panics into errors.
func try(f func()) (err error) {
	defer func() {
		switch x := recover().(type) {
		case nil:
		case *goja.InterruptedError:
			err = x
		case *goja.Exception:
			err = x
		case goja.Value:
			err = &thrown{value: x}
		case runtime.Error:
			panic(x)
		case error:
			err = x
		default:
			panic(x)
		}
	}()
	f()
	return nil
}

// exec runs script code in c, mapping failures to engine status codes and
// recording script exceptions as the runtime's pending exception.
func (e *Engine) exec(c *contextState, run func() (goja.Value, error)) (goja.Value, abi.ErrorCode) {
	if c.rt.disabled.Load() {
		return nil, abi.ErrorInDisabledState
	}
	e.fireAsyncBreak(c)
	c.evalBlocked = false

	var v goja.Value
	err := try(func() {
		var runErr error
		v, runErr = run()
		if runErr != nil {
			panic(runErr)
		}
	})
	if err == nil {
		return v, abi.NoError
	}
	return nil, e.fail(c, err)
}

// fail records err as the outcome of a script operation.
func (e *Engine) fail(c *contextState, err error) abi.ErrorCode {
	var (
		interrupted *goja.InterruptedError
		exception   *goja.Exception
		syntax      *goja.CompilerSyntaxError
		raised      *thrown
	)
	switch {
	case errors.As(err, &interrupted):
		e.log.Debug("script terminated", zap.Stringer("context", c.ref))
		return abi.ErrorScriptTerminated
	case c.evalBlocked:
		c.evalBlocked = false
		return abi.ErrorScriptEvalDisabled
	case errors.As(err, &exception):
		e.raise(c, exception.Value())
		return abi.ErrorScriptException
	case errors.As(err, &raised):
		e.raise(c, raised.value)
		return abi.ErrorScriptException
	case errors.As(err, &syntax):
		e.setException(c, e.errorValue(c, "SyntaxError", syntax.Error()))
		return abi.ErrorScriptCompile
	default:
		e.raise(c, e.errorValue(c, "Error", err.Error()))
		return abi.ErrorScriptException
	}
}

// raise reports an uncaught exception to the debugger, then makes it the
// pending exception.
func (e *Engine) raise(c *contextState, v goja.Value) {
	e.fireEvent(c, abi.DiagEventRuntimeException, map[string]any{
		"exception": v,
		"uncaught":  true,
	})
	e.setException(c, v)
}

// errorValue builds an error object of the named constructor.
func (e *Engine) errorValue(c *contextState, ctor, message string) goja.Value {
	var v goja.Value
	if err := try(func() {
		obj, err := c.vm.New(c.vm.Get(ctor), c.vm.ToValue(message))
		if err != nil {
			panic(err)
		}
		v = obj
	}); err != nil {
		return c.vm.ToValue(message)
	}
	return v
}

// helperSources are small functions compiled once per context. Routing
// property operations through script keeps getters, proxies, symbols and
// strict-mode failures on the engine's own semantics.
var helperSources = map[string]string{
	"tag":            `(function (v) { return Object.prototype.toString.call(v); })`,
	"instanceof":     `(function (v, c) { return v instanceof c; })`,
	"get":            `(function (o, k) { return o[k]; })`,
	"set":            `(function (o, k, v) { o[k] = v; })`,
	"setStrict":      `(function (o, k, v) { "use strict"; o[k] = v; })`,
	"has":            `(function (o, k) { return k in o; })`,
	"delete":         `(function (o, k) { return delete o[k]; })`,
	"deleteStrict":   `(function (o, k) { "use strict"; return delete o[k]; })`,
	"define":         `(function (o, k, d) { return Reflect.defineProperty(o, k, d); })`,
	"descriptor":     `(function (o, k) { return Object.getOwnPropertyDescriptor(o, k); })`,
	"ownNames":       `(function (o) { return Object.getOwnPropertyNames(o); })`,
	"setName":        `(function (f, n) { Object.defineProperty(f, "name", { value: n, configurable: true }); return f; })`,
	"typedArrayInfo": `(function (a) { return [a.buffer, a.byteOffset, a.byteLength, a.constructor.name]; })`,
	// Host functions are ordinary script functions around a Go dispatcher,
	// so call and construct semantics stay the engine's own.
	"native": `(function (dispatch) {
		return function () {
			return dispatch(new.target !== undefined, this, Array.prototype.slice.call(arguments));
		};
	})`,
}

// helper returns the named helper function of c.
func (e *Engine) helper(c *contextState, name string) goja.Callable {
	if fn, ok := c.helpers[name]; ok {
		return fn
	}
	v, err := c.vm.RunString(helperSources[name])
	if err != nil {
		panic(fmt.Sprintf("embedded: compile helper %s: %v", name, err))
	}
	fn, ok := goja.AssertFunction(v)
	if !ok {
		panic("embedded: helper " + name + " is not a function")
	}
	c.helpers[name] = fn
	return fn
}

// call invokes a helper through exec.
func (e *Engine) call(c *contextState, name string, args ...goja.Value) (goja.Value, abi.ErrorCode) {
	return e.exec(c, func() (goja.Value, error) {
		return e.helper(c, name)(goja.Undefined(), args...)
	})
}
