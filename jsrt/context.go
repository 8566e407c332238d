package jsrt

import (
	"runtime"
	"sync"

	"go.uber.org/zap"

	"github.com/6over3/jsrt/abi"
	"github.com/6over3/jsrt/internal/goid"
)

// Context is an execution environment with its own global object.
type Context struct {
	rt  *Runtime
	ref abi.ContextRef

	mu      sync.Mutex
	invalid bool
}

// Runtime returns the runtime that owns the context.
func (c *Context) Runtime() *Runtime { return c.rt }

func (c *Context) String() string { return c.ref.String() }

func (c *Context) invalidate() {
	c.mu.Lock()
	c.invalid = true
	c.mu.Unlock()
}

func (c *Context) valid() error {
	if c == nil {
		return usageError(abi.ErrorInvalidArgument, "context is nil")
	}
	if err := c.rt.valid(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.invalid {
		return usageError(abi.ErrorInvalidArgument, "%s was released", c.ref)
	}
	return nil
}

// active checks that c is valid and current on the calling goroutine.
func (c *Context) active() error {
	if err := c.valid(); err != nil {
		return err
	}
	if !c.rt.lock.owns(goid.Get(), c.ref) {
		return usageError(abi.ErrorNoCurrentContext, "%s is not current on this goroutine", c.ref)
	}
	return nil
}

// IsCurrent reports whether c is current on the calling goroutine.
func (c *Context) IsCurrent() bool {
	return c.valid() == nil && c.rt.lock.owns(goid.Get(), c.ref)
}

func (c *Context) translate(code abi.ErrorCode) error {
	return translate(c, code)
}

func (c *Context) wrap(ref abi.ValueRef) Value {
	if !ref.IsValid() {
		return Value{}
	}
	return Value{ref: ref, ctx: c}
}

// describe renders an exception for error messages. Failures are cleared
// and yield "".
func (c *Context) describe(exc abi.ValueRef) string {
	s := c.rt.s
	str, code := s.ConvertValueToString(exc)
	if code != abi.NoError {
		if code == abi.ErrorScriptException {
			s.GetAndClearException()
		}
		return ""
	}
	text, code := s.StringToPointer(str)
	if code != abi.NoError {
		return ""
	}
	return text
}

// RequestScope runs action with c current. When the calling goroutine
// already has c current the action runs in place; otherwise it is queued
// on the runtime's worker, which enters c, runs the action and leaves c
// before the call returns. Requesting a different context while one is
// current on the calling goroutine is a usage error.
//
// Errors from the action and from leaving the context are combined. A
// panic in the action is re-raised on the calling goroutine.
func (c *Context) RequestScope(action func() error) error {
	if err := c.valid(); err != nil {
		return err
	}
	if key, held := c.rt.lock.holder(goid.Get()); held {
		if key == c.ref {
			return action()
		}
		return usageError(abi.ErrorInvalidContext,
			"scope for %s requested while %s is current on this goroutine", c.ref, key)
	}
	if ce := c.rt.log.Check(zap.DebugLevel, "scope queued"); ce != nil {
		ce.Write(zap.Stringer("context", c.ref))
	}
	return c.rt.sched.submit(c.ref, action)
}

// RequestScopeValue is RequestScope for actions that produce a result.
func RequestScopeValue[T any](c *Context, action func() (T, error)) (T, error) {
	var res T
	err := c.RequestScope(func() error {
		var err error
		res, err = action()
		return err
	})
	return res, err
}

// Scope is a context made current directly on the calling goroutine.
type Scope struct {
	c      *Context
	g      int64
	nested bool
	done   bool
}

// Enter makes c current on the calling goroutine, waiting for other
// holders first, and locks the goroutine to its OS thread until Exit.
// Entering a context that is already current nests.
func (c *Context) Enter() (*Scope, error) {
	if err := c.valid(); err != nil {
		return nil, err
	}
	g := goid.Get()
	if _, held := c.rt.lock.holder(g); held {
		if err := c.rt.lock.acquire(g, c.ref); err != nil {
			return nil, err
		}
		return &Scope{c: c, g: g, nested: true}, nil
	}

	runtime.LockOSThread()
	if err := c.rt.lock.acquire(g, c.ref); err != nil {
		runtime.UnlockOSThread()
		return nil, err
	}
	if code := c.rt.s.SetCurrentContext(c.ref); code != abi.NoError {
		c.rt.lock.release(g)
		runtime.UnlockOSThread()
		return nil, codeError(code)
	}
	return &Scope{c: c, g: g}, nil
}

// Context returns the entered context.
func (sc *Scope) Context() *Context { return sc.c }

// Exit leaves the scope. It must be called on the goroutine that entered;
// a second call is a no-op.
func (sc *Scope) Exit() error {
	if sc.done {
		return nil
	}
	if goid.Get() != sc.g {
		return usageError(abi.ErrorWrongThread, "scope for %s exited from another goroutine", sc.c.ref)
	}
	sc.done = true
	if sc.nested {
		sc.c.rt.lock.release(sc.g)
		return nil
	}
	code := sc.c.rt.s.SetCurrentContext(abi.InvalidContext)
	sc.c.rt.lock.release(sc.g)
	runtime.UnlockOSThread()
	return codeError(code)
}

// AddRef adds a reference to the context and returns the new count.
func (c *Context) AddRef() (uint32, error) {
	if err := c.valid(); err != nil {
		return 0, err
	}
	var n uint32
	err := c.rt.exclusive(func() error {
		var code abi.ErrorCode
		n, code = c.rt.s.AddRef(abi.Ref(c.ref))
		return codeError(code)
	})
	return n, err
}

// Release drops a reference and returns the new count. At zero the
// context becomes invalid.
func (c *Context) Release() (uint32, error) {
	if err := c.valid(); err != nil {
		return 0, err
	}
	var n uint32
	err := c.rt.exclusive(func() error {
		var code abi.ErrorCode
		n, code = c.rt.s.Release(abi.Ref(c.ref))
		return codeError(code)
	})
	if err == nil && n == 0 {
		c.invalidate()
		c.rt.mu.Lock()
		delete(c.rt.contexts, c.ref)
		c.rt.mu.Unlock()
		c.rt.log.Debug("context released", zap.Stringer("context", c.ref))
	}
	return n, err
}

// ParseScript compiles source without running it and returns a function
// that runs it.
func (c *Context) ParseScript(source string, cookie SourceContext, sourceURL string) (Value, error) {
	if err := c.active(); err != nil {
		return Value{}, err
	}
	v, code := c.rt.s.ParseScript(source, cookie.raw(), sourceURL)
	return c.wrap(v), c.translate(code)
}

// RunScript compiles and runs source, returning its completion value.
func (c *Context) RunScript(source string, cookie SourceContext, sourceURL string) (Value, error) {
	if err := c.active(); err != nil {
		return Value{}, err
	}
	v, code := c.rt.s.RunScript(source, cookie.raw(), sourceURL)
	return c.wrap(v), c.translate(code)
}

// SerializeScript compiles source into a buffer that ParseSerializedScript
// and RunSerializedScript accept together with the same source.
func (c *Context) SerializeScript(source string) ([]byte, error) {
	if err := c.active(); err != nil {
		return nil, err
	}
	n, code := c.rt.s.SerializeScript(source, nil)
	if code != abi.NoError {
		return nil, c.translate(code)
	}
	buf := make([]byte, n)
	n, code = c.rt.s.SerializeScript(source, buf)
	if code != abi.NoError {
		return nil, c.translate(code)
	}
	return buf[:n], nil
}

// ParseSerializedScript loads a serialized script without running it.
func (c *Context) ParseSerializedScript(source string, buffer []byte, cookie SourceContext, sourceURL string) (Value, error) {
	if err := c.active(); err != nil {
		return Value{}, err
	}
	v, code := c.rt.s.ParseSerializedScript(source, buffer, cookie.raw(), sourceURL)
	return c.wrap(v), c.translate(code)
}

// RunSerializedScript runs a serialized script.
func (c *Context) RunSerializedScript(source string, buffer []byte, cookie SourceContext, sourceURL string) (Value, error) {
	if err := c.active(); err != nil {
		return Value{}, err
	}
	v, code := c.rt.s.RunSerializedScript(source, buffer, cookie.raw(), sourceURL)
	return c.wrap(v), c.translate(code)
}

// Idle performs idle-time work and returns the tick count, in
// milliseconds, at which it should be called next. The runtime must have
// been created with abi.RuntimeAttributeEnableIdleProcessing.
func (c *Context) Idle() (uint32, error) {
	if err := c.active(); err != nil {
		return 0, err
	}
	next, code := c.rt.s.Idle()
	return next, c.translate(code)
}

// GlobalObject returns the context's global object.
func (c *Context) GlobalObject() (Value, error) {
	return c.value(c.rt.s.GetGlobalObject)
}

// Undefined returns the undefined value.
func (c *Context) Undefined() (Value, error) {
	return c.value(c.rt.s.GetUndefinedValue)
}

// Null returns the null value.
func (c *Context) Null() (Value, error) {
	return c.value(c.rt.s.GetNullValue)
}

func (c *Context) value(get func() (abi.ValueRef, abi.ErrorCode)) (Value, error) {
	if err := c.active(); err != nil {
		return Value{}, err
	}
	v, code := get()
	return c.wrap(v), c.translate(code)
}

// HasException reports whether the runtime has a pending exception.
func (c *Context) HasException() (bool, error) {
	if err := c.active(); err != nil {
		return false, err
	}
	has, code := c.rt.s.HasException()
	return has, codeError(code)
}

// GetAndClearException returns and clears the pending exception. It is a
// usage error when none is pending.
func (c *Context) GetAndClearException() (Value, error) {
	if err := c.active(); err != nil {
		return Value{}, err
	}
	v, code := c.rt.s.GetAndClearException()
	return c.wrap(v), codeError(code)
}

// SetException makes v the pending exception. Script resumes unwinding
// with it when control returns to the engine.
func (c *Context) SetException(v Value) error {
	if err := c.active(); err != nil {
		return err
	}
	if err := c.owned(v); err != nil {
		return err
	}
	return codeError(c.rt.s.SetException(v.ref))
}

// owned checks that v is a valid value of c.
func (c *Context) owned(v Value) error {
	if !v.IsValid() {
		return usageError(abi.ErrorInvalidArgument, "invalid value handle")
	}
	if v.ctx != nil && v.ctx.rt != c.rt {
		return usageError(abi.ErrorInvalidArgument, "value belongs to another runtime")
	}
	return nil
}
