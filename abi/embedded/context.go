package embedded

import (
	"errors"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/console"
	"github.com/dop251/goja_nodejs/require"
	"go.uber.org/zap"

	"github.com/6over3/jsrt/abi"
	"github.com/6over3/jsrt/internal/goid"
)

var errExecutionDisabled = errors.New("script execution disabled")

type contextState struct {
	ref  abi.ContextRef
	rt   *runtimeState
	vm   *goja.Runtime
	refs uint32
	dead bool
	// referenced is set once the host takes its first reference.
	referenced bool

	interned map[*goja.Object]abi.ValueRef

	undefined  abi.ValueRef
	null       abi.ValueRef
	trueValue  abi.ValueRef
	falseValue abi.ValueRef
	global     abi.ValueRef

	helpers map[string]goja.Callable

	promise      abi.PromiseContinuationCallback
	promiseState any

	hooks       moduleHooks
	evalBlocked bool
}

// newContext builds the script side of a context. It does not take e.mu.
func (e *Engine) newContext(rt *runtimeState, ref abi.ContextRef) *contextState {
	vm := goja.New()
	c := &contextState{
		ref:      ref,
		rt:       rt,
		vm:       vm,
		interned: make(map[*goja.Object]abi.ValueRef),
		helpers:  make(map[string]goja.Callable),
	}

	registry := require.NewRegistry(require.WithLoader(func(string) ([]byte, error) {
		return nil, require.ModuleFileDoesNotExistError
	}))
	registry.RegisterNativeModule(console.ModuleName, console.RequireWithPrinter(&printer{
		log: e.log.With(zap.Stringer("context", ref)),
	}))
	registry.Enable(vm)
	console.Enable(vm)
	// Scripts get console only; module loading goes through module records.
	vm.GlobalObject().Delete("require")

	if rt.attrs.Has(abi.RuntimeAttributeDisableEval) {
		c.blockEval()
	}
	return c
}

// blockEval replaces the string-compiling globals with functions that fail
// and flag the failure as an eval violation.
func (c *contextState) blockEval() {
	blocked := func(goja.FunctionCall) goja.Value {
		c.evalBlocked = true
		panic(c.vm.NewTypeError("code generation from strings is disabled"))
	}
	original := c.vm.Get("Function").ToObject(c.vm)
	replacement := c.vm.ToValue(blocked).ToObject(c.vm)
	_ = replacement.Set("prototype", original.Get("prototype"))
	_ = c.vm.Set("eval", blocked)
	_ = c.vm.Set("Function", replacement)
}

// CreateContext implements abi.Surface.
func (e *Engine) CreateContext(rtRef abi.RuntimeRef) (abi.ContextRef, abi.ErrorCode) {
	e.mu.Lock()
	rt, code := e.runtime(rtRef)
	if code != abi.NoError {
		e.mu.Unlock()
		return abi.InvalidContext, code
	}
	if rt.thread != 0 && rt.thread != goid.Get() {
		e.mu.Unlock()
		return abi.InvalidContext, abi.ErrorWrongThread
	}
	if !e.charge(rt, contextBaseline) {
		e.mu.Unlock()
		return abi.InvalidContext, abi.ErrorOutOfMemory
	}
	e.mu.Unlock()

	ref := abi.ContextRef(e.token())
	c := e.newContext(rt, ref)

	e.mu.Lock()
	defer e.mu.Unlock()
	if rt.disposed {
		return abi.InvalidContext, abi.ErrorInvalidArgument
	}
	c.undefined = e.pin(c, goja.Undefined())
	c.null = e.pin(c, goja.Null())
	c.trueValue = e.pin(c, c.vm.ToValue(true))
	c.falseValue = e.pin(c, c.vm.ToValue(false))
	c.global = e.pin(c, c.vm.GlobalObject())
	e.contexts[ref] = c
	rt.contexts[ref] = c
	e.log.Debug("context created", zap.Stringer("runtime", rtRef), zap.Stringer("context", ref))
	return ref, abi.NoError
}

// destroyContext frees a context and everything bound to it. Callers hold
// e.mu.
func (e *Engine) destroyContext(c *contextState) {
	if c.dead {
		return
	}
	for ref, ent := range e.values {
		if ent.ctx == c {
			e.dropValue(ref, ent)
		}
	}
	for ref, m := range e.modules {
		if m.ctx == c {
			delete(e.modules, ref)
		}
	}
	delete(e.contexts, c.ref)
	delete(c.rt.contexts, c.ref)
	if c.rt.usage >= contextBaseline {
		c.rt.usage -= contextBaseline
	}
	c.dead = true
	e.log.Debug("context destroyed", zap.Stringer("context", c.ref))
}

// GetCurrentContext implements abi.Surface.
func (e *Engine) GetCurrentContext() (abi.ContextRef, abi.ErrorCode) {
	gid := goid.Get()
	e.mu.Lock()
	defer e.mu.Unlock()
	if c := e.threads[gid]; c != nil {
		return c.ref, abi.NoError
	}
	return abi.InvalidContext, abi.NoError
}

// SetCurrentContext implements abi.Surface. Passing InvalidContext clears
// the calling goroutine's current context and deactivates its runtime.
func (e *Engine) SetCurrentContext(ref abi.ContextRef) abi.ErrorCode {
	gid := goid.Get()
	e.mu.Lock()
	defer e.mu.Unlock()

	prev := e.threads[gid]
	if !ref.IsValid() {
		if prev != nil {
			e.deactivate(prev, gid)
		}
		return abi.NoError
	}
	c := e.contexts[ref]
	if c == nil || c.dead {
		return abi.ErrorInvalidArgument
	}
	if prev == c {
		return abi.NoError
	}
	if c.rt.thread != 0 && c.rt.thread != gid {
		return abi.ErrorRuntimeInUse
	}
	if prev != nil {
		if prev.rt == c.rt && prev.rt.hasException {
			return abi.ErrorInExceptionState
		}
		e.deactivate(prev, gid)
	}
	e.threads[gid] = c
	c.rt.thread = gid
	return abi.NoError
}

// deactivate clears c as current on goroutine gid. Callers hold e.mu.
func (e *Engine) deactivate(c *contextState, gid int64) {
	delete(e.threads, gid)
	c.rt.thread = 0
	c.rt.epoch++
	if !c.dead && c.released() {
		e.destroyContext(c)
	}
}

// released reports whether the host dropped its last reference.
func (c *contextState) released() bool {
	return c.refs == 0 && c.referenced
}

// GetRuntime implements abi.Surface.
func (e *Engine) GetRuntime(ref abi.ContextRef) (abi.RuntimeRef, abi.ErrorCode) {
	if !ref.IsValid() {
		return abi.RuntimeRef(0), abi.ErrorNullArgument
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	c := e.contexts[ref]
	if c == nil {
		return abi.RuntimeRef(0), abi.ErrorInvalidArgument
	}
	return c.rt.ref, abi.NoError
}

// GetContextOfObject implements abi.Surface.
func (e *Engine) GetContextOfObject(obj abi.ValueRef) (abi.ContextRef, abi.ErrorCode) {
	if !obj.IsValid() {
		return abi.InvalidContext, abi.ErrorNullArgument
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	ent := e.values[obj]
	if ent == nil {
		return abi.InvalidContext, abi.ErrorInvalidArgument
	}
	if _, ok := ent.value.(*goja.Object); !ok {
		return abi.InvalidContext, abi.ErrorArgumentNotObject
	}
	return ent.ctx.ref, abi.NoError
}

// AddRef implements abi.Surface for value and context tokens.
func (e *Engine) AddRef(ref abi.Ref) (uint32, abi.ErrorCode) {
	if ref == 0 {
		return 0, abi.ErrorNullArgument
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if ent := e.values[abi.ValueRef(ref)]; ent != nil {
		ent.refs++
		return ent.refs, abi.NoError
	}
	if c := e.contexts[abi.ContextRef(ref)]; c != nil {
		c.refs++
		c.referenced = true
		return c.refs, abi.NoError
	}
	return 0, abi.ErrorInvalidArgument
}

// Release implements abi.Surface. A context whose count drops to zero is
// destroyed as soon as it is no longer current.
func (e *Engine) Release(ref abi.Ref) (uint32, abi.ErrorCode) {
	if ref == 0 {
		return 0, abi.ErrorNullArgument
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if ent := e.values[abi.ValueRef(ref)]; ent != nil {
		if ent.refs > 0 {
			ent.refs--
		}
		// A released value stays reachable for the rest of this activation.
		ent.epoch = ent.ctx.rt.epoch
		return ent.refs, abi.NoError
	}
	if c := e.contexts[abi.ContextRef(ref)]; c != nil {
		if c.refs > 0 {
			c.refs--
		}
		if c.refs == 0 && !e.isCurrent(c) {
			e.destroyContext(c)
		}
		return c.refs, abi.NoError
	}
	return 0, abi.ErrorInvalidArgument
}
