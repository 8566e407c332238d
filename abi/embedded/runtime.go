package embedded

import (
	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/6over3/jsrt/abi"
	"github.com/6over3/jsrt/internal/goid"
)

// CreateRuntime implements abi.Surface.
func (e *Engine) CreateRuntime(attrs abi.RuntimeAttributes) (abi.RuntimeRef, abi.ErrorCode) {
	rt := &runtimeState{
		ref:      abi.RuntimeRef(e.token()),
		attrs:    attrs,
		contexts: make(map[abi.ContextRef]*contextState),
		limit:    abi.NoMemoryLimit,
		names:    make(map[string]abi.PropertyIDRef),
		symbols:  make(map[*goja.Symbol]abi.PropertyIDRef),
		epoch:    1,
	}
	e.mu.Lock()
	e.runtimes[rt.ref] = rt
	e.mu.Unlock()
	e.log.Debug("runtime created", zap.Stringer("runtime", rt.ref), zap.Uint32("attributes", uint32(attrs)))
	return rt.ref, abi.NoError
}

// runtime looks up a runtime token. Callers hold e.mu.
func (e *Engine) runtime(ref abi.RuntimeRef) (*runtimeState, abi.ErrorCode) {
	if !ref.IsValid() {
		return nil, abi.ErrorNullArgument
	}
	rt := e.runtimes[ref]
	if rt == nil || rt.disposed {
		return nil, abi.ErrorInvalidArgument
	}
	return rt, abi.NoError
}

// DisposeRuntime implements abi.Surface.
func (e *Engine) DisposeRuntime(ref abi.RuntimeRef) abi.ErrorCode {
	e.mu.Lock()
	defer e.mu.Unlock()
	rt, code := e.runtime(ref)
	if code != abi.NoError {
		return code
	}
	if rt.thread != 0 {
		return abi.ErrorRuntimeInUse
	}
	for _, c := range rt.contexts {
		e.destroyContext(c)
	}
	for id, p := range e.props {
		if p.rt == rt {
			delete(e.props, id)
		}
	}
	rt.disposed = true
	rt.debug = nil
	rt.scripts = nil
	delete(e.runtimes, ref)
	e.log.Debug("runtime disposed", zap.Stringer("runtime", ref))
	return abi.NoError
}

// CollectGarbage implements abi.Surface.
func (e *Engine) CollectGarbage(ref abi.RuntimeRef) abi.ErrorCode {
	e.mu.Lock()
	defer e.mu.Unlock()
	rt, code := e.runtime(ref)
	if code != abi.NoError {
		return code
	}
	if rt.thread != 0 && rt.thread != goid.Get() {
		return abi.ErrorRuntimeInUse
	}
	before := rt.usage
	e.sweep(rt)
	e.log.Debug("garbage collected", zap.Stringer("runtime", ref),
		zap.Uint64("before", before), zap.Uint64("after", rt.usage))
	return abi.NoError
}

// GetRuntimeMemoryUsage implements abi.Surface.
func (e *Engine) GetRuntimeMemoryUsage(ref abi.RuntimeRef) (uint64, abi.ErrorCode) {
	e.mu.Lock()
	defer e.mu.Unlock()
	rt, code := e.runtime(ref)
	if code != abi.NoError {
		return 0, code
	}
	return rt.usage, abi.NoError
}

// GetRuntimeMemoryLimit implements abi.Surface.
func (e *Engine) GetRuntimeMemoryLimit(ref abi.RuntimeRef) (uint64, abi.ErrorCode) {
	e.mu.Lock()
	defer e.mu.Unlock()
	rt, code := e.runtime(ref)
	if code != abi.NoError {
		return 0, code
	}
	return rt.limit, abi.NoError
}

// SetRuntimeMemoryLimit implements abi.Surface. A limit below the current
// usage only affects later allocations.
func (e *Engine) SetRuntimeMemoryLimit(ref abi.RuntimeRef, limit uint64) abi.ErrorCode {
	e.mu.Lock()
	defer e.mu.Unlock()
	rt, code := e.runtime(ref)
	if code != abi.NoError {
		return code
	}
	rt.limit = limit
	return abi.NoError
}

// DisableRuntimeExecution implements abi.Surface. It may be called from any
// goroutine; a running script is terminated at its next interrupt check.
func (e *Engine) DisableRuntimeExecution(ref abi.RuntimeRef) abi.ErrorCode {
	e.mu.Lock()
	rt, code := e.runtime(ref)
	if code != abi.NoError {
		e.mu.Unlock()
		return code
	}
	if !rt.attrs.Has(abi.RuntimeAttributeAllowScriptInterrupt) {
		e.mu.Unlock()
		return abi.ErrorCannotDisableExecution
	}
	rt.disabled.Store(true)
	contexts := make([]*contextState, 0, len(rt.contexts))
	for _, c := range rt.contexts {
		contexts = append(contexts, c)
	}
	e.mu.Unlock()

	for _, c := range contexts {
		c.vm.Interrupt(errExecutionDisabled)
	}
	return abi.NoError
}

// EnableRuntimeExecution implements abi.Surface.
func (e *Engine) EnableRuntimeExecution(ref abi.RuntimeRef) abi.ErrorCode {
	e.mu.Lock()
	rt, code := e.runtime(ref)
	if code != abi.NoError {
		e.mu.Unlock()
		return code
	}
	rt.disabled.Store(false)
	contexts := make([]*contextState, 0, len(rt.contexts))
	for _, c := range rt.contexts {
		contexts = append(contexts, c)
	}
	e.mu.Unlock()

	for _, c := range contexts {
		c.vm.ClearInterrupt()
	}
	return abi.NoError
}

// IsRuntimeExecutionDisabled implements abi.Surface.
func (e *Engine) IsRuntimeExecutionDisabled(ref abi.RuntimeRef) (bool, abi.ErrorCode) {
	e.mu.Lock()
	defer e.mu.Unlock()
	rt, code := e.runtime(ref)
	if code != abi.NoError {
		return false, code
	}
	return rt.disabled.Load(), abi.NoError
}
