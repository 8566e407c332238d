// Package jsrt is a binding for JsRT-style JavaScript engines.
//
// A Runtime owns one engine instance and any number of Contexts. The
// engine allows a single current context per runtime at a time, so every
// operation on a Context or Value must run inside a scope for that
// context:
//
//	err := ctx.RequestScope(func() error {
//		v, err := ctx.RunScript("6 * 7", jsrt.SourceContextNone, "answer.js")
//		...
//	})
//
// RequestScope runs inline when the calling goroutine already has the
// context current, and otherwise marshals the work onto the runtime's
// worker goroutine, which makes the context current for the duration of
// the call and clears it afterwards. Enter gives a scope on the calling
// goroutine instead.
//
// Values returned by the engine are not referenced. Call AddRef before
// keeping one past the scope that produced it, and Release exactly once
// per AddRef; the binding does not check this contract.
package jsrt

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/6over3/jsrt/abi"
	_ "github.com/6over3/jsrt/abi/embedded"
	"github.com/6over3/jsrt/internal/goid"
)

// Runtime is one engine instance.
type Runtime struct {
	s     abi.Surface
	ref   abi.RuntimeRef
	attrs abi.RuntimeAttributes
	log   *zap.Logger
	lock  *affinityLock
	sched *scheduler

	disposeMu sync.Mutex

	mu       sync.Mutex
	contexts map[abi.ContextRef]*Context
	modules  map[moduleKey]*moduleHooks
	debug    DebugHandler
	// disposing is set while Dispose runs so no new work is accepted.
	disposing bool
	disposed  bool
}

type config struct {
	attrs    abi.RuntimeAttributes
	limit    uint64
	hasLimit bool
	log      *zap.Logger
	surface  abi.Surface
}

// Option configures NewRuntime.
type Option func(*config)

// WithAttributes sets the runtime creation attributes.
func WithAttributes(attrs abi.RuntimeAttributes) Option {
	return func(c *config) { c.attrs = attrs }
}

// WithMemoryLimit sets the runtime memory limit in bytes.
func WithMemoryLimit(limit uint64) Option {
	return func(c *config) {
		c.limit = limit
		c.hasLimit = true
	}
}

// WithLogger sets the runtime's logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.log = l
		}
	}
}

// WithSurface selects the engine implementation. By default the
// process-wide abi.Default surface is used.
func WithSurface(s abi.Surface) Option {
	return func(c *config) { c.surface = s }
}

// NewRuntime creates a runtime and starts its worker goroutine. Call
// Dispose to release it.
func NewRuntime(opts ...Option) (*Runtime, error) {
	cfg := config{log: Logger()}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.surface == nil {
		s, err := abi.Default()
		if err != nil {
			return nil, fmt.Errorf("select engine surface: %w", err)
		}
		cfg.surface = s
	}

	ref, code := cfg.surface.CreateRuntime(cfg.attrs)
	if code != abi.NoError {
		return nil, codeError(code)
	}
	rt := &Runtime{
		s:        cfg.surface,
		ref:      ref,
		attrs:    cfg.attrs,
		log:      cfg.log.With(zap.Stringer("runtime", ref)),
		lock:     &affinityLock{},
		contexts: make(map[abi.ContextRef]*Context),
		modules:  make(map[moduleKey]*moduleHooks),
	}
	rt.sched = newScheduler(rt)

	if cfg.hasLimit {
		if err := rt.SetMemoryLimit(cfg.limit); err != nil {
			rt.Dispose()
			return nil, err
		}
	}
	rt.log.Debug("runtime created", zap.String("surface", cfg.surface.Name()), zap.Uint32("attributes", uint32(cfg.attrs)))
	return rt, nil
}

// Attributes returns the attributes the runtime was created with.
func (rt *Runtime) Attributes() abi.RuntimeAttributes { return rt.attrs }

// Surface returns the engine implementation backing the runtime.
func (rt *Runtime) Surface() abi.Surface { return rt.s }

func (rt *Runtime) valid() error {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.disposed || rt.disposing {
		return errDisposed()
	}
	return nil
}

func errDisposed() error {
	return usageError(abi.ErrorInvalidArgument, "runtime is disposed")
}

// exclusive runs fn with no other goroutine active on the runtime. A
// goroutine that already holds the affinity lock runs fn in place.
func (rt *Runtime) exclusive(fn func() error) error {
	if err := rt.valid(); err != nil {
		return err
	}
	if _, held := rt.lock.holder(goid.Get()); held {
		return fn()
	}
	return rt.sched.submit(abi.InvalidContext, fn)
}

func (rt *Runtime) context(ref abi.ContextRef) *Context {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.contexts[ref]
}

// CreateContext creates a context holding one reference. Release it when
// done.
func (rt *Runtime) CreateContext() (*Context, error) {
	var c *Context
	err := rt.exclusive(func() error {
		ref, code := rt.s.CreateContext(rt.ref)
		if code != abi.NoError {
			return codeError(code)
		}
		if _, code := rt.s.AddRef(abi.Ref(ref)); code != abi.NoError {
			return codeError(code)
		}
		c = &Context{rt: rt, ref: ref}
		rt.mu.Lock()
		rt.contexts[ref] = c
		rt.mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, err
	}
	rt.log.Debug("context created", zap.Stringer("context", c.ref))
	return c, nil
}

// CurrentContext returns the context the calling goroutine has current,
// or nil.
func (rt *Runtime) CurrentContext() *Context {
	key, ok := rt.lock.holder(goid.Get())
	if !ok || !key.IsValid() {
		return nil
	}
	return rt.context(key)
}

// MemoryUsage returns the runtime's current memory usage in bytes.
func (rt *Runtime) MemoryUsage() (uint64, error) {
	var n uint64
	err := rt.exclusive(func() error {
		var code abi.ErrorCode
		n, code = rt.s.GetRuntimeMemoryUsage(rt.ref)
		return codeError(code)
	})
	return n, err
}

// MemoryLimit returns the memory limit, or abi.NoMemoryLimit.
func (rt *Runtime) MemoryLimit() (uint64, error) {
	var n uint64
	err := rt.exclusive(func() error {
		var code abi.ErrorCode
		n, code = rt.s.GetRuntimeMemoryLimit(rt.ref)
		return codeError(code)
	})
	return n, err
}

// SetMemoryLimit sets the memory limit in bytes; abi.NoMemoryLimit
// removes it.
func (rt *Runtime) SetMemoryLimit(limit uint64) error {
	return rt.exclusive(func() error {
		return codeError(rt.s.SetRuntimeMemoryLimit(rt.ref, limit))
	})
}

// CollectGarbage runs a full collection.
func (rt *Runtime) CollectGarbage() error {
	return rt.exclusive(func() error {
		return codeError(rt.s.CollectGarbage(rt.ref))
	})
}

// DisableExecution terminates running script and rejects new script until
// EnableExecution. It may be called from any goroutine, including while
// another goroutine is inside a scope. The runtime must have been created
// with abi.RuntimeAttributeAllowScriptInterrupt.
func (rt *Runtime) DisableExecution() error {
	if err := rt.valid(); err != nil {
		return err
	}
	return codeError(rt.s.DisableRuntimeExecution(rt.ref))
}

// EnableExecution re-enables script execution.
func (rt *Runtime) EnableExecution() error {
	return rt.exclusive(func() error {
		return codeError(rt.s.EnableRuntimeExecution(rt.ref))
	})
}

// IsExecutionDisabled reports whether execution is disabled.
func (rt *Runtime) IsExecutionDisabled() (bool, error) {
	if err := rt.valid(); err != nil {
		return false, err
	}
	disabled, code := rt.s.IsRuntimeExecutionDisabled(rt.ref)
	return disabled, codeError(code)
}

// Dispose releases the engine instance and stops the worker. Calling it
// again is a no-op. It waits for scopes held by other goroutines and fails
// when called from inside a scope.
func (rt *Runtime) Dispose() error {
	rt.disposeMu.Lock()
	defer rt.disposeMu.Unlock()

	rt.mu.Lock()
	if rt.disposed {
		rt.mu.Unlock()
		return nil
	}
	rt.disposing = true
	rt.mu.Unlock()

	dispose := func() error {
		if err := codeError(rt.s.DisposeRuntime(rt.ref)); err != nil {
			return err
		}
		// Scopes queued behind this one must not reach the disposed engine.
		rt.sched.seal()
		return nil
	}
	var err error
	if _, held := rt.lock.holder(goid.Get()); held {
		err = dispose()
	} else {
		err = rt.sched.submit(abi.InvalidContext, dispose)
	}
	if err != nil {
		rt.mu.Lock()
		rt.disposing = false
		rt.mu.Unlock()
		return err
	}

	rt.mu.Lock()
	rt.disposed = true
	for _, c := range rt.contexts {
		c.invalidate()
	}
	rt.contexts = nil
	rt.modules = nil
	rt.debug = nil
	rt.mu.Unlock()

	rt.sched.shutdown()
	rt.log.Debug("runtime disposed", zap.Uint64("scopes", rt.sched.served.Load()))
	return nil
}
