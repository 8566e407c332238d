// Package embedded implements abi.Surface in-process on top of the goja
// JavaScript engine, so the binding runs without native binaries.
//
// The implementation keeps the native engine's rules observable: a context
// is current per calling goroutine, a runtime is active on at most one
// goroutine at a time, exceptions are per-runtime pending state, and value
// tokens are reference-counted handle-table entries that are swept once
// they are unreferenced and no longer on an active call stack.
package embedded

import (
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/6over3/jsrt/abi"
	"github.com/6over3/jsrt/internal/goid"
)

func init() {
	abi.Register(abi.DefaultSurfaceName, func() (abi.Surface, error) {
		return New(), nil
	})
}

// Sizes used for memory accounting.
const (
	contextBaseline = 256 << 10
	entryOverhead   = 32
	objectOverhead  = 96
)

// Engine is the embedded engine. The zero value is not usable; call New.
type Engine struct {
	mu       sync.Mutex
	runtimes map[abi.RuntimeRef]*runtimeState
	contexts map[abi.ContextRef]*contextState
	values   map[abi.ValueRef]*valueEntry
	props    map[abi.PropertyIDRef]*propertyEntry
	modules  map[abi.ModuleRef]*moduleRecord
	threads  map[int64]*contextState
	programs map[[32]byte]*goja.Program

	next  atomic.Uintptr
	start time.Time
	log   *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used for console output and diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// New creates an embedded engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		runtimes: make(map[abi.RuntimeRef]*runtimeState),
		contexts: make(map[abi.ContextRef]*contextState),
		values:   make(map[abi.ValueRef]*valueEntry),
		props:    make(map[abi.PropertyIDRef]*propertyEntry),
		modules:  make(map[abi.ModuleRef]*moduleRecord),
		threads:  make(map[int64]*contextState),
		programs: make(map[[32]byte]*goja.Program),
		start:    time.Now(),
		log:      Logger(),
	}
	e.next.Store(0x1000)
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements abi.Surface.
func (e *Engine) Name() string { return abi.DefaultSurfaceName }

// token allocates a fresh, never reused token.
func (e *Engine) token() uintptr {
	return e.next.Add(8)
}

type runtimeState struct {
	ref      abi.RuntimeRef
	attrs    abi.RuntimeAttributes
	contexts map[abi.ContextRef]*contextState

	// thread is the goroutine on which a context of this runtime is
	// current, or 0.
	thread int64
	// epoch advances every time the runtime becomes inactive. Unreferenced
	// values created in an earlier epoch are unreachable.
	epoch uint64

	usage uint64
	limit uint64

	disabled atomic.Bool

	hasException bool
	exception    goja.Value

	names   map[string]abi.PropertyIDRef
	symbols map[*goja.Symbol]abi.PropertyIDRef

	scripts    []*scriptInfo
	nextScript uint32
	debug      *debugger
	disposed   bool
}

type valueEntry struct {
	ctx    *contextState
	value  goja.Value
	refs   uint32
	epoch  uint64
	size   uint64
	pinned bool
}

type propertyEntry struct {
	rt     *runtimeState
	name   string
	symbol *goja.Symbol
}

// key returns the property key as a script value.
func (p *propertyEntry) key(vm *goja.Runtime) goja.Value {
	if p.symbol != nil {
		return p.symbol
	}
	return vm.ToValue(p.name)
}

// current returns the context current on the calling goroutine.
func (e *Engine) current() (*contextState, abi.ErrorCode) {
	gid := goid.Get()
	e.mu.Lock()
	c := e.threads[gid]
	e.mu.Unlock()
	if c == nil {
		return nil, abi.ErrorNoCurrentContext
	}
	return c, abi.NoError
}

// active returns the current context, failing while an exception is pending.
func (e *Engine) active() (*contextState, abi.ErrorCode) {
	c, code := e.current()
	if code != abi.NoError {
		return nil, code
	}
	e.mu.Lock()
	pending := c.rt.hasException
	e.mu.Unlock()
	if pending {
		return nil, abi.ErrorInExceptionState
	}
	return c, abi.NoError
}

// value resolves a token to its script value for use in context c.
func (e *Engine) value(c *contextState, ref abi.ValueRef) (goja.Value, abi.ErrorCode) {
	if !ref.IsValid() {
		return nil, abi.ErrorNullArgument
	}
	e.mu.Lock()
	ent := e.values[ref]
	e.mu.Unlock()
	if ent == nil {
		return nil, abi.ErrorInvalidArgument
	}
	if ent.ctx.rt != c.rt {
		return nil, abi.ErrorWrongRuntime
	}
	if ent.ctx != c {
		// Objects are bound to the context that created them; only
		// primitives cross between contexts of one runtime.
		if _, isObject := ent.value.(*goja.Object); isObject {
			return nil, abi.ErrorInvalidArgument
		}
	}
	return ent.value, abi.NoError
}

// object resolves a token that must name an object.
func (e *Engine) object(c *contextState, ref abi.ValueRef) (*goja.Object, abi.ErrorCode) {
	v, code := e.value(c, ref)
	if code != abi.NoError {
		return nil, code
	}
	obj, ok := v.(*goja.Object)
	if !ok {
		return nil, abi.ErrorArgumentNotObject
	}
	return obj, abi.NoError
}

// wrap hands out a token for v, charging extra bytes on top of the entry.
func (e *Engine) wrap(c *contextState, v goja.Value, extra uint64) (abi.ValueRef, abi.ErrorCode) {
	switch {
	case v == nil || goja.IsUndefined(v):
		return c.undefined, abi.NoError
	case goja.IsNull(v):
		return c.null, abi.NoError
	}
	obj, isObject := v.(*goja.Object)
	size := uint64(entryOverhead) + extra

	e.mu.Lock()
	defer e.mu.Unlock()

	if isObject {
		if ref, ok := c.interned[obj]; ok {
			if ent := e.values[ref]; ent != nil {
				ent.epoch = c.rt.epoch
				return ref, abi.NoError
			}
		}
		size += objectOverhead
	} else if t := v.ExportType(); t != nil {
		switch t.Kind() {
		case reflect.Bool:
			if v.ToBoolean() {
				return c.trueValue, abi.NoError
			}
			return c.falseValue, abi.NoError
		case reflect.String:
			size += uint64(len(v.String()))
		}
	}

	if !e.charge(c.rt, size) {
		return abi.InvalidValue, abi.ErrorOutOfMemory
	}
	ref := abi.ValueRef(e.token())
	e.values[ref] = &valueEntry{ctx: c, value: v, epoch: c.rt.epoch, size: size}
	if isObject {
		c.interned[obj] = ref
	}
	return ref, abi.NoError
}

// pin creates a token that is never swept. Callers hold e.mu.
func (e *Engine) pin(c *contextState, v goja.Value) abi.ValueRef {
	ref := abi.ValueRef(e.token())
	e.values[ref] = &valueEntry{ctx: c, value: v, pinned: true, size: entryOverhead}
	c.rt.usage += entryOverhead
	if obj, ok := v.(*goja.Object); ok {
		c.interned[obj] = ref
	}
	return ref
}

// charge accounts size bytes against the runtime limit. Callers hold e.mu.
func (e *Engine) charge(rt *runtimeState, size uint64) bool {
	if rt.limit != abi.NoMemoryLimit && rt.usage+size > rt.limit {
		return false
	}
	rt.usage += size
	return true
}

// sweep drops unreferenced entries that can no longer be on an active call
// stack, and contexts nobody references. Callers hold e.mu.
func (e *Engine) sweep(rt *runtimeState) {
	for ref, ent := range e.values {
		if ent.ctx.rt != rt || ent.pinned || ent.refs > 0 {
			continue
		}
		if rt.thread != 0 && ent.epoch == rt.epoch {
			continue
		}
		e.dropValue(ref, ent)
	}
	for _, c := range rt.contexts {
		if c.refs == 0 && !e.isCurrent(c) {
			e.destroyContext(c)
		}
	}
}

func (e *Engine) dropValue(ref abi.ValueRef, ent *valueEntry) {
	delete(e.values, ref)
	if obj, ok := ent.value.(*goja.Object); ok && ent.ctx.interned[obj] == ref {
		delete(ent.ctx.interned, obj)
	}
	if ent.ctx.rt.usage >= ent.size {
		ent.ctx.rt.usage -= ent.size
	} else {
		ent.ctx.rt.usage = 0
	}
}

// isCurrent reports whether c is current on any goroutine. Callers hold e.mu.
func (e *Engine) isCurrent(c *contextState) bool {
	return c.rt.thread != 0 && e.threads[c.rt.thread] == c
}

// setException records v as the pending exception of c's runtime.
func (e *Engine) setException(c *contextState, v goja.Value) {
	e.mu.Lock()
	c.rt.hasException = true
	c.rt.exception = v
	e.mu.Unlock()
}

// takeException clears and returns the pending exception, if any.
func (e *Engine) takeException(c *contextState) (goja.Value, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !c.rt.hasException {
		return nil, false
	}
	v := c.rt.exception
	c.rt.hasException = false
	c.rt.exception = nil
	return v, true
}
