package jsrt

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/6over3/jsrt/abi"
)

// ModuleRecord is a handle to an ES module record. The zero value is the
// invalid record; RootModule names the referencing module of top-level
// imports and is distinct from it.
type ModuleRecord struct {
	ref abi.ModuleRef
	ctx *Context
}

// RootModule is the referencing module of a top-level import. Bind it to a
// context with Context.RootModule to set context-wide callbacks.
var RootModule = ModuleRecord{ref: abi.RootModule}

// IsValid reports whether m is a real module record.
func (m ModuleRecord) IsValid() bool { return m.ref.IsValid() }

// IsRoot reports whether m is the root module.
func (m ModuleRecord) IsRoot() bool { return m.ref.IsRoot() }

// Equal reports whether m and o are the same record.
func (m ModuleRecord) Equal(o ModuleRecord) bool { return m.ref == o.ref }

// Context returns the context the record belongs to.
func (m ModuleRecord) Context() *Context { return m.ctx }

func (m ModuleRecord) String() string { return m.ref.String() }

// FetchFunc resolves an import of specifier made by referencing. It
// returns the record for the specifier, usually created with
// Context.CreateModule and parsed later.
type FetchFunc func(referencing ModuleRecord, specifier string) (ModuleRecord, error)

// FetchFromScriptFunc resolves a dynamic import made by the classic script
// identified by cookie.
type FetchFromScriptFunc func(cookie SourceContext, specifier string) (ModuleRecord, error)

// ReadyFunc is told that the graph under module finished parsing. The
// exception is invalid on success.
type ReadyFunc func(module ModuleRecord, exception Value) error

type moduleKey struct {
	ctx abi.ContextRef
	mod abi.ModuleRef
}

// moduleHooks keeps the callbacks registered for one record alive until
// the runtime is disposed.
type moduleHooks struct {
	mu          sync.Mutex
	fetch       abi.FetchImportedModuleCallback
	fetchScript abi.FetchImportedModuleFromScriptCallback
	ready       abi.NotifyModuleReadyCallback
}

func (rt *Runtime) hooks(m ModuleRecord) *moduleHooks {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	k := moduleKey{ctx: m.ctx.ref, mod: m.ref}
	h, ok := rt.modules[k]
	if !ok {
		h = &moduleHooks{}
		rt.modules[k] = h
	}
	return h
}

// RootModule returns the root module bound to c.
func (c *Context) RootModule() ModuleRecord {
	return ModuleRecord{ref: abi.RootModule, ctx: c}
}

// CreateModule creates a record for specifier imported by referencing.
// Pass RootModule for a top-level module.
func (c *Context) CreateModule(referencing ModuleRecord, specifier string) (ModuleRecord, error) {
	if err := c.active(); err != nil {
		return ModuleRecord{}, err
	}
	if !referencing.IsValid() && !referencing.IsRoot() {
		return ModuleRecord{}, usageError(abi.ErrorInvalidArgument, "referencing module is invalid")
	}
	spec, code := c.rt.s.PointerToString(specifier)
	if code != abi.NoError {
		return ModuleRecord{}, c.translate(code)
	}
	ref, code := c.rt.s.InitializeModuleRecord(referencing.ref, spec)
	if code != abi.NoError {
		return ModuleRecord{}, c.translate(code)
	}
	return ModuleRecord{ref: ref, ctx: c}, nil
}

func (m ModuleRecord) active() (*Context, error) {
	if m.ctx == nil || (!m.IsValid() && !m.IsRoot()) {
		return nil, usageError(abi.ErrorInvalidArgument, "invalid module record")
	}
	if err := m.ctx.active(); err != nil {
		return nil, err
	}
	return m.ctx, nil
}

// record returns the facade record for a token of c.
func (c *Context) record(ref abi.ModuleRef) ModuleRecord {
	if ref == abi.InvalidModule {
		return ModuleRecord{}
	}
	return ModuleRecord{ref: ref, ctx: c}
}

// ParseSource parses the module body. Compile errors are returned as
// script errors and are also recorded as the module's exception.
func (m ModuleRecord) ParseSource(source []byte, cookie SourceContext) error {
	c, err := m.active()
	if err != nil {
		return err
	}
	if m.IsRoot() {
		return usageError(abi.ErrorInvalidArgument, "the root module has no source")
	}
	exc, code := c.rt.s.ParseModuleSource(m.ref, cookie.raw(), source)
	return translateException(c, code, exc)
}

// Evaluate runs the module and its dependencies and returns the module
// namespace.
func (m ModuleRecord) Evaluate() (Value, error) {
	c, err := m.active()
	if err != nil {
		return Value{}, err
	}
	v, code := c.rt.s.ModuleEvaluation(m.ref)
	return c.wrap(v), c.translate(code)
}

// Exception returns the recorded parse or evaluation exception, or the
// invalid Value.
func (m ModuleRecord) Exception() (Value, error) {
	c, err := m.active()
	if err != nil {
		return Value{}, err
	}
	info, code := c.rt.s.GetModuleHostInfo(m.ref, abi.ModuleHostInfoException)
	if code != abi.NoError {
		return Value{}, c.translate(code)
	}
	ref, _ := info.(abi.ValueRef)
	return c.wrap(ref), nil
}

// SetException records exc as the module's failure, typically after a
// fetch for one of its imports failed.
func (m ModuleRecord) SetException(exc Value) error {
	c, err := m.active()
	if err != nil {
		return err
	}
	if err := c.owned(exc); err != nil {
		return err
	}
	return c.translate(c.rt.s.SetModuleHostInfo(m.ref, abi.ModuleHostInfoException, exc.ref))
}

// HostDefined returns the host-defined value, or the invalid Value.
func (m ModuleRecord) HostDefined() (Value, error) {
	c, err := m.active()
	if err != nil {
		return Value{}, err
	}
	info, code := c.rt.s.GetModuleHostInfo(m.ref, abi.ModuleHostInfoHostDefined)
	if code != abi.NoError {
		return Value{}, c.translate(code)
	}
	ref, _ := info.(abi.ValueRef)
	return c.wrap(ref), nil
}

// SetHostDefined attaches v to the record. The record does not reference
// v; AddRef it to keep it alive.
func (m ModuleRecord) SetHostDefined(v Value) error {
	c, err := m.active()
	if err != nil {
		return err
	}
	if err := c.owned(v); err != nil {
		return err
	}
	return c.translate(c.rt.s.SetModuleHostInfo(m.ref, abi.ModuleHostInfoHostDefined, v.ref))
}

// URL returns the record's URL, used in stack traces.
func (m ModuleRecord) URL() (string, error) {
	c, err := m.active()
	if err != nil {
		return "", err
	}
	info, code := c.rt.s.GetModuleHostInfo(m.ref, abi.ModuleHostInfoURL)
	if code != abi.NoError {
		return "", c.translate(code)
	}
	switch u := info.(type) {
	case string:
		return u, nil
	case abi.ValueRef:
		if !u.IsValid() {
			return "", nil
		}
		s, code := c.rt.s.StringToPointer(u)
		return s, c.translate(code)
	}
	return "", nil
}

// SetURL sets the record's URL.
func (m ModuleRecord) SetURL(url string) error {
	c, err := m.active()
	if err != nil {
		return err
	}
	str, code := c.rt.s.PointerToString(url)
	if code != abi.NoError {
		return c.translate(code)
	}
	return c.translate(c.rt.s.SetModuleHostInfo(m.ref, abi.ModuleHostInfoURL, str))
}

// SetFetchImportedModule installs the import resolver. On the root module
// it applies to every record of the context without its own resolver.
// A nil fn removes it.
func (m ModuleRecord) SetFetchImportedModule(fn FetchFunc) error {
	c, err := m.active()
	if err != nil {
		return err
	}
	var cb abi.FetchImportedModuleCallback
	if fn != nil {
		cb = func(referencing abi.ModuleRef, specifier abi.ValueRef) (abi.ModuleRef, abi.ErrorCode) {
			cur := c.rt.scopeContext(c)
			spec, code := cur.rt.s.StringToPointer(specifier)
			if code != abi.NoError {
				return abi.InvalidModule, code
			}
			var rec ModuleRecord
			err := cur.rt.callback("fetch imported module", func() error {
				var err error
				rec, err = fn(cur.record(referencing), spec)
				return err
			})
			if err != nil {
				cur.rt.log.Warn("module fetch failed", zap.String("specifier", spec), zap.Error(err))
				return abi.InvalidModule, statusOf(err)
			}
			return rec.ref, abi.NoError
		}
	}
	h := c.rt.hooks(m)
	h.mu.Lock()
	defer h.mu.Unlock()
	if code := c.rt.s.SetModuleHostInfo(m.ref, abi.ModuleHostInfoFetchImportedModuleCallback, cb); code != abi.NoError {
		return c.translate(code)
	}
	h.fetch = cb
	return nil
}

// SetFetchImportedModuleFromScript installs the resolver for dynamic
// imports made by classic scripts.
func (m ModuleRecord) SetFetchImportedModuleFromScript(fn FetchFromScriptFunc) error {
	c, err := m.active()
	if err != nil {
		return err
	}
	var cb abi.FetchImportedModuleFromScriptCallback
	if fn != nil {
		cb = func(cookie abi.SourceContext, specifier abi.ValueRef) (abi.ModuleRef, abi.ErrorCode) {
			cur := c.rt.scopeContext(c)
			spec, code := cur.rt.s.StringToPointer(specifier)
			if code != abi.NoError {
				return abi.InvalidModule, code
			}
			var rec ModuleRecord
			err := cur.rt.callback("fetch imported module from script", func() error {
				var err error
				rec, err = fn(sourceContextOf(cookie), spec)
				return err
			})
			if err != nil {
				cur.rt.log.Warn("module fetch from script failed", zap.String("specifier", spec), zap.Error(err))
				return abi.InvalidModule, statusOf(err)
			}
			return rec.ref, abi.NoError
		}
	}
	h := c.rt.hooks(m)
	h.mu.Lock()
	defer h.mu.Unlock()
	if code := c.rt.s.SetModuleHostInfo(m.ref, abi.ModuleHostInfoFetchImportedModuleFromScriptCallback, cb); code != abi.NoError {
		return c.translate(code)
	}
	h.fetchScript = cb
	return nil
}

// SetNotifyModuleReady installs the callback told when a graph finished
// parsing.
func (m ModuleRecord) SetNotifyModuleReady(fn ReadyFunc) error {
	c, err := m.active()
	if err != nil {
		return err
	}
	var cb abi.NotifyModuleReadyCallback
	if fn != nil {
		cb = func(referencing abi.ModuleRef, exception abi.ValueRef) abi.ErrorCode {
			cur := c.rt.scopeContext(c)
			err := cur.rt.callback("notify module ready", func() error {
				return fn(cur.record(referencing), cur.wrap(exception))
			})
			if err != nil {
				cur.rt.log.Warn("module ready callback failed", zap.Error(err))
				return statusOf(err)
			}
			return abi.NoError
		}
	}
	h := c.rt.hooks(m)
	h.mu.Lock()
	defer h.mu.Unlock()
	if code := c.rt.s.SetModuleHostInfo(m.ref, abi.ModuleHostInfoNotifyModuleReadyCallback, cb); code != abi.NoError {
		return c.translate(code)
	}
	h.ready = cb
	return nil
}

// scopeContext returns the context current on the calling goroutine, or
// home when none is.
func (rt *Runtime) scopeContext(home *Context) *Context {
	if c := rt.CurrentContext(); c != nil {
		return c
	}
	return home
}

// callback runs a host callback invoked by the engine, turning a panic
// into an error.
func (rt *Runtime) callback(what string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			rt.log.Error("host callback panicked", zap.String("callback", what), zap.Any("panic", r))
			err = fmt.Errorf("%s panicked: %v", what, r)
		}
	}()
	return fn()
}

// statusOf maps a host error to the status returned to the engine.
func statusOf(err error) abi.ErrorCode {
	var je *Error
	if errors.As(err, &je) && je.Code != abi.NoError {
		return je.Code
	}
	return abi.ErrorInvalidArgument
}
