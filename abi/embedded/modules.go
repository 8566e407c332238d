package embedded

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"

	"github.com/dop251/goja"
	"github.com/evanw/esbuild/pkg/api"
	"go.uber.org/zap"

	"github.com/6over3/jsrt/abi"
)

// Module sources are lowered to CommonJS by esbuild and run inside a
// function wrapper; requireCall finds the static imports in the output.
var requireCall = regexp.MustCompile(`\brequire\(("(?:[^"\\]|\\.)*")\)`)

const moduleWrapperHead = "(function (exports, require, module, __filename) {"

type moduleHooks struct {
	fetch       abi.FetchImportedModuleCallback
	fetchScript abi.FetchImportedModuleFromScriptCallback
	ready       abi.NotifyModuleReadyCallback
}

type moduleRecord struct {
	ref       abi.ModuleRef
	ctx       *contextState
	parent    abi.ModuleRef
	specifier string
	url       string
	host      any
	hooks     moduleHooks
	exception goja.Value

	parsed     bool
	linked     bool
	notified   bool
	evaluating bool
	evaluated  bool

	deps  map[string]*moduleRecord
	order []string
	fn    goja.Callable
	obj   *goja.Object
}

func (m *moduleRecord) name() string {
	if m.url != "" {
		return m.url
	}
	return m.specifier
}

func (m *moduleRecord) fetchHook() abi.FetchImportedModuleCallback {
	if m.hooks.fetch != nil {
		return m.hooks.fetch
	}
	return m.ctx.hooks.fetch
}

func (m *moduleRecord) readyHook() abi.NotifyModuleReadyCallback {
	if m.hooks.ready != nil {
		return m.hooks.ready
	}
	return m.ctx.hooks.ready
}

// complete reports whether every record reachable from m is linked or
// failed.
func (m *moduleRecord) complete(seen map[*moduleRecord]bool) bool {
	if seen[m] {
		return true
	}
	seen[m] = true
	if m.exception != nil {
		return true
	}
	if !m.linked {
		return false
	}
	for _, spec := range m.order {
		if !m.deps[spec].complete(seen) {
			return false
		}
	}
	return true
}

// failure returns the first exception recorded in m's graph.
func (m *moduleRecord) failure(seen map[*moduleRecord]bool) goja.Value {
	if seen[m] {
		return nil
	}
	seen[m] = true
	if m.exception != nil {
		return m.exception
	}
	for _, spec := range m.order {
		if exc := m.deps[spec].failure(seen); exc != nil {
			return exc
		}
	}
	return nil
}

// record resolves a module token for use in c.
func (e *Engine) record(c *contextState, ref abi.ModuleRef) (*moduleRecord, abi.ErrorCode) {
	if !ref.IsValid() {
		return nil, abi.ErrorInvalidArgument
	}
	e.mu.Lock()
	m := e.modules[ref]
	e.mu.Unlock()
	if m == nil || m.ctx != c {
		return nil, abi.ErrorInvalidArgument
	}
	return m, abi.NoError
}

// InitializeModuleRecord implements abi.Surface. referencing is RootModule
// for the root of a graph; specifier may be InvalidValue for a root.
func (e *Engine) InitializeModuleRecord(referencing abi.ModuleRef, specifier abi.ValueRef) (abi.ModuleRef, abi.ErrorCode) {
	c, code := e.active()
	if code != abi.NoError {
		return abi.InvalidModule, code
	}
	if !referencing.IsRoot() {
		if _, code := e.record(c, referencing); code != abi.NoError {
			return abi.InvalidModule, code
		}
	}
	spec := ""
	if specifier.IsValid() {
		v, code := e.value(c, specifier)
		if code != abi.NoError {
			return abi.InvalidModule, code
		}
		spec = v.String()
	}
	m := &moduleRecord{
		ref:       abi.ModuleRef(e.token()),
		ctx:       c,
		parent:    referencing,
		specifier: spec,
		deps:      make(map[string]*moduleRecord),
	}
	e.mu.Lock()
	e.modules[m.ref] = m
	e.mu.Unlock()
	return m.ref, abi.NoError
}

// ParseModuleSource implements abi.Surface. Compile failures are returned
// as the exception value and recorded on the module; they do not become the
// runtime's pending exception.
func (e *Engine) ParseModuleSource(ref abi.ModuleRef, cookie abi.SourceContext, source []byte) (abi.ValueRef, abi.ErrorCode) {
	c, code := e.active()
	if code != abi.NoError {
		return abi.InvalidValue, code
	}
	m, code := e.record(c, ref)
	if code != abi.NoError {
		return abi.InvalidValue, code
	}
	if m.parsed {
		return abi.InvalidValue, abi.ErrorModuleParsed
	}
	m.parsed = true

	exc, code := e.parseModule(c, m, cookie, string(source))
	if code != abi.NoError {
		m.exception = exc
		e.notifyReady(c)
		excRef, _ := e.wrap(c, exc, 0)
		return excRef, code
	}
	e.link(c, m)
	m.linked = true
	e.notifyReady(c)
	return abi.InvalidValue, abi.NoError
}

// parseModule lowers and compiles a module body.
func (e *Engine) parseModule(c *contextState, m *moduleRecord, cookie abi.SourceContext, source string) (goja.Value, abi.ErrorCode) {
	res := api.Transform(source, api.TransformOptions{
		Loader:     api.LoaderJS,
		Format:     api.FormatCommonJS,
		Target:     api.ES2017,
		Sourcefile: m.name(),
		LogLevel:   api.LogLevelSilent,
	})
	if len(res.Errors) > 0 {
		msg := res.Errors[0].Text
		if loc := res.Errors[0].Location; loc != nil {
			msg = fmt.Sprintf("%s:%d:%d: %s", loc.File, loc.Line, loc.Column, msg)
		}
		e.fireEvent(c, abi.DiagEventCompileError, map[string]any{
			"fileName": m.name(),
			"error":    msg,
		})
		return e.errorValue(c, "SyntaxError", msg), abi.ErrorScriptCompile
	}

	body := string(res.Code)
	prog, err := goja.Compile(m.name(), moduleWrapperHead+body+"\n})", true)
	if err != nil {
		return e.errorValue(c, "SyntaxError", err.Error()), abi.ErrorScriptCompile
	}
	v, code := e.exec(c, func() (goja.Value, error) {
		return c.vm.RunProgram(prog)
	})
	if code != abi.NoError {
		if exc, ok := e.takeException(c); ok {
			return exc, abi.ErrorScriptCompile
		}
		return e.errorValue(c, "Error", code.String()), abi.ErrorScriptCompile
	}
	fn, ok := goja.AssertFunction(v)
	if !ok {
		return e.errorValue(c, "TypeError", "module wrapper is not a function"), abi.ErrorScriptCompile
	}
	m.fn = fn

	for _, match := range requireCall.FindAllStringSubmatch(body, -1) {
		spec, err := strconv.Unquote(match[1])
		if err != nil {
			continue
		}
		if _, dup := m.deps[spec]; dup {
			continue
		}
		m.deps[spec] = nil
		m.order = append(m.order, spec)
	}

	info := e.recordScript(c, source, cookie, m.name())
	e.fireEvent(c, abi.DiagEventSourceCompile, info.fields())
	return nil, abi.NoError
}

// link asks the host for every import of m, once per distinct specifier.
// A failed fetch is recorded as the module's exception.
func (e *Engine) link(c *contextState, m *moduleRecord) {
	for _, spec := range m.order {
		dep, err := e.fetch(c, m, spec)
		if err != nil {
			e.log.Debug("module fetch failed", zap.String("module", m.name()),
				zap.String("specifier", spec), zap.Error(err))
			m.exception = e.errorValue(c, "Error", err.Error())
			return
		}
		m.deps[spec] = dep
	}
}

func (e *Engine) fetch(c *contextState, m *moduleRecord, spec string) (*moduleRecord, error) {
	hook := m.fetchHook()
	if hook == nil {
		return nil, fmt.Errorf("cannot import %q from %q: no fetch callback", spec, m.name())
	}
	specRef, code := e.wrap(c, c.vm.ToValue(spec), 0)
	if code != abi.NoError {
		return nil, fmt.Errorf("cannot import %q: %s", spec, code)
	}
	childRef, code := hook(m.ref, specRef)
	if code != abi.NoError {
		return nil, fmt.Errorf("cannot import %q from %q: %s", spec, m.name(), code)
	}
	child, code := e.record(c, childRef)
	if code != abi.NoError {
		return nil, fmt.Errorf("cannot import %q from %q: invalid module record", spec, m.name())
	}
	return child, nil
}

// notifyReady reports every root graph of c that became complete.
func (e *Engine) notifyReady(c *contextState) {
	e.mu.Lock()
	var roots []*moduleRecord
	for _, m := range e.modules {
		if m.ctx == c && m.parent.IsRoot() && !m.notified {
			roots = append(roots, m)
		}
	}
	e.mu.Unlock()
	sort.Slice(roots, func(i, j int) bool { return roots[i].ref < roots[j].ref })

	for _, root := range roots {
		if root.notified || !root.parsed || !root.complete(map[*moduleRecord]bool{}) {
			continue
		}
		root.notified = true
		hook := root.readyHook()
		if hook == nil {
			continue
		}
		excRef := abi.InvalidValue
		if exc := root.failure(map[*moduleRecord]bool{}); exc != nil {
			excRef, _ = e.wrap(c, exc, 0)
		}
		if code := hook(root.ref, excRef); code != abi.NoError {
			e.log.Debug("module ready callback failed", zap.String("module", root.name()), zap.Stringer("code", code))
		}
	}
}

// ModuleEvaluation implements abi.Surface. Dependencies run first; the
// result is the module's namespace object.
func (e *Engine) ModuleEvaluation(ref abi.ModuleRef) (abi.ValueRef, abi.ErrorCode) {
	c, code := e.active()
	if code != abi.NoError {
		return abi.InvalidValue, code
	}
	m, code := e.record(c, ref)
	if code != abi.NoError {
		return abi.InvalidValue, code
	}
	if exc := m.failure(map[*moduleRecord]bool{}); exc != nil {
		e.setException(c, exc)
		return abi.InvalidValue, abi.ErrorScriptException
	}
	if !m.parsed || !m.complete(map[*moduleRecord]bool{}) {
		return abi.InvalidValue, abi.ErrorInvalidArgument
	}
	ns, code := e.exec(c, func() (goja.Value, error) {
		return e.evaluate(c, m), nil
	})
	if code != abi.NoError {
		return abi.InvalidValue, code
	}
	return e.wrap(c, ns, 0)
}

// evaluate runs m after its dependencies. It runs under exec and throws
// script errors as panics.
func (e *Engine) evaluate(c *contextState, m *moduleRecord) goja.Value {
	if m.exception != nil {
		panic(m.exception)
	}
	if m.evaluated || m.evaluating {
		return m.obj.Get("exports")
	}
	m.evaluating = true
	m.obj = c.vm.NewObject()
	exports := c.vm.NewObject()
	_ = m.obj.Set("exports", exports)

	for _, spec := range m.order {
		e.evaluate(c, m.deps[spec])
	}

	require := func(call goja.FunctionCall) goja.Value {
		spec := call.Argument(0).String()
		return e.evaluate(c, e.resolve(c, m, spec))
	}
	_, err := m.fn(goja.Undefined(), exports, c.vm.ToValue(require), m.obj, c.vm.ToValue(m.name()))
	m.evaluating = false
	if err != nil {
		if exc, ok := err.(*goja.Exception); ok {
			m.exception = exc.Value()
		}
		panic(err)
	}
	m.evaluated = true
	return m.obj.Get("exports")
}

// resolve finds the record for a require issued at run time. Specifiers
// not seen while parsing, such as computed dynamic imports, are fetched
// on demand and must already be parsed.
func (e *Engine) resolve(c *contextState, m *moduleRecord, spec string) *moduleRecord {
	if dep := m.deps[spec]; dep != nil {
		return dep
	}
	dep, err := e.fetch(c, m, spec)
	if err != nil {
		panic(c.vm.NewTypeError(err.Error()))
	}
	if !dep.complete(map[*moduleRecord]bool{}) {
		panic(c.vm.NewTypeError(fmt.Sprintf("module %q is not ready", spec)))
	}
	m.deps[spec] = dep
	m.order = append(m.order, spec)
	return dep
}

// SetModuleHostInfo implements abi.Surface. Callbacks set on RootModule
// become the defaults for every record of the current context.
func (e *Engine) SetModuleHostInfo(ref abi.ModuleRef, kind abi.ModuleHostInfoKind, info any) abi.ErrorCode {
	c, code := e.active()
	if code != abi.NoError {
		return code
	}
	hooks := &c.hooks
	var m *moduleRecord
	if !ref.IsRoot() {
		if m, code = e.record(c, ref); code != abi.NoError {
			return code
		}
		hooks = &m.hooks
	}

	switch kind {
	case abi.ModuleHostInfoFetchImportedModuleCallback:
		cb, ok := info.(abi.FetchImportedModuleCallback)
		if !ok && info != nil {
			return abi.ErrorInvalidArgument
		}
		hooks.fetch = cb
	case abi.ModuleHostInfoFetchImportedModuleFromScriptCallback:
		cb, ok := info.(abi.FetchImportedModuleFromScriptCallback)
		if !ok && info != nil {
			return abi.ErrorInvalidArgument
		}
		hooks.fetchScript = cb
	case abi.ModuleHostInfoNotifyModuleReadyCallback:
		cb, ok := info.(abi.NotifyModuleReadyCallback)
		if !ok && info != nil {
			return abi.ErrorInvalidArgument
		}
		hooks.ready = cb
	case abi.ModuleHostInfoHostDefined, abi.ModuleHostInfoURL, abi.ModuleHostInfoException:
		if m == nil {
			return abi.ErrorInvalidArgument
		}
		return e.setRecordInfo(c, m, kind, info)
	default:
		return abi.ErrorInvalidModuleHostInfoKind
	}
	return abi.NoError
}

func (e *Engine) setRecordInfo(c *contextState, m *moduleRecord, kind abi.ModuleHostInfoKind, info any) abi.ErrorCode {
	switch kind {
	case abi.ModuleHostInfoHostDefined:
		m.host = info
	case abi.ModuleHostInfoURL:
		switch u := info.(type) {
		case string:
			m.url = u
		case abi.ValueRef:
			v, code := e.value(c, u)
			if code != abi.NoError {
				return code
			}
			m.url = v.String()
		default:
			return abi.ErrorInvalidArgument
		}
	case abi.ModuleHostInfoException:
		ref, ok := info.(abi.ValueRef)
		if !ok {
			return abi.ErrorInvalidArgument
		}
		v, code := e.value(c, ref)
		if code != abi.NoError {
			return code
		}
		m.exception = v
	}
	return abi.NoError
}

// GetModuleHostInfo implements abi.Surface.
func (e *Engine) GetModuleHostInfo(ref abi.ModuleRef, kind abi.ModuleHostInfoKind) (any, abi.ErrorCode) {
	c, code := e.active()
	if code != abi.NoError {
		return nil, code
	}
	hooks := c.hooks
	var m *moduleRecord
	if !ref.IsRoot() {
		if m, code = e.record(c, ref); code != abi.NoError {
			return nil, code
		}
		hooks = m.hooks
	}

	switch kind {
	case abi.ModuleHostInfoFetchImportedModuleCallback:
		return hooks.fetch, abi.NoError
	case abi.ModuleHostInfoFetchImportedModuleFromScriptCallback:
		return hooks.fetchScript, abi.NoError
	case abi.ModuleHostInfoNotifyModuleReadyCallback:
		return hooks.ready, abi.NoError
	case abi.ModuleHostInfoHostDefined, abi.ModuleHostInfoURL, abi.ModuleHostInfoException:
		if m == nil {
			return nil, abi.ErrorInvalidArgument
		}
	default:
		return nil, abi.ErrorInvalidModuleHostInfoKind
	}

	switch kind {
	case abi.ModuleHostInfoHostDefined:
		return m.host, abi.NoError
	case abi.ModuleHostInfoURL:
		return m.url, abi.NoError
	default:
		if m.exception == nil {
			return abi.InvalidValue, abi.NoError
		}
		v, code := e.wrap(c, m.exception, 0)
		return v, code
	}
}
