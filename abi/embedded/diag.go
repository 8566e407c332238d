package embedded

import (
	"sort"
	"strings"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/6over3/jsrt/abi"
	"github.com/6over3/jsrt/internal/goid"
)

// maxScripts bounds the per-runtime source history.
const maxScripts = 4096

type scriptInfo struct {
	id     uint32
	url    string
	source string
	cookie abi.SourceContext
	lines  int
}

func (s *scriptInfo) fields() map[string]any {
	return map[string]any{
		"scriptId":     s.id,
		"fileName":     s.url,
		"lineCount":    s.lines,
		"sourceLength": len(s.source),
	}
}

type breakpoint struct {
	id     uint32
	script uint32
	line   uint32
	column uint32
}

func (b breakpoint) fields() map[string]any {
	return map[string]any{
		"breakpointId": b.id,
		"scriptId":     b.script,
		"line":         b.line,
		"column":       b.column,
	}
}

// debugger is the per-runtime debug session. Breakpoints are bookkeeping
// only: the embedded engine has no statement-level hooks, so execution
// never stops.
type debugger struct {
	cb    abi.DiagDebugEventCallback
	state any

	breakpoints    map[uint32]breakpoint
	nextBreakpoint uint32
	asyncBreak     bool
	firing         bool
}

// recordScript remembers a compiled source.
func (e *Engine) recordScript(c *contextState, source string, cookie abi.SourceContext, url string) *scriptInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	c.rt.nextScript++
	info := &scriptInfo{
		id:     c.rt.nextScript,
		url:    url,
		source: source,
		cookie: cookie,
		lines:  strings.Count(source, "\n") + 1,
	}
	c.rt.scripts = append(c.rt.scripts, info)
	if len(c.rt.scripts) > maxScripts {
		c.rt.scripts = c.rt.scripts[len(c.rt.scripts)-maxScripts:]
	}
	return info
}

// eventObject builds a plain object with deterministic key order.
func eventObject(vm *goja.Runtime, fields map[string]any) *goja.Object {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	obj := vm.NewObject()
	for _, k := range keys {
		_ = obj.Set(k, fields[k])
	}
	return obj
}

// fireEvent delivers a debug event when a session is attached. Events raised
// by the callback itself are dropped.
func (e *Engine) fireEvent(c *contextState, event abi.DiagDebugEvent, fields map[string]any) {
	e.mu.Lock()
	d := c.rt.debug
	if d == nil || d.firing {
		e.mu.Unlock()
		return
	}
	d.firing = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		d.firing = false
		e.mu.Unlock()
	}()

	ref, code := e.wrap(c, eventObject(c.vm, fields), 0)
	if code != abi.NoError {
		e.log.Warn("debug event dropped", zap.Stringer("event", event), zap.Stringer("code", code))
		return
	}
	d.cb(event, ref, d.state)
}

// fireAsyncBreak delivers a pending async break before script runs.
func (e *Engine) fireAsyncBreak(c *contextState) {
	e.mu.Lock()
	d := c.rt.debug
	pending := d != nil && d.asyncBreak && !d.firing
	if pending {
		d.asyncBreak = false
	}
	e.mu.Unlock()
	if pending {
		e.fireEvent(c, abi.DiagEventAsyncBreak, map[string]any{})
	}
}

// debugging returns the current context of a runtime with a session.
func (e *Engine) debugging() (*contextState, *debugger, abi.ErrorCode) {
	c, code := e.active()
	if code != abi.NoError {
		return nil, nil, code
	}
	e.mu.Lock()
	d := c.rt.debug
	e.mu.Unlock()
	if d == nil {
		return nil, nil, abi.ErrorDiagNotInDebugMode
	}
	return c, d, abi.NoError
}

// DiagStartDebugging implements abi.Surface.
func (e *Engine) DiagStartDebugging(ref abi.RuntimeRef, cb abi.DiagDebugEventCallback, state any) abi.ErrorCode {
	if cb == nil {
		return abi.ErrorNullArgument
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	rt, code := e.runtime(ref)
	if code != abi.NoError {
		return code
	}
	if rt.thread != 0 && rt.thread != goid.Get() {
		return abi.ErrorRuntimeInUse
	}
	if rt.debug != nil {
		return abi.ErrorDiagAlreadyInDebugMode
	}
	rt.debug = &debugger{cb: cb, state: state, breakpoints: make(map[uint32]breakpoint)}
	e.log.Debug("debugging started", zap.Stringer("runtime", ref))
	return abi.NoError
}

// DiagStopDebugging implements abi.Surface and returns the callback state
// passed to DiagStartDebugging.
func (e *Engine) DiagStopDebugging(ref abi.RuntimeRef) (any, abi.ErrorCode) {
	e.mu.Lock()
	defer e.mu.Unlock()
	rt, code := e.runtime(ref)
	if code != abi.NoError {
		return nil, code
	}
	if rt.thread != 0 && rt.thread != goid.Get() {
		return nil, abi.ErrorRuntimeInUse
	}
	if rt.debug == nil {
		return nil, abi.ErrorDiagNotInDebugMode
	}
	state := rt.debug.state
	rt.debug = nil
	e.log.Debug("debugging stopped", zap.Stringer("runtime", ref))
	return state, abi.NoError
}

// DiagRequestAsyncBreak implements abi.Surface. It may be called from any
// goroutine.
func (e *Engine) DiagRequestAsyncBreak(ref abi.RuntimeRef) abi.ErrorCode {
	e.mu.Lock()
	defer e.mu.Unlock()
	rt, code := e.runtime(ref)
	if code != abi.NoError {
		return code
	}
	if rt.debug == nil {
		return abi.ErrorDiagNotInDebugMode
	}
	rt.debug.asyncBreak = true
	return abi.NoError
}

// DiagSetBreakpoint implements abi.Surface.
func (e *Engine) DiagSetBreakpoint(scriptID, line, column uint32) (abi.ValueRef, abi.ErrorCode) {
	c, d, code := e.debugging()
	if code != abi.NoError {
		return abi.InvalidValue, code
	}
	e.mu.Lock()
	var script *scriptInfo
	for _, s := range c.rt.scripts {
		if s.id == scriptID {
			script = s
			break
		}
	}
	if script == nil {
		e.mu.Unlock()
		return abi.InvalidValue, abi.ErrorDiagObjectNotFound
	}
	if int(line) >= script.lines {
		e.mu.Unlock()
		return abi.InvalidValue, abi.ErrorInvalidArgument
	}
	d.nextBreakpoint++
	bp := breakpoint{id: d.nextBreakpoint, script: scriptID, line: line, column: column}
	d.breakpoints[bp.id] = bp
	e.mu.Unlock()
	return e.wrap(c, eventObject(c.vm, bp.fields()), 0)
}

// DiagRemoveBreakpoint implements abi.Surface.
func (e *Engine) DiagRemoveBreakpoint(id uint32) abi.ErrorCode {
	_, d, code := e.debugging()
	if code != abi.NoError {
		return code
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := d.breakpoints[id]; !ok {
		return abi.ErrorDiagObjectNotFound
	}
	delete(d.breakpoints, id)
	return abi.NoError
}

// DiagGetBreakpoints implements abi.Surface. Breakpoints are listed in
// creation order.
func (e *Engine) DiagGetBreakpoints() (abi.ValueRef, abi.ErrorCode) {
	c, d, code := e.debugging()
	if code != abi.NoError {
		return abi.InvalidValue, code
	}
	e.mu.Lock()
	bps := make([]breakpoint, 0, len(d.breakpoints))
	for _, bp := range d.breakpoints {
		bps = append(bps, bp)
	}
	e.mu.Unlock()
	sort.Slice(bps, func(i, j int) bool { return bps[i].id < bps[j].id })

	items := make([]any, len(bps))
	for i, bp := range bps {
		items[i] = eventObject(c.vm, bp.fields())
	}
	return e.wrap(c, c.vm.NewArray(items...), 0)
}

// DiagGetScripts implements abi.Surface.
func (e *Engine) DiagGetScripts() (abi.ValueRef, abi.ErrorCode) {
	c, _, code := e.debugging()
	if code != abi.NoError {
		return abi.InvalidValue, code
	}
	e.mu.Lock()
	scripts := append([]*scriptInfo(nil), c.rt.scripts...)
	e.mu.Unlock()

	items := make([]any, len(scripts))
	for i, s := range scripts {
		items[i] = eventObject(c.vm, s.fields())
	}
	return e.wrap(c, c.vm.NewArray(items...), 0)
}

// DiagGetSource implements abi.Surface.
func (e *Engine) DiagGetSource(scriptID uint32) (abi.ValueRef, abi.ErrorCode) {
	c, _, code := e.debugging()
	if code != abi.NoError {
		return abi.InvalidValue, code
	}
	e.mu.Lock()
	var script *scriptInfo
	for _, s := range c.rt.scripts {
		if s.id == scriptID {
			script = s
			break
		}
	}
	e.mu.Unlock()
	if script == nil {
		return abi.InvalidValue, abi.ErrorDiagObjectNotFound
	}
	fields := script.fields()
	fields["source"] = script.source
	return e.wrap(c, eventObject(c.vm, fields), uint64(len(script.source)))
}

// DiagSetStepType implements abi.Surface. Stepping needs a break, which the
// embedded engine never reaches.
func (e *Engine) DiagSetStepType(abi.DiagStepType) abi.ErrorCode {
	if _, _, code := e.debugging(); code != abi.NoError {
		return code
	}
	return abi.ErrorDiagNotAtBreak
}
