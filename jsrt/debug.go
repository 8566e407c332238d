package jsrt

import (
	"go.uber.org/zap"

	"github.com/6over3/jsrt/abi"
)

// DebugHandler receives debug events. data is an object of the context the
// event was raised in, which is current while the handler runs.
type DebugHandler func(event abi.DiagDebugEvent, data Value)

// Breakpoint describes a breakpoint set with Context.SetBreakpoint.
type Breakpoint struct {
	ID       uint32
	ScriptID uint32
	Line     uint32
	Column   uint32
}

// Script describes a script known to the debugger.
type Script struct {
	ID           uint32
	FileName     string
	LineCount    uint32
	SourceLength uint32
	// Source is only filled by Context.Source.
	Source string
}

// StartDebugging puts the runtime in debug mode and routes events to h.
func (rt *Runtime) StartDebugging(h DebugHandler) error {
	if h == nil {
		return usageError(abi.ErrorNullArgument, "debug handler is nil")
	}
	cb := func(event abi.DiagDebugEvent, data abi.ValueRef, _ any) {
		c := rt.CurrentContext()
		if c == nil {
			rt.log.Warn("debug event outside a scope", zap.Stringer("event", event))
			return
		}
		if err := rt.callback("debug event", func() error {
			h(event, c.wrap(data))
			return nil
		}); err != nil {
			rt.log.Warn("debug handler failed", zap.Stringer("event", event), zap.Error(err))
		}
	}
	return rt.exclusive(func() error {
		if code := rt.s.DiagStartDebugging(rt.ref, cb, nil); code != abi.NoError {
			return codeError(code)
		}
		rt.mu.Lock()
		rt.debug = h
		rt.mu.Unlock()
		rt.log.Debug("debugging started")
		return nil
	})
}

// StopDebugging leaves debug mode.
func (rt *Runtime) StopDebugging() error {
	return rt.exclusive(func() error {
		if _, code := rt.s.DiagStopDebugging(rt.ref); code != abi.NoError {
			return codeError(code)
		}
		rt.mu.Lock()
		rt.debug = nil
		rt.mu.Unlock()
		return nil
	})
}

// RequestAsyncBreak asks the engine to break at the next statement. Like
// DisableExecution it may be called from any goroutine.
func (rt *Runtime) RequestAsyncBreak() error {
	if err := rt.valid(); err != nil {
		return err
	}
	return codeError(rt.s.DiagRequestAsyncBreak(rt.ref))
}

// SetBreakpoint sets a breakpoint at a zero-based line and column of a
// script.
func (c *Context) SetBreakpoint(scriptID, line, column uint32) (Breakpoint, error) {
	if err := c.active(); err != nil {
		return Breakpoint{}, err
	}
	v, code := c.rt.s.DiagSetBreakpoint(scriptID, line, column)
	if code != abi.NoError {
		return Breakpoint{}, c.translate(code)
	}
	return c.breakpoint(c.wrap(v))
}

// RemoveBreakpoint removes a breakpoint by id.
func (c *Context) RemoveBreakpoint(id uint32) error {
	if err := c.active(); err != nil {
		return err
	}
	return c.translate(c.rt.s.DiagRemoveBreakpoint(id))
}

// Breakpoints lists the breakpoints of the runtime.
func (c *Context) Breakpoints() ([]Breakpoint, error) {
	if err := c.active(); err != nil {
		return nil, err
	}
	arr, code := c.rt.s.DiagGetBreakpoints()
	if code != abi.NoError {
		return nil, c.translate(code)
	}
	var out []Breakpoint
	err := c.each(c.wrap(arr), func(v Value) error {
		bp, err := c.breakpoint(v)
		out = append(out, bp)
		return err
	})
	return out, err
}

// Scripts lists the scripts the debugger has seen.
func (c *Context) Scripts() ([]Script, error) {
	if err := c.active(); err != nil {
		return nil, err
	}
	arr, code := c.rt.s.DiagGetScripts()
	if code != abi.NoError {
		return nil, c.translate(code)
	}
	var out []Script
	err := c.each(c.wrap(arr), func(v Value) error {
		s, err := c.script(v)
		out = append(out, s)
		return err
	})
	return out, err
}

// Source returns the script with its source text.
func (c *Context) Source(scriptID uint32) (Script, error) {
	if err := c.active(); err != nil {
		return Script{}, err
	}
	v, code := c.rt.s.DiagGetSource(scriptID)
	if code != abi.NoError {
		return Script{}, c.translate(code)
	}
	obj := c.wrap(v)
	s, err := c.script(obj)
	if err != nil {
		return Script{}, err
	}
	src, err := obj.Get("source")
	if err != nil {
		return Script{}, err
	}
	if s.Source, err = src.Text(); err != nil {
		return Script{}, err
	}
	return s, nil
}

// SetStepType selects how execution resumes after a break.
func (c *Context) SetStepType(step abi.DiagStepType) error {
	if err := c.active(); err != nil {
		return err
	}
	return c.translate(c.rt.s.DiagSetStepType(step))
}

func (c *Context) breakpoint(v Value) (Breakpoint, error) {
	var (
		bp  Breakpoint
		err error
	)
	for _, f := range []struct {
		name string
		dst  *uint32
	}{
		{"breakpointId", &bp.ID},
		{"scriptId", &bp.ScriptID},
		{"line", &bp.Line},
		{"column", &bp.Column},
	} {
		if *f.dst, err = uintField(v, f.name); err != nil {
			return Breakpoint{}, err
		}
	}
	return bp, nil
}

func (c *Context) script(v Value) (Script, error) {
	var (
		s   Script
		err error
	)
	if s.ID, err = uintField(v, "scriptId"); err != nil {
		return Script{}, err
	}
	if s.LineCount, err = uintField(v, "lineCount"); err != nil {
		return Script{}, err
	}
	if s.SourceLength, err = uintField(v, "sourceLength"); err != nil {
		return Script{}, err
	}
	name, err := v.Get("fileName")
	if err != nil {
		return Script{}, err
	}
	if s.FileName, err = name.Text(); err != nil {
		return Script{}, err
	}
	return s, nil
}

func uintField(v Value, name string) (uint32, error) {
	f, err := v.Get(name)
	if err != nil {
		return 0, err
	}
	n, err := f.ToFloat64()
	return uint32(n), err
}

// each calls fn for every element of an array.
func (c *Context) each(arr Value, fn func(Value) error) error {
	lv, err := arr.Get("length")
	if err != nil {
		return err
	}
	n, err := lv.ToInt32()
	if err != nil {
		return err
	}
	for i := int32(0); i < n; i++ {
		item, err := arr.At(i)
		if err != nil {
			return err
		}
		if err := fn(item); err != nil {
			return err
		}
	}
	return nil
}
