package embedded

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/6over3/jsrt/abi"
)

// Serialized script layout: magic, format version, source length and the
// SHA-256 of the source the buffer was produced from.
const (
	serializedMagic   = "JSRTSER\x00"
	serializedVersion = 1
	serializedSize    = len(serializedMagic) + 4 + 4 + sha256.Size
)

// compile parses script for c, reporting the outcome to an attached
// debugger and recording the source.
func (e *Engine) compile(c *contextState, script string, cookie abi.SourceContext, url string) (*goja.Program, abi.ErrorCode) {
	prog, err := goja.Compile(url, script, false)
	if err != nil {
		e.fireEvent(c, abi.DiagEventCompileError, map[string]any{
			"fileName": url,
			"error":    err.Error(),
		})
		e.setException(c, e.errorValue(c, "SyntaxError", err.Error()))
		return nil, abi.ErrorScriptCompile
	}
	info := e.recordScript(c, script, cookie, url)
	e.fireEvent(c, abi.DiagEventSourceCompile, info.fields())
	return prog, abi.NoError
}

// scriptFunction wraps prog in a function that runs it when called.
func (e *Engine) scriptFunction(c *contextState, prog *goja.Program) goja.Value {
	return c.vm.ToValue(func(goja.FunctionCall) goja.Value {
		v, err := c.vm.RunProgram(prog)
		if err != nil {
			if exc, ok := err.(*goja.Exception); ok {
				panic(exc.Value())
			}
			panic(err)
		}
		return v
	})
}

// ParseScript implements abi.Surface. The result is a function that runs
// the script when called.
func (e *Engine) ParseScript(script string, cookie abi.SourceContext, url string) (abi.ValueRef, abi.ErrorCode) {
	c, code := e.active()
	if code != abi.NoError {
		return abi.InvalidValue, code
	}
	prog, code := e.compile(c, script, cookie, url)
	if code != abi.NoError {
		return abi.InvalidValue, code
	}
	return e.wrap(c, e.scriptFunction(c, prog), uint64(len(script)))
}

// RunScript implements abi.Surface.
func (e *Engine) RunScript(script string, cookie abi.SourceContext, url string) (abi.ValueRef, abi.ErrorCode) {
	c, code := e.active()
	if code != abi.NoError {
		return abi.InvalidValue, code
	}
	prog, code := e.compile(c, script, cookie, url)
	if code != abi.NoError {
		return abi.InvalidValue, code
	}
	return e.run(c, prog)
}

func (e *Engine) run(c *contextState, prog *goja.Program) (abi.ValueRef, abi.ErrorCode) {
	v, code := e.exec(c, func() (goja.Value, error) {
		return c.vm.RunProgram(prog)
	})
	if code != abi.NoError {
		return abi.InvalidValue, code
	}
	return e.wrap(c, v, 0)
}

// SerializeScript implements abi.Surface. A nil or short buffer only
// reports the required size.
func (e *Engine) SerializeScript(script string, buffer []byte) (int, abi.ErrorCode) {
	c, code := e.active()
	if code != abi.NoError {
		return 0, code
	}
	prog, err := goja.Compile("", script, false)
	if err != nil {
		e.setException(c, e.errorValue(c, "SyntaxError", err.Error()))
		return 0, abi.ErrorScriptCompile
	}
	sum := sha256.Sum256([]byte(script))
	e.mu.Lock()
	e.programs[sum] = prog
	e.mu.Unlock()

	if len(buffer) < serializedSize {
		return serializedSize, abi.NoError
	}
	n := copy(buffer, serializedMagic)
	binary.LittleEndian.PutUint32(buffer[n:], serializedVersion)
	binary.LittleEndian.PutUint32(buffer[n+4:], uint32(len(script)))
	copy(buffer[n+8:], sum[:])
	return serializedSize, abi.NoError
}

// deserialize checks that buffer was produced from script.
func (e *Engine) deserialize(script string, buffer []byte) (*goja.Program, [32]byte, abi.ErrorCode) {
	var sum [32]byte
	if len(buffer) < serializedSize || !bytes.HasPrefix(buffer, []byte(serializedMagic)) {
		return nil, sum, abi.ErrorBadSerializedScript
	}
	n := len(serializedMagic)
	if binary.LittleEndian.Uint32(buffer[n:]) != serializedVersion ||
		binary.LittleEndian.Uint32(buffer[n+4:]) != uint32(len(script)) {
		return nil, sum, abi.ErrorBadSerializedScript
	}
	copy(sum[:], buffer[n+8:n+8+sha256.Size])
	if sum != sha256.Sum256([]byte(script)) {
		return nil, sum, abi.ErrorBadSerializedScript
	}
	e.mu.Lock()
	prog := e.programs[sum]
	e.mu.Unlock()
	return prog, sum, abi.NoError
}

func (e *Engine) loadSerialized(c *contextState, script string, buffer []byte, cookie abi.SourceContext, url string) (*goja.Program, abi.ErrorCode) {
	prog, sum, code := e.deserialize(script, buffer)
	if code != abi.NoError {
		e.log.Debug("serialized script rejected", zap.String("url", url))
		return nil, code
	}
	if prog == nil {
		if prog, code = e.compile(c, script, cookie, url); code != abi.NoError {
			return nil, code
		}
		e.mu.Lock()
		e.programs[sum] = prog
		e.mu.Unlock()
		return prog, abi.NoError
	}
	info := e.recordScript(c, script, cookie, url)
	e.fireEvent(c, abi.DiagEventSourceCompile, info.fields())
	return prog, abi.NoError
}

// ParseSerializedScript implements abi.Surface.
func (e *Engine) ParseSerializedScript(script string, buffer []byte, cookie abi.SourceContext, url string) (abi.ValueRef, abi.ErrorCode) {
	c, code := e.active()
	if code != abi.NoError {
		return abi.InvalidValue, code
	}
	prog, code := e.loadSerialized(c, script, buffer, cookie, url)
	if code != abi.NoError {
		return abi.InvalidValue, code
	}
	return e.wrap(c, e.scriptFunction(c, prog), uint64(len(script)))
}

// RunSerializedScript implements abi.Surface.
func (e *Engine) RunSerializedScript(script string, buffer []byte, cookie abi.SourceContext, url string) (abi.ValueRef, abi.ErrorCode) {
	c, code := e.active()
	if code != abi.NoError {
		return abi.InvalidValue, code
	}
	prog, code := e.loadSerialized(c, script, buffer, cookie, url)
	if code != abi.NoError {
		return abi.InvalidValue, code
	}
	return e.run(c, prog)
}

// idleInterval is the delay reported to the host before the next Idle.
const idleInterval = time.Second

// Idle implements abi.Surface. It sweeps unreachable values and returns the
// tick count, in milliseconds, at which the host should call it again.
func (e *Engine) Idle() (uint32, abi.ErrorCode) {
	c, code := e.active()
	if code != abi.NoError {
		return 0, code
	}
	if !c.rt.attrs.Has(abi.RuntimeAttributeEnableIdleProcessing) {
		return 0, abi.ErrorIdleNotEnabled
	}
	e.mu.Lock()
	e.sweep(c.rt)
	e.mu.Unlock()
	next := time.Since(e.start) + idleInterval
	return uint32(next / time.Millisecond), abi.NoError
}

// HasException implements abi.Surface.
func (e *Engine) HasException() (bool, abi.ErrorCode) {
	c, code := e.current()
	if code != abi.NoError {
		return false, code
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return c.rt.hasException, abi.NoError
}

// GetAndClearException implements abi.Surface.
func (e *Engine) GetAndClearException() (abi.ValueRef, abi.ErrorCode) {
	c, code := e.current()
	if code != abi.NoError {
		return abi.InvalidValue, code
	}
	v, ok := e.takeException(c)
	if !ok {
		return abi.InvalidValue, abi.ErrorInvalidArgument
	}
	return e.wrap(c, v, 0)
}

// SetException implements abi.Surface.
func (e *Engine) SetException(ref abi.ValueRef) abi.ErrorCode {
	c, code := e.current()
	if code != abi.NoError {
		return code
	}
	v, code := e.value(c, ref)
	if code != abi.NoError {
		return code
	}
	e.setException(c, v)
	return abi.NoError
}
