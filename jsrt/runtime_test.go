package jsrt

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/6over3/jsrt/abi"
	"github.com/6over3/jsrt/abi/embedded"
)

// newRuntime creates a runtime on a private embedded engine and disposes it
// when the test ends.
func newRuntime(t *testing.T, opts ...Option) *Runtime {
	t.Helper()
	opts = append([]Option{WithSurface(embedded.New())}, opts...)
	rt, err := NewRuntime(opts...)
	if err != nil {
		t.Fatalf("NewRuntime: %v", err)
	}
	t.Cleanup(func() {
		if err := rt.Dispose(); err != nil {
			t.Errorf("Dispose: %v", err)
		}
	})
	return rt
}

func newContext(t *testing.T, rt *Runtime) *Context {
	t.Helper()
	c, err := rt.CreateContext()
	if err != nil {
		t.Fatalf("CreateContext: %v", err)
	}
	return c
}

// eval runs src in a scope for c and returns the completion value as text.
func eval(t *testing.T, c *Context, src string) string {
	t.Helper()
	out, err := RequestScopeValue(c, func() (string, error) {
		v, err := c.RunScript(src, SourceContextNone, "test.js")
		if err != nil {
			return "", err
		}
		return v.Text()
	})
	if err != nil {
		t.Fatalf("eval %q: %v", src, err)
	}
	return out
}

// countingSurface counts runtime disposals.
type countingSurface struct {
	abi.Surface

	mu       sync.Mutex
	disposes int
}

func (s *countingSurface) DisposeRuntime(ref abi.RuntimeRef) abi.ErrorCode {
	s.mu.Lock()
	s.disposes++
	s.mu.Unlock()
	return s.Surface.DisposeRuntime(ref)
}

func TestRuntime_DisposeTwice(t *testing.T) {
	s := &countingSurface{Surface: embedded.New()}
	rt, err := NewRuntime(WithSurface(s))
	if err != nil {
		t.Fatalf("NewRuntime: %v", err)
	}
	c, err := rt.CreateContext()
	if err != nil {
		t.Fatalf("CreateContext: %v", err)
	}

	if err := rt.Dispose(); err != nil {
		t.Fatalf("first Dispose: %v", err)
	}
	if err := rt.Dispose(); err != nil {
		t.Fatalf("second Dispose: %v", err)
	}
	if s.disposes != 1 {
		t.Errorf("engine disposals = %d, want 1", s.disposes)
	}

	err = c.RequestScope(func() error { return nil })
	if !errors.Is(err, ErrUsage) {
		t.Errorf("RequestScope after Dispose = %v, want usage error", err)
	}
	if _, err := rt.CreateContext(); !errors.Is(err, ErrUsage) {
		t.Errorf("CreateContext after Dispose = %v, want usage error", err)
	}
}

func TestRuntime_MemoryLimit(t *testing.T) {
	rt := newRuntime(t, WithMemoryLimit(64<<20))

	limit, err := rt.MemoryLimit()
	if err != nil {
		t.Fatalf("MemoryLimit: %v", err)
	}
	if limit != 64<<20 {
		t.Errorf("limit = %d, want %d", limit, 64<<20)
	}
	if err := rt.SetMemoryLimit(abi.NoMemoryLimit); err != nil {
		t.Fatalf("SetMemoryLimit: %v", err)
	}
	if limit, _ = rt.MemoryLimit(); limit != abi.NoMemoryLimit {
		t.Errorf("limit = %d, want none", limit)
	}
	if _, err := rt.MemoryUsage(); err != nil {
		t.Errorf("MemoryUsage: %v", err)
	}
	if err := rt.CollectGarbage(); err != nil {
		t.Errorf("CollectGarbage: %v", err)
	}
}

func TestContext_GlobalSurvivesScopes(t *testing.T) {
	rt := newRuntime(t)
	c := newContext(t, rt)

	eval(t, c, "var x = 42")
	if got := eval(t, c, "x"); got != "42" {
		t.Errorf("x = %s, want 42", got)
	}
}

func TestContext_SeparateGlobals(t *testing.T) {
	rt := newRuntime(t)
	a := newContext(t, rt)
	b := newContext(t, rt)

	eval(t, a, "var v = 1")
	eval(t, b, "var v = 2")

	if got := eval(t, a, "v"); got != "1" {
		t.Errorf("v in first context = %s, want 1", got)
	}
	if got := eval(t, b, "v"); got != "2" {
		t.Errorf("v in second context = %s, want 2", got)
	}
}

func TestContext_SurvivesCollection(t *testing.T) {
	rt := newRuntime(t)
	c := newContext(t, rt)

	eval(t, c, "var kept = 'yes'")
	if err := rt.CollectGarbage(); err != nil {
		t.Fatalf("CollectGarbage: %v", err)
	}
	if got := eval(t, c, "kept"); got != "yes" {
		t.Errorf("kept = %s, want yes", got)
	}
}

func TestContext_RefCount(t *testing.T) {
	rt := newRuntime(t)
	c := newContext(t, rt)

	n, err := c.AddRef()
	if err != nil || n != 2 {
		t.Fatalf("AddRef = %d, %v; want 2", n, err)
	}
	if n, err = c.Release(); err != nil || n != 1 {
		t.Fatalf("Release = %d, %v; want 1", n, err)
	}
	if n, err = c.Release(); err != nil || n != 0 {
		t.Fatalf("final Release = %d, %v; want 0", n, err)
	}
	if err := c.RequestScope(func() error { return nil }); !errors.Is(err, ErrUsage) {
		t.Errorf("RequestScope on released context = %v, want usage error", err)
	}
}

func TestValue_RefCountRoundTrip(t *testing.T) {
	rt := newRuntime(t)
	c := newContext(t, rt)

	err := c.RequestScope(func() error {
		v, err := c.NewObject()
		if err != nil {
			return err
		}
		before, err := v.AddRef()
		if err != nil {
			return err
		}
		if _, err := v.AddRef(); err != nil {
			return err
		}
		after, err := v.Release()
		if err != nil {
			return err
		}
		if after != before {
			t.Errorf("count after Release = %d, want %d", after, before)
		}
		n, err := v.Release()
		if err != nil {
			return err
		}
		if n != before-1 {
			t.Errorf("final count = %d, want %d", n, before-1)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestValue_Int32RoundTrip(t *testing.T) {
	rt := newRuntime(t)
	c := newContext(t, rt)

	for _, n := range []int32{0, -1, 1, math.MaxInt32, math.MinInt32} {
		got, err := RequestScopeValue(c, func() (int32, error) {
			v, err := c.FromInt32(n)
			if err != nil {
				return 0, err
			}
			typ, err := v.Type()
			if err != nil {
				return 0, err
			}
			if typ != abi.TypeNumber {
				t.Errorf("type of %d = %s, want number", n, typ)
			}
			return v.ToInt32()
		})
		if err != nil {
			t.Fatalf("round trip %d: %v", n, err)
		}
		if got != n {
			t.Errorf("round trip %d = %d", n, got)
		}
	}
}

func TestValue_Float64AndString(t *testing.T) {
	rt := newRuntime(t)
	c := newContext(t, rt)

	err := c.RequestScope(func() error {
		f, err := c.FromFloat64(0.1)
		if err != nil {
			return err
		}
		if got, err := f.ToFloat64(); err != nil || got != 0.1 {
			t.Errorf("ToFloat64 = %v, %v; want 0.1", got, err)
		}
		s, err := c.FromString("héllo")
		if err != nil {
			return err
		}
		if got, err := s.ToString(); err != nil || got != "héllo" {
			t.Errorf("ToString = %q, %v", got, err)
		}
		b, err := c.FromBool(true)
		if err != nil {
			return err
		}
		if got, err := b.ToBool(); err != nil || !got {
			t.Errorf("ToBool = %v, %v", got, err)
		}
		if _, err := s.ToBool(); !errors.Is(err, ErrUsage) {
			t.Errorf("ToBool of a string = %v, want usage error", err)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestValue_Properties(t *testing.T) {
	rt := newRuntime(t)
	c := newContext(t, rt)

	err := c.RequestScope(func() error {
		obj, err := c.NewObject()
		if err != nil {
			return err
		}
		n, err := c.FromInt32(7)
		if err != nil {
			return err
		}
		if err := obj.Set("seven", n); err != nil {
			return err
		}
		id, err := c.PropertyID("seven")
		if err != nil {
			return err
		}
		if has, err := obj.HasProperty(id); err != nil || !has {
			t.Errorf("HasProperty = %v, %v", has, err)
		}
		if name, err := id.Name(); err != nil || name != "seven" {
			t.Errorf("Name = %q, %v", name, err)
		}
		got, err := obj.Get("seven")
		if err != nil {
			return err
		}
		if v, _ := got.ToInt32(); v != 7 {
			t.Errorf("seven = %d", v)
		}
		if _, err := obj.DeleteProperty(id, true); err != nil {
			return err
		}
		if has, _ := obj.HasProperty(id); has {
			t.Error("property survived delete")
		}

		g, err := c.GlobalObject()
		if err != nil {
			return err
		}
		if err := g.Set("box", obj); err != nil {
			return err
		}
		_, err = c.RunScript("box.added = box.seven === undefined", SourceContextNone, "props.js")
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := eval(t, c, "box.added"); got != "true" {
		t.Errorf("box.added = %s", got)
	}
}

func TestValue_InvalidHandleIsUsageError(t *testing.T) {
	var v Value
	_, err := v.ToInt32()
	if err == nil {
		t.Fatal("ToInt32 on the invalid handle succeeded")
	}
	if !errors.Is(err, ErrUsage) {
		t.Errorf("err = %v, want usage error", err)
	}
	if errors.Is(err, ErrEngine) || errors.Is(err, ErrFatal) || errors.Is(err, ErrScript) {
		t.Errorf("err = %v matches a non-usage kind", err)
	}
	var je *Error
	if !errors.As(err, &je) || je.Code == abi.NoError {
		t.Fatalf("err = %#v, want *Error with a failure code", err)
	}
	if !strings.Contains(err.Error(), "invalid value handle") {
		t.Errorf("message %q does not describe the handle", err.Error())
	}
}

func TestValue_OtherRuntimeIsUsageError(t *testing.T) {
	home := newContext(t, newRuntime(t))
	away := newContext(t, newRuntime(t))

	type foreign struct {
		v  Value
		id PropertyID
	}
	f, err := RequestScopeValue(home, func() (foreign, error) {
		v, err := home.FromInt32(1)
		if err != nil {
			return foreign{}, err
		}
		id, err := home.PropertyID("x")
		return foreign{v, id}, err
	})
	if err != nil {
		t.Fatal(err)
	}

	var setErr, getErr error
	err = away.RequestScope(func() error {
		setErr = away.SetException(f.v)
		g, err := away.GlobalObject()
		if err != nil {
			return err
		}
		_, getErr = g.GetProperty(f.id)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	for name, err := range map[string]error{"SetException": setErr, "GetProperty": getErr} {
		var je *Error
		if !errors.As(err, &je) {
			t.Errorf("%s: err = %v, want *Error", name, err)
			continue
		}
		if je.Kind != KindUsage || kindOf(je.Code) != je.Kind {
			t.Errorf("%s: kind %s with code %s", name, je.Kind, je.Code)
		}
		if !strings.Contains(je.Detail, "another runtime") {
			t.Errorf("%s: detail %q", name, je.Detail)
		}
	}
}

func TestContext_OutsideScopeIsUsageError(t *testing.T) {
	rt := newRuntime(t)
	c := newContext(t, rt)

	_, err := c.RunScript("1", SourceContextNone, "")
	var je *Error
	if !errors.As(err, &je) {
		t.Fatalf("RunScript outside a scope = %v, want *Error", err)
	}
	if je.Kind != KindUsage || je.Code != abi.ErrorNoCurrentContext {
		t.Errorf("kind, code = %s, %s; want usage, %s", je.Kind, je.Code, abi.ErrorNoCurrentContext)
	}
}

func TestContext_ScriptException(t *testing.T) {
	rt := newRuntime(t)
	c := newContext(t, rt)

	err := c.RequestScope(func() error {
		_, err := c.RunScript("throw new TypeError('boom')", SourceContextFrom(1), "throw.js")
		var je *Error
		if !errors.As(err, &je) || !errors.Is(err, ErrScript) {
			return fmt.Errorf("err = %v, want script error", err)
		}
		if !je.Exception.IsValid() {
			return errors.New("script error carries no exception")
		}
		if !strings.Contains(je.Error(), "boom") {
			t.Errorf("message %q lacks the exception text", je.Error())
		}
		msg, err := je.Exception.Get("message")
		if err != nil {
			return err
		}
		if text, _ := msg.Text(); text != "boom" {
			t.Errorf("exception message = %q", text)
		}
		has, err := c.HasException()
		if err != nil {
			return err
		}
		if has {
			t.Error("exception still pending after translation")
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestContext_CompileError(t *testing.T) {
	rt := newRuntime(t)
	c := newContext(t, rt)

	err := c.RequestScope(func() error {
		_, err := c.ParseScript("var = ;", SourceContextNone, "bad.js")
		return err
	})
	var je *Error
	if !errors.As(err, &je) || je.Kind != KindScript || je.Code != abi.ErrorScriptCompile {
		t.Fatalf("ParseScript = %v, want compile error", err)
	}
}

func TestContext_SetException(t *testing.T) {
	rt := newRuntime(t)
	c := newContext(t, rt)

	err := c.RequestScope(func() error {
		exc, err := c.NewRangeError("out of range")
		if err != nil {
			return err
		}
		if err := c.SetException(exc); err != nil {
			return err
		}
		got, err := c.GetAndClearException()
		if err != nil {
			return err
		}
		if same, _ := got.StrictEquals(exc); !same {
			t.Error("cleared exception differs from the one set")
		}
		if _, err := c.GetAndClearException(); !errors.Is(err, ErrUsage) {
			t.Errorf("second GetAndClearException = %v, want usage error", err)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestContext_SerializedScript(t *testing.T) {
	rt := newRuntime(t)
	c := newContext(t, rt)
	const src = "var serialized = 6 * 7; serialized"

	err := c.RequestScope(func() error {
		buf, err := c.SerializeScript(src)
		if err != nil {
			return err
		}
		v, err := c.RunSerializedScript(src, buf, SourceContextNone, "ser.js")
		if err != nil {
			return err
		}
		if n, _ := v.ToInt32(); n != 42 {
			t.Errorf("serialized result = %d", n)
		}
		_, err = c.RunSerializedScript("1 + 1", buf, SourceContextNone, "ser.js")
		var je *Error
		if !errors.As(err, &je) || je.Code != abi.ErrorBadSerializedScript {
			t.Errorf("mismatched source = %v, want %s", err, abi.ErrorBadSerializedScript)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestRuntime_DisableExecution(t *testing.T) {
	rt := newRuntime(t, WithAttributes(abi.RuntimeAttributeAllowScriptInterrupt))
	c := newContext(t, rt)

	if err := rt.DisableExecution(); err != nil {
		t.Fatalf("DisableExecution: %v", err)
	}
	if off, _ := rt.IsExecutionDisabled(); !off {
		t.Error("execution not reported disabled")
	}
	err := c.RequestScope(func() error {
		_, err := c.RunScript("1", SourceContextNone, "")
		return err
	})
	if err == nil {
		t.Error("script ran while execution was disabled")
	}
	if err := rt.EnableExecution(); err != nil {
		t.Fatalf("EnableExecution: %v", err)
	}
	if got := eval(t, c, "1 + 1"); got != "2" {
		t.Errorf("after enable = %s", got)
	}
}

func TestRuntime_DisableWithoutInterruptFails(t *testing.T) {
	rt := newRuntime(t)
	err := rt.DisableExecution()
	var je *Error
	if !errors.As(err, &je) || je.Code != abi.ErrorCannotDisableExecution {
		t.Errorf("DisableExecution = %v, want %s", err, abi.ErrorCannotDisableExecution)
	}
}
