package jsrt

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/6over3/jsrt/abi"
)

type debugEvent struct {
	event    abi.DiagDebugEvent
	scriptID uint32
	fileName string
}

func TestDebugging_Session(t *testing.T) {
	rt := newRuntime(t)
	c := newContext(t, rt)

	var (
		mu     sync.Mutex
		events []debugEvent
	)
	err := rt.StartDebugging(func(event abi.DiagDebugEvent, data Value) {
		ev := debugEvent{event: event}
		if event == abi.DiagEventSourceCompile {
			ev.scriptID, _ = uintField(data, "scriptId")
			if name, err := data.Get("fileName"); err == nil {
				ev.fileName, _ = name.Text()
			}
		}
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("StartDebugging: %v", err)
	}
	if err := rt.StartDebugging(func(abi.DiagDebugEvent, Value) {}); !errors.Is(err, ErrUsage) {
		t.Errorf("second StartDebugging = %v, want usage error", err)
	}

	const src = "var a = 1;\nvar b = 2;\na + b"
	err = c.RequestScope(func() error {
		if _, err := c.RunScript(src, SourceContextFrom(3), "dbg.js"); err != nil {
			return err
		}

		scripts, err := c.Scripts()
		if err != nil {
			return err
		}
		if len(scripts) != 1 {
			return fmt.Errorf("scripts = %+v, want one", scripts)
		}
		s := scripts[0]
		if s.FileName != "dbg.js" || s.LineCount != 3 || s.SourceLength != uint32(len(src)) {
			t.Errorf("script = %+v", s)
		}

		full, err := c.Source(s.ID)
		if err != nil {
			return err
		}
		if full.Source != src {
			t.Errorf("source = %q", full.Source)
		}

		bp, err := c.SetBreakpoint(s.ID, 1, 0)
		if err != nil {
			return err
		}
		if bp.ScriptID != s.ID || bp.Line != 1 || bp.ID == 0 {
			t.Errorf("breakpoint = %+v", bp)
		}
		bps, err := c.Breakpoints()
		if err != nil {
			return err
		}
		if len(bps) != 1 || bps[0] != bp {
			t.Errorf("breakpoints = %+v, want [%+v]", bps, bp)
		}
		if err := c.RemoveBreakpoint(bp.ID); err != nil {
			return err
		}
		if err := c.RemoveBreakpoint(bp.ID); !errors.Is(err, ErrUsage) {
			t.Errorf("removing twice = %v, want usage error", err)
		}
		if _, err := c.SetBreakpoint(s.ID, 99, 0); !errors.Is(err, ErrUsage) {
			t.Errorf("breakpoint past the end = %v, want usage error", err)
		}

		var je *Error
		if err := c.SetStepType(abi.DiagStepIn); !errors.As(err, &je) || je.Code != abi.ErrorDiagNotAtBreak {
			t.Errorf("SetStepType = %v, want %s", err, abi.ErrorDiagNotAtBreak)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	mu.Lock()
	got := append([]debugEvent(nil), events...)
	mu.Unlock()
	if len(got) == 0 || got[0].event != abi.DiagEventSourceCompile {
		t.Fatalf("events = %+v, want a source compile first", got)
	}
	if got[0].fileName != "dbg.js" || got[0].scriptID == 0 {
		t.Errorf("compile event = %+v", got[0])
	}

	if err := rt.StopDebugging(); err != nil {
		t.Fatalf("StopDebugging: %v", err)
	}
	if err := rt.StopDebugging(); !errors.Is(err, ErrUsage) {
		t.Errorf("second StopDebugging = %v, want usage error", err)
	}
}

func TestDebugging_AsyncBreak(t *testing.T) {
	rt := newRuntime(t)
	c := newContext(t, rt)

	breaks := 0
	if err := rt.StartDebugging(func(event abi.DiagDebugEvent, _ Value) {
		if event == abi.DiagEventAsyncBreak {
			breaks++
		}
	}); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = rt.StopDebugging() })

	if err := rt.RequestAsyncBreak(); err != nil {
		t.Fatalf("RequestAsyncBreak: %v", err)
	}
	eval(t, c, "1")
	eval(t, c, "2")
	if breaks != 1 {
		t.Errorf("async breaks = %d, want 1", breaks)
	}
}

func TestDebugging_NotInDebugMode(t *testing.T) {
	rt := newRuntime(t)
	c := newContext(t, rt)

	err := c.RequestScope(func() error {
		_, err := c.Scripts()
		return err
	})
	var je *Error
	if !errors.As(err, &je) || je.Code != abi.ErrorDiagNotInDebugMode {
		t.Errorf("Scripts without a session = %v, want %s", err, abi.ErrorDiagNotInDebugMode)
	}
	if err := rt.StartDebugging(nil); !errors.Is(err, ErrUsage) {
		t.Errorf("StartDebugging(nil) = %v, want usage error", err)
	}
}
