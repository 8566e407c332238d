package wasm

import "github.com/6over3/jsrt/abi"

// DiagStartDebugging implements abi.Surface.
func (s *Surface) DiagStartDebugging(rt abi.RuntimeRef, cb abi.DiagDebugEventCallback, state any) abi.ErrorCode {
	if cb == nil {
		return abi.ErrorNullArgument
	}
	r, idx, code := s.native(rt, kindDiagDebugEvent, cb, state)
	if code != abi.NoError {
		return code
	}
	if code := s.call("JsDiagStartDebugging", ref(rt), uint64(idx), uint64(r.id)); code != abi.NoError {
		s.cb.drop(r.id)
		return code
	}
	return abi.NoError
}

// DiagStopDebugging implements abi.Surface.
func (s *Surface) DiagStopDebugging(rt abi.RuntimeRef) (any, abi.ErrorCode) {
	id, code := s.outRef("JsDiagStopDebugging", ref(rt))
	if code != abi.NoError {
		return nil, code
	}
	r := s.cb.lookup(id)
	if r == nil {
		return nil, abi.NoError
	}
	s.cb.drop(id)
	return r.state, abi.NoError
}

// DiagRequestAsyncBreak implements abi.Surface.
func (s *Surface) DiagRequestAsyncBreak(rt abi.RuntimeRef) abi.ErrorCode {
	return s.call("JsDiagRequestAsyncBreak", ref(rt))
}

// DiagSetBreakpoint implements abi.Surface.
func (s *Surface) DiagSetBreakpoint(scriptID, line, column uint32) (abi.ValueRef, abi.ErrorCode) {
	return s.outValue("JsDiagSetBreakpoint", uint64(scriptID), uint64(line), uint64(column))
}

// DiagRemoveBreakpoint implements abi.Surface.
func (s *Surface) DiagRemoveBreakpoint(id uint32) abi.ErrorCode {
	return s.call("JsDiagRemoveBreakpoint", uint64(id))
}

// DiagGetBreakpoints implements abi.Surface.
func (s *Surface) DiagGetBreakpoints() (abi.ValueRef, abi.ErrorCode) {
	return s.outValue("JsDiagGetBreakpoints")
}

// DiagGetScripts implements abi.Surface.
func (s *Surface) DiagGetScripts() (abi.ValueRef, abi.ErrorCode) {
	return s.outValue("JsDiagGetScripts")
}

// DiagGetSource implements abi.Surface.
func (s *Surface) DiagGetSource(scriptID uint32) (abi.ValueRef, abi.ErrorCode) {
	return s.outValue("JsDiagGetSource", uint64(scriptID))
}

// DiagSetStepType implements abi.Surface.
func (s *Surface) DiagSetStepType(step abi.DiagStepType) abi.ErrorCode {
	return s.call("JsDiagSetStepType", uint64(step))
}
