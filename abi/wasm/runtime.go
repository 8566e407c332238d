package wasm

import (
	"math"

	"go.uber.org/zap"

	"github.com/6over3/jsrt/abi"
)

// guestNoLimit is the size_t -1 the guest uses for "unlimited".
const guestNoLimit = math.MaxUint32

// CreateRuntime implements abi.Surface.
func (s *Surface) CreateRuntime(attrs abi.RuntimeAttributes) (abi.RuntimeRef, abi.ErrorCode) {
	rt, code := s.outRef("JsCreateRuntime", uint64(attrs), 0)
	if code == abi.NoError {
		s.log.Debug("runtime created", zap.Uint32("runtime", rt))
	}
	return abi.RuntimeRef(rt), code
}

// DisposeRuntime implements abi.Surface. Callback registrations and
// retained buffers owned by the runtime are released with it.
func (s *Surface) DisposeRuntime(rt abi.RuntimeRef) abi.ErrorCode {
	if code := s.call("JsDisposeRuntime", ref(rt)); code != abi.NoError {
		return code
	}
	n := s.cb.dropRuntime(rt)

	s.mu.Lock()
	bufs := s.retained[rt]
	delete(s.retained, rt)
	s.mu.Unlock()
	f := s.frame()
	f.ptrs = bufs
	f.release()

	s.log.Debug("runtime disposed", zap.Stringer("runtime", rt), zap.Int("callbacks", n))
	return abi.NoError
}

// CollectGarbage implements abi.Surface.
func (s *Surface) CollectGarbage(rt abi.RuntimeRef) abi.ErrorCode {
	return s.call("JsCollectGarbage", ref(rt))
}

// GetRuntimeMemoryUsage implements abi.Surface.
func (s *Surface) GetRuntimeMemoryUsage(rt abi.RuntimeRef) (uint64, abi.ErrorCode) {
	n, code := s.outRef("JsGetRuntimeMemoryUsage", ref(rt))
	return uint64(n), code
}

// GetRuntimeMemoryLimit implements abi.Surface.
func (s *Surface) GetRuntimeMemoryLimit(rt abi.RuntimeRef) (uint64, abi.ErrorCode) {
	n, code := s.outRef("JsGetRuntimeMemoryLimit", ref(rt))
	if code == abi.NoError && n == guestNoLimit {
		return abi.NoMemoryLimit, code
	}
	return uint64(n), code
}

// SetRuntimeMemoryLimit implements abi.Surface. Limits beyond the guest's
// 32-bit address space are rejected.
func (s *Surface) SetRuntimeMemoryLimit(rt abi.RuntimeRef, limit uint64) abi.ErrorCode {
	switch {
	case limit == abi.NoMemoryLimit:
		limit = guestNoLimit
	case limit >= guestNoLimit:
		return abi.ErrorInvalidArgument
	}
	return s.call("JsSetRuntimeMemoryLimit", ref(rt), limit)
}

// DisableRuntimeExecution implements abi.Surface.
func (s *Surface) DisableRuntimeExecution(rt abi.RuntimeRef) abi.ErrorCode {
	return s.call("JsDisableRuntimeExecution", ref(rt))
}

// EnableRuntimeExecution implements abi.Surface.
func (s *Surface) EnableRuntimeExecution(rt abi.RuntimeRef) abi.ErrorCode {
	return s.call("JsEnableRuntimeExecution", ref(rt))
}

// IsRuntimeExecutionDisabled implements abi.Surface.
func (s *Surface) IsRuntimeExecutionDisabled(rt abi.RuntimeRef) (bool, abi.ErrorCode) {
	return s.outBool("JsIsRuntimeExecutionDisabled", ref(rt))
}

// CreateContext implements abi.Surface.
func (s *Surface) CreateContext(rt abi.RuntimeRef) (abi.ContextRef, abi.ErrorCode) {
	c, code := s.outRef("JsCreateContext", ref(rt))
	return abi.ContextRef(c), code
}

// GetCurrentContext implements abi.Surface.
func (s *Surface) GetCurrentContext() (abi.ContextRef, abi.ErrorCode) {
	c, code := s.outRef("JsGetCurrentContext")
	return abi.ContextRef(c), code
}

// SetCurrentContext implements abi.Surface.
func (s *Surface) SetCurrentContext(ctx abi.ContextRef) abi.ErrorCode {
	return s.call("JsSetCurrentContext", ref(ctx))
}

// GetRuntime implements abi.Surface.
func (s *Surface) GetRuntime(ctx abi.ContextRef) (abi.RuntimeRef, abi.ErrorCode) {
	rt, code := s.outRef("JsGetRuntime", ref(ctx))
	return abi.RuntimeRef(rt), code
}

// GetContextOfObject implements abi.Surface.
func (s *Surface) GetContextOfObject(obj abi.ValueRef) (abi.ContextRef, abi.ErrorCode) {
	c, code := s.outRef("JsGetContextOfObject", ref(obj))
	return abi.ContextRef(c), code
}

// AddRef implements abi.Surface.
func (s *Surface) AddRef(r abi.Ref) (uint32, abi.ErrorCode) {
	return s.outRef("JsAddRef", ref(r))
}

// Release implements abi.Surface.
func (s *Surface) Release(r abi.Ref) (uint32, abi.ErrorCode) {
	return s.outRef("JsRelease", ref(r))
}
