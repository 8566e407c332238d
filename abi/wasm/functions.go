package wasm

import (
	"go.uber.org/zap"

	"github.com/6over3/jsrt/abi"
)

// native registers fn and returns the shim pointer and state to hand the
// guest.
func (s *Surface) native(owner abi.RuntimeRef, kind callbackKind, fn, state any) (*registration, uint32, abi.ErrorCode) {
	idx, code := s.shim(kind)
	if code != abi.NoError {
		return nil, 0, code
	}
	return s.cb.register(owner, kind, fn, state), idx, abi.NoError
}

// CreateFunction implements abi.Surface.
func (s *Surface) CreateFunction(fn abi.NativeFunction, state any) (abi.ValueRef, abi.ErrorCode) {
	return s.CreateNamedFunction(abi.InvalidValue, fn, state)
}

// CreateNamedFunction implements abi.Surface. An invalid name creates an
// anonymous function through JsCreateFunction.
func (s *Surface) CreateNamedFunction(name abi.ValueRef, fn abi.NativeFunction, state any) (abi.ValueRef, abi.ErrorCode) {
	if fn == nil {
		return abi.InvalidValue, abi.ErrorNullArgument
	}
	r, idx, code := s.native(s.currentRuntime(), kindNative, fn, state)
	if code != abi.NoError {
		return abi.InvalidValue, code
	}
	var v abi.ValueRef
	if name.IsValid() {
		v, code = s.outValue("JsCreateNamedFunction", ref(name), uint64(idx), uint64(r.id))
	} else {
		v, code = s.outValue("JsCreateFunction", uint64(idx), uint64(r.id))
	}
	if code != abi.NoError {
		s.cb.drop(r.id)
	}
	return v, code
}

func (s *Surface) invoke(name string, fn abi.ValueRef, args []abi.ValueRef) (abi.ValueRef, abi.ErrorCode) {
	if len(args) > 0xFFFF {
		return abi.InvalidValue, abi.ErrorInvalidArgument
	}
	f := s.frame()
	defer f.release()
	argv := f.tokens(args)
	out := f.out(1)
	if f.code != abi.NoError {
		return abi.InvalidValue, f.code
	}
	if code := s.call(name, ref(fn), uint64(argv), uint64(len(args)), uint64(out)); code != abi.NoError {
		return abi.InvalidValue, code
	}
	v, code := s.readU32(out)
	return abi.ValueRef(v), code
}

// CallFunction implements abi.Surface.
func (s *Surface) CallFunction(fn abi.ValueRef, args []abi.ValueRef) (abi.ValueRef, abi.ErrorCode) {
	return s.invoke("JsCallFunction", fn, args)
}

// ConstructObject implements abi.Surface.
func (s *Surface) ConstructObject(fn abi.ValueRef, args []abi.ValueRef) (abi.ValueRef, abi.ErrorCode) {
	return s.invoke("JsConstructObject", fn, args)
}

// SetPromiseContinuationCallback implements abi.Surface.
func (s *Surface) SetPromiseContinuationCallback(cb abi.PromiseContinuationCallback, state any) abi.ErrorCode {
	if cb == nil {
		return abi.ErrorNullArgument
	}
	r, idx, code := s.native(s.currentRuntime(), kindPromiseContinuation, cb, state)
	if code != abi.NoError {
		return code
	}
	if code := s.call("JsSetPromiseContinuationCallback", uint64(idx), uint64(r.id)); code != abi.NoError {
		s.cb.drop(r.id)
		return code
	}
	s.log.Debug("promise continuation registered", zap.Uint32("state", r.id))
	return abi.NoError
}

// CreateArrayBuffer implements abi.Surface.
func (s *Surface) CreateArrayBuffer(byteLength uint32) (abi.ValueRef, abi.ErrorCode) {
	return s.outValue("JsCreateArrayBuffer", uint64(byteLength))
}

// GetArrayBufferStorage implements abi.Surface. The returned slice is a
// view of guest memory.
func (s *Surface) GetArrayBufferStorage(buffer abi.ValueRef) ([]byte, abi.ErrorCode) {
	f := s.frame()
	defer f.release()
	out := f.out(2)
	if f.code != abi.NoError {
		return nil, f.code
	}
	if code := s.call("JsGetArrayBufferStorage", ref(buffer), uint64(out), uint64(out+8)); code != abi.NoError {
		return nil, code
	}
	return s.readSlice(out, out+8)
}

// CreateTypedArray implements abi.Surface.
func (s *Surface) CreateTypedArray(kind abi.TypedArrayType, buffer abi.ValueRef, byteOffset, length uint32) (abi.ValueRef, abi.ErrorCode) {
	return s.outValue("JsCreateTypedArray", uint64(kind), ref(buffer), uint64(byteOffset), uint64(length))
}

// GetTypedArrayStorage implements abi.Surface.
func (s *Surface) GetTypedArrayStorage(array abi.ValueRef) (abi.TypedArrayStorage, abi.ErrorCode) {
	f := s.frame()
	defer f.release()
	out := f.out(4)
	if f.code != abi.NoError {
		return abi.TypedArrayStorage{}, f.code
	}
	code := s.call("JsGetTypedArrayStorage", ref(array),
		uint64(out), uint64(out+8), uint64(out+16), uint64(out+24))
	if code != abi.NoError {
		return abi.TypedArrayStorage{}, code
	}
	data, code := s.readSlice(out, out+8)
	if code != abi.NoError {
		return abi.TypedArrayStorage{}, code
	}
	kind, code := s.readU32(out + 16)
	if code != abi.NoError {
		return abi.TypedArrayStorage{}, code
	}
	size, code := s.readU32(out + 24)
	if code != abi.NoError {
		return abi.TypedArrayStorage{}, code
	}
	return abi.TypedArrayStorage{
		Data:        data,
		Type:        abi.TypedArrayType(kind),
		ElementSize: int(int32(size)),
	}, abi.NoError
}
