package embedded

import (
	"github.com/dop251/goja"

	"github.com/6over3/jsrt/abi"
)

// reserve fails early when n more bytes would exceed the runtime limit.
func (e *Engine) reserve(rt *runtimeState, n uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return rt.limit == abi.NoMemoryLimit || rt.usage+n <= rt.limit
}

// CreateArrayBuffer implements abi.Surface.
func (e *Engine) CreateArrayBuffer(byteLength uint32) (abi.ValueRef, abi.ErrorCode) {
	c, code := e.active()
	if code != abi.NoError {
		return abi.InvalidValue, code
	}
	if !e.reserve(c.rt, uint64(byteLength)) {
		return abi.InvalidValue, abi.ErrorOutOfMemory
	}
	buf := c.vm.NewArrayBuffer(make([]byte, byteLength))
	return e.wrap(c, c.vm.ToValue(buf), uint64(byteLength))
}

// GetArrayBufferStorage implements abi.Surface. The slice aliases the
// buffer's backing store.
func (e *Engine) GetArrayBufferStorage(ref abi.ValueRef) ([]byte, abi.ErrorCode) {
	c, code := e.active()
	if code != abi.NoError {
		return nil, code
	}
	obj, code := e.object(c, ref)
	if code != abi.NoError {
		return nil, code
	}
	return arrayBufferBytes(obj)
}

func arrayBufferBytes(obj *goja.Object) ([]byte, abi.ErrorCode) {
	buf, ok := obj.Export().(goja.ArrayBuffer)
	if !ok {
		return nil, abi.ErrorInvalidArgument
	}
	return buf.Bytes(), abi.NoError
}

// CreateTypedArray implements abi.Surface. With an InvalidValue buffer a
// fresh zeroed array of length elements is allocated.
func (e *Engine) CreateTypedArray(kind abi.TypedArrayType, buffer abi.ValueRef, byteOffset, length uint32) (abi.ValueRef, abi.ErrorCode) {
	c, code := e.active()
	if code != abi.NoError {
		return abi.InvalidValue, code
	}
	name := kind.Constructor()
	if name == "" {
		return abi.InvalidValue, abi.ErrorInvalidArgument
	}
	ctor := c.vm.Get(name)

	var (
		args  []goja.Value
		extra uint64
	)
	if buffer.IsValid() {
		obj, code := e.object(c, buffer)
		if code != abi.NoError {
			return abi.InvalidValue, code
		}
		if e.typeOf(c, obj) != abi.TypeArrayBuffer {
			return abi.InvalidValue, abi.ErrorInvalidArgument
		}
		args = []goja.Value{obj, c.vm.ToValue(int64(byteOffset)), c.vm.ToValue(int64(length))}
	} else {
		extra = uint64(length) * uint64(kind.ElementSize())
		if !e.reserve(c.rt, extra) {
			return abi.InvalidValue, abi.ErrorOutOfMemory
		}
		args = []goja.Value{c.vm.ToValue(int64(length))}
	}
	arr, code := e.exec(c, func() (goja.Value, error) {
		return c.vm.New(ctor, args...)
	})
	if code != abi.NoError {
		return abi.InvalidValue, code
	}
	return e.wrap(c, arr, extra)
}

// GetTypedArrayStorage implements abi.Surface.
func (e *Engine) GetTypedArrayStorage(ref abi.ValueRef) (abi.TypedArrayStorage, abi.ErrorCode) {
	c, code := e.active()
	if code != abi.NoError {
		return abi.TypedArrayStorage{}, code
	}
	obj, code := e.object(c, ref)
	if code != abi.NoError {
		return abi.TypedArrayStorage{}, code
	}
	if e.typeOf(c, obj) != abi.TypeTypedArray {
		return abi.TypedArrayStorage{}, abi.ErrorInvalidArgument
	}
	info, code := e.call(c, "typedArrayInfo", obj)
	if code != abi.NoError {
		return abi.TypedArrayStorage{}, code
	}
	parts := info.ToObject(c.vm)
	backing, code := arrayBufferBytes(parts.Get("0").ToObject(c.vm))
	if code != abi.NoError {
		return abi.TypedArrayStorage{}, code
	}
	offset := parts.Get("1").ToInteger()
	size := parts.Get("2").ToInteger()
	kind, ok := abi.TypedArrayTypeOf(parts.Get("3").String())
	if !ok {
		return abi.TypedArrayStorage{}, abi.ErrorInvalidArgument
	}
	return abi.TypedArrayStorage{
		Data:        backing[offset : offset+size],
		Type:        kind,
		ElementSize: kind.ElementSize(),
	}, abi.NoError
}
