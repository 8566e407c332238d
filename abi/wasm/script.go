package wasm

import "github.com/6over3/jsrt/abi"

func (s *Surface) script(name, script string, cookie abi.SourceContext, url string) (abi.ValueRef, abi.ErrorCode) {
	f := s.frame()
	defer f.release()
	src, _ := f.wstring(script)
	u, _ := f.wstring(url)
	out := f.out(1)
	if f.code != abi.NoError {
		return abi.InvalidValue, f.code
	}
	if code := s.call(name, uint64(src), toCookie(cookie), uint64(u), uint64(out)); code != abi.NoError {
		return abi.InvalidValue, code
	}
	v, code := s.readU32(out)
	return abi.ValueRef(v), code
}

// ParseScript implements abi.Surface.
func (s *Surface) ParseScript(script string, cookie abi.SourceContext, url string) (abi.ValueRef, abi.ErrorCode) {
	return s.script("JsParseScript", script, cookie, url)
}

// RunScript implements abi.Surface.
func (s *Surface) RunScript(script string, cookie abi.SourceContext, url string) (abi.ValueRef, abi.ErrorCode) {
	return s.script("JsRunScript", script, cookie, url)
}

// SerializeScript implements abi.Surface using the guest's own two-call
// convention: a sizing call, then a copy when buffer is large enough.
func (s *Surface) SerializeScript(script string, buffer []byte) (int, abi.ErrorCode) {
	f := s.frame()
	defer f.release()
	src, _ := f.wstring(script)
	size := f.out(1)
	if f.code != abi.NoError {
		return 0, f.code
	}
	if code := s.call("JsSerializeScript", uint64(src), 0, uint64(size)); code != abi.NoError {
		return 0, code
	}
	n, code := s.readU32(size)
	if code != abi.NoError {
		return 0, code
	}
	if uint32(len(buffer)) < n {
		return int(n), abi.NoError
	}

	dst := f.alloc(n)
	if f.code != abi.NoError {
		return 0, f.code
	}
	if code := s.call("JsSerializeScript", uint64(src), uint64(dst), uint64(size)); code != abi.NoError {
		return 0, code
	}
	data, ok := s.mem.read(dst, n)
	if !ok {
		return 0, abi.ErrorFatal
	}
	copy(buffer, data)
	return int(n), abi.NoError
}

// serialized runs a serialized-script entry point. The guest keeps
// referring to the buffer after the call, so it stays allocated until the
// runtime is disposed.
func (s *Surface) serialized(name, script string, buffer []byte, cookie abi.SourceContext, url string) (abi.ValueRef, abi.ErrorCode) {
	f := s.frame()
	defer f.release()
	src, _ := f.wstring(script)
	u, _ := f.wstring(url)
	buf := f.bytes(buffer)
	out := f.out(1)
	if f.code != abi.NoError {
		return abi.InvalidValue, f.code
	}
	code := s.call(name, uint64(src), uint64(buf), toCookie(cookie), uint64(u), uint64(out))
	if code != abi.NoError {
		return abi.InvalidValue, code
	}
	f.keep(buf)
	s.retain(s.currentRuntime(), buf)
	v, code := s.readU32(out)
	return abi.ValueRef(v), code
}

// ParseSerializedScript implements abi.Surface.
func (s *Surface) ParseSerializedScript(script string, buffer []byte, cookie abi.SourceContext, url string) (abi.ValueRef, abi.ErrorCode) {
	return s.serialized("JsParseSerializedScript", script, buffer, cookie, url)
}

// RunSerializedScript implements abi.Surface.
func (s *Surface) RunSerializedScript(script string, buffer []byte, cookie abi.SourceContext, url string) (abi.ValueRef, abi.ErrorCode) {
	return s.serialized("JsRunSerializedScript", script, buffer, cookie, url)
}

// Idle implements abi.Surface.
func (s *Surface) Idle() (uint32, abi.ErrorCode) {
	return s.outRef("JsIdle")
}

// HasException implements abi.Surface.
func (s *Surface) HasException() (bool, abi.ErrorCode) {
	return s.outBool("JsHasException")
}

// GetAndClearException implements abi.Surface.
func (s *Surface) GetAndClearException() (abi.ValueRef, abi.ErrorCode) {
	return s.outValue("JsGetAndClearException")
}

// SetException implements abi.Surface.
func (s *Surface) SetException(exception abi.ValueRef) abi.ErrorCode {
	return s.call("JsSetException", ref(exception))
}
