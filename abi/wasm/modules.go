package wasm

import "github.com/6over3/jsrt/abi"

// parseModuleUTF8 is JsParseModuleSourceFlags_DataIsUTF8.
const parseModuleUTF8 = 1

// InitializeModuleRecord implements abi.Surface. The root sentinel crosses
// as a null referencing module.
func (s *Surface) InitializeModuleRecord(referencing abi.ModuleRef, specifier abi.ValueRef) (abi.ModuleRef, abi.ErrorCode) {
	if referencing == abi.InvalidModule {
		return abi.InvalidModule, abi.ErrorInvalidArgument
	}
	m, code := s.outRef("JsInitializeModuleRecord", uint64(toModule(referencing)), ref(specifier))
	return abi.ModuleRef(m), code
}

// ParseModuleSource implements abi.Surface. Source is passed as UTF-8.
func (s *Surface) ParseModuleSource(module abi.ModuleRef, cookie abi.SourceContext, source []byte) (abi.ValueRef, abi.ErrorCode) {
	f := s.frame()
	defer f.release()
	src := f.bytes(source)
	exc := f.out(1)
	if f.code != abi.NoError {
		return abi.InvalidValue, f.code
	}
	code := s.call("JsParseModuleSource", uint64(toModule(module)), toCookie(cookie),
		uint64(src), uint64(len(source)), parseModuleUTF8, uint64(exc))
	v, rcode := s.readU32(exc)
	if rcode != abi.NoError {
		return abi.InvalidValue, rcode
	}
	return abi.ValueRef(v), code
}

// ModuleEvaluation implements abi.Surface.
func (s *Surface) ModuleEvaluation(module abi.ModuleRef) (abi.ValueRef, abi.ErrorCode) {
	return s.outValue("JsModuleEvaluation", uint64(toModule(module)))
}

// SetModuleHostInfo implements abi.Surface. Callback slots take the typed
// abi callback; value slots take an abi.ValueRef, and the URL slot also
// accepts a Go string.
func (s *Surface) SetModuleHostInfo(module abi.ModuleRef, kind abi.ModuleHostInfoKind, info any) abi.ErrorCode {
	m := toModule(module)
	if ck, ok := moduleKind(kind); ok {
		if !callbackMatches(ck, info) {
			return abi.ErrorInvalidArgument
		}
		r, idx, code := s.native(s.currentRuntime(), ck, info, nil)
		if code != abi.NoError {
			return code
		}
		if code := s.call("JsSetModuleHostInfo", uint64(m), uint64(kind), uint64(idx)); code != abi.NoError {
			s.cb.drop(r.id)
			return code
		}
		s.cb.setModule(m, r)
		return abi.NoError
	}

	switch kind {
	case abi.ModuleHostInfoException, abi.ModuleHostInfoHostDefined, abi.ModuleHostInfoURL:
	default:
		return abi.ErrorInvalidModuleHostInfoKind
	}
	var v abi.ValueRef
	switch x := info.(type) {
	case abi.ValueRef:
		v = x
	case string:
		if kind != abi.ModuleHostInfoURL {
			return abi.ErrorInvalidArgument
		}
		var code abi.ErrorCode
		if v, code = s.PointerToString(x); code != abi.NoError {
			return code
		}
	case nil:
	default:
		return abi.ErrorInvalidArgument
	}
	return s.call("JsSetModuleHostInfo", uint64(m), uint64(kind), ref(v))
}

func callbackMatches(kind callbackKind, info any) bool {
	switch kind {
	case kindFetchImportedModule:
		_, ok := info.(abi.FetchImportedModuleCallback)
		return ok
	case kindFetchImportedModuleFromScript:
		_, ok := info.(abi.FetchImportedModuleFromScriptCallback)
		return ok
	case kindNotifyModuleReady:
		_, ok := info.(abi.NotifyModuleReadyCallback)
		return ok
	}
	return false
}

// GetModuleHostInfo implements abi.Surface. Callback slots return the Go
// callback that was set; value slots return an abi.ValueRef.
func (s *Surface) GetModuleHostInfo(module abi.ModuleRef, kind abi.ModuleHostInfoKind) (any, abi.ErrorCode) {
	m := toModule(module)
	p, code := s.outRef("JsGetModuleHostInfo", uint64(m), uint64(kind))
	if code != abi.NoError {
		return nil, code
	}
	if ck, ok := moduleKind(kind); ok {
		if p == 0 {
			return nil, abi.NoError
		}
		if r := s.cb.module(m, ck); r != nil {
			return r.fn, abi.NoError
		}
		return nil, abi.NoError
	}
	return abi.ValueRef(p), abi.NoError
}
