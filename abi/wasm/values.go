package wasm

import (
	"github.com/tetratelabs/wazero/api"

	"github.com/6over3/jsrt/abi"
)

// GetUndefinedValue implements abi.Surface.
func (s *Surface) GetUndefinedValue() (abi.ValueRef, abi.ErrorCode) {
	return s.outValue("JsGetUndefinedValue")
}

// GetNullValue implements abi.Surface.
func (s *Surface) GetNullValue() (abi.ValueRef, abi.ErrorCode) {
	return s.outValue("JsGetNullValue")
}

// GetTrueValue implements abi.Surface.
func (s *Surface) GetTrueValue() (abi.ValueRef, abi.ErrorCode) {
	return s.outValue("JsGetTrueValue")
}

// GetFalseValue implements abi.Surface.
func (s *Surface) GetFalseValue() (abi.ValueRef, abi.ErrorCode) {
	return s.outValue("JsGetFalseValue")
}

// GetGlobalObject implements abi.Surface.
func (s *Surface) GetGlobalObject() (abi.ValueRef, abi.ErrorCode) {
	return s.outValue("JsGetGlobalObject")
}

// BoolToBoolean implements abi.Surface.
func (s *Surface) BoolToBoolean(b bool) (abi.ValueRef, abi.ErrorCode) {
	return s.outValue("JsBoolToBoolean", flag(b))
}

// BooleanToBool implements abi.Surface.
func (s *Surface) BooleanToBool(v abi.ValueRef) (bool, abi.ErrorCode) {
	return s.outBool("JsBooleanToBool", ref(v))
}

// IntToNumber implements abi.Surface.
func (s *Surface) IntToNumber(n int32) (abi.ValueRef, abi.ErrorCode) {
	return s.outValue("JsIntToNumber", api.EncodeI32(n))
}

// DoubleToNumber implements abi.Surface. The value crosses as an f64
// parameter.
func (s *Surface) DoubleToNumber(x float64) (abi.ValueRef, abi.ErrorCode) {
	return s.outValue("JsDoubleToNumber", api.EncodeF64(x))
}

// NumberToInt implements abi.Surface.
func (s *Surface) NumberToInt(v abi.ValueRef) (int32, abi.ErrorCode) {
	n, code := s.outRef("JsNumberToInt", ref(v))
	return int32(n), code
}

// NumberToDouble implements abi.Surface.
func (s *Surface) NumberToDouble(v abi.ValueRef) (float64, abi.ErrorCode) {
	f := s.frame()
	defer f.release()
	out := f.out(1)
	if f.code != abi.NoError {
		return 0, f.code
	}
	if code := s.call("JsNumberToDouble", ref(v), uint64(out)); code != abi.NoError {
		return 0, code
	}
	x, ok := s.mem.f64(out)
	if !ok {
		return 0, abi.ErrorFatal
	}
	return x, abi.NoError
}

// PointerToString implements abi.Surface.
func (s *Surface) PointerToString(str string) (abi.ValueRef, abi.ErrorCode) {
	f := s.frame()
	defer f.release()
	p, n := f.wstring(str)
	out := f.out(1)
	if f.code != abi.NoError {
		return abi.InvalidValue, f.code
	}
	if code := s.call("JsPointerToString", uint64(p), uint64(n), uint64(out)); code != abi.NoError {
		return abi.InvalidValue, code
	}
	v, code := s.readU32(out)
	return abi.ValueRef(v), code
}

// StringToPointer implements abi.Surface. The guest returns a pointer into
// its own string storage, which is decoded immediately.
func (s *Surface) StringToPointer(v abi.ValueRef) (string, abi.ErrorCode) {
	f := s.frame()
	defer f.release()
	out := f.out(2)
	if f.code != abi.NoError {
		return "", f.code
	}
	if code := s.call("JsStringToPointer", ref(v), uint64(out), uint64(out+8)); code != abi.NoError {
		return "", code
	}
	p, code := s.readU32(out)
	if code != abi.NoError {
		return "", code
	}
	n, code := s.readU32(out + 8)
	if code != abi.NoError {
		return "", code
	}
	str, err := s.mem.utf16(p, n)
	if err != nil {
		return "", abi.ErrorFatal
	}
	return str, abi.NoError
}

// ConvertValueToBoolean implements abi.Surface.
func (s *Surface) ConvertValueToBoolean(v abi.ValueRef) (abi.ValueRef, abi.ErrorCode) {
	return s.outValue("JsConvertValueToBoolean", ref(v))
}

// ConvertValueToNumber implements abi.Surface.
func (s *Surface) ConvertValueToNumber(v abi.ValueRef) (abi.ValueRef, abi.ErrorCode) {
	return s.outValue("JsConvertValueToNumber", ref(v))
}

// ConvertValueToString implements abi.Surface.
func (s *Surface) ConvertValueToString(v abi.ValueRef) (abi.ValueRef, abi.ErrorCode) {
	return s.outValue("JsConvertValueToString", ref(v))
}

// ConvertValueToObject implements abi.Surface.
func (s *Surface) ConvertValueToObject(v abi.ValueRef) (abi.ValueRef, abi.ErrorCode) {
	return s.outValue("JsConvertValueToObject", ref(v))
}

// GetValueType implements abi.Surface.
func (s *Surface) GetValueType(v abi.ValueRef) (abi.ValueType, abi.ErrorCode) {
	t, code := s.outRef("JsGetValueType", ref(v))
	return abi.ValueType(t), code
}

// Equals implements abi.Surface.
func (s *Surface) Equals(a, b abi.ValueRef) (bool, abi.ErrorCode) {
	return s.outBool("JsEquals", ref(a), ref(b))
}

// StrictEquals implements abi.Surface.
func (s *Surface) StrictEquals(a, b abi.ValueRef) (bool, abi.ErrorCode) {
	return s.outBool("JsStrictEquals", ref(a), ref(b))
}

// InstanceOf implements abi.Surface.
func (s *Surface) InstanceOf(obj, constructor abi.ValueRef) (bool, abi.ErrorCode) {
	return s.outBool("JsInstanceOf", ref(obj), ref(constructor))
}

// CreateObject implements abi.Surface.
func (s *Surface) CreateObject() (abi.ValueRef, abi.ErrorCode) {
	return s.outValue("JsCreateObject")
}

// CreateArray implements abi.Surface.
func (s *Surface) CreateArray(length uint32) (abi.ValueRef, abi.ErrorCode) {
	return s.outValue("JsCreateArray", uint64(length))
}

// CreateError implements abi.Surface. Each error type maps to its own
// entry point (JsCreateRangeError, ...).
func (s *Surface) CreateError(kind abi.ErrorType, message abi.ValueRef) (abi.ValueRef, abi.ErrorCode) {
	return s.outValue("JsCreate"+kind.Constructor(), ref(message))
}

// GetPrototype implements abi.Surface.
func (s *Surface) GetPrototype(obj abi.ValueRef) (abi.ValueRef, abi.ErrorCode) {
	return s.outValue("JsGetPrototype", ref(obj))
}

// SetPrototype implements abi.Surface.
func (s *Surface) SetPrototype(obj, proto abi.ValueRef) abi.ErrorCode {
	return s.call("JsSetPrototype", ref(obj), ref(proto))
}

// GetPropertyIDFromName implements abi.Surface.
func (s *Surface) GetPropertyIDFromName(name string) (abi.PropertyIDRef, abi.ErrorCode) {
	f := s.frame()
	defer f.release()
	p, _ := f.wstring(name)
	out := f.out(1)
	if f.code != abi.NoError {
		return 0, f.code
	}
	if code := s.call("JsGetPropertyIdFromName", uint64(p), uint64(out)); code != abi.NoError {
		return 0, code
	}
	v, code := s.readU32(out)
	return abi.PropertyIDRef(v), code
}

// GetPropertyNameFromID implements abi.Surface.
func (s *Surface) GetPropertyNameFromID(id abi.PropertyIDRef) (string, abi.ErrorCode) {
	p, code := s.outRef("JsGetPropertyNameFromId", ref(id))
	if code != abi.NoError {
		return "", code
	}
	name, err := s.mem.wstring(p)
	if err != nil {
		return "", abi.ErrorFatal
	}
	return name, abi.NoError
}

// GetPropertyIDFromSymbol implements abi.Surface.
func (s *Surface) GetPropertyIDFromSymbol(symbol abi.ValueRef) (abi.PropertyIDRef, abi.ErrorCode) {
	id, code := s.outRef("JsGetPropertyIdFromSymbol", ref(symbol))
	return abi.PropertyIDRef(id), code
}

// GetSymbolFromPropertyID implements abi.Surface.
func (s *Surface) GetSymbolFromPropertyID(id abi.PropertyIDRef) (abi.ValueRef, abi.ErrorCode) {
	return s.outValue("JsGetSymbolFromPropertyId", ref(id))
}

// GetPropertyIDType implements abi.Surface.
func (s *Surface) GetPropertyIDType(id abi.PropertyIDRef) (abi.PropertyIDType, abi.ErrorCode) {
	t, code := s.outRef("JsGetPropertyIdType", ref(id))
	return abi.PropertyIDType(t), code
}

// CreateSymbol implements abi.Surface.
func (s *Surface) CreateSymbol(description abi.ValueRef) (abi.ValueRef, abi.ErrorCode) {
	return s.outValue("JsCreateSymbol", ref(description))
}

// GetProperty implements abi.Surface.
func (s *Surface) GetProperty(obj abi.ValueRef, id abi.PropertyIDRef) (abi.ValueRef, abi.ErrorCode) {
	return s.outValue("JsGetProperty", ref(obj), ref(id))
}

// SetProperty implements abi.Surface.
func (s *Surface) SetProperty(obj abi.ValueRef, id abi.PropertyIDRef, value abi.ValueRef, strict bool) abi.ErrorCode {
	return s.call("JsSetProperty", ref(obj), ref(id), ref(value), flag(strict))
}

// HasProperty implements abi.Surface.
func (s *Surface) HasProperty(obj abi.ValueRef, id abi.PropertyIDRef) (bool, abi.ErrorCode) {
	return s.outBool("JsHasProperty", ref(obj), ref(id))
}

// DeleteProperty implements abi.Surface.
func (s *Surface) DeleteProperty(obj abi.ValueRef, id abi.PropertyIDRef, strict bool) (abi.ValueRef, abi.ErrorCode) {
	return s.outValue("JsDeleteProperty", ref(obj), ref(id), flag(strict))
}

// DefineProperty implements abi.Surface.
func (s *Surface) DefineProperty(obj abi.ValueRef, id abi.PropertyIDRef, descriptor abi.ValueRef) (bool, abi.ErrorCode) {
	return s.outBool("JsDefineProperty", ref(obj), ref(id), ref(descriptor))
}

// GetOwnPropertyDescriptor implements abi.Surface.
func (s *Surface) GetOwnPropertyDescriptor(obj abi.ValueRef, id abi.PropertyIDRef) (abi.ValueRef, abi.ErrorCode) {
	return s.outValue("JsGetOwnPropertyDescriptor", ref(obj), ref(id))
}

// GetOwnPropertyNames implements abi.Surface.
func (s *Surface) GetOwnPropertyNames(obj abi.ValueRef) (abi.ValueRef, abi.ErrorCode) {
	return s.outValue("JsGetOwnPropertyNames", ref(obj))
}

// GetIndexedProperty implements abi.Surface.
func (s *Surface) GetIndexedProperty(obj, index abi.ValueRef) (abi.ValueRef, abi.ErrorCode) {
	return s.outValue("JsGetIndexedProperty", ref(obj), ref(index))
}

// SetIndexedProperty implements abi.Surface.
func (s *Surface) SetIndexedProperty(obj, index, value abi.ValueRef) abi.ErrorCode {
	return s.call("JsSetIndexedProperty", ref(obj), ref(index), ref(value))
}

// HasIndexedProperty implements abi.Surface.
func (s *Surface) HasIndexedProperty(obj, index abi.ValueRef) (bool, abi.ErrorCode) {
	return s.outBool("JsHasIndexedProperty", ref(obj), ref(index))
}

// DeleteIndexedProperty implements abi.Surface.
func (s *Surface) DeleteIndexedProperty(obj, index abi.ValueRef) abi.ErrorCode {
	return s.call("JsDeleteIndexedProperty", ref(obj), ref(index))
}
