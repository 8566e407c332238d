package embedded

import (
	"math"
	"reflect"
	"strings"

	"github.com/dop251/goja"

	"github.com/6over3/jsrt/abi"
)

func (e *Engine) wellKnown(pick func(c *contextState) abi.ValueRef) (abi.ValueRef, abi.ErrorCode) {
	c, code := e.active()
	if code != abi.NoError {
		return abi.InvalidValue, code
	}
	return pick(c), abi.NoError
}

// GetUndefinedValue implements abi.Surface.
func (e *Engine) GetUndefinedValue() (abi.ValueRef, abi.ErrorCode) {
	return e.wellKnown(func(c *contextState) abi.ValueRef { return c.undefined })
}

// GetNullValue implements abi.Surface.
func (e *Engine) GetNullValue() (abi.ValueRef, abi.ErrorCode) {
	return e.wellKnown(func(c *contextState) abi.ValueRef { return c.null })
}

// GetTrueValue implements abi.Surface.
func (e *Engine) GetTrueValue() (abi.ValueRef, abi.ErrorCode) {
	return e.wellKnown(func(c *contextState) abi.ValueRef { return c.trueValue })
}

// GetFalseValue implements abi.Surface.
func (e *Engine) GetFalseValue() (abi.ValueRef, abi.ErrorCode) {
	return e.wellKnown(func(c *contextState) abi.ValueRef { return c.falseValue })
}

// GetGlobalObject implements abi.Surface.
func (e *Engine) GetGlobalObject() (abi.ValueRef, abi.ErrorCode) {
	return e.wellKnown(func(c *contextState) abi.ValueRef { return c.global })
}

// BoolToBoolean implements abi.Surface.
func (e *Engine) BoolToBoolean(b bool) (abi.ValueRef, abi.ErrorCode) {
	return e.wellKnown(func(c *contextState) abi.ValueRef {
		if b {
			return c.trueValue
		}
		return c.falseValue
	})
}

// BooleanToBool implements abi.Surface.
func (e *Engine) BooleanToBool(ref abi.ValueRef) (bool, abi.ErrorCode) {
	c, code := e.active()
	if code != abi.NoError {
		return false, code
	}
	v, code := e.value(c, ref)
	if code != abi.NoError {
		return false, code
	}
	if e.typeOf(c, v) != abi.TypeBoolean {
		return false, abi.ErrorInvalidArgument
	}
	return v.ToBoolean(), abi.NoError
}

// IntToNumber implements abi.Surface.
func (e *Engine) IntToNumber(n int32) (abi.ValueRef, abi.ErrorCode) {
	c, code := e.active()
	if code != abi.NoError {
		return abi.InvalidValue, code
	}
	return e.wrap(c, c.vm.ToValue(int64(n)), 0)
}

// DoubleToNumber implements abi.Surface.
func (e *Engine) DoubleToNumber(f float64) (abi.ValueRef, abi.ErrorCode) {
	c, code := e.active()
	if code != abi.NoError {
		return abi.InvalidValue, code
	}
	return e.wrap(c, c.vm.ToValue(f), 0)
}

// NumberToInt implements abi.Surface. Values outside the int32 range wrap
// modulo 2^32; NaN and infinities convert to zero.
func (e *Engine) NumberToInt(ref abi.ValueRef) (int32, abi.ErrorCode) {
	c, code := e.active()
	if code != abi.NoError {
		return 0, code
	}
	v, code := e.value(c, ref)
	if code != abi.NoError {
		return 0, code
	}
	if e.typeOf(c, v) != abi.TypeNumber {
		return 0, abi.ErrorInvalidArgument
	}
	return toInt32(v.ToFloat()), abi.NoError
}

func toInt32(f float64) int32 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return int32(uint32(int64(math.Mod(math.Trunc(f), 1<<32))))
}

// NumberToDouble implements abi.Surface.
func (e *Engine) NumberToDouble(ref abi.ValueRef) (float64, abi.ErrorCode) {
	c, code := e.active()
	if code != abi.NoError {
		return 0, code
	}
	v, code := e.value(c, ref)
	if code != abi.NoError {
		return 0, code
	}
	if e.typeOf(c, v) != abi.TypeNumber {
		return 0, abi.ErrorInvalidArgument
	}
	return v.ToFloat(), abi.NoError
}

// PointerToString implements abi.Surface.
func (e *Engine) PointerToString(s string) (abi.ValueRef, abi.ErrorCode) {
	c, code := e.active()
	if code != abi.NoError {
		return abi.InvalidValue, code
	}
	return e.wrap(c, c.vm.ToValue(s), 0)
}

// StringToPointer implements abi.Surface.
func (e *Engine) StringToPointer(ref abi.ValueRef) (string, abi.ErrorCode) {
	c, code := e.active()
	if code != abi.NoError {
		return "", code
	}
	v, code := e.value(c, ref)
	if code != abi.NoError {
		return "", code
	}
	if e.typeOf(c, v) != abi.TypeString {
		return "", abi.ErrorInvalidArgument
	}
	return v.String(), abi.NoError
}

// convert applies an engine conversion that may run user code.
func (e *Engine) convert(ref abi.ValueRef, conv func(c *contextState, v goja.Value) goja.Value) (abi.ValueRef, abi.ErrorCode) {
	c, code := e.active()
	if code != abi.NoError {
		return abi.InvalidValue, code
	}
	v, code := e.value(c, ref)
	if code != abi.NoError {
		return abi.InvalidValue, code
	}
	out, code := e.exec(c, func() (goja.Value, error) {
		return conv(c, v), nil
	})
	if code != abi.NoError {
		return abi.InvalidValue, code
	}
	return e.wrap(c, out, 0)
}

// ConvertValueToBoolean implements abi.Surface.
func (e *Engine) ConvertValueToBoolean(ref abi.ValueRef) (abi.ValueRef, abi.ErrorCode) {
	return e.convert(ref, func(c *contextState, v goja.Value) goja.Value {
		return c.vm.ToValue(v.ToBoolean())
	})
}

// ConvertValueToNumber implements abi.Surface.
func (e *Engine) ConvertValueToNumber(ref abi.ValueRef) (abi.ValueRef, abi.ErrorCode) {
	return e.convert(ref, func(c *contextState, v goja.Value) goja.Value {
		return c.vm.ToValue(v.ToFloat())
	})
}

// ConvertValueToString implements abi.Surface.
func (e *Engine) ConvertValueToString(ref abi.ValueRef) (abi.ValueRef, abi.ErrorCode) {
	return e.convert(ref, func(c *contextState, v goja.Value) goja.Value {
		// goja's ToString hands numbers back unchanged.
		return c.vm.ToValue(v.ToString().String())
	})
}

// ConvertValueToObject implements abi.Surface.
func (e *Engine) ConvertValueToObject(ref abi.ValueRef) (abi.ValueRef, abi.ErrorCode) {
	return e.convert(ref, func(c *contextState, v goja.Value) goja.Value {
		return v.ToObject(c.vm)
	})
}

// GetValueType implements abi.Surface.
func (e *Engine) GetValueType(ref abi.ValueRef) (abi.ValueType, abi.ErrorCode) {
	c, code := e.active()
	if code != abi.NoError {
		return abi.TypeUndefined, code
	}
	v, code := e.value(c, ref)
	if code != abi.NoError {
		return abi.TypeUndefined, code
	}
	return e.typeOf(c, v), abi.NoError
}

// typeOf classifies v the way the engine's type query does.
func (e *Engine) typeOf(c *contextState, v goja.Value) abi.ValueType {
	switch {
	case v == nil || goja.IsUndefined(v):
		return abi.TypeUndefined
	case goja.IsNull(v):
		return abi.TypeNull
	}
	switch x := v.(type) {
	case *goja.Symbol:
		return abi.TypeSymbol
	case *goja.Object:
		return e.objectType(c, x)
	}
	if t := v.ExportType(); t != nil {
		switch t.Kind() {
		case reflect.Bool:
			return abi.TypeBoolean
		case reflect.String:
			return abi.TypeString
		case reflect.Int, reflect.Int32, reflect.Int64, reflect.Float32, reflect.Float64:
			return abi.TypeNumber
		}
	}
	return abi.TypeObject
}

func (e *Engine) objectType(c *contextState, obj *goja.Object) abi.ValueType {
	if _, ok := goja.AssertFunction(obj); ok {
		return abi.TypeFunction
	}
	tag, err := e.helper(c, "tag")(goja.Undefined(), obj)
	if err != nil {
		return abi.TypeObject
	}
	name := strings.TrimSuffix(strings.TrimPrefix(tag.String(), "[object "), "]")
	switch name {
	case "Array":
		return abi.TypeArray
	case "Error":
		return abi.TypeError
	case "ArrayBuffer":
		return abi.TypeArrayBuffer
	case "DataView":
		return abi.TypeDataView
	}
	if _, ok := abi.TypedArrayTypeOf(name); ok {
		return abi.TypeTypedArray
	}
	return abi.TypeObject
}

// Equals implements abi.Surface with abstract equality.
func (e *Engine) Equals(a, b abi.ValueRef) (bool, abi.ErrorCode) {
	return e.compare(a, b, func(x, y goja.Value) bool { return x.Equals(y) })
}

// StrictEquals implements abi.Surface.
func (e *Engine) StrictEquals(a, b abi.ValueRef) (bool, abi.ErrorCode) {
	return e.compare(a, b, func(x, y goja.Value) bool { return x.StrictEquals(y) })
}

func (e *Engine) compare(a, b abi.ValueRef, eq func(x, y goja.Value) bool) (bool, abi.ErrorCode) {
	c, code := e.active()
	if code != abi.NoError {
		return false, code
	}
	x, code := e.value(c, a)
	if code != abi.NoError {
		return false, code
	}
	y, code := e.value(c, b)
	if code != abi.NoError {
		return false, code
	}
	var result bool
	_, code = e.exec(c, func() (goja.Value, error) {
		result = eq(x, y)
		return nil, nil
	})
	return result, code
}

// InstanceOf implements abi.Surface.
func (e *Engine) InstanceOf(obj, ctor abi.ValueRef) (bool, abi.ErrorCode) {
	c, code := e.active()
	if code != abi.NoError {
		return false, code
	}
	v, code := e.value(c, obj)
	if code != abi.NoError {
		return false, code
	}
	f, code := e.value(c, ctor)
	if code != abi.NoError {
		return false, code
	}
	out, code := e.call(c, "instanceof", v, f)
	if code != abi.NoError {
		return false, code
	}
	return out.ToBoolean(), abi.NoError
}

// CreateObject implements abi.Surface.
func (e *Engine) CreateObject() (abi.ValueRef, abi.ErrorCode) {
	c, code := e.active()
	if code != abi.NoError {
		return abi.InvalidValue, code
	}
	return e.wrap(c, c.vm.NewObject(), 0)
}

// CreateArray implements abi.Surface.
func (e *Engine) CreateArray(length uint32) (abi.ValueRef, abi.ErrorCode) {
	c, code := e.active()
	if code != abi.NoError {
		return abi.InvalidValue, code
	}
	arr, code := e.exec(c, func() (goja.Value, error) {
		return c.vm.New(c.vm.Get("Array"), c.vm.ToValue(int64(length)))
	})
	if code != abi.NoError {
		return abi.InvalidValue, code
	}
	return e.wrap(c, arr, 0)
}

// CreateError implements abi.Surface.
func (e *Engine) CreateError(kind abi.ErrorType, message abi.ValueRef) (abi.ValueRef, abi.ErrorCode) {
	c, code := e.active()
	if code != abi.NoError {
		return abi.InvalidValue, code
	}
	msg, code := e.value(c, message)
	if code != abi.NoError {
		return abi.InvalidValue, code
	}
	obj, code := e.exec(c, func() (goja.Value, error) {
		return c.vm.New(c.vm.Get(kind.Constructor()), msg)
	})
	if code != abi.NoError {
		return abi.InvalidValue, code
	}
	return e.wrap(c, obj, 0)
}

// GetPrototype implements abi.Surface.
func (e *Engine) GetPrototype(ref abi.ValueRef) (abi.ValueRef, abi.ErrorCode) {
	c, code := e.active()
	if code != abi.NoError {
		return abi.InvalidValue, code
	}
	obj, code := e.object(c, ref)
	if code != abi.NoError {
		return abi.InvalidValue, code
	}
	proto := obj.Prototype()
	if proto == nil {
		return c.null, abi.NoError
	}
	return e.wrap(c, proto, 0)
}

// SetPrototype implements abi.Surface. A null prototype is allowed.
func (e *Engine) SetPrototype(ref, protoRef abi.ValueRef) abi.ErrorCode {
	c, code := e.active()
	if code != abi.NoError {
		return code
	}
	obj, code := e.object(c, ref)
	if code != abi.NoError {
		return code
	}
	pv, code := e.value(c, protoRef)
	if code != abi.NoError {
		return code
	}
	var proto *goja.Object
	if !goja.IsNull(pv) {
		p, ok := pv.(*goja.Object)
		if !ok {
			return abi.ErrorArgumentNotObject
		}
		proto = p
	}
	_, code = e.exec(c, func() (goja.Value, error) {
		return nil, obj.SetPrototype(proto)
	})
	return code
}
