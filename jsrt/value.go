package jsrt

import "github.com/6over3/jsrt/abi"

// Value is a handle to an engine value. The zero Value is the invalid
// handle, which is not the JavaScript null.
//
// A Value is only usable inside a scope for the context that produced it.
// The engine does not keep it alive beyond that scope unless AddRef is
// called.
type Value struct {
	ref abi.ValueRef
	ctx *Context
}

// IsValid reports whether v refers to an engine value.
func (v Value) IsValid() bool { return v.ref.IsValid() }

// Equal reports whether v and o are the same handle. It does not compare
// JavaScript values; see Equals and StrictEquals for that.
func (v Value) Equal(o Value) bool { return v.ref == o.ref }

// Context returns the context the value was produced in.
func (v Value) Context() *Context { return v.ctx }

func (v Value) String() string { return v.ref.String() }

func (v Value) active() error {
	if !v.IsValid() || v.ctx == nil {
		return usageError(abi.ErrorInvalidArgument, "invalid value handle")
	}
	return v.ctx.active()
}

// with checks v and every operand, returning the context to report errors
// in.
func (v Value) with(operands ...Value) (*Context, error) {
	if err := v.active(); err != nil {
		return nil, err
	}
	for _, o := range operands {
		if err := v.ctx.owned(o); err != nil {
			return nil, err
		}
	}
	return v.ctx, nil
}

// AddRef adds a reference to the value and returns the new count.
func (v Value) AddRef() (uint32, error) {
	c, err := v.with()
	if err != nil {
		return 0, err
	}
	n, code := c.rt.s.AddRef(abi.Ref(v.ref))
	return n, codeError(code)
}

// Release drops a reference and returns the new count.
func (v Value) Release() (uint32, error) {
	c, err := v.with()
	if err != nil {
		return 0, err
	}
	n, code := c.rt.s.Release(abi.Ref(v.ref))
	return n, codeError(code)
}

// Type returns the value's type tag.
func (v Value) Type() (abi.ValueType, error) {
	c, err := v.with()
	if err != nil {
		return 0, err
	}
	t, code := c.rt.s.GetValueType(v.ref)
	return t, c.translate(code)
}

// ToBool returns the value of a boolean. Other types are a usage error.
func (v Value) ToBool() (bool, error) {
	c, err := v.with()
	if err != nil {
		return false, err
	}
	b, code := c.rt.s.BooleanToBool(v.ref)
	return b, c.translate(code)
}

// ToInt32 returns a number truncated to int32.
func (v Value) ToInt32() (int32, error) {
	c, err := v.with()
	if err != nil {
		return 0, err
	}
	n, code := c.rt.s.NumberToInt(v.ref)
	return n, c.translate(code)
}

// ToFloat64 returns the value of a number.
func (v Value) ToFloat64() (float64, error) {
	c, err := v.with()
	if err != nil {
		return 0, err
	}
	f, code := c.rt.s.NumberToDouble(v.ref)
	return f, c.translate(code)
}

// ToString returns the contents of a string. Use ConvertToString first for
// other types.
func (v Value) ToString() (string, error) {
	c, err := v.with()
	if err != nil {
		return "", err
	}
	s, code := c.rt.s.StringToPointer(v.ref)
	return s, c.translate(code)
}

// ConvertToBool applies JavaScript truthiness.
func (v Value) ConvertToBool() (Value, error) {
	return v.convert(func(s abi.Surface) (abi.ValueRef, abi.ErrorCode) { return s.ConvertValueToBoolean(v.ref) })
}

// ConvertToNumber applies JavaScript ToNumber.
func (v Value) ConvertToNumber() (Value, error) {
	return v.convert(func(s abi.Surface) (abi.ValueRef, abi.ErrorCode) { return s.ConvertValueToNumber(v.ref) })
}

// ConvertToString applies JavaScript ToString.
func (v Value) ConvertToString() (Value, error) {
	return v.convert(func(s abi.Surface) (abi.ValueRef, abi.ErrorCode) { return s.ConvertValueToString(v.ref) })
}

// ConvertToObject applies JavaScript ToObject.
func (v Value) ConvertToObject() (Value, error) {
	return v.convert(func(s abi.Surface) (abi.ValueRef, abi.ErrorCode) { return s.ConvertValueToObject(v.ref) })
}

func (v Value) convert(fn func(abi.Surface) (abi.ValueRef, abi.ErrorCode)) (Value, error) {
	c, err := v.with()
	if err != nil {
		return Value{}, err
	}
	r, code := fn(c.rt.s)
	return c.wrap(r), c.translate(code)
}

// Text converts v with ConvertToString and returns the result.
func (v Value) Text() (string, error) {
	s, err := v.ConvertToString()
	if err != nil {
		return "", err
	}
	return s.ToString()
}

// Equals compares with the == operator.
func (v Value) Equals(o Value) (bool, error) {
	c, err := v.with(o)
	if err != nil {
		return false, err
	}
	eq, code := c.rt.s.Equals(v.ref, o.ref)
	return eq, c.translate(code)
}

// StrictEquals compares with the === operator.
func (v Value) StrictEquals(o Value) (bool, error) {
	c, err := v.with(o)
	if err != nil {
		return false, err
	}
	eq, code := c.rt.s.StrictEquals(v.ref, o.ref)
	return eq, c.translate(code)
}

// InstanceOf reports whether v is an instance of constructor.
func (v Value) InstanceOf(constructor Value) (bool, error) {
	c, err := v.with(constructor)
	if err != nil {
		return false, err
	}
	ok, code := c.rt.s.InstanceOf(v.ref, constructor.ref)
	return ok, c.translate(code)
}

// Prototype returns the object's prototype.
func (v Value) Prototype() (Value, error) {
	return v.convert(func(s abi.Surface) (abi.ValueRef, abi.ErrorCode) { return s.GetPrototype(v.ref) })
}

// SetPrototype replaces the object's prototype.
func (v Value) SetPrototype(proto Value) error {
	c, err := v.with(proto)
	if err != nil {
		return err
	}
	return c.translate(c.rt.s.SetPrototype(v.ref, proto.ref))
}

// Get reads the named property.
func (v Value) Get(name string) (Value, error) {
	id, err := v.property(name)
	if err != nil {
		return Value{}, err
	}
	return v.GetProperty(id)
}

// Set writes the named property in sloppy mode.
func (v Value) Set(name string, value Value) error {
	id, err := v.property(name)
	if err != nil {
		return err
	}
	return v.SetProperty(id, value, false)
}

func (v Value) property(name string) (PropertyID, error) {
	if err := v.active(); err != nil {
		return PropertyID{}, err
	}
	return v.ctx.PropertyID(name)
}

// GetProperty reads a property.
func (v Value) GetProperty(id PropertyID) (Value, error) {
	c, err := v.with()
	if err != nil {
		return Value{}, err
	}
	if err := c.ownedID(id); err != nil {
		return Value{}, err
	}
	r, code := c.rt.s.GetProperty(v.ref, id.ref)
	return c.wrap(r), c.translate(code)
}

// SetProperty writes a property. With strict set, failures throw as in
// strict mode code.
func (v Value) SetProperty(id PropertyID, value Value, strict bool) error {
	c, err := v.with(value)
	if err != nil {
		return err
	}
	if err := c.ownedID(id); err != nil {
		return err
	}
	return c.translate(c.rt.s.SetProperty(v.ref, id.ref, value.ref, strict))
}

// HasProperty reports whether the object or its prototype chain has id.
func (v Value) HasProperty(id PropertyID) (bool, error) {
	c, err := v.with()
	if err != nil {
		return false, err
	}
	if err := c.ownedID(id); err != nil {
		return false, err
	}
	has, code := c.rt.s.HasProperty(v.ref, id.ref)
	return has, c.translate(code)
}

// DeleteProperty deletes a property and returns the boolean result of the
// delete operator.
func (v Value) DeleteProperty(id PropertyID, strict bool) (Value, error) {
	c, err := v.with()
	if err != nil {
		return Value{}, err
	}
	if err := c.ownedID(id); err != nil {
		return Value{}, err
	}
	r, code := c.rt.s.DeleteProperty(v.ref, id.ref, strict)
	return c.wrap(r), c.translate(code)
}

// DefineProperty defines a property from a descriptor object, as
// Object.defineProperty does.
func (v Value) DefineProperty(id PropertyID, descriptor Value) (bool, error) {
	c, err := v.with(descriptor)
	if err != nil {
		return false, err
	}
	if err := c.ownedID(id); err != nil {
		return false, err
	}
	ok, code := c.rt.s.DefineProperty(v.ref, id.ref, descriptor.ref)
	return ok, c.translate(code)
}

// OwnPropertyDescriptor returns the descriptor of an own property, or
// undefined.
func (v Value) OwnPropertyDescriptor(id PropertyID) (Value, error) {
	c, err := v.with()
	if err != nil {
		return Value{}, err
	}
	if err := c.ownedID(id); err != nil {
		return Value{}, err
	}
	r, code := c.rt.s.GetOwnPropertyDescriptor(v.ref, id.ref)
	return c.wrap(r), c.translate(code)
}

// OwnPropertyNames returns an array of the object's own property names.
func (v Value) OwnPropertyNames() (Value, error) {
	return v.convert(func(s abi.Surface) (abi.ValueRef, abi.ErrorCode) { return s.GetOwnPropertyNames(v.ref) })
}

// Index reads obj[index].
func (v Value) Index(index Value) (Value, error) {
	c, err := v.with(index)
	if err != nil {
		return Value{}, err
	}
	r, code := c.rt.s.GetIndexedProperty(v.ref, index.ref)
	return c.wrap(r), c.translate(code)
}

// SetIndex writes obj[index] = value.
func (v Value) SetIndex(index, value Value) error {
	c, err := v.with(index, value)
	if err != nil {
		return err
	}
	return c.translate(c.rt.s.SetIndexedProperty(v.ref, index.ref, value.ref))
}

// HasIndex reports whether index is in obj.
func (v Value) HasIndex(index Value) (bool, error) {
	c, err := v.with(index)
	if err != nil {
		return false, err
	}
	has, code := c.rt.s.HasIndexedProperty(v.ref, index.ref)
	return has, c.translate(code)
}

// DeleteIndex deletes obj[index].
func (v Value) DeleteIndex(index Value) error {
	c, err := v.with(index)
	if err != nil {
		return err
	}
	return c.translate(c.rt.s.DeleteIndexedProperty(v.ref, index.ref))
}

// At reads obj[i] for an integer index.
func (v Value) At(i int32) (Value, error) {
	if err := v.active(); err != nil {
		return Value{}, err
	}
	idx, err := v.ctx.FromInt32(i)
	if err != nil {
		return Value{}, err
	}
	return v.Index(idx)
}

// Call invokes the function with the given this value. An invalid this
// is passed as undefined.
func (v Value) Call(this Value, args ...Value) (Value, error) {
	c, err := v.with(args...)
	if err != nil {
		return Value{}, err
	}
	if !this.IsValid() {
		if this, err = c.Undefined(); err != nil {
			return Value{}, err
		}
	} else if err := c.owned(this); err != nil {
		return Value{}, err
	}
	r, code := c.rt.s.CallFunction(v.ref, refs(this, args))
	return c.wrap(r), c.translate(code)
}

// Construct invokes the function with new.
func (v Value) Construct(args ...Value) (Value, error) {
	c, err := v.with(args...)
	if err != nil {
		return Value{}, err
	}
	// The this slot is ignored by construct calls but must be present.
	this, err := c.Undefined()
	if err != nil {
		return Value{}, err
	}
	r, code := c.rt.s.ConstructObject(v.ref, refs(this, args))
	return c.wrap(r), c.translate(code)
}

func refs(this Value, args []Value) []abi.ValueRef {
	out := make([]abi.ValueRef, 0, len(args)+1)
	out = append(out, this.ref)
	for _, a := range args {
		out = append(out, a.ref)
	}
	return out
}

// ArrayBufferStorage returns the bytes of an ArrayBuffer. The slice aliases
// engine memory and is valid while the buffer is alive.
func (v Value) ArrayBufferStorage() ([]byte, error) {
	c, err := v.with()
	if err != nil {
		return nil, err
	}
	b, code := c.rt.s.GetArrayBufferStorage(v.ref)
	return b, c.translate(code)
}

// TypedArrayStorage returns the backing store of a typed array. The slice
// aliases engine memory and is valid while the array is alive.
func (v Value) TypedArrayStorage() (abi.TypedArrayStorage, error) {
	c, err := v.with()
	if err != nil {
		return abi.TypedArrayStorage{}, err
	}
	st, code := c.rt.s.GetTypedArrayStorage(v.ref)
	return st, c.translate(code)
}
