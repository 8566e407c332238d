package embedded

import (
	"github.com/dop251/goja"

	"github.com/6over3/jsrt/abi"
)

// GetPropertyIDFromName implements abi.Surface. Ids are interned per
// runtime, so equal names yield equal ids.
func (e *Engine) GetPropertyIDFromName(name string) (abi.PropertyIDRef, abi.ErrorCode) {
	c, code := e.active()
	if code != abi.NoError {
		return 0, code
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if id, ok := c.rt.names[name]; ok {
		return id, abi.NoError
	}
	id := abi.PropertyIDRef(e.token())
	e.props[id] = &propertyEntry{rt: c.rt, name: name}
	c.rt.names[name] = id
	return id, abi.NoError
}

// property resolves an id for use in c's runtime.
func (e *Engine) property(c *contextState, id abi.PropertyIDRef) (*propertyEntry, abi.ErrorCode) {
	if !id.IsValid() {
		return nil, abi.ErrorNullArgument
	}
	e.mu.Lock()
	p := e.props[id]
	e.mu.Unlock()
	if p == nil {
		return nil, abi.ErrorInvalidArgument
	}
	if p.rt != c.rt {
		return nil, abi.ErrorWrongRuntime
	}
	return p, abi.NoError
}

// GetPropertyNameFromID implements abi.Surface.
func (e *Engine) GetPropertyNameFromID(id abi.PropertyIDRef) (string, abi.ErrorCode) {
	c, code := e.active()
	if code != abi.NoError {
		return "", code
	}
	p, code := e.property(c, id)
	if code != abi.NoError {
		return "", code
	}
	if p.symbol != nil {
		return "", abi.ErrorPropertyNotString
	}
	return p.name, abi.NoError
}

// GetPropertyIDFromSymbol implements abi.Surface.
func (e *Engine) GetPropertyIDFromSymbol(ref abi.ValueRef) (abi.PropertyIDRef, abi.ErrorCode) {
	c, code := e.active()
	if code != abi.NoError {
		return 0, code
	}
	v, code := e.value(c, ref)
	if code != abi.NoError {
		return 0, code
	}
	sym, ok := v.(*goja.Symbol)
	if !ok {
		return 0, abi.ErrorPropertyNotSymbol
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if id, ok := c.rt.symbols[sym]; ok {
		return id, abi.NoError
	}
	id := abi.PropertyIDRef(e.token())
	e.props[id] = &propertyEntry{rt: c.rt, symbol: sym}
	c.rt.symbols[sym] = id
	return id, abi.NoError
}

// GetSymbolFromPropertyID implements abi.Surface.
func (e *Engine) GetSymbolFromPropertyID(id abi.PropertyIDRef) (abi.ValueRef, abi.ErrorCode) {
	c, code := e.active()
	if code != abi.NoError {
		return abi.InvalidValue, code
	}
	p, code := e.property(c, id)
	if code != abi.NoError {
		return abi.InvalidValue, code
	}
	if p.symbol == nil {
		return abi.InvalidValue, abi.ErrorPropertyNotSymbol
	}
	return e.wrap(c, p.symbol, 0)
}

// GetPropertyIDType implements abi.Surface.
func (e *Engine) GetPropertyIDType(id abi.PropertyIDRef) (abi.PropertyIDType, abi.ErrorCode) {
	c, code := e.active()
	if code != abi.NoError {
		return 0, code
	}
	p, code := e.property(c, id)
	if code != abi.NoError {
		return 0, code
	}
	if p.symbol != nil {
		return abi.PropertyIDTypeSymbol, abi.NoError
	}
	return abi.PropertyIDTypeString, abi.NoError
}

// CreateSymbol implements abi.Surface. description may be InvalidValue.
func (e *Engine) CreateSymbol(description abi.ValueRef) (abi.ValueRef, abi.ErrorCode) {
	c, code := e.active()
	if code != abi.NoError {
		return abi.InvalidValue, code
	}
	desc := ""
	if description.IsValid() {
		v, code := e.value(c, description)
		if code != abi.NoError {
			return abi.InvalidValue, code
		}
		desc = v.String()
	}
	return e.wrap(c, goja.NewSymbol(desc), uint64(len(desc)))
}

// access resolves the object and property key shared by the named
// property operations.
func (e *Engine) access(objRef abi.ValueRef, id abi.PropertyIDRef) (*contextState, *goja.Object, goja.Value, abi.ErrorCode) {
	c, code := e.active()
	if code != abi.NoError {
		return nil, nil, nil, code
	}
	obj, code := e.object(c, objRef)
	if code != abi.NoError {
		return nil, nil, nil, code
	}
	p, code := e.property(c, id)
	if code != abi.NoError {
		return nil, nil, nil, code
	}
	return c, obj, p.key(c.vm), abi.NoError
}

// GetProperty implements abi.Surface.
func (e *Engine) GetProperty(objRef abi.ValueRef, id abi.PropertyIDRef) (abi.ValueRef, abi.ErrorCode) {
	c, obj, key, code := e.access(objRef, id)
	if code != abi.NoError {
		return abi.InvalidValue, code
	}
	v, code := e.call(c, "get", obj, key)
	if code != abi.NoError {
		return abi.InvalidValue, code
	}
	return e.wrap(c, v, 0)
}

// SetProperty implements abi.Surface.
func (e *Engine) SetProperty(objRef abi.ValueRef, id abi.PropertyIDRef, value abi.ValueRef, strict bool) abi.ErrorCode {
	c, obj, key, code := e.access(objRef, id)
	if code != abi.NoError {
		return code
	}
	v, code := e.value(c, value)
	if code != abi.NoError {
		return code
	}
	helper := "set"
	if strict {
		helper = "setStrict"
	}
	_, code = e.call(c, helper, obj, key, v)
	return code
}

// HasProperty implements abi.Surface.
func (e *Engine) HasProperty(objRef abi.ValueRef, id abi.PropertyIDRef) (bool, abi.ErrorCode) {
	c, obj, key, code := e.access(objRef, id)
	if code != abi.NoError {
		return false, code
	}
	v, code := e.call(c, "has", obj, key)
	if code != abi.NoError {
		return false, code
	}
	return v.ToBoolean(), abi.NoError
}

// DeleteProperty implements abi.Surface. The result is a boolean value.
func (e *Engine) DeleteProperty(objRef abi.ValueRef, id abi.PropertyIDRef, strict bool) (abi.ValueRef, abi.ErrorCode) {
	c, obj, key, code := e.access(objRef, id)
	if code != abi.NoError {
		return abi.InvalidValue, code
	}
	helper := "delete"
	if strict {
		helper = "deleteStrict"
	}
	v, code := e.call(c, helper, obj, key)
	if code != abi.NoError {
		return abi.InvalidValue, code
	}
	return e.wrap(c, v, 0)
}

// DefineProperty implements abi.Surface.
func (e *Engine) DefineProperty(objRef abi.ValueRef, id abi.PropertyIDRef, descriptor abi.ValueRef) (bool, abi.ErrorCode) {
	c, obj, key, code := e.access(objRef, id)
	if code != abi.NoError {
		return false, code
	}
	desc, code := e.object(c, descriptor)
	if code != abi.NoError {
		return false, code
	}
	v, code := e.call(c, "define", obj, key, desc)
	if code != abi.NoError {
		return false, code
	}
	return v.ToBoolean(), abi.NoError
}

// GetOwnPropertyDescriptor implements abi.Surface. A missing property
// yields undefined.
func (e *Engine) GetOwnPropertyDescriptor(objRef abi.ValueRef, id abi.PropertyIDRef) (abi.ValueRef, abi.ErrorCode) {
	c, obj, key, code := e.access(objRef, id)
	if code != abi.NoError {
		return abi.InvalidValue, code
	}
	v, code := e.call(c, "descriptor", obj, key)
	if code != abi.NoError {
		return abi.InvalidValue, code
	}
	return e.wrap(c, v, 0)
}

// GetOwnPropertyNames implements abi.Surface.
func (e *Engine) GetOwnPropertyNames(objRef abi.ValueRef) (abi.ValueRef, abi.ErrorCode) {
	c, code := e.active()
	if code != abi.NoError {
		return abi.InvalidValue, code
	}
	obj, code := e.object(c, objRef)
	if code != abi.NoError {
		return abi.InvalidValue, code
	}
	v, code := e.call(c, "ownNames", obj)
	if code != abi.NoError {
		return abi.InvalidValue, code
	}
	return e.wrap(c, v, 0)
}

// indexed resolves the object and index value of an indexed operation.
func (e *Engine) indexed(objRef, index abi.ValueRef) (*contextState, *goja.Object, goja.Value, abi.ErrorCode) {
	c, code := e.active()
	if code != abi.NoError {
		return nil, nil, nil, code
	}
	obj, code := e.object(c, objRef)
	if code != abi.NoError {
		return nil, nil, nil, code
	}
	idx, code := e.value(c, index)
	if code != abi.NoError {
		return nil, nil, nil, code
	}
	return c, obj, idx, abi.NoError
}

// GetIndexedProperty implements abi.Surface.
func (e *Engine) GetIndexedProperty(objRef, index abi.ValueRef) (abi.ValueRef, abi.ErrorCode) {
	c, obj, idx, code := e.indexed(objRef, index)
	if code != abi.NoError {
		return abi.InvalidValue, code
	}
	v, code := e.call(c, "get", obj, idx)
	if code != abi.NoError {
		return abi.InvalidValue, code
	}
	return e.wrap(c, v, 0)
}

// SetIndexedProperty implements abi.Surface.
func (e *Engine) SetIndexedProperty(objRef, index, value abi.ValueRef) abi.ErrorCode {
	c, obj, idx, code := e.indexed(objRef, index)
	if code != abi.NoError {
		return code
	}
	v, code := e.value(c, value)
	if code != abi.NoError {
		return code
	}
	_, code = e.call(c, "set", obj, idx, v)
	return code
}

// HasIndexedProperty implements abi.Surface.
func (e *Engine) HasIndexedProperty(objRef, index abi.ValueRef) (bool, abi.ErrorCode) {
	c, obj, idx, code := e.indexed(objRef, index)
	if code != abi.NoError {
		return false, code
	}
	v, code := e.call(c, "has", obj, idx)
	if code != abi.NoError {
		return false, code
	}
	return v.ToBoolean(), abi.NoError
}

// DeleteIndexedProperty implements abi.Surface.
func (e *Engine) DeleteIndexedProperty(objRef, index abi.ValueRef) abi.ErrorCode {
	c, obj, idx, code := e.indexed(objRef, index)
	if code != abi.NoError {
		return code
	}
	_, code = e.call(c, "delete", obj, idx)
	return code
}
