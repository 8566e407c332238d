package jsrt

import "github.com/6over3/jsrt/abi"

// PropertyID names a property by string or symbol. Ids are shared by every
// context of a runtime.
type PropertyID struct {
	ref abi.PropertyIDRef
	ctx *Context
}

// IsValid reports whether id refers to an engine property id.
func (id PropertyID) IsValid() bool { return id.ref.IsValid() }

// Equal reports whether id and o are the same property id.
func (id PropertyID) Equal(o PropertyID) bool { return id.ref == o.ref }

func (id PropertyID) String() string { return id.ref.String() }

// PropertyID returns the id for a string-named property.
func (c *Context) PropertyID(name string) (PropertyID, error) {
	if err := c.active(); err != nil {
		return PropertyID{}, err
	}
	ref, code := c.rt.s.GetPropertyIDFromName(name)
	if code != abi.NoError {
		return PropertyID{}, c.translate(code)
	}
	return PropertyID{ref: ref, ctx: c}, nil
}

// PropertyIDFromSymbol returns the id for a symbol-keyed property.
func (c *Context) PropertyIDFromSymbol(symbol Value) (PropertyID, error) {
	if err := c.active(); err != nil {
		return PropertyID{}, err
	}
	if err := c.owned(symbol); err != nil {
		return PropertyID{}, err
	}
	ref, code := c.rt.s.GetPropertyIDFromSymbol(symbol.ref)
	if code != abi.NoError {
		return PropertyID{}, c.translate(code)
	}
	return PropertyID{ref: ref, ctx: c}, nil
}

func (c *Context) ownedID(id PropertyID) error {
	if !id.IsValid() {
		return usageError(abi.ErrorInvalidArgument, "invalid property id")
	}
	if id.ctx != nil && id.ctx.rt != c.rt {
		return usageError(abi.ErrorInvalidArgument, "property id belongs to another runtime")
	}
	return nil
}

func (id PropertyID) active() (*Context, error) {
	if !id.IsValid() || id.ctx == nil {
		return nil, usageError(abi.ErrorInvalidArgument, "invalid property id")
	}
	c := id.ctx.rt.CurrentContext()
	if c == nil {
		return nil, usageError(abi.ErrorNoCurrentContext, "no context is current on this goroutine")
	}
	if err := c.active(); err != nil {
		return nil, err
	}
	return c, nil
}

// Type tells string ids from symbol ids.
func (id PropertyID) Type() (abi.PropertyIDType, error) {
	c, err := id.active()
	if err != nil {
		return 0, err
	}
	t, code := c.rt.s.GetPropertyIDType(id.ref)
	return t, c.translate(code)
}

// Name returns the name of a string id. Symbol ids are a usage error.
func (id PropertyID) Name() (string, error) {
	c, err := id.active()
	if err != nil {
		return "", err
	}
	name, code := c.rt.s.GetPropertyNameFromID(id.ref)
	return name, c.translate(code)
}

// Symbol returns the symbol of a symbol id, as a value of the current
// context.
func (id PropertyID) Symbol() (Value, error) {
	c, err := id.active()
	if err != nil {
		return Value{}, err
	}
	sym, code := c.rt.s.GetSymbolFromPropertyID(id.ref)
	return c.wrap(sym), c.translate(code)
}
