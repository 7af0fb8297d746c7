package hostapi

import (
	"fmt"
	"reflect"
)

// GetAttr returns the attribute name of target, which may be the module, a
// class or an instance. Methods read from an instance are bound to it.
func (m *Module) GetAttr(target interface{}, name string) (interface{}, error) {
	switch t := target.(type) {
	case nil:
		return nil, attributeError("None", name)
	case *Module:
		if v, ok := t.Attr(name); ok {
			return v, nil
		}
		return nil, attributeError("module "+t.Name, name)
	case *Class:
		if v, ok := t.Attr(name); ok {
			return v, nil
		}
		return nil, attributeError("class "+t.Name, name)
	}

	c, ok := m.InstanceClass(target)
	if !ok {
		return nil, attributeError(fmt.Sprintf("%T", target), name)
	}
	member, ok := c.Attr(name)
	if !ok {
		return nil, attributeError(c.Name+" object", name)
	}

	switch mem := member.(type) {
	case *Field:
		return mem.Get(target)
	case *Property:
		return mem.Get(target)
	case *Method:
		return mem.Bind(target)
	default:
		return member, nil
	}
}

// SetAttr assigns value to the attribute name of the instance target.
func (m *Module) SetAttr(target interface{}, name string, value interface{}) error {
	c, ok := m.InstanceClass(target)
	if !ok {
		return Errorf("AttributeError", "cannot set attribute %q of %T", name, target)
	}
	member, ok := c.Attr(name)
	if !ok {
		return attributeError(c.Name+" object", name)
	}

	switch mem := member.(type) {
	case *Field:
		return mem.Set(target, value)
	case *Property:
		return mem.Set(target, value)
	default:
		return &Error{Kind: "AttributeError", Msg: fmt.Sprintf("%s.%s is read-only", c.Name, name), Err: ErrReadOnly}
	}
}

// Call calls a function, bound or unbound method, class constructor or
// client callback.
func (m *Module) Call(callable interface{}, args []interface{}, kwargs map[string]interface{}) (interface{}, error) {
	switch c := callable.(type) {
	case *Function:
		return c.Call(args, kwargs)
	case *BoundMethod:
		return c.Call(args, kwargs)
	case *Class:
		return c.New(args, kwargs)
	case *Method:
		if len(args) < 1 {
			return nil, Errorf("TypeError", "%s.%s requires a receiver", c.Class.Name, c.Name)
		}
		bound, err := c.Bind(args[0])
		if err != nil {
			return nil, err
		}
		return bound.Call(args[1:], kwargs)
	case *Callback:
		c.Fn(args, kwargs)
		return nil, nil
	}

	if reflect.ValueOf(callable).Kind() == reflect.Func {
		return NewFunction(fmt.Sprintf("%T", callable), callable).Call(args, kwargs)
	}
	return nil, &Error{Kind: "TypeError", Msg: fmt.Sprintf("%T object is not callable", callable), Err: ErrNotCallable}
}
