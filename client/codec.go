package client

import (
	"fmt"
	"reflect"

	"github.com/CrimsonAS/aliasbridge/wire"
)

// encode turns a client value into a wire tree. Callbacks found in v are
// registered with the client.
func (c *Client) encode(v interface{}) (interface{}, error) {
	switch t := v.(type) {
	case nil, bool, string, int64, float64, []byte:
		return v, nil
	case *Instance:
		return wire.NewInstanceRecord(t.Class.Module, t.Class.Name, t.ID, ""), nil
	case *Class:
		return map[string]interface{}{wire.KeyClassName: t.Name}, nil
	case Enum:
		if t.Type == nil {
			return nil, fmt.Errorf("%w: enum %s has no type", ErrEncode, t.Name)
		}
		return wire.NewEnumRecord(t.Type.Module, t.Type.Name, t.Name, t.Value), nil
	case wire.Set:
		items, err := c.encodeList(t.Items())
		if err != nil {
			return nil, err
		}
		return wire.NewSetRecord(items), nil
	case *Callback:
		c.addCallback(t)
		return wire.NewCallbackRecord(t.ID), nil
	case *Pending:
		return nil, fmt.Errorf("%w: result of %s is not available inside its batch", ErrEncode, t.Name)
	case *Module, *Function, *Property:
		return nil, fmt.Errorf("%w: %v", ErrEncode, t)
	case []interface{}:
		return c.encodeList(t)
	case map[string]interface{}:
		m := make(map[string]interface{}, len(t))
		for k, item := range t {
			encoded, err := c.encode(item)
			if err != nil {
				return nil, err
			}
			m[k] = encoded
		}
		return m, nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Func:
		if rv.IsNil() {
			return nil, nil
		}
		return wire.NewCallbackRecord(c.funcCallback(rv)), nil
	case reflect.Bool:
		return rv.Bool(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(rv.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	case reflect.String:
		return rv.String(), nil
	case reflect.Slice, reflect.Array:
		list := make([]interface{}, rv.Len())
		for i := range list {
			list[i] = rv.Index(i).Interface()
		}
		return c.encodeList(list)
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			break
		}
		m := make(map[string]interface{}, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			encoded, err := c.encode(iter.Value().Interface())
			if err != nil {
				return nil, err
			}
			m[iter.Key().String()] = encoded
		}
		return m, nil
	case reflect.Ptr:
		if rv.IsNil() {
			return nil, nil
		}
		return c.encode(rv.Elem().Interface())
	}
	return nil, fmt.Errorf("%w: values of type %T", ErrEncode, v)
}

func (c *Client) encodeList(items []interface{}) ([]interface{}, error) {
	list := make([]interface{}, len(items))
	for i, item := range items {
		encoded, err := c.encode(item)
		if err != nil {
			return nil, err
		}
		list[i] = encoded
	}
	return list, nil
}

// decode turns a wire tree from the host into client values. Records
// without a module name belong to mod, the module the request was made on.
func (c *Client) decode(mod *Module, v interface{}) (interface{}, error) {
	switch t := v.(type) {
	case []interface{}:
		list := make([]interface{}, len(t))
		for i, item := range t {
			decoded, err := c.decode(mod, item)
			if err != nil {
				return nil, err
			}
			list[i] = decoded
		}
		return list, nil
	case map[string]interface{}:
		return c.decodeObject(mod, t)
	}
	return v, nil
}

func (c *Client) decodeObject(mod *Module, m map[string]interface{}) (interface{}, error) {
	switch {
	case wire.ExceptionShape.Matches(m):
		return wire.ErrorFromRecord(m)

	case wire.IsSet(m):
		items, ok := m[wire.KeyValue].([]interface{})
		if !ok {
			return nil, fmt.Errorf("client: set value is a %T", m[wire.KeyValue])
		}
		decoded, err := c.decode(mod, items)
		if err != nil {
			return nil, err
		}
		return wire.SetFromList(decoded.([]interface{}))

	case wire.EnumShape.Matches(m):
		var rec wire.EnumRecord
		if err := wire.DecodeRecord(m, &rec); err != nil {
			return nil, err
		}
		return c.enumType(rec.Module, rec.Class).value(rec.Name, rec.Value), nil

	case wire.ClassShape.Matches(m):
		return c.decodeClass(mod, m)

	case wire.InstanceShape.Matches(m):
		var rec wire.InstanceRecord
		if err := wire.DecodeRecord(m, &rec); err != nil {
			return nil, err
		}
		owner := c.moduleFor(rec.Module, mod)
		if owner == nil {
			return nil, fmt.Errorf("instance of %s.%s: %w", rec.Module, rec.Class, ErrModuleNotFound)
		}
		inst := &Instance{Class: c.class(owner, rec.Class), ID: rec.ID}
		if name, ok := rec.Dict["name"].(string); ok {
			inst.Name = name
		}
		return inst, nil

	case wire.FunctionShape.Matches(m):
		var rec wire.FunctionRecord
		if err := wire.DecodeRecord(m, &rec); err != nil {
			return nil, err
		}
		return &Function{Name: rec.Name, Bound: rec.IsMethod, module: mod}, nil

	case wire.ModuleShape.Matches(m):
		return c.decodeModule(m)

	case wire.PropertyShape.Matches(m):
		name, _ := m[wire.KeyPropertyName].(string)
		return &Property{Name: name, module: mod}, nil

	case wire.CallbackShape.Matches(m):
		id := fmt.Sprint(m[wire.KeyCallbackID])
		if cb, ok := c.callback(id); ok {
			return cb, nil
		}
	}

	out := make(map[string]interface{}, len(m))
	for k, item := range m {
		decoded, err := c.decode(mod, item)
		if err != nil {
			return nil, err
		}
		out[k] = decoded
	}
	return out, nil
}

// decodeModule returns the module proxy for a module record. A module that
// is already known is returned as is.
func (c *Client) decodeModule(m map[string]interface{}) (*Module, error) {
	name, _ := m[wire.KeyModuleName].(string)
	if mod, ok := c.Module(name); ok {
		return mod, nil
	}

	mod := &Module{Name: name, client: c}
	members, err := c.decodeMembers(mod, m[wire.KeyMembers])
	if err != nil {
		return nil, fmt.Errorf("module %s: %w", name, err)
	}
	mod.members = members

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.modules[name]; ok {
		return existing, nil
	}
	c.modules[name] = mod
	return mod, nil
}

func (c *Client) decodeClass(mod *Module, m map[string]interface{}) (*Class, error) {
	moduleName, _ := m[wire.KeyModuleName].(string)
	name, _ := m[wire.KeyClassName].(string)
	owner := c.moduleFor(moduleName, mod)
	if owner == nil {
		return nil, fmt.Errorf("class %s.%s: %w", moduleName, name, ErrModuleNotFound)
	}

	class := c.class(owner, name)
	if m[wire.KeyMembers] == nil || class.Resolved() {
		return class, nil
	}
	members, err := c.decodeMembers(owner, m[wire.KeyMembers])
	if err != nil {
		return nil, fmt.Errorf("class %s: %w", name, err)
	}
	class.resolve(members)
	return class, nil
}

// decodeMembers decodes a member list. Properties sent without a name are
// named after their member.
func (c *Client) decodeMembers(mod *Module, v interface{}) (map[string]interface{}, error) {
	list, err := wire.Members(v)
	if err != nil {
		return nil, err
	}
	members := make(map[string]interface{}, len(list))
	for _, member := range list {
		value, err := c.decode(mod, member.Value)
		if err != nil {
			return nil, fmt.Errorf("member %s: %w", member.Name, err)
		}
		if p, ok := value.(*Property); ok && p.Name == "" {
			p.Name = member.Name
		}
		members[member.Name] = value
	}
	return members, nil
}
