package hostapi

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/CrimsonAS/aliasbridge/internal/invoke"
)

// Member is a named attribute of a module or class.
type Member struct {
	Name  string
	Value interface{}
}

// Class is a registered struct type, or an enum type when IsEnum is true.
type Class struct {
	Module string
	Name   string
	// Type is the struct type for classes and the value type for enums.
	Type reflect.Type

	enum       bool
	members    map[string]interface{}
	fieldOrder []*Field
	enumNames  map[interface{}]string
	ctor       *Function
}

// Field is a struct field exposed as an attribute.
type Field struct {
	Name  string
	Class *Class

	index []int
	typ   reflect.Type
}

// Get returns the field value of obj.
func (f *Field) Get(obj interface{}) (value interface{}, err error) {
	defer recoverError(&err)
	v := reflect.Indirect(reflect.ValueOf(obj))
	return v.FieldByIndex(f.index).Interface(), nil
}

// Set assigns value to the field of obj, converting it if possible.
func (f *Field) Set(obj interface{}, value interface{}) (err error) {
	defer recoverError(&err)
	cv, err := invoke.Convert(value, f.typ)
	if err != nil {
		return Errorf("TypeError", "%s.%s: %s", f.Class.Name, f.Name, err)
	}
	reflect.Indirect(reflect.ValueOf(obj)).FieldByIndex(f.index).Set(cv)
	return nil
}

// Property is a computed attribute backed by a getter and an optional setter.
type Property struct {
	Name  string
	Class *Class

	getter reflect.Value
	setter reflect.Value
}

func (p *Property) Get(obj interface{}) (result interface{}, err error) {
	defer recoverError(&err)
	return invoke.Call(p.getter, p.Class.Name+"."+p.Name, nil, []interface{}{obj}, nil)
}

func (p *Property) Set(obj interface{}, value interface{}) (err error) {
	defer recoverError(&err)
	if !p.setter.IsValid() {
		return &Error{Kind: "AttributeError", Msg: fmt.Sprintf("%s.%s is read-only", p.Class.Name, p.Name), Err: ErrReadOnly}
	}
	_, err = invoke.Call(p.setter, p.Class.Name+"."+p.Name, nil, []interface{}{obj, value}, nil)
	return err
}

func newClass(module, name string, t reflect.Type) (*Class, error) {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("hostapi: class %q must be a struct type, not %s", name, t)
	}

	c := &Class{
		Module:  module,
		Name:    name,
		Type:    t,
		members: make(map[string]interface{}),
	}

	// Add attributes from fields, including those from anonymous structs
	c.addFields(t, []int{})

	ptrType := reflect.PtrTo(t)
	for i := 0; i < ptrType.NumMethod(); i++ {
		method := ptrType.Method(i)
		if typeShouldIgnoreMethod(method) {
			continue
		}
		name := typeMethodName(method)
		c.members[name] = &Method{Name: name, Class: c, goName: method.Name}
	}
	return c, nil
}

func (c *Class) addFields(t reflect.Type, index []int) {
	var anonStructs []reflect.StructField

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if field.Anonymous {
			// Recurse into these at the end for breadth-first
			anonStructs = append(anonStructs, field)
			continue
		} else if typeShouldIgnoreField(field) {
			continue
		}

		name := typeFieldName(field)
		if _, exists := c.members[name]; exists {
			continue
		}
		f := &Field{
			Name:  name,
			Class: c,
			index: append(append([]int{}, index...), field.Index...),
			typ:   field.Type,
		}
		c.members[name] = f
		c.fieldOrder = append(c.fieldOrder, f)
	}

	for _, ast := range anonStructs {
		at := ast.Type
		if at.Kind() == reflect.Ptr {
			at = at.Elem()
		}
		if at.Kind() == reflect.Struct {
			c.addFields(at, append(append([]int{}, index...), ast.Index...))
		}
	}
}

func newEnumClass(module, name string, values map[string]interface{}) (*Class, error) {
	c := &Class{
		Module:    module,
		Name:      name,
		enum:      true,
		members:   make(map[string]interface{}),
		enumNames: make(map[interface{}]string),
	}
	for entry, v := range values {
		t := reflect.TypeOf(v)
		if t == nil {
			return nil, fmt.Errorf("hostapi: enum %s.%s has a nil value", name, entry)
		}
		switch t.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		default:
			return nil, fmt.Errorf("hostapi: enum %s.%s must be an integer type, not %s", name, entry, t)
		}
		if c.Type == nil {
			c.Type = t
		} else if c.Type != t {
			return nil, fmt.Errorf("hostapi: enum %s mixes types %s and %s", name, c.Type, t)
		}
		if prev, dup := c.enumNames[v]; dup && prev < entry {
			// Aliases report the lowest sorting name
			c.members[entry] = v
			continue
		}
		c.members[entry] = v
		c.enumNames[v] = entry
	}
	if c.Type == nil {
		return nil, fmt.Errorf("hostapi: enum %s has no values", name)
	}
	return c, nil
}

// IsEnum reports whether c describes an enum type.
func (c *Class) IsEnum() bool {
	return c.enum
}

// IsInstance reports whether v is an instance of c.
func (c *Class) IsInstance(v interface{}) bool {
	t := reflect.TypeOf(v)
	if c.enum {
		return t == c.Type
	}
	return t != nil && t.Kind() == reflect.Ptr && t.Elem() == c.Type && !reflect.ValueOf(v).IsNil()
}

// EnumEntry returns the entry name and integer value of the enum value v.
func (c *Class) EnumEntry(v interface{}) (string, int64, bool) {
	if !c.enum {
		return "", 0, false
	}
	name, ok := c.enumNames[v]
	if !ok {
		return "", 0, false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return name, int64(rv.Uint()), true
	default:
		return name, rv.Int(), true
	}
}

// Attr returns the member called name.
func (c *Class) Attr(name string) (interface{}, bool) {
	v, ok := c.members[name]
	return v, ok
}

// Members returns all members sorted by name.
func (c *Class) Members() []Member {
	return sortedMembers(c.members)
}

// AddProperty adds a computed attribute. getter must be a func taking an
// instance and returning the value; setter, if not nil, a func taking an
// instance and the new value.
func (c *Class) AddProperty(name string, getter, setter interface{}) (*Property, error) {
	p := &Property{Name: name, Class: c, getter: reflect.ValueOf(getter)}
	if p.getter.Kind() != reflect.Func || p.getter.Type().NumIn() != 1 {
		return nil, fmt.Errorf("hostapi: getter of %s.%s must be a func of one argument", c.Name, name)
	}
	if setter != nil {
		p.setter = reflect.ValueOf(setter)
		if p.setter.Kind() != reflect.Func || p.setter.Type().NumIn() != 2 {
			return nil, fmt.Errorf("hostapi: setter of %s.%s must be a func of two arguments", c.Name, name)
		}
	}
	c.members[name] = p
	return p, nil
}

// AddFunction adds a static function to the class.
func (c *Class) AddFunction(name string, fn interface{}, params ...string) *Function {
	f := NewFunction(name, fn, params...)
	c.members[name] = f
	return f
}

// AddClass adds a nested class reference.
func (c *Class) AddClass(name string, nested *Class) {
	c.members[name] = nested
}

// NameParams names the parameters of a method, allowing keyword arguments.
func (c *Class) NameParams(method string, params ...string) error {
	m, ok := c.members[method].(*Method)
	if !ok {
		return fmt.Errorf("hostapi: %s has no method %q", c.Name, method)
	}
	m.params = params
	return nil
}

// SetConstructor sets the function used to create instances.
func (c *Class) SetConstructor(fn interface{}, params ...string) {
	c.ctor = NewFunction(c.Name, fn, params...)
}

// New creates an instance. Without a constructor, positional arguments are
// assigned to the fields in declaration order and keyword arguments by
// field name.
func (c *Class) New(args []interface{}, kwargs map[string]interface{}) (interface{}, error) {
	if c.enum {
		return nil, Errorf("TypeError", "cannot instantiate enum %s", c.Name)
	}
	if c.ctor != nil {
		return c.ctor.Call(args, kwargs)
	}

	if len(args) > len(c.fieldOrder) {
		return nil, Errorf("TypeError", "%s takes at most %d arguments, %d given", c.Name, len(c.fieldOrder), len(args))
	}
	obj := reflect.New(c.Type).Interface()
	for i, arg := range args {
		if err := c.fieldOrder[i].Set(obj, arg); err != nil {
			return nil, err
		}
	}
	for name, arg := range kwargs {
		f, ok := c.members[name].(*Field)
		if !ok {
			return nil, Errorf("TypeError", "%s got an unexpected keyword argument %q", c.Name, name)
		}
		if err := f.Set(obj, arg); err != nil {
			return nil, err
		}
	}
	return obj, nil
}

func sortedMembers(m map[string]interface{}) []Member {
	members := make([]Member, 0, len(m))
	for name, v := range m {
		members = append(members, Member{Name: name, Value: v})
	}
	sort.Slice(members, func(i, j int) bool {
		return members[i].Name < members[j].Name
	})
	return members
}
