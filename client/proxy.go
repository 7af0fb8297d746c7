package client

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/CrimsonAS/aliasbridge/wire"
)

// Module is the client-side stand-in for a host API module. There is one
// Module per module name per client.
type Module struct {
	Name string

	client  *Client
	members map[string]interface{}

	batchMu  sync.Mutex
	batching bool
	queue    []queuedRequest
}

// Members returns the member names of the module, sorted.
func (m *Module) Members() []string {
	return sortedNames(m.members)
}

// Attr returns the member name of the module: a *Function, *Class, Enum or
// constant value.
func (m *Module) Attr(name string) (interface{}, error) {
	if v, ok := m.members[name]; ok {
		return v, nil
	}
	return nil, fmt.Errorf("module %s has no attribute %q: %w", m.Name, name, ErrNoAttribute)
}

func (m *Module) Class(name string) (*Class, error) {
	v, err := m.Attr(name)
	if err != nil {
		return nil, err
	}
	c, ok := v.(*Class)
	if !ok {
		return nil, fmt.Errorf("%s.%s is not a class: %w", m.Name, name, ErrNoAttribute)
	}
	return c, nil
}

func (m *Module) Function(name string) (*Function, error) {
	v, err := m.Attr(name)
	if err != nil {
		return nil, err
	}
	f, ok := v.(*Function)
	if !ok {
		return nil, fmt.Errorf("%s.%s is not a function: %w", m.Name, name, ErrNoAttribute)
	}
	return f, nil
}

// Call calls the module function name.
func (m *Module) Call(ctx context.Context, name string, args ...interface{}) (interface{}, error) {
	return m.CallKw(ctx, name, args, nil)
}

// CallKw calls the module function name with keyword arguments. Calling a
// class constructs an instance of it.
func (m *Module) CallKw(ctx context.Context, name string, args []interface{}, kwargs map[string]interface{}) (interface{}, error) {
	v, err := m.Attr(name)
	if err != nil {
		return nil, err
	}
	switch t := v.(type) {
	case *Function:
		return t.CallKw(ctx, nil, args, kwargs)
	case *Class:
		return t.NewKw(ctx, args, kwargs)
	}
	return nil, fmt.Errorf("%s.%s is not callable: %w", m.Name, name, ErrNoAttribute)
}

// New constructs an instance of the class name on the host.
func (m *Module) New(ctx context.Context, class string, args ...interface{}) (interface{}, error) {
	c, err := m.Class(class)
	if err != nil {
		return nil, err
	}
	return c.NewKw(ctx, args, nil)
}

// Class is the client-side stand-in for a host class or enum class. Classes
// are memoised per (module, class) and may be referenced by name before
// their members are known.
type Class struct {
	Module string
	Name   string

	module *Module

	mu       sync.RWMutex
	members  map[string]interface{}
	resolved bool
}

// Resolved reports whether the members of the class have been received.
func (c *Class) Resolved() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.resolved
}

func (c *Class) resolve(members map[string]interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.resolved {
		c.members = members
		c.resolved = true
	}
}

func (c *Class) Members() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return sortedNames(c.members)
}

// Attr returns the class member name: a *Function, *Property, Enum or
// nested *Class.
func (c *Class) Attr(name string) (interface{}, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.resolved {
		return nil, fmt.Errorf("class %s.%s is not loaded: %w", c.Module, c.Name, ErrNoAttribute)
	}
	if v, ok := c.members[name]; ok {
		return v, nil
	}
	return nil, fmt.Errorf("class %s has no attribute %q: %w", c.Name, name, ErrNoAttribute)
}

// Enum returns the enum value name of an enum class.
func (c *Class) Enum(name string) (Enum, error) {
	v, err := c.Attr(name)
	if err != nil {
		return Enum{}, err
	}
	e, ok := v.(Enum)
	if !ok {
		return Enum{}, fmt.Errorf("%s.%s is not an enum value: %w", c.Name, name, ErrNoAttribute)
	}
	return e, nil
}

// New constructs an instance of the class on the host.
func (c *Class) New(ctx context.Context, args ...interface{}) (interface{}, error) {
	return c.NewKw(ctx, args, nil)
}

func (c *Class) NewKw(ctx context.Context, args []interface{}, kwargs map[string]interface{}) (interface{}, error) {
	if c.module == nil {
		return nil, fmt.Errorf("class %s: %w", c.Name, ErrModuleNotFound)
	}
	return c.module.function(ctx, wire.NewFunction, nil, append([]interface{}{c}, args...), kwargs)
}

func (c *Class) String() string {
	return fmt.Sprintf("<class %s.%s>", c.Module, c.Name)
}

// Function is the client-side stand-in for a host function or method.
type Function struct {
	Name string
	// Bound functions are methods, called on an instance.
	Bound bool

	module *Module
}

func (f *Function) Call(ctx context.Context, inst *Instance, args ...interface{}) (interface{}, error) {
	return f.CallKw(ctx, inst, args, nil)
}

// CallKw calls the function; methods are called on inst, which must be
// nil for module functions.
func (f *Function) CallKw(ctx context.Context, inst *Instance, args []interface{}, kwargs map[string]interface{}) (interface{}, error) {
	if f.Bound && inst == nil {
		return nil, fmt.Errorf("method %s requires an instance", f.Name)
	}
	if f.module == nil {
		return nil, fmt.Errorf("function %s: %w", f.Name, ErrModuleNotFound)
	}
	return f.module.function(ctx, f.Name, inst, args, kwargs)
}

func (f *Function) String() string {
	if f.Bound {
		return fmt.Sprintf("<method %s>", f.Name)
	}
	return fmt.Sprintf("<function %s>", f.Name)
}

// Property is the client-side stand-in for a property of a host class.
type Property struct {
	Name string

	module *Module
}

func (p *Property) Get(ctx context.Context, inst *Instance) (interface{}, error) {
	if inst == nil {
		return nil, fmt.Errorf("property %s requires an instance", p.Name)
	}
	if p.module == nil {
		return nil, fmt.Errorf("property %s: %w", p.Name, ErrModuleNotFound)
	}
	return p.module.request(ctx, p.Name, wire.NewPropertyGetRequest(inst.ID, p.Name))
}

func (p *Property) Set(ctx context.Context, inst *Instance, value interface{}) error {
	if inst == nil {
		return fmt.Errorf("property %s requires an instance", p.Name)
	}
	if p.module == nil {
		return fmt.Errorf("property %s: %w", p.Name, ErrModuleNotFound)
	}
	encoded, err := p.module.client.encode(value)
	if err != nil {
		return err
	}
	_, err = p.module.request(ctx, p.Name, wire.NewPropertySetRequest(inst.ID, p.Name, encoded))
	return err
}

// EnumType is an enum class as seen by the client. There is one EnumType
// per (module, class), so Enum values compare by type and value.
type EnumType struct {
	Module string
	Name   string

	mu     sync.Mutex
	values map[int64]Enum
}

func (t *EnumType) value(name string, v int64) Enum {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.values[v]; ok {
		return e
	}
	e := Enum{Type: t, Name: name, Value: v}
	t.values[v] = e
	return e
}

func (t *EnumType) String() string {
	return t.Module + "." + t.Name
}

// Enum is a host enum value. Enums are comparable and can be used as map
// keys.
type Enum struct {
	Type  *EnumType
	Name  string
	Value int64
}

func (e Enum) String() string {
	if e.Type == nil {
		return e.Name
	}
	return e.Type.Name + "." + e.Name
}

// Instance is a handle to a host object.
type Instance struct {
	Class *Class
	ID    int64
	// Name is the object's name when the host sent one.
	Name string
}

func (i *Instance) member(name string) (interface{}, error) {
	return i.Class.Attr(name)
}

// Get reads the attribute name. Properties are read from the host; other
// class members are returned as they are.
func (i *Instance) Get(ctx context.Context, name string) (interface{}, error) {
	m, err := i.member(name)
	if err != nil {
		return nil, err
	}
	if p, ok := m.(*Property); ok {
		return p.Get(ctx, i)
	}
	return m, nil
}

func (i *Instance) Set(ctx context.Context, name string, value interface{}) error {
	m, err := i.member(name)
	if err != nil {
		return err
	}
	p, ok := m.(*Property)
	if !ok {
		return fmt.Errorf("%s.%s is not a property: %w", i.Class.Name, name, ErrNoAttribute)
	}
	return p.Set(ctx, i, value)
}

// Call calls the method name on the instance.
func (i *Instance) Call(ctx context.Context, name string, args ...interface{}) (interface{}, error) {
	return i.CallKw(ctx, name, args, nil)
}

func (i *Instance) CallKw(ctx context.Context, name string, args []interface{}, kwargs map[string]interface{}) (interface{}, error) {
	m, err := i.member(name)
	if err != nil {
		return nil, err
	}
	f, ok := m.(*Function)
	if !ok {
		return nil, fmt.Errorf("%s.%s is not a method: %w", i.Class.Name, name, ErrNoAttribute)
	}
	return f.CallKw(ctx, i, args, kwargs)
}

// Equal reports whether i and o refer to the same host object.
func (i *Instance) Equal(o *Instance) bool {
	return i != nil && o != nil && i.ID == o.ID
}

func (i *Instance) String() string {
	if i.Name != "" {
		return fmt.Sprintf("<%s %q>", i.Class.Name, i.Name)
	}
	return fmt.Sprintf("<%s #%d>", i.Class.Name, i.ID)
}

func sortedNames(m map[string]interface{}) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
