package hostapi

import (
	"fmt"
	"reflect"
)

// Info describes the host application serving a module.
type Info struct {
	// Version of the module API.
	Version string
	// HostVersion is the version of the host application.
	HostVersion string
	// LanguageVersion is the version of the runtime embedding the API.
	LanguageVersion string
	// ArtifactPath is the file the API is built from, if any. Clients use
	// it to decide whether a cached API description is stale.
	ArtifactPath string
}

// Module is a host API namespace.
type Module struct {
	Name string
	Info Info

	members map[string]interface{}
	classes map[reflect.Type]*Class
}

func NewModule(name string, info Info) *Module {
	m := &Module{
		Name:    name,
		Info:    info,
		members: make(map[string]interface{}),
		classes: make(map[reflect.Type]*Class),
	}
	m.members["__name__"] = name
	m.members["__loader__"] = Loader{Module: name}
	if info.Version != "" {
		m.members["__version__"] = info.Version
	}
	return m
}

// AddFunction adds a free function. It panics if fn is not a func.
func (m *Module) AddFunction(name string, fn interface{}, params ...string) *Function {
	f := NewFunction(name, fn, params...)
	m.members[name] = f
	return f
}

// AddClass registers the struct type of sample as a class.
func (m *Module) AddClass(name string, sample interface{}) (*Class, error) {
	c, err := newClass(m.Name, name, reflect.TypeOf(sample))
	if err != nil {
		return nil, err
	}
	if _, exists := m.classes[c.Type]; exists {
		return nil, fmt.Errorf("hostapi: type %s is already registered", c.Type)
	} else if _, exists := m.members[name]; exists {
		return nil, fmt.Errorf("hostapi: %s.%s is already defined", m.Name, name)
	}
	m.classes[c.Type] = c
	m.members[name] = c
	return c, nil
}

// AddEnum registers an enum class. All values must share one integer type.
func (m *Module) AddEnum(name string, values map[string]interface{}) (*Class, error) {
	c, err := newEnumClass(m.Name, name, values)
	if err != nil {
		return nil, err
	}
	if _, exists := m.classes[c.Type]; exists {
		return nil, fmt.Errorf("hostapi: type %s is already registered", c.Type)
	} else if _, exists := m.members[name]; exists {
		return nil, fmt.Errorf("hostapi: %s.%s is already defined", m.Name, name)
	}
	m.classes[c.Type] = c
	m.members[name] = c
	return c, nil
}

// AddConstant adds a plain value.
func (m *Module) AddConstant(name string, v interface{}) {
	m.members[name] = v
}

// Attr returns the member called name.
func (m *Module) Attr(name string) (interface{}, bool) {
	v, ok := m.members[name]
	return v, ok
}

// Members returns all members sorted by name.
func (m *Module) Members() []Member {
	return sortedMembers(m.members)
}

// Class returns the class or enum class registered as name.
func (m *Module) Class(name string) (*Class, bool) {
	c, ok := m.members[name].(*Class)
	return c, ok
}

// InstanceClass returns the class of v if v is a non-nil pointer to a
// registered struct type.
func (m *Module) InstanceClass(v interface{}) (*Class, bool) {
	t := reflect.TypeOf(v)
	if t == nil || t.Kind() != reflect.Ptr || reflect.ValueOf(v).IsNil() {
		return nil, false
	}
	c, ok := m.classes[t.Elem()]
	if !ok || c.enum {
		return nil, false
	}
	return c, true
}

// EnumClass returns the enum class of v if its type is a registered enum.
func (m *Module) EnumClass(v interface{}) (*Class, bool) {
	t := reflect.TypeOf(v)
	if t == nil {
		return nil, false
	}
	c, ok := m.classes[t]
	if !ok || !c.enum {
		return nil, false
	}
	return c, true
}
