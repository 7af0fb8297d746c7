package hostapi

import (
	"fmt"
	"reflect"

	"github.com/CrimsonAS/aliasbridge/internal/invoke"
)

// Function is a free function of a module or a static function of a class.
type Function struct {
	Name string

	fn     reflect.Value
	params []string
}

// NewFunction describes fn, which must be a Go func. params names the
// parameters of fn in order, which allows them to be passed by keyword.
func NewFunction(name string, fn interface{}, params ...string) *Function {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func {
		panic(fmt.Sprintf("hostapi: function %q is a %T, not a func", name, fn))
	}
	return &Function{Name: name, fn: v, params: params}
}

// Params returns the declared parameter names.
func (f *Function) Params() []string {
	return f.params
}

// Call calls the function. Panics are returned as errors.
func (f *Function) Call(args []interface{}, kwargs map[string]interface{}) (result interface{}, err error) {
	defer recoverError(&err)
	return invoke.Call(f.fn, f.Name, f.params, args, kwargs)
}

// Method is a method of a class, not bound to an instance.
type Method struct {
	Name  string
	Class *Class

	goName string
	params []string
}

// Bind returns the method bound to receiver, which must be an instance of
// the method's class.
func (m *Method) Bind(receiver interface{}) (*BoundMethod, error) {
	rv := reflect.ValueOf(receiver)
	if !m.Class.IsInstance(receiver) {
		return nil, Errorf("TypeError", "%s.%s requires a %s receiver, got %T", m.Class.Name, m.Name, m.Class.Name, receiver)
	}
	fn := rv.MethodByName(m.goName)
	if !fn.IsValid() {
		return nil, attributeError(m.Class.Name, m.Name)
	}
	return &BoundMethod{Method: m, Receiver: receiver, fn: fn}, nil
}

// BoundMethod is a method bound to an instance.
type BoundMethod struct {
	Method   *Method
	Receiver interface{}

	fn reflect.Value
}

func (b *BoundMethod) Call(args []interface{}, kwargs map[string]interface{}) (result interface{}, err error) {
	defer recoverError(&err)
	return invoke.Call(b.fn, b.Method.Class.Name+"."+b.Method.Name, b.Method.params, args, kwargs)
}

// Callback is a function supplied by a remote client. Invoking it forwards
// the arguments to the client that sent it.
type Callback struct {
	ID string
	Fn func(args []interface{}, kwargs map[string]interface{})
}

// Invoke calls the callback with positional arguments.
func (c *Callback) Invoke(args ...interface{}) {
	c.Fn(args, nil)
}
