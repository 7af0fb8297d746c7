package client

import (
	"fmt"
	"reflect"
	"runtime"
	"strings"

	uuid "github.com/satori/go.uuid"

	"github.com/CrimsonAS/aliasbridge/internal/invoke"
)

// Callback is a client function the host may call back, such as a message
// handler. Callbacks are sent to the host as an id; the host invokes them
// by emitting an event named after that id.
type Callback struct {
	ID string
	fn reflect.Value
}

// NewCallback wraps fn with a fresh id. Plain funcs passed as arguments are
// wrapped automatically, keyed by their code address; closures that need
// separate registrations must be wrapped with NewCallback.
func NewCallback(fn interface{}) *Callback {
	v := checkFunc(fn)
	u, _ := uuid.NewV4()
	return &Callback{ID: u.String() + "." + funcName(v), fn: v}
}

func checkFunc(fn interface{}) reflect.Value {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.IsNil() {
		panic(fmt.Sprintf("client: callback of type %T is not a func", fn))
	}
	return v
}

// Invoke calls the callback with values decoded from the host. A panic in
// the callback is returned as an error.
func (cb *Callback) Invoke(args []interface{}, kwargs map[string]interface{}) (result interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("callback %s panicked: %v", cb.ID, r)
		}
	}()
	return invoke.Call(cb.fn, cb.ID, nil, args, kwargs)
}

// funcCallbackID returns the id of a plain func: its code address followed
// by its name.
func funcCallbackID(fn reflect.Value) string {
	return fmt.Sprintf("%d.%s", fn.Pointer(), funcName(fn))
}

func funcName(fn reflect.Value) string {
	f := runtime.FuncForPC(fn.Pointer())
	if f == nil {
		return "func"
	}
	name := strings.TrimSuffix(f.Name(), "-fm")
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	return name
}
