// Package invoke calls Go functions with loosely typed arguments decoded
// from the wire, converting or unmarshaling each argument as necessary.
package invoke

import (
	"encoding"
	"errors"
	"fmt"
	"reflect"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/cast"
)

var (
	errorType = reflect.TypeOf((*error)(nil)).Elem()
	umType    = reflect.TypeOf((*encoding.TextUnmarshaler)(nil)).Elem()
)

// ErrNotFunc is returned when the value to call is not a function.
var ErrNotFunc = errors.New("value is not a function")

// Call calls fn with args, followed by kwargs placed by parameter name. The
// names in params correspond to the parameters of fn in order.
//
// If any of the function's return values is a non-nil error, that error is
// returned. Otherwise a single remaining value is returned as is, several
// are returned as a []interface{}, and none as nil.
func Call(fn reflect.Value, name string, params []string, args []interface{}, kwargs map[string]interface{}) (interface{}, error) {
	if !fn.IsValid() || fn.Kind() != reflect.Func {
		return nil, ErrNotFunc
	}
	fnType := fn.Type()

	inArgs, err := placeArgs(name, params, args, kwargs)
	if err != nil {
		return nil, err
	}

	numIn := fnType.NumIn()
	if fnType.IsVariadic() {
		if len(inArgs) < numIn-1 {
			return nil, fmt.Errorf("wrong number of arguments for %s; expected at least %d, provided %d",
				name, numIn-1, len(inArgs))
		}
	} else if len(inArgs) != numIn {
		return nil, fmt.Errorf("wrong number of arguments for %s; expected %d, provided %d",
			name, numIn, len(inArgs))
	}

	callArgs := make([]reflect.Value, len(inArgs))
	for i, inArg := range inArgs {
		var argType reflect.Type
		if fnType.IsVariadic() && i >= numIn-1 {
			argType = fnType.In(numIn - 1).Elem()
		} else {
			argType = fnType.In(i)
		}

		callArg, err := Convert(inArg, argType)
		if err != nil {
			return nil, fmt.Errorf("wrong type for argument %d to %s; %w", i, name, err)
		}
		callArgs[i] = callArg
	}

	return results(fn.Call(callArgs))
}

// placeArgs merges keyword arguments into the positional list.
func placeArgs(name string, params []string, args []interface{}, kwargs map[string]interface{}) ([]interface{}, error) {
	if len(kwargs) == 0 {
		return args, nil
	}

	placed := make([]interface{}, len(args))
	copy(placed, args)
	filled := make([]bool, len(params))
	for i := range args {
		if i < len(filled) {
			filled[i] = true
		}
	}

	for key, value := range kwargs {
		idx := -1
		for i, p := range params {
			if p == key {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, fmt.Errorf("%s got an unexpected keyword argument %q", name, key)
		} else if filled[idx] {
			return nil, fmt.Errorf("%s got multiple values for argument %q", name, key)
		}
		for len(placed) <= idx {
			placed = append(placed, nil)
		}
		placed[idx] = value
		filled[idx] = true
	}

	for i := range placed {
		if i < len(filled) && !filled[i] {
			return nil, fmt.Errorf("%s missing argument %q", name, params[i])
		}
	}
	return placed, nil
}

func results(returnValues []reflect.Value) (interface{}, error) {
	var values []interface{}
	for _, value := range returnValues {
		if value.Type().Implements(errorType) {
			if !value.IsNil() {
				return nil, value.Interface().(error)
			}
			continue
		}
		values = append(values, value.Interface())
	}

	switch len(values) {
	case 0:
		return nil, nil
	case 1:
		return values[0], nil
	default:
		return values, nil
	}
}

// Convert returns inArg as a value of argType, converting or unmarshaling
// it if possible. A nil argument becomes the zero value.
func Convert(inArg interface{}, argType reflect.Type) (reflect.Value, error) {
	if inArg == nil {
		return reflect.Zero(argType), nil
	}

	inArgValue := reflect.ValueOf(inArg)
	inType := inArgValue.Type()
	if inType == argType || inType.AssignableTo(argType) {
		return inArgValue, nil
	}

	switch argType.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if n, err := cast.ToInt64E(inArg); err == nil {
			return reflect.ValueOf(n).Convert(argType), nil
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if n, err := cast.ToUint64E(inArg); err == nil {
			return reflect.ValueOf(n).Convert(argType), nil
		}
	case reflect.Float32, reflect.Float64:
		if f, err := cast.ToFloat64E(inArg); err == nil {
			return reflect.ValueOf(f).Convert(argType), nil
		}

	case reflect.Slice:
		if list, ok := inArg.([]interface{}); ok {
			out := reflect.MakeSlice(argType, len(list), len(list))
			for i, item := range list {
				v, err := Convert(item, argType.Elem())
				if err != nil {
					return reflect.Value{}, fmt.Errorf("element %d: %w", i, err)
				}
				out.Index(i).Set(v)
			}
			return out, nil
		}

	case reflect.Map:
		if m, ok := inArg.(map[string]interface{}); ok {
			out := reflect.MakeMapWithSize(argType, len(m))
			for k, item := range m {
				kv, err := Convert(k, argType.Key())
				if err != nil {
					return reflect.Value{}, fmt.Errorf("key %q: %w", k, err)
				}
				v, err := Convert(item, argType.Elem())
				if err != nil {
					return reflect.Value{}, fmt.Errorf("key %q: %w", k, err)
				}
				out.SetMapIndex(kv, v)
			}
			return out, nil
		}

	case reflect.Struct:
		if m, ok := inArg.(map[string]interface{}); ok {
			out := reflect.New(argType)
			if err := mapstructure.WeakDecode(m, out.Interface()); err != nil {
				return reflect.Value{}, err
			}
			return out.Elem(), nil
		}
	}

	if inArgValue.Kind() == reflect.String {
		// Attempt to unmarshal via TextUnmarshaler, directly or by pointer
		var callArg reflect.Value
		var umArg encoding.TextUnmarshaler
		if argType.Implements(umType) && argType.Kind() == reflect.Ptr {
			callArg = reflect.New(argType.Elem())
			umArg = callArg.Interface().(encoding.TextUnmarshaler)
		} else if argTypePtr := reflect.PtrTo(argType); argTypePtr.Implements(umType) {
			callArg = reflect.New(argType)
			umArg = callArg.Interface().(encoding.TextUnmarshaler)
			callArg = callArg.Elem()
		}

		if umArg != nil {
			if err := umArg.UnmarshalText([]byte(inArgValue.String())); err != nil {
				return reflect.Value{}, fmt.Errorf("expected %s, unmarshal failed: %s", argType, err)
			}
			return callArg, nil
		}
	}

	// Direct conversion, except numbers to strings which would yield runes
	if inType.ConvertibleTo(argType) && !(argType.Kind() == reflect.String && inArgValue.Kind() != reflect.String) {
		return inArgValue.Convert(argType), nil
	}

	return reflect.Value{}, fmt.Errorf("expected %s, provided %s", argType, inType)
}
