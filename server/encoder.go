package server

import (
	"encoding"
	"errors"
	"fmt"
	"reflect"
	"runtime"
	"strings"

	"github.com/CrimsonAS/aliasbridge/hostapi"
	"github.com/CrimsonAS/aliasbridge/wire"
)

const maxEncodeDepth = 64

// Encoder turns host values into wire trees. Instances met while encoding
// are registered in the data model.
//
// Encoding never fails as a whole: a value that cannot be represented is
// logged and replaced by null.
type Encoder struct {
	api   *hostapi.Module
	model *DataModel
}

func NewEncoder(api *hostapi.Module, model *DataModel) *Encoder {
	return &Encoder{api: api, model: model}
}

// Encode returns the wire tree for v.
func (e *Encoder) Encode(v interface{}) interface{} {
	return e.encode(v, 0)
}

func (e *Encoder) encode(v interface{}, depth int) interface{} {
	if v == nil {
		return nil
	} else if depth > maxEncodeDepth {
		log.Warningf("value nested deeper than %d levels replaced by null", maxEncodeDepth)
		return nil
	}

	switch t := v.(type) {
	case error:
		return e.encodeError(t)
	case *hostapi.Property:
		return wire.NewPropertyRecord("")
	case wire.Set:
		items := t.Items()
		for i, item := range items {
			items[i] = e.encode(item, depth+1)
		}
		return wire.NewSetRecord(items)
	case hostapi.MappingView:
		return e.encode(t.Mapping(), depth+1)
	case hostapi.Opaque:
		return nil
	case *hostapi.Traceback:
		return toList(t.Lines())
	case *hostapi.BoundMethod:
		return wire.NewFunctionRecord(t.Method.Name, true)
	case *hostapi.Function:
		return wire.NewFunctionRecord(t.Name, false)
	case *hostapi.Method:
		return wire.NewFunctionRecord(t.Name, true)
	case *hostapi.Field:
		return wire.NewPropertyRecord(t.Name)
	case *hostapi.Class:
		return e.encodeClass(t, depth)
	case *hostapi.Module:
		return e.encodeModule(t, depth)
	case *hostapi.Callback:
		return wire.NewCallbackRecord(t.ID)
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Func {
		if rv.IsNil() {
			return nil
		}
		name, bound := funcName(rv)
		return wire.NewFunctionRecord(name, bound)
	}
	if c, ok := e.api.EnumClass(v); ok {
		name, value, _ := c.EnumEntry(v)
		return wire.NewEnumRecord(c.Module, c.Name, name, value)
	}
	if c, ok := e.api.InstanceClass(v); ok {
		id := e.model.RegisterInstance(v)
		return wire.NewInstanceRecord(c.Module, c.Name, id, e.instanceName(v))
	}
	if tm, ok := v.(encoding.TextMarshaler); ok {
		text, err := tm.MarshalText()
		if err != nil {
			log.Warningf("value of type %T replaced by null: %s", v, err)
			return nil
		}
		return string(text)
	}

	return e.encodeValue(rv, depth)
}

// encodeValue walks plain data.
func (e *Encoder) encodeValue(rv reflect.Value, depth int) interface{} {
	switch rv.Kind() {
	case reflect.Bool:
		return rv.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return int64(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	case reflect.String:
		return rv.String()

	case reflect.Slice:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return rv.Bytes()
		}
		fallthrough
	case reflect.Array:
		list := make([]interface{}, rv.Len())
		for i := range list {
			list[i] = e.encode(rv.Index(i).Interface(), depth+1)
		}
		return list

	case reflect.Map:
		if rv.IsNil() {
			return nil
		}
		m := make(map[string]interface{}, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			key := iter.Key()
			var k string
			if key.Kind() == reflect.String {
				k = key.String()
			} else {
				k = fmt.Sprint(key.Interface())
			}
			m[k] = e.encode(iter.Value().Interface(), depth+1)
		}
		return m

	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		return e.encode(rv.Elem().Interface(), depth+1)

	case reflect.Struct:
		m := make(map[string]interface{})
		e.encodeFields(rv, m, depth)
		return m
	}

	log.Warningf("value of type %s cannot be encoded, replaced by null", rv.Type())
	return nil
}

// encodeFields adds the exported fields of the struct rv to m, named like
// encoding/json would name them. Embedded structs are flattened.
func (e *Encoder) encodeFields(rv reflect.Value, m map[string]interface{}, depth int) {
	t := rv.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if field.Anonymous && field.Type.Kind() == reflect.Struct {
			e.encodeFields(rv.Field(i), m, depth)
			continue
		} else if field.PkgPath != "" {
			continue
		}

		name := field.Name
		if tag := field.Tag.Get("json"); tag == "-" {
			continue
		} else if tag != "" {
			if n := strings.Split(tag, ",")[0]; n != "" {
				name = n
			}
		}
		m[name] = e.encode(rv.Field(i).Interface(), depth+1)
	}
}

func (e *Encoder) encodeError(err error) interface{} {
	var remote *wire.RemoteError
	if errors.As(err, &remote) {
		return remote.Record()
	}

	var tb []string
	if t := hostapi.TracebackOf(err); t != nil {
		tb = t.Lines()
	}
	return wire.NewExceptionRecord(errorKind(err), err.Error(), tb)
}

func (e *Encoder) encodeClass(c *hostapi.Class, depth int) interface{} {
	members := make([]wire.Member, 0)
	for _, m := range c.Members() {
		var value interface{}
		if nested, ok := m.Value.(*hostapi.Class); ok {
			// Nested classes are sent by name only
			value = wire.NewClassRecord(nested.Module, nested.Name, nil)
		} else {
			value = e.encode(m.Value, depth+1)
		}
		members = append(members, wire.Member{Name: m.Name, Value: value})
	}
	return wire.NewClassRecord(c.Module, c.Name, members)
}

func (e *Encoder) encodeModule(mod *hostapi.Module, depth int) interface{} {
	members := make([]wire.Member, 0)
	for _, m := range mod.Members() {
		members = append(members, wire.Member{Name: m.Name, Value: e.encode(m.Value, depth+1)})
	}
	return wire.NewModuleRecord(mod.Name, members)
}

// instanceName returns the "name" attribute of obj when it is a string.
func (e *Encoder) instanceName(obj interface{}) string {
	c, _ := e.api.InstanceClass(obj)
	if member, ok := c.Attr("name"); ok {
		switch member.(type) {
		case *hostapi.Field, *hostapi.Property:
			if v, err := e.api.GetAttr(obj, "name"); err == nil {
				if s, ok := v.(string); ok {
					return s
				}
			}
		}
	}
	return ""
}

// funcName returns the short name of a Go func and whether it is a method
// value bound to a receiver.
func funcName(fn reflect.Value) (string, bool) {
	f := runtime.FuncForPC(fn.Pointer())
	if f == nil {
		return "", false
	}
	name := f.Name()
	bound := strings.HasSuffix(name, "-fm")
	name = strings.TrimSuffix(name, "-fm")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	return name, bound
}

func toList(lines []string) []interface{} {
	list := make([]interface{}, len(lines))
	for i, l := range lines {
		list[i] = l
	}
	return list
}
