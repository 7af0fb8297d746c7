package server

import (
	"fmt"

	"github.com/spf13/cast"

	"github.com/CrimsonAS/aliasbridge/hostapi"
	"github.com/CrimsonAS/aliasbridge/wire"
)

// CallbackEmitter forwards callback invocations to the client that owns the
// callback.
type CallbackEmitter interface {
	EmitCallback(id string, args []interface{}, kwargs map[string]interface{})
}

// Decoder turns wire trees sent by a client into host values and request
// wrappers. Trees are decoded bottom-up, so a record's children are live
// values by the time the record itself is decoded. Batch requests are the
// exception: each entry is decoded on its own so that a bad entry only
// fails itself.
type Decoder struct {
	api     *hostapi.Module
	model   *DataModel
	emitter CallbackEmitter
}

func NewDecoder(api *hostapi.Module, model *DataModel, emitter CallbackEmitter) *Decoder {
	return &Decoder{api: api, model: model, emitter: emitter}
}

// Decode returns the host value for the wire tree v. It fails if the tree
// refers to an instance that is not registered.
func (d *Decoder) Decode(v interface{}) (interface{}, error) {
	switch t := v.(type) {
	case []interface{}:
		list := make([]interface{}, len(t))
		for i, item := range t {
			decoded, err := d.Decode(item)
			if err != nil {
				return nil, err
			}
			list[i] = decoded
		}
		return list, nil

	case map[string]interface{}:
		if wire.BatchRequestShape.Matches(t) {
			return buildBatchRequest(d, t)
		}
		m := make(map[string]interface{}, len(t))
		for k, item := range t {
			decoded, err := d.Decode(item)
			if err != nil {
				return nil, err
			}
			m[k] = decoded
		}
		return d.object(m)

	default:
		return v, nil
	}
}

func (d *Decoder) object(m map[string]interface{}) (interface{}, error) {
	if kind, ok := requestTable.match(m); ok {
		return kind.build(d, m)
	}

	// Any record carrying a handle is the instance itself.
	if h, ok := m[wire.KeyInstanceID]; ok && h != nil {
		id, err := cast.ToInt64E(h)
		if err != nil {
			return nil, fmt.Errorf("%w: instance id %v: %s", ErrRequestNotValid, h, err)
		}
		return d.instance(id)
	}

	switch {
	case wire.EnumShape.Matches(m):
		var rec wire.EnumRecord
		if err := wire.DecodeRecord(m, &rec); err != nil {
			return nil, err
		}
		c, err := d.class(rec.Class)
		if err != nil {
			return nil, err
		}
		return d.api.GetAttr(c, rec.Name)

	case hasKey(m, wire.KeyClassName):
		name, _ := m[wire.KeyClassName].(string)
		return d.class(name)

	case wire.CallbackShape.Matches(m):
		id := fmt.Sprint(m[wire.KeyCallbackID])
		return &hostapi.Callback{
			ID: id,
			Fn: func(args []interface{}, kwargs map[string]interface{}) {
				d.emitter.EmitCallback(id, args, kwargs)
			},
		}, nil

	case wire.IsSet(m):
		items, ok := m[wire.KeyValue].([]interface{})
		if !ok {
			return nil, fmt.Errorf("%w: set value is not a list", ErrRequestNotValid)
		}
		return wire.SetFromList(items)
	}
	return m, nil
}

func (d *Decoder) instance(id int64) (interface{}, error) {
	obj, ok := d.model.Instance(id)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrInstanceNotFound, id)
	}
	return obj, nil
}

func (d *Decoder) class(name string) (*hostapi.Class, error) {
	c, ok := d.api.Class(name)
	if !ok {
		return nil, fmt.Errorf("module %s has no class %q: %w", d.api.Name, name, hostapi.ErrNoAttribute)
	}
	return c, nil
}

func hasKey(m map[string]interface{}, key string) bool {
	_, ok := m[key]
	return ok
}
