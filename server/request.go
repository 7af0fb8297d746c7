package server

import (
	"fmt"
	"sort"
	"strings"

	"github.com/CrimsonAS/aliasbridge/hostapi"
	"github.com/CrimsonAS/aliasbridge/wire"
)

// Request is a decoded client request. Execute validates the request name
// first and has no effect when validation fails.
type Request interface {
	Validate(name string) error
	Execute(name string) (interface{}, error)
	String() string
}

type requestKind struct {
	shape wire.Shape
	build func(d *Decoder, m map[string]interface{}) (interface{}, error)
}

type requestKinds []requestKind

func (t requestKinds) match(m map[string]interface{}) (requestKind, bool) {
	for _, k := range t {
		if k.shape.Matches(m) {
			return k, true
		}
	}
	return requestKind{}, false
}

// requestTable is ordered most specific first.
var requestTable = func() requestKinds {
	t := requestKinds{
		{wire.FunctionRequestShape, buildFunctionRequest},
		{wire.PropertyGetRequestShape, buildPropertyGetRequest},
		{wire.PropertySetRequestShape, buildPropertySetRequest},
	}
	order := make(wire.Shapes, len(t))
	for i, k := range t {
		order[i] = k.shape
	}
	order = order.Sorted()
	sort.SliceStable(t, func(i, j int) bool {
		return indexOf(order, t[i].shape.Name) < indexOf(order, t[j].shape.Name)
	})
	return t
}()

func indexOf(shapes wire.Shapes, name string) int {
	for i, s := range shapes {
		if s.Name == name {
			return i
		}
	}
	return len(shapes)
}

func invalid(format string, p ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrRequestNotValid, fmt.Sprintf(format, p...))
}

// FunctionRequest calls a function of the module, or a method of an
// instance.
type FunctionRequest struct {
	api *hostapi.Module

	// Instance is the receiver, or nil to call a module function.
	Instance interface{}
	Name     string
	Args     []interface{}
	Kwargs   map[string]interface{}
}

func buildFunctionRequest(d *Decoder, m map[string]interface{}) (interface{}, error) {
	var rec wire.FunctionRequestRecord
	if err := wire.DecodeRecord(m, &rec); err != nil {
		return nil, err
	}
	r := &FunctionRequest{api: d.api, Name: rec.Name, Args: rec.Args, Kwargs: rec.Kwargs}
	if rec.InstanceID != nil {
		obj, err := d.instance(*rec.InstanceID)
		if err != nil {
			return nil, err
		}
		r.Instance = obj
	}
	return r, nil
}

func (r *FunctionRequest) Validate(name string) error {
	if name != r.Name {
		return invalid("request %q does not match function %q", name, r.Name)
	}
	return nil
}

func (r *FunctionRequest) Execute(name string) (interface{}, error) {
	if err := r.Validate(name); err != nil {
		return nil, err
	}

	if r.Name == wire.NewFunction {
		if len(r.Args) < 1 {
			return nil, invalid("%s requires a class argument", wire.NewFunction)
		}
		class, ok := r.Args[0].(*hostapi.Class)
		if !ok {
			return nil, invalid("%s requires a class argument, got %T", wire.NewFunction, r.Args[0])
		}
		return class.New(r.Args[1:], r.Kwargs)
	}

	var target interface{} = r.api
	if r.Instance != nil {
		target = r.Instance
	}
	fn, err := r.api.GetAttr(target, r.Name)
	if err != nil {
		return nil, err
	}
	return r.api.Call(fn, r.Args, r.Kwargs)
}

func (r *FunctionRequest) String() string {
	args := make([]string, 0, len(r.Args)+len(r.Kwargs))
	for _, a := range r.Args {
		args = append(args, fmt.Sprintf("%v", a))
	}
	keys := make([]string, 0, len(r.Kwargs))
	for k := range r.Kwargs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, fmt.Sprintf("%s=%v", k, r.Kwargs[k]))
	}
	return fmt.Sprintf("%s.%s(%s)", targetName(r.api, r.Instance), r.Name, strings.Join(args, ", "))
}

// PropertyGetRequest reads an attribute of an instance.
type PropertyGetRequest struct {
	api *hostapi.Module

	Instance interface{}
	Name     string
}

func buildPropertyGetRequest(d *Decoder, m map[string]interface{}) (interface{}, error) {
	var rec wire.PropertyRequestRecord
	if err := wire.DecodeRecord(m, &rec); err != nil {
		return nil, err
	}
	obj, err := d.instance(rec.InstanceID)
	if err != nil {
		return nil, err
	}
	return &PropertyGetRequest{api: d.api, Instance: obj, Name: rec.Name}, nil
}

func (r *PropertyGetRequest) Validate(name string) error {
	if name != r.Name {
		return invalid("request %q does not match property %q", name, r.Name)
	}
	return nil
}

func (r *PropertyGetRequest) Execute(name string) (interface{}, error) {
	if err := r.Validate(name); err != nil {
		return nil, err
	}
	return r.api.GetAttr(r.Instance, r.Name)
}

func (r *PropertyGetRequest) String() string {
	return fmt.Sprintf("%s.%s", targetName(r.api, r.Instance), r.Name)
}

// PropertySetRequest assigns an attribute of an instance.
type PropertySetRequest struct {
	api *hostapi.Module

	Instance interface{}
	Name     string
	Value    interface{}
}

func buildPropertySetRequest(d *Decoder, m map[string]interface{}) (interface{}, error) {
	var rec wire.PropertyRequestRecord
	if err := wire.DecodeRecord(m, &rec); err != nil {
		return nil, err
	}
	obj, err := d.instance(rec.InstanceID)
	if err != nil {
		return nil, err
	}
	return &PropertySetRequest{api: d.api, Instance: obj, Name: rec.Name, Value: rec.Value}, nil
}

func (r *PropertySetRequest) Validate(name string) error {
	if name != r.Name {
		return invalid("request %q does not match property %q", name, r.Name)
	}
	return nil
}

func (r *PropertySetRequest) Execute(name string) (interface{}, error) {
	if err := r.Validate(name); err != nil {
		return nil, err
	}
	return nil, r.api.SetAttr(r.Instance, r.Name, r.Value)
}

func (r *PropertySetRequest) String() string {
	return fmt.Sprintf("%s.%s = %v", targetName(r.api, r.Instance), r.Name, r.Value)
}

// BatchEntry is one named request of a batch.
type BatchEntry struct {
	Name    string
	Request Request
	// Err is set when the entry could not be decoded into a request.
	Err error
}

// BatchRequest executes several requests in order in one round trip.
type BatchRequest struct {
	Entries []BatchEntry
}

// buildBatchRequest decodes the entries of the batch record m, which has
// not been decoded yet. An entry that fails to decode keeps its error and
// does not affect its siblings.
func buildBatchRequest(d *Decoder, m map[string]interface{}) (interface{}, error) {
	list, ok := m[wire.KeyBatchRequests].([]interface{})
	if !ok {
		return nil, invalid("batch requests are a %T, not a list", m[wire.KeyBatchRequests])
	}
	r := &BatchRequest{Entries: make([]BatchEntry, len(list))}
	for i, item := range list {
		entry, ok := item.(map[string]interface{})
		if !ok {
			r.Entries[i].Err = invalid("batch entry %d is a %T", i, item)
			continue
		}
		name, _ := entry[wire.KeyRequestName].(string)
		r.Entries[i].Name = name

		decoded, err := d.Decode(entry[wire.KeyRequest])
		if err != nil {
			r.Entries[i].Err = fmt.Errorf("batch entry %d (%s): %w", i, name, err)
			continue
		}
		if req, ok := decoded.(Request); ok {
			r.Entries[i].Request = req
		} else {
			r.Entries[i].Err = fmt.Errorf("%w: batch entry %d (%s)", ErrRequestNotSupported, i, name)
		}
	}
	return r, nil
}

func (r *BatchRequest) Validate(name string) error {
	if name != wire.BatchEvent {
		return invalid("batch requests must be sent as %q, not %q", wire.BatchEvent, name)
	}
	return nil
}

// Execute runs every entry, collecting a result or an error for each.
// A failing entry never stops the entries after it.
func (r *BatchRequest) Execute(name string) (interface{}, error) {
	if err := r.Validate(name); err != nil {
		return nil, err
	}

	results := make([]interface{}, len(r.Entries))
	for i, e := range r.Entries {
		if e.Err != nil {
			results[i] = e.Err
			continue
		}
		result, err := e.Request.Execute(e.Name)
		if err != nil {
			results[i] = err
		} else {
			results[i] = result
		}
	}
	return results, nil
}

func (r *BatchRequest) String() string {
	parts := make([]string, len(r.Entries))
	for i, e := range r.Entries {
		if e.Request != nil {
			parts[i] = e.Request.String()
		} else {
			parts[i] = e.Name
		}
	}
	return fmt.Sprintf("batch[%s]", strings.Join(parts, "; "))
}

func targetName(api *hostapi.Module, obj interface{}) string {
	if obj == nil {
		return api.Name
	}
	if c, ok := api.InstanceClass(obj); ok {
		return c.Name
	}
	return fmt.Sprintf("%T", obj)
}
