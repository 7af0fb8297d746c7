package wire

import (
	"fmt"
	"reflect"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/cast"
)

// Member is one named entry of a module or class record.
type Member struct {
	Name  string
	Value interface{}
}

// EnumRecord is the decoded form of an enum record.
type EnumRecord struct {
	Module string `mapstructure:"__module_name__"`
	Class  string `mapstructure:"__class_name__"`
	Name   string `mapstructure:"__enum_name__"`
	Value  int64  `mapstructure:"__enum_value__"`
}

// InstanceRecord is the decoded form of an instance record.
type InstanceRecord struct {
	Module string                 `mapstructure:"__module_name__"`
	Class  string                 `mapstructure:"__class_name__"`
	ID     int64                  `mapstructure:"__instance_id__"`
	Dict   map[string]interface{} `mapstructure:"__dict__"`
}

// FunctionRecord is the decoded form of a function record.
type FunctionRecord struct {
	Name     string `mapstructure:"__function_name__"`
	IsMethod bool   `mapstructure:"__is_method__"`
}

// FunctionRequestRecord is the decoded form of a function request.
type FunctionRequestRecord struct {
	Name       string                 `mapstructure:"__function_name__"`
	Args       []interface{}          `mapstructure:"__function_args__"`
	Kwargs     map[string]interface{} `mapstructure:"__function_kwargs__"`
	InstanceID *int64                 `mapstructure:"__instance_id__"`
}

// PropertyRequestRecord is the decoded form of a property get or set request.
type PropertyRequestRecord struct {
	InstanceID int64       `mapstructure:"__instance_id__"`
	Name       string      `mapstructure:"__property_name__"`
	Value      interface{} `mapstructure:"__property_value__"`
}

// BatchEntry is one named request inside a batch request.
type BatchEntry struct {
	Name    string      `mapstructure:"__request_name__"`
	Request interface{} `mapstructure:"__request__"`
}

var int64Type = reflect.TypeOf(int64(0))

// coerceInt64 accepts handles and enum values in any numeric form the
// codecs produce.
func coerceInt64(from, to reflect.Type, data interface{}) (interface{}, error) {
	if to != int64Type || data == nil {
		return data, nil
	}
	return cast.ToInt64E(data)
}

// DecodeRecord decodes the record m into the struct pointed to by out.
func DecodeRecord(m map[string]interface{}, out interface{}) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       coerceInt64,
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return fmt.Errorf("wire: %w", err)
	}
	if err := dec.Decode(m); err != nil {
		return fmt.Errorf("wire: decode record: %w", err)
	}
	return nil
}

// Members decodes the ordered member list of a module or class record.
// A nil list yields nil, which marks a name-only class reference.
func Members(v interface{}) ([]Member, error) {
	if v == nil {
		return nil, nil
	}
	list, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("wire: members must be a list, got %T", v)
	}
	members := make([]Member, 0, len(list))
	for i, item := range list {
		pair, ok := item.([]interface{})
		if !ok || len(pair) != 2 {
			return nil, fmt.Errorf("wire: member %d is not a [name, value] pair", i)
		}
		name, ok := pair[0].(string)
		if !ok {
			return nil, fmt.Errorf("wire: member %d has a non-string name", i)
		}
		members = append(members, Member{Name: name, Value: pair[1]})
	}
	return members, nil
}

func memberList(members []Member) []interface{} {
	if members == nil {
		return nil
	}
	list := make([]interface{}, len(members))
	for i, m := range members {
		list[i] = []interface{}{m.Name, m.Value}
	}
	return list
}

func NewModuleRecord(name string, members []Member) map[string]interface{} {
	if members == nil {
		members = []Member{}
	}
	return map[string]interface{}{
		KeyModuleName: name,
		KeyMembers:    memberList(members),
	}
}

// NewClassRecord returns a class record. Nil members produce a name-only
// reference.
func NewClassRecord(module, class string, members []Member) map[string]interface{} {
	var list interface{}
	if members != nil {
		list = memberList(members)
	}
	return map[string]interface{}{
		KeyModuleName: module,
		KeyClassName:  class,
		KeyMembers:    list,
	}
}

func NewEnumRecord(module, class, name string, value int64) map[string]interface{} {
	return map[string]interface{}{
		KeyModuleName: module,
		KeyClassName:  class,
		KeyEnumName:   name,
		KeyEnumValue:  value,
	}
}

// NewInstanceRecord returns an instance record. The display name is carried
// in __dict__ when not empty.
func NewInstanceRecord(module, class string, id int64, name string) map[string]interface{} {
	r := map[string]interface{}{
		KeyModuleName: module,
		KeyClassName:  class,
		KeyInstanceID: id,
	}
	if name != "" {
		r[KeyDict] = map[string]interface{}{"name": name}
	}
	return r
}

func NewFunctionRecord(name string, isMethod bool) map[string]interface{} {
	return map[string]interface{}{
		KeyFunctionName: name,
		KeyIsMethod:     isMethod,
	}
}

// NewPropertyRecord returns a property record; an empty name is sent as null.
func NewPropertyRecord(name string) map[string]interface{} {
	var v interface{}
	if name != "" {
		v = name
	}
	return map[string]interface{}{KeyPropertyName: v}
}

func NewExceptionRecord(kind, msg string, traceback []string) map[string]interface{} {
	r := map[string]interface{}{
		KeyExceptionName: kind,
		KeyMessage:       msg,
	}
	if traceback != nil {
		tb := make([]interface{}, len(traceback))
		for i, l := range traceback {
			tb[i] = l
		}
		r[KeyTraceback] = tb
	}
	return r
}

// NewSetRecord returns the set record for already encoded items.
func NewSetRecord(items []interface{}) map[string]interface{} {
	if items == nil {
		items = []interface{}{}
	}
	return map[string]interface{}{
		KeyType:  SetType,
		KeyValue: items,
	}
}

func NewCallbackRecord(id string) map[string]interface{} {
	return map[string]interface{}{KeyCallbackID: id}
}

// NewFunctionRequest returns a function request. A nil instance id targets
// the module root.
func NewFunctionRequest(name string, args []interface{}, kwargs map[string]interface{}, instanceID *int64) map[string]interface{} {
	if args == nil {
		args = []interface{}{}
	}
	if kwargs == nil {
		kwargs = map[string]interface{}{}
	}
	r := map[string]interface{}{
		KeyFunctionName: name,
		KeyFunctionArgs: args,
		KeyFunctionKw:   kwargs,
	}
	if instanceID != nil {
		r[KeyInstanceID] = *instanceID
	}
	return r
}

func NewPropertyGetRequest(instanceID int64, name string) map[string]interface{} {
	return map[string]interface{}{
		KeyInstanceID:   instanceID,
		KeyPropertyName: name,
	}
}

func NewPropertySetRequest(instanceID int64, name string, value interface{}) map[string]interface{} {
	return map[string]interface{}{
		KeyInstanceID:    instanceID,
		KeyPropertyName:  name,
		KeyPropertyValue: value,
	}
}

func NewBatchRequest(entries []BatchEntry) map[string]interface{} {
	list := make([]interface{}, len(entries))
	for i, e := range entries {
		list[i] = map[string]interface{}{
			KeyRequestName: e.Name,
			KeyRequest:     e.Request,
		}
	}
	return map[string]interface{}{KeyBatchRequests: list}
}
