package wire

import "sort"

// A Shape names a record kind by its required keys. Exact shapes only match
// maps with exactly those keys; other shapes match any superset.
type Shape struct {
	Name     string
	Required []string
	Exact    bool
}

// Matches reports whether m has the shape.
func (s Shape) Matches(m map[string]interface{}) bool {
	if s.Exact && len(m) != len(s.Required) {
		return false
	}
	for _, k := range s.Required {
		if _, ok := m[k]; !ok {
			return false
		}
	}
	return true
}

// Shapes is an ordered shape table.
type Shapes []Shape

// Sorted returns a copy ordered most specific first: more required keys
// before fewer, exact before subset at the same count. Ties keep their order.
func (t Shapes) Sorted() Shapes {
	sorted := append(Shapes(nil), t...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if len(a.Required) != len(b.Required) {
			return len(a.Required) > len(b.Required)
		}
		return a.Exact && !b.Exact
	})
	return sorted
}

// Match returns the first shape of t matching m.
func (t Shapes) Match(m map[string]interface{}) (Shape, bool) {
	for _, s := range t {
		if s.Matches(m) {
			return s, true
		}
	}
	return Shape{}, false
}

// Record shapes shared by both ends.
var (
	ModuleShape    = Shape{Name: "module", Required: []string{KeyModuleName, KeyMembers}}
	ClassShape     = Shape{Name: "class", Required: []string{KeyModuleName, KeyClassName, KeyMembers}}
	EnumShape      = Shape{Name: "enum", Required: []string{KeyModuleName, KeyClassName, KeyEnumName, KeyEnumValue}}
	InstanceShape  = Shape{Name: "instance", Required: []string{KeyModuleName, KeyClassName, KeyInstanceID}}
	FunctionShape  = Shape{Name: "function", Required: []string{KeyFunctionName, KeyIsMethod}}
	PropertyShape  = Shape{Name: "property", Required: []string{KeyPropertyName}}
	ExceptionShape = Shape{Name: "exception", Required: []string{KeyExceptionName, KeyMessage}}
	SetShape       = Shape{Name: "set", Required: []string{KeyType, KeyValue}}
	CallbackShape  = Shape{Name: "callback", Required: []string{KeyCallbackID}}

	FunctionRequestShape    = Shape{Name: "function request", Required: []string{KeyFunctionName, KeyFunctionArgs, KeyFunctionKw}}
	PropertyGetRequestShape = Shape{Name: "property get request", Required: []string{KeyInstanceID, KeyPropertyName}, Exact: true}
	PropertySetRequestShape = Shape{Name: "property set request", Required: []string{KeyInstanceID, KeyPropertyName, KeyPropertyValue}, Exact: true}
	BatchRequestShape       = Shape{Name: "batch request", Required: []string{KeyBatchRequests}, Exact: true}
)

// IsSet reports whether m is a set record.
func IsSet(m map[string]interface{}) bool {
	t, ok := m[KeyType].(string)
	return ok && t == SetType && SetShape.Matches(m)
}
