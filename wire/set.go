package wire

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/spf13/cast"
)

// Set is an unordered collection of distinct hashable values.
type Set map[interface{}]struct{}

// NewSet returns a set holding items. It panics if an item is not hashable.
func NewSet(items ...interface{}) Set {
	s, err := SetFromList(items)
	if err != nil {
		panic(err)
	}
	return s
}

// SetFromList builds a set from a list, failing on unhashable items.
func SetFromList(items []interface{}) (Set, error) {
	s := make(Set, len(items))
	for i, item := range items {
		if item != nil && !reflect.TypeOf(item).Comparable() {
			return nil, fmt.Errorf("wire: set item %d of type %T is not hashable", i, item)
		}
		s[item] = struct{}{}
	}
	return s, nil
}

// Add inserts v.
func (s Set) Add(v interface{}) {
	s[v] = struct{}{}
}

// Has reports whether v is in the set.
func (s Set) Has(v interface{}) bool {
	_, ok := s[v]
	return ok
}

// Equal reports whether both sets hold the same items.
func (s Set) Equal(o Set) bool {
	if len(s) != len(o) {
		return false
	}
	for k := range s {
		if _, ok := o[k]; !ok {
			return false
		}
	}
	return true
}

// Items returns the items in a deterministic order: grouped by type, numbers
// ordered numerically and everything else by its printed form.
func (s Set) Items() []interface{} {
	items := make([]interface{}, 0, len(s))
	for k := range s {
		items = append(items, k)
	}
	sort.Slice(items, func(i, j int) bool {
		return lessItem(items[i], items[j])
	})
	return items
}

func lessItem(a, b interface{}) bool {
	ta, tb := fmt.Sprintf("%T", a), fmt.Sprintf("%T", b)
	if ta != tb {
		return ta < tb
	}
	if isNumber(a) {
		return cast.ToFloat64(a) < cast.ToFloat64(b)
	}
	return fmt.Sprint(a) < fmt.Sprint(b)
}

func isNumber(v interface{}) bool {
	switch reflect.ValueOf(v).Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
