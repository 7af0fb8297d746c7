package hostapi

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Color int

const (
	Red Color = iota
	Green
	Blue
)

type Base struct {
	ID int
}

type Node struct {
	Base
	Name     string
	IsFolder bool   `alias:"folder"`
	Secret   string `alias:"-"`
	Color    Color

	hidden int
}

func (n *Node) Rename(name string) {
	n.Name = name
}

func (n *Node) Explode() {
	panic("kaboom")
}

func (n *Node) String() string {
	return n.Name
}

func newTestModule(t *testing.T) (*Module, *Class, *Class) {
	api := NewModule("test_api", Info{Version: "1.0"})
	node, err := api.AddClass("Node", &Node{})
	require.NoError(t, err)
	color, err := api.AddEnum("Color", map[string]interface{}{
		"Red":   Red,
		"Green": Green,
		"Blue":  Blue,
	})
	require.NoError(t, err)
	return api, node, color
}

func TestClassMembers(t *testing.T) {
	_, node, _ := newTestModule(t)

	var names []string
	for _, m := range node.Members() {
		names = append(names, m.Name)
	}
	assert.Equal(t, []string{"color", "explode", "folder", "id", "name", "rename"}, names)

	_, ok := node.Attr("rename")
	assert.True(t, ok)
	_, ok = node.Attr("string")
	assert.False(t, ok)
}

func TestDuplicateRegistration(t *testing.T) {
	api, _, _ := newTestModule(t)
	_, err := api.AddClass("Other", &Node{})
	assert.Error(t, err)
	_, err = api.AddClass("Bad", 3)
	assert.Error(t, err)
	_, err = api.AddEnum("Mixed", map[string]interface{}{"A": Red, "B": 1})
	assert.Error(t, err)
}

func TestGetSetAttr(t *testing.T) {
	api, _, _ := newTestModule(t)
	n := &Node{Name: "a", Base: Base{ID: 4}}

	v, err := api.GetAttr(n, "name")
	require.NoError(t, err)
	assert.Equal(t, "a", v)

	v, err = api.GetAttr(n, "id")
	require.NoError(t, err)
	assert.Equal(t, 4, v)

	require.NoError(t, api.SetAttr(n, "folder", true))
	assert.True(t, n.IsFolder)

	require.NoError(t, api.SetAttr(n, "color", int64(2)))
	assert.Equal(t, Blue, n.Color)

	_, err = api.GetAttr(n, "secret")
	assert.ErrorIs(t, err, ErrNoAttribute)
	assert.Equal(t, "AttributeError", ErrorKind(err))

	err = api.SetAttr(n, "rename", "x")
	assert.ErrorIs(t, err, ErrReadOnly)
}

func TestBoundMethodCall(t *testing.T) {
	api, _, _ := newTestModule(t)
	n := &Node{Name: "a"}

	m, err := api.GetAttr(n, "rename")
	require.NoError(t, err)
	bound, ok := m.(*BoundMethod)
	require.True(t, ok)
	assert.Same(t, n, bound.Receiver)

	_, err = api.Call(bound, []interface{}{"b"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "b", n.Name)
}

func TestPanicBecomesError(t *testing.T) {
	api, node, _ := newTestModule(t)
	n := &Node{}

	explode, _ := node.Attr("explode")
	_, err := api.Call(explode, []interface{}{n}, nil)
	require.Error(t, err)
	assert.Equal(t, "Panic", ErrorKind(err))
	assert.Equal(t, "kaboom", err.Error())

	tb := TracebackOf(err)
	require.NotNil(t, tb)
	lines := tb.Lines()
	assert.Equal(t, "Traceback (most recent call last):", lines[0])
	assert.Contains(t, lines[len(lines)-1], "Explode")
}

func TestClassNew(t *testing.T) {
	api, node, color := newTestModule(t)

	obj, err := api.Call(node, []interface{}{"first"}, map[string]interface{}{"folder": true})
	require.NoError(t, err)
	n, ok := obj.(*Node)
	require.True(t, ok)
	assert.Equal(t, "first", n.Name)
	assert.True(t, n.IsFolder)

	_, err = node.New(nil, map[string]interface{}{"nope": 1})
	assert.Error(t, err)

	_, err = color.New(nil, nil)
	assert.Error(t, err)

	node.SetConstructor(func(name string) *Node { return &Node{Name: name + "!"} }, "name")
	obj, err = node.New(nil, map[string]interface{}{"name": "x"})
	require.NoError(t, err)
	assert.Equal(t, "x!", obj.(*Node).Name)
}

func TestEnumClass(t *testing.T) {
	api, _, color := newTestModule(t)

	c, ok := api.EnumClass(Green)
	require.True(t, ok)
	assert.Same(t, color, c)

	name, value, ok := color.EnumEntry(Green)
	require.True(t, ok)
	assert.Equal(t, "Green", name)
	assert.Equal(t, int64(1), value)

	_, ok = api.EnumClass(1)
	assert.False(t, ok)
	_, ok = api.InstanceClass(Green)
	assert.False(t, ok)

	v, err := api.GetAttr(color, "Blue")
	require.NoError(t, err)
	assert.Equal(t, Blue, v)
}

func TestPropertiesAndStatics(t *testing.T) {
	api, node, _ := newTestModule(t)
	_, err := node.AddProperty("display_name",
		func(n *Node) string { return "<" + n.Name + ">" },
		func(n *Node, v string) error {
			if v == "" {
				return errors.New("empty name")
			}
			n.Name = v
			return nil
		})
	require.NoError(t, err)
	node.AddFunction("count", func() int { return 7 })

	n := &Node{Name: "a"}
	v, err := api.GetAttr(n, "display_name")
	require.NoError(t, err)
	assert.Equal(t, "<a>", v)

	require.NoError(t, api.SetAttr(n, "display_name", "b"))
	assert.Equal(t, "b", n.Name)
	assert.EqualError(t, api.SetAttr(n, "display_name", ""), "empty name")

	count, err := api.GetAttr(node, "count")
	require.NoError(t, err)
	result, err := api.Call(count, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 7, result)
}

func TestModuleAttrsAndCallbacks(t *testing.T) {
	api, _, _ := newTestModule(t)
	api.AddFunction("add", func(a, b int) int { return a + b }, "a", "b")

	add, err := api.GetAttr(api, "add")
	require.NoError(t, err)
	result, err := api.Call(add, []interface{}{int64(1)}, map[string]interface{}{"b": int64(2)})
	require.NoError(t, err)
	assert.Equal(t, 3, result)

	_, err = api.GetAttr(api, "missing")
	assert.ErrorIs(t, err, ErrNoAttribute)

	loader, ok := api.Attr("__loader__")
	require.True(t, ok)
	assert.Implements(t, (*Opaque)(nil), loader)

	var got []interface{}
	cb := &Callback{ID: "cb", Fn: func(args []interface{}, kwargs map[string]interface{}) { got = args }}
	_, err = api.Call(cb, []interface{}{1, 2}, nil)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{1, 2}, got)

	_, err = api.Call(42, nil, nil)
	assert.ErrorIs(t, err, ErrNotCallable)
}
