package client

import (
	"net"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CrimsonAS/aliasbridge/transport"
	"github.com/CrimsonAS/aliasbridge/wire"
)

func reflectValue(fn interface{}) reflect.Value {
	return reflect.ValueOf(fn)
}

func newOfflineClient(t *testing.T) *Client {
	a, b := net.Pipe()
	c := New(transport.NewStreamConn(b, wire.JSON), WithManualProcessing())
	t.Cleanup(func() { c.Close(); a.Close() })
	return c
}

func moduleRecord() map[string]interface{} {
	return wire.NewModuleRecord("api", []wire.Member{
		{Name: "Kind", Value: wire.NewClassRecord("api", "Kind", []wire.Member{
			{Name: "A", Value: wire.NewEnumRecord("api", "Kind", "A", 1)},
			{Name: "B", Value: wire.NewEnumRecord("api", "Kind", "B", 2)},
		})},
		{Name: "Node", Value: wire.NewClassRecord("api", "Node", []wire.Member{
			{Name: "Node", Value: wire.NewClassRecord("api", "Node", nil)},
			{Name: "Other", Value: wire.NewClassRecord("api", "Other", nil)},
			{Name: "label", Value: wire.NewPropertyRecord("")},
			{Name: "name", Value: wire.NewPropertyRecord("name")},
			{Name: "walk", Value: wire.NewFunctionRecord("walk", true)},
		})},
		{Name: "Other", Value: wire.NewClassRecord("api", "Other", []wire.Member{})},
		{Name: "VERSION", Value: "2"},
		{Name: "make", Value: wire.NewFunctionRecord("make", false)},
	})
}

func TestDecodeModule(t *testing.T) {
	c := newOfflineClient(t)

	v, err := c.decode(nil, moduleRecord())
	require.NoError(t, err)
	m, ok := v.(*Module)
	require.True(t, ok)
	assert.Equal(t, []string{"Kind", "Node", "Other", "VERSION", "make"}, m.Members())

	again, err := c.decode(nil, moduleRecord())
	require.NoError(t, err)
	assert.Same(t, m, again)

	node, err := m.Class("Node")
	require.NoError(t, err)
	self, _ := node.Attr("Node")
	assert.Same(t, node, self)

	// Referenced before its record, resolved once the record arrived
	other, _ := m.Class("Other")
	ref, _ := node.Attr("Other")
	assert.Same(t, other, ref)
	assert.True(t, other.Resolved())

	label, _ := node.Attr("label")
	assert.Equal(t, "label", label.(*Property).Name)

	kind, _ := m.Class("Kind")
	a, err := kind.Enum("A")
	require.NoError(t, err)
	decoded, err := c.decode(m, wire.NewEnumRecord("api", "Kind", "A", 1))
	require.NoError(t, err)
	assert.Equal(t, a, decoded)
}

func TestDecodeValues(t *testing.T) {
	c := newOfflineClient(t)
	m, err := c.decode(nil, moduleRecord())
	require.NoError(t, err)
	mod := m.(*Module)

	v, err := c.decode(mod, wire.NewInstanceRecord("api", "Node", 7, "root"))
	require.NoError(t, err)
	inst := v.(*Instance)
	assert.Equal(t, int64(7), inst.ID)
	assert.Equal(t, "root", inst.Name)
	node, _ := mod.Class("Node")
	assert.Same(t, node, inst.Class)

	_, err = c.decode(mod, wire.NewInstanceRecord("elsewhere", "Node", 7, ""))
	assert.ErrorIs(t, err, ErrModuleNotFound)

	v, err = c.decode(mod, []interface{}{wire.NewExceptionRecord("Boom", "bad", []string{"line"})})
	require.NoError(t, err)
	assert.Equal(t, []interface{}{&wire.RemoteError{Kind: "Boom", Message: "bad", Traceback: []string{"line"}}}, v)

	v, err = c.decode(mod, wire.NewSetRecord([]interface{}{int64(1), wire.NewEnumRecord("api", "Kind", "B", 2)}))
	require.NoError(t, err)
	kind, _ := mod.Class("Kind")
	b, _ := kind.Enum("B")
	assert.True(t, wire.NewSet(int64(1), b).Equal(v.(wire.Set)))

	v, err = c.decode(mod, map[string]interface{}{"plain": wire.NewFunctionRecord("f", false)})
	require.NoError(t, err)
	assert.Equal(t, "f", v.(map[string]interface{})["plain"].(*Function).Name)
}

func TestEncodeValues(t *testing.T) {
	c := newOfflineClient(t)
	m, err := c.decode(nil, moduleRecord())
	require.NoError(t, err)
	mod := m.(*Module)
	node, _ := mod.Class("Node")
	kind, _ := mod.Class("Kind")
	a, _ := kind.Enum("A")

	cases := []struct {
		in   interface{}
		want interface{}
	}{
		{int(3), int64(3)},
		{uint8(4), int64(4)},
		{float32(0.5), float64(0.5)},
		{[]string{"x"}, []interface{}{"x"}},
		{map[string]int{"k": 1}, map[string]interface{}{"k": int64(1)}},
		{a, wire.NewEnumRecord("api", "Kind", "A", 1)},
		{node, map[string]interface{}{wire.KeyClassName: "Node"}},
		{&Instance{Class: node, ID: 9}, wire.NewInstanceRecord("api", "Node", 9, "")},
		{wire.NewSet("b", "a"), wire.NewSetRecord([]interface{}{"a", "b"})},
	}
	for _, tc := range cases {
		got, err := c.encode(tc.in)
		require.NoError(t, err, "%#v", tc.in)
		assert.Equal(t, tc.want, got, "%#v", tc.in)
	}

	for _, bad := range []interface{}{make(chan int), &Pending{Name: "x"}, mod, complex(1, 2)} {
		_, err := c.encode(bad)
		assert.ErrorIs(t, err, ErrEncode, "%#v", bad)
	}
}

func TestEncodeCallbacks(t *testing.T) {
	c := newOfflineClient(t)
	handler := func(args ...interface{}) {}

	first, err := c.encode(handler)
	require.NoError(t, err)
	second, err := c.encode([]interface{}{handler})
	require.NoError(t, err)
	assert.Equal(t, first, second.([]interface{})[0])
	assert.Equal(t, 1, c.NumCallbacks())

	cb := NewCallback(handler)
	record, err := c.encode(cb)
	require.NoError(t, err)
	assert.Equal(t, wire.NewCallbackRecord(cb.ID), record)
	assert.NotEqual(t, first, record)
	assert.Equal(t, 2, c.NumCallbacks())

	decoded, err := c.decode(nil, record)
	require.NoError(t, err)
	assert.Same(t, cb, decoded)

	assert.Panics(t, func() { NewCallback("not a func") })
}
