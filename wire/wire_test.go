package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShapesSortedMostSpecificFirst(t *testing.T) {
	table := Shapes{
		BatchRequestShape,
		PropertyGetRequestShape,
		FunctionRequestShape,
		PropertySetRequestShape,
	}.Sorted()

	names := make([]string, len(table))
	for i, s := range table {
		names[i] = s.Name
	}
	assert.Equal(t, []string{
		"property set request",
		"function request",
		"property get request",
		"batch request",
	}, names)

	set := NewPropertySetRequest(4, "name", "x")
	s, ok := table.Match(set)
	require.True(t, ok)
	assert.Equal(t, "property set request", s.Name)

	get := NewPropertyGetRequest(4, "name")
	s, ok = table.Match(get)
	require.True(t, ok)
	assert.Equal(t, "property get request", s.Name)

	id := int64(4)
	call := NewFunctionRequest("rename", []interface{}{"x"}, nil, &id)
	s, ok = table.Match(call)
	require.True(t, ok)
	assert.Equal(t, "function request", s.Name)

	_, ok = table.Match(map[string]interface{}{"foo": 1})
	assert.False(t, ok)
}

func TestExactShapeRejectsExtraKeys(t *testing.T) {
	m := NewPropertyGetRequest(1, "name")
	m["extra"] = true
	assert.False(t, PropertyGetRequestShape.Matches(m))
}

func TestSetItemsAreOrdered(t *testing.T) {
	s := NewSet(int64(3), "b", int64(1), "a", int64(20))
	assert.Equal(t, []interface{}{int64(1), int64(3), int64(20), "a", "b"}, s.Items())
	assert.True(t, s.Equal(NewSet("a", "b", int64(1), int64(3), int64(20))))
	assert.False(t, s.Equal(NewSet("a")))
}

func TestSetRejectsUnhashable(t *testing.T) {
	_, err := SetFromList([]interface{}{[]interface{}{1}})
	assert.Error(t, err)
}

func TestRemoteErrorRecord(t *testing.T) {
	e := &RemoteError{Kind: "ValueError", Message: "bad", Traceback: []string{"line 1"}}
	r := e.Record()
	assert.True(t, ExceptionShape.Matches(r))

	back, err := ErrorFromRecord(r)
	require.NoError(t, err)
	assert.Equal(t, e, back)
	assert.Equal(t, "ValueError: bad", back.Error())
}

func TestDecodeRecordCoercesNumbers(t *testing.T) {
	var rec EnumRecord
	err := DecodeRecord(map[string]interface{}{
		KeyModuleName: "m",
		KeyClassName:  "Color",
		KeyEnumName:   "Red",
		KeyEnumValue:  float64(2),
	}, &rec)
	require.NoError(t, err)
	assert.Equal(t, EnumRecord{Module: "m", Class: "Color", Name: "Red", Value: 2}, rec)
}

func TestMembersRoundTrip(t *testing.T) {
	r := NewModuleRecord("m", []Member{{"a", int64(1)}, {"b", "x"}})
	members, err := Members(r[KeyMembers])
	require.NoError(t, err)
	assert.Equal(t, []Member{{"a", int64(1)}, {"b", "x"}}, members)

	ref := NewClassRecord("m", "C", nil)
	members, err = Members(ref[KeyMembers])
	require.NoError(t, err)
	assert.Nil(t, members)
}

func TestCodecsNormalizeToSameTree(t *testing.T) {
	in := map[string]interface{}{
		"id":    int64(140234),
		"ratio": 0.5,
		"list":  []interface{}{int64(1), "two", nil, true},
		"sub":   map[string]interface{}{"neg": int64(-3)},
	}

	for _, codec := range []Codec{JSON, CBOR} {
		t.Run(codec.Name(), func(t *testing.T) {
			buf, err := codec.Marshal(in)
			require.NoError(t, err)

			var out interface{}
			require.NoError(t, codec.Unmarshal(buf, &out))
			assert.Equal(t, in, Normalize(out))
		})
	}
}

func TestCodecByName(t *testing.T) {
	c, err := CodecByName("CBOR")
	require.NoError(t, err)
	assert.True(t, c.Binary())

	c, err = CodecByName("")
	require.NoError(t, err)
	assert.Equal(t, "json", c.Name())

	_, err = CodecByName("xml")
	assert.Error(t, err)
}
