package server

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CrimsonAS/aliasbridge/hostapi"
	"github.com/CrimsonAS/aliasbridge/internal/demoapi"
	"github.com/CrimsonAS/aliasbridge/wire"
)

type recordingEmitter struct {
	ids  []string
	args [][]interface{}
}

func (r *recordingEmitter) EmitCallback(id string, args []interface{}, kwargs map[string]interface{}) {
	r.ids = append(r.ids, id)
	r.args = append(r.args, args)
}

type fixture struct {
	api     *hostapi.Module
	state   *demoapi.API
	model   *DataModel
	encoder *Encoder
	decoder *Decoder
	emitter *recordingEmitter
}

func newFixture() *fixture {
	api, state := demoapi.New(hostapi.Info{HostVersion: "2025.1"})
	model := NewDataModel()
	emitter := &recordingEmitter{}
	return &fixture{
		api:     api,
		state:   state,
		model:   model,
		encoder: NewEncoder(api, model),
		decoder: NewDecoder(api, model, emitter),
		emitter: emitter,
	}
}

func members(t *testing.T, record interface{}) map[string]interface{} {
	m, ok := record.(map[string]interface{})
	require.True(t, ok, "not a record: %#v", record)
	list, err := wire.Members(m[wire.KeyMembers])
	require.NoError(t, err)
	out := make(map[string]interface{}, len(list))
	for _, member := range list {
		out[member.Name] = member.Value
	}
	return out
}

func TestEncodeModule(t *testing.T) {
	f := newFixture()
	record := f.encoder.Encode(f.api).(map[string]interface{})
	assert.True(t, wire.ModuleShape.Matches(record))
	assert.Equal(t, "alias_api", record[wire.KeyModuleName])

	list, err := wire.Members(record[wire.KeyMembers])
	require.NoError(t, err)
	for i := 1; i < len(list); i++ {
		assert.Less(t, list[i-1].Name, list[i].Name)
	}

	all := members(t, record)
	assert.Nil(t, all["__loader__"])
	assert.Equal(t, demoapi.Version, all["VERSION"])
	assert.Equal(t, wire.NewFunctionRecord("create_layer", false), all["create_layer"])

	enum := members(t, all["AlMessageType"])
	assert.Equal(t, wire.NewEnumRecord("alias_api", "AlMessageType", "LayerAdded", 1), enum["LayerAdded"])
}

func TestEncodeCyclicClassTerminates(t *testing.T) {
	f := newFixture()
	layer, ok := f.api.Class("Layer")
	require.True(t, ok)

	record := f.encoder.Encode(layer)
	all := members(t, record)

	// Layer.Layer refers back to Layer by name only
	assert.Equal(t, wire.NewClassRecord("alias_api", "Layer", nil), all["Layer"])
	assert.Equal(t, wire.NewClassRecord("alias_api", "AlMessageType", nil), all["MessageType"])
	assert.Equal(t, wire.NewFunctionRecord("rename", true), all["rename"])
	assert.Equal(t, wire.NewPropertyRecord("name"), all["name"])
	assert.Equal(t, wire.NewPropertyRecord(""), all["display_name"])
}

func TestEncodeInstanceIdentity(t *testing.T) {
	f := newFixture()
	l := f.state.CreateLayer("one")

	first := f.encoder.Encode(l).(map[string]interface{})
	second := f.encoder.Encode([]interface{}{l}).([]interface{})[0].(map[string]interface{})
	assert.Equal(t, first[wire.KeyInstanceID], second[wire.KeyInstanceID])
	assert.Equal(t, map[string]interface{}{"name": "one"}, first[wire.KeyDict])
	assert.Equal(t, 1, f.model.NumInstances())

	obj, err := f.decoder.Decode(first)
	require.NoError(t, err)
	assert.Same(t, l, obj)
}

func TestEncodeValues(t *testing.T) {
	f := newFixture()
	l := f.state.CreateLayer("a")

	assert.Equal(t, wire.NewEnumRecord("alias_api", "AlMessageType", "StageActive", 4), f.encoder.Encode(demoapi.StageActive))
	assert.Equal(t, wire.NewSetRecord([]interface{}{"a", "b"}), f.encoder.Encode(wire.NewSet("b", "a")))
	assert.Equal(t, map[string]interface{}{"a": true}, f.encoder.Encode(f.state.LayerVisibility()))
	assert.Equal(t, wire.NewFunctionRecord("Rename", true), f.encoder.Encode(l.Rename))
	assert.Equal(t, wire.NewFunctionRecord("New", false), f.encoder.Encode(demoapi.New))

	type payload struct {
		Name  string `json:"name"`
		Ch    chan int
		Count uint8
		Skip  string `json:"-"`
	}
	encoded := f.encoder.Encode(payload{Name: "x", Ch: make(chan int), Count: 3})
	assert.Equal(t, map[string]interface{}{"name": "x", "Ch": nil, "Count": int64(3)}, encoded)

	cyclic := map[string]interface{}{}
	cyclic["self"] = cyclic
	assert.NotPanics(t, func() { f.encoder.Encode(cyclic) })
}

func TestEncodeError(t *testing.T) {
	f := newFixture()

	record := f.encoder.Encode(hostapi.Errorf("AlException", "bad %d", 1)).(map[string]interface{})
	assert.Equal(t, "AlException", record[wire.KeyExceptionName])
	assert.Equal(t, "bad 1", record[wire.KeyMessage])
	assert.NotEmpty(t, record[wire.KeyTraceback])

	record = f.encoder.Encode(errors.New("plain")).(map[string]interface{})
	assert.Equal(t, "Error", record[wire.KeyExceptionName])
	_, hasTB := record[wire.KeyTraceback]
	assert.False(t, hasTB)

	_, err := f.decoder.Decode(map[string]interface{}{
		wire.KeyModuleName: "alias_api", wire.KeyClassName: "Layer", wire.KeyInstanceID: int64(1),
	})
	record = f.encoder.Encode(err).(map[string]interface{})
	assert.Equal(t, "InstanceNotFoundError", record[wire.KeyExceptionName])
}

func TestDecodeValues(t *testing.T) {
	f := newFixture()

	v, err := f.decoder.Decode(wire.NewEnumRecord("alias_api", "AlMessageType", "DagNameModified", 3))
	require.NoError(t, err)
	assert.Equal(t, demoapi.DagNameModified, v)

	v, err = f.decoder.Decode(map[string]interface{}{wire.KeyClassName: "Layer"})
	require.NoError(t, err)
	layer, _ := f.api.Class("Layer")
	assert.Same(t, layer, v)

	v, err = f.decoder.Decode(wire.NewSetRecord([]interface{}{int64(1), "x", int64(1)}))
	require.NoError(t, err)
	assert.True(t, wire.NewSet(int64(1), "x").Equal(v.(wire.Set)))

	v, err = f.decoder.Decode(map[string]interface{}{"plain": []interface{}{int64(1)}})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"plain": []interface{}{int64(1)}}, v)

	_, err = f.decoder.Decode([]interface{}{map[string]interface{}{
		wire.KeyModuleName: "alias_api", wire.KeyClassName: "Layer", wire.KeyInstanceID: int64(99),
	}})
	assert.ErrorIs(t, err, ErrInstanceNotFound)
}

func TestDecodeCallback(t *testing.T) {
	f := newFixture()

	v, err := f.decoder.Decode(wire.NewCallbackRecord("123.on_added"))
	require.NoError(t, err)
	cb, ok := v.(*hostapi.Callback)
	require.True(t, ok)
	assert.Equal(t, "123.on_added", cb.ID)

	cb.Invoke("x", 1)
	assert.Equal(t, []string{"123.on_added"}, f.emitter.ids)
	assert.Equal(t, [][]interface{}{{"x", 1}}, f.emitter.args)

	assert.Equal(t, wire.NewCallbackRecord("123.on_added"), f.encoder.Encode(cb))
}

func TestSetRoundTrip(t *testing.T) {
	f := newFixture()
	for _, s := range []wire.Set{
		wire.NewSet(),
		wire.NewSet("a"),
		wire.NewSet(int64(1), int64(2), "three", 4.5, true),
	} {
		decoded, err := f.decoder.Decode(f.encoder.Encode(s))
		require.NoError(t, err)
		assert.True(t, s.Equal(decoded.(wire.Set)), "%v", s)
	}
}
