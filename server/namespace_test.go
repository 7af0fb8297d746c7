package server

import (
	"context"
	"net"
	"os"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CrimsonAS/aliasbridge/apicache"
	"github.com/CrimsonAS/aliasbridge/hostapi"
	"github.com/CrimsonAS/aliasbridge/internal/demoapi"
	"github.com/CrimsonAS/aliasbridge/transport"
	"github.com/CrimsonAS/aliasbridge/wire"
)

type event struct {
	name    string
	payload interface{}
}

type testClient struct {
	conn   *transport.Conn
	events chan event
}

func (c *testClient) call(t *testing.T, name string, payload interface{}) interface{} {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	result, err := c.conn.Call(ctx, DefaultNamespace, name, payload)
	require.NoError(t, err)
	return result
}

func (c *testClient) next(t *testing.T) event {
	select {
	case e := <-c.events:
		return e
	case <-time.After(5 * time.Second):
		t.Fatal("no event received")
		return event{}
	}
}

type serverFixture struct {
	srv   *Server
	state *demoapi.API
	cache *apicache.Store
}

func newServerFixture(t *testing.T) *serverFixture {
	api, state := demoapi.New(hostapi.Info{HostVersion: "2025.1"})
	cache := apicache.New(t.TempDir())
	srv := New(api, WithCache(cache))
	t.Cleanup(srv.Close)
	return &serverFixture{srv: srv, state: state, cache: cache}
}

func (f *serverFixture) connect(t *testing.T) (*testClient, *transport.Conn) {
	a, b := net.Pipe()
	serverConn := transport.NewStreamConn(a, wire.JSON)
	c := &testClient{
		conn:   transport.NewStreamConn(b, wire.JSON),
		events: make(chan event, 16),
	}
	c.conn.Handle(DefaultNamespace, transport.HandlerFunc(func(_ *transport.Conn, name string, payload interface{}) (interface{}, error) {
		c.events <- event{name, payload}
		return nil, nil
	}))
	go c.conn.Run()
	t.Cleanup(func() { c.conn.Close() })

	f.srv.Accept(serverConn)
	return c, serverConn
}

func TestNamespaceRequests(t *testing.T) {
	f := newServerFixture(t)
	c, _ := f.connect(t)

	record := c.call(t, "create_layer", wire.NewFunctionRequest("create_layer", []interface{}{"a"}, nil, nil)).(map[string]interface{})
	assert.True(t, wire.InstanceShape.Matches(record))
	id := record[wire.KeyInstanceID].(int64)
	assert.Equal(t, "a", c.call(t, "name", wire.NewPropertyGetRequest(id, "name")))

	api := c.call(t, EventGetAPI, nil).(map[string]interface{})
	assert.Equal(t, demoapi.ModuleName, api[wire.KeyModuleName])

	info := c.call(t, EventServerInfo, nil).(map[string]interface{})
	assert.Equal(t, DefaultNamespace, info["namespace"])
	assert.Equal(t, "json", info["codec"])
	assert.Equal(t, int64(1), info["instances"])
}

func TestNamespaceAPIInfo(t *testing.T) {
	f := newServerFixture(t)
	c, _ := f.connect(t)

	info := c.call(t, EventGetAPIInfo, nil).(map[string]interface{})
	assert.Equal(t, demoapi.ModuleName, info["module"])
	assert.Equal(t, demoapi.Version, info["version"])
	assert.Equal(t, "2025.1", info["host_version"])
	assert.Equal(t, runtime.Version(), info["language_version"])
	assert.Nil(t, info["last_modified"])

	path, ok := c.call(t, EventLoadAPI, nil).(string)
	require.True(t, ok)
	assert.Equal(t, f.cache.Path(f.srv.Namespace().APIKey()), path)
	_, err := os.Stat(path)
	require.NoError(t, err)

	payload, err := f.cache.Load(f.srv.Namespace().APIKey(), "")
	require.NoError(t, err)
	var decoded interface{}
	require.NoError(t, wire.JSON.Unmarshal(payload, &decoded))
	assert.Equal(t, demoapi.ModuleName, wire.Normalize(decoded).(map[string]interface{})[wire.KeyModuleName])
}

func TestNamespaceSingleClient(t *testing.T) {
	f := newServerFixture(t)
	first, firstServer := f.connect(t)

	second, _ := f.connect(t)
	select {
	case <-second.conn.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("second client was not rejected")
	}
	assert.Same(t, firstServer, f.srv.Namespace().Client())

	first.conn.Close()
	require.Eventually(t, func() bool {
		return f.srv.Namespace().Client() == nil
	}, 5*time.Second, 10*time.Millisecond)

	third, thirdServer := f.connect(t)
	assert.Same(t, thirdServer, f.srv.Namespace().Client())
	assert.Equal(t, true, third.call(t, EventRestart, nil))
}

func TestNamespaceCallbacks(t *testing.T) {
	f := newServerFixture(t)
	c, _ := f.connect(t)

	added := wire.NewEnumRecord(demoapi.ModuleName, "AlMessageType", "LayerAdded", 1)
	result := c.call(t, AddMessageHandler, wire.NewFunctionRequest(AddMessageHandler, []interface{}{added, wire.NewCallbackRecord("cb1")}, nil, nil))
	assert.Equal(t, []interface{}{true, "cb1"}, result)

	layer := c.call(t, "create_layer", wire.NewFunctionRequest("create_layer", []interface{}{"a"}, nil, nil))

	e := c.next(t)
	assert.Equal(t, "cb1", e.name)
	assert.Equal(t, map[string]interface{}{
		"args":   []interface{}{added, layer},
		"kwargs": map[string]interface{}{},
	}, e.payload)
}

func TestNamespaceRestart(t *testing.T) {
	f := newServerFixture(t)
	c, _ := f.connect(t)

	added := wire.NewEnumRecord(demoapi.ModuleName, "AlMessageType", "LayerAdded", 1)
	c.call(t, AddMessageHandler, wire.NewFunctionRequest(AddMessageHandler, []interface{}{added, wire.NewCallbackRecord("cb1")}, nil, nil))
	c.call(t, "create_layer", wire.NewFunctionRequest("create_layer", []interface{}{"a"}, nil, nil))
	assert.Equal(t, "cb1", c.next(t).name)
	assert.Equal(t, 1, f.srv.Model().NumInstances())

	assert.Equal(t, true, c.call(t, EventRestart, nil))
	assert.Equal(t, EventShutdown, c.next(t).name)
	assert.Equal(t, 0, f.srv.Model().NumInstances())
	assert.Empty(t, f.srv.Model().Events())

	count, err := f.srv.Host().Do(func() (interface{}, error) {
		return f.state.MessageHandlerCount(demoapi.LayerAdded), nil
	})
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}
