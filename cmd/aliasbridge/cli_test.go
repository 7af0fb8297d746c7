package main

import (
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CrimsonAS/aliasbridge/client"
	"github.com/CrimsonAS/aliasbridge/hostapi"
	"github.com/CrimsonAS/aliasbridge/internal/demoapi"
	"github.com/CrimsonAS/aliasbridge/internal/version"
	"github.com/CrimsonAS/aliasbridge/server"
	"github.com/CrimsonAS/aliasbridge/transport"
	"github.com/CrimsonAS/aliasbridge/wire"
)

func TestVersion(t *testing.T) {
	home := isolate(t)

	stdout, _, err := executeCLI(t, home, "version")
	require.NoError(t, err)
	assert.Equal(t, version.Version+"\n", stdout)
}

func TestConfigInitAndShow(t *testing.T) {
	home := isolate(t)
	path := filepath.Join(home, "aliasbridge.toml")

	stdout, _, err := executeCLI(t, home, "config", "init", "--path", path)
	require.NoError(t, err)
	assert.Contains(t, stdout, path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var file map[string]map[string]interface{}
	require.NoError(t, toml.Unmarshal(data, &file))
	assert.Equal(t, "127.0.0.1:8765", file["server"]["addr"])
	assert.Equal(t, "/alias", file["server"]["namespace"])
	assert.Equal(t, "20s", file["client"]["timeout"])
	assert.Equal(t, "json", file["wire"]["codec"])

	_, _, err = executeCLI(t, home, "config", "init", "--path", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	_, _, err = executeCLI(t, home, "config", "init", "--path", path, "--force")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("[wire]\ncodec = \"cbor\"\n\n[client]\ntimeout = \"3s\"\n"), 0o644))
	t.Setenv("ALIASBRIDGE_SERVER_ADDR", "10.0.0.1:9000")
	stdout, _, err = executeCLI(t, home, "--config", path, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, stdout, "# "+path)
	assert.Contains(t, stdout, "wire.codec = cbor")
	assert.Contains(t, stdout, "client.timeout = 3s")
	assert.Contains(t, stdout, "server.addr = 10.0.0.1:9000")
	assert.Contains(t, stdout, "server.namespace = /alias")
}

func TestConfigErrors(t *testing.T) {
	home := isolate(t)

	_, _, err := executeCLI(t, home, "--config", filepath.Join(home, "missing.toml"), "config", "show")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")

	bad := filepath.Join(home, "bad.toml")
	require.NoError(t, os.WriteFile(bad, []byte("[client]\ntimeout = \"soon\"\n"), 0o644))
	_, _, err = executeCLI(t, home, "--config", bad, "--addr", "127.0.0.1:1", "api")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "client.timeout")

	_, _, err = executeCLI(t, home, "--codec", "xml", "api")
	require.Error(t, err)
}

func TestServeStopsWithContext(t *testing.T) {
	home := isolate(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	root := newRootCmd()
	stdout := &bytes.Buffer{}
	root.SetOut(stdout)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"serve", "--addr", "127.0.0.1:0", "--codec", "cbor"})
	t.Setenv("HOME", home)

	require.NoError(t, root.ExecuteContext(ctx))
	assert.Contains(t, stdout.String(), "serving alias_api on 127.0.0.1:0 (cbor)")
}

func TestServeStdio(t *testing.T) {
	home := isolate(t)
	t.Setenv("HOME", home)
	hostSide, clientSide := net.Pipe()
	stdioConn = func(codec wire.Codec) *transport.Conn {
		return transport.NewStreamConn(hostSide, codec)
	}
	t.Cleanup(func() { stdioConn = transport.NewStdConn })

	root := newRootCmd()
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetArgs([]string{"serve", "--stdio", "--codec", "cbor"})
	done := make(chan error, 1)
	go func() { done <- root.Execute() }()

	ctx := context.Background()
	c := client.New(transport.NewStreamConn(clientSide, wire.CBOR))
	mod, err := c.GetAPI(ctx)
	require.NoError(t, err)
	v, err := mod.Call(ctx, "create_layer", "piped")
	require.NoError(t, err)
	inst, ok := v.(*client.Instance)
	require.True(t, ok)
	assert.Equal(t, "piped", inst.Name)

	// The command returns once the parent disconnects
	require.NoError(t, c.Close())
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve --stdio did not return after the client disconnected")
	}
	assert.Contains(t, stderr.String(), "serving alias_api on stdio (cbor)")
	assert.Empty(t, stdout.String())
}

func TestAPI(t *testing.T) {
	home := isolate(t)
	h := startHost(t, wire.JSON)

	stdout, _, err := h.execute(t, home, "api")
	require.NoError(t, err)
	kinds := memberKinds(stdout)
	assert.Equal(t, "function", kinds["create_layer"])
	assert.Equal(t, "class", kinds["Layer"])
	assert.Equal(t, "class", kinds["AlMessageType"])
	assert.Equal(t, "constant "+demoapi.Version, kinds["VERSION"])
	assert.NotContains(t, kinds, "__name__")

	stdout, _, err = h.execute(t, home, "api", "Layer")
	require.NoError(t, err)
	kinds = memberKinds(stdout)
	assert.Equal(t, "method", kinds["rename"])
	assert.Equal(t, "property", kinds["display_name"])

	stdout, _, err = h.execute(t, home, "api", "AlMessageType")
	require.NoError(t, err)
	assert.Equal(t, "enum AlMessageType.LayerAdded", memberKinds(stdout)["LayerAdded"])

	_, _, err = h.execute(t, home, "api", "Missing")
	require.Error(t, err)
}

func TestCall(t *testing.T) {
	for _, codec := range []wire.Codec{wire.JSON, wire.CBOR} {
		t.Run(codec.Name(), func(t *testing.T) {
			home := isolate(t)
			h := startHost(t, codec)

			stdout, _, err := h.execute(t, home, "call", "create_layer", "top")
			require.NoError(t, err)
			assert.Equal(t, "\"<Layer \\\"top\\\">\"\n", stdout)

			_, _, err = h.execute(t, home, "call", "create_layer", "--kw", "name=bottom")
			require.NoError(t, err)

			stdout, _, err = h.execute(t, home, "call", "get_layer_names")
			require.NoError(t, err)
			assert.JSONEq(t, `["bottom", "top"]`, stdout)

			stdout, _, err = h.execute(t, home, "call", "get_layer_visibility")
			require.NoError(t, err)
			assert.JSONEq(t, `{"bottom": true, "top": true}`, stdout)

			_, _, err = h.execute(t, home, "call", "raise_error", `"boom"`)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "boom")

			_, _, err = h.execute(t, home, "call", "create_layer", "--kw", "broken")
			require.Error(t, err)
			assert.Contains(t, err.Error(), "name=value")
		})
	}
}

func TestInfoAndRestart(t *testing.T) {
	home := isolate(t)
	h := startHost(t, wire.JSON)

	stdout, _, err := h.execute(t, home, "info")
	require.NoError(t, err)
	assert.Contains(t, stdout, `"Module": "alias_api"`)
	assert.Contains(t, stdout, `"HostVersion": "2025.1"`)
	assert.Contains(t, stdout, `"namespace": "/alias"`)

	stdout, _, err = h.execute(t, home, "restart")
	require.NoError(t, err)
	assert.Equal(t, "restarted\n", stdout)
}

func TestUnreachableHost(t *testing.T) {
	home := isolate(t)
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	_, _, err = executeCLI(t, home, "--addr", addr, "api")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connect to ws://"+addr+"/")
}

// isolate points the config search path and the cache at a fresh
// directory.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, "config"))
	t.Setenv("ALIASBRIDGE_CACHE_DIR", filepath.Join(home, "cache"))
	return home
}

func executeCLI(t *testing.T, home string, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("HOME", home)

	root := newRootCmd()
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetArgs(args)

	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

type host struct {
	srv   *server.Server
	addr  string
	codec wire.Codec
}

func startHost(t *testing.T, codec wire.Codec) *host {
	t.Helper()
	api, _ := demoapi.New(hostapi.Info{HostVersion: "2025.1"})
	srv := server.New(api, server.WithCodec(codec))

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		transport.Serve(ctx, l, codec, srv.Accept)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		srv.Close()
	})
	return &host{srv: srv, addr: l.Addr().String(), codec: codec}
}

// execute runs the CLI against the host and waits for the client to
// detach, since the host serves one client at a time.
func (h *host) execute(t *testing.T, home string, args ...string) (string, string, error) {
	t.Helper()
	args = append([]string{"--addr", h.addr, "--codec", h.codec.Name()}, args...)
	stdout, stderr, err := executeCLI(t, home, args...)
	require.Eventually(t, func() bool {
		return h.srv.Namespace().Client() == nil
	}, 5*time.Second, 10*time.Millisecond)
	return stdout, stderr, err
}

func memberKinds(out string) map[string]string {
	kinds := make(map[string]string)
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		name, kind, ok := strings.Cut(line, " ")
		if !ok {
			continue
		}
		kinds[name] = strings.TrimSpace(kind)
	}
	return kinds
}
