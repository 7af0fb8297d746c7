// Package client gives an external process access to a host API served by
// the server package.
//
// The API arrives as a tree of stand-ins: a Module holding functions,
// classes and constants, Classes holding methods, properties and enum
// values, and Instances standing for host objects. Calls made through them
// are sent to the host, and their results come back as plain values or
// further stand-ins. Go funcs passed as arguments become callbacks the host
// can invoke.
package client

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/tliron/commonlog"

	"github.com/CrimsonAS/aliasbridge/apicache"
	"github.com/CrimsonAS/aliasbridge/transport"
	"github.com/CrimsonAS/aliasbridge/wire"
)

var log = commonlog.GetLogger("aliasbridge.client")

const (
	DefaultTimeout      = 20 * time.Second
	DefaultPumpInterval = 10 * time.Millisecond
)

type classKey struct {
	module, class string
}

type Client struct {
	conn         *transport.Conn
	namespace    string
	timeout      time.Duration
	pumpInterval time.Duration
	pump         func()
	cache        *apicache.Store
	manual       bool

	mu        sync.Mutex
	modules   map[string]*Module
	classes   map[classKey]*Class
	enumTypes map[classKey]*EnumType
	callbacks map[string]*Callback
	onClose   []func(error)
}

type Option func(*Client)

func WithNamespace(name string) Option {
	return func(c *Client) { c.namespace = name }
}

// WithTimeout bounds how long a request waits for its reply. Zero waits
// until the context is done.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

func WithPumpInterval(d time.Duration) Option {
	return func(c *Client) { c.pumpInterval = d }
}

// WithEventPump sets a function called repeatedly while a request waits for
// its reply, such as a GUI toolkit's event processing.
func WithEventPump(fn func()) Option {
	return func(c *Client) { c.pump = fn }
}

// WithCache keeps API descriptions in store between runs.
func WithCache(store *apicache.Store) Option {
	return func(c *Client) { c.cache = store }
}

// WithManualProcessing leaves processing of host events, including
// callbacks, to the caller: they run from Process, and while a request
// waits for its reply. Without it, events are processed on a goroutine of
// the client.
func WithManualProcessing() Option {
	return func(c *Client) { c.manual = true }
}

// New creates a client talking to the host over conn.
func New(conn *transport.Conn, opts ...Option) *Client {
	c := &Client{
		conn:         conn,
		namespace:    wire.DefaultNamespace,
		timeout:      DefaultTimeout,
		pumpInterval: DefaultPumpInterval,
		modules:      make(map[string]*Module),
		classes:      make(map[classKey]*Class),
		enumTypes:    make(map[classKey]*EnumType),
		callbacks:    make(map[string]*Callback),
	}
	for _, opt := range opts {
		opt(c)
	}

	conn.Handle(c.namespace, c)
	conn.OnClose(c.cleanup)
	if c.manual {
		conn.Start()
	} else {
		go func() {
			if err := conn.Run(); err != nil && !errors.Is(err, transport.ErrNotConnected) {
				log.Info(c.logf("connection ended: %s", err))
			}
		}()
	}
	return c
}

// Dial connects to a host serving on the websocket url.
func Dial(ctx context.Context, url string, codec wire.Codec, opts ...Option) (*Client, error) {
	conn, err := transport.Dial(ctx, url, codec)
	if err != nil {
		return nil, err
	}
	return New(conn, opts...), nil
}

func (c *Client) logf(fmsg string, p ...interface{}) string {
	return fmt.Sprintf("Client [conn=%s, namespace=%s] ", c.conn.ID, c.namespace) + fmt.Sprintf(fmsg, p...)
}

func (c *Client) Conn() *transport.Conn {
	return c.conn
}

func (c *Client) Close() error {
	return c.conn.Close()
}

// OnClose registers fn to run once the connection is closed, after the
// client has dropped its callbacks.
func (c *Client) OnClose(fn func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onClose = append(c.onClose, fn)
}

// Process handles pending host events. It is only needed with
// WithManualProcessing.
func (c *Client) Process() error {
	return c.conn.Process()
}

// Module returns the module proxy for name, if it has been received.
func (c *Client) Module(name string) (*Module, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.modules[name]
	return m, ok
}

// moduleFor returns the module named name. The module being decoded, mod,
// is not yet registered.
func (c *Client) moduleFor(name string, mod *Module) *Module {
	if mod != nil && (name == "" || mod.Name == name) {
		return mod
	}
	m, _ := c.Module(name)
	return m
}

func (c *Client) class(mod *Module, name string) *Class {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := classKey{mod.Name, name}
	class, ok := c.classes[key]
	if !ok {
		class = &Class{Module: mod.Name, Name: name, module: mod}
		c.classes[key] = class
	}
	return class
}

func (c *Client) enumType(module, name string) *EnumType {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := classKey{module, name}
	t, ok := c.enumTypes[key]
	if !ok {
		t = &EnumType{Module: module, Name: name, values: make(map[int64]Enum)}
		c.enumTypes[key] = t
	}
	return t
}

func (c *Client) addCallback(cb *Callback) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callbacks[cb.ID] = cb
}

// funcCallback registers a plain func and returns its id. The same func
// always gets the same id.
func (c *Client) funcCallback(fn reflect.Value) string {
	id := funcCallbackID(fn)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callbacks[id] = &Callback{ID: id, fn: fn}
	return id
}

func (c *Client) callback(id string) (*Callback, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cb, ok := c.callbacks[id]
	return cb, ok
}

// NumCallbacks returns the number of registered callbacks.
func (c *Client) NumCallbacks() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.callbacks)
}

func (c *Client) cleanup(err error) {
	c.mu.Lock()
	c.callbacks = make(map[string]*Callback)
	onClose := c.onClose
	c.mu.Unlock()

	log.Info(c.logf("disconnected from server"))
	for _, fn := range onClose {
		fn(err)
	}
}

// HandleEvent handles events emitted by the host: shutdown requests and
// callback invocations.
func (c *Client) HandleEvent(_ *transport.Conn, event string, payload interface{}) (interface{}, error) {
	if event == wire.EventShutdown {
		log.Info(c.logf("shutdown requested by server"))
		c.conn.Close()
		return nil, nil
	}

	cb, ok := c.callback(event)
	if !ok {
		log.Warning(c.logf("unhandled event %s", event))
		return nil, nil
	}

	var args []interface{}
	var kwargs map[string]interface{}
	if data, ok := payload.(map[string]interface{}); ok {
		decoded, err := c.decode(c.defaultModule(), data["args"])
		if err != nil {
			return nil, err
		}
		args, _ = decoded.([]interface{})
		decoded, err = c.decode(c.defaultModule(), data["kwargs"])
		if err != nil {
			return nil, err
		}
		kwargs, _ = decoded.(map[string]interface{})
	}

	log.Debug(c.logf("executing callback %s", cb.ID))
	if _, err := cb.Invoke(args, kwargs); err != nil {
		log.Error(c.logf("callback %s failed: %s", cb.ID, err))
		return nil, err
	}
	return nil, nil
}

// defaultModule returns the module callbacks are decoded against when there
// is only one.
func (c *Client) defaultModule() *Module {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.modules) != 1 {
		return nil
	}
	for _, m := range c.modules {
		return m
	}
	return nil
}

// request sends a request event and decodes its reply against mod. An
// exception record in reply is returned as a *wire.RemoteError.
func (c *Client) request(ctx context.Context, mod *Module, event string, payload interface{}) (interface{}, error) {
	reply, err := c.call(ctx, event, payload)
	if err != nil {
		return nil, err
	}
	result, err := c.decode(mod, reply)
	if err != nil {
		return nil, err
	}
	if remote, ok := result.(*wire.RemoteError); ok {
		return nil, remote
	}
	return result, nil
}

// call sends an event and waits for its raw reply.
func (c *Client) call(ctx context.Context, event string, payload interface{}) (interface{}, error) {
	id, reply, err := c.conn.Send(c.namespace, event, payload)
	if err != nil {
		return nil, err
	}
	return c.wait(ctx, id, reply)
}

func (c *Client) emit(event string, payload interface{}) error {
	return c.conn.Emit(c.namespace, event, payload)
}

// wait blocks until the reply to call id arrives, pumping host events and
// the event pump meanwhile.
func (c *Client) wait(ctx context.Context, id uint64, reply <-chan transport.Reply) (interface{}, error) {
	var timeout <-chan time.Time
	if c.timeout > 0 {
		t := time.NewTimer(c.timeout)
		defer t.Stop()
		timeout = t.C
	}

	var ticker <-chan time.Time
	if c.manual || c.pump != nil {
		t := time.NewTicker(c.pumpInterval)
		defer t.Stop()
		ticker = t.C
	}

	var signal <-chan struct{}
	if c.manual {
		signal = c.conn.ProcessSignal()
	}

	for {
		select {
		case r := <-reply:
			return r.Payload, r.Err
		case _, open := <-signal:
			if !open {
				signal = nil
			}
			c.processEvents()
		case <-ticker:
			c.processEvents()
		case <-timeout:
			c.conn.Forget(id)
			return nil, c.conn.WaitError(context.DeadlineExceeded)
		case <-ctx.Done():
			c.conn.Forget(id)
			return nil, c.conn.WaitError(ctx.Err())
		}
	}
}

func (c *Client) processEvents() {
	if c.manual {
		if err := c.conn.Process(); err != nil && !errors.Is(err, transport.ErrNotConnected) {
			log.Debug(c.logf("processing events: %s", err))
		}
	}
	if c.pump != nil {
		c.pump()
	}
}

// APIInfo describes the API served by the host.
type APIInfo struct {
	Module          string
	Version         string
	HostVersion     string
	LanguageVersion string
	FilePath        string
}

func (c *Client) APIInfo(ctx context.Context) (*APIInfo, error) {
	reply, err := c.call(ctx, wire.EventGetAPIInfo, nil)
	if err != nil {
		return nil, err
	}
	m, ok := reply.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("client: API info is a %T", reply)
	}
	str := func(k string) string {
		s, _ := m[k].(string)
		return s
	}
	return &APIInfo{
		Module:          str("module"),
		Version:         str("version"),
		HostVersion:     str("host_version"),
		LanguageVersion: str("language_version"),
		FilePath:        str("file_path"),
	}, nil
}

// GetAPI returns the module served by the host. The API description is
// read from the cache when it is up to date, and fetched and cached
// otherwise.
func (c *Client) GetAPI(ctx context.Context) (*Module, error) {
	info, err := c.APIInfo(ctx)
	if err != nil {
		return nil, err
	}
	if m, ok := c.Module(info.Module); ok {
		return m, nil
	}

	key := apicache.Key{Module: info.Module, HostVersion: info.HostVersion, LanguageVersion: info.LanguageVersion}
	record := c.loadCached(key, info.FilePath)
	if record == nil {
		if record, err = c.call(ctx, wire.EventGetAPI, nil); err != nil {
			return nil, err
		}
		c.saveCached(key, info.FilePath, record)
	}

	decoded, err := c.decode(nil, record)
	if err != nil {
		return nil, err
	}
	switch m := decoded.(type) {
	case *Module:
		return m, nil
	case *wire.RemoteError:
		return nil, m
	}
	return nil, fmt.Errorf("client: API description is a %T: %w", decoded, ErrModuleNotFound)
}

func (c *Client) loadCached(key apicache.Key, artifact string) interface{} {
	if c.cache == nil {
		return nil
	}
	buf, err := c.cache.Load(key, artifact)
	if err != nil {
		if !errors.Is(err, apicache.ErrMiss) {
			log.Info(c.logf("API cache for %s not used: %s", key.Module, err))
		}
		return nil
	}
	var record interface{}
	if err := c.conn.Codec().Unmarshal(buf, &record); err != nil {
		log.Warning(c.logf("API cache for %s is unreadable: %s", key.Module, err))
		return nil
	}
	log.Debug(c.logf("API %s loaded from %s", key.Module, c.cache.Path(key)))
	return wire.Normalize(record)
}

func (c *Client) saveCached(key apicache.Key, artifact string, record interface{}) {
	if c.cache == nil {
		return
	}
	buf, err := c.conn.Codec().Marshal(record)
	if err == nil {
		_, err = c.cache.Save(key, artifact, buf)
	}
	if err != nil {
		log.Warning(c.logf("API cache for %s not written: %s", key.Module, err))
	}
}

// ServerInfo returns the host's description of the connection.
func (c *Client) ServerInfo(ctx context.Context) (map[string]interface{}, error) {
	reply, err := c.call(ctx, wire.EventServerInfo, nil)
	if err != nil {
		return nil, err
	}
	info, ok := reply.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("client: server info is a %T", reply)
	}
	return info, nil
}

// Restart asks the host to drop every object handed out to this client.
// The host then asks the client to disconnect.
func (c *Client) Restart(ctx context.Context) error {
	_, err := c.call(ctx, wire.EventRestart, nil)
	if errors.Is(err, ErrDisconnectedDuringCall) {
		// the shutdown request may arrive before the acknowledgement
		return nil
	}
	return err
}
