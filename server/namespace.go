package server

import (
	"fmt"
	"os"
	"runtime"
	"sync"

	"github.com/CrimsonAS/aliasbridge/apicache"
	"github.com/CrimsonAS/aliasbridge/hostapi"
	"github.com/CrimsonAS/aliasbridge/transport"
	"github.com/CrimsonAS/aliasbridge/wire"
)

// Events handled by the namespace itself. Every other event is a request.
const (
	EventGetAPI     = wire.EventGetAPI
	EventGetAPIInfo = wire.EventGetAPIInfo
	EventLoadAPI    = wire.EventLoadAPI
	EventServerInfo = wire.EventServerInfo
	EventRestart    = wire.EventRestart
	EventShutdown   = wire.EventShutdown
)

// Namespace serves the host API to a single client connection.
type Namespace struct {
	name       string
	api        *hostapi.Module
	model      *DataModel
	cache      *apicache.Store
	dispatcher *Dispatcher

	mu     sync.Mutex
	client *transport.Conn
}

func NewNamespace(name string, api *hostapi.Module, model *DataModel, host *HostContext, cache *apicache.Store) *Namespace {
	n := &Namespace{
		name:  name,
		api:   api,
		model: model,
		cache: cache,
	}
	n.dispatcher = NewDispatcher(api, model, host, n)
	return n
}

func (n *Namespace) Name() string {
	return n.name
}

func (n *Namespace) Dispatcher() *Dispatcher {
	return n.dispatcher
}

func (n *Namespace) logf(c *transport.Conn, fmsg string, p ...interface{}) string {
	id := "-"
	if c != nil {
		id = c.ID
	}
	return fmt.Sprintf("Server [client=%s, namespace=%s] ", id, n.name) + fmt.Sprintf(fmsg, p...)
}

// Attach makes c the client of the namespace. Only one client may be
// attached at a time; it is detached when its connection closes.
func (n *Namespace) Attach(c *transport.Conn) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.client != nil && n.client.Connected() {
		return ErrClientConnected
	}
	n.client = c
	c.Handle(n.name, n)
	c.OnClose(func(err error) {
		n.mu.Lock()
		if n.client == c {
			n.client = nil
		}
		n.mu.Unlock()
		log.Info(n.logf(c, "client disconnected: %v", err))
	})
	log.Info(n.logf(c, "client connected"))
	return nil
}

// Client returns the attached connection, if any.
func (n *Namespace) Client() *transport.Conn {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.client
}

func (n *Namespace) HandleEvent(c *transport.Conn, event string, payload interface{}) (interface{}, error) {
	if n.Client() != c {
		return nil, ErrClientConnected
	}
	log.Debug(n.logf(c, "event %s", event))

	switch event {
	case EventGetAPI:
		return n.dispatcher.Encode(n.api), nil

	case EventGetAPIInfo:
		return n.apiInfo(), nil

	case EventLoadAPI:
		return n.loadAPI(c)

	case EventServerInfo:
		return map[string]interface{}{
			"namespace": n.name,
			"client":    c.ID,
			"module":    n.api.Name,
			"codec":     c.Codec().Name(),
			"instances": int64(n.model.NumInstances()),
		}, nil

	case EventRestart:
		log.Info(n.logf(c, "restarting"))
		n.model.Destroy()
		if err := c.Emit(n.name, EventShutdown, nil); err != nil {
			return nil, err
		}
		return true, nil
	}

	return n.dispatcher.Dispatch(event, payload), nil
}

func (n *Namespace) apiInfo() map[string]interface{} {
	info := map[string]interface{}{
		"module":           n.api.Name,
		"version":          n.api.Info.Version,
		"host_version":     n.api.Info.HostVersion,
		"language_version": n.api.Info.LanguageVersion,
		"file_path":        n.api.Info.ArtifactPath,
		"last_modified":    nil,
	}
	if info["language_version"] == "" {
		info["language_version"] = runtime.Version()
	}
	if n.api.Info.ArtifactPath != "" {
		if st, err := os.Stat(n.api.Info.ArtifactPath); err == nil {
			info["last_modified"] = st.ModTime().Unix()
		}
	}
	return info
}

// APIKey returns the cache key of the served module.
func (n *Namespace) APIKey() apicache.Key {
	info := n.apiInfo()
	return apicache.Key{
		Module:          n.api.Name,
		HostVersion:     info["host_version"].(string),
		LanguageVersion: info["language_version"].(string),
	}
}

// loadAPI writes the encoded module to the cache and returns the entry path.
func (n *Namespace) loadAPI(c *transport.Conn) (interface{}, error) {
	if n.cache == nil {
		return nil, fmt.Errorf("namespace %s has no API cache", n.name)
	}
	buf, err := c.Codec().Marshal(n.dispatcher.Encode(n.api))
	if err != nil {
		return nil, err
	}
	path, err := n.cache.Save(n.APIKey(), n.api.Info.ArtifactPath, buf)
	if err != nil {
		log.Error(n.logf(c, "%s", err))
		return nil, err
	}
	return path, nil
}

// EmitCallback sends a callback invocation to the attached client.
func (n *Namespace) EmitCallback(id string, args []interface{}, kwargs map[string]interface{}) {
	c := n.Client()
	if c == nil {
		log.Warning(n.logf(nil, "callback %s dropped: no client", id))
		return
	}

	enc := n.dispatcher.Encoder()
	if args == nil {
		args = []interface{}{}
	}
	if kwargs == nil {
		kwargs = map[string]interface{}{}
	}
	payload := map[string]interface{}{
		"args":   enc.Encode(args),
		"kwargs": enc.Encode(kwargs),
	}
	if err := c.Emit(n.name, id, payload); err != nil {
		log.Warning(n.logf(c, "callback %s failed: %s", id, err))
	}
}

