// Package server exposes a host API module to remote clients.
//
// Client requests are decoded into request wrappers, executed on a single
// host context and their results encoded back. Instances handed out to
// clients are kept in a DataModel until they are unregistered or the model
// is destroyed.
package server

import (
	"context"

	"github.com/tliron/commonlog"

	"github.com/CrimsonAS/aliasbridge/apicache"
	"github.com/CrimsonAS/aliasbridge/hostapi"
	"github.com/CrimsonAS/aliasbridge/transport"
	"github.com/CrimsonAS/aliasbridge/wire"
)

var log = commonlog.GetLogger("aliasbridge.server")

// DefaultNamespace is the namespace the API is served on.
const DefaultNamespace = wire.DefaultNamespace

type Server struct {
	api       *hostapi.Module
	model     *DataModel
	host      *HostContext
	submitter TaskSubmitter
	cache     *apicache.Store
	namespace string
	codec     wire.Codec

	ns *Namespace
}

type Option func(*Server)

// WithTaskSubmitter runs requests through the host's own execution context.
func WithTaskSubmitter(s TaskSubmitter) Option {
	return func(srv *Server) { srv.submitter = s }
}

func WithNamespace(name string) Option {
	return func(srv *Server) { srv.namespace = name }
}

func WithCache(store *apicache.Store) Option {
	return func(srv *Server) { srv.cache = store }
}

func WithCodec(codec wire.Codec) Option {
	return func(srv *Server) { srv.codec = codec }
}

func New(api *hostapi.Module, opts ...Option) *Server {
	s := &Server{
		api:       api,
		model:     NewDataModel(),
		namespace: DefaultNamespace,
		codec:     wire.JSON,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.host = NewHostContext(s.submitter)
	s.ns = NewNamespace(s.namespace, api, s.model, s.host, s.cache)
	s.model.SetDestroyHook(s.removeHostHandlers)
	return s
}

func (s *Server) Model() *DataModel {
	return s.model
}

func (s *Server) Namespace() *Namespace {
	return s.ns
}

func (s *Server) Host() *HostContext {
	return s.host
}

// removeHostHandlers asks the host to drop its handlers for event when the
// data model is destroyed.
func (s *Server) removeHostHandlers(event interface{}) {
	fn, ok := s.api.Attr(RemoveMessageHandlers)
	if !ok {
		return
	}
	_, err := s.host.Do(func() (interface{}, error) {
		return s.api.Call(fn, []interface{}{event}, nil)
	})
	if err != nil {
		log.Warningf("removing handlers of %v: %s", event, err)
	}
}

// Accept serves the namespace on c. The connection is rejected if another
// client is attached.
func (s *Server) Accept(c *transport.Conn) {
	if err := s.ns.Attach(c); err != nil {
		log.Warningf("Server [client=%s, namespace=%s] rejected: %s", c.ID, s.namespace, err)
		c.Close()
		return
	}
	go func() {
		if err := c.Run(); err != nil {
			log.Debugf("Server [client=%s, namespace=%s] connection ended: %s", c.ID, s.namespace, err)
		}
	}()
}

// ListenAndServe accepts websocket clients on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	return transport.ListenAndServe(ctx, addr, s.codec, s.Accept)
}

// Close destroys the data model and stops the host context.
func (s *Server) Close() {
	s.model.Destroy()
	s.host.Stop()
}
