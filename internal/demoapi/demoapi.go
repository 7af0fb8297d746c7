// Package demoapi is a small host API with layers and message handlers. It
// backs the CLI's serve command and the package tests.
package demoapi

import (
	"sort"

	"github.com/CrimsonAS/aliasbridge/hostapi"
	"github.com/CrimsonAS/aliasbridge/wire"
)

const (
	ModuleName = "alias_api"
	Version    = "1.0.0"
)

type MessageType int

const (
	LayerAdded MessageType = iota + 1
	LayerDeleted
	DagNameModified
	StageActive
)

var messageTypes = map[string]interface{}{
	"LayerAdded":      LayerAdded,
	"LayerDeleted":    LayerDeleted,
	"DagNameModified": DagNameModified,
	"StageActive":     StageActive,
}

type Layer struct {
	Name      string
	Visible   bool
	Symmetric bool

	folder   bool
	children []*Layer
	api      *API
}

func (l *Layer) IsFolder() bool {
	return l.folder
}

func (l *Layer) Children() []*Layer {
	return l.children
}

// Rename renames the layer and notifies DagNameModified handlers.
func (l *Layer) Rename(name string) error {
	if name == "" {
		return hostapi.Errorf("AlException", "layer name cannot be empty")
	}
	old := l.Name
	l.Name = name
	l.api.Trigger(DagNameModified, l, old)
	return nil
}

func (l *Layer) AddChild(child *Layer) error {
	if !l.folder {
		return hostapi.Errorf("AlException", "layer %q is not a folder", l.Name)
	}
	l.children = append(l.children, child)
	return nil
}

// API holds the demo host state. It must only be used from the host
// context.
type API struct {
	layers   []*Layer
	handlers map[MessageType][]*hostapi.Callback
}

// New builds the module and the state behind it.
func New(info hostapi.Info) (*hostapi.Module, *API) {
	a := &API{handlers: make(map[MessageType][]*hostapi.Callback)}
	if info.Version == "" {
		info.Version = Version
	}
	m := hostapi.NewModule(ModuleName, info)

	msgClass, err := m.AddEnum("AlMessageType", messageTypes)
	if err != nil {
		panic(err)
	}
	layer, err := m.AddClass("Layer", &Layer{})
	if err != nil {
		panic(err)
	}
	layer.AddClass("MessageType", msgClass)
	layer.AddClass("Layer", layer)
	layer.NameParams("rename", "name")
	if _, err := layer.AddProperty("display_name",
		func(l *Layer) string {
			if l.folder {
				return l.Name + "/"
			}
			return l.Name
		},
		nil); err != nil {
		panic(err)
	}
	layer.SetConstructor(a.CreateLayer, "name")

	m.AddConstant("VERSION", Version)
	m.AddFunction("create_layer", a.CreateLayer, "name")
	m.AddFunction("create_layer_folder", a.CreateLayerFolder, "name")
	m.AddFunction("get_layers", a.Layers)
	m.AddFunction("get_layer_by_name", a.LayerByName, "name")
	m.AddFunction("delete_layer", a.DeleteLayer, "layer")
	m.AddFunction("get_layer_names", a.LayerNames)
	m.AddFunction("get_layer_visibility", a.LayerVisibility)
	m.AddFunction("add_message_handler", a.AddMessageHandler, "msg_type", "callback")
	m.AddFunction("remove_message_handler", a.RemoveMessageHandler, "msg_type", "callback")
	m.AddFunction("remove_message_handlers", a.RemoveMessageHandlers, "msg_type")
	m.AddFunction("get_message_handler_count", a.MessageHandlerCount, "msg_type")
	m.AddFunction("trigger_message", a.Trigger, "msg_type")
	m.AddFunction("raise_error", raiseError, "message")
	return m, a
}

func (a *API) CreateLayer(name string) *Layer {
	l := &Layer{Name: name, Visible: true, api: a}
	a.layers = append(a.layers, l)
	a.Trigger(LayerAdded, l)
	return l
}

func (a *API) CreateLayerFolder(name string) *Layer {
	l := a.CreateLayer(name)
	l.folder = true
	return l
}

func (a *API) Layers() []*Layer {
	return append([]*Layer{}, a.layers...)
}

func (a *API) LayerByName(name string) (*Layer, error) {
	for _, l := range a.layers {
		if l.Name == name {
			return l, nil
		}
	}
	return nil, hostapi.Errorf("AlException", "no layer named %q", name)
}

func (a *API) DeleteLayer(layer *Layer) error {
	for i, l := range a.layers {
		if l == layer {
			a.layers = append(a.layers[:i], a.layers[i+1:]...)
			a.Trigger(LayerDeleted, layer.Name)
			return nil
		}
	}
	return hostapi.Errorf("AlException", "layer %q does not exist", layer.Name)
}

func (a *API) LayerNames() wire.Set {
	s := wire.NewSet()
	for _, l := range a.layers {
		s.Add(l.Name)
	}
	return s
}

func (a *API) LayerVisibility() hostapi.Mapping {
	m := hostapi.Mapping{}
	for _, l := range a.layers {
		m[l.Name] = l.Visible
	}
	return m
}

// AddMessageHandler registers cb for msg. It returns the registration
// status and the callback id.
func (a *API) AddMessageHandler(msg MessageType, cb *hostapi.Callback) (bool, string) {
	if cb == nil {
		return false, ""
	}
	for _, h := range a.handlers[msg] {
		if h.ID == cb.ID {
			return true, cb.ID
		}
	}
	a.handlers[msg] = append(a.handlers[msg], cb)
	return true, cb.ID
}

func (a *API) RemoveMessageHandler(msg MessageType, cb *hostapi.Callback) bool {
	handlers := a.handlers[msg]
	for i, h := range handlers {
		if cb != nil && h.ID == cb.ID {
			a.handlers[msg] = append(handlers[:i:i], handlers[i+1:]...)
			return true
		}
	}
	return false
}

func (a *API) RemoveMessageHandlers(msg MessageType) bool {
	_, ok := a.handlers[msg]
	delete(a.handlers, msg)
	return ok
}

func (a *API) MessageHandlerCount(msg MessageType) int {
	return len(a.handlers[msg])
}

// Trigger calls every handler of msg with args and returns how many were
// called.
func (a *API) Trigger(msg MessageType, args ...interface{}) int {
	handlers := append([]*hostapi.Callback{}, a.handlers[msg]...)
	for _, h := range handlers {
		h.Invoke(append([]interface{}{msg}, args...)...)
	}
	return len(handlers)
}

// HandledMessages returns the message types with handlers, sorted.
func (a *API) HandledMessages() []MessageType {
	var types []MessageType
	for t, h := range a.handlers {
		if len(h) > 0 {
			types = append(types, t)
		}
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

func raiseError(message string) error {
	return hostapi.Errorf("AlException", "%s", message)
}
