package server

import (
	"fmt"
	"reflect"
	"sync"
)

// DataModel holds the instances handed out to clients and the client
// callbacks registered for host events.
//
// Instances are keyed by identity and stay registered, and therefore alive,
// until unregistered or until the model is destroyed. Ids are never reused,
// so a stale handle cannot resolve to a newer object.
type DataModel struct {
	mu        sync.RWMutex
	instances map[int64]interface{}
	ids       map[interface{}]int64
	lastID    int64
	events    map[interface{}][]string

	destroyHook func(event interface{})
}

func NewDataModel() *DataModel {
	return &DataModel{
		instances: make(map[int64]interface{}),
		ids:       make(map[interface{}]int64),
		events:    make(map[interface{}][]string),
	}
}

// SetDestroyHook sets fn to be called by Destroy for every event that still
// has callbacks, so the host can remove its own handlers.
func (d *DataModel) SetDestroyHook(fn func(event interface{})) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroyHook = fn
}

// RegisterInstance records obj and returns its id. Registering the same
// object again returns the same id. obj is compared by type and value, so
// it must be comparable; a pointer and a pointer to its first field are
// different objects.
func (d *DataModel) RegisterInstance(obj interface{}) int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if id, ok := d.ids[obj]; ok {
		return id
	}
	d.lastID++
	d.instances[d.lastID] = obj
	d.ids[obj] = d.lastID
	return d.lastID
}

// Instance returns the object registered under id.
func (d *DataModel) Instance(id int64) (interface{}, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	obj, ok := d.instances[id]
	return obj, ok
}

// UnregisterInstance removes id, reporting whether it was registered.
func (d *DataModel) UnregisterInstance(id int64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	obj, ok := d.instances[id]
	if ok {
		delete(d.instances, id)
		delete(d.ids, obj)
	}
	return ok
}

func (d *DataModel) NumInstances() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.instances)
}

// EventCallbacks returns a copy of the callback ids registered for event.
func (d *DataModel) EventCallbacks(event interface{}) []string {
	if !hashable(event) {
		return nil
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]string(nil), d.events[event]...)
}

// Events returns every event with registered callbacks.
func (d *DataModel) Events() []interface{} {
	d.mu.RLock()
	defer d.mu.RUnlock()
	events := make([]interface{}, 0, len(d.events))
	for e := range d.events {
		events = append(events, e)
	}
	return events
}

// RegisterEvent records callbackID as a handler of event.
func (d *DataModel) RegisterEvent(event interface{}, callbackID string) error {
	if !hashable(event) {
		return fmt.Errorf("event %v of type %T cannot be used as a key", event, event)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, id := range d.events[event] {
		if id == callbackID {
			return nil
		}
	}
	d.events[event] = append(d.events[event], callbackID)
	return nil
}

// UnregisterEvent removes callbackID from event. An empty callbackID removes
// every callback of the event. Unknown events and callbacks are ignored.
func (d *DataModel) UnregisterEvent(event interface{}, callbackID string) {
	if !hashable(event) {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if callbackID == "" {
		delete(d.events, event)
		return
	}

	ids := d.events[event]
	for i, id := range ids {
		if id == callbackID {
			ids = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
	if len(ids) == 0 {
		delete(d.events, event)
	} else {
		d.events[event] = ids
	}
}

// Destroy clears both registries. The destroy hook is called for each event
// that had callbacks, outside the lock.
func (d *DataModel) Destroy() {
	d.mu.Lock()
	events := make([]interface{}, 0, len(d.events))
	for e := range d.events {
		events = append(events, e)
	}
	hook := d.destroyHook
	d.instances = make(map[int64]interface{})
	d.ids = make(map[interface{}]int64)
	d.events = make(map[interface{}][]string)
	d.mu.Unlock()

	if hook != nil {
		for _, e := range events {
			hook(e)
		}
	}
}

func hashable(v interface{}) bool {
	t := reflect.TypeOf(v)
	return t == nil || t.Comparable()
}
