package server

import (
	"fmt"

	"github.com/CrimsonAS/aliasbridge/hostapi"
)

// PostProcessFunc updates server state after a function request named by
// its registration succeeded.
type PostProcessFunc func(model *DataModel, req *FunctionRequest, result interface{}) error

// Dispatcher decodes client requests, executes them on the host context and
// encodes their results.
type Dispatcher struct {
	api     *hostapi.Module
	model   *DataModel
	host    *HostContext
	encoder *Encoder
	decoder *Decoder
	hooks   map[string]PostProcessFunc
}

// NewDispatcher creates a dispatcher with the message handler hooks
// installed.
func NewDispatcher(api *hostapi.Module, model *DataModel, host *HostContext, emitter CallbackEmitter) *Dispatcher {
	d := &Dispatcher{
		api:     api,
		model:   model,
		host:    host,
		encoder: NewEncoder(api, model),
		decoder: NewDecoder(api, model, emitter),
		hooks:   make(map[string]PostProcessFunc),
	}
	for name, fn := range messageHandlerHooks {
		d.hooks[name] = fn
	}
	return d
}

// SetPostProcess sets the hook run after successful calls of the function
// name. A nil fn removes the hook.
func (d *Dispatcher) SetPostProcess(name string, fn PostProcessFunc) {
	if fn == nil {
		delete(d.hooks, name)
		return
	}
	d.hooks[name] = fn
}

func (d *Dispatcher) Encoder() *Encoder {
	return d.encoder
}

// Encode encodes v on the host context.
func (d *Dispatcher) Encode(v interface{}) interface{} {
	result, err := d.host.Do(func() (interface{}, error) {
		return d.encoder.Encode(v), nil
	})
	if err != nil {
		return d.encoder.Encode(err)
	}
	return result
}

// Dispatch handles the request event name and returns the encoded result.
// Failures are returned as exception records.
func (d *Dispatcher) Dispatch(name string, payload interface{}) interface{} {
	result, err := d.host.Do(func() (interface{}, error) {
		return d.dispatch(name, payload), nil
	})
	if err != nil {
		log.Errorf("request %s: %s", name, err)
		return d.encoder.Encode(err)
	}
	return result
}

func (d *Dispatcher) dispatch(name string, payload interface{}) interface{} {
	decoded, err := d.decoder.Decode(payload)
	if err != nil {
		log.Errorf("request %s: decode failed: %s", name, err)
		return d.encoder.Encode(err)
	}

	req, ok := decoded.(Request)
	if !ok {
		err := fmt.Errorf("%w: %s payload is a %T", ErrRequestNotSupported, name, decoded)
		log.Errorf("request %s: %s", name, err)
		return d.encoder.Encode(err)
	}

	log.Debugf("request %s: %s", name, req)
	result, err := req.Execute(name)
	if err != nil {
		log.Errorf("request %s failed: %s", req, err)
		return d.encoder.Encode(err)
	}

	d.postProcess(name, req, result)
	return d.encoder.Encode(result)
}

func (d *Dispatcher) postProcess(name string, req Request, result interface{}) {
	switch r := req.(type) {
	case *FunctionRequest:
		hook, ok := d.hooks[name]
		if !ok {
			return
		}
		if err := hook(d.model, r, result); err != nil {
			log.Errorf("%s", &PostProcessError{Request: r.String(), Err: err})
		}

	case *BatchRequest:
		results, _ := result.([]interface{})
		for i, e := range r.Entries {
			if e.Request == nil || i >= len(results) {
				continue
			}
			if _, failed := results[i].(error); failed {
				continue
			}
			d.postProcess(e.Name, e.Request, results[i])
		}
	}
}
