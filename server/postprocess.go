package server

import (
	"errors"

	"github.com/CrimsonAS/aliasbridge/hostapi"
)

// Host functions whose calls change the event registry.
const (
	AddMessageHandler     = "add_message_handler"
	RemoveMessageHandler  = "remove_message_handler"
	RemoveMessageHandlers = "remove_message_handlers"
)

var messageHandlerHooks = map[string]PostProcessFunc{
	AddMessageHandler:     addMessageHandler,
	RemoveMessageHandler:  removeMessageHandler,
	RemoveMessageHandlers: removeMessageHandlers,
}

var (
	errNoEvent    = errors.New("no event argument")
	errNoCallback = errors.New("no callback argument")
)

// addMessageHandler registers the callback passed to a successful
// add_message_handler(event, callback) call. Handlers report failure by
// returning false, alone or first in their results.
func addMessageHandler(model *DataModel, req *FunctionRequest, result interface{}) error {
	if failed(result) {
		return nil
	}
	if len(req.Args) < 1 {
		return errNoEvent
	}
	id, ok := callbackID(req.Args[1:], result)
	if !ok {
		return errNoCallback
	}
	return model.RegisterEvent(req.Args[0], id)
}

func removeMessageHandler(model *DataModel, req *FunctionRequest, result interface{}) error {
	if len(req.Args) < 1 {
		return errNoEvent
	}
	id, ok := callbackID(req.Args[1:], nil)
	if !ok {
		return errNoCallback
	}
	model.UnregisterEvent(req.Args[0], id)
	return nil
}

func removeMessageHandlers(model *DataModel, req *FunctionRequest, result interface{}) error {
	if len(req.Args) < 1 {
		return errNoEvent
	}
	model.UnregisterEvent(req.Args[0], "")
	return nil
}

func failed(result interface{}) bool {
	switch r := result.(type) {
	case bool:
		return !r
	case []interface{}:
		if len(r) > 0 {
			if ok, isBool := r[0].(bool); isBool {
				return !ok
			}
		}
	}
	return false
}

// callbackID finds the callback among args. A string argument is only
// taken as the id when no callback was passed, and the id returned as the
// second result comes last.
func callbackID(args []interface{}, result interface{}) (string, bool) {
	for _, a := range args {
		if cb, ok := a.(*hostapi.Callback); ok {
			return cb.ID, true
		}
	}
	for _, a := range args {
		if id, ok := a.(string); ok {
			return id, true
		}
	}
	if r, ok := result.([]interface{}); ok && len(r) > 1 {
		if id, ok := r[1].(string); ok {
			return id, true
		}
	}
	return "", false
}
