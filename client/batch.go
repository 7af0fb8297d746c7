package client

import (
	"context"
	"fmt"
	"sync"

	"github.com/CrimsonAS/aliasbridge/wire"
)

// Pending is the result of a request made inside a batch. It is resolved
// when the batch is executed.
type Pending struct {
	Name string

	mu       sync.Mutex
	resolved bool
	value    interface{}
	err      error
}

// Result returns the value of the request, or its error. It fails with
// ErrNotResolved until the batch has been executed.
func (p *Pending) Result() (interface{}, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.resolved {
		return nil, fmt.Errorf("%s: %w", p.Name, ErrNotResolved)
	}
	return p.value, p.err
}

func (p *Pending) resolve(value interface{}, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resolved = true
	p.value = value
	p.err = err
}

type queuedRequest struct {
	pending *Pending
	payload map[string]interface{}
}

// function sends a function request. inst is nil for module functions.
func (m *Module) function(ctx context.Context, name string, inst *Instance, args []interface{}, kwargs map[string]interface{}) (interface{}, error) {
	encArgs, err := m.client.encodeList(args)
	if err != nil {
		return nil, err
	}
	encKwargs := make(map[string]interface{}, len(kwargs))
	for k, v := range kwargs {
		if encKwargs[k], err = m.client.encode(v); err != nil {
			return nil, err
		}
	}

	var id *int64
	if inst != nil {
		id = &inst.ID
	}
	return m.request(ctx, name, wire.NewFunctionRequest(name, encArgs, encKwargs, id))
}

// request sends payload as the request name, or queues it while a batch is
// being built. Queued requests return a *Pending.
func (m *Module) request(ctx context.Context, name string, payload map[string]interface{}) (interface{}, error) {
	m.batchMu.Lock()
	if m.batching {
		p := &Pending{Name: name}
		m.queue = append(m.queue, queuedRequest{pending: p, payload: payload})
		m.batchMu.Unlock()
		return p, nil
	}
	m.batchMu.Unlock()

	return m.client.request(ctx, m, name, payload)
}

// Batch runs fn with requests to the module deferred, then sends them to
// the host in a single round trip. Every request made by fn returns a
// *Pending, resolved when Batch returns.
//
// Batch returns one result per request, in order. A request that failed on
// the host has a *wire.RemoteError in its place; it does not stop the
// requests after it. If fn fails, the queued requests are discarded.
//
// In async mode the batch is sent without waiting for its results, and the
// pending requests are never resolved.
//
// Requests from every goroutine using the module are deferred while fn
// runs.
func (m *Module) Batch(ctx context.Context, async bool, fn func() error) ([]interface{}, error) {
	m.batchMu.Lock()
	if m.batching {
		m.batchMu.Unlock()
		return nil, fmt.Errorf("%w: batches cannot be nested", ErrBatchIntegrity)
	}
	m.batching = true
	m.queue = nil
	m.batchMu.Unlock()

	var queue []queuedRequest
	err := func() error {
		defer func() {
			m.batchMu.Lock()
			queue = m.queue
			m.queue = nil
			m.batching = false
			m.batchMu.Unlock()
		}()
		return fn()
	}()
	if err != nil {
		return nil, err
	}
	if len(queue) == 0 {
		return []interface{}{}, nil
	}

	entries := make([]wire.BatchEntry, len(queue))
	for i, q := range queue {
		entries[i] = wire.BatchEntry{Name: q.pending.Name, Request: q.payload}
	}
	payload := wire.NewBatchRequest(entries)

	if async {
		return nil, m.client.emit(wire.BatchEvent, payload)
	}

	result, err := m.client.request(ctx, m, wire.BatchEvent, payload)
	if err != nil {
		for _, q := range queue {
			q.pending.resolve(nil, err)
		}
		return nil, err
	}

	results, ok := result.([]interface{})
	if !ok || len(results) != len(queue) {
		err := fmt.Errorf("%w: expected %d results, got %s", ErrBatchIntegrity, len(queue), describeCount(result))
		for _, q := range queue {
			q.pending.resolve(nil, err)
		}
		return results, err
	}

	for i, q := range queue {
		if remote, ok := results[i].(*wire.RemoteError); ok {
			q.pending.resolve(nil, remote)
		} else {
			q.pending.resolve(results[i], nil)
		}
	}
	return results, nil
}

func describeCount(v interface{}) string {
	if list, ok := v.([]interface{}); ok {
		return fmt.Sprint(len(list))
	} else if v == nil {
		return "none"
	}
	return fmt.Sprintf("a %T", v)
}
