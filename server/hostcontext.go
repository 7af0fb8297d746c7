package server

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/CrimsonAS/aliasbridge/hostapi"
)

// TaskSubmitter runs tasks on the host application's own execution context,
// typically its main thread event loop.
type TaskSubmitter interface {
	Submit(task func()) error
}

type hostTask struct {
	fn   func() (interface{}, error)
	done chan hostResult
}

type hostResult struct {
	value interface{}
	err   error
}

// HostContext serializes every access to host API values. Work goes to the
// host's TaskSubmitter when there is one; otherwise it runs on a dedicated
// goroutine locked to its OS thread.
type HostContext struct {
	submitter TaskSubmitter
	requests  chan hostTask
	quit      chan struct{}
	stopOnce  sync.Once
}

func NewHostContext(submitter TaskSubmitter) *HostContext {
	h := &HostContext{
		submitter: submitter,
		quit:      make(chan struct{}),
	}
	if submitter == nil {
		h.requests = make(chan hostTask, 64)
		go h.loop()
	}
	return h
}

func (h *HostContext) loop() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	for {
		select {
		case req := <-h.requests:
			req.done <- execute(req.fn)
		case <-h.quit:
			return
		}
	}
}

// execute runs fn, recovering from panics.
func execute(fn func() (interface{}, error)) (result hostResult) {
	defer func() {
		if r := recover(); r != nil {
			result.err = hostapi.Recovered(r)
		}
	}()
	result.value, result.err = fn()
	return result
}

// Do runs fn on the host context and blocks until it completes.
func (h *HostContext) Do(fn func() (interface{}, error)) (interface{}, error) {
	select {
	case <-h.quit:
		return nil, ErrHostStopped
	default:
	}
	task := hostTask{fn: fn, done: make(chan hostResult, 1)}

	if h.submitter != nil {
		err := h.submitter.Submit(func() {
			task.done <- execute(task.fn)
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrHostStopped, err)
		}
	} else {
		select {
		case h.requests <- task:
		case <-h.quit:
			return nil, ErrHostStopped
		}
	}

	select {
	case r := <-task.done:
		return r.value, r.err
	case <-h.quit:
		select {
		case r := <-task.done:
			return r.value, r.err
		default:
			return nil, ErrHostStopped
		}
	}
}

// Stop shuts down the worker goroutine. Calls waiting in Do return
// ErrHostStopped.
func (h *HostContext) Stop() {
	h.stopOnce.Do(func() {
		close(h.quit)
	})
}

// TaskQueue is a TaskSubmitter for hosts that run their own loop: tasks are
// queued and run when the host calls RunPending.
type TaskQueue struct {
	tasks  chan func()
	signal chan struct{}
	closed chan struct{}
	once   sync.Once
}

func NewTaskQueue() *TaskQueue {
	return &TaskQueue{
		tasks:  make(chan func(), 128),
		signal: make(chan struct{}, 1),
		closed: make(chan struct{}),
	}
}

func (q *TaskQueue) Submit(task func()) error {
	select {
	case <-q.closed:
		return ErrHostStopped
	default:
	}

	select {
	case q.tasks <- task:
	case <-q.closed:
		return ErrHostStopped
	}
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return nil
}

// Signal receives a value when tasks are queued.
func (q *TaskQueue) Signal() <-chan struct{} {
	return q.signal
}

// RunPending runs queued tasks without blocking and returns how many ran.
func (q *TaskQueue) RunPending() int {
	n := 0
	for {
		select {
		case task := <-q.tasks:
			task()
			n++
		default:
			return n
		}
	}
}

// Close stops accepting tasks.
func (q *TaskQueue) Close() {
	q.once.Do(func() {
		close(q.closed)
	})
}
