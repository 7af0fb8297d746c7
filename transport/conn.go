// Package transport carries named events between a host and its clients.
//
// A Conn exchanges messages over a Framer. Events are delivered to the
// Handler registered for their namespace; events sent with Call are
// acknowledged with the handler's result. Like an event loop, a Conn never
// runs handlers on its own: inbound events are queued until Process is
// called, either directly or through Run.
package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	uuid "github.com/satori/go.uuid"
	"github.com/tliron/commonlog"

	"github.com/CrimsonAS/aliasbridge/wire"
)

var log = commonlog.GetLogger("aliasbridge.transport")

var (
	ErrNotConnected           = errors.New("not connected")
	ErrDisconnectedDuringCall = errors.New("disconnected before a reply was received; the request may still be executing on the host")
	ErrTimeout                = errors.New("timed out waiting for a reply")
)

const (
	msgEvent = "event"
	msgAck   = "ack"
)

// Message is the envelope of every frame.
type Message struct {
	Type      string      `json:"type"`
	Namespace string      `json:"namespace,omitempty"`
	Event     string      `json:"event,omitempty"`
	ID        uint64      `json:"id,omitempty"`
	Payload   interface{} `json:"payload"`
	Error     string      `json:"error,omitempty"`
}

// Framer reads and writes whole frames.
type Framer interface {
	ReadFrame() ([]byte, error)
	WriteFrame(data []byte) error
	Close() error
}

// Handler handles the events of one namespace. The returned value is sent
// back when the sender asked for an acknowledgement.
type Handler interface {
	HandleEvent(c *Conn, event string, payload interface{}) (interface{}, error)
}

type HandlerFunc func(c *Conn, event string, payload interface{}) (interface{}, error)

func (f HandlerFunc) HandleEvent(c *Conn, event string, payload interface{}) (interface{}, error) {
	return f(c, event, payload)
}

// Reply is the acknowledgement of a call.
type Reply struct {
	Payload interface{}
	Err     error
}

type Conn struct {
	// ID identifies the connection in logs and to handlers.
	ID string

	framer Framer
	codec  wire.Codec

	writeMu  sync.Mutex
	mu       sync.Mutex
	handlers map[string]Handler
	pending  map[uint64]chan Reply
	onClose  []func(error)
	err      error
	nextID   uint64

	startOnce     sync.Once
	closeOnce     sync.Once
	done          chan struct{}
	processSignal chan struct{}
	queue         chan *Message
}

// NewConn creates a connection over f. Handlers should be registered before
// the connection is started by Start, Process or Run.
func NewConn(f Framer, codec wire.Codec) *Conn {
	u, _ := uuid.NewV4()
	return &Conn{
		ID:            u.String(),
		framer:        f,
		codec:         codec,
		handlers:      make(map[string]Handler),
		pending:       make(map[uint64]chan Reply),
		done:          make(chan struct{}),
		processSignal: make(chan struct{}, 1),
		queue:         make(chan *Message, 128),
	}
}

// Codec returns the codec frames are encoded with.
func (c *Conn) Codec() wire.Codec {
	return c.codec
}

// Handle registers h for events in namespace.
func (c *Conn) Handle(namespace string, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[namespace] = h
}

// OnClose registers fn to be called with the connection error once the
// connection is closed.
func (c *Conn) OnClose(fn func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onClose = append(c.onClose, fn)
}

func (c *Conn) fatal(fmsg string, p ...interface{}) {
	err := fmt.Errorf(fmsg, p...)
	log.Errorf("FATAL [conn=%s]: %s", c.ID, err)
	c.shutdown(err)
}

func (c *Conn) warn(fmsg string, p ...interface{}) {
	log.Warningf("[conn=%s] "+fmsg, append([]interface{}{c.ID}, p...)...)
}

// shutdown records err, closes the framer and fails every pending call.
func (c *Conn) shutdown(err error) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.err = err
		pending := c.pending
		c.pending = make(map[uint64]chan Reply)
		onClose := c.onClose
		c.mu.Unlock()

		c.framer.Close()
		close(c.done)
		for _, ch := range pending {
			ch <- Reply{Err: ErrDisconnectedDuringCall}
		}
		for _, fn := range onClose {
			fn(err)
		}
	})
}

// Close closes the connection.
func (c *Conn) Close() error {
	c.shutdown(ErrNotConnected)
	return nil
}

// Done is closed when the connection closes.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Connected reports whether the connection is still open.
func (c *Conn) Connected() bool {
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}

// Err returns the error that closed the connection, if any.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Conn) sendMessage(msg *Message) error {
	if !c.Connected() {
		return ErrNotConnected
	}
	buf, err := c.codec.Marshal(msg)
	if err != nil {
		return fmt.Errorf("transport: message encoding failed: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.framer.WriteFrame(buf); err != nil {
		c.fatal("write error: %s", err)
		return ErrNotConnected
	}
	return nil
}

// handle runs in an internal goroutine to read frames. Acknowledgements are
// delivered immediately; events are posted to the queue and processSignal
// is triggered.
func (c *Conn) handle() {
	defer close(c.processSignal)
	defer close(c.queue)

	for c.Connected() {
		blob, err := c.framer.ReadFrame()
		if err != nil {
			if c.Connected() {
				c.fatal("read error: %s", err)
			}
			return
		}

		msg := &Message{}
		if err := c.codec.Unmarshal(blob, msg); err != nil {
			c.fatal("read invalid message: %s", err)
			return
		}
		msg.Payload = wire.Normalize(msg.Payload)

		switch msg.Type {
		case msgAck:
			c.deliver(msg)
		case msgEvent:
			select {
			case c.queue <- msg:
			case <-c.done:
				return
			}
			select {
			case c.processSignal <- struct{}{}:
			default:
			}
		default:
			c.fatal("unknown message type %q", msg.Type)
			return
		}
	}
}

func (c *Conn) deliver(msg *Message) {
	c.mu.Lock()
	ch, ok := c.pending[msg.ID]
	delete(c.pending, msg.ID)
	c.mu.Unlock()

	if !ok {
		c.warn("ack of unknown call %d", msg.ID)
		return
	}
	if msg.Error != "" {
		ch <- Reply{Err: &wire.RemoteError{Kind: "TransportError", Message: msg.Error}}
		return
	}
	ch <- Reply{Payload: msg.Payload}
}

// Start begins reading from the connection.
func (c *Conn) Start() {
	c.startOnce.Do(func() {
		go c.handle()
	})
}

// Emit sends an event without waiting for it to be handled.
func (c *Conn) Emit(namespace, event string, payload interface{}) error {
	c.Start()
	return c.sendMessage(&Message{Type: msgEvent, Namespace: namespace, Event: event, Payload: payload})
}

// Send sends an event and returns a channel receiving its acknowledgement.
func (c *Conn) Send(namespace, event string, payload interface{}) (uint64, <-chan Reply, error) {
	c.Start()
	id := atomic.AddUint64(&c.nextID, 1)
	ch := make(chan Reply, 1)

	c.mu.Lock()
	if c.err != nil {
		c.mu.Unlock()
		return 0, nil, ErrNotConnected
	}
	c.pending[id] = ch
	c.mu.Unlock()

	err := c.sendMessage(&Message{Type: msgEvent, Namespace: namespace, Event: event, ID: id, Payload: payload})
	if err != nil {
		c.Forget(id)
		return 0, nil, err
	}
	return id, ch, nil
}

// Forget stops waiting for the acknowledgement of call id.
func (c *Conn) Forget(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, id)
}

// Call sends an event and blocks until it is acknowledged or ctx is done.
// Call does not process inbound events while waiting.
func (c *Conn) Call(ctx context.Context, namespace, event string, payload interface{}) (interface{}, error) {
	id, ch, err := c.Send(namespace, event, payload)
	if err != nil {
		return nil, err
	}
	select {
	case r := <-ch:
		return r.Payload, r.Err
	case <-ctx.Done():
		c.Forget(id)
		return nil, c.WaitError(ctx.Err())
	}
}

// WaitError classifies a wait that ended without a reply.
func (c *Conn) WaitError(cause error) error {
	if c.Connected() {
		return fmt.Errorf("%w: %v", ErrTimeout, cause)
	}
	return ErrDisconnectedDuringCall
}

// Run processes events until the connection is closed. Handlers are called
// from the goroutine calling Run.
//
// Run is equivalent to a loop of Process and ProcessSignal.
func (c *Conn) Run() error {
	c.Start()
	for {
		if _, open := <-c.processSignal; !open {
			return c.Err()
		}
		if err := c.Process(); err != nil {
			return err
		}
	}
}

// Process handles any pending events on the connection, but does not block
// to wait for new ones. ProcessSignal signals when there are events to
// process.
//
// Process returns nil when no events are pending, and the connection error
// once the connection has closed.
func (c *Conn) Process() error {
	c.Start()
	for {
		var msg *Message
		var open bool
		select {
		case msg, open = <-c.queue:
			if !open {
				return c.Err()
			}
		default:
			return nil
		}
		c.dispatch(msg)
	}
}

// ProcessSignal receives a value when events are queued, and is closed
// with the connection.
func (c *Conn) ProcessSignal() <-chan struct{} {
	c.Start()
	return c.processSignal
}

func (c *Conn) dispatch(msg *Message) {
	c.mu.Lock()
	h, ok := c.handlers[msg.Namespace]
	c.mu.Unlock()

	var result interface{}
	var err error
	if !ok {
		err = fmt.Errorf("no handler for namespace %q", msg.Namespace)
		c.warn("event %s: %s", msg.Event, err)
	} else {
		result, err = h.HandleEvent(c, msg.Event, msg.Payload)
	}

	if msg.ID == 0 {
		if err != nil {
			c.warn("event %s failed: %s", msg.Event, err)
		}
		return
	}

	ack := &Message{Type: msgAck, Namespace: msg.Namespace, ID: msg.ID, Payload: result}
	if err != nil {
		ack.Error = err.Error()
	}
	if err := c.sendMessage(ack); err != nil && err != ErrNotConnected {
		c.warn("ack of %s failed: %s", msg.Event, err)
		c.sendMessage(&Message{Type: msgAck, Namespace: msg.Namespace, ID: msg.ID, Error: err.Error()})
	}
}
