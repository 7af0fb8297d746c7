package transport

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/CrimsonAS/aliasbridge/wire"
)

// wsFramer carries one frame per websocket message. Writes are serialized
// by the owning Conn.
type wsFramer struct {
	conn   *websocket.Conn
	binary bool
}

func NewWebsocketFramer(conn *websocket.Conn, binary bool) Framer {
	return &wsFramer{conn: conn, binary: binary}
}

func (f *wsFramer) ReadFrame() ([]byte, error) {
	_, message, err := f.conn.ReadMessage()
	return message, err
}

func (f *wsFramer) WriteFrame(data []byte) error {
	messageType := websocket.TextMessage
	if f.binary {
		messageType = websocket.BinaryMessage
	}
	return f.conn.WriteMessage(messageType, data)
}

func (f *wsFramer) Close() error {
	return f.conn.Close()
}

// Dial connects to a websocket endpoint such as "ws://127.0.0.1:8765/".
func Dial(ctx context.Context, url string, codec wire.Codec) (*Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	ws, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return NewConn(NewWebsocketFramer(ws, codec.Binary()), codec), nil
}

// NewHandler returns an http.Handler upgrading requests to websocket
// connections and passing each new connection to accept.
func NewHandler(codec wire.Codec, accept func(*Conn)) http.Handler {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warningf("upgrade from %s failed: %s", r.RemoteAddr, err)
			return
		}
		accept(NewConn(NewWebsocketFramer(ws, codec.Binary()), codec))
	})
}

// Serve accepts websocket connections on l until ctx is done.
func Serve(ctx context.Context, l net.Listener, codec wire.Codec, accept func(*Conn)) error {
	srv := &http.Server{Handler: NewHandler(codec, accept)}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAndServe listens on the TCP address addr and calls Serve.
func ListenAndServe(ctx context.Context, addr string, codec wire.Codec, accept func(*Conn)) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	log.Infof("listening on %s", l.Addr())
	return Serve(ctx, l, codec, accept)
}
