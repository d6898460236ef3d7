package ws

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	sendQueueSize = 64
	writeWait     = 5 * time.Second
)

var (
	errConnClosed   = errors.New("connection closed")
	errSlowConsumer = errors.New("send queue full")
)

// client wraps one websocket connection with a buffered outbound queue
// drained by a dedicated write goroutine. Sessions enqueue frames in event
// order and the pump preserves it on the wire.
type client struct {
	id   uint64
	ws   *websocket.Conn
	send chan []byte

	once sync.Once
	done chan struct{}
}

func newClient(id uint64, ws *websocket.Conn) *client {
	return &client{
		id:   id,
		ws:   ws,
		send: make(chan []byte, sendQueueSize),
		done: make(chan struct{}),
	}
}

// Send enqueues a frame without blocking. A full queue counts as a failed
// write: a consumer that cannot keep up is indistinguishable from a dead
// one, and the caller treats both as an implicit leave.
func (c *client) Send(data []byte) error {
	select {
	case <-c.done:
		return errConnClosed
	default:
	}
	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return errConnClosed
	default:
		return errSlowConsumer
	}
}

// Close stops the write pump and tears down the websocket. Safe to call more
// than once.
func (c *client) Close() {
	c.once.Do(func() {
		close(c.done)
	})
}

// writePump writes queued frames to the websocket until the client closes,
// flushing any backlog before sending the close frame.
func (c *client) writePump() {
	defer c.ws.Close()
	for {
		select {
		case <-c.done:
			for {
				select {
				case data := <-c.send:
					c.ws.SetWriteDeadline(time.Now().Add(writeWait))
					if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
						return
					}
				default:
					c.ws.SetWriteDeadline(time.Now().Add(writeWait))
					c.ws.WriteMessage(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
					return
				}
			}
		case data := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.Close()
				return
			}
		}
	}
}

// Registry tracks every live transport connection, joined to a space or not,
// so shutdown can close them all deterministically.
type Registry struct {
	nextID atomic.Uint64

	mu      sync.Mutex
	clients map[uint64]*client
	closed  bool
}

// NewRegistry builds an empty connection registry.
func NewRegistry() *Registry {
	return &Registry{clients: make(map[uint64]*client)}
}

// add wraps and records a fresh websocket connection. Returns nil when the
// registry is already shut down.
func (r *Registry) add(ws *websocket.Conn) *client {
	c := newClient(r.nextID.Add(1), ws)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.clients[c.id] = c
	return c
}

// remove forgets a connection once its read loop has finished.
func (r *Registry) remove(c *client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, c.id)
}

// Count reports the number of live connections, for diagnostics.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

// CloseAll terminates every live connection and refuses new ones. Each write
// pump flushes its backlog, sends a close frame, and tears down the socket,
// which ends the read loop and runs the normal leave path.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	r.closed = true
	clients := make([]*client, 0, len(r.clients))
	for _, c := range r.clients {
		clients = append(clients, c)
	}
	r.mu.Unlock()

	for _, c := range clients {
		c.Close()
	}
}
