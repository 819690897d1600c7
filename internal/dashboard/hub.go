package dashboard

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/coder/websocket"
)

const (
	// clientQueue is how many frames a client may lag behind before it is
	// dropped.
	clientQueue = 16

	writeTimeout = 5 * time.Second
)

// client is one WebSocket connection with its own outgoing queue, so a
// slow reader never delays the others.
type client struct {
	conn *websocket.Conn
	send chan []byte
}

func newClient(conn *websocket.Conn) *client {
	return &client{conn: conn, send: make(chan []byte, clientQueue)}
}

// writeLoop sends queued frames until the queue is closed or a write
// fails, then closes the connection.
func (c *client) writeLoop() {
	for data := range c.send {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := c.conn.Write(ctx, websocket.MessageText, data)
		cancel()
		if err != nil {
			break
		}
	}
	_ = c.conn.Close(websocket.StatusGoingAway, "")
}

// hub tracks the connected clients. Removing a client closes its queue,
// which ends its writeLoop.
type hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
	logger  *log.Logger
}

func newHub(logger *log.Logger) *hub {
	return &hub{clients: make(map[*client]struct{}), logger: logger}
}

// add registers c. It reports false once the hub is closed.
func (h *hub) add(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	h.logger.Printf("Client connected (%d open)", len(h.clients))
	return true
}

func (h *hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.drop(c) {
		h.logger.Printf("Client disconnected (%d open)", len(h.clients))
	}
}

// drop must be called with mu held.
func (h *hub) drop(c *client) bool {
	if _, ok := h.clients[c]; !ok {
		return false
	}
	delete(h.clients, c)
	close(c.send)
	return true
}

// publish queues data for every client. Clients whose queue is full are
// disconnected.
func (h *hub) publish(data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.drop(c)
			h.logger.Printf("Client fell %d frames behind, disconnected", clientQueue)
		}
	}
}

// close disconnects every client and refuses new ones.
func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		h.drop(c)
	}
}

func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
