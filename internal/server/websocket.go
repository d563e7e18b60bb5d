package server

import (
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/openclear/auctiond/internal/core/house"
)

// Hub fans house events out to websocket subscribers. It implements
// house.Sink and never calls back into the engine.
type Hub struct {
	upgrader websocket.Upgrader
	log      logrus.FieldLogger

	mu    sync.RWMutex
	conns map[string]*wsConn
}

type wsConn struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func NewHub(log logrus.FieldLogger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log:   log,
		conns: make(map[string]*wsConn),
	}
}

// Publish implements house.Sink. Slow subscribers are disconnected rather
// than allowed to block the caller.
func (h *Hub) Publish(ev house.Event) {
	payload, err := marshalEvent(ev)
	if err != nil {
		h.log.WithError(err).Warn("failed to encode event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.conns {
		select {
		case c.send <- payload:
		default:
			h.log.WithField("conn_id", c.id).Warn("dropping slow websocket subscriber")
			go h.drop(c)
		}
	}
}

// ServeHTTP upgrades the request and streams events until the client leaves.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	c := &wsConn{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, 256),
	}

	h.mu.Lock()
	h.conns[c.id] = c
	h.mu.Unlock()

	go h.writeLoop(c)
	go h.readLoop(c)
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	conns := make([]*wsConn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.conns = make(map[string]*wsConn)
	h.mu.Unlock()

	for _, c := range conns {
		c.close()
	}
}

func (h *Hub) writeLoop(c *wsConn) {
	for payload := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			h.drop(c)
			return
		}
	}
}

// readLoop discards inbound frames and notices disconnects.
func (h *Hub) readLoop(c *wsConn) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			h.drop(c)
			return
		}
	}
}

func (h *Hub) drop(c *wsConn) {
	h.mu.Lock()
	delete(h.conns, c.id)
	h.mu.Unlock()
	c.close()
}

func (c *wsConn) close() {
	c.once.Do(func() {
		close(c.send)
		c.conn.Close()
	})
}
