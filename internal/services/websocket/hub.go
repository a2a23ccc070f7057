package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"ops-dashboard/internal/logger"
)

// Message is the envelope pushed to every client.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Conn is the part of a websocket connection the hub writes to.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Hub fans messages out to connected dashboard clients. New clients receive
// the most recent message immediately.
type Hub struct {
	clients    map[Conn]bool
	broadcast  chan []byte
	register   chan Conn
	unregister chan Conn
	done       chan struct{}
	mutex      sync.RWMutex
	last       []byte
	log        *zap.SugaredLogger
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[Conn]bool),
		broadcast:  make(chan []byte, 16),
		register:   make(chan Conn),
		unregister: make(chan Conn),
		done:       make(chan struct{}),
		log:        logger.ComponentLogger("ws"),
	}
}

// Run serves the hub until ctx is cancelled, then closes every client.
// Register and Unregister stop blocking once Run has returned.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mutex.Lock()
			for client := range h.clients {
				client.Close()
				delete(h.clients, client)
			}
			h.mutex.Unlock()
			return

		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			last := h.last
			h.mutex.Unlock()
			if last != nil {
				if err := client.WriteMessage(websocket.TextMessage, last); err != nil {
					h.drop(client)
				}
			}
			h.log.Debugw("Client connected", logger.FieldClients, h.ClientCount())

		case client := <-h.unregister:
			h.drop(client)

		case message := <-h.broadcast:
			h.mutex.Lock()
			h.last = message
			var failed []Conn
			for client := range h.clients {
				if err := client.WriteMessage(websocket.TextMessage, message); err != nil {
					failed = append(failed, client)
				}
			}
			h.mutex.Unlock()
			for _, client := range failed {
				h.drop(client)
			}
		}
	}
}

func (h *Hub) drop(client Conn) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		client.Close()
	}
}

// Publish encodes v as a typed message and queues it for every client. It
// never blocks; when the queue is full the message is dropped because the
// next poll supersedes it.
func (h *Hub) Publish(kind string, v any) {
	data, err := json.Marshal(Message{Type: kind, Data: v})
	if err != nil {
		h.log.Warnw("Failed to encode message", "type", kind, logger.FieldError, err)
		return
	}
	select {
	case h.broadcast <- data:
	default:
		h.log.Warnw("Broadcast queue full, dropping message", "type", kind)
	}
}

func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// Register adds conn to the hub. After shutdown conn is closed instead.
func (h *Hub) Register(conn Conn) {
	select {
	case h.register <- conn:
	case <-h.done:
		conn.Close()
	}
}

func (h *Hub) Unregister(conn Conn) {
	select {
	case h.unregister <- conn:
	case <-h.done:
	}
}

// Handler returns the fiber websocket handler. It only reads to notice the
// client going away.
func (h *Hub) Handler() func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		h.Register(c)
		defer h.Unregister(c)

		for {
			if _, _, err := c.ReadMessage(); err != nil {
				break
			}
		}
	}
}
