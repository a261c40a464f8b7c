package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	eventQueueSize = 64
	writeTimeout   = time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// EventHub broadcasts pilot events to WebSocket clients. Broadcast never
// blocks; events are dropped when the queue is full.
type EventHub struct {
	log     zerolog.Logger
	queue   chan []byte
	done    chan struct{}
	once    sync.Once
	clients map[*websocket.Conn]bool
	mu      sync.RWMutex
}

// NewEventHub creates a hub and starts its broadcast loop.
func NewEventHub(log zerolog.Logger) *EventHub {
	h := &EventHub{
		log:     log,
		queue:   make(chan []byte, eventQueueSize),
		done:    make(chan struct{}),
		clients: make(map[*websocket.Conn]bool),
	}
	go h.broadcast()
	return h
}

// Clients returns the number of connected clients.
func (h *EventHub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast queues v for every client as a JSON text message.
func (h *EventHub) Broadcast(v any) bool {
	msg, err := json.Marshal(v)
	if err != nil {
		h.log.Warn().Err(err).Msg("event marshal failed")
		return false
	}
	select {
	case h.queue <- msg:
		return true
	default:
		return false
	}
}

// Close stops the broadcast loop and disconnects every client.
func (h *EventHub) Close() {
	h.once.Do(func() {
		close(h.done)
		h.mu.Lock()
		for conn := range h.clients {
			conn.Close()
		}
		h.mu.Unlock()
	})
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *EventHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug().Err(err).Msg("websocket upgrade error")
		return
	}
	defer conn.Close()

	h.mu.Lock()
	h.clients[conn] = true
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
	}()

	// Keep connection alive by reading messages
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

// broadcast sends queued events to all connected clients.
func (h *EventHub) broadcast() {
	for {
		select {
		case <-h.done:
			return
		case msg := <-h.queue:
			h.mu.RLock()
			for conn := range h.clients {
				conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					h.log.Debug().Err(err).Msg("event write failed")
					conn.Close()
				}
			}
			h.mu.RUnlock()
		}
	}
}
