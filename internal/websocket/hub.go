package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"petakeu/internal/infrastructure"
	"petakeu/pkg/contracts/events"
)

// broadcastBuffer bounds the number of undelivered events
const broadcastBuffer = 256

// Hub maintains the set of active clients and broadcasts messages to the clients
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Outbound messages for every client
	broadcast chan []byte

	// Register requests from the clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Mutex for thread-safe operations
	mu sync.RWMutex

	logger *slog.Logger

	// Metrics
	totalConnections atomic.Int64
	messagesSent     atomic.Int64
	messagesDropped  atomic.Int64

	// Control
	quit    chan struct{}
	done    chan struct{}
	running bool
}

// NewHub creates a new Hub instance
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}

	return &Hub{
		broadcast:  make(chan []byte, broadcastBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		logger:     logger.With(slog.String("component", "websocket.hub")),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start starts the hub's main loop
func (h *Hub) Start() {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return
	}
	h.running = true
	h.mu.Unlock()

	go h.run()
}

// run owns client registration and fan-out until Stop
func (h *Hub) run() {
	defer close(h.done)

	for {
		select {
		case <-h.quit:
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			h.logger.Info("hub shutting down")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mu.Unlock()
			h.totalConnections.Add(1)

			h.logger.InfoContext(client.context(), "client registered",
				slog.Int("total_clients", count),
				slog.String("client_id", client.id),
				slog.String("remote_addr", client.remoteAddr))

			h.sendConnected(client)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				count := len(h.clients)
				h.mu.Unlock()

				h.logger.InfoContext(client.context(), "client unregistered",
					slog.Int("total_clients", count),
					slog.String("client_id", client.id),
					slog.Duration("connection_duration", time.Since(client.connectedAt)))
			} else {
				h.mu.Unlock()
			}

		case message := <-h.broadcast:
			h.fanOut(message)
		}
	}
}

// fanOut delivers message to every client, disconnecting clients whose
// buffers are full
func (h *Hub) fanOut(message []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		select {
		case client.send <- message:
			h.messagesSent.Add(1)
		default:
			close(client.send)
			delete(h.clients, client)
			h.logger.WarnContext(client.context(), "client send buffer full, disconnecting",
				slog.String("client_id", client.id))
		}
	}
}

func (h *Hub) sendConnected(client *Client) {
	msg := events.WebSocketMessage{
		BaseMessage: events.BaseMessage{
			ID:        uuid.NewString(),
			Type:      events.MessageTypeConnect,
			Timestamp: time.Now().UTC(),
			TraceID:   client.traceID,
		},
		Data: map[string]string{
			"status":   "connected",
			"clientId": client.id,
		},
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case client.send <- payload:
	default:
		h.logger.Warn("failed to send connection message, client buffer full",
			slog.String("client_id", client.id))
	}
}

// Publish implements Publisher. It never blocks; events are dropped when
// the broadcast buffer is full.
func (h *Hub) Publish(ctx context.Context, msgType events.MessageType, data interface{}) {
	msg := events.WebSocketMessage{
		BaseMessage: events.BaseMessage{
			ID:        uuid.NewString(),
			Type:      msgType,
			Timestamp: time.Now().UTC(),
			TraceID:   infrastructure.GetTraceID(ctx),
		},
		Data: data,
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		h.logger.ErrorContext(ctx, "error marshaling message",
			slog.String("error", err.Error()),
			slog.String("message_type", string(msgType)))
		return
	}

	select {
	case h.broadcast <- payload:
	default:
		h.messagesDropped.Add(1)
		h.logger.WarnContext(ctx, "broadcast buffer full, dropping event",
			slog.String("message_type", string(msgType)))
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stop gracefully stops the hub and disconnects every client
func (h *Hub) Stop() {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return
	}
	h.running = false
	h.mu.Unlock()

	close(h.quit)
	<-h.done
}

// Register adds a client to the hub
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.quit:
	}
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.quit:
	}
}

// HubStats is a snapshot of hub counters
type HubStats struct {
	ActiveClients    int   `json:"activeClients"`
	TotalConnections int64 `json:"totalConnections"`
	MessagesSent     int64 `json:"messagesSent"`
	MessagesDropped  int64 `json:"messagesDropped"`
}

// Stats returns current hub counters
func (h *Hub) Stats() HubStats {
	return HubStats{
		ActiveClients:    h.ClientCount(),
		TotalConnections: h.totalConnections.Load(),
		MessagesSent:     h.messagesSent.Load(),
		MessagesDropped:  h.messagesDropped.Load(),
	}
}
