package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"nodelock/internal/infrastructure"
	"nodelock/pkg/contracts/events"
)

// ErrHubStopped is returned when broadcasting on a hub that is not running
var ErrHubStopped = errors.New("websocket hub is not running")

type outbound struct {
	msgType events.MessageType
	payload []byte
}

// Hub maintains the set of active clients and broadcasts messages to the clients
type Hub struct {
	clients map[*Client]bool

	broadcast  chan outbound
	register   chan *Client
	unregister chan *Client

	mu      sync.RWMutex
	running bool

	logger  *slog.Logger
	metrics *Metrics

	quit chan struct{}
	done chan struct{}
}

// NewHub creates a new Hub. metrics may be nil.
func NewHub(logger *slog.Logger, metrics *Metrics) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan outbound, 16),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     infrastructure.WithComponent(logger, "websocket.hub"),
		metrics:    metrics,
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start runs the hub loop in its own goroutine. A hub can be started once.
func (h *Hub) Start() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running {
		return
	}
	select {
	case <-h.quit:
		return
	default:
	}
	h.running = true
	go h.run()
}

// Stop disconnects every client and waits for the hub loop to exit
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

func (h *Hub) run() {
	defer close(h.done)
	ctx := context.Background()

	for {
		select {
		case <-h.quit:
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
				h.metrics.recordDisconnect(ctx, false)
			}
			h.mu.Unlock()
			h.logger.Info("Hub shutting down")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mu.Unlock()

			cctx := client.context()
			h.metrics.recordConnect(cctx)
			h.logger.InfoContext(cctx, "Client registered",
				slog.Int("total_clients", count),
				slog.String("client_id", client.id),
				slog.String("remote_addr", client.remoteAddr))

			h.greet(cctx, client)

		case client := <-h.unregister:
			h.mu.Lock()
			_, ok := h.clients[client]
			if ok {
				delete(h.clients, client)
				close(client.send)
			}
			count := len(h.clients)
			h.mu.Unlock()

			if ok {
				cctx := client.context()
				h.metrics.recordDisconnect(cctx, false)
				h.logger.InfoContext(cctx, "Client unregistered",
					slog.Int("total_clients", count),
					slog.String("client_id", client.id),
					slog.Duration("connection_duration", time.Since(client.connectedAt)))
			}

		case msg := <-h.broadcast:
			h.deliver(ctx, msg)
		}
	}
}

// deliver fans msg out to every client. A client whose buffer is full is
// disconnected rather than allowed to stall the others.
func (h *Hub) deliver(ctx context.Context, msg outbound) {
	h.mu.Lock()
	sent, dropped := 0, 0
	for client := range h.clients {
		select {
		case client.send <- msg.payload:
			sent++
		default:
			close(client.send)
			delete(h.clients, client)
			dropped++
			h.metrics.recordDisconnect(ctx, true)
			h.logger.WarnContext(client.context(), "Client send buffer full, disconnecting",
				slog.String("client_id", client.id))
		}
	}
	h.mu.Unlock()

	h.metrics.recordMessages(ctx, string(msg.msgType), sent)
	h.logger.Debug("Broadcast delivered",
		slog.String("type", string(msg.msgType)),
		slog.Int("sent", sent),
		slog.Int("dropped", dropped),
		slog.Int("message_size", len(msg.payload)))
}

func (h *Hub) greet(ctx context.Context, client *Client) {
	payload, err := EncodeMessage(events.MessageTypeConnect, events.ConnectData{
		ClientID: client.id,
		Message:  "Connected to license event stream",
	}, client.traceID)
	if err != nil {
		h.logger.ErrorContext(ctx, "Error marshaling connection message", slog.String("error", err.Error()))
		return
	}

	select {
	case client.send <- payload:
		h.metrics.recordMessages(ctx, string(events.MessageTypeConnect), 1)
	default:
		h.logger.WarnContext(ctx, "Failed to send connection message - client buffer full",
			slog.String("client_id", client.id))
	}
}

// Broadcast queues a message of msgType for every connected client
func (h *Hub) Broadcast(msgType events.MessageType, data interface{}) error {
	payload, err := EncodeMessage(msgType, data, "")
	if err != nil {
		h.logger.Error("Error marshaling message",
			slog.String("error", err.Error()),
			slog.String("message_type", string(msgType)))
		return err
	}

	h.mu.RLock()
	running := h.running
	h.mu.RUnlock()
	if !running {
		return ErrHubStopped
	}

	select {
	case h.broadcast <- outbound{msgType: msgType, payload: payload}:
		return nil
	case <-h.quit:
		return ErrHubStopped
	}
}

// Register adds a client. Anything queued with Client.Enqueue beforehand is
// delivered ahead of the greeting. It reports false when the hub is stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.quit:
		return false
	}
}

// Unregister removes a client and closes its send channel
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.quit:
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// EncodeMessage renders one stream message. traceID may be empty.
func EncodeMessage(msgType events.MessageType, data interface{}, traceID string) ([]byte, error) {
	msg := events.NewMessage(uuid.NewString(), msgType, data)
	msg.TraceID = traceID
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s message: %w", msgType, err)
	}
	return payload, nil
}
