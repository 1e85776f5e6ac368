// Package websocket fans JSON frames out to WebSocket clients by topic.
// Topics are server-assigned at connect time: a chat socket listens on its
// room, a notification socket on its user.
package websocket

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ChatTopic is the topic carrying messages for a chat room.
func ChatTopic(roomID uuid.UUID) string { return "chat:" + roomID.String() }

// UserTopic is the topic carrying notifications for a single user.
func UserTopic(userID uuid.UUID) string { return "user:" + userID.String() }

// Client represents a single WebSocket connection.
type Client struct {
	ID     string
	UserID uuid.UUID
	Topics []string
	Send   chan []byte
}

// NewClient returns a client with a buffered outbound queue.
func NewClient(userID uuid.UUID, topics ...string) *Client {
	return &Client{
		ID:     uuid.NewString(),
		UserID: userID,
		Topics: topics,
		Send:   make(chan []byte, 256),
	}
}

// Hub tracks clients and their topic subscriptions. All operations are
// safe for concurrent use.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{} // topic -> set of clients
	all     map[*Client]struct{}
	logger  zerolog.Logger
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
		all:     make(map[*Client]struct{}),
		logger:  logger.With().Str("component", "ws-hub").Logger(),
	}
}

// Register adds a client to the hub and subscribes it to its topics.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.all[client] = struct{}{}
	for _, topic := range client.Topics {
		if h.clients[topic] == nil {
			h.clients[topic] = make(map[*Client]struct{})
		}
		h.clients[topic][client] = struct{}{}
	}
}

// Unregister removes a client and closes its Send channel. Calling it twice
// is harmless.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.all[client]; !ok {
		return
	}
	for _, topic := range client.Topics {
		if subscribers, ok := h.clients[topic]; ok {
			delete(subscribers, client)
			if len(subscribers) == 0 {
				delete(h.clients, topic)
			}
		}
	}
	delete(h.all, client)
	close(client.Send)
}

// Broadcast marshals v and queues it for every subscriber of topic. It
// returns the number of clients the frame was queued for; clients whose
// buffer is full are skipped.
func (h *Hub) Broadcast(topic string, v interface{}) (int, error) {
	data, err := encode(v)
	if err != nil {
		return 0, err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for client := range h.clients[topic] {
		select {
		case client.Send <- data:
			delivered++
		default:
			h.logger.Warn().Str("topic", topic).Str("client_id", client.ID).Msg("client buffer full, frame dropped")
		}
	}
	return delivered, nil
}

// SendTo queues v for a single client. It reports false when the client is
// gone or its buffer is full.
func (h *Hub) SendTo(client *Client, v interface{}) bool {
	data, err := encode(v)
	if err != nil {
		h.logger.Error().Err(err).Msg("encode frame")
		return false
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if _, ok := h.all[client]; !ok {
		return false
	}
	select {
	case client.Send <- data:
		return true
	default:
		return false
	}
}

// ClientCount returns the total number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.all)
}

// TopicCount returns the number of clients subscribed to topic.
func (h *Hub) TopicCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[topic])
}

func encode(v interface{}) ([]byte, error) {
	if raw, ok := v.([]byte); ok {
		return raw, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal frame: %w", err)
	}
	return data, nil
}
