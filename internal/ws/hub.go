package ws

import (
	"encoding/json"
	"sync"

	"github.com/entrega-local/api/internal/enum"
)

// Event represents a WebSocket message to be broadcast
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Event types pushed to staff clients.
const (
	EventOrderCreated       = "order.created"
	EventOrderStatusChanged = "order.status_changed"
)

// delivery is an internal struct routing one event to one or more role rooms
type delivery struct {
	Roles []string
	Event Event
}

// Hub maintains the set of active staff clients, grouped by role, and routes
// order events to them. The fanout policy lives here: the admin dashboard
// hears everything, driver clients only pickup-relevant traffic.
type Hub struct {
	// Registered clients by role
	rooms map[string]map[*Client]bool

	// Inbound messages from clients (register/unregister)
	register   chan *Client
	unregister chan *Client

	// Outbound deliveries to fan out
	broadcast chan *delivery

	// Mutex for thread-safe room access
	mu sync.RWMutex
}

// NewHub creates a new Hub instance
func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *delivery, 256),
	}
}

// Run starts the hub's main loop
// This should be called as a goroutine: go hub.Run()
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if h.rooms[client.role] == nil {
				h.rooms[client.role] = make(map[*Client]bool)
			}
			h.rooms[client.role][client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if clients, ok := h.rooms[client.role]; ok {
				if _, exists := clients[client]; exists {
					delete(clients, client)
					close(client.send)
					// Clean up empty rooms
					if len(clients) == 0 {
						delete(h.rooms, client.role)
					}
				}
			}
			h.mu.Unlock()

		case d := <-h.broadcast:
			// Marshal once, deliver to every addressed room
			message, err := json.Marshal(d.Event)
			if err != nil {
				continue
			}
			h.mu.Lock()
			for _, role := range d.Roles {
				h.deliver(role, message)
			}
			h.mu.Unlock()
		}
	}
}

// deliver sends an encoded message to every client in a role room. A client
// with a full send buffer is dropped so one stalled connection cannot back up
// the hub. Caller must hold h.mu.
func (h *Hub) deliver(role string, message []byte) {
	for client := range h.rooms[role] {
		select {
		case client.send <- message:
		default:
			close(client.send)
			delete(h.rooms[role], client)
			if len(h.rooms[role]) == 0 {
				delete(h.rooms, role)
			}
		}
	}
}

// BroadcastOrder routes an order event by status: admins always hear it,
// drivers only once the order is in a status they act on.
func (h *Hub) BroadcastOrder(eventType string, status enum.OrderStatus, payload json.RawMessage) {
	roles := []string{enum.RoleAdmin}
	switch status {
	case enum.OrderStatusReady, enum.OrderStatusDelivering, enum.OrderStatusDelivered:
		roles = append(roles, enum.RoleDriver)
	}
	h.broadcast <- &delivery{
		Roles: roles,
		Event: Event{Type: eventType, Payload: payload},
	}
}

// BroadcastToRole sends an event to all clients connected with the given role
func (h *Hub) BroadcastToRole(role string, event Event) {
	h.broadcast <- &delivery{
		Roles: []string{role},
		Event: event,
	}
}
