package ws

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/google/uuid"
)

// Event is one realtime message pushed to business dashboards.
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// businessEvent routes a pre-marshaled message to one business room.
type businessEvent struct {
	BusinessID uuid.UUID
	Message    []byte
}

// Hub maintains the set of active clients, one room per business, and
// fans broadcasts out to them.
type Hub struct {
	rooms map[uuid.UUID]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan *businessEvent

	mu sync.RWMutex
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[uuid.UUID]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *businessEvent, 256),
	}
}

// Run starts the hub's main loop. Call as a goroutine: go hub.Run().
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if h.rooms[client.businessID] == nil {
				h.rooms[client.businessID] = make(map[*Client]bool)
			}
			h.rooms[client.businessID][client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if clients, ok := h.rooms[client.businessID]; ok {
				if _, exists := clients[client]; exists {
					delete(clients, client)
					close(client.send)
					if len(clients) == 0 {
						delete(h.rooms, client.businessID)
					}
				}
			}
			h.mu.Unlock()

		case event := <-h.broadcast:
			h.mu.Lock()
			for client := range h.rooms[event.BusinessID] {
				select {
				case client.send <- event.Message:
				default:
					// Slow consumer: drop the connection rather than
					// block the hub.
					close(client.send)
					delete(h.rooms[event.BusinessID], client)
					if len(h.rooms[event.BusinessID]) == 0 {
						delete(h.rooms, event.BusinessID)
					}
				}
			}
			h.mu.Unlock()
		}
	}
}

// BroadcastToBusiness sends a typed event to every client watching the
// business.
func (h *Hub) BroadcastToBusiness(businessID uuid.UUID, event Event) {
	message, err := json.Marshal(event)
	if err != nil {
		log.Printf("ERROR: marshal ws event: %v", err)
		return
	}
	h.broadcast <- &businessEvent{BusinessID: businessID, Message: message}
}

// BroadcastOrderEvent pushes an already-shaped order event to the business
// room. It satisfies the handler's broadcaster interface.
func (h *Hub) BroadcastOrderEvent(businessID uuid.UUID, event any) {
	message, err := json.Marshal(event)
	if err != nil {
		log.Printf("ERROR: marshal ws order event: %v", err)
		return
	}
	h.broadcast <- &businessEvent{BusinessID: businessID, Message: message}
}
