package ws

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mesaflow/api/internal/auth"
	"github.com/mesaflow/api/internal/database"
	"github.com/mesaflow/api/internal/service"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // access is validated via JWT, not origin
	},
}

// AccessStore defines the DB methods needed to gate a dashboard connection.
// Satisfied by *database.Queries.
type AccessStore interface {
	GetBusiness(ctx context.Context, id uuid.UUID) (database.Business, error)
	GetBusinessStaff(ctx context.Context, arg database.GetBusinessStaffParams) (database.BusinessStaff, error)
}

// Client represents a single WebSocket connection watching one business.
type Client struct {
	hub        *Hub
	conn       *websocket.Conn
	businessID uuid.UUID
	send       chan []byte
}

// ReadPump drains the connection. Dashboards never send application
// messages; the read loop only detects disconnects and answers pings.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("websocket error: %v", err)
			}
			break
		}
	}
}

// WritePump pumps messages from the hub to the WebSocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Fold queued messages into the same frame.
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ServeWS upgrades a dashboard connection.
// Endpoint: WS /ws/businesses/{businessID}?token=JWT
// Only admins, the owner, and active roster staff may watch a business.
func ServeWS(hub *Hub, store AccessStore, jwtSecret string, w http.ResponseWriter, r *http.Request) {
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}

	claims, err := auth.ValidateToken(jwtSecret, tokenStr)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	businessID, err := uuid.Parse(chi.URLParam(r, "businessID"))
	if err != nil {
		http.Error(w, "invalid business id", http.StatusBadRequest)
		return
	}

	business, err := store.GetBusiness(r.Context(), businessID)
	if err != nil {
		http.Error(w, "business not found", http.StatusNotFound)
		return
	}

	access, err := service.ResolveBusinessAccess(r.Context(), store, business, service.Actor{
		ID:   claims.UserID,
		Role: claims.Role,
	})
	if err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	if !access.Allowed() {
		http.Error(w, "business access denied", http.StatusForbidden)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v", err)
		return
	}

	client := &Client{
		hub:        hub,
		conn:       conn,
		businessID: businessID,
		send:       make(chan []byte, 256),
	}
	client.hub.register <- client

	go client.WritePump()
	go client.ReadPump()
}
