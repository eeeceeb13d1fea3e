// Package realtime pushes coarse schedule-change events to every connected
// calendar view. Payloads are advisory: clients refetch their visible window
// on receipt instead of patching local state, so a dropped or duplicated
// event can never diverge a view from the store.
package realtime

import (
	"encoding/json"
	"log"
	"time"

	websocket "github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
)

const (
	EventBooked          = "booked"
	EventCancelled       = "cancelled"
	EventRequested       = "requested"
	EventConfirmed       = "confirmed"
	EventCompleted       = "completed"
	EventCreated         = "created"
	EventTrainerAssigned = "trainerAssigned"
)

// Event is a sessions:updated broadcast. SessionID/UserID/Count identify the
// change coarsely; the ID lets clients drop replays.
type Event struct {
	ID        string `json:"id"`
	Event     string `json:"event"`
	Type      string `json:"type"`
	SessionID int64  `json:"session_id,omitempty"`
	UserID    int64  `json:"user_id,omitempty"`
	TrainerID int64  `json:"trainer_id,omitempty"`
	Count     int    `json:"count,omitempty"`
	Timestamp string `json:"timestamp"`
}

type Hub struct {
	clients    map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	broadcast  chan Event
}

type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan Event, 64),
	}
}

func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		hub:  hub,
		conn: conn,
		send: make(chan []byte, 32),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = struct{}{}
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
		case event := <-h.broadcast:
			h.deliver(event)
		}
	}
}

func (h *Hub) Register(client *Client) {
	h.register <- client
}

func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Broadcast stamps the event and fans it out to every connected view.
func (h *Hub) Broadcast(event Event) {
	event.ID = uuid.NewString()
	event.Event = "sessions:updated"
	event.Timestamp = time.Now().UTC().Format(time.RFC3339)
	h.broadcast <- event
}

func (h *Hub) deliver(event Event) {
	encoded, err := json.Marshal(event)
	if err != nil {
		log.Printf("schedule hub encode event: %v", err)
		return
	}

	for client := range h.clients {
		select {
		case client.send <- encoded:
		default:
			// Slow consumer; drop it rather than block the hub.
			delete(h.clients, client)
			close(client.send)
		}
	}
}

// ReadPump drains the connection until it closes. Incoming frames carry no
// commands; the read loop only exists to detect disconnects.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Client) WritePump() {
	defer func() {
		_ = c.conn.Close()
	}()

	for payload := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
}
