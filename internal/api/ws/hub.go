package ws

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/your-org/facewatch/internal/observability"
	"github.com/your-org/facewatch/internal/queue"
	"github.com/your-org/facewatch/pkg/dto"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for development
	},
}

// Client represents a connected WebSocket client.
type Client struct {
	conn    *websocket.Conn
	send    chan []byte
	videoID string // optional filter
}

// accepts reports whether the client wants the alert. Clients filtering on a
// video only receive that video's summaries.
func (c *Client) accepts(alert *dto.WSAlert) bool {
	return c.videoID == "" || alert.VideoID == c.videoID
}

type outbound struct {
	alert *dto.WSAlert
	data  []byte
}

// Hub maintains active WebSocket clients and broadcasts alerts.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan outbound
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan outbound, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run starts the hub event loop. Call this in a goroutine.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			observability.WSConnections.Inc()
			slog.Debug("ws client connected", "video_id", client.videoID)

		case client := <-h.unregister:
			h.remove(client)
			slog.Debug("ws client disconnected")

		case msg := <-h.broadcast:
			var slow []*Client
			h.mu.RLock()
			for client := range h.clients {
				if !client.accepts(msg.alert) {
					continue
				}
				select {
				case client.send <- msg.data:
				default:
					slow = append(slow, client)
				}
			}
			h.mu.RUnlock()
			// Client buffer full, disconnect
			for _, c := range slow {
				h.remove(c)
			}
		}
	}
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
		observability.WSConnections.Dec()
	}
}

// Broadcast sends an alert to all interested clients.
func (h *Hub) Broadcast(alert *dto.WSAlert) {
	data, err := json.Marshal(alert)
	if err != nil {
		slog.Error("marshal ws alert", "error", err)
		return
	}
	h.broadcast <- outbound{alert: alert, data: data}
}

// AlertFromSubject turns an ALERTS stream message into a WS alert.
func AlertFromSubject(subject string, data []byte) (*dto.WSAlert, bool) {
	kind, id, ok := queue.ParseAlertSubject(subject)
	if !ok || !json.Valid(data) {
		return nil, false
	}
	alert := &dto.WSAlert{Data: json.RawMessage(data)}
	switch kind {
	case queue.AlertKindVideo:
		alert.Type = dto.WSVideoSummary
		alert.VideoID = id
	case queue.AlertKindImage:
		alert.Type = dto.WSImageMatch
		alert.RequestID = id
	default:
		return nil, false
	}
	return alert, true
}

// HandleWS handles WebSocket upgrade requests.
func (h *Hub) HandleWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Error("ws upgrade failed", "error", err)
		return
	}

	client := &Client{
		conn:    conn,
		send:    make(chan []byte, 64),
		videoID: c.Query("video_id"),
	}

	h.register <- client

	go client.writePump()
	go client.readPump(h)
}

func (c *Client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (c *Client) readPump(h *Hub) {
	defer func() {
		h.unregister <- c
		c.conn.Close()
	}()

	for {
		// Incoming messages are ignored; reading detects disconnection.
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
