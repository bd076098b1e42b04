package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sujalbistaa/stickyboard/internal/models"
	"github.com/sujalbistaa/stickyboard/internal/moderation"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Message is the JSON frame the board frontend expects.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Client is one websocket connection.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Hub fans public board events out to every connected client. All client
// bookkeeping happens on the Run goroutine.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	done       chan struct{}
	connected  atomic.Int64
	logger     *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 256),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run is the hub's event loop. It closes every client when ctx is done and
// must be called at most once.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			for client := range h.clients {
				h.drop(client)
			}
			return

		case client := <-h.register:
			h.clients[client] = true
			h.connected.Add(1)

		case client := <-h.unregister:
			if h.clients[client] {
				h.drop(client)
			}

		case msg := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- msg:
				default:
					// slow consumer
					h.drop(client)
				}
			}
		}
	}
}

func (h *Hub) drop(client *Client) {
	delete(h.clients, client)
	close(client.send)
	h.connected.Add(-1)
}

// Connected reports the number of registered clients.
func (h *Hub) Connected() int { return int(h.connected.Load()) }

// Broadcast queues msg for every client. It drops the message instead of
// blocking when the queue is full.
func (h *Hub) Broadcast(msg []byte) bool {
	select {
	case h.broadcast <- msg:
		return true
	default:
		h.logger.Warn("websocket broadcast dropped",
			"event", "ws_broadcast_dropped",
			"module", "internal/ws",
			"layer", "platform",
		)
		return false
	}
}

// Publish forwards the events a public viewer can observe. Pending content
// and abuse signals stay server-side.
func (h *Hub) Publish(_ context.Context, event moderation.Event) {
	frameType, ok := publicFrame(event)
	if !ok {
		return
	}
	event.Reports = 0
	payload, err := json.Marshal(Message{Type: frameType, Data: event})
	if err != nil {
		h.logger.Error("websocket payload marshal failed",
			"event", "ws_marshal_failed",
			"module", "internal/ws",
			"layer", "platform",
			"error", err.Error(),
		)
		return
	}
	h.Broadcast(payload)
}

func publicFrame(event moderation.Event) (string, bool) {
	switch event.Type {
	case moderation.EventMessageApproved:
		return "new_message", true
	case moderation.EventMessageRestored:
		return "new_message", event.Status == models.StatusApproved
	case moderation.EventMessageRejected, moderation.EventMessageDeleted:
		return "message_removed", true
	case moderation.EventCommentApproved:
		return "new_comment", true
	case moderation.EventCommentRestored:
		return "new_comment", event.Status == models.StatusApproved
	case moderation.EventCommentRejected, moderation.EventCommentDeleted, moderation.EventCommentAutoReject:
		return "comment_removed", true
	case moderation.EventCommentInteraction:
		return "comment_reactions", event.Status == models.StatusApproved
	}
	return "", false
}

// ServeWs upgrades the request and registers the connection with hub.
func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.logger.Warn("websocket upgrade failed",
			"event", "ws_upgrade_failed",
			"module", "internal/ws",
			"layer", "platform",
			"error", err.Error(),
		)
		return
	}
	client := &Client{hub: hub, conn: conn, send: make(chan []byte, sendBuffer)}
	select {
	case hub.register <- client:
	case <-hub.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// readPump only services control frames; clients never send board data.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

var _ moderation.Publisher = (*Hub)(nil)
