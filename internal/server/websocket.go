package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	wshandler "github.com/windfall/shadowing/internal/handler/ws"
	"github.com/windfall/shadowing/internal/session"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
	sendBuffer     = 256
)

// WebSocketMessage represents a WebSocket message.
type WebSocketMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Client represents a WebSocket client bound to one practice session.
type Client struct {
	ID      string
	Hub     *WebSocketHub
	Conn    *websocket.Conn
	Session *session.Session
	Send    chan []byte

	unsubscribe func()
}

// WebSocketHub manages WebSocket connections.
type WebSocketHub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
	upgrader   websocket.Upgrader
	sessions   *session.Registry
	handler    *wshandler.Handler
	log        zerolog.Logger
}

// NewWebSocketHub creates a new WebSocket hub. allowedOrigins lists the
// origins allowed to connect; "*" allows any.
func NewWebSocketHub(sessions *session.Registry, handler *wshandler.Handler, allowedOrigins []string, log zerolog.Logger) *WebSocketHub {
	return &WebSocketHub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		sessions: sessions,
		handler:  handler,
		log:      log,
	}
}

// Run starts the WebSocket hub.
func (h *WebSocketHub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.log.Info().Msg("WebSocket hub shutting down")
			h.mu.Lock()
			for client := range h.clients {
				h.dropLocked(client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.log.Info().
				Str("client_id", client.ID).
				Str("session_id", client.Session.ID.String()).
				Msg("Client connected")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				h.dropLocked(client)
			}
			h.mu.Unlock()
			h.log.Info().Str("client_id", client.ID).Msg("Client disconnected")

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.Send <- message:
				default:
					h.dropLocked(client)
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *WebSocketHub) dropLocked(client *Client) {
	client.unsubscribe()
	delete(h.clients, client)
	close(client.Send)
}

// HandleWebSocket handles GET /ws?session={sessionID}.
func (h *WebSocketHub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Get(r.URL.Query().Get("session"))
	if err != nil {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}

	client := &Client{
		ID:      uuid.NewString(),
		Hub:     h,
		Conn:    conn,
		Session: s,
		Send:    make(chan []byte, sendBuffer),
	}
	client.unsubscribe = s.Subscribe(client.push)

	select {
	case h.register <- client:
	case <-h.done:
		client.unsubscribe()
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump(h.handler)
}

// Broadcast sends a message to all connected clients.
func (h *WebSocketHub) Broadcast(message []byte) {
	select {
	case h.broadcast <- message:
	default:
		h.log.Warn().Msg("WebSocket broadcast dropped")
	}
}

// ClientCount returns the number of connected clients.
func (h *WebSocketHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// push forwards a session event. Slow clients miss events rather than
// stalling the session.
func (c *Client) push(e session.Event) {
	message, err := json.Marshal(e)
	if err != nil {
		c.Hub.log.Error().Err(err).Str("type", e.Type).Msg("Failed to encode session event")
		return
	}

	c.Hub.mu.RLock()
	defer c.Hub.mu.RUnlock()
	if !c.Hub.clients[c] {
		return
	}
	select {
	case c.Send <- message:
	default:
		c.Hub.log.Warn().Str("client_id", c.ID).Str("type", e.Type).Msg("Dropped session event")
	}
}

// reply queues a direct response unless the client is gone.
func (c *Client) reply(message []byte) {
	c.Hub.mu.RLock()
	defer c.Hub.mu.RUnlock()
	if !c.Hub.clients[c] {
		return
	}
	select {
	case c.Send <- message:
	default:
	}
}

func (c *Client) readPump(handler *wshandler.Handler) {
	defer func() {
		select {
		case c.Hub.unregister <- c:
		case <-c.Hub.done:
		}
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	ctx := context.Background()
	for {
		messageType, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.log.Error().Err(err).Msg("WebSocket read error")
			}
			break
		}

		// Binary frames are raw recorder chunks.
		if messageType == websocket.BinaryMessage {
			if response, _ := handler.Chunk(c.Session, message); response != nil {
				c.reply(response)
			}
			continue
		}

		var msg WebSocketMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			c.Hub.log.Error().Err(err).Msg("Failed to parse WebSocket message")
			continue
		}

		response, err := handler.Handle(ctx, c.Session, c.ID, msg.Type, msg.Payload, c.reply)
		if err != nil {
			c.Hub.log.Error().Err(err).Str("type", msg.Type).Msg("Failed to handle message")
			continue
		}

		if response != nil {
			c.reply(response)
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)
			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || a == origin {
				return true
			}
		}
		return false
	}
}
