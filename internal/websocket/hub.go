package websocket

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Allow all origins for dev simplicity
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client represents a single connected WebSocket client
type Client struct {
	Hub    *Hub
	Conn   *websocket.Conn
	Send   chan []byte
	UserID string
	Role   string

	mu       sync.Mutex
	requests map[string]bool // request rooms this client subscribed to
}

// subscribeMessage is the only control message clients send: join or leave
// a request room to follow one trip's events.
type subscribeMessage struct {
	Action    string `json:"action"` // "subscribe" | "unsubscribe"
	RequestID string `json:"request_id"`
}

// Hub maintains the set of active clients keyed by user, role and request
// room, and routes workflow events to the right audience.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client

	mu sync.RWMutex
}

// NewHub initializes a new WS Hub instance
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run starts the core dispatch loop for WebSocket events
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			logrus.WithField("user_id", client.UserID).Info("websocket client connected")
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
				logrus.WithField("user_id", client.UserID).Info("websocket client disconnected")
			}
			h.mu.Unlock()
		}
	}
}

// SendToUser delivers a message to every connection of one user.
func (h *Hub) SendToUser(userID string, message []byte) {
	h.fanOut(func(c *Client) bool { return c.UserID == userID }, message)
}

// SendToRole delivers a message to every connection whose user holds role.
func (h *Hub) SendToRole(role string, message []byte) {
	h.fanOut(func(c *Client) bool { return c.Role == role }, message)
}

// SendToRequest delivers a message to every client subscribed to the
// request's room.
func (h *Hub) SendToRequest(requestID string, message []byte) {
	h.fanOut(func(c *Client) bool { return c.subscribed(requestID) }, message)
}

// BroadcastAll delivers a message to every connected client.
func (h *Hub) BroadcastAll(message []byte) {
	h.fanOut(func(*Client) bool { return true }, message)
}

// ClientCount reports the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) fanOut(match func(*Client) bool, message []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		if !match(client) {
			continue
		}
		select {
		case client.Send <- message:
		default:
			// Slow consumer: drop the connection rather than block the
			// workflow's notification path.
			close(client.Send)
			delete(h.clients, client)
		}
	}
}

func (c *Client) subscribed(requestID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requests[requestID]
}

func (c *Client) setSubscription(requestID string, on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if on {
		c.requests[requestID] = true
	} else {
		delete(c.requests, requestID)
	}
}

// writePump handles writing messages from the Hub to the WebSocket connection
func (c *Client) writePump() {
	defer func() {
		_ = c.Conn.Close()
	}()
	for message := range c.Send {
		w, err := c.Conn.NextWriter(websocket.TextMessage)
		if err != nil {
			return
		}
		_, _ = w.Write(message)

		// Fast track writing queued messages
		n := len(c.Send)
		for i := 0; i < n; i++ {
			_, _ = w.Write([]byte{'\n'})
			_, _ = w.Write(<-c.Send)
		}

		if err := w.Close(); err != nil {
			return
		}
	}
	_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// readPump consumes subscribe/unsubscribe control messages and keeps the
// connection alive until the client goes away.
func (c *Client) readPump() {
	defer func() {
		c.Hub.unregister <- c
		_ = c.Conn.Close()
	}()
	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logrus.WithError(err).Warn("websocket read failed")
			}
			break
		}

		var msg subscribeMessage
		if err := json.Unmarshal(raw, &msg); err != nil || msg.RequestID == "" {
			continue
		}
		switch msg.Action {
		case "subscribe":
			c.setSubscription(msg.RequestID, true)
		case "unsubscribe":
			c.setSubscription(msg.RequestID, false)
		}
	}
}

// ServeWs handles websocket requests from the peer
func ServeWs(hub *Hub, c *gin.Context, secret []byte) {
	// 1. Authenticate via token query param
	tokenString := c.Query("token")
	if tokenString == "" {
		logrus.Warn("websocket connection rejected: missing token")
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return secret, nil
	})

	if err != nil || !token.Valid {
		logrus.WithError(err).Warn("websocket connection rejected: invalid token")
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		logrus.Warn("websocket connection rejected: invalid claims")
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	userID, _ := claims["sub"].(string)
	role, _ := claims["role"].(string)
	if userID == "" || role == "" {
		logrus.Warn("websocket connection rejected: incomplete claims")
		c.AbortWithStatus(http.StatusForbidden)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.WithError(err).Warn("websocket upgrade failed")
		return
	}
	client := &Client{
		Hub:      hub,
		Conn:     conn,
		Send:     make(chan []byte, 256),
		UserID:   userID,
		Role:     role,
		requests: make(map[string]bool),
	}
	client.Hub.register <- client

	// Allow collection of memory referenced by the caller by doing all work in new goroutines
	go client.writePump()
	go client.readPump()
}
