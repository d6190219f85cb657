package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/yegors/aussie-atis/pkg/logger"
)

// Message types
const (
	MessageTypeATISUpdate = "atis_update" // Server pushes a changed airport
	MessageTypeSubscribe  = "subscribe"   // Client selects the airports it wants
	MessageTypeSubscribed = "subscribed"  // Server confirms a subscription
)

const (
	sendBufferSize = 256
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
)

// Message represents a WebSocket message
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`

	// Airport restricts delivery to clients subscribed to it; empty goes to everyone
	Airport string `json:"-"`
}

// SubscribeRequest is the payload of a subscribe message. An empty list
// subscribes to every airport.
type SubscribeRequest struct {
	Airports []string `json:"airports"`
}

// MessageHandler handles incoming client messages after the server has processed them
type MessageHandler interface {
	HandleMessage(client *Client, messageType string, data json.RawMessage) error
}

// Client represents a WebSocket client
type Client struct {
	conn      *websocket.Conn
	send      chan *Message
	server    *Server
	mu        sync.Mutex
	closed    bool
	closeChan chan struct{}
	airports  map[string]bool // nil means every airport
}

// Server is the hub that fans messages out to connected clients
type Server struct {
	clients        map[*Client]bool
	register       chan *Client
	unregister     chan *Client
	broadcast      chan *Message
	upgrader       websocket.Upgrader
	logger         *logger.Logger
	mu             sync.RWMutex
	messageHandler MessageHandler
	done           chan struct{}
	doneOnce       sync.Once
}

// NewServer creates a new WebSocket server
func NewServer(log *logger.Logger) *Server {
	return &Server{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *Message, 64),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		logger: log.Named("web-socket"),
		done:   make(chan struct{}),
	}
}

// SetMessageHandler sets the handler for incoming WebSocket messages
func (s *Server) SetMessageHandler(handler MessageHandler) {
	s.messageHandler = handler
}

// ClientCount returns the number of connected clients
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Run processes registrations and broadcasts until the context is cancelled
func (s *Server) Run(ctx context.Context) {
	s.logger.Info("Starting WebSocket server")

	for {
		select {
		case <-ctx.Done():
			s.doneOnce.Do(func() { close(s.done) })
			s.closeAll()
			s.logger.Info("WebSocket server stopped")
			return

		case client := <-s.register:
			s.mu.Lock()
			s.clients[client] = true
			clientCount := len(s.clients)
			s.mu.Unlock()
			s.logger.Debug("Client registered", logger.Int("client_count", clientCount))

		case client := <-s.unregister:
			s.mu.Lock()
			s.remove(client)
			clientCount := len(s.clients)
			s.mu.Unlock()
			s.logger.Debug("Client unregistered", logger.Int("client_count", clientCount))

		case message := <-s.broadcast:
			s.deliver(message)
		}
	}
}

// deliver sends a message to every matching client. Clients whose buffer is
// full are dropped.
func (s *Server) deliver(message *Message) {
	s.mu.RLock()
	slow := make([]*Client, 0)
	for client := range s.clients {
		if !client.Wants(message.Airport) {
			continue
		}
		if !client.SendMessage(message) {
			slow = append(slow, client)
		}
	}
	s.mu.RUnlock()

	if len(slow) > 0 {
		s.mu.Lock()
		for _, client := range slow {
			s.remove(client)
		}
		s.mu.Unlock()
		s.logger.Warn("Dropped slow WebSocket clients", logger.Int("count", len(slow)))
	}
}

// remove deletes a client and closes its send channel. The caller holds s.mu.
func (s *Server) remove(client *Client) {
	if _, ok := s.clients[client]; !ok {
		return
	}
	delete(s.clients, client)
	client.mu.Lock()
	if !client.closed {
		client.closed = true
		close(client.send)
	}
	client.mu.Unlock()
}

func (s *Server) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for client := range s.clients {
		s.remove(client)
	}
}

// HandleConnection upgrades the request and registers the client
func (s *Server) HandleConnection(w http.ResponseWriter, r *http.Request) {
	s.logger.Info("Handling new WebSocket connection request",
		logger.String("remote_addr", r.RemoteAddr),
		logger.String("user_agent", r.UserAgent()))

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection",
			logger.Error(err),
			logger.String("remote_addr", r.RemoteAddr))
		return
	}

	client := &Client{
		conn:      conn,
		send:      make(chan *Message, sendBufferSize),
		server:    s,
		closeChan: make(chan struct{}),
	}

	select {
	case s.register <- client:
	case <-s.done:
		conn.Close()
		return
	}

	go client.readPump()
	go client.writePump()
}

// Broadcast queues a message for every subscribed client
func (s *Server) Broadcast(message *Message) {
	s.logger.Debug("Broadcasting message",
		logger.String("message_type", message.Type),
		logger.String("airport", message.Airport),
		logger.Int("client_count", s.ClientCount()))

	select {
	case s.broadcast <- message:
	case <-s.done:
	}
}

// BroadcastUpdate pushes an airport update
func (s *Server) BroadcastUpdate(airport string, data any) {
	s.Broadcast(&Message{
		Type:    MessageTypeATISUpdate,
		Data:    data,
		Airport: strings.ToUpper(airport),
	})
}

// readPump pumps messages from the WebSocket connection to the hub
func (c *Client) readPump() {
	defer func() {
		select {
		case c.server.unregister <- c:
		case <-c.server.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, messageBytes, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.server.logger.Error("WebSocket read error", logger.Error(err))
			}
			return
		}

		var message struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(messageBytes, &message); err != nil {
			c.server.logger.Error("Failed to parse WebSocket message", logger.Error(err))
			continue
		}

		c.server.logger.Debug("Received WebSocket message",
			logger.String("type", message.Type),
			logger.String("client", c.conn.RemoteAddr().String()))

		if message.Type == MessageTypeSubscribe {
			c.handleSubscribe(message.Data)
		}

		if c.server.messageHandler != nil {
			if err := c.server.messageHandler.HandleMessage(c, message.Type, message.Data); err != nil {
				c.server.logger.Error("Failed to handle WebSocket message",
					logger.Error(err),
					logger.String("type", message.Type))
			}
		}
	}
}

func (c *Client) handleSubscribe(data json.RawMessage) {
	var req SubscribeRequest
	if len(data) > 0 {
		if err := json.Unmarshal(data, &req); err != nil {
			c.server.logger.Warn("Invalid subscribe request", logger.Error(err))
			return
		}
	}

	c.Subscribe(req.Airports)
	c.SendMessage(&Message{
		Type: MessageTypeSubscribed,
		Data: SubscribeRequest{Airports: c.Subscriptions()},
	})
}

// writePump pumps messages from the hub to the WebSocket connection
func (c *Client) writePump() {
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

			data, err := json.Marshal(message)
			if err != nil {
				c.server.logger.Error("Failed to marshal message", logger.Error(err))
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.closeChan:
			return
		}
	}
}

// Close closes the client connection
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	c.closed = true
	close(c.closeChan)
	c.conn.Close()
}

// SendMessage queues a message for this client without blocking.
// It returns false when the client is closed or its buffer is full.
func (c *Client) SendMessage(message *Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}

	select {
	case c.send <- message:
		return true
	default:
		return false
	}
}

// Subscribe replaces the client's airport filter. An empty list selects every airport.
func (c *Client) Subscribe(airports []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(airports) == 0 {
		c.airports = nil
		return
	}
	c.airports = make(map[string]bool, len(airports))
	for _, a := range airports {
		c.airports[strings.ToUpper(strings.TrimSpace(a))] = true
	}
}

// Subscriptions returns the subscribed airports in code order, or nil when subscribed to all
func (c *Client) Subscriptions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.airports == nil {
		return nil
	}
	out := make([]string, 0, len(c.airports))
	for a := range c.airports {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// Wants reports whether a message for the airport should reach this client
func (c *Client) Wants(airport string) bool {
	if airport == "" {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.airports == nil || c.airports[airport]
}
