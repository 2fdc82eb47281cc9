package stream

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"stockalert_backend/services/quote"
	"stockalert_backend/services/tracker"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	maxClients    = 100
	writeTimeout  = 10 * time.Second
	pongTimeout   = 60 * time.Second
	pingInterval  = 30 * time.Second
	sendQueueSize = 64
)

// Message is one frame broadcast to connected clients
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
	Time string      `json:"time"`
}

type readingData struct {
	Symbol        string  `json:"symbol"`
	CurrentPrice  float64 `json:"current_price"`
	PrevClose     float64 `json:"prev_close"`
	PercentChange float64 `json:"percent_change"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub broadcasts tick readings and dispatched alerts to websocket clients
type Hub struct {
	mu         sync.RWMutex
	clients    map[*client]bool
	broadcast  chan Message
	register   chan *client
	unregister chan *client
	stopChan   chan struct{}
	upgrader   websocket.Upgrader
}

// NewHub creates a hub; call Run in a goroutine to start it
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan Message, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		stopChan:   make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Run processes register/unregister/broadcast events until Stop is called
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			if len(h.clients) >= maxClients {
				h.mu.Unlock()
				c.conn.Close()
				continue
			}
			h.clients[c] = true
			h.mu.Unlock()

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			data, err := json.Marshal(msg)
			if err != nil {
				log.Printf("Failed to encode broadcast message: %v", err)
				continue
			}
			h.mu.RLock()
			for c := range h.clients {
				select {
				case c.send <- data:
				default:
					// Slow client, drop the frame
				}
			}
			h.mu.RUnlock()

		case <-h.stopChan:
			h.mu.Lock()
			for c := range h.clients {
				c.conn.Close()
			}
			h.clients = make(map[*client]bool)
			h.mu.Unlock()
			return
		}
	}
}

// Stop shuts the hub down and closes all client connections
func (h *Hub) Stop() {
	close(h.stopChan)
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// BroadcastReading publishes one tick reading
func (h *Hub) BroadcastReading(symbol string, q quote.Quote) {
	h.publish(Message{
		Type: "reading",
		Data: readingData{
			Symbol:        symbol,
			CurrentPrice:  q.Current,
			PrevClose:     q.PrevClose,
			PercentChange: q.PercentChange,
		},
		Time: time.Now().Format(time.RFC3339),
	})
}

// BroadcastAlert publishes one dispatched alert
func (h *Hub) BroadcastAlert(alert tracker.Alert) {
	h.publish(Message{
		Type: "alert",
		Data: alert,
		Time: time.Now().Format(time.RFC3339),
	})
}

func (h *Hub) publish(msg Message) {
	select {
	case h.broadcast <- msg:
	default:
		log.Println("Broadcast channel full, dropping message")
	}
}

// ServeWS upgrades an HTTP request to a websocket subscription
func (h *Hub) ServeWS(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	cl := &client{
		conn: conn,
		send: make(chan []byte, sendQueueSize),
	}
	h.register <- cl

	go cl.writePump()
	go cl.readPump(h)
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *client) readPump(h *Hub) {
	defer func() {
		h.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
