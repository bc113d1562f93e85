package api

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10 // 54 seconds
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for development
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 2 * 1024 * 1024, // 2MB for H.264 frames
}

// HeaderProvider serves the cached SPS/PPS units of a device's mirror
// stream so late subscribers can start decoding without waiting for the
// next parameter set. Implemented by the device registry.
type HeaderProvider interface {
	StreamHeaders(serial string) (sps, pps []byte)
}

type Client struct {
	hub        *WebSocketHub
	conn       *websocket.Conn
	send       chan []byte // Buffered channel for binary frames
	subscribed map[string]bool
	headers    HeaderProvider
}

type WebSocketHub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
}

func NewWebSocketHub() *WebSocketHub {
	return &WebSocketHub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

func (h *WebSocketHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			log.Printf("Viewer connected (total: %d)", len(h.clients))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			log.Printf("Viewer disconnected (total: %d)", len(h.clients))
		}
	}
}

// FramePacket prefixes a mirror frame with its device serial so one
// socket can carry several devices: [serialLen:1][serial][payload].
func FramePacket(serial string, payload []byte) []byte {
	if len(serial) > 255 {
		return nil
	}
	pkt := make([]byte, 1+len(serial)+len(payload))
	pkt[0] = byte(len(serial))
	copy(pkt[1:], serial)
	copy(pkt[1+len(serial):], payload)
	return pkt
}

// BroadcastFrame sends a binary frame packet to every viewer subscribed
// to the device. Slow viewers drop their oldest queued frame rather than
// stalling the stream.
func (h *WebSocketHub) BroadcastFrame(serial string, pkt []byte) {
	if pkt == nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		if !client.subscribed[serial] && !client.subscribed["all"] {
			continue
		}
		select {
		case client.send <- pkt:
		default:
			// Channel full - drop oldest and try again (backpressure)
			select {
			case <-client.send:
			default:
			}
			select {
			case client.send <- pkt:
			default:
			}
		}
	}
}

// BroadcastJSON sends a JSON control message to all viewers.
func (h *WebSocketHub) BroadcastJSON(message interface{}) {
	messageBytes, err := json.Marshal(message)
	if err != nil {
		log.Printf("Failed to marshal message: %v", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		select {
		case client.send <- messageBytes:
		default:
		}
	}
}

func HandleWebSocket(hub *WebSocketHub, headers HeaderProvider, c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	client := &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, 64),
		subscribed: make(map[string]bool),
		headers:    headers,
	}
	client.hub.register <- client

	go client.writePump()
	go client.readPump()
}

// readPump handles incoming messages from the viewer (subscriptions)
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(1 << 20) // 1MB max message size
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		var msg struct {
			Type   string `json:"type"`
			Serial string `json:"serial"`
		}
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}

		switch msg.Type {
		case "subscribe":
			c.subscribed[msg.Serial] = true
			log.Printf("Viewer subscribed to device %s", msg.Serial)
			c.replayHeaders(msg.Serial)
		case "unsubscribe":
			delete(c.subscribed, msg.Serial)
			log.Printf("Viewer unsubscribed from device %s", msg.Serial)
		}
	}
}

// replayHeaders pushes the cached SPS/PPS to a fresh subscriber so its
// decoder can start before the next keyframe.
func (c *Client) replayHeaders(serial string) {
	if c.headers == nil {
		return
	}
	sps, pps := c.headers.StreamHeaders(serial)
	for _, nal := range [][]byte{sps, pps} {
		if nal == nil {
			continue
		}
		pkt := FramePacket(serial, nal)
		select {
		case c.send <- pkt:
		default:
			log.Printf("⚠️ Dropped cached header for %s (channel full)", serial)
		}
	}
}

// writePump handles outgoing messages to the viewer (frames + ping)
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			// JSON control messages start with '{'; everything else is a
			// binary frame packet.
			messageType := websocket.BinaryMessage
			if len(frame) > 0 && (frame[0] == '{' || frame[0] == '[') {
				messageType = websocket.TextMessage
			}
			if err := c.conn.WriteMessage(messageType, frame); err != nil {
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
