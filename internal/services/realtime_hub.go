package services

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"fleetfix/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// RealtimeMessage is one frame pushed to connected dashboard clients.
type RealtimeMessage struct {
	Type      string      `json:"type"` // rule_firing, notification, sweep_result
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

type realtimeClient struct {
	id   string
	conn *websocket.Conn
	send chan RealtimeMessage
	hub  *RealtimeHub
}

// RealtimeHub fans automation events out to operator dashboards over
// websockets. Read-only from the client side; inbound frames beyond
// ping/pong are ignored.
type RealtimeHub struct {
	clients    map[string]*realtimeClient
	broadcast  chan RealtimeMessage
	register   chan *realtimeClient
	unregister chan *realtimeClient
	mutex      sync.RWMutex
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 生产环境需要验证源
	},
}

func NewRealtimeHub() *RealtimeHub {
	return &RealtimeHub{
		clients:    make(map[string]*realtimeClient),
		broadcast:  make(chan RealtimeMessage, 64),
		register:   make(chan *realtimeClient),
		unregister: make(chan *realtimeClient),
	}
}

func (h *RealtimeHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client.id] = client
			h.mutex.Unlock()
			logrus.Infof("Dashboard client %s connected", client.id)

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client.id]; ok {
				delete(h.clients, client.id)
				close(client.send)
				logrus.Infof("Dashboard client %s disconnected", client.id)
			}
			h.mutex.Unlock()

		case message := <-h.broadcast:
			h.mutex.Lock()
			for id, client := range h.clients {
				select {
				case client.send <- message:
				default:
					close(client.send)
					delete(h.clients, id)
				}
			}
			h.mutex.Unlock()
		}
	}
}

// BroadcastFiring pushes a rule firing's audit entry to all dashboards.
func (h *RealtimeHub) BroadcastFiring(entry *models.RuleExecutionLog) {
	h.send(RealtimeMessage{Type: "rule_firing", Data: entry, Timestamp: time.Now()})
}

// BroadcastNotification pushes an enqueued notification.
func (h *RealtimeHub) BroadcastNotification(n *models.Notification) {
	h.send(RealtimeMessage{Type: "notification", Data: n, Timestamp: time.Now()})
}

// BroadcastSweepResult pushes a finished sweep's aggregate.
func (h *RealtimeHub) BroadcastSweepResult(result *SweepResult) {
	h.send(RealtimeMessage{Type: "sweep_result", Data: result, Timestamp: time.Now()})
}

// send never blocks a caller; frames are dropped when the broadcast buffer
// is full.
func (h *RealtimeHub) send(msg RealtimeMessage) {
	select {
	case h.broadcast <- msg:
	default:
		logrus.Warn("realtime: broadcast buffer full, dropping frame")
	}
}

// GetClientCount 当前连接数
func (h *RealtimeHub) GetClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// HandleWebSocket upgrades a dashboard connection.
func (h *RealtimeHub) HandleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.Error("WebSocket upgrade failed:", err)
		return
	}

	client := &realtimeClient{
		id:   fmt.Sprintf("client_%d", time.Now().UnixNano()),
		conn: conn,
		send: make(chan RealtimeMessage, 256),
		hub:  h,
	}

	h.register <- client

	go client.writePump()
	go client.readPump()
}

func (c *realtimeClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logrus.Errorf("WebSocket error: %v", err)
			}
			break
		}
	}
}

func (c *realtimeClient) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
