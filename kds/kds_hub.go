package kds

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/innerchild2401/qr-menu-sub004/models"
	"github.com/innerchild2401/qr-menu-sub004/utils"
)

// Event types
const (
	EventOrderUpdate = "order_update"
	EventTableUpdate = "table_update"
)

type Message struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// Conn is the part of *websocket.Conn the hub writes to.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

const (
	// writeWait bounds a single frame write to a staff screen.
	writeWait = 10 * time.Second
	// sendBuffer is how many frames a client may fall behind before it is dropped.
	sendBuffer = 32
)

type client struct {
	conn Conn
	role string
	send chan []byte
}

// Publisher forwards an encoded message to the other service instances.
type Publisher interface {
	Publish(ctx context.Context, payload []byte) error
}

// Hub fans staff updates out to every connected staff screen (chef, staff,
// admin). It satisfies services.Notifier.
type Hub struct {
	clients map[Conn]*client
	mutex   sync.Mutex
	relay   Publisher
}

func NewHub() *Hub {
	return &Hub{clients: make(map[Conn]*client)}
}

// SetRelay makes every local broadcast also reach other instances.
func (h *Hub) SetRelay(p Publisher) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.relay = p
}

// Register adds a staff screen and starts its writer.
func (h *Hub) Register(conn Conn, role string) {
	c := &client{conn: conn, role: role, send: make(chan []byte, sendBuffer)}
	h.mutex.Lock()
	h.clients[conn] = c
	h.mutex.Unlock()
	go h.writePump(c)
}

func (h *Hub) Unregister(conn Conn) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if c, ok := h.clients[conn]; ok {
		h.drop(c)
	}
}

// drop must be called with the mutex held.
func (h *Hub) drop(c *client) {
	delete(h.clients, c.conn)
	close(c.send)
	c.conn.Close()
}

// writePump is the only goroutine writing to a client's connection.
func (h *Hub) writePump(c *client) {
	for data := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			utils.InfoLogger.WithFields(logrus.Fields{"role": c.role}).
				Warnf("Dropping staff client after failed write: %v", err)
			h.Unregister(c.conn)
			return
		}
	}
}

func (h *Hub) ClientCount() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return len(h.clients)
}

func (h *Hub) NotifyOrder(order *models.Order) {
	h.Broadcast(Message{Event: EventOrderUpdate, Data: order})
}

func (h *Hub) NotifyTable(table *models.Table) {
	h.Broadcast(Message{Event: EventTableUpdate, Data: table})
}

// Broadcast sends msg to local clients and, when a relay is set, to the
// other instances.
func (h *Hub) Broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		utils.ErrorLogger.Errorf("Error marshaling %s message: %v", msg.Event, err)
		return
	}
	h.deliver(data)

	h.mutex.Lock()
	relay := h.relay
	h.mutex.Unlock()
	if relay == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := relay.Publish(ctx, data); err != nil {
		utils.ErrorLogger.WithField("event", msg.Event).Errorf("Error relaying message: %v", err)
	}
}

// deliver queues an encoded message for every client without waiting on
// any socket. A client whose queue is full is dropped.
func (h *Hub) deliver(data []byte) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	for _, c := range h.clients {
		select {
		case c.send <- data:
		default:
			utils.InfoLogger.WithFields(logrus.Fields{"role": c.role}).
				Warn("Dropping staff client that stopped reading")
			h.drop(c)
		}
	}
	utils.InfoLogger.Debugf("Broadcast %d bytes to %d clients", len(data), len(h.clients))
}
