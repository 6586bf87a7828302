package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/PrinceCharming0115/cctp-evm-bridge/internal/dispatcher"
	"github.com/PrinceCharming0115/cctp-evm-bridge/internal/metrics"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	sendBuffer = 64
)

// Message is what stream clients receive
type Message struct {
	Type      string      `json:"type"` // settlement | fee_withdrawal | connected
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

type client struct {
	id     string
	caller common.Address // zero: every settlement
	send   chan []byte
}

// Hub fans settlements out to websocket clients. Slow clients lose messages
// rather than block the dispatcher.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*client

	// A peer that sends nothing, not even a pong, for pongWait is dropped.
	pongWait   time.Duration
	pingPeriod time.Duration
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]*client),
		pongWait:   pongWait,
		pingPeriod: pongWait * 9 / 10,
	}
}

func (h *Hub) register(caller common.Address) *client {
	c := &client{id: uuid.NewString(), caller: caller, send: make(chan []byte, sendBuffer)}
	h.mu.Lock()
	h.clients[c.id] = c
	n := len(h.clients)
	h.mu.Unlock()
	metrics.WebSocketClients.Set(float64(n))
	return c
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	delete(h.clients, c.id)
	n := len(h.clients)
	h.mu.Unlock()
	metrics.WebSocketClients.Set(float64(n))
}

// Clients is the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Emit sends s to every client without a filter and to clients filtering on
// its caller.
func (h *Hub) Emit(_ context.Context, s *dispatcher.Settlement) error {
	return h.broadcast(Message{Type: "settlement", Data: s, Timestamp: time.Now()}, func(c *client) bool {
		return c.caller == (common.Address{}) || c.caller == s.Caller
	})
}

// RecordWithdrawal sends w to unfiltered clients.
func (h *Hub) RecordWithdrawal(_ context.Context, w *dispatcher.FeeWithdrawal) error {
	return h.broadcast(Message{Type: "fee_withdrawal", Data: w, Timestamp: time.Now()}, func(c *client) bool {
		return c.caller == (common.Address{})
	})
}

func (h *Hub) broadcast(msg Message, want func(*client) bool) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		if !want(c) {
			continue
		}
		select {
		case c.send <- data:
		default:
			logrus.Warnf("⚠️ [WebSocket] Dropping %s for slow client %s", msg.Type, c.id)
		}
	}
	return nil
}

// Serve runs the connection until the peer goes away or ctx ends. All writes
// happen on this goroutine.
func (h *Hub) Serve(ctx context.Context, conn *websocket.Conn, caller common.Address) {
	c := h.register(caller)
	defer h.unregister(c)
	defer conn.Close()

	logrus.Infof("📡 WebSocket client connected: %s (caller filter %s)", c.id, caller.Hex())

	conn.SetReadDeadline(time.Now().Add(h.pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.pongWait))
	})

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	hello, _ := json.Marshal(Message{Type: "connected", Data: map[string]string{"client_id": c.id}, Timestamp: time.Now()})
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, hello); err != nil {
		return
	}

	ping := time.NewTicker(h.pingPeriod)
	defer ping.Stop()
	for {
		select {
		case data := <-c.send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				logrus.Debugf("[WebSocket] Write error for client %s: %v", c.id, err)
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-readDone:
			logrus.Infof("📖 WebSocket client %s disconnected", c.id)
			return
		case <-ctx.Done():
			return
		}
	}
}
