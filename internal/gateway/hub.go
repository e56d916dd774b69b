// Package gateway exposes the bot over HTTP: a REST API for state and
// control, and a WebSocket stream of activity entries and trades.
package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"cryptobot/internal/activity"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

// Hub manages WebSocket clients and fans out activity entries.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
	log     *slog.Logger
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*Client]bool),
		log:     slog.Default().With("component", "gateway"),
	}
}

// Run consumes the activity feed and broadcasts each entry until ctx
// is cancelled. Blocks.
func (h *Hub) Run(ctx context.Context, feed <-chan activity.Entry) {
	for {
		select {
		case <-ctx.Done():
			return
		case entry, ok := <-feed:
			if !ok {
				return
			}
			envelope, err := json.Marshal(map[string]interface{}{
				"type": "activity",
				"data": entry,
				"ts":   entry.TS.Format(time.RFC3339Nano),
			})
			if err != nil {
				continue
			}
			h.broadcast(envelope)
		}
	}
}

func (h *Hub) broadcast(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		select {
		case client.send <- msg:
		default:
			// client lagging, drop
		}
	}
}

// HandleWS upgrades the connection and registers the client. Recent
// history is sent first so a fresh dashboard is not blank.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request, recent []activity.Entry) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", "err", err)
		return
	}

	client := &Client{
		conn: conn,
		send: make(chan []byte, 256),
		hub:  h,
	}
	conn.EnableWriteCompression(true)

	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()
	h.log.Info("ws client connected", "total", count)

	go client.sendInitial(recent)
	go client.writePump()
	go client.readPump()
}

// enqueue delivers msg to c only while it is still registered, so a
// concurrent removeClient cannot close the channel under a send.
func (h *Hub) enqueue(c *Client, msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.clients[c] {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

// removeClient unregisters a client and closes its send channel.
func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// ClientCount returns the number of connected WebSocket clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
