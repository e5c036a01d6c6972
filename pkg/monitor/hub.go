// Websocket event mirror
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package monitor

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"stdio-shepherd/pkg/log"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 256
)

// Hub fans protocol rows out to websocket clients. Slow clients lose
// rows rather than stall the output stream.
type Hub struct {
	log    *log.Logger
	nextID int64

	mu      sync.Mutex
	clients map[int64]*client
	closed  bool
}

// NewHub creates an empty hub.
func NewHub(logger *log.Logger) *Hub {
	return &Hub{log: logger, clients: make(map[int64]*client)}
}

// Broadcast queues a row for every client.
func (h *Hub) Broadcast(fields []string) {
	row := append([]string(nil), fields...)
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.clients {
		c.send(row)
	}
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[int64]*client)
	h.closed = true
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
}

// serve runs a client until it disconnects.
func (h *Hub) serve(conn *websocket.Conn) {
	c := &client{
		id:     atomic.AddInt64(&h.nextID, 1),
		conn:   conn,
		hub:    h,
		sendCh: make(chan []string, sendBuffer),
		done:   make(chan struct{}),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c.id] = c
	h.mu.Unlock()
	h.log.WithField("client", c.id).Debug("event client connected")

	go c.writePump()
	c.readPump()
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	delete(h.clients, c.id)
	h.mu.Unlock()
	h.log.WithField("client", c.id).Debug("event client disconnected")
}

type client struct {
	id     int64
	conn   *websocket.Conn
	hub    *Hub
	sendCh chan []string
	done   chan struct{}
	once   sync.Once
}

func (c *client) send(row []string) {
	select {
	case c.sendCh <- row:
	case <-c.done:
	default:
		c.hub.log.WithField("client", c.id).Warn("dropping event row, client too slow")
	}
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// readPump discards client messages and notices disconnects.
func (c *client) readPump() {
	defer func() {
		c.hub.remove(c)
		c.close()
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.log.WithError(err).Debug("event client read")
			}
			return
		}
	}
}

// writePump writes queued rows as JSON arrays and keeps the connection
// alive with pings.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case row := <-c.sendCh:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(row); err != nil {
				c.hub.log.WithError(err).Debug("event client write")
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}
