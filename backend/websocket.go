// Copyright (c) 2026 TTBT Enterprises LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package backend

import (
	"encoding/json"
	"log"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return u.Host == r.Host
	},
}

// Message types for WebSocket communication
const (
	MsgTypeJoin  = "JOIN"
	MsgTypeState = "STATE"
	MsgTypeError = "ERROR"
)

// Message represents a WebSocket message. STATE messages carry the full
// game snapshot so clients never need to replay individual actions.
type Message struct {
	Type  string          `json:"type"`
	State json.RawMessage `json:"state,omitempty"`
	Error string          `json:"error,omitempty"`
}

// Hub fans game state updates out to the clients watching one scorer's
// live session. A hub with no clients shuts itself down after an idle
// period.
type Hub struct {
	owner string

	// Registered clients.
	clients map[*wsClient]bool

	// Register requests from the clients.
	register chan *wsClient

	// Unregister requests from clients.
	unregister chan *wsClient

	// Inbound state snapshots to broadcast.
	updates chan []byte

	// Most recent snapshot, replayed to late joiners.
	last []byte

	hm *HubManager
}

func newHub(owner string, hm *HubManager) *Hub {
	return &Hub{
		owner:      owner,
		clients:    make(map[*wsClient]bool),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		updates:    make(chan []byte, 64),
		hm:         hm,
	}
}

func (h *Hub) run() {
	idleTimer := time.NewTicker(5 * time.Minute)
	defer idleTimer.Stop()

	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
			if h.last != nil {
				client.sendJSON(Message{Type: MsgTypeState, State: h.last})
			}
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
		case data := <-h.updates:
			h.last = data
			h.broadcast(Message{Type: MsgTypeState, State: data})
		case <-idleTimer.C:
			if len(h.clients) == 0 {
				h.hm.RemoveHub(h.owner)
				return
			}
		}
	}
}

func (h *Hub) broadcast(msg Message) {
	for client := range h.clients {
		select {
		case client.send <- msg:
		default:
			close(client.send)
			delete(h.clients, client)
		}
	}
}

// HubManager manages hubs keyed by session owner.
type HubManager struct {
	hubs map[string]*Hub
	mu   sync.Mutex
}

func NewHubManager() *HubManager {
	return &HubManager{
		hubs: make(map[string]*Hub),
	}
}

func (hm *HubManager) GetHub(owner string) *Hub {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	if hub, ok := hm.hubs[owner]; ok {
		return hub
	}

	hub := newHub(owner, hm)
	hm.hubs[owner] = hub
	go hub.run()
	return hub
}

func (hm *HubManager) RemoveHub(owner string) {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	delete(hm.hubs, owner)
}

func (hm *HubManager) Clear() {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	hm.hubs = make(map[string]*Hub)
}

// BroadcastState pushes a game snapshot to the owner's hub, if one is
// running. With no hub there is no one watching and the update is
// dropped.
func (hm *HubManager) BroadcastState(owner string, data []byte) {
	hm.mu.Lock()
	hub, ok := hm.hubs[owner]
	hm.mu.Unlock()
	if !ok {
		return
	}

	select {
	case hub.updates <- data:
	default:
		log.Printf("Warning: Hub channel full, dropping state update for %s", maskEmail(owner))
	}
}

// wsClient is a middleman between the websocket connection and the hub.
type wsClient struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	send chan Message

	userId string
}

// readPump pumps messages from the websocket connection to the hub.
func (c *wsClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		var msg Message
		err := c.conn.ReadJSON(&msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("error: %v", err)
			}
			break
		}

		switch msg.Type {
		case MsgTypeJoin:
			// Registration already delivered the latest state.
		case "PING":
			c.sendJSON(Message{Type: "PONG"})
		default:
			log.Printf("Unknown message type: %s", msg.Type)
			c.sendJSON(Message{Type: MsgTypeError, Error: "Unknown message type"})
		}
	}
}

// writePump pumps messages from the hub to the websocket connection.
func (c *wsClient) writePump() {
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
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteJSON(message); err != nil {
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

func (c *wsClient) sendJSON(msg Message) {
	select {
	case c.send <- msg:
	default:
		// Channel full, the client will be dropped on the next broadcast.
	}
}

// ServeWS handles websocket requests from the peer. Clients watch the
// authenticated user's own live session.
func ServeWS(hm *HubManager, w http.ResponseWriter, r *http.Request) {
	userId := getUserID(r)
	if userId == "" || !isValidEmail(userId) {
		http.Error(w, "Forbidden: Invalid User ID", http.StatusForbidden)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println(err)
		return
	}

	hub := hm.GetHub(userId)
	client := &wsClient{hub: hub, conn: conn, send: make(chan Message, 256), userId: userId}
	client.hub.register <- client

	go client.writePump()
	go client.readPump()
}
