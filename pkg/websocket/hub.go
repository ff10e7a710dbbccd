package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"ridechat/internal/metrics"
	"ridechat/pkg/logger"
)

// Envelope is the wire frame for every event in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outbound struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// EventHandler receives decoded inbound events and connection teardown.
// HandleEvent is called sequentially per connection. HandleDisconnect is
// called exactly once per registered connection.
type EventHandler interface {
	HandleEvent(client *Client, event string, data json.RawMessage)
	HandleDisconnect(client *Client)
}

// Hub tracks open connections and named groups of connections. All methods
// are safe for concurrent use.
type Hub struct {
	clients    map[string]*Client
	groups     map[string]map[string]*Client
	unregister chan *Client
	done       chan struct{}
	handler    EventHandler
	logger     *logger.Logger
	mutex      sync.RWMutex
}

func NewHub(log *logger.Logger) *Hub {
	if log == nil {
		log = logger.NewDiscard()
	}
	return &Hub{
		clients:    make(map[string]*Client),
		groups:     make(map[string]map[string]*Client),
		unregister: make(chan *Client, 64),
		done:       make(chan struct{}),
		logger:     log.WithField("component", "websocket_hub"),
	}
}

// SetHandler installs the event router. Must be called before Run.
func (h *Hub) SetHandler(handler EventHandler) {
	h.handler = handler
}

// Run processes unregistrations until stop is closed.
func (h *Hub) Run(stop <-chan struct{}) {
	for {
		select {
		case client := <-h.unregister:
			h.unregisterClient(client)
		case <-stop:
			close(h.done)
			h.closeAll()
			return
		}
	}
}

// Register makes client addressable. It must complete before the client's
// read loop starts so inbound events always see a connected client.
func (h *Hub) Register(client *Client) {
	h.mutex.Lock()
	h.clients[client.ID] = client
	count := len(h.clients)
	h.mutex.Unlock()

	metrics.ConnectionsActive.Inc()
	h.logger.WithConnectionID(client.ID).WithUserID(client.UserID).
		WithField("connections", count).Debug("Client registered")
}

// release hands a finished client to Run. After Run has stopped there is
// nobody to receive, so the client is dropped.
func (h *Hub) release(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) unregisterClient(client *Client) {
	h.mutex.Lock()
	current, ok := h.clients[client.ID]
	if !ok || current != client {
		h.mutex.Unlock()
		return
	}
	h.removeLocked(client)
	h.mutex.Unlock()

	metrics.ConnectionsActive.Dec()
	h.logger.WithConnectionID(client.ID).Debug("Client unregistered")

	if h.handler != nil {
		h.handler.HandleDisconnect(client)
	}
}

func (h *Hub) removeLocked(client *Client) {
	delete(h.clients, client.ID)
	close(client.send)

	for group := range client.groups {
		if members, ok := h.groups[group]; ok {
			delete(members, client.ID)
			if len(members) == 0 {
				delete(h.groups, group)
			}
		}
	}
	client.groups = nil
}

func (h *Hub) closeAll() {
	h.mutex.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mutex.RUnlock()

	for _, c := range clients {
		c.conn.Close()
	}
}

// IsConnected reports whether connID is registered and not yet torn down.
func (h *Hub) IsConnected(connID string) bool {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	_, ok := h.clients[connID]
	return ok
}

// Join adds connID to group. Unknown connections are ignored.
func (h *Hub) Join(connID, group string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	client, ok := h.clients[connID]
	if !ok {
		return
	}
	if h.groups[group] == nil {
		h.groups[group] = make(map[string]*Client)
	}
	h.groups[group][connID] = client
	client.groups[group] = struct{}{}
}

// Leave removes connID from group.
func (h *Hub) Leave(connID, group string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if members, ok := h.groups[group]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(h.groups, group)
		}
	}
	if client, ok := h.clients[connID]; ok {
		delete(client.groups, group)
	}
}

// GroupSize returns the number of connections in group.
func (h *Hub) GroupSize(group string) int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.groups[group])
}

// SendTo delivers one event to a single connection.
func (h *Hub) SendTo(connID, event string, payload interface{}) {
	data, err := encode(event, payload)
	if err != nil {
		h.logger.WithError(err).WithField("event", event).Error("Failed to encode event")
		return
	}

	h.mutex.RLock()
	client, ok := h.clients[connID]
	slow := ok && !client.enqueue(data)
	h.mutex.RUnlock()

	if slow {
		h.dropSlow([]*Client{client})
	}
}

// Broadcast delivers one event to every connection in group except
// exceptConnID (empty for none).
func (h *Hub) Broadcast(group, event string, payload interface{}, exceptConnID string) {
	data, err := encode(event, payload)
	if err != nil {
		h.logger.WithError(err).WithField("event", event).Error("Failed to encode event")
		return
	}

	var slow []*Client
	h.mutex.RLock()
	for id, client := range h.groups[group] {
		if id == exceptConnID {
			continue
		}
		if !client.enqueue(data) {
			slow = append(slow, client)
		}
	}
	h.mutex.RUnlock()

	h.dropSlow(slow)
}

// dropSlow disconnects clients whose send buffer is full.
func (h *Hub) dropSlow(clients []*Client) {
	for _, c := range clients {
		h.logger.WithConnectionID(c.ID).Warn("Send buffer full, disconnecting client")
		c.conn.Close()
	}
}

func encode(event string, payload interface{}) ([]byte, error) {
	return json.Marshal(outbound{Event: event, Data: payload})
}

func getCurrentTimestamp() time.Time {
	return time.Now().UTC()
}
