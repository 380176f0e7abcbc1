package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/roster-sync/internal/domain"
	"github.com/roster-sync/internal/store"
)

// Message types
const (
	MessageTypeChange      = "change"
	MessageTypeSnapshot    = "snapshot"
	MessageTypeSubscribe    = "subscribe"
	MessageTypeSubscribed   = "subscribed"
	MessageTypeUnsubscribe  = "unsubscribe"
	MessageTypeUnsubscribed = "unsubscribed"
	MessageTypeRefresh      = "refresh"
	MessageTypePing         = "ping"
	MessageTypePong         = "pong"
	MessageTypeError        = "error"
)

// Message represents a WebSocket message
type Message struct {
	Type      string    `json:"type"`
	TeamID    string    `json:"team_id,omitempty"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`

	scope store.Scope
}

// scopeFilter is the set of scopes a subscription follows; nil follows all
type scopeFilter map[store.Scope]bool

func newScopeFilter(scopes []store.Scope) scopeFilter {
	if len(scopes) == 0 {
		return nil
	}
	f := make(scopeFilter, len(scopes))
	for _, s := range scopes {
		f[s] = true
	}
	return f
}

// wants reports whether a message about scope passes the filter. Whole-team
// changes and messages without a scope always pass.
func (f scopeFilter) wants(scope store.Scope) bool {
	return f == nil || scope == "" || scope == store.ScopeAll || f[scope]
}

// Hub maintains the set of active clients and tells them when the local
// store changed. Clients re-read the scope they care about.
type Hub struct {
	// Subscribed clients and their scope filters by team ID
	clients map[string]map[*Client]scopeFilter

	// All connected clients
	allClients map[*Client]bool

	register    chan *Client
	unregister  chan *Client
	broadcast   chan *Message
	subscribe   chan *subscriptionRequest
	unsubscribe chan *subscriptionRequest

	mu     sync.RWMutex
	logger *slog.Logger

	// snapshot returns a team's current data for newly subscribed clients
	snapshot func(teamID string) (domain.TeamData, bool)

	// Context for shutdown
	ctx    context.Context
	cancel context.CancelFunc
}

type subscriptionRequest struct {
	client *Client
	teamID string
	scopes []store.Scope
	done   chan struct{}
}

// NewHub creates a new Hub
func NewHub(logger *slog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:     make(map[string]map[*Client]scopeFilter),
		allClients:  make(map[*Client]bool),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		broadcast:   make(chan *Message, 256),
		subscribe:   make(chan *subscriptionRequest, 64),
		unsubscribe: make(chan *subscriptionRequest, 64),
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	h.logger.Info("WebSocket hub started")
	for {
		select {
		case <-h.ctx.Done():
			h.logger.Info("WebSocket hub stopping")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.allClients[client] = true
			h.mu.Unlock()
			h.logger.Debug("client registered", "client_id", client.id)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.allClients[client]; ok {
				delete(h.allClients, client)
				for teamID, clients := range h.clients {
					if _, ok := clients[client]; ok {
						delete(clients, client)
						if len(clients) == 0 {
							delete(h.clients, teamID)
						}
					}
				}
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Debug("client unregistered", "client_id", client.id)

		case req := <-h.subscribe:
			h.mu.Lock()
			if _, ok := h.clients[req.teamID]; !ok {
				h.clients[req.teamID] = make(map[*Client]scopeFilter)
			}
			h.clients[req.teamID][req.client] = newScopeFilter(req.scopes)
			h.mu.Unlock()
			close(req.done)
			h.logger.Debug("client subscribed", "client_id", req.client.id, "team_id", req.teamID, "scopes", req.scopes)

		case req := <-h.unsubscribe:
			h.mu.Lock()
			if clients, ok := h.clients[req.teamID]; ok {
				delete(clients, req.client)
				if len(clients) == 0 {
					delete(h.clients, req.teamID)
				}
			}
			h.mu.Unlock()
			close(req.done)
			h.logger.Debug("client unsubscribed", "client_id", req.client.id, "team_id", req.teamID)

		case message := <-h.broadcast:
			h.broadcastMessage(message)
		}
	}
}

// Stop stops the hub
func (h *Hub) Stop() {
	h.cancel()
}

// broadcastMessage sends a message to the team's subscribers, or to every
// client when it carries no team
func (h *Hub) broadcastMessage(message *Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("failed to marshal message", "error", err)
		return
	}

	targets := h.clients[message.TeamID]
	if message.TeamID == "" {
		targets = make(map[*Client]scopeFilter, len(h.allClients))
		for client := range h.allClients {
			targets[client] = nil
		}
	}
	for client, filter := range targets {
		if !filter.wants(message.scope) {
			continue
		}
		select {
		case client.send <- data:
		default:
			// Client's buffer is full, skip
			h.logger.Warn("client buffer full, skipping", "client_id", client.id)
		}
	}
}

// BroadcastChange tells subscribers of the change's team what changed
func (h *Hub) BroadcastChange(change store.Change) {
	message := &Message{
		Type:      MessageTypeChange,
		TeamID:    change.TeamID,
		Data:      change,
		Timestamp: time.Now(),
		scope:     change.Scope,
	}

	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn("broadcast channel full, dropping message")
	}
}

// Watch forwards every store change to the hub and serves new subscribers
// the store's copy of their team. It returns a function that stops
// forwarding. Call it before Run.
func (h *Hub) Watch(st *store.Store) func() {
	h.snapshot = st.Team
	return st.Subscribe(h.BroadcastChange)
}

// Register adds a client to the hub
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Subscribe adds a client to a team's updates, limited to the given scopes
// when any are named, and waits until the hub has recorded it. Subscribing
// again replaces the filter.
func (h *Hub) Subscribe(client *Client, teamID string, scopes ...store.Scope) {
	req := &subscriptionRequest{client: client, teamID: teamID, scopes: scopes, done: make(chan struct{})}
	h.subscribe <- req
	select {
	case <-req.done:
	case <-h.ctx.Done():
	}
}

// Unsubscribe removes a client from a team's updates
func (h *Hub) Unsubscribe(client *Client, teamID string) {
	req := &subscriptionRequest{client: client, teamID: teamID, done: make(chan struct{})}
	h.unsubscribe <- req
	select {
	case <-req.done:
	case <-h.ctx.Done():
	}
}

// IsSubscribed reports whether the client follows the team
func (h *Hub) IsSubscribed(client *Client, teamID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[teamID][client]
	return ok
}

// GetSubscriberCount returns the number of subscribers for a team
func (h *Hub) GetSubscriberCount(teamID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[teamID])
}

// GetTotalConnections returns the total number of connected clients
func (h *Hub) GetTotalConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.allClients)
}
