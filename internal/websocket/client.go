package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/roster-sync/internal/store"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// UI clients run on the same device
		return true
	},
}

// Client is one UI connection. It follows any number of teams, each
// optionally narrowed to the scopes the screen displays.
type Client struct {
	id     string
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	logger *slog.Logger
}

// ClientMessage is a request from the UI. Scopes narrows a subscribe to
// changes touching those parts of the team; empty means every change.
type ClientMessage struct {
	Type   string        `json:"type"`
	TeamID string        `json:"team_id,omitempty"`
	Scopes []store.Scope `json:"scopes,omitempty"`
}

// NewClient creates a new WebSocket client
func NewClient(hub *Hub, conn *websocket.Conn, logger *slog.Logger) *Client {
	id := uuid.NewString()
	return &Client{
		id:     id,
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		logger: logger.With("client_id", id),
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("websocket read failed", "error", err)
			}
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.sendError("", "invalid message format")
			continue
		}
		if err := c.handle(msg); err != nil {
			c.sendError(msg.TeamID, err.Error())
		}
	}
}

func (c *Client) handle(msg ClientMessage) error {
	switch msg.Type {
	case MessageTypeSubscribe:
		if msg.TeamID == "" {
			return fmt.Errorf("team_id required for %s", msg.Type)
		}
		for _, scope := range msg.Scopes {
			if !scope.Known() {
				return fmt.Errorf("unknown scope %q", scope)
			}
		}
		c.hub.Subscribe(c, msg.TeamID, msg.Scopes...)
		c.reply(MessageTypeSubscribed, msg.TeamID, msg.Scopes)
		c.sendSnapshot(msg.TeamID)

	case MessageTypeUnsubscribe:
		if msg.TeamID == "" {
			return fmt.Errorf("team_id required for %s", msg.Type)
		}
		c.hub.Unsubscribe(c, msg.TeamID)
		c.reply(MessageTypeUnsubscribed, msg.TeamID, nil)

	// A UI that saw a ScopeAll change or dropped messages asks for the
	// whole team again.
	case MessageTypeRefresh:
		if !c.hub.IsSubscribed(c, msg.TeamID) {
			return fmt.Errorf("not subscribed to team %q", msg.TeamID)
		}
		c.sendSnapshot(msg.TeamID)

	case MessageTypePing:
		c.reply(MessageTypePong, "", nil)

	default:
		c.logger.Debug("ignoring client message", "type", msg.Type)
	}
	return nil
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case first, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.writeBatch(first); err != nil {
				c.logger.Debug("websocket write failed", "error", err)
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

// writeBatch writes first and everything already queued behind it as one
// newline-separated text frame
func (c *Client) writeBatch(first []byte) error {
	w, err := c.conn.NextWriter(websocket.TextMessage)
	if err != nil {
		return err
	}
	w.Write(first)
	for i, n := 0, len(c.send); i < n; i++ {
		w.Write([]byte{'\n'})
		w.Write(<-c.send)
	}
	return w.Close()
}

func (c *Client) sendError(teamID, reason string) {
	c.reply(MessageTypeError, teamID, map[string]string{"error": reason})
}

// sendSnapshot sends the team's current data so the client starts from a
// known state before change notifications arrive
func (c *Client) sendSnapshot(teamID string) {
	if c.hub.snapshot == nil {
		return
	}
	data, ok := c.hub.snapshot(teamID)
	if !ok {
		return
	}
	c.reply(MessageTypeSnapshot, teamID, data)
}

func (c *Client) reply(typ, teamID string, data any) {
	msg := Message{Type: typ, TeamID: teamID, Data: data, Timestamp: time.Now()}
	raw, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error("failed to marshal message", "type", typ, "error", err)
		return
	}
	select {
	case c.send <- raw:
	default:
		c.logger.Warn("client buffer full, dropping message", "type", typ)
	}
}

// ServeWs upgrades the request and starts the client's pumps
func ServeWs(hub *Hub, logger *slog.Logger, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := NewClient(hub, conn, logger)
	hub.Register(client)
	go client.writePump()
	go client.readPump()

	client.logger.Debug("websocket connected")
}
