package main

import (
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait         = 10 * time.Second
	pongWait          = 60 * time.Second
	pingPeriod        = (pongWait * 9) / 10
	maxMessageSize    = 4096
	sendBufSize       = 256
	maxMessagesPerSec = 90
)

// Client represents a WebSocket connection
type Client struct {
	hub        *Hub
	conn       *websocket.Conn
	send       chan []byte
	remoteAddr string
	msgCount   int
	msgResetAt time.Time
	// Set by join, cleared by leave. Only the read pump touches these
	// until unregister.
	roomID  string
	session *Session
}

// NewClient creates a new Client
func NewClient(hub *Hub, conn *websocket.Conn, remoteAddr string) *Client {
	return &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, sendBufSize),
		remoteAddr: remoteAddr,
	}
}

// ReadPump reads messages from the WebSocket connection
func (c *Client) ReadPump() {
	defer func() {
		c.hub.TrackDisconnect(c.remoteAddr)
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("ws error: %v", err)
			}
			break
		}

		// Rate limiting
		now := time.Now()
		if now.After(c.msgResetAt) {
			c.msgCount = 0
			c.msgResetAt = now.Add(time.Second)
		}
		c.msgCount++
		if c.msgCount > maxMessagesPerSec {
			log.Printf("rate limit exceeded for %s, disconnecting", c.remoteAddr)
			break
		}

		c.handleMessage(message)
	}
}

// WritePump writes messages to the WebSocket connection
func (c *Client) WritePump() {
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
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			// Check for binary marker (0xFF prefix from SendBinary)
			var err error
			if len(message) > 0 && message[0] == 0xFF {
				err = c.conn.WriteMessage(websocket.BinaryMessage, message[1:])
			} else {
				err = c.conn.WriteMessage(websocket.TextMessage, message)
			}
			if err != nil {
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

// SendJSON sends a JSON message to the client
func (c *Client) SendJSON(msg interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("marshal error: %v", err)
		return
	}
	c.SendRaw(data)
}

// SendRaw sends pre-marshaled bytes as a text message to the client
func (c *Client) SendRaw(data []byte) {
	defer func() { recover() }()
	select {
	case c.send <- data:
	default:
		// Client too slow, drop message
	}
}

// SendBinary sends a state frame as a binary WebSocket message. The 0xFF
// marker byte lets WritePump tell it apart from JSON text.
func (c *Client) SendBinary(data []byte) {
	defer func() { recover() }()
	msg := make([]byte, len(data)+1)
	msg[0] = 0xFF
	copy(msg[1:], data)
	select {
	case c.send <- msg:
	default:
	}
}

func (c *Client) sendError(msg string) {
	c.SendJSON(Envelope{T: MsgError, Data: ErrorMsg{Msg: msg}})
}

func (c *Client) closeSend() {
	close(c.send)
}

// handleMessage routes incoming messages (single-pass decode via InEnvelope)
func (c *Client) handleMessage(raw []byte) {
	var env InEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		log.Printf("unmarshal error: %v", err)
		return
	}

	switch env.T {
	case MsgList:
		c.handleList()
	case MsgCreate:
		c.handleCreate(env.D)
	case MsgJoin:
		c.handleJoin(env.D)
	case MsgMove:
		c.handleMove(env.D)
	case MsgSplit:
		c.handleSplit()
	case MsgLeave:
		c.leaveRoom()
	}
}

func (c *Client) handleList() {
	c.SendJSON(Envelope{T: MsgRooms, Data: c.hub.rooms.List()})
}

func (c *Client) handleCreate(data json.RawMessage) {
	var msg CreateMsg
	if len(data) > 0 {
		if err := json.Unmarshal(data, &msg); err != nil {
			return
		}
	}
	room := c.hub.rooms.CreateRoom(msg.Name)
	if room == nil {
		c.sendError("too many active rooms")
		return
	}
	c.SendJSON(Envelope{T: MsgCreated, Data: RoomInfo{
		ID:   room.ID,
		Name: room.Name,
		Max:  room.Config().MaxClients,
	}})
}

func (c *Client) handleJoin(data json.RawMessage) {
	var msg JoinMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	name := msg.Name
	if msg.Token != "" && c.hub.auth != nil {
		ticketName, err := c.hub.auth.Verify(msg.Token)
		if err != nil {
			log.Printf("join ticket from %s rejected: %v", c.remoteAddr, err)
			c.sendError("invalid ticket")
			return
		}
		name = ticketName
	}

	if c.session != nil && c.roomID == msg.Room {
		c.sendError("already in room")
		return
	}
	// One room per connection
	c.leaveRoom()

	sess, err := c.hub.rooms.Join(msg.Room, c, JoinOptions{Name: name})
	switch {
	case errors.Is(err, ErrRoomNotFound):
		c.sendError("room not found")
		return
	case errors.Is(err, ErrRoomFull):
		c.sendError("room full")
		return
	case err != nil:
		c.sendError("room closed")
		return
	}
	c.roomID = msg.Room
	c.session = sess

	cfg := sess.Room.Config()
	c.SendJSON(Envelope{T: MsgWelcome, Data: WelcomeMsg{
		ID:        sess.OwnerID,
		Room:      msg.Room,
		WorldSize: cfg.WorldSize,
		TickRate:  cfg.TickRate,
	}})
}

func (c *Client) handleMove(data json.RawMessage) {
	if c.session == nil {
		return
	}
	var in MoveInput
	if err := json.Unmarshal(data, &in); err != nil {
		return
	}
	c.session.Move(in)
}

func (c *Client) handleSplit() {
	if c.session == nil {
		return
	}
	c.session.Split()
}

// leaveRoom detaches the client from its room, if any
func (c *Client) leaveRoom() {
	if c.session == nil {
		return
	}
	c.hub.rooms.RemovePlayer(c.roomID, c.session.OwnerID)
	c.roomID = ""
	c.session = nil
}
