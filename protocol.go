package main

import (
	"encoding/json"

	"github.com/vmihailenco/msgpack/v5"
)

// Client -> Server message types
const (
	MsgList   = "list"
	MsgCreate = "create"
	MsgJoin   = "join"
	MsgMove   = "move"
	MsgSplit  = "split"
	MsgLeave  = "leave"
)

// Server -> Client message types
const (
	MsgRooms   = "rooms"
	MsgCreated = "created"
	MsgWelcome = "welcome"
	MsgError   = "error"
)

// Envelope wraps all outgoing JSON messages with a type field
type Envelope struct {
	T    string      `json:"t"`
	Data interface{} `json:"d,omitempty"`
}

// InEnvelope is used for incoming messages; D is decoded per type
type InEnvelope struct {
	T string          `json:"t"`
	D json.RawMessage `json:"d,omitempty"`
}

// JoinMsg is sent when a player wants to enter a room
type JoinMsg struct {
	Room  string `json:"room" jsonschema:"required,description=Room id returned by create or list"`
	Name  string `json:"name,omitempty" jsonschema:"maxLength=16"`
	Token string `json:"token,omitempty" jsonschema:"description=Optional HS256 join ticket issued by the account backend"`
}

// CreateMsg asks the server to open a new room
type CreateMsg struct {
	Name string `json:"name,omitempty" jsonschema:"description=Room display name,maxLength=30"`
}

// SplitMsg carries no payload beyond the connection identity
type SplitMsg struct{}

// WelcomeMsg is sent to a player when they join
type WelcomeMsg struct {
	ID        string  `json:"id"`
	Room      string  `json:"room"`
	WorldSize float64 `json:"world"`
	TickRate  int     `json:"tick"`
}

// ErrorMsg sends error to client
type ErrorMsg struct {
	Msg string `json:"msg"`
}

// RoomInfo is used in the room list
type RoomInfo struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Players int    `json:"players"`
	Max     int    `json:"max"`
}

// CellState is published per cell
type CellState struct {
	ID     uint32  `json:"id" msgpack:"id"`
	Owner  string  `json:"o" msgpack:"o"`
	Name   string  `json:"n" msgpack:"n"`
	X      float64 `json:"x" msgpack:"x"`
	Y      float64 `json:"y" msgpack:"y"`
	VX     float64 `json:"vx" msgpack:"vx"`
	VY     float64 `json:"vy" msgpack:"vy"`
	Mass   float64 `json:"m" msgpack:"m"`
	Radius float64 `json:"r" msgpack:"r"`
	Color  string  `json:"c" msgpack:"c"`
	Score  int     `json:"sc" msgpack:"sc"`
	Seq    int64   `json:"seq" msgpack:"seq"`
	Split  bool    `json:"sp,omitempty" msgpack:"sp,omitempty"`
}

// CoinState is published per coin
type CoinState struct {
	ID     uint32  `json:"id" msgpack:"id"`
	X      float64 `json:"x" msgpack:"x"`
	Y      float64 `json:"y" msgpack:"y"`
	Value  int     `json:"v" msgpack:"v"`
	Radius float64 `json:"r" msgpack:"r"`
	Color  string  `json:"c" msgpack:"c"`
}

// VirusState is published per virus
type VirusState struct {
	ID     uint32  `json:"id" msgpack:"id"`
	X      float64 `json:"x" msgpack:"x"`
	Y      float64 `json:"y" msgpack:"y"`
	Radius float64 `json:"r" msgpack:"r"`
	Color  string  `json:"c" msgpack:"c"`
}

// LeaderEntry is one row of the in-room leaderboard
type LeaderEntry struct {
	Owner string  `json:"o" msgpack:"o"`
	Name  string  `json:"n" msgpack:"n"`
	Mass  float64 `json:"m" msgpack:"m"`
}

// Snapshot is the read-only aggregate published after each tick
type Snapshot struct {
	Room        string                `json:"room" msgpack:"room"`
	Players     map[uint32]CellState  `json:"p" msgpack:"p"`
	Coins       map[uint32]CoinState  `json:"k" msgpack:"k"`
	Viruses     map[uint32]VirusState `json:"v" msgpack:"v"`
	WorldSize   float64               `json:"w" msgpack:"w"`
	Timestamp   int64                 `json:"ts" msgpack:"ts"`
	Tick        uint64                `json:"tick" msgpack:"tick"`
	Leaderboard []LeaderEntry         `json:"lb" msgpack:"lb"`
}

// EncodeSnapshot serialises a snapshot for a binary websocket frame
func EncodeSnapshot(s *Snapshot) ([]byte, error) {
	return msgpack.Marshal(s)
}

// DecodeSnapshot is the inverse of EncodeSnapshot
func DecodeSnapshot(b []byte) (*Snapshot, error) {
	var s Snapshot
	if err := msgpack.Unmarshal(b, &s); err != nil {
		return nil, err
	}
	return &s, nil
}
