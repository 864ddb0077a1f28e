package main

import (
	"cmp"
	"context"
	"log"
	"slices"
	"sync"
	"time"
)

const (
	maxRoomNameLen = 30

	// Rooms nobody has joined are closed after idleRoomTTL
	idleRoomTTL   = 2 * time.Minute
	sweepInterval = 30 * time.Second
)

// Session is the handle a connection uses to talk to its room. Move and
// Split only touch the mailbox and are safe from any goroutine.
type Session struct {
	OwnerID string
	Room    *Room
	mailbox *Mailbox
}

// Move queues a move for the next tick
func (s *Session) Move(in MoveInput) bool {
	return s.mailbox.PostMove(in)
}

// Split queues a split for the next tick
func (s *Session) Split() {
	s.mailbox.PostSplit()
}

// RoomManager handles creation, lookup and disposal of rooms
type RoomManager struct {
	mu       sync.RWMutex
	rooms    map[string]*Room
	maxRooms int
	cfg      RoomConfig
	tuning   Tuning
	events   EventSink
}

// NewRoomManager creates a manager whose rooms share cfg and tuning
func NewRoomManager(maxRooms int, cfg RoomConfig, tuning Tuning, events EventSink) *RoomManager {
	if maxRooms <= 0 {
		maxRooms = DefaultMaxRooms
	}
	if events == nil {
		events = nopSink{}
	}
	return &RoomManager{
		rooms:    make(map[string]*Room),
		maxRooms: maxRooms,
		cfg:      cfg.normalized(),
		tuning:   tuning,
		events:   events,
	}
}

// CreateRoom opens a room and starts its loop. Returns nil if the limit is reached.
func (m *RoomManager) CreateRoom(name string) *Room {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.rooms) >= m.maxRooms {
		log.Printf("rooms: create rejected, %d open", len(m.rooms))
		return nil
	}
	if r := []rune(name); len(r) > maxRoomNameLen {
		name = string(r[:maxRoomNameLen])
	}
	if name == "" {
		name = "Arena"
	}

	id := GenerateRoomID()
	room := NewRoom(id, name, m.cfg, m.tuning, m.events)
	m.rooms[id] = room
	go room.Run()
	m.events.Track(EvtRoomCreate, id, "", "")
	log.Printf("room %s: created %q", id, name)
	return room
}

// Get returns a room by ID, or nil
func (m *RoomManager) Get(id string) *Room {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rooms[id]
}

// Count returns the number of open rooms
func (m *RoomManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms)
}

// Join admits conn into the room. A room disposed while the join was in
// flight reports ErrRoomClosed.
func (m *RoomManager) Join(roomID string, conn Conn, opts JoinOptions) (*Session, error) {
	room := m.Get(roomID)
	if room == nil {
		return nil, ErrRoomNotFound
	}
	sess, err := room.Join(conn, opts)
	if err != nil {
		return nil, err
	}
	if m.Get(roomID) != room {
		room.Leave(sess.OwnerID)
		return nil, ErrRoomClosed
	}
	return sess, nil
}

// RemovePlayer takes a player out of a room and disposes the room once empty
func (m *RoomManager) RemovePlayer(roomID, ownerID string) {
	room := m.Get(roomID)
	if room == nil {
		return
	}
	room.Leave(ownerID)

	m.mu.Lock()
	defer m.mu.Unlock()
	if room.PlayerCount() == 0 && m.rooms[roomID] == room {
		delete(m.rooms, roomID)
		room.Dispose()
		m.events.Track(EvtRoomClose, roomID, "", "")
	}
}

// sweepIdle disposes empty rooms created at least maxIdle before now.
// Rooms that had players are already closed by RemovePlayer when the last
// one leaves, so this only catches rooms that were never joined.
func (m *RoomManager) sweepIdle(now time.Time, maxIdle time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for id, room := range m.rooms {
		if room.PlayerCount() > 0 || now.Sub(room.Created) < maxIdle {
			continue
		}
		delete(m.rooms, id)
		room.Dispose()
		m.events.Track(EvtRoomClose, id, "", "")
		n++
	}
	return n
}

// RunSweeper closes idle rooms every interval until ctx is cancelled
func (m *RoomManager) RunSweeper(ctx context.Context, interval, maxIdle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := m.sweepIdle(now, maxIdle); n > 0 {
				log.Printf("rooms: closed %d idle", n)
			}
		}
	}
}

// List returns info about all open rooms, ordered by name then id
func (m *RoomManager) List() []RoomInfo {
	m.mu.RLock()
	list := make([]RoomInfo, 0, len(m.rooms))
	for _, r := range m.rooms {
		list = append(list, RoomInfo{
			ID:      r.ID,
			Name:    r.Name,
			Players: r.PlayerCount(),
			Max:     r.Config().MaxClients,
		})
	}
	m.mu.RUnlock()

	slices.SortFunc(list, func(a, b RoomInfo) int {
		if c := cmp.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return list
}

// Shutdown disposes every room and waits for their loops to exit
func (m *RoomManager) Shutdown() {
	m.mu.Lock()
	rooms := make([]*Room, 0, len(m.rooms))
	for id, r := range m.rooms {
		rooms = append(rooms, r)
		delete(m.rooms, id)
	}
	m.mu.Unlock()

	for _, r := range rooms {
		r.Dispose()
		<-r.Done()
	}
}
