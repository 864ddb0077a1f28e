package main

import (
	"errors"
	"log"
	"math/rand/v2"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	maxNameLen  = 16
	defaultName = "Cell"
	inboxSize   = 64
)

var (
	ErrRoomFull     = errors.New("room full")
	ErrRoomClosed   = errors.New("room closed")
	ErrRoomNotFound = errors.New("room not found")
)

// Conn is the transport side of one player connection. SendBinary must not
// block the room loop.
type Conn interface {
	SendBinary(frame []byte)
}

// JoinOptions are the arbitrary join options passed through by the
// transport. Only the display name is used.
type JoinOptions struct {
	Name string
}

// Owner is one connection's control record inside a room
type Owner struct {
	ID       string
	Name     string
	Color    string
	LastSeq  int64
	Respawns int
	mailbox  *Mailbox
	conn     Conn
}

type joinCmd struct {
	conn  Conn
	opts  JoinOptions
	reply chan joinResult
}

type joinResult struct {
	session *Session
	err     error
}

type leaveCmd struct {
	ownerID string
	reply   chan struct{}
}

// Room owns one simulation. The loop goroutine started by Run is the only
// writer of the world; everything else talks to it through the inbox or a
// mailbox.
type Room struct {
	ID      string
	Name    string
	Created time.Time

	cfg    RoomConfig
	tuning Tuning
	world  *World
	grid   *SpatialGrid
	rng    *rand.Rand
	owners map[string]*Owner

	queryBuf []EntityRef

	inbox    chan any
	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	snapshot       atomic.Pointer[Snapshot]
	players        atomic.Int32
	broadcastEvery uint64
	encode         func(*Snapshot) ([]byte, error)
	events         EventSink
}

// NewRoom creates a room with populated coins and viruses. It does not
// start ticking until Run is called.
func NewRoom(id, name string, cfg RoomConfig, tuning Tuning, events EventSink) *Room {
	return newRoom(id, name, cfg, tuning, events, newRoomRand())
}

func newRoom(id, name string, cfg RoomConfig, tuning Tuning, events EventSink, rng *rand.Rand) *Room {
	cfg = cfg.normalized()
	every := uint64(cfg.TickRate / BroadcastRate)
	if every == 0 {
		every = 1
	}
	if events == nil {
		events = nopSink{}
	}
	r := &Room{
		ID:             id,
		Name:           name,
		Created:        time.Now(),
		cfg:            cfg,
		tuning:         tuning,
		world:          NewWorld(cfg.WorldSize),
		grid:           NewSpatialGrid(cfg.WorldSize, cfg.WorldSize),
		rng:            rng,
		owners:         make(map[string]*Owner),
		inbox:          make(chan any, inboxSize),
		quit:           make(chan struct{}),
		done:           make(chan struct{}),
		broadcastEvery: every,
		encode:         EncodeSnapshot,
		events:         events,
	}
	r.generateCoins()
	r.generateViruses()
	r.snapshot.Store(r.buildSnapshot())
	return r
}

// Config returns the room's fixed configuration
func (r *Room) Config() RoomConfig {
	return r.cfg
}

// PlayerCount is safe to call from any goroutine
func (r *Room) PlayerCount() int {
	return int(r.players.Load())
}

// Snapshot returns the most recently published state. Callers must treat
// it as read-only.
func (r *Room) Snapshot() *Snapshot {
	return r.snapshot.Load()
}

// Run drives the fixed-rate tick loop until Dispose is called
func (r *Room) Run() {
	defer close(r.done)

	ticker := time.NewTicker(r.cfg.TickInterval())
	defer ticker.Stop()

	for {
		select {
		case <-r.quit:
			return
		case cmd := <-r.inbox:
			r.handleCommand(cmd)
		case <-ticker.C:
			r.safeTick()
		}
	}
}

// Dispose stops the tick loop. Safe to call more than once.
func (r *Room) Dispose() {
	r.stopOnce.Do(func() {
		close(r.quit)
		log.Printf("room %s: disposed", r.ID)
	})
}

// Done is closed once the loop has exited
func (r *Room) Done() <-chan struct{} {
	return r.done
}

// Join admits a connection through the room loop
func (r *Room) Join(conn Conn, opts JoinOptions) (*Session, error) {
	reply := make(chan joinResult, 1)
	select {
	case r.inbox <- joinCmd{conn: conn, opts: opts, reply: reply}:
	case <-r.quit:
		return nil, ErrRoomClosed
	}
	select {
	case res := <-reply:
		return res.session, res.err
	case <-r.quit:
		return nil, ErrRoomClosed
	}
}

// Leave removes a connection's cells before the next tick
func (r *Room) Leave(ownerID string) {
	reply := make(chan struct{})
	select {
	case r.inbox <- leaveCmd{ownerID: ownerID, reply: reply}:
	case <-r.quit:
		return
	}
	select {
	case <-reply:
	case <-r.quit:
	}
}

func (r *Room) handleCommand(cmd any) {
	switch c := cmd.(type) {
	case joinCmd:
		s, err := r.join(c.conn, c.opts)
		c.reply <- joinResult{session: s, err: err}
	case leaveCmd:
		r.leave(c.ownerID)
		close(c.reply)
	}
}

// join allocates an owner and its starter cell. Loop goroutine only.
func (r *Room) join(conn Conn, opts JoinOptions) (*Session, error) {
	if len(r.owners) >= r.cfg.MaxClients {
		log.Printf("room %s: join rejected, %d/%d players", r.ID, len(r.owners), r.cfg.MaxClients)
		return nil, ErrRoomFull
	}
	id := GenerateID(4)
	for _, taken := r.owners[id]; taken; _, taken = r.owners[id] {
		id = GenerateID(4)
	}
	o := &Owner{
		ID:      id,
		Name:    sanitizeName(opts.Name),
		Color:   generatePlayerColor(r.rng),
		mailbox: &Mailbox{},
		conn:    conn,
	}
	r.owners[id] = o
	r.players.Store(int32(len(r.owners)))
	r.newPlayerCell(o)
	r.track(EvtJoin, id, "")
	return &Session{OwnerID: id, Room: r, mailbox: o.mailbox}, nil
}

// leave removes every cell of the owner. Other players are untouched.
func (r *Room) leave(ownerID string) {
	if _, ok := r.owners[ownerID]; !ok {
		return
	}
	for _, c := range r.world.getOwnedCells(ownerID) {
		r.world.removeCell(c.ID)
	}
	delete(r.owners, ownerID)
	r.players.Store(int32(len(r.owners)))
	r.track(EvtLeave, ownerID, "")
}

func (r *Room) ownerIDs() []string {
	ids := make([]string, 0, len(r.owners))
	for id := range r.owners {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// safeTick runs one tick; a panic is logged and the loop carries on with
// the next interval.
func (r *Room) safeTick() (ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("room %s: tick %d panicked: %v", r.ID, r.world.Tick, rec)
			ok = false
		}
	}()
	r.update()
	return true
}

// update runs one game tick
func (r *Room) update() {
	interval := r.cfg.TickInterval()
	dt := interval.Seconds()
	r.world.advance(interval)

	r.drainMailboxes()
	r.integrate(dt)

	r.resolveCoinCollisions()
	r.resolveHazardCollisions()
	r.resolvePlayerCollisions()

	r.applySplitAttraction(dt)
	r.handleSplitMerging()

	r.replenish()

	snap := r.buildSnapshot()
	r.snapshot.Store(snap)
	if r.world.Tick%r.broadcastEvery == 0 {
		r.broadcastState(snap)
	}
}

// buildSnapshot copies the aggregate into plain values
func (r *Room) buildSnapshot() *Snapshot {
	w := r.world
	s := &Snapshot{
		Room:      r.ID,
		Players:   make(map[uint32]CellState, len(w.Cells)),
		Coins:     make(map[uint32]CoinState, len(w.Coins)),
		Viruses:   make(map[uint32]VirusState, len(w.Viruses)),
		WorldSize: w.Size,
		Timestamp: w.Now,
		Tick:      w.Tick,
	}
	for id, c := range w.Cells {
		s.Players[id] = c.ToState()
	}
	for id, k := range w.Coins {
		s.Coins[id] = k.ToState()
	}
	for id, v := range w.Viruses {
		s.Viruses[id] = v.ToState()
	}
	s.Leaderboard = r.leaderboard(10)
	return s
}

func (r *Room) leaderboard(n int) []LeaderEntry {
	out := make([]LeaderEntry, 0, len(r.owners))
	for _, id := range r.ownerIDs() {
		o := r.owners[id]
		out = append(out, LeaderEntry{Owner: id, Name: o.Name, Mass: round1(r.world.totalMass(id))})
	}
	slices.SortStableFunc(out, func(a, b LeaderEntry) int {
		switch {
		case a.Mass > b.Mass:
			return -1
		case a.Mass < b.Mass:
			return 1
		}
		return 0
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// broadcastState hands the encoded snapshot to every connection without
// waiting on any of them.
func (r *Room) broadcastState(snap *Snapshot) {
	if len(r.owners) == 0 {
		return
	}
	frame, err := r.encode(snap)
	if err != nil {
		log.Printf("room %s: encode state: %v", r.ID, err)
		return
	}
	for _, o := range r.owners {
		if o.conn != nil {
			o.conn.SendBinary(frame)
		}
	}
}

func (r *Room) track(evt, ownerID, data string) {
	r.events.Track(evt, r.ID, ownerID, data)
}

func sanitizeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return defaultName
	}
	if r := []rune(name); len(r) > maxNameLen {
		name = string(r[:maxNameLen])
	}
	return name
}
