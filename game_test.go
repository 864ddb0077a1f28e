package main

import (
	"errors"
	"math/rand/v2"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeConn captures broadcast frames for testing
type fakeConn struct {
	frames chan []byte
}

func newFakeConn() *fakeConn {
	return &fakeConn{frames: make(chan []byte, 64)}
}

func (f *fakeConn) SendBinary(frame []byte) {
	select {
	case f.frames <- frame:
	default:
	}
}

// recordingSink keeps every tracked event type in order
type recordingSink struct {
	mu     sync.Mutex
	events []string
}

func (s *recordingSink) Track(evtType, roomID, ownerID, data string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evtType)
}

func (s *recordingSink) count(evtType string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if e == evtType {
			n++
		}
	}
	return n
}

func testConfig() RoomConfig {
	return RoomConfig{MaxClients: 8, WorldSize: 1000, TickRate: 20}
}

func newTestRoom(cfg RoomConfig, tuning Tuning) *Room {
	return newRoom("test-room", "Test", cfg, tuning, nil, rand.New(rand.NewPCG(1, 2)))
}

// addOwner joins directly on the calling goroutine; the loop must not be running
func addOwner(t *testing.T, r *Room, name string) *Owner {
	t.Helper()
	s, err := r.join(nil, JoinOptions{Name: name})
	if err != nil {
		t.Fatalf("join %s: %v", name, err)
	}
	return r.owners[s.OwnerID]
}

// soleCell replaces the owner's cells with a single cell at (x, y)
func soleCell(r *Room, o *Owner, x, y, mass float64) *Cell {
	for _, c := range r.world.getOwnedCells(o.ID) {
		r.world.removeCell(c.ID)
	}
	return placeCell(r, o, x, y, mass)
}

func placeCell(r *Room, o *Owner, x, y, mass float64) *Cell {
	c := &Cell{OwnerID: o.ID, Name: o.Name, Color: o.Color, Alive: true, X: x, Y: y, TargetX: x, TargetY: y}
	c.SetMass(mass, r.tuning.MinMass)
	r.world.addCell(c)
	return c
}

func TestRoomJoinLeave(t *testing.T) {
	r := newTestRoom(testConfig(), DefaultTuning())
	a := addOwner(t, r, "Alice")
	b := addOwner(t, r, "Bob")

	if r.PlayerCount() != 2 {
		t.Errorf("expected 2 players, got %d", r.PlayerCount())
	}
	if a.ID == b.ID {
		t.Fatal("owner ids must be unique")
	}
	cells := r.world.getOwnedCells(a.ID)
	if len(cells) != 1 {
		t.Fatalf("expected one starter cell, got %d", len(cells))
	}
	if cells[0].Mass != r.tuning.BaseMass {
		t.Errorf("starter mass = %v, want %v", cells[0].Mass, r.tuning.BaseMass)
	}
	if cells[0].Name != "Alice" {
		t.Errorf("starter name = %q", cells[0].Name)
	}

	r.leave(a.ID)
	if r.PlayerCount() != 1 {
		t.Errorf("expected 1 player, got %d", r.PlayerCount())
	}
	if n := r.world.countOwnedPieces(a.ID); n != 0 {
		t.Errorf("leaver still owns %d cells", n)
	}
	if n := r.world.countOwnedPieces(b.ID); n != 1 {
		t.Errorf("other player should keep its cell, has %d", n)
	}
}

func TestRoomFull(t *testing.T) {
	cfg := testConfig()
	cfg.MaxClients = 2
	r := newTestRoom(cfg, DefaultTuning())
	addOwner(t, r, "A")
	addOwner(t, r, "B")

	if _, err := r.join(nil, JoinOptions{Name: "C"}); !errors.Is(err, ErrRoomFull) {
		t.Errorf("expected ErrRoomFull, got %v", err)
	}
	if r.PlayerCount() != 2 {
		t.Errorf("rejected join changed player count to %d", r.PlayerCount())
	}
}

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", defaultName},
		{"   ", defaultName},
		{"  Bob  ", "Bob"},
		{strings.Repeat("x", 40), strings.Repeat("x", maxNameLen)},
	}
	for _, tt := range tests {
		if got := sanitizeName(tt.in); got != tt.want {
			t.Errorf("sanitizeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRoomUpdateAdvancesTime(t *testing.T) {
	r := newTestRoom(testConfig(), DefaultTuning())
	addOwner(t, r, "A")

	for i := 0; i < 10; i++ {
		r.update()
	}
	if r.world.Tick != 10 {
		t.Errorf("expected tick 10, got %d", r.world.Tick)
	}
	if r.world.Now != 500 {
		t.Errorf("expected 500ms of room time, got %d", r.world.Now)
	}
	snap := r.Snapshot()
	if snap.Tick != 10 || len(snap.Players) != 1 {
		t.Errorf("snapshot not published: tick %d, %d cells", snap.Tick, len(snap.Players))
	}
}

func TestRoomTimeAdvancesAtHighTickRate(t *testing.T) {
	cfg := testConfig()
	cfg.TickRate = 2000
	r := newTestRoom(cfg, DefaultTuning())
	if r.Config().TickRate != MaxTickRate {
		t.Fatalf("tick rate = %d, want it capped at %d", r.Config().TickRate, MaxTickRate)
	}

	prev := r.world.Now
	for i := 0; i < 100; i++ {
		r.update()
		if r.world.Now <= prev {
			t.Fatalf("tick %d: room time stuck at %dms", r.world.Tick, r.world.Now)
		}
		prev = r.world.Now
	}
}

func TestWorldAdvanceKeepsRemainder(t *testing.T) {
	w := NewWorld(1000)
	dt := time.Second / 7
	for i := 0; i < 70; i++ {
		w.advance(dt)
	}
	// 70 ticks of 142.857142ms
	if w.Now != 9999 {
		t.Errorf("room time = %dms after 70 ticks at 7 Hz, want 9999", w.Now)
	}
}

func TestRoomLeaderboardOrder(t *testing.T) {
	r := newTestRoom(testConfig(), DefaultTuning())
	a := addOwner(t, r, "Small")
	b := addOwner(t, r, "Big")
	soleCell(r, a, 100, 100, 30)
	soleCell(r, b, 800, 800, 90)
	placeCell(r, b, 700, 800, 10)

	lb := r.leaderboard(10)
	if len(lb) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(lb))
	}
	if lb[0].Owner != b.ID || lb[0].Mass != 100 {
		t.Errorf("leader = %+v, want %s with mass 100", lb[0], b.ID)
	}
	if got := r.leaderboard(1); len(got) != 1 {
		t.Errorf("leaderboard(1) returned %d entries", len(got))
	}
}

func TestRoomTickPanicIsolated(t *testing.T) {
	r := newTestRoom(testConfig(), DefaultTuning())
	s, err := r.join(newFakeConn(), JoinOptions{Name: "A"})
	if err != nil {
		t.Fatal(err)
	}
	r.encode = func(*Snapshot) ([]byte, error) { panic("encoder exploded") }

	if r.safeTick() {
		t.Error("safeTick should report the panic")
	}
	r.encode = EncodeSnapshot
	if !r.safeTick() {
		t.Error("next tick should run normally")
	}
	if r.world.Tick != 2 {
		t.Errorf("expected tick 2, got %d", r.world.Tick)
	}
	if r.world.countOwnedPieces(s.OwnerID) != 1 {
		t.Error("player state lost after a failed tick")
	}
}

func TestRoomRunBroadcastsState(t *testing.T) {
	r := newTestRoom(testConfig(), DefaultTuning())
	go r.Run()
	defer r.Dispose()

	conn := newFakeConn()
	s, err := r.Join(conn, JoinOptions{Name: "Alice"})
	if err != nil {
		t.Fatalf("join: %v", err)
	}

	select {
	case frame := <-conn.frames:
		snap, err := DecodeSnapshot(frame)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		found := false
		for _, c := range snap.Players {
			if c.Owner == s.OwnerID && c.Name == "Alice" {
				found = true
			}
		}
		if !found {
			t.Errorf("snapshot has no cell for %s", s.OwnerID)
		}
		if snap.Room != r.ID {
			t.Errorf("snapshot room = %q", snap.Room)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no state frame received")
	}

	r.Leave(s.OwnerID)
	if r.PlayerCount() != 0 {
		t.Errorf("expected empty room after leave, got %d", r.PlayerCount())
	}
}

func TestRoomDispose(t *testing.T) {
	r := newTestRoom(testConfig(), DefaultTuning())
	go r.Run()

	r.Dispose()
	r.Dispose()

	select {
	case <-r.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not exit")
	}
	if _, err := r.Join(nil, JoinOptions{}); !errors.Is(err, ErrRoomClosed) {
		t.Errorf("expected ErrRoomClosed, got %v", err)
	}
}

func TestRoomEventsTracked(t *testing.T) {
	sink := &recordingSink{}
	r := newRoom("ev", "Ev", testConfig(), DefaultTuning(), sink, rand.New(rand.NewPCG(3, 4)))
	a := addOwner(t, r, "A")
	r.leave(a.ID)

	if sink.count(EvtJoin) != 1 || sink.count(EvtLeave) != 1 {
		t.Errorf("events = %v", sink.events)
	}
}
