package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
)

// ---------- helpers ----------

type testServer struct {
	srv   *httptest.Server
	wsURL string
	rooms *RoomManager
}

// startTestServer spins up an httptest.Server with a Hub and returns it.
// Everything is torn down through t.Cleanup.
func startTestServer(t *testing.T, secret string) *testServer {
	t.Helper()

	// Create a temp client dir with a minimal index.html
	tmpDir := t.TempDir()
	jsDir := filepath.Join(tmpDir, "js")
	os.MkdirAll(jsDir, 0o755)
	os.WriteFile(filepath.Join(tmpDir, "index.html"), []byte("<html>test</html>"), 0o644)
	os.WriteFile(filepath.Join(jsDir, "main.js"), []byte("// test"), 0o644)

	roomCfg := testConfig()
	roomCfg.MaxCoins = 10
	roomCfg.MaxViruses = 2
	rooms := NewRoomManager(8, roomCfg, DefaultTuning(), nil)

	hub := NewHub(rooms, NewTicketVerifier(secret))
	go hub.Run()

	cfg := ServerConfig{ClientDir: tmpDir, PublicURL: "http://arena.test", Room: roomCfg}
	srv := httptest.NewServer(SetupRoutes(hub, cfg, nil))
	t.Cleanup(func() {
		srv.Close()
		rooms.Shutdown()
	})

	return &testServer{
		srv:   srv,
		wsURL: "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws",
		rooms: rooms,
	}
}

// dialWS opens a WebSocket connection to the test server.
func dialWS(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial WS: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// sendMsg sends a typed message over the WebSocket.
func sendMsg(t *testing.T, conn *websocket.Conn, msgType string, data interface{}) {
	t.Helper()
	env := Envelope{T: msgType, Data: data}
	raw, _ := json.Marshal(env)
	if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		t.Fatalf("write WS: %v", err)
	}
}

// readJSON reads text messages until one of type msgType arrives. State
// frames in between are skipped.
func readJSON(t *testing.T, conn *websocket.Conn, msgType string) json.RawMessage {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		conn.SetReadDeadline(deadline)
		kind, raw, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("waiting for %s: %v", msgType, err)
		}
		if kind == websocket.BinaryMessage {
			continue
		}
		var env InEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if env.T == msgType {
			return env.D
		}
	}
}

// readState reads the next binary state frame.
func readState(t *testing.T, conn *websocket.Conn) *Snapshot {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		conn.SetReadDeadline(deadline)
		kind, raw, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("waiting for state: %v", err)
		}
		if kind != websocket.BinaryMessage {
			continue
		}
		snap, err := DecodeSnapshot(raw)
		if err != nil {
			t.Fatalf("decode state: %v", err)
		}
		return snap
	}
}

// createAndJoin creates a room then joins it. Returns the room and owner IDs.
func createAndJoin(t *testing.T, conn *websocket.Conn, name string) (string, string) {
	t.Helper()
	sendMsg(t, conn, MsgCreate, CreateMsg{Name: "Test Arena"})
	var created RoomInfo
	json.Unmarshal(readJSON(t, conn, MsgCreated), &created)
	if created.ID == "" {
		t.Fatal("created message without room id")
	}

	sendMsg(t, conn, MsgJoin, JoinMsg{Room: created.ID, Name: name})
	var welcome WelcomeMsg
	json.Unmarshal(readJSON(t, conn, MsgWelcome), &welcome)
	if welcome.ID == "" || welcome.Room != created.ID {
		t.Fatalf("bad welcome: %+v", welcome)
	}
	return created.ID, welcome.ID
}

func ownCell(snap *Snapshot, owner string) (CellState, bool) {
	for _, c := range snap.Players {
		if c.Owner == owner {
			return c, true
		}
	}
	return CellState{}, false
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// ---------- HTTP ----------

func TestHealthz(t *testing.T) {
	ts := startTestServer(t, "")
	resp, err := http.Get(ts.srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != 200 || string(body) != "ok" {
		t.Errorf("GET /healthz = %d %q", resp.StatusCode, body)
	}
}

func TestSPARoutingRoomPath(t *testing.T) {
	ts := startTestServer(t, "")
	resp, err := http.Get(ts.srv.URL + "/" + GenerateRoomID())
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != 200 || !strings.Contains(string(body), "<html>") {
		t.Errorf("room path should serve index.html, got %d %q", resp.StatusCode, body)
	}
}

func TestRoomsEndpoint(t *testing.T) {
	ts := startTestServer(t, "")
	room := ts.rooms.CreateRoom("Listed")

	resp, err := http.Get(ts.srv.URL + "/rooms")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var list []RoomInfo
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].ID != room.ID || list[0].Name != "Listed" {
		t.Errorf("rooms = %+v", list)
	}
}

func TestRoomQRCode(t *testing.T) {
	ts := startTestServer(t, "")
	room := ts.rooms.CreateRoom("QR")

	resp, err := http.Get(ts.srv.URL + "/rooms/" + room.ID + "/qr")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != 200 || resp.Header.Get("Content-Type") != "image/png" {
		t.Fatalf("GET qr = %d %s", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
	if !bytes.HasPrefix(body, []byte("\x89PNG")) {
		t.Error("qr body is not a PNG")
	}

	resp2, err := http.Get(ts.srv.URL + "/rooms/nope/qr")
	if err != nil {
		t.Fatal(err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusNotFound {
		t.Errorf("unknown room qr = %d, want 404", resp2.StatusCode)
	}
}

func TestSchemaEndpoint(t *testing.T) {
	ts := startTestServer(t, "")
	resp, err := http.Get(ts.srv.URL + "/schema")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var m map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		t.Fatal(err)
	}
	for _, k := range []string{MsgCreate, MsgJoin, MsgMove} {
		if _, ok := m[k]; !ok {
			t.Errorf("schema missing %q", k)
		}
	}
}

func TestStatsEndpoint(t *testing.T) {
	ts := startTestServer(t, "")
	ts.rooms.CreateRoom("a")

	resp, err := http.Get(ts.srv.URL + "/stats")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var st StatsResponse
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatal(err)
	}
	if st.Rooms != 1 {
		t.Errorf("stats rooms = %d", st.Rooms)
	}
	if st.Started == "" {
		t.Error("stats missing start time")
	}
}

// ---------- WebSocket flow ----------

func TestJoinReceivesState(t *testing.T) {
	ts := startTestServer(t, "")
	conn := dialWS(t, ts.wsURL)
	roomID, owner := createAndJoin(t, conn, "Alice")

	snap := readState(t, conn)
	if snap.Room != roomID {
		t.Errorf("state for room %q, want %q", snap.Room, roomID)
	}
	c, ok := ownCell(snap, owner)
	if !ok {
		t.Fatal("own cell missing from state")
	}
	if c.Name != "Alice" || c.Mass < DefaultTuning().BaseMass {
		t.Errorf("cell = %+v", c)
	}
	if len(snap.Coins) != 10 || len(snap.Viruses) != 2 {
		t.Errorf("state has %d coins %d viruses", len(snap.Coins), len(snap.Viruses))
	}
}

func TestMoveSteersCell(t *testing.T) {
	ts := startTestServer(t, "")
	conn := dialWS(t, ts.wsURL)
	_, owner := createAndJoin(t, conn, "Mover")

	start, ok := ownCell(readState(t, conn), owner)
	if !ok {
		t.Fatal("own cell missing")
	}
	dx := 1.0
	if start.X > 500 {
		dx = -1
	}
	seq := int64(1)
	dy := 0.0
	sendMsg(t, conn, MsgMove, MoveInput{Seq: &seq, DX: &dx, DY: &dy})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		c, ok := ownCell(readState(t, conn), owner)
		if ok && (c.X-start.X)*dx > 1 {
			if c.Seq != 1 {
				t.Errorf("seq = %d, want 1", c.Seq)
			}
			return
		}
	}
	t.Error("cell did not move toward the input direction")
}

func TestSplitOverSocket(t *testing.T) {
	ts := startTestServer(t, "")
	conn := dialWS(t, ts.wsURL)
	roomID, owner := createAndJoin(t, conn, "Splitter")

	// Base mass is below the split minimum, so a split request changes nothing
	sendMsg(t, conn, MsgSplit, nil)
	readState(t, conn)
	snap := readState(t, conn)
	n := 0
	for _, c := range snap.Players {
		if c.Owner == owner {
			n++
		}
	}
	if n != 1 {
		t.Errorf("expected 1 cell after a refused split, got %d", n)
	}
	if ts.rooms.Get(roomID).PlayerCount() != 1 {
		t.Error("player count changed")
	}
}

func TestJoinUnknownRoom(t *testing.T) {
	ts := startTestServer(t, "")
	conn := dialWS(t, ts.wsURL)

	sendMsg(t, conn, MsgJoin, JoinMsg{Room: "missing", Name: "A"})
	var e ErrorMsg
	json.Unmarshal(readJSON(t, conn, MsgError), &e)
	if e.Msg != "room not found" {
		t.Errorf("error = %q", e.Msg)
	}
}

func TestListOverSocket(t *testing.T) {
	ts := startTestServer(t, "")
	ts.rooms.CreateRoom("One")
	conn := dialWS(t, ts.wsURL)

	sendMsg(t, conn, MsgList, nil)
	var list []RoomInfo
	json.Unmarshal(readJSON(t, conn, MsgRooms), &list)
	if len(list) != 1 || list[0].Name != "One" {
		t.Errorf("rooms = %+v", list)
	}
}

func TestLeaveDisposesEmptyRoom(t *testing.T) {
	ts := startTestServer(t, "")
	conn := dialWS(t, ts.wsURL)
	roomID, _ := createAndJoin(t, conn, "Leaver")

	sendMsg(t, conn, MsgLeave, nil)
	waitFor(t, "room disposal", func() bool { return ts.rooms.Get(roomID) == nil })
}

func TestDisconnectRemovesPlayer(t *testing.T) {
	ts := startTestServer(t, "")
	host := dialWS(t, ts.wsURL)
	roomID, _ := createAndJoin(t, host, "Host")

	guest := dialWS(t, ts.wsURL)
	sendMsg(t, guest, MsgJoin, JoinMsg{Room: roomID, Name: "Guest"})
	readJSON(t, guest, MsgWelcome)

	room := ts.rooms.Get(roomID)
	waitFor(t, "two players", func() bool { return room.PlayerCount() == 2 })

	guest.Close()
	waitFor(t, "guest removal", func() bool { return room.PlayerCount() == 1 })
	if ts.rooms.Get(roomID) == nil {
		t.Error("room with a remaining player was disposed")
	}
}

func TestJoinWithTicket(t *testing.T) {
	ts := startTestServer(t, testSecret)
	conn := dialWS(t, ts.wsURL)
	room := ts.rooms.CreateRoom("Ranked")

	tok := signTicket(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{"usr": "verified"})
	sendMsg(t, conn, MsgJoin, JoinMsg{Room: room.ID, Name: "spoofed", Token: tok})
	var welcome WelcomeMsg
	json.Unmarshal(readJSON(t, conn, MsgWelcome), &welcome)

	c, ok := ownCell(readState(t, conn), welcome.ID)
	if !ok || c.Name != "verified" {
		t.Errorf("ticket name not applied: %+v", c)
	}

	bad := dialWS(t, ts.wsURL)
	sendMsg(t, bad, MsgJoin, JoinMsg{Room: room.ID, Token: "junk"})
	var e ErrorMsg
	json.Unmarshal(readJSON(t, bad, MsgError), &e)
	if e.Msg != "invalid ticket" {
		t.Errorf("error = %q", e.Msg)
	}
}
