package main

import (
	"database/sql"
	"log"
	"sync"
	"time"
)

// Event types for analytics tracking
const (
	EvtRoomCreate = "room_create"
	EvtRoomClose  = "room_close"
	EvtJoin       = "join"
	EvtLeave      = "leave"
	EvtEat        = "eat"
	EvtSplit      = "split"
	EvtPop        = "pop"
	EvtRespawn    = "respawn"
)

// EventSink receives gameplay events. Track must never block the caller.
type EventSink interface {
	Track(evtType, roomID, ownerID, data string)
}

type nopSink struct{}

func (nopSink) Track(string, string, string, string) {}

// AnalyticsEvent represents a single trackable event
type AnalyticsEvent struct {
	Type      string
	RoomID    string
	OwnerID   string
	Data      string // JSON metadata (optional)
	Timestamp time.Time
}

// Analytics handles event tracking with batched background writes
type Analytics struct {
	db       *DB
	events   chan AnalyticsEvent
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu      sync.Mutex
	dropped int
}

// NewAnalytics creates and starts the analytics background writer
func NewAnalytics(db *DB) *Analytics {
	a := &Analytics{
		db:     db,
		events: make(chan AnalyticsEvent, 1024),
		stop:   make(chan struct{}),
	}
	a.wg.Add(1)
	go a.writer()
	return a
}

// Track enqueues an event for async persistence (non-blocking)
func (a *Analytics) Track(evtType, roomID, ownerID, data string) {
	select {
	case a.events <- AnalyticsEvent{
		Type:      evtType,
		RoomID:    roomID,
		OwnerID:   ownerID,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}:
	default:
		// Channel full; drop the event
		a.mu.Lock()
		a.dropped++
		a.mu.Unlock()
	}
}

// Dropped returns how many events were discarded because the buffer was full
func (a *Analytics) Dropped() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dropped
}

// Stop flushes pending events and shuts down the writer
func (a *Analytics) Stop() {
	a.stopOnce.Do(func() {
		close(a.stop)
		a.wg.Wait()
	})
}

// writer is the background goroutine that batches and writes events to DB
func (a *Analytics) writer() {
	defer a.wg.Done()

	batch := make([]AnalyticsEvent, 0, 64)
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case evt := <-a.events:
			batch = append(batch, evt)
			if len(batch) >= 50 {
				a.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				a.flush(batch)
				batch = batch[:0]
			}
		case <-a.stop:
			// Drain whatever is buffered; producers may still be running
			for {
				select {
				case evt := <-a.events:
					batch = append(batch, evt)
				default:
					if len(batch) > 0 {
						a.flush(batch)
					}
					return
				}
			}
		}
	}
}

// flush writes a batch of events to the database
func (a *Analytics) flush(events []AnalyticsEvent) {
	if a.db == nil || len(events) == 0 {
		return
	}
	tx, err := a.db.conn.Begin()
	if err != nil {
		log.Printf("analytics: begin tx error: %v", err)
		return
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO analytics_events (event_type, room_id, owner_id, data, created_at) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		log.Printf("analytics: prepare error: %v", err)
		return
	}
	defer stmt.Close()

	for _, evt := range events {
		rid := sql.NullString{String: evt.RoomID, Valid: evt.RoomID != ""}
		oid := sql.NullString{String: evt.OwnerID, Valid: evt.OwnerID != ""}
		data := sql.NullString{String: evt.Data, Valid: evt.Data != ""}
		if _, err := stmt.Exec(evt.Type, rid, oid, data, evt.Timestamp.Format(time.RFC3339)); err != nil {
			log.Printf("analytics: insert error: %v", err)
		}
	}
	if err := tx.Commit(); err != nil {
		log.Printf("analytics: commit error: %v", err)
	}
}

// --- Query methods for the API ---

// EventCounts returns counts of each event type for the last N days
func (a *Analytics) EventCounts(days int) (map[string]int, error) {
	if a.db == nil {
		return nil, nil
	}
	rows, err := a.db.conn.Query(`
		SELECT event_type, COUNT(*) FROM analytics_events
		WHERE created_at >= date('now', '-' || ? || ' days')
		GROUP BY event_type ORDER BY COUNT(*) DESC
	`, days)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]int)
	for rows.Next() {
		var evtType string
		var count int
		if err := rows.Scan(&evtType, &count); err != nil {
			continue
		}
		result[evtType] = count
	}
	return result, rows.Err()
}

// TopEaters returns the owners with the most eat events in a room
func (a *Analytics) TopEaters(roomID string, limit int) ([]OwnerCount, error) {
	if a.db == nil {
		return nil, nil
	}
	rows, err := a.db.conn.Query(`
		SELECT owner_id, COUNT(*) AS cnt FROM analytics_events
		WHERE event_type = ? AND room_id = ? AND owner_id IS NOT NULL
		GROUP BY owner_id ORDER BY cnt DESC, owner_id LIMIT ?
	`, EvtEat, roomID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []OwnerCount
	for rows.Next() {
		var oc OwnerCount
		if err := rows.Scan(&oc.OwnerID, &oc.Count); err != nil {
			continue
		}
		result = append(result, oc)
	}
	return result, rows.Err()
}

// OwnerCount holds an event count for one owner
type OwnerCount struct {
	OwnerID string `json:"owner"`
	Count   int    `json:"count"`
}
