package main

import (
	"encoding/json"
	"log"
	"net"
	"net/http"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gorilla/websocket"
	"github.com/skip2/go-qrcode"
)

var uuidPathRe = regexp.MustCompile(`^/[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

const (
	qrSize        = 256
	topEaterLimit = 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true // Non-browser clients don't send Origin
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return u.Host == r.Host
	},
}

func extractIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("http: encode response: %v", err)
	}
}

// StatsResponse is served on /stats
type StatsResponse struct {
	Started string         `json:"started"`
	Rooms   int            `json:"rooms"`
	Clients int            `json:"clients"`
	Conns   int            `json:"conns"`
	Events  map[string]int `json:"events,omitempty"`
	Dropped int            `json:"dropped,omitempty"`

	// Set when the request names a room
	TopEaters []OwnerCount `json:"topEaters,omitempty"`
}

// SetupRoutes configures HTTP routes. stats may be nil when analytics is off.
func SetupRoutes(hub *Hub, cfg ServerConfig, stats *Analytics) *http.ServeMux {
	mux := http.NewServeMux()
	started := time.Now()

	if cfg.ClientDir != "" {
		clientDir := cfg.ClientDir
		// Serve static files with no-cache so browsers always revalidate
		fs := http.FileServer(http.Dir(clientDir))
		mux.Handle("/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", "no-cache")
			// SPA: serve index.html for root and room paths
			if r.URL.Path == "/" || uuidPathRe.MatchString(r.URL.Path) {
				http.ServeFile(w, r, filepath.Join(clientDir, "index.html"))
				return
			}
			fs.ServeHTTP(w, r)
		}))
	}

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("GET /rooms", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, hub.rooms.List())
	})

	publicURL := strings.TrimRight(cfg.PublicURL, "/")
	mux.HandleFunc("GET /rooms/{id}/qr", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if hub.rooms.Get(id) == nil {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}
		png, err := qrcode.Encode(publicURL+"/?room="+url.QueryEscape(id), qrcode.Medium, qrSize)
		if err != nil {
			log.Printf("qr encode for room %s: %v", id, err)
			http.Error(w, "qr encode failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-cache")
		w.Write(png)
	})

	schemas, err := BuildMessageSchemas()
	if err != nil {
		log.Printf("schema: %v", err)
	}
	mux.HandleFunc("GET /schema", func(w http.ResponseWriter, r *http.Request) {
		if schemas == nil {
			http.Error(w, "schema unavailable", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, schemas)
	})

	mux.HandleFunc("GET /stats", func(w http.ResponseWriter, r *http.Request) {
		resp := StatsResponse{
			Started: humanize.Time(started),
			Rooms:   hub.rooms.Count(),
			Clients: hub.ClientCount(),
			Conns:   hub.TotalConns(),
		}
		if stats != nil {
			counts, err := stats.EventCounts(7)
			if err != nil {
				log.Printf("stats: event counts: %v", err)
			}
			resp.Events = counts
			resp.Dropped = stats.Dropped()

			if roomID := r.URL.Query().Get("room"); roomID != "" {
				top, err := stats.TopEaters(roomID, topEaterLimit)
				if err != nil {
					log.Printf("stats: top eaters for %s: %v", roomID, err)
				}
				resp.TopEaters = top
			}
		}
		writeJSON(w, http.StatusOK, resp)
	})

	// WebSocket endpoint
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		ip := extractIP(r)
		if !hub.CanAccept(ip) {
			http.Error(w, "too many connections", http.StatusServiceUnavailable)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("upgrade error: %v", err)
			return
		}

		hub.TrackConnect(ip)

		client := NewClient(hub, conn, ip)
		hub.register <- client

		go client.WritePump()
		go client.ReadPump()
	})

	return mux
}
