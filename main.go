package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

func main() {
	cfg, err := LoadServerConfig(os.Args[1:])
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	var (
		events    EventSink = nopSink{}
		analytics *Analytics
	)
	if cfg.DBPath != "" {
		db, err := OpenDB(cfg.DBPath)
		if err != nil {
			log.Fatalf("database: %v", err)
		}
		defer db.Close()
		analytics = NewAnalytics(db)
		defer analytics.Stop()
		events = analytics
		log.Printf("Analytics stored in %s", cfg.DBPath)
	}

	auth := NewTicketVerifier(cfg.JWTSecret)
	if auth == nil {
		log.Printf("Join tickets disabled, names are taken as sent")
	}

	rooms := NewRoomManager(cfg.MaxRooms, cfg.Room, DefaultTuning(), events)
	defer rooms.Shutdown()

	hub := NewHub(rooms, auth)
	go hub.Run()

	server := &http.Server{Addr: cfg.Addr, Handler: SetupRoutes(hub, cfg, analytics)}

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("Server starting on %s (tick %d Hz, world %.0f)", cfg.Addr, cfg.Room.TickRate, cfg.Room.WorldSize)
		if cfg.ClientDir != "" {
			log.Printf("Serving client files from %s", cfg.ClientDir)
		}
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		rooms.RunSweeper(ctx, sweepInterval, idleRoomTTL)
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Println("Shutting down...")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(sctx)
	})

	if err := g.Wait(); err != nil {
		log.Printf("server: %v", err)
	}
}
