package main

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Room defaults
const (
	DefaultMaxClients = 50
	DefaultWorldSize  = 5000.0
	DefaultMaxCoins   = 500
	DefaultMaxViruses = 20
	DefaultTickRate   = 20
	MaxTickRate       = 120
	MaxWorldSize      = 20000.0
	BroadcastRate     = 20 // snapshot frames per second sent to clients
	DefaultMaxRooms   = 100
)

// RoomConfig is fixed for a room's lifetime
type RoomConfig struct {
	MaxClients int     `json:"maxClients"`
	WorldSize  float64 `json:"worldSize"`
	MaxCoins   int     `json:"maxCoins"`
	MaxViruses int     `json:"maxViruses"`
	TickRate   int     `json:"tickRate"`
}

// DefaultRoomConfig returns the stock room settings.
func DefaultRoomConfig() RoomConfig {
	return RoomConfig{
		MaxClients: DefaultMaxClients,
		WorldSize:  DefaultWorldSize,
		MaxCoins:   DefaultMaxCoins,
		MaxViruses: DefaultMaxViruses,
		TickRate:   DefaultTickRate,
	}
}

// normalized returns a config with defaults applied to unset or invalid fields.
func (cfg RoomConfig) normalized() RoomConfig {
	n := cfg
	if n.MaxClients <= 0 {
		n.MaxClients = DefaultMaxClients
	}
	if !(n.WorldSize > 0) || !finite(n.WorldSize) {
		n.WorldSize = DefaultWorldSize
	}
	// Grid memory grows with the square of the side
	if n.WorldSize > MaxWorldSize {
		n.WorldSize = MaxWorldSize
	}
	if n.MaxCoins < 0 {
		n.MaxCoins = 0
	}
	if n.MaxViruses < 0 {
		n.MaxViruses = 0
	}
	if n.TickRate <= 0 {
		n.TickRate = DefaultTickRate
	}
	if n.TickRate > MaxTickRate {
		n.TickRate = MaxTickRate
	}
	return n
}

// TickInterval is the wall-clock and simulated length of one tick.
func (cfg RoomConfig) TickInterval() time.Duration {
	return time.Second / time.Duration(cfg.TickRate)
}

// Tuning holds the gameplay thresholds. Values are room-wide constants;
// tests override individual fields.
type Tuning struct {
	BaseMass float64
	MinMass  float64

	SplitMinMass  float64
	SplitToll     float64 // mass removed per piece created by a split or pop
	MaxPieces     int
	SplitImpulse  float64 // units/s
	MomentumDecay float64 // 1/s, exponential

	MergeCooldown    time.Duration
	SettleDelay      time.Duration
	AttractionRate   float64 // 1/s
	MaxAttraction    float64 // units/s
	SpacingTolerance float64

	EatRatio   float64
	EatOverlap float64 // fraction of the victim radius that must be covered

	VirusPopMass   float64
	VirusPopPieces int
	VirusRadius    float64

	CoinRadius   float64
	CoinMinValue int
	CoinMaxValue int

	SteerFactor    float64 // fraction of remaining distance per tick
	MaxSpeed       float64 // units/s at BaseMass
	DirectionReach float64 // how far ahead a dx/dy input places the target

	SpawnAttempts int
	SpawnPerTick  int
}

// DefaultTuning returns the documented defaults.
func DefaultTuning() Tuning {
	return Tuning{
		BaseMass: 20,
		MinMass:  10,

		SplitMinMass:  36,
		SplitToll:     1,
		MaxPieces:     16,
		SplitImpulse:  780,
		MomentumDecay: 6,

		MergeCooldown:    8 * time.Second,
		SettleDelay:      500 * time.Millisecond,
		AttractionRate:   2,
		MaxAttraction:    240,
		SpacingTolerance: 2,

		EatRatio:   1.25,
		EatOverlap: 0.4,

		VirusPopMass:   200,
		VirusPopPieces: 8,
		VirusRadius:    50,

		CoinRadius:   8,
		CoinMinValue: 1,
		CoinMaxValue: 5,

		SteerFactor:    0.15,
		MaxSpeed:       300,
		DirectionReach: 400,

		SpawnAttempts: 10,
		SpawnPerTick:  50,
	}
}

// ServerConfig is the process-level configuration.
type ServerConfig struct {
	Addr      string
	ClientDir string
	DBPath    string
	JWTSecret string
	PublicURL string
	MaxRooms  int
	Room      RoomConfig
}

// LoadServerConfig reads .env (optional), then flags whose defaults come
// from the environment.
func LoadServerConfig(args []string) (ServerConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return ServerConfig{}, fmt.Errorf("load .env: %w", err)
	}

	def := DefaultRoomConfig()
	cfg := ServerConfig{}
	fsFlags := flag.NewFlagSet("arena-server", flag.ContinueOnError)
	fsFlags.StringVar(&cfg.Addr, "addr", envString("ARENA_ADDR", ":8080"), "HTTP listen address")
	fsFlags.StringVar(&cfg.ClientDir, "client", envString("ARENA_CLIENT_DIR", ""), "Path to static client directory (optional)")
	fsFlags.StringVar(&cfg.DBPath, "db", envString("ARENA_DB", ""), "SQLite analytics database path (empty disables analytics)")
	fsFlags.StringVar(&cfg.JWTSecret, "jwt-secret", envString("ARENA_JWT_SECRET", ""), "HS256 secret for join tickets (empty disables)")
	fsFlags.StringVar(&cfg.PublicURL, "public-url", envString("ARENA_PUBLIC_URL", "http://localhost:8080"), "Base URL encoded in room QR codes")
	fsFlags.IntVar(&cfg.MaxRooms, "max-rooms", envInt("ARENA_MAX_ROOMS", DefaultMaxRooms), "Maximum concurrently open rooms")
	fsFlags.IntVar(&cfg.Room.MaxClients, "max-clients", envInt("ARENA_MAX_CLIENTS", def.MaxClients), "Maximum players per room")
	fsFlags.Float64Var(&cfg.Room.WorldSize, "world-size", envFloat("ARENA_WORLD_SIZE", def.WorldSize), "World side length")
	fsFlags.IntVar(&cfg.Room.MaxCoins, "max-coins", envInt("ARENA_MAX_COINS", def.MaxCoins), "Coin population per room")
	fsFlags.IntVar(&cfg.Room.MaxViruses, "max-viruses", envInt("ARENA_MAX_VIRUSES", def.MaxViruses), "Virus population per room")
	fsFlags.IntVar(&cfg.Room.TickRate, "tick-rate", envInt("ARENA_TICK_RATE", def.TickRate), "Simulation ticks per second")
	if err := fsFlags.Parse(args); err != nil {
		return ServerConfig{}, err
	}
	if cfg.MaxRooms <= 0 {
		cfg.MaxRooms = DefaultMaxRooms
	}
	cfg.Room = cfg.Room.normalized()
	return cfg, nil
}

func envString(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("config: ignoring %s=%q: %v", key, v, err)
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("config: ignoring %s=%q: %v", key, v, err)
		return fallback
	}
	return f
}
