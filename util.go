package main

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"math"
	mrand "math/rand/v2"

	"github.com/google/uuid"
)

// GenerateID returns a random hex string of the given byte length
func GenerateID(byteLen int) string {
	b := make([]byte, byteLen)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// GenerateRoomID returns a random UUID v4 string used as a room key
func GenerateRoomID() string {
	return uuid.NewString()
}

// newRoomRand returns a PCG generator seeded from crypto/rand.
// Each room gets its own so rooms never share mutable state.
func newRoomRand() *mrand.Rand {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return mrand.New(mrand.NewPCG(binary.LittleEndian.Uint64(b[:8]), binary.LittleEndian.Uint64(b[8:])))
}

// Clamp restricts v to [min, max]
func Clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// Distance returns the distance between two points
func Distance(x1, y1, x2, y2 float64) float64 {
	dx := x2 - x1
	dy := y2 - y1
	return math.Sqrt(dx*dx + dy*dy)
}

// finite reports whether v is neither NaN nor ±Inf
func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
