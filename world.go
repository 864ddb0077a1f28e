package main

import (
	"slices"
	"time"
)

// World is the per-room entity aggregate. Only the owning room's loop
// goroutine mutates it.
type World struct {
	Size    float64
	Now     int64 // simulated room time in milliseconds
	Tick    uint64
	Cells   map[uint32]*Cell
	Coins   map[uint32]*Coin
	Viruses map[uint32]*Virus

	owned  map[string][]uint32 // owner -> cell ids, ascending
	nextID uint32

	carry time.Duration // sub-millisecond remainder not yet in Now
}

// NewWorld creates an empty square world of the given side length
func NewWorld(size float64) *World {
	return &World{
		Size:    size,
		Cells:   make(map[uint32]*Cell),
		Coins:   make(map[uint32]*Coin),
		Viruses: make(map[uint32]*Virus),
		owned:   make(map[string][]uint32),
	}
}

func (w *World) newID() uint32 {
	w.nextID++
	return w.nextID
}

// advance moves room time forward by one tick
func (w *World) advance(dt time.Duration) {
	w.Tick++
	w.carry += dt
	ms := w.carry.Milliseconds()
	w.Now += ms
	w.carry -= time.Duration(ms) * time.Millisecond
}

func (w *World) addCell(c *Cell) {
	if c.ID == 0 {
		c.ID = w.newID()
	}
	w.Cells[c.ID] = c
	w.owned[c.OwnerID] = append(w.owned[c.OwnerID], c.ID)
}

func (w *World) removeCell(id uint32) {
	c, ok := w.Cells[id]
	if !ok {
		return
	}
	c.Alive = false
	delete(w.Cells, id)
	ids := w.owned[c.OwnerID]
	if i := slices.Index(ids, id); i >= 0 {
		ids = slices.Delete(ids, i, i+1)
	}
	if len(ids) == 0 {
		delete(w.owned, c.OwnerID)
	} else {
		w.owned[c.OwnerID] = ids
	}
}

func (w *World) addCoin(c *Coin) {
	if c.ID == 0 {
		c.ID = w.newID()
	}
	w.Coins[c.ID] = c
}

func (w *World) addVirus(v *Virus) {
	if v.ID == 0 {
		v.ID = w.newID()
	}
	w.Viruses[v.ID] = v
}

// getOwnedCells returns the owner's live cells in id order
func (w *World) getOwnedCells(owner string) []*Cell {
	ids := w.owned[owner]
	out := make([]*Cell, 0, len(ids))
	for _, id := range ids {
		if c, ok := w.Cells[id]; ok && c.Alive {
			out = append(out, c)
		}
	}
	return out
}

// countOwnedPieces returns how many cells the owner currently controls
func (w *World) countOwnedPieces(owner string) int {
	return len(w.owned[owner])
}

// owners returns every owner with at least one cell, sorted
func (w *World) owners() []string {
	out := make([]string, 0, len(w.owned))
	for id := range w.owned {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// Iteration over the maps below is sorted so a tick resolves identically
// for the same inputs.

func (w *World) sortedCells() []*Cell {
	ids := make([]uint32, 0, len(w.Cells))
	for id := range w.Cells {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	out := make([]*Cell, len(ids))
	for i, id := range ids {
		out[i] = w.Cells[id]
	}
	return out
}

func (w *World) sortedCoinIDs() []uint32 {
	ids := make([]uint32, 0, len(w.Coins))
	for id := range w.Coins {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (w *World) sortedVirusIDs() []uint32 {
	ids := make([]uint32, 0, len(w.Viruses))
	for id := range w.Viruses {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// clamp keeps a point inside [0, Size] on both axes
func (w *World) clamp(x, y float64) (float64, float64) {
	return Clamp(x, 0, w.Size), Clamp(y, 0, w.Size)
}

func (w *World) totalMass(owner string) float64 {
	total := 0.0
	for _, c := range w.getOwnedCells(owner) {
		total += c.Mass
	}
	return total
}
