package main

import "math"

// SpatialCellSize is roughly twice the radius of a mid-sized cell
const SpatialCellSize = 100.0

// Entity kinds stored in the grid
const (
	KindCell byte = 'c'
	KindCoin byte = 'k'
)

// EntityRef identifies an entity in the grid
type EntityRef struct {
	Kind byte
	ID   uint32
}

// SpatialGrid is a uniform grid for broad-phase collision queries. It is
// rebuilt from the aggregate by the room loop and never shared.
type SpatialGrid struct {
	cols, rows int
	cells      [][]EntityRef
}

// NewSpatialGrid sizes a grid to cover a worldW x worldH area
func NewSpatialGrid(worldW, worldH float64) *SpatialGrid {
	cols := int(math.Ceil(worldW/SpatialCellSize)) + 1
	rows := int(math.Ceil(worldH/SpatialCellSize)) + 1
	if cols < 1 {
		cols = 1
	}
	if rows < 1 {
		rows = 1
	}
	return &SpatialGrid{
		cols:  cols,
		rows:  rows,
		cells: make([][]EntityRef, cols*rows),
	}
}

// Clear resets all cells (keeps allocated capacity)
func (g *SpatialGrid) Clear() {
	for i := range g.cells {
		g.cells[i] = g.cells[i][:0]
	}
}

func (g *SpatialGrid) span(x, y, radius float64) (minCX, minCY, maxCX, maxCY int) {
	minCX = g.clampCol(int((x - radius) / SpatialCellSize))
	maxCX = g.clampCol(int((x + radius) / SpatialCellSize))
	minCY = g.clampRow(int((y - radius) / SpatialCellSize))
	maxCY = g.clampRow(int((y + radius) / SpatialCellSize))
	return
}

func (g *SpatialGrid) clampCol(c int) int {
	if c < 0 {
		return 0
	}
	if c >= g.cols {
		return g.cols - 1
	}
	return c
}

func (g *SpatialGrid) clampRow(r int) int {
	if r < 0 {
		return 0
	}
	if r >= g.rows {
		return g.rows - 1
	}
	return r
}

// Insert adds an entity reference at the given position
func (g *SpatialGrid) Insert(x, y float64, ref EntityRef) {
	g.InsertCircle(x, y, 0, ref)
}

// InsertCircle adds an entity reference to all cells overlapping its bounding box
func (g *SpatialGrid) InsertCircle(x, y, radius float64, ref EntityRef) {
	minCX, minCY, maxCX, maxCY := g.span(x, y, radius)
	for cy := minCY; cy <= maxCY; cy++ {
		for cx := minCX; cx <= maxCX; cx++ {
			idx := cy*g.cols + cx
			g.cells[idx] = append(g.cells[idx], ref)
		}
	}
}

// Query returns all entity refs in cells that overlap the given bounding box.
// A ref inserted as a circle may appear more than once.
func (g *SpatialGrid) Query(x, y, radius float64) []EntityRef {
	return g.QueryBuf(x, y, radius, nil)
}

// QueryBuf appends results to buf and returns the extended slice, avoiding per-call allocation
func (g *SpatialGrid) QueryBuf(x, y, radius float64, buf []EntityRef) []EntityRef {
	minCX, minCY, maxCX, maxCY := g.span(x, y, radius)
	for cy := minCY; cy <= maxCY; cy++ {
		for cx := minCX; cx <= maxCX; cx++ {
			buf = append(buf, g.cells[cy*g.cols+cx]...)
		}
	}
	return buf
}
