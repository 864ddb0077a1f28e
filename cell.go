package main

import "math"

// RadiusFactor scales √mass into a radius so that rendered area tracks mass
// linearly.
const RadiusFactor = 4.0

// MergePhase is the split/merge state of a cell, derived from room time.
type MergePhase uint8

const (
	PhaseMergeable MergePhase = iota // cooldown elapsed (or never split)
	PhaseJustSplit                   // momentum still carrying the piece
	PhaseSettling                    // cooling down, not yet mergeable
)

func (p MergePhase) String() string {
	switch p {
	case PhaseJustSplit:
		return "just-split"
	case PhaseSettling:
		return "settling"
	default:
		return "mergeable"
	}
}

// Cell is one circle in the arena. A player owns one or more.
type Cell struct {
	ID      uint32
	OwnerID string
	Name    string
	X, Y    float64
	VX, VY  float64
	Mass    float64
	Radius  float64
	Color   string
	Score   int
	LastSeq int64
	Alive   bool

	IsSplitPiece bool
	SplitTime    int64 // room ms when this piece was created by a split
	LastSplit    int64 // room ms of the most recent split involving this cell
	MergeAt      int64 // room ms after which the cell may merge

	TargetX, TargetY     float64
	MomentumX, MomentumY float64
}

// calculateRadius maps mass to radius. Monotonic and concave.
func calculateRadius(mass float64) float64 {
	if mass <= 0 {
		return 0
	}
	return RadiusFactor * math.Sqrt(mass)
}

// SetMass updates mass and radius together, enforcing the floor.
func (c *Cell) SetMass(mass, floor float64) {
	if mass < floor {
		mass = floor
	}
	c.Mass = mass
	c.Radius = calculateRadius(mass)
}

// AddMass credits mass without a floor check (mass only grows here).
func (c *Cell) AddMass(delta float64) {
	c.Mass += delta
	c.Radius = calculateRadius(c.Mass)
}

// Phase returns where the cell is in the split/merge cycle at room time now.
func (c *Cell) Phase(now int64, settle int64) MergePhase {
	if now >= c.MergeAt {
		return PhaseMergeable
	}
	if c.IsSplitPiece && now < c.SplitTime+settle {
		return PhaseJustSplit
	}
	return PhaseSettling
}

// HasMomentum reports whether a split push is still active
func (c *Cell) HasMomentum() bool {
	return c.MomentumX != 0 || c.MomentumY != 0
}

// ToState converts to protocol state
func (c *Cell) ToState() CellState {
	return CellState{
		ID:     c.ID,
		Owner:  c.OwnerID,
		Name:   c.Name,
		X:      round1(c.X),
		Y:      round1(c.Y),
		VX:     round1(c.VX),
		VY:     round1(c.VY),
		Mass:   round1(c.Mass),
		Radius: round1(c.Radius),
		Color:  c.Color,
		Score:  c.Score,
		Seq:    c.LastSeq,
		Split:  c.IsSplitPiece,
	}
}
