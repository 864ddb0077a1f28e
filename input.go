package main

import (
	"math"
	"sync"
)

// MoveInput is the decoded `move` message. Absolute x/y wins over dx/dy.
type MoveInput struct {
	Seq *int64   `json:"seq" jsonschema:"required,description=Strictly increasing per connection"`
	X   *float64 `json:"x,omitempty" jsonschema:"description=Absolute target X in world units"`
	Y   *float64 `json:"y,omitempty" jsonschema:"description=Absolute target Y in world units"`
	DX  *float64 `json:"dx,omitempty" jsonschema:"description=Direction X when no absolute target is given"`
	DY  *float64 `json:"dy,omitempty" jsonschema:"description=Direction Y when no absolute target is given"`
}

// Mailbox is a single-slot, last-value-wins inbox written by the network
// goroutine and drained once per tick by the room loop.
type Mailbox struct {
	mu      sync.Mutex
	move    MoveInput
	hasMove bool
	split   bool
	moveSeq int64 // highest sequence ever accepted
	primed  bool
}

// PostMove stores in as the pending move. Inputs without a sequence, or
// with a sequence not above the pending one, are dropped.
func (m *Mailbox) PostMove(in MoveInput) bool {
	if in.Seq == nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.primed && *in.Seq <= m.moveSeq {
		return false
	}
	m.move = in
	m.moveSeq = *in.Seq
	m.hasMove = true
	m.primed = true
	return true
}

// PostSplit flags a split for the next tick. Repeated requests collapse.
func (m *Mailbox) PostSplit() {
	m.mu.Lock()
	m.split = true
	m.mu.Unlock()
}

// take consumes whatever is pending
func (m *Mailbox) take() (move MoveInput, hasMove, split bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	move, hasMove, split = m.move, m.hasMove, m.split
	m.move = MoveInput{}
	m.hasMove = false
	m.split = false
	return
}

// drainMailboxes applies pending input for every owner at the tick boundary
func (r *Room) drainMailboxes() {
	for _, id := range r.ownerIDs() {
		o := r.owners[id]
		move, hasMove, split := o.mailbox.take()
		if hasMove {
			r.handleInput(o, move)
		}
		if split {
			r.handleSplit(o.ID)
		}
	}
}

// handleInput retargets every owned cell whose last applied sequence is
// below in.Seq. Malformed input is dropped without touching state.
func (r *Room) handleInput(o *Owner, in MoveInput) {
	if in.Seq == nil {
		return
	}
	seq := *in.Seq

	absolute := in.X != nil && in.Y != nil
	var ax, ay, dx, dy float64
	switch {
	case absolute:
		ax, ay = *in.X, *in.Y
		if !finite(ax) || !finite(ay) {
			return
		}
	case in.DX != nil && in.DY != nil:
		dx, dy = *in.DX, *in.DY
		if !finite(dx) || !finite(dy) {
			return
		}
		l := math.Hypot(dx, dy)
		if l > 1e-9 {
			dx, dy = dx/l, dy/l
		} else {
			dx, dy = 0, 0
		}
	default:
		return
	}

	for _, c := range r.world.getOwnedCells(o.ID) {
		if seq <= c.LastSeq {
			continue
		}
		if absolute {
			c.TargetX, c.TargetY = r.world.clamp(ax, ay)
		} else {
			reach := r.tuning.DirectionReach
			c.TargetX, c.TargetY = r.world.clamp(c.X+dx*reach, c.Y+dy*reach)
		}
		c.LastSeq = seq
	}
	if seq > o.LastSeq {
		o.LastSeq = seq
	}
}
