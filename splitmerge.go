package main

import (
	"fmt"
	"math"
	"slices"
)

// areSameOwner is the single ownership predicate shared by the eat and
// merge paths.
func areSameOwner(a *Cell, ownerA string, b *Cell, ownerB string) bool {
	if a == nil || b == nil {
		return false
	}
	return ownerA != "" && ownerA == ownerB
}

// handleSplit splits every eligible cell of the owner once, heaviest first,
// while the owner is under the piece cap. Returns the number of new pieces.
func (r *Room) handleSplit(ownerID string) int {
	cells := r.world.getOwnedCells(ownerID)
	slices.SortFunc(cells, byMassDesc)

	created := 0
	for _, c := range cells {
		if r.world.countOwnedPieces(ownerID) >= r.tuning.MaxPieces {
			break
		}
		dx, dy := r.splitDirection(c)
		if r.splitCell(c, dx, dy) != nil {
			created++
		}
	}
	if created > 0 {
		r.track(EvtSplit, ownerID, fmt.Sprintf(`{"pieces":%d}`, created))
	}
	return created
}

// splitCell halves c after charging SplitToll and launches the new piece
// along (dx, dy). Nothing changes when c is too light.
func (r *Room) splitCell(c *Cell, dx, dy float64) *Cell {
	t := r.tuning
	if c.Mass < t.SplitMinMass {
		return nil
	}
	half := (c.Mass - t.SplitToll) / 2
	if half < t.MinMass {
		return nil
	}
	c.SetMass(half, t.MinMass)
	return r.launchPiece(c, half, dx, dy)
}

// popCell forces c through the split logic after touching a virus: it is
// divided into up to VirusPopPieces equal pieces radiating outward, limited
// by the piece cap and by MinMass. Returns the number of new pieces.
func (r *Room) popCell(c *Cell) int {
	t := r.tuning
	n := t.VirusPopPieces
	if room := t.MaxPieces - r.world.countOwnedPieces(c.OwnerID) + 1; n > room {
		n = room
	}
	for n > 1 && (c.Mass-float64(n-1)*t.SplitToll)/float64(n) < t.MinMass {
		n--
	}
	if n < 2 {
		return 0
	}

	total := c.Mass - float64(n-1)*t.SplitToll
	each := total / float64(n)
	c.SetMass(total-each*float64(n-1), t.MinMass)

	offset := r.rng.Float64() * 2 * math.Pi
	step := 2 * math.Pi / float64(n-1)
	for i := 0; i < n-1; i++ {
		a := offset + step*float64(i)
		r.launchPiece(c, each, math.Cos(a), math.Sin(a))
	}
	return n - 1
}

// launchPiece creates a split piece of the given mass next to parent,
// moving away from it, and starts the merge cooldown on both.
func (r *Room) launchPiece(parent *Cell, mass, dx, dy float64) *Cell {
	t := r.tuning
	now := r.world.Now
	mergeAt := now + t.MergeCooldown.Milliseconds()

	p := &Cell{
		OwnerID:      parent.OwnerID,
		Name:         parent.Name,
		Color:        parent.Color,
		LastSeq:      parent.LastSeq,
		Alive:        true,
		IsSplitPiece: true,
		SplitTime:    now,
		LastSplit:    now,
		MergeAt:      mergeAt,
		TargetX:      parent.TargetX,
		TargetY:      parent.TargetY,
		MomentumX:    dx * t.SplitImpulse,
		MomentumY:    dy * t.SplitImpulse,
	}
	p.SetMass(mass, t.MinMass)
	p.X, p.Y = r.world.clamp(parent.X+dx*parent.Radius, parent.Y+dy*parent.Radius)
	r.world.addCell(p)

	parent.LastSplit = now
	parent.MergeAt = mergeAt
	return p
}

// splitDirection points from the cell toward its steering target, or a
// random heading when the cell is sitting on its target.
func (r *Room) splitDirection(c *Cell) (float64, float64) {
	dx := c.TargetX - c.X
	dy := c.TargetY - c.Y
	if l := math.Hypot(dx, dy); l > 1e-6 {
		return dx / l, dy / l
	}
	a := r.rng.Float64() * 2 * math.Pi
	return math.Cos(a), math.Sin(a)
}

// applySplitAttraction pulls mergeable same-owner pieces toward each other
// so a split player visibly regroups instead of snapping together.
func (r *Room) applySplitAttraction(dt float64) {
	t := r.tuning
	settle := t.SettleDelay.Milliseconds()
	now := r.world.Now
	for _, owner := range r.world.owners() {
		cells := r.world.getOwnedCells(owner)
		if len(cells) < 2 {
			continue
		}
		for i := 0; i < len(cells); i++ {
			a := cells[i]
			if a.Phase(now, settle) != PhaseMergeable {
				continue
			}
			for j := i + 1; j < len(cells); j++ {
				b := cells[j]
				if b.Phase(now, settle) != PhaseMergeable {
					continue
				}
				dx := b.X - a.X
				dy := b.Y - a.Y
				dist := math.Hypot(dx, dy)
				if dist <= t.SpacingTolerance {
					continue
				}
				pull := math.Min(t.AttractionRate*dist, t.MaxAttraction) * dt
				if pull > dist {
					pull = dist
				}
				ux, uy := dx/dist, dy/dist
				total := a.Mass + b.Mass
				sa := pull * b.Mass / total
				sb := pull * a.Mass / total
				a.X, a.Y = r.world.clamp(a.X+ux*sa, a.Y+uy*sa)
				b.X, b.Y = r.world.clamp(b.X-ux*sb, b.Y-uy*sb)
			}
		}
	}
}

// handleSplitMerging merges same-owner pairs that are both past cooldown
// and close enough that the smaller centre sits inside the larger cell.
func (r *Room) handleSplitMerging() {
	t := r.tuning
	settle := t.SettleDelay.Milliseconds()
	now := r.world.Now
	for _, owner := range r.world.owners() {
		cells := r.world.getOwnedCells(owner)
		for i := 0; i < len(cells); i++ {
			a := cells[i]
			for j := i + 1; j < len(cells); j++ {
				b := cells[j]
				if a == b || !a.Alive || !b.Alive {
					continue
				}
				if !areSameOwner(a, a.OwnerID, b, b.OwnerID) {
					continue
				}
				if a.Phase(now, settle) != PhaseMergeable || b.Phase(now, settle) != PhaseMergeable {
					continue
				}
				if Distance(a.X, a.Y, b.X, b.Y) >= math.Max(a.Radius, b.Radius) {
					continue
				}
				if keep := r.mergeCells(a, b); keep != a {
					a = keep
					cells[i] = keep
				}
			}
		}
	}
}

// mergeCells folds the lighter cell into the heavier one and returns the
// survivor. Mass is the exact sum; position is the mass-weighted centroid.
func (r *Room) mergeCells(a, b *Cell) *Cell {
	keep, gone := a, b
	if byMassDesc(b, a) < 0 {
		keep, gone = b, a
	}
	total := keep.Mass + gone.Mass
	x := (keep.X*keep.Mass + gone.X*gone.Mass) / total
	y := (keep.Y*keep.Mass + gone.Y*gone.Mass) / total

	keep.SetMass(total, r.tuning.MinMass)
	keep.X, keep.Y = r.world.clamp(x, y)
	keep.Score += gone.Score
	keep.MomentumX, keep.MomentumY = 0, 0
	if gone.LastSeq > keep.LastSeq {
		keep.LastSeq = gone.LastSeq
		keep.TargetX, keep.TargetY = gone.TargetX, gone.TargetY
	}
	r.world.removeCell(gone.ID)
	if r.world.countOwnedPieces(keep.OwnerID) == 1 {
		keep.IsSplitPiece = false
	}
	return keep
}
