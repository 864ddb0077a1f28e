package main

import (
	"fmt"
	"math"
	"slices"
)

// CheckCollision checks if two circles overlap
func CheckCollision(x1, y1, r1, x2, y2, r2 float64) bool {
	dx := x2 - x1
	dy := y2 - y1
	dist2 := dx*dx + dy*dy
	radSum := r1 + r2
	return dist2 < radSum*radSum
}

// byMassDesc orders heavier cells first, ties broken by id
func byMassDesc(a, b *Cell) int {
	if a.Mass != b.Mass {
		if a.Mass > b.Mass {
			return -1
		}
		return 1
	}
	return int(a.ID) - int(b.ID)
}

// resolveCoinCollisions credits overlapping coins to cells and replaces
// every consumed coin in the same tick.
func (r *Room) resolveCoinCollisions() {
	w := r.world
	if len(w.Coins) == 0 {
		return
	}
	r.grid.Clear()
	for _, id := range w.sortedCoinIDs() {
		k := w.Coins[id]
		r.grid.Insert(k.X, k.Y, EntityRef{Kind: KindCoin, ID: id})
	}

	eaten := 0
	buf := r.queryBuf[:0]
	for _, c := range w.sortedCells() {
		if !c.Alive {
			continue
		}
		buf = r.grid.QueryBuf(c.X, c.Y, c.Radius+r.tuning.CoinRadius, buf[:0])
		for _, ref := range buf {
			k, ok := w.Coins[ref.ID]
			if !ok {
				continue
			}
			if !CheckCollision(c.X, c.Y, c.Radius, k.X, k.Y, k.Radius) {
				continue
			}
			c.AddMass(float64(k.Value))
			c.Score += k.Value
			delete(w.Coins, ref.ID)
			eaten++
		}
	}
	r.queryBuf = buf

	for i := 0; i < eaten; i++ {
		r.spawnCoin()
	}
}

// resolveHazardCollisions pops any cell above VirusPopMass that overlaps a
// virus. The virus is consumed and replaced. Smaller cells pass through.
func (r *Room) resolveHazardCollisions() {
	w := r.world
	if len(w.Viruses) == 0 || len(w.Cells) == 0 {
		return
	}
	r.rebuildCellGrid()

	buf := r.queryBuf[:0]
	for _, vid := range w.sortedVirusIDs() {
		v, ok := w.Viruses[vid]
		if !ok {
			continue
		}
		buf = r.grid.QueryBuf(v.X, v.Y, v.Radius, buf[:0])
		var hit []*Cell
		for _, ref := range buf {
			c, ok := w.Cells[ref.ID]
			if !ok || !c.Alive || slices.Contains(hit, c) {
				continue
			}
			if c.Mass <= r.tuning.VirusPopMass {
				continue
			}
			if CheckCollision(c.X, c.Y, c.Radius, v.X, v.Y, v.Radius) {
				hit = append(hit, c)
			}
		}
		if len(hit) == 0 {
			continue
		}
		slices.SortFunc(hit, byMassDesc)
		for _, c := range hit {
			if r.popCell(c) > 0 {
				delete(w.Viruses, vid)
				r.track(EvtPop, c.OwnerID, fmt.Sprintf(`{"mass":%.1f}`, c.Mass))
				r.spawnVirus()
				break
			}
		}
	}
	r.queryBuf = buf
}

// resolvePlayerCollisions lets heavier cells eat lighter cells of other
// owners. Same-owner pairs are left to the merge controller.
func (r *Room) resolvePlayerCollisions() {
	w := r.world
	if len(w.Cells) < 2 {
		return
	}
	r.rebuildCellGrid()

	order := w.sortedCells()
	slices.SortFunc(order, byMassDesc)

	var victims []string
	buf := r.queryBuf[:0]
	for _, a := range order {
		if !a.Alive {
			continue
		}
		buf = r.grid.QueryBuf(a.X, a.Y, a.Radius, buf[:0])
		for _, ref := range buf {
			b, ok := w.Cells[ref.ID]
			if !ok || b == a || !b.Alive {
				continue
			}
			if areSameOwner(a, a.OwnerID, b, b.OwnerID) {
				continue
			}
			if !r.canEat(a, b) {
				continue
			}
			r.eat(a, b)
			if w.countOwnedPieces(b.OwnerID) == 0 {
				victims = append(victims, b.OwnerID)
			}
		}
	}
	r.queryBuf = buf

	for _, id := range victims {
		if w.countOwnedPieces(id) == 0 {
			r.respawnPlayer(id)
		}
	}
}

// canEat applies the mass ratio gate and the penetration margin
func (r *Room) canEat(big, small *Cell) bool {
	if big.Mass < small.Mass*r.tuning.EatRatio {
		return false
	}
	reach := big.Radius - r.tuning.EatOverlap*small.Radius
	if reach <= 0 {
		return false
	}
	return Distance(big.X, big.Y, small.X, small.Y) < reach
}

func (r *Room) eat(big, small *Cell) {
	big.AddMass(small.Mass)
	big.Score += int(math.Round(small.Mass))
	r.world.removeCell(small.ID)
	r.track(EvtEat, big.OwnerID, fmt.Sprintf(`{"victim":%q,"mass":%.1f}`, small.OwnerID, small.Mass))
}

func (r *Room) rebuildCellGrid() {
	r.grid.Clear()
	for _, c := range r.world.sortedCells() {
		if c.Alive {
			r.grid.InsertCircle(c.X, c.Y, c.Radius, EntityRef{Kind: KindCell, ID: c.ID})
		}
	}
}
