package main

import (
	"math/rand/v2"

	"github.com/lucasb-eyer/go-colorful"
)

// generateCoins fills the coin population up to the configured maximum
func (r *Room) generateCoins() {
	for len(r.world.Coins) < r.cfg.MaxCoins {
		r.spawnCoin()
	}
}

// generateViruses fills the virus population up to the configured maximum
func (r *Room) generateViruses() {
	for len(r.world.Viruses) < r.cfg.MaxViruses {
		r.spawnVirus()
	}
}

// spawnCoin places one coin. It never exceeds MaxCoins.
func (r *Room) spawnCoin() *Coin {
	if len(r.world.Coins) >= r.cfg.MaxCoins {
		return nil
	}
	t := r.tuning
	x, y := r.findClearPosition(t.CoinRadius)
	value := t.CoinMinValue
	if span := t.CoinMaxValue - t.CoinMinValue; span > 0 {
		value += r.rng.IntN(span + 1)
	}
	c := &Coin{
		X:      x,
		Y:      y,
		Value:  value,
		Radius: t.CoinRadius,
		Color:  coinPalette[r.rng.IntN(len(coinPalette))],
	}
	r.world.addCoin(c)
	return c
}

// spawnVirus places one virus. It never exceeds MaxViruses.
func (r *Room) spawnVirus() *Virus {
	if len(r.world.Viruses) >= r.cfg.MaxViruses {
		return nil
	}
	x, y := r.findClearPosition(r.tuning.VirusRadius)
	v := &Virus{
		X:      x,
		Y:      y,
		Radius: r.tuning.VirusRadius,
		Color:  VirusColor,
	}
	r.world.addVirus(v)
	return v
}

// replenish tops populations back up, bounded per tick
func (r *Room) replenish() {
	budget := r.tuning.SpawnPerTick
	for budget > 0 && len(r.world.Coins) < r.cfg.MaxCoins {
		r.spawnCoin()
		budget--
	}
	for budget > 0 && len(r.world.Viruses) < r.cfg.MaxViruses {
		r.spawnVirus()
		budget--
	}
}

// findClearPosition picks a uniform random point that does not overlap any
// cell or virus. After SpawnAttempts misses the last candidate is used
// anyway so spawning always terminates.
func (r *Room) findClearPosition(radius float64) (float64, float64) {
	size := r.world.Size
	margin := radius
	if 2*margin >= size {
		margin = 0
	}
	attempts := r.tuning.SpawnAttempts
	if attempts < 1 {
		attempts = 1
	}
	var x, y float64
	for i := 0; i < attempts; i++ {
		x = margin + r.rng.Float64()*(size-2*margin)
		y = margin + r.rng.Float64()*(size-2*margin)
		if !r.overlapsAny(x, y, radius) {
			return x, y
		}
	}
	return x, y
}

func (r *Room) overlapsAny(x, y, radius float64) bool {
	for _, c := range r.world.Cells {
		if CheckCollision(x, y, radius, c.X, c.Y, c.Radius) {
			return true
		}
	}
	for _, v := range r.world.Viruses {
		if CheckCollision(x, y, radius, v.X, v.Y, v.Radius) {
			return true
		}
	}
	return false
}

// newPlayerCell creates a base-mass cell for o at a clear position
func (r *Room) newPlayerCell(o *Owner) *Cell {
	c := &Cell{
		OwnerID: o.ID,
		Name:    o.Name,
		Color:   o.Color,
		Alive:   true,
		LastSeq: o.LastSeq,
	}
	c.SetMass(r.tuning.BaseMass, r.tuning.MinMass)
	c.X, c.Y = r.findClearPosition(c.Radius)
	c.TargetX, c.TargetY = c.X, c.Y
	r.world.addCell(c)
	return c
}

// respawnPlayer resets an owner to exactly one fresh cell. Identity and
// display name are preserved; the color is regenerated.
func (r *Room) respawnPlayer(ownerID string) *Cell {
	o, ok := r.owners[ownerID]
	if !ok {
		return nil
	}
	for _, c := range r.world.getOwnedCells(ownerID) {
		r.world.removeCell(c.ID)
	}
	o.Color = generatePlayerColor(r.rng)
	o.Respawns++
	c := r.newPlayerCell(o)
	r.track(EvtRespawn, ownerID, "")
	return c
}

// generatePlayerColor returns a saturated hex color from a random hue
func generatePlayerColor(rng *rand.Rand) string {
	return colorful.Hsl(rng.Float64()*360, 0.75, 0.55).Clamped().Hex()
}
