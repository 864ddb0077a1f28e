package main

import "math"

// momentumEpsilon is the speed (units/s) below which split momentum is dropped
const momentumEpsilon = 1.0

// integrate advances every live cell by one tick: split momentum, then
// steering toward the target, then a clamp to the world bounds. It reads
// nothing produced by collision resolution and leaves mass untouched.
func (r *Room) integrate(dt float64) {
	if dt <= 0 {
		return
	}
	for _, c := range r.world.sortedCells() {
		if !c.Alive {
			continue
		}
		ox, oy := c.X, c.Y
		mx, my := r.applyMomentum(c, dt)
		sx, sy := r.steer(c, dt)
		c.X, c.Y = r.world.clamp(c.X+mx+sx, c.Y+my+sy)
		c.VX = (c.X - ox) / dt
		c.VY = (c.Y - oy) / dt
	}
}

// applyMomentum returns this tick's displacement from the cell's split
// momentum and decays the momentum exponentially toward zero.
func (r *Room) applyMomentum(c *Cell, dt float64) (float64, float64) {
	if !c.HasMomentum() {
		return 0, 0
	}
	dx, dy := c.MomentumX*dt, c.MomentumY*dt
	decay := math.Exp(-r.tuning.MomentumDecay * dt)
	c.MomentumX *= decay
	c.MomentumY *= decay
	if math.Hypot(c.MomentumX, c.MomentumY) < momentumEpsilon {
		c.MomentumX, c.MomentumY = 0, 0
	}
	return dx, dy
}

// steer moves a fraction of the remaining distance toward the target,
// capped by the mass-dependent top speed.
func (r *Room) steer(c *Cell, dt float64) (float64, float64) {
	dx := c.TargetX - c.X
	dy := c.TargetY - c.Y
	dist := math.Hypot(dx, dy)
	if dist < 0.5 {
		return 0, 0
	}
	step := dist * r.tuning.SteerFactor
	if limit := r.maxSpeed(c.Mass) * dt; step > limit {
		step = limit
	}
	return dx / dist * step, dy / dist * step
}

// maxSpeed falls off with mass; small pieces are capped at MaxSpeed
func (r *Room) maxSpeed(mass float64) float64 {
	t := r.tuning
	if mass <= t.BaseMass {
		return t.MaxSpeed
	}
	return t.MaxSpeed * math.Pow(t.BaseMass/mass, 0.25)
}
