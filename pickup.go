package main

// Coin is a mass pickup. It is destroyed on contact and replaced elsewhere.
type Coin struct {
	ID     uint32
	X, Y   float64
	Value  int
	Radius float64
	Color  string
}

// Virus is a static hazard that pops large cells.
type Virus struct {
	ID     uint32
	X, Y   float64
	Radius float64
	Color  string
}

const VirusColor = "#33ff33"

var coinPalette = []string{
	"#ff3333", "#33cc33", "#3399ff", "#ff8833", "#aa44ff",
	"#ffcc00", "#88ddff", "#88ff00", "#ff66aa",
}

// ToState converts to protocol state
func (c *Coin) ToState() CoinState {
	return CoinState{
		ID:     c.ID,
		X:      round1(c.X),
		Y:      round1(c.Y),
		Value:  c.Value,
		Radius: c.Radius,
		Color:  c.Color,
	}
}

// ToState converts to protocol state
func (v *Virus) ToState() VirusState {
	return VirusState{
		ID:     v.ID,
		X:      round1(v.X),
		Y:      round1(v.Y),
		Radius: v.Radius,
		Color:  v.Color,
	}
}
