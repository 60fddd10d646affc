package world

import (
	"math"

	"github.com/kasuganosora/npcsense/game/perception"
)

// Box is an axis-aligned occluder (a wall, a crate, a building).
type Box struct {
	Min perception.Vec3 `json:"min" mapstructure:"min"`
	Max perception.Vec3 `json:"max" mapstructure:"max"`
}

// Intersects reports whether the segment a→b passes through the box, using
// the slab method.
func (bx Box) Intersects(a, b perception.Vec3) bool {
	tmin, tmax := 0.0, 1.0
	d := b.Sub(a)
	axes := [3][4]float64{
		{a.X, d.X, bx.Min.X, bx.Max.X},
		{a.Y, d.Y, bx.Min.Y, bx.Max.Y},
		{a.Z, d.Z, bx.Min.Z, bx.Max.Z},
	}
	for _, ax := range axes {
		origin, dir, lo, hi := ax[0], ax[1], ax[2], ax[3]
		if math.Abs(dir) < 1e-12 {
			if origin < lo || origin > hi {
				return false
			}
			continue
		}
		t1 := (lo - origin) / dir
		t2 := (hi - origin) / dir
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		tmin = math.Max(tmin, t1)
		tmax = math.Min(tmax, t2)
		if tmin > tmax {
			return false
		}
	}
	return true
}
