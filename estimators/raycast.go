package estimators

import (
	"github.com/golang/geo/r3"
)

// A ray whose vertical component is this close to horizontal (or pointing
// up) can never meet terrain in this model.
const minDownwardComponent = 1e-6

// RaycastToTerrain marches a world-space ray (X=east, Y=up, Z=north) from
// origin until it crosses the terrain surface, and refines the crossing by
// linear interpolation between the last sample above ground and the first
// at or below it.
//
// The march is a fixed-step search: stepM increments out to maxDistM, no
// adaptive stepping. Predictable cost; a 1m step is adequate for expected
// terrain roughness and operating altitudes.
func RaycastToTerrain(origin, dir r3.Vector, terrain Terrain, stepM, maxDistM float64) (r3.Vector, bool) {
	if dir.Y >= -minDownwardComponent {
		return r3.Vector{}, false
	}
	if stepM <= 0 {
		stepM = 1.0
	}
	if maxDistM <= 0 {
		maxDistM = 1000.0
	}

	prev := origin
	prevAbove := origin.Y - terrain.ElevationAt(origin.Z, origin.X)

	for dist := stepM; dist <= maxDistM; dist += stepM {
		cur := origin.Add(dir.Mul(dist))
		ground := terrain.ElevationAt(cur.Z, cur.X)

		if cur.Y <= ground {
			below := ground - cur.Y
			frac := 1.0
			if prevAbove+below > 0 {
				frac = prevAbove / (prevAbove + below)
			}
			hit := prev.Add(cur.Sub(prev).Mul(frac))
			return hit, true
		}

		prev = cur
		prevAbove = cur.Y - ground
	}

	return r3.Vector{}, false
}
