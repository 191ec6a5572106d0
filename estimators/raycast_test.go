package estimators

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
)

func TestRaycastFlatTerrainExact(t *testing.T) {
	terrain := FlatTerrain{ElevationM: 0.0}
	origin := r3.Vector{X: 0, Y: 100, Z: 0}
	dir := r3.Vector{X: 0, Y: -1, Z: 1}.Mul(1 / math.Sqrt2)

	hit, ok := RaycastToTerrain(origin, dir, terrain, 1.0, 1000.0)
	if !ok {
		t.Fatal("expected terrain hit")
	}
	// The surface is linear along the ray, so interpolation lands on it
	// exactly: 100m forward, elevation 0.
	want := r3.Vector{X: 0, Y: 0, Z: 100}
	if !vectorsAlmostEqual(hit, want, 1e-9) {
		t.Errorf("flat terrain hit: got %v, want %v", hit, want)
	}
}

func TestRaycastSlopeTerrainOnSurface(t *testing.T) {
	terrain := SlopeTerrain{BaseElevationM: 40.0, NorthGradient: 0.05, EastGradient: -0.02}
	origin := r3.Vector{X: 20, Y: 150, Z: 10}
	dir := r3.Vector{X: 0.2, Y: -0.8, Z: 0.6}
	dir = dir.Mul(1 / dir.Norm())

	hit, ok := RaycastToTerrain(origin, dir, terrain, 1.0, 1000.0)
	if !ok {
		t.Fatal("expected terrain hit")
	}

	// Hit must sit on the surface and on the ray.
	surf := terrain.ElevationAt(hit.Z, hit.X)
	if !almostEqualF(hit.Y, surf, 1e-9) {
		t.Errorf("hit elevation %f not on surface %f", hit.Y, surf)
	}
	along := hit.Sub(origin)
	cross := along.Cross(dir).Norm()
	if cross > 1e-9 {
		t.Errorf("hit deviates from ray: |cross| = %g", cross)
	}
}

func TestRaycastRejectsNonDescendingRays(t *testing.T) {
	terrain := FlatTerrain{ElevationM: 0.0}
	origin := r3.Vector{X: 0, Y: 100, Z: 0}

	for _, dir := range []r3.Vector{
		{X: 0, Y: 0, Z: 1},    // level
		{X: 0, Y: 0.5, Z: 1},  // climbing
		{X: 0, Y: -1e-9, Z: 1}, // descending too slowly to ever land
	} {
		if _, ok := RaycastToTerrain(origin, dir, terrain, 1.0, 1000.0); ok {
			t.Errorf("direction %v should not produce a hit", dir)
		}
	}
}

func TestRaycastStopsAtMaxDistance(t *testing.T) {
	terrain := FlatTerrain{ElevationM: 0.0}
	origin := r3.Vector{X: 0, Y: 2000, Z: 0}
	dir := r3.Vector{X: 0, Y: -1, Z: 1}.Mul(1 / math.Sqrt2)

	// The ray only descends ~707m over the 1000m march.
	if _, ok := RaycastToTerrain(origin, dir, terrain, 1.0, 1000.0); ok {
		t.Error("hit reported beyond the march limit")
	}

	if _, ok := RaycastToTerrain(origin, dir, terrain, 1.0, 3000.0); !ok {
		t.Error("expected hit with extended march limit")
	}
}

func TestRaycastDefaultStepAndRange(t *testing.T) {
	terrain := FlatTerrain{ElevationM: 0.0}
	origin := r3.Vector{X: 0, Y: 500, Z: 0}
	dir := r3.Vector{X: 0, Y: -1, Z: 0}

	hit, ok := RaycastToTerrain(origin, dir, terrain, 0, 0)
	if !ok {
		t.Fatal("expected hit with default step and range")
	}
	if !vectorsAlmostEqual(hit, r3.Vector{X: 0, Y: 0, Z: 0}, 1e-9) {
		t.Errorf("straight-down hit: got %v, want origin ground point", hit)
	}
}

func TestGridTerrainBilinear(t *testing.T) {
	g := &GridTerrain{
		OriginNorthingM: 0,
		OriginEastingM:  0,
		CellSizeM:       10,
		Elevations: [][]float64{
			{0, 10},
			{20, 30},
		},
	}

	cases := []struct {
		n, e, want float64
	}{
		{0, 0, 0},
		{0, 10, 10},
		{10, 0, 20},
		{5, 5, 15},     // center of the cell
		{0, 5, 5},      // edge midpoint
		{-100, -100, 0}, // clamped to the near corner
		{100, 100, 30},  // clamped to the far corner
	}
	for _, c := range cases {
		if got := g.ElevationAt(c.n, c.e); !almostEqualF(got, c.want, 1e-9) {
			t.Errorf("ElevationAt(%f, %f): got %f, want %f", c.n, c.e, got, c.want)
		}
	}
}
