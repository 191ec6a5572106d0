package estimators

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
)

// Terrain is a queryable elevation field shared with the terrain
// collaborator: (northing, easting) -> elevation above the common datum.
// Implementations must be pure and safe for concurrent reads.
type Terrain interface {
	ElevationAt(northingM, eastingM float64) float64
}

// FlatTerrain is a constant-elevation surface.
type FlatTerrain struct {
	ElevationM float64
}

func (t FlatTerrain) ElevationAt(northingM, eastingM float64) float64 {
	return t.ElevationM
}

// SlopeTerrain is a planar surface rising linearly with northing/easting.
type SlopeTerrain struct {
	BaseElevationM float64
	NorthGradient  float64 // elevation gain per meter of northing
	EastGradient   float64 // elevation gain per meter of easting
}

func (t SlopeTerrain) ElevationAt(northingM, eastingM float64) float64 {
	return t.BaseElevationM + northingM*t.NorthGradient + eastingM*t.EastGradient
}

// GridTerrain is a regular elevation grid with bilinear interpolation,
// the in-tree stand-in for an external DEM provider.
type GridTerrain struct {
	OriginNorthingM float64
	OriginEastingM  float64
	CellSizeM       float64
	// Elevations[row][col]: row along northing, col along easting.
	Elevations [][]float64
}

// gridFile is the on-disk JSON form accepted by LoadGridTerrain.
type gridFile struct {
	OriginNorthingM float64     `json:"origin_northing_m"`
	OriginEastingM  float64     `json:"origin_easting_m"`
	CellSizeM       float64     `json:"cell_size_m"`
	Elevations      [][]float64 `json:"elevations"`
}

// LoadGridTerrain reads a grid terrain definition from a JSON file.
func LoadGridTerrain(path string) (*GridTerrain, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read terrain grid: %w", err)
	}
	var gf gridFile
	if err := json.Unmarshal(data, &gf); err != nil {
		return nil, fmt.Errorf("failed to parse terrain grid: %w", err)
	}
	if gf.CellSizeM <= 0 {
		return nil, fmt.Errorf("terrain grid cell_size_m must be positive, got %f", gf.CellSizeM)
	}
	if len(gf.Elevations) < 2 || len(gf.Elevations[0]) < 2 {
		return nil, fmt.Errorf("terrain grid must be at least 2x2")
	}
	cols := len(gf.Elevations[0])
	for i, row := range gf.Elevations {
		if len(row) != cols {
			return nil, fmt.Errorf("terrain grid row %d has %d cells, want %d", i, len(row), cols)
		}
	}
	return &GridTerrain{
		OriginNorthingM: gf.OriginNorthingM,
		OriginEastingM:  gf.OriginEastingM,
		CellSizeM:       gf.CellSizeM,
		Elevations:      gf.Elevations,
	}, nil
}

// ElevationAt bilinearly interpolates the grid; queries outside the grid
// clamp to the nearest edge cell.
func (t *GridTerrain) ElevationAt(northingM, eastingM float64) float64 {
	rows := len(t.Elevations)
	cols := len(t.Elevations[0])

	rf := (northingM - t.OriginNorthingM) / t.CellSizeM
	cf := (eastingM - t.OriginEastingM) / t.CellSizeM
	rf = math.Max(0, math.Min(rf, float64(rows-1)))
	cf = math.Max(0, math.Min(cf, float64(cols-1)))

	r0 := int(math.Floor(rf))
	c0 := int(math.Floor(cf))
	if r0 >= rows-1 {
		r0 = rows - 2
	}
	if c0 >= cols-1 {
		c0 = cols - 2
	}
	fr := rf - float64(r0)
	fc := cf - float64(c0)

	e00 := t.Elevations[r0][c0]
	e01 := t.Elevations[r0][c0+1]
	e10 := t.Elevations[r0+1][c0]
	e11 := t.Elevations[r0+1][c0+1]

	top := e00*(1-fc) + e01*fc
	bot := e10*(1-fc) + e11*fc
	return top*(1-fr) + bot*fr
}
