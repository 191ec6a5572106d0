package models

import (
	"context"
	"math"
	"testing"

	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"
	genericservice "go.viam.com/rdk/services/generic"

	"github.com/PhilipQuirke/SkyCombImageLibrary-sub002/estimators"
)

func validConfig() *Config {
	return &Config{
		FocalLengthMM:  13.0,
		SensorWidthMM:  10.88,
		SensorHeightMM: 8.7,
		ImageWidthPx:   640,
		ImageHeightPx:  512,
	}
}

func TestConfigValidateDefaults(t *testing.T) {
	cfg := validConfig()
	if _, _, err := cfg.Validate(""); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	if cfg.Terrain.Type != "flat" {
		t.Errorf("default terrain type: got %q, want flat", cfg.Terrain.Type)
	}
	if cfg.MaxRangeM != 1000.0 {
		t.Errorf("default max range: got %f, want 1000", cfg.MaxRangeM)
	}
	if cfg.MinTrackObservations != 3 {
		t.Errorf("default min observations: got %d, want 3", cfg.MinTrackObservations)
	}
	if cfg.CalibrationMethod != "line-search" {
		t.Errorf("default calibration method: got %q, want line-search", cfg.CalibrationMethod)
	}
}

func TestConfigValidateErrors(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero focal length", func(c *Config) { c.FocalLengthMM = 0 }},
		{"zero sensor", func(c *Config) { c.SensorWidthMM = 0 }},
		{"zero image", func(c *Config) { c.ImageHeightPx = 0 }},
		{"unknown terrain", func(c *Config) { c.Terrain.Type = "mesh" }},
		{"grid without path", func(c *Config) { c.Terrain.Type = "grid" }},
		{"negative range", func(c *Config) { c.MaxRangeM = -5 }},
		{"bad method", func(c *Config) { c.CalibrationMethod = "annealing" }},
		{"auto without rate", func(c *Config) { c.AutoCalibrate = true }},
	}
	for _, c := range cases {
		cfg := validConfig()
		c.mutate(cfg)
		if _, _, err := cfg.Validate(""); err == nil {
			t.Errorf("%s: config accepted", c.name)
		}
	}
}

func TestBuildTerrain(t *testing.T) {
	terrain, err := BuildTerrain(TerrainConfig{Type: "flat", ElevationM: 25.0})
	if err != nil {
		t.Fatalf("flat terrain failed: %v", err)
	}
	if got := terrain.ElevationAt(1000, -1000); got != 25.0 {
		t.Errorf("flat elevation: got %f, want 25", got)
	}

	terrain, err = BuildTerrain(TerrainConfig{Type: "slope", ElevationM: 10.0, NorthGradient: 0.1})
	if err != nil {
		t.Fatalf("slope terrain failed: %v", err)
	}
	if got := terrain.ElevationAt(100, 0); got != 20.0 {
		t.Errorf("slope elevation: got %f, want 20", got)
	}
	if _, ok := terrain.(estimators.SlopeTerrain); !ok {
		t.Errorf("unexpected terrain type %T", terrain)
	}

	if _, err := BuildTerrain(TerrainConfig{Type: "mesh"}); err == nil {
		t.Error("unknown terrain type accepted")
	}
}

func TestSegmentCalibratorDoCommand(t *testing.T) {
	ctx := context.Background()
	logger := logging.NewTestLogger(t)

	cfg := validConfig()
	cfg.Terrain = TerrainConfig{Type: "flat", ElevationM: 40.0}
	if _, _, err := cfg.Validate(""); err != nil {
		t.Fatalf("config invalid: %v", err)
	}

	res, err := NewSegmentCalibrator(ctx, resource.Dependencies{}, genericservice.Named("cal"), cfg, logger)
	if err != nil {
		t.Fatalf("failed to build service: %v", err)
	}
	defer res.Close(ctx)

	do := func(cmd map[string]interface{}) map[string]interface{} {
		t.Helper()
		out, err := res.DoCommand(ctx, cmd)
		if err != nil {
			t.Fatalf("DoCommand %v failed: %v", cmd["command"], err)
		}
		return out
	}

	// A short hover: three straight-down frames from the same position.
	for step := 0; step < 3; step++ {
		do(map[string]interface{}{
			"command":        "add-pose",
			"segment_id":     1.0,
			"flight_step":    float64(step),
			"northing_m":     100.0,
			"easting_m":      50.0,
			"altitude_m":     140.0,
			"heading_deg":    0.0,
			"depression_deg": 90.0,
		})
	}

	out := do(map[string]interface{}{"command": "new-track", "segment_id": 1.0})
	trackID, ok := out["track_id"].(int)
	if !ok {
		t.Fatalf("new-track returned %v", out)
	}

	for step := 0; step < 3; step++ {
		out = do(map[string]interface{}{
			"command":     "claim",
			"track_id":    float64(trackID),
			"flight_step": float64(step),
			"pixel_x":     320.0,
			"pixel_y":     256.0,
		})
		if rejected, _ := out["rejected"].(bool); rejected {
			t.Fatalf("straight-down claim rejected at step %d", step)
		}
		if elev := out["elevation_m"].(float64); elev != 40.0 {
			t.Errorf("claimed elevation: got %f, want 40", elev)
		}
	}

	out = do(map[string]interface{}{"command": "tracks"})
	tracks, _ := out["tracks"].([]interface{})
	if len(tracks) != 1 {
		t.Fatalf("tracks: got %d, want 1", len(tracks))
	}

	// All claims project to the same ground point, so calibration has
	// nothing to correct and keeps the zero bias.
	out = do(map[string]interface{}{"command": "calibrate-segment", "segment_id": 1.0})
	if out["status"] != "success" {
		t.Fatalf("calibrate-segment: %v", out)
	}
	if bias := out["altitude_bias_m"].(float64); math.Abs(bias) > 1e-9 {
		t.Errorf("hover calibration bias: got %f, want 0", bias)
	}

	out = do(map[string]interface{}{"command": "segment-status", "segment_id": 1.0})
	if dirty, _ := out["dirty"].(bool); dirty {
		t.Error("segment still dirty after calibration")
	}

	// A level gimbal cannot see the ground; the claim is rejected, not an error.
	do(map[string]interface{}{
		"command":        "add-pose",
		"segment_id":     2.0,
		"flight_step":    0.0,
		"northing_m":     0.0,
		"easting_m":      0.0,
		"altitude_m":     140.0,
		"heading_deg":    0.0,
		"depression_deg": 0.0,
	})
	out = do(map[string]interface{}{"command": "new-track", "segment_id": 2.0})
	levelTrack := out["track_id"].(int)
	out = do(map[string]interface{}{
		"command":     "claim",
		"track_id":    float64(levelTrack),
		"flight_step": 0.0,
		"pixel_x":     320.0,
		"pixel_y":     256.0,
	})
	if rejected, _ := out["rejected"].(bool); !rejected {
		t.Errorf("level-view claim should be rejected: %v", out)
	}

	if _, err := res.DoCommand(ctx, map[string]interface{}{"command": "teleport"}); err == nil {
		t.Error("unknown command accepted")
	}
}
