package utils

import (
	"testing"
)

func abs(a float64) float64 {
	if a < 0 {
		return -a
	}
	return a
}

func almostEqual(a, b, tol float64) bool {
	return abs(a-b) < tol
}

func TestDegreesRadiansRoundtrip(t *testing.T) {
	testValues := []float64{-180.0, -90.0, 0.0, 45.0, 90.0, 270.0}

	for _, deg := range testValues {
		back := RadiansToDegrees(DegreesToRadians(deg))
		if !almostEqual(back, deg, 1e-12) {
			t.Errorf("degrees to radians and back failed: got %f, want %f", back, deg)
		}
	}
}

func TestWrapHeadingDeg(t *testing.T) {
	inputs := []float64{0.0, 359.0, 360.0, 361.0, -1.0, -360.0, 725.0}
	expected := []float64{0.0, 359.0, 0.0, 1.0, 359.0, 0.0, 5.0}

	for i, in := range inputs {
		got := WrapHeadingDeg(in)
		if !almostEqual(got, expected[i], 1e-9) {
			t.Errorf("WrapHeadingDeg(%f): got %f, want %f", in, got, expected[i])
		}
	}
}

func TestClamp(t *testing.T) {
	if got := Clamp(1.5, 0.0, 1.0); got != 1.0 {
		t.Errorf("clamp above max: got %f, want 1.0", got)
	}
	if got := Clamp(-0.5, 0.0, 1.0); got != 0.0 {
		t.Errorf("clamp below min: got %f, want 0.0", got)
	}
	if got := Clamp(0.3, 0.0, 1.0); got != 0.3 {
		t.Errorf("clamp in range: got %f, want 0.3", got)
	}
}

func TestPlatformPosePosition(t *testing.T) {
	p := PlatformPose{NorthingM: 10.0, EastingM: 20.0, AltitudeM: 30.0}
	pos := p.Position()
	if pos.X != 20.0 || pos.Y != 30.0 || pos.Z != 10.0 {
		t.Errorf("world frame mapping wrong: got %v, want X=20 Y=30 Z=10", pos)
	}
}

func TestHorizontalDistanceIgnoresElevation(t *testing.T) {
	p := PlatformPose{NorthingM: 0.0, EastingM: 0.0, AltitudeM: 100.0}
	e := LocationEstimate{NorthingM: 3.0, EastingM: 4.0, ElevationM: 0.0}

	if got := e.HorizontalDistanceTo(p); !almostEqual(got, 5.0, 1e-12) {
		t.Errorf("horizontal distance: got %f, want 5.0", got)
	}
}

func TestBiasSearchBound(t *testing.T) {
	l := DefaultGeolocationLimits
	if got := l.BiasSearchBound(true); got != l.MaxBiasM {
		t.Errorf("ground-calibrated bound: got %f, want %f", got, l.MaxBiasM)
	}
	if got := l.BiasSearchBound(false); got != l.MaxBiasNoFixM {
		t.Errorf("uncalibrated bound: got %f, want %f", got, l.MaxBiasNoFixM)
	}
	if l.MaxBiasNoFixM <= l.MaxBiasM {
		t.Errorf("uncalibrated bound %f should exceed calibrated bound %f",
			l.MaxBiasNoFixM, l.MaxBiasM)
	}
}
