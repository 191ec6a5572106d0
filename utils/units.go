package utils

import (
	"math"

	"github.com/golang/geo/r3"
)

// PlatformPose is one flight-telemetry sample: where the platform was and
// where the gimbal camera was pointing when a frame was captured.
// Northing/easting/altitude share one vertical datum with terrain elevations.
type PlatformPose struct {
	NorthingM     float64
	EastingM      float64
	AltitudeM     float64
	HeadingDeg    float64 // clockwise from north
	DepressionDeg float64 // below horizontal; ~25-92 in practice
	FlightStep    int
}

// Position returns the platform position in the world frame
// (X=easting, Y=altitude, Z=northing).
func (p PlatformPose) Position() r3.Vector {
	return r3.Vector{X: p.EastingM, Y: p.AltitudeM, Z: p.NorthingM}
}

// ImageObservation is a single frame's pixel observation of a candidate
// hot spot, as produced by the upstream feature detector.
type ImageObservation struct {
	PixelX          float64
	PixelY          float64
	FlightStep      int
	SegmentID       int
	HotPixelDensity float64
	HeatAvg         float64
	HeatMax         float64
}

// LocationEstimate is the estimated real-world location of an observed
// hot spot. Confidence is always in [0,1].
type LocationEstimate struct {
	NorthingM  float64
	EastingM   float64
	ElevationM float64
	Confidence float64
}

// HorizontalDistanceTo returns the ground-plane distance from the estimate
// to the given pose's position.
func (e LocationEstimate) HorizontalDistanceTo(p PlatformPose) float64 {
	return math.Hypot(e.NorthingM-p.NorthingM, e.EastingM-p.EastingM)
}

// GeolocationLimits defines the operating envelope for geolocation and
// leg calibration.
type GeolocationLimits struct {
	MinDepressionDeg float64
	MaxDepressionDeg float64
	MaxRangeM        float64 // max horizontal distance for an accepted estimate
	RaycastStepM     float64
	BiasStepM        float64 // coarse line-search step
	BiasFineStepM    float64 // fine-tune step around the best bias
	MaxBiasM         float64 // search bound when ground calibration was available
	MaxBiasNoFixM    float64 // search bound without an upstream ground fix
	MinImprovementM  float64 // min summed-error gain to adopt a new bias
}

var DefaultGeolocationLimits = GeolocationLimits{
	MinDepressionDeg: 25.0,
	MaxDepressionDeg: 92.0,
	MaxRangeM:        1000.0,
	RaycastStepM:     1.0,
	BiasStepM:        0.2,
	BiasFineStepM:    0.1,
	MaxBiasM:         8.0,
	MaxBiasNoFixM:    15.0,
	MinImprovementM:  0.02,
}

// BiasSearchBound returns the active line-search bound for a leg.
func (l GeolocationLimits) BiasSearchBound(groundCalibrated bool) float64 {
	if groundCalibrated {
		return l.MaxBiasM
	}
	return l.MaxBiasNoFixM
}

// Clamp clamps a value between min and max
func Clamp(value, min, max float64) float64 {
	return math.Max(min, math.Min(max, value))
}

func DegreesToRadians(degrees float64) float64 {
	return degrees * math.Pi / 180.0
}

func RadiansToDegrees(radians float64) float64 {
	return radians * 180.0 / math.Pi
}

// WrapHeadingDeg normalizes a heading to [0, 360).
func WrapHeadingDeg(deg float64) float64 {
	wrapped := math.Mod(deg, 360.0)
	if wrapped < 0 {
		wrapped += 360.0
	}
	return wrapped
}
