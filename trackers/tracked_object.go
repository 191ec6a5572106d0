package trackers

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/PhilipQuirke/SkyCombImageLibrary-sub002/utils"
)

// ClaimedObservation pairs an observation ID with the location estimate it
// produced. The observation itself lives in the TrackStore arena.
type ClaimedObservation struct {
	ObservationID int
	FlightStep    int
	Estimate      utils.LocationEstimate
}

// TrackedObject aggregates the accepted observations believed to be one
// stationary physical object: a running centroid, elevation bounds, and two
// summed error proxies used as the leg-calibration objective.
//
// The error proxies are deliberately sums rather than variances: an object
// seen in more frames contributes proportionally more error mass to its
// segment total, which is what the segment-wide minimization optimizes.
type TrackedObject struct {
	ID        int
	SegmentID int

	Claims []ClaimedObservation

	CentroidNorthingM float64
	CentroidEastingM  float64

	MinElevationM float64
	AvgElevationM float64
	MaxElevationM float64

	SumLocationErrM float64
	SumHeightErrM   float64

	// PeakDensity is the largest hot-pixel density seen across claims; one
	// of the significance inputs.
	PeakDensity float64

	FirstStep int
	LastStep  int

	Height HeightStatus
}

func (t *TrackedObject) ObservationCount() int {
	return len(t.Claims)
}

// DurationSteps is the flight-step span covered by this track.
func (t *TrackedObject) DurationSteps() int {
	if len(t.Claims) == 0 {
		return 0
	}
	return t.LastStep - t.FirstStep + 1
}

func (t *TrackedObject) claim(obs utils.ImageObservation, obsID int, est utils.LocationEstimate) {
	if len(t.Claims) == 0 {
		t.FirstStep = obs.FlightStep
		t.LastStep = obs.FlightStep
	} else {
		if obs.FlightStep < t.FirstStep {
			t.FirstStep = obs.FlightStep
		}
		if obs.FlightStep > t.LastStep {
			t.LastStep = obs.FlightStep
		}
	}
	if obs.HotPixelDensity > t.PeakDensity {
		t.PeakDensity = obs.HotPixelDensity
	}

	t.Claims = append(t.Claims, ClaimedObservation{
		ObservationID: obsID,
		FlightStep:    obs.FlightStep,
		Estimate:      est,
	})
	t.recomputeStats()
}

// recomputeStats rebuilds the running centroid, elevation bounds and error
// sums from every claim. The object is assumed stationary, so each claim's
// deviation from the centroid is treated as error.
func (t *TrackedObject) recomputeStats() {
	n := len(t.Claims)
	if n == 0 {
		return
	}

	northings := make([]float64, n)
	eastings := make([]float64, n)
	elevations := make([]float64, n)
	for i, c := range t.Claims {
		northings[i] = c.Estimate.NorthingM
		eastings[i] = c.Estimate.EastingM
		elevations[i] = c.Estimate.ElevationM
	}

	t.CentroidNorthingM = stat.Mean(northings, nil)
	t.CentroidEastingM = stat.Mean(eastings, nil)
	t.AvgElevationM = stat.Mean(elevations, nil)

	t.MinElevationM = elevations[0]
	t.MaxElevationM = elevations[0]
	for _, e := range elevations[1:] {
		t.MinElevationM = math.Min(t.MinElevationM, e)
		t.MaxElevationM = math.Max(t.MaxElevationM, e)
	}

	t.SumLocationErrM = 0
	t.SumHeightErrM = 0
	for i := range t.Claims {
		t.SumLocationErrM += math.Hypot(northings[i]-t.CentroidNorthingM, eastings[i]-t.CentroidEastingM)
		t.SumHeightErrM += math.Abs(elevations[i] - t.AvgElevationM)
	}
}
