package legcalibrators

import (
	"errors"
	"fmt"
	"sync"

	"github.com/PhilipQuirke/SkyCombImageLibrary-sub002/estimators"
	"github.com/PhilipQuirke/SkyCombImageLibrary-sub002/trackers"
	"github.com/PhilipQuirke/SkyCombImageLibrary-sub002/utils"
)

var (
	// ErrEmptySegment is returned when a segment has no pose samples.
	ErrEmptySegment = errors.New("segment has no pose samples")

	// ErrNoTracks is returned when calibration is invoked without any
	// significant tracked objects.
	ErrNoTracks = errors.New("no tracked objects supplied for calibration")

	// ErrNoObservations is returned when a supplied track carries no
	// observations; that is a caller contract violation, not a geometric miss.
	ErrNoObservations = errors.New("tracked object has no observations")
)

// FlightSegment is a contiguous run of pose samples (a flight leg) assumed
// to share one constant altitude bias. Only calibration mutates it.
type FlightSegment struct {
	ID    int
	Poses []utils.PlatformPose

	// GroundCalibrated reports whether an independent ground-level fix was
	// applied upstream; without one the bias search bound widens.
	GroundCalibrated bool

	AltitudeBiasM float64

	OriginalSumLocationErrM float64
	OriginalSumHeightErrM   float64
	BestSumLocationErrM     float64
	BestSumHeightErrM       float64
}

// TrackInput is one significant tracked object's observations, referenced
// for re-aggregation under trial biases.
type TrackInput struct {
	TrackID      int
	Observations []utils.ImageObservation
}

// CalibrationResult is the committed outcome of calibrating one segment.
// Store holds the derived track state of the final (committed) evaluation.
type CalibrationResult struct {
	SegmentID int
	BiasM     float64

	OriginalSumLocationErrM float64
	OriginalSumHeightErrM   float64
	BestSumLocationErrM     float64
	BestSumHeightErrM       float64

	Evaluations int
	Store       *trackers.TrackStore
}

// Calibrator searches for the altitude correction that best explains away a
// segment's aggregate location error.
type Calibrator interface {
	CalibrateSegment(segment *FlightSegment, inputs []TrackInput) (*CalibrationResult, error)
}

// evaluation is one trial's derived state and aggregate errors.
type evaluation struct {
	biasM          float64
	sumLocationErr float64
	sumHeightErr   float64
	store          *trackers.TrackStore
}

// checkInputs enforces the caller contract shared by all calibrators.
func checkInputs(segment *FlightSegment, inputs []TrackInput) error {
	if segment == nil || len(segment.Poses) == 0 {
		return ErrEmptySegment
	}
	if len(inputs) == 0 {
		return ErrNoTracks
	}
	for _, in := range inputs {
		if len(in.Observations) == 0 {
			return fmt.Errorf("track %d: %w", in.TrackID, ErrNoObservations)
		}
	}
	return nil
}

// evaluate recomputes every track's estimates from scratch under a trial
// bias. It always starts from the segment's original pose data, never from
// a previous trial's derived state, so trials are independent and the
// search stays well-defined (and trials are safe to run concurrently).
func evaluate(est *estimators.LocationEstimator, segment *FlightSegment,
	inputs []TrackInput, biasM float64) evaluation {

	poseByStep := make(map[int]utils.PlatformPose, len(segment.Poses))
	for _, p := range segment.Poses {
		p.AltitudeM += biasM
		poseByStep[p.FlightStep] = p
	}

	store := trackers.NewTrackStore(nil, trackers.NewIDGen())
	ev := evaluation{biasM: biasM, store: store}

	for _, in := range inputs {
		track := store.NewTrack(segment.ID)
		for _, obs := range in.Observations {
			pose, ok := poseByStep[obs.FlightStep]
			if !ok {
				continue
			}
			le, ok := est.Estimate(pose, obs)
			if !ok {
				// Expected geometric rejection; the trial simply has one
				// fewer claim for this track.
				continue
			}
			obsID := store.AddObservation(obs)
			//nolint:errcheck
			store.ClaimObservation(track.ID, obsID, le)
		}
		ev.sumLocationErr += track.SumLocationErrM
		ev.sumHeightErr += track.SumHeightErrM
	}
	return ev
}

// commit writes the accepted evaluation back to the segment.
func commit(segment *FlightSegment, baseline, best evaluation) *CalibrationResult {
	segment.AltitudeBiasM = best.biasM
	segment.OriginalSumLocationErrM = baseline.sumLocationErr
	segment.OriginalSumHeightErrM = baseline.sumHeightErr
	segment.BestSumLocationErrM = best.sumLocationErr
	segment.BestSumHeightErrM = best.sumHeightErr

	return &CalibrationResult{
		SegmentID:               segment.ID,
		BiasM:                   best.biasM,
		OriginalSumLocationErrM: baseline.sumLocationErr,
		OriginalSumHeightErrM:   baseline.sumHeightErr,
		BestSumLocationErrM:     best.sumLocationErr,
		BestSumHeightErrM:       best.sumHeightErr,
		Store:                   best.store,
	}
}

// CalibrateAll calibrates each segment independently across goroutines.
// Segments share no state, so the fan-out needs no coordination beyond
// collecting results.
func CalibrateAll(cal Calibrator, segments []*FlightSegment,
	inputsBySegment map[int][]TrackInput) (map[int]*CalibrationResult, error) {

	results := make(map[int]*CalibrationResult, len(segments))
	var firstErr error
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, seg := range segments {
		wg.Add(1)
		go func(seg *FlightSegment) {
			defer wg.Done()
			res, err := cal.CalibrateSegment(seg, inputsBySegment[seg.ID])
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = fmt.Errorf("segment %d: %w", seg.ID, err)
				}
				return
			}
			results[seg.ID] = res
		}(seg)
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return results, nil
}
