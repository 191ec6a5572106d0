package legcalibrators

import (
	"go.viam.com/rdk/logging"

	"github.com/PhilipQuirke/SkyCombImageLibrary-sub002/estimators"
	"github.com/PhilipQuirke/SkyCombImageLibrary-sub002/utils"
)

// LineSearchCalibrator is the production calibration strategy: a
// deterministic greedy line search over candidate altitude biases. It
// assumes the error-vs-bias curve is unimodal near zero, which holds in
// practice because a single constant bias dominates the pose error.
type LineSearchCalibrator struct {
	logger    logging.Logger
	estimator *estimators.LocationEstimator
	limits    utils.GeolocationLimits
}

func NewLineSearchCalibrator(logger logging.Logger, estimator *estimators.LocationEstimator,
	limits utils.GeolocationLimits) *LineSearchCalibrator {
	return &LineSearchCalibrator{
		logger:    logger,
		estimator: estimator,
		limits:    limits,
	}
}

// CalibrateSegment finds and commits the bias minimizing the segment's
// summed location error:
//
//  1. evaluate bias 0 as the baseline and initial best;
//  2. greedy coarse search upward, then downward, in BiasStepM increments,
//     stopping at the first step that fails to improve the best summed
//     location error by at least MinImprovementM;
//  3. fine-tune by trying best ± BiasFineStepM;
//  4. re-evaluate the winner so the derived track state left behind belongs
//     to the committed bias, not a rejected trial.
func (c *LineSearchCalibrator) CalibrateSegment(segment *FlightSegment,
	inputs []TrackInput) (*CalibrationResult, error) {

	if err := checkInputs(segment, inputs); err != nil {
		return nil, err
	}

	evaluations := 0
	eval := func(biasM float64) evaluation {
		evaluations++
		return evaluate(c.estimator, segment, inputs, biasM)
	}

	baseline := eval(0)
	best := baseline

	bound := c.limits.BiasSearchBound(segment.GroundCalibrated)
	step := c.limits.BiasStepM

	// Coarse search, upward then downward. Each direction terminates on its
	// first non-improving step rather than sweeping the whole bound.
	for _, direction := range []float64{1, -1} {
		for i := 1; float64(i)*step <= bound; i++ {
			trial := eval(direction * float64(i) * step)
			if trial.sumLocationErr < best.sumLocationErr-c.limits.MinImprovementM {
				best = trial
				continue
			}
			break
		}
	}

	// Fine-tune around the coarse winner.
	for _, fine := range []float64{best.biasM - c.limits.BiasFineStepM, best.biasM + c.limits.BiasFineStepM} {
		trial := eval(fine)
		if trial.sumLocationErr < best.sumLocationErr-c.limits.MinImprovementM {
			best = trial
		}
	}

	// The last evaluation performed must be the committed one so that the
	// returned track state matches the committed bias.
	best = eval(best.biasM)

	if c.logger != nil {
		c.logger.Infof("leg %d: committed bias %.2fm after %d evaluations (location error %.3fm -> %.3fm)",
			segment.ID, best.biasM, evaluations, baseline.sumLocationErr, best.sumLocationErr)
	}

	result := commit(segment, baseline, best)
	result.Evaluations = evaluations
	return result, nil
}
