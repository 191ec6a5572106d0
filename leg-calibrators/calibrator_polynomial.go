package legcalibrators

import (
	"go.viam.com/rdk/logging"
	"gonum.org/v1/gonum/mat"

	"github.com/PhilipQuirke/SkyCombImageLibrary-sub002/estimators"
	"github.com/PhilipQuirke/SkyCombImageLibrary-sub002/utils"
)

// PolynomialCalibrator samples the error-vs-bias curve at coarse intervals,
// fits a quadratic, and evaluates at the polynomial's minimum.
//
// Kept for comparison runs only. It needs far fewer evaluations than the
// line search but inherits the fit's smoothing error, and loses to the
// line search whenever the curve is locally asymmetric. LineSearchCalibrator
// is the production path.
type PolynomialCalibrator struct {
	logger    logging.Logger
	estimator *estimators.LocationEstimator
	limits    utils.GeolocationLimits

	// SampleSpacingM controls the coarse sampling grid; defaults to 1m.
	SampleSpacingM float64
}

func NewPolynomialCalibrator(logger logging.Logger, estimator *estimators.LocationEstimator,
	limits utils.GeolocationLimits) *PolynomialCalibrator {
	return &PolynomialCalibrator{
		logger:         logger,
		estimator:      estimator,
		limits:         limits,
		SampleSpacingM: 1.0,
	}
}

// fitQuadratic solves err = c0 + c1*bias + c2*bias² by least squares and
// returns the linear and quadratic coefficients.
func fitQuadratic(biases, errs []float64) (c1, c2 float64, ok bool) {
	n := len(biases)
	if n < 3 {
		return 0, 0, false
	}

	aData := make([]float64, 0, n*3)
	for _, b := range biases {
		aData = append(aData, 1, b, b*b)
	}
	aMat := mat.NewDense(n, 3, aData)
	bMat := mat.NewDense(n, 1, append([]float64(nil), errs...))

	var qr mat.QR
	qr.Factorize(aMat)

	var coeffs mat.Dense
	if err := qr.SolveTo(&coeffs, false, bMat); err != nil {
		return 0, 0, false
	}
	return coeffs.At(1, 0), coeffs.At(2, 0), true
}

// CalibrateSegment samples, fits, and commits whichever candidate (fit
// minimum, best sample, or zero baseline) wins under the same
// minimum-improvement rule as the line search.
func (c *PolynomialCalibrator) CalibrateSegment(segment *FlightSegment,
	inputs []TrackInput) (*CalibrationResult, error) {

	if err := checkInputs(segment, inputs); err != nil {
		return nil, err
	}

	spacing := c.SampleSpacingM
	if spacing <= 0 {
		spacing = 1.0
	}
	bound := c.limits.BiasSearchBound(segment.GroundCalibrated)

	evaluations := 0
	eval := func(biasM float64) evaluation {
		evaluations++
		return evaluate(c.estimator, segment, inputs, biasM)
	}

	baseline := eval(0)
	best := baseline

	var biases, errs []float64
	steps := int(bound / spacing)
	for i := -steps; i <= steps; i++ {
		biasM := float64(i) * spacing
		var sample evaluation
		if i == 0 {
			sample = baseline
		} else {
			sample = eval(biasM)
		}
		biases = append(biases, biasM)
		errs = append(errs, sample.sumLocationErr)
		if sample.sumLocationErr < best.sumLocationErr-c.limits.MinImprovementM {
			best = sample
		}
	}

	// Evaluate at the fitted parabola's minimum, if it has an interior one.
	if c1, c2, ok := fitQuadratic(biases, errs); ok && c2 > 1e-12 {
		minBias := utils.Clamp(-c1/(2*c2), -bound, bound)
		trial := eval(minBias)
		if trial.sumLocationErr < best.sumLocationErr-c.limits.MinImprovementM {
			best = trial
		}
	}

	best = eval(best.biasM)

	if c.logger != nil {
		c.logger.Infof("leg %d: polynomial fit committed bias %.2fm after %d evaluations (location error %.3fm -> %.3fm)",
			segment.ID, best.biasM, evaluations, baseline.sumLocationErr, best.sumLocationErr)
	}

	result := commit(segment, baseline, best)
	result.Evaluations = evaluations
	return result, nil
}
