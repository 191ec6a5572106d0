package main

import (
	"fmt"
	"math"

	"go.viam.com/rdk/logging"

	"github.com/PhilipQuirke/SkyCombImageLibrary-sub002/estimators"
	legcalibrators "github.com/PhilipQuirke/SkyCombImageLibrary-sub002/leg-calibrators"
	"github.com/PhilipQuirke/SkyCombImageLibrary-sub002/utils"
)

func main() {
	err := realMain()
	if err != nil {
		panic(err)
	}
}

// realMain simulates one flight leg over sloped terrain with a known
// telemetry altitude error, then runs leg calibration and reports how much
// of the injected error it recovered.
func realMain() error {
	logger := logging.NewLogger("cli")

	camera, err := estimators.NewCameraModel(13.0, 10.88, 8.7, 640, 512, nil)
	if err != nil {
		return err
	}

	terrain := estimators.SlopeTerrain{BaseElevationM: 40.0, NorthGradient: 0.02}
	limits := utils.DefaultGeolocationLimits
	estimator := estimators.NewLocationEstimator(logger, camera, terrain, limits)

	const (
		trueAltitudeM = 120.0
		injectedBiasM = 3.4 // telemetry reads this much too high
		depressionDeg = 55.0
		headingDeg    = 0.0
	)

	// Stationary hot spots sitting on the terrain surface.
	targets := [][2]float64{ // {northing, easting}
		{100.0, 50.0},
		{140.0, 60.0},
		{180.0, 45.0},
	}

	// Fly north in 10m steps. truePoses drive the synthetic imaging;
	// recordedPoses are what telemetry claims, altitude included.
	var truePoses, recordedPoses []utils.PlatformPose
	for step := 0; step < 20; step++ {
		p := utils.PlatformPose{
			NorthingM:     float64(step) * 10.0,
			EastingM:      50.0,
			AltitudeM:     trueAltitudeM,
			HeadingDeg:    headingDeg,
			DepressionDeg: depressionDeg,
			FlightStep:    step,
		}
		truePoses = append(truePoses, p)
		p.AltitudeM += injectedBiasM
		recordedPoses = append(recordedPoses, p)
	}

	utils.ValidatePoses(recordedPoses)

	segment := &legcalibrators.FlightSegment{
		ID:               1,
		Poses:            recordedPoses,
		GroundCalibrated: true,
	}

	var inputs []legcalibrators.TrackInput
	for ti, tgt := range targets {
		in := legcalibrators.TrackInput{TrackID: ti + 1}
		for _, pose := range truePoses {
			px, py, ok := projectToPixel(camera, pose, tgt[0], tgt[1], terrain)
			if !ok {
				continue
			}
			in.Observations = append(in.Observations, utils.ImageObservation{
				PixelX:          px,
				PixelY:          py,
				FlightStep:      pose.FlightStep,
				SegmentID:       segment.ID,
				HotPixelDensity: 0.8,
				HeatAvg:         210.0,
				HeatMax:         250.0,
			})
		}
		if len(in.Observations) > 0 {
			inputs = append(inputs, in)
		}
	}

	cal := legcalibrators.NewLineSearchCalibrator(logger, estimator, limits)
	result, err := cal.CalibrateSegment(segment, inputs)
	if err != nil {
		return err
	}

	fmt.Printf("\nInjected altitude bias: %+.2fm (recovery target %+.2fm)\n",
		injectedBiasM, -injectedBiasM)
	fmt.Printf("Committed bias: %+.2fm after %d evaluations\n",
		result.BiasM, result.Evaluations)

	fmt.Println("\nTracked objects at committed bias:")
	for _, t := range result.Store.Tracks() {
		fmt.Printf("  track %d: %d obs, centroid N=%.1f E=%.1f, elevation %.1fm, sum err %.2fm\n",
			t.ID, t.ObservationCount(), t.CentroidNorthingM, t.CentroidEastingM,
			t.AvgElevationM, t.SumLocationErrM)
	}

	utils.ValidateBiasRecovery(
		[]int{result.SegmentID},
		[]float64{result.BiasM},
		[]float64{result.OriginalSumLocationErrM},
		[]float64{result.BestSumLocationErrM})
	return nil
}

// projectToPixel is the synthetic imaging model: where a world point lands
// on the sensor for a given pose. It inverts the estimator's rotation order
// (undo heading, then undo depression) and reports ok=false when the point
// falls behind the camera or off the sensor.
func projectToPixel(camera *estimators.CameraModel, pose utils.PlatformPose,
	targetNorthingM, targetEastingM float64, terrain estimators.Terrain) (float64, float64, bool) {

	elev := terrain.ElevationAt(targetNorthingM, targetEastingM)
	vx := targetEastingM - pose.EastingM
	vy := elev - pose.AltitudeM
	vz := targetNorthingM - pose.NorthingM

	h := utils.DegreesToRadians(pose.HeadingDeg)
	sinH, cosH := math.Sin(h), math.Cos(h)
	vx, vz = vx*cosH-vz*sinH, vz*cosH+vx*sinH

	d := utils.DegreesToRadians(pose.DepressionDeg)
	sinD, cosD := math.Sin(d), math.Cos(d)
	vy, vz = vy*cosD+vz*sinD, vz*cosD-vy*sinD

	camX := vx
	camY := -vy
	camZ := vz
	if camZ <= 0 {
		return 0, 0, false
	}

	fx := camera.FocalLengthMM / camera.SensorWidthMM * float64(camera.ImageWidthPx)
	fy := camera.FocalLengthMM / camera.SensorHeightMM * float64(camera.ImageHeightPx)
	px := float64(camera.ImageWidthPx)/2.0 + fx*camX/camZ
	py := float64(camera.ImageHeightPx)/2.0 + fy*camY/camZ

	if px < 0 || px >= float64(camera.ImageWidthPx) || py < 0 || py >= float64(camera.ImageHeightPx) {
		return 0, 0, false
	}
	return px, py, true
}
