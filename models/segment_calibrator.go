package models

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"
	genericservice "go.viam.com/rdk/services/generic"
	rdk_utils "go.viam.com/utils"

	"github.com/PhilipQuirke/SkyCombImageLibrary-sub002/estimators"
	legcalibrators "github.com/PhilipQuirke/SkyCombImageLibrary-sub002/leg-calibrators"
	"github.com/PhilipQuirke/SkyCombImageLibrary-sub002/trackers"
	"github.com/PhilipQuirke/SkyCombImageLibrary-sub002/utils"
)

var ModelSegmentCalibrator = resource.NewModel("viam", "thermal-geolocator", "segment-calibrator")

func init() {
	resource.RegisterService(genericservice.API, ModelSegmentCalibrator,
		resource.Registration[resource.Resource, *Config]{
			Constructor: newSegmentCalibrator,
		},
	)
}

// TerrainConfig selects one of the built-in terrain sources. External DEM
// providers plug in behind the estimators.Terrain interface instead.
type TerrainConfig struct {
	Type          string  `json:"type"` // "flat", "slope" or "grid"
	ElevationM    float64 `json:"elevation_m"`
	NorthGradient float64 `json:"north_gradient"`
	EastGradient  float64 `json:"east_gradient"`
	GridPath      string  `json:"grid_path"`
}

type Config struct {
	FocalLengthMM  float64 `json:"focal_length_mm"`
	SensorWidthMM  float64 `json:"sensor_width_mm"`
	SensorHeightMM float64 `json:"sensor_height_mm"`
	ImageWidthPx   int     `json:"image_width_px"`
	ImageHeightPx  int     `json:"image_height_px"`

	DistortionK1 float64 `json:"distortion_k1,omitempty"`
	DistortionK2 float64 `json:"distortion_k2,omitempty"`

	Terrain TerrainConfig `json:"terrain"`

	MaxRangeM            float64 `json:"max_range_m"`
	MinTrackObservations int     `json:"min_track_observations"`
	MinTrackDensity      float64 `json:"min_track_density"`

	CalibrationMethod string  `json:"calibration_method"` // "line-search" or "polynomial"
	AutoCalibrate     bool    `json:"auto_calibrate"`
	UpdateRateHz      float64 `json:"update_rate_hz"`
}

// Validate ensures all parts of the config are valid and important fields exist.
// Returns implicit required (first return) and optional (second return) dependencies based on the config.
func (cfg *Config) Validate(path string) ([]string, []string, error) {
	if cfg.FocalLengthMM <= 0 {
		return nil, nil, errors.New("focal_length_mm must be greater than 0")
	}
	if cfg.SensorWidthMM <= 0 || cfg.SensorHeightMM <= 0 {
		return nil, nil, errors.New("sensor dimensions must be greater than 0")
	}
	if cfg.ImageWidthPx <= 0 || cfg.ImageHeightPx <= 0 {
		return nil, nil, errors.New("image dimensions must be greater than 0")
	}
	switch cfg.Terrain.Type {
	case "":
		cfg.Terrain.Type = "flat"
	case "flat", "slope":
	case "grid":
		if cfg.Terrain.GridPath == "" {
			return nil, nil, errors.New("terrain.grid_path is required for grid terrain")
		}
	default:
		return nil, nil, fmt.Errorf("unknown terrain type %q", cfg.Terrain.Type)
	}
	if cfg.MaxRangeM == 0 {
		cfg.MaxRangeM = utils.DefaultGeolocationLimits.MaxRangeM
	}
	if cfg.MaxRangeM < 0 {
		return nil, nil, errors.New("max_range_m must be greater than 0")
	}
	if cfg.MinTrackObservations == 0 {
		cfg.MinTrackObservations = 3
	}
	switch cfg.CalibrationMethod {
	case "":
		cfg.CalibrationMethod = "line-search"
	case "line-search", "polynomial":
	default:
		return nil, nil, errors.New("calibration_method must be either 'line-search' or 'polynomial'")
	}
	if cfg.AutoCalibrate && cfg.UpdateRateHz <= 0 {
		return nil, nil, errors.New("update_rate_hz must be greater than 0 when auto_calibrate is set")
	}
	return nil, nil, nil
}

type segmentCalibrator struct {
	resource.AlwaysRebuild
	name resource.Name

	logger logging.Logger
	cfg    *Config

	estimator  *estimators.LocationEstimator
	calibrator legcalibrators.Calibrator
	limits     utils.GeolocationLimits

	mu       sync.Mutex
	gen      *trackers.IDGen
	store    *trackers.TrackStore
	segments map[int]*legcalibrators.FlightSegment
	dirty    map[int]bool

	worker *rdk_utils.StoppableWorkers
}

func newSegmentCalibrator(ctx context.Context, deps resource.Dependencies, rawConf resource.Config, logger logging.Logger) (resource.Resource, error) {
	conf, err := resource.NativeConfig[*Config](rawConf)
	if err != nil {
		return nil, err
	}
	return NewSegmentCalibrator(ctx, deps, rawConf.ResourceName(), conf, logger)
}

func NewSegmentCalibrator(ctx context.Context, deps resource.Dependencies, name resource.Name, conf *Config, logger logging.Logger) (resource.Resource, error) {
	configJSON, _ := json.MarshalIndent(conf, "", "  ")
	logger.Debugf("Creating segment calibrator with the following config:\n%s", configJSON)

	var distortion *estimators.RadialDistortion
	if conf.DistortionK1 != 0 || conf.DistortionK2 != 0 {
		distortion = &estimators.RadialDistortion{K1: conf.DistortionK1, K2: conf.DistortionK2}
	}
	camera, err := estimators.NewCameraModel(conf.FocalLengthMM, conf.SensorWidthMM, conf.SensorHeightMM,
		conf.ImageWidthPx, conf.ImageHeightPx, distortion)
	if err != nil {
		return nil, fmt.Errorf("failed to build camera model: %w", err)
	}

	terrain, err := BuildTerrain(conf.Terrain)
	if err != nil {
		return nil, err
	}

	limits := utils.DefaultGeolocationLimits
	limits.MaxRangeM = conf.MaxRangeM

	gen := trackers.NewIDGen()
	s := &segmentCalibrator{
		name:      name,
		logger:    logger,
		cfg:       conf,
		estimator: estimators.NewLocationEstimator(logger, camera, terrain, limits),
		limits:    limits,
		gen:       gen,
		store:     trackers.NewTrackStore(logger, gen),
		segments:  map[int]*legcalibrators.FlightSegment{},
		dirty:     map[int]bool{},
		worker:    rdk_utils.NewBackgroundStoppableWorkers(),
	}

	if conf.CalibrationMethod == "polynomial" {
		s.calibrator = legcalibrators.NewPolynomialCalibrator(logger, s.estimator, limits)
	} else {
		s.calibrator = legcalibrators.NewLineSearchCalibrator(logger, s.estimator, limits)
	}

	if conf.AutoCalibrate {
		s.worker.Add(s.calibrationLoop)
		s.logger.Info("Segment auto-calibration started")
	}

	return s, nil
}

// BuildTerrain constructs one of the built-in terrain sources from config.
func BuildTerrain(cfg TerrainConfig) (estimators.Terrain, error) {
	switch cfg.Type {
	case "", "flat":
		return estimators.FlatTerrain{ElevationM: cfg.ElevationM}, nil
	case "slope":
		return estimators.SlopeTerrain{
			BaseElevationM: cfg.ElevationM,
			NorthGradient:  cfg.NorthGradient,
			EastGradient:   cfg.EastGradient,
		}, nil
	case "grid":
		terrain, err := estimators.LoadGridTerrain(cfg.GridPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load terrain grid: %w", err)
		}
		return terrain, nil
	default:
		return nil, fmt.Errorf("unknown terrain type %q", cfg.Type)
	}
}

func (s *segmentCalibrator) Name() resource.Name {
	return s.name
}

func (s *segmentCalibrator) Close(ctx context.Context) error {
	s.worker.Stop()
	return nil
}

func (s *segmentCalibrator) DoCommand(ctx context.Context, cmd map[string]interface{}) (map[string]interface{}, error) {
	s.logger.Debugf("DoCommand: %+v", cmd)
	s.mu.Lock()
	defer s.mu.Unlock()

	switch cmd["command"] {
	case "add-pose":
		pose, segmentID, err := parsePose(cmd)
		if err != nil {
			return nil, err
		}
		seg := s.segment(segmentID)
		seg.Poses = append(seg.Poses, pose)
		if gc, ok := cmd["ground_calibrated"].(bool); ok {
			seg.GroundCalibrated = gc
		}
		s.dirty[segmentID] = true
		return map[string]interface{}{"status": "success", "poses": len(seg.Poses)}, nil

	case "new-track":
		segmentID, err := intField(cmd, "segment_id")
		if err != nil {
			return nil, err
		}
		track := s.store.NewTrack(segmentID)
		return map[string]interface{}{"track_id": track.ID}, nil

	case "claim":
		return s.claim(cmd)

	case "tracks":
		var out []interface{}
		for _, t := range s.store.Tracks() {
			out = append(out, trackSummary(t))
		}
		return map[string]interface{}{"tracks": out}, nil

	case "calibrate-segment":
		segmentID, err := intField(cmd, "segment_id")
		if err != nil {
			return nil, err
		}
		res, err := s.calibrateLocked(segmentID)
		if err != nil {
			return nil, err
		}
		return calibrationSummary(res), nil

	case "segment-status":
		segmentID, err := intField(cmd, "segment_id")
		if err != nil {
			return nil, err
		}
		seg, ok := s.segments[segmentID]
		if !ok {
			return nil, fmt.Errorf("unknown segment %d", segmentID)
		}
		return map[string]interface{}{
			"segment_id":            seg.ID,
			"poses":                 len(seg.Poses),
			"altitude_bias_m":       seg.AltitudeBiasM,
			"original_location_err": seg.OriginalSumLocationErrM,
			"original_height_err":   seg.OriginalSumHeightErrM,
			"best_location_err":     seg.BestSumLocationErrM,
			"best_height_err":       seg.BestSumHeightErrM,
			"dirty":                 s.dirty[segmentID],
		}, nil

	default:
		return nil, fmt.Errorf("invalid command: %v", cmd["command"])
	}
}

// claim estimates an observation's ground location and folds an accepted
// estimate into its track. Geometric rejections report rejected=true, they
// are not errors.
func (s *segmentCalibrator) claim(cmd map[string]interface{}) (map[string]interface{}, error) {
	trackID, err := intField(cmd, "track_id")
	if err != nil {
		return nil, err
	}
	track, ok := s.store.Track(trackID)
	if !ok {
		return nil, fmt.Errorf("unknown track %d", trackID)
	}

	obs, err := parseObservation(cmd, track.SegmentID)
	if err != nil {
		return nil, err
	}

	seg, ok := s.segments[track.SegmentID]
	if !ok {
		return nil, fmt.Errorf("segment %d has no poses", track.SegmentID)
	}
	var pose *utils.PlatformPose
	for i := range seg.Poses {
		if seg.Poses[i].FlightStep == obs.FlightStep {
			pose = &seg.Poses[i]
			break
		}
	}
	if pose == nil {
		return nil, fmt.Errorf("segment %d has no pose for flight step %d", track.SegmentID, obs.FlightStep)
	}

	le, ok := s.estimator.Estimate(*pose, obs)
	if !ok {
		return map[string]interface{}{"rejected": true}, nil
	}

	obsID := s.store.AddObservation(obs)
	if err := s.store.ClaimObservation(trackID, obsID, le); err != nil {
		return nil, err
	}
	track.Height = track.Height.Merge(trackers.HeightComputedBy(trackers.HeightMethodTerrainLock))
	s.dirty[track.SegmentID] = true

	return map[string]interface{}{
		"observation_id": obsID,
		"northing_m":     le.NorthingM,
		"easting_m":      le.EastingM,
		"elevation_m":    le.ElevationM,
		"confidence":     le.Confidence,
	}, nil
}

func (s *segmentCalibrator) segment(id int) *legcalibrators.FlightSegment {
	seg, ok := s.segments[id]
	if !ok {
		seg = &legcalibrators.FlightSegment{ID: id}
		s.segments[id] = seg
	}
	return seg
}

// calibrateLocked runs leg calibration for one segment; caller holds s.mu.
func (s *segmentCalibrator) calibrateLocked(segmentID int) (*legcalibrators.CalibrationResult, error) {
	seg, ok := s.segments[segmentID]
	if !ok {
		return nil, fmt.Errorf("unknown segment %d", segmentID)
	}

	var inputs []legcalibrators.TrackInput
	for _, t := range s.store.SignificantTracks(s.cfg.MinTrackObservations, s.cfg.MinTrackDensity) {
		if t.SegmentID != segmentID {
			continue
		}
		in := legcalibrators.TrackInput{TrackID: t.ID}
		for _, c := range t.Claims {
			if obs, ok := s.store.Observation(c.ObservationID); ok {
				in.Observations = append(in.Observations, obs)
			}
		}
		inputs = append(inputs, in)
	}
	if len(inputs) == 0 {
		return nil, fmt.Errorf("segment %d: no significant tracks to calibrate against", segmentID)
	}

	res, err := s.calibrator.CalibrateSegment(seg, inputs)
	if err != nil {
		return nil, fmt.Errorf("failed to calibrate segment %d: %w", segmentID, err)
	}
	s.dirty[segmentID] = false
	return res, nil
}

// calibrationLoop recalibrates dirty segments at the configured rate.
func (s *segmentCalibrator) calibrationLoop(ctx context.Context) {
	s.logger.Info("Starting calibration loop")
	updateInterval := time.Duration(1.0 / s.cfg.UpdateRateHz * float64(time.Second))
	s.logger.Infof("Update interval: %v", updateInterval)
	ticker := time.NewTicker(updateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			var pending []int
			for id, d := range s.dirty {
				if d && len(s.segments[id].Poses) > 0 {
					pending = append(pending, id)
				}
			}
			for _, id := range pending {
				if _, err := s.calibrateLocked(id); err != nil {
					s.logger.Debugf("Auto-calibration skipped for segment %d: %v", id, err)
					s.dirty[id] = false
				}
			}
			s.mu.Unlock()
		}
	}
}

func parsePose(cmd map[string]interface{}) (utils.PlatformPose, int, error) {
	segmentID, err := intField(cmd, "segment_id")
	if err != nil {
		return utils.PlatformPose{}, 0, err
	}
	flightStep, err := intField(cmd, "flight_step")
	if err != nil {
		return utils.PlatformPose{}, 0, err
	}
	pose := utils.PlatformPose{FlightStep: flightStep}

	fields := []struct {
		key string
		dst *float64
	}{
		{"northing_m", &pose.NorthingM},
		{"easting_m", &pose.EastingM},
		{"altitude_m", &pose.AltitudeM},
		{"heading_deg", &pose.HeadingDeg},
		{"depression_deg", &pose.DepressionDeg},
	}
	for _, f := range fields {
		v, ok := cmd[f.key].(float64)
		if !ok {
			return utils.PlatformPose{}, 0, fmt.Errorf("%s is required and must be a number", f.key)
		}
		*f.dst = v
	}
	pose.HeadingDeg = utils.WrapHeadingDeg(pose.HeadingDeg)
	return pose, segmentID, nil
}

func parseObservation(cmd map[string]interface{}, segmentID int) (utils.ImageObservation, error) {
	flightStep, err := intField(cmd, "flight_step")
	if err != nil {
		return utils.ImageObservation{}, err
	}
	obs := utils.ImageObservation{FlightStep: flightStep, SegmentID: segmentID}

	px, ok := cmd["pixel_x"].(float64)
	if !ok {
		return utils.ImageObservation{}, fmt.Errorf("pixel_x is required and must be a number")
	}
	py, ok := cmd["pixel_y"].(float64)
	if !ok {
		return utils.ImageObservation{}, fmt.Errorf("pixel_y is required and must be a number")
	}
	obs.PixelX = px
	obs.PixelY = py

	// Heat statistics are optional; the detector may not supply them.
	if v, ok := cmd["hot_pixel_density"].(float64); ok {
		obs.HotPixelDensity = v
	}
	if v, ok := cmd["heat_avg"].(float64); ok {
		obs.HeatAvg = v
	}
	if v, ok := cmd["heat_max"].(float64); ok {
		obs.HeatMax = v
	}
	return obs, nil
}

func intField(cmd map[string]interface{}, key string) (int, error) {
	v, ok := cmd[key].(float64)
	if !ok {
		return 0, fmt.Errorf("%s is required and must be a number", key)
	}
	return int(v), nil
}

func trackSummary(t *trackers.TrackedObject) map[string]interface{} {
	return map[string]interface{}{
		"track_id":         t.ID,
		"segment_id":       t.SegmentID,
		"observations":     t.ObservationCount(),
		"duration_steps":   t.DurationSteps(),
		"centroid_n":       t.CentroidNorthingM,
		"centroid_e":       t.CentroidEastingM,
		"elevation_min":    t.MinElevationM,
		"elevation_avg":    t.AvgElevationM,
		"elevation_max":    t.MaxElevationM,
		"sum_location_err": t.SumLocationErrM,
		"sum_height_err":   t.SumHeightErrM,
		"height_state":     t.Height.State.String(),
		"height_method":    t.Height.Method.String(),
	}
}

func calibrationSummary(res *legcalibrators.CalibrationResult) map[string]interface{} {
	return map[string]interface{}{
		"status":                "success",
		"segment_id":            res.SegmentID,
		"altitude_bias_m":       res.BiasM,
		"original_location_err": res.OriginalSumLocationErrM,
		"original_height_err":   res.OriginalSumHeightErrM,
		"best_location_err":     res.BestSumLocationErrM,
		"best_height_err":       res.BestSumHeightErrM,
		"evaluations":           res.Evaluations,
	}
}
