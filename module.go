package thermalgeolocator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/erh/vmodutils"
	"github.com/erh/vmodutils/touch"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/referenceframe"
	"go.viam.com/rdk/resource"
	"go.viam.com/rdk/robot"
	genericservice "go.viam.com/rdk/services/generic"

	"github.com/PhilipQuirke/SkyCombImageLibrary-sub002/estimators"
	"github.com/PhilipQuirke/SkyCombImageLibrary-sub002/models"
	"github.com/PhilipQuirke/SkyCombImageLibrary-sub002/utils"
)

var FrameGeolocator = resource.NewModel("viam", "thermal-geolocator", "frame-geolocator")

func init() {
	resource.RegisterService(genericservice.API, FrameGeolocator,
		resource.Registration[resource.Resource, *Config]{
			Constructor: newFrameGeolocator,
		},
	)
}

// Config wires the geolocator to a machine: the gimbal camera's frame
// supplies the live platform pose, the camera intrinsics and terrain come
// from fixed per-camera configuration.
type Config struct {
	PlatformFrameName string  `json:"platform_frame_name"`
	UpdateRateHz      float64 `json:"update_rate_hz"`

	FocalLengthMM  float64 `json:"focal_length_mm"`
	SensorWidthMM  float64 `json:"sensor_width_mm"`
	SensorHeightMM float64 `json:"sensor_height_mm"`
	ImageWidthPx   int     `json:"image_width_px"`
	ImageHeightPx  int     `json:"image_height_px"`

	DistortionK1 float64 `json:"distortion_k1,omitempty"`
	DistortionK2 float64 `json:"distortion_k2,omitempty"`

	Terrain models.TerrainConfig `json:"terrain"`

	MaxRangeM float64 `json:"max_range_m"`

	// HeadingDeg/DepressionDeg are fixed-mount fallbacks used when the
	// platform frame does not carry gimbal orientation.
	HeadingDeg    float64 `json:"heading_deg"`
	DepressionDeg float64 `json:"depression_deg"`
}

// Validate ensures all parts of the config are valid and important fields exist.
// Returns implicit required (first return) and optional (second return) dependencies based on the config.
func (cfg *Config) Validate(path string) ([]string, []string, error) {
	if cfg.PlatformFrameName == "" {
		return nil, nil, errors.New("platform_frame_name is required")
	}
	if cfg.UpdateRateHz <= 0 {
		return nil, nil, errors.New("update_rate_hz must be greater than 0")
	}
	if cfg.FocalLengthMM <= 0 {
		return nil, nil, errors.New("focal_length_mm must be greater than 0")
	}
	if cfg.SensorWidthMM <= 0 || cfg.SensorHeightMM <= 0 {
		return nil, nil, errors.New("sensor dimensions must be greater than 0")
	}
	if cfg.ImageWidthPx <= 0 || cfg.ImageHeightPx <= 0 {
		return nil, nil, errors.New("image dimensions must be greater than 0")
	}
	if cfg.MaxRangeM == 0 {
		cfg.MaxRangeM = utils.DefaultGeolocationLimits.MaxRangeM
	}
	if cfg.DepressionDeg == 0 {
		cfg.DepressionDeg = 90.0
	}
	if cfg.DepressionDeg < 0 || cfg.DepressionDeg > 92 {
		return nil, nil, errors.New("depression_deg must be between 0 and 92")
	}
	return nil, nil, nil
}

type frameGeolocator struct {
	resource.AlwaysRebuild

	name resource.Name

	logger logging.Logger
	cfg    *Config

	cancelCtx  context.Context
	cancelFunc func()

	robotClient       robot.Robot
	platformFrameName string
	estimator         *estimators.LocationEstimator

	mu       sync.Mutex
	lastPose utils.PlatformPose
	havePose bool
	poseStep int
}

func newFrameGeolocator(ctx context.Context, deps resource.Dependencies, rawConf resource.Config, logger logging.Logger) (resource.Resource, error) {
	conf, err := resource.NativeConfig[*Config](rawConf)
	if err != nil {
		return nil, err
	}
	return NewFrameGeolocator(ctx, deps, rawConf.ResourceName(), conf, logger)
}

func NewFrameGeolocator(ctx context.Context, deps resource.Dependencies, name resource.Name, conf *Config, logger logging.Logger) (resource.Resource, error) {

	cancelCtx, cancelFunc := context.WithCancel(context.Background())

	robotClient, err := vmodutils.ConnectToMachineFromEnv(ctx, logger)
	if err != nil {
		cancelFunc()
		return nil, fmt.Errorf("failed to connect to robot: %w", err)
	}

	var distortion *estimators.RadialDistortion
	if conf.DistortionK1 != 0 || conf.DistortionK2 != 0 {
		distortion = &estimators.RadialDistortion{K1: conf.DistortionK1, K2: conf.DistortionK2}
	}
	camera, err := estimators.NewCameraModel(conf.FocalLengthMM, conf.SensorWidthMM, conf.SensorHeightMM,
		conf.ImageWidthPx, conf.ImageHeightPx, distortion)
	if err != nil {
		cancelFunc()
		return nil, fmt.Errorf("failed to build camera model: %w", err)
	}

	terrain, err := models.BuildTerrain(conf.Terrain)
	if err != nil {
		cancelFunc()
		return nil, err
	}

	limits := utils.DefaultGeolocationLimits
	limits.MaxRangeM = conf.MaxRangeM

	s := &frameGeolocator{
		name:              name,
		logger:            logger,
		cfg:               conf,
		cancelCtx:         cancelCtx,
		cancelFunc:        cancelFunc,
		robotClient:       robotClient,
		platformFrameName: conf.PlatformFrameName,
		estimator:         estimators.NewLocationEstimator(logger, camera, terrain, limits),
	}

	go s.poseLoop(s.cancelCtx)
	s.logger.Info("Frame geolocator started")

	return s, nil
}

func (s *frameGeolocator) Name() resource.Name {
	return s.name
}

func (s *frameGeolocator) Close(context.Context) error {
	s.cancelFunc()
	return nil
}

// poseLoop keeps a fresh platform pose cached from the machine's frame
// system so estimate commands never block on telemetry.
func (s *frameGeolocator) poseLoop(ctx context.Context) {
	s.logger.Info("Starting pose loop")
	var updateInterval time.Duration = time.Duration(1.0 / s.cfg.UpdateRateHz * float64(time.Second))
	s.logger.Infof("Update interval: %v", updateInterval)
	ticker := time.NewTicker(updateInterval)
	defer ticker.Stop()

	fsc, err := s.robotClient.FrameSystemConfig(ctx)
	if err != nil {
		s.logger.Errorf("Failed to get frame system config: %v", err)
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			platformPart := touch.FindPart(fsc, s.platformFrameName)
			if platformPart == nil {
				s.logger.Errorf("can't find frame for %v", s.platformFrameName)
				continue
			}
			platformPose, err := s.robotClient.GetPose(ctx, platformPart.FrameConfig.Name(), "", []*referenceframe.LinkInFrame{}, map[string]interface{}{})
			if err != nil {
				s.logger.Errorf("Failed to get pose: %v", err)
				continue
			}

			// Frame system works in mm with Z up; telemetry poses are in
			// meters with northing along +Y of the world frame.
			pt := platformPose.Pose().Point()
			s.mu.Lock()
			s.poseStep++
			s.lastPose = utils.PlatformPose{
				NorthingM:     pt.Y / 1000.0,
				EastingM:      pt.X / 1000.0,
				AltitudeM:     pt.Z / 1000.0,
				HeadingDeg:    s.cfg.HeadingDeg,
				DepressionDeg: s.cfg.DepressionDeg,
				FlightStep:    s.poseStep,
			}
			s.havePose = true
			s.mu.Unlock()
			s.logger.Debugf("Platform pose: %+v", s.lastPose)
		}
	}
}

func (s *frameGeolocator) DoCommand(ctx context.Context, cmd map[string]interface{}) (map[string]interface{}, error) {
	switch cmd["command"] {
	case "estimate":
		px, ok := cmd["pixel_x"].(float64)
		if !ok {
			return nil, fmt.Errorf("pixel_x is required and must be a number")
		}
		py, ok := cmd["pixel_y"].(float64)
		if !ok {
			return nil, fmt.Errorf("pixel_y is required and must be a number")
		}

		s.mu.Lock()
		pose := s.lastPose
		havePose := s.havePose
		s.mu.Unlock()
		if !havePose {
			return nil, errors.New("no platform pose received yet")
		}

		obs := utils.ImageObservation{PixelX: px, PixelY: py, FlightStep: pose.FlightStep}
		le, ok := s.estimator.Estimate(pose, obs)
		if !ok {
			return map[string]interface{}{"rejected": true}, nil
		}
		return map[string]interface{}{
			"northing_m":  le.NorthingM,
			"easting_m":   le.EastingM,
			"elevation_m": le.ElevationM,
			"confidence":  le.Confidence,
			"flight_step": pose.FlightStep,
		}, nil

	case "last-pose":
		s.mu.Lock()
		defer s.mu.Unlock()
		if !s.havePose {
			return nil, errors.New("no platform pose received yet")
		}
		return map[string]interface{}{
			"northing_m":     s.lastPose.NorthingM,
			"easting_m":      s.lastPose.EastingM,
			"altitude_m":     s.lastPose.AltitudeM,
			"heading_deg":    s.lastPose.HeadingDeg,
			"depression_deg": s.lastPose.DepressionDeg,
			"flight_step":    s.lastPose.FlightStep,
		}, nil

	default:
		return nil, fmt.Errorf("invalid command: %v", cmd["command"])
	}
}
