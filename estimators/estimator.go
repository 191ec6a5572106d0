package estimators

import (
	"math"

	"github.com/golang/geo/r3"
	"go.viam.com/rdk/logging"

	"github.com/PhilipQuirke/SkyCombImageLibrary-sub002/utils"
)

// Depression angles this close to straight down skip the ray march and use
// the terrain elevation directly under the platform; a near-vertical ray
// makes the horizontal march step degenerate.
const nearVerticalEpsDeg = 0.1

// LocationEstimator turns a single-frame pixel observation into a
// real-world location by projecting the pixel through the camera model and
// intersecting the resulting ray with terrain.
//
// All geometric failures (ray above horizontal, no terrain crossing, out of
// range) report ok=false rather than errors: they are expected and frequent.
type LocationEstimator struct {
	camera  *CameraModel
	terrain Terrain
	limits  utils.GeolocationLimits
	logger  logging.Logger
}

func NewLocationEstimator(logger logging.Logger, camera *CameraModel, terrain Terrain,
	limits utils.GeolocationLimits) *LocationEstimator {
	return &LocationEstimator{
		camera:  camera,
		terrain: terrain,
		limits:  limits,
		logger:  logger,
	}
}

func (e *LocationEstimator) Camera() *CameraModel { return e.camera }

func (e *LocationEstimator) Terrain() Terrain { return e.terrain }

// Estimate computes the ground location seen at the observation's pixel from
// the given platform pose, with a sensitivity-based confidence score.
func (e *LocationEstimator) Estimate(pose utils.PlatformPose, obs utils.ImageObservation) (utils.LocationEstimate, bool) {
	ground, ok := e.groundPoint(pose, obs.PixelX, obs.PixelY)
	if !ok {
		return utils.LocationEstimate{}, false
	}

	est := utils.LocationEstimate{
		NorthingM:  ground.Z,
		EastingM:   ground.X,
		ElevationM: ground.Y,
	}
	if est.HorizontalDistanceTo(pose) > e.limits.MaxRangeM {
		return utils.LocationEstimate{}, false
	}

	est.Confidence = e.confidence(pose, obs, ground)
	return est, true
}

// groundPoint projects one pixel to a world-frame ground point
// (X=east, Y=elevation, Z=north).
func (e *LocationEstimator) groundPoint(pose utils.PlatformPose, pixelX, pixelY float64) (r3.Vector, bool) {
	if math.Abs(pose.DepressionDeg-90.0) < nearVerticalEpsDeg {
		// Straight down: the ground point is directly under the platform.
		elev := e.terrain.ElevationAt(pose.NorthingM, pose.EastingM)
		return r3.Vector{X: pose.EastingM, Y: elev, Z: pose.NorthingM}, true
	}

	camDir := e.camera.ComputeCameraDirection(pixelX, pixelY)
	worldDir := CameraToWorldDirection(camDir, pose.HeadingDeg, pose.DepressionDeg)

	return RaycastToTerrain(pose.Position(), worldDir, e.terrain,
		e.limits.RaycastStepM, e.limits.MaxRangeM)
}

// confidence measures how far the ground point moves when the pixel is
// perturbed by one unit in X and in Y. Grazing view geometry amplifies
// pixel noise into large ground displacement, so confidence falls with
// sensitivity: 1 / (1 + average displacement), clamped to [0,1].
func (e *LocationEstimator) confidence(pose utils.PlatformPose, obs utils.ImageObservation, ground r3.Vector) float64 {
	var totalDisp float64
	var samples int

	if px, ok := e.groundPoint(pose, obs.PixelX+1, obs.PixelY); ok {
		totalDisp += px.Sub(ground).Norm()
		samples++
	}
	if py, ok := e.groundPoint(pose, obs.PixelX, obs.PixelY+1); ok {
		totalDisp += py.Sub(ground).Norm()
		samples++
	}

	if samples == 0 {
		// Both perturbed rays left the terrain: maximally unstable geometry.
		return 0.0
	}
	return utils.Clamp(1.0/(1.0+totalDisp/float64(samples)), 0.0, 1.0)
}
