package estimators

import (
	"errors"
	"math"

	"github.com/golang/geo/r3"

	"github.com/PhilipQuirke/SkyCombImageLibrary-sub002/utils"
)

// RadialDistortion holds the radial lens coefficients for the thermal
// camera. The correction applied is the usual 1 + k1*r² + k2*r⁴ scale on
// normalized image coordinates.
type RadialDistortion struct {
	K1 float64 `json:"k1"`
	K2 float64 `json:"k2"`
}

// CameraModel holds the fixed intrinsics of one thermal camera type and the
// derived pinhole projection (focal length in pixels, principal point).
// Construct once per camera type with NewCameraModel; immutable afterwards.
type CameraModel struct {
	FocalLengthMM  float64
	SensorWidthMM  float64
	SensorHeightMM float64
	ImageWidthPx   int
	ImageHeightPx  int
	Distortion     *RadialDistortion // nil = plain pinhole

	fx, fy float64 // focal length in pixels
	cx, cy float64 // principal point
}

var errBadIntrinsics = errors.New("camera intrinsics must all be positive")

// NewCameraModel derives the pixel-space projection from physical intrinsics.
func NewCameraModel(focalLengthMM, sensorWidthMM, sensorHeightMM float64,
	imageWidthPx, imageHeightPx int, distortion *RadialDistortion) (*CameraModel, error) {

	if focalLengthMM <= 0 || sensorWidthMM <= 0 || sensorHeightMM <= 0 ||
		imageWidthPx <= 0 || imageHeightPx <= 0 {
		return nil, errBadIntrinsics
	}

	c := &CameraModel{
		FocalLengthMM:  focalLengthMM,
		SensorWidthMM:  sensorWidthMM,
		SensorHeightMM: sensorHeightMM,
		ImageWidthPx:   imageWidthPx,
		ImageHeightPx:  imageHeightPx,
		Distortion:     distortion,
	}
	c.fx = focalLengthMM / sensorWidthMM * float64(imageWidthPx)
	c.fy = focalLengthMM / sensorHeightMM * float64(imageHeightPx)
	c.cx = float64(imageWidthPx) / 2.0
	c.cy = float64(imageHeightPx) / 2.0
	return c, nil
}

// ComputeCameraDirection maps a pixel coordinate to a unit direction in the
// camera frame: X=image right, Y=image down, Z=forward.
func (c *CameraModel) ComputeCameraDirection(pixelX, pixelY float64) r3.Vector {
	x := (pixelX - c.cx) / c.fx
	y := (pixelY - c.cy) / c.fy

	if c.Distortion != nil {
		// Radial pre-correction on normalized coordinates, then re-project.
		r2 := x*x + y*y
		scale := 1.0 + c.Distortion.K1*r2 + c.Distortion.K2*r2*r2
		x *= scale
		y *= scale
	}

	dir := r3.Vector{X: x, Y: y, Z: 1.0}
	return dir.Mul(1.0 / dir.Norm())
}

// CameraToWorldDirection rotates a camera-frame direction into the world
// frame (X=east, Y=up, Z=north). The rotation order is fixed: depression
// about the camera's lateral axis first, then heading about the vertical
// axis. Swapping the order moves the projected ground point by meters at
// typical ranges.
func CameraToWorldDirection(camDir r3.Vector, headingDeg, depressionDeg float64) r3.Vector {
	// Level camera at heading 0: camera X (right) = east, camera Y (down)
	// = -up, camera Z (forward) = north.
	vx := camDir.X
	vy := -camDir.Y
	vz := camDir.Z

	// Depression: pitch forward (+Z) down toward -Y about the lateral axis.
	d := utils.DegreesToRadians(depressionDeg)
	sinD, cosD := math.Sin(d), math.Cos(d)
	vy, vz = vy*cosD-vz*sinD, vy*sinD+vz*cosD

	// Heading: rotate clockwise from north about the vertical axis.
	h := utils.DegreesToRadians(headingDeg)
	sinH, cosH := math.Sin(h), math.Cos(h)
	vx, vz = vz*sinH+vx*cosH, vz*cosH-vx*sinH

	out := r3.Vector{X: vx, Y: vy, Z: vz}
	return out.Mul(1.0 / out.Norm())
}
