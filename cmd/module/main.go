package main

import (
	"go.viam.com/rdk/module"
	"go.viam.com/rdk/resource"
	generic "go.viam.com/rdk/services/generic"

	thermalgeolocator "github.com/PhilipQuirke/SkyCombImageLibrary-sub002"
	"github.com/PhilipQuirke/SkyCombImageLibrary-sub002/models"
)

func main() {
	// ModularMain can take multiple APIModel arguments, if your module implements multiple models.
	module.ModularMain(
		resource.APIModel{API: generic.API, Model: thermalgeolocator.FrameGeolocator},
		resource.APIModel{API: generic.API, Model: models.ModelSegmentCalibrator},
	)
}
