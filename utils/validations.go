package utils

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// ValidatePoses checks quality of a segment's pose samples before calibration
func ValidatePoses(poses []PlatformPose) {
	n := len(poses)
	if n < 2 {
		fmt.Println("⚠️  Warning: Less than 2 pose samples (minimum required for a leg)")
		return
	}

	northings := make([]float64, n)
	eastings := make([]float64, n)
	altitudes := make([]float64, n)
	depressions := make([]float64, n)
	for i, p := range poses {
		northings[i] = p.NorthingM
		eastings[i] = p.EastingM
		altitudes[i] = p.AltitudeM
		depressions[i] = p.DepressionDeg
	}

	meanN, stdN := stat.MeanStdDev(northings, nil)
	meanE, stdE := stat.MeanStdDev(eastings, nil)
	meanA, stdA := stat.MeanStdDev(altitudes, nil)

	fmt.Printf("Leg Quality:\n")
	fmt.Printf("  Samples: %d\n", n)
	fmt.Printf("  Centroid: N=%.1f, E=%.1f, Alt=%.1f\n", meanN, meanE, meanA)
	fmt.Printf("  Spread: N=%.2f, E=%.2f, Alt=%.2f\n", stdN, stdE, stdA)

	// Horizontal track length drives how well a constant altitude bias can
	// be separated from per-object error.
	trackLen := math.Hypot(poses[n-1].NorthingM-poses[0].NorthingM,
		poses[n-1].EastingM-poses[0].EastingM)
	fmt.Printf("  Track length: %.1fm\n", trackLen)

	if trackLen < 10 {
		fmt.Println("  ⚠️  Short leg - poses too clustered for reliable bias recovery")
	}
	if stdA > 5 {
		fmt.Println("  ⚠️  Large altitude variation within one leg")
	}

	for _, d := range depressions {
		if d < DefaultGeolocationLimits.MinDepressionDeg || d > DefaultGeolocationLimits.MaxDepressionDeg {
			fmt.Printf("  ⚠️  Depression angle %.1f° outside [%.0f°, %.0f°]\n",
				d, DefaultGeolocationLimits.MinDepressionDeg, DefaultGeolocationLimits.MaxDepressionDeg)
			break
		}
	}
}

// ValidateBiasRecovery compares committed bias results across legs
func ValidateBiasRecovery(legIDs []int, biases []float64, originalErrs []float64, bestErrs []float64) {
	fmt.Println("\nLeg Calibration Summary:")
	fmt.Println("  Leg | Bias (m) | Original Err (m) | Best Err (m) | Status")
	fmt.Println("------|----------|------------------|--------------|--------")

	for i := range legIDs {
		status := "✓"
		if bestErrs[i] > originalErrs[i] {
			status = "✗"
		}
		fmt.Printf("%5d | %8.2f | %16.3f | %12.3f | %s\n",
			legIDs[i], biases[i], originalErrs[i], bestErrs[i], status)
	}

	if len(biases) > 1 {
		mean, std := stat.MeanStdDev(biases, nil)
		fmt.Printf("\nBias across legs: mean=%.2fm, std=%.2fm\n", mean, std)
		if std > 1.0 {
			fmt.Println("  ⚠️  Inconsistent bias between legs - check telemetry source")
		}
	}
}
