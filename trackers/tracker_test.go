package trackers

import (
	"errors"
	"testing"

	"github.com/PhilipQuirke/SkyCombImageLibrary-sub002/utils"
)

func abs(a float64) float64 {
	if a < 0 {
		return -a
	}
	return a
}

func almostEqual(a, b, tol float64) bool {
	return abs(a-b) < tol
}

func TestIDGenSequential(t *testing.T) {
	gen := NewIDGen()
	for want := 1; want <= 5; want++ {
		if got := gen.Next(); got != want {
			t.Fatalf("IDGen.Next: got %d, want %d", got, want)
		}
	}
}

func TestStoreSharesOneGenerator(t *testing.T) {
	gen := NewIDGen()
	store := NewTrackStore(nil, gen)

	track := store.NewTrack(1)
	obsID := store.AddObservation(utils.ImageObservation{FlightStep: 3})

	if track.ID == obsID {
		t.Errorf("track and observation share ID %d", track.ID)
	}
	if _, ok := store.Track(track.ID); !ok {
		t.Error("track ID does not resolve")
	}
	if _, ok := store.Observation(obsID); !ok {
		t.Error("observation ID does not resolve")
	}
	if _, ok := store.Observation(track.ID); ok {
		t.Error("track ID resolved as an observation")
	}
}

func TestClaimAggregatesRunningStats(t *testing.T) {
	store := NewTrackStore(nil, NewIDGen())
	track := store.NewTrack(7)

	claims := []struct {
		step int
		est  utils.LocationEstimate
	}{
		{10, utils.LocationEstimate{NorthingM: 10.0, EastingM: 0.0, ElevationM: 5.0}},
		{11, utils.LocationEstimate{NorthingM: 20.0, EastingM: 0.0, ElevationM: 7.0}},
		{13, utils.LocationEstimate{NorthingM: 15.0, EastingM: 3.0, ElevationM: 6.0}},
	}
	for _, c := range claims {
		obsID := store.AddObservation(utils.ImageObservation{
			FlightStep:      c.step,
			SegmentID:       7,
			HotPixelDensity: 0.5,
		})
		if err := store.ClaimObservation(track.ID, obsID, c.est); err != nil {
			t.Fatalf("claim failed: %v", err)
		}
	}

	if track.ObservationCount() != 3 {
		t.Fatalf("observation count: got %d, want 3", track.ObservationCount())
	}
	if !almostEqual(track.CentroidNorthingM, 15.0, 1e-9) ||
		!almostEqual(track.CentroidEastingM, 1.0, 1e-9) {
		t.Errorf("centroid: got N=%f E=%f, want N=15 E=1",
			track.CentroidNorthingM, track.CentroidEastingM)
	}
	if track.MinElevationM != 5.0 || track.MaxElevationM != 7.0 ||
		!almostEqual(track.AvgElevationM, 6.0, 1e-9) {
		t.Errorf("elevation stats: got min=%f avg=%f max=%f, want 5/6/7",
			track.MinElevationM, track.AvgElevationM, track.MaxElevationM)
	}

	// Location error is each claim's horizontal deviation from the centroid,
	// summed: hypot(5,1) + hypot(5,1) + hypot(0,2).
	wantLocErr := 5.0990195135927845*2 + 2.0
	if !almostEqual(track.SumLocationErrM, wantLocErr, 1e-9) {
		t.Errorf("summed location error: got %f, want %f", track.SumLocationErrM, wantLocErr)
	}
	// Height error is each claim's deviation from the mean elevation, summed.
	if !almostEqual(track.SumHeightErrM, 2.0, 1e-9) {
		t.Errorf("summed height error: got %f, want 2", track.SumHeightErrM)
	}

	if track.FirstStep != 10 || track.LastStep != 13 {
		t.Errorf("step span: got [%d,%d], want [10,13]", track.FirstStep, track.LastStep)
	}
	if track.DurationSteps() != 4 {
		t.Errorf("duration: got %d, want 4", track.DurationSteps())
	}
}

func TestClaimUnknownIDs(t *testing.T) {
	store := NewTrackStore(nil, NewIDGen())
	track := store.NewTrack(1)
	obsID := store.AddObservation(utils.ImageObservation{})

	err := store.ClaimObservation(999, obsID, utils.LocationEstimate{})
	if !errors.Is(err, ErrUnknownTrack) {
		t.Errorf("unknown track: got %v, want ErrUnknownTrack", err)
	}
	err = store.ClaimObservation(track.ID, 999, utils.LocationEstimate{})
	if !errors.Is(err, ErrUnknownObservation) {
		t.Errorf("unknown observation: got %v, want ErrUnknownObservation", err)
	}
}

func TestSegmentTracks(t *testing.T) {
	store := NewTrackStore(nil, NewIDGen())
	a := store.NewTrack(1)
	store.NewTrack(2)
	c := store.NewTrack(1)

	got := store.SegmentTracks(1)
	if len(got) != 2 || got[0].ID != a.ID || got[1].ID != c.ID {
		t.Errorf("segment 1 tracks: got %d entries, want tracks %d and %d in order",
			len(got), a.ID, c.ID)
	}
}

func TestSignificantTracksFilterAndOrder(t *testing.T) {
	store := NewTrackStore(nil, NewIDGen())

	add := func(segID, nObs int, density, spreadM float64) *TrackedObject {
		track := store.NewTrack(segID)
		for i := 0; i < nObs; i++ {
			obsID := store.AddObservation(utils.ImageObservation{
				FlightStep:      i,
				HotPixelDensity: density,
			})
			// Alternate claims around a centroid so the spread controls the
			// summed location error.
			off := spreadM
			if i%2 == 1 {
				off = -spreadM
			}
			err := store.ClaimObservation(track.ID, obsID, utils.LocationEstimate{
				NorthingM: 100.0 + off,
			})
			if err != nil {
				t.Fatalf("claim failed: %v", err)
			}
		}
		return track
	}

	tight := add(1, 4, 0.9, 1.0)
	loose := add(1, 4, 0.9, 5.0)
	add(1, 2, 0.9, 9.0) // too few observations
	add(1, 4, 0.1, 9.0) // too faint

	got := store.SignificantTracks(3, 0.5)
	if len(got) != 2 {
		t.Fatalf("significant tracks: got %d, want 2", len(got))
	}
	if got[0].ID != loose.ID || got[1].ID != tight.ID {
		t.Errorf("worst-first order: got [%d %d], want [%d %d]",
			got[0].ID, got[1].ID, loose.ID, tight.ID)
	}
}
