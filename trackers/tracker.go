package trackers

import (
	"errors"
	"fmt"
	"sort"

	"go.viam.com/rdk/logging"

	"github.com/PhilipQuirke/SkyCombImageLibrary-sub002/utils"
)

var (
	// ErrUnknownTrack is returned when a track ID does not resolve in the store.
	ErrUnknownTrack = errors.New("unknown track id")

	// ErrUnknownObservation is returned when an observation ID does not resolve.
	ErrUnknownObservation = errors.New("unknown observation id")

	// ErrNoClaims is returned when an operation needs a track with at least
	// one claimed observation.
	ErrNoClaims = errors.New("track has no claimed observations")
)

// IDGen hands out track and observation identifiers. It is passed in
// explicitly so the store carries no hidden process-wide state and multiple
// segment pipelines can run concurrently with their own generators.
type IDGen struct {
	next int
}

func NewIDGen() *IDGen {
	return &IDGen{next: 1}
}

func (g *IDGen) Next() int {
	id := g.next
	g.next++
	return id
}

// TrackStore is the arena resolving track and observation IDs to their
// current entities. Tracks reference observations by ID (and observations
// reference their segment by ID) instead of holding back-pointers, so there
// are no ownership cycles to manage.
type TrackStore struct {
	logger logging.Logger
	gen    *IDGen

	tracks       map[int]*TrackedObject
	observations map[int]utils.ImageObservation
	order        []int // track IDs in creation order
}

func NewTrackStore(logger logging.Logger, gen *IDGen) *TrackStore {
	return &TrackStore{
		logger:       logger,
		gen:          gen,
		tracks:       map[int]*TrackedObject{},
		observations: map[int]utils.ImageObservation{},
	}
}

// NewTrack creates an empty tracked object for a segment. Called when the
// feature detector signals a new track.
func (s *TrackStore) NewTrack(segmentID int) *TrackedObject {
	t := &TrackedObject{
		ID:        s.gen.Next(),
		SegmentID: segmentID,
	}
	s.tracks[t.ID] = t
	s.order = append(s.order, t.ID)
	return t
}

// Track resolves a track ID.
func (s *TrackStore) Track(id int) (*TrackedObject, bool) {
	t, ok := s.tracks[id]
	return t, ok
}

// AddObservation registers a detector observation in the arena and returns
// its assigned ID.
func (s *TrackStore) AddObservation(obs utils.ImageObservation) int {
	id := s.gen.Next()
	s.observations[id] = obs
	return id
}

// Observation resolves an observation ID.
func (s *TrackStore) Observation(id int) (utils.ImageObservation, bool) {
	obs, ok := s.observations[id]
	return obs, ok
}

// ClaimObservation folds an accepted location estimate into a track's
// running state. The estimate must come from the observation identified by
// obsID; each observation is claimed at most once.
func (s *TrackStore) ClaimObservation(trackID, obsID int, est utils.LocationEstimate) error {
	t, ok := s.tracks[trackID]
	if !ok {
		return fmt.Errorf("claim observation %d: %w (track %d)", obsID, ErrUnknownTrack, trackID)
	}
	obs, ok := s.observations[obsID]
	if !ok {
		return fmt.Errorf("claim for track %d: %w (observation %d)", trackID, ErrUnknownObservation, obsID)
	}
	t.claim(obs, obsID, est)
	return nil
}

// Tracks returns all tracks in creation order.
func (s *TrackStore) Tracks() []*TrackedObject {
	out := make([]*TrackedObject, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.tracks[id])
	}
	return out
}

// SegmentTracks returns the tracks belonging to one flight segment.
func (s *TrackStore) SegmentTracks(segmentID int) []*TrackedObject {
	var out []*TrackedObject
	for _, id := range s.order {
		if t := s.tracks[id]; t.SegmentID == segmentID {
			out = append(out, t)
		}
	}
	return out
}

// SignificantTracks returns the tracks that meet the duration and
// hot-pixel-density thresholds qualifying them for leg calibration,
// ordered by summed location error (worst first).
func (s *TrackStore) SignificantTracks(minObservations int, minDensity float64) []*TrackedObject {
	var out []*TrackedObject
	for _, id := range s.order {
		t := s.tracks[id]
		if t.ObservationCount() >= minObservations && t.PeakDensity >= minDensity {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].SumLocationErrM > out[j].SumLocationErrM
	})
	return out
}
