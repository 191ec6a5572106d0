package trackers

// HeightMethod identifies which algorithm produced a track's height estimate.
type HeightMethod int

const (
	// HeightMethodTerrainLock derives height from the ray/terrain crossing.
	HeightMethodTerrainLock HeightMethod = iota + 1
	// HeightMethodBoxProfile derives height from bounding-box growth across frames.
	HeightMethodBoxProfile
)

func (m HeightMethod) String() string {
	switch m {
	case HeightMethodTerrainLock:
		return "terrain_lock"
	case HeightMethodBoxProfile:
		return "box_profile"
	default:
		return "unknown"
	}
}

// HeightState is the outcome of height estimation for a track.
type HeightState int

const (
	HeightNotComputed HeightState = iota
	HeightComputed
	HeightFailed
)

func (s HeightState) String() string {
	switch s {
	case HeightNotComputed:
		return "not_computed"
	case HeightComputed:
		return "computed"
	case HeightFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// HeightStatus records whether, and by which method, a track's height was
// estimated. Later attempts never overwrite an earlier success.
type HeightStatus struct {
	State  HeightState
	Method HeightMethod
	Reason string // populated when State == HeightFailed
}

func HeightComputedBy(method HeightMethod) HeightStatus {
	return HeightStatus{State: HeightComputed, Method: method}
}

func HeightFailedBecause(method HeightMethod, reason string) HeightStatus {
	return HeightStatus{State: HeightFailed, Method: method, Reason: reason}
}

// Merge applies a later height-estimation attempt to an existing status.
// Precedence: an existing success always wins; otherwise a new success
// wins; otherwise a failure replaces not-computed.
func (h HeightStatus) Merge(later HeightStatus) HeightStatus {
	if h.State == HeightComputed {
		return h
	}
	if later.State == HeightComputed {
		return later
	}
	if later.State == HeightFailed {
		return later
	}
	return h
}
