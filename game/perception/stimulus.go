package perception

import "time"

// ActorID identifies an actor in the world. The perception layer only
// compares IDs; it never owns or dereferences the actor itself.
type ActorID string

// SenseKind enumerates the sensory channels.
type SenseKind int

const (
	SenseSight SenseKind = iota
	SenseHearing
)

func (k SenseKind) String() string {
	switch k {
	case SenseSight:
		return "sight"
	case SenseHearing:
		return "hearing"
	default:
		return "unknown"
	}
}

// Stimulus is one detection event. Sensed=true means the source is detected
// right now; Sensed=false marks the pass on which detection ended.
//
// Stimulus is passed by value everywhere so history cannot be rewritten.
type Stimulus struct {
	Source   ActorID
	Sense    SenseKind
	Location Vec3
	Sensed   bool
	At       time.Duration // simulation time since zone start
	Strength float64       // noise loudness; 1 for sight
	Tag      string        // noise tag, e.g. "gunshot"

	// Eligibility is the source's targeting class captured at detection time.
	Eligibility TargetEligibility

	// Continued marks a sighting of a source that was already seen on the
	// previous pass. Only fresh sightings may take the target from a primary
	// that is still in view.
	Continued bool
}

// WithEligibility returns a copy of s carrying the given classification.
func (s Stimulus) WithEligibility(e TargetEligibility) Stimulus {
	s.Eligibility = e
	return s
}

// SightStimulus builds a sight event.
func SightStimulus(src ActorID, loc Vec3, sensed bool, at time.Duration) Stimulus {
	return Stimulus{Source: src, Sense: SenseSight, Location: loc, Sensed: sensed, At: at, Strength: 1}
}

// HearingStimulus builds a hearing event. Hearing never produces a loss event.
func HearingStimulus(src ActorID, loc Vec3, at time.Duration, loudness float64, tag string) Stimulus {
	return Stimulus{Source: src, Sense: SenseHearing, Location: loc, Sensed: true, At: at, Strength: loudness, Tag: tag}
}
