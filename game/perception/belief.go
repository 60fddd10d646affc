package perception

import "time"

// Phase is the conceptual tracker state derived from a BeliefState.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseInvestigating
	PhaseEngagedLOS
	PhaseEngagedLost
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseInvestigating:
		return "investigating"
	case PhaseEngagedLOS:
		return "engaged_los"
	case PhaseEngagedLost:
		return "engaged_lost"
	default:
		return "unknown"
	}
}

// Blackboard key names read by the behavior driver.
const (
	KeyTargetActor       = "TargetActor"
	KeyHasLineOfSight    = "HasLineOfSight"
	KeyLastKnownLocation = "LastKnownLocation"
	KeyTargetLocation    = "TargetLocation"
	KeyHomeLocation      = "HomeLocation"
)

// BeliefState is one agent's current understanding of its target. It is a
// plain value: copies are independent snapshots.
//
// Invariants kept by the tracker:
//   - HasTarget and HasInvestigation are never both true.
//   - LastKnownLocation survives loss of sight; only a newer sighting replaces it.
type BeliefState struct {
	PrimaryTarget  ActorID
	HasTarget      bool
	HasLineOfSight bool

	LastKnownLocation Vec3
	HasLastKnown      bool
	LastKnownAt       time.Duration

	InvestigationPoint Vec3
	HasInvestigation   bool
	InvestigationAt    time.Duration

	// HomeLocation is fixed at possession and never touched by the tracker.
	HomeLocation Vec3
}

// Phase derives the state-machine phase.
func (b BeliefState) Phase() Phase {
	switch {
	case b.HasTarget && b.HasLineOfSight:
		return PhaseEngagedLOS
	case b.HasTarget:
		return PhaseEngagedLost
	case b.HasInvestigation:
		return PhaseInvestigating
	default:
		return PhaseIdle
	}
}

// Blackboard renders the belief as named keys. Unset optional values are nil.
func (b BeliefState) Blackboard() map[string]any {
	bb := map[string]any{
		KeyTargetActor:       nil,
		KeyHasLineOfSight:    b.HasTarget && b.HasLineOfSight,
		KeyLastKnownLocation: nil,
		KeyTargetLocation:    nil,
		KeyHomeLocation:      b.HomeLocation,
	}
	if b.HasTarget {
		bb[KeyTargetActor] = b.PrimaryTarget
	}
	if b.HasLastKnown {
		bb[KeyLastKnownLocation] = b.LastKnownLocation
	}
	if b.HasInvestigation {
		bb[KeyTargetLocation] = b.InvestigationPoint
	}
	return bb
}
