package perception

import (
	"sync"

	"go.uber.org/zap"
)

// Rule names reported with each transition.
const (
	RuleSightAcquired = "sight_acquired"
	RuleSightLost     = "sight_lost"
	RuleNoiseHeard    = "noise_heard"
)

// Transition describes one significant belief change.
type Transition struct {
	Agent    ActorID
	From     Phase
	To       Phase
	Rule     string
	Stimulus Stimulus
	Belief   BeliefState
}

// TransitionSink receives transitions after the tracker lock is released.
type TransitionSink interface {
	RecordTransition(Transition)
}

// Tracker folds the stimulus stream of one agent into its BeliefState. Each
// stimulus is applied atomically; readers only ever see whole transitions.
type Tracker struct {
	agent ActorID

	mu       sync.Mutex
	belief   BeliefState
	closed   bool
	alive    func(ActorID) bool
	sink     TransitionSink
	logger   *zap.Logger
	applied  int64
	rejected int64
}

// NewTracker creates an idle tracker with the given home location.
func NewTracker(agent ActorID, home Vec3, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		agent:  agent,
		belief: BeliefState{HomeLocation: home},
		logger: logger.With(zap.String("agent", string(agent))),
	}
}

// SetLiveness installs the check used to reject stimuli from actors that no
// longer exist. Without it every non-empty source is considered alive.
func (t *Tracker) SetLiveness(fn func(ActorID) bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.alive = fn
}

// SetSink installs the transition sink.
func (t *Tracker) SetSink(s TransitionSink) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sink = s
}

// Agent returns the owning agent id.
func (t *Tracker) Agent() ActorID { return t.agent }

// Snapshot returns a consistent copy of the belief state.
func (t *Tracker) Snapshot() BeliefState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.belief
}

// Advance applies stimuli in order and returns the resulting snapshot.
func (t *Tracker) Advance(stimuli []Stimulus) BeliefState {
	for _, s := range stimuli {
		t.Apply(s)
	}
	return t.Snapshot()
}

// Apply folds a single stimulus and reports whether the belief changed.
// Malformed or irrelevant input never fails; it simply leaves belief as is.
func (t *Tracker) Apply(s Stimulus) bool {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return false
	}
	before := t.belief
	rule := t.fold(s)
	after := t.belief
	sink := t.sink
	if rule == "" {
		t.rejected++
	} else {
		t.applied++
	}
	t.mu.Unlock()

	if before == after {
		return false
	}
	if significant(before, after) {
		tr := Transition{
			Agent:    t.agent,
			From:     before.Phase(),
			To:       after.Phase(),
			Rule:     rule,
			Stimulus: s,
			Belief:   after,
		}
		t.logger.Debug("belief transition",
			zap.String("rule", rule),
			zap.Stringer("from", tr.From),
			zap.Stringer("to", tr.To),
			zap.String("source", string(s.Source)))
		if sink != nil {
			sink.RecordTransition(tr)
		}
	}
	return true
}

// fold mutates t.belief for one stimulus. Caller holds t.mu. It returns the
// rule that handled the stimulus, or "" if the stimulus was informational.
func (t *Tracker) fold(s Stimulus) string {
	b := &t.belief
	switch {
	case s.Sense == SenseSight && s.Sensed:
		if !t.validSource(s) {
			return ""
		}
		if s.Eligibility != EligibilityHostilePlayer {
			t.logger.Debug("ignoring ineligible sighting", zap.String("source", string(s.Source)))
			return ""
		}
		if s.Continued && b.HasLineOfSight && s.Source != b.PrimaryTarget {
			return ""
		}
		b.PrimaryTarget = s.Source
		b.HasTarget = true
		b.HasLineOfSight = true
		b.LastKnownLocation = s.Location
		b.HasLastKnown = true
		b.LastKnownAt = s.At
		b.InvestigationPoint = Vec3{}
		b.HasInvestigation = false
		b.InvestigationAt = 0
		return RuleSightAcquired

	case s.Sense == SenseSight:
		if b.HasTarget && s.Source == b.PrimaryTarget {
			b.HasLineOfSight = false
			return RuleSightLost
		}
		return ""

	case s.Sense == SenseHearing && s.Sensed:
		if s.Source != "" && !t.validSource(s) {
			return ""
		}
		if b.HasTarget {
			t.logger.Debug("noise ignored while engaged",
				zap.String("source", string(s.Source)),
				zap.String("tag", s.Tag))
			return ""
		}
		b.InvestigationPoint = s.Location
		b.HasInvestigation = true
		b.InvestigationAt = s.At
		return RuleNoiseHeard
	}
	return ""
}

// validSource rejects stimuli whose source is empty or no longer exists.
// Caller holds t.mu.
func (t *Tracker) validSource(s Stimulus) bool {
	if s.Source == "" || (t.alive != nil && !t.alive(s.Source)) {
		t.logger.Debug("discarding stimulus from invalid source",
			zap.String("source", string(s.Source)),
			zap.Stringer("sense", s.Sense))
		return false
	}
	return true
}

// significant filters out per-pass refreshes of the same sighting.
func significant(before, after BeliefState) bool {
	return before.Phase() != after.Phase() ||
		before.PrimaryTarget != after.PrimaryTarget ||
		before.InvestigationPoint != after.InvestigationPoint
}

// Stats returns how many stimuli changed or were ignored by the rules.
func (t *Tracker) Stats() (applied, rejected int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.applied, t.rejected
}

// Close discards the tracker. Later stimuli are ignored.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
}

// Closed reports whether Close was called.
func (t *Tracker) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}
