package world

import (
	"sync"

	"github.com/kasuganosora/npcsense/game/ai"
	"github.com/kasuganosora/npcsense/game/perception"
)

// AgentSpec describes an NPC to possess. Nil sense configs fall back to the
// zone defaults unless the matching Disable flag is set.
type AgentSpec struct {
	ActorID        perception.ActorID        `json:"actor_id"`
	Sight          *perception.SightConfig   `json:"sight,omitempty"`
	Hearing        *perception.HearingConfig `json:"hearing,omitempty"`
	DisableSight   bool                      `json:"disable_sight"`
	DisableHearing bool                      `json:"disable_hearing"`
}

// Agent is a possessed NPC: it owns its aggregator, its tracker (and through
// it the belief state) and its behavior driver. Nothing here is shared with
// other agents.
type Agent struct {
	ID   perception.ActorID
	Home perception.Vec3

	agg     *perception.Aggregator
	tracker *perception.Tracker
	driver  *ai.Driver

	mu        sync.Mutex
	intent    ai.Intent
	published bool
	lastPub   perception.BeliefState
	lastInt   ai.Intent
	closed    bool
}

// Belief returns a snapshot of the agent's belief state.
func (a *Agent) Belief() perception.BeliefState { return a.tracker.Snapshot() }

// Intent returns the last decided intent.
func (a *Agent) Intent() ai.Intent {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.intent
}

// Aggregator exposes the agent's aggregator, e.g. to inject stimuli.
func (a *Agent) Aggregator() *perception.Aggregator { return a.agg }

// Tracker exposes the agent's tracker.
func (a *Agent) Tracker() *perception.Tracker { return a.tracker }

func (a *Agent) setIntent(in ai.Intent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.intent = in
}

// needsPublish reports whether belief or intent changed since the last
// publish, and records them as published.
func (a *Agent) needsPublish(b perception.BeliefState, in ai.Intent) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return false
	}
	if a.published && a.lastPub == b && a.lastInt == in {
		return false
	}
	a.published, a.lastPub, a.lastInt = true, b, in
	return true
}

// close tears the agent down. No stimulus is delivered afterwards.
func (a *Agent) close() {
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()
	a.agg.Close()
	a.tracker.Close()
}

// Closed reports whether the agent was unpossessed.
func (a *Agent) Closed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closed
}
