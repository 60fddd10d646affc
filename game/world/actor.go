package world

import (
	"sort"
	"sync"

	"github.com/kasuganosora/npcsense/game/perception"
)

// Actor is one entry of the zone's actor registry: a player character, an
// NPC pawn or anything else that can be seen or heard.
type Actor struct {
	ID          perception.ActorID           `json:"id"`
	Kind        string                       `json:"kind"` // "player", "npc", ...
	Position    perception.Vec3              `json:"position"`
	Forward     perception.Vec3              `json:"forward"`
	Affiliation perception.Affiliation       `json:"affiliation"`
	Eligibility perception.TargetEligibility `json:"eligibility"`
}

// Classify resolves the targeting class of an actor once, from its kind and
// affiliation. Only hostile player characters are eligible primary targets.
func Classify(kind string, aff perception.Affiliation) perception.TargetEligibility {
	if kind == "player" && aff == perception.AffiliationEnemy {
		return perception.EligibilityHostilePlayer
	}
	return perception.EligibilityNone
}

// Registry holds actor positions and occluders for one zone.
type Registry struct {
	mu        sync.RWMutex
	actors    map[perception.ActorID]*Actor
	occluders []Box
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{actors: make(map[perception.ActorID]*Actor)}
}

// Upsert inserts or replaces an actor record.
func (r *Registry) Upsert(a Actor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := a
	r.actors[a.ID] = &cp
}

// Move updates position and facing. Returns false for unknown actors.
func (r *Registry) Move(id perception.ActorID, pos, forward perception.Vec3) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.actors[id]
	if !ok {
		return false
	}
	a.Position = pos
	a.Forward = forward
	return true
}

// Remove deletes an actor. Returns false if it was not registered.
func (r *Registry) Remove(id perception.ActorID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.actors[id]; !ok {
		return false
	}
	delete(r.actors, id)
	return true
}

// Get returns a copy of the actor record.
func (r *Registry) Get(id perception.ActorID) (Actor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.actors[id]
	if !ok {
		return Actor{}, false
	}
	return *a, true
}

// Exists reports whether id is registered. Used as the tracker liveness check.
func (r *Registry) Exists(id perception.ActorID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.actors[id]
	return ok
}

// Eligibility returns the targeting class of id. Unknown actors are
// EligibilityNone.
func (r *Registry) Eligibility(id perception.ActorID) perception.TargetEligibility {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if a, ok := r.actors[id]; ok {
		return a.Eligibility
	}
	return perception.EligibilityNone
}

// Count returns the number of registered actors.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.actors)
}

// All returns copies of every actor, sorted by id.
func (r *Registry) All() []Actor {
	r.mu.RLock()
	out := make([]Actor, 0, len(r.actors))
	for _, a := range r.actors {
		out = append(out, *a)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Candidates returns the actors within radius of center, excluding one id,
// sorted by id so that evaluation order is stable.
func (r *Registry) Candidates(exclude perception.ActorID, center perception.Vec3, radius float64) []perception.Candidate {
	r.mu.RLock()
	var out []perception.Candidate
	for id, a := range r.actors {
		if id == exclude {
			continue
		}
		if center.Dist(a.Position) > radius {
			continue
		}
		out = append(out, perception.Candidate{
			ID:          a.ID,
			Position:    a.Position,
			Affiliation: a.Affiliation,
			Eligibility: a.Eligibility,
		})
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ---- Occlusion ----

// AddOccluder registers a box that blocks sight.
func (r *Registry) AddOccluder(b Box) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.occluders = append(r.occluders, b)
}

// Occluders returns a copy of the registered boxes.
func (r *Registry) Occluders() []Box {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Box(nil), r.occluders...)
}

// Visible implements perception.Visibility: the segment between the two
// points must not cross any occluder.
func (r *Registry) Visible(from, to perception.Vec3) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, b := range r.occluders {
		if b.Intersects(from, to) {
			return false
		}
	}
	return true
}
