package perception

import (
	"math"
	"sort"
	"time"
)

// SightChannel evaluates line-of-sight detection for one agent. It remembers
// which candidates are currently seen so that tracked candidates use the
// lose-sight radius and every detection ends with exactly one loss event.
//
// A SightChannel is owned by one aggregator and is not safe for concurrent use.
type SightChannel struct {
	cfg     SightConfig
	cosHalf float64
	seen    map[ActorID]seenEntry
}

type seenEntry struct {
	loc         Vec3
	eligibility TargetEligibility
}

// NewSightChannel creates a sight channel. The config is assumed valid.
func NewSightChannel(cfg SightConfig) *SightChannel {
	return &SightChannel{
		cfg:     cfg,
		cosHalf: math.Cos(cfg.PeripheralAngleDeg * math.Pi / 180),
		seen:    make(map[ActorID]seenEntry),
	}
}

// Config returns the channel configuration.
func (c *SightChannel) Config() SightConfig { return c.cfg }

// Tracking reports whether id is currently seen.
func (c *SightChannel) Tracking(id ActorID) bool {
	_, ok := c.seen[id]
	return ok
}

// Evaluate runs one sight pass and returns at most one stimulus per candidate.
// Candidates seen on the previous pass that are missing from cands (despawned,
// moved out of the query radius) get their terminal loss event too.
func (c *SightChannel) Evaluate(now time.Duration, p Perceiver, cands []Candidate, vis Visibility) []Stimulus {
	if vis == nil {
		vis = clearView
	}
	var out []Stimulus
	present := make(map[ActorID]struct{}, len(cands))
	for _, cand := range cands {
		if cand.ID == p.ID || cand.ID == "" {
			continue
		}
		present[cand.ID] = struct{}{}
		prev, tracked := c.seen[cand.ID]

		if !c.cfg.Filter.Allows(cand.Affiliation) {
			if tracked {
				out = append(out, c.lose(cand.ID, prev, now))
			}
			continue
		}

		radius := c.cfg.Radius
		if tracked {
			radius = c.cfg.LoseRadius
		}
		if c.detects(p, cand.Position, radius, vis) {
			c.seen[cand.ID] = seenEntry{loc: cand.Position, eligibility: cand.Eligibility}
			st := SightStimulus(cand.ID, cand.Position, true, now).WithEligibility(cand.Eligibility)
			st.Continued = tracked
			out = append(out, st)
		} else if tracked {
			out = append(out, c.lose(cand.ID, prev, now))
		}
	}

	var gone []ActorID
	for id := range c.seen {
		if _, ok := present[id]; !ok {
			gone = append(gone, id)
		}
	}
	sort.Slice(gone, func(i, j int) bool { return gone[i] < gone[j] })
	for _, id := range gone {
		out = append(out, c.lose(id, c.seen[id], now))
	}
	return out
}

func (c *SightChannel) lose(id ActorID, e seenEntry, now time.Duration) Stimulus {
	delete(c.seen, id)
	return SightStimulus(id, e.loc, false, now).WithEligibility(e.eligibility)
}

func (c *SightChannel) detects(p Perceiver, target Vec3, radius float64, vis Visibility) bool {
	if p.Position.Dist(target) > radius {
		return false
	}
	if !c.inCone(p, target) {
		return false
	}
	return vis.Visible(p.Position, target)
}

// inCone checks the peripheral half angle around the forward vector.
func (c *SightChannel) inCone(p Perceiver, target Vec3) bool {
	if p.Forward.IsZero() || c.cfg.PeripheralAngleDeg >= 180 {
		return true
	}
	dir := target.Sub(p.Position).Normalize()
	if dir.IsZero() {
		return true
	}
	return p.Forward.Normalize().Dot(dir) >= c.cosHalf-1e-9
}

// Reset drops all memory.
func (c *SightChannel) Reset() { c.seen = make(map[ActorID]seenEntry) }
