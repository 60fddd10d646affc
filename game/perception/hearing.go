package perception

import "time"

// HearingChannel turns reported noises into hearing stimuli. Hearing has no
// field of view and no hysteresis band; each noise is heard once or not at all.
type HearingChannel struct {
	cfg HearingConfig
}

// NewHearingChannel creates a hearing channel. The config is assumed valid.
func NewHearingChannel(cfg HearingConfig) *HearingChannel {
	return &HearingChannel{cfg: cfg}
}

// Config returns the channel configuration.
func (c *HearingChannel) Config() HearingConfig { return c.cfg }

// Evaluate returns the audible noises as Sensed=true stimuli. A noise is
// audible when it lies within Range scaled by its loudness. Noises the agent
// made itself are ignored. A source heard several times in one pass yields a
// single stimulus for its loudest noise, the later one on a tie. Ambient
// noises without a source are each reported.
func (c *HearingChannel) Evaluate(now time.Duration, p Perceiver, noises []Noise, lookup func(ActorID) TargetEligibility) []Stimulus {
	var out []Stimulus
	bySource := make(map[ActorID]int)
	for _, n := range noises {
		if n.Source != "" && n.Source == p.ID {
			continue
		}
		if !c.cfg.Filter.Allows(n.Affiliation) {
			continue
		}
		loud := n.Loudness
		if loud <= 0 {
			loud = 1
		}
		if p.Position.Dist(n.Location) > c.cfg.Range*loud {
			continue
		}
		at := n.At
		if at == 0 {
			at = now
		}
		s := HearingStimulus(n.Source, n.Location, at, loud, n.Tag)
		if n.Source == "" {
			out = append(out, s)
			continue
		}
		if lookup != nil {
			s = s.WithEligibility(lookup(n.Source))
		}
		if i, ok := bySource[n.Source]; ok {
			prev := out[i]
			if s.Strength > prev.Strength || (s.Strength == prev.Strength && s.At >= prev.At) {
				out[i] = s
			}
			continue
		}
		bySource[n.Source] = len(out)
		out = append(out, s)
	}
	return out
}
