package perception

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

const defaultQueueSize = 256

// AggregatorConfig selects which channels an agent carries. A nil channel
// config means the agent lacks that sense; an agent with none stays idle.
type AggregatorConfig struct {
	Sight     *SightConfig
	Hearing   *HearingConfig
	QueueSize int
}

// Aggregator owns the sense channels of one agent and merges their output
// into a single ordered stimulus stream. Stimuli are handed to the tracker
// through an explicit queue that the owner drains once per tick.
type Aggregator struct {
	agent    ActorID
	sight    *SightChannel
	hearing  *HearingChannel
	dominant SenseKind

	mu      sync.Mutex
	queue   chan Stimulus
	closed  bool
	dropped int64
	logger  *zap.Logger
}

// NewAggregator validates the channel configs and builds the aggregator.
func NewAggregator(agent ActorID, cfg AggregatorConfig, logger *zap.Logger) (*Aggregator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}
	a := &Aggregator{
		agent:    agent,
		dominant: SenseSight,
		queue:    make(chan Stimulus, size),
		logger:   logger,
	}
	if cfg.Sight != nil {
		if err := cfg.Sight.Validate(); err != nil {
			return nil, err
		}
		a.sight = NewSightChannel(*cfg.Sight)
	}
	if cfg.Hearing != nil {
		if err := cfg.Hearing.Validate(); err != nil {
			return nil, err
		}
		a.hearing = NewHearingChannel(*cfg.Hearing)
		if cfg.Hearing.Dominant && (cfg.Sight == nil || !cfg.Sight.Dominant) {
			a.dominant = SenseHearing
		}
	}
	return a, nil
}

// Configured reports whether the agent has at least one sense.
func (a *Aggregator) Configured() bool { return a.sight != nil || a.hearing != nil }

// Dominant returns the tie-break sense.
func (a *Aggregator) Dominant() SenseKind { return a.dominant }

// Sight returns the sight channel, or nil.
func (a *Aggregator) Sight() *SightChannel { return a.sight }

// Hearing returns the hearing channel, or nil.
func (a *Aggregator) Hearing() *HearingChannel { return a.hearing }

// Evaluate runs every configured channel once and returns the merged result
// in stream order. It does not enqueue anything.
func (a *Aggregator) Evaluate(now time.Duration, p Perceiver, cands []Candidate, noises []Noise, vis Visibility) []Stimulus {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}

	var out []Stimulus
	if a.sight != nil {
		out = append(out, a.sight.Evaluate(now, p, cands, vis)...)
	}
	if a.hearing != nil && len(noises) > 0 {
		elig := make(map[ActorID]TargetEligibility, len(cands))
		for _, c := range cands {
			elig[c.ID] = c.Eligibility
		}
		out = append(out, a.hearing.Evaluate(now, p, noises, func(id ActorID) TargetEligibility {
			return elig[id]
		})...)
	}
	a.Order(out)
	return out
}

// Order sorts stimuli by time, then source, with the dominant sense first
// when one source fired on several senses at the same instant.
func (a *Aggregator) Order(s []Stimulus) {
	rank := func(k SenseKind) int {
		if k == a.dominant {
			return 0
		}
		return 1 + int(k)
	}
	sort.SliceStable(s, func(i, j int) bool {
		if s[i].At != s[j].At {
			return s[i].At < s[j].At
		}
		if s[i].Source != s[j].Source {
			return s[i].Source < s[j].Source
		}
		return rank(s[i].Sense) < rank(s[j].Sense)
	})
}

// Enqueue appends stimuli to the pending queue. Stimuli are dropped once the
// aggregator is closed or when the queue is full.
func (a *Aggregator) Enqueue(stimuli ...Stimulus) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	for _, s := range stimuli {
		select {
		case a.queue <- s:
		default:
			a.dropped++
			a.logger.Warn("stimulus queue full, dropping",
				zap.String("agent", string(a.agent)),
				zap.String("source", string(s.Source)),
				zap.Stringer("sense", s.Sense))
		}
	}
}

// Drain removes and returns all pending stimuli in arrival order.
func (a *Aggregator) Drain() []Stimulus {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	var out []Stimulus
	for {
		select {
		case s := <-a.queue:
			out = append(out, s)
		default:
			return out
		}
	}
}

// Pending returns the number of queued stimuli.
func (a *Aggregator) Pending() int { return len(a.queue) }

// Dropped returns how many stimuli were discarded because the queue was full.
func (a *Aggregator) Dropped() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dropped
}

// Close stops the aggregator: pending stimuli are discarded and nothing is
// produced or delivered afterwards. Close is idempotent.
func (a *Aggregator) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	a.closed = true
	for len(a.queue) > 0 {
		<-a.queue
	}
	if a.sight != nil {
		a.sight.Reset()
	}
}

// Closed reports whether Close was called.
func (a *Aggregator) Closed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closed
}
