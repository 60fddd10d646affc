package world

import (
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/kasuganosora/npcsense/game/ai"
	"github.com/kasuganosora/npcsense/game/perception"
	"go.uber.org/zap"
)

const maxPendingNoises = 1024

var (
	ErrUnknownActor     = errors.New("world: unknown actor")
	ErrAlreadyPossessed = errors.New("world: actor already possessed")
	ErrNotPossessed     = errors.New("world: actor not possessed")
)

// ZoneConfig controls the zone loop and the defaults given to new agents.
type ZoneConfig struct {
	TickInterval    time.Duration
	SenseEveryTicks int // sense evaluation runs every N ticks
	QueueSize       int
	Sight           perception.SightConfig
	Hearing         perception.HearingConfig
	Driver          ai.DriverConfig
}

// DefaultZoneConfig returns 20 TPS with sensing at 5 Hz.
func DefaultZoneConfig() ZoneConfig {
	return ZoneConfig{
		TickInterval:    50 * time.Millisecond,
		SenseEveryTicks: 4,
		QueueSize:       256,
		Sight:           perception.DefaultSightConfig(),
		Hearing:         perception.DefaultHearingConfig(),
		Driver:          ai.DefaultDriverConfig(),
	}
}

// Publisher receives an agent's belief whenever it or the agent's intent changes.
type Publisher interface {
	PublishBelief(zoneID int, agent perception.ActorID, b perception.BeliefState, in ai.Intent)
	ClearBelief(zoneID int, agent perception.ActorID)
}

// Recorder receives significant belief transitions.
type Recorder interface {
	RecordTransition(zoneID int, tr perception.Transition)
}

// Hooks are the outbound collaborators of every zone.
type Hooks struct {
	Publisher Publisher
	Recorders []Recorder
}

// Zone is one simulated area with its own actors, agents and tick loop.
type Zone struct {
	ID       int
	cfg      ZoneConfig
	registry *Registry
	hooks    Hooks

	mu     sync.RWMutex
	agents map[perception.ActorID]*Agent
	noises []perception.Noise
	now    time.Duration
	ticks  uint64

	// stepMu serialises ticks with possession changes so that teardown never
	// races a running agent step.
	stepMu sync.Mutex
	stopCh chan struct{}
	logger *zap.Logger
}

// NewZone creates a zone but does not start its loop.
func NewZone(id int, cfg ZoneConfig, hooks Hooks, logger *zap.Logger) *Zone {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 50 * time.Millisecond
	}
	if cfg.SenseEveryTicks <= 0 {
		cfg.SenseEveryTicks = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Zone{
		ID:       id,
		cfg:      cfg,
		registry: NewRegistry(),
		hooks:    hooks,
		agents:   make(map[perception.ActorID]*Agent),
		stopCh:   make(chan struct{}),
		logger:   logger.With(zap.Int("zone_id", id)),
	}
}

// Run drives the zone at its tick interval. Call in a goroutine.
func (z *Zone) Run() {
	ticker := time.NewTicker(z.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			z.Step()
		case <-z.stopCh:
			return
		}
	}
}

// Stop signals the loop to exit.
func (z *Zone) Stop() {
	select {
	case <-z.stopCh:
	default:
		close(z.stopCh)
	}
}

// StopChan is closed once the zone is stopped.
func (z *Zone) StopChan() <-chan struct{} { return z.stopCh }

// Registry returns the zone's actor registry.
func (z *Zone) Registry() *Registry { return z.registry }

// Config returns the zone configuration.
func (z *Zone) Config() ZoneConfig { return z.cfg }

// Now returns the simulation time.
func (z *Zone) Now() time.Duration {
	z.mu.RLock()
	defer z.mu.RUnlock()
	return z.now
}

// Ticks returns the number of completed ticks.
func (z *Zone) Ticks() uint64 {
	z.mu.RLock()
	defer z.mu.RUnlock()
	return z.ticks
}

// ---- Actors ----

// UpsertActor registers or replaces an actor.
func (z *Zone) UpsertActor(a Actor) { z.registry.Upsert(a) }

// RemoveActor deletes an actor. A possessed pawn is unpossessed first.
func (z *Zone) RemoveActor(id perception.ActorID) bool {
	if z.Agent(id) != nil {
		_ = z.Unpossess(id)
	}
	return z.registry.Remove(id)
}

// EmitNoise queues a noise for the next sensing pass.
func (z *Zone) EmitNoise(n perception.Noise) {
	if n.Source != "" {
		if a, ok := z.registry.Get(n.Source); ok {
			n.Affiliation = a.Affiliation
		} else {
			n.Affiliation = perception.AffiliationNeutral
		}
	} else {
		n.Affiliation = perception.AffiliationNeutral
	}

	z.mu.Lock()
	defer z.mu.Unlock()
	if n.At == 0 {
		n.At = z.now
	}
	if len(z.noises) >= maxPendingNoises {
		z.noises = z.noises[1:]
		z.logger.Warn("noise queue full, dropping oldest")
	}
	z.noises = append(z.noises, n)
}

// ---- Possession ----

// Possess creates belief state and senses for an actor. The actor's current
// position becomes its home location.
func (z *Zone) Possess(spec AgentSpec) (*Agent, error) {
	z.stepMu.Lock()
	defer z.stepMu.Unlock()

	actor, ok := z.registry.Get(spec.ActorID)
	if !ok {
		return nil, fmt.Errorf("possess %q: %w", spec.ActorID, ErrUnknownActor)
	}
	z.mu.RLock()
	_, exists := z.agents[spec.ActorID]
	z.mu.RUnlock()
	if exists {
		return nil, fmt.Errorf("possess %q: %w", spec.ActorID, ErrAlreadyPossessed)
	}

	aggCfg := perception.AggregatorConfig{QueueSize: z.cfg.QueueSize}
	if !spec.DisableSight {
		sight := z.cfg.Sight
		if spec.Sight != nil {
			sight = *spec.Sight
		}
		aggCfg.Sight = &sight
	}
	if !spec.DisableHearing {
		hearing := z.cfg.Hearing
		if spec.Hearing != nil {
			hearing = *spec.Hearing
		}
		aggCfg.Hearing = &hearing
	}
	agg, err := perception.NewAggregator(spec.ActorID, aggCfg, z.logger)
	if err != nil {
		return nil, fmt.Errorf("possess %q: %w", spec.ActorID, err)
	}

	tracker := perception.NewTracker(spec.ActorID, actor.Position, z.logger)
	tracker.SetLiveness(z.registry.Exists)
	tracker.SetSink(zoneSink{z})

	agent := &Agent{
		ID:      spec.ActorID,
		Home:    actor.Position,
		agg:     agg,
		tracker: tracker,
		driver:  ai.NewZombieDriver(z.cfg.Driver),
	}

	z.mu.Lock()
	z.agents[spec.ActorID] = agent
	z.mu.Unlock()

	if !agg.Configured() {
		z.logger.Info("agent possessed without senses, it will stay idle",
			zap.String("agent", string(spec.ActorID)))
	} else {
		z.logger.Info("agent possessed", zap.String("agent", string(spec.ActorID)))
	}
	return agent, nil
}

// Unpossess tears down an agent's senses and belief state.
func (z *Zone) Unpossess(id perception.ActorID) error {
	z.stepMu.Lock()
	defer z.stepMu.Unlock()

	z.mu.Lock()
	agent, ok := z.agents[id]
	if ok {
		delete(z.agents, id)
	}
	z.mu.Unlock()
	if !ok {
		return fmt.Errorf("unpossess %q: %w", id, ErrNotPossessed)
	}

	agent.close()
	if z.hooks.Publisher != nil {
		z.hooks.Publisher.ClearBelief(z.ID, id)
	}
	z.logger.Info("agent unpossessed", zap.String("agent", string(id)))
	return nil
}

// UnpossessAll tears down every agent (zone shutdown).
func (z *Zone) UnpossessAll() {
	for _, a := range z.Agents() {
		_ = z.Unpossess(a.ID)
	}
}

// Inject queues externally produced stimuli for an agent.
func (z *Zone) Inject(id perception.ActorID, stimuli ...perception.Stimulus) error {
	agent := z.Agent(id)
	if agent == nil {
		return fmt.Errorf("inject %q: %w", id, ErrNotPossessed)
	}
	agent.agg.Enqueue(stimuli...)
	return nil
}

// Agent returns the possessed agent for id, or nil.
func (z *Zone) Agent(id perception.ActorID) *Agent {
	z.mu.RLock()
	defer z.mu.RUnlock()
	return z.agents[id]
}

// Agents returns every possessed agent sorted by id.
func (z *Zone) Agents() []*Agent {
	z.mu.RLock()
	out := make([]*Agent, 0, len(z.agents))
	for _, a := range z.agents {
		out = append(out, a)
	}
	z.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AgentCount returns the number of possessed agents.
func (z *Zone) AgentCount() int {
	z.mu.RLock()
	defer z.mu.RUnlock()
	return len(z.agents)
}

// ---- Tick ----

// Step runs exactly one tick. The loop calls it; tests call it directly.
func (z *Zone) Step() {
	z.stepMu.Lock()
	defer z.stepMu.Unlock()

	z.mu.Lock()
	z.ticks++
	z.now += z.cfg.TickInterval
	now := z.now
	sense := z.ticks%uint64(z.cfg.SenseEveryTicks) == 0
	var noises []perception.Noise
	if sense {
		noises = z.noises
		z.noises = nil
	}
	agents := make([]*Agent, 0, len(z.agents))
	for _, a := range z.agents {
		agents = append(agents, a)
	}
	z.mu.Unlock()

	sort.Slice(agents, func(i, j int) bool { return agents[i].ID < agents[j].ID })
	for _, a := range agents {
		z.stepAgent(a, now, sense, noises)
	}
}

// stepAgent senses, folds and decides for one agent. A panic is contained to
// the agent so the rest of the zone keeps running.
func (z *Zone) stepAgent(a *Agent, now time.Duration, sense bool, noises []perception.Noise) {
	defer func() {
		if r := recover(); r != nil {
			z.logger.Error("agent step panicked",
				zap.String("agent", string(a.ID)),
				zap.Any("recover", r),
				zap.String("stack", string(debug.Stack())))
		}
	}()

	pawn, ok := z.registry.Get(a.ID)
	if !ok {
		return
	}
	if sense && a.agg.Configured() {
		p := perception.Perceiver{ID: a.ID, Position: pawn.Position, Forward: pawn.Forward}
		cands := z.registry.Candidates(a.ID, pawn.Position, queryRadius(a.agg))
		a.agg.Enqueue(a.agg.Evaluate(now, p, cands, noises, z.registry)...)
	}
	a.tracker.Advance(a.agg.Drain())

	var belief perception.BeliefState
	in := a.driver.Decide(a.ID, func() perception.BeliefState {
		belief = a.tracker.Snapshot()
		return belief
	}, now, pawn.Position)
	a.setIntent(in)

	if z.hooks.Publisher != nil && a.needsPublish(belief, in) {
		z.hooks.Publisher.PublishBelief(z.ID, a.ID, belief, in)
	}
}

// queryRadius covers the lose-sight radius and the hearing range, so noise
// sources nearby resolve their eligibility.
func queryRadius(agg *perception.Aggregator) float64 {
	r := 0.0
	if s := agg.Sight(); s != nil {
		r = s.Config().LoseRadius
	}
	if h := agg.Hearing(); h != nil && h.Config().Range > r {
		r = h.Config().Range
	}
	return r
}

// zoneSink forwards tracker transitions to the zone recorders.
type zoneSink struct{ z *Zone }

func (s zoneSink) RecordTransition(tr perception.Transition) {
	for _, r := range s.z.hooks.Recorders {
		r.RecordTransition(s.z.ID, tr)
	}
}
