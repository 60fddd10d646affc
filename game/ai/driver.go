package ai

import (
	"strings"
	"time"

	"github.com/kasuganosora/npcsense/game/perception"
)

// DriverConfig tunes the reference zombie tree. Staleness of remembered
// locations is decided here, not in the tracker.
type DriverConfig struct {
	SearchTimeout      time.Duration `mapstructure:"search_timeout"`
	InvestigateTimeout time.Duration `mapstructure:"investigate_timeout"`
	ArriveRadius       float64       `mapstructure:"arrive_radius"`
	HomeRadius         float64       `mapstructure:"home_radius"`
}

// DefaultDriverConfig returns the tuning used when config leaves it unset.
func DefaultDriverConfig() DriverConfig {
	return DriverConfig{
		SearchTimeout:      15 * time.Second,
		InvestigateTimeout: 10 * time.Second,
		ArriveRadius:       50,
		HomeRadius:         100,
	}
}

// Driver turns belief snapshots into intents.
type Driver struct {
	tree *BehaviorTree
	cfg  DriverConfig
}

// NewDriver creates a driver running the given tree.
func NewDriver(tree *BehaviorTree, cfg DriverConfig) *Driver {
	return &Driver{tree: tree, cfg: cfg}
}

// NewZombieDriver creates a driver running NewZombieTree.
func NewZombieDriver(cfg DriverConfig) *Driver {
	return NewDriver(NewZombieTree(cfg), cfg)
}

// Decide takes one belief snapshot and evaluates the tree against it.
func (d *Driver) Decide(agent perception.ActorID, snapshot func() perception.BeliefState, now time.Duration, pos perception.Vec3) Intent {
	ctx := &AIContext{
		Agent:    agent,
		Belief:   snapshot(),
		Position: pos,
		Now:      now,
	}
	if d.tree.Tick(ctx) == StatusFailure {
		return Intent{Kind: IntentIdle}
	}
	ctx.Intent.Branch = strings.Join(ctx.Path, "/")
	return ctx.Intent
}

// NewZombieTree builds the stock tree:
//
//	attack the target while it is in sight
//	else walk to the last known location until it goes stale
//	else walk to the investigation point until it goes stale
//	else return home, or idle there
func NewZombieTree(cfg DriverConfig) *BehaviorTree {
	moveTo := func(reason MoveReason, point func(*AIContext) perception.Vec3) Node {
		return &ActionNode{Name: "move", Fn: func(ctx *AIContext) Status {
			p := point(ctx)
			if ctx.Position.Dist(p) <= cfg.ArriveRadius {
				return StatusFailure
			}
			ctx.Intent = Intent{Kind: IntentMoveTo, Point: p, Reason: reason}
			return StatusRunning
		}}
	}

	inSight := func(ctx *AIContext) bool {
		return ctx.Belief.Phase() == perception.PhaseEngagedLOS
	}
	freshLastKnown := func(ctx *AIContext) bool {
		b := ctx.Belief
		return b.Phase() == perception.PhaseEngagedLost && b.HasLastKnown &&
			ctx.Now-b.LastKnownAt <= cfg.SearchTimeout
	}
	freshNoise := func(ctx *AIContext) bool {
		b := ctx.Belief
		return b.HasInvestigation && ctx.Now-b.InvestigationAt <= cfg.InvestigateTimeout
	}
	atHome := func(ctx *AIContext) bool {
		return ctx.Position.Dist(ctx.Belief.HomeLocation) <= cfg.HomeRadius
	}

	return &BehaviorTree{Root: &Selector{Name: "zombie", Children: []Node{
		Guard("attack", inSight, &ActionNode{Name: "strike", Fn: func(ctx *AIContext) Status {
			ctx.Intent = Intent{Kind: IntentAttack, Target: ctx.Belief.PrimaryTarget, Point: ctx.Belief.LastKnownLocation}
			return StatusRunning
		}}),
		Guard("search", freshLastKnown,
			moveTo(ReasonSearch, func(ctx *AIContext) perception.Vec3 { return ctx.Belief.LastKnownLocation })),
		Guard("investigate", freshNoise,
			moveTo(ReasonInvestigate, func(ctx *AIContext) perception.Vec3 { return ctx.Belief.InvestigationPoint })),
		Guard("return_home", Unless(atHome),
			moveTo(ReasonReturnHome, func(ctx *AIContext) perception.Vec3 { return ctx.Belief.HomeLocation })),
		&ActionNode{Name: "idle", Fn: func(ctx *AIContext) Status {
			ctx.Intent = Intent{Kind: IntentIdle}
			return StatusSuccess
		}},
	}}}
}
