package ai

import (
	"time"

	"github.com/kasuganosora/npcsense/game/perception"
)

// AIContext is passed to every behavior tree node during a decision.
// Belief is a snapshot taken once before the tree runs; nodes never read the
// live tracker, so a decision cannot observe a half-applied transition.
type AIContext struct {
	Agent    perception.ActorID
	Belief   perception.BeliefState
	Position perception.Vec3
	Now      time.Duration
	Intent   Intent

	// Path holds the named nodes on the branch that decided, outermost first.
	Path []string
}

// enter pushes name onto the path and returns the mark to restore on failure.
func (ctx *AIContext) enter(name string) int {
	mark := len(ctx.Path)
	if name != "" {
		ctx.Path = append(ctx.Path, name)
	}
	return mark
}

func (ctx *AIContext) leave(mark int, st Status) Status {
	if st == StatusFailure {
		ctx.Path = ctx.Path[:mark]
	}
	return st
}

// IntentKind is what the agent wants to do after a decision.
type IntentKind int

const (
	IntentIdle IntentKind = iota
	IntentAttack
	IntentMoveTo
)

func (k IntentKind) String() string {
	switch k {
	case IntentAttack:
		return "attack"
	case IntentMoveTo:
		return "move_to"
	default:
		return "idle"
	}
}

// MoveReason explains an IntentMoveTo.
type MoveReason string

const (
	ReasonSearch      MoveReason = "search_last_known"
	ReasonInvestigate MoveReason = "investigate_noise"
	ReasonReturnHome  MoveReason = "return_home"
)

// Intent is the output of one decision. Executing it (navigation, attacks)
// belongs to the movement layer.
type Intent struct {
	Kind   IntentKind         `json:"kind"`
	Target perception.ActorID `json:"target,omitempty"`
	Point  perception.Vec3    `json:"point"`
	Reason MoveReason         `json:"reason,omitempty"`
	Branch string             `json:"branch,omitempty"` // e.g. "zombie/search"
}
