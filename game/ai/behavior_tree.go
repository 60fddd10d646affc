package ai

// Status is what a node reports after one tick.
type Status int

const (
	StatusSuccess Status = iota
	StatusFailure
	StatusRunning
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusFailure:
		return "failure"
	default:
		return "running"
	}
}

// Node is anything the tree can tick. Nodes read the belief snapshot on the
// context and write the chosen intent back to it.
type Node interface {
	Tick(ctx *AIContext) Status
}

// Selector tries its children in priority order and reports the first result
// that is not a failure.
type Selector struct {
	Name     string
	Children []Node
}

func (s *Selector) Tick(ctx *AIContext) Status {
	mark := ctx.enter(s.Name)
	st := StatusFailure
	for _, c := range s.Children {
		if st = c.Tick(ctx); st != StatusFailure {
			break
		}
	}
	return ctx.leave(mark, st)
}

// Sequence runs its children in order until one of them does not succeed.
type Sequence struct {
	Name     string
	Children []Node
}

func (s *Sequence) Tick(ctx *AIContext) Status {
	mark := ctx.enter(s.Name)
	st := StatusSuccess
	for _, c := range s.Children {
		if st = c.Tick(ctx); st != StatusSuccess {
			break
		}
	}
	return ctx.leave(mark, st)
}

// ConditionNode succeeds when Fn holds for the snapshot.
type ConditionNode struct {
	Fn func(*AIContext) bool
}

func (cn *ConditionNode) Tick(ctx *AIContext) Status {
	if cn.Fn(ctx) {
		return StatusSuccess
	}
	return StatusFailure
}

// ActionNode sets an intent on the context.
type ActionNode struct {
	Name string
	Fn   func(*AIContext) Status
}

func (an *ActionNode) Tick(ctx *AIContext) Status {
	mark := ctx.enter(an.Name)
	return ctx.leave(mark, an.Fn(ctx))
}

// Inverter swaps success and failure of its child. Running passes through.
type Inverter struct {
	Child Node
}

func (i *Inverter) Tick(ctx *AIContext) Status {
	switch st := i.Child.Tick(ctx); st {
	case StatusSuccess:
		return StatusFailure
	case StatusFailure:
		return StatusSuccess
	default:
		return st
	}
}

// Guard is a named branch that runs action only while cond holds.
func Guard(name string, cond func(*AIContext) bool, action Node) *Sequence {
	return &Sequence{Name: name, Children: []Node{&ConditionNode{Fn: cond}, action}}
}

// Unless negates a condition.
func Unless(cond func(*AIContext) bool) func(*AIContext) bool {
	return func(ctx *AIContext) bool { return !cond(ctx) }
}

// BehaviorTree is the root of one decision.
type BehaviorTree struct {
	Root Node
}

// Tick runs one decision. The names of the nodes that decided are left in
// ctx.Path, outermost first.
func (bt *BehaviorTree) Tick(ctx *AIContext) Status {
	ctx.Path = ctx.Path[:0]
	if bt.Root == nil {
		return StatusFailure
	}
	return bt.Root.Tick(ctx)
}
