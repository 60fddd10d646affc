package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func leaf(s Status, calls *int) Node {
	return &ActionNode{Fn: func(*AIContext) Status {
		*calls++
		return s
	}}
}

func TestSelector_StopsOnFirstSuccess(t *testing.T) {
	var a, b, c int
	sel := &Selector{Children: []Node{leaf(StatusFailure, &a), leaf(StatusSuccess, &b), leaf(StatusSuccess, &c)}}
	assert.Equal(t, StatusSuccess, sel.Tick(&AIContext{}))
	assert.Equal(t, []int{1, 1, 0}, []int{a, b, c})
}

func TestSelector_AllFail(t *testing.T) {
	var a int
	sel := &Selector{Children: []Node{leaf(StatusFailure, &a), leaf(StatusFailure, &a)}}
	assert.Equal(t, StatusFailure, sel.Tick(&AIContext{}))
	assert.Equal(t, 2, a)
}

func TestSequence_StopsOnFailureAndRunning(t *testing.T) {
	var a, b int
	seq := &Sequence{Children: []Node{leaf(StatusSuccess, &a), leaf(StatusFailure, &b), leaf(StatusSuccess, &a)}}
	assert.Equal(t, StatusFailure, seq.Tick(&AIContext{}))
	assert.Equal(t, 1, a)

	seq = &Sequence{Children: []Node{leaf(StatusRunning, &b), leaf(StatusSuccess, &a)}}
	assert.Equal(t, StatusRunning, seq.Tick(&AIContext{}))
	assert.Equal(t, 1, a)
}

func TestInverter(t *testing.T) {
	var n int
	assert.Equal(t, StatusFailure, (&Inverter{Child: leaf(StatusSuccess, &n)}).Tick(&AIContext{}))
	assert.Equal(t, StatusSuccess, (&Inverter{Child: leaf(StatusFailure, &n)}).Tick(&AIContext{}))
	assert.Equal(t, StatusRunning, (&Inverter{Child: leaf(StatusRunning, &n)}).Tick(&AIContext{}))
}

func TestBehaviorTree_NilRoot(t *testing.T) {
	assert.Equal(t, StatusFailure, (&BehaviorTree{}).Tick(&AIContext{}))
}

func TestGuard_PathRecordsDecidingBranch(t *testing.T) {
	never := func(*AIContext) bool { return false }
	always := func(*AIContext) bool { return true }
	var n int
	bt := &BehaviorTree{Root: &Selector{Name: "root", Children: []Node{
		Guard("skipped", never, &ActionNode{Name: "a", Fn: func(*AIContext) Status { return StatusSuccess }}),
		Guard("failed", always, &ActionNode{Name: "b", Fn: func(*AIContext) Status { return StatusFailure }}),
		Guard("chosen", Unless(never), &ActionNode{Name: "c", Fn: func(*AIContext) Status { n++; return StatusRunning }}),
	}}}

	ctx := &AIContext{}
	assert.Equal(t, StatusRunning, bt.Tick(ctx))
	assert.Equal(t, []string{"root", "chosen", "c"}, ctx.Path)
	assert.Equal(t, 1, n)

	// A second tick on the same context starts from an empty path.
	assert.Equal(t, StatusRunning, bt.Tick(ctx))
	assert.Equal(t, []string{"root", "chosen", "c"}, ctx.Path)
}

func TestSelector_FailureLeavesNoPath(t *testing.T) {
	var n int
	bt := &BehaviorTree{Root: &Selector{Name: "root", Children: []Node{
		&Sequence{Name: "x", Children: []Node{leaf(StatusFailure, &n)}},
	}}}
	ctx := &AIContext{}
	assert.Equal(t, StatusFailure, bt.Tick(ctx))
	assert.Empty(t, ctx.Path)
}
