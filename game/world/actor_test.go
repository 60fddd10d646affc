package world

import (
	"testing"

	"github.com/kasuganosora/npcsense/game/perception"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestClassify(t *testing.T) {
	assert.Equal(t, perception.EligibilityHostilePlayer, Classify("player", perception.AffiliationEnemy))
	assert.Equal(t, perception.EligibilityNone, Classify("player", perception.AffiliationFriendly))
	assert.Equal(t, perception.EligibilityNone, Classify("npc", perception.AffiliationEnemy))
}

func TestRegistry_CRUD(t *testing.T) {
	r := NewRegistry()
	r.Upsert(Actor{ID: "b", Position: perception.Vec3{X: 1}})
	r.Upsert(Actor{ID: "a"})
	assert.Equal(t, 2, r.Count())
	assert.True(t, r.Exists("a"))

	assert.True(t, r.Move("b", perception.Vec3{X: 5}, perception.Vec3{Y: 1}))
	assert.False(t, r.Move("zz", perception.Vec3{}, perception.Vec3{}))
	b, ok := r.Get("b")
	require.True(t, ok)
	assert.Equal(t, perception.Vec3{X: 5}, b.Position)
	assert.Equal(t, perception.Vec3{Y: 1}, b.Forward)

	all := r.All()
	require.Len(t, all, 2)
	assert.Equal(t, perception.ActorID("a"), all[0].ID)

	assert.True(t, r.Remove("a"))
	assert.False(t, r.Remove("a"))
	assert.False(t, r.Exists("a"))
}

func TestRegistry_Eligibility(t *testing.T) {
	r := NewRegistry()
	r.Upsert(Actor{ID: "p1", Kind: "player", Eligibility: perception.EligibilityHostilePlayer})
	assert.Equal(t, perception.EligibilityHostilePlayer, r.Eligibility("p1"))
	r.Remove("p1")
	assert.Equal(t, perception.EligibilityNone, r.Eligibility("p1"))
}

func TestRegistry_GetReturnsCopy(t *testing.T) {
	r := NewRegistry()
	r.Upsert(Actor{ID: "a"})
	a, _ := r.Get("a")
	a.Position.X = 99
	again, _ := r.Get("a")
	assert.Zero(t, again.Position.X)
}

func TestRegistry_Candidates(t *testing.T) {
	r := NewRegistry()
	r.Upsert(Actor{ID: "self"})
	r.Upsert(Actor{ID: "near2", Position: perception.Vec3{X: 10}})
	r.Upsert(Actor{ID: "near1", Position: perception.Vec3{Y: -10}, Eligibility: perception.EligibilityHostilePlayer})
	r.Upsert(Actor{ID: "far", Position: perception.Vec3{X: 500}})

	c := r.Candidates("self", perception.Vec3{}, 100)
	require.Len(t, c, 2)
	assert.Equal(t, perception.ActorID("near1"), c[0].ID)
	assert.Equal(t, perception.EligibilityHostilePlayer, c[0].Eligibility)
	assert.Equal(t, perception.ActorID("near2"), c[1].ID)
}

// ---- Occlusion ----

func TestBox_Intersects(t *testing.T) {
	wall := Box{Min: perception.Vec3{X: 4, Y: -1, Z: -1}, Max: perception.Vec3{X: 5, Y: 1, Z: 1}}

	assert.True(t, wall.Intersects(perception.Vec3{}, perception.Vec3{X: 10}))
	assert.True(t, wall.Intersects(perception.Vec3{X: 10}, perception.Vec3{}))
	// Segment ends before the wall.
	assert.False(t, wall.Intersects(perception.Vec3{}, perception.Vec3{X: 3}))
	// Passes beside the wall.
	assert.False(t, wall.Intersects(perception.Vec3{Y: 3}, perception.Vec3{X: 10, Y: 3}))
	// Parallel to an axis, outside the slab.
	assert.False(t, wall.Intersects(perception.Vec3{X: 4.5, Y: 5}, perception.Vec3{X: 4.5, Y: 10}))
	// Diagonal through the box.
	assert.True(t, wall.Intersects(perception.Vec3{X: 0, Y: -5}, perception.Vec3{X: 9, Y: 5}))
}

func TestRegistry_Visible(t *testing.T) {
	r := NewRegistry()
	assert.True(t, r.Visible(perception.Vec3{}, perception.Vec3{X: 10}))
	r.AddOccluder(Box{Min: perception.Vec3{X: 4, Y: -1, Z: -1}, Max: perception.Vec3{X: 5, Y: 1, Z: 1}})
	assert.Len(t, r.Occluders(), 1)
	assert.False(t, r.Visible(perception.Vec3{}, perception.Vec3{X: 10}))
	assert.True(t, r.Visible(perception.Vec3{}, perception.Vec3{X: -10}))
}

// ---- Manager ----

func TestManager_Lifecycle(t *testing.T) {
	m := NewManager(DefaultZoneConfig(), Hooks{}, zap.NewNop())
	z1 := m.GetOrCreate(2)
	assert.Same(t, z1, m.GetOrCreate(2))
	m.GetOrCreate(1)
	assert.Equal(t, []int{1, 2}, m.ZoneIDs())
	assert.Equal(t, 2, m.ActiveZoneCount())
	assert.Nil(t, m.Get(3))

	z1.UpsertActor(Actor{ID: "zombie"})
	a, err := z1.Possess(AgentSpec{ActorID: "zombie"})
	require.NoError(t, err)

	assert.True(t, m.Destroy(2))
	assert.False(t, m.Destroy(2))
	assert.True(t, a.Closed())
	<-z1.StopChan()

	m.StopAll()
	assert.Equal(t, 0, m.ActiveZoneCount())
}
