package blackboard

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/kasuganosora/npcsense/game/perception"
	"github.com/kasuganosora/npcsense/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func acquired(at time.Duration) perception.Transition {
	s := perception.SightStimulus("p1", perception.Vec3{X: 5}, true, at)
	return perception.Transition{
		Agent:    "zombie",
		From:     perception.PhaseIdle,
		To:       perception.PhaseEngagedLOS,
		Rule:     perception.RuleSightAcquired,
		Stimulus: s,
		Belief:   engaged(),
	}
}

func TestFeed_PublishesAndKeepsHistory(t *testing.T) {
	c, ps := testutil.SetupTestCache(t)
	f := NewFeed(ps, c, 2, zap.NewNop())
	ctx := context.Background()

	msgs, cancel, err := ps.Subscribe(ctx, TransitionChannel)
	require.NoError(t, err)
	defer cancel()

	f.RecordTransition(4, acquired(time.Second))

	select {
	case m := <-msgs:
		var ev Event
		require.NoError(t, json.Unmarshal([]byte(m.Payload), &ev))
		assert.Equal(t, 4, ev.Zone)
		assert.Equal(t, perception.ActorID("zombie"), ev.Agent)
		assert.Equal(t, "idle", ev.From)
		assert.Equal(t, "engaged_los", ev.To)
		assert.Equal(t, "sight", ev.Sense)
		assert.Equal(t, int64(1000), ev.SimTimeMs)
		assert.Equal(t, "p1", ev.Blackboard[perception.KeyTargetActor])
	case <-time.After(time.Second):
		t.Fatal("no transition published")
	}

	f.RecordTransition(4, acquired(2*time.Second))
	f.RecordTransition(4, acquired(3*time.Second))

	recent, err := f.Recent(ctx, 4, "zombie", 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, int64(3000), recent[0].SimTimeMs)
	assert.Equal(t, int64(2000), recent[1].SimTimeMs)

	require.NoError(t, f.Forget(ctx, 4, "zombie"))
	recent, _ = f.Recent(ctx, 4, "zombie", 10)
	assert.Empty(t, recent)
}
