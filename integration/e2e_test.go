package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/kasuganosora/npcsense/audit"
	"github.com/kasuganosora/npcsense/game/blackboard"
	"github.com/kasuganosora/npcsense/game/perception"
	mw "github.com/kasuganosora/npcsense/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealth(t *testing.T) {
	ts := NewTestServer(t)
	resp := ts.Get(t, "/health", "")
	var body map[string]interface{}
	ReadJSON(t, resp, &body)
	assert.Equal(t, "ok", body["status"])
}

// A game client feeds actors over the socket, an operator possesses the
// guard over REST and every consumer sees the same sighting.
func TestE2E_FeedPossessSight(t *testing.T) {
	ts := NewTestServer(t)
	opTok := ts.IssueToken(t, "gm", mw.ScopeOperator)
	obsTok := ts.IssueToken(t, "viewer", mw.ScopeObserver)

	resp := ts.PostJSON(t, "/api/zones", map[string]int{"id": 1}, opTok)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	stream := ts.ConnectSSE(t, "zone=1&agent=guard&access_token="+obsTok)
	feed := ts.ConnectWS(t, opTok, 1)

	feed.Send("actor_update", map[string]interface{}{
		"id": "guard", "kind": "npc", "affiliation": "friendly",
		"forward": map[string]float64{"x": 1},
	})
	feed.Send("actor_update", map[string]interface{}{
		"id": "intruder", "kind": "player", "affiliation": "enemy",
		"position": map[string]float64{"x": 800},
	})
	feed.Send("ping", map[string]int64{"client_ts": 1})
	feed.RecvType("pong", 5*time.Second)

	z := ts.WM.Get(1)
	require.NotNil(t, z)
	require.True(t, z.Registry().Exists("guard"))
	require.True(t, z.Registry().Exists("intruder"))

	resp = ts.PostJSON(t, "/api/zones/1/agents", map[string]string{"actor_id": "guard"}, opTok)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = ts.PostJSON(t, "/api/zones/1/step", nil, opTok)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// Socket.
	pkt := feed.RecvType("transition", 5*time.Second)
	var ev blackboard.Event
	require.NoError(t, json.Unmarshal(pkt.Payload, &ev))
	assert.Equal(t, "guard", string(ev.Agent))
	assert.Equal(t, perception.RuleSightAcquired, ev.Rule)

	// Stream.
	sev := stream.Next(5 * time.Second)
	require.Equal(t, "transition", sev.Name)
	require.NoError(t, json.Unmarshal([]byte(sev.Data), &ev))
	assert.Equal(t, "intruder", string(ev.Source))

	// Published blackboard.
	resp = ts.Get(t, "/api/zones/1/agents/guard/belief", obsTok)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var belief map[string]map[string]interface{}
	ReadJSON(t, resp, &belief)
	assert.Equal(t, "engaged_los", belief["live"]["phase"])
	assert.Equal(t, "intruder", belief["published"][perception.KeyTargetActor])

	// Journal.
	require.Eventually(t, func() bool {
		rows, err := ts.Audit.Transitions(context.Background(), audit.Query{ZoneID: 1, Agent: "guard"})
		return err == nil && len(rows) == 1
	}, 2*time.Second, 20*time.Millisecond)

	// Observers read but never write.
	resp = ts.PostJSON(t, "/api/zones/1/step", nil, obsTok)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()
}

// The intruder ducks behind a wall fed over the socket; the guard loses
// sight and keeps the last known location.
func TestE2E_OccluderBreaksSight(t *testing.T) {
	ts := NewTestServer(t)
	opTok := ts.IssueToken(t, "gm", mw.ScopeOperator)
	ts.WM.GetOrCreate(2)
	feed := ts.ConnectWS(t, opTok, 2)

	feed.Send("actor_update", map[string]interface{}{
		"id": "guard", "kind": "npc", "affiliation": "friendly",
		"forward": map[string]float64{"x": 1},
	})
	feed.Send("actor_update", map[string]interface{}{
		"id": "intruder", "kind": "player", "affiliation": "enemy",
		"position": map[string]float64{"x": 800},
	})
	feed.Send("ping", nil)
	feed.RecvType("pong", 5*time.Second)

	resp := ts.PostJSON(t, "/api/zones/2/agents", map[string]string{"actor_id": "guard"}, opTok)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()
	resp = ts.PostJSON(t, "/api/zones/2/step", nil, opTok)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
	feed.RecvType("transition", 5*time.Second)

	feed.Send("occluder", map[string]interface{}{
		"min": map[string]float64{"x": 400, "y": -100, "z": -100},
		"max": map[string]float64{"x": 450, "y": 100, "z": 100},
	})
	feed.Send("ping", nil)
	feed.RecvType("pong", 5*time.Second)

	resp = ts.PostJSON(t, "/api/zones/2/step", nil, opTok)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	pkt := feed.RecvType("transition", 5*time.Second)
	var ev blackboard.Event
	require.NoError(t, json.Unmarshal(pkt.Payload, &ev))
	assert.Equal(t, perception.RuleSightLost, ev.Rule)

	b := ts.WM.Get(2).Agent("guard").Belief()
	assert.Equal(t, perception.PhaseEngagedLost, b.Phase())
	assert.True(t, b.HasLastKnown)
	assert.Equal(t, 800.0, b.LastKnownLocation.X)
}

func TestE2E_RevokedTokenLocksOut(t *testing.T) {
	ts := NewTestServer(t)
	tok := ts.IssueToken(t, "gm", mw.ScopeOperator)

	resp := ts.PostJSON(t, "/api/auth/revoke", nil, tok)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = ts.Get(t, "/api/zones", tok)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}
