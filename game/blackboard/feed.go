package blackboard

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kasuganosora/npcsense/cache"
	"github.com/kasuganosora/npcsense/game/perception"
	"go.uber.org/zap"
)

// TransitionChannel is the pub/sub channel carrying transition events.
const TransitionChannel = "perception.transitions"

// Event is the wire form of a belief transition.
type Event struct {
	Zone       int                `json:"zone"`
	Agent      perception.ActorID `json:"agent"`
	From       string             `json:"from"`
	To         string             `json:"to"`
	Rule       string             `json:"rule"`
	Source     perception.ActorID `json:"source,omitempty"`
	Sense      string             `json:"sense"`
	Location   perception.Vec3    `json:"location"`
	Tag        string             `json:"tag,omitempty"`
	SimTimeMs  int64              `json:"sim_time_ms"`
	Blackboard map[string]any     `json:"blackboard"`
	Time       time.Time          `json:"time"`
}

// NewEvent converts a tracker transition into an Event.
func NewEvent(zoneID int, tr perception.Transition) Event {
	return Event{
		Zone:       zoneID,
		Agent:      tr.Agent,
		From:       tr.From.String(),
		To:         tr.To.String(),
		Rule:       tr.Rule,
		Source:     tr.Stimulus.Source,
		Sense:      tr.Stimulus.Sense.String(),
		Location:   tr.Stimulus.Location,
		Tag:        tr.Stimulus.Tag,
		SimTimeMs:  tr.Stimulus.At.Milliseconds(),
		Blackboard: tr.Belief.Blackboard(),
		Time:       time.Now(),
	}
}

func recentKey(zoneID int, agent perception.ActorID) string {
	return fmt.Sprintf("transitions:%d:%s", zoneID, agent)
}

// Feed implements world.Recorder: every transition is published on
// TransitionChannel and kept in a short per-agent history list.
type Feed struct {
	pubsub  cache.PubSub
	cache   cache.Cache
	keep    int
	timeout time.Duration
	logger  *zap.Logger
}

// NewFeed creates a Feed keeping the last keep transitions per agent.
func NewFeed(ps cache.PubSub, c cache.Cache, keep int, logger *zap.Logger) *Feed {
	if keep <= 0 {
		keep = 50
	}
	return &Feed{pubsub: ps, cache: c, keep: keep, timeout: 2 * time.Second, logger: logger}
}

// RecordTransition publishes and stores the transition.
func (f *Feed) RecordTransition(zoneID int, tr perception.Transition) {
	raw, err := json.Marshal(NewEvent(zoneID, tr))
	if err != nil {
		f.logger.Warn("encode transition", zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	defer cancel()

	if err := f.pubsub.Publish(ctx, TransitionChannel, string(raw)); err != nil {
		f.logger.Warn("publish transition", zap.String("agent", string(tr.Agent)), zap.Error(err))
	}
	key := recentKey(zoneID, tr.Agent)
	if err := f.cache.LPush(ctx, key, string(raw)); err != nil {
		f.logger.Warn("store transition", zap.String("agent", string(tr.Agent)), zap.Error(err))
		return
	}
	_ = f.cache.LTrim(ctx, key, 0, int64(f.keep-1))
}

// Recent returns up to n most recent transitions of an agent, newest first.
func (f *Feed) Recent(ctx context.Context, zoneID int, agent perception.ActorID, n int) ([]Event, error) {
	if n <= 0 || n > f.keep {
		n = f.keep
	}
	raws, err := f.cache.LRange(ctx, recentKey(zoneID, agent), 0, int64(n-1))
	if err != nil {
		return nil, err
	}
	out := make([]Event, 0, len(raws))
	for _, r := range raws {
		var ev Event
		if err := json.Unmarshal([]byte(r), &ev); err != nil {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

// Forget drops an agent's history.
func (f *Feed) Forget(ctx context.Context, zoneID int, agent perception.ActorID) error {
	return f.cache.Del(ctx, recentKey(zoneID, agent))
}
