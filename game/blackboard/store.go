package blackboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/kasuganosora/npcsense/cache"
	"github.com/kasuganosora/npcsense/game/ai"
	"github.com/kasuganosora/npcsense/game/perception"
	"go.uber.org/zap"
)

// Extra fields written next to the perception keys.
const (
	FieldPhase  = "Phase"
	FieldIntent = "Intent"
)

// ErrNoBlackboard is returned by Read when nothing was published for an agent.
var ErrNoBlackboard = errors.New("blackboard: no entry for agent")

// Key returns the cache hash holding one agent's blackboard.
func Key(zoneID int, agent perception.ActorID) string {
	return fmt.Sprintf("blackboard:%d:%s", zoneID, agent)
}

func indexKey(zoneID int) string {
	return fmt.Sprintf("blackboard:%d:agents", zoneID)
}

// Store mirrors agent beliefs into cache hashes so that readers outside the
// zone loop (REST, a game client) see the same keys the driver reads.
type Store struct {
	cache   cache.Cache
	ttl     time.Duration
	timeout time.Duration
	logger  *zap.Logger
}

// NewStore creates a Store. A ttl of 0 keeps entries until ClearBelief.
func NewStore(c cache.Cache, ttl time.Duration, logger *zap.Logger) *Store {
	return &Store{cache: c, ttl: ttl, timeout: 2 * time.Second, logger: logger}
}

// Encode renders a belief and intent as hash fields. Keys whose value is
// unset are returned in cleared.
func Encode(b perception.BeliefState, in ai.Intent) (fields map[string]string, cleared []string) {
	fields = make(map[string]string)
	for k, v := range b.Blackboard() {
		if v == nil {
			cleared = append(cleared, k)
			continue
		}
		raw, err := json.Marshal(v)
		if err != nil {
			continue
		}
		fields[k] = string(raw)
	}
	fields[FieldPhase] = b.Phase().String()
	if raw, err := json.Marshal(in); err == nil {
		fields[FieldIntent] = string(raw)
	}
	sort.Strings(cleared)
	return fields, cleared
}

// PublishBelief implements world.Publisher. Cache errors are logged, never
// propagated into the zone loop.
func (s *Store) PublishBelief(zoneID int, agent perception.ActorID, b perception.BeliefState, in ai.Intent) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.Write(ctx, zoneID, agent, b, in); err != nil {
		s.logger.Warn("blackboard publish failed",
			zap.Int("zone_id", zoneID),
			zap.String("agent", string(agent)),
			zap.Error(err))
	}
}

// Write stores one agent's blackboard.
func (s *Store) Write(ctx context.Context, zoneID int, agent perception.ActorID, b perception.BeliefState, in ai.Intent) error {
	key := Key(zoneID, agent)
	fields, cleared := Encode(b, in)
	if len(cleared) > 0 {
		if err := s.cache.HDel(ctx, key, cleared...); err != nil {
			return fmt.Errorf("hdel %s: %w", key, err)
		}
	}
	if err := s.cache.HSetAll(ctx, key, fields); err != nil {
		return fmt.Errorf("hset %s: %w", key, err)
	}
	if s.ttl > 0 {
		if err := s.cache.Expire(ctx, key, s.ttl); err != nil {
			return fmt.Errorf("expire %s: %w", key, err)
		}
	}
	return s.cache.SAdd(ctx, indexKey(zoneID), string(agent))
}

// ClearBelief implements world.Publisher.
func (s *Store) ClearBelief(zoneID int, agent perception.ActorID) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.cache.Del(ctx, Key(zoneID, agent)); err != nil {
		s.logger.Warn("blackboard clear failed", zap.String("agent", string(agent)), zap.Error(err))
	}
	if err := s.cache.SRem(ctx, indexKey(zoneID), string(agent)); err != nil {
		s.logger.Warn("blackboard index update failed", zap.String("agent", string(agent)), zap.Error(err))
	}
}

// Read returns an agent's blackboard fields as raw JSON values (Phase is
// returned as a JSON string).
func (s *Store) Read(ctx context.Context, zoneID int, agent perception.ActorID) (map[string]json.RawMessage, error) {
	all, err := s.cache.HGetAll(ctx, Key(zoneID, agent))
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, ErrNoBlackboard
	}
	out := make(map[string]json.RawMessage, len(all))
	for k, v := range all {
		if k == FieldPhase {
			raw, _ := json.Marshal(v)
			out[k] = raw
			continue
		}
		out[k] = json.RawMessage(v)
	}
	return out, nil
}

// Agents lists the agents with a published blackboard in a zone.
func (s *Store) Agents(ctx context.Context, zoneID int) ([]string, error) {
	ids, err := s.cache.SMembers(ctx, indexKey(zoneID))
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)
	return ids, nil
}
