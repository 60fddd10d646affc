package ws

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/kasuganosora/npcsense/game/perception"
	"github.com/kasuganosora/npcsense/game/world"
	"go.uber.org/zap"
)

var (
	errHandlerPanic = errors.New("internal error")
	errZoneGone     = errors.New("zone no longer exists")
	errMissingID    = errors.New("id required")
	errUnknownActor = errors.New("unknown actor")
	errBadLoudness  = errors.New("loudness must not be negative")
	errBadBox       = errors.New("min must not exceed max")
)

// FeedHandlers apply a game client's world updates to the session's zone.
type FeedHandlers struct {
	wm     *world.Manager
	logger *zap.Logger
}

// NewFeedHandlers creates FeedHandlers.
func NewFeedHandlers(wm *world.Manager, logger *zap.Logger) *FeedHandlers {
	return &FeedHandlers{wm: wm, logger: logger}
}

// RegisterHandlers registers every feed packet type on r.
func (h *FeedHandlers) RegisterHandlers(r *Router) {
	r.On("ping", h.HandlePing)
	r.On("actor_update", h.HandleActorUpdate)
	r.On("actor_remove", h.HandleActorRemove)
	r.On("noise", h.HandleNoise)
	r.On("occluder", h.HandleOccluder)
}

func (h *FeedHandlers) zone(s *Session) (*world.Zone, error) {
	z := h.wm.Get(s.ZoneID)
	if z == nil {
		return nil, errZoneGone
	}
	return z, nil
}

type pingPayload struct {
	ClientTS int64 `json:"client_ts"`
}

type pongPayload struct {
	ClientTS int64 `json:"client_ts"`
	ServerTS int64 `json:"server_ts"`
	SimMs    int64 `json:"sim_ms"`
}

// HandlePing answers with the server and simulation clocks.
func (h *FeedHandlers) HandlePing(_ context.Context, s *Session, raw json.RawMessage) error {
	var req pingPayload
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &req); err != nil {
			return err
		}
	}
	resp := pongPayload{ClientTS: req.ClientTS, ServerTS: time.Now().UnixMilli()}
	if z := h.wm.Get(s.ZoneID); z != nil {
		resp.SimMs = z.Now().Milliseconds()
	}
	payload, _ := json.Marshal(resp)
	s.Send(&Packet{Type: "pong", Payload: payload})
	return nil
}

type actorUpdatePayload struct {
	ID          perception.ActorID      `json:"id"`
	Kind        string                  `json:"kind"`
	Position    perception.Vec3         `json:"position"`
	Forward     perception.Vec3         `json:"forward"`
	Affiliation *perception.Affiliation `json:"affiliation"`
}

// HandleActorUpdate registers or moves an actor. A packet with a kind is a
// full record; without one it only moves an existing actor.
func (h *FeedHandlers) HandleActorUpdate(_ context.Context, s *Session, raw json.RawMessage) error {
	var req actorUpdatePayload
	if err := json.Unmarshal(raw, &req); err != nil {
		return err
	}
	if req.ID == "" {
		return errMissingID
	}
	z, err := h.zone(s)
	if err != nil {
		return err
	}
	if req.Kind == "" {
		if !z.Registry().Move(req.ID, req.Position, req.Forward) {
			return errUnknownActor
		}
		return nil
	}
	aff := perception.AffiliationNeutral
	if req.Affiliation != nil {
		aff = *req.Affiliation
	}
	z.UpsertActor(world.Actor{
		ID:          req.ID,
		Kind:        req.Kind,
		Position:    req.Position,
		Forward:     req.Forward,
		Affiliation: aff,
		Eligibility: world.Classify(req.Kind, aff),
	})
	return nil
}

type actorRemovePayload struct {
	ID perception.ActorID `json:"id"`
}

// HandleActorRemove deletes an actor; a possessed pawn is unpossessed first.
func (h *FeedHandlers) HandleActorRemove(_ context.Context, s *Session, raw json.RawMessage) error {
	var req actorRemovePayload
	if err := json.Unmarshal(raw, &req); err != nil {
		return err
	}
	if req.ID == "" {
		return errMissingID
	}
	z, err := h.zone(s)
	if err != nil {
		return err
	}
	if !z.RemoveActor(req.ID) {
		return errUnknownActor
	}
	return nil
}

type noisePayload struct {
	Source   perception.ActorID `json:"source"`
	Location perception.Vec3    `json:"location"`
	Loudness float64            `json:"loudness"`
	Tag      string             `json:"tag"`
}

// HandleNoise reports a sound made in the zone.
func (h *FeedHandlers) HandleNoise(_ context.Context, s *Session, raw json.RawMessage) error {
	var req noisePayload
	if err := json.Unmarshal(raw, &req); err != nil {
		return err
	}
	if req.Loudness < 0 {
		return errBadLoudness
	}
	z, err := h.zone(s)
	if err != nil {
		return err
	}
	z.EmitNoise(perception.Noise{
		Source:   req.Source,
		Location: req.Location,
		Loudness: req.Loudness,
		Tag:      req.Tag,
	})
	return nil
}

// HandleOccluder adds a sight-blocking box.
func (h *FeedHandlers) HandleOccluder(_ context.Context, s *Session, raw json.RawMessage) error {
	var box world.Box
	if err := json.Unmarshal(raw, &box); err != nil {
		return err
	}
	if box.Min.X > box.Max.X || box.Min.Y > box.Max.Y || box.Min.Z > box.Max.Z {
		return errBadBox
	}
	z, err := h.zone(s)
	if err != nil {
		return err
	}
	z.Registry().AddOccluder(box)
	return nil
}
