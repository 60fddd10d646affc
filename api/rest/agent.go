package rest

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/npcsense/audit"
	"github.com/kasuganosora/npcsense/game/ai"
	"github.com/kasuganosora/npcsense/game/blackboard"
	"github.com/kasuganosora/npcsense/game/perception"
	"github.com/kasuganosora/npcsense/game/world"
	"go.uber.org/zap"
)

const maxInjectBatch = 64

// AgentHandler handles possession and belief inspection.
type AgentHandler struct {
	wm     *world.Manager
	store  *blackboard.Store
	feed   *blackboard.Feed
	audit  *audit.Service
	logger *zap.Logger
}

// NewAgentHandler creates an AgentHandler.
func NewAgentHandler(wm *world.Manager, store *blackboard.Store, feed *blackboard.Feed, auditSvc *audit.Service, logger *zap.Logger) *AgentHandler {
	return &AgentHandler{wm: wm, store: store, feed: feed, audit: auditSvc, logger: logger}
}

// agentView is the live state of one agent as seen by the zone loop.
type agentView struct {
	ID         perception.ActorID `json:"id"`
	Phase      string             `json:"phase"`
	Home       perception.Vec3    `json:"home"`
	Blackboard map[string]any     `json:"blackboard"`
	Intent     ai.Intent          `json:"intent"`
	Senses     []string           `json:"senses"`
	Dominant   string             `json:"dominant,omitempty"`
	Pending    int                `json:"pending"`
	Dropped    int64              `json:"dropped"`
}

func viewAgent(a *world.Agent) agentView {
	b := a.Belief()
	v := agentView{
		ID:         a.ID,
		Phase:      b.Phase().String(),
		Home:       a.Home,
		Blackboard: b.Blackboard(),
		Intent:     a.Intent(),
		Senses:     []string{},
		Pending:    a.Aggregator().Pending(),
		Dropped:    a.Aggregator().Dropped(),
	}
	agg := a.Aggregator()
	if agg.Sight() != nil {
		v.Senses = append(v.Senses, perception.SenseSight.String())
	}
	if agg.Hearing() != nil {
		v.Senses = append(v.Senses, perception.SenseHearing.String())
	}
	if agg.Configured() {
		v.Dominant = agg.Dominant().String()
	}
	return v
}

// List handles GET /api/zones/:zone/agents.
func (h *AgentHandler) List(c *gin.Context) {
	z, ok := zoneParam(c, h.wm)
	if !ok {
		return
	}
	agents := z.Agents()
	out := make([]agentView, 0, len(agents))
	for _, a := range agents {
		out = append(out, viewAgent(a))
	}
	c.JSON(http.StatusOK, gin.H{"agents": out, "count": len(out)})
}

// Possess handles POST /api/zones/:zone/agents.
func (h *AgentHandler) Possess(c *gin.Context) {
	start := time.Now()
	z, ok := zoneParam(c, h.wm)
	if !ok {
		return
	}
	var spec world.AgentSpec
	if err := c.ShouldBindJSON(&spec); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if spec.ActorID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "actor_id required"})
		return
	}
	a, err := z.Possess(spec)
	logAction(c, h.audit, "possess", z.ID, string(spec.ActorID), spec, err, start)
	if err != nil {
		c.JSON(possessStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"agent": viewAgent(a)})
}

func possessStatus(err error) int {
	switch {
	case errors.Is(err, world.ErrUnknownActor), errors.Is(err, world.ErrNotPossessed):
		return http.StatusNotFound
	case errors.Is(err, world.ErrAlreadyPossessed):
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

// Unpossess handles DELETE /api/zones/:zone/agents/:actor.
func (h *AgentHandler) Unpossess(c *gin.Context) {
	start := time.Now()
	z, ok := zoneParam(c, h.wm)
	if !ok {
		return
	}
	id := perception.ActorID(c.Param("actor"))
	err := z.Unpossess(id)
	logAction(c, h.audit, "unpossess", z.ID, string(id), nil, err, start)
	if err != nil {
		c.JSON(possessStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Belief handles GET /api/zones/:zone/agents/:actor/belief. It returns the
// live belief and the last copy published to the blackboard store.
func (h *AgentHandler) Belief(c *gin.Context) {
	z, ok := zoneParam(c, h.wm)
	if !ok {
		return
	}
	id := perception.ActorID(c.Param("actor"))
	a := z.Agent(id)
	if a == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "agent not found"})
		return
	}
	published, err := h.store.Read(c.Request.Context(), z.ID, id)
	switch {
	case errors.Is(err, blackboard.ErrNoBlackboard):
		published = map[string]json.RawMessage{}
	case err != nil:
		h.logger.Error("blackboard read failed", zap.String("agent", string(id)), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cache error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"live": viewAgent(a), "published": published})
}

// Transitions handles GET /api/zones/:zone/agents/:actor/transitions?n=N.
// History outlives possession until it is forgotten.
func (h *AgentHandler) Transitions(c *gin.Context) {
	z, ok := zoneParam(c, h.wm)
	if !ok {
		return
	}
	n, _ := strconv.Atoi(c.Query("n"))
	events, err := h.feed.Recent(c.Request.Context(), z.ID, perception.ActorID(c.Param("actor")), n)
	if err != nil {
		h.logger.Error("transition history read failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cache error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"transitions": events, "count": len(events)})
}

// ForgetTransitions handles DELETE /api/zones/:zone/agents/:actor/transitions.
func (h *AgentHandler) ForgetTransitions(c *gin.Context) {
	start := time.Now()
	z, ok := zoneParam(c, h.wm)
	if !ok {
		return
	}
	id := c.Param("actor")
	err := h.feed.Forget(c.Request.Context(), z.ID, perception.ActorID(id))
	logAction(c, h.audit, "history_forget", z.ID, id, nil, err, start)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cache error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

type stimulusRequest struct {
	Source   perception.ActorID `json:"source" binding:"required"`
	Sense    string             `json:"sense" binding:"required,oneof=sight hearing"`
	Location perception.Vec3    `json:"location"`
	Sensed   *bool              `json:"sensed"`
	Strength float64            `json:"strength"`
	Tag      string             `json:"tag" binding:"max=64"`
}

type injectRequest struct {
	Stimuli []stimulusRequest `json:"stimuli" binding:"required,min=1,dive"`
}

// Inject handles POST /api/zones/:zone/agents/:actor/stimuli. Stimuli are
// timestamped with the zone clock and the source eligibility is resolved
// from the registry, as for sensed ones.
func (h *AgentHandler) Inject(c *gin.Context) {
	start := time.Now()
	z, ok := zoneParam(c, h.wm)
	if !ok {
		return
	}
	var req injectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.Stimuli) > maxInjectBatch {
		c.JSON(http.StatusBadRequest, gin.H{"error": "too many stimuli"})
		return
	}
	now := z.Now()
	reg := z.Registry()
	stimuli := make([]perception.Stimulus, 0, len(req.Stimuli))
	for _, s := range req.Stimuli {
		var st perception.Stimulus
		if s.Sense == perception.SenseSight.String() {
			sensed := s.Sensed == nil || *s.Sensed
			st = perception.SightStimulus(s.Source, s.Location, sensed, now)
		} else {
			loud := s.Strength
			if loud <= 0 {
				loud = 1
			}
			st = perception.HearingStimulus(s.Source, s.Location, now, loud, s.Tag)
		}
		stimuli = append(stimuli, st.WithEligibility(reg.Eligibility(s.Source)))
	}
	id := perception.ActorID(c.Param("actor"))
	err := z.Inject(id, stimuli...)
	logAction(c, h.audit, "inject", z.ID, string(id), req, err, start)
	if err != nil {
		c.JSON(possessStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"queued": len(stimuli)})
}
