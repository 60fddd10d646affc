package rest

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/npcsense/audit"
	"github.com/kasuganosora/npcsense/game/perception"
	"github.com/kasuganosora/npcsense/game/world"
	mw "github.com/kasuganosora/npcsense/middleware"
	"go.uber.org/zap"
)

const maxStepsPerRequest = 1000

// ZoneHandler exposes zones, their actors, occluders and noises.
type ZoneHandler struct {
	wm     *world.Manager
	audit  *audit.Service
	logger *zap.Logger
}

// NewZoneHandler creates a ZoneHandler.
func NewZoneHandler(wm *world.Manager, auditSvc *audit.Service, logger *zap.Logger) *ZoneHandler {
	return &ZoneHandler{wm: wm, audit: auditSvc, logger: logger}
}

type zoneInfo struct {
	ID        int    `json:"id"`
	Ticks     uint64 `json:"ticks"`
	SimTimeMs int64  `json:"sim_time_ms"`
	Actors    int    `json:"actors"`
	Agents    int    `json:"agents"`
}

func describeZone(z *world.Zone) zoneInfo {
	return zoneInfo{
		ID:        z.ID,
		Ticks:     z.Ticks(),
		SimTimeMs: z.Now().Milliseconds(),
		Actors:    z.Registry().Count(),
		Agents:    z.AgentCount(),
	}
}

// zoneParam resolves :zone to a running zone, writing 400/404 on failure.
func zoneParam(c *gin.Context, wm *world.Manager) (*world.Zone, bool) {
	id, err := strconv.Atoi(c.Param("zone"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid zone id"})
		return nil, false
	}
	z := wm.Get(id)
	if z == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "zone not found"})
		return nil, false
	}
	return z, true
}

// logAction journals an operator action.
func logAction(c *gin.Context, svc *audit.Service, action string, zoneID int, agent string, req interface{}, err error, start time.Time) {
	e := audit.Entry{
		TraceID:    mw.GetTraceID(c),
		Operator:   mw.GetOperator(c),
		Action:     action,
		ZoneID:     zoneID,
		Agent:      agent,
		Request:    req,
		IP:         c.ClientIP(),
		DurationMs: int(time.Since(start).Milliseconds()),
	}
	if err != nil {
		e.Error = err.Error()
	}
	svc.Log(e)
}

// List handles GET /api/zones.
func (h *ZoneHandler) List(c *gin.Context) {
	ids := h.wm.ZoneIDs()
	zones := make([]zoneInfo, 0, len(ids))
	for _, id := range ids {
		if z := h.wm.Get(id); z != nil {
			zones = append(zones, describeZone(z))
		}
	}
	c.JSON(http.StatusOK, gin.H{"zones": zones, "count": len(zones)})
}

// Get handles GET /api/zones/:zone.
func (h *ZoneHandler) Get(c *gin.Context) {
	z, ok := zoneParam(c, h.wm)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"zone":      describeZone(z),
		"actors":    z.Registry().All(),
		"occluders": z.Registry().Occluders(),
	})
}

type createZoneRequest struct {
	ID int `json:"id" binding:"required,min=1"`
}

// Create handles POST /api/zones. Creating an existing zone is a no-op.
func (h *ZoneHandler) Create(c *gin.Context) {
	start := time.Now()
	var req createZoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	existed := h.wm.Get(req.ID) != nil
	z := h.wm.GetOrCreate(req.ID)
	logAction(c, h.audit, "zone_create", req.ID, "", req, nil, start)
	status := http.StatusCreated
	if existed {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{"zone": describeZone(z)})
}

// Delete handles DELETE /api/zones/:zone.
func (h *ZoneHandler) Delete(c *gin.Context) {
	start := time.Now()
	z, ok := zoneParam(c, h.wm)
	if !ok {
		return
	}
	h.wm.Destroy(z.ID)
	logAction(c, h.audit, "zone_destroy", z.ID, "", nil, nil, start)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

type stepRequest struct {
	Count int `json:"count"`
}

// Step handles POST /api/zones/:zone/step. It runs ticks synchronously,
// alongside the zone's own loop.
func (h *ZoneHandler) Step(c *gin.Context) {
	start := time.Now()
	z, ok := zoneParam(c, h.wm)
	if !ok {
		return
	}
	var req stepRequest
	// An empty body runs a single tick.
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	if req.Count <= 0 {
		req.Count = 1
	}
	if req.Count > maxStepsPerRequest {
		c.JSON(http.StatusBadRequest, gin.H{"error": "too many steps"})
		return
	}
	for i := 0; i < req.Count; i++ {
		z.Step()
	}
	logAction(c, h.audit, "zone_step", z.ID, "", req, nil, start)
	c.JSON(http.StatusOK, gin.H{"zone": describeZone(z)})
}

// ---- Actors ----

// ListActors handles GET /api/zones/:zone/actors.
func (h *ZoneHandler) ListActors(c *gin.Context) {
	z, ok := zoneParam(c, h.wm)
	if !ok {
		return
	}
	actors := z.Registry().All()
	c.JSON(http.StatusOK, gin.H{"actors": actors, "count": len(actors)})
}

type actorRequest struct {
	Kind        string                  `json:"kind" binding:"required,max=32"`
	Position    perception.Vec3         `json:"position"`
	Forward     perception.Vec3         `json:"forward"`
	Affiliation *perception.Affiliation `json:"affiliation"`
}

// actorFromRequest builds a registry record, classifying it once. A missing
// affiliation means neutral.
func actorFromRequest(id perception.ActorID, req actorRequest) world.Actor {
	aff := perception.AffiliationNeutral
	if req.Affiliation != nil {
		aff = *req.Affiliation
	}
	return world.Actor{
		ID:          id,
		Kind:        req.Kind,
		Position:    req.Position,
		Forward:     req.Forward,
		Affiliation: aff,
		Eligibility: world.Classify(req.Kind, aff),
	}
}

// UpsertActor handles PUT /api/zones/:zone/actors/:actor.
func (h *ZoneHandler) UpsertActor(c *gin.Context) {
	start := time.Now()
	z, ok := zoneParam(c, h.wm)
	if !ok {
		return
	}
	var req actorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	a := actorFromRequest(perception.ActorID(c.Param("actor")), req)
	z.UpsertActor(a)
	logAction(c, h.audit, "actor_upsert", z.ID, string(a.ID), req, nil, start)
	c.JSON(http.StatusOK, gin.H{"actor": a})
}

type moveRequest struct {
	Position perception.Vec3 `json:"position"`
	Forward  perception.Vec3 `json:"forward"`
}

// MoveActor handles PATCH /api/zones/:zone/actors/:actor. Moves are not
// journaled; they arrive at game-client rates.
func (h *ZoneHandler) MoveActor(c *gin.Context) {
	z, ok := zoneParam(c, h.wm)
	if !ok {
		return
	}
	var req moveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !z.Registry().Move(perception.ActorID(c.Param("actor")), req.Position, req.Forward) {
		c.JSON(http.StatusNotFound, gin.H{"error": "actor not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// RemoveActor handles DELETE /api/zones/:zone/actors/:actor.
func (h *ZoneHandler) RemoveActor(c *gin.Context) {
	start := time.Now()
	z, ok := zoneParam(c, h.wm)
	if !ok {
		return
	}
	id := c.Param("actor")
	if !z.RemoveActor(perception.ActorID(id)) {
		c.JSON(http.StatusNotFound, gin.H{"error": "actor not found"})
		return
	}
	logAction(c, h.audit, "actor_remove", z.ID, id, nil, nil, start)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// ---- Occluders ----

// ListOccluders handles GET /api/zones/:zone/occluders.
func (h *ZoneHandler) ListOccluders(c *gin.Context) {
	z, ok := zoneParam(c, h.wm)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"occluders": z.Registry().Occluders()})
}

// AddOccluder handles POST /api/zones/:zone/occluders.
func (h *ZoneHandler) AddOccluder(c *gin.Context) {
	start := time.Now()
	z, ok := zoneParam(c, h.wm)
	if !ok {
		return
	}
	var box world.Box
	if err := c.ShouldBindJSON(&box); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if box.Min.X > box.Max.X || box.Min.Y > box.Max.Y || box.Min.Z > box.Max.Z {
		c.JSON(http.StatusBadRequest, gin.H{"error": "min must not exceed max"})
		return
	}
	z.Registry().AddOccluder(box)
	logAction(c, h.audit, "occluder_add", z.ID, "", box, nil, start)
	c.JSON(http.StatusCreated, gin.H{"occluder": box})
}

// ---- Noise ----

type noiseRequest struct {
	Source   perception.ActorID `json:"source"`
	Location perception.Vec3    `json:"location"`
	Loudness float64            `json:"loudness"`
	Tag      string             `json:"tag" binding:"max=64"`
}

// EmitNoise handles POST /api/zones/:zone/noise. The noise is heard on the
// zone's next sensing pass.
func (h *ZoneHandler) EmitNoise(c *gin.Context) {
	start := time.Now()
	z, ok := zoneParam(c, h.wm)
	if !ok {
		return
	}
	var req noiseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Loudness < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "loudness must not be negative"})
		return
	}
	z.EmitNoise(perception.Noise{
		Source:   req.Source,
		Location: req.Location,
		Loudness: req.Loudness,
		Tag:      req.Tag,
	})
	logAction(c, h.audit, "noise_emit", z.ID, string(req.Source), req, nil, start)
	c.JSON(http.StatusAccepted, gin.H{"ok": true})
}
