package rest

import (
	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/npcsense/cache"
	"github.com/kasuganosora/npcsense/config"
	mw "github.com/kasuganosora/npcsense/middleware"
)

// Handlers groups every REST handler mounted under /api.
type Handlers struct {
	Auth    *AuthHandler
	Admin   *AdminHandler
	Zones   *ZoneHandler
	Agents  *AgentHandler
	Journal *JournalHandler
}

// Register mounts the operator API on api. Reads need any valid token,
// mutations need the operator scope, admin routes need the admin key.
func Register(api *gin.RouterGroup, h Handlers, adminKey string, sec config.SecurityConfig, c cache.Cache) {
	authG := api.Group("/auth")
	authG.POST("/token", AdminAuth(adminKey), h.Auth.Token)
	authG.POST("/revoke", mw.Auth(sec, c), h.Auth.Revoke)
	authG.POST("/refresh", mw.Auth(sec, c), h.Auth.Refresh)

	adminG := api.Group("/admin")
	adminG.Use(AdminAuth(adminKey))
	adminG.GET("/metrics", h.Admin.Metrics)
	adminG.GET("/scheduler", h.Admin.ListSchedulerTasks)
	adminG.GET("/audit", h.Admin.AuditEntries)

	read := api.Group("")
	read.Use(mw.Auth(sec, c))
	read.GET("/zones", h.Zones.List)
	read.GET("/zones/:zone", h.Zones.Get)
	read.GET("/zones/:zone/actors", h.Zones.ListActors)
	read.GET("/zones/:zone/occluders", h.Zones.ListOccluders)
	read.GET("/zones/:zone/agents", h.Agents.List)
	read.GET("/zones/:zone/agents/:actor/belief", h.Agents.Belief)
	read.GET("/zones/:zone/agents/:actor/transitions", h.Agents.Transitions)
	read.GET("/journal/transitions", h.Journal.Transitions)

	write := api.Group("")
	write.Use(mw.Auth(sec, c), mw.RequireOperator())
	write.POST("/zones", h.Zones.Create)
	write.DELETE("/zones/:zone", h.Zones.Delete)
	write.POST("/zones/:zone/step", h.Zones.Step)
	write.PUT("/zones/:zone/actors/:actor", h.Zones.UpsertActor)
	write.PATCH("/zones/:zone/actors/:actor", h.Zones.MoveActor)
	write.DELETE("/zones/:zone/actors/:actor", h.Zones.RemoveActor)
	write.POST("/zones/:zone/occluders", h.Zones.AddOccluder)
	write.POST("/zones/:zone/noise", h.Zones.EmitNoise)
	write.POST("/zones/:zone/agents", h.Agents.Possess)
	write.DELETE("/zones/:zone/agents/:actor", h.Agents.Unpossess)
	write.POST("/zones/:zone/agents/:actor/stimuli", h.Agents.Inject)
	write.DELETE("/zones/:zone/agents/:actor/transitions", h.Agents.ForgetTransitions)
}
