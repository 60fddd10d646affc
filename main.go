package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	apirest "github.com/kasuganosora/npcsense/api/rest"
	"github.com/kasuganosora/npcsense/api/sse"
	apows "github.com/kasuganosora/npcsense/api/ws"
	"github.com/kasuganosora/npcsense/audit"
	"github.com/kasuganosora/npcsense/cache"
	"github.com/kasuganosora/npcsense/config"
	dbadapter "github.com/kasuganosora/npcsense/db"
	"github.com/kasuganosora/npcsense/game/blackboard"
	"github.com/kasuganosora/npcsense/game/world"
	mw "github.com/kasuganosora/npcsense/middleware"
	"github.com/kasuganosora/npcsense/model"
	"github.com/kasuganosora/npcsense/scheduler"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func main() {
	cfgPath := "config/config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// ---- Logger ----
	var logger *zap.Logger
	var logErr error
	if cfg.Server.Debug {
		logger, logErr = zap.NewDevelopment()
	} else {
		logger, logErr = zap.NewProduction()
	}
	if logErr != nil {
		log.Fatalf("logger: %v", logErr)
	}
	defer logger.Sync()

	// Warn loudly if admin endpoints will be disabled.
	if cfg.Server.AdminKey == "" {
		logger.Warn("server.admin_key is not set; admin endpoints and token issuing are disabled")
	}
	if cfg.Security.JWTSecret == "" {
		logger.Warn("security.jwt_secret is empty; operator tokens cannot be issued or verified")
	}

	// ---- Database ----
	db, err := dbadapter.Open(cfg.Database)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer dbadapter.Close(db)
	if err := model.AutoMigrate(db); err != nil {
		log.Fatalf("db migrate: %v", err)
	}
	logger.Info("DB initialized", zap.String("mode", cfg.Database.Mode))

	// ---- Cache / PubSub ----
	cacheConfig := cache.CacheConfig{
		RedisAddr:       cfg.Cache.RedisAddr,
		RedisPassword:   cfg.Cache.RedisPassword,
		RedisDB:         cfg.Cache.RedisDB,
		LocalGCInterval: cfg.Cache.LocalGCInterval,
		LocalPubSubBuf:  cfg.Cache.LocalPubSubBuf,
	}
	c, err := cache.NewCache(cacheConfig)
	if err != nil {
		log.Fatalf("cache: %v", err)
	}
	pubsub, err := cache.NewPubSub(cacheConfig)
	if err != nil {
		log.Fatalf("pubsub: %v", err)
	}
	defer pubsub.Close()
	defer c.Close()
	logger.Info("Cache initialized", zap.Bool("redis", cfg.Cache.RedisAddr != ""))

	// ---- Journal ----
	auditSvc := audit.New(db, audit.Config{
		BatchSize:     cfg.Journal.BatchSize,
		FlushInterval: cfg.Journal.FlushInterval,
	}, logger)

	// ---- Perception ----
	store := blackboard.NewStore(c, cfg.Perception.BlackboardTTL, logger)
	feed := blackboard.NewFeed(pubsub, c, cfg.Perception.HistoryKeep, logger)

	wm := world.NewManager(world.ZoneConfig{
		TickInterval:    cfg.Perception.TickInterval(),
		SenseEveryTicks: cfg.Perception.SenseEveryTicks,
		QueueSize:       cfg.Perception.QueueSize,
		Sight:           cfg.Perception.Sight,
		Hearing:         cfg.Perception.Hearing,
		Driver:          cfg.Driver,
	}, world.Hooks{
		Publisher: store,
		Recorders: []world.Recorder{feed, auditSvc},
	}, logger)
	for _, id := range cfg.Server.Zones {
		wm.GetOrCreate(id)
	}
	logger.Info("zones started", zap.Ints("zones", wm.ZoneIDs()))

	// ---- WS feed ----
	sm := apows.NewSessionManager(logger)
	wsRouter := apows.NewRouter(logger)
	apows.NewFeedHandlers(wm, logger).RegisterHandlers(wsRouter)

	// ---- Periodic Scheduler Tasks ----
	sched := scheduler.New(logger)
	if cfg.Journal.Retention > 0 {
		sched.AddTicker("journal_prune", time.Hour, func(ctx context.Context) error {
			n, err := auditSvc.Prune(ctx, time.Now().Add(-cfg.Journal.Retention))
			if err != nil {
				return err
			}
			if n > 0 {
				logger.Info("journal pruned", zap.Int64("rows", n))
			}
			return nil
		})
	}
	sched.AddTicker("zone_stats", time.Minute, func(context.Context) error {
		possessed := 0
		for _, id := range wm.ZoneIDs() {
			if z := wm.Get(id); z != nil {
				possessed += z.AgentCount()
			}
		}
		st := auditSvc.Stats()
		logger.Info("zone stats",
			zap.Int("zones", wm.ActiveZoneCount()),
			zap.Int("agents", possessed),
			zap.Int("feed_sessions", sm.Count()),
			zap.Uint64("journal_written", st.TransitionsWritten),
			zap.Uint64("journal_dropped", st.TransitionsDropped))
		return nil
	})

	// ---- Gin HTTP Server ----
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(mw.TraceID(), mw.Logger(logger), mw.Recovery(logger))
	r.Use(mw.RateLimit(rate.Limit(cfg.Security.RateLimitRPS), cfg.Security.RateLimitBurst))

	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok", "zones": wm.ActiveZoneCount()})
	})

	// ---- REST API routes ----
	handlers := apirest.Handlers{
		Auth:    apirest.NewAuthHandler(c, cfg.Security, auditSvc),
		Admin:   apirest.NewAdminHandler(db, wm, auditSvc, sched, logger),
		Zones:   apirest.NewZoneHandler(wm, auditSvc, logger),
		Agents:  apirest.NewAgentHandler(wm, store, feed, auditSvc, logger),
		Journal: apirest.NewJournalHandler(auditSvc, logger),
	}
	api := r.Group("/api")
	api.Use(mw.IPWhitelist(cfg.Security.AdminIPs))
	apirest.Register(api, handlers, cfg.Server.AdminKey, cfg.Security, c)

	// ---- WebSocket ----
	wsH := apows.NewHandler(c, pubsub, cfg.Security, sm, wm, wsRouter, logger)
	r.GET("/ws", wsH.ServeWS)

	// ---- SSE ----
	sseH := sse.NewHandler(pubsub, c, cfg.Security, logger)
	r.GET("/sse", sseH.ServeSSE)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	// Request contexts derive from baseCtx so long-lived SSE streams end on
	// shutdown.
	baseCtx, stopStreams := context.WithCancel(context.Background())
	srv := &http.Server{
		Addr:        addr,
		Handler:     r,
		BaseContext: func(net.Listener) context.Context { return baseCtx },
	}
	go func() {
		logger.Info("Server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := sseH.Announce(ctx, `{"msg":"server shutting down"}`); err != nil {
		logger.Warn("shutdown announce failed", zap.Error(err))
	}
	sm.CloseAll()
	stopStreams()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	sched.Stop()
	wm.StopAll()
	auditSvc.Stop(ctx)
}
