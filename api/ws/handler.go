package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime/debug"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/kasuganosora/npcsense/cache"
	"github.com/kasuganosora/npcsense/config"
	"github.com/kasuganosora/npcsense/game/blackboard"
	"github.com/kasuganosora/npcsense/game/world"
	mw "github.com/kasuganosora/npcsense/middleware"
	"go.uber.org/zap"
)

// Handler is the Gin handler for GET /ws, the game-client world feed.
type Handler struct {
	cache    cache.Cache
	pubsub   cache.PubSub
	sec      config.SecurityConfig
	sm       *SessionManager
	wm       *world.Manager
	router   *Router
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates a new WebSocket Handler.
// sec.AllowedOrigins controls which WebSocket origins are accepted.
// An empty slice permits all origins (development only).
func NewHandler(
	c cache.Cache,
	ps cache.PubSub,
	sec config.SecurityConfig,
	sm *SessionManager,
	wm *world.Manager,
	router *Router,
	logger *zap.Logger,
) *Handler {
	h := &Handler{
		cache:  c,
		pubsub: ps,
		sec:    sec,
		sm:     sm,
		wm:     wm,
		router: router,
		logger: logger,
	}
	allowed := sec.AllowedOrigins
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowed) == 0 {
				return true // dev mode: allow all
			}
			origin := r.Header.Get("Origin")
			for _, o := range allowed {
				if o == origin {
					return true
				}
			}
			return false
		},
	}
	return h
}

// ServeWS handles GET /ws?zone=N with an operator token in the Authorization
// header or the access_token query parameter.
func (h *Handler) ServeWS(c *gin.Context) {
	tokenStr := mw.BearerToken(c)
	if tokenStr == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}
	claims, err := mw.Authenticate(c.Request.Context(), tokenStr, h.sec, h.cache)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	if !claims.CanWrite() {
		c.JSON(http.StatusForbidden, gin.H{"error": "operator scope required"})
		return
	}

	zoneID, err := strconv.Atoi(c.Query("zone"))
	if err != nil || zoneID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid zone"})
		return
	}
	z := h.wm.Get(zoneID)
	if z == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "zone not found"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("ws upgrade failed", zap.Error(err))
		return
	}

	sess := NewSession(claims.Operator, zoneID, conn, h.logger)
	ctx, cancel := context.WithCancel(context.Background())
	msgCh, unsub, err := h.pubsub.Subscribe(ctx, blackboard.TransitionChannel)
	if err != nil {
		cancel()
		h.logger.Error("ws subscribe failed", zap.String("session", sess.ID), zap.Error(err))
		sess.Close()
		return
	}
	h.sm.Register(sess)
	go func() {
		defer cancel()
		defer unsub()
		h.forwardTransitions(sess, z, msgCh)
	}()

	// Blocks until the connection closes.
	h.readPump(sess)
}

// forwardTransitions pushes the zone's belief transitions to the session
// and closes it when the zone is destroyed.
func (h *Handler) forwardTransitions(s *Session, z *world.Zone, msgCh <-chan *cache.Message) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("panic in ws forwarder",
				zap.String("session", s.ID),
				zap.Any("recover", r),
				zap.String("stack", string(debug.Stack())))
		}
	}()

	for {
		select {
		case msg, ok := <-msgCh:
			if !ok {
				return
			}
			var ev blackboard.Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil || ev.Zone != s.ZoneID {
				continue
			}
			s.Send(&Packet{Type: "transition", Payload: json.RawMessage(msg.Payload)})
		case <-z.StopChan():
			payload, _ := json.Marshal(errorPayload{Type: "zone", Error: errZoneGone.Error()})
			s.Send(&Packet{Type: "error", Payload: payload})
			s.Close()
			return
		case <-s.Done:
			return
		}
	}
}

// readPump reads messages from the WebSocket connection and dispatches them.
func (h *Handler) readPump(s *Session) {
	defer h.handleDisconnect(s)

	s.SetReadDeadline()
	s.Conn.SetPongHandler(func(string) error {
		s.SetReadDeadline()
		return nil
	})

	for {
		_, raw, err := s.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
				websocket.CloseNoStatusReceived) {
				h.logger.Warn("ws unexpected close",
					zap.String("session", s.ID),
					zap.Error(err))
			}
			return
		}
		s.SetReadDeadline()
		h.router.Dispatch(s, raw)
	}
}

// handleDisconnect cleans up the session after the connection closes.
// Actors the client fed stay in the zone.
func (h *Handler) handleDisconnect(s *Session) {
	s.Close()
	h.sm.Unregister(s.ID)
	h.logger.Info("feed client disconnected",
		zap.String("session", s.ID),
		zap.String("operator", s.Operator),
		zap.Int("zone_id", s.ZoneID))
}
