package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/npcsense/cache"
	"github.com/kasuganosora/npcsense/config"
	"github.com/kasuganosora/npcsense/game/blackboard"
	mw "github.com/kasuganosora/npcsense/middleware"
	"go.uber.org/zap"
)

const (
	announceChannel   = "announce"
	keepaliveInterval = 30 * time.Second
)

// Handler handles the SSE endpoint.
type Handler struct {
	pubsub cache.PubSub
	sec    config.SecurityConfig
	c      cache.Cache
	logger *zap.Logger
}

// NewHandler creates a new SSE Handler.
func NewHandler(pubsub cache.PubSub, c cache.Cache, sec config.SecurityConfig, logger *zap.Logger) *Handler {
	return &Handler{pubsub: pubsub, c: c, sec: sec, logger: logger}
}

// filter selects which transitions a stream receives. Zero values match all.
type filter struct {
	zone  int
	agent string
}

func (f filter) match(ev blackboard.Event) bool {
	if f.zone != 0 && ev.Zone != f.zone {
		return false
	}
	return f.agent == "" || string(ev.Agent) == f.agent
}

// ServeSSE handles GET /sse?access_token=<jwt>[&zone=N][&agent=ID].
// It streams belief transitions and server announcements to observers.
func (h *Handler) ServeSSE(c *gin.Context) {
	tokenStr := mw.BearerToken(c)
	if tokenStr == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}
	claims, err := mw.Authenticate(c.Request.Context(), tokenStr, h.sec, h.c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	var f filter
	if s := c.Query("zone"); s != "" {
		if f.zone, err = strconv.Atoi(s); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid zone"})
			return
		}
	}
	f.agent = c.Query("agent")

	// Set SSE headers.
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	subCtx, subCancel := context.WithCancel(c.Request.Context())
	defer subCancel()

	msgCh, unsub, err := h.pubsub.Subscribe(subCtx, blackboard.TransitionChannel, announceChannel)
	if err != nil {
		h.logger.Error("sse subscribe failed", zap.Error(err))
		c.Status(http.StatusInternalServerError)
		return
	}
	defer unsub()

	h.logger.Debug("sse stream opened",
		zap.String("operator", claims.Operator),
		zap.Int("zone", f.zone),
		zap.String("agent", f.agent))

	// Send initial connected event.
	fmt.Fprintf(c.Writer, "event: connected\ndata: {}\n\n")
	c.Writer.Flush()

	// The stream ends when the token would have expired.
	expiry := time.NewTimer(claims.Remaining())
	defer expiry.Stop()
	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-msgCh:
			if !ok {
				return
			}
			if msg.Channel == announceChannel {
				fmt.Fprintf(c.Writer, "event: announce\ndata: %s\n\n", msg.Payload)
				c.Writer.Flush()
				continue
			}
			var ev blackboard.Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				h.logger.Debug("sse dropping malformed event", zap.Error(err))
				continue
			}
			if !f.match(ev) {
				continue
			}
			fmt.Fprintf(c.Writer, "event: transition\ndata: %s\n\n", msg.Payload)
			c.Writer.Flush()

		case <-ticker.C:
			// Keepalive comment to prevent proxy timeouts.
			fmt.Fprintf(c.Writer, ": keepalive\n\n")
			c.Writer.Flush()

		case <-expiry.C:
			fmt.Fprintf(c.Writer, "event: expired\ndata: {}\n\n")
			c.Writer.Flush()
			return

		case <-c.Request.Context().Done():
			return
		}
	}
}

// Announce publishes an announcement message to all SSE subscribers.
func (h *Handler) Announce(ctx context.Context, message string) error {
	return h.pubsub.Publish(ctx, announceChannel, message)
}
