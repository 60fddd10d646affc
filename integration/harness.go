package integration

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	apirest "github.com/kasuganosora/npcsense/api/rest"
	"github.com/kasuganosora/npcsense/api/sse"
	apows "github.com/kasuganosora/npcsense/api/ws"
	"github.com/kasuganosora/npcsense/audit"
	"github.com/kasuganosora/npcsense/cache"
	"github.com/kasuganosora/npcsense/config"
	"github.com/kasuganosora/npcsense/game/blackboard"
	"github.com/kasuganosora/npcsense/game/world"
	mw "github.com/kasuganosora/npcsense/middleware"
	"github.com/kasuganosora/npcsense/scheduler"
	"github.com/kasuganosora/npcsense/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

// AdminKey is the key the test server accepts on X-Admin-Key.
const AdminKey = "integration-admin-key"

// TestServer wraps a real HTTP server with every subsystem wired together.
type TestServer struct {
	DB     *gorm.DB
	Cache  cache.Cache
	PubSub cache.PubSub
	SM     *apows.SessionManager
	WM     *world.Manager
	Audit  *audit.Service
	SSE    *sse.Handler
	Server *httptest.Server
	URL    string // http://127.0.0.1:<port>
	WSURL  string // ws://127.0.0.1:<port>/ws
	Sec    config.SecurityConfig
}

// NewTestServer creates a fully wired server for integration testing.
// It mirrors the dependency wiring in main.go, except that zones only
// advance through the step endpoint.
func NewTestServer(t *testing.T) *TestServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	// ---- Infrastructure ----
	db := testutil.SetupTestDB(t)
	c, pubsub := testutil.SetupTestCache(t)
	logger := zap.NewNop()

	sec := config.SecurityConfig{
		JWTSecret:      "integration-test-secret",
		JWTTTLH:        time.Hour,
		RateLimitRPS:   1000,
		RateLimitBurst: 2000,
		AllowedOrigins: []string{}, // allow all origins
	}

	// ---- Perception ----
	auditSvc := audit.New(db, audit.Config{BatchSize: 1, FlushInterval: 10 * time.Millisecond}, logger)
	store := blackboard.NewStore(c, time.Minute, logger)
	feed := blackboard.NewFeed(pubsub, c, 20, logger)

	zcfg := world.DefaultZoneConfig()
	zcfg.TickInterval = time.Hour
	zcfg.SenseEveryTicks = 1
	wm := world.NewManager(zcfg, world.Hooks{
		Publisher: store,
		Recorders: []world.Recorder{feed, auditSvc},
	}, logger)

	sched := scheduler.New(logger)

	// ---- WS Router ----
	sm := apows.NewSessionManager(logger)
	wsRouter := apows.NewRouter(logger)
	apows.NewFeedHandlers(wm, logger).RegisterHandlers(wsRouter)

	// ---- Gin HTTP Server ----
	r := gin.New()
	r.Use(mw.TraceID(), mw.Recovery(logger))
	r.Use(mw.RateLimit(rate.Limit(sec.RateLimitRPS), sec.RateLimitBurst))

	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// ---- REST API routes (mirrors main.go) ----
	apirest.Register(r.Group("/api"), apirest.Handlers{
		Auth:    apirest.NewAuthHandler(c, sec, auditSvc),
		Admin:   apirest.NewAdminHandler(db, wm, auditSvc, sched, logger),
		Zones:   apirest.NewZoneHandler(wm, auditSvc, logger),
		Agents:  apirest.NewAgentHandler(wm, store, feed, auditSvc, logger),
		Journal: apirest.NewJournalHandler(auditSvc, logger),
	}, AdminKey, sec, c)

	// ---- WebSocket / SSE ----
	wsH := apows.NewHandler(c, pubsub, sec, sm, wm, wsRouter, logger)
	r.GET("/ws", wsH.ServeWS)
	sseH := sse.NewHandler(pubsub, c, sec, logger)
	r.GET("/sse", sseH.ServeSSE)

	// ---- Start server ----
	server := httptest.NewServer(r)
	url := server.URL
	ts := &TestServer{
		DB:     db,
		Cache:  c,
		PubSub: pubsub,
		SM:     sm,
		WM:     wm,
		Audit:  auditSvc,
		SSE:    sseH,
		Server: server,
		URL:    url,
		WSURL:  "ws" + url[len("http"):] + "/ws",
		Sec:    sec,
	}
	t.Cleanup(func() {
		sm.CloseAll()
		server.Close()
		sched.Stop()
		wm.StopAll()
		auditSvc.Stop(context.Background())
	})
	return ts
}

// --- HTTP helpers ---

// Do sends a request with an optional JSON body, Bearer token and extra
// header pairs.
func (ts *TestServer) Do(t *testing.T, method, path string, body interface{}, token string, headers ...string) *http.Response {
	t.Helper()
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		bodyReader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, ts.URL+path, bodyReader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

// PostJSON sends a POST request with JSON body and optional Bearer token.
func (ts *TestServer) PostJSON(t *testing.T, path string, body interface{}, token string) *http.Response {
	t.Helper()
	return ts.Do(t, http.MethodPost, path, body, token)
}

// Get sends a GET request with optional Bearer token.
func (ts *TestServer) Get(t *testing.T, path string, token string) *http.Response {
	t.Helper()
	return ts.Do(t, http.MethodGet, path, nil, token)
}

// ReadJSON reads and decodes a JSON response body into the given target.
func ReadJSON(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, target), "body: %s", string(data))
}

// --- Auth helpers ---

// IssueToken exchanges the admin key for a JWT with the given scope.
func (ts *TestServer) IssueToken(t *testing.T, operator, scope string) string {
	t.Helper()
	resp := ts.Do(t, http.MethodPost, "/api/auth/token",
		map[string]string{"operator": operator, "scope": scope}, "", "X-Admin-Key", AdminKey)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var result map[string]interface{}
	ReadJSON(t, resp, &result)
	return result["token"].(string)
}

// --- WebSocket client ---

// WSClient wraps a gorilla/websocket connection for integration testing.
// A background readLoop keeps reads off the caller's goroutine so a timed
// out wait does not poison the connection.
type WSClient struct {
	Conn   *websocket.Conn
	t      *testing.T
	seq    uint64
	readCh chan readResult
}

type readResult struct {
	data []byte
	err  error
}

// ConnectWS dials the feed endpoint for zoneID with the given JWT.
func (ts *TestServer) ConnectWS(t *testing.T, token string, zoneID int) *WSClient {
	t.Helper()
	url := ts.WSURL + "?zone=" + strconv.Itoa(zoneID) + "&access_token=" + token
	dialer := websocket.Dialer{}
	conn, resp, err := dialer.Dial(url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	require.NoError(t, err, "WS dial failed")
	wc := &WSClient{Conn: conn, t: t, readCh: make(chan readResult, 256)}
	go wc.readLoop()
	t.Cleanup(wc.Close)
	return wc
}

func (wc *WSClient) readLoop() {
	for {
		_, data, err := wc.Conn.ReadMessage()
		wc.readCh <- readResult{data, err}
		if err != nil {
			return
		}
	}
}

// Send writes a packet with the next sequence number.
func (wc *WSClient) Send(msgType string, payload interface{}) {
	wc.t.Helper()
	seq := atomic.AddUint64(&wc.seq, 1)
	payloadJSON, err := json.Marshal(payload)
	require.NoError(wc.t, err)
	data, err := json.Marshal(apows.Packet{Seq: seq, Type: msgType, Payload: payloadJSON})
	require.NoError(wc.t, err)
	require.NoError(wc.t, wc.Conn.WriteMessage(websocket.TextMessage, data))
}

// RecvType reads packets until one with the given type arrives.
func (wc *WSClient) RecvType(msgType string, timeout time.Duration) apows.Packet {
	wc.t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case res := <-wc.readCh:
			require.NoError(wc.t, res.err, "WS recv failed while waiting for %q", msgType)
			var pkt apows.Packet
			require.NoError(wc.t, json.Unmarshal(res.data, &pkt))
			if pkt.Type == msgType {
				return pkt
			}
		case <-deadline:
			wc.t.Fatalf("timed out waiting for message type %q", msgType)
			return apows.Packet{}
		}
	}
}

// Close closes the WebSocket connection.
func (wc *WSClient) Close() {
	_ = wc.Conn.Close()
}

// --- SSE client ---

// SSEEvent is one parsed server-sent event.
type SSEEvent struct {
	Name string
	Data string
}

// SSEClient reads a server-sent event stream.
type SSEClient struct {
	t      *testing.T
	events chan SSEEvent
}

// ConnectSSE opens the event stream with the given query (without '?').
// It returns once the connected event has arrived.
func (ts *TestServer) ConnectSSE(t *testing.T, query string) *SSEClient {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/sse?"+query, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	sc := &SSEClient{t: t, events: make(chan SSEEvent, 64)}
	go func() {
		defer resp.Body.Close()
		defer close(sc.events)
		r := bufio.NewReader(resp.Body)
		var ev SSEEvent
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			line = strings.TrimRight(line, "\n")
			switch {
			case strings.HasPrefix(line, "event: "):
				ev.Name = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				ev.Data = strings.TrimPrefix(line, "data: ")
			case line == "" && ev.Name != "":
				sc.events <- ev
				ev = SSEEvent{}
			}
		}
	}()
	require.Equal(t, "connected", sc.Next(5*time.Second).Name)
	return sc
}

// Next returns the next event or fails the test on timeout.
func (sc *SSEClient) Next(timeout time.Duration) SSEEvent {
	sc.t.Helper()
	select {
	case ev, ok := <-sc.events:
		require.True(sc.t, ok, "sse stream closed")
		return ev
	case <-time.After(timeout):
		sc.t.Fatal("timed out waiting for sse event")
		return SSEEvent{}
	}
}
