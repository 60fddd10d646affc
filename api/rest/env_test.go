package rest_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/npcsense/api/rest"
	"github.com/kasuganosora/npcsense/audit"
	"github.com/kasuganosora/npcsense/cache"
	"github.com/kasuganosora/npcsense/config"
	"github.com/kasuganosora/npcsense/game/blackboard"
	"github.com/kasuganosora/npcsense/game/world"
	"github.com/kasuganosora/npcsense/scheduler"
	"github.com/kasuganosora/npcsense/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const testAdminKey = "test-admin-key"

func init() {
	gin.SetMode(gin.TestMode)
}

func nopLogger() *zap.Logger { return zap.NewNop() }

type testEnv struct {
	router *gin.Engine
	db     *gorm.DB
	cache  cache.Cache
	pubsub cache.PubSub
	wm     *world.Manager
	audit  *audit.Service
	sched  *scheduler.Scheduler
	sec    config.SecurityConfig
}

// newTestEnv wires the API like main does. Zones never tick on their own;
// tests advance them through the step endpoint.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := testutil.SetupTestDB(t)
	c, ps := testutil.SetupTestCache(t)
	auditSvc := audit.New(db, audit.Config{BatchSize: 1, FlushInterval: 10 * time.Millisecond}, nopLogger())
	t.Cleanup(func() { auditSvc.Stop(context.Background()) })
	sched := scheduler.New(nopLogger())
	t.Cleanup(sched.Stop)

	store := blackboard.NewStore(c, time.Minute, nopLogger())
	feed := blackboard.NewFeed(ps, c, 20, nopLogger())

	zcfg := world.DefaultZoneConfig()
	zcfg.TickInterval = time.Hour
	zcfg.SenseEveryTicks = 1
	wm := world.NewManager(zcfg, world.Hooks{
		Publisher: store,
		Recorders: []world.Recorder{feed, auditSvc},
	}, nopLogger())
	t.Cleanup(wm.StopAll)

	sec := config.SecurityConfig{JWTSecret: "test-secret", JWTTTLH: time.Hour}
	h := rest.Handlers{
		Auth:    rest.NewAuthHandler(c, sec, auditSvc),
		Admin:   rest.NewAdminHandler(db, wm, auditSvc, sched, nopLogger()),
		Zones:   rest.NewZoneHandler(wm, auditSvc, nopLogger()),
		Agents:  rest.NewAgentHandler(wm, store, feed, auditSvc, nopLogger()),
		Journal: rest.NewJournalHandler(auditSvc, nopLogger()),
	}
	r := gin.New()
	rest.Register(r.Group("/api"), h, testAdminKey, sec, c)

	return &testEnv{router: r, db: db, cache: c, pubsub: ps, wm: wm, audit: auditSvc, sched: sched, sec: sec}
}

func (e *testEnv) do(method, path, token string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// token exchanges the admin key for a token with the given scope.
func (e *testEnv) token(t *testing.T, scope string) string {
	t.Helper()
	w := e.do(http.MethodPost, "/api/auth/token", "", map[string]string{
		"operator": "ops-" + scope,
		"scope":    scope,
	}, "X-Admin-Key", testAdminKey)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}
