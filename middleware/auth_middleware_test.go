package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/npcsense/cache"
	"github.com/kasuganosora/npcsense/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupTestCache(t *testing.T) cache.Cache {
	t.Helper()
	c, err := cache.NewCache(cache.CacheConfig{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

var testSec = config.SecurityConfig{JWTSecret: "secret", JWTTTLH: time.Hour}

func newProtectedRouter(sec config.SecurityConfig, c cache.Cache) *gin.Engine {
	r := gin.New()
	r.Use(Auth(sec, c))
	r.GET("/protected", func(ctx *gin.Context) {
		ctx.String(http.StatusOK, GetOperator(ctx))
	})
	r.POST("/write", RequireOperator(), func(ctx *gin.Context) {
		ctx.Status(http.StatusNoContent)
	})
	return r
}

func do(r http.Handler, method, target, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuth_MissingAuthHeader(t *testing.T) {
	r := newProtectedRouter(testSec, setupTestCache(t))
	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodGet, "/protected", "").Code)
}

func TestAuth_NoBearer(t *testing.T) {
	r := newProtectedRouter(testSec, setupTestCache(t))
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Token abc123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuth_InvalidToken(t *testing.T) {
	r := newProtectedRouter(testSec, setupTestCache(t))
	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodGet, "/protected", "notavalidtoken").Code)
}

func TestAuth_ValidToken(t *testing.T) {
	r := newProtectedRouter(testSec, setupTestCache(t))
	token, _, err := GenerateToken("ops", ScopeOperator, "secret", time.Hour)
	require.NoError(t, err)

	w := do(r, http.MethodGet, "/protected", token)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ops", w.Body.String())
}

func TestAuth_QueryToken(t *testing.T) {
	r := newProtectedRouter(testSec, setupTestCache(t))
	token, _, err := GenerateToken("ops", ScopeObserver, "secret", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/protected?access_token="+token, "").Code)
}

func TestAuth_RevokedToken(t *testing.T) {
	c := setupTestCache(t)
	r := newProtectedRouter(testSec, c)
	token, claims, err := GenerateToken("ops", ScopeOperator, "secret", time.Hour)
	require.NoError(t, err)
	require.NoError(t, c.Set(context.Background(), RevokedKey(claims.ID), "1", time.Hour))

	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodGet, "/protected", token).Code)
}

func TestRequireOperator(t *testing.T) {
	r := newProtectedRouter(testSec, setupTestCache(t))
	observer, _, _ := GenerateToken("viewer", ScopeObserver, "secret", time.Hour)
	operator, _, _ := GenerateToken("ops", ScopeOperator, "secret", time.Hour)

	assert.Equal(t, http.StatusForbidden, do(r, http.MethodPost, "/write", observer).Code)
	assert.Equal(t, http.StatusNoContent, do(r, http.MethodPost, "/write", operator).Code)
}

func TestGetClaims_Missing(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Nil(t, GetClaims(c))
	assert.Equal(t, "", GetOperator(c))
}

func TestRecovery_CatchesPanic(t *testing.T) {
	logger, _ := zap.NewDevelopment()

	r := gin.New()
	r.Use(TraceID())
	r.Use(Recovery(logger))
	r.GET("/panic", func(c *gin.Context) {
		panic("test panic")
	})

	w := do(r, http.MethodGet, "/panic", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), w.Header().Get(TraceIDHeader))
}

func TestRecovery_NoPanic_PassesThrough(t *testing.T) {
	logger, _ := zap.NewDevelopment()

	r := gin.New()
	r.Use(Recovery(logger))
	r.GET("/ok", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/ok", "").Code)
}

func TestLogger_RequestLogged(t *testing.T) {
	logger, _ := zap.NewDevelopment()

	r := gin.New()
	r.Use(TraceID())
	r.Use(Logger(logger))
	r.GET("/ping", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/ping", "").Code)
}

func TestLogger_ErrorResponse(t *testing.T) {
	logger, _ := zap.NewDevelopment()

	r := gin.New()
	r.Use(Logger(logger))
	r.GET("/fail", func(c *gin.Context) {
		_ = c.Error(assert.AnError)
		c.Status(http.StatusInternalServerError)
	})
	assert.Equal(t, http.StatusInternalServerError, do(r, http.MethodGet, "/fail", "").Code)
}
