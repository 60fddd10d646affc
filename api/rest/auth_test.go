package rest_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToken_RequiresAdminKey(t *testing.T) {
	e := newTestEnv(t)
	w := e.do(http.MethodPost, "/api/auth/token", "", map[string]string{"operator": "alice"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = e.do(http.MethodPost, "/api/auth/token", "", map[string]string{"operator": "alice"},
		"X-Admin-Key", "wrong")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestToken_DefaultsToObserver(t *testing.T) {
	e := newTestEnv(t)
	w := e.do(http.MethodPost, "/api/auth/token", "", map[string]string{"operator": "alice"},
		"X-Admin-Key", testAdminKey)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	assert.NotEmpty(t, resp["token"])
	assert.Equal(t, "observer", resp["scope"])
	assert.NotEmpty(t, resp["expires_at"])
}

func TestToken_Validation(t *testing.T) {
	e := newTestEnv(t)
	w := e.do(http.MethodPost, "/api/auth/token", "", map[string]string{"operator": "a"},
		"X-Admin-Key", testAdminKey)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(http.MethodPost, "/api/auth/token", "", map[string]string{"operator": "alice", "scope": "root"},
		"X-Admin-Key", testAdminKey)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestObserver_CannotMutate(t *testing.T) {
	e := newTestEnv(t)
	tok := e.token(t, "observer")

	w := e.do(http.MethodGet, "/api/zones", tok, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = e.do(http.MethodPost, "/api/zones", tok, map[string]int{"id": 2})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestReads_RequireToken(t *testing.T) {
	e := newTestEnv(t)
	w := e.do(http.MethodGet, "/api/zones", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRevoke(t *testing.T) {
	e := newTestEnv(t)
	tok := e.token(t, "operator")

	w := e.do(http.MethodPost, "/api/auth/revoke", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)

	// The revoked token is rejected everywhere.
	w = e.do(http.MethodGet, "/api/zones", tok, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = e.do(http.MethodPost, "/api/auth/revoke", tok, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRefresh(t *testing.T) {
	e := newTestEnv(t)
	tok := e.token(t, "operator")

	w := e.do(http.MethodPost, "/api/auth/refresh", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	newTok, _ := decode(t, w)["token"].(string)
	require.NotEmpty(t, newTok)
	assert.NotEqual(t, tok, newTok)

	// Old token is revoked, the new one keeps the operator scope.
	w = e.do(http.MethodGet, "/api/zones", tok, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = e.do(http.MethodPost, "/api/zones", newTok, map[string]int{"id": 9})
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestRefresh_NoToken(t *testing.T) {
	e := newTestEnv(t)
	// Without a valid Bearer token the Auth middleware rejects with 401
	w := e.do(http.MethodPost, "/api/auth/refresh", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
