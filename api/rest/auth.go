package rest

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/npcsense/audit"
	"github.com/kasuganosora/npcsense/cache"
	"github.com/kasuganosora/npcsense/config"
	mw "github.com/kasuganosora/npcsense/middleware"
)

// AuthHandler issues and revokes operator tokens.
type AuthHandler struct {
	cache cache.Cache
	sec   config.SecurityConfig
	audit *audit.Service
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(c cache.Cache, sec config.SecurityConfig, auditSvc *audit.Service) *AuthHandler {
	return &AuthHandler{cache: c, sec: sec, audit: auditSvc}
}

type tokenRequest struct {
	Operator string `json:"operator" binding:"required,min=2,max=32"`
	Scope    string `json:"scope" binding:"omitempty,oneof=operator observer"`
}

// Token handles POST /api/auth/token. The route sits behind AdminAuth: the
// admin key is exchanged for a short-lived scoped JWT.
func (h *AuthHandler) Token(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Scope == "" {
		req.Scope = mw.ScopeObserver
	}
	token, claims, err := mw.GenerateToken(req.Operator, req.Scope, h.sec.JWTSecret, h.sec.JWTTTLH)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token error"})
		return
	}
	h.audit.Log(audit.Entry{
		TraceID:  mw.GetTraceID(c),
		Operator: req.Operator,
		Action:   "token_issue",
		Request:  gin.H{"scope": req.Scope, "jti": claims.ID},
		IP:       c.ClientIP(),
	})
	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"scope":      claims.Scope,
		"expires_at": claims.ExpiresAt.Time,
	})
}

// Revoke handles POST /api/auth/revoke and invalidates the calling token.
func (h *AuthHandler) Revoke(c *gin.Context) {
	claims := mw.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	if err := h.revoke(c.Request.Context(), claims); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cache error"})
		return
	}
	h.audit.Log(audit.Entry{
		TraceID:  mw.GetTraceID(c),
		Operator: claims.Operator,
		Action:   "token_revoke",
		IP:       c.ClientIP(),
	})
	c.JSON(http.StatusOK, gin.H{"message": "revoked"})
}

// Refresh handles POST /api/auth/refresh. The old token is revoked and a new
// one with the same scope is returned.
func (h *AuthHandler) Refresh(c *gin.Context) {
	claims := mw.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	if err := h.revoke(c.Request.Context(), claims); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cache error"})
		return
	}
	token, next, err := mw.GenerateToken(claims.Operator, claims.Scope, h.sec.JWTSecret, h.sec.JWTTTLH)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "expires_at": next.ExpiresAt.Time})
}

// revoke marks the token id as revoked until the token would expire anyway.
func (h *AuthHandler) revoke(ctx context.Context, claims *mw.Claims) error {
	ttl := claims.Remaining()
	if ttl <= 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return h.cache.Set(ctx, mw.RevokedKey(claims.ID), claims.Operator, ttl)
}
