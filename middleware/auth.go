package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/npcsense/cache"
	"github.com/kasuganosora/npcsense/config"
)

const ClaimsKey = "claims"

// RevokedKey is the cache key marking a token id as revoked.
func RevokedKey(jti string) string { return "revoked:" + jti }

// BearerToken extracts the token from the Authorization header, falling back
// to the access_token query parameter (EventSource and browser websockets
// cannot set headers).
func BearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return c.Query("access_token")
}

// Authenticate parses the request token and checks it was not revoked.
func Authenticate(ctx context.Context, tokenStr string, sec config.SecurityConfig, c cache.Cache) (*Claims, error) {
	claims, err := ParseToken(tokenStr, sec.JWTSecret)
	if err != nil {
		return nil, err
	}
	cacheCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	revoked, err := c.Exists(cacheCtx, RevokedKey(claims.ID))
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Auth validates the Bearer JWT token and rejects revoked tokens.
func Auth(sec config.SecurityConfig, c cache.Cache) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		tokenStr := BearerToken(ctx)
		if tokenStr == "" {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}
		claims, err := Authenticate(ctx.Request.Context(), tokenStr, sec, c)
		if err != nil {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		ctx.Set(ClaimsKey, claims)
		ctx.Next()
	}
}

// RequireOperator rejects observer tokens. It must run after Auth.
func RequireOperator() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		claims := GetClaims(ctx)
		if claims == nil || !claims.CanWrite() {
			ctx.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "operator scope required"})
			return
		}
		ctx.Next()
	}
}

// GetClaims retrieves the authenticated claims from the Gin context.
func GetClaims(c *gin.Context) *Claims {
	if v, exists := c.Get(ClaimsKey); exists {
		if cl, ok := v.(*Claims); ok {
			return cl
		}
	}
	return nil
}

// GetOperator returns the authenticated operator name, or "".
func GetOperator(c *gin.Context) string {
	if cl := GetClaims(c); cl != nil {
		return cl.Operator
	}
	return ""
}
