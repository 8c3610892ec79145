package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/progression/cache"
)

const LearnerIDKey = "learner_id"

// RevokedPrefix prefixes cache keys of revoked token ids. The auth service
// sets them on logout.
const RevokedPrefix = "token_revoked:"

// LearnerAuth validates the Bearer learner token. A token whose id is on the
// revocation list in c is rejected; a nil c skips that check. Without a
// secret the routes are disabled.
func LearnerAuth(secret string, c cache.Cache) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if secret == "" {
			ctx.AbortWithStatusJSON(http.StatusServiceUnavailable,
				gin.H{"error": "learner endpoints disabled: security.jwt_secret is not set"})
			return
		}
		header := ctx.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}
		claims, err := ParseToken(strings.TrimPrefix(header, "Bearer "), secret)
		if err != nil {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		if c != nil && claims.ID != "" {
			cacheCtx, cancel := context.WithTimeout(ctx.Request.Context(), 2*time.Second)
			revoked, err := c.Exists(cacheCtx, RevokedPrefix+claims.ID)
			cancel()
			if err != nil || revoked {
				ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token revoked"})
				return
			}
		}

		ctx.Set(LearnerIDKey, claims.LearnerID)
		ctx.Next()
	}
}

// GetLearnerID returns the authenticated learner, or "" when unauthenticated.
func GetLearnerID(c *gin.Context) string {
	return c.GetString(LearnerIDKey)
}

// KeyAuth requires header to carry key. With an empty key the routes are
// disabled (503) so they cannot ship unprotected by accident.
func KeyAuth(header, key string) gin.HandlerFunc {
	want := []byte(key)
	return func(c *gin.Context) {
		if len(want) == 0 {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable,
				gin.H{"error": "endpoint disabled: " + header + " key is not configured"})
			return
		}
		if subtle.ConstantTimeCompare([]byte(c.GetHeader(header)), want) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}
