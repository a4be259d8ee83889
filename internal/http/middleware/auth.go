package middleware

import (
	"net/http"
	"strings"

	"temani/internal/domain"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const actorKey = "actor"

// RequireAuth validates the bearer token and stores the actor in the
// gin context for handlers.
func RequireAuth(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader("Authorization")
		if !strings.HasPrefix(raw, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token tidak ditemukan"})
			return
		}
		tok, err := jwt.Parse(strings.TrimPrefix(raw, "Bearer "), func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return secret, nil
		})
		if err != nil || !tok.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token tidak valid"})
			return
		}
		claims, ok := tok.Claims.(jwt.MapClaims)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token tidak valid"})
			return
		}
		uid, _ := claims["user_id"].(float64)
		role, _ := claims["role"].(string)
		if uid <= 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token tidak valid"})
			return
		}
		c.Set(actorKey, domain.RequestContext{UserID: domain.ID(uid), Role: role})
		c.Next()
	}
}

// RequireRole gates a route group to a single role.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if Actor(c).Role != role {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "akses ditolak"})
			return
		}
		c.Next()
	}
}

// Actor returns the authenticated actor, zero value when unauthenticated.
func Actor(c *gin.Context) domain.RequestContext {
	if v, ok := c.Get(actorKey); ok {
		if rc, ok := v.(domain.RequestContext); ok {
			return rc
		}
	}
	return domain.RequestContext{}
}
