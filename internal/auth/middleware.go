package auth

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const authorizationHeader = "Authorization"
const bearerPrefix = "Bearer "

// RequireAccessToken verifies an access token and attaches the caller's
// Session to the request context. Role checks belong to internal/rbac.
func RequireAccessToken(m *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(authorizationHeader))
		if raw == "" || !strings.HasPrefix(raw, bearerPrefix) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		tok := strings.TrimPrefix(raw, bearerPrefix)

		claims, err := m.Verify(tok, TokenTypeAccess, time.Now())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		s := claims.Session()
		c.Request = c.Request.WithContext(WithSession(c.Request.Context(), s))
		c.Set("session", s)
		c.Set("user_id", s.UserID)

		c.Next()
	}
}

// FromGin returns the session attached by RequireAccessToken.
func FromGin(c *gin.Context) (Session, error) {
	return SessionFrom(c.Request.Context())
}
