package rbac

import (
	"context"
	"errors"
	"net/http"

	"bank-risk-audit/internal/auth"

	"github.com/gin-gonic/gin"
)

var ErrUnknownRole = errors.New("rbac: unknown role in session")

// SessionRole resolves the caller's role from the request session.
func SessionRole(ctx context.Context) (auth.Session, Role, error) {
	s, err := auth.SessionFrom(ctx)
	if err != nil {
		return auth.Session{}, "", err
	}
	r := Role(s.Role)
	if !r.Valid() {
		return s, "", ErrUnknownRole
	}
	return s, r, nil
}

// RequireAnyRole allows access if the caller has any of the provided roles.
// There is no bypass role: ADMIN must be listed explicitly.
func RequireAnyRole(allowed ...Role) gin.HandlerFunc {
	allowedSet := make(map[Role]struct{}, len(allowed))
	for _, r := range allowed {
		allowedSet[r] = struct{}{}
	}

	return func(c *gin.Context) {
		_, role, err := SessionRole(c.Request.Context())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "role required"})
			return
		}
		if _, ok := allowedSet[role]; !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden", "code": "INSUFFICIENT_ROLE"})
			return
		}
		c.Next()
	}
}

// RequireAuditor admits any auditor role and nothing else.
func RequireAuditor() gin.HandlerFunc {
	return func(c *gin.Context) {
		_, role, err := SessionRole(c.Request.Context())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "role required"})
			return
		}
		if !IsAuditorRole(role) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "auditor role required", "code": "INSUFFICIENT_ROLE"})
			return
		}
		c.Next()
	}
}
