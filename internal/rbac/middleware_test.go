package rbac

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"bank-risk-audit/internal/auth"

	"github.com/gin-gonic/gin"
)

func withSession(s auth.Session) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request = c.Request.WithContext(auth.WithSession(c.Request.Context(), s))
		c.Next()
	}
}

func serve(r *gin.Engine) int {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	r.ServeHTTP(w, req)
	return w.Code
}

func TestRequireAnyRole_Allows(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.GET("/x", withSession(auth.Session{UserID: "u", Role: string(RoleAdmin)}), RequireAnyRole(RoleAdmin), func(c *gin.Context) {
		c.Status(200)
	})
	if code := serve(r); code != 200 {
		t.Fatalf("expected 200, got %d", code)
	}
}

func TestRequireAnyRole_NoAdminBypass(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.GET("/x", withSession(auth.Session{UserID: "u", Role: string(RoleAdmin)}), RequireAnyRole(RoleInvestCommittee), func(c *gin.Context) {
		c.Status(200)
	})
	if code := serve(r); code != 403 {
		t.Fatalf("expected 403, got %d", code)
	}
}

func TestRequireAnyRole_SessionRequired(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.GET("/x", RequireAnyRole(RoleUser), func(c *gin.Context) {
		c.Status(200)
	})
	if code := serve(r); code != 401 {
		t.Fatalf("expected 401, got %d", code)
	}
}

func TestRequireAuditor(t *testing.T) {
	gin.SetMode(gin.TestMode)

	for role, want := range map[Role]int{
		RoleUser:          403,
		RoleAuditorSenior: 200,
		Role("BOGUS"):     401,
	} {
		r := gin.New()
		r.GET("/x", withSession(auth.Session{UserID: "u", Role: string(role)}), RequireAuditor(), func(c *gin.Context) {
			c.Status(200)
		})
		if code := serve(r); code != want {
			t.Fatalf("role %s: expected %d, got %d", role, want, code)
		}
	}
}
