package logger

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestNewHonoursLevel(t *testing.T) {
	l := New("prod", "warn")
	if l.Enabled(context.Background(), slog.LevelInfo) {
		t.Fatalf("info should be disabled at warn")
	}
	if !New("dev", "").Enabled(context.Background(), slog.LevelDebug) {
		t.Fatalf("dev should log debug")
	}
}

func TestMiddlewareSetsRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware(slog.Default()))

	var fromCtx *slog.Logger
	r.GET("/x", func(c *gin.Context) {
		fromCtx = From(c.Request.Context())
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(headerRequestID, "rid-1")
	r.ServeHTTP(w, req)

	if got := w.Header().Get(headerRequestID); got != "rid-1" {
		t.Fatalf("request id not echoed: %q", got)
	}
	if fromCtx == nil || fromCtx == slog.Default() {
		t.Fatalf("request logger not stored in context")
	}
}
