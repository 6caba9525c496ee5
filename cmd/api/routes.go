package main

import (
	"log/slog"
	"net/http"

	"bank-risk-audit/internal/audit"
	"bank-risk-audit/internal/auth"
	"bank-risk-audit/internal/httpapi"
	"bank-risk-audit/internal/rbac"
	"bank-risk-audit/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type routeDeps struct {
	log      *slog.Logger
	auth     *auth.Manager
	policy   *rbac.Policy
	registry *prometheus.Registry
	handlers httpapi.Handlers
}

// newRouter wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers delegate to internal modules.
func newRouter(d routeDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), logger.Middleware(d.log), audit.Middleware())

	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if d.registry != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.registry, promhttp.HandlerOpts{})))
	}

	h := d.handlers
	allow := func(a rbac.Action) gin.HandlerFunc { return rbac.RequireAction(d.policy, a) }

	v1 := r.Group("/v1")
	v1.POST("/auth/token", h.IssueToken)
	v1.POST("/auth/refresh", h.RefreshToken)

	v1.Use(auth.RequireAccessToken(d.auth))
	{
		v1.GET("/me", h.Me)
		v1.GET("/workflow/stages", h.Stages)

		assessments := v1.Group("/assessments")
		{
			assessments.POST("", allow(rbac.ActionAssessmentSubmit), h.SubmitAssessment)
			assessments.GET("", allow(rbac.ActionAssessmentRead), h.ListAssessments)
			assessments.GET("/:id", allow(rbac.ActionAssessmentRead), h.GetAssessment)
			assessments.POST("/:id/advance", allow(rbac.ActionWorkflowAdvance), h.AdvanceWorkflow)
			assessments.POST("/:id/resubmit", allow(rbac.ActionAssessmentResubmit), h.Resubmit)
		}

		v1.GET("/notifications", allow(rbac.ActionAssessmentRead), h.ListNotifications)

		tasks := v1.Group("/tasks")
		{
			tasks.GET("", allow(rbac.ActionTaskRead), h.ListTasks)
			tasks.GET("/overdue", allow(rbac.ActionTaskRead), h.OverdueTasks)
			tasks.GET("/:id", allow(rbac.ActionTaskRead), h.GetTask)
			tasks.POST("/:id/claim", allow(rbac.ActionTaskClaim), h.ClaimTask)
			tasks.POST("/:id/complete", allow(rbac.ActionTaskComplete), h.CompleteTask)

			// personal views only make sense for auditor identities
			own := tasks.Group("", rbac.RequireAuditor())
			own.GET("/mine", allow(rbac.ActionTaskRead), h.MyTasks)
			own.GET("/queue", allow(rbac.ActionTaskRead), h.Queue)
		}

		v1.GET("/stats", allow(rbac.ActionStatsRead), h.Stats)

		auditors := v1.Group("/auditors")
		{
			auditors.GET("", allow(rbac.ActionAuditorRead), h.ListAuditors)
			auditors.GET("/:id", allow(rbac.ActionAuditorRead), h.GetAuditor)
			auditors.POST("", allow(rbac.ActionAuditorManage), h.CreateAuditor)
			auditors.PUT("/:id", allow(rbac.ActionAuditorManage), h.UpdateAuditor)
			auditors.POST("/:id/deactivate", allow(rbac.ActionAuditorManage), h.DeactivateAuditor)
		}

		v1.GET("/audit/events", rbac.RequireAnyRole(rbac.RoleAdmin), allow(rbac.ActionAuditorManage), h.AuditEvents)
	}

	return r
}
