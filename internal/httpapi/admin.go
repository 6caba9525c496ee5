package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"bank-risk-audit/internal/audit"
	"bank-risk-audit/internal/rbac"
	"bank-risk-audit/internal/reporting"
	"bank-risk-audit/internal/review"
	"bank-risk-audit/pkg/logger"

	"github.com/gin-gonic/gin"
)

// --- Stats ---

func (h Handlers) Stats(c *gin.Context) {
	from, ok := queryTime(c, "from")
	if !ok {
		return
	}
	to, ok := queryTime(c, "to")
	if !ok {
		return
	}
	out, err := h.Reporting.Stats(c.Request.Context(), reporting.StatsRequest{
		Range:      reporting.TimeRange{From: from, To: to},
		CustomerID: c.Query("customer_id"),
	})
	if err != nil {
		if errors.Is(err, reporting.ErrInvalidRequest) {
			badRequest(c, "to must be after from")
			return
		}
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// --- Auditors ---

func (h Handlers) ListAuditors(c *gin.Context) {
	f := review.AuditorFilter{
		Role:       rbac.Role(c.Query("role")),
		ActiveOnly: c.Query("active") == "true",
	}
	if f.Role != "" && !rbac.IsAuditorRole(f.Role) {
		badRequest(c, "role must be an auditor role")
		return
	}
	items, err := h.Review.ListAuditors(c.Request.Context(), f)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"auditors": items})
}

func (h Handlers) GetAuditor(c *gin.Context) {
	a, err := h.Review.GetAuditor(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (h Handlers) CreateAuditor(c *gin.Context) {
	var req review.AuditorInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	a, err := h.Review.CreateAuditor(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	h.logAuditorChange(c, "created", a.ID, req)
	c.JSON(http.StatusCreated, a)
}

func (h Handlers) UpdateAuditor(c *gin.Context) {
	var req review.AuditorPatch
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	a, err := h.Review.UpdateAuditor(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		writeError(c, err)
		return
	}
	h.logAuditorChange(c, "updated", a.ID, req)
	c.JSON(http.StatusOK, a)
}

func (h Handlers) DeactivateAuditor(c *gin.Context) {
	a, err := h.Review.DeactivateAuditor(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	h.logAuditorChange(c, "deactivated", a.ID, nil)
	c.JSON(http.StatusOK, a)
}

// logAuditorChange is best-effort: the change is already committed.
func (h Handlers) logAuditorChange(c *gin.Context, verb, auditorID string, payload any) {
	if h.Audit == nil {
		return
	}
	s, _, err := rbac.SessionRole(c.Request.Context())
	if err != nil {
		return
	}
	meta := ""
	if payload != nil {
		if b, err := json.Marshal(payload); err == nil {
			meta = string(b)
		}
	}
	if err := h.Audit.LogAuditorChange(c.Request.Context(), s.UserID, s.Role, verb, auditorID, meta); err != nil {
		logger.FromGin(c).Warn("audit append failed", "err", err)
	}
}

// --- Audit log ---

func (h Handlers) AuditEvents(c *gin.Context) {
	limit, ok := queryInt(c, "limit")
	if !ok {
		return
	}
	events, err := h.Audit.List(c.Request.Context(), audit.Filter{
		Type:    audit.EventType(c.Query("type")),
		ActorID: c.Query("actor_id"),
		Limit:   limit,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}
