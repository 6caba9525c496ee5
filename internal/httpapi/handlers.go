package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"bank-risk-audit/internal/audit"
	"bank-risk-audit/internal/auth"
	"bank-risk-audit/internal/notify"
	"bank-risk-audit/internal/rbac"
	"bank-risk-audit/internal/reporting"
	"bank-risk-audit/internal/review"
	"bank-risk-audit/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Auth          *auth.Manager
	Review        *review.Service
	Reporting     *reporting.Service
	Audit         *audit.Service
	Notifications *notify.History

	// IssueTokens enables POST /v1/auth/token. Outside development tokens
	// come from the identity provider.
	IssueTokens bool
}

func statusFor(code review.Code) int {
	switch code {
	case review.CodeTaskAlreadyClaimed, review.CodeTaskNotInProgress, review.CodeAssessmentNotActive,
		review.CodeAuditorInactive, review.CodeRecheckLimitReached, review.CodeClaimLimitReached:
		return http.StatusConflict
	case review.CodeNotTaskOwner, review.CodeInsufficientRole, review.CodeWrongStage:
		return http.StatusForbidden
	case review.CodeInvalidDecision, review.CodeInvalidArgument:
		return http.StatusBadRequest
	case review.CodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps service errors to {"error", "code"}. Unexpected and
// integrity errors are logged and answered with a generic message.
func writeError(c *gin.Context, err error) {
	var e *review.Error
	if errors.As(err, &e) && !e.Fatal() {
		msg := e.Message
		if msg == "" {
			msg = string(e.Code)
		}
		c.AbortWithStatusJSON(statusFor(e.Code), gin.H{"error": msg, "code": e.Code})
		return
	}

	code := "INTERNAL"
	if e != nil {
		code = string(e.Code)
	}
	_ = c.Error(err)
	logger.FromGin(c).Error("request failed", "code", code, "err", err)
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error", "code": code})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg, "code": review.CodeInvalidArgument})
}

func session(c *gin.Context) (auth.Session, rbac.Role, bool) {
	s, role, err := rbac.SessionRole(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "session required"})
		return auth.Session{}, "", false
	}
	return s, role, true
}

func queryInt(c *gin.Context, key string) (int, bool) {
	v := c.Query(key)
	if v == "" {
		return 0, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		badRequest(c, key+" must be a non-negative integer")
		return 0, false
	}
	return n, true
}

func queryTime(c *gin.Context, key string) (time.Time, bool) {
	v := c.Query(key)
	if v == "" {
		return time.Time{}, true
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		badRequest(c, key+" must be RFC3339")
		return time.Time{}, false
	}
	return t, true
}

// --- Auth ---

type tokenRequest struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Role   string `json:"role"`
}

// IssueToken mints a token pair for development. Auditor tokens are bound
// to an active auditor record, whose name and role win over the request.
func (h Handlers) IssueToken(c *gin.Context) {
	if !h.IssueTokens || h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "token issuance disabled"})
		return
	}
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	role, err := rbac.ParseRole(req.Role)
	if err != nil || req.UserID == "" {
		badRequest(c, "user_id and a known role are required")
		return
	}

	h.issuePair(c, auth.Session{UserID: req.UserID, Name: req.Name, Role: string(role)})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// RefreshToken exchanges a refresh token for a new pair. Auditor principals
// are re-read from storage, so a deactivated auditor cannot refresh and a
// changed role takes effect.
func (h Handlers) RefreshToken(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "token refresh disabled"})
		return
	}
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RefreshToken == "" {
		badRequest(c, "refresh_token is required")
		return
	}
	claims, err := h.Auth.Verify(req.RefreshToken, auth.TokenTypeRefresh, time.Now())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
		return
	}
	if _, err := rbac.ParseRole(claims.Role); err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
		return
	}
	h.issuePair(c, claims.Session())
}

// issuePair binds auditor sessions to an active auditor record, whose name
// and role win over the caller's, and writes a fresh token pair.
func (h Handlers) issuePair(c *gin.Context, s auth.Session) {
	if rbac.IsAuditorRole(rbac.Role(s.Role)) {
		a, err := h.Review.GetAuditor(c.Request.Context(), s.UserID)
		if err != nil {
			writeError(c, err)
			return
		}
		if !a.Active {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "auditor is inactive", "code": review.CodeAuditorInactive})
			return
		}
		s.Name, s.Role = a.Name, string(a.Role)
	}

	pair, err := h.Auth.IssuePair(time.Now(), s)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, pair)
}

// Me describes the caller: session, capabilities and, for auditors, the
// auditor record.
func (h Handlers) Me(c *gin.Context) {
	s, role, ok := session(c)
	if !ok {
		return
	}
	out := gin.H{
		"user_id":      s.UserID,
		"name":         s.Name,
		"role":         role,
		"capabilities": rbac.Capabilities(role).Sorted(),
	}
	if rbac.IsAuditorRole(role) && h.Review != nil {
		if a, err := h.Review.GetAuditor(c.Request.Context(), s.UserID); err == nil {
			out["auditor"] = a
		}
	}
	c.JSON(http.StatusOK, out)
}

func (h Handlers) Stages(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"stages": h.Review.Stages()})
}
