package httpapi

import (
	"net/http"

	"bank-risk-audit/internal/rbac"
	"bank-risk-audit/internal/review"
	"bank-risk-audit/internal/workflow"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type submitRequest struct {
	InvestmentAmount decimal.Decimal   `json:"investment_amount"`
	RiskScore        *int              `json:"risk_score"`
	Answers          map[string]string `json:"answers"`
}

// SubmitAssessment files an assessment for the calling customer.
func (h Handlers) SubmitAssessment(c *gin.Context) {
	s, _, ok := session(c)
	if !ok {
		return
	}
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	if req.RiskScore == nil {
		badRequest(c, "risk_score is required")
		return
	}

	a, task, err := h.Review.SubmitAssessment(c.Request.Context(), review.SubmitRequest{
		CustomerID:       s.UserID,
		InvestmentAmount: req.InvestmentAmount,
		RiskScore:        *req.RiskScore,
		Answers:          req.Answers,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"assessment": a, "task": task})
}

// ListAssessments lists the caller's own assessments for customers and
// filters freely for staff.
func (h Handlers) ListAssessments(c *gin.Context) {
	s, role, ok := session(c)
	if !ok {
		return
	}
	limit, ok := queryInt(c, "limit")
	if !ok {
		return
	}
	f := review.AssessmentFilter{
		CustomerID: c.Query("customer_id"),
		Status:     workflow.Status(c.Query("status")),
		Stage:      workflow.Stage(c.Query("stage")),
		RiskLevel:  workflow.RiskLevel(c.Query("risk_level")),
		Limit:      limit,
	}
	if role == rbac.RoleUser {
		f.CustomerID = s.UserID
	}
	if f.Status != "" && !f.Status.Valid() {
		badRequest(c, "unknown status")
		return
	}
	if f.Stage != "" && !f.Stage.Valid() {
		badRequest(c, "unknown stage")
		return
	}
	if f.RiskLevel != "" && !f.RiskLevel.Valid() {
		badRequest(c, "unknown risk_level")
		return
	}

	items, err := h.Review.ListAssessments(c.Request.Context(), f)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"assessments": items})
}

// GetAssessment returns the assessment with its history. Customers see only
// their own; anything else is reported as not found.
func (h Handlers) GetAssessment(c *gin.Context) {
	s, role, ok := session(c)
	if !ok {
		return
	}
	d, err := h.Review.AssessmentDetail(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if role == rbac.RoleUser && d.Assessment.CustomerID != s.UserID {
		writeError(c, review.ErrNotFound)
		return
	}
	c.JSON(http.StatusOK, d)
}

type decisionRequest struct {
	Decision workflow.Decision `json:"decision"`
	Comments string            `json:"comments"`
}

func (h Handlers) AdvanceWorkflow(c *gin.Context) {
	s, _, ok := session(c)
	if !ok {
		return
	}
	var req decisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	res, err := h.Review.AdvanceWorkflow(c.Request.Context(), review.AdvanceRequest{
		AssessmentID: c.Param("id"),
		AuditorID:    s.UserID,
		Decision:     req.Decision,
		Comments:     req.Comments,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type resubmitRequest struct {
	InvestmentAmount *decimal.Decimal  `json:"investment_amount"`
	RiskScore        *int              `json:"risk_score"`
	Answers          map[string]string `json:"answers"`
}

func (h Handlers) Resubmit(c *gin.Context) {
	s, _, ok := session(c)
	if !ok {
		return
	}
	var req resubmitRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid json")
			return
		}
	}
	a, task, err := h.Review.Resubmit(c.Request.Context(), c.Param("id"), s.UserID, review.ResubmitRequest{
		InvestmentAmount: req.InvestmentAmount,
		RiskScore:        req.RiskScore,
		Answers:          req.Answers,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"assessment": a, "task": task})
}
