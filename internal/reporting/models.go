package reporting

import (
	"time"

	"bank-risk-audit/internal/workflow"

	"github.com/shopspring/decimal"
)

// TimeRange bounds assessments by creation time, [From, To). A zero bound is
// open.
type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

type StatsRequest struct {
	Range      TimeRange `json:"range"`
	CustomerID string    `json:"customer_id,omitempty"`
}

// Stats is the dashboard view of the review pipeline.
type Stats struct {
	TotalAssessments int                        `json:"total_assessments"`
	ByStatus         map[workflow.Status]int    `json:"by_status"`
	ByStage          map[workflow.Stage]int     `json:"by_stage"`
	ByRiskLevel      map[workflow.RiskLevel]int `json:"by_risk_level"`

	TotalInvestment  decimal.Decimal `json:"total_investment"`
	AverageRiskScore decimal.Decimal `json:"average_risk_score"`

	// ApprovalRate is APPROVED over all terminal assessments.
	ApprovalRate decimal.Decimal `json:"approval_rate"`

	MonthlyTrends []MonthlyTrend `json:"monthly_trends"`

	OpenTasksByStage map[workflow.Stage]int `json:"open_tasks_by_stage"`
	OverdueTasks     int                    `json:"overdue_tasks"`
	// InProgressByAuditor counts claimed tasks per auditor id.
	InProgressByAuditor map[string]int `json:"in_progress_by_auditor"`
}

type MonthlyTrend struct {
	Month      string          `json:"month"` // YYYY-MM, UTC
	Submitted  int             `json:"submitted"`
	Approved   int             `json:"approved"`
	Rejected   int             `json:"rejected"`
	Returned   int             `json:"returned"`
	Investment decimal.Decimal `json:"investment"`
}
