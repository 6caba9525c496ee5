package review

import (
	"time"

	"bank-risk-audit/internal/rbac"
	"bank-risk-audit/internal/workflow"

	"github.com/shopspring/decimal"
)

// Assessment is one customer's risk evaluation moving through review.
//
// Status and CurrentStage are the stored form of a workflow.State and are
// only ever written through setState.
type Assessment struct {
	ID                   string             `json:"id" db:"id"`
	CustomerID           string             `json:"customer_id" db:"customer_id"`
	InvestmentAmount     decimal.Decimal    `json:"investment_amount" db:"investment_amount"`
	RiskScore            int                `json:"risk_score" db:"risk_score"`
	RiskLevel            workflow.RiskLevel `json:"risk_level" db:"risk_level"`
	Status               workflow.Status    `json:"status" db:"status"`
	CurrentStage         workflow.Stage     `json:"current_stage,omitempty" db:"current_stage"`
	Answers              map[string]string  `json:"answers,omitempty" db:"answers"`
	PreviousAssessmentID string             `json:"previous_assessment_id,omitempty" db:"previous_assessment_id"`
	CreatedAt            time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time          `json:"updated_at" db:"updated_at"`
}

// State decodes the stored status and stage.
func (a Assessment) State() (workflow.State, error) {
	return workflow.Restore(a.Status, a.CurrentStage)
}

func (a *Assessment) setState(s workflow.State) {
	a.Status, a.CurrentStage = workflow.Flatten(s)
}

func (a Assessment) clone() Assessment {
	if a.Answers != nil {
		answers := make(map[string]string, len(a.Answers))
		for k, v := range a.Answers {
			answers[k] = v
		}
		a.Answers = answers
	}
	return a
}

type TaskStatus string

const (
	TaskPending    TaskStatus = "PENDING"
	TaskInProgress TaskStatus = "IN_PROGRESS"
	TaskCompleted  TaskStatus = "COMPLETED"
)

func (s TaskStatus) Valid() bool {
	return s == TaskPending || s == TaskInProgress || s == TaskCompleted
}

// AuditTask is "this assessment needs a decision at this stage".
// At most one non-completed task exists per (assessment, stage).
type AuditTask struct {
	ID           string            `json:"id" db:"id"`
	AssessmentID string            `json:"assessment_id" db:"assessment_id"`
	AuditorID    string            `json:"auditor_id,omitempty" db:"auditor_id"`
	Stage        workflow.Stage    `json:"stage" db:"stage"`
	Status       TaskStatus        `json:"status" db:"status"`
	Priority     workflow.Priority `json:"priority" db:"priority"`
	Deadline     *time.Time        `json:"deadline,omitempty" db:"deadline"`
	ClaimedAt    *time.Time        `json:"claimed_at,omitempty" db:"claimed_at"`
	CompletedAt  *time.Time        `json:"completed_at,omitempty" db:"completed_at"`
	CreatedAt    time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at" db:"updated_at"`
}

func (t AuditTask) IsOpen() bool { return t.Status != TaskCompleted }

func (t AuditTask) IsOverdue(now time.Time) bool {
	return t.IsOpen() && t.Deadline != nil && now.After(*t.Deadline)
}

// HistoryEntry is the immutable record of one decision. Entries are never
// updated or deleted.
type HistoryEntry struct {
	ID           string            `json:"id" db:"id"`
	AssessmentID string            `json:"assessment_id" db:"assessment_id"`
	TaskID       string            `json:"task_id" db:"task_id"`
	Stage        workflow.Stage    `json:"stage" db:"stage"`
	AuditorID    string            `json:"auditor_id" db:"auditor_id"`
	AuditorName  string            `json:"auditor_name" db:"auditor_name"`
	Decision     workflow.Decision `json:"decision" db:"decision"`
	Comments     string            `json:"comments,omitempty" db:"comments"`
	ResultStatus workflow.Status   `json:"result_status" db:"result_status"`
	CreatedAt    time.Time         `json:"created_at" db:"created_at"`
}

func steps(history []HistoryEntry) []workflow.Step {
	out := make([]workflow.Step, len(history))
	for i, h := range history {
		out[i] = workflow.Step{Stage: h.Stage, Decision: h.Decision}
	}
	return out
}

// Auditor is a principal who acts on tasks. Auditors are deactivated,
// never deleted, so history keeps resolving.
type Auditor struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Role      rbac.Role `json:"role" db:"role"`
	Email     string    `json:"email,omitempty" db:"email"`
	Phone     string    `json:"phone,omitempty" db:"phone"`
	Active    bool      `json:"active" db:"active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type AssessmentFilter struct {
	CustomerID string
	Status     workflow.Status
	Stage      workflow.Stage
	RiskLevel  workflow.RiskLevel
	Limit      int
}

type TaskFilter struct {
	AssessmentID string
	AuditorID    string
	Stage        workflow.Stage
	Status       TaskStatus
	OpenOnly     bool
	// DueBefore selects open tasks whose deadline is before the time.
	DueBefore *time.Time
	Limit     int
}

type AuditorFilter struct {
	Role       rbac.Role
	ActiveOnly bool
}

// AssessmentDetail is an assessment with its decision log.
type AssessmentDetail struct {
	Assessment    Assessment             `json:"assessment"`
	History       []HistoryEntry         `json:"history"`
	RecheckCounts map[workflow.Stage]int `json:"recheck_counts"`
	OpenTask      *AuditTask             `json:"open_task,omitempty"`
}

// CompleteResult describes the effect of one recorded decision.
type CompleteResult struct {
	Assessment Assessment   `json:"assessment"`
	Task       AuditTask    `json:"task"`
	Entry      HistoryEntry `json:"history_entry"`
	Successor  *AuditTask   `json:"successor,omitempty"`
}
