package reporting

import (
	"context"
	"errors"
	"sort"
	"time"

	"bank-risk-audit/internal/review"
	"bank-risk-audit/internal/workflow"

	"github.com/shopspring/decimal"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// Repository is the read side reporting needs. review.Service and
// review.MemoryRepo both satisfy it.
type Repository interface {
	ListAssessments(ctx context.Context, f review.AssessmentFilter) ([]review.Assessment, error)
	ListTasks(ctx context.Context, f review.TaskFilter) ([]review.AuditTask, error)
}

type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service { return &Service{repo: repo, clock: time.Now} }

// Stats aggregates assessments created in req.Range and all open tasks.
// Results may trail concurrent writes.
func (s *Service) Stats(ctx context.Context, req StatsRequest) (Stats, error) {
	r := req.Range
	if !r.From.IsZero() && !r.To.IsZero() && !r.To.After(r.From) {
		return Stats{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return Stats{}, errors.New("reporting: repository not configured")
	}

	assessments, err := s.repo.ListAssessments(ctx, review.AssessmentFilter{CustomerID: req.CustomerID})
	if err != nil {
		return Stats{}, err
	}
	tasks, err := s.repo.ListTasks(ctx, review.TaskFilter{OpenOnly: true})
	if err != nil {
		return Stats{}, err
	}

	out := Stats{
		ByStatus:            map[workflow.Status]int{},
		ByStage:             map[workflow.Stage]int{},
		ByRiskLevel:         map[workflow.RiskLevel]int{},
		TotalInvestment:     decimal.Zero,
		AverageRiskScore:    decimal.Zero,
		ApprovalRate:        decimal.Zero,
		OpenTasksByStage:    map[workflow.Stage]int{},
		InProgressByAuditor: map[string]int{},
	}

	months := map[string]*MonthlyTrend{}
	scoreSum := 0
	terminal, approved := 0, 0
	for _, a := range assessments {
		if !inRange(r, a.CreatedAt) {
			continue
		}
		out.TotalAssessments++
		out.ByStatus[a.Status]++
		if a.CurrentStage != "" {
			out.ByStage[a.CurrentStage]++
		}
		out.ByRiskLevel[a.RiskLevel]++
		out.TotalInvestment = out.TotalInvestment.Add(a.InvestmentAmount)
		scoreSum += a.RiskScore

		key := a.CreatedAt.UTC().Format("2006-01")
		m, ok := months[key]
		if !ok {
			m = &MonthlyTrend{Month: key, Investment: decimal.Zero}
			months[key] = m
		}
		m.Submitted++
		m.Investment = m.Investment.Add(a.InvestmentAmount)
		switch a.Status {
		case workflow.StatusApproved:
			m.Approved++
		case workflow.StatusRejected:
			m.Rejected++
		case workflow.StatusReturned:
			m.Returned++
		}
		if a.Status.IsTerminal() {
			terminal++
			if a.Status == workflow.StatusApproved {
				approved++
			}
		}
	}

	if out.TotalAssessments > 0 {
		out.AverageRiskScore = decimal.NewFromInt(int64(scoreSum)).
			Div(decimal.NewFromInt(int64(out.TotalAssessments))).Round(2)
	}
	if terminal > 0 {
		out.ApprovalRate = decimal.NewFromInt(int64(approved)).
			Div(decimal.NewFromInt(int64(terminal))).Round(4)
	}

	out.MonthlyTrends = make([]MonthlyTrend, 0, len(months))
	for _, m := range months {
		out.MonthlyTrends = append(out.MonthlyTrends, *m)
	}
	sort.Slice(out.MonthlyTrends, func(i, j int) bool { return out.MonthlyTrends[i].Month < out.MonthlyTrends[j].Month })

	now := s.clock()
	for _, t := range tasks {
		out.OpenTasksByStage[t.Stage]++
		if t.IsOverdue(now) {
			out.OverdueTasks++
		}
		if t.Status == review.TaskInProgress && t.AuditorID != "" {
			out.InProgressByAuditor[t.AuditorID]++
		}
	}
	return out, nil
}

func inRange(r TimeRange, t time.Time) bool {
	if !r.From.IsZero() && t.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && !t.Before(r.To) {
		return false
	}
	return true
}
