package reporting

import (
	"context"
	"sync"

	"bank-risk-audit/internal/review"
)

// MemoryRepo serves fixed rows for tests.
type MemoryRepo struct {
	mu sync.Mutex

	Assessments []review.Assessment
	Tasks       []review.AuditTask
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

func (r *MemoryRepo) ListAssessments(_ context.Context, f review.AssessmentFilter) ([]review.Assessment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]review.Assessment, 0, len(r.Assessments))
	for _, a := range r.Assessments {
		if f.CustomerID != "" && a.CustomerID != f.CustomerID {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (r *MemoryRepo) ListTasks(_ context.Context, f review.TaskFilter) ([]review.AuditTask, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]review.AuditTask, 0, len(r.Tasks))
	for _, t := range r.Tasks {
		if f.OpenOnly && !t.IsOpen() {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}
