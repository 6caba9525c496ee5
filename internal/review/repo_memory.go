package review

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory Repository. Transactions are serialized by a
// single mutex and run against a staged copy that replaces the live state
// only when fn succeeds. It is meant for tests and single-process demos.
type MemoryRepo struct {
	mu    sync.Mutex
	state *memState
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{state: newMemState()}
}

type memState struct {
	assessments map[string]Assessment
	tasks       map[string]AuditTask
	history     map[string][]HistoryEntry
	auditors    map[string]Auditor
}

func newMemState() *memState {
	return &memState{
		assessments: map[string]Assessment{},
		tasks:       map[string]AuditTask{},
		history:     map[string][]HistoryEntry{},
		auditors:    map[string]Auditor{},
	}
}

func (s *memState) clone() *memState {
	out := newMemState()
	for k, v := range s.assessments {
		out.assessments[k] = v.clone()
	}
	for k, v := range s.tasks {
		out.tasks[k] = v
	}
	for k, v := range s.history {
		out.history[k] = append([]HistoryEntry(nil), v...)
	}
	for k, v := range s.auditors {
		out.auditors[k] = v
	}
	return out
}

func (r *MemoryRepo) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	staged := r.state.clone()
	if err := fn(ctx, &memTx{s: staged}); err != nil {
		return err
	}
	r.state = staged
	return nil
}

func (r *MemoryRepo) read() *memTx {
	r.mu.Lock()
	defer r.mu.Unlock()
	return &memTx{s: r.state}
}

// Live state is replaced, never mutated, so a snapshot pointer is safe to
// read after the lock is released.

func (r *MemoryRepo) GetAssessment(ctx context.Context, id string) (Assessment, error) {
	return r.read().GetAssessment(ctx, id)
}

func (r *MemoryRepo) ListAssessments(ctx context.Context, f AssessmentFilter) ([]Assessment, error) {
	return r.read().ListAssessments(ctx, f)
}

func (r *MemoryRepo) GetTask(ctx context.Context, id string) (AuditTask, error) {
	return r.read().GetTask(ctx, id)
}

func (r *MemoryRepo) ListTasks(ctx context.Context, f TaskFilter) ([]AuditTask, error) {
	return r.read().ListTasks(ctx, f)
}

func (r *MemoryRepo) History(ctx context.Context, assessmentID string) ([]HistoryEntry, error) {
	return r.read().History(ctx, assessmentID)
}

func (r *MemoryRepo) GetAuditor(ctx context.Context, id string) (Auditor, error) {
	return r.read().GetAuditor(ctx, id)
}

func (r *MemoryRepo) ListAuditors(ctx context.Context, f AuditorFilter) ([]Auditor, error) {
	return r.read().ListAuditors(ctx, f)
}

type memTx struct {
	s *memState
}

func (t *memTx) GetAssessment(_ context.Context, id string) (Assessment, error) {
	a, ok := t.s.assessments[id]
	if !ok {
		return Assessment{}, notFound("assessment", id)
	}
	return a.clone(), nil
}

func (t *memTx) ListAssessments(_ context.Context, f AssessmentFilter) ([]Assessment, error) {
	out := make([]Assessment, 0)
	for _, a := range t.s.assessments {
		if f.CustomerID != "" && a.CustomerID != f.CustomerID {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		if f.Stage != "" && a.CurrentStage != f.Stage {
			continue
		}
		if f.RiskLevel != "" && a.RiskLevel != f.RiskLevel {
			continue
		}
		out = append(out, a.clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (t *memTx) GetTask(_ context.Context, id string) (AuditTask, error) {
	task, ok := t.s.tasks[id]
	if !ok {
		return AuditTask{}, notFound("task", id)
	}
	return task, nil
}

func (t *memTx) ListTasks(_ context.Context, f TaskFilter) ([]AuditTask, error) {
	out := make([]AuditTask, 0)
	for _, task := range t.s.tasks {
		if f.AssessmentID != "" && task.AssessmentID != f.AssessmentID {
			continue
		}
		if f.AuditorID != "" && task.AuditorID != f.AuditorID {
			continue
		}
		if f.Stage != "" && task.Stage != f.Stage {
			continue
		}
		if f.Status != "" && task.Status != f.Status {
			continue
		}
		if f.OpenOnly && !task.IsOpen() {
			continue
		}
		if f.DueBefore != nil && !task.IsOverdue(*f.DueBefore) {
			continue
		}
		out = append(out, task)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (t *memTx) History(_ context.Context, assessmentID string) ([]HistoryEntry, error) {
	return append([]HistoryEntry{}, t.s.history[assessmentID]...), nil
}

func (t *memTx) GetAuditor(_ context.Context, id string) (Auditor, error) {
	a, ok := t.s.auditors[id]
	if !ok {
		return Auditor{}, notFound("auditor", id)
	}
	return a, nil
}

func (t *memTx) ListAuditors(_ context.Context, f AuditorFilter) ([]Auditor, error) {
	out := make([]Auditor, 0)
	for _, a := range t.s.auditors {
		if f.Role != "" && a.Role != f.Role {
			continue
		}
		if f.ActiveOnly && !a.Active {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memTx) InsertAssessment(_ context.Context, a Assessment) error {
	if _, ok := t.s.assessments[a.ID]; ok {
		return fmt.Errorf("review: assessment %s already exists", a.ID)
	}
	t.s.assessments[a.ID] = a.clone()
	return nil
}

func (t *memTx) UpdateAssessment(_ context.Context, a Assessment) error {
	if _, ok := t.s.assessments[a.ID]; !ok {
		return notFound("assessment", a.ID)
	}
	t.s.assessments[a.ID] = a.clone()
	return nil
}

func (t *memTx) InsertTask(_ context.Context, task AuditTask) error {
	if _, ok := t.s.tasks[task.ID]; ok {
		return fmt.Errorf("review: task %s already exists", task.ID)
	}
	if task.IsOpen() {
		for _, other := range t.s.tasks {
			if other.AssessmentID == task.AssessmentID && other.Stage == task.Stage && other.IsOpen() {
				return integrity(nil, "open task %s already exists for assessment %s at %s", other.ID, task.AssessmentID, task.Stage)
			}
		}
	}
	t.s.tasks[task.ID] = task
	return nil
}

func (t *memTx) ClaimTask(_ context.Context, taskID, auditorID string, now time.Time) (AuditTask, bool, error) {
	task, ok := t.s.tasks[taskID]
	if !ok {
		return AuditTask{}, false, notFound("task", taskID)
	}
	if task.Status != TaskPending {
		return task, false, nil
	}
	task.Status = TaskInProgress
	task.AuditorID = auditorID
	task.ClaimedAt = &now
	task.UpdatedAt = now
	t.s.tasks[taskID] = task
	return task, true, nil
}

func (t *memTx) UpdateTask(_ context.Context, task AuditTask) error {
	if _, ok := t.s.tasks[task.ID]; !ok {
		return notFound("task", task.ID)
	}
	t.s.tasks[task.ID] = task
	return nil
}

func (t *memTx) AppendHistory(_ context.Context, h HistoryEntry) error {
	for _, e := range t.s.history[h.AssessmentID] {
		if e.ID == h.ID {
			return fmt.Errorf("review: history entry %s already exists", h.ID)
		}
	}
	t.s.history[h.AssessmentID] = append(t.s.history[h.AssessmentID], h)
	return nil
}

func (t *memTx) InsertAuditor(_ context.Context, a Auditor) error {
	if _, ok := t.s.auditors[a.ID]; ok {
		return fmt.Errorf("review: auditor %s already exists", a.ID)
	}
	t.s.auditors[a.ID] = a
	return nil
}

func (t *memTx) UpdateAuditor(_ context.Context, a Auditor) error {
	if _, ok := t.s.auditors[a.ID]; !ok {
		return notFound("auditor", a.ID)
	}
	t.s.auditors[a.ID] = a
	return nil
}
