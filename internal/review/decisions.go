package review

import (
	"context"
	"errors"
	"time"

	"bank-risk-audit/internal/authz"
	"bank-risk-audit/internal/notify"
	"bank-risk-audit/internal/rbac"
	"bank-risk-audit/internal/workflow"

	"go.opentelemetry.io/otel/attribute"
)

// Claim assigns a PENDING task to auditorID. Of any number of concurrent
// claims on one task exactly one succeeds; the rest get
// TASK_ALREADY_CLAIMED.
func (s *Service) Claim(ctx context.Context, taskID, auditorID string) (task AuditTask, err error) {
	ctx, span := s.startSpan(ctx, "Claim", attribute.String("task_id", taskID), attribute.String("auditor_id", auditorID))
	defer func() { s.finish(span, err) }()

	if taskID == "" || auditorID == "" {
		return AuditTask{}, newError(CodeInvalidArgument, "task_id and auditor_id are required")
	}

	if s.limiter != nil {
		ok, lerr := s.limiter.Acquire(ctx, auditorID)
		if lerr != nil {
			return AuditTask{}, lerr
		}
		if !ok {
			s.metrics.IncClaim("limited")
			return AuditTask{}, newError(CodeClaimLimitReached, "auditor %s holds the maximum number of tasks", auditorID)
		}
	}

	err = s.repo.InTx(ctx, func(ctx context.Context, tx Tx) error {
		auditor, err := tx.GetAuditor(ctx, auditorID)
		if err != nil {
			return err
		}
		if !auditor.Active {
			return newError(CodeAuditorInactive, "auditor %s is inactive", auditorID)
		}
		if !rbac.IsAuditorRole(auditor.Role) {
			return newError(CodeInsufficientRole, "role %s cannot claim tasks", auditor.Role)
		}

		cur, err := tx.GetTask(ctx, taskID)
		if err != nil {
			return err
		}
		if s.rankClaims && rbac.Seniority(auditor.Role) < cur.Stage.Rank() {
			return newError(CodeInsufficientRole, "%s cannot claim a %s task", auditor.Role, cur.Stage)
		}
		if _, err := tx.GetAssessment(ctx, cur.AssessmentID); err != nil {
			return asIntegrity(err, "task %s references missing assessment %s", cur.ID, cur.AssessmentID)
		}

		claimed, ok, err := tx.ClaimTask(ctx, taskID, auditorID, s.now())
		if err != nil {
			return err
		}
		if !ok {
			return newError(CodeTaskAlreadyClaimed, "task %s is %s", taskID, claimed.Status)
		}
		task = claimed
		return nil
	})
	if err != nil {
		if s.limiter != nil {
			s.releaseSlot(ctx, auditorID)
		}
		if errors.Is(err, ErrTaskAlreadyClaimed) {
			s.metrics.IncClaim("conflict")
		}
		return AuditTask{}, err
	}

	s.metrics.IncClaim("claimed")
	s.logger.InfoContext(ctx, "task claimed", "task_id", task.ID, "assessment_id", task.AssessmentID, "auditor_id", auditorID, "stage", task.Stage)
	return task, nil
}

func (s *Service) releaseSlot(ctx context.Context, auditorID string) {
	if s.limiter == nil {
		return
	}
	if err := s.limiter.Release(ctx, auditorID); err != nil {
		s.logger.WarnContext(ctx, "claim slot release failed", "auditor_id", auditorID, "err", err)
	}
}

type CompleteRequest struct {
	TaskID    string            `json:"task_id"`
	AuditorID string            `json:"auditor_id"`
	Decision  workflow.Decision `json:"decision"`
	Comments  string            `json:"comments,omitempty"`
}

// Complete records a decision on a claimed task. The history entry, the task
// completion, the assessment state and any successor task are written in one
// transaction. A notification for a terminal outcome is sent after commit;
// its failure does not undo the decision.
func (s *Service) Complete(ctx context.Context, req CompleteRequest) (res CompleteResult, err error) {
	ctx, span := s.startSpan(ctx, "Complete",
		attribute.String("task_id", req.TaskID),
		attribute.String("auditor_id", req.AuditorID),
		attribute.String("decision", string(req.Decision)),
	)
	defer func() { s.finish(span, err) }()
	start := time.Now()

	err = s.repo.InTx(ctx, func(ctx context.Context, tx Tx) error {
		task, err := tx.GetTask(ctx, req.TaskID)
		if err != nil {
			return err
		}
		res, err = s.completeInTx(ctx, tx, task, req)
		return err
	})
	if err != nil {
		return CompleteResult{}, err
	}

	s.releaseSlot(ctx, req.AuditorID)
	s.afterDecision(ctx, res, time.Since(start))
	return res, nil
}

func (s *Service) completeInTx(ctx context.Context, tx Tx, task AuditTask, req CompleteRequest) (CompleteResult, error) {
	if task.AuditorID != req.AuditorID {
		return CompleteResult{}, newError(CodeNotTaskOwner, "task %s is not held by %s", task.ID, req.AuditorID)
	}
	if task.Status != TaskInProgress {
		return CompleteResult{}, newError(CodeTaskNotInProgress, "task %s is %s", task.ID, task.Status)
	}

	auditor, err := tx.GetAuditor(ctx, req.AuditorID)
	if err != nil {
		return CompleteResult{}, err
	}
	if !auditor.Active {
		return CompleteResult{}, newError(CodeAuditorInactive, "auditor %s is inactive", auditor.ID)
	}

	a, err := tx.GetAssessment(ctx, task.AssessmentID)
	if err != nil {
		return CompleteResult{}, asIntegrity(err, "task %s references missing assessment %s", task.ID, task.AssessmentID)
	}
	cur, err := a.State()
	if err != nil {
		return CompleteResult{}, integrity(err, "assessment %s has an invalid state", a.ID)
	}
	if cur.IsTerminal() {
		return CompleteResult{}, newError(CodeAssessmentNotActive, "assessment %s is %s", a.ID, a.Status)
	}

	verdict := s.authorizer.Authorize(authz.Request{
		Role:      auditor.Role,
		Decision:  req.Decision,
		Stage:     task.Stage,
		RiskLevel: a.RiskLevel,
		Actor:     req.AuditorID,
		TaskOwner: task.AuditorID,
	})
	if !verdict.Allowed {
		return CompleteResult{}, newError(Code(verdict.Reason), "%s may not %s at %s", auditor.Role, req.Decision, task.Stage)
	}

	history, err := tx.History(ctx, a.ID)
	if err != nil {
		return CompleteResult{}, err
	}
	next, err := s.policy.Apply(cur, task.Stage, req.Decision, workflow.RecheckCount(steps(history), task.Stage))
	if err != nil {
		return CompleteResult{}, fromWorkflow(err)
	}

	now := s.now()
	// Entries stay in chronological order even if the clock steps back.
	if n := len(history); n > 0 && now.Before(history[n-1].CreatedAt) {
		now = history[n-1].CreatedAt
	}

	entry := HistoryEntry{
		ID:           s.newID(),
		AssessmentID: a.ID,
		TaskID:       task.ID,
		Stage:        task.Stage,
		AuditorID:    auditor.ID,
		AuditorName:  auditor.Name,
		Decision:     req.Decision,
		Comments:     req.Comments,
		ResultStatus: next.Status(),
		CreatedAt:    now,
	}
	if err := tx.AppendHistory(ctx, entry); err != nil {
		return CompleteResult{}, err
	}

	task.Status = TaskCompleted
	task.CompletedAt = &now
	task.UpdatedAt = now
	if err := tx.UpdateTask(ctx, task); err != nil {
		return CompleteResult{}, err
	}

	a.setState(next)
	a.UpdatedAt = now
	if err := tx.UpdateAssessment(ctx, a); err != nil {
		return CompleteResult{}, err
	}

	res := CompleteResult{Assessment: a, Task: task, Entry: entry}
	if next.IsTerminal() {
		return res, nil
	}

	stage, _ := next.Stage()
	if stage == task.Stage && next.Status() != workflow.StatusRecheck {
		return res, nil
	}
	open, err := tx.ListTasks(ctx, TaskFilter{AssessmentID: a.ID, Stage: stage, OpenOnly: true})
	if err != nil {
		return CompleteResult{}, err
	}
	if len(open) > 0 {
		return CompleteResult{}, integrity(nil, "assessment %s already has open task %s at %s", a.ID, open[0].ID, stage)
	}
	successor := s.newTask(a, stage, now)
	if err := tx.InsertTask(ctx, successor); err != nil {
		return CompleteResult{}, err
	}
	res.Successor = &successor
	return res, nil
}

type AdvanceRequest struct {
	AssessmentID string            `json:"assessment_id"`
	AuditorID    string            `json:"auditor_id"`
	Decision     workflow.Decision `json:"decision"`
	Comments     string            `json:"comments,omitempty"`
}

// AdvanceWorkflow records a decision against an assessment's current stage
// without a separate claim. The open task at that stage is claimed for the
// caller in the same transaction if it is unclaimed; a task held by someone
// else is TASK_ALREADY_CLAIMED.
func (s *Service) AdvanceWorkflow(ctx context.Context, req AdvanceRequest) (res CompleteResult, err error) {
	ctx, span := s.startSpan(ctx, "AdvanceWorkflow",
		attribute.String("assessment_id", req.AssessmentID),
		attribute.String("auditor_id", req.AuditorID),
		attribute.String("decision", string(req.Decision)),
	)
	defer func() { s.finish(span, err) }()
	start := time.Now()

	heldBefore := false
	err = s.repo.InTx(ctx, func(ctx context.Context, tx Tx) error {
		a, err := tx.GetAssessment(ctx, req.AssessmentID)
		if err != nil {
			return err
		}
		cur, err := a.State()
		if err != nil {
			return integrity(err, "assessment %s has an invalid state", a.ID)
		}
		if cur.IsTerminal() {
			return newError(CodeAssessmentNotActive, "assessment %s is %s", a.ID, a.Status)
		}
		stage, ok := cur.Stage()
		if !ok {
			return integrity(nil, "assessment %s is active without a stage", a.ID)
		}

		open, err := tx.ListTasks(ctx, TaskFilter{AssessmentID: a.ID, Stage: stage, OpenOnly: true})
		if err != nil {
			return err
		}
		if len(open) == 0 {
			return integrity(nil, "assessment %s has no open task at %s", a.ID, stage)
		}
		task := open[0]

		switch task.Status {
		case TaskPending:
			claimed, ok, err := tx.ClaimTask(ctx, task.ID, req.AuditorID, s.now())
			if err != nil {
				return err
			}
			if !ok {
				return newError(CodeTaskAlreadyClaimed, "task %s is %s", task.ID, claimed.Status)
			}
			task = claimed
		case TaskInProgress:
			if task.AuditorID != req.AuditorID {
				return newError(CodeTaskAlreadyClaimed, "task %s is held by another auditor", task.ID)
			}
			heldBefore = true
		}

		res, err = s.completeInTx(ctx, tx, task, CompleteRequest{
			TaskID:    task.ID,
			AuditorID: req.AuditorID,
			Decision:  req.Decision,
			Comments:  req.Comments,
		})
		return err
	})
	if err != nil {
		return CompleteResult{}, err
	}

	if heldBefore {
		s.releaseSlot(ctx, req.AuditorID)
	}
	s.afterDecision(ctx, res, time.Since(start))
	return res, nil
}

func (s *Service) afterDecision(ctx context.Context, res CompleteResult, took time.Duration) {
	s.metrics.IncDecision(string(res.Entry.Stage), string(res.Entry.Decision))
	s.metrics.ObserveComplete(took)
	s.logger.InfoContext(ctx, "decision recorded",
		"assessment_id", res.Assessment.ID,
		"task_id", res.Task.ID,
		"auditor_id", res.Entry.AuditorID,
		"stage", res.Entry.Stage,
		"decision", res.Entry.Decision,
		"status", res.Assessment.Status,
	)

	if s.notifier == nil || !res.Assessment.Status.IsTerminal() {
		return
	}
	ev := notify.Event{
		ID:           s.newID(),
		Type:         outcomeEvent(res.Assessment.Status),
		AssessmentID: res.Assessment.ID,
		CustomerID:   res.Assessment.CustomerID,
		TaskID:       res.Task.ID,
		AuditorID:    res.Entry.AuditorID,
		Stage:        string(res.Entry.Stage),
		Status:       string(res.Assessment.Status),
		Comments:     res.Entry.Comments,
		OccurredAt:   res.Entry.CreatedAt,
	}
	if err := s.notifier.Notify(ctx, ev); err != nil {
		s.metrics.IncNotifyFailure()
		s.logger.WarnContext(ctx, "outcome notification failed", "assessment_id", res.Assessment.ID, "err", err)
	}
}

func outcomeEvent(st workflow.Status) notify.EventType {
	switch st {
	case workflow.StatusApproved:
		return notify.EventAssessmentApproved
	case workflow.StatusRejected:
		return notify.EventAssessmentRejected
	default:
		return notify.EventAssessmentReturned
	}
}

func fromWorkflow(err error) error {
	code := CodeDataIntegrity
	switch {
	case errors.Is(err, workflow.ErrNotActive):
		code = CodeAssessmentNotActive
	case errors.Is(err, workflow.ErrWrongStage):
		code = CodeWrongStage
	case errors.Is(err, workflow.ErrInvalidDecision):
		code = CodeInvalidDecision
	case errors.Is(err, workflow.ErrRecheckLimit):
		code = CodeRecheckLimitReached
	}
	return &Error{Code: code, Message: err.Error(), Err: err}
}

// asIntegrity turns a not-found on a referenced row into DATA_INTEGRITY.
func asIntegrity(err error, format string, args ...any) error {
	if errors.Is(err, ErrNotFound) {
		return integrity(err, format, args...)
	}
	return err
}
