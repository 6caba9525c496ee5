package review

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"bank-risk-audit/internal/authz"
	"bank-risk-audit/internal/metrics"
	"bank-risk-audit/internal/notify"
	"bank-risk-audit/internal/rbac"
	"bank-risk-audit/internal/workflow"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SLA is the time allowed for a task at each stage. A stage without an
// entry gets no deadline.
type SLA map[workflow.Stage]time.Duration

func DefaultSLA() SLA {
	return SLA{
		workflow.StageJunior:    2 * time.Hour,
		workflow.StageMid:       4 * time.Hour,
		workflow.StageSenior:    8 * time.Hour,
		workflow.StageCommittee: 24 * time.Hour,
	}
}

// Service is the assessment session store: it owns every mutation of
// assessments, tasks and history, and runs each one as a single repository
// transaction.
type Service struct {
	repo       Repository
	authorizer *authz.Authorizer
	policy     workflow.Policy
	sla        SLA
	notifier   notify.Notifier
	limiter    ClaimLimiter
	rankClaims bool
	metrics    *metrics.Metrics
	logger     *slog.Logger
	tracer     trace.Tracer

	// clock and newID are injectable for deterministic tests.
	clock func() time.Time
	newID func() string
}

type Option func(*Service)

func WithAuthorizer(a *authz.Authorizer) Option { return func(s *Service) { s.authorizer = a } }
func WithPolicy(p workflow.Policy) Option       { return func(s *Service) { s.policy = p } }
func WithSLA(sla SLA) Option                    { return func(s *Service) { s.sla = sla } }
func WithNotifier(n notify.Notifier) Option     { return func(s *Service) { s.notifier = n } }
func WithClaimLimiter(l ClaimLimiter) Option    { return func(s *Service) { s.limiter = l } }
func WithMetrics(m *metrics.Metrics) Option     { return func(s *Service) { s.metrics = m } }
func WithLogger(l *slog.Logger) Option          { return func(s *Service) { s.logger = l } }
func WithClock(f func() time.Time) Option       { return func(s *Service) { s.clock = f } }
func WithIDGenerator(f func() string) Option    { return func(s *Service) { s.newID = f } }

// WithClaimRankCheck controls whether Claim refuses auditors ranked below the
// task's stage. Such a claim could never be completed, and nothing reassigns
// a held task. On by default.
func WithClaimRankCheck(on bool) Option { return func(s *Service) { s.rankClaims = on } }

func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{
		repo:       repo,
		authorizer: authz.New(authz.Options{}),
		sla:        DefaultSLA(),
		rankClaims: true,
		logger:     slog.Default(),
		tracer:     otel.Tracer("bank-risk-audit/internal/review"),
		clock:      time.Now,
		newID:      uuid.NewString,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) now() time.Time { return s.clock().UTC() }

func (s *Service) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "review."+name, trace.WithAttributes(attrs...))
}

// finish ends span and counts err by code.
func (s *Service) finish(span trace.Span, err error) {
	if err != nil {
		code := CodeOf(err)
		if code == "" {
			code = "INTERNAL"
		}
		s.metrics.IncFailure(string(code))
		span.RecordError(err)
		span.SetStatus(codes.Error, string(code))
	}
	span.End()
}

func (s *Service) newTask(a Assessment, stage workflow.Stage, now time.Time) AuditTask {
	t := AuditTask{
		ID:           s.newID(),
		AssessmentID: a.ID,
		Stage:        stage,
		Status:       TaskPending,
		Priority:     workflow.PriorityForScore(a.RiskScore),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if d, ok := s.sla[stage]; ok && d > 0 {
		deadline := now.Add(d)
		t.Deadline = &deadline
	}
	return t
}

/* ===================== SUBMISSION ===================== */

type SubmitRequest struct {
	CustomerID       string            `json:"customer_id"`
	InvestmentAmount decimal.Decimal   `json:"investment_amount"`
	RiskScore        int               `json:"risk_score"`
	Answers          map[string]string `json:"answers,omitempty"`
}

func (r SubmitRequest) validate() (workflow.RiskLevel, error) {
	if strings.TrimSpace(r.CustomerID) == "" {
		return "", newError(CodeInvalidArgument, "customer_id is required")
	}
	if !r.InvestmentAmount.IsPositive() {
		return "", newError(CodeInvalidArgument, "investment_amount must be positive")
	}
	level, err := workflow.LevelForScore(r.RiskScore)
	if err != nil {
		return "", &Error{Code: CodeInvalidArgument, Message: "risk_score out of range", Err: err}
	}
	return level, nil
}

// SubmitAssessment records a new assessment and queues its JUNIOR task.
// The assessment is created Pending and enters the workflow in the same
// transaction, so callers only ever observe PENDING at JUNIOR.
func (s *Service) SubmitAssessment(ctx context.Context, req SubmitRequest) (a Assessment, task AuditTask, err error) {
	ctx, span := s.startSpan(ctx, "SubmitAssessment", attribute.String("customer_id", req.CustomerID))
	defer func() { s.finish(span, err) }()

	level, err := req.validate()
	if err != nil {
		return Assessment{}, AuditTask{}, err
	}
	a, task = s.build(req, level, "")
	err = s.repo.InTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.InsertAssessment(ctx, a); err != nil {
			return err
		}
		return tx.InsertTask(ctx, task)
	})
	if err != nil {
		return Assessment{}, AuditTask{}, err
	}

	s.logger.InfoContext(ctx, "assessment submitted",
		"assessment_id", a.ID,
		"customer_id", a.CustomerID,
		"risk_level", a.RiskLevel,
		"task_id", task.ID,
	)
	return a, task, nil
}

func (s *Service) build(req SubmitRequest, level workflow.RiskLevel, previousID string) (Assessment, AuditTask) {
	now := s.now()
	a := Assessment{
		ID:                   s.newID(),
		CustomerID:           req.CustomerID,
		InvestmentAmount:     req.InvestmentAmount,
		RiskScore:            req.RiskScore,
		RiskLevel:            level,
		Answers:              req.Answers,
		PreviousAssessmentID: previousID,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	a.setState(workflow.Pending{})

	entered := workflow.Enter()
	stage, _ := entered.Stage()
	task := s.newTask(a, stage, now)
	a.setState(entered)
	return a, task
}

type ResubmitRequest struct {
	InvestmentAmount *decimal.Decimal `json:"investment_amount,omitempty"`
	RiskScore        *int             `json:"risk_score,omitempty"`
	Answers          map[string]string `json:"answers,omitempty"`
}

// Resubmit starts a fresh assessment from a RETURNED one. The returned
// assessment is never reopened; the new one links back to it. customerID,
// when set, must own the original.
func (s *Service) Resubmit(ctx context.Context, previousID, customerID string, req ResubmitRequest) (a Assessment, task AuditTask, err error) {
	ctx, span := s.startSpan(ctx, "Resubmit", attribute.String("previous_assessment_id", previousID))
	defer func() { s.finish(span, err) }()

	err = s.repo.InTx(ctx, func(ctx context.Context, tx Tx) error {
		prev, err := tx.GetAssessment(ctx, previousID)
		if err != nil {
			return err
		}
		if customerID != "" && prev.CustomerID != customerID {
			return notFound("assessment", previousID)
		}
		if prev.Status != workflow.StatusReturned {
			return newError(CodeInvalidArgument, "assessment %s is %s; only RETURNED assessments can be resubmitted", prev.ID, prev.Status)
		}

		sub := SubmitRequest{
			CustomerID:       prev.CustomerID,
			InvestmentAmount: prev.InvestmentAmount,
			RiskScore:        prev.RiskScore,
			Answers:          prev.Answers,
		}
		if req.InvestmentAmount != nil {
			sub.InvestmentAmount = *req.InvestmentAmount
		}
		if req.RiskScore != nil {
			sub.RiskScore = *req.RiskScore
		}
		if req.Answers != nil {
			sub.Answers = req.Answers
		}
		level, err := sub.validate()
		if err != nil {
			return err
		}

		a, task = s.build(sub, level, prev.ID)
		if err := tx.InsertAssessment(ctx, a); err != nil {
			return err
		}
		return tx.InsertTask(ctx, task)
	})
	if err != nil {
		return Assessment{}, AuditTask{}, err
	}

	s.logger.InfoContext(ctx, "assessment resubmitted",
		"assessment_id", a.ID,
		"previous_assessment_id", previousID,
		"task_id", task.ID,
	)
	return a, task, nil
}

/* ===================== QUERIES ===================== */

func (s *Service) GetAssessment(ctx context.Context, id string) (Assessment, error) {
	return s.repo.GetAssessment(ctx, id)
}

// AssessmentDetail returns the assessment with its ordered history, the
// number of rechecks per stage and the open task, if any.
func (s *Service) AssessmentDetail(ctx context.Context, id string) (AssessmentDetail, error) {
	a, err := s.repo.GetAssessment(ctx, id)
	if err != nil {
		return AssessmentDetail{}, err
	}
	history, err := s.repo.History(ctx, id)
	if err != nil {
		return AssessmentDetail{}, err
	}
	open, err := s.repo.ListTasks(ctx, TaskFilter{AssessmentID: id, OpenOnly: true})
	if err != nil {
		return AssessmentDetail{}, err
	}

	d := AssessmentDetail{
		Assessment:    a,
		History:       history,
		RecheckCounts: workflow.RecheckCounts(steps(history)),
	}
	if len(open) > 0 {
		t := open[0]
		d.OpenTask = &t
	}
	return d, nil
}

func (s *Service) ListAssessments(ctx context.Context, f AssessmentFilter) ([]Assessment, error) {
	return s.repo.ListAssessments(ctx, f)
}

func (s *Service) GetTask(ctx context.Context, id string) (AuditTask, error) {
	return s.repo.GetTask(ctx, id)
}

func (s *Service) ListTasks(ctx context.Context, f TaskFilter) ([]AuditTask, error) {
	return s.repo.ListTasks(ctx, f)
}

// MyTasks lists the tasks an auditor holds; completed ones only on request.
func (s *Service) MyTasks(ctx context.Context, auditorID string, includeCompleted bool) ([]AuditTask, error) {
	if auditorID == "" {
		return nil, newError(CodeInvalidArgument, "auditor_id is required")
	}
	return s.repo.ListTasks(ctx, TaskFilter{AuditorID: auditorID, OpenOnly: !includeCompleted})
}

// QueueForRole lists unclaimed tasks at every stage the authorizer would let
// role act on.
func (s *Service) QueueForRole(ctx context.Context, role rbac.Role) ([]AuditTask, error) {
	out := make([]AuditTask, 0)
	for _, info := range workflow.Stages() {
		v := s.authorizer.Authorize(authz.Request{Role: role, Decision: workflow.DecisionRecheck, Stage: info.Stage})
		if !v.Allowed {
			continue
		}
		tasks, err := s.repo.ListTasks(ctx, TaskFilter{Stage: info.Stage, Status: TaskPending})
		if err != nil {
			return nil, err
		}
		out = append(out, tasks...)
	}
	return out, nil
}

func (s *Service) OverdueTasks(ctx context.Context) ([]AuditTask, error) {
	now := s.now()
	return s.repo.ListTasks(ctx, TaskFilter{DueBefore: &now})
}

// NotifyOverdue publishes a task.overdue event for each overdue task and
// returns how many were published.
func (s *Service) NotifyOverdue(ctx context.Context) (int, error) {
	tasks, err := s.OverdueTasks(ctx)
	if err != nil {
		return 0, err
	}
	if s.notifier == nil {
		return 0, nil
	}
	sent := 0
	for _, t := range tasks {
		ev := notify.Event{
			ID:           s.newID(),
			Type:         notify.EventTaskOverdue,
			AssessmentID: t.AssessmentID,
			TaskID:       t.ID,
			AuditorID:    t.AuditorID,
			Stage:        string(t.Stage),
			Status:       string(t.Status),
			OccurredAt:   s.now(),
		}
		if err := s.notifier.Notify(ctx, ev); err != nil {
			s.metrics.IncNotifyFailure()
			s.logger.WarnContext(ctx, "overdue notification failed", "task_id", t.ID, "err", err)
			continue
		}
		sent++
	}
	return sent, nil
}

func (s *Service) Stages() []workflow.StageInfo { return workflow.Stages() }

/* ===================== AUDITORS ===================== */

type AuditorInput struct {
	Name  string    `json:"name"`
	Role  rbac.Role `json:"role"`
	Email string    `json:"email,omitempty"`
	Phone string    `json:"phone,omitempty"`
}

type AuditorPatch struct {
	Name  *string    `json:"name,omitempty"`
	Role  *rbac.Role `json:"role,omitempty"`
	Email *string    `json:"email,omitempty"`
	Phone *string    `json:"phone,omitempty"`
}

func validateAuditor(a Auditor) error {
	if strings.TrimSpace(a.Name) == "" {
		return newError(CodeInvalidArgument, "name is required")
	}
	if !rbac.IsAuditorRole(a.Role) {
		return newError(CodeInvalidArgument, "role %q is not an auditor role", a.Role)
	}
	if a.Email != "" && !strings.Contains(a.Email, "@") {
		return newError(CodeInvalidArgument, "email %q is invalid", a.Email)
	}
	return nil
}

func (s *Service) CreateAuditor(ctx context.Context, in AuditorInput) (Auditor, error) {
	now := s.now()
	a := Auditor{
		ID:        s.newID(),
		Name:      strings.TrimSpace(in.Name),
		Role:      in.Role,
		Email:     strings.TrimSpace(in.Email),
		Phone:     strings.TrimSpace(in.Phone),
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := validateAuditor(a); err != nil {
		return Auditor{}, err
	}
	if err := s.repo.InTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.InsertAuditor(ctx, a)
	}); err != nil {
		return Auditor{}, err
	}
	return a, nil
}

func (s *Service) UpdateAuditor(ctx context.Context, id string, p AuditorPatch) (Auditor, error) {
	var out Auditor
	err := s.repo.InTx(ctx, func(ctx context.Context, tx Tx) error {
		a, err := tx.GetAuditor(ctx, id)
		if err != nil {
			return err
		}
		if p.Name != nil {
			a.Name = strings.TrimSpace(*p.Name)
		}
		if p.Role != nil {
			a.Role = *p.Role
		}
		if p.Email != nil {
			a.Email = strings.TrimSpace(*p.Email)
		}
		if p.Phone != nil {
			a.Phone = strings.TrimSpace(*p.Phone)
		}
		if err := validateAuditor(a); err != nil {
			return err
		}
		a.UpdatedAt = s.now()
		out = a
		return tx.UpdateAuditor(ctx, a)
	})
	return out, err
}

// DeactivateAuditor stops an auditor from claiming or completing tasks.
// Tasks they already hold stay IN_PROGRESS until reassigned out of band.
func (s *Service) DeactivateAuditor(ctx context.Context, id string) (Auditor, error) {
	var out Auditor
	err := s.repo.InTx(ctx, func(ctx context.Context, tx Tx) error {
		a, err := tx.GetAuditor(ctx, id)
		if err != nil {
			return err
		}
		a.Active = false
		a.UpdatedAt = s.now()
		out = a
		return tx.UpdateAuditor(ctx, a)
	})
	return out, err
}

func (s *Service) GetAuditor(ctx context.Context, id string) (Auditor, error) {
	return s.repo.GetAuditor(ctx, id)
}

func (s *Service) ListAuditors(ctx context.Context, f AuditorFilter) ([]Auditor, error) {
	return s.repo.ListAuditors(ctx, f)
}
