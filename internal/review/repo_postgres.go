package review

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"bank-risk-audit/internal/rbac"
	"bank-risk-audit/internal/workflow"
	"bank-risk-audit/pkg/utils"
)

//go:embed schema.sql
var schemaSQL string

// PostgresRepo stores the workflow in Postgres through database/sql (pgx
// stdlib driver). Inside InTx, GetAssessment and GetTask take row locks so
// concurrent completions of one assessment serialize.
type PostgresRepo struct {
	db *sql.DB
	pgQueries
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db, pgQueries: pgQueries{q: db}}
}

// EnsureSchema creates tables and indexes if they do not exist.
func (r *PostgresRepo) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("review: ensure schema: %w", err)
	}
	return nil
}

func (r *PostgresRepo) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return utils.WithTx(ctx, r.db, &sql.TxOptions{Isolation: sql.LevelReadCommitted}, func(ctx context.Context, tx *sql.Tx) error {
		return fn(ctx, &pgTx{pgQueries{q: tx, lock: true}})
	})
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type pgQueries struct {
	q    querier
	lock bool
}

type pgTx struct {
	pgQueries
}

func (p pgQueries) forUpdate() string {
	if p.lock {
		return "\nFOR UPDATE"
	}
	return ""
}

// where accumulates conditions with positional placeholders.
type where struct {
	conds []string
	args  []any
}

func (w *where) add(cond string, arg any) {
	w.args = append(w.args, arg)
	w.conds = append(w.conds, strings.ReplaceAll(cond, "?", fmt.Sprintf("$%d", len(w.args))))
}

func (w *where) addRaw(cond string) { w.conds = append(w.conds, cond) }

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return "\nWHERE " + strings.Join(w.conds, " AND ")
}

func limitClause(n int) string {
	if n <= 0 {
		return ""
	}
	return fmt.Sprintf("\nLIMIT %d", n)
}

/* ===================== ASSESSMENTS ===================== */

const assessmentColumns = `id, customer_id, investment_amount, risk_score, risk_level, status, current_stage, answers, previous_assessment_id, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAssessment(row rowScanner) (Assessment, error) {
	var (
		a        Assessment
		stage    sql.NullString
		answers  []byte
		previous sql.NullString
	)
	if err := row.Scan(
		&a.ID,
		&a.CustomerID,
		&a.InvestmentAmount,
		&a.RiskScore,
		&a.RiskLevel,
		&a.Status,
		&stage,
		&answers,
		&previous,
		&a.CreatedAt,
		&a.UpdatedAt,
	); err != nil {
		return Assessment{}, err
	}
	a.CurrentStage = workflow.Stage(stage.String)
	a.PreviousAssessmentID = previous.String
	if len(answers) > 0 {
		if err := json.Unmarshal(answers, &a.Answers); err != nil {
			return Assessment{}, integrity(err, "assessment %s answers are not valid json", a.ID)
		}
	}
	return a, nil
}

func (p pgQueries) GetAssessment(ctx context.Context, id string) (Assessment, error) {
	q := `SELECT ` + assessmentColumns + `
FROM assessments
WHERE id = $1` + p.forUpdate()
	a, err := scanAssessment(p.q.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Assessment{}, notFound("assessment", id)
		}
		return Assessment{}, err
	}
	return a, nil
}

func (p pgQueries) ListAssessments(ctx context.Context, f AssessmentFilter) ([]Assessment, error) {
	var w where
	if f.CustomerID != "" {
		w.add("customer_id = ?", f.CustomerID)
	}
	if f.Status != "" {
		w.add("status = ?", string(f.Status))
	}
	if f.Stage != "" {
		w.add("current_stage = ?", string(f.Stage))
	}
	if f.RiskLevel != "" {
		w.add("risk_level = ?", string(f.RiskLevel))
	}
	q := `SELECT ` + assessmentColumns + `
FROM assessments` + w.String() + `
ORDER BY created_at DESC, id` + limitClause(f.Limit)

	rows, err := p.q.QueryContext(ctx, q, w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Assessment, 0)
	for rows.Next() {
		a, err := scanAssessment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (p pgQueries) InsertAssessment(ctx context.Context, a Assessment) error {
	answers, err := encodeAnswers(a.Answers)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO assessments (id, customer_id, investment_amount, risk_score, risk_level, status, current_stage, answers, previous_assessment_id, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb, $9, $10, $11)
`
	_, err = p.q.ExecContext(ctx, q,
		a.ID,
		a.CustomerID,
		a.InvestmentAmount,
		a.RiskScore,
		string(a.RiskLevel),
		string(a.Status),
		nullString(string(a.CurrentStage)),
		answers,
		nullString(a.PreviousAssessmentID),
		a.CreatedAt,
		a.UpdatedAt,
	)
	return err
}

func (p pgQueries) UpdateAssessment(ctx context.Context, a Assessment) error {
	answers, err := encodeAnswers(a.Answers)
	if err != nil {
		return err
	}
	const q = `
UPDATE assessments
SET investment_amount = $2, risk_score = $3, risk_level = $4, status = $5, current_stage = $6, answers = $7::jsonb, updated_at = $8
WHERE id = $1
`
	res, err := p.q.ExecContext(ctx, q,
		a.ID,
		a.InvestmentAmount,
		a.RiskScore,
		string(a.RiskLevel),
		string(a.Status),
		nullString(string(a.CurrentStage)),
		answers,
		a.UpdatedAt,
	)
	if utils.IsCheckViolation(err) {
		return integrity(err, "assessment %s: %s without a consistent stage", a.ID, a.Status)
	}
	if err != nil {
		return err
	}
	return expectOne(res, "assessment", a.ID)
}

func encodeAnswers(m map[string]string) (string, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("review: encode answers: %w", err)
	}
	return string(b), nil
}

/* ===================== TASKS ===================== */

const taskColumns = `id, assessment_id, auditor_id, stage, status, priority, deadline, claimed_at, completed_at, created_at, updated_at`

func scanTask(row rowScanner) (AuditTask, error) {
	var (
		t                              AuditTask
		auditor                        sql.NullString
		deadline, claimed, completedAt sql.NullTime
	)
	if err := row.Scan(
		&t.ID,
		&t.AssessmentID,
		&auditor,
		&t.Stage,
		&t.Status,
		&t.Priority,
		&deadline,
		&claimed,
		&completedAt,
		&t.CreatedAt,
		&t.UpdatedAt,
	); err != nil {
		return AuditTask{}, err
	}
	t.AuditorID = auditor.String
	t.Deadline = timePtr(deadline)
	t.ClaimedAt = timePtr(claimed)
	t.CompletedAt = timePtr(completedAt)
	return t, nil
}

func (p pgQueries) GetTask(ctx context.Context, id string) (AuditTask, error) {
	q := `SELECT ` + taskColumns + `
FROM audit_tasks
WHERE id = $1` + p.forUpdate()
	t, err := scanTask(p.q.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return AuditTask{}, notFound("task", id)
		}
		return AuditTask{}, err
	}
	return t, nil
}

func (p pgQueries) ListTasks(ctx context.Context, f TaskFilter) ([]AuditTask, error) {
	var w where
	if f.AssessmentID != "" {
		w.add("assessment_id = ?", f.AssessmentID)
	}
	if f.AuditorID != "" {
		w.add("auditor_id = ?", f.AuditorID)
	}
	if f.Stage != "" {
		w.add("stage = ?", string(f.Stage))
	}
	if f.Status != "" {
		w.add("status = ?", string(f.Status))
	}
	if f.OpenOnly || f.DueBefore != nil {
		w.addRaw("status <> 'COMPLETED'")
	}
	if f.DueBefore != nil {
		w.add("deadline < ?", *f.DueBefore)
	}
	q := `SELECT ` + taskColumns + `
FROM audit_tasks` + w.String() + `
ORDER BY created_at, id` + limitClause(f.Limit)

	rows, err := p.q.QueryContext(ctx, q, w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]AuditTask, 0)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (p pgQueries) InsertTask(ctx context.Context, t AuditTask) error {
	const q = `
INSERT INTO audit_tasks (id, assessment_id, auditor_id, stage, status, priority, deadline, claimed_at, completed_at, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
`
	_, err := p.q.ExecContext(ctx, q,
		t.ID,
		t.AssessmentID,
		nullString(t.AuditorID),
		string(t.Stage),
		string(t.Status),
		string(t.Priority),
		nullTime(t.Deadline),
		nullTime(t.ClaimedAt),
		nullTime(t.CompletedAt),
		t.CreatedAt,
		t.UpdatedAt,
	)
	if utils.IsUniqueViolation(err, "audit_tasks_one_open_idx") {
		return integrity(err, "assessment %s already has an open task at %s", t.AssessmentID, t.Stage)
	}
	return err
}

// ClaimTask is a compare-and-set on status; the row lock taken by UPDATE
// makes a concurrent claimer wait and then match zero rows.
func (p pgQueries) ClaimTask(ctx context.Context, taskID, auditorID string, now time.Time) (AuditTask, bool, error) {
	q := `
UPDATE audit_tasks
SET status = 'IN_PROGRESS', auditor_id = $2, claimed_at = $3, updated_at = $3
WHERE id = $1 AND status = 'PENDING'
RETURNING ` + taskColumns
	t, err := scanTask(p.q.QueryRowContext(ctx, q, taskID, auditorID, now))
	if err == nil {
		return t, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return AuditTask{}, false, err
	}
	current, err := p.GetTask(ctx, taskID)
	if err != nil {
		return AuditTask{}, false, err
	}
	return current, false, nil
}

func (p pgQueries) UpdateTask(ctx context.Context, t AuditTask) error {
	const q = `
UPDATE audit_tasks
SET auditor_id = $2, status = $3, priority = $4, deadline = $5, claimed_at = $6, completed_at = $7, updated_at = $8
WHERE id = $1
`
	res, err := p.q.ExecContext(ctx, q,
		t.ID,
		nullString(t.AuditorID),
		string(t.Status),
		string(t.Priority),
		nullTime(t.Deadline),
		nullTime(t.ClaimedAt),
		nullTime(t.CompletedAt),
		t.UpdatedAt,
	)
	if err != nil {
		return err
	}
	return expectOne(res, "task", t.ID)
}

/* ===================== HISTORY ===================== */

func (p pgQueries) History(ctx context.Context, assessmentID string) ([]HistoryEntry, error) {
	const q = `
SELECT id, assessment_id, task_id, stage, auditor_id, auditor_name, decision, comments, result_status, created_at
FROM workflow_history
WHERE assessment_id = $1
ORDER BY seq
`
	rows, err := p.q.QueryContext(ctx, q, assessmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]HistoryEntry, 0)
	for rows.Next() {
		var (
			h        HistoryEntry
			comments sql.NullString
		)
		if err := rows.Scan(
			&h.ID,
			&h.AssessmentID,
			&h.TaskID,
			&h.Stage,
			&h.AuditorID,
			&h.AuditorName,
			&h.Decision,
			&comments,
			&h.ResultStatus,
			&h.CreatedAt,
		); err != nil {
			return nil, err
		}
		h.Comments = comments.String
		out = append(out, h)
	}
	return out, rows.Err()
}

func (p pgQueries) AppendHistory(ctx context.Context, h HistoryEntry) error {
	const q = `
INSERT INTO workflow_history (id, assessment_id, task_id, stage, auditor_id, auditor_name, decision, comments, result_status, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
`
	_, err := p.q.ExecContext(ctx, q,
		h.ID,
		h.AssessmentID,
		h.TaskID,
		string(h.Stage),
		h.AuditorID,
		h.AuditorName,
		string(h.Decision),
		nullString(h.Comments),
		string(h.ResultStatus),
		h.CreatedAt,
	)
	return err
}

/* ===================== AUDITORS ===================== */

const auditorColumns = `id, name, role, email, phone, active, created_at, updated_at`

func scanAuditor(row rowScanner) (Auditor, error) {
	var (
		a            Auditor
		role         string
		email, phone sql.NullString
	)
	if err := row.Scan(&a.ID, &a.Name, &role, &email, &phone, &a.Active, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return Auditor{}, err
	}
	a.Role = rbac.Role(role)
	a.Email = email.String
	a.Phone = phone.String
	return a, nil
}

func (p pgQueries) GetAuditor(ctx context.Context, id string) (Auditor, error) {
	const q = `SELECT ` + auditorColumns + `
FROM auditors
WHERE id = $1`
	a, err := scanAuditor(p.q.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Auditor{}, notFound("auditor", id)
		}
		return Auditor{}, err
	}
	return a, nil
}

func (p pgQueries) ListAuditors(ctx context.Context, f AuditorFilter) ([]Auditor, error) {
	var w where
	if f.Role != "" {
		w.add("role = ?", string(f.Role))
	}
	if f.ActiveOnly {
		w.addRaw("active")
	}
	q := `SELECT ` + auditorColumns + `
FROM auditors` + w.String() + `
ORDER BY id`

	rows, err := p.q.QueryContext(ctx, q, w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Auditor, 0)
	for rows.Next() {
		a, err := scanAuditor(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (p pgQueries) InsertAuditor(ctx context.Context, a Auditor) error {
	const q = `
INSERT INTO auditors (id, name, role, email, phone, active, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`
	_, err := p.q.ExecContext(ctx, q, a.ID, a.Name, string(a.Role), nullString(a.Email), nullString(a.Phone), a.Active, a.CreatedAt, a.UpdatedAt)
	return err
}

func (p pgQueries) UpdateAuditor(ctx context.Context, a Auditor) error {
	const q = `
UPDATE auditors
SET name = $2, role = $3, email = $4, phone = $5, active = $6, updated_at = $7
WHERE id = $1
`
	res, err := p.q.ExecContext(ctx, q, a.ID, a.Name, string(a.Role), nullString(a.Email), nullString(a.Phone), a.Active, a.UpdatedAt)
	if err != nil {
		return err
	}
	return expectOne(res, "auditor", a.ID)
}

/* ===================== HELPERS ===================== */

func expectOne(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound(kind, id)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
