package review

import (
	"context"
	"time"
)

// Reader is the query side of the store. Reads are not linearizable with
// concurrent writes.
type Reader interface {
	GetAssessment(ctx context.Context, id string) (Assessment, error)
	ListAssessments(ctx context.Context, f AssessmentFilter) ([]Assessment, error)
	GetTask(ctx context.Context, id string) (AuditTask, error)
	ListTasks(ctx context.Context, f TaskFilter) ([]AuditTask, error)
	// History returns entries in the order they were appended.
	History(ctx context.Context, assessmentID string) ([]HistoryEntry, error)
	GetAuditor(ctx context.Context, id string) (Auditor, error)
	ListAuditors(ctx context.Context, f AuditorFilter) ([]Auditor, error)
}

// Tx is a unit of work. Reads through a Tx observe its own writes; in the
// Postgres store GetAssessment and GetTask also lock the row.
type Tx interface {
	Reader

	InsertAssessment(ctx context.Context, a Assessment) error
	UpdateAssessment(ctx context.Context, a Assessment) error

	InsertTask(ctx context.Context, t AuditTask) error
	// ClaimTask moves a task from PENDING to IN_PROGRESS for auditorID.
	// It reports false, without error, when the task was not PENDING.
	ClaimTask(ctx context.Context, taskID, auditorID string, now time.Time) (AuditTask, bool, error)
	UpdateTask(ctx context.Context, t AuditTask) error

	AppendHistory(ctx context.Context, h HistoryEntry) error

	InsertAuditor(ctx context.Context, a Auditor) error
	UpdateAuditor(ctx context.Context, a Auditor) error
}

// Repository is the persistence contract of the session store. InTx either
// applies everything fn wrote or nothing.
type Repository interface {
	Reader
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
