// Package notify publishes workflow events to outside collaborators.
// Delivery is fire-and-forget: a failed publish is logged and counted but
// never affects the transition that produced it.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type EventType string

const (
	EventAssessmentApproved EventType = "assessment.approved"
	EventAssessmentRejected EventType = "assessment.rejected"
	EventAssessmentReturned EventType = "assessment.returned"
	EventTaskOverdue        EventType = "task.overdue"
)

type Event struct {
	ID           string    `json:"id"`
	Type         EventType `json:"type"`
	AssessmentID string    `json:"assessment_id"`
	CustomerID   string    `json:"customer_id,omitempty"`
	TaskID       string    `json:"task_id,omitempty"`
	AuditorID    string    `json:"auditor_id,omitempty"`
	Stage        string    `json:"stage,omitempty"`
	Status       string    `json:"status,omitempty"`
	Comments     string    `json:"comments,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

type Notifier interface {
	Notify(ctx context.Context, e Event) error
}

// LogNotifier writes events to the structured log. Used when no broker is
// configured.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) Notify(ctx context.Context, e Event) error {
	l := n.Logger
	if l == nil {
		l = slog.Default()
	}
	l.InfoContext(ctx, "notification",
		"event_id", e.ID,
		"type", e.Type,
		"assessment_id", e.AssessmentID,
		"customer_id", e.CustomerID,
		"task_id", e.TaskID,
		"stage", e.Stage,
		"status", e.Status,
	)
	return nil
}

// MemoryNotifier records events for tests. Err, when set, is returned from
// every Notify call after the event is recorded.
type MemoryNotifier struct {
	mu     sync.Mutex
	events []Event
	Err    error
}

func NewMemoryNotifier() *MemoryNotifier { return &MemoryNotifier{} }

func (n *MemoryNotifier) Notify(_ context.Context, e Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
	return n.Err
}

func (n *MemoryNotifier) Events() []Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Event, len(n.events))
	copy(out, n.events)
	return out
}
