package audit

import "time"

// Event is an append-only record of a security-relevant action: a denied
// request or a change to the auditor roster. Events are never updated or
// deleted.
type Event struct {
	ID   string    `json:"id" db:"id"`
	Type EventType `json:"type" db:"type"`

	ActorID   string `json:"actor_id" db:"actor_id"`
	ActorRole string `json:"actor_role,omitempty" db:"actor_role"`

	// IPAddress is the client IP as resolved by gin.
	IPAddress string `json:"ip_address,omitempty" db:"ip_address"`

	// Action is the policy action for denials or the admin verb for roster
	// changes.
	Action   string `json:"action" db:"action"`
	TargetID string `json:"target_id,omitempty" db:"target_id"`

	Message string `json:"message,omitempty" db:"message"`

	// Metadata is optional JSON.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeAccessDenied  EventType = "access_denied"
	EventTypeAuditorChange EventType = "auditor_change"
)
