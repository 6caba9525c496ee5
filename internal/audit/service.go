package audit

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events. It is
// append-only; there is no update or delete.
type Repository interface {
	Append(ctx context.Context, e Event) error
	List(ctx context.Context, f Filter) ([]Event, error)
}

type Filter struct {
	Type    EventType
	ActorID string
	Limit   int
}

// Service records security-relevant activity. Callers treat it as
// best-effort: a failed append is logged by the caller and never fails the
// request that produced it.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.Type == "" || e.ActorID == "" || e.Action == "" {
		return ErrInvalidEvent
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	if e.IPAddress == "" {
		e.IPAddress = ClientIP(ctx)
	}
	return s.repo.Append(ctx, e)
}

// LogAccessDenied records a request refused by the access policy.
func (s *Service) LogAccessDenied(ctx context.Context, actorID, actorRole, action, reason string) error {
	return s.Append(ctx, Event{
		Type:      EventTypeAccessDenied,
		ActorID:   actorID,
		ActorRole: actorRole,
		Action:    action,
		Message:   reason,
	})
}

// LogAuditorChange records an admin creating, editing or deactivating an
// auditor.
func (s *Service) LogAuditorChange(ctx context.Context, actorID, actorRole, verb, auditorID, metadata string) error {
	return s.Append(ctx, Event{
		Type:      EventTypeAuditorChange,
		ActorID:   actorID,
		ActorRole: actorRole,
		Action:    verb,
		TargetID:  auditorID,
		Message:   "auditor " + verb,
		Metadata:  metadata,
	})
}

// List returns events newest first.
func (s *Service) List(ctx context.Context, f Filter) ([]Event, error) {
	if s.repo == nil {
		return nil, errors.New("audit: repository not configured")
	}
	return s.repo.List(ctx, f)
}

type ipKey struct{}

// ClientIP returns the address stored by Middleware, or "".
func ClientIP(ctx context.Context) string {
	ip, _ := ctx.Value(ipKey{}).(string)
	return ip
}

// Middleware stores the resolved client IP in the request context so events
// appended further down the chain carry it.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := context.WithValue(c.Request.Context(), ipKey{}, c.ClientIP())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
