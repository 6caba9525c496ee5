package rbac

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"bank-risk-audit/internal/auth"

	"github.com/cedar-policy/cedar-go"
	"github.com/gin-gonic/gin"
)

//go:embed policies.cedar
var policiesContent []byte

// Action names a route-level operation evaluated by the access policy.
type Action string

const (
	ActionAssessmentSubmit   Action = "assessment:submit"
	ActionAssessmentRead     Action = "assessment:read"
	ActionAssessmentResubmit Action = "assessment:resubmit"
	ActionTaskRead           Action = "task:read"
	ActionTaskClaim          Action = "task:claim"
	ActionTaskComplete       Action = "task:complete"
	ActionWorkflowAdvance    Action = "workflow:advance"
	ActionStatsRead          Action = "stats:read"
	ActionAuditorRead        Action = "auditor:read"
	ActionAuditorManage      Action = "auditor:manage"
)

// DenyHook observes access denials. It must not block.
type DenyHook func(ctx context.Context, s auth.Session, action Action, reason string)

// PolicyConfig contains options for the access Policy.
type PolicyConfig struct {
	// Logger for decision logging. If nil, uses slog.Default().
	Logger *slog.Logger

	// PolicyBytes overrides the embedded policies.cedar (tests).
	PolicyBytes []byte

	OnDeny DenyHook
}

// Policy evaluates route-level access with Cedar.
type Policy struct {
	policies *cedar.PolicySet
	logger   *slog.Logger
	onDeny   DenyHook
}

func NewPolicy(cfg PolicyConfig) (*Policy, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	data := cfg.PolicyBytes
	if data == nil {
		data = policiesContent
	}
	ps, err := cedar.NewPolicySetFromBytes("policies.cedar", data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse policies: %w", err)
	}
	return &Policy{policies: ps, logger: logger, onDeny: cfg.OnDeny}, nil
}

type AccessDecision struct {
	Allowed  bool
	Reason   string
	PolicyID string
	Duration time.Duration
}

// Allow evaluates whether a principal holding role may perform action.
func (p *Policy) Allow(principalID string, role Role, action Action) AccessDecision {
	start := time.Now()

	principalUID := cedar.NewEntityUID("Principal", cedar.String(principalID))
	entities := cedar.EntityMap{
		principalUID: cedar.Entity{
			UID:     principalUID,
			Parents: cedar.NewEntityUIDSet(),
			Attributes: cedar.NewRecord(cedar.RecordMap{
				"role":      cedar.String(string(role)),
				"auditor":   cedar.Boolean(IsAuditorRole(role)),
				"seniority": cedar.Long(Seniority(role)),
			}),
		},
	}
	req := cedar.Request{
		Principal: principalUID,
		Action:    cedar.NewEntityUID("Action", cedar.String(string(action))),
		Resource:  cedar.NewEntityUID("Api", cedar.String("v1")),
		Context:   cedar.NewRecord(cedar.RecordMap{}),
	}

	decision, diag := cedar.Authorize(p.policies, entities, req)

	out := AccessDecision{Allowed: decision == cedar.Allow, Duration: time.Since(start)}
	if len(diag.Reasons) > 0 {
		out.PolicyID = string(diag.Reasons[0].PolicyID)
	}
	switch {
	case out.Allowed:
		out.Reason = "access permitted"
	case out.PolicyID != "":
		out.Reason = fmt.Sprintf("denied by policy %s", out.PolicyID)
	default:
		out.Reason = "access denied - no matching permit policy"
	}

	p.logger.Debug("access decision",
		"principal", principalID,
		"role", role,
		"action", action,
		"decision", out.Allowed,
		"reason", out.Reason,
		"policy_id", out.PolicyID,
		"duration_us", out.Duration.Microseconds(),
	)
	for _, e := range diag.Errors {
		p.logger.Error("policy evaluation error", "policy", e.PolicyID, "error", e.Message)
	}
	return out
}

// RequireAction gates a route on the access policy. It must run after
// auth.RequireAccessToken.
func RequireAction(p *Policy, action Action) gin.HandlerFunc {
	return func(c *gin.Context) {
		s, role, err := SessionRole(c.Request.Context())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "role required"})
			return
		}
		d := p.Allow(s.UserID, role, action)
		if !d.Allowed {
			if p.onDeny != nil {
				p.onDeny(c.Request.Context(), s, action, d.Reason)
			}
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden", "code": "INSUFFICIENT_ROLE"})
			return
		}
		c.Next()
	}
}
