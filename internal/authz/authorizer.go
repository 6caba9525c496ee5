// Package authz decides whether a role may record a decision at a stage.
// It is a pure function of its inputs; callers own the state it reasons about.
package authz

import (
	"log/slog"

	"bank-risk-audit/internal/rbac"
	"bank-risk-audit/internal/workflow"
)

// Reason explains a denial.
type Reason string

const (
	ReasonInsufficientRole   Reason = "INSUFFICIENT_ROLE"
	ReasonWrongStage         Reason = "WRONG_STAGE"
	ReasonTaskAlreadyClaimed Reason = "TASK_ALREADY_CLAIMED"
	ReasonInvalidDecision    Reason = "INVALID_DECISION"
)

type Request struct {
	Role     rbac.Role
	Decision workflow.Decision
	Stage    workflow.Stage

	// RiskLevel selects the audit capability at JUNIOR and the high risk
	// gate at COMMITTEE. Empty is treated as CONSERVATIVE.
	RiskLevel workflow.RiskLevel

	// Actor and TaskOwner are compared only when TaskOwner is set.
	Actor     string
	TaskOwner string
}

type Verdict struct {
	Allowed  bool
	Reason   Reason
	Required []rbac.Capability
}

type Options struct {
	// ExactStage restricts each auditor role to the stage matching its
	// seniority. A more senior role acting on a junior stage is denied with
	// WRONG_STAGE instead of being admitted by rank.
	ExactStage bool

	Logger *slog.Logger
}

type Authorizer struct {
	exactStage bool
	logger     *slog.Logger
}

func New(opts Options) *Authorizer {
	return &Authorizer{exactStage: opts.ExactStage, logger: opts.Logger}
}

// Authorize evaluates a request under the default rank rule.
func Authorize(req Request) Verdict { return (*Authorizer)(nil).Authorize(req) }

func (a *Authorizer) Authorize(req Request) Verdict {
	v := a.evaluate(req)
	if a != nil && a.logger != nil {
		a.logger.Debug("decision authorization",
			"role", req.Role,
			"decision", req.Decision,
			"stage", req.Stage,
			"risk_level", req.RiskLevel,
			"actor", req.Actor,
			"allowed", v.Allowed,
			"reason", v.Reason,
		)
	}
	return v
}

func (a *Authorizer) evaluate(req Request) Verdict {
	if !req.Decision.Valid() {
		return deny(ReasonInvalidDecision, nil)
	}
	if !req.Stage.Valid() {
		return deny(ReasonWrongStage, nil)
	}
	if req.TaskOwner != "" && req.TaskOwner != req.Actor {
		return deny(ReasonTaskAlreadyClaimed, nil)
	}

	required := RequiredCapabilities(req.Decision, req.Stage, req.RiskLevel)
	seniority := rbac.Seniority(req.Role)
	if seniority < req.Stage.Rank() {
		return deny(ReasonInsufficientRole, required)
	}
	if a != nil && a.exactStage && seniority != req.Stage.Rank() {
		return deny(ReasonWrongStage, required)
	}

	caps := rbac.Capabilities(req.Role)
	for _, c := range required {
		if !caps.Has(c) {
			return deny(ReasonInsufficientRole, required)
		}
	}
	return Verdict{Allowed: true, Required: required}
}

func deny(r Reason, required []rbac.Capability) Verdict {
	return Verdict{Allowed: false, Reason: r, Required: required}
}
