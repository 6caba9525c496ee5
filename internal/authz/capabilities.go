package authz

import (
	"bank-risk-audit/internal/rbac"
	"bank-risk-audit/internal/workflow"
)

var auditCapability = map[workflow.RiskLevel]rbac.Capability{
	workflow.RiskConservative: rbac.CapAuditConservative,
	workflow.RiskModerate:     rbac.CapAuditModerate,
	workflow.RiskAggressive:   rbac.CapAuditAggressive,
}

// StageCapability maps a stage to the capability needed to act on it.
func StageCapability(stage workflow.Stage, level workflow.RiskLevel) (rbac.Capability, bool) {
	switch stage {
	case workflow.StageJunior:
		if c, ok := auditCapability[level]; ok {
			return c, true
		}
		return rbac.CapAuditConservative, true
	case workflow.StageMid:
		return rbac.CapReviewJunior, true
	case workflow.StageSenior:
		return rbac.CapReviewMid, true
	case workflow.StageCommittee:
		return rbac.CapReviewSenior, true
	}
	return "", false
}

// RequiredCapabilities lists every capability needed to record d at stage.
func RequiredCapabilities(d workflow.Decision, stage workflow.Stage, level workflow.RiskLevel) []rbac.Capability {
	c, ok := StageCapability(stage, level)
	if !ok {
		return nil
	}
	out := []rbac.Capability{c}
	if stage == workflow.StageCommittee && d == workflow.DecisionApprove {
		out = append(out, rbac.CapDecisionFinal)
		if level == workflow.RiskAggressive {
			out = append(out, rbac.CapApproveHighRisk)
		}
	}
	return out
}

// HomeStage is the stage whose rank equals the role's seniority.
func HomeStage(r rbac.Role) (workflow.Stage, bool) {
	for _, info := range workflow.Stages() {
		if info.Rank == rbac.Seniority(r) {
			return info.Stage, true
		}
	}
	return "", false
}

// StageRole is the auditor role whose seniority equals the stage's rank.
func StageRole(stage workflow.Stage) (rbac.Role, bool) {
	for _, r := range rbac.AuditorRoles() {
		if rbac.Seniority(r) == stage.Rank() {
			return r, true
		}
	}
	return "", false
}
