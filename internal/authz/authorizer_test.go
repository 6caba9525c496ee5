package authz

import (
	"testing"

	"bank-risk-audit/internal/rbac"
	"bank-risk-audit/internal/workflow"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var decisions = []workflow.Decision{
	workflow.DecisionApprove, workflow.DecisionRecheck, workflow.DecisionReject, workflow.DecisionReturn,
}

var stages = []workflow.Stage{
	workflow.StageJunior, workflow.StageMid, workflow.StageSenior, workflow.StageCommittee,
}

func TestAuthorize_AllowedIffRankAndCapability(t *testing.T) {
	for _, role := range append(rbac.AllRoles(), rbac.Role("UNKNOWN")) {
		for _, stage := range stages {
			for _, d := range decisions {
				stageCap, ok := StageCapability(stage, "")
				require.True(t, ok)

				want := rbac.Seniority(role) >= stage.Rank() && rbac.HasCapability(role, stageCap)
				if stage == workflow.StageCommittee && d == workflow.DecisionApprove {
					want = want && rbac.HasCapability(role, rbac.CapDecisionFinal)
				}

				v := Authorize(Request{Role: role, Decision: d, Stage: stage})
				assert.Equal(t, want, v.Allowed, "role=%s stage=%s decision=%s", role, stage, d)
				if !v.Allowed {
					assert.Equal(t, ReasonInsufficientRole, v.Reason)
				}
			}
		}
	}
}

func TestAuthorize_JuniorCannotActAboveItsStage(t *testing.T) {
	v := Authorize(Request{Role: rbac.RoleAuditorJunior, Decision: workflow.DecisionApprove, Stage: workflow.StageSenior})
	require.False(t, v.Allowed)
	assert.Equal(t, ReasonInsufficientRole, v.Reason)
}

func TestAuthorize_ExactStageLanes(t *testing.T) {
	a := New(Options{ExactStage: true})

	v := a.Authorize(Request{Role: rbac.RoleAuditorMid, Decision: workflow.DecisionApprove, Stage: workflow.StageJunior})
	require.False(t, v.Allowed)
	assert.Equal(t, ReasonWrongStage, v.Reason)

	v = a.Authorize(Request{Role: rbac.RoleAuditorMid, Decision: workflow.DecisionApprove, Stage: workflow.StageMid})
	assert.True(t, v.Allowed)

	// rank failure is still reported as a role problem
	v = a.Authorize(Request{Role: rbac.RoleAuditorJunior, Decision: workflow.DecisionApprove, Stage: workflow.StageMid})
	assert.Equal(t, ReasonInsufficientRole, v.Reason)
}

func TestAuthorize_CommitteeApprovalGates(t *testing.T) {
	v := Authorize(Request{
		Role:      rbac.RoleInvestCommittee,
		Decision:  workflow.DecisionApprove,
		Stage:     workflow.StageCommittee,
		RiskLevel: workflow.RiskAggressive,
	})
	require.True(t, v.Allowed)
	assert.ElementsMatch(t, []rbac.Capability{rbac.CapReviewSenior, rbac.CapDecisionFinal, rbac.CapApproveHighRisk}, v.Required)

	v = Authorize(Request{Role: rbac.RoleAuditorSenior, Decision: workflow.DecisionReject, Stage: workflow.StageCommittee})
	assert.False(t, v.Allowed)
}

func TestAuthorize_JuniorAuditCapabilityFollowsRiskLevel(t *testing.T) {
	for _, level := range []workflow.RiskLevel{workflow.RiskConservative, workflow.RiskModerate, workflow.RiskAggressive} {
		c, _ := StageCapability(workflow.StageJunior, level)
		assert.Equal(t, auditCapability[level], c)
		v := Authorize(Request{Role: rbac.RoleAuditorJunior, Decision: workflow.DecisionApprove, Stage: workflow.StageJunior, RiskLevel: level})
		assert.True(t, v.Allowed, level)
	}
}

func TestAuthorize_OwnerMismatch(t *testing.T) {
	v := Authorize(Request{
		Role:      rbac.RoleInvestCommittee,
		Decision:  workflow.DecisionApprove,
		Stage:     workflow.StageCommittee,
		Actor:     "a-2",
		TaskOwner: "a-1",
	})
	require.False(t, v.Allowed)
	assert.Equal(t, ReasonTaskAlreadyClaimed, v.Reason)
}

func TestAuthorize_InvalidDecision(t *testing.T) {
	v := Authorize(Request{Role: rbac.RoleInvestCommittee, Decision: "ESCALATE", Stage: workflow.StageCommittee})
	require.False(t, v.Allowed)
	assert.Equal(t, ReasonInvalidDecision, v.Reason)
}

func TestHomeStageAndStageRole(t *testing.T) {
	for _, r := range rbac.AuditorRoles() {
		s, ok := HomeStage(r)
		require.True(t, ok)
		back, ok := StageRole(s)
		require.True(t, ok)
		assert.Equal(t, r, back)
	}
	_, ok := HomeStage(rbac.RoleUser)
	assert.False(t, ok)
}
