package rbac

import (
	"fmt"
	"sort"
)

// Role is the closed set of principal roles. Keep these stable; they are
// part of the token and API contracts.
type Role string

const (
	RoleUser            Role = "USER"
	RoleAuditorJunior   Role = "AUDITOR_JUNIOR"
	RoleAuditorMid      Role = "AUDITOR_MID"
	RoleAuditorSenior   Role = "AUDITOR_SENIOR"
	RoleInvestCommittee Role = "INVEST_COMMITTEE"
	RoleAdmin           Role = "ADMIN"
)

// Capability is a named permission granted to a role.
type Capability string

const (
	CapReadOwn           Capability = "read:own"
	CapWriteOwn          Capability = "write:own"
	CapReadPublic        Capability = "read:public"
	CapAuditConservative Capability = "audit:conservative"
	CapAuditModerate     Capability = "audit:moderate"
	CapAuditAggressive   Capability = "audit:aggressive"
	CapReviewCustomer    Capability = "review:customer_info"
	CapWriteComments     Capability = "write:comments"
	CapAnalysisRisk      Capability = "analysis:risk"
	CapOptimizePortfolio Capability = "optimize:portfolio"
	CapReviewJunior      Capability = "review:junior"
	CapReviewMid         Capability = "review:mid"
	CapAnalysisDeep      Capability = "analysis:deep"
	CapStressTest        Capability = "test:stress"
	CapComplianceCheck   Capability = "compliance:check"
	CapReviewSenior      Capability = "review:senior"
	CapDecisionFinal     Capability = "decision:final"
	CapApproveHighRisk   Capability = "approve:high_risk"
	CapCommitteeVote     Capability = "committee:vote"
	CapManageAuditors    Capability = "manage:auditors"
	CapReadStats         Capability = "read:stats"
)

// CapabilitySet is an immutable view over a role's capabilities.
type CapabilitySet map[Capability]struct{}

func (s CapabilitySet) Has(c Capability) bool {
	_, ok := s[c]
	return ok
}

// Sorted returns the capabilities in lexical order.
func (s CapabilitySet) Sorted() []Capability {
	out := make([]Capability, 0, len(s))
	for c := range s {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

type roleEntry struct {
	seniority int // 0 for non-auditor roles
	grants    []Capability
	inherits  Role
}

// table is the single source of truth for role semantics. Auditor roles
// inherit from the next junior role so the capability sets nest strictly.
var table = map[Role]roleEntry{
	RoleUser: {
		grants: []Capability{CapReadOwn, CapWriteOwn, CapReadPublic},
	},
	RoleAuditorJunior: {
		seniority: 1,
		inherits:  RoleUser,
		grants: []Capability{
			CapAuditConservative, CapAuditModerate, CapAuditAggressive,
			CapReviewCustomer, CapWriteComments,
		},
	},
	RoleAuditorMid: {
		seniority: 2,
		inherits:  RoleAuditorJunior,
		grants:    []Capability{CapAnalysisRisk, CapOptimizePortfolio, CapReviewJunior},
	},
	RoleAuditorSenior: {
		seniority: 3,
		inherits:  RoleAuditorMid,
		grants:    []Capability{CapReviewMid, CapAnalysisDeep, CapStressTest, CapComplianceCheck},
	},
	RoleInvestCommittee: {
		seniority: 4,
		inherits:  RoleAuditorSenior,
		grants:    []Capability{CapReviewSenior, CapDecisionFinal, CapApproveHighRisk, CapCommitteeVote},
	},
	RoleAdmin: {
		grants: []Capability{CapReadPublic, CapManageAuditors, CapReadStats},
	},
}

var resolved = resolveAll()

func resolveAll() map[Role]CapabilitySet {
	out := make(map[Role]CapabilitySet, len(table))
	var resolve func(r Role) CapabilitySet
	resolve = func(r Role) CapabilitySet {
		if s, ok := out[r]; ok {
			return s
		}
		e := table[r]
		s := CapabilitySet{}
		if e.inherits != "" {
			for c := range resolve(e.inherits) {
				s[c] = struct{}{}
			}
		}
		for _, c := range e.grants {
			s[c] = struct{}{}
		}
		out[r] = s
		return s
	}
	for r := range table {
		resolve(r)
	}
	return out
}

// Capabilities returns the fixed capability set of role. Unknown roles yield
// an empty set. Callers must not mutate the result.
func Capabilities(r Role) CapabilitySet {
	if s, ok := resolved[r]; ok {
		return s
	}
	return CapabilitySet{}
}

func HasCapability(r Role, c Capability) bool { return Capabilities(r).Has(c) }

// Seniority ranks auditor roles JUNIOR=1 through INVEST_COMMITTEE=4.
// Every other role ranks 0.
func Seniority(r Role) int { return table[r].seniority }

// IsAuditorRole is derived from the table: a role is an auditor role iff it
// carries a seniority rank.
func IsAuditorRole(r Role) bool { return Seniority(r) > 0 }

func (r Role) Valid() bool {
	_, ok := table[r]
	return ok
}

// AuditorRoles lists auditor roles ordered by seniority.
func AuditorRoles() []Role {
	return []Role{RoleAuditorJunior, RoleAuditorMid, RoleAuditorSenior, RoleInvestCommittee}
}

// AllRoles lists every known role.
func AllRoles() []Role {
	return []Role{RoleUser, RoleAuditorJunior, RoleAuditorMid, RoleAuditorSenior, RoleInvestCommittee, RoleAdmin}
}

func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("rbac: unknown role %q", s)
	}
	return r, nil
}
