package rbac

import "testing"

func TestCapabilitiesNestBySeniority(t *testing.T) {
	roles := AuditorRoles()
	for i := 1; i < len(roles); i++ {
		junior, senior := Capabilities(roles[i-1]), Capabilities(roles[i])
		for c := range junior {
			if !senior.Has(c) {
				t.Fatalf("%s should hold %s like %s does", roles[i], c, roles[i-1])
			}
		}
		if len(senior) <= len(junior) {
			t.Fatalf("%s should hold strictly more capabilities than %s", roles[i], roles[i-1])
		}
	}
}

func TestCommitteeExclusiveCapabilities(t *testing.T) {
	for _, c := range []Capability{CapDecisionFinal, CapApproveHighRisk} {
		for _, r := range AllRoles() {
			has := HasCapability(r, c)
			if r == RoleInvestCommittee && !has {
				t.Fatalf("committee must hold %s", c)
			}
			if r != RoleInvestCommittee && has {
				t.Fatalf("%s must not hold %s", r, c)
			}
		}
	}
}

func TestUnknownRoleHasNoCapabilities(t *testing.T) {
	if n := len(Capabilities(Role("AUDITOR_INTERN"))); n != 0 {
		t.Fatalf("expected empty set, got %d", n)
	}
	if IsAuditorRole(Role("AUDITOR_INTERN")) {
		t.Fatalf("prefix must not make a role an auditor")
	}
}

func TestIsAuditorRole(t *testing.T) {
	cases := map[Role]bool{
		RoleUser:            false,
		RoleAdmin:           false,
		RoleAuditorJunior:   true,
		RoleAuditorMid:      true,
		RoleAuditorSenior:   true,
		RoleInvestCommittee: true,
	}
	for r, want := range cases {
		if got := IsAuditorRole(r); got != want {
			t.Fatalf("IsAuditorRole(%s)=%v want %v", r, got, want)
		}
	}
}

func TestParseRole(t *testing.T) {
	if r, err := ParseRole("AUDITOR_MID"); err != nil || r != RoleAuditorMid {
		t.Fatalf("unexpected %v %v", r, err)
	}
	if _, err := ParseRole("auditor_mid"); err == nil {
		t.Fatalf("roles are case sensitive")
	}
}
