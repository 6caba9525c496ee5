package workflow

import (
	"errors"
	"testing"
)

func mustActive(t *testing.T, stage Stage, status Status) Active {
	t.Helper()
	a, err := NewActive(stage, status)
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	return a
}

func TestTransition(t *testing.T) {
	cases := []struct {
		name       string
		cur        State
		acting     Stage
		decision   Decision
		wantStatus Status
		wantStage  Stage
		wantErr    error
	}{
		{"approve junior advances", Enter(), StageJunior, DecisionApprove, StatusUnderReview, StageMid, nil},
		{"approve mid advances", mustActive(t, StageMid, StatusUnderReview), StageMid, DecisionApprove, StatusUnderReview, StageSenior, nil},
		{"approve senior advances", mustActive(t, StageSenior, StatusUnderReview), StageSenior, DecisionApprove, StatusUnderReview, StageCommittee, nil},
		{"approve committee closes", mustActive(t, StageCommittee, StatusUnderReview), StageCommittee, DecisionApprove, StatusApproved, StageCommittee, nil},
		{"reject freezes stage", mustActive(t, StageCommittee, StatusUnderReview), StageCommittee, DecisionReject, StatusRejected, StageCommittee, nil},
		{"reject at junior", Enter(), StageJunior, DecisionReject, StatusRejected, StageJunior, nil},
		{"recheck stays", mustActive(t, StageSenior, StatusUnderReview), StageSenior, DecisionRecheck, StatusRecheck, StageSenior, nil},
		{"recheck after recheck", mustActive(t, StageSenior, StatusRecheck), StageSenior, DecisionRecheck, StatusRecheck, StageSenior, nil},
		{"return closes", mustActive(t, StageMid, StatusUnderReview), StageMid, DecisionReturn, StatusReturned, StageMid, nil},
		{"stale stage", mustActive(t, StageMid, StatusUnderReview), StageJunior, DecisionApprove, "", "", ErrWrongStage},
		{"pending has no stage", Pending{}, StageJunior, DecisionApprove, "", "", ErrWrongStage},
		{"unknown decision", Enter(), StageJunior, Decision("ESCALATE"), "", "", ErrInvalidDecision},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Transition(tc.cur, tc.acting, tc.decision)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			status, stage := Flatten(got)
			if status != tc.wantStatus || stage != tc.wantStage {
				t.Fatalf("got %s@%s, want %s@%s", status, stage, tc.wantStatus, tc.wantStage)
			}
		})
	}
}

func TestTerminalStatesAreClosed(t *testing.T) {
	for _, outcome := range []Status{StatusApproved, StatusRejected, StatusReturned} {
		term, err := NewTerminal(StageCommittee, outcome)
		if err != nil {
			t.Fatalf("terminal: %v", err)
		}
		for _, d := range []Decision{DecisionApprove, DecisionRecheck, DecisionReject, DecisionReturn, "BOGUS"} {
			if _, err := Transition(term, StageCommittee, d); !errors.Is(err, ErrNotActive) {
				t.Fatalf("%s + %s: expected ErrNotActive, got %v", outcome, d, err)
			}
		}
	}
}

func TestApproveIsMonotonic(t *testing.T) {
	var s State = Enter()
	prev := 1
	for i := 0; i < 4; i++ {
		stage, _ := s.Stage()
		next, err := Transition(s, stage, DecisionApprove)
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		ns, _ := next.Stage()
		if ns.Rank() < prev {
			t.Fatalf("stage went backwards: %s", ns)
		}
		prev = ns.Rank()
		s = next
	}
	if s.Status() != StatusApproved || !s.IsTerminal() {
		t.Fatalf("expected APPROVED terminal, got %v", s)
	}
}

func TestPolicyRecheckLimit(t *testing.T) {
	p := Policy{MaxRechecksPerStage: 2}
	cur := mustActive(t, StageMid, StatusRecheck)

	if _, err := p.Apply(cur, StageMid, DecisionRecheck, 1); err != nil {
		t.Fatalf("second recheck should pass: %v", err)
	}
	if _, err := p.Apply(cur, StageMid, DecisionRecheck, 2); !errors.Is(err, ErrRecheckLimit) {
		t.Fatalf("expected ErrRecheckLimit, got %v", err)
	}
	if _, err := p.Apply(cur, StageMid, DecisionApprove, 2); err != nil {
		t.Fatalf("approve is not bounded: %v", err)
	}
	if _, err := (Policy{}).Apply(cur, StageMid, DecisionRecheck, 100); err != nil {
		t.Fatalf("zero policy is unbounded: %v", err)
	}
}

func TestRestoreRejectsInconsistentColumns(t *testing.T) {
	bad := []struct {
		status Status
		stage  Stage
	}{
		{StatusApproved, ""},
		{StatusUnderReview, ""},
		{StatusPending, "NOWHERE"},
		{Status("LOST"), StageMid},
	}
	for _, b := range bad {
		if _, err := Restore(b.status, b.stage); !errors.Is(err, ErrInvalidState) {
			t.Fatalf("%s@%s: expected ErrInvalidState, got %v", b.status, b.stage, err)
		}
	}

	s, err := Restore(StatusRejected, StageSenior)
	if err != nil || !s.IsTerminal() {
		t.Fatalf("restore rejected: %v %v", s, err)
	}
	if s, err := Restore(StatusPending, ""); err != nil || s != State(Pending{}) {
		t.Fatalf("restore pending: %v %v", s, err)
	}
}

func TestRecheckCounts(t *testing.T) {
	steps := []Step{
		{StageJunior, DecisionRecheck},
		{StageJunior, DecisionRecheck},
		{StageJunior, DecisionApprove},
		{StageMid, DecisionRecheck},
	}
	if n := RecheckCount(steps, StageJunior); n != 2 {
		t.Fatalf("expected 2, got %d", n)
	}
	counts := RecheckCounts(steps)
	if counts[StageMid] != 1 || counts[StageSenior] != 0 {
		t.Fatalf("unexpected counts %v", counts)
	}
}

func TestLevelForScoreBanding(t *testing.T) {
	cases := map[int]RiskLevel{0: RiskConservative, 30: RiskConservative, 31: RiskModerate, 70: RiskModerate, 71: RiskAggressive, 100: RiskAggressive}
	for score, want := range cases {
		got, err := LevelForScore(score)
		if err != nil || got != want {
			t.Fatalf("score %d: got %s err=%v want %s", score, got, err, want)
		}
	}
	for _, score := range []int{-1, 101} {
		if _, err := LevelForScore(score); err == nil {
			t.Fatalf("score %d should be rejected", score)
		}
	}

	order := map[RiskLevel]int{RiskConservative: 0, RiskModerate: 1, RiskAggressive: 2}
	prev := 0
	for s := MinRiskScore; s <= MaxRiskScore; s++ {
		l, _ := LevelForScore(s)
		if order[l] < prev {
			t.Fatalf("banding not monotonic at %d", s)
		}
		prev = order[l]
	}
}

func TestPriorityForScore(t *testing.T) {
	cases := map[int]Priority{10: PriorityLow, 40: PriorityMedium, 65: PriorityHigh, 80: PriorityCritical}
	for score, want := range cases {
		if got := PriorityForScore(score); got != want {
			t.Fatalf("score %d: got %s want %s", score, got, want)
		}
	}
}
