package workflow

import "fmt"

// Stage is one of the four sequential review levels.
type Stage string

const (
	StageJunior    Stage = "JUNIOR"
	StageMid       Stage = "MID"
	StageSenior    Stage = "SENIOR"
	StageCommittee Stage = "COMMITTEE"
)

var stageOrder = []Stage{StageJunior, StageMid, StageSenior, StageCommittee}

// Rank orders stages from 1 (JUNIOR) to 4 (COMMITTEE); unknown stages rank 0.
func (s Stage) Rank() int {
	for i, st := range stageOrder {
		if st == s {
			return i + 1
		}
	}
	return 0
}

func (s Stage) Valid() bool { return s.Rank() > 0 }

// Next returns the stage after s. COMMITTEE has no successor.
func (s Stage) Next() (Stage, bool) {
	r := s.Rank()
	if r == 0 || r == len(stageOrder) {
		return "", false
	}
	return stageOrder[r], true
}

func ParseStage(v string) (Stage, error) {
	s := Stage(v)
	if !s.Valid() {
		return "", fmt.Errorf("workflow: unknown stage %q", v)
	}
	return s, nil
}

// Status is the flattened assessment status exposed to clients.
type Status string

const (
	StatusPending     Status = "PENDING"
	StatusUnderReview Status = "UNDER_REVIEW"
	StatusApproved    Status = "APPROVED"
	StatusRecheck     Status = "RECHECK"
	StatusRejected    Status = "REJECTED"
	StatusReturned    Status = "RETURNED"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusUnderReview, StatusApproved, StatusRecheck, StatusRejected, StatusReturned:
		return true
	}
	return false
}

func (s Status) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected || s == StatusReturned
}

// Decision is an auditor's verdict on a task.
type Decision string

const (
	DecisionApprove Decision = "APPROVE"
	DecisionRecheck Decision = "RECHECK"
	DecisionReject  Decision = "REJECT"
	DecisionReturn  Decision = "RETURN"
)

func (d Decision) Valid() bool {
	switch d {
	case DecisionApprove, DecisionRecheck, DecisionReject, DecisionReturn:
		return true
	}
	return false
}

// StageInfo describes a stage for display.
type StageInfo struct {
	Stage       Stage  `json:"stage"`
	Rank        int    `json:"rank"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Stages returns the ordered stage catalogue.
func Stages() []StageInfo {
	return []StageInfo{
		{StageJunior, 1, "Junior review", "Initial review of the customer profile and questionnaire against the assessed risk level."},
		{StageMid, 2, "Mid review", "Risk analysis and portfolio suitability check of the junior review."},
		{StageSenior, 3, "Senior review", "Deep risk evaluation, stress testing and compliance review."},
		{StageCommittee, 4, "Investment committee", "Final decision; required for approval of high risk investments."},
	}
}
