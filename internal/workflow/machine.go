package workflow

import "fmt"

// Transition applies decision d, recorded at acting stage, to cur.
//
//	APPROVE below COMMITTEE  -> next stage, UNDER_REVIEW
//	APPROVE at COMMITTEE     -> APPROVED, stage unchanged
//	REJECT                   -> REJECTED, stage frozen
//	RECHECK                  -> same stage, RECHECK
//	RETURN                   -> RETURNED
func Transition(cur State, acting Stage, d Decision) (State, error) {
	if cur == nil {
		return nil, ErrInvalidState
	}
	if cur.IsTerminal() {
		return nil, fmt.Errorf("%w: %s", ErrNotActive, cur.Status())
	}
	stage, ok := cur.Stage()
	if !ok || stage != acting {
		return nil, fmt.Errorf("%w: acting at %s", ErrWrongStage, acting)
	}

	switch d {
	case DecisionApprove:
		next, ok := stage.Next()
		if !ok {
			return Terminal{stage: stage, outcome: StatusApproved}, nil
		}
		return Active{stage: next, status: StatusUnderReview}, nil
	case DecisionReject:
		return Terminal{stage: stage, outcome: StatusRejected}, nil
	case DecisionRecheck:
		return Active{stage: stage, status: StatusRecheck}, nil
	case DecisionReturn:
		return Terminal{stage: stage, outcome: StatusReturned}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidDecision, d)
	}
}

// Policy holds the configurable parts of the workflow.
type Policy struct {
	// MaxRechecksPerStage bounds RECHECK decisions at one stage of one
	// assessment. Zero means unbounded.
	MaxRechecksPerStage int
}

// Apply is Transition plus the recheck bound. priorRechecks is the number of
// RECHECK decisions already recorded at the acting stage.
func (p Policy) Apply(cur State, acting Stage, d Decision, priorRechecks int) (State, error) {
	next, err := Transition(cur, acting, d)
	if err != nil {
		return nil, err
	}
	if d == DecisionRecheck && p.MaxRechecksPerStage > 0 && priorRechecks >= p.MaxRechecksPerStage {
		return nil, fmt.Errorf("%w: %d at %s", ErrRecheckLimit, priorRechecks, acting)
	}
	return next, nil
}

// Step is the part of a history entry the machine cares about.
type Step struct {
	Stage    Stage
	Decision Decision
}

// RecheckCount counts RECHECK decisions recorded at stage.
func RecheckCount(steps []Step, stage Stage) int {
	n := 0
	for _, s := range steps {
		if s.Stage == stage && s.Decision == DecisionRecheck {
			n++
		}
	}
	return n
}

// RecheckCounts counts RECHECK decisions per stage.
func RecheckCounts(steps []Step) map[Stage]int {
	out := map[Stage]int{}
	for _, s := range steps {
		if s.Decision == DecisionRecheck {
			out[s.Stage]++
		}
	}
	return out
}
