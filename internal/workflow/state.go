package workflow

import (
	"errors"
	"fmt"
)

var (
	ErrNotActive       = errors.New("workflow: assessment not active")
	ErrWrongStage      = errors.New("workflow: decision recorded at a stage the assessment is not in")
	ErrInvalidDecision = errors.New("workflow: invalid decision")
	ErrRecheckLimit    = errors.New("workflow: recheck limit reached")
	ErrInvalidState    = errors.New("workflow: inconsistent status and stage")
)

// State is the assessment's position in the workflow. The only
// implementations are Pending, Active and Terminal, so a status can never be
// paired with a stage it is inconsistent with.
type State interface {
	Status() Status
	// Stage reports the current stage; Pending has none.
	Stage() (Stage, bool)
	IsTerminal() bool

	isState()
}

// Pending is a freshly created assessment with no stage assigned.
type Pending struct{}

func (Pending) Status() Status { return StatusPending }
func (Pending) Stage() (Stage, bool) { return "", false }
func (Pending) IsTerminal() bool { return false }
func (Pending) isState() {}
func (Pending) String() string { return "PENDING" }

// Active is an assessment waiting on a decision at a stage.
type Active struct {
	stage  Stage
	status Status
}

// NewActive accepts PENDING, UNDER_REVIEW or RECHECK.
func NewActive(stage Stage, status Status) (Active, error) {
	if !stage.Valid() {
		return Active{}, fmt.Errorf("%w: stage %q", ErrInvalidState, stage)
	}
	switch status {
	case StatusPending, StatusUnderReview, StatusRecheck:
		return Active{stage: stage, status: status}, nil
	}
	return Active{}, fmt.Errorf("%w: %s is not an active status", ErrInvalidState, status)
}

func (a Active) Status() Status { return a.status }
func (a Active) Stage() (Stage, bool) { return a.stage, true }
func (Active) IsTerminal() bool { return false }
func (Active) isState() {}
func (a Active) String() string { return fmt.Sprintf("%s@%s", a.status, a.stage) }

// Terminal is a closed assessment. Stage is the stage at which the final
// decision was made.
type Terminal struct {
	stage   Stage
	outcome Status
}

func NewTerminal(stage Stage, outcome Status) (Terminal, error) {
	if !stage.Valid() {
		return Terminal{}, fmt.Errorf("%w: stage %q", ErrInvalidState, stage)
	}
	if !outcome.IsTerminal() {
		return Terminal{}, fmt.Errorf("%w: %s is not a terminal status", ErrInvalidState, outcome)
	}
	return Terminal{stage: stage, outcome: outcome}, nil
}

func (t Terminal) Status() Status { return t.outcome }
func (t Terminal) Stage() (Stage, bool) { return t.stage, true }
func (Terminal) IsTerminal() bool { return true }
func (Terminal) isState() {}
func (t Terminal) String() string { return fmt.Sprintf("%s@%s", t.outcome, t.stage) }

// Enter assigns the first stage. It is the only way out of Pending.
func Enter() Active { return Active{stage: StageJunior, status: StatusPending} }

// Restore rebuilds a State from its stored columns and rejects combinations
// that cannot occur.
func Restore(status Status, stage Stage) (State, error) {
	if stage == "" {
		if status == StatusPending {
			return Pending{}, nil
		}
		return nil, fmt.Errorf("%w: %s without stage", ErrInvalidState, status)
	}
	if status.IsTerminal() {
		return NewTerminal(stage, status)
	}
	return NewActive(stage, status)
}

// Flatten returns the storage columns of s. Stage is empty for Pending.
func Flatten(s State) (Status, Stage) {
	st, _ := s.Stage()
	return s.Status(), st
}
