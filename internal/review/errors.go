package review

import (
	"errors"
	"fmt"
)

// Code classifies a failure returned by Service. Every code except
// DATA_INTEGRITY is an expected outcome the caller can act on.
type Code string

const (
	CodeTaskAlreadyClaimed  Code = "TASK_ALREADY_CLAIMED"
	CodeNotTaskOwner        Code = "NOT_TASK_OWNER"
	CodeTaskNotInProgress   Code = "TASK_NOT_IN_PROGRESS"
	CodeInsufficientRole    Code = "INSUFFICIENT_ROLE"
	CodeWrongStage          Code = "WRONG_STAGE"
	CodeAssessmentNotActive Code = "ASSESSMENT_NOT_ACTIVE"
	CodeInvalidDecision     Code = "INVALID_DECISION"
	CodeDataIntegrity       Code = "DATA_INTEGRITY"
	CodeNotFound            Code = "NOT_FOUND"
	CodeInvalidArgument     Code = "INVALID_ARGUMENT"
	CodeAuditorInactive     Code = "AUDITOR_INACTIVE"
	CodeRecheckLimitReached Code = "RECHECK_LIMIT_REACHED"
	CodeClaimLimitReached   Code = "CLAIM_LIMIT_REACHED"
)

type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Code)
	}
	if e.Err != nil {
		return fmt.Sprintf("review: %s: %v", msg, e.Err)
	}
	return "review: " + msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same code, so the sentinels below work with
// errors.Is regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Fatal reports an invariant violation rather than a caller mistake.
func (e *Error) Fatal() bool { return e.Code == CodeDataIntegrity }

var (
	ErrTaskAlreadyClaimed  = &Error{Code: CodeTaskAlreadyClaimed}
	ErrNotTaskOwner        = &Error{Code: CodeNotTaskOwner}
	ErrTaskNotInProgress   = &Error{Code: CodeTaskNotInProgress}
	ErrInsufficientRole    = &Error{Code: CodeInsufficientRole}
	ErrWrongStage          = &Error{Code: CodeWrongStage}
	ErrAssessmentNotActive = &Error{Code: CodeAssessmentNotActive}
	ErrInvalidDecision     = &Error{Code: CodeInvalidDecision}
	ErrDataIntegrity       = &Error{Code: CodeDataIntegrity}
	ErrNotFound            = &Error{Code: CodeNotFound}
	ErrInvalidArgument     = &Error{Code: CodeInvalidArgument}
	ErrAuditorInactive     = &Error{Code: CodeAuditorInactive}
	ErrRecheckLimitReached = &Error{Code: CodeRecheckLimitReached}
	ErrClaimLimitReached   = &Error{Code: CodeClaimLimitReached}
)

func newError(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func notFound(kind, id string) *Error {
	return newError(CodeNotFound, "%s %s not found", kind, id)
}

func integrity(err error, format string, args ...any) *Error {
	return &Error{Code: CodeDataIntegrity, Message: fmt.Sprintf(format, args...), Err: err}
}

// CodeOf returns the code carried by err, or "" for infrastructure errors.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
