package generator

import (
	"errors"
	"fmt"
	"strings"
)

// 错误分类。具体错误类型都能通过 errors.Is 匹配到其中之一。
var (
	ErrConfiguration   = errors.New("configuration error")
	ErrInputValidation = errors.New("input validation error")
	ErrExternalCall    = errors.New("external call error")
	ErrPrecondition    = errors.New("precondition error")
)

// ErrNoActiveRun is returned when feedback is submitted before any successful run.
var ErrNoActiveRun = fmt.Errorf("%w: no active run, generate before revising", ErrPrecondition)

// MissingFieldError reports a template placeholder or declared input with no value.
type MissingFieldError struct {
	Stage string
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("stage %q: missing field %q", e.Stage, e.Field)
}

func (e *MissingFieldError) Unwrap() error { return ErrConfiguration }

// UnresolvedFieldError means a stage input is neither an external input nor
// produced by an earlier stage.
type UnresolvedFieldError struct {
	Stage string
	Field string
}

func (e *UnresolvedFieldError) Error() string {
	return fmt.Sprintf("stage %q: field %q is not produced by an earlier stage or supplied externally", e.Stage, e.Field)
}

func (e *UnresolvedFieldError) Unwrap() error { return ErrConfiguration }

// MissingExternalInputError lists every required external input the caller omitted.
type MissingExternalInputError struct {
	Fields []string
}

func (e *MissingExternalInputError) Error() string {
	return "missing external input: " + strings.Join(e.Fields, ", ")
}

func (e *MissingExternalInputError) Unwrap() error { return ErrInputValidation }

// StageError wraps a failed model call with the stage that issued it.
type StageError struct {
	Pipeline string
	Stage    string
	Err      error
}

func (e *StageError) Error() string {
	if e.Pipeline == "" {
		return fmt.Sprintf("stage %q: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("pipeline %q stage %q: %v", e.Pipeline, e.Stage, e.Err)
}

func (e *StageError) Unwrap() []error { return []error{ErrExternalCall, e.Err} }

func configErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}
