package domain

import (
	"errors"
	"strings"
)

// Error kinds. Every failure surfaced by the transport or the controller
// matches exactly one of these through errors.Is.
var (
	ErrAuth            = errors.New("authentication failed")
	ErrSessionNotFound = errors.New("session not found")
	ErrService         = errors.New("service error")
	ErrTimeout         = errors.New("request timed out")
	ErrStream          = errors.New("stream error")
	ErrValidation      = errors.New("invalid input")
	ErrIO              = errors.New("save failed")
)

// Error carries the operation and backend detail of a classified failure.
type Error struct {
	Kind    error
	Op      string
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if e.Kind != nil {
		b.WriteString(e.Kind.Error())
	}
	switch {
	case e.Message != "":
		b.WriteString(": ")
		b.WriteString(e.Message)
	case e.Err != nil:
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes both the kind sentinel and the underlying cause.
func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}
