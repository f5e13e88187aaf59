package registry

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rafaeljc/gatekeeper/internal/validation"
)

// Sentinel kinds. Match them with errors.Is; the message carries the specifics.
var (
	ErrNotFound  = errors.New("not found")
	ErrConflict  = errors.New("conflict")
	ErrForbidden = errors.New("forbidden")
)

// kindError pairs a sentinel with a caller-facing message.
type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string { return e.msg }
func (e *kindError) Unwrap() error { return e.kind }

func notFoundf(format string, args ...any) error {
	return &kindError{kind: ErrNotFound, msg: fmt.Sprintf(format, args...)}
}

func conflictf(format string, args ...any) error {
	return &kindError{kind: ErrConflict, msg: fmt.Sprintf(format, args...)}
}

func forbiddenf(format string, args ...any) error {
	return &kindError{kind: ErrForbidden, msg: fmt.Sprintf(format, args...)}
}

// ValidationError lists every rejected field of a request.
type ValidationError struct {
	Issues []validation.FieldIssue
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Issues))
	for i, is := range e.Issues {
		parts[i] = is.Field + " " + is.Issue
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func invalid(field, issue string) *ValidationError {
	return &ValidationError{Issues: []validation.FieldIssue{{Field: field, Issue: issue}}}
}

// validate runs the struct tags of in and converts failures into a ValidationError.
func validate(in any) error {
	if issues := validation.Struct(in); len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}
