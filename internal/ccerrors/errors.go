// Package ccerrors defines the diagnostic categories of spec §7: a
// syntax-shape LowerError per pass, an InternalError for buffer/tree
// invariant violations, and a MultiError that batches a translation
// unit's accumulated diagnostics. The shape follows the teacher's
// internal/errors package: one typed struct per category, a New*Error
// constructor, With* chaining for extra context, and Unwrap for
// errors.Is/As.
package ccerrors

import (
	"fmt"
	"strings"

	"github.com/ccfront/cc/internal/span"
)

// Category names the diagnostic class, rendered into the gcc-compatible
// "[category:]" segment of the message (spec §6).
type Category string

const (
	CategorySyntax   Category = "syntax"
	CategoryInternal Category = "internal"
	CategoryRuntime  Category = "runtime"
)

// LowerError is a syntax-shape error (spec §7): a pass discovered a
// construct it cannot lower. Fatal for the translation unit it belongs
// to. The "file:line:col" prefix spec §6 requires is rendered from File
// and Span.Begin by Error() itself — callers only ever have the bare
// source filename on hand at the point they raise one of these (a
// pass's *ast.Node carries a Span but no back-reference to the
// span.Index that resolved it), so rendering happens once, here, rather
// than leaving every call site responsible for pre-rendering it (and
// free to get it wrong, as most of them did: passing the bare filename
// straight through, with no line or column at all).
type LowerError struct {
	Pass   string
	File   string
	Span   span.Span
	Reason string
	Note   string
}

// NewLowerError builds a LowerError naming the pass, the source
// filename, the span, and the reason.
func NewLowerError(pass, file string, sp span.Span, reason string) *LowerError {
	return &LowerError{Pass: pass, File: file, Span: sp, Reason: reason}
}

// WithNote attaches a "note:" follow-up line (spec §6).
func (e *LowerError) WithNote(note string) *LowerError {
	e.Note = note
	return e
}

// location renders the gcc-compatible "file:line:col" prefix from File
// and the span's resolved start position.
func (e *LowerError) location() string {
	return fmt.Sprintf("%s:%d:%d", e.File, e.Span.Begin.Line, e.Span.Begin.Column)
}

// Error renders "file:line:col: error: [category:] message", with an
// optional trailing "note:" line, per spec §6.
func (e *LowerError) Error() string {
	loc := e.location()
	msg := fmt.Sprintf("%s: error: [%s:%s] %s", loc, CategorySyntax, e.Pass, e.Reason)
	if e.Note != "" {
		msg += fmt.Sprintf("\n%s: note: %s", loc, e.Note)
	}
	return msg
}

// InternalError is a consistency error (spec §7): overlapping edits, an
// out-of-range offset, or a violated tree invariant. These should never
// occur from well-formed input; they indicate a bug in the pipeline
// itself.
type InternalError struct {
	Component string
	Reason    string
	Underlying error
}

// NewInternalError builds an InternalError naming the offending
// component (e.g. "editbuf") and the reason.
func NewInternalError(component, reason string) *InternalError {
	return &InternalError{Component: component, Reason: reason}
}

// WithUnderlying attaches a wrapped cause.
func (e *InternalError) WithUnderlying(err error) *InternalError {
	e.Underlying = err
	return e
}

func (e *InternalError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("internal error in %s: %s: %v", e.Component, e.Reason, e.Underlying)
	}
	return fmt.Sprintf("internal error in %s: %s", e.Component, e.Reason)
}

func (e *InternalError) Unwrap() error { return e.Underlying }

// MultiError batches every diagnostic collected for one translation
// unit's compile attempt.
type MultiError struct {
	Errors []error
}

// NewMultiError filters nil entries and returns a MultiError, or nil if
// nothing remains.
func NewMultiError(errs []error) *MultiError {
	filtered := make([]error, 0, len(errs))
	for _, err := range errs {
		if err != nil {
			filtered = append(filtered, err)
		}
	}
	if len(filtered) == 0 {
		return nil
	}
	return &MultiError{Errors: filtered}
}

func (e *MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	lines := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		lines[i] = err.Error()
	}
	return strings.Join(lines, "\n")
}

func (e *MultiError) Unwrap() []error { return e.Errors }
