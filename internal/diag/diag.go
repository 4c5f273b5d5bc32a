// Package diag defines the error type every compile stage reports.
package diag

import (
	"errors"
	"fmt"

	"github.com/phobologic/judc/internal/model"
)

// Kind classifies a fatal compile error.
type Kind string

const (
	DuplicateDefinition Kind = "duplicate-definition"
	AmbiguousSection    Kind = "ambiguous-section"
	PartNotFound        Kind = "part-not-found"
	UnknownLanguage     Kind = "unknown-language"
	CyclicDependency    Kind = "cyclic-dependency"
	InternalConsistency Kind = "internal-consistency"
	Syntax              Kind = "syntax"
	Plugin              Kind = "plugin"
	IO                  Kind = "io"
)

// Error is a fatal compile error with its originating position.
type Error struct {
	Kind Kind
	Pos  model.Position
	Err  error
}

func (e *Error) Error() string {
	if loc := e.Pos.String(); loc != "" {
		return fmt.Sprintf("%s: %s: %v", loc, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New returns an Error of kind at pos with a formatted message.
func New(kind Kind, pos model.Position, format string, args ...any) *Error {
	return &Error{Kind: kind, Pos: pos, Err: fmt.Errorf(format, args...)}
}

// Wrap returns err as an Error of kind at pos. An err that already is an
// Error is returned unchanged so the innermost position wins.
func Wrap(kind Kind, pos model.Position, err error) error {
	if err == nil {
		return nil
	}
	var de *Error
	if errors.As(err, &de) {
		return err
	}
	return &Error{Kind: kind, Pos: pos, Err: err}
}

// IsKind reports whether err is, or wraps, an Error of kind.
func IsKind(err error, kind Kind) bool {
	var de *Error
	return errors.As(err, &de) && de.Kind == kind
}

// KindOf returns the kind of err, or "" when err is not an Error.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}
