// Package errors creates and classifies the errors of the transfer tools.
// Errors carry a stack trace (see github.com/pkg/errors), an optional Kind
// callers can branch on, and an optional fatal marker for messages that are
// shown to the user as is.
package errors

import (
	stderrors "errors"

	"github.com/pkg/errors"
)

// The constructors are aliases of github.com/pkg/errors so that the stack
// trace starts at the caller and not in this package.
var (
	New       = errors.New
	Errorf    = errors.Errorf
	Wrap      = errors.Wrap
	Wrapf     = errors.Wrapf
	WithStack = errors.WithStack
)

// As is errors.As of the standard library.
func As(err error, target interface{}) bool { return stderrors.As(err, target) }

// Is is errors.Is of the standard library.
func Is(err, target error) bool { return stderrors.Is(err, target) }

// Unwrap is errors.Unwrap of the standard library.
func Unwrap(err error) error { return stderrors.Unwrap(err) }
