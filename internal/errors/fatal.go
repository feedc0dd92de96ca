package errors

import "fmt"

// fatalError is shown to the user without a stack trace, after which the
// program exits.
type fatalError struct {
	msg   string
	cause error
}

func (e *fatalError) Error() string { return "Fatal: " + e.msg }
func (e *fatalError) Unwrap() error { return e.cause }

// IsFatal reports whether err or an error it wraps was created by Fatal or
// Fatalf.
func IsFatal(err error) bool {
	var fe *fatalError
	return As(err, &fe)
}

// Fatal returns an error with a message for the user.
func Fatal(msg string) error {
	return WithStack(&fatalError{msg: msg})
}

// Fatalf is Fatal with a format string. The last error among args is kept
// as the cause.
func Fatalf(format string, args ...interface{}) error {
	fe := &fatalError{msg: fmt.Sprintf(format, args...)}
	for i := len(args) - 1; i >= 0 && fe.cause == nil; i-- {
		fe.cause, _ = args[i].(error)
	}
	return WithStack(fe)
}
