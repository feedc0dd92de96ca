package errors

import (
	"fmt"
)

// Kind classifies a failure of the transfer subsystem. Callers branch on the
// kind instead of on message text.
type Kind int

const (
	// Unclassified is returned by KindOf for errors without a kind.
	Unclassified Kind = iota
	// InvalidInput reports a source stream that cannot be rewound or read.
	InvalidInput
	// TransferFailed reports a non-success response for a block upload or a
	// file download.
	TransferFailed
	// CommitFailed reports a rejected or failed write-block-list request.
	CommitFailed
	// NoBlocksFound reports a commit for a key without any staged blocks.
	NoBlocksFound
	// BlockNotFound reports a commit naming a block id that was never staged.
	BlockNotFound
	// ExtractionFailed reports a corrupt or oversized archive.
	ExtractionFailed
	// ConfigurationDefaulted is not a failure: a setting fell back to its
	// default value.
	ConfigurationDefaulted
	// ValidationFailed reports a malformed request, e.g. an empty block list.
	ValidationFailed
	// DigestMismatch reports a payload that does not match its MD5 header.
	DigestMismatch
)

var kindNames = map[Kind]string{
	Unclassified:           "Unclassified",
	InvalidInput:           "InvalidInput",
	TransferFailed:         "TransferFailed",
	CommitFailed:           "CommitFailed",
	NoBlocksFound:          "NoBlocksFound",
	BlockNotFound:          "BlockNotFound",
	ExtractionFailed:       "ExtractionFailed",
	ConfigurationDefaulted: "ConfigurationDefaulted",
	ValidationFailed:       "ValidationFailed",
	DigestMismatch:         "DigestMismatch",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

type kindError struct {
	kind Kind
	err  error
}

func (e *kindError) Error() string {
	return e.kind.String() + ": " + e.err.Error()
}

func (e *kindError) Unwrap() error {
	return e.err
}

// Format keeps the stack trace of the wrapped error visible with %+v.
func (e *kindError) Format(s fmt.State, verb rune) {
	if verb == 'v' && s.Flag('+') {
		_, _ = fmt.Fprintf(s, "%v: %+v", e.kind, e.err)
		return
	}
	_, _ = fmt.Fprint(s, e.Error())
}

// WithKind attaches kind to err. If err is nil, WithKind returns nil.
func WithKind(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &kindError{kind: kind, err: err}
}

// NewKind returns a new error with the given kind and message.
func NewKind(kind Kind, msg string) error {
	return &kindError{kind: kind, err: New(msg)}
}

// KindErrorf returns a new error with the given kind and formatted message.
func KindErrorf(kind Kind, format string, args ...interface{}) error {
	return &kindError{kind: kind, err: Errorf(format, args...)}
}

// KindOf returns the outermost kind attached to err, or Unclassified.
func KindOf(err error) Kind {
	var ke *kindError
	if As(err, &ke) {
		return ke.kind
	}
	return Unclassified
}

// IsKind reports whether any error in err's tree carries kind.
func IsKind(err error, kind Kind) bool {
	for err != nil {
		if ke, ok := err.(*kindError); ok && ke.kind == kind {
			return true
		}
		err = Unwrap(err)
	}
	return false
}
