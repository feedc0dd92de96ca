package assembler

import (
	"path"
	"strings"

	"github.com/exchangesets/fsstransfer/internal/errors"
)

// ValidName returns an error unless name is usable as a single path
// element: not empty, not "." or "..", and without separators.
func ValidName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, "/\\\x00") {
		return errors.KindErrorf(errors.ValidationFailed, "invalid name %q", name)
	}
	return nil
}

// ObjectName returns the key of fileName in batchID below prefix.
func ObjectName(prefix, batchID, fileName string) (string, error) {
	if err := ValidName(batchID); err != nil {
		return "", err
	}
	if err := ValidName(fileName); err != nil {
		return "", err
	}
	return path.Join(prefix, batchID, fileName), nil
}
