package options

import "strconv"

const redacted = "**redacted**"

// SecretString holds a credential such as a bearer token or a storage
// account key. Formatting it with any verb prints a placeholder.
type SecretString struct {
	s *string
}

// NewSecretString wraps s.
func NewSecretString(s string) SecretString {
	return SecretString{s: &s}
}

// Empty reports whether no secret or an empty one is stored.
func (s SecretString) Empty() bool {
	return s.s == nil || *s.s == ""
}

func (s SecretString) String() string {
	if s.Empty() {
		return ""
	}
	return redacted
}

func (s SecretString) GoString() string {
	return strconv.Quote(s.String())
}

// Unwrap returns the secret in clear text.
func (s *SecretString) Unwrap() string {
	if s.s == nil {
		return ""
	}
	return *s.s
}

// Set implements pflag.Value so secrets can be passed as flags.
func (s *SecretString) Set(v string) error {
	*s = NewSecretString(v)
	return nil
}

// Type implements pflag.Value.
func (s *SecretString) Type() string {
	return "secret"
}
