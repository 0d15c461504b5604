package pg

import (
	"fmt"
	"strings"
)

// AuthMethod selects the host authentication written by initdb.
type AuthMethod int

// Authentication methods.
const (
	// AuthPlain is plain-text password authentication.
	AuthPlain AuthMethod = iota
	// AuthMD5 is md5 hashed password authentication.
	AuthMD5
	// AuthScramSHA256 is scram-sha-256 authentication (PostgreSQL 10+).
	AuthScramSHA256
)

// InitDBArg returns the value passed to initdb's -A flag.
func (m AuthMethod) InitDBArg() string {
	switch m {
	case AuthMD5:
		return "md5"
	case AuthScramSHA256:
		return "scram-sha-256"
	default:
		return "password"
	}
}

// String returns the configuration name of the method.
func (m AuthMethod) String() string {
	switch m {
	case AuthMD5:
		return "md5"
	case AuthScramSHA256:
		return "scram-sha-256"
	default:
		return "plain"
	}
}

// ParseAuthMethod converts a configuration value into an AuthMethod.
func ParseAuthMethod(s string) (AuthMethod, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "plain", "password":
		return AuthPlain, nil
	case "md5", "":
		return AuthMD5, nil
	case "scram-sha-256", "scram_sha_256", "scram":
		return AuthScramSHA256, nil
	default:
		return AuthPlain, fmt.Errorf("%w: unknown auth method %q", ErrGeneric, s)
	}
}
