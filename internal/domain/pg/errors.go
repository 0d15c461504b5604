package pg

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Every error returned by this module wraps exactly one of them,
// so callers test the kind with errors.Is and still reach the cause.
var (
	ErrInvalidURL        = errors.New("invalid download url")
	ErrInvalidPackage    = errors.New("invalid postgresql package")
	ErrWriteFile         = errors.New("could not write file")
	ErrReadFile          = errors.New("could not read file")
	ErrDirCreation       = errors.New("could not create directory")
	ErrUnpack            = errors.New("failed to unpack postgresql binaries")
	ErrInitFailure       = errors.New("postgresql could not be initialized")
	ErrStartFailure      = errors.New("postgresql could not be started")
	ErrStopFailure       = errors.New("postgresql could not be stopped")
	ErrCleanUp           = errors.New("clean up failed")
	ErrPurge             = errors.New("purge failed")
	ErrBufferRead        = errors.New("buffered read failed")
	ErrLock              = errors.New("lock failed")
	ErrProcess           = errors.New("child process failed")
	ErrTimedOut          = errors.New("operation timed out")
	ErrTaskJoin          = errors.New("background task failed")
	ErrGeneric           = errors.New("pg-embed error")
	ErrDownload          = errors.New("download failed")
	ErrConversion        = errors.New("response conversion failed")
	ErrSend              = errors.New("channel send failed")
	ErrSQLQuery          = errors.New("sql query failed")
	ErrMigration         = errors.New("migration failed")
	ErrInvalidTransition = errors.New("invalid server status transition")
)

// ExitError reports a control tool that ran and exited unsuccessfully.
type ExitError struct {
	// Kind is the control tool invocation that failed.
	Kind ProcessKind
	// Code is the process exit code, -1 when killed by a signal.
	Code int
	// Stderr holds the last lines the process wrote to stderr.
	Stderr []string
}

// Error implements error.
func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%v: %s exited with code %d", e.Kind.Failure(), e.Kind, e.Code)
	if len(e.Stderr) == 0 {
		return msg
	}

	return msg + ": " + strings.Join(e.Stderr, "; ")
}

// Unwrap returns the failure sentinel of the kind.
func (e *ExitError) Unwrap() error {
	return e.Kind.Failure()
}
