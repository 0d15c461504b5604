package pg

// ProcessKind tags which control tool invocation a child process is.
type ProcessKind int

// Process kinds.
const (
	// ProcessInitialize is an initdb run.
	ProcessInitialize ProcessKind = iota
	// ProcessStart is a pg_ctl start run.
	ProcessStart
	// ProcessStop is a pg_ctl stop run.
	ProcessStop
)

// processTraits is one row of the kind lookup table.
type processTraits struct {
	// name is used in logs and error messages.
	name string
	// entry is the status set when the process is spawned.
	entry ServerStatus
	// exit is the status set when the process exits successfully.
	exit ServerStatus
	// failure is the sentinel every failure of this kind wraps.
	failure error
}

//nolint:gochecknoglobals // Read-only lookup table.
var processTable = [...]processTraits{
	ProcessInitialize: {name: "initdb", entry: StatusInitializing, exit: StatusInitialized, failure: ErrInitFailure},
	ProcessStart:      {name: "start", entry: StatusStarting, exit: StatusStarted, failure: ErrStartFailure},
	ProcessStop:       {name: "stop", entry: StatusStopping, exit: StatusStopped, failure: ErrStopFailure},
}

// traits returns the table row for k, falling back to the stop row for
// out-of-range values so callers never index out of bounds.
func (k ProcessKind) traits() processTraits {
	if k < 0 || int(k) >= len(processTable) {
		return processTraits{name: "unknown", entry: StatusFailure, exit: StatusFailure, failure: ErrProcess}
	}

	return processTable[k]
}

// String returns the short name of the kind.
func (k ProcessKind) String() string {
	return k.traits().name
}

// EntryStatus returns the status a server enters while this kind runs.
func (k ProcessKind) EntryStatus() ServerStatus {
	return k.traits().entry
}

// ExitStatus returns the status a server reaches when this kind succeeds.
func (k ProcessKind) ExitStatus() ServerStatus {
	return k.traits().exit
}

// Failure returns the sentinel error for failures of this kind.
func (k ProcessKind) Failure() error {
	return k.traits().failure
}
