package pg

// ServerStatus is the lifecycle state of one embedded server instance.
type ServerStatus int

// Server statuses in lifecycle order.
const (
	// StatusUninitialized is the state of a freshly constructed instance.
	StatusUninitialized ServerStatus = iota
	// StatusInitializing means initdb is running.
	StatusInitializing
	// StatusInitialized means the cluster exists and the server is not running.
	StatusInitialized
	// StatusStarting means pg_ctl start is running.
	StatusStarting
	// StatusStarted means the server accepts connections.
	StatusStarted
	// StatusStopping means pg_ctl stop is running.
	StatusStopping
	// StatusStopped means the server was stopped gracefully.
	StatusStopped
	// StatusFailure means the last operation failed.
	StatusFailure
)

// String returns a lower-case name of the status.
func (s ServerStatus) String() string {
	switch s {
	case StatusUninitialized:
		return "uninitialized"
	case StatusInitializing:
		return "initializing"
	case StatusInitialized:
		return "initialized"
	case StatusStarting:
		return "starting"
	case StatusStarted:
		return "started"
	case StatusStopping:
		return "stopping"
	case StatusStopped:
		return "stopped"
	case StatusFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// AcquisitionStatus tracks the download and unpack of one cache path.
type AcquisitionStatus int

// Acquisition statuses. Transitions only go forward, except that a failed
// acquisition goes back to AcquisitionUndefined so a later caller can retry.
const (
	// AcquisitionUndefined means nobody has acquired the path in this process.
	AcquisitionUndefined AcquisitionStatus = iota
	// AcquisitionInProgress means one caller is downloading and unpacking.
	AcquisitionInProgress
	// AcquisitionFinished means the binaries are in place.
	AcquisitionFinished
)

// String returns a lower-case name of the status.
func (s AcquisitionStatus) String() string {
	switch s {
	case AcquisitionUndefined:
		return "undefined"
	case AcquisitionInProgress:
		return "in-progress"
	case AcquisitionFinished:
		return "finished"
	default:
		return "unknown"
	}
}
