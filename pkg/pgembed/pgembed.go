// Package pgembed runs a disposable PostgreSQL server inside tests.
//
//	server, err := pgembed.New(pgembed.DefaultSettings(t.TempDir()), pgembed.DefaultFetchSettings())
//	if err != nil { ... }
//	defer server.Close()
//
//	if err = server.Setup(ctx); err != nil { ... }
//	if err = server.Start(ctx); err != nil { ... }
//
// Binaries are downloaded once per version and platform into the user cache
// directory and shared by every server of the process. Close stops a running
// server and removes its data directory unless Settings.Persistent is set.
package pgembed

import (
	"github.com/oshokin/pg-embed/internal/domain/pg"
	"github.com/oshokin/pg-embed/internal/repository/acquisition"
	"github.com/oshokin/pg-embed/internal/service/cache"
	"github.com/oshokin/pg-embed/internal/service/fetch"
	"github.com/oshokin/pg-embed/internal/service/postgres"
)

type (
	// Server is one disposable PostgreSQL instance.
	Server = postgres.Server
	// Settings describes one server instance.
	Settings = postgres.Settings
	// Option configures a Server.
	Option = postgres.Option
	// StatusObserver is called with every status a Server enters.
	StatusObserver = postgres.StatusObserver
	// FetchSettings selects the binaries to download.
	FetchSettings = fetch.Settings
	// Version is a binaries version such as 17.2.0.
	Version = fetch.Version
	// Downloader writes the bytes found at a URL.
	Downloader = fetch.Downloader
	// Registry deduplicates binary acquisitions.
	Registry = acquisition.Registry
	// Status is the lifecycle state of a Server.
	Status = pg.ServerStatus
	// AuthMethod is the host authentication method of a cluster.
	AuthMethod = pg.AuthMethod
	// OperatingSystem is a target OS of the binaries.
	OperatingSystem = pg.OperatingSystem
	// Architecture is a target CPU architecture of the binaries.
	Architecture = pg.Architecture
	// ExitError reports a control tool that exited unsuccessfully.
	ExitError = pg.ExitError
)

// Published binaries versions.
const (
	V17 = fetch.V17
	V16 = fetch.V16
	V15 = fetch.V15
	V14 = fetch.V14
	V13 = fetch.V13
	V12 = fetch.V12
)

// Lifecycle states.
const (
	StatusUninitialized = pg.StatusUninitialized
	StatusInitializing  = pg.StatusInitializing
	StatusInitialized   = pg.StatusInitialized
	StatusStarting      = pg.StatusStarting
	StatusStarted       = pg.StatusStarted
	StatusStopping      = pg.StatusStopping
	StatusStopped       = pg.StatusStopped
	StatusFailure       = pg.StatusFailure
)

// Authentication methods.
const (
	AuthPlain       = pg.AuthPlain
	AuthMD5         = pg.AuthMD5
	AuthScramSHA256 = pg.AuthScramSHA256
)

// Error kinds, test them with errors.Is.
//
//nolint:gochecknoglobals // Re-exported sentinels.
var (
	ErrInvalidURL        = pg.ErrInvalidURL
	ErrInvalidPackage    = pg.ErrInvalidPackage
	ErrWriteFile         = pg.ErrWriteFile
	ErrReadFile          = pg.ErrReadFile
	ErrDirCreation       = pg.ErrDirCreation
	ErrUnpack            = pg.ErrUnpack
	ErrInitFailure       = pg.ErrInitFailure
	ErrStartFailure      = pg.ErrStartFailure
	ErrStopFailure       = pg.ErrStopFailure
	ErrCleanUp           = pg.ErrCleanUp
	ErrPurge             = pg.ErrPurge
	ErrBufferRead        = pg.ErrBufferRead
	ErrLock              = pg.ErrLock
	ErrProcess           = pg.ErrProcess
	ErrTimedOut          = pg.ErrTimedOut
	ErrTaskJoin          = pg.ErrTaskJoin
	ErrGeneric           = pg.ErrGeneric
	ErrDownload          = pg.ErrDownload
	ErrConversion        = pg.ErrConversion
	ErrSend              = pg.ErrSend
	ErrSQLQuery          = pg.ErrSQLQuery
	ErrMigration         = pg.ErrMigration
	ErrInvalidTransition = pg.ErrInvalidTransition
)

// Constructors and options.
//
//nolint:gochecknoglobals // Re-exported functions.
var (
	New                  = postgres.New
	DefaultSettings      = postgres.DefaultSettings
	DefaultFetchSettings = fetch.DefaultSettings
	NewRegistry          = acquisition.NewRegistry
	NewHTTPDownloader    = fetch.NewHTTPDownloader
	WithRegistry         = postgres.WithRegistry
	WithDownloader       = postgres.WithDownloader
	WithStatusObserver   = postgres.WithStatusObserver
	WithKeepOnTimeout    = postgres.WithKeepOnTimeout
	WithProcessLogLevel  = postgres.WithProcessLogLevel
	CleanUp              = cache.CleanUp
	Purge                = postgres.Purge
)
