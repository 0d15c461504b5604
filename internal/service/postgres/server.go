package postgres

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"slices"
	"strconv"
	"sync"

	"go.uber.org/zap/zapcore"

	"github.com/oshokin/pg-embed/internal/domain/pg"
	"github.com/oshokin/pg-embed/internal/logger"
	"github.com/oshokin/pg-embed/internal/repository/acquisition"
	"github.com/oshokin/pg-embed/internal/service/cache"
	"github.com/oshokin/pg-embed/internal/service/executor"
	"github.com/oshokin/pg-embed/internal/service/fetch"
)

// sharedRegistry is used by servers created without WithRegistry, so that
// servers of one process never acquire the same binaries twice.
//
//nolint:gochecknoglobals // Process-wide by definition.
var sharedRegistry = acquisition.NewRegistry()

// StatusObserver is called with every status a Server enters.
type StatusObserver func(status pg.ServerStatus)

// Option configures a Server.
type Option func(*Server)

// WithRegistry replaces the process-wide acquisition registry.
func WithRegistry(registry *acquisition.Registry) Option {
	return func(s *Server) {
		s.registry = registry
	}
}

// WithDownloader replaces the HTTP downloader used to fetch binaries.
func WithDownloader(downloader fetch.Downloader) Option {
	return func(s *Server) {
		s.downloader = downloader
	}
}

// WithStatusObserver registers fn to be called on every status change.
func WithStatusObserver(fn StatusObserver) Option {
	return func(s *Server) {
		s.observers = append(s.observers, fn)
	}
}

// WithKeepOnTimeout leaves control tools and the postmaster running when a
// deadline expires instead of killing them.
func WithKeepOnTimeout() Option {
	return func(s *Server) {
		s.keepOnTimeout = true
		s.executorOptions = append(s.executorOptions, executor.WithKeepOnTimeout())
	}
}

// WithProcessLogLevel sets the minimum level at which control tool output is logged.
func WithProcessLogLevel(level zapcore.Level) Option {
	return func(s *Server) {
		s.executorOptions = append(s.executorOptions, executor.WithOutputLevel(level))
	}
}

// Server is one disposable PostgreSQL instance.
type Server struct {
	// settings is the validated instance configuration.
	settings Settings
	// fetch describes the binaries to use.
	fetch fetch.Settings
	// paths is the file layout of the instance.
	paths cache.Paths
	// registry deduplicates binary acquisitions.
	registry *acquisition.Registry
	// downloader fetches binaries, nil means plain HTTP.
	downloader fetch.Downloader
	// cache populates paths.CacheDir.
	cache *cache.Cache
	// observers receive every status change.
	observers []StatusObserver
	// keepOnTimeout disables killing processes on timeout.
	keepOnTimeout bool
	// executorOptions are passed to every control tool run.
	executorOptions []executor.Option

	// mu guards the fields below.
	mu sync.RWMutex
	// status is the current lifecycle state.
	status pg.ServerStatus
	// shuttingDown is set by Stop so that Close does not stop the server again.
	shuttingDown bool
	// startAttempted is set once Start ran, so Close knows a server may be up.
	startAttempted bool

	// closeOnce makes Close idempotent.
	closeOnce sync.Once
}

// New creates a Server in the Uninitialized state and derives its file layout.
func New(settings Settings, fetchSettings fetch.Settings, opts ...Option) (*Server, error) {
	settings, err := settings.withDefaults()
	if err != nil {
		return nil, err
	}

	paths, err := cache.NewPaths(settings.CacheRoot, fetchSettings, settings.DatabaseDir)
	if err != nil {
		return nil, err
	}

	s := &Server{
		settings: settings,
		fetch:    fetchSettings,
		paths:    paths,
		registry: sharedRegistry,
		status:   pg.StatusUninitialized,
	}

	for _, opt := range opts {
		opt(s)
	}

	s.cache = cache.New(s.registry, s.downloader)

	return s, nil
}

// Status returns the current lifecycle state.
func (s *Server) Status() pg.ServerStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.status
}

// Settings returns the effective settings.
func (s *Server) Settings() Settings {
	return s.settings
}

// Paths returns the file layout of the instance.
func (s *Server) Paths() cache.Paths {
	return s.paths
}

// URI returns the connection URI of the server without a database name.
func (s *Server) URI() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(s.settings.User, s.settings.Password),
		Host:   net.JoinHostPort("localhost", strconv.Itoa(int(s.settings.Port))),
	}

	return u.String()
}

// DatabaseURI returns the connection URI of database name.
func (s *Server) DatabaseURI(name string) string {
	return s.URI() + "/" + url.PathEscape(name)
}

// Setup makes the binaries available, writes the credential file and runs
// initdb unless the data directory already holds an initialised cluster.
func (s *Server) Setup(ctx context.Context) error {
	if err := s.expect("setup", pg.StatusUninitialized, pg.StatusInitialized, pg.StatusFailure); err != nil {
		return err
	}

	ctx = logger.WithKV(ctx, "database_dir", s.paths.DatabaseDir)

	if err := s.cache.EnsureBinaries(ctx, s.paths, s.fetch); err != nil {
		s.setStatus(pg.StatusFailure)

		return err
	}

	if err := s.paths.WritePasswordFile(s.settings.Password); err != nil {
		s.setStatus(pg.StatusFailure)

		return err
	}

	if s.paths.VersionMarkerExists() {
		logger.InfoKV(ctx, "Reusing initialised cluster")
		s.setStatus(pg.StatusInitialized)

		return nil
	}

	return s.run(ctx, pg.ProcessInitialize, s.paths.InitDB, initDBArgs(s.settings, s.paths))
}

// Start starts the server and waits until it accepts connections.
func (s *Server) Start(ctx context.Context) error {
	if err := s.expect("start", pg.StatusInitialized, pg.StatusStopped, pg.StatusFailure); err != nil {
		return err
	}

	s.mu.Lock()
	s.shuttingDown = false
	s.startAttempted = true
	s.mu.Unlock()

	ctx = logger.WithKV(ctx, "port", s.settings.Port)

	err := s.run(ctx, pg.ProcessStart, s.paths.PgCtl, startArgs(s.settings, s.paths))
	if err != nil && !s.keepOnTimeout {
		s.reap(ctx)
	}

	return err
}

// Stop stops the server and waits until it has shut down.
func (s *Server) Stop(ctx context.Context) error {
	if err := s.expect("stop", pg.StatusStarted, pg.StatusFailure); err != nil {
		return err
	}

	// Only a completed stop spares the teardown its own stop attempt.
	if err := s.run(ctx, pg.ProcessStop, s.paths.PgCtl, stopArgs(s.paths)); err != nil {
		if !s.keepOnTimeout {
			s.reap(ctx)
		}

		return err
	}

	s.mu.Lock()
	s.shuttingDown = true
	s.mu.Unlock()

	return nil
}

// run executes one control tool and records the resulting status.
func (s *Server) run(ctx context.Context, kind pg.ProcessKind, path string, args []string) error {
	s.setStatus(kind.EntryStatus())

	e, err := executor.Spawn(ctx, path, args, kind, s.executorOptions...)
	if err != nil {
		s.setStatus(pg.StatusFailure)

		return err
	}

	status, err := e.Execute(ctx, s.settings.Timeout)
	if err != nil {
		s.setStatus(pg.StatusFailure)

		return err
	}

	s.setStatus(status)

	return nil
}

// expect fails with ErrInvalidTransition unless the status is one of allowed.
func (s *Server) expect(operation string, allowed ...pg.ServerStatus) error {
	current := s.Status()
	if slices.Contains(allowed, current) {
		return nil
	}

	return fmt.Errorf("%w: cannot %s from %s", pg.ErrInvalidTransition, operation, current)
}

// setStatus records status and notifies the observers.
func (s *Server) setStatus(status pg.ServerStatus) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()

	for _, observe := range s.observers {
		observe(status)
	}
}
