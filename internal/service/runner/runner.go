package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/oshokin/pg-embed/internal/config"
	"github.com/oshokin/pg-embed/internal/logger"
	"github.com/oshokin/pg-embed/internal/service/postgres"
)

// Options controls a pg-embed subcommand.
type Options struct {
	// ConfigPath is the settings file. Empty means the default file if present.
	ConfigPath string
	// LogLevel overrides the log level of the settings file.
	LogLevel string
	// ProcessLogLevel is the minimum level of control tool output.
	ProcessLogLevel string
	// Out receives connection URIs. Nil means os.Stdout.
	Out io.Writer
	// ServerOptions are appended to the options of the created server.
	ServerOptions []postgres.Option
}

var (
	// errInvalidLogLevel is returned for an unknown log level flag.
	errInvalidLogLevel = errors.New("unknown log level")
	// errDatabaseRequired is returned when migrate is called without a database name.
	errDatabaseRequired = errors.New("database name is required")
)

// Run sets up and starts the server, prints its URI and blocks until ctx is
// done. The server is then stopped and torn down.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "run")

	server, err := newServer(ctx, opts)
	if err != nil {
		return err
	}

	defer func() {
		_ = server.Close()
	}()

	if err = server.Setup(ctx); err != nil {
		return fmt.Errorf("setup: %w", err)
	}

	if err = server.Start(ctx); err != nil {
		return fmt.Errorf("start: %w", err)
	}

	_, _ = fmt.Fprintln(output(opts), server.URI())

	logger.InfoKV(ctx, "PostgreSQL is running, press Ctrl+C to stop", "port", server.Settings().Port)

	<-ctx.Done()

	// ctx is already cancelled, the stop gets a fresh one bounded by the server timeout.
	if err = server.Stop(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("stop: %w", err)
	}

	return nil
}

// Setup acquires the binaries and initialises the cluster, leaving both on disk.
func Setup(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "setup")

	server, err := newServer(ctx, opts)
	if err != nil {
		return err
	}

	if err = server.Setup(ctx); err != nil {
		return fmt.Errorf("setup: %w", err)
	}

	logger.InfoKV(ctx, "Cluster is ready", "database_dir", server.Paths().DatabaseDir)

	return nil
}

// Migrate starts the server, creates database if it is missing, applies the
// configured migrations to it and stops the server again.
func Migrate(ctx context.Context, opts *Options, database string) error {
	if database == "" {
		return errDatabaseRequired
	}

	ctx = logger.WithName(ctx, "migrate")

	server, err := newServer(ctx, opts)
	if err != nil {
		return err
	}

	defer func() {
		_ = server.Close()
	}()

	if err = server.Setup(ctx); err != nil {
		return fmt.Errorf("setup: %w", err)
	}

	if err = server.Start(ctx); err != nil {
		return fmt.Errorf("start: %w", err)
	}

	if err = createIfMissing(ctx, server, database); err != nil {
		return err
	}

	if err = server.Migrate(ctx, database); err != nil {
		return fmt.Errorf("migrate %s: %w", database, err)
	}

	_, _ = fmt.Fprintln(output(opts), server.DatabaseURI(database))

	if err = server.Stop(ctx); err != nil {
		return fmt.Errorf("stop: %w", err)
	}

	return nil
}

// Purge removes the whole binary cache.
func Purge(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "purge")

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	return postgres.Purge(ctx, cfg.CacheDir)
}

// Clean removes the configured data directory and credential file.
func Clean(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "clean")

	server, err := newServer(ctx, opts)
	if err != nil {
		return err
	}

	return server.CleanUp(ctx)
}

func createIfMissing(ctx context.Context, server *postgres.Server, database string) error {
	exists, err := server.DatabaseExists(ctx, database)
	if err != nil {
		return fmt.Errorf("check database %s: %w", database, err)
	}

	if exists {
		return nil
	}

	if err = server.CreateDatabase(ctx, database); err != nil {
		return fmt.Errorf("create database %s: %w", database, err)
	}

	logger.InfoKV(ctx, "Created database", "database", database)

	return nil
}

// loadConfig reads the settings file and applies the log level.
func loadConfig(opts *Options) (*config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	levelName := cfg.LogLevel
	if opts.LogLevel != "" {
		levelName = opts.LogLevel
	}

	level, ok := logger.ParseLogLevel(levelName)
	if !ok {
		return nil, fmt.Errorf("%w: %q", errInvalidLogLevel, levelName)
	}

	logger.SetLevel(level)

	return cfg, nil
}

// newServer builds the server described by the settings file.
func newServer(ctx context.Context, opts *Options) (*postgres.Server, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}

	fetchSettings, err := cfg.FetchSettings()
	if err != nil {
		return nil, fmt.Errorf("fetch settings: %w", err)
	}

	serverSettings, err := cfg.ServerSettings()
	if err != nil {
		return nil, fmt.Errorf("server settings: %w", err)
	}

	serverOptions := make([]postgres.Option, 0, len(opts.ServerOptions)+1)

	if opts.ProcessLogLevel != "" {
		level, ok := logger.ParseLogLevel(opts.ProcessLogLevel)
		if !ok {
			return nil, fmt.Errorf("%w: %q", errInvalidLogLevel, opts.ProcessLogLevel)
		}

		serverOptions = append(serverOptions, postgres.WithProcessLogLevel(level))
	}

	serverOptions = append(serverOptions, opts.ServerOptions...)

	server, err := postgres.New(serverSettings, fetchSettings, serverOptions...)
	if err != nil {
		return nil, fmt.Errorf("create server: %w", err)
	}

	logger.DebugKV(ctx, "Server configured",
		"platform", fetchSettings.Platform(),
		"version", fetchSettings.Version,
		"database_dir", server.Paths().DatabaseDir)

	return server, nil
}

func output(opts *Options) io.Writer {
	if opts.Out == nil {
		return os.Stdout
	}

	return opts.Out
}
