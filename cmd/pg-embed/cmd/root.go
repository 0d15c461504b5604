package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/pg-embed/internal/config"
	"github.com/oshokin/pg-embed/internal/logger"
	"github.com/oshokin/pg-embed/internal/service/runner"
	"github.com/oshokin/pg-embed/internal/version"
)

var (
	// options collects the persistent flags shared by every subcommand.
	options = new(runner.Options)

	// rootCmd represents the base command.
	rootCmd = &cobra.Command{
		Use:   "pg-embed",
		Short: "Run a disposable PostgreSQL server.",
		Long: `Downloads prebuilt PostgreSQL binaries into a local cache, initialises a
cluster and drives it with the bundled control tools.

Settings are read from a YAML file (pg-embed.yaml by default). Binaries are
shared between clusters of the same version and platform.`,
		SilenceUsage: true,
	}

	// runCmd sets up and starts the server until interrupted.
	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Start a server and keep it running until interrupted.",
		Long: `Sets up the cluster if needed, starts the server and prints its connection URI.
The server is stopped on SIGINT or SIGTERM, and its files are removed unless
the settings mark it persistent.`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx, stop := notifyContext()
			defer stop()

			return runner.Run(ctx, options)
		},
	}

	// setupCmd only prepares binaries and the cluster.
	setupCmd = &cobra.Command{
		Use:   "setup",
		Short: "Download binaries and initialise the cluster.",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx, stop := notifyContext()
			defer stop()

			return runner.Setup(ctx, options)
		},
	}

	// migrateCmd applies migrations to a database.
	migrateCmd = &cobra.Command{
		Use:   "migrate <database>",
		Short: "Apply the configured migrations to a database.",
		Long: `Starts the server, creates the database if it does not exist, applies the
scripts of migration_dir and stops the server again.`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			ctx, stop := notifyContext()
			defer stop()

			return runner.Migrate(ctx, options, args[0])
		},
	}

	// purgeCmd removes the binary cache.
	purgeCmd = &cobra.Command{
		Use:   "purge",
		Short: "Remove every cached binary.",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx, stop := notifyContext()
			defer stop()

			return runner.Purge(ctx, options)
		},
	}

	// cleanCmd removes the cluster files.
	cleanCmd = &cobra.Command{
		Use:   "clean",
		Short: "Remove the data directory and credential file.",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx, stop := notifyContext()
			defer stop()

			return runner.Clean(ctx, options)
		},
	}
)

// Execute runs the pg-embed CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		logger.Errorf(context.Background(), "pg-embed failed: %v", err)
		os.Exit(1)
	}
}

// notifyContext returns a context cancelled on SIGINT or SIGTERM.
func notifyContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&options.ConfigPath, "config", "c", "", "path to configuration file (default "+config.DefaultConfigFilename+" if present)")
	flags.StringVar(&options.LogLevel, "log-level", "", "log level: debug, info, warn, error (overrides the settings file)")
	flags.StringVar(&options.ProcessLogLevel, "process-log-level", "", "minimum level of control tool output")

	rootCmd.AddCommand(runCmd, setupCmd, migrateCmd, purgeCmd, cleanCmd)
}
