package postgres

import (
	"fmt"
	"time"

	"github.com/oshokin/pg-embed/internal/domain/pg"
)

const (
	// DefaultPort is the port used when Settings.Port is zero.
	DefaultPort uint16 = 5432
	// DefaultUser is the superuser created by initdb when Settings.User is empty.
	DefaultUser = "postgres"
	// DefaultTimeout bounds each control tool invocation by default.
	DefaultTimeout = 15 * time.Second
)

// Settings describes one server instance.
type Settings struct {
	// CacheRoot overrides the user cache directory as the binary cache root.
	CacheRoot string
	// DatabaseDir is the cluster data directory.
	DatabaseDir string
	// Port is the TCP port the server listens on.
	Port uint16
	// User is the superuser name.
	User string
	// Password is the superuser password.
	Password string
	// AuthMethod is the host authentication method passed to initdb.
	AuthMethod pg.AuthMethod
	// Persistent keeps the data directory and credential file on Close.
	Persistent bool
	// Timeout bounds each control tool invocation. Zero waits forever.
	Timeout time.Duration
	// MigrationDir holds golang-migrate style scripts applied by Migrate.
	MigrationDir string
}

// DefaultSettings returns settings for a throwaway server in databaseDir.
func DefaultSettings(databaseDir string) Settings {
	return Settings{
		DatabaseDir: databaseDir,
		Port:        DefaultPort,
		User:        DefaultUser,
		Password:    DefaultUser,
		AuthMethod:  pg.AuthMD5,
		Timeout:     DefaultTimeout,
	}
}

// withDefaults fills the zero fields that have a safe default.
func (s Settings) withDefaults() (Settings, error) {
	if s.DatabaseDir == "" {
		return s, fmt.Errorf("%w: database directory is required", pg.ErrGeneric)
	}

	if s.Port == 0 {
		s.Port = DefaultPort
	}

	if s.User == "" {
		s.User = DefaultUser
	}

	if s.Timeout < 0 {
		return s, fmt.Errorf("%w: negative timeout %s", pg.ErrGeneric, s.Timeout)
	}

	return s, nil
}
