package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/pg-embed/internal/domain/pg"
	"github.com/oshokin/pg-embed/internal/service/fetch"
	"github.com/oshokin/pg-embed/internal/service/postgres"
)

// TestValidate_Defaults fills every optional field.
func TestValidate_Defaults(t *testing.T) {
	t.Parallel()

	settings := new(Config)
	require.NoError(t, Validate(settings))

	require.Equal(t, fetch.DefaultHost, settings.Host)
	require.Equal(t, string(fetch.V17), settings.Version)
	require.Equal(t, string(pg.DetectOperatingSystem()), settings.OS)
	require.Equal(t, string(pg.DetectArchitecture()), settings.Arch)
	require.Equal(t, DefaultDatabaseDir, settings.DatabaseDir)
	require.Equal(t, postgres.DefaultPort, settings.Port)
	require.Equal(t, "postgres", settings.User)
	require.Equal(t, "md5", settings.AuthMethod)
	require.Equal(t, postgres.DefaultTimeout, settings.Timeout)
	require.Equal(t, DefaultLogLevel, settings.LogLevel)
}

// TestValidate_Errors rejects malformed fields.
func TestValidate_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		settings Config
	}{
		{name: "ftp host", settings: Config{Host: "ftp://example.com"}},
		{name: "relative host", settings: Config{Host: "example.com"}},
		{name: "unknown os", settings: Config{OS: "plan9"}},
		{name: "unknown arch", settings: Config{Arch: "mips"}},
		{name: "unknown auth", settings: Config{AuthMethod: "trust"}},
		{name: "negative timeout", settings: Config{Timeout: -time.Second}},
		{name: "unknown log level", settings: Config{LogLevel: "verbose"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			require.Error(t, Validate(&tt.settings))
		})
	}

	require.ErrorIs(t, Validate(nil), errConfigIsNotSet)
}

// TestSaveLoad writes settings with restricted permissions and reads them back.
func TestSaveLoad(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "pg-embed.yaml")
	original := &Config{
		DatabaseDir: "/var/tmp/db",
		Port:        15432,
		User:        "tester",
		Password:    "secret",
		AuthMethod:  "scram-sha-256",
		Persistent:  true,
		Timeout:     3 * time.Second,
		OS:          "alpine-linux",
		Arch:        "arm64v8",
	}

	require.NoError(t, Save(path, original))

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(DefaultFilePermissions), info.Mode().Perm())

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, original, loaded)

	require.ErrorIs(t, Save(path, nil), errConfigIsNotSet)
}

// TestLoad_YAML parses a hand written file.
func TestLoad_YAML(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
version: 16.6.0
os: linux
arch: amd64
database_dir: ./data
port: 6543
timeout: 30s
migration_dir: ./migrations
log_level: debug
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 30*time.Second, cfg.Timeout)

	fetchSettings, err := cfg.FetchSettings()
	require.NoError(t, err)
	require.Equal(t, fetch.V16, fetchSettings.Version)
	require.Equal(t, "linux-amd64", fetchSettings.Platform())

	serverSettings, err := cfg.ServerSettings()
	require.NoError(t, err)
	require.Equal(t, uint16(6543), serverSettings.Port)
	require.Equal(t, pg.AuthMD5, serverSettings.AuthMethod)
	require.Equal(t, "./migrations", serverSettings.MigrationDir)
	require.Equal(t, "./data", serverSettings.DatabaseDir)
}

// TestLoad_Missing fails for an explicit path only.
func TestLoad_Missing(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	require.NotNil(t, Default())
}

// TestLoad_Invalid reports malformed YAML.
func TestLoad_Invalid(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: [1, 2"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
}
