// Package integration runs pg-embed against real PostgreSQL binaries.
//
// The tests download binaries from Maven Central into the user cache
// directory, so they only run when PG_EMBED_INTEGRATION is set.
package integration

import (
	"net"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/pg-embed/internal/service/fetch"
	"github.com/oshokin/pg-embed/internal/service/postgres"
)

// requireIntegration skips the test unless integration runs are enabled.
func requireIntegration(t *testing.T) {
	t.Helper()

	if os.Getenv("PG_EMBED_INTEGRATION") == "" {
		t.Skip("set PG_EMBED_INTEGRATION=1 to run against real PostgreSQL binaries")
	}

	if runtime.GOOS == "windows" {
		t.Skip("integration tests run on unix hosts only")
	}
}

// reservePort returns a TCP port that was free a moment ago.
func reservePort(t *testing.T) uint16 {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	port := l.Addr().(*net.TCPAddr).Port
	_ = l.Close()

	return uint16(port) //nolint:gosec // TCP ports fit into uint16.
}

// serverSettings returns non-persistent settings with a fresh port and data directory.
func serverSettings(t *testing.T) postgres.Settings {
	t.Helper()

	settings := postgres.DefaultSettings(filepath.Join(t.TempDir(), "db"))
	settings.Port = reservePort(t)
	settings.Timeout = time.Minute

	return settings
}

// fetchSettings selects the default binaries for the host.
func fetchSettings() fetch.Settings {
	return fetch.DefaultSettings()
}
