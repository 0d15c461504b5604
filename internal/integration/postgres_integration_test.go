package integration

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/oshokin/pg-embed/internal/domain/pg"
	"github.com/oshokin/pg-embed/internal/service/postgres"
)

// TestServer_RealLifecycle provisions a cluster, runs SQL and migrations, and tears it down.
func TestServer_RealLifecycle(t *testing.T) {
	requireIntegration(t)

	ctx := context.Background()

	settings := serverSettings(t)
	settings.MigrationDir = t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(settings.MigrationDir, "1_create_items.up.sql"),
		[]byte("CREATE TABLE items (id serial PRIMARY KEY, name text NOT NULL);"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(settings.MigrationDir, "1_create_items.down.sql"),
		[]byte("DROP TABLE items;"), 0o600))

	server, err := postgres.New(settings, fetchSettings())
	require.NoError(t, err)

	defer func() {
		_ = server.Close()
	}()

	require.NoError(t, server.Setup(ctx))
	require.NoError(t, server.Start(ctx))
	require.Equal(t, pg.StatusStarted, server.Status())

	exists, err := server.DatabaseExists(ctx, "app")
	require.NoError(t, err)
	require.False(t, exists)

	require.NoError(t, server.CreateDatabase(ctx, "app"))

	exists, err = server.DatabaseExists(ctx, "app")
	require.NoError(t, err)
	require.True(t, exists)

	require.NoError(t, server.Migrate(ctx, "app"))
	require.NoError(t, server.Migrate(ctx, "app"))

	conn, err := pgx.Connect(ctx, server.DatabaseURI("app"))
	require.NoError(t, err)

	_, err = conn.Exec(ctx, "INSERT INTO items (name) VALUES ($1)", "first")
	require.NoError(t, err)
	require.NoError(t, conn.Close(ctx))

	require.NoError(t, server.DropDatabase(ctx, "app"))
	require.NoError(t, server.Stop(ctx))
	require.Equal(t, pg.StatusStopped, server.Status())

	require.NoError(t, server.Close())
	require.NoDirExists(t, settings.DatabaseDir)
}

// TestServer_RealStartTimeout fails a start that cannot finish in time and
// leaves no server listening behind.
func TestServer_RealStartTimeout(t *testing.T) {
	requireIntegration(t)

	ctx := context.Background()

	settings := serverSettings(t)
	settings.Persistent = true

	provisioner, err := postgres.New(settings, fetchSettings())
	require.NoError(t, err)
	require.NoError(t, provisioner.Setup(ctx))
	require.NoError(t, provisioner.Close())

	settings.Persistent = false
	settings.Timeout = 5 * time.Millisecond

	impatient, err := postgres.New(settings, fetchSettings())
	require.NoError(t, err)

	defer func() {
		_ = impatient.Close()
	}()

	require.NoError(t, impatient.Setup(ctx))
	require.ErrorIs(t, impatient.Start(ctx), pg.ErrTimedOut)
	require.Equal(t, pg.StatusFailure, impatient.Status())

	address := net.JoinHostPort("localhost", strconv.Itoa(int(settings.Port)))

	require.Eventually(t, func() bool {
		conn, dialErr := net.DialTimeout("tcp", address, 100*time.Millisecond)
		if dialErr != nil {
			return true
		}

		_ = conn.Close()

		return false
	}, 10*time.Second, 100*time.Millisecond)
}

// TestServer_RealReuse keeps a persistent cluster between instances.
func TestServer_RealReuse(t *testing.T) {
	requireIntegration(t)

	ctx := context.Background()

	settings := serverSettings(t)
	settings.Persistent = true

	first, err := postgres.New(settings, fetchSettings())
	require.NoError(t, err)
	require.NoError(t, first.Setup(ctx))
	require.NoError(t, first.Start(ctx))
	require.NoError(t, first.CreateDatabase(ctx, "kept"))
	require.NoError(t, first.Close())
	require.FileExists(t, first.Paths().VersionFile)

	second, err := postgres.New(settings, fetchSettings())
	require.NoError(t, err)

	defer func() {
		_ = second.CleanUp(ctx)
	}()

	require.NoError(t, second.Setup(ctx))
	require.NoError(t, second.Start(ctx))

	exists, err := second.DatabaseExists(ctx, "kept")
	require.NoError(t, err)
	require.True(t, exists)

	require.NoError(t, second.Stop(ctx))
	require.NoError(t, second.Close())
}
