package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/oshokin/pg-embed/internal/domain/pg"
	"github.com/oshokin/pg-embed/internal/service/fetch"
)

const (
	// Namespace is the directory created under the cache root.
	Namespace = "pg-embed"
	// VersionMarker is written by initdb into a provisioned cluster.
	VersionMarker = "PG_VERSION"
	// passwordFileSuffix is appended to the data directory to name the credential file.
	passwordFileSuffix = ".pwfile"
)

// Paths is the derived-once file layout of one server instance.
type Paths struct {
	// CacheDir holds the unpacked binaries for one os/arch/version.
	CacheDir string
	// PgCtl is the pg_ctl executable.
	PgCtl string
	// InitDB is the initdb executable.
	InitDB string
	// DatabaseDir is the cluster data directory.
	DatabaseDir string
	// PasswordFile holds the superuser password passed to initdb.
	PasswordFile string
	// ZipFile is the downloaded artifact.
	ZipFile string
	// VersionFile marks an initialised cluster.
	VersionFile string
}

// Root returns the namespace directory below cacheRoot, falling back to the
// user cache directory when cacheRoot is empty.
func Root(cacheRoot string) (string, error) {
	if cacheRoot == "" {
		userCache, err := os.UserCacheDir()
		if err != nil {
			return "", fmt.Errorf("%w: resolve user cache directory: %w", pg.ErrDirCreation, err)
		}

		cacheRoot = userCache
	}

	root, err := filepath.Abs(filepath.Join(cacheRoot, Namespace))
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", pg.ErrDirCreation, cacheRoot, err)
	}

	return root, nil
}

// NewPaths derives the layout for settings and databaseDir and creates the
// directories the instance writes into.
func NewPaths(cacheRoot string, settings fetch.Settings, databaseDir string) (Paths, error) {
	if databaseDir == "" {
		return Paths{}, fmt.Errorf("%w: database directory is empty", pg.ErrDirCreation)
	}

	root, err := Root(cacheRoot)
	if err != nil {
		return Paths{}, err
	}

	cacheDir := filepath.Join(root,
		settings.OperatingSystem.CacheName(),
		string(settings.Architecture),
		string(settings.Version))

	dataDir, err := filepath.Abs(databaseDir)
	if err != nil {
		return Paths{}, fmt.Errorf("%w: %s: %w", pg.ErrDirCreation, databaseDir, err)
	}

	for _, dir := range []string{cacheDir, filepath.Dir(dataDir)} {
		if err = os.MkdirAll(dir, dirMode); err != nil {
			return Paths{}, fmt.Errorf("%w: %s: %w", pg.ErrDirCreation, dir, err)
		}
	}

	return Paths{
		CacheDir:     cacheDir,
		PgCtl:        executable(cacheDir, "pg_ctl"),
		InitDB:       executable(cacheDir, "initdb"),
		DatabaseDir:  dataDir,
		PasswordFile: dataDir + passwordFileSuffix,
		ZipFile:      filepath.Join(cacheDir, settings.ArtifactName()),
		VersionFile:  filepath.Join(dataDir, VersionMarker),
	}, nil
}

// executable returns the path of a control tool below cacheDir.
func executable(cacheDir, name string) string {
	if runtime.GOOS == "windows" {
		name += ".exe"
	}

	return filepath.Join(cacheDir, "bin", name)
}

// BinariesPresent reports whether both control tools exist.
func (p Paths) BinariesPresent() bool {
	return isFile(p.InitDB) && isFile(p.PgCtl)
}

// VersionMarkerExists reports whether the cluster was already initialised.
func (p Paths) VersionMarkerExists() bool {
	return isFile(p.VersionFile)
}

// WritePasswordFile stores password where initdb reads it from.
func (p Paths) WritePasswordFile(password string) error {
	if err := os.WriteFile(p.PasswordFile, []byte(password), passwordFileMode); err != nil {
		return fmt.Errorf("%w: %s: %w", pg.ErrWriteFile, p.PasswordFile, err)
	}

	return nil
}

func isFile(path string) bool {
	info, err := os.Stat(path)

	return err == nil && info.Mode().IsRegular()
}
