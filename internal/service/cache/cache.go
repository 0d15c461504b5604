package cache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/oshokin/pg-embed/internal/domain/pg"
	"github.com/oshokin/pg-embed/internal/logger"
	"github.com/oshokin/pg-embed/internal/repository/acquisition"
	"github.com/oshokin/pg-embed/internal/service/fetch"
	"github.com/oshokin/pg-embed/internal/service/unpack"
)

const (
	dirMode          os.FileMode = 0o755
	fileMode         os.FileMode = 0o644
	passwordFileMode os.FileMode = 0o600
	// lockRetryDelay is how often a blocked caller polls the cross-process lock.
	lockRetryDelay = 100 * time.Millisecond
)

// Cache acquires binaries into cache directories.
type Cache struct {
	// registry serialises acquisitions of the same path inside the process.
	registry *acquisition.Registry
	// downloader fetches artifact bytes.
	downloader fetch.Downloader
}

// New creates a Cache. A nil downloader means plain HTTP with the default client.
func New(registry *acquisition.Registry, downloader fetch.Downloader) *Cache {
	if registry == nil {
		registry = acquisition.NewRegistry()
	}

	if downloader == nil {
		downloader = fetch.NewHTTPDownloader(nil)
	}

	return &Cache{
		registry:   registry,
		downloader: downloader,
	}
}

// Registry returns the acquisition registry used by the cache.
func (c *Cache) Registry() *acquisition.Registry {
	return c.registry
}

// EnsureBinaries makes sure the control tools of paths exist, downloading and
// unpacking the artifact described by settings when they do not.
func (c *Cache) EnsureBinaries(ctx context.Context, paths Paths, settings fetch.Settings) error {
	if paths.BinariesPresent() {
		logger.DebugKV(ctx, "Binaries already cached", "cache_dir", paths.CacheDir)

		return nil
	}

	key := acquisition.CanonicalPath(paths.CacheDir)

	for attempt := 0; ; attempt++ {
		err := c.registry.Acquire(ctx, key, func(ctx context.Context) error {
			return c.acquire(ctx, paths, settings)
		})
		if err != nil {
			return err
		}

		if paths.BinariesPresent() {
			return nil
		}

		if attempt > 0 {
			return fmt.Errorf("%w: control tools missing from %s", pg.ErrInvalidPackage, paths.CacheDir)
		}

		// The entry finished earlier but the files are gone, e.g. purged by another process.
		logger.WarnKV(ctx, "Cached binaries disappeared, acquiring again", "cache_dir", paths.CacheDir)
		c.registry.Invalidate(key)
	}
}

// acquire runs under the registry entry for paths.CacheDir.
func (c *Cache) acquire(ctx context.Context, paths Paths, settings fetch.Settings) error {
	// A purge removes the directory along with the binaries.
	if err := os.MkdirAll(paths.CacheDir, dirMode); err != nil {
		return fmt.Errorf("%w: %s: %w", pg.ErrDirCreation, paths.CacheDir, err)
	}

	lock := flock.New(paths.CacheDir + ".lock")

	locked, err := lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", pg.ErrLock, lock.Path(), err)
	}

	if !locked {
		return fmt.Errorf("%w: %s is held by another process", pg.ErrLock, lock.Path())
	}

	defer func() {
		if unlockErr := lock.Unlock(); unlockErr != nil {
			logger.WarnKV(ctx, "Could not release cache lock", "path", lock.Path(), "error", unlockErr)
		}
	}()

	// Another process may have finished while we waited for the lock.
	if paths.BinariesPresent() {
		return nil
	}

	url, err := settings.URL()
	if err != nil {
		return err
	}

	if err = c.download(ctx, url, paths.ZipFile); err != nil {
		return err
	}

	if err = unpack.Unpack(ctx, paths.ZipFile, paths.CacheDir); err != nil {
		return err
	}

	if !paths.BinariesPresent() {
		return fmt.Errorf("%w: %s has no control tools", pg.ErrInvalidPackage, paths.ZipFile)
	}

	return nil
}

// download streams url into a uniquely named temporary file and renames it to
// target once complete, so target is never observed half written.
func (c *Cache) download(ctx context.Context, url, target string) error {
	tmpPath := filepath.Join(filepath.Dir(target), "."+uuid.NewString()+".download")

	file, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, fileMode)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", pg.ErrWriteFile, tmpPath, err)
	}

	defer func() {
		_ = os.Remove(tmpPath)
	}()

	written, err := c.downloader.Download(ctx, url, file)
	if closeErr := file.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("%w: %s: %w", pg.ErrWriteFile, tmpPath, closeErr)
	}

	if err != nil {
		return err
	}

	if err = os.Rename(tmpPath, target); err != nil {
		return fmt.Errorf("%w: %s: %w", pg.ErrWriteFile, target, err)
	}

	logger.InfoKV(ctx, "Stored postgresql artifact", "path", target, "bytes", written)

	return nil
}
