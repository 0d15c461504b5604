package cache

import (
	"context"
	"errors"
	"fmt"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/oshokin/pg-embed/internal/domain/pg"
	"github.com/oshokin/pg-embed/internal/logger"
)

// Purge removes the whole binary cache below cacheRoot. It refuses to run
// while any acquisition of this cache is in progress.
func (c *Cache) Purge(ctx context.Context, cacheRoot string) error {
	if c.registry.InProgress() {
		return fmt.Errorf("%w: an acquisition is in progress", pg.ErrPurge)
	}

	root, err := Root(cacheRoot)
	if err != nil {
		return fmt.Errorf("%w: %w", pg.ErrPurge, err)
	}

	if err = os.RemoveAll(root); err != nil {
		return fmt.Errorf("%w: %s: %w", pg.ErrPurge, root, err)
	}

	c.registry.Forget()

	logger.InfoKV(ctx, "Purged binary cache", "path", root)

	return nil
}

// CleanUp removes a cluster data directory and its credential file
// concurrently. Missing paths are not an error.
func CleanUp(ctx context.Context, databaseDir, passwordFile string) error {
	group, _ := errgroup.WithContext(ctx)

	group.Go(func() error {
		if err := os.RemoveAll(databaseDir); err != nil {
			return fmt.Errorf("%w: %s: %w", pg.ErrCleanUp, databaseDir, err)
		}

		return nil
	})

	group.Go(func() error {
		if err := os.Remove(passwordFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s: %w", pg.ErrCleanUp, passwordFile, err)
		}

		return nil
	})

	if err := group.Wait(); err != nil {
		return err
	}

	logger.DebugKV(ctx, "Removed cluster files", "database_dir", databaseDir, "password_file", passwordFile)

	return nil
}
