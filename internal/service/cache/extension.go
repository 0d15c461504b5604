package cache

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/oshokin/pg-embed/internal/domain/pg"
	"github.com/oshokin/pg-embed/internal/logger"
)

// InstallExtension copies the extension files found in extensionDir into the
// binary cache: control and sql scripts go to the extension share directory,
// shared libraries to the library directory.
func (p Paths) InstallExtension(ctx context.Context, extensionDir string) error {
	entries, err := os.ReadDir(extensionDir)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", pg.ErrReadFile, extensionDir, err)
	}

	shareDir := firstExisting(
		filepath.Join(p.CacheDir, "share", "postgresql", "extension"),
		filepath.Join(p.CacheDir, "share", "extension"))
	libDir := firstExisting(
		filepath.Join(p.CacheDir, "lib", "postgresql"),
		filepath.Join(p.CacheDir, "lib"))

	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}

		var targetDir string

		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".control", ".sql":
			targetDir = shareDir
		case ".so", ".dylib", ".dll":
			targetDir = libDir
		default:
			logger.DebugKV(ctx, "Skipping non-extension file", "name", entry.Name())

			continue
		}

		if err = copyFile(filepath.Join(extensionDir, entry.Name()), filepath.Join(targetDir, entry.Name())); err != nil {
			return err
		}
	}

	logger.InfoKV(ctx, "Installed extension", "source", extensionDir, "cache_dir", p.CacheDir)

	return nil
}

// firstExisting returns the first directory that exists, or the last candidate.
func firstExisting(candidates ...string) string {
	for _, dir := range candidates {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return dir
		}
	}

	return candidates[len(candidates)-1]
}

func copyFile(source, target string) error {
	in, err := os.Open(filepath.Clean(source))
	if err != nil {
		return fmt.Errorf("%w: %s: %w", pg.ErrReadFile, source, err)
	}

	defer func() {
		_ = in.Close()
	}()

	if err = os.MkdirAll(filepath.Dir(target), dirMode); err != nil {
		return fmt.Errorf("%w: %s: %w", pg.ErrDirCreation, filepath.Dir(target), err)
	}

	out, err := os.OpenFile(filepath.Clean(target), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, fileMode)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", pg.ErrWriteFile, target, err)
	}

	if _, err = io.Copy(out, in); err != nil {
		_ = out.Close()

		return fmt.Errorf("%w: %s: %w", pg.ErrWriteFile, target, err)
	}

	if err = out.Close(); err != nil {
		return fmt.Errorf("%w: %s: %w", pg.ErrWriteFile, target, err)
	}

	return nil
}
