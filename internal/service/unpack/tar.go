package unpack

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/oshokin/pg-embed/internal/domain/pg"
	"github.com/oshokin/pg-embed/internal/logger"
)

const (
	// dirMode is used for directories created during extraction.
	dirMode os.FileMode = 0o755
	// minFileMode keeps extracted files writable by the owner so the cache can be purged.
	minFileMode os.FileMode = 0o600
)

// destination confines every write of an extraction to one directory.
type destination struct {
	root *os.Root
	// base is the destination with its own symlinks resolved.
	base string
}

// extract writes every entry of the tar stream below destDir.
func extract(ctx context.Context, stream io.Reader, destDir string) error {
	abs, err := filepath.Abs(destDir)
	if err != nil {
		return fmt.Errorf("%w: resolve %s: %w", pg.ErrUnpack, destDir, err)
	}

	base, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return fmt.Errorf("%w: resolve %s: %w", pg.ErrUnpack, destDir, err)
	}

	root, err := os.OpenRoot(base)
	if err != nil {
		return fmt.Errorf("%w: open %s: %w", pg.ErrUnpack, destDir, err)
	}

	defer func() {
		_ = root.Close()
	}()

	dest := &destination{root: root, base: base}
	reader := tar.NewReader(stream)

	for {
		if err = ctx.Err(); err != nil {
			return fmt.Errorf("%w: %w", pg.ErrUnpack, err)
		}

		var header *tar.Header

		header, err = reader.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}

		if err != nil {
			return fmt.Errorf("%w: read tar entry: %w", pg.ErrUnpack, err)
		}

		if err = dest.extractEntry(ctx, reader, header); err != nil {
			return err
		}
	}
}

// extractEntry materialises one tar entry.
func (d *destination) extractEntry(ctx context.Context, reader io.Reader, header *tar.Header) error {
	name := filepath.Clean(filepath.FromSlash(header.Name))
	if name == "." {
		return nil
	}

	if !filepath.IsLocal(name) {
		return fmt.Errorf("%w: entry %q escapes destination", pg.ErrUnpack, header.Name)
	}

	switch header.Typeflag {
	case tar.TypeDir:
		return d.mkdirAll(name)
	case tar.TypeReg:
		return d.writeFile(reader, name, header.FileInfo().Mode().Perm()|minFileMode)
	case tar.TypeSymlink:
		return d.writeSymlink(header.Linkname, name)
	case tar.TypeLink:
		return d.writeHardLink(header.Linkname, name)
	default:
		logger.DebugKV(ctx, "Skipping unsupported tar entry", "name", header.Name, "type", header.Typeflag)

		return nil
	}
}

// mkdirAll creates name and its parents inside the destination.
func (d *destination) mkdirAll(name string) error {
	if name == "." {
		return nil
	}

	if err := d.root.MkdirAll(name, dirMode); err != nil {
		return fmt.Errorf("%w: %s: %w", pg.ErrDirCreation, name, err)
	}

	return nil
}

// writeFile copies a regular file entry to name.
func (d *destination) writeFile(reader io.Reader, name string, mode os.FileMode) error {
	if err := d.mkdirAll(filepath.Dir(name)); err != nil {
		return err
	}

	file, err := d.root.OpenFile(name, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", pg.ErrWriteFile, name, err)
	}

	if _, err = io.Copy(file, reader); err != nil {
		_ = file.Close()

		return fmt.Errorf("%w: %s: %w", pg.ErrUnpack, name, err)
	}

	if err = file.Close(); err != nil {
		return fmt.Errorf("%w: %s: %w", pg.ErrWriteFile, name, err)
	}

	return nil
}

// writeSymlink creates a relative symlink that must resolve inside the
// destination once the links already on disk are followed.
func (d *destination) writeSymlink(linkname, name string) error {
	if filepath.IsAbs(linkname) {
		return fmt.Errorf("%w: absolute symlink %s -> %s", pg.ErrUnpack, name, linkname)
	}

	parent := filepath.Dir(name)
	if err := d.mkdirAll(parent); err != nil {
		return err
	}

	realParent, err := filepath.EvalSymlinks(filepath.Join(d.base, parent))
	if err != nil {
		return fmt.Errorf("%w: resolve %s: %w", pg.ErrUnpack, parent, err)
	}

	resolved := filepath.Join(realParent, filepath.FromSlash(linkname))
	if !isWithin(d.base, realParent) || !isWithin(d.base, resolved) {
		return fmt.Errorf("%w: symlink %s -> %s escapes destination", pg.ErrUnpack, name, linkname)
	}

	_ = d.root.Remove(name)

	if err = d.root.Symlink(linkname, name); err != nil {
		return fmt.Errorf("%w: symlink %s: %w", pg.ErrWriteFile, name, err)
	}

	return nil
}

// writeHardLink links name to an already extracted entry of the destination.
func (d *destination) writeHardLink(linkname, name string) error {
	source := filepath.Clean(filepath.FromSlash(linkname))
	if !filepath.IsLocal(source) {
		return fmt.Errorf("%w: hard link %s -> %s escapes destination", pg.ErrUnpack, name, linkname)
	}

	if err := d.mkdirAll(filepath.Dir(name)); err != nil {
		return err
	}

	_ = d.root.Remove(name)

	if err := d.root.Link(source, name); err != nil {
		return fmt.Errorf("%w: hard link %s: %w", pg.ErrWriteFile, name, err)
	}

	return nil
}
