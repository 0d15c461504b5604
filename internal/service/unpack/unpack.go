package unpack

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
	"github.com/ulikunitz/xz"

	"github.com/oshokin/pg-embed/internal/domain/pg"
	"github.com/oshokin/pg-embed/internal/logger"
)

// memoryPayloadLimit is the largest compressed payload decompressed in memory.
// Bigger payloads are spilled to a temporary file next to the destination.
const memoryPayloadLimit = 4 << 20

// payloadSuffixes are the member name suffixes of an xz-compressed tar.
//
//nolint:gochecknoglobals // Read-only list.
var payloadSuffixes = []string{".txz", ".tar.xz"}

// Unpack extracts the binaries found in containerPath into destDir.
//
// The work runs on its own goroutine and Unpack joins it before returning,
// so temporary artifacts are always removed by the time it returns. Context
// cancellation is checked between reads and between tar entries.
func Unpack(ctx context.Context, containerPath, destDir string) error {
	result := make(chan error, 1)

	go func() {
		defer func() {
			if p := recover(); p != nil {
				result <- fmt.Errorf("%w: unpack worker panicked: %v", pg.ErrTaskJoin, p)
			}
		}()

		result <- unpack(ctx, containerPath, destDir)
	}()

	return <-result
}

// unpack runs the three stages in order.
func unpack(ctx context.Context, containerPath, destDir string) error {
	container, err := zip.OpenReader(containerPath)
	if err != nil {
		return fmt.Errorf("%w: open container %s: %w", pg.ErrReadFile, containerPath, err)
	}

	defer func() {
		_ = container.Close()
	}()

	member := findPayload(container.File)
	if member == nil {
		return fmt.Errorf("%w: no xz compressed tar found in %s", pg.ErrInvalidPackage, containerPath)
	}

	logger.DebugKV(ctx, "Found binaries payload", "container", containerPath, "member", member.Name)

	if err = os.MkdirAll(destDir, dirMode); err != nil {
		return fmt.Errorf("%w: %s: %w", pg.ErrDirCreation, destDir, err)
	}

	stream, cleanup, err := decompress(ctx, member, destDir)
	if err != nil {
		return err
	}

	defer cleanup()

	if err = extract(ctx, stream, destDir); err != nil {
		return err
	}

	logger.InfoKV(ctx, "Unpacked postgresql binaries", "destination", destDir)

	return nil
}

// findPayload returns the first member whose name marks an xz-compressed tar.
func findPayload(files []*zip.File) *zip.File {
	for _, f := range files {
		name := strings.ToLower(f.Name)
		for _, suffix := range payloadSuffixes {
			if strings.HasSuffix(name, suffix) {
				return f
			}
		}
	}

	return nil
}

// decompress returns the tar byte stream of member and a function removing
// whatever was created to hold it.
func decompress(ctx context.Context, member *zip.File, destDir string) (io.Reader, func(), error) {
	compressed, err := member.Open()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: open member %s: %w", pg.ErrReadFile, member.Name, err)
	}

	defer func() {
		_ = compressed.Close()
	}()

	decoder, err := xz.NewReader(&contextReader{ctx: ctx, r: compressed})
	if err != nil {
		return nil, nil, fmt.Errorf("%w: read xz header of %s: %w", pg.ErrUnpack, member.Name, err)
	}

	if member.UncompressedSize64 <= memoryPayloadLimit {
		var buf bytes.Buffer
		if _, err = io.Copy(&buf, decoder); err != nil {
			return nil, nil, fmt.Errorf("%w: decompress %s: %w", pg.ErrUnpack, member.Name, err)
		}

		return &buf, func() {}, nil
	}

	return spill(ctx, decoder, member.Name, destDir)
}

// spill writes the decompressed stream to a temporary file inside destDir
// and reopens it for reading.
func spill(ctx context.Context, decoder io.Reader, name, destDir string) (io.Reader, func(), error) {
	tmp, err := os.CreateTemp(destDir, ".pg-embed-*.tar")
	if err != nil {
		return nil, nil, fmt.Errorf("%w: create temporary tar: %w", pg.ErrWriteFile, err)
	}

	tmpPath := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()

		if removeErr := os.Remove(tmpPath); removeErr != nil && !os.IsNotExist(removeErr) {
			logger.WarnKV(ctx, "Could not remove temporary tar", "path", tmpPath, "error", removeErr)
		}
	}

	if _, err = io.Copy(tmp, decoder); err != nil {
		cleanup()

		return nil, nil, fmt.Errorf("%w: decompress %s: %w", pg.ErrUnpack, name, err)
	}

	if _, err = tmp.Seek(0, io.SeekStart); err != nil {
		cleanup()

		return nil, nil, fmt.Errorf("%w: rewind temporary tar: %w", pg.ErrReadFile, err)
	}

	return &contextReader{ctx: ctx, r: tmp}, cleanup, nil
}

// contextReader fails reads once its context is done.
type contextReader struct {
	// ctx bounds the reads.
	ctx context.Context //nolint:containedctx // Scoped to a single pipeline run.
	// r is the wrapped reader.
	r io.Reader
}

// Read implements io.Reader.
func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}

	return c.r.Read(p)
}

// isWithin reports whether target lies inside root. Both must be clean.
func isWithin(root, target string) bool {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}

	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}
