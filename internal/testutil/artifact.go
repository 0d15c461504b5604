// Package testutil builds synthetic binaries artifacts and fake control tools
// for tests that must not reach the network or a real PostgreSQL.
package testutil

import (
	"archive/tar"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"
)

// Entry is one member of the synthetic tar payload.
type Entry struct {
	// Name is the slash separated path inside the tar.
	Name string
	// Body is the file content. Ignored for directories and links.
	Body string
	// Mode is the permission bits. Zero means 0o644.
	Mode int64
	// Dir marks a directory entry.
	Dir bool
	// Symlink, when set, makes the entry a symlink pointing at it.
	Symlink string
}

// TarXZ returns an xz-compressed tar holding entries.
func TarXZ(t testing.TB, entries []Entry) []byte {
	t.Helper()

	var tarBuf bytes.Buffer

	tw := tar.NewWriter(&tarBuf)

	for _, e := range entries {
		mode := e.Mode
		if mode == 0 {
			mode = 0o644
		}

		header := &tar.Header{Name: e.Name, Mode: mode}

		switch {
		case e.Dir:
			header.Typeflag = tar.TypeDir
			header.Mode = 0o755
		case e.Symlink != "":
			header.Typeflag = tar.TypeSymlink
			header.Linkname = e.Symlink
		default:
			header.Typeflag = tar.TypeReg
			header.Size = int64(len(e.Body))
		}

		require.NoError(t, tw.WriteHeader(header))

		if header.Typeflag == tar.TypeReg {
			_, err := tw.Write([]byte(e.Body))
			require.NoError(t, err)
		}
	}

	require.NoError(t, tw.Close())

	var xzBuf bytes.Buffer

	xw, err := xz.NewWriter(&xzBuf)
	require.NoError(t, err)

	_, err = xw.Write(tarBuf.Bytes())
	require.NoError(t, err)
	require.NoError(t, xw.Close())

	return xzBuf.Bytes()
}

// Zip returns a zip container with the given members.
func Zip(t testing.TB, members map[string][]byte) []byte {
	t.Helper()

	var buf bytes.Buffer

	zw := zip.NewWriter(&buf)

	for name, body := range members {
		w, err := zw.Create(name)
		require.NoError(t, err)

		_, err = w.Write(body)
		require.NoError(t, err)
	}

	require.NoError(t, zw.Close())

	return buf.Bytes()
}

// Artifact returns a complete binaries artifact wrapping entries.
func Artifact(t testing.TB, entries []Entry) []byte {
	t.Helper()

	return Zip(t, map[string][]byte{
		"META-INF/MANIFEST.MF":       []byte("Manifest-Version: 1.0\n"),
		"postgres-linux-x86_64.txz": TarXZ(t, entries),
	})
}

// WriteFile writes data to path, creating parent directories.
func WriteFile(t testing.TB, path string, data []byte, mode os.FileMode) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, mode))
}
