// Package fetch describes which PostgreSQL binaries to download and how to
// reach them: the repository host, target platform and version, the artifact
// URL assembled from them, and a plain HTTP downloader.
package fetch
