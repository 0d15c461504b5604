// Package cache owns the on-disk layout of one server instance and the shared
// binary cache it draws executables from.
//
// Binaries for a given (os, arch, version) are acquired at most once per
// cache directory: callers inside the process are serialised per path by an
// acquisition registry, and callers in other processes by a file lock next to
// the cache directory.
package cache
