// Package unpack turns a downloaded binaries artifact into an executable tree.
//
// The artifact is a zip container holding one xz-compressed tar member. The
// pipeline locates that member, decompresses it (in memory for small payloads,
// through a temporary file otherwise) and extracts the tar stream into the
// destination directory, rejecting entries that would escape it.
package unpack
