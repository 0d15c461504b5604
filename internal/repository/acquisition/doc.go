// Package acquisition implements the in-memory registry that keeps track of
// binary cache paths being downloaded and unpacked.
//
// The Registry is keyed by canonical cache directory, so callers targeting
// the same path wait for a single acquisition while callers targeting other
// paths proceed independently.
package acquisition
