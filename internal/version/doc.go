// Package version exposes build metadata of pg-embed.
//
// Version, Commit and BuildTime are injected with -ldflags at build time.
// UserAgent identifies the module in artifact downloads.
package version
