// Package postgres drives one disposable PostgreSQL server through its
// lifecycle: setup, start, stop and teardown.
//
// A Server is not safe for concurrent lifecycle calls; Status may be read
// from any goroutine. Binaries are shared between servers through the binary
// cache, the data directory and the credential file belong to one Server and
// are removed by Close unless the server is persistent.
package postgres
