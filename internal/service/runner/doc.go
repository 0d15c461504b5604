// Package runner implements the pg-embed subcommands on top of the server
// lifecycle: each entry point loads the settings file, builds a server and
// drives it for one command.
package runner
