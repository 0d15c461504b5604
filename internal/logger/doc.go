// Package logger wraps zap for the whole module:
//   - a global sugared logger with a console encoder writing to stderr,
//   - context helpers (ToContext/FromContext/WithName/WithKV),
//   - level parsing and an option to pin a logger to its own level,
//   - leveled helpers (Infof, ErrorKV, etc.) that read the logger from a context.
//
// Child process output, acquisition progress and teardown failures are all
// reported through this package, so callers control verbosity with one knob.
package logger
