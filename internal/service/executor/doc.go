// Package executor runs one control tool as a child process with a bounded wait.
//
// Both output pipes are drained line by line while the process runs: stdout
// lines are logged at info, stderr lines at error, and the last stderr lines
// are kept for the error returned on a non-zero exit. Draining never gates the
// exit wait, since a tool such as pg_ctl start leaves the server holding the
// pipes after it exits.
package executor
