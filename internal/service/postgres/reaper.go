package postgres

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mitchellh/go-ps"

	"github.com/oshokin/pg-embed/internal/logger"
)

// postmasterPIDFile is written by the postmaster into the data directory.
const postmasterPIDFile = "postmaster.pid"

// reap kills the postmaster recorded in the data directory, if it is alive.
// pg_ctl detaches the postmaster from its own process group, so killing the
// control tool on timeout does not reach it.
func (s *Server) reap(ctx context.Context) {
	pid, ok := readPostmasterPID(filepath.Join(s.paths.DatabaseDir, postmasterPIDFile))
	if !ok {
		return
	}

	process, err := ps.FindProcess(pid)
	if err != nil {
		logger.WarnKV(ctx, "Could not look up postmaster", "pid", pid, "error", err)

		return
	}

	if process == nil || !isPostgres(process.Executable()) {
		return
	}

	runningProcess, err := os.FindProcess(pid)
	if err != nil {
		return
	}

	if err = runningProcess.Kill(); err != nil {
		logger.WarnKV(ctx, "Could not kill postmaster", "pid", pid, "error", err)

		return
	}

	logger.WarnKV(ctx, "Killed orphaned postmaster", "pid", pid)
}

// readPostmasterPID returns the pid on the first line of path.
func readPostmasterPID(path string) (int, bool) {
	file, err := os.Open(filepath.Clean(path))
	if err != nil {
		return 0, false
	}

	defer func() {
		_ = file.Close()
	}()

	scanner := bufio.NewScanner(file)
	if !scanner.Scan() {
		return 0, false
	}

	pid, err := strconv.Atoi(strings.TrimSpace(scanner.Text()))
	if err != nil || pid <= 0 {
		return 0, false
	}

	return pid, true
}

func isPostgres(executable string) bool {
	name := strings.ToLower(strings.TrimSuffix(executable, ".exe"))

	return name == "postgres" || name == "postmaster"
}
