package postgres

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/oshokin/pg-embed/internal/domain/pg"
	"github.com/oshokin/pg-embed/internal/logger"
	"github.com/oshokin/pg-embed/internal/service/cache"
)

// teardownTimeout bounds the teardown stop when no timeout is configured.
const teardownTimeout = 30 * time.Second

// Close tears the server down. It stops a server that was started and not
// explicitly stopped, then removes the data directory and the credential
// file unless the server is persistent. Close is best-effort: failures are
// logged and it always returns nil. Calls after the first do nothing.
func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		s.teardown(logger.WithName(context.Background(), "teardown"))
	})

	return nil
}

// CleanUp removes the data directory and credential file of the server
// regardless of the persistent setting.
func (s *Server) CleanUp(ctx context.Context) error {
	return cache.CleanUp(ctx, s.paths.DatabaseDir, s.paths.PasswordFile)
}

func (s *Server) teardown(ctx context.Context) {
	ctx = logger.WithKV(ctx, "database_dir", s.paths.DatabaseDir)

	s.mu.RLock()
	needsStop := s.startAttempted && !s.shuttingDown
	s.mu.RUnlock()

	if needsStop {
		if err := s.stopSync(ctx); err != nil {
			logger.ErrorKV(ctx, "Could not stop postgresql", "error", err)

			if !s.keepOnTimeout {
				s.reap(ctx)
			}
		}
	}

	if s.settings.Persistent {
		return
	}

	if err := s.CleanUp(ctx); err != nil {
		logger.ErrorKV(ctx, "Could not remove cluster files", "error", err)
	}
}

// stopSync runs pg_ctl stop to completion without the output drains of the
// executor, so that nothing started here outlives Close.
func (s *Server) stopSync(ctx context.Context) error {
	s.mu.Lock()
	s.shuttingDown = true
	s.mu.Unlock()

	timeout := s.settings.Timeout
	if timeout == 0 {
		timeout = teardownTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	s.setStatus(pg.StatusStopping)

	//nolint:gosec // Paths come from the binary cache.
	cmd := exec.CommandContext(ctx, s.paths.PgCtl, stopArgs(s.paths)...)

	var output bytes.Buffer

	cmd.Stdout = &output
	cmd.Stderr = &output
	// pg_ctl stop does not leave children behind, a short delay is enough.
	cmd.WaitDelay = time.Second

	if err := cmd.Run(); err != nil {
		s.setStatus(pg.StatusFailure)

		return &pg.ExitError{
			Kind:   pg.ProcessStop,
			Code:   exitCode(cmd),
			Stderr: strings.Split(strings.TrimSpace(output.String()), "\n"),
		}
	}

	s.setStatus(pg.StatusStopped)
	logger.InfoKV(ctx, "Stopped postgresql on teardown")

	return nil
}

func exitCode(cmd *exec.Cmd) int {
	if cmd.ProcessState == nil {
		return -1
	}

	return cmd.ProcessState.ExitCode()
}

// Purge removes the whole binary cache below cacheRoot. It refuses while a
// server created without WithRegistry is acquiring binaries.
func Purge(ctx context.Context, cacheRoot string) error {
	return cache.New(sharedRegistry, nil).Purge(ctx, cacheRoot)
}
