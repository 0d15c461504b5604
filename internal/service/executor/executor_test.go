//go:build !windows

package executor

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/sys/unix"

	"github.com/oshokin/pg-embed/internal/domain/pg"
	"github.com/oshokin/pg-embed/internal/logger"
)

// run spawns a shell script and executes it with timeout.
func run(t *testing.T, script string, kind pg.ProcessKind, timeout time.Duration, opts ...Option) (*Executor, pg.ServerStatus, error) {
	t.Helper()

	e, err := Spawn(context.Background(), "/bin/sh", []string{"-c", script}, kind, opts...)
	require.NoError(t, err)

	status, err := e.Execute(context.Background(), timeout)

	return e, status, err
}

// TestExecute_Success maps a clean exit to the exit status of each kind.
func TestExecute_Success(t *testing.T) {
	t.Parallel()

	tests := []struct {
		kind pg.ProcessKind
		want pg.ServerStatus
	}{
		{kind: pg.ProcessInitialize, want: pg.StatusInitialized},
		{kind: pg.ProcessStart, want: pg.StatusStarted},
		{kind: pg.ProcessStop, want: pg.StatusStopped},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			t.Parallel()

			_, status, err := run(t, "echo hello; echo warning >&2", tt.kind, 5*time.Second)
			require.NoError(t, err)
			require.Equal(t, tt.want, status)
		})
	}
}

// TestExecute_LogsOutput tags lines by stream and honours the output level.
func TestExecute_LogsOutput(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	ctx := logger.ToContext(context.Background(), zap.New(core).Sugar())

	e, err := Spawn(ctx, "/bin/sh", []string{"-c", "echo out; echo err >&2"}, pg.ProcessInitialize)
	require.NoError(t, err)

	_, err = e.Execute(ctx, 5*time.Second)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return logs.FilterMessage("out").Len() == 1 && logs.FilterMessage("err").Len() == 1
	}, time.Second, 10*time.Millisecond)

	out := logs.FilterMessage("out").All()[0]
	require.Equal(t, zapcore.InfoLevel, out.Level)
	require.Equal(t, "stdout", out.ContextMap()["stream"])
	require.Equal(t, pg.ProcessInitialize.String(), out.ContextMap()["process"])
	require.Equal(t, zapcore.ErrorLevel, logs.FilterMessage("err").All()[0].Level)

	quietCore, quietLogs := observer.New(zapcore.DebugLevel)
	ctx = logger.ToContext(context.Background(), zap.New(quietCore).Sugar())

	e, err = Spawn(ctx, "/bin/sh", []string{"-c", "echo out; echo err >&2"}, pg.ProcessInitialize,
		WithOutputLevel(zapcore.ErrorLevel))
	require.NoError(t, err)

	_, err = e.Execute(ctx, 5*time.Second)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return quietLogs.FilterMessage("err").Len() == 1
	}, time.Second, 10*time.Millisecond)
	require.Zero(t, quietLogs.FilterMessage("out").Len())
}

// TestExecute_NonZeroExit reports the code and the stderr tail.
func TestExecute_NonZeroExit(t *testing.T) {
	t.Parallel()

	_, status, err := run(t, "echo first >&2; echo boom >&2; exit 4", pg.ProcessStart, 5*time.Second)
	require.Equal(t, pg.StatusFailure, status)
	require.ErrorIs(t, err, pg.ErrStartFailure)

	var exitErr *pg.ExitError
	require.True(t, errors.As(err, &exitErr))
	require.Equal(t, 4, exitErr.Code)
	require.Equal(t, []string{"first", "boom"}, exitErr.Stderr)
}

// TestExecute_Timeout kills the process group when the deadline expires.
func TestExecute_Timeout(t *testing.T) {
	t.Parallel()

	start := time.Now()
	e, status, err := run(t, "sleep 30 & sleep 30", pg.ProcessStart, 50*time.Millisecond)
	require.ErrorIs(t, err, pg.ErrTimedOut)
	require.Equal(t, pg.StatusFailure, status)
	require.Less(t, time.Since(start), 10*time.Second)

	require.Eventually(t, func() bool {
		return errors.Is(unix.Kill(-e.Pid(), 0), unix.ESRCH)
	}, 5*time.Second, 20*time.Millisecond)
}

// TestExecute_KeepOnTimeout leaves the process alone when asked to.
func TestExecute_KeepOnTimeout(t *testing.T) {
	t.Parallel()

	e, _, err := run(t, "sleep 30", pg.ProcessStop, 50*time.Millisecond, WithKeepOnTimeout())
	require.ErrorIs(t, err, pg.ErrTimedOut)
	require.NoError(t, unix.Kill(e.Pid(), 0))
	require.NoError(t, killGroup(e.cmd.Process))
}

// TestExecute_Cancelled honours the caller's context.
func TestExecute_Cancelled(t *testing.T) {
	t.Parallel()

	e, err := Spawn(context.Background(), "/bin/sh", []string{"-c", "sleep 30"}, pg.ProcessStart)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	status, err := e.Execute(ctx, 0)
	require.ErrorIs(t, err, pg.ErrProcess)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, pg.StatusFailure, status)
}

// TestExecute_DescendantHoldsPipes returns once the direct child exits even
// though a background descendant still holds the output pipes.
func TestExecute_DescendantHoldsPipes(t *testing.T) {
	t.Parallel()

	start := time.Now()
	e, status, err := run(t, "sleep 3 & echo started", pg.ProcessStart, 10*time.Second)
	require.NoError(t, err)
	require.Equal(t, pg.StatusStarted, status)
	require.Less(t, time.Since(start), 2*time.Second)

	require.NoError(t, killGroup(e.cmd.Process))
}

// TestExecute_LargeOutput drains more than a pipe buffer without deadlocking.
func TestExecute_LargeOutput(t *testing.T) {
	t.Parallel()

	_, status, err := run(t, "i=0; while [ $i -lt 20000 ]; do echo line $i; echo err $i >&2; i=$((i+1)); done",
		pg.ProcessInitialize, 30*time.Second)
	require.NoError(t, err)
	require.Equal(t, pg.StatusInitialized, status)
}

// TestSpawn_Failure wraps the failure of the kind.
func TestSpawn_Failure(t *testing.T) {
	t.Parallel()

	missing := filepath.Join(t.TempDir(), "pg_ctl")

	_, err := Spawn(context.Background(), missing, []string{"stop"}, pg.ProcessStop)
	require.ErrorIs(t, err, pg.ErrStopFailure)

	_, err = Spawn(context.Background(), missing, nil, pg.ProcessInitialize)
	require.ErrorIs(t, err, pg.ErrInitFailure)
}

// TestDeliver reports drain results nobody is waiting for.
func TestDeliver(t *testing.T) {
	t.Parallel()

	drainErr := errors.New("read failed")

	t.Run("received", func(t *testing.T) {
		t.Parallel()

		drained := make(chan error)
		got := make(chan error, 1)

		go func() {
			got <- <-drained
		}()

		require.NoError(t, deliver(drainErr, drained, make(chan struct{})))
		require.ErrorIs(t, <-got, drainErr)
	})

	t.Run("after return", func(t *testing.T) {
		t.Parallel()

		done := make(chan struct{})
		close(done)

		err := deliver(drainErr, make(chan error), done)
		require.ErrorIs(t, err, pg.ErrSend)
		require.ErrorIs(t, err, drainErr)
	})

	t.Run("clean result after return", func(t *testing.T) {
		t.Parallel()

		done := make(chan struct{})
		close(done)

		require.NoError(t, deliver(nil, make(chan error), done))
	})
}

// TestTailBuffer keeps only the newest lines in order.
func TestTailBuffer(t *testing.T) {
	t.Parallel()

	tail := newTailBuffer(3)
	require.Empty(t, tail.lines())

	for _, line := range []string{"a", "b", "c", "d", "e"} {
		tail.add(line)
	}

	require.Equal(t, []string{"c", "d", "e"}, tail.lines())
}
