package executor

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/oshokin/pg-embed/internal/domain/pg"
	"github.com/oshokin/pg-embed/internal/logger"
)

const (
	// drainGrace is how long Execute lets the drains catch up after exit.
	drainGrace = 200 * time.Millisecond
	// killGrace bounds the wait for a killed process to be reaped.
	killGrace = 2 * time.Second
	// stderrTailLines is the number of stderr lines kept for diagnostics.
	stderrTailLines = 20
)

// Option configures an Executor.
type Option func(*Executor)

// WithKeepOnTimeout leaves the process running when the deadline expires.
// By default its whole process group is killed.
func WithKeepOnTimeout() Option {
	return func(e *Executor) {
		e.keepOnTimeout = true
	}
}

// WithOutputLevel pins the logger receiving the process output to level.
func WithOutputLevel(level zapcore.Level) Option {
	return func(e *Executor) {
		e.outputLevel = &level
	}
}

// Executor owns a single spawned process. It is used for one Execute call.
type Executor struct {
	// kind selects the statuses and failure reported for the process.
	kind pg.ProcessKind
	// cmd is the started command.
	cmd *exec.Cmd
	// stdout is the read end of the standard output pipe.
	stdout io.ReadCloser
	// stderr is the read end of the standard error pipe.
	stderr io.ReadCloser
	// tail keeps the most recent stderr lines.
	tail *tailBuffer
	// keepOnTimeout disables the kill on deadline.
	keepOnTimeout bool
	// outputLevel, when set, overrides the level of the output logger.
	outputLevel *zapcore.Level
}

// waitResult carries the outcome of the exit wait.
type waitResult struct {
	state *os.ProcessState
	err   error
}

// Spawn starts path with args, capturing both output streams.
// A launch failure wraps the failure sentinel of kind.
func Spawn(ctx context.Context, path string, args []string, kind pg.ProcessKind, opts ...Option) (*Executor, error) {
	cmd := exec.Command(path, args...) //nolint:gosec // Paths come from the binary cache.
	setProcAttr(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: open stdout of %s: %w", kind.Failure(), kind, err)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: open stderr of %s: %w", kind.Failure(), kind, err)
	}

	if err = cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: spawn %s: %w", kind.Failure(), path, err)
	}

	logger.DebugKV(ctx, "Spawned control tool", "process", kind.String(), "pid", cmd.Process.Pid, "args", args)

	e := &Executor{
		kind:   kind,
		cmd:    cmd,
		stdout: stdout,
		stderr: stderr,
		tail:   newTailBuffer(stderrTailLines),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e, nil
}

// Pid returns the process id of the spawned process.
func (e *Executor) Pid() int {
	return e.cmd.Process.Pid
}

// Execute waits for the process to exit, at most timeout when it is positive.
//
// On a clean exit it returns the exit status of the kind. A non-zero exit
// returns *pg.ExitError. An expired deadline returns pg.ErrTimedOut after
// killing the process group unless WithKeepOnTimeout was given.
func (e *Executor) Execute(ctx context.Context, timeout time.Duration) (pg.ServerStatus, error) {
	ctx = logger.WithKV(ctx, "process", e.kind.String())

	outputCtx := ctx
	if e.outputLevel != nil {
		outputCtx = logger.ToContext(ctx, logger.FromContext(ctx).WithOptions(logger.WithLevel(*e.outputLevel)))
	}

	var drains errgroup.Group

	drains.Go(func() error {
		return drain(outputCtx, e.stdout, "stdout", logger.InfoKV, nil)
	})
	drains.Go(func() error {
		return drain(outputCtx, e.stderr, "stderr", logger.ErrorKV, e.tail)
	})

	done := make(chan struct{})
	defer close(done)

	drained := make(chan error)
	go func() {
		if err := deliver(drains.Wait(), drained, done); err != nil {
			logger.WarnKV(ctx, "Output drain failed", "error", err)
		}
	}()

	exited := make(chan waitResult, 1)
	go func() {
		state, err := e.cmd.Process.Wait()
		exited <- waitResult{state: state, err: err}
	}()

	var deadline <-chan time.Time

	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()

		deadline = timer.C
	}

	select {
	case res := <-exited:
		settle(ctx, drained)

		return e.result(res)
	case <-deadline:
		e.abandon(ctx, exited)

		return pg.StatusFailure, fmt.Errorf("%w: %s did not finish within %s", pg.ErrTimedOut, e.kind, timeout)
	case <-ctx.Done():
		e.abandon(ctx, exited)

		return pg.StatusFailure, fmt.Errorf("%w: %s interrupted: %w", pg.ErrProcess, e.kind, ctx.Err())
	}
}

// result maps the exit of the process to a status or an error.
func (e *Executor) result(res waitResult) (pg.ServerStatus, error) {
	if res.err != nil {
		return pg.StatusFailure, fmt.Errorf("%w: wait for %s: %w", pg.ErrProcess, e.kind, res.err)
	}

	if !res.state.Success() {
		return pg.StatusFailure, &pg.ExitError{
			Kind:   e.kind,
			Code:   res.state.ExitCode(),
			Stderr: e.tail.lines(),
		}
	}

	return e.kind.ExitStatus(), nil
}

// abandon applies the timeout policy to a process that is still running.
func (e *Executor) abandon(ctx context.Context, exited <-chan waitResult) {
	if e.keepOnTimeout {
		logger.WarnKV(ctx, "Leaving control tool running", "pid", e.Pid())

		return
	}

	if err := killGroup(e.cmd.Process); err != nil {
		logger.WarnKV(ctx, "Could not kill control tool", "pid", e.Pid(), "error", err)

		return
	}

	select {
	case <-exited:
		logger.DebugKV(ctx, "Killed control tool", "pid", e.Pid())
	case <-time.After(killGrace):
		logger.WarnKV(ctx, "Killed control tool did not exit", "pid", e.Pid())
	}
}

// deliver hands the drain result to Execute. Once done is closed nobody
// receives, and a non-nil result is returned wrapped in pg.ErrSend.
func deliver(result error, drained chan<- error, done <-chan struct{}) error {
	select {
	case drained <- result:
		return nil
	case <-done:
		if result == nil {
			return nil
		}

		return fmt.Errorf("%w: drain result arrived after the executor returned: %w", pg.ErrSend, result)
	}
}

// settle gives the drains a moment to flush what the process wrote before it
// exited. Descendants may keep the pipes open, so it does not wait for EOF.
func settle(ctx context.Context, drained <-chan error) {
	select {
	case err := <-drained:
		if err != nil {
			logger.WarnKV(ctx, "Output drain failed", "error", err)
		}
	case <-time.After(drainGrace):
	}
}
