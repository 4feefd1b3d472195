package procgroup

import (
	"context"
	"errors"
	"os/exec"
	"time"

	"golang.org/x/sys/unix"
)

// ErrTimeout means that command did not finish in time.
var ErrTimeout = errors.New("command timed out")

// Report contains result of finished command.
type Report struct {
	ExitCode int
	RealTime time.Duration
}

// Success returns true if command exited with zero code.
func (r Report) Success() bool {
	return r.ExitCode == 0
}

// Run runs command in new process group and waits for it.
//
// On timeout or context cancellation the whole group is killed. Returned
// error is ErrTimeout on timeout, context error on cancellation and
// invocation error if command could not be started. Nonzero exit code
// is not an error.
func Run(ctx context.Context, config Config, timeout time.Duration) (Report, error) {
	cmd, err := config.newCmd()
	if err != nil {
		return Report{}, err
	}
	if err := ctx.Err(); err != nil {
		return Report{}, err
	}
	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := cmd.Start(); err != nil {
		return Report{}, err
	}
	start := time.Now()
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()
	var waitErr error
	select {
	case waitErr = <-done:
	case <-runCtx.Done():
		_ = unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
		select {
		case <-done:
		case <-time.After(time.Second):
			// Descendants may keep output pipes open.
		}
		if err := ctx.Err(); err != nil {
			return Report{ExitCode: -1, RealTime: time.Since(start)}, err
		}
		return Report{ExitCode: -1, RealTime: time.Since(start)}, ErrTimeout
	}
	report := Report{RealTime: time.Since(start)}
	if waitErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			return report, waitErr
		}
		report.ExitCode = exitErr.ExitCode()
	}
	return report, nil
}
