package simulator

import (
	"context"
	"io"
	"time"

	"github.com/udovin/robojudge/internal/pkg/procgroup"
	"github.com/udovin/robojudge/internal/pkg/utils"
)

// Process represents launched process group.
type Process interface {
	// ID returns identifier of process group.
	ID() int
	// Terminate sends SIGTERM to all processes of group.
	Terminate() error
	// Release sends SIGKILL to remaining processes of group.
	Release()
}

// Launcher starts long-running commands.
type Launcher interface {
	Launch(command string, output io.Writer) (Process, error)
}

// Prober runs one-shot telemetry queries.
//
// Query returns procgroup.ErrTimeout if query did not finish in time.
type Prober interface {
	Query(ctx context.Context, command string, timeout time.Duration) (string, error)
}

// Clock suspends controller between stages.
type Clock interface {
	Now() time.Time
	// Sleep waits for duration or until context is done.
	Sleep(ctx context.Context, d time.Duration) error
}

// shellLauncher launches commands through shell in separate process
// groups.
type shellLauncher struct {
	shell   string
	workdir string
	environ []string
}

func (l shellLauncher) Launch(command string, output io.Writer) (Process, error) {
	group, err := procgroup.Start(procgroup.Config{
		Command: []string{l.shell, "-c", command},
		Workdir: l.workdir,
		Environ: l.environ,
		Stdout:  output,
		Stderr:  output,
	})
	if err != nil {
		return nil, err
	}
	return group, nil
}

// shellProber runs telemetry queries through shell and returns their
// standard output.
type shellProber struct {
	shell       string
	workdir     string
	environ     []string
	outputLimit int
}

func (p shellProber) Query(ctx context.Context, command string, timeout time.Duration) (string, error) {
	output := utils.NewTruncateBuffer(p.outputLimit)
	if _, err := procgroup.Run(ctx, procgroup.Config{
		Command: []string{p.shell, "-c", command},
		Workdir: p.workdir,
		Environ: p.environ,
		Stdout:  output,
		Stderr:  io.Discard,
	}, timeout); err != nil {
		return "", err
	}
	return output.String(), nil
}

type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
