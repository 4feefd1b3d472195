// Package procgroup runs external commands as separate process groups.
//
// Every command is started with its own process group, so signals sent
// to the group reach the command and all its descendants (for example
// the whole tree spawned by "ros2 launch").
package procgroup

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"
)

// Config describes command that should be executed.
type Config struct {
	// Command contains program and its arguments.
	Command []string
	// Workdir contains working directory of process.
	Workdir string
	// Environ contains extra environment variables ("KEY=value").
	Environ []string
	// Stdout receives standard output.
	Stdout io.Writer
	// Stderr receives standard error.
	Stderr io.Writer
}

func (c Config) newCmd() (*exec.Cmd, error) {
	if len(c.Command) == 0 {
		return nil, fmt.Errorf("empty command")
	}
	cmd := exec.Command(c.Command[0], c.Command[1:]...)
	cmd.Dir = c.Workdir
	if len(c.Environ) > 0 {
		cmd.Env = append(os.Environ(), c.Environ...)
	}
	cmd.Stdout = c.Stdout
	cmd.Stderr = c.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	return cmd, nil
}

// Group represents started process group.
type Group struct {
	cmd     *exec.Cmd
	pgid    int
	done    chan struct{}
	waitErr error
	once    sync.Once
}

// Start starts command as a leader of new process group.
//
// Process is reaped in background, so callers should never call
// Wait on the underlying command.
func Start(config Config) (*Group, error) {
	cmd, err := config.newCmd()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	pgid, err := unix.Getpgid(cmd.Process.Pid)
	if err != nil {
		// Process is already gone, with Setpgid its group equals its PID.
		pgid = cmd.Process.Pid
	}
	g := Group{
		cmd:  cmd,
		pgid: pgid,
		done: make(chan struct{}),
	}
	go func() {
		g.waitErr = cmd.Wait()
		close(g.done)
	}()
	return &g, nil
}

// ID returns identifier of process group.
func (g *Group) ID() int {
	return g.pgid
}

func (g *Group) signal(sig syscall.Signal) error {
	return unix.Kill(-g.pgid, sig)
}

// Terminate sends SIGTERM to all processes of group.
func (g *Group) Terminate() error {
	return g.signal(unix.SIGTERM)
}

// Release sends SIGKILL to remaining processes of group.
//
// Release is safe to call multiple times and never fails.
func (g *Group) Release() {
	g.once.Do(func() {
		_ = g.signal(unix.SIGKILL)
	})
}

func (g *Group) wait() error {
	<-g.done
	return g.waitErr
}
