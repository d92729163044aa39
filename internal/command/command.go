// Package command runs the external per-project-kind build tools. The core
// never parses tool output; it only routes the streams, waits for the exit
// status, and maps failures into a small error taxonomy.
package command

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/vk/svcforge/internal/ctxlog"
)

// Verbosity is the ladder the CLI's -v/-q flags map onto.
type Verbosity int

const (
	Silent Verbosity = iota - 1
	Normal
	Verbose
	High
	Debug
)

// FromFlags converts counted -v and -q occurrences into a Verbosity.
func FromFlags(verbose, quiet int) Verbosity {
	v := Verbosity(verbose - quiet)
	if v < Silent {
		v = Silent
	}
	if v > Debug {
		v = Debug
	}
	return v
}

// ErrToolNotFound means the external tool is not on PATH.
type ErrToolNotFound struct {
	Tool string
}

func (e *ErrToolNotFound) Error() string {
	return fmt.Sprintf("could not run `%s`. Please add it to your PATH", e.Tool)
}

// ExitStatusError carries a tool's non-zero exit code.
type ExitStatusError struct {
	Tool string
	Code int
}

func (e *ExitStatusError) Error() string {
	return fmt.Sprintf("process `%s` exited with code `%d`", e.Tool, e.Code)
}

// Invocation describes one external tool run.
type Invocation struct {
	Tool string
	Args []string
	Dir  string
	// Env is the full environment for the subprocess; nil inherits the
	// parent's environment.
	Env []string
	// Stdout and Stderr receive the respective stream when non-nil. A nil
	// writer discards the stream.
	Stdout io.Writer
	Stderr io.Writer
}

// Run spawns the tool and blocks until it exits. Piped streams are drained
// by one goroutine each, and both drains complete before the exit status is
// inspected, so a chatty tool can never deadlock on pipe back-pressure.
// There is no cooperative cancellation: an interrupt reaches the subprocess
// through normal process-group termination.
func Run(ctx context.Context, inv Invocation) error {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Running external tool.", "tool", inv.Tool, "args", inv.Args, "dir", inv.Dir)

	cmd := exec.Command(inv.Tool, inv.Args...)
	cmd.Dir = inv.Dir
	cmd.Env = inv.Env

	var wg sync.WaitGroup
	attach := func(pipe func() (io.ReadCloser, error), sink io.Writer) error {
		if sink == nil {
			return nil
		}
		source, err := pipe()
		if err != nil {
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			// A copy failure here means the tool died mid-write; the exit
			// status below is the authoritative signal.
			_, _ = io.Copy(sink, source)
		}()
		return nil
	}
	if err := attach(cmd.StdoutPipe, inv.Stdout); err != nil {
		return err
	}
	if err := attach(cmd.StderrPipe, inv.Stderr); err != nil {
		return err
	}

	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return &ErrToolNotFound{Tool: inv.Tool}
		}
		return fmt.Errorf("start `%s`: %w", inv.Tool, err)
	}

	wg.Wait()
	err := cmd.Wait()
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &ExitStatusError{Tool: inv.Tool, Code: exitErr.ExitCode()}
	}
	return fmt.Errorf("wait for `%s`: %w", inv.Tool, err)
}

// Sinks maps a verbosity level onto the stream destinations external tool
// output should reach: quiet runs discard everything, normal runs show only
// stderr, verbose runs show both.
func Sinks(v Verbosity) (stdout, stderr io.Writer) {
	switch {
	case v < Normal:
		return nil, nil
	case v == Normal:
		return nil, os.Stderr
	default:
		return os.Stdout, os.Stderr
	}
}
