// Package runner executes external commands for the deployment
// orchestrator and reports their outcome without shell interpretation.
//
// Commands are always built from argument arrays, never concatenated
// strings, so values containing spaces or quotes cannot change the command
// being run. A non-zero exit is not a Go error: callers inspect
// Result.ExitCode. A returned error means the command could not be run at
// all (missing binary, dead engine, expired deadline).
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

// ErrSpawn indicates the process could not be started at all, as opposed
// to running and exiting non-zero.
var ErrSpawn = errors.New("failed to spawn command")

// ErrTimeout indicates the command was killed because its deadline expired.
var ErrTimeout = errors.New("command timed out")

// Command describes one external command invocation.
type Command struct {
	// Name is the binary to run
	Name string
	// Args are passed verbatim, no shell expansion
	Args []string
	// Env entries in KEY=VALUE form, appended to the inherited environment
	Env []string
	// Timeout bounds the run; zero means the caller's context governs
	Timeout time.Duration
}

// Result captures a finished command.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Runner executes commands. Implementations exist for the local host and
// for exec-into-container through the Docker engine.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

// Local runs commands as child processes of the orchestrator.
type Local struct{}

// Run executes cmd and waits for it to finish.
func (Local) Run(ctx context.Context, cmd Command) (Result, error) {
	if cmd.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cmd.Timeout)
		defer cancel()
	}

	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	if len(cmd.Env) > 0 {
		c.Env = append(c.Environ(), cmd.Env...)
	}
	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	start := time.Now()
	err := c.Run()
	res := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			if ctx.Err() != nil {
				return res, fmt.Errorf("%w after %s: %s", ErrTimeout, res.Duration, cmd.Name)
			}
			// The command ran and failed logically.
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		if ctx.Err() != nil {
			return res, fmt.Errorf("%w after %s: %s", ErrTimeout, res.Duration, cmd.Name)
		}
		return res, fmt.Errorf("%w: %s: %v", ErrSpawn, cmd.Name, err)
	}
	return res, nil
}
