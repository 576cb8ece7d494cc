package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	containertypes "github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

// DockerExec runs commands inside a container through the Docker exec API.
// It is used to reach tools such as psql without a direct network path to
// the unit. The Result contract matches Local: a non-zero exit code inside
// the container is reported in Result, not as an error.
type DockerExec struct {
	// Client is the full Docker client; exec requires the SDK's create,
	// attach and inspect endpoints.
	Client *client.Client
	// Container is the target container name or ID.
	Container string
}

// Run executes cmd inside the container and waits for completion.
func (d *DockerExec) Run(ctx context.Context, cmd Command) (Result, error) {
	if cmd.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cmd.Timeout)
		defer cancel()
	}

	start := time.Now()

	execConfig := containertypes.ExecOptions{
		Cmd:          append([]string{cmd.Name}, cmd.Args...),
		Env:          cmd.Env,
		AttachStdout: true,
		AttachStderr: true,
	}
	created, err := d.Client.ContainerExecCreate(ctx, d.Container, execConfig)
	if err != nil {
		return Result{}, fmt.Errorf("%w: exec create in %s: %v", ErrSpawn, d.Container, err)
	}

	resp, err := d.Client.ContainerExecAttach(ctx, created.ID, containertypes.ExecStartOptions{})
	if err != nil {
		return Result{}, fmt.Errorf("%w: exec attach in %s: %v", ErrSpawn, d.Container, err)
	}
	defer resp.Close()

	// Demux the multiplexed stream; it ends when the command exits.
	var stdout, stderr bytes.Buffer
	if cpErr := demux(ctx, resp.Reader, resp.Close, &stdout, &stderr); cpErr != nil {
		if errors.Is(cpErr, context.DeadlineExceeded) || errors.Is(cpErr, context.Canceled) {
			return Result{
				Stdout:   stdout.String(),
				Stderr:   stderr.String(),
				Duration: time.Since(start),
			}, fmt.Errorf("%w after %s: %s in %s", ErrTimeout, time.Since(start), cmd.Name, d.Container)
		}
		return Result{}, fmt.Errorf("%w: exec stream from %s: %v", ErrSpawn, d.Container, cpErr)
	}

	// After demux returns the stream has ended, but the exec record may
	// not be final yet.
	for {
		inspect, err := d.Client.ContainerExecInspect(ctx, created.ID)
		if err != nil {
			return Result{}, fmt.Errorf("%w: exec inspect in %s: %v", ErrSpawn, d.Container, err)
		}
		if !inspect.Running {
			return Result{
				ExitCode: inspect.ExitCode,
				Stdout:   stdout.String(),
				Stderr:   stderr.String(),
				Duration: time.Since(start),
			}, nil
		}
		select {
		case <-ctx.Done():
			return Result{
				Stdout:   stdout.String(),
				Stderr:   stderr.String(),
				Duration: time.Since(start),
			}, fmt.Errorf("%w after %s: %s in %s", ErrTimeout, time.Since(start), cmd.Name, d.Container)
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// demux copies the multiplexed exec stream into stdout and stderr until it
// ends or ctx expires. On expiry closeStream unblocks the copier, which is
// always joined before returning, so the buffers are safe to read whatever
// the outcome. Returns the context error on expiry, otherwise the copy
// error.
func demux(ctx context.Context, r io.Reader, closeStream func(), stdout, stderr *bytes.Buffer) error {
	copied := make(chan error, 1)
	go func() {
		_, err := stdcopy.StdCopy(stdout, stderr, r)
		copied <- err
	}()

	select {
	case <-ctx.Done():
		closeStream()
		<-copied
		return ctx.Err()
	case err := <-copied:
		return err
	}
}
