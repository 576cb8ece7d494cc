package common

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	containertypes "github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	networktypes "github.com/docker/docker/api/types/network"
	"github.com/docker/docker/api/types/volume"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

// ContainerView is a condensed view of a container used for status output.
type ContainerView struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
	Health string `json:"health,omitempty"`
}

// ImagePullOptions controls image pull behavior.
type ImagePullOptions struct {
	// Silent discards pull progress output instead of logging it
	Silent bool
}

// CtxCli creates a background context and a Docker client for the given
// socket. An empty socket falls back to the environment (DOCKER_HOST or
// the default unix socket).
func CtxCli(socket string) (context.Context, *client.Client, error) {
	ctx := context.Background()
	opts := []client.Opt{client.WithAPIVersionNegotiation()}
	if socket != "" {
		opts = append(opts, client.WithHost(socket))
	} else {
		opts = append(opts, client.FromEnv)
	}
	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return ctx, cli, nil
}

// PingEngine verifies the Docker engine is reachable. A failure here means
// no deployment work can proceed.
func PingEngine(ctx context.Context, cli DockerClient) error {
	if _, err := cli.Ping(ctx); err != nil {
		return fmt.Errorf("docker engine unreachable: %w", err)
	}
	return nil
}

// ContainerExistsWithClient reports whether a container with the given name
// exists, running or not.
func ContainerExistsWithClient(ctx context.Context, cli DockerClient, name string) (bool, error) {
	id, err := FindContainerIDWithClient(ctx, cli, name)
	if err != nil {
		return false, err
	}
	return id != "", nil
}

// FindContainerIDWithClient resolves a container name to its ID. Returns an
// empty string without error when no container has that name.
func FindContainerIDWithClient(ctx context.Context, cli DockerClient, name string) (string, error) {
	containers, err := cli.ContainerList(ctx, containertypes.ListOptions{All: true})
	if err != nil {
		return "", fmt.Errorf("failed to list containers: %w", err)
	}
	for _, cont := range containers {
		for _, n := range cont.Names {
			// Names include leading slash
			if strings.TrimPrefix(n, "/") == name {
				return cont.ID, nil
			}
		}
	}
	return "", nil
}

// ListContainersByPrefixWithClient returns views of all containers whose
// name starts with the given prefix, in list order.
func ListContainersByPrefixWithClient(ctx context.Context, cli DockerClient, prefix string) ([]ContainerView, error) {
	containers, err := cli.ContainerList(ctx, containertypes.ListOptions{All: true})
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}
	var views []ContainerView
	for _, cont := range containers {
		for _, n := range cont.Names {
			cleanName := strings.TrimPrefix(n, "/")
			if strings.HasPrefix(cleanName, prefix) {
				views = append(views, ContainerView{
					ID:     cont.ID,
					Name:   cleanName,
					Status: cont.Status,
				})
				break
			}
		}
	}
	return views, nil
}

// ImagePullWithClient pulls an image, draining the progress stream. The
// stream must be consumed fully or the pull is aborted by the daemon.
func ImagePullWithClient(ctx context.Context, cli DockerClient, refStr string, opts *ImagePullOptions) error {
	reader, err := cli.ImagePull(ctx, refStr, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image %s: %w", refStr, err)
	}
	defer reader.Close()

	if opts != nil && opts.Silent {
		_, err = io.Copy(io.Discard, reader)
	} else {
		Logger.Info("Pulling image ", refStr)
		_, err = io.Copy(io.Discard, reader)
	}
	if err != nil {
		return fmt.Errorf("failed to read pull progress for %s: %w", refStr, err)
	}
	return nil
}

// CreateNetworkWithClient creates a bridge network.
func CreateNetworkWithClient(ctx context.Context, cli DockerClient, name string) error {
	_, err := cli.NetworkCreate(ctx, name, networktypes.CreateOptions{Driver: "bridge"})
	return err
}

// CreateVolumeWithClient creates a named volume.
func CreateVolumeWithClient(ctx context.Context, cli DockerClient, name string) error {
	_, err := cli.VolumeCreate(ctx, volume.CreateOptions{Name: name})
	return err
}

// EnsureNetwork creates a Docker network if it doesn't exist.
// Safe to call multiple times - idempotent operation.
func EnsureNetwork(ctx context.Context, cli DockerClient, networkName string) error {
	networks, err := cli.NetworkList(ctx, networktypes.ListOptions{})
	if err != nil {
		return fmt.Errorf("failed to list networks: %w", err)
	}
	for _, net := range networks {
		if net.Name == networkName {
			return nil // Network already exists
		}
	}
	if err := CreateNetworkWithClient(ctx, cli, networkName); err != nil {
		return fmt.Errorf("failed to create network: %w", err)
	}
	return nil
}

// EnsureVolume creates a Docker volume if it doesn't exist.
// Safe to call multiple times - idempotent operation.
func EnsureVolume(ctx context.Context, cli DockerClient, volumeName string) error {
	volumes, err := cli.VolumeList(ctx, volume.ListOptions{})
	if err != nil {
		return fmt.Errorf("failed to list volumes: %w", err)
	}
	for _, vol := range volumes.Volumes {
		if vol.Name == volumeName {
			return nil // Volume already exists
		}
	}
	if err := CreateVolumeWithClient(ctx, cli, volumeName); err != nil {
		return fmt.Errorf("failed to create volume: %w", err)
	}
	return nil
}

// CreateAndStartContainerWithClient creates a named container attached to
// the given network and starts it.
func CreateAndStartContainerWithClient(ctx context.Context, cli DockerClient, config containertypes.Config, hostConfig containertypes.HostConfig, name, networkName string) error {
	networking := &networktypes.NetworkingConfig{}
	if networkName != "" {
		networking.EndpointsConfig = map[string]*networktypes.EndpointSettings{networkName: {}}
	}
	resp, err := cli.ContainerCreate(ctx, &config, &hostConfig, networking, nil, name)
	if err != nil {
		return err
	}
	if err = cli.ContainerStart(ctx, resp.ID, containertypes.StartOptions{}); err != nil {
		return err
	}
	return nil
}

// StopAndRemoveContainerWithClient stops a container by name (waiting up to
// timeoutSeconds for graceful shutdown) and removes it. A name that resolves
// to no container is not an error.
func StopAndRemoveContainerWithClient(ctx context.Context, cli DockerClient, name string, timeoutSeconds int) error {
	id, err := FindContainerIDWithClient(ctx, cli, name)
	if err != nil {
		return err
	}
	if id == "" {
		return nil
	}
	if err := cli.ContainerStop(ctx, id, containertypes.StopOptions{Timeout: &timeoutSeconds}); err != nil {
		// Continue to removal; the container may already be stopped.
		Logger.Warn("stop failed for ", name, ": ", err)
	}
	if err := cli.ContainerRemove(ctx, id, containertypes.RemoveOptions{Force: true}); err != nil {
		return fmt.Errorf("failed to remove container %s: %w", name, err)
	}
	return nil
}

// ContainerLogsTailWithClient fetches the last n lines of a container's
// logs as a single string. The multiplexed stream is demuxed so stdout and
// stderr appear interleaved in output order.
func ContainerLogsTailWithClient(ctx context.Context, cli DockerClient, name string, lines int) (string, error) {
	id, err := FindContainerIDWithClient(ctx, cli, name)
	if err != nil {
		return "", err
	}
	if id == "" {
		return "", fmt.Errorf("container not found: %s", name)
	}
	rd, err := cli.ContainerLogs(ctx, id, containertypes.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Tail:       strconv.Itoa(lines),
	})
	if err != nil {
		return "", fmt.Errorf("failed to fetch logs for %s: %w", name, err)
	}
	defer rd.Close()

	var buf bytes.Buffer
	if _, err := stdcopy.StdCopy(&buf, &buf, rd); err != nil {
		// TTY containers produce a raw stream; fall back to reading it as-is.
		raw, rawErr := io.ReadAll(rd)
		if rawErr != nil {
			return buf.String(), nil
		}
		buf.Write(raw)
	}
	return buf.String(), nil
}

// ContainerStateWithClient returns the container's run state ("running",
// "exited", ...) and health status ("healthy", "unhealthy", "starting", or
// empty when the container defines no healthcheck).
func ContainerStateWithClient(ctx context.Context, cli DockerClient, name string) (state string, health string, err error) {
	id, err := FindContainerIDWithClient(ctx, cli, name)
	if err != nil {
		return "", "", err
	}
	if id == "" {
		return "", "", fmt.Errorf("container not found: %s", name)
	}
	inspect, err := cli.ContainerInspect(ctx, id)
	if err != nil {
		return "", "", fmt.Errorf("failed to inspect container %s: %w", name, err)
	}
	if inspect.State == nil {
		return "", "", fmt.Errorf("container %s has no state", name)
	}
	state = inspect.State.Status
	if inspect.State.Health != nil {
		health = inspect.State.Health.Status
	}
	return state, health, nil
}
