package common

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/docker/docker/api/types"
	containertypes "github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	networktypes "github.com/docker/docker/api/types/network"
	"github.com/docker/docker/api/types/volume"
	"github.com/docker/docker/pkg/stdcopy"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// MockDockerClient is a mock implementation of DockerClient for testing
type MockDockerClient struct {
	// Containers to return from ContainerList
	Containers []containertypes.Summary
	// Volumes known to the mock, keyed by name
	Volumes map[string]*volume.Volume
	// Networks known to the mock, name -> ID
	Networks map[string]string
	// InspectResults are returned from ContainerInspect in order; when
	// exhausted the last entry repeats. InspectFn takes precedence if set.
	InspectResults []containertypes.InspectResponse
	InspectFn      func(containerID string) (containertypes.InspectResponse, error)
	// LogsOutput is returned (stdcopy-framed) from ContainerLogs
	LogsOutput string
	// Err, when set, is returned from every operation
	Err error
	// PingErr, when set, is returned from Ping only
	PingErr error

	// Track function calls
	ContainerListCalled    bool
	ContainerCreateCalled  bool
	ContainerStartCalled   bool
	ContainerStopCalled    bool
	ContainerRestartCalled bool
	ContainerRemoveCalled  bool
	ContainerInspectCalls  int
	ContainerLogsCalled    bool
	ImagePullCalled        bool
	VolumeCreateCalled     bool
	VolumeListCalled       bool
	VolumeRemoveCalled     bool
	NetworkCreateCalled    bool
	NetworkListCalled      bool
	NetworkConnectCalled   bool
	PingCalled             bool

	// Store last call parameters
	LastContainerID   string
	LastContainerName string
	LastImageTag      string
	LastVolumeName    string
	LastNetworkName   string
	StoppedIDs        []string
	RemovedIDs        []string
	StartedNames      []string
}

// NewMockDockerClient creates a new mock Docker client
func NewMockDockerClient() *MockDockerClient {
	return &MockDockerClient{
		Containers: []containertypes.Summary{},
		Volumes:    make(map[string]*volume.Volume),
		Networks:   make(map[string]string),
	}
}

// AddContainer registers a container summary under the given name and ID.
func (m *MockDockerClient) AddContainer(id, name, status string) {
	m.Containers = append(m.Containers, containertypes.Summary{
		ID:     id,
		Names:  []string{"/" + name},
		Status: status,
	})
}

func (m *MockDockerClient) ContainerList(ctx context.Context, options containertypes.ListOptions) ([]containertypes.Summary, error) {
	m.ContainerListCalled = true
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Containers, nil
}

func (m *MockDockerClient) ContainerCreate(
	ctx context.Context,
	config *containertypes.Config,
	hostConfig *containertypes.HostConfig,
	networkingConfig *networktypes.NetworkingConfig,
	platform *ocispec.Platform,
	containerName string,
) (containertypes.CreateResponse, error) {
	m.ContainerCreateCalled = true
	m.LastContainerName = containerName
	if m.Err != nil {
		return containertypes.CreateResponse{}, m.Err
	}
	id := "mock-" + containerName
	m.Containers = append(m.Containers, containertypes.Summary{
		ID:     id,
		Names:  []string{"/" + containerName},
		Status: "Created",
	})
	return containertypes.CreateResponse{ID: id}, nil
}

func (m *MockDockerClient) ContainerStart(ctx context.Context, containerID string, options containertypes.StartOptions) error {
	m.ContainerStartCalled = true
	m.LastContainerID = containerID
	m.StartedNames = append(m.StartedNames, strings.TrimPrefix(containerID, "mock-"))
	return m.Err
}

func (m *MockDockerClient) ContainerStop(ctx context.Context, containerID string, options containertypes.StopOptions) error {
	m.ContainerStopCalled = true
	m.LastContainerID = containerID
	m.StoppedIDs = append(m.StoppedIDs, containerID)
	return m.Err
}

func (m *MockDockerClient) ContainerRestart(ctx context.Context, containerID string, options containertypes.StopOptions) error {
	m.ContainerRestartCalled = true
	m.LastContainerID = containerID
	return m.Err
}

func (m *MockDockerClient) ContainerRemove(ctx context.Context, containerID string, options containertypes.RemoveOptions) error {
	m.ContainerRemoveCalled = true
	m.LastContainerID = containerID
	m.RemovedIDs = append(m.RemovedIDs, containerID)
	if m.Err != nil {
		return m.Err
	}
	var remaining []containertypes.Summary
	for _, cont := range m.Containers {
		if cont.ID != containerID {
			remaining = append(remaining, cont)
		}
	}
	m.Containers = remaining
	return nil
}

func (m *MockDockerClient) ContainerInspect(ctx context.Context, containerID string) (containertypes.InspectResponse, error) {
	call := m.ContainerInspectCalls
	m.ContainerInspectCalls++
	m.LastContainerID = containerID
	if m.InspectFn != nil {
		return m.InspectFn(containerID)
	}
	if m.Err != nil {
		return containertypes.InspectResponse{}, m.Err
	}
	if len(m.InspectResults) == 0 {
		return containertypes.InspectResponse{}, fmt.Errorf("no inspect result configured for %s", containerID)
	}
	if call >= len(m.InspectResults) {
		call = len(m.InspectResults) - 1
	}
	return m.InspectResults[call], nil
}

func (m *MockDockerClient) ContainerLogs(ctx context.Context, containerID string, options containertypes.LogsOptions) (io.ReadCloser, error) {
	m.ContainerLogsCalled = true
	m.LastContainerID = containerID
	if m.Err != nil {
		return nil, m.Err
	}
	buf := new(bytes.Buffer)
	w := stdcopy.NewStdWriter(buf, stdcopy.Stdout)
	_, _ = w.Write([]byte(m.LogsOutput))
	return io.NopCloser(buf), nil
}

func (m *MockDockerClient) ImagePull(ctx context.Context, refStr string, options image.PullOptions) (io.ReadCloser, error) {
	m.ImagePullCalled = true
	m.LastImageTag = refStr
	if m.Err != nil {
		return nil, m.Err
	}
	return io.NopCloser(strings.NewReader("{}")), nil
}

func (m *MockDockerClient) VolumeCreate(ctx context.Context, options volume.CreateOptions) (volume.Volume, error) {
	m.VolumeCreateCalled = true
	m.LastVolumeName = options.Name
	if m.Err != nil {
		return volume.Volume{}, m.Err
	}
	vol := volume.Volume{Name: options.Name}
	m.Volumes[options.Name] = &vol
	return vol, nil
}

func (m *MockDockerClient) VolumeList(ctx context.Context, options volume.ListOptions) (volume.ListResponse, error) {
	m.VolumeListCalled = true
	if m.Err != nil {
		return volume.ListResponse{}, m.Err
	}
	resp := volume.ListResponse{}
	for _, vol := range m.Volumes {
		resp.Volumes = append(resp.Volumes, vol)
	}
	return resp, nil
}

func (m *MockDockerClient) VolumeRemove(ctx context.Context, volumeID string, force bool) error {
	m.VolumeRemoveCalled = true
	m.LastVolumeName = volumeID
	if m.Err != nil {
		return m.Err
	}
	delete(m.Volumes, volumeID)
	return nil
}

func (m *MockDockerClient) NetworkCreate(ctx context.Context, name string, options networktypes.CreateOptions) (networktypes.CreateResponse, error) {
	m.NetworkCreateCalled = true
	m.LastNetworkName = name
	if m.Err != nil {
		return networktypes.CreateResponse{}, m.Err
	}
	id := "net-" + name
	m.Networks[name] = id
	return networktypes.CreateResponse{ID: id}, nil
}

func (m *MockDockerClient) NetworkList(ctx context.Context, options networktypes.ListOptions) ([]networktypes.Summary, error) {
	m.NetworkListCalled = true
	if m.Err != nil {
		return nil, m.Err
	}
	var nets []networktypes.Summary
	for name, id := range m.Networks {
		nets = append(nets, networktypes.Summary{ID: id, Name: name})
	}
	return nets, nil
}

func (m *MockDockerClient) NetworkConnect(ctx context.Context, networkID, containerID string, config *networktypes.EndpointSettings) error {
	m.NetworkConnectCalled = true
	m.LastNetworkName = networkID
	return m.Err
}

func (m *MockDockerClient) Ping(ctx context.Context) (types.Ping, error) {
	m.PingCalled = true
	if m.PingErr != nil {
		return types.Ping{}, m.PingErr
	}
	if m.Err != nil {
		return types.Ping{}, m.Err
	}
	return types.Ping{APIVersion: "1.49"}, nil
}

func (m *MockDockerClient) Close() error {
	return nil
}
