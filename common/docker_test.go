package common

import (
	"context"
	"errors"
	"strings"
	"testing"

	containertypes "github.com/docker/docker/api/types/container"
)

func TestFindContainerIDWithClient(t *testing.T) {
	mock := NewMockDockerClient()
	mock.AddContainer("abc123", "stack-postgres", "Up 2 hours")
	mock.AddContainer("def456", "stack-app", "Up 1 hour")

	ctx := context.Background()

	id, err := FindContainerIDWithClient(ctx, mock, "stack-postgres")
	if err != nil {
		t.Fatalf("FindContainerIDWithClient failed: %v", err)
	}
	if id != "abc123" {
		t.Errorf("Expected abc123, got %s", id)
	}

	id, err = FindContainerIDWithClient(ctx, mock, "missing")
	if err != nil {
		t.Fatalf("FindContainerIDWithClient failed: %v", err)
	}
	if id != "" {
		t.Errorf("Expected empty ID for missing container, got %s", id)
	}
}

func TestContainerExistsWithClient(t *testing.T) {
	mock := NewMockDockerClient()
	mock.AddContainer("abc123", "stack-postgres", "Up 2 hours")

	ctx := context.Background()

	exists, err := ContainerExistsWithClient(ctx, mock, "stack-postgres")
	if err != nil {
		t.Fatalf("ContainerExistsWithClient failed: %v", err)
	}
	if !exists {
		t.Error("Expected container to exist")
	}

	exists, err = ContainerExistsWithClient(ctx, mock, "stack-edge")
	if err != nil {
		t.Fatalf("ContainerExistsWithClient failed: %v", err)
	}
	if exists {
		t.Error("Expected container to not exist")
	}
}

func TestListContainersByPrefixWithClient(t *testing.T) {
	mock := NewMockDockerClient()
	mock.AddContainer("a1", "stack-postgres", "Up 2 hours")
	mock.AddContainer("a2", "stack-app", "Up 1 hour")
	mock.AddContainer("b1", "other-thing", "Up 5 minutes")

	views, err := ListContainersByPrefixWithClient(context.Background(), mock, "stack-")
	if err != nil {
		t.Fatalf("ListContainersByPrefixWithClient failed: %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("Expected 2 containers with prefix, got %d", len(views))
	}
	for _, v := range views {
		if !strings.HasPrefix(v.Name, "stack-") {
			t.Errorf("Unexpected container in result: %s", v.Name)
		}
	}
}

func TestEnsureNetworkIdempotent(t *testing.T) {
	mock := NewMockDockerClient()
	ctx := context.Background()

	if err := EnsureNetwork(ctx, mock, "stack-net"); err != nil {
		t.Fatalf("EnsureNetwork failed: %v", err)
	}
	if !mock.NetworkCreateCalled {
		t.Error("Expected network creation on first call")
	}

	mock.NetworkCreateCalled = false
	if err := EnsureNetwork(ctx, mock, "stack-net"); err != nil {
		t.Fatalf("EnsureNetwork failed on second call: %v", err)
	}
	if mock.NetworkCreateCalled {
		t.Error("Expected no network creation when network exists")
	}
}

func TestEnsureVolumeIdempotent(t *testing.T) {
	mock := NewMockDockerClient()
	ctx := context.Background()

	if err := EnsureVolume(ctx, mock, "pg-data"); err != nil {
		t.Fatalf("EnsureVolume failed: %v", err)
	}
	if !mock.VolumeCreateCalled {
		t.Error("Expected volume creation on first call")
	}

	mock.VolumeCreateCalled = false
	if err := EnsureVolume(ctx, mock, "pg-data"); err != nil {
		t.Fatalf("EnsureVolume failed on second call: %v", err)
	}
	if mock.VolumeCreateCalled {
		t.Error("Expected no volume creation when volume exists")
	}
}

func TestCreateAndStartContainerWithClient(t *testing.T) {
	mock := NewMockDockerClient()
	ctx := context.Background()

	err := CreateAndStartContainerWithClient(ctx, mock, containertypes.Config{Image: "postgres:17"}, containertypes.HostConfig{}, "stack-postgres", "stack-net")
	if err != nil {
		t.Fatalf("CreateAndStartContainerWithClient failed: %v", err)
	}
	if !mock.ContainerCreateCalled || !mock.ContainerStartCalled {
		t.Error("Expected container to be created and started")
	}
	if mock.LastContainerName != "stack-postgres" {
		t.Errorf("Expected container name stack-postgres, got %s", mock.LastContainerName)
	}
}

func TestStopAndRemoveContainerWithClient(t *testing.T) {
	mock := NewMockDockerClient()
	mock.AddContainer("abc123", "stack-app", "Up 1 hour")
	ctx := context.Background()

	if err := StopAndRemoveContainerWithClient(ctx, mock, "stack-app", 30); err != nil {
		t.Fatalf("StopAndRemoveContainerWithClient failed: %v", err)
	}
	if !mock.ContainerStopCalled || !mock.ContainerRemoveCalled {
		t.Error("Expected container to be stopped and removed")
	}

	// Removing a missing container is not an error.
	mock2 := NewMockDockerClient()
	if err := StopAndRemoveContainerWithClient(ctx, mock2, "missing", 30); err != nil {
		t.Fatalf("Expected no error for missing container, got %v", err)
	}
	if mock2.ContainerStopCalled {
		t.Error("Expected no stop call for missing container")
	}
}

func TestContainerLogsTailWithClient(t *testing.T) {
	mock := NewMockDockerClient()
	mock.AddContainer("abc123", "stack-postgres", "Up 2 hours")
	mock.LogsOutput = "database system is ready to accept connections\n"

	out, err := ContainerLogsTailWithClient(context.Background(), mock, "stack-postgres", 50)
	if err != nil {
		t.Fatalf("ContainerLogsTailWithClient failed: %v", err)
	}
	if !strings.Contains(out, "ready to accept connections") {
		t.Errorf("Expected log content in output, got %q", out)
	}
}

func TestContainerStateWithClient(t *testing.T) {
	mock := NewMockDockerClient()
	mock.AddContainer("abc123", "stack-postgres", "Up 2 hours")
	mock.InspectResults = []containertypes.InspectResponse{
		{
			ContainerJSONBase: &containertypes.ContainerJSONBase{
				State: &containertypes.State{
					Status: "running",
					Health: &containertypes.Health{Status: "healthy"},
				},
			},
		},
	}

	state, health, err := ContainerStateWithClient(context.Background(), mock, "stack-postgres")
	if err != nil {
		t.Fatalf("ContainerStateWithClient failed: %v", err)
	}
	if state != "running" || health != "healthy" {
		t.Errorf("Expected running/healthy, got %s/%s", state, health)
	}
}

func TestPingEngine(t *testing.T) {
	mock := NewMockDockerClient()
	if err := PingEngine(context.Background(), mock); err != nil {
		t.Fatalf("PingEngine failed: %v", err)
	}

	mock.PingErr = errors.New("connection refused")
	if err := PingEngine(context.Background(), mock); err == nil {
		t.Error("Expected error when engine is unreachable")
	}
}
