package health

import (
	"context"
	"testing"
	"time"

	containertypes "github.com/docker/docker/api/types/container"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackpilot/stackpilot/common"
)

func inspectResult(state, healthStatus string) containertypes.InspectResponse {
	cs := &containertypes.State{Status: state}
	if healthStatus != "" {
		cs.Health = &containertypes.Health{Status: healthStatus}
	}
	return containertypes.InspectResponse{
		ContainerJSONBase: &containertypes.ContainerJSONBase{State: cs},
	}
}

// fakeClockPoller returns a poller whose clock only advances when sleep is
// called, so timing properties can be asserted deterministically.
func fakeClockPoller(mock *common.MockDockerClient, interval time.Duration) (*Poller, *int) {
	sleeps := 0
	cur := time.Unix(0, 0)
	p := NewPoller(mock)
	p.Interval = interval
	p.now = func() time.Time { return cur }
	p.sleep = func(d time.Duration) {
		sleeps++
		cur = cur.Add(d)
	}
	return p, &sleeps
}

func TestWaitHealthyImmediate(t *testing.T) {
	mock := common.NewMockDockerClient()
	mock.AddContainer("id1", "stack-postgres", "Up 1 second")
	mock.InspectResults = []containertypes.InspectResponse{inspectResult("running", "healthy")}

	p, sleeps := fakeClockPoller(mock, 5*time.Second)
	state, err := p.WaitHealthy(context.Background(), "stack-postgres", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, Healthy, state)
	assert.Equal(t, 0, *sleeps, "first healthy observation must end the wait with no sleep")
}

func TestWaitHealthyAfterStarting(t *testing.T) {
	mock := common.NewMockDockerClient()
	mock.AddContainer("id1", "stack-postgres", "Up 1 second")
	mock.InspectResults = []containertypes.InspectResponse{
		inspectResult("running", "starting"),
		inspectResult("running", "starting"),
		inspectResult("running", "healthy"),
	}

	p, sleeps := fakeClockPoller(mock, 5*time.Second)
	state, err := p.WaitHealthy(context.Background(), "stack-postgres", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, Healthy, state)
	assert.Equal(t, 2, *sleeps)
}

func TestWaitHealthyUnhealthyNeverMatches(t *testing.T) {
	// "unhealthy" contains the substring "healthy"; the predicate must not
	// be fooled by it.
	mock := common.NewMockDockerClient()
	mock.AddContainer("id1", "stack-app", "Up 10 seconds")
	mock.InspectResults = []containertypes.InspectResponse{inspectResult("running", "unhealthy")}

	p, _ := fakeClockPoller(mock, 5*time.Second)
	state, err := p.WaitHealthy(context.Background(), "stack-app", 12*time.Second)
	require.NoError(t, err)
	assert.Equal(t, TimedOut, state)
}

func TestWaitHealthyTimesOutAtDeadline(t *testing.T) {
	mock := common.NewMockDockerClient()
	mock.AddContainer("id1", "stack-app", "Up 10 seconds")
	mock.InspectResults = []containertypes.InspectResponse{inspectResult("running", "starting")}

	p, sleeps := fakeClockPoller(mock, 5*time.Second)
	state, err := p.WaitHealthy(context.Background(), "stack-app", 12*time.Second)
	require.NoError(t, err)
	assert.Equal(t, TimedOut, state)
	// Observations at t=0, 5, 10, 15; the 15s observation is past the 12s
	// deadline and ends the wait.
	assert.Equal(t, 3, *sleeps)
}

func TestWaitHealthyNoHealthcheckUsesRunning(t *testing.T) {
	mock := common.NewMockDockerClient()
	mock.AddContainer("id1", "stack-edge", "Up 1 second")
	mock.InspectResults = []containertypes.InspectResponse{
		inspectResult("created", ""),
		inspectResult("running", ""),
	}

	p, sleeps := fakeClockPoller(mock, 5*time.Second)
	state, err := p.WaitHealthy(context.Background(), "stack-edge", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, Healthy, state)
	assert.Equal(t, 1, *sleeps)
}

func TestWaitHealthyMissingContainerKeepsPolling(t *testing.T) {
	// Unit not created yet: observations fail, the wait times out instead
	// of erroring.
	mock := common.NewMockDockerClient()

	p, _ := fakeClockPoller(mock, 5*time.Second)
	state, err := p.WaitHealthy(context.Background(), "stack-ghost", 7*time.Second)
	require.NoError(t, err)
	assert.Equal(t, TimedOut, state)
}

func TestLogTailBestEffort(t *testing.T) {
	mock := common.NewMockDockerClient()
	mock.AddContainer("id1", "stack-postgres", "Up 1 minute")
	mock.LogsOutput = "FATAL: password authentication failed\n"

	p := NewPoller(mock)
	out := p.LogTail(context.Background(), "stack-postgres", 50)
	assert.Contains(t, out, "password authentication failed")

	// A missing container yields an empty tail, not an error.
	assert.Empty(t, p.LogTail(context.Background(), "stack-ghost", 50))
}
