// Package health polls container status until a unit reports healthy or a
// timeout elapses. It is the gate between deployment stages: the
// orchestrator will not start a dependent unit until its dependency has
// been observed healthy once.
package health

import (
	"context"
	"time"

	"github.com/stackpilot/stackpilot/common"
)

// State is the terminal outcome of a wait.
type State string

const (
	// Healthy means the unit's status matched the healthy predicate at
	// least once. A single observation ends the wait; there is no debounce.
	Healthy State = "healthy"

	// TimedOut means the timeout elapsed with no healthy observation.
	TimedOut State = "timed_out"
)

// DefaultInterval is the pause between status observations.
const DefaultInterval = 5 * time.Second

// Poller watches a unit's container state through the Docker API.
type Poller struct {
	Client   common.DockerClient
	Interval time.Duration

	// seams for tests
	now   func() time.Time
	sleep func(time.Duration)
}

// NewPoller creates a poller with the default observation interval.
func NewPoller(cli common.DockerClient) *Poller {
	return &Poller{
		Client:   cli,
		Interval: DefaultInterval,
		now:      time.Now,
		sleep:    time.Sleep,
	}
}

// WaitHealthy polls unitName until it is healthy or timeout has elapsed.
// The unit is healthy when its container healthcheck reports "healthy", or,
// for containers without a healthcheck, when the container is running.
// A transient inspect failure counts as an unhealthy observation; the unit
// may simply not exist yet.
func (p *Poller) WaitHealthy(ctx context.Context, unitName string, timeout time.Duration) (State, error) {
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	deadline := p.now().Add(timeout)

	for {
		if ctx.Err() != nil {
			return TimedOut, ctx.Err()
		}

		state, healthStatus, err := common.ContainerStateWithClient(ctx, p.Client, unitName)
		if err != nil {
			common.Logger.Debug("health observation failed for ", unitName, ": ", err)
		} else if isHealthy(state, healthStatus) {
			return Healthy, nil
		}

		if !p.now().Before(deadline) {
			return TimedOut, nil
		}
		p.sleep(interval)
	}
}

// LogTail fetches the unit's recent log lines for timeout diagnostics.
// Best effort: a fetch failure returns an empty string and never changes
// the wait outcome.
func (p *Poller) LogTail(ctx context.Context, unitName string, lines int) string {
	out, err := common.ContainerLogsTailWithClient(ctx, p.Client, unitName, lines)
	if err != nil {
		common.Logger.Debug("log tail unavailable for ", unitName, ": ", err)
		return ""
	}
	return out
}

// isHealthy is the status predicate. The health string is compared exactly:
// "unhealthy" contains "healthy" and must not match.
func isHealthy(state, healthStatus string) bool {
	if healthStatus != "" {
		return healthStatus == "healthy"
	}
	return state == "running"
}
