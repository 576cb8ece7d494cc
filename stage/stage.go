// Package stage drives a deployment run as an ordered sequence of named
// stages with explicit status transitions.
package stage

import (
	"context"
	"time"
)

// Status represents the current status of a single stage.
type Status string

const (
	StatusPending  Status = "pending"
	StatusRunning  Status = "running"
	StatusComplete Status = "complete"
	StatusFailed   Status = "failed"
	StatusDegraded Status = "degraded"
	StatusSkipped  Status = "skipped"
)

// ValidTransitions defines which status transitions are allowed.
var ValidTransitions = map[Status][]Status{
	StatusPending: {StatusRunning, StatusSkipped},
	StatusRunning: {StatusComplete, StatusFailed, StatusDegraded},
	// Terminal states: complete, failed, degraded, skipped (no transitions out)
}

// IsTerminal returns true if the status is a terminal state.
func (s Status) IsTerminal() bool {
	return s == StatusComplete || s == StatusFailed || s == StatusDegraded || s == StatusSkipped
}

// CanTransitionTo checks if a transition to the target status is valid.
func (s Status) CanTransitionTo(target Status) bool {
	validTargets, ok := ValidTransitions[s]
	if !ok {
		return false
	}
	for _, valid := range validTargets {
		if valid == target {
			return true
		}
	}
	return false
}

// Stage is one unit of work in a deployment run. Run does the work; a nil
// Timeout field means the stage inherits the run context unchanged.
type Stage struct {
	Name        string
	Description string
	// Fatal stages abort the run on failure. Non-fatal failures mark the
	// run degraded and later stages still execute.
	Fatal bool
	// AlwaysRun stages execute even after a fatal failure. The final
	// report stage uses this so a failed run still gets summarized.
	AlwaysRun bool
	Timeout   time.Duration
	Run       func(ctx context.Context) error
	// Hint, when set, is appended to the failure output to point the
	// operator at the likely cause.
	Hint string
}

// Outcome records what happened to one stage during a run. Err is the
// live error; Error is its string form and is what survives persistence.
type Outcome struct {
	Name     string    `json:"name"`
	Status   Status    `json:"status"`
	Err      error     `json:"-"`
	Error    string    `json:"error,omitempty"`
	Hint     string    `json:"hint,omitempty"`
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished"`
}

// Duration returns how long the stage ran.
func (o Outcome) Duration() time.Duration {
	return o.Finished.Sub(o.Started)
}
