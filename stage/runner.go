package stage

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/stackpilot/stackpilot/common"
)

// Exit codes for a deployment run.
const (
	ExitSuccess  = 0
	ExitFatal    = 1
	ExitDegraded = 2
)

// Report is the aggregate result of one deployment run.
type Report struct {
	RunID      string            `json:"run_id"`
	Deployment string            `json:"deployment"`
	Started    time.Time         `json:"started"`
	Finished   time.Time         `json:"finished"`
	Outcomes   []Outcome         `json:"outcomes"`
	Warnings   []string          `json:"warnings,omitempty"`
	Endpoints  map[string]string `json:"endpoints,omitempty"`
	// Credentials holds account names and masked secrets for the summary
	Credentials map[string]string `json:"credentials,omitempty"`
	Fatal       bool              `json:"fatal"`
}

// ExitCode maps the report to the process exit code: 0 when everything
// completed, 1 when a fatal stage failed, 2 when the run finished degraded.
func (r *Report) ExitCode() int {
	if r.Fatal {
		return ExitFatal
	}
	for _, o := range r.Outcomes {
		if o.Status == StatusDegraded || o.Status == StatusFailed {
			return ExitDegraded
		}
	}
	if len(r.Warnings) > 0 {
		return ExitDegraded
	}
	return ExitSuccess
}

// Runner executes stages in order, enforcing status transitions and
// stopping at the first fatal failure.
type Runner struct {
	Deployment string
	Stages     []Stage

	report *Report
}

// NewRunner creates a runner for one deployment's stage sequence.
func NewRunner(deployment string, stages []Stage) *Runner {
	return &Runner{Deployment: deployment, Stages: stages}
}

// AddWarning records a non-fatal problem on the run report. Stage run
// functions use this for sub-failures that should degrade the run without
// failing their stage.
func (r *Runner) AddWarning(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	common.Logger.Warn(msg)
	if r.report != nil {
		r.report.Warnings = append(r.report.Warnings, msg)
	}
}

// SetEndpoint records a user-facing endpoint for the final report.
func (r *Runner) SetEndpoint(name, url string) {
	if r.report != nil {
		if r.report.Endpoints == nil {
			r.report.Endpoints = map[string]string{}
		}
		r.report.Endpoints[name] = url
	}
}

// SetCredential records an account summary line for the final report.
// Secrets must be masked by the caller before they get here.
func (r *Runner) SetCredential(name, value string) {
	if r.report != nil {
		if r.report.Credentials == nil {
			r.report.Credentials = map[string]string{}
		}
		r.report.Credentials[name] = value
	}
}

// Run executes the stage sequence. Stages after a fatal failure are marked
// skipped; non-fatal failures degrade the run and execution continues.
func (r *Runner) Run(ctx context.Context) *Report {
	r.report = &Report{
		RunID:      uuid.New().String(),
		Deployment: r.Deployment,
		Started:    time.Now(),
	}

	fatal := false
	for _, s := range r.Stages {
		if fatal && !s.AlwaysRun {
			r.report.Outcomes = append(r.report.Outcomes, Outcome{
				Name:   s.Name,
				Status: StatusSkipped,
			})
			continue
		}
		r.report.Outcomes = append(r.report.Outcomes, r.runOne(ctx, s))
		last := r.report.Outcomes[len(r.report.Outcomes)-1]
		if last.Status == StatusFailed && s.Fatal {
			fatal = true
		}
	}

	r.report.Fatal = fatal
	r.report.Finished = time.Now()
	return r.report
}

func (r *Runner) runOne(ctx context.Context, s Stage) (outcome Outcome) {
	outcome = Outcome{Name: s.Name, Status: StatusPending}
	if !outcome.Status.CanTransitionTo(StatusRunning) {
		outcome.Err = fmt.Errorf("stage %s: invalid transition %s -> %s", s.Name, outcome.Status, StatusRunning)
		outcome.Status = StatusFailed
		return outcome
	}
	outcome.Status = StatusRunning
	outcome.Started = time.Now()
	common.Logger.Info("stage ", s.Name, ": ", s.Description)

	defer func() {
		if rec := recover(); rec != nil {
			outcome.Err = fmt.Errorf("stage %s panicked: %v", s.Name, rec)
			outcome.Error = outcome.Err.Error()
			outcome.Status = StatusFailed
			outcome.Finished = time.Now()
			common.Logger.Error(outcome.Err)
		}
	}()

	runCtx := ctx
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	err := s.Run(runCtx)
	outcome.Finished = time.Now()

	if err != nil {
		outcome.Err = err
		outcome.Error = err.Error()
		outcome.Hint = s.Hint
		if s.Fatal {
			outcome.Status = StatusFailed
			common.Logger.Error("stage ", s.Name, " failed after ", humanize.RelTime(outcome.Started, outcome.Finished, "", ""), ": ", err)
			if s.Hint != "" {
				common.Logger.Error("hint: ", s.Hint)
			}
		} else {
			outcome.Status = StatusDegraded
			common.Logger.Warn("stage ", s.Name, " degraded: ", err)
		}
		return outcome
	}

	outcome.Status = StatusComplete
	common.Logger.Info("stage ", s.Name, " complete in ", outcome.Duration().Round(time.Millisecond))
	return outcome
}
