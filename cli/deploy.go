package cli

import (
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/stackpilot/stackpilot/common"
	"github.com/stackpilot/stackpilot/config"
	"github.com/stackpilot/stackpilot/stack"
	"github.com/stackpilot/stackpilot/stage"
	"github.com/stackpilot/stackpilot/store"
)

var pinsFile string

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Run a full deployment: teardown, start units, provision, verify",
	Long: `deploy executes the complete stage sequence against the configured
Docker host. The run is destructive for containers (previous units are
removed first) but keeps data volumes, so database state survives.

Exit codes: 0 on success, 1 when a fatal stage failed, 2 when the run
finished degraded (a non-critical unit failed or a warning was raised).`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if pinsFile != "" {
			if err := stack.ApplyImagePins(pinsFile, cfg); err != nil {
				return err
			}
		} else {
			// default pin file is optional
			if err := stack.ApplyImagePins(filepath.Join(cfg.Deployment.StateDir, "pins.yaml"), cfg); err != nil {
				return err
			}
		}

		session, err := connect(cfg)
		if err != nil {
			return err
		}
		defer session.Close()

		s := stack.New(cfg, session.cli)
		runner := stage.NewRunner(cfg.Deployment.Name, nil)
		runner.Stages = s.BuildStages(runner)

		report := runner.Run(session.ctx)
		printReport(report)
		persistReport(cfg, report)

		if code := report.ExitCode(); code != stage.ExitSuccess {
			return &exitCodeError{code: code, msg: "deployment did not complete cleanly"}
		}
		return nil
	},
}

func init() {
	deployCmd.Flags().StringVar(&pinsFile, "pins", "", "image pin override file (default: <state_dir>/pins.yaml if present)")
}

// printReport writes the human summary of a run to stdout.
func printReport(report *stage.Report) {
	printf("")
	printf("run %s (%s)", report.RunID, report.Deployment)
	printf("duration: %s", report.Finished.Sub(report.Started).Round(time.Millisecond))
	for _, o := range report.Outcomes {
		line := "  " + string(o.Status) + "  " + o.Name
		if o.Error != "" {
			line += "  (" + o.Error + ")"
		}
		printf("%s", line)
	}
	for _, w := range report.Warnings {
		printf("  warning: %s", w)
	}
	if len(report.Endpoints) > 0 {
		printf("endpoints:")
		for _, name := range []string{"app", "grafana", "postgres"} {
			if url, ok := report.Endpoints[name]; ok {
				printf("  %-10s %s", name, url)
			}
		}
	}
	if len(report.Credentials) > 0 {
		printf("accounts:")
		for _, name := range []string{"database", "app-admin", "metrics", "grafana"} {
			if cred, ok := report.Credentials[name]; ok {
				printf("  %-10s %s", name, cred)
			}
		}
	}
}

// persistReport saves the run to the local history. History is diagnostics
// only; failing to write it never changes the run outcome.
func persistReport(cfg *config.Config, report *stage.Report) {
	db, err := store.Open(historyPath(cfg))
	if err != nil {
		common.Logger.Warn("run history unavailable: ", err)
		return
	}
	defer db.Close()
	if err := db.SaveReport(report); err != nil {
		common.Logger.Warn("failed to persist run report: ", err)
	}
}
