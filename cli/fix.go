package cli

import (
	"fmt"
	"strings"

	containertypes "github.com/docker/docker/api/types/container"
	"github.com/spf13/cobra"

	"github.com/stackpilot/stackpilot/common"
	"github.com/stackpilot/stackpilot/stack"
)

var fixCmd = &cobra.Command{
	Use:   "fix",
	Short: "Targeted remediation for a single unit or subsystem",
}

var fixRestartCmd = &cobra.Command{
	Use:   "restart <unit>",
	Short: "Restart one unit's container",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		unit := args[0]
		if !stack.IsUnit(unit) {
			return fmt.Errorf("unknown unit %q (one of: %s)", unit, strings.Join(stack.UnitNames(), ", "))
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		session, err := connect(cfg)
		if err != nil {
			return err
		}
		defer session.Close()

		name := cfg.UnitName(unit)
		id, err := common.FindContainerIDWithClient(session.ctx, session.cli, name)
		if err != nil {
			return err
		}
		if id == "" {
			return fmt.Errorf("no container for unit %s; run a deployment first", unit)
		}
		timeout := 30
		if err := session.cli.ContainerRestart(session.ctx, id, containertypes.StopOptions{Timeout: &timeout}); err != nil {
			return fmt.Errorf("failed to restart %s: %w", name, err)
		}
		printf("restarted %s", name)
		return nil
	},
}

var fixProvisionCmd = &cobra.Command{
	Use:   "provision",
	Short: "Rerun data store provisioning and verification only",
	Long: `fix provision reruns the idempotent provisioning sequence (roles,
database, grants, extensions) against the running database unit and then
verifies the credentials. Units are not restarted.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		session, err := connect(cfg)
		if err != nil {
			return err
		}
		defer session.Close()

		s := stack.New(cfg, session.cli)
		engine, err := s.EngineFactory()
		if err != nil {
			return err
		}
		outcome, err := engine.Provision(session.ctx)
		if outcome != nil {
			for _, w := range outcome.Warnings() {
				printf("warning: %s", w)
			}
		}
		if err != nil {
			return err
		}
		if _, err := engine.Verify(session.ctx, cfg.DSN(cfg.Database.User, cfg.Database.Password), outcome.InstalledExtensions); err != nil {
			return err
		}
		printf("provisioning converged and verified")
		if len(outcome.FailedExtensions) > 0 {
			return &exitCodeError{code: 2, msg: "provisioning finished with warnings"}
		}
		return nil
	},
}

var logLines int

var fixLogsCmd = &cobra.Command{
	Use:   "logs <unit>",
	Short: "Print the last log lines of one unit",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		unit := args[0]
		if !stack.IsUnit(unit) {
			return fmt.Errorf("unknown unit %q (one of: %s)", unit, strings.Join(stack.UnitNames(), ", "))
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		session, err := connect(cfg)
		if err != nil {
			return err
		}
		defer session.Close()

		out, err := common.ContainerLogsTailWithClient(session.ctx, session.cli, cfg.UnitName(unit), logLines)
		if err != nil {
			return err
		}
		fmt.Print(out)
		return nil
	},
}

func init() {
	fixLogsCmd.Flags().IntVar(&logLines, "lines", 100, "number of log lines to print")
	fixCmd.AddCommand(fixRestartCmd)
	fixCmd.AddCommand(fixProvisionCmd)
	fixCmd.AddCommand(fixLogsCmd)
}
