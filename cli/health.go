package cli

import (
	"github.com/spf13/cobra"

	"github.com/stackpilot/stackpilot/common"
	"github.com/stackpilot/stackpilot/provision"
	"github.com/stackpilot/stackpilot/stack"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check every unit of the deployment without changing anything",
	Long: `health inspects each unit's container state and healthcheck status, and
confirms the application role can actually log in to the database. It is
strictly read-only. The exit code is non-zero when any check fails.`,
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

		failed := 0
		for _, unit := range stack.UnitNames() {
			name := cfg.UnitName(unit)
			state, healthStatus, err := common.ContainerStateWithClient(session.ctx, session.cli, name)
			switch {
			case err != nil:
				printf("FAIL  %-20s %v", name, err)
				failed++
			case healthStatus == "healthy" || (healthStatus == "" && state == "running"):
				printf("ok    %-20s %s", name, describe(state, healthStatus))
			default:
				printf("FAIL  %-20s %s", name, describe(state, healthStatus))
				failed++
			}
		}

		auth := provision.PgxAuthenticator{}
		if err := auth.Check(session.ctx, cfg.DSN(cfg.Database.User, cfg.Database.Password)); err != nil {
			printf("FAIL  %-20s %v", "database-login", err)
			failed++
		} else {
			printf("ok    %-20s role %s can connect", "database-login", cfg.Database.User)
		}

		if failed > 0 {
			return &exitCodeError{code: 1, msg: "health checks failed"}
		}
		return nil
	},
}

func describe(state, healthStatus string) string {
	if healthStatus != "" {
		return state + " (" + healthStatus + ")"
	}
	return state
}
