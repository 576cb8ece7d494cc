package stack

import (
	"context"

	"github.com/stackpilot/stackpilot/common"
	"github.com/stackpilot/stackpilot/config"
)

// Teardown stops and removes all units of the deployment in reverse start
// order, then deletes the generated artifacts. Data volumes are kept so
// database state survives redeployment. Units that don't exist are
// silently skipped, so teardown on a clean host is a no-op.
func Teardown(ctx context.Context, cli common.DockerClient, cfg *config.Config) error {
	for i := len(unitOrder) - 1; i >= 0; i-- {
		unit := cfg.UnitName(unitOrder[i])
		if err := common.StopAndRemoveContainerWithClient(ctx, cli, unit, stopTimeoutSeconds); err != nil {
			return err
		}
	}

	// Sweep anything else carrying the deployment prefix, e.g. units from
	// an older version of the stack definition.
	strays, err := common.ListContainersByPrefixWithClient(ctx, cli, cfg.Deployment.Name+"-")
	if err != nil {
		return err
	}
	for _, stray := range strays {
		common.Logger.Warn("removing stray container ", stray.Name)
		if err := common.StopAndRemoveContainerWithClient(ctx, cli, stray.Name, stopTimeoutSeconds); err != nil {
			return err
		}
	}

	return RemoveArtifacts(cfg)
}
