package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stackpilot/stackpilot/version"
)

var (
	showDeps bool
	depQuery string
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version and build information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if depQuery != "" {
			dep := version.GetDependency(depQuery)
			if dep == nil {
				return fmt.Errorf("module %s is not compiled into this binary", depQuery)
			}
			printf("%s %s", dep.Path, dep.Version)
			if dep.Replace != "" {
				printf("  replaced by %s", dep.Replace)
			}
			return nil
		}

		printf("stackpilot %s", version.Version)
		info := version.GetBuildInfo()
		printf("go %s", info.GoVersion)
		if showDeps {
			for _, dep := range info.Dependencies {
				printf("  %s %s", dep.Path, dep.Version)
			}
		}
		return nil
	},
}

func init() {
	versionCmd.Flags().BoolVar(&showDeps, "deps", false, "list compiled-in dependency versions")
	versionCmd.Flags().StringVar(&depQuery, "dep", "", "print the compiled-in version of one module")
	RootCmd.AddCommand(versionCmd)
}
