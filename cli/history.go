package cli

import (
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/stackpilot/stackpilot/store"
)

var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "Show past deployment runs",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		db, err := store.Open(historyPath(cfg))
		if err != nil {
			return err
		}
		defer db.Close()

		if len(args) == 1 {
			report, err := db.GetReport(args[0])
			if err != nil {
				return err
			}
			printReport(report)
			return nil
		}

		reports, err := db.ListReports()
		if err != nil {
			return err
		}
		if len(reports) == 0 {
			printf("no runs recorded")
			return nil
		}
		for _, r := range reports {
			status := "ok"
			if code := r.ExitCode(); code == 1 {
				status = "failed"
			} else if code == 2 {
				status = "degraded"
			}
			printf("%s  %-8s  %s  (%s)", r.RunID, status,
				humanize.Time(r.Started),
				r.Finished.Sub(r.Started).Round(time.Second))
		}
		return nil
	},
}
