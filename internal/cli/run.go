package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var runNow bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the tracker on its schedule",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Run(cmd.Context(), runNow)
	},
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run a single pass over every tracked item (for external cron)",
	RunE: func(cmd *cobra.Command, args []string) error {
		summary, err := getApp().Check(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "checked %d, updated %d, failed %d, notified %d\n",
			summary.Checked, summary.Updated, summary.Failed, summary.Notified)
		return nil
	},
}

func init() {
	runCmd.Flags().BoolVar(&runNow, "now", false, "Run a pass immediately instead of waiting for the first slot")
}
