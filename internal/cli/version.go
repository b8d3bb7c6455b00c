package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"pricewatch/internal/version"
)

var versionShort bool

// versionCmd skips config loading so it works without a config file.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		if versionShort {
			fmt.Fprintln(cmd.OutOrStdout(), version.UserAgentTag())
			return
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\nversion: %s\ncommit: %s\nbuilt: %s\n",
			version.Name, version.Version, version.Commit, version.BuildDate)
	},
}

func init() {
	versionCmd.Flags().BoolVar(&versionShort, "short", false, "Print name/version only")
}
