package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"pricewatch/internal/app"
)

var (
	migrateFrom     string
	migrateFromPath string
	migrateDryRun   bool
	migrateMerge    bool
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Copy tracked items from another storage backend into the configured one",
	Example: `  pricewatch migrate --from file --from-path data/products.json
  PRICEWATCH_STORAGE_DRIVER=postgres pricewatch migrate --from redis --merge`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if migrateFrom == "" {
			return fmt.Errorf("--from must be provided")
		}
		return getApp().Migrate(cmd.Context(), app.MigrateOptions{
			FromDriver: migrateFrom,
			FromPath:   migrateFromPath,
			DryRun:     migrateDryRun,
			Merge:      migrateMerge,
		})
	},
}

func init() {
	migrateCmd.Flags().StringVar(&migrateFrom, "from", "", "Source driver: file, redis, postgres, sqlite")
	migrateCmd.Flags().StringVar(&migrateFromPath, "from-path", "", "Source path for file or sqlite sources")
	migrateCmd.Flags().BoolVar(&migrateDryRun, "dry-run", false, "Read and validate without writing")
	migrateCmd.Flags().BoolVar(&migrateMerge, "merge", false, "Keep destination items missing from the source")
}
