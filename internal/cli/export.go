package cli

import (
	"github.com/spf13/cobra"

	"pricewatch/internal/app"
)

var (
	exportPNGPath  string
	exportCSVPath  string
	exportOnTarget bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a snapshot of tracked items as CSV and/or a PNG chart",
	Example: `  pricewatch export --csv out/items.csv
  pricewatch export --png out/items.png --on-target`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Export(cmd.Context(), app.ExportOptions{
			PNGPath:      exportPNGPath,
			CSVPath:      exportCSVPath,
			OnTargetOnly: exportOnTarget,
		})
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportPNGPath, "png", "", "Path to write PNG chart")
	exportCmd.Flags().StringVar(&exportCSVPath, "csv", "", "Path to write CSV data")
	exportCmd.Flags().BoolVar(&exportOnTarget, "on-target", false, "Only include items at or below their desired price")
}
